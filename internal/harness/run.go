package harness

import (
	"context"
	"time"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
	"github.com/goadesign/agent-kernel/internal/executor"
	"github.com/goadesign/agent-kernel/internal/kernel"
	"github.com/goadesign/agent-kernel/internal/taskqueue"
	"github.com/goadesign/agent-kernel/internal/telemetry"
)

// TestResult is the outcome of running one TestSpec.
type TestResult struct {
	TestID     string
	Pass       bool
	Score      float64
	MaxScore   float64
	Breakdown  []CategoryScore
	Duration   time.Duration
	EventCount int
	Error      string
}

// CategoryScore is one rubric category's scored outcome.
type CategoryScore struct {
	Name   string
	Earned float64
	Max    float64
}

const maxLoopIterations = 10000

// RunTest constructs a fresh kernel in autonomous mode from spec, seeds its
// context and task queue, drives it while applying queued injections at
// their trigger points, and scores the resulting event log against the
// spec's must/must-not criteria and rubric.
func RunTest(ctx context.Context, spec TestSpec, exec executor.TaskExecutor, logger telemetry.Logger) TestResult {
	start := time.Now()

	config := core.RunConfig{
		Name:   spec.ID,
		Mode:   core.ModeAutonomous,
		Budgets: spec.Budgets,
	}
	k := kernel.New(config, exec, logger)

	for _, cs := range spec.InitialContext {
		if _, err := k.Context().AddItem(ctx, cs.Tier, cs.Content, cs.Kind, "harness:"+spec.ID, cs.Priority); err != nil {
			return TestResult{TestID: spec.ID, Error: "seed context: " + err.Error()}
		}
	}

	idMap := make(map[string]string, len(spec.InitialTasks))
	for _, ts := range spec.InitialTasks {
		deps := make([]string, 0, len(ts.Dependencies))
		for _, d := range ts.Dependencies {
			if real, ok := idMap[d]; ok {
				deps = append(deps, real)
			}
		}
		t, err := k.Queue().AddTask(ctx, taskqueue.AddTaskInput{
			Title:              ts.Title,
			Prompt:             ts.Prompt,
			Priority:           ts.Priority,
			Dependencies:       deps,
			AcceptanceCriteria: criteriaFromSeeds(ts.AcceptanceCriteria),
			Tags:               ts.Tags,
		})
		if err != nil {
			return TestResult{TestID: spec.ID, Error: "seed task: " + err.Error()}
		}
		if ts.ID != "" {
			idMap[ts.ID] = t.ID
		}
	}

	injections := append([]Injection(nil), spec.Injections...)
	actionCount := 0

	for i := 0; i < maxLoopIterations; i++ {
		if ok, _ := k.Governor().CanProceed(); !ok {
			break
		}
		ran := k.Step(ctx)
		if ran {
			actionCount++
		}

		applyDueInjections(ctx, k, injections, idMap, actionCount, time.Since(start))

		if !ran {
			stats := k.Queue().Stats()
			if stats[core.TaskActive] == 0 && stats[core.TaskBlocked] == 0 {
				break
			}
		}
	}

	events := k.Store().Query(eventstore.QueryOptions{})
	result := score(spec, events, k)
	result.TestID = spec.ID
	result.Duration = time.Since(start)
	result.EventCount = k.Store().Len()
	return result
}
