package kernel_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
	"github.com/goadesign/agent-kernel/internal/kernel"
	"github.com/goadesign/agent-kernel/internal/taskqueue"
)

func runRandomTasks(n int, wordLimit bool) *kernel.Kernel {
	ctx := context.Background()
	config := core.RunConfig{
		Mode: core.ModeAutonomous,
		Budgets: core.Budgets{
			MaxOutputTokens: 1_000_000,
			MaxIterations:   1_000_000,
			MaxToolCalls:    1_000_000,
		},
		CheckpointInterval: 3,
	}
	k := kernel.New(config, nil, nil)
	for i := 0; i < n; i++ {
		in := taskqueue.AddTaskInput{
			Title:    "task",
			Prompt:   "perform a reasonably sized unit of independent work",
			Priority: (i * 37) % 100,
		}
		if wordLimit && i%3 == 0 {
			in.AcceptanceCriteria = []core.AcceptanceCriterion{
				{ID: "c", Kind: core.CriterionWordLimit, Config: map[string]any{"max_words": 1}},
			}
		}
		_, err := k.Queue().AddTask(ctx, in)
		if err != nil {
			panic(err)
		}
	}
	_ = k.Start(ctx)
	return k
}

// TestPropertyChainIntegrity verifies every run's event log satisfies
// contiguous sequence numbers and unbroken hash_prev/hash_self linkage.
func TestPropertyChainIntegrity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("event chain is always intact after a run", prop.ForAll(
		func(n int) bool {
			k := runRandomTasks(n, false)
			ok, _ := k.Store().VerifyChainIntegrity()
			return ok
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

// TestPropertySequenceMonotonicity verifies the event log's sequence numbers
// are exactly 0..n-1 in order, with no gaps or repeats.
func TestPropertySequenceMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("sequence numbers are contiguous from zero", prop.ForAll(
		func(n int) bool {
			k := runRandomTasks(n, false)
			events := k.Store().Query(eventstore.QueryOptions{})
			for i, e := range events {
				if e.SequenceNumber != int64(i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

// TestPropertyBudgetNonExceedance verifies the governor never records a used
// counter above its configured maximum, for any task count.
func TestPropertyBudgetNonExceedance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("used never exceeds max for any budget dimension", prop.ForAll(
		func(n int) bool {
			k := runRandomTasks(n, false)
			b := k.Governor().Budgets()
			return b.UsedOutputTokens <= b.MaxOutputTokens &&
				b.UsedIterations <= b.MaxIterations &&
				b.UsedToolCalls <= b.MaxToolCalls
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

// TestPropertyFixTaskLaw verifies every task that fails verification has a
// corresponding follow-up task tagged "fix" in the final queue state.
func TestPropertyFixTaskLaw(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("every verification failure produces a fix task", prop.ForAll(
		func(n int) bool {
			k := runRandomTasks(n, true)
			fixCount := 0
			failedCount := 0
			for _, task := range k.Queue().All() {
				if task.Status == core.TaskFailed {
					failedCount++
				}
				if task.HasTag("fix") {
					fixCount++
				}
			}
			return failedCount == 0 || fixCount >= failedCount
		},
		gen.IntRange(1, 9),
	))

	properties.TestingRun(t)
}

// TestPropertyPriorityOrdering verifies NextTask always returns a task of the
// highest priority among ready tasks; the order among equal priorities is not
// checked here.
func TestPropertyPriorityOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("NextTask never returns a lower priority than a ready alternative", prop.ForAll(
		func(priorities []int) bool {
			if len(priorities) == 0 {
				return true
			}
			ctx := context.Background()
			config := core.RunConfig{Mode: core.ModeManual}
			k := kernel.New(config, nil, nil)
			for _, p := range priorities {
				if _, err := k.Queue().AddTask(ctx, taskqueue.AddTaskInput{Title: "t", Prompt: "work", Priority: p}); err != nil {
					return false
				}
			}
			next := k.Queue().NextTask()
			if next == nil {
				return false
			}
			maxP := 0
			for _, p := range priorities {
				if p == 0 {
					p = core.DefaultTaskPriority // AddTask maps priority 0 to the default
				}
				if p > maxP {
					maxP = p
				}
			}
			return next.Priority == maxP
		},
		gen.SliceOfN(6, gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}

// TestPropertyStopBound verifies no ACTION_EXECUTED event appears in the log
// after RUN_STOPPED: once stopped, the run executes no further task.
func TestPropertyStopBound(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("no action executes after the run has stopped", prop.ForAll(
		func(n int) bool {
			ctx := context.Background()
			config := core.RunConfig{
				Mode: core.ModeAutonomous,
				Budgets: core.Budgets{
					MaxOutputTokens: 1_000_000,
					MaxIterations:   capInt(n, 3),
					MaxToolCalls:    1_000_000,
				},
			}
			k := kernel.New(config, nil, nil)
			for i := 0; i < n; i++ {
				if _, err := k.Queue().AddTask(ctx, taskqueue.AddTaskInput{Title: "t", Prompt: "perform independent work"}); err != nil {
					return false
				}
			}
			_ = k.Start(ctx)

			events := k.Store().Query(eventstore.QueryOptions{})
			var stopSeq int64 = -1
			for _, e := range events {
				if e.Type == core.EventRunStopped {
					stopSeq = e.SequenceNumber
					break
				}
			}
			if stopSeq < 0 {
				return true
			}
			for _, e := range events {
				if e.Type == core.EventActionExecuted && e.SequenceNumber > stopSeq {
					return false
				}
			}
			return true
		},
		gen.IntRange(4, 12),
	))

	properties.TestingRun(t)
}

func capInt(n, max int) int {
	if n < max {
		return n
	}
	return max
}
