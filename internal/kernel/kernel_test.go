package kernel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
	"github.com/goadesign/agent-kernel/internal/executor"
	"github.com/goadesign/agent-kernel/internal/kernel"
	"github.com/goadesign/agent-kernel/internal/taskqueue"
)

func newTestKernel(mode core.Mode) *kernel.Kernel {
	config := core.RunConfig{
		Mode: mode,
		Budgets: core.Budgets{
			MaxOutputTokens: 5000,
			MaxIterations:   50,
			MaxToolCalls:    50,
		},
		CheckpointInterval: 2,
	}
	return kernel.New(config, nil, nil)
}

func TestStepRunsTaskToCompletion(t *testing.T) {
	ctx := context.Background()
	k := newTestKernel(core.ModeAutonomous)

	task, err := k.Queue().AddTask(ctx, taskqueue.AddTaskInput{
		Title:  "write greeting",
		Prompt: "say hello to the reader",
	})
	require.NoError(t, err)

	ran := k.Step(ctx)
	assert.True(t, ran)

	got, ok := k.Queue().Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, core.TaskDone, got.Status)
	assert.NotNil(t, got.Result)
	assert.True(t, got.Result.Success)
}

func TestStepOnEmptyQueueReturnsFalse(t *testing.T) {
	k := newTestKernel(core.ModeAutonomous)
	assert.False(t, k.Step(context.Background()))
}

func TestVerificationFailureSynthesizesFixTask(t *testing.T) {
	ctx := context.Background()
	k := newTestKernel(core.ModeAutonomous)

	_, err := k.Queue().AddTask(ctx, taskqueue.AddTaskInput{
		Title:  "too verbose",
		Prompt: "describe the plan",
		AcceptanceCriteria: []core.AcceptanceCriterion{
			{ID: "c1", Kind: core.CriterionWordLimit, Config: map[string]any{"max_words": 1}},
		},
	})
	require.NoError(t, err)

	require.True(t, k.Step(ctx))

	var fixTask *core.Task
	for _, task := range k.Queue().All() {
		if task.HasTag("fix") {
			fixTask = task
		}
	}
	require.NotNil(t, fixTask, "expected a fix task tagged \"fix\" after verification failure")
	assert.Equal(t, core.TaskQueued, fixTask.Status, "fix task must not depend on its failed original, or it would be born blocked forever")

	events := k.Store().Query(eventstore.QueryOptions{Types: []core.EventType{core.EventVerificationRun}})
	assert.NotEmpty(t, events)

	require.True(t, k.Step(ctx), "the fix task itself should be runnable, not stuck blocked")
	got, ok := k.Queue().Get(fixTask.ID)
	require.True(t, ok)
	assert.NotEqual(t, core.TaskBlocked, got.Status)
}

func TestCheckpointFiresOnInterval(t *testing.T) {
	ctx := context.Background()
	k := newTestKernel(core.ModeAutonomous)

	var snapshots []core.Snapshot
	k.SetObserver(func(s core.Snapshot) { snapshots = append(snapshots, s) })

	for i := 0; i < 3; i++ {
		_, err := k.Queue().AddTask(ctx, taskqueue.AddTaskInput{
			Title:  "task",
			Prompt: "do a small unit of work",
		})
		require.NoError(t, err)
	}

	require.NoError(t, k.Start(ctx))

	assert.NotEmpty(t, snapshots, "expected at least one checkpoint across 3 tasks with interval 2")
	events := k.Store().Query(eventstore.QueryOptions{Types: []core.EventType{core.EventCheckpointCreated}})
	assert.NotEmpty(t, events)
}

func TestRunCompletesAndEmitsRunCompleted(t *testing.T) {
	ctx := context.Background()
	k := newTestKernel(core.ModeAutonomous)

	_, err := k.Queue().AddTask(ctx, taskqueue.AddTaskInput{Title: "only task", Prompt: "finish the only task"})
	require.NoError(t, err)

	require.NoError(t, k.Start(ctx))

	events := k.Store().Query(eventstore.QueryOptions{Types: []core.EventType{core.EventRunCompleted}})
	assert.Len(t, events, 1)
}

func TestIterationBudgetExhaustionStopsRun(t *testing.T) {
	ctx := context.Background()
	config := core.RunConfig{
		Mode: core.ModeAutonomous,
		Budgets: core.Budgets{
			MaxOutputTokens: 1_000_000,
			MaxIterations:   2,
			MaxToolCalls:    1_000_000,
		},
		CheckpointInterval: 100,
	}
	k := kernel.New(config, nil, nil)

	for i := 0; i < 10; i++ {
		_, err := k.Queue().AddTask(ctx, taskqueue.AddTaskInput{Title: "task", Prompt: "do a small unit of work"})
		require.NoError(t, err)
	}

	require.NoError(t, k.Start(ctx))

	stats := k.Queue().Stats()
	assert.Less(t, stats[core.TaskDone], 10, "iteration budget should have stopped the run before all tasks completed")

	events := k.Store().Query(eventstore.QueryOptions{Types: []core.EventType{core.EventRunStopped}})
	assert.Len(t, events, 1)
}

func TestManualModeBlocksUntilApprovalResolved(t *testing.T) {
	ctx := context.Background()
	k := newTestKernel(core.ModeManual)

	_, err := k.Queue().AddTask(ctx, taskqueue.AddTaskInput{Title: "gated task", Prompt: "perform a gated unit of work"})
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() { done <- k.Step(ctx) }()

	require.Eventually(t, func() bool {
		return len(k.Governor().PendingApprovals()) == 1
	}, time.Second, 5*time.Millisecond)

	for _, id := range k.Governor().PendingApprovals() {
		k.Governor().Resolve(id, true)
	}

	select {
	case ran := <-done:
		assert.True(t, ran)
	case <-time.After(time.Second):
		t.Fatal("Step did not return after approval was resolved")
	}
}

func TestExportBundleAndFromBundleReplayMatches(t *testing.T) {
	ctx := context.Background()
	k := newTestKernel(core.ModeAutonomous)

	_, err := k.Queue().AddTask(ctx, taskqueue.AddTaskInput{Title: "first", Prompt: "complete the first unit of work"})
	require.NoError(t, err)
	_, err = k.Queue().AddTask(ctx, taskqueue.AddTaskInput{Title: "second", Prompt: "complete the second unit of work"})
	require.NoError(t, err)

	require.NoError(t, k.Start(ctx))

	bundle := k.ExportBundle(ctx)
	require.NotEmpty(t, bundle.Events)
	require.NotEmpty(t, bundle.FinalSnapshot.Checksum)

	restored := kernel.FromBundle(bundle, executor.SimulatedExecutor{}, nil)

	ok, errs := restored.Store().VerifyChainIntegrity()
	assert.True(t, ok, "replayed chain should verify intact: %v", errs)
	assert.Equal(t, bundle.Events[len(bundle.Events)-1].HashSelf, restored.Store().Query(eventstore.QueryOptions{})[restored.Store().Len()-1].HashSelf)

	restoredStats := restored.Queue().Stats()
	for status, n := range k.Queue().Stats() {
		assert.Equal(t, n, restoredStats[status], "task status %q should match after restore", status)
	}
}
