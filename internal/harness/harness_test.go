package harness_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/harness"
	"github.com/goadesign/agent-kernel/internal/kernel"
	"github.com/goadesign/agent-kernel/internal/taskqueue"
)

func TestSeedSpecsLoadAll(t *testing.T) {
	specs, err := harness.SeedSpecs()
	require.NoError(t, err)
	assert.Len(t, specs, 12)

	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		assert.NotEmpty(t, s.ID)
		assert.False(t, seen[s.ID], "duplicate test id %q", s.ID)
		seen[s.ID] = true
		assert.NotEmpty(t, s.InitialTasks, "test %q has no initial tasks", s.ID)
	}
}

func TestRunTestQueueReprioritization(t *testing.T) {
	spec, err := harness.SeedSpec("queue-reprioritization")
	require.NoError(t, err)

	result := harness.RunTest(context.Background(), spec, nil, nil)
	require.Empty(t, result.Error)
	assert.True(t, result.Pass)
	assert.Equal(t, "queue-reprioritization", result.TestID)
}

func TestRunTestStopInterrupt(t *testing.T) {
	spec, err := harness.SeedSpec("stop-interrupt")
	require.NoError(t, err)

	result := harness.RunTest(context.Background(), spec, nil, nil)
	require.Empty(t, result.Error)
	assert.True(t, result.Pass)
}

func TestRunTestVerificationFirst(t *testing.T) {
	spec, err := harness.SeedSpec("verification-first")
	require.NoError(t, err)

	result := harness.RunTest(context.Background(), spec, nil, nil)
	require.Empty(t, result.Error)
	assert.True(t, result.Pass)
}

func TestRunTestContradictionDetection(t *testing.T) {
	spec, err := harness.SeedSpec("contradiction-detection")
	require.NoError(t, err)

	result := harness.RunTest(context.Background(), spec, nil, nil)
	require.Empty(t, result.Error)
	assert.True(t, result.Pass)
}

func TestRunTestBudgetTokens(t *testing.T) {
	spec, err := harness.SeedSpec("budget-tokens")
	require.NoError(t, err)

	result := harness.RunTest(context.Background(), spec, nil, nil)
	require.Empty(t, result.Error)
	assert.True(t, result.Pass)
}

func TestRunTestContextOverload(t *testing.T) {
	spec, err := harness.SeedSpec("context-overload")
	require.NoError(t, err)

	result := harness.RunTest(context.Background(), spec, nil, nil)
	require.Empty(t, result.Error)
	assert.True(t, result.Pass)
}

func TestRunTestToolDiscipline(t *testing.T) {
	spec, err := harness.SeedSpec("tool-discipline")
	require.NoError(t, err)

	result := harness.RunTest(context.Background(), spec, nil, nil)
	require.Empty(t, result.Error)
	assert.True(t, result.Pass)
}

func TestRunTestSelfImprovement(t *testing.T) {
	spec, err := harness.SeedSpec("self-improvement")
	require.NoError(t, err)

	result := harness.RunTest(context.Background(), spec, nil, nil)
	require.Empty(t, result.Error)
	assert.True(t, result.Pass)
}

func TestRunTestDriftDetection(t *testing.T) {
	spec, err := harness.SeedSpec("drift-detection")
	require.NoError(t, err)

	result := harness.RunTest(context.Background(), spec, nil, nil)
	require.Empty(t, result.Error)
	assert.True(t, result.Pass)
}

func TestRunTestPartialCompletion(t *testing.T) {
	spec, err := harness.SeedSpec("partial-completion")
	require.NoError(t, err)

	result := harness.RunTest(context.Background(), spec, nil, nil)
	require.Empty(t, result.Error)
	assert.True(t, result.Pass)
}

func TestRunTestFailureFixTask(t *testing.T) {
	spec, err := harness.SeedSpec("failure-fix-task")
	require.NoError(t, err)

	result := harness.RunTest(context.Background(), spec, nil, nil)
	require.Empty(t, result.Error)
	assert.True(t, result.Pass)
}

// TestReplayRegressionBundleRoundTrip exercises the replay-regression seed
// scenario directly against ExportBundle/FromBundle: a two-task run is
// driven to completion, exported, and reconstructed from that bundle; the
// reconstructed event chain must verify and its per-status task counts
// must match the original's.
func TestReplayRegressionBundleRoundTrip(t *testing.T) {
	spec, err := harness.SeedSpec("replay-regression")
	require.NoError(t, err)
	require.NotEmpty(t, spec.InitialTasks)

	ctx := context.Background()
	config := core.RunConfig{Mode: core.ModeAutonomous, Budgets: spec.Budgets}
	k := kernel.New(config, nil, nil)

	for _, ts := range spec.InitialTasks {
		_, err := k.Queue().AddTask(ctx, taskqueue.AddTaskInput{
			Title:    ts.Title,
			Prompt:   ts.Prompt,
			Priority: ts.Priority,
		})
		require.NoError(t, err)
	}
	require.NoError(t, k.Start(ctx))

	bundle := k.ExportBundle(ctx)
	restored := kernel.FromBundle(bundle, nil, nil)

	ok, errs := restored.Store().VerifyChainIntegrity()
	assert.True(t, ok, "restored chain should verify intact: %v", errs)

	original := k.Queue().Stats()
	reconstructed := restored.Queue().Stats()
	for status, n := range original {
		assert.Equal(t, n, reconstructed[status], "status %q mismatch after bundle restore", status)
	}
}
