package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agent-kernel/internal/core"
)

func TestSimulatedExecutorDeterministic(t *testing.T) {
	ctx := context.Background()
	task := &core.Task{ID: "t1", Title: "draft notes", Prompt: "summarize the meeting"}

	r1, err := SimulatedExecutor{}.Execute(ctx, task, "")
	require.NoError(t, err)
	r2, err := SimulatedExecutor{}.Execute(ctx, task, "")
	require.NoError(t, err)

	assert.Equal(t, r1.Output, r2.Output)
	assert.Equal(t, r1.TokensUsed, r2.TokensUsed)
	assert.Contains(t, r1.Output, "draft notes")
	assert.Contains(t, r1.Output, "summarize the meeting")
}

func TestSimulatedExecutorReportsContextUsage(t *testing.T) {
	ctx := context.Background()
	task := &core.Task{ID: "t1", Title: "t", Prompt: "p"}

	noCtx, err := SimulatedExecutor{}.Execute(ctx, task, "")
	require.NoError(t, err)
	assert.False(t, strings.Contains(noCtx.Output, "context item"))

	withCtx, err := SimulatedExecutor{}.Execute(ctx, task, "item one\n\n---\n\nitem two")
	require.NoError(t, err)
	assert.Contains(t, withCtx.Output, "used 2 context item(s)")
}

func TestSimulatedExecutorListsAcceptanceCriteria(t *testing.T) {
	ctx := context.Background()
	task := &core.Task{
		ID:     "t1",
		Title:  "t",
		Prompt: "p",
		AcceptanceCriteria: []core.AcceptanceCriterion{
			{ID: "c1", Description: "must mention the deadline"},
			{ID: "c2", Description: "must be under 100 words"},
		},
	}

	r, err := SimulatedExecutor{}.Execute(ctx, task, "")
	require.NoError(t, err)
	assert.Contains(t, r.Output, "addressed criterion: must mention the deadline")
	assert.Contains(t, r.Output, "addressed criterion: must be under 100 words")
}

func TestEstimateTokensFloorsAtOne(t *testing.T) {
	assert.Equal(t, 1, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("ab"))
	assert.Equal(t, 2, estimateTokens("abcde"))
}

func TestTruncateLongPrompt(t *testing.T) {
	long := strings.Repeat("x", 300)
	task := &core.Task{ID: "t1", Title: "t", Prompt: long}

	r, err := SimulatedExecutor{}.Execute(context.Background(), task, "")
	require.NoError(t, err)
	assert.Equal(t, 200, len(strings.Repeat("x", 200)))
	assert.NotContains(t, r.Output, strings.Repeat("x", 201))
}
