package contextmgr

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
)

func newManager() *Manager {
	return New(eventstore.New("run1", nil), nil)
}

func TestAddItemTracksTokensPerTier(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	item, err := m.AddItem(ctx, core.TierWorking, "hello world", core.ContextSummary, "test", 50)
	require.NoError(t, err)
	require.Greater(t, item.Tokens, 0)

	state := m.State()
	require.Equal(t, item.Tokens, state.Working.CurrentTokens)
}

func TestAddItemEvictsLowPriorityFromWorkingToLongterm(t *testing.T) {
	store := eventstore.New("run1", nil)
	m := New(store, nil)
	ctx := context.Background()

	m.working.MaxTokens = 20
	low, err := m.AddItem(ctx, core.TierWorking, strings.Repeat("a", 60), core.ContextMemory, "a", 10)
	require.NoError(t, err)

	_, err = m.AddItem(ctx, core.TierWorking, strings.Repeat("b", 40), core.ContextMemory, "b", 90)
	require.NoError(t, err)

	state := m.State()
	foundInLongterm := false
	for _, it := range state.Longterm.Items {
		if it.ID == low.ID {
			foundInLongterm = true
		}
	}
	require.True(t, foundInLongterm, "low priority item should have been evicted to longterm")
}

func TestConstraintsAreNeverEvicted(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	m.pinned.MaxTokens = 10

	_, err := m.AddItem(ctx, core.TierPinned, "must not delete files", core.ContextConstraint, "policy", 100)
	require.NoError(t, err)

	_, err = m.AddItem(ctx, core.TierPinned, strings.Repeat("x", 40), core.ContextDefinition, "def", 10)
	require.Error(t, err, "pinned tier should reject admission once only the constraint remains and no eviction target exists")

	state := m.State()
	require.Len(t, state.Pinned.Items, 1)
}

func TestSelectContextRespectsMaxTokensAndIncludesPinnedFirst(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	_, _ = m.AddItem(ctx, core.TierPinned, "project goal: ship the kernel", core.ContextConstraint, "policy", 100)
	_, _ = m.AddItem(ctx, core.TierWorking, "kernel scheduling details", core.ContextSummary, "note", 50)
	_, _ = m.AddItem(ctx, core.TierWorking, "unrelated cooking recipe", core.ContextSummary, "note", 50)

	selected := m.SelectContext(ctx, "kernel scheduling", 1000)
	require.NotEmpty(t, selected)

	total := 0
	for _, it := range selected {
		total += it.Tokens
	}
	require.LessOrEqual(t, total, 1000)
	require.Equal(t, core.ContextConstraint, selected[0].Kind)
}

func TestDetectContradictionsMustNot(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	_, _ = m.AddItem(ctx, core.TierPinned, "must not use the production database", core.ContextConstraint, "policy", 100)

	conflicts := m.DetectContradictions(ctx, "I will use the production database directly")
	require.NotEmpty(t, conflicts)
}

func TestDetectContradictionsMust(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	_, _ = m.AddItem(ctx, core.TierPinned, "must write unit tests for every change", core.ContextConstraint, "policy", 100)

	conflicts := m.DetectContradictions(ctx, "implemented the feature with no tests")
	require.NotEmpty(t, conflicts)

	conflicts = m.DetectContradictions(ctx, "implemented the feature and wrote unit tests for every change")
	require.Empty(t, conflicts)
}

func TestDetectContradictionsNever(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	_, _ = m.AddItem(ctx, core.TierPinned, "never commit secrets to the repository", core.ContextConstraint, "policy", 100)

	conflicts := m.DetectContradictions(ctx, "I will commit secrets to the repository right now")
	require.NotEmpty(t, conflicts)
}
