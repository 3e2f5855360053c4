package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
)

func newGovernor(budgets core.Budgets, policy core.RiskPolicy) *Governor {
	return New(eventstore.New("run1", nil), nil, budgets, policy)
}

func TestConsumeTokensExhaustsAndStops(t *testing.T) {
	g := newGovernor(core.Budgets{MaxOutputTokens: 100, WarningThreshold: 0.8}, core.RiskPolicy{})
	ctx := context.Background()

	require.True(t, g.ConsumeTokens(ctx, 50))
	require.True(t, g.ConsumeTokens(ctx, 40))
	require.False(t, g.ConsumeTokens(ctx, 20))
	require.True(t, g.Stopped())
}

func TestShouldCheckpointNearThreshold(t *testing.T) {
	g := newGovernor(core.Budgets{MaxOutputTokens: 100, WarningThreshold: 0.8}, core.RiskPolicy{})
	ctx := context.Background()

	require.False(t, g.ShouldCheckpoint())
	g.ConsumeTokens(ctx, 85)
	require.True(t, g.ShouldCheckpoint())
}

func TestCanProceedReportsStoppedReason(t *testing.T) {
	g := newGovernor(core.Budgets{}, core.RiskPolicy{})
	ctx := context.Background()
	ok, _ := g.CanProceed()
	require.True(t, ok)

	g.RequestStop(ctx, "manual stop")
	ok, reason := g.CanProceed()
	require.False(t, ok)
	require.Contains(t, reason, "manual stop")
}

func TestCheckActionPermissionBlockedTool(t *testing.T) {
	g := newGovernor(core.Budgets{}, core.RiskPolicy{BlockedTools: []string{"shell.*"}})
	decision, err := g.CheckActionPermission(context.Background(), "shell.exec", 0.1, "run a command")
	require.NoError(t, err)
	require.Equal(t, DecisionDeny, decision)
}

func TestCheckActionPermissionAutoApproveAutonomous(t *testing.T) {
	g := newGovernor(core.Budgets{}, core.RiskPolicy{AutoApproveBelowRisk: 0.5})
	g.SetMode(context.Background(), core.ModeAutonomous)
	decision, err := g.CheckActionPermission(context.Background(), "file.write", 0.2, "write a file")
	require.NoError(t, err)
	require.Equal(t, DecisionAllow, decision)
}

func TestCheckActionPermissionRequiresApprovalAndResolves(t *testing.T) {
	g := newGovernor(core.Budgets{}, core.RiskPolicy{RequireApproval: []string{"*"}})
	ctx := context.Background()

	resultCh := make(chan Decision, 1)
	go func() {
		d, err := g.CheckActionPermission(ctx, "file.delete", 0.1, "delete a file")
		require.NoError(t, err)
		resultCh <- d
	}()

	require.Eventually(t, func() bool {
		return len(g.PendingApprovals()) == 1
	}, time.Second, time.Millisecond)

	id := g.PendingApprovals()[0]
	require.True(t, g.Resolve(id, true))

	select {
	case d := <-resultCh:
		require.Equal(t, DecisionAllow, d)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for approval resolution")
	}
}

func TestCheckActionPermissionManualModeRequiresApproval(t *testing.T) {
	g := newGovernor(core.Budgets{}, core.RiskPolicy{})
	g.SetMode(context.Background(), core.ModeManual)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	decision, err := g.CheckActionPermission(ctx, "file.write", 0.1, "write a file")
	require.Error(t, err)
	require.Equal(t, DecisionDeny, decision)
}
