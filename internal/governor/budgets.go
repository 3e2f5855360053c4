package governor

import (
	"context"
	"time"

	"github.com/goadesign/agent-kernel/internal/core"
)

// consume applies delta to the used/max pair identified by kind. If
// stopped, it refuses immediately. If the prospective total would exceed
// max (when max>0), it emits BUDGET_EXHAUSTED and calls requestStop,
// returning false; otherwise it commits the delta and emits BUDGET_TICK
// with the maximum fraction used across all dimensions.
func (g *Governor) consume(ctx context.Context, kind core.BudgetKind, delta int64) bool {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return false
	}

	used, max := g.usedMax(kind)
	prospective := used + delta
	if max > 0 && prospective > max {
		g.mu.Unlock()
		g.store.Append(ctx, core.EventBudgetExhausted, map[string]any{
			"kind": string(kind),
			"used": used,
			"max":  max,
		})
		g.RequestStop(ctx, "budget exhausted: "+string(kind))
		return false
	}
	g.setUsed(kind, prospective)
	fraction := g.budgets.MaxFraction()
	g.mu.Unlock()

	g.store.Append(ctx, core.EventBudgetTick, map[string]any{
		"kind":         string(kind),
		"max_fraction": fraction,
	})
	return true
}

func (g *Governor) usedMax(kind core.BudgetKind) (used, max int64) {
	switch kind {
	case core.BudgetWallTime:
		return g.budgets.UsedWallTimeMS, g.budgets.MaxWallTimeMS
	case core.BudgetTokens:
		return int64(g.budgets.UsedOutputTokens), int64(g.budgets.MaxOutputTokens)
	case core.BudgetToolCalls:
		return int64(g.budgets.UsedToolCalls), int64(g.budgets.MaxToolCalls)
	case core.BudgetIterations:
		return int64(g.budgets.UsedIterations), int64(g.budgets.MaxIterations)
	case core.BudgetRiskAction:
		return int64(g.budgets.UsedRiskActions), int64(g.budgets.MaxRiskActions)
	}
	return 0, 0
}

func (g *Governor) setUsed(kind core.BudgetKind, value int64) {
	switch kind {
	case core.BudgetWallTime:
		g.budgets.UsedWallTimeMS = value
	case core.BudgetTokens:
		g.budgets.UsedOutputTokens = int(value)
	case core.BudgetToolCalls:
		g.budgets.UsedToolCalls = int(value)
	case core.BudgetIterations:
		g.budgets.UsedIterations = int(value)
	case core.BudgetRiskAction:
		g.budgets.UsedRiskActions = int(value)
	}
}

// ConsumeTokens accounts for n additional output tokens.
func (g *Governor) ConsumeTokens(ctx context.Context, n int) bool {
	return g.consume(ctx, core.BudgetTokens, int64(n))
}

// ConsumeToolCall accounts for one additional tool call.
func (g *Governor) ConsumeToolCall(ctx context.Context) bool {
	return g.consume(ctx, core.BudgetToolCalls, 1)
}

// ConsumeIteration accounts for one additional kernel loop iteration.
func (g *Governor) ConsumeIteration(ctx context.Context) bool {
	return g.consume(ctx, core.BudgetIterations, 1)
}

// ConsumeRiskAction accounts for one additional risk-bearing action.
func (g *Governor) ConsumeRiskAction(ctx context.Context) bool {
	return g.consume(ctx, core.BudgetRiskAction, 1)
}

// CheckWallTime accounts elapsed wall-clock time since the governor started,
// called by the kernel loop once per iteration.
func (g *Governor) CheckWallTime(ctx context.Context) bool {
	g.mu.Lock()
	elapsed := time.Since(g.startedAt).Milliseconds()
	g.mu.Unlock()
	return g.consume(ctx, core.BudgetWallTime, elapsed-g.usedWallTime())
}

func (g *Governor) usedWallTime() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.budgets.UsedWallTimeMS
}
