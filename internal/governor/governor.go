// Package governor implements the kernel's autonomy envelope: budget
// consumption across five dimensions, STOP semantics, and risk-gated action
// approval with external resolution for actions that require it. Approval
// blocking is modeled as a plain channel wait, mirroring the teacher's
// interrupt.Controller signal-wait shape without the Temporal workflow
// engine behind it.
package governor

import (
	"context"
	"sync"
	"time"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
	"github.com/goadesign/agent-kernel/internal/telemetry"
)

// Governor owns a run's budgets, mode, risk policy, stopped flag, and
// pending action approvals.
type Governor struct {
	mu         sync.Mutex
	budgets    core.Budgets
	mode       core.Mode
	policy     core.RiskPolicy
	stopped    bool
	stopReason string
	startedAt  time.Time

	pending map[string]chan bool

	store  *eventstore.Store
	logger telemetry.Logger
}

// New constructs a Governor with the given budgets and risk policy. Mode
// defaults to supervised.
func New(store *eventstore.Store, logger telemetry.Logger, budgets core.Budgets, policy core.RiskPolicy) *Governor {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Governor{
		budgets:   budgets,
		mode:      core.ModeSupervised,
		policy:    policy,
		startedAt: time.Now().UTC(),
		pending:   make(map[string]chan bool),
		store:     store,
		logger:    logger,
	}
}

// Budgets returns a copy of the current budget state.
func (g *Governor) Budgets() core.Budgets {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.budgets
}

// Mode returns the current autonomy mode.
func (g *Governor) Mode() core.Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

// SetMode transitions the autonomy mode, emitting CONTEXT_UPDATED{mode_change}.
func (g *Governor) SetMode(ctx context.Context, mode core.Mode) {
	g.mu.Lock()
	old := g.mode
	g.mode = mode
	g.mu.Unlock()

	g.store.Append(ctx, core.EventContextUpdated, map[string]any{
		"operation": "mode_change",
		"from":      string(old),
		"to":        string(mode),
	})
}

// Stopped reports whether the run has been stopped.
func (g *Governor) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// RequestStop marks the run stopped, recording reason, and emits
// STOP_REQUESTED with a snapshot of current budgets.
func (g *Governor) RequestStop(ctx context.Context, reason string) {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	g.stopReason = reason
	budgets := g.budgets
	g.mu.Unlock()

	g.store.Append(ctx, core.EventStopRequested, map[string]any{
		"reason":  reason,
		"budgets": budgetsPayload(budgets),
	})
}

// CanProceed reports false, with a reason, if the run is stopped, wall time
// is exhausted, or any budget is at or above 100%.
func (g *Governor) CanProceed() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false, "stopped: " + g.stopReason
	}
	if g.budgets.MaxWallTimeMS > 0 && time.Since(g.startedAt).Milliseconds() >= g.budgets.MaxWallTimeMS {
		return false, "wall time exhausted"
	}
	if g.budgets.AnyExhausted() {
		return false, "budget exhausted"
	}
	return true, ""
}

// ShouldCheckpoint reports true if any budget is at or above the warning
// threshold, or the run is stopped.
func (g *Governor) ShouldCheckpoint() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return true
	}
	threshold := g.budgets.WarningThreshold
	if threshold <= 0 {
		threshold = core.DefaultWarningThreshold
	}
	return g.budgets.AnyAtOrAbove(threshold)
}

func budgetsPayload(b core.Budgets) map[string]any {
	return map[string]any{
		"wall_time_ms":   map[string]any{"used": b.UsedWallTimeMS, "max": b.MaxWallTimeMS},
		"output_tokens":  map[string]any{"used": b.UsedOutputTokens, "max": b.MaxOutputTokens},
		"tool_calls":     map[string]any{"used": b.UsedToolCalls, "max": b.MaxToolCalls},
		"iterations":     map[string]any{"used": b.UsedIterations, "max": b.MaxIterations},
		"risk_actions":   map[string]any{"used": b.UsedRiskActions, "max": b.MaxRiskActions},
	}
}
