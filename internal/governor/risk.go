package governor

import (
	"context"
	"path"

	"github.com/goadesign/agent-kernel/internal/core"
)

// Decision is the outcome of an action permission check.
type Decision string

const (
	DecisionAllow           Decision = "allow"
	DecisionDeny            Decision = "deny"
	DecisionPendingApproval Decision = "pending_approval"
)

// CheckActionPermission evaluates the risk policy against an action of the
// given tool type, risk score, and description, blocking the caller on
// external approval resolution when one is required. ctx cancellation
// unblocks the wait with a deny decision.
func (g *Governor) CheckActionPermission(ctx context.Context, actionType string, risk float64, description string) (Decision, error) {
	g.mu.Lock()
	policy := g.policy
	mode := g.mode
	g.mu.Unlock()

	for _, blocked := range policy.BlockedTools {
		if matchPattern(blocked, actionType) {
			return DecisionDeny, nil
		}
	}
	if len(policy.AllowedTools) > 0 {
		allowed := false
		for _, a := range policy.AllowedTools {
			if matchPattern(a, actionType) {
				allowed = true
				break
			}
		}
		if !allowed {
			return DecisionDeny, nil
		}
	}
	if policy.MaxRiskPerAction > 0 && risk > policy.MaxRiskPerAction {
		return DecisionDeny, nil
	}
	if mode == core.ModeAutonomous && risk <= policy.AutoApproveBelowRisk {
		return DecisionAllow, nil
	}

	requiresApproval := mode == core.ModeManual
	for _, pattern := range policy.RequireApproval {
		if matchPattern(pattern, actionType) {
			requiresApproval = true
			break
		}
	}
	if requiresApproval {
		approved, err := g.waitApproval(ctx, actionType, description)
		if err != nil {
			return DecisionDeny, err
		}
		if approved {
			return DecisionAllow, nil
		}
		return DecisionDeny, nil
	}

	if mode == core.ModeSupervised {
		return DecisionAllow, nil
	}
	return DecisionAllow, nil
}

func matchPattern(pattern, actionType string) bool {
	if pattern == "*" {
		return true
	}
	ok, _ := path.Match(pattern, actionType)
	return ok
}

// waitApproval registers a pending approval and blocks until Resolve is
// called with its id, or ctx is canceled.
func (g *Governor) waitApproval(ctx context.Context, actionType, description string) (bool, error) {
	id := core.NewID()
	ch := make(chan bool, 1)

	g.mu.Lock()
	g.pending[id] = ch
	g.mu.Unlock()

	g.store.Append(ctx, core.EventAuditNote, map[string]any{
		"entry_id":    id,
		"type":        "risk",
		"severity":    "info",
		"description": "action requires approval: " + actionType,
		"evidence":    description,
	})

	select {
	case approved := <-ch:
		return approved, nil
	case <-ctx.Done():
		g.mu.Lock()
		delete(g.pending, id)
		g.mu.Unlock()
		return false, ctx.Err()
	}
}

// Resolve delivers an external approval decision for a pending action,
// identified by the id returned in its AUDIT_NOTE's entry_id. It returns
// false if no approval with that id is pending.
func (g *Governor) Resolve(id string, approved bool) bool {
	g.mu.Lock()
	ch, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()
	if !ok {
		return false
	}
	ch <- approved
	return true
}

// PendingApprovals returns the ids of every action awaiting external
// resolution.
func (g *Governor) PendingApprovals() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.pending))
	for id := range g.pending {
		ids = append(ids, id)
	}
	return ids
}
