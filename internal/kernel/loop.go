package kernel

import (
	"context"
	"strings"
	"time"

	"github.com/goadesign/agent-kernel/internal/auditor"
	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/governor"
	"github.com/goadesign/agent-kernel/internal/kernelerrors"
	"github.com/goadesign/agent-kernel/internal/verifier"
)

const idleSleep = 100 * time.Millisecond

// runLoop drives tasks to completion, cooperatively yielding between
// iterations, until the governor refuses to proceed or the queue has
// nothing left to do.
func (k *Kernel) runLoop(ctx context.Context) error {
	for k.isRunning() {
		if ok, reason := k.gov.CanProceed(); !ok {
			k.stop(ctx, reason)
			break
		}

		task := k.queue.NextTask()
		if task == nil {
			stats := k.queue.Stats()
			if stats[core.TaskActive] == 0 && stats[core.TaskBlocked] == 0 {
				k.store.Append(ctx, core.EventRunCompleted, nil)
				k.setRunning(false)
				break
			}
			select {
			case <-ctx.Done():
				k.stop(ctx, "context canceled")
				return ctx.Err()
			case <-time.After(idleSleep):
			}
			continue
		}

		k.executeTask(ctx, task)
		k.actionsInCheckpoint++
		if k.actionsInCheckpoint >= k.checkpointInterval || k.gov.ShouldCheckpoint() {
			k.createCheckpoint(ctx, core.TriggerPeriodic)
			k.actionsInCheckpoint = 0
		}

		if !k.gov.ConsumeIteration(ctx) {
			k.stop(ctx, "iteration budget exhausted")
			break
		}
		if !k.gov.CheckWallTime(ctx) {
			k.stop(ctx, "wall time budget exhausted")
			break
		}
	}
	return nil
}

// Step executes exactly one task and returns whether a task was available,
// intended for manual-mode, single-step driving.
func (k *Kernel) Step(ctx context.Context) bool {
	task := k.queue.NextTask()
	if task == nil {
		return false
	}
	k.executeTask(ctx, task)
	return true
}

// executeTask runs task through select-context, execute, verify, and audit,
// recovering from any panic raised along the way as ERROR_RAISED plus a
// failed-task transition.
func (k *Kernel) executeTask(ctx context.Context, task *core.Task) {
	defer func() {
		if r := recover(); r != nil {
			k.raiseError(ctx, kernelerrors.KindExecutionError, "task %s execution panicked: %v", task.ID, r)
			_ = k.queue.MarkTaskFailed(ctx, task.ID, kernelerrors.Newf(kernelerrors.KindExecutionError, "panic: %v", r))
		}
	}()

	if err := k.queue.SetTaskStatus(ctx, task.ID, core.TaskActive, "selected for execution"); err != nil {
		return
	}

	k.store.Append(ctx, core.EventPlanCreated, map[string]any{
		"task_id": task.ID,
		"steps":   []string{"select_context", "execute", "verify", "audit"},
	})

	items := k.context.SelectContext(ctx, task.Prompt, selectionBudget)
	contextStr := joinContext(items)

	if conflicts := k.context.DetectContradictions(ctx, task.Prompt); len(conflicts) > 0 {
		k.audit.Record(ctx, auditor.EntryContradiction,
			"task "+task.ID+" prompt contradicts a pinned constraint",
			strings.Join(conflicts, "; "), auditor.SeverityWarning)
	}

	decision, err := k.gov.CheckActionPermission(ctx, "task_execution", 0, task.Title)
	if err != nil || decision != governor.DecisionAllow {
		reason := "action denied by autonomy governor"
		if err != nil {
			reason = "approval wait canceled: " + err.Error()
		}
		_ = k.queue.MarkTaskFailed(ctx, task.ID, kernelerrors.Newf(kernelerrors.KindExecutionError, "%s", reason))
		return
	}

	result, err := k.exec.Execute(ctx, task, contextStr)
	if err != nil {
		k.raiseError(ctx, kernelerrors.KindExecutionError, "task %s: %v", task.ID, err)
		_ = k.queue.MarkTaskFailed(ctx, task.ID, err)
		return
	}

	k.store.Append(ctx, core.EventActionExecuted, map[string]any{
		"task_id":       task.ID,
		"tokens_used":   result.TokensUsed,
		"output_length": len(result.Output),
	})
	k.gov.ConsumeTokens(ctx, result.TokensUsed)

	for _, a := range result.Artifacts {
		a.TaskID = task.ID
		k.storeArtifact(a)
	}

	verifyResult := k.verify.VerifyAll(ctx, task.ID, task.AcceptanceCriteria, result.Output, k.artifactsFor(task.ID))

	if !verifyResult.AllPassed {
		fixIn := verifier.GenerateFixTask(task.ID, task.Prompt, task.Priority, task.Tags, verifyResult.FailedCriteria, verifyResult.Results)
		if _, err := k.queue.AddTask(ctx, fixIn); err != nil {
			k.raiseError(ctx, kernelerrors.KindExecutionError, "failed to enqueue fix task for %s: %v", task.ID, err)
		}
		k.audit.CheckFollowUpCreated(ctx, task, k.queue.All())
		_ = k.queue.MarkTaskFailed(ctx, task.ID, kernelerrors.Newf(kernelerrors.KindExecutionError, "verification failed for task %s", task.ID))
	} else {
		k.audit.CheckAcceptanceMeaningful(ctx, task.ID, verifyResult.Results, result.Output)
		_ = k.queue.MarkTaskDone(ctx, task.ID, core.TaskResult{
			Success:             true,
			Output:              result.Output,
			Artifacts:           artifactIDs(result.Artifacts),
			VerificationResults: verifyResult.Results,
			TokensUsed:          result.TokensUsed,
		})
	}

	summary := truncate(result.Output, 500)
	if summary != "" {
		_, _ = k.context.AddItem(ctx, core.TierWorking, summary, core.ContextSummary, "task:"+task.ID, task.Priority)
	}
}

func joinContext(items []*core.ContextItem) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.Content
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func artifactIDs(artifacts []*core.Artifact) []string {
	out := make([]string, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.ID
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// createCheckpoint materialises a Snapshot, then asks the context manager
// to summarise itself, then fires the observer callback if one is set.
func (k *Kernel) createCheckpoint(ctx context.Context, trigger core.SnapshotTrigger) core.Snapshot {
	snap := k.store.CreateSnapshot(ctx, trigger,
		k.queue.All(),
		k.queue.GetDAGState(),
		k.context.State(),
		k.gov.Budgets(),
		k.allArtifacts(),
	)
	k.store.Append(ctx, core.EventCheckpointCreated, map[string]any{
		"snapshot_id": snap.ID,
		"trigger":     string(trigger),
	})
	k.context.SummarizeContext(ctx, k.actionsInCheckpoint)

	k.mu.Lock()
	obs := k.observer
	k.mu.Unlock()
	if obs != nil {
		obs(snap)
	}
	return snap
}

// stop requests the governor stop, captures a final snapshot, and emits
// RUN_STOPPED last.
func (k *Kernel) stop(ctx context.Context, reason string) core.Snapshot {
	k.gov.RequestStop(ctx, reason)
	snap := k.createCheckpoint(ctx, core.TriggerStop)
	k.setRunning(false)
	k.store.Append(ctx, core.EventRunStopped, map[string]any{"reason": reason})
	return snap
}
