package eventstore

import (
	"fmt"

	"github.com/goadesign/agent-kernel/internal/core"
)

// SummarizeEvent renders a single human-readable line for an event, purely
// as a read-side projection: it has no persistence and does not alter the
// event it describes.
func SummarizeEvent(e core.Event) string {
	switch e.Type {
	case core.EventRunStarted:
		return fmt.Sprintf("run started (mode=%v)", e.Payload["mode"])
	case core.EventRunStopped:
		return fmt.Sprintf("run stopped: %v", e.Payload["reason"])
	case core.EventRunCompleted:
		return "run completed"
	case core.EventPlanCreated:
		return fmt.Sprintf("plan created: %v task(s)", e.Payload["task_count"])
	case core.EventActionExecuted:
		return fmt.Sprintf("action executed for task %v", e.Payload["task_id"])
	case core.EventToolCalled:
		return fmt.Sprintf("tool called: %v", e.Payload["tool"])
	case core.EventToolResult:
		return fmt.Sprintf("tool result for %v", e.Payload["tool"])
	case core.EventVerificationRun:
		return fmt.Sprintf("verification run for task %v", e.Payload["task_id"])
	case core.EventVerificationPassed:
		return fmt.Sprintf("verification passed for task %v", e.Payload["task_id"])
	case core.EventVerificationFailed:
		return fmt.Sprintf("verification failed for task %v: %v", e.Payload["task_id"], e.Payload["failed_criteria"])
	case core.EventAuditNote:
		return fmt.Sprintf("audit note [%v]: %v", e.Payload["severity"], e.Payload["message"])
	case core.EventCheckpointCreated:
		return fmt.Sprintf("checkpoint created at sequence %v", e.Payload["sequence_number"])
	case core.EventQueueMutation:
		return fmt.Sprintf("queue mutation: %v on task %v", e.Payload["operation"], e.Payload["task_id"])
	case core.EventSnapshotCreated:
		return fmt.Sprintf("snapshot %v created (trigger=%v)", e.Payload["snapshot_id"], e.Payload["trigger"])
	case core.EventBudgetTick:
		return fmt.Sprintf("budget tick: max_fraction=%v", e.Payload["max_fraction"])
	case core.EventBudgetExhausted:
		return fmt.Sprintf("budget exhausted: %v", e.Payload["kind"])
	case core.EventErrorRaised:
		return fmt.Sprintf("error raised [%v]: %v", e.Payload["kind"], e.Payload["message"])
	case core.EventContextUpdated:
		return fmt.Sprintf("context updated: %v on tier %v", e.Payload["operation"], e.Payload["tier"])
	case core.EventContradictionFound:
		return fmt.Sprintf("contradiction detected: %v", e.Payload["description"])
	case core.EventStopRequested:
		return fmt.Sprintf("stop requested: %v", e.Payload["reason"])
	default:
		return fmt.Sprintf("%s", e.Type)
	}
}

// Timeline projects a list of events into their human summaries, in the
// order given.
func Timeline(events []core.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = SummarizeEvent(e)
	}
	return out
}
