package harness

import (
	"context"
	"strconv"
	"time"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
	"github.com/goadesign/agent-kernel/internal/kernel"
	"github.com/goadesign/agent-kernel/internal/taskqueue"
)

func criteriaFromSeeds(seeds []CriterionSeed) []core.AcceptanceCriterion {
	out := make([]core.AcceptanceCriterion, len(seeds))
	for i, s := range seeds {
		id := s.ID
		if id == "" {
			id = "criterion-" + strconv.Itoa(i)
		}
		out[i] = core.AcceptanceCriterion{
			ID:          id,
			Kind:        core.CriterionKind(s.Kind),
			Description: s.Description,
			Config:      s.Config,
		}
	}
	return out
}

// applyDueInjections fires every not-yet-fired injection whose trigger
// condition currently holds, checked once per loop iteration as the spec
// requires.
func applyDueInjections(ctx context.Context, k *kernel.Kernel, injections []Injection, idMap map[string]string, actionCount int, elapsed time.Duration) {
	for i := range injections {
		inj := &injections[i]
		if inj.fired {
			continue
		}
		if !triggerDue(k, inj.Trigger, idMap, actionCount, elapsed) {
			continue
		}
		inj.fired = true
		applyInjection(ctx, k, *inj, idMap)
	}
}

func triggerDue(k *kernel.Kernel, trig InjectionTrigger, idMap map[string]string, actionCount int, elapsed time.Duration) bool {
	switch trig.Type {
	case TriggerActionCount:
		n, err := strconv.Atoi(trig.Value)
		return err == nil && actionCount >= n
	case TriggerTimeElapsed:
		d, err := time.ParseDuration(trig.Value)
		return err == nil && elapsed >= d
	case TriggerTaskComplete:
		id := resolveID(trig.Value, idMap)
		t, ok := k.Queue().Get(id)
		return ok && t.Status == core.TaskDone
	case TriggerEventType:
		for _, e := range k.Store().Query(eventstore.QueryOptions{}) {
			if string(e.Type) == trig.Value {
				return true
			}
		}
		return false
	}
	return false
}

func resolveID(ref string, idMap map[string]string) string {
	if real, ok := idMap[ref]; ok {
		return real
	}
	return ref
}

func applyInjection(ctx context.Context, k *kernel.Kernel, inj Injection, idMap map[string]string) {
	taskID := resolveID(inj.TaskID, idMap)
	switch inj.Kind {
	case InjectAddTask:
		title, _ := inj.Payload["title"].(string)
		prompt, _ := inj.Payload["prompt"].(string)
		priority := payloadInt(inj.Payload, "priority", core.DefaultTaskPriority)
		_, _ = k.Queue().AddTask(ctx, taskqueue.AddTaskInput{Title: title, Prompt: prompt, Priority: priority})
	case InjectModifyTask:
		patch := taskqueue.TaskPatch{}
		if _, ok := inj.Payload["priority"]; ok {
			v := payloadInt(inj.Payload, "priority", 0)
			patch.Priority = &v
		}
		if s, ok := inj.Payload["status"].(string); ok {
			status := core.TaskStatus(s)
			patch.Status = &status
		}
		_ = k.Queue().UpdateTask(ctx, taskID, patch, "harness injection")
	case InjectCancelTask:
		_ = k.Queue().SetTaskStatus(ctx, taskID, core.TaskCanceled, "harness injection: cancel")
	case InjectAddConstraint:
		content, _ := inj.Payload["content"].(string)
		priority := payloadInt(inj.Payload, "priority", core.DefaultTaskPriority)
		_, _ = k.Context().AddItem(ctx, core.TierPinned, content, core.ContextConstraint, "harness:injection", priority)
	case InjectTriggerStop:
		reason, _ := inj.Payload["reason"].(string)
		if reason == "" {
			reason = "harness injection: trigger_stop"
		}
		k.Governor().RequestStop(ctx, reason)
	}
}

func payloadInt(payload map[string]any, key string, def int) int {
	raw, ok := payload[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
