// Package taskqueue implements the kernel's dependency-graph task scheduler:
// a single-threaded, in-memory DAG of tasks with cycle-safe dependency
// management, priority-based selection, and blocked-task re-evaluation on
// every terminal transition. Every mutation is recorded as a QUEUE_MUTATION
// event on the supplied event store, mirroring the append-then-notify shape
// the event store itself follows.
package taskqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
	"github.com/goadesign/agent-kernel/internal/kernelerrors"
	"github.com/goadesign/agent-kernel/internal/telemetry"
)

type (
	// AddTaskInput is the set of fields a caller may specify when adding a
	// task. Priority defaults to core.DefaultTaskPriority when zero.
	AddTaskInput struct {
		Title              string
		Prompt             string
		AcceptanceCriteria []core.AcceptanceCriterion
		Dependencies       []string
		Priority           int
		ContextRefs        []string
		Tags               []string
		ParentID           string
		EstimatedTokens    int
	}

	// TaskPatch describes a partial update to a task. A nil field leaves the
	// corresponding task field unchanged; SetDependencies distinguishes "no
	// change" from "set to an empty dependency list".
	TaskPatch struct {
		Status          *core.TaskStatus
		Priority        *int
		Prompt          *string
		Dependencies    []string
		SetDependencies bool
	}

	// Queue is the in-memory task DAG. It is not safe for concurrent use
	// from multiple goroutines beyond the mutex it holds internally; the
	// kernel's single-threaded run loop is its only caller.
	Queue struct {
		mu     sync.Mutex
		tasks  map[string]*core.Task
		order  []string
		store  *eventstore.Store
		logger telemetry.Logger
	}
)

// New constructs an empty task queue bound to the given event store.
func New(store *eventstore.Store, logger telemetry.Logger) *Queue {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Queue{
		tasks:  make(map[string]*core.Task),
		store:  store,
		logger: logger,
	}
}

// Get returns the task with the given id, if present.
func (q *Queue) Get(id string) (*core.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Stats returns the count of tasks in each status.
func (q *Queue) Stats() map[core.TaskStatus]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := make(map[core.TaskStatus]int)
	for _, id := range q.order {
		stats[q.tasks[id].Status]++
	}
	return stats
}

// Restore replaces the queue's contents with tasks, as captured in a
// snapshot. It does not emit any event: it is used only to reconstruct
// kernel state during replay, not as a normal mutation.
func (q *Queue) Restore(tasks []*core.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = make(map[string]*core.Task, len(tasks))
	q.order = make([]string, 0, len(tasks))
	for _, t := range tasks {
		c := t.Clone()
		q.tasks[c.ID] = c
		q.order = append(q.order, c.ID)
	}
}

// All returns every task in the queue, insertion-ordered.
func (q *Queue) All() []*core.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*core.Task, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.tasks[id].Clone())
	}
	return out
}

// AddTask creates a new task. Its initial status is blocked if any declared
// dependency is not done, else queued. If ParentID is set, the new task's id
// is appended to the parent's subtask_ids.
func (q *Queue) AddTask(ctx context.Context, in AddTaskInput) (*core.Task, error) {
	q.mu.Lock()

	priority := in.Priority
	if priority == 0 {
		priority = core.DefaultTaskPriority
	}

	now := time.Now().UTC()
	status := core.TaskQueued
	for _, dep := range in.Dependencies {
		if q.dependencyUnmetLocked(dep) {
			status = core.TaskBlocked
			break
		}
	}

	t := &core.Task{
		ID:                 core.NewID(),
		Title:              in.Title,
		Prompt:             in.Prompt,
		AcceptanceCriteria: in.AcceptanceCriteria,
		Dependencies:       append([]string(nil), in.Dependencies...),
		Priority:           priority,
		Status:             status,
		ContextRefs:        append([]string(nil), in.ContextRefs...),
		CreatedAt:          now,
		UpdatedAt:          now,
		ParentID:           in.ParentID,
		MaxRetries:         3,
		EstimatedTokens:    in.EstimatedTokens,
	}
	t.History = append(t.History, core.FieldTransition{
		Timestamp: now, Field: "status", OldValue: nil, NewValue: status, Reason: "created",
	})
	for _, tag := range in.Tags {
		t.AddTag(tag)
	}

	q.tasks[t.ID] = t
	q.order = append(q.order, t.ID)

	if in.ParentID != "" {
		if parent, ok := q.tasks[in.ParentID]; ok {
			parent.SubtaskIDs = append(parent.SubtaskIDs, t.ID)
		}
	}
	q.mu.Unlock()

	q.store.Append(ctx, core.EventQueueMutation, map[string]any{
		"operation": "add",
		"task_id":   t.ID,
		"status":    string(status),
	})
	return t.Clone(), nil
}

// UpdateTask applies patch to the task. For every field that actually
// changes, a history row is appended, and a single QUEUE_MUTATION{update}
// event is emitted.
func (q *Queue) UpdateTask(ctx context.Context, id string, patch TaskPatch, reason string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return kernelerrors.Newf(kernelerrors.KindExecutionError, "task %s not found", id)
	}
	now := time.Now().UTC()
	changed := false

	if patch.Status != nil && *patch.Status != t.Status {
		q.recordTransitionLocked(t, now, "status", t.Status, *patch.Status, reason)
		t.Status = *patch.Status
		changed = true
	}
	if patch.Priority != nil && *patch.Priority != t.Priority {
		q.recordTransitionLocked(t, now, "priority", t.Priority, *patch.Priority, reason)
		t.Priority = *patch.Priority
		changed = true
	}
	if patch.Prompt != nil && *patch.Prompt != t.Prompt {
		q.recordTransitionLocked(t, now, "prompt", t.Prompt, *patch.Prompt, reason)
		t.Prompt = *patch.Prompt
		changed = true
	}
	if patch.SetDependencies {
		same := len(patch.Dependencies) == len(t.Dependencies)
		for i := 0; same && i < len(t.Dependencies); i++ {
			same = t.Dependencies[i] == patch.Dependencies[i]
		}
		if !same {
			q.recordTransitionLocked(t, now, "dependencies", t.Dependencies, patch.Dependencies, reason)
			t.Dependencies = append([]string(nil), patch.Dependencies...)
			changed = true
		}
	}
	if changed {
		t.UpdatedAt = now
	}
	q.mu.Unlock()

	if changed {
		q.store.Append(ctx, core.EventQueueMutation, map[string]any{
			"operation": "update",
			"task_id":   id,
			"reason":    reason,
		})
	}
	return nil
}

// SetTaskStatus sets status directly, recording history, stamping
// started_at/completed_at as appropriate, and triggering blocked-task
// re-evaluation on any terminal transition.
func (q *Queue) SetTaskStatus(ctx context.Context, id string, status core.TaskStatus, reason string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return kernelerrors.Newf(kernelerrors.KindExecutionError, "task %s not found", id)
	}
	now := time.Now().UTC()
	old := t.Status
	q.recordTransitionLocked(t, now, "status", old, status, reason)
	t.Status = status
	t.UpdatedAt = now
	if status == core.TaskActive && t.StartedAt == nil {
		t.StartedAt = &now
	}
	terminal := status.IsTerminal()
	if terminal {
		t.CompletedAt = &now
	}
	q.mu.Unlock()

	q.store.Append(ctx, core.EventQueueMutation, map[string]any{
		"operation":  "status",
		"task_id":    id,
		"from":       string(old),
		"to":         string(status),
		"reason":     reason,
	})

	if terminal {
		q.reevaluateBlocked(ctx)
	}
	return nil
}

// MarkTaskDone transitions the task to done and records its result.
func (q *Queue) MarkTaskDone(ctx context.Context, id string, result core.TaskResult) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return kernelerrors.Newf(kernelerrors.KindExecutionError, "task %s not found", id)
	}
	t.Result = &result
	q.mu.Unlock()
	return q.SetTaskStatus(ctx, id, core.TaskDone, "task completed successfully")
}

// MarkTaskFailed increments retry_count; if it remains below max_retries the
// task is re-queued, otherwise it transitions to failed.
func (q *Queue) MarkTaskFailed(ctx context.Context, id string, failure error) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return kernelerrors.Newf(kernelerrors.KindExecutionError, "task %s not found", id)
	}
	t.RetryCount++
	retryOrdinal := t.RetryCount
	willRetry := t.RetryCount < t.MaxRetries
	if t.Result == nil {
		t.Result = &core.TaskResult{}
	}
	t.Result.Success = false
	if failure != nil {
		t.Result.Output = failure.Error()
	}
	q.mu.Unlock()

	if willRetry {
		return q.SetTaskStatus(ctx, id, core.TaskQueued, fmt.Sprintf("retry %d/%d after failure", retryOrdinal, t.MaxRetries))
	}
	return q.SetTaskStatus(ctx, id, core.TaskFailed, fmt.Sprintf("exhausted retries (%d): %v", retryOrdinal, failure))
}

// AddDependency adds depID as a dependency of id. The call is rejected,
// emitting ERROR_RAISED{circular_dependency}, if it would introduce a cycle.
func (q *Queue) AddDependency(ctx context.Context, id, depID, reason string) (bool, error) {
	q.mu.Lock()
	if _, ok := q.tasks[id]; !ok {
		q.mu.Unlock()
		return false, kernelerrors.Newf(kernelerrors.KindExecutionError, "task %s not found", id)
	}
	if _, ok := q.tasks[depID]; !ok {
		q.mu.Unlock()
		return false, kernelerrors.Newf(kernelerrors.KindExecutionError, "task %s not found", depID)
	}
	if q.reachableLocked(depID, id) {
		q.mu.Unlock()
		kerr := kernelerrors.Newf(kernelerrors.KindCircularDependency, "adding dependency %s -> %s would create a cycle", id, depID)
		q.store.Append(ctx, core.EventErrorRaised, kerr.Payload())
		return false, nil
	}
	t := q.tasks[id]
	now := time.Now().UTC()
	newDeps := append(append([]string(nil), t.Dependencies...), depID)
	q.recordTransitionLocked(t, now, "dependencies", t.Dependencies, newDeps, reason)
	t.Dependencies = newDeps
	t.UpdatedAt = now
	blocks := q.dependencyUnmetLocked(depID)
	if blocks && t.Status != core.TaskBlocked {
		q.recordTransitionLocked(t, now, "status", t.Status, core.TaskBlocked, "new unmet dependency added")
		t.Status = core.TaskBlocked
	}
	q.mu.Unlock()

	q.store.Append(ctx, core.EventQueueMutation, map[string]any{
		"operation": "add_dependency",
		"task_id":   id,
		"dep_id":    depID,
	})
	return true, nil
}

// reachableLocked reports whether to is reachable from from by walking the
// dependency graph depth-first (from's dependencies, their dependencies,
// and so on). Used to detect the cycle that adding from as a dependency of
// to (i.e. to depends on from) would create.
func (q *Queue) reachableLocked(from, to string) bool {
	visited := make(map[string]bool)
	var visit func(string) bool
	visit = func(cur string) bool {
		if cur == to {
			return true
		}
		if visited[cur] {
			return false
		}
		visited[cur] = true
		t, ok := q.tasks[cur]
		if !ok {
			return false
		}
		for _, dep := range t.Dependencies {
			if visit(dep) {
				return true
			}
		}
		return false
	}
	return visit(from)
}

// SplitTask spawns len(specs) subtasks, each depending on the previous one
// in a serial chain, and marks the parent blocked until they all terminate.
func (q *Queue) SplitTask(ctx context.Context, id string, specs []AddTaskInput, reason string) ([]*core.Task, error) {
	q.mu.Lock()
	parent, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return nil, kernelerrors.Newf(kernelerrors.KindExecutionError, "task %s not found", id)
	}
	q.mu.Unlock()

	spawned := make([]*core.Task, 0, len(specs))
	var prevID string
	for _, spec := range specs {
		in := spec
		in.ParentID = id
		if prevID != "" {
			in.Dependencies = append(append([]string(nil), in.Dependencies...), prevID)
		}
		t, err := q.AddTask(ctx, in)
		if err != nil {
			return nil, err
		}
		spawned = append(spawned, t)
		prevID = t.ID
	}

	if err := q.SetTaskStatus(ctx, parent.ID, core.TaskBlocked, reason); err != nil {
		return nil, err
	}
	q.store.Append(ctx, core.EventQueueMutation, map[string]any{
		"operation": "split",
		"task_id":   id,
		"subtasks":  idsOf(spawned),
	})
	return spawned, nil
}

// MergeTasks creates one new task from ids: prompts concatenated, union of
// dependencies (excluding self-references among the merged set), union of
// context refs and tags, and priority the max of the originals. The
// originals are canceled.
func (q *Queue) MergeTasks(ctx context.Context, ids []string, title, reason string) (*core.Task, error) {
	q.mu.Lock()
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	var prompts []string
	depSet := make(map[string]bool)
	ctxSet := make(map[string]bool)
	var ctxRefs []string
	var tags []string
	tagSet := make(map[string]bool)
	maxPriority := 0
	for _, id := range ids {
		t, ok := q.tasks[id]
		if !ok {
			q.mu.Unlock()
			return nil, kernelerrors.Newf(kernelerrors.KindExecutionError, "task %s not found", id)
		}
		prompts = append(prompts, t.Prompt)
		if t.Priority > maxPriority {
			maxPriority = t.Priority
		}
		for _, d := range t.Dependencies {
			if !idSet[d] && !depSet[d] {
				depSet[d] = true
			}
		}
		for _, c := range t.ContextRefs {
			if !ctxSet[c] {
				ctxSet[c] = true
				ctxRefs = append(ctxRefs, c)
			}
		}
		for tag := range t.Tags {
			if !tagSet[tag] {
				tagSet[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	q.mu.Unlock()

	deps := make([]string, 0, len(depSet))
	for d := range depSet {
		deps = append(deps, d)
	}
	sort.Strings(deps)

	merged, err := q.AddTask(ctx, AddTaskInput{
		Title:        title,
		Prompt:       joinPrompts(prompts),
		Dependencies: deps,
		Priority:     maxPriority,
		ContextRefs:  ctxRefs,
		Tags:         tags,
	})
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := q.SetTaskStatus(ctx, id, core.TaskCanceled, reason); err != nil {
			return nil, err
		}
	}
	q.store.Append(ctx, core.EventQueueMutation, map[string]any{
		"operation":  "merge",
		"task_id":    merged.ID,
		"source_ids": ids,
	})
	return merged, nil
}

// Reprioritize sets a single task's priority.
func (q *Queue) Reprioritize(ctx context.Context, id string, newPriority int, reason string) error {
	return q.UpdateTask(ctx, id, TaskPatch{Priority: &newPriority}, reason)
}

// BatchReprioritize applies Reprioritize to every id=>priority pair.
func (q *Queue) BatchReprioritize(ctx context.Context, updates map[string]int, reason string) error {
	for id, p := range updates {
		priority := p
		if err := q.Reprioritize(ctx, id, priority, reason); err != nil {
			return err
		}
	}
	return nil
}

// NextTask returns the highest-priority queued task, breaking ties by
// created_at ascending. It returns nil if no task is queued.
func (q *Queue) NextTask() *core.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var best *core.Task
	for _, id := range q.order {
		t := q.tasks[id]
		if t.Status != core.TaskQueued {
			continue
		}
		if best == nil || t.Priority > best.Priority ||
			(t.Priority == best.Priority && t.CreatedAt.Before(best.CreatedAt)) {
			best = t
		}
	}
	if best == nil {
		return nil
	}
	return best.Clone()
}

func (q *Queue) dependencyUnmetLocked(depID string) bool {
	dep, ok := q.tasks[depID]
	if !ok {
		return true
	}
	return dep.Status != core.TaskDone
}

// reevaluateBlocked transitions every blocked task whose dependencies are
// all done, and whose subtasks have all terminated, to queued, with reason
// "Dependencies resolved".
func (q *Queue) reevaluateBlocked(ctx context.Context) {
	q.mu.Lock()
	var toUnblock []string
	for _, id := range q.order {
		t := q.tasks[id]
		if t.Status != core.TaskBlocked {
			continue
		}
		unmet := false
		for _, dep := range t.Dependencies {
			if q.dependencyUnmetLocked(dep) {
				unmet = true
				break
			}
		}
		for _, sub := range t.SubtaskIDs {
			if s, ok := q.tasks[sub]; ok && !s.Status.IsTerminal() {
				unmet = true
				break
			}
		}
		if !unmet {
			toUnblock = append(toUnblock, id)
		}
	}
	q.mu.Unlock()

	for _, id := range toUnblock {
		_ = q.SetTaskStatus(ctx, id, core.TaskQueued, "Dependencies resolved")
	}
}

func (q *Queue) recordTransitionLocked(t *core.Task, now time.Time, field string, oldValue, newValue any, reason string) {
	t.History = append(t.History, core.FieldTransition{
		Timestamp: now, Field: field, OldValue: oldValue, NewValue: newValue, Reason: reason,
	})
}

func idsOf(tasks []*core.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func joinPrompts(prompts []string) string {
	out := ""
	for i, p := range prompts {
		if i > 0 {
			out += "\n\n"
		}
		out += p
	}
	return out
}
