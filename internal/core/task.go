package core

import "time"

// TaskStatus is the closed set of lifecycle states a Task can occupy.
type TaskStatus string

const (
	TaskQueued   TaskStatus = "queued"
	TaskActive   TaskStatus = "active"
	TaskBlocked  TaskStatus = "blocked"
	TaskDone     TaskStatus = "done"
	TaskFailed   TaskStatus = "failed"
	TaskCanceled TaskStatus = "canceled"
)

// IsTerminal reports whether the status is one of done/failed/canceled.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskDone || s == TaskFailed || s == TaskCanceled
}

// CriterionKind is the closed set of acceptance criterion evaluation kinds.
type CriterionKind string

const (
	CriterionSchema       CriterionKind = "schema"
	CriterionContains     CriterionKind = "contains"
	CriterionNotContains  CriterionKind = "not_contains"
	CriterionWordLimit    CriterionKind = "word_limit"
	CriterionLint         CriterionKind = "lint"
	CriterionTest         CriterionKind = "test"
	CriterionCustom       CriterionKind = "custom"
)

// AcceptanceCriterion is a checkable predicate over a task's output. Pass
// and Evidence are populated after evaluation by the Verifier.
type AcceptanceCriterion struct {
	ID          string
	Kind        CriterionKind
	Description string
	Config      map[string]any

	// Pass and Evidence are set by Verifier.verifyCriterion.
	Pass     bool
	Evidence string
}

// FieldTransition records one change to a Task field: what changed, from
// what to what, when, and why.
type FieldTransition struct {
	Timestamp time.Time
	Field     string
	OldValue  any
	NewValue  any
	Reason    string
}

// TaskResult captures the outcome of a completed task execution.
type TaskResult struct {
	Success             bool
	Output              string
	Artifacts           []string // artifact ids produced
	VerificationResults []VerificationResult
	TokensUsed          int
	Duration            time.Duration
}

// VerificationResult is the outcome of evaluating one AcceptanceCriterion.
type VerificationResult struct {
	CriterionID string
	Pass        bool
	Message     string
	Evidence    string
}

// Task is the unit of work the kernel schedules, executes, and verifies.
type Task struct {
	ID                 string
	Title               string
	Prompt               string
	AcceptanceCriteria   []AcceptanceCriterion
	Dependencies         []string
	Priority             int
	Status               TaskStatus
	ContextRefs          []string
	History              []FieldTransition

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	Result *TaskResult

	RetryCount int
	MaxRetries int

	ParentID   string
	SubtaskIDs []string

	Tags map[string]struct{}

	EstimatedTokens int
	ActualTokens    int
}

// Clone returns a deep copy of the task, suitable for snapshot capture or
// read-only access by subscribers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.AcceptanceCriteria = append([]AcceptanceCriterion(nil), t.AcceptanceCriteria...)
	c.Dependencies = append([]string(nil), t.Dependencies...)
	c.ContextRefs = append([]string(nil), t.ContextRefs...)
	c.History = append([]FieldTransition(nil), t.History...)
	c.SubtaskIDs = append([]string(nil), t.SubtaskIDs...)
	if t.Result != nil {
		r := *t.Result
		r.Artifacts = append([]string(nil), t.Result.Artifacts...)
		r.VerificationResults = append([]VerificationResult(nil), t.Result.VerificationResults...)
		c.Result = &r
	}
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	c.Tags = make(map[string]struct{}, len(t.Tags))
	for k := range t.Tags {
		c.Tags[k] = struct{}{}
	}
	return &c
}

// HasTag reports whether the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	if t.Tags == nil {
		return false
	}
	_, ok := t.Tags[tag]
	return ok
}

// AddTag adds a tag to the task's tag set, initialising it if necessary.
func (t *Task) AddTag(tag string) {
	if t.Tags == nil {
		t.Tags = make(map[string]struct{})
	}
	t.Tags[tag] = struct{}{}
}
