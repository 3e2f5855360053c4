// Package auditor implements the kernel's self-monitoring meta-checks:
// acceptance-quality review, decision-contradiction scanning, and
// follow-up-task enforcement after a failure, recorded as severity-tagged
// audit entries and mirrored onto the event log as AUDIT_NOTE events.
package auditor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
	"github.com/goadesign/agent-kernel/internal/telemetry"
)

type (
	// EntryType is the closed set of audit entry categories.
	EntryType string

	// Severity is the closed set of audit entry severities.
	Severity string
)

const (
	EntryDecision     EntryType = "decision"
	EntryContradiction EntryType = "contradiction"
	EntryRisk         EntryType = "risk"
	EntryQuality      EntryType = "quality"
	EntryProcess      EntryType = "process"

	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Entry is one recorded audit observation.
type Entry struct {
	ID          string
	Timestamp   time.Time
	Type        EntryType
	Description string
	Evidence    string
	Severity    Severity
	Resolved    bool
	Resolution  string
}

// Auditor accumulates audit entries for a run and mirrors them onto the
// event store as AUDIT_NOTE events.
type Auditor struct {
	mu      sync.Mutex
	entries []Entry
	store   *eventstore.Store
	logger  telemetry.Logger
}

// New constructs an Auditor bound to the given event store.
func New(store *eventstore.Store, logger telemetry.Logger) *Auditor {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Auditor{store: store, logger: logger}
}

// Entries returns every recorded entry, oldest-first.
func (a *Auditor) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Entry(nil), a.entries...)
}

// Record appends an audit entry of the given type, description, evidence,
// and severity, and mirrors it onto the event log. It is exported for
// callers (such as the kernel) that need to record observations outside
// the built-in meta-checks below.
func (a *Auditor) Record(ctx context.Context, typ EntryType, description, evidence string, severity Severity) Entry {
	return a.record(ctx, typ, description, evidence, severity)
}

func (a *Auditor) record(ctx context.Context, typ EntryType, description, evidence string, severity Severity) Entry {
	e := Entry{
		ID:          core.NewID(),
		Timestamp:   time.Now().UTC(),
		Type:        typ,
		Description: description,
		Evidence:    evidence,
		Severity:    severity,
	}
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()

	a.store.Append(ctx, core.EventAuditNote, map[string]any{
		"entry_id":    e.ID,
		"type":        string(typ),
		"severity":    string(severity),
		"description": description,
		"evidence":    evidence,
	})
	return e
}

// CheckAcceptanceMeaningful records a quality warning when none of N
// criteria passed yet the output is substantial (>100 chars) — a signal
// the task produced real output that simply did not meet its criteria,
// worth a human's attention rather than silent retry.
func (a *Auditor) CheckAcceptanceMeaningful(ctx context.Context, taskID string, results []core.VerificationResult, output string) *Entry {
	if len(results) == 0 {
		return nil
	}
	passed := 0
	for _, r := range results {
		if r.Pass {
			passed++
		}
	}
	if passed == 0 && len(output) > 100 {
		e := a.record(ctx, EntryQuality,
			"task "+taskID+" produced substantial output but passed none of its acceptance criteria",
			truncate(output, 200), SeverityWarning)
		return &e
	}
	return nil
}

// CheckContradiction pairwise-scans previousDecisions against
// currentDecision: if one sentence contains "should" and another contains
// "should not" applied to subjects whose word sets overlap by a Jaccard
// similarity above 0.7, it records a warning.
func (a *Auditor) CheckContradiction(ctx context.Context, previousDecisions []string, currentDecision string) *Entry {
	for _, prev := range previousDecisions {
		if contradicts(prev, currentDecision) {
			e := a.record(ctx, EntryContradiction,
				"decision contradicts an earlier one",
				"previous: \""+prev+"\"; current: \""+currentDecision+"\"", SeverityWarning)
			return &e
		}
	}
	return nil
}

func contradicts(a, b string) bool {
	aShould, aNegated := extractShould(a)
	bShould, bNegated := extractShould(b)
	if aShould == "" || bShould == "" {
		return false
	}
	if aNegated == bNegated {
		return false
	}
	return jaccard(tokenizeWords(aShould), tokenizeWords(bShould)) > 0.7
}

func extractShould(s string) (subject string, negated bool) {
	lower := strings.ToLower(s)
	if idx := strings.Index(lower, "should not "); idx >= 0 {
		return strings.TrimSpace(clauseAfter(lower, idx+len("should not "))), true
	}
	if idx := strings.Index(lower, "should never "); idx >= 0 {
		return strings.TrimSpace(clauseAfter(lower, idx+len("should never "))), true
	}
	if idx := strings.Index(lower, "should "); idx >= 0 {
		return strings.TrimSpace(clauseAfter(lower, idx+len("should "))), false
	}
	return "", false
}

func clauseAfter(s string, from int) string {
	rest := s[from:]
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		rest = rest[:dot]
	}
	return rest
}

func jaccard(a, b []string) float64 {
	setA := make(map[string]bool, len(a))
	for _, w := range a {
		setA[w] = true
	}
	setB := make(map[string]bool, len(b))
	for _, w := range b {
		setB[w] = true
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	intersection := 0
	union := make(map[string]bool)
	for w := range setA {
		union[w] = true
		if setB[w] {
			intersection++
		}
	}
	for w := range setB {
		union[w] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

func tokenizeWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

// CheckFollowUpCreated records an error process note when a failed task has
// no queued follow-up: a task tagged "fix" or titled with "fix" that
// depends on it.
func (a *Auditor) CheckFollowUpCreated(ctx context.Context, failedTask *core.Task, queuedTasks []*core.Task) *Entry {
	for _, t := range queuedTasks {
		if !dependsOn(t, failedTask.ID) {
			continue
		}
		if t.HasTag("fix") || strings.Contains(strings.ToLower(t.Title), "fix") {
			return nil
		}
	}
	e := a.record(ctx, EntryProcess,
		"failed task "+failedTask.ID+" has no queued fix follow-up",
		"title: "+failedTask.Title, SeverityError)
	return &e
}

func dependsOn(t *core.Task, id string) bool {
	for _, d := range t.Dependencies {
		if d == id {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
