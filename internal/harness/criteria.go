package harness

import (
	"strings"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/kernel"
)

// matchCriterion classifies a must/must-not string by keyword pattern and
// reports whether the described behaviour is observable in the run's final
// event log and kernel state.
func matchCriterion(s string, events []core.Event, k *kernel.Kernel) bool {
	lower := strings.ToLower(s)

	switch {
	case strings.Contains(lower, "complete all tasks"):
		stats := k.Queue().Stats()
		total := 0
		for _, n := range stats {
			total += n
		}
		done := stats[core.TaskDone] + stats[core.TaskFailed] + stats[core.TaskCanceled]
		return total > 0 && done == total

	case strings.Contains(lower, "continue after stop"):
		return actionAfterStop(events)

	case strings.Contains(lower, "stop immediately"), strings.Contains(lower, "stop"):
		return hasEvent(events, core.EventStopRequested)

	case strings.Contains(lower, "create fix task"), strings.Contains(lower, "fix task"):
		for _, t := range k.Queue().All() {
			if t.HasTag("fix") || strings.Contains(strings.ToLower(t.Title), "fix") {
				return true
			}
		}
		return false

	case strings.Contains(lower, "detect contradiction"), strings.Contains(lower, "contradiction"):
		return hasEvent(events, core.EventContradictionFound)

	case strings.Contains(lower, "schema validation"), strings.Contains(lower, "schema"):
		return hasEvent(events, core.EventVerificationRun)

	case strings.Contains(lower, "exceed token"), strings.Contains(lower, "exceed tool"), strings.Contains(lower, "budget"):
		return hasEvent(events, core.EventBudgetExhausted)

	default:
		return false
	}
}

func hasEvent(events []core.Event, typ core.EventType) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

// actionAfterStop reports whether any ACTION_EXECUTED event's sequence
// number exceeds the first STOP_REQUESTED event's sequence number.
func actionAfterStop(events []core.Event) bool {
	var stopSeq int64 = -1
	for _, e := range events {
		if e.Type == core.EventStopRequested {
			stopSeq = e.SequenceNumber
			break
		}
	}
	if stopSeq < 0 {
		return false
	}
	for _, e := range events {
		if e.Type == core.EventActionExecuted && e.SequenceNumber > stopSeq {
			return true
		}
	}
	return false
}

// score evaluates spec's must/must-not criteria and weighted rubric against
// events and the kernel's final state.
func score(spec TestSpec, events []core.Event, k *kernel.Kernel) TestResult {
	allMustDo := true
	for _, s := range spec.MustDo {
		if !matchCriterion(s, events, k) {
			allMustDo = false
		}
	}
	anyMustNotDo := false
	for _, s := range spec.MustNotDo {
		if matchCriterion(s, events, k) {
			anyMustNotDo = true
		}
	}

	var breakdown []CategoryScore
	var totalScore, totalMax float64
	for _, cat := range spec.Rubric {
		var earned, max float64
		for _, c := range cat.Criteria {
			max += c.Points
			if c.Evaluation == "rubric" {
				earned += c.Points
				continue
			}
			if matchCriterion(c.Description, events, k) {
				earned += c.Points
			}
		}
		breakdown = append(breakdown, CategoryScore{Name: cat.Name, Earned: earned * cat.Weight, Max: max * cat.Weight})
		totalScore += earned * cat.Weight
		totalMax += max * cat.Weight
	}

	return TestResult{
		Pass:      allMustDo && !anyMustNotDo,
		Score:     totalScore,
		MaxScore:  totalMax,
		Breakdown: breakdown,
	}
}
