package verifier

import (
	"fmt"
	"strings"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/taskqueue"
)

// GenerateFixTask builds the taskqueue.AddTaskInput for a follow-up fix task
// after verification fails. The new prompt embeds the original prompt and a
// bullet list of failures with evidence; its acceptance criteria are exactly
// the failed subset; its priority is min(100, original+10); and it carries
// the "fix" and "retry" tags in addition to the original's tags. It is not
// declared as depending on the original task: the original is about to be
// marked failed, a terminal status a dependency edge can never wait past, so
// the fix task is queued immediately and the original's ID lives only in its
// title and prompt for traceability.
func GenerateFixTask(originalID string, originalPrompt string, originalPriority int, originalTags map[string]struct{}, failed []core.AcceptanceCriterion, results []core.VerificationResult) taskqueue.AddTaskInput {
	byCriterion := make(map[string]core.VerificationResult, len(results))
	for _, r := range results {
		byCriterion[r.CriterionID] = r
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nThe previous attempt failed verification. Focus on the following criteria:\n", originalPrompt)
	for _, c := range failed {
		r := byCriterion[c.ID]
		fmt.Fprintf(&b, "  - %s: %s", c.Description, r.Message)
		if r.Evidence != "" {
			fmt.Fprintf(&b, " (evidence: %s)", r.Evidence)
		}
		b.WriteString("\n")
	}

	priority := originalPriority + 10
	if priority > 100 {
		priority = 100
	}

	tags := make([]string, 0, len(originalTags)+2)
	for t := range originalTags {
		tags = append(tags, t)
	}
	tags = append(tags, "fix", "retry")

	return taskqueue.AddTaskInput{
		Title:              "fix: " + originalID,
		Prompt:             b.String(),
		AcceptanceCriteria: failed,
		Priority:           priority,
		Tags:               tags,
	}
}
