// Package executor defines the kernel's pluggable task execution capability
// and a deterministic simulated implementation used when no external
// executor is wired, matching the capability-interface-with-a-default
// pattern the teacher uses for telemetry.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/goadesign/agent-kernel/internal/core"
)

// Result is what a TaskExecutor produces for one task execution.
type Result struct {
	Output     string
	Artifacts  []*core.Artifact
	TokensUsed int
}

// TaskExecutor performs the actual work a task describes. Implementations
// are supplied by the host application; SimulatedExecutor is the kernel's
// own deterministic default.
type TaskExecutor interface {
	Execute(ctx context.Context, task *core.Task, contextText string) (Result, error)
}

// SimulatedExecutor produces bounded, deterministic templated output from a
// task's title and prompt, with no external side effects. It never errors
// and exists so the kernel's run loop is exercisable without a real
// execution backend wired in.
type SimulatedExecutor struct{}

// Execute implements TaskExecutor.
func (SimulatedExecutor) Execute(ctx context.Context, task *core.Task, contextText string) (Result, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "completed: %s\n", task.Title)
	fmt.Fprintf(&b, "prompt: %s\n", truncate(task.Prompt, 200))
	if contextText != "" {
		fmt.Fprintf(&b, "used %d context item(s) of context\n", strings.Count(contextText, "\n\n---\n\n")+1)
	}
	for _, c := range task.AcceptanceCriteria {
		fmt.Fprintf(&b, "addressed criterion: %s\n", c.Description)
	}
	output := b.String()
	return Result{
		Output:     output,
		TokensUsed: estimateTokens(output),
	}, nil
}

func estimateTokens(s string) int {
	tokens := (len(s) + 3) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
