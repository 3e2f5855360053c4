// Package verifier implements deterministic acceptance-criterion checking:
// schema validation (via santhosh-tekuri/jsonschema), regex containment,
// word-count limits, a small TypeScript/JavaScript lint, simulated test
// presence, and a fixed registry of custom checks. Every criterion
// evaluation is bracketed by VERIFICATION_RUN and a pass/fail event on the
// supplied event store.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
	"github.com/goadesign/agent-kernel/internal/telemetry"
)

// Verifier evaluates a task's acceptance criteria against its output and
// produced artifacts.
type Verifier struct {
	store  *eventstore.Store
	logger telemetry.Logger
}

// New constructs a Verifier bound to the given event store.
func New(store *eventstore.Store, logger telemetry.Logger) *Verifier {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Verifier{store: store, logger: logger}
}

// AllResult is the outcome of verifying every criterion on a task.
type AllResult struct {
	AllPassed      bool
	Results        []core.VerificationResult
	FailedCriteria []core.AcceptanceCriterion
}

// VerifyAll evaluates every criterion in order and aggregates the outcome.
func (v *Verifier) VerifyAll(ctx context.Context, taskID string, criteria []core.AcceptanceCriterion, output string, artifacts []*core.Artifact) AllResult {
	var res AllResult
	res.AllPassed = true
	for _, c := range criteria {
		result := v.VerifyCriterion(ctx, taskID, c, output, artifacts)
		res.Results = append(res.Results, result)
		if !result.Pass {
			res.AllPassed = false
			c.Pass = false
			c.Evidence = result.Evidence
			res.FailedCriteria = append(res.FailedCriteria, c)
		}
	}
	return res
}

// VerifyCriterion dispatches criterion evaluation by kind, emitting
// VERIFICATION_RUN before and VERIFICATION_PASSED/VERIFICATION_FAILED after.
func (v *Verifier) VerifyCriterion(ctx context.Context, taskID string, criterion core.AcceptanceCriterion, output string, artifacts []*core.Artifact) core.VerificationResult {
	v.store.Append(ctx, core.EventVerificationRun, map[string]any{
		"task_id":      taskID,
		"criterion_id": criterion.ID,
		"kind":         string(criterion.Kind),
	})

	var result core.VerificationResult
	switch criterion.Kind {
	case core.CriterionSchema:
		result = verifySchema(criterion, output)
	case core.CriterionContains:
		result = verifyContains(criterion, output, true)
	case core.CriterionNotContains:
		result = verifyContains(criterion, output, false)
	case core.CriterionWordLimit:
		result = verifyWordLimit(criterion, output)
	case core.CriterionLint:
		result = verifyLint(criterion, output)
	case core.CriterionTest:
		result = verifyTest(criterion, artifacts)
	case core.CriterionCustom:
		result = verifyCustom(criterion, output)
	default:
		result = core.VerificationResult{Pass: false, Message: fmt.Sprintf("unknown criterion kind %q", criterion.Kind)}
	}
	result.CriterionID = criterion.ID

	payload := map[string]any{
		"task_id":      taskID,
		"criterion_id": criterion.ID,
		"message":      result.Message,
		"evidence":     result.Evidence,
	}
	if result.Pass {
		v.store.Append(ctx, core.EventVerificationPassed, payload)
	} else {
		v.store.Append(ctx, core.EventVerificationFailed, payload)
	}
	return result
}

func verifySchema(criterion core.AcceptanceCriterion, output string) core.VerificationResult {
	schemaObj, ok := criterion.Config["schema"]
	if !ok {
		return core.VerificationResult{Pass: false, Message: "schema criterion missing \"schema\" config"}
	}
	schemaBytes, err := json.Marshal(schemaObj)
	if err != nil {
		return core.VerificationResult{Pass: false, Message: "invalid schema config: " + err.Error()}
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("criterion.json", bytes.NewReader(schemaBytes)); err != nil {
		return core.VerificationResult{Pass: false, Message: "invalid schema: " + err.Error()}
	}
	sch, err := compiler.Compile("criterion.json")
	if err != nil {
		return core.VerificationResult{Pass: false, Message: "schema compile failed: " + err.Error()}
	}

	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(output))
	if err != nil {
		return core.VerificationResult{Pass: false, Message: "output is not valid JSON: " + err.Error(), Evidence: truncate(output, 200)}
	}
	if err := sch.Validate(instance); err != nil {
		return core.VerificationResult{Pass: false, Message: "schema validation failed: " + err.Error(), Evidence: truncate(output, 200)}
	}
	return core.VerificationResult{Pass: true, Message: "output satisfies schema"}
}

func verifyContains(criterion core.AcceptanceCriterion, output string, mustContain bool) core.VerificationResult {
	patterns := configPatterns(criterion.Config)
	if len(patterns) == 0 {
		return core.VerificationResult{Pass: false, Message: "no patterns configured"}
	}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return core.VerificationResult{Pass: false, Message: fmt.Sprintf("invalid pattern %q: %v", p, err)}
		}
		matched := re.MatchString(output)
		if mustContain && !matched {
			return core.VerificationResult{Pass: false, Message: fmt.Sprintf("pattern %q did not match", p)}
		}
		if !mustContain && matched {
			return core.VerificationResult{Pass: false, Message: fmt.Sprintf("forbidden pattern %q matched", p), Evidence: re.FindString(output)}
		}
	}
	if mustContain {
		return core.VerificationResult{Pass: true, Message: "all patterns matched"}
	}
	return core.VerificationResult{Pass: true, Message: "no forbidden pattern matched"}
}

func configPatterns(cfg map[string]any) []string {
	if raw, ok := cfg["patterns"]; ok {
		if list, ok := raw.([]any); ok {
			out := make([]string, 0, len(list))
			for _, p := range list {
				if s, ok := p.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
		if list, ok := raw.([]string); ok {
			return list
		}
	}
	if raw, ok := cfg["pattern"]; ok {
		if s, ok := raw.(string); ok {
			return []string{s}
		}
	}
	return nil
}

func verifyWordLimit(criterion core.AcceptanceCriterion, output string) core.VerificationResult {
	words := 0
	for _, w := range strings.Fields(output) {
		if w != "" {
			words++
		}
	}
	min := configInt(criterion.Config, "min_words", 0)
	max := configInt(criterion.Config, "max_words", 1<<30)
	if words < min || words > max {
		return core.VerificationResult{
			Pass:     false,
			Message:  fmt.Sprintf("word count %d outside [%d, %d]", words, min, max),
			Evidence: fmt.Sprintf("%d words", words),
		}
	}
	return core.VerificationResult{Pass: true, Message: fmt.Sprintf("word count %d within [%d, %d]", words, min, max)}
}

func configInt(cfg map[string]any, key string, def int) int {
	raw, ok := cfg[key]
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

func verifyLint(criterion core.AcceptanceCriterion, output string) core.VerificationResult {
	if !bracketsBalanced(output) {
		return core.VerificationResult{Pass: false, Message: "unbalanced brackets"}
	}
	if configBool(criterion.Config, "no_console") && strings.Contains(output, "console.log") {
		return core.VerificationResult{Pass: false, Message: "forbidden console.log present"}
	}
	if configBool(criterion.Config, "no_any") && regexp.MustCompile(`\bany\b`).MatchString(output) {
		return core.VerificationResult{Pass: false, Message: "forbidden \"any\" type present"}
	}
	return core.VerificationResult{Pass: true, Message: "lint passed"}
}

func configBool(cfg map[string]any, key string) bool {
	raw, ok := cfg[key]
	if !ok {
		return false
	}
	b, _ := raw.(bool)
	return b
}

func bracketsBalanced(s string) bool {
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	var stack []rune
	for _, r := range s {
		switch r {
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

func verifyTest(criterion core.AcceptanceCriterion, artifacts []*core.Artifact) core.VerificationResult {
	name, _ := criterion.Config["file"].(string)
	if name == "" {
		return core.VerificationResult{Pass: true, Message: "no test file configured; simulated pass"}
	}
	for _, a := range artifacts {
		if a.Name == name {
			return core.VerificationResult{Pass: true, Message: fmt.Sprintf("test artifact %q present", name)}
		}
	}
	return core.VerificationResult{Pass: true, Message: fmt.Sprintf("test artifact %q absent; simulated pass", name)}
}

var customChecks = map[string]func(string) (bool, string){
	"is_not_empty": func(output string) (bool, string) {
		return strings.TrimSpace(output) != "", "output is empty"
	},
	"starts_with_header": func(output string) (bool, string) {
		return strings.HasPrefix(strings.TrimSpace(output), "#"), "output does not start with a header"
	},
	"has_code_block": func(output string) (bool, string) {
		return strings.Contains(output, "```"), "output contains no fenced code block"
	},
	"no_todos": func(output string) (bool, string) {
		return !strings.Contains(strings.ToUpper(output), "TODO"), "output contains a TODO"
	},
}

func verifyCustom(criterion core.AcceptanceCriterion, output string) core.VerificationResult {
	name, _ := criterion.Config["check"].(string)
	check, ok := customChecks[name]
	if !ok {
		return core.VerificationResult{Pass: false, Message: fmt.Sprintf("unknown custom check %q", name)}
	}
	pass, failMsg := check(output)
	if !pass {
		return core.VerificationResult{Pass: false, Message: failMsg}
	}
	return core.VerificationResult{Pass: true, Message: fmt.Sprintf("custom check %q passed", name)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
