// Package harness runs declarative TestSpecs against a freshly constructed
// kernel: seed its context and queue, drive its loop while applying queued
// injections at their trigger points, then score the run against must/must
// -not criterion strings and a weighted rubric.
package harness

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/goadesign/agent-kernel/internal/core"
)

//go:embed testdata/specs/*.yaml
var seedFS embed.FS

// InjectionTriggerType is the closed set of conditions that fire a queued
// injection.
type InjectionTriggerType string

const (
	TriggerActionCount  InjectionTriggerType = "action_count"
	TriggerTimeElapsed  InjectionTriggerType = "time_elapsed"
	TriggerTaskComplete InjectionTriggerType = "task_completed"
	TriggerEventType    InjectionTriggerType = "event_type"
)

// InjectionKind is the closed set of mutations an injection performs.
type InjectionKind string

const (
	InjectAddTask      InjectionKind = "add_task"
	InjectModifyTask   InjectionKind = "modify_task"
	InjectCancelTask   InjectionKind = "cancel_task"
	InjectAddConstraint InjectionKind = "add_constraint"
	InjectTriggerStop  InjectionKind = "trigger_stop"
)

// InjectionTrigger describes when a queued Injection fires.
type InjectionTrigger struct {
	Type  InjectionTriggerType `yaml:"type"`
	Value string               `yaml:"value"`
}

// Injection is one scripted mutation applied mid-run once its trigger fires.
type Injection struct {
	Trigger InjectionTrigger       `yaml:"trigger"`
	Kind    InjectionKind          `yaml:"kind"`
	TaskID  string                 `yaml:"task_id,omitempty"`
	Payload map[string]any         `yaml:"payload,omitempty"`
	fired   bool
}

// ContextSeed is one pinned or working context item to load before a run
// starts.
type ContextSeed struct {
	Tier     core.TierKind        `yaml:"tier"`
	Content  string               `yaml:"content"`
	Kind     core.ContextItemKind `yaml:"kind"`
	Priority int                  `yaml:"priority"`
}

// CriterionSeed mirrors core.AcceptanceCriterion in a YAML-friendly shape.
type CriterionSeed struct {
	ID          string         `yaml:"id"`
	Kind        string         `yaml:"kind"`
	Description string         `yaml:"description"`
	Config      map[string]any `yaml:"config,omitempty"`
}

// TaskSeed is one task to enqueue before a run starts.
type TaskSeed struct {
	ID                 string          `yaml:"id"`
	Title              string          `yaml:"title"`
	Prompt             string          `yaml:"prompt"`
	Priority           int             `yaml:"priority"`
	Dependencies       []string        `yaml:"dependencies,omitempty"`
	AcceptanceCriteria []CriterionSeed `yaml:"acceptance_criteria,omitempty"`
	Tags               []string        `yaml:"tags,omitempty"`
}

// RubricCriterion is one scored line item within a RubricCategory.
type RubricCriterion struct {
	Description string  `yaml:"description"`
	Points      float64 `yaml:"points"`
	Evaluation  string  `yaml:"evaluation"` // "deterministic" | "rubric"
}

// RubricCategory groups weighted criteria under a named scoring bucket.
type RubricCategory struct {
	Name     string            `yaml:"name"`
	Weight   float64           `yaml:"weight"`
	Criteria []RubricCriterion `yaml:"criteria"`
}

// TestSpec is a complete, declarative scenario for the harness to run.
type TestSpec struct {
	ID             string           `yaml:"id"`
	Category       string           `yaml:"category"`
	Difficulty     string           `yaml:"difficulty"`
	Description    string           `yaml:"description"`
	InitialContext []ContextSeed    `yaml:"initial_context,omitempty"`
	InitialTasks   []TaskSeed       `yaml:"initial_tasks"`
	Injections     []Injection      `yaml:"injections,omitempty"`
	Budgets        core.Budgets     `yaml:"budgets"`
	MustDo         []string         `yaml:"must_do,omitempty"`
	MustNotDo      []string         `yaml:"must_not_do,omitempty"`
	Rubric         []RubricCategory `yaml:"rubric,omitempty"`
}

// LoadSpec parses a single TestSpec from YAML bytes.
func LoadSpec(data []byte) (TestSpec, error) {
	var spec TestSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return TestSpec{}, fmt.Errorf("parse test spec: %w", err)
	}
	return spec, nil
}

// SeedSpecs loads and returns every built-in seed TestSpec, sorted by file
// name (queue-reprioritization, context-overload, ... — see testdata/specs).
func SeedSpecs() ([]TestSpec, error) {
	entries, err := seedFS.ReadDir("testdata/specs")
	if err != nil {
		return nil, err
	}
	specs := make([]TestSpec, 0, len(entries))
	for _, e := range entries {
		data, err := seedFS.ReadFile("testdata/specs/" + e.Name())
		if err != nil {
			return nil, err
		}
		spec, err := LoadSpec(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// SeedSpec loads a single built-in seed TestSpec by id.
func SeedSpec(id string) (TestSpec, error) {
	specs, err := SeedSpecs()
	if err != nil {
		return TestSpec{}, err
	}
	for _, s := range specs {
		if s.ID == id {
			return s, nil
		}
	}
	return TestSpec{}, fmt.Errorf("no seed test spec with id %q", id)
}
