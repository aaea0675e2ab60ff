package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML files can use values like "90s".
type Duration time.Duration

// UnmarshalYAML decodes either a Go duration string or a plain number of
// seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		dur, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("pipeline: invalid duration %q: %w", s, err)
		}
		*d = Duration(dur)
		return nil
	}

	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("pipeline: invalid duration value")
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// StageDefinition is a static descriptor for one pipeline stage: its
// position, data dependencies, quality rubric, and retry/timeout budget.
type StageDefinition struct {
	ID             string   `yaml:"id"`
	Label          string   `yaml:"label"`
	Requires       []string `yaml:"requires,omitempty"` // prior stage IDs whose outputs this stage consumes
	Rubric         Rubric   `yaml:"rubric"`
	MaxRetries     int      `yaml:"maxRetries"`
	AttemptTimeout Duration `yaml:"attemptTimeout"`
}

// Rubric is the acceptance criteria applied to a stage's output.
// A gate fails when the aggregate score is below MinScore or any mandatory
// check fails outright.
type Rubric struct {
	MinScore int           `yaml:"minScore"` // 0-100
	Checks   []RubricCheck `yaml:"checks"`
}

// CheckKind selects the validation performed by a RubricCheck.
type CheckKind string

const (
	// CheckObject verifies the output is a structurally valid JSON object.
	CheckObject CheckKind = "object"

	// CheckRequiredFields verifies the named top-level fields are present
	// and non-empty.
	CheckRequiredFields CheckKind = "required_fields"

	// CheckMinLength verifies a string field has at least MinChars characters.
	CheckMinLength CheckKind = "min_length"

	// CheckMinItems verifies an array field has at least MinItems elements.
	CheckMinItems CheckKind = "min_items"

	// CheckRefs verifies every string in the Field array also appears in
	// the RefField array of the RefStage output already accepted into the
	// data-flow context. Used for cross-stage consistency (e.g. a calendar
	// entry may only reference themes the theme stage produced).
	CheckRefs CheckKind = "refs"
)

// RubricCheck is one named, independently testable acceptance check.
// Mandatory checks fail the gate regardless of the aggregate score; scored
// checks contribute Weight points toward the 0-100 score.
type RubricCheck struct {
	Name      string    `yaml:"name"`
	Kind      CheckKind `yaml:"kind"`
	Mandatory bool      `yaml:"mandatory,omitempty"`
	Weight    int       `yaml:"weight,omitempty"` // defaults to 1 for scored checks

	Field    string   `yaml:"field,omitempty"`
	Fields   []string `yaml:"fields,omitempty"`
	MinChars int      `yaml:"minChars,omitempty"`
	MinItems int      `yaml:"minItems,omitempty"`
	RefStage string   `yaml:"refStage,omitempty"`
	RefField string   `yaml:"refField,omitempty"`
}

// Registry is the ordered, immutable set of stage definitions driving a
// pipeline. Stage order is fixed and linear; dependencies may only point at
// earlier stages.
type Registry struct {
	stages []StageDefinition
	index  map[string]int
}

// NewRegistry validates the definitions and returns a Registry. It rejects
// duplicate IDs, empty IDs, and dependencies on stages that do not precede
// the declaring stage.
func NewRegistry(defs []StageDefinition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("pipeline: registry requires at least one stage")
	}

	index := make(map[string]int, len(defs))
	for i, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("pipeline: stage %d has an empty ID", i)
		}
		if _, dup := index[def.ID]; dup {
			return nil, fmt.Errorf("pipeline: duplicate stage ID %q", def.ID)
		}

		for _, req := range def.Requires {
			pos, seen := index[req]
			if !seen || pos >= i {
				return nil, fmt.Errorf("pipeline: stage %q requires %q which is not an earlier stage", def.ID, req)
			}
		}

		if def.MaxRetries < 0 {
			return nil, fmt.Errorf("pipeline: stage %q has negative maxRetries", def.ID)
		}
		if def.AttemptTimeout <= 0 {
			return nil, fmt.Errorf("pipeline: stage %q has no attempt timeout", def.ID)
		}

		index[def.ID] = i
	}

	stages := make([]StageDefinition, len(defs))
	copy(stages, defs)

	return &Registry{stages: stages, index: index}, nil
}

// LoadRegistry reads stage definitions from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read stage definitions: %w", err)
	}

	var doc struct {
		Stages []StageDefinition `yaml:"stages"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("pipeline: parse stage definitions: %w", err)
	}

	return NewRegistry(doc.Stages)
}

// Stages returns the definitions in ordinal order.
func (r *Registry) Stages() []StageDefinition {
	out := make([]StageDefinition, len(r.stages))
	copy(out, r.stages)
	return out
}

// Get returns the definition for the given stage ID.
func (r *Registry) Get(id string) (StageDefinition, bool) {
	i, ok := r.index[id]
	if !ok {
		return StageDefinition{}, false
	}
	return r.stages[i], true
}

// Ordinal returns the position of a stage ID, or -1 if unknown.
func (r *Registry) Ordinal(id string) int {
	i, ok := r.index[id]
	if !ok {
		return -1
	}
	return i
}

// IDs returns the stage IDs in ordinal order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.stages))
	for i, def := range r.stages {
		ids[i] = def.ID
	}
	return ids
}

// Len returns the number of stages.
func (r *Registry) Len() int {
	return len(r.stages)
}

// DefaultRegistry returns the built-in five-stage content-plan pipeline:
// brand brief, audience personas, content themes, calendar outline, and
// post drafts. Each stage consumes the accepted outputs of the stages it
// declares in Requires.
func DefaultRegistry() *Registry {
	reg, err := NewRegistry([]StageDefinition{
		{
			ID:    "brand-brief",
			Label: "Brand Brief",
			Rubric: Rubric{
				MinScore: 70,
				Checks: []RubricCheck{
					{Name: "valid-object", Kind: CheckObject, Mandatory: true},
					{Name: "core-fields", Kind: CheckRequiredFields, Fields: []string{"brand_name", "voice", "positioning"}, Weight: 2},
					{Name: "positioning-depth", Kind: CheckMinLength, Field: "positioning", MinChars: 120},
				},
			},
			MaxRetries:     2,
			AttemptTimeout: Duration(90 * time.Second),
		},
		{
			ID:       "audience-personas",
			Label:    "Audience Personas",
			Requires: []string{"brand-brief"},
			Rubric: Rubric{
				MinScore: 70,
				Checks: []RubricCheck{
					{Name: "valid-object", Kind: CheckObject, Mandatory: true},
					{Name: "personas-present", Kind: CheckMinItems, Field: "personas", MinItems: 2, Mandatory: true},
					{Name: "persona-fields", Kind: CheckRequiredFields, Fields: []string{"personas"}, Weight: 2},
				},
			},
			MaxRetries:     2,
			AttemptTimeout: Duration(90 * time.Second),
		},
		{
			ID:       "content-themes",
			Label:    "Content Themes",
			Requires: []string{"brand-brief", "audience-personas"},
			Rubric: Rubric{
				MinScore: 70,
				Checks: []RubricCheck{
					{Name: "valid-object", Kind: CheckObject, Mandatory: true},
					{Name: "themes-present", Kind: CheckMinItems, Field: "themes", MinItems: 3, Mandatory: true},
				},
			},
			MaxRetries:     2,
			AttemptTimeout: Duration(90 * time.Second),
		},
		{
			ID:       "calendar-outline",
			Label:    "Calendar Outline",
			Requires: []string{"content-themes"},
			Rubric: Rubric{
				MinScore: 75,
				Checks: []RubricCheck{
					{Name: "valid-object", Kind: CheckObject, Mandatory: true},
					{Name: "entries-present", Kind: CheckMinItems, Field: "entries", MinItems: 8, Mandatory: true},
					{Name: "themes-referenced", Kind: CheckRefs, Field: "theme_ids", RefStage: "content-themes", RefField: "theme_ids", Weight: 2},
				},
			},
			MaxRetries:     2,
			AttemptTimeout: Duration(120 * time.Second),
		},
		{
			ID:       "post-drafts",
			Label:    "Post Drafts",
			Requires: []string{"audience-personas", "calendar-outline"},
			Rubric: Rubric{
				MinScore: 70,
				Checks: []RubricCheck{
					{Name: "valid-object", Kind: CheckObject, Mandatory: true},
					{Name: "drafts-present", Kind: CheckMinItems, Field: "drafts", MinItems: 8, Mandatory: true},
				},
			},
			MaxRetries:     1,
			AttemptTimeout: Duration(180 * time.Second),
		},
	})
	if err != nil {
		// The built-in definitions are validated by tests; this cannot
		// happen at runtime.
		panic(err)
	}
	return reg
}
