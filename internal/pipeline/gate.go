package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// GateResult is the outcome of validating one stage output against a rubric.
type GateResult struct {
	Passed       bool
	Score        int // 0-100
	Deficiencies []string
}

// QualityGate scores stage outputs against their rubric. Validation is
// deterministic for identical input: checks run in declared order and use no
// randomness, so retries produce comparable scores.
type QualityGate struct{}

// NewQualityGate returns a QualityGate.
func NewQualityGate() *QualityGate {
	return &QualityGate{}
}

// Validate scores output against the rubric. refs carries the accepted
// prior-stage outputs consulted by cross-stage consistency checks; it may be
// nil when the rubric has no refs checks.
//
// The gate fails when any mandatory check fails, regardless of the aggregate
// score, or when the weighted score of the remaining checks falls below the
// rubric minimum.
func (g *QualityGate) Validate(output json.RawMessage, rubric Rubric, refs map[string]json.RawMessage) GateResult {
	var deficiencies []string
	mandatoryFailed := false

	earnedWeight := 0
	totalWeight := 0

	for _, check := range rubric.Checks {
		ok, detail := runCheck(check, output, refs)

		if check.Mandatory {
			if !ok {
				mandatoryFailed = true
				deficiencies = append(deficiencies, fmt.Sprintf("%s (mandatory): %s", check.Name, detail))
			}
			continue
		}

		weight := check.Weight
		if weight <= 0 {
			weight = 1
		}
		totalWeight += weight
		if ok {
			earnedWeight += weight
		} else {
			deficiencies = append(deficiencies, fmt.Sprintf("%s: %s", check.Name, detail))
		}
	}

	// No scored checks means the score rides entirely on the mandatory ones.
	score := 100
	if totalWeight > 0 {
		score = earnedWeight * 100 / totalWeight
	}
	if mandatoryFailed {
		score = 0
	}

	passed := !mandatoryFailed && score >= rubric.MinScore

	return GateResult{
		Passed:       passed,
		Score:        score,
		Deficiencies: deficiencies,
	}
}

// runCheck evaluates a single rubric check. It returns whether the check
// passed and, on failure, a human-readable explanation.
func runCheck(check RubricCheck, output json.RawMessage, refs map[string]json.RawMessage) (bool, string) {
	switch check.Kind {
	case CheckObject:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(output, &obj); err != nil {
			return false, fmt.Sprintf("output is not a JSON object: %v", err)
		}
		return true, ""

	case CheckRequiredFields:
		obj, err := decodeObject(output)
		if err != nil {
			return false, err.Error()
		}
		var missing []string
		for _, field := range check.Fields {
			v, ok := obj[field]
			if !ok || isEmptyValue(v) {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			return false, fmt.Sprintf("missing or empty fields: %s", strings.Join(missing, ", "))
		}
		return true, ""

	case CheckMinLength:
		obj, err := decodeObject(output)
		if err != nil {
			return false, err.Error()
		}
		var s string
		if err := json.Unmarshal(obj[check.Field], &s); err != nil {
			return false, fmt.Sprintf("field %q is not a string", check.Field)
		}
		// Count runes, not bytes; model output is frequently multi-byte.
		if n := utf8.RuneCountInString(s); n < check.MinChars {
			return false, fmt.Sprintf("field %q has %d chars, need at least %d", check.Field, n, check.MinChars)
		}
		return true, ""

	case CheckMinItems:
		obj, err := decodeObject(output)
		if err != nil {
			return false, err.Error()
		}
		var items []json.RawMessage
		if err := json.Unmarshal(obj[check.Field], &items); err != nil {
			return false, fmt.Sprintf("field %q is not an array", check.Field)
		}
		if len(items) < check.MinItems {
			return false, fmt.Sprintf("field %q has %d items, need at least %d", check.Field, len(items), check.MinItems)
		}
		return true, ""

	case CheckRefs:
		got, err := stringSet(output, check.Field)
		if err != nil {
			return false, err.Error()
		}
		ref, ok := refs[check.RefStage]
		if !ok {
			return false, fmt.Sprintf("no accepted output for stage %q to check references against", check.RefStage)
		}
		want, err := stringSet(ref, check.RefField)
		if err != nil {
			return false, fmt.Sprintf("reference stage %q: %v", check.RefStage, err)
		}
		var unknown []string
		for _, id := range got.order {
			if !want.members[id] {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) > 0 {
			return false, fmt.Sprintf("field %q references unknown IDs from stage %q: %s",
				check.Field, check.RefStage, strings.Join(unknown, ", "))
		}
		return true, ""

	default:
		return false, fmt.Sprintf("unknown check kind %q", check.Kind)
	}
}

// decodeObject unmarshals output into a field map.
func decodeObject(output json.RawMessage) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(output, &obj); err != nil {
		return nil, fmt.Errorf("output is not a JSON object: %v", err)
	}
	return obj, nil
}

// isEmptyValue reports whether a raw JSON value is null, an empty string,
// an empty array, or an empty object.
func isEmptyValue(v json.RawMessage) bool {
	s := strings.TrimSpace(string(v))
	switch s {
	case "", "null", `""`, "[]", "{}":
		return true
	}
	return false
}

// orderedSet is a string set that remembers insertion order so deficiency
// messages are deterministic.
type orderedSet struct {
	members map[string]bool
	order   []string
}

// stringSet extracts the named array-of-strings field from a JSON object.
func stringSet(output json.RawMessage, field string) (*orderedSet, error) {
	obj, err := decodeObject(output)
	if err != nil {
		return nil, err
	}
	var values []string
	if err := json.Unmarshal(obj[field], &values); err != nil {
		return nil, fmt.Errorf("field %q is not an array of strings", field)
	}
	set := &orderedSet{members: make(map[string]bool, len(values))}
	for _, v := range values {
		if !set.members[v] {
			set.members[v] = true
			set.order = append(set.order, v)
		}
	}
	return set, nil
}
