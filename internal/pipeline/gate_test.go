package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualityGate_MandatoryFailureZeroesScore(t *testing.T) {
	gate := NewQualityGate()
	rubric := Rubric{
		MinScore: 50,
		Checks: []RubricCheck{
			{Name: "valid-object", Kind: CheckObject, Mandatory: true},
			{Name: "has-title", Kind: CheckRequiredFields, Fields: []string{"title"}, Weight: 3},
		},
	}

	res := gate.Validate(json.RawMessage(`[1,2,3]`), rubric, nil)

	assert.False(t, res.Passed)
	assert.Equal(t, 0, res.Score)
	require.NotEmpty(t, res.Deficiencies)
	assert.Contains(t, res.Deficiencies[0], "valid-object (mandatory)")
}

func TestQualityGate_WeightedScoring(t *testing.T) {
	gate := NewQualityGate()
	rubric := Rubric{
		MinScore: 70,
		Checks: []RubricCheck{
			{Name: "has-title", Kind: CheckRequiredFields, Fields: []string{"title"}, Weight: 3},
			{Name: "has-body", Kind: CheckRequiredFields, Fields: []string{"body"}, Weight: 1},
		},
	}

	// Title present, body missing: 3 of 4 weight earned.
	res := gate.Validate(json.RawMessage(`{"title":"x"}`), rubric, nil)
	assert.Equal(t, 75, res.Score)
	assert.True(t, res.Passed)
	require.Len(t, res.Deficiencies, 1)
	assert.Contains(t, res.Deficiencies[0], "has-body")

	// Body present, title missing: 1 of 4 weight earned, below the minimum.
	res = gate.Validate(json.RawMessage(`{"body":"x"}`), rubric, nil)
	assert.Equal(t, 25, res.Score)
	assert.False(t, res.Passed)
}

func TestQualityGate_NoScoredChecks(t *testing.T) {
	gate := NewQualityGate()
	rubric := Rubric{
		MinScore: 70,
		Checks: []RubricCheck{
			{Name: "valid-object", Kind: CheckObject, Mandatory: true},
		},
	}

	res := gate.Validate(json.RawMessage(`{}`), rubric, nil)
	assert.True(t, res.Passed)
	assert.Equal(t, 100, res.Score)
	assert.Empty(t, res.Deficiencies)
}

func TestQualityGate_RequiredFieldsTreatsEmptyAsMissing(t *testing.T) {
	gate := NewQualityGate()
	rubric := Rubric{
		MinScore: 100,
		Checks: []RubricCheck{
			{Name: "fields", Kind: CheckRequiredFields, Fields: []string{"a", "b", "c", "d"}},
		},
	}

	out := json.RawMessage(`{"a": null, "b": "", "c": [], "d": "ok"}`)
	res := gate.Validate(out, rubric, nil)

	assert.False(t, res.Passed)
	require.Len(t, res.Deficiencies, 1)
	assert.Contains(t, res.Deficiencies[0], "a, b, c")
}

func TestQualityGate_MinLengthAndMinItems(t *testing.T) {
	gate := NewQualityGate()
	rubric := Rubric{
		MinScore: 100,
		Checks: []RubricCheck{
			{Name: "summary-depth", Kind: CheckMinLength, Field: "summary", MinChars: 10},
			{Name: "items-present", Kind: CheckMinItems, Field: "items", MinItems: 2},
		},
	}

	res := gate.Validate(json.RawMessage(`{"summary":"long enough text","items":[1,2,3]}`), rubric, nil)
	assert.True(t, res.Passed)
	assert.Equal(t, 100, res.Score)

	res = gate.Validate(json.RawMessage(`{"summary":"short","items":[1]}`), rubric, nil)
	assert.False(t, res.Passed)
	assert.Equal(t, 0, res.Score)
	require.Len(t, res.Deficiencies, 2)
	assert.Contains(t, res.Deficiencies[0], "5 chars, need at least 10")
	assert.Contains(t, res.Deficiencies[1], "1 items, need at least 2")
}

func TestQualityGate_MinLengthCountsRunes(t *testing.T) {
	gate := NewQualityGate()
	rubric := Rubric{
		MinScore: 100,
		Checks: []RubricCheck{
			{Name: "summary-depth", Kind: CheckMinLength, Field: "summary", MinChars: 10},
		},
	}

	// Ten runes of CJK text is 30 bytes; the rubric counts characters.
	res := gate.Validate(json.RawMessage(`{"summary":"内容计划生成器很好用"}`), rubric, nil)
	assert.True(t, res.Passed)

	// Five runes, 15 bytes: byte length alone would clear the minimum.
	res = gate.Validate(json.RawMessage(`{"summary":"内容计划表"}`), rubric, nil)
	assert.False(t, res.Passed)
	require.Len(t, res.Deficiencies, 1)
	assert.Contains(t, res.Deficiencies[0], "5 chars, need at least 10")
}

func TestQualityGate_RefsCheck(t *testing.T) {
	gate := NewQualityGate()
	rubric := Rubric{
		MinScore: 100,
		Checks: []RubricCheck{
			{Name: "themes-referenced", Kind: CheckRefs, Field: "theme_ids", RefStage: "themes", RefField: "theme_ids"},
		},
	}
	refs := map[string]json.RawMessage{
		"themes": json.RawMessage(`{"theme_ids":["t1","t2"]}`),
	}

	res := gate.Validate(json.RawMessage(`{"theme_ids":["t1","t2","t1"]}`), rubric, refs)
	assert.True(t, res.Passed)

	res = gate.Validate(json.RawMessage(`{"theme_ids":["t1","t9"]}`), rubric, refs)
	assert.False(t, res.Passed)
	require.Len(t, res.Deficiencies, 1)
	assert.Contains(t, res.Deficiencies[0], "t9")

	// Missing reference stage output fails the check rather than panicking.
	res = gate.Validate(json.RawMessage(`{"theme_ids":["t1"]}`), rubric, nil)
	assert.False(t, res.Passed)
}

func TestQualityGate_Deterministic(t *testing.T) {
	gate := NewQualityGate()
	rubric := Rubric{
		MinScore: 80,
		Checks: []RubricCheck{
			{Name: "valid-object", Kind: CheckObject, Mandatory: true},
			{Name: "has-title", Kind: CheckRequiredFields, Fields: []string{"title"}, Weight: 2},
			{Name: "has-body", Kind: CheckRequiredFields, Fields: []string{"body"}},
			{Name: "summary-depth", Kind: CheckMinLength, Field: "summary", MinChars: 40},
		},
	}
	out := json.RawMessage(`{"title":"x","summary":"too short"}`)

	first := gate.Validate(out, rubric, nil)
	for i := 0; i < 10; i++ {
		again := gate.Validate(out, rubric, nil)
		require.Equal(t, first, again)
	}
}
