package accesscontrol

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/gridbasehq/gridbase/internal/models"
)

func creatorRule(level string, priority int) models.ConditionRule {
	return models.ConditionRule{
		IsActive:      true,
		ConditionType: models.ConditionTypeCreator,
		Level:         level,
		Priority:      priority,
	}
}

func fieldMatchRule(level, config string) models.ConditionRule {
	return models.ConditionRule{
		IsActive:      true,
		ConditionType: models.ConditionTypeFieldMatch,
		Level:         level,
		Config:        datatypes.JSON(config),
	}
}

func TestCreatorRule(t *testing.T) {
	rules := []models.ConditionRule{creatorRule("read_only", 10)}

	level, matched := EvaluateRules(5, rules, map[string]any{"created_by": float64(5)}, nil)
	require.True(t, matched)
	require.Equal(t, LevelReadOnly, level)

	// Creator may arrive as an object with an id attribute.
	level, matched = EvaluateRules(5, rules, map[string]any{"created_by": map[string]any{"id": float64(5)}}, nil)
	require.True(t, matched)
	require.Equal(t, LevelReadOnly, level)

	_, matched = EvaluateRules(6, rules, map[string]any{"created_by": float64(5)}, nil)
	require.False(t, matched)

	_, matched = EvaluateRules(5, rules, map[string]any{}, nil)
	require.False(t, matched)
}

func TestFieldMatchOperators(t *testing.T) {
	row := map[string]any{"field_12": "urgent backlog", "field_13": float64(41)}

	cases := []struct {
		name    string
		config  string
		matched bool
	}{
		{"equals", `{"field_id": 12, "operator": "equals", "value": "urgent backlog"}`, true},
		{"equals miss", `{"field_id": 12, "operator": "equals", "value": "done"}`, false},
		{"not_equals", `{"field_id": 12, "operator": "not_equals", "value": "done"}`, true},
		{"contains", `{"field_id": 12, "operator": "contains", "value": "urgent"}`, true},
		{"greater_than", `{"field_id": 13, "operator": "greater_than", "value": 40}`, true},
		{"less_than", `{"field_id": 13, "operator": "less_than", "value": 40}`, false},
		{"numeric parse failure", `{"field_id": 12, "operator": "greater_than", "value": 40}`, false},
		{"missing field_id", `{"operator": "equals", "value": "urgent backlog"}`, false},
		{"unknown operator", `{"field_id": 12, "operator": "matches", "value": "urgent"}`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, matched := EvaluateRules(1, []models.ConditionRule{fieldMatchRule("read_only", tc.config)}, row, nil)
			require.Equal(t, tc.matched, matched)
		})
	}
}

func TestFieldMatchByDisplayName(t *testing.T) {
	row := map[string]any{"Status": "done"}
	names := map[int64]string{12: "Status"}

	rules := []models.ConditionRule{fieldMatchRule("invisible", `{"field_id": 12, "operator": "equals", "value": "done"}`)}
	level, matched := EvaluateRules(1, rules, row, names)
	require.True(t, matched)
	require.Equal(t, LevelInvisible, level)
}

func TestCollaboratorRule(t *testing.T) {
	rule := models.ConditionRule{
		IsActive:      true,
		ConditionType: models.ConditionTypeCollaborator,
		Level:         "editable",
		Config:        datatypes.JSON(`{"field_id": 20}`),
	}

	cases := []struct {
		name    string
		value   any
		matched bool
	}{
		{"list of ids", []any{float64(1), float64(7)}, true},
		{"list of objects", []any{map[string]any{"id": float64(7)}}, true},
		{"single object", map[string]any{"id": float64(7)}, true},
		{"scalar id", float64(7), true},
		{"absent", []any{float64(3)}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, matched := EvaluateRules(7, []models.ConditionRule{rule}, map[string]any{"field_20": tc.value}, nil)
			require.Equal(t, tc.matched, matched)
		})
	}
}

func TestMalformedConfigSkipsRule(t *testing.T) {
	broken := fieldMatchRule("invisible", `{"field_id": `)
	ok := creatorRule("read_only", 0)

	level, matched := EvaluateRules(5, []models.ConditionRule{broken, ok}, map[string]any{"created_by": float64(5)}, nil)
	require.True(t, matched)
	require.Equal(t, LevelReadOnly, level)
}

func TestUnknownConditionTypeNeverMatches(t *testing.T) {
	rule := models.ConditionRule{IsActive: true, ConditionType: "moon_phase", Level: "invisible"}
	_, matched := EvaluateRules(1, []models.ConditionRule{rule}, map[string]any{"field_1": "x"}, nil)
	require.False(t, matched)
}

func TestInactiveRulesIgnored(t *testing.T) {
	rule := creatorRule("invisible", 0)
	rule.IsActive = false
	_, matched := EvaluateRules(5, []models.ConditionRule{rule}, map[string]any{"created_by": float64(5)}, nil)
	require.False(t, matched)
}

func TestMatchedRuleLevelsMergeStrictest(t *testing.T) {
	rules := []models.ConditionRule{
		creatorRule("read_only", 10),
		creatorRule("invisible", 5),
	}
	level, matched := EvaluateRules(5, rules, map[string]any{"created_by": float64(5)}, nil)
	require.True(t, matched)
	require.Equal(t, LevelInvisible, level)
}
