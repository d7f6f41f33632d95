package accesscontrol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gridbasehq/gridbase/internal/models"
)

// EvaluateRules runs every active rule against the row data and merges the
// levels of all matching rules, strictest wins. The second return value is
// false when no rule matched (no opinion). Rules must be evaluated in
// priority-descending, id-ascending order; the merge itself is order
// independent but callers rely on that ordering for tracing.
//
// The evaluator works on plain maps and has no storage dependency. Field
// values may be keyed canonically as "field_<id>" or by display name via the
// optional fieldNames map.
func EvaluateRules(actorID int64, rules []models.ConditionRule, rowData map[string]any, fieldNames map[int64]string) (Level, bool) {
	merged := LevelEditable
	matched := false

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		if !ruleMatches(actorID, rule, rowData, fieldNames) {
			continue
		}
		level := Level(rule.Level)
		if !matched {
			merged = level
			matched = true
			continue
		}
		merged = Merge(merged, level)
	}

	return merged, matched
}

// ruleMatches evaluates a single rule predicate. Malformed configuration and
// unknown condition types degrade to false, never to an error.
func ruleMatches(actorID int64, rule models.ConditionRule, rowData map[string]any, fieldNames map[int64]string) bool {
	switch rule.ConditionType {
	case models.ConditionTypeCreator:
		creator, ok := identityID(rowData["created_by"])
		return ok && creator == actorID

	case models.ConditionTypeFieldMatch:
		cfg, ok := decodeRuleConfig(rule.Config)
		if !ok || cfg.FieldID == 0 {
			return false
		}
		value, ok := fieldValue(rowData, cfg.FieldID, fieldNames)
		if !ok {
			return false
		}
		return compareFieldValue(value, cfg.Operator, cfg.Value)

	case models.ConditionTypeCollaborator:
		cfg, ok := decodeRuleConfig(rule.Config)
		if !ok || cfg.FieldID == 0 {
			return false
		}
		value, ok := fieldValue(rowData, cfg.FieldID, fieldNames)
		if !ok {
			return false
		}
		return containsIdentity(value, actorID)
	}

	return false
}

type ruleConfig struct {
	FieldID  int64
	Operator string
	Value    any
}

func decodeRuleConfig(raw []byte) (ruleConfig, bool) {
	if len(raw) == 0 {
		return ruleConfig{}, false
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ruleConfig{}, false
	}

	cfg := ruleConfig{Value: decoded["value"]}
	if op, ok := decoded["operator"].(string); ok {
		cfg.Operator = op
	}
	if id, ok := numericID(decoded["field_id"]); ok {
		cfg.FieldID = id
	}
	return cfg, true
}

// fieldValue resolves a row value by canonical "field_<id>" key first, then
// by the field's display name.
func fieldValue(rowData map[string]any, fieldID int64, fieldNames map[int64]string) (any, bool) {
	if v, ok := rowData[fmt.Sprintf("field_%d", fieldID)]; ok {
		return v, true
	}
	if name, ok := fieldNames[fieldID]; ok {
		if v, ok := rowData[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func compareFieldValue(value any, operator string, expected any) bool {
	got := stringify(value)
	want := stringify(expected)

	switch operator {
	case "equals":
		return got == want
	case "not_equals":
		return got != want
	case "contains":
		return strings.Contains(got, want)
	case "greater_than", "less_than":
		gotNum, err := strconv.ParseFloat(got, 64)
		if err != nil {
			return false
		}
		wantNum, err := strconv.ParseFloat(want, 64)
		if err != nil {
			return false
		}
		if operator == "greater_than" {
			return gotNum > wantNum
		}
		return gotNum < wantNum
	}

	return false
}

// containsIdentity walks a multi-user reference value, which may be a list of
// ids or objects, a single object, or a scalar id.
func containsIdentity(value any, actorID int64) bool {
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if containsIdentity(item, actorID) {
				return true
			}
		}
		return false
	default:
		id, ok := identityID(value)
		return ok && id == actorID
	}
}

// identityID extracts a user id from a raw id or an object carrying an "id".
func identityID(value any) (int64, bool) {
	if obj, ok := value.(map[string]any); ok {
		return numericID(obj["id"])
	}
	return numericID(value)
}

func numericID(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
