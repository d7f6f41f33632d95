package masking

import (
	"strconv"
	"strings"
)

// Sentinel replaces any value the actor must not see.
const Sentinel = "***"

// identityKeys stay untouched so clients keep row identity and ordering.
var identityKeys = map[string]struct{}{
	"id":    {},
	"order": {},
}

// MaskValue replaces a single value with the sentinel, keeping the value's
// rough shape: scalars become the sentinel string, lists a single-element
// sentinel list, maps a tagged masked marker. Masking an already masked
// value yields the same representation.
func MaskValue(value any) any {
	switch value.(type) {
	case []any:
		return []any{Sentinel}
	case map[string]any:
		return map[string]any{"masked": true, "value": Sentinel}
	default:
		return Sentinel
	}
}

// MaskRow rewrites one row. When wholeRow is set every non-identity value is
// masked; otherwise only values belonging to hidden fields are. Keys match a
// hidden field either by the canonical "field_<id>" form or by display name
// through fieldNames.
func MaskRow(row map[string]any, hiddenFieldIDs map[int64]struct{}, wholeRow bool, fieldNames map[int64]string) map[string]any {
	if row == nil {
		return nil
	}

	hiddenNames := make(map[string]struct{}, len(hiddenFieldIDs))
	for id := range hiddenFieldIDs {
		if name, ok := fieldNames[id]; ok {
			hiddenNames[name] = struct{}{}
		}
	}

	masked := make(map[string]any, len(row))
	for key, value := range row {
		if _, identity := identityKeys[key]; identity {
			masked[key] = value
			continue
		}
		if wholeRow || keyHidden(key, hiddenFieldIDs, hiddenNames) {
			masked[key] = MaskValue(value)
			continue
		}
		masked[key] = value
	}
	return masked
}

func keyHidden(key string, hiddenFieldIDs map[int64]struct{}, hiddenNames map[string]struct{}) bool {
	if suffix, ok := strings.CutPrefix(key, "field_"); ok {
		if id, err := strconv.ParseInt(suffix, 10, 64); err == nil {
			_, hidden := hiddenFieldIDs[id]
			return hidden
		}
	}
	_, hidden := hiddenNames[key]
	return hidden
}
