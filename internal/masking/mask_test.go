package masking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskRowPreservesIdentityKeys(t *testing.T) {
	row := map[string]any{
		"id":      int64(7),
		"order":   1.5,
		"field_1": "secret",
	}

	masked := MaskRow(row, nil, true, nil)
	require.Equal(t, int64(7), masked["id"])
	require.Equal(t, 1.5, masked["order"])
	require.Equal(t, Sentinel, masked["field_1"])
}

func TestMaskRowSentinelShapes(t *testing.T) {
	row := map[string]any{
		"id":      int64(1),
		"field_1": "scalar",
		"field_2": float64(42),
		"field_3": []any{"a", "b"},
		"field_4": map[string]any{"id": float64(9), "name": "link"},
	}

	masked := MaskRow(row, nil, true, nil)
	require.Equal(t, Sentinel, masked["field_1"])
	require.Equal(t, Sentinel, masked["field_2"])
	require.Equal(t, []any{Sentinel}, masked["field_3"])
	require.Equal(t, map[string]any{"masked": true, "value": Sentinel}, masked["field_4"])
}

func TestMaskRowIdempotent(t *testing.T) {
	row := map[string]any{
		"id":      int64(1),
		"order":   1.0,
		"field_1": []any{"a"},
		"field_2": map[string]any{"x": 1},
		"field_3": "plain",
	}

	once := MaskRow(row, nil, true, nil)
	twice := MaskRow(once, nil, true, nil)
	require.Equal(t, once, twice)
}

func TestMaskRowHiddenFieldsOnly(t *testing.T) {
	row := map[string]any{
		"id":      int64(1),
		"field_1": "visible",
		"field_2": "secret",
	}

	masked := MaskRow(row, map[int64]struct{}{2: {}}, false, nil)
	require.Equal(t, "visible", masked["field_1"])
	require.Equal(t, Sentinel, masked["field_2"])
}

func TestMaskRowHiddenFieldByDisplayName(t *testing.T) {
	row := map[string]any{
		"id":     int64(1),
		"Name":   "visible",
		"Salary": 90000,
	}

	names := map[int64]string{2: "Salary"}
	masked := MaskRow(row, map[int64]struct{}{2: {}}, false, names)
	require.Equal(t, "visible", masked["Name"])
	require.Equal(t, Sentinel, masked["Salary"])
}

func TestMaskRowDoesNotMutateInput(t *testing.T) {
	row := map[string]any{"id": int64(1), "field_1": "secret"}
	_ = MaskRow(row, nil, true, nil)
	require.Equal(t, "secret", row["field_1"])
}

func TestMaskValueStable(t *testing.T) {
	require.Equal(t, Sentinel, MaskValue("x"))
	require.Equal(t, Sentinel, MaskValue(Sentinel))
	require.Equal(t, []any{Sentinel}, MaskValue(MaskValue([]any{"a", "b"})))
	require.Equal(t,
		map[string]any{"masked": true, "value": Sentinel},
		MaskValue(MaskValue(map[string]any{"k": "v"})),
	)
}
