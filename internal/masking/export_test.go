package masking

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridbasehq/gridbase/internal/models"
)

func (f *maskFixture) exportMasker(t *testing.T) *ExportMasker {
	t.Helper()
	masker, err := NewExportMasker(f.db, f.responseMasker(t))
	require.NoError(t, err)
	return masker
}

func exportRecords(t *testing.T, f *maskFixture, actorID int64) [][]string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, f.exportMasker(t).WriteCSV(context.Background(), &buf, actorID, f.table.ID))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExportMasksHiddenColumn(t *testing.T) {
	f := newMaskFixture(t)

	require.NoError(t, f.db.Create(&models.FieldPermission{
		TableID: f.table.ID, FieldID: f.fieldTwo.ID, UserID: memberID, Level: "hidden",
	}).Error)

	records := exportRecords(t, f, memberID)
	require.Equal(t, []string{"id", "order", "Name", "Salary"}, records[0])
	require.Len(t, records, 3)

	for _, record := range records[1:] {
		require.Equal(t, Sentinel, record[3])
		require.NotEqual(t, Sentinel, record[2])
	}
}

func TestExportMasksInvisibleRowKeepingIdentity(t *testing.T) {
	f := newMaskFixture(t)

	require.NoError(t, f.db.Create(&models.RowPermission{
		TableID: f.table.ID, RowID: f.rowOne.ID, UserID: memberID, Level: "invisible",
	}).Error)

	records := exportRecords(t, f, memberID)

	require.Equal(t, "1", records[1][0])
	require.Equal(t, Sentinel, records[1][2])
	require.Equal(t, Sentinel, records[1][3])

	require.Equal(t, "Bob", records[2][2])
}

func TestExportUnmaskedForAdmin(t *testing.T) {
	f := newMaskFixture(t)

	require.NoError(t, f.db.Create(&models.RowPermission{
		TableID: f.table.ID, RowID: f.rowOne.ID, UserID: adminID, Level: "invisible",
	}).Error)

	records := exportRecords(t, f, adminID)
	require.Equal(t, "Alice", records[1][2])
	require.Equal(t, "90000", records[1][3])
}

func TestExportNeverLeaksRuleHiddenRows(t *testing.T) {
	f := newMaskFixture(t)

	require.NoError(t, f.db.Create(&models.ConditionRule{
		TableID:       f.table.ID,
		IsActive:      true,
		ConditionType: models.ConditionTypeCreator,
		Level:         "invisible",
		Priority:      1,
	}).Error)

	records := exportRecords(t, f, memberID)

	// rowOne was created by the member and must be blanked; rowTwo stays.
	require.Equal(t, Sentinel, records[1][2])
	require.Equal(t, "Bob", records[2][2])
}
