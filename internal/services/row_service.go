package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/accesscontrol"
	"github.com/gridbasehq/gridbase/internal/masking"
	"github.com/gridbasehq/gridbase/internal/models"
	apperrors "github.com/gridbasehq/gridbase/pkg/errors"
)

// RowService is the checked mutation path for table rows. Every operation is
// evaluated against the permission hierarchy first; successful mutations are
// fanned out through the broadcast masker.
type RowService struct {
	db          *gorm.DB
	evaluator   *accesscontrol.Evaluator
	broadcaster *masking.BroadcastMasker
}

// NewRowService constructs a RowService. The broadcaster is optional.
func NewRowService(db *gorm.DB, evaluator *accesscontrol.Evaluator, broadcaster *masking.BroadcastMasker) (*RowService, error) {
	if db == nil {
		return nil, fmt.Errorf("row service requires database handle")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("row service requires evaluator")
	}
	return &RowService{db: db, evaluator: evaluator, broadcaster: broadcaster}, nil
}

// tableContext resolves a table and the workspace it belongs to.
func (s *RowService) tableContext(ctx context.Context, tableID int64) (*models.Table, int64, error) {
	var table models.Table
	if err := s.db.WithContext(ctx).First(&table, tableID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, apperrors.ErrNotFound.WithInternal(fmt.Errorf("table %d", tableID))
		}
		return nil, 0, fmt.Errorf("rows: load table: %w", err)
	}

	var database models.Database
	if err := s.db.WithContext(ctx).First(&database, table.DatabaseID).Error; err != nil {
		return nil, 0, fmt.Errorf("rows: load database: %w", err)
	}
	return &table, database.WorkspaceID, nil
}

// fieldIDs maps both canonical "field_<id>" keys and display names to field
// ids for one table.
func (s *RowService) fieldIDs(ctx context.Context, tableID int64) (map[string]int64, error) {
	var fields []models.Field
	if err := s.db.WithContext(ctx).Where("table_id = ?", tableID).Find(&fields).Error; err != nil {
		return nil, fmt.Errorf("rows: load fields: %w", err)
	}

	byKey := make(map[string]int64, len(fields)*2)
	for _, field := range fields {
		byKey["field_"+strconv.FormatInt(field.ID, 10)] = field.ID
		byKey[field.Name] = field.ID
	}
	return byKey, nil
}

func enforce(results []accesscontrol.Result) error {
	for _, res := range results {
		switch res.Effect {
		case accesscontrol.EffectDeny:
			return res.Denied
		case accesscontrol.EffectError:
			return res.Err
		}
	}
	return nil
}

// EnsureTableReadable runs the table read check without loading any rows.
// Export paths use it before streaming.
func (s *RowService) EnsureTableReadable(ctx context.Context, actorID, tableID int64) error {
	ctx = ensureContext(ctx)

	_, workspaceID, err := s.tableContext(ctx, tableID)
	if err != nil {
		return err
	}

	res := s.evaluator.Check(ctx, workspaceID, accesscontrol.Check{
		ActorID:   actorID,
		Operation: accesscontrol.OpReadTable,
		Target:    accesscontrol.Target{TableID: tableID},
	})
	return enforce([]accesscontrol.Result{res})
}

// ListRows returns the table's rows in display order after a read check.
// Masking is the caller's concern.
func (s *RowService) ListRows(ctx context.Context, actorID, tableID int64) ([]models.Row, error) {
	ctx = ensureContext(ctx)

	_, workspaceID, err := s.tableContext(ctx, tableID)
	if err != nil {
		return nil, err
	}

	res := s.evaluator.Check(ctx, workspaceID, accesscontrol.Check{
		ActorID:   actorID,
		Operation: accesscontrol.OpReadTable,
		Target:    accesscontrol.Target{TableID: tableID},
	})
	if err := enforce([]accesscontrol.Result{res}); err != nil {
		return nil, err
	}

	var rows []models.Row
	err = s.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order(`"order" ASC, id ASC`).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("rows: list: %w", err)
	}
	return rows, nil
}

// GetRow returns one row after a read check.
func (s *RowService) GetRow(ctx context.Context, actorID, tableID, rowID int64) (*models.Row, error) {
	ctx = ensureContext(ctx)

	_, workspaceID, err := s.tableContext(ctx, tableID)
	if err != nil {
		return nil, err
	}

	res := s.evaluator.Check(ctx, workspaceID, accesscontrol.Check{
		ActorID:   actorID,
		Operation: accesscontrol.OpReadRow,
		Target:    accesscontrol.Target{TableID: tableID, RowID: rowID},
	})
	if err := enforce([]accesscontrol.Result{res}); err != nil {
		return nil, err
	}

	var row models.Row
	if err := s.db.WithContext(ctx).Where("table_id = ?", tableID).First(&row, rowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithInternal(fmt.Errorf("row %d", rowID))
		}
		return nil, fmt.Errorf("rows: load: %w", err)
	}
	return &row, nil
}

// CreateRow inserts a row after checking the create operation and every
// initial cell value in one batch. Field restrictions never block initial
// values on a brand-new row.
func (s *RowService) CreateRow(ctx context.Context, actorID, tableID int64, data map[string]any) (*models.Row, error) {
	ctx = ensureContext(ctx)

	_, workspaceID, err := s.tableContext(ctx, tableID)
	if err != nil {
		return nil, err
	}
	fieldByKey, err := s.fieldIDs(ctx, tableID)
	if err != nil {
		return nil, err
	}

	checks := []accesscontrol.Check{{
		ActorID:   actorID,
		Operation: accesscontrol.OpCreateRow,
		Target:    accesscontrol.Target{TableID: tableID},
	}}
	cells, err := canonicalCells(data, fieldByKey)
	if err != nil {
		return nil, err
	}
	for fieldID := range cells {
		checks = append(checks, accesscontrol.Check{
			ActorID:       actorID,
			Operation:     accesscontrol.OpWriteField,
			Target:        accesscontrol.Target{TableID: tableID, FieldID: fieldID},
			IsRowCreation: true,
		})
	}
	if err := enforce(s.evaluator.CheckAll(ctx, workspaceID, checks)); err != nil {
		return nil, err
	}

	row := models.Row{
		TableID:     tableID,
		CreatedByID: actorID,
		Data:        make(map[string]any, len(cells)),
	}
	for fieldID, value := range cells {
		row.Data["field_"+strconv.FormatInt(fieldID, 10)] = value
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxOrder float64
		if err := tx.Model(&models.Row{}).
			Where("table_id = ?", tableID).
			Select(`COALESCE(MAX("order"), 0)`).
			Scan(&maxOrder).Error; err != nil {
			return err
		}
		row.Order = maxOrder + 1
		return tx.Create(&row).Error
	})
	if err != nil {
		return nil, fmt.Errorf("rows: create: %w", err)
	}

	s.publish(masking.RowChangeEvent{
		Type:    masking.EventRowsCreated,
		TableID: tableID,
		Rows:    []map[string]any{row.Payload()},
	})
	return &row, nil
}

// UpdateRow merges cell values into a row after checking the update and
// every touched field.
func (s *RowService) UpdateRow(ctx context.Context, actorID, tableID, rowID int64, data map[string]any) (*models.Row, error) {
	ctx = ensureContext(ctx)

	_, workspaceID, err := s.tableContext(ctx, tableID)
	if err != nil {
		return nil, err
	}
	fieldByKey, err := s.fieldIDs(ctx, tableID)
	if err != nil {
		return nil, err
	}

	var row models.Row
	if err := s.db.WithContext(ctx).Where("table_id = ?", tableID).First(&row, rowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithInternal(fmt.Errorf("row %d", rowID))
		}
		return nil, fmt.Errorf("rows: load: %w", err)
	}
	before := row.Payload()

	checks := []accesscontrol.Check{{
		ActorID:   actorID,
		Operation: accesscontrol.OpUpdateRow,
		Target:    accesscontrol.Target{TableID: tableID, RowID: rowID},
	}}
	cells, err := canonicalCells(data, fieldByKey)
	if err != nil {
		return nil, err
	}
	for fieldID := range cells {
		checks = append(checks, accesscontrol.Check{
			ActorID:   actorID,
			Operation: accesscontrol.OpWriteField,
			Target:    accesscontrol.Target{TableID: tableID, FieldID: fieldID, RowID: rowID},
		})
	}
	if err := enforce(s.evaluator.CheckAll(ctx, workspaceID, checks)); err != nil {
		return nil, err
	}

	if row.Data == nil {
		row.Data = make(map[string]any, len(cells))
	}
	for fieldID, value := range cells {
		row.Data["field_"+strconv.FormatInt(fieldID, 10)] = value
	}
	if err := s.db.WithContext(ctx).Model(&row).Update("data", row.Data).Error; err != nil {
		return nil, fmt.Errorf("rows: update: %w", err)
	}

	s.publish(masking.RowChangeEvent{
		Type:             masking.EventRowsUpdated,
		TableID:          tableID,
		Rows:             []map[string]any{row.Payload()},
		RowsBeforeUpdate: []map[string]any{before},
	})
	return &row, nil
}

// DeleteRow removes a row after the delete check.
func (s *RowService) DeleteRow(ctx context.Context, actorID, tableID, rowID int64) error {
	ctx = ensureContext(ctx)

	_, workspaceID, err := s.tableContext(ctx, tableID)
	if err != nil {
		return err
	}

	var row models.Row
	if err := s.db.WithContext(ctx).Where("table_id = ?", tableID).First(&row, rowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithInternal(fmt.Errorf("row %d", rowID))
		}
		return fmt.Errorf("rows: load: %w", err)
	}

	res := s.evaluator.Check(ctx, workspaceID, accesscontrol.Check{
		ActorID:   actorID,
		Operation: accesscontrol.OpDeleteRow,
		Target:    accesscontrol.Target{TableID: tableID, RowID: rowID},
	})
	if err := enforce([]accesscontrol.Result{res}); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&row).Error; err != nil {
		return fmt.Errorf("rows: delete: %w", err)
	}

	s.publish(masking.RowChangeEvent{
		Type:    masking.EventRowsDeleted,
		TableID: tableID,
		Rows:    []map[string]any{row.Payload()},
	})
	return nil
}

// EnsureRowsMutable rejects a batch mutation when any targeted row carries an
// explicit invisible or read-only permission for the actor. Admins skip the
// guard. The batch fails as a whole so partial writes never happen.
func (s *RowService) EnsureRowsMutable(ctx context.Context, actorID, tableID int64, rowIDs []int64) error {
	ctx = ensureContext(ctx)

	rowIDs = normaliseIDs(rowIDs)
	if len(rowIDs) == 0 {
		return nil
	}

	_, workspaceID, err := s.tableContext(ctx, tableID)
	if err != nil {
		return err
	}
	admin, err := isWorkspaceAdmin(ctx, s.db, actorID, workspaceID)
	if err != nil {
		return err
	}
	if admin {
		return nil
	}

	var perms []models.RowPermission
	err = s.db.WithContext(ctx).
		Where("table_id = ? AND user_id = ? AND row_id IN ?", tableID, actorID, rowIDs).
		Find(&perms).Error
	if err != nil {
		return fmt.Errorf("rows: load row permissions: %w", err)
	}

	for _, perm := range perms {
		switch accesscontrol.Level(perm.Level) {
		case accesscontrol.LevelInvisible, accesscontrol.LevelHidden:
			return apperrors.ErrRowInvisible.WithInternal(fmt.Errorf("row %d", perm.RowID))
		case accesscontrol.LevelReadOnly:
			return apperrors.ErrRowReadOnly.WithInternal(fmt.Errorf("row %d", perm.RowID))
		}
	}
	return nil
}

// BulkDeleteRows removes several rows after the guard and per-row checks.
func (s *RowService) BulkDeleteRows(ctx context.Context, actorID, tableID int64, rowIDs []int64) error {
	ctx = ensureContext(ctx)

	rowIDs = normaliseIDs(rowIDs)
	if len(rowIDs) == 0 {
		return nil
	}

	if err := s.EnsureRowsMutable(ctx, actorID, tableID, rowIDs); err != nil {
		return err
	}

	_, workspaceID, err := s.tableContext(ctx, tableID)
	if err != nil {
		return err
	}

	var rows []models.Row
	err = s.db.WithContext(ctx).
		Where("table_id = ? AND id IN ?", tableID, rowIDs).
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("rows: load: %w", err)
	}
	if len(rows) != len(rowIDs) {
		return apperrors.ErrNotFound.WithInternal(fmt.Errorf("expected %d rows, found %d", len(rowIDs), len(rows)))
	}

	checks := make([]accesscontrol.Check, 0, len(rows))
	for _, row := range rows {
		checks = append(checks, accesscontrol.Check{
			ActorID:   actorID,
			Operation: accesscontrol.OpDeleteRow,
			Target:    accesscontrol.Target{TableID: tableID, RowID: row.ID},
		})
	}
	if err := enforce(s.evaluator.CheckAll(ctx, workspaceID, checks)); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Where("table_id = ? AND id IN ?", tableID, rowIDs).Delete(&models.Row{}).Error; err != nil {
		return fmt.Errorf("rows: bulk delete: %w", err)
	}

	payloads := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		payloads = append(payloads, row.Payload())
	}
	s.publish(masking.RowChangeEvent{
		Type:    masking.EventRowsDeleted,
		TableID: tableID,
		Rows:    payloads,
	})
	return nil
}

func (s *RowService) publish(event masking.RowChangeEvent) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(event)
}

// canonicalCells resolves incoming cell keys (canonical or display name) to
// field ids. Unknown keys are rejected rather than silently stored.
func canonicalCells(data map[string]any, fieldByKey map[string]int64) (map[int64]any, error) {
	cells := make(map[int64]any, len(data))
	for key, value := range data {
		fieldID, ok := fieldByKey[key]
		if !ok {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown field %q", strings.TrimSpace(key)))
		}
		cells[fieldID] = value
	}
	return cells, nil
}
