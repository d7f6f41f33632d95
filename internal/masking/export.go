package masking

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/models"
	"github.com/gridbasehq/gridbase/pkg/metrics"
)

// ExportMasker streams a table to CSV row by row, applying the same masking
// rule as the API response path so an export can never leak values the actor
// cannot see. Field-level masking is applied per field even inside wholly
// masked rows.
type ExportMasker struct {
	db     *gorm.DB
	masker *ResponseMasker
}

// NewExportMasker constructs an ExportMasker sharing the response masker's
// visibility resolution.
func NewExportMasker(db *gorm.DB, masker *ResponseMasker) (*ExportMasker, error) {
	if db == nil {
		return nil, errors.New("masking: db is required")
	}
	if masker == nil {
		return nil, errors.New("masking: response masker is required")
	}
	return &ExportMasker{db: db, masker: masker}, nil
}

// WriteCSV exports every row of the table for the actor. The header lists
// id, order, then field display names in id order.
func (e *ExportMasker) WriteCSV(ctx context.Context, w io.Writer, actorID, tableID int64) error {
	if ctx == nil {
		ctx = context.Background()
	}

	admin, err := e.masker.actorIsAdmin(ctx, actorID, tableID)
	if err != nil {
		return err
	}

	var view *actorView
	if !admin {
		view, err = e.masker.buildView(ctx, actorID, tableID)
		if err != nil {
			return err
		}
	}

	var fields []models.Field
	if err := e.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("id ASC").
		Find(&fields).Error; err != nil {
		return fmt.Errorf("masking: load fields: %w", err)
	}

	header := make([]string, 0, len(fields)+2)
	header = append(header, "id", "order")
	for _, field := range fields {
		header = append(header, field.Name)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("masking: write export header: %w", err)
	}

	var rows []models.Row
	if err := e.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order(`"order" ASC, id ASC`).
		Find(&rows).Error; err != nil {
		return fmt.Errorf("masking: load rows: %w", err)
	}

	for _, row := range rows {
		payload := row.Payload()
		if view != nil {
			wholeRow := view.rowMasked(actorID, payload)
			if wholeRow {
				metrics.MaskedRows.WithLabelValues("export").Inc()
			}
			payload = MaskRow(payload, view.entry.HiddenFieldSet(), wholeRow, nil)
		}

		record := make([]string, 0, len(fields)+2)
		record = append(record,
			strconv.FormatInt(row.ID, 10),
			strconv.FormatFloat(row.Order, 'f', -1, 64),
		)
		for _, field := range fields {
			record = append(record, exportCell(payload[fmt.Sprintf("field_%d", field.ID)]))
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("masking: write export row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// exportCell renders one masked or plain value as CSV text.
func exportCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = exportCell(item)
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		// Masked-marker maps and object cells collapse to the sentinel or
		// their value field.
		if inner, ok := v["value"]; ok {
			return exportCell(inner)
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
