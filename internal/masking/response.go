package masking

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/accesscontrol"
	"github.com/gridbasehq/gridbase/internal/models"
	"github.com/gridbasehq/gridbase/pkg/metrics"
)

// ResponseMasker rewrites outbound row payloads for one actor. It resolves
// row visibility from explicit permissions first and condition rules second,
// then applies MaskRow. Admins pass through untouched.
type ResponseMasker struct {
	db       *gorm.DB
	resolver *AudienceResolver
}

// NewResponseMasker constructs a ResponseMasker.
func NewResponseMasker(db *gorm.DB, resolver *AudienceResolver) (*ResponseMasker, error) {
	if db == nil {
		return nil, errors.New("masking: db is required")
	}
	if resolver == nil {
		return nil, errors.New("masking: audience resolver is required")
	}
	return &ResponseMasker{db: db, resolver: resolver}, nil
}

// MaskPayload rewrites an outbound payload in any of the three wire shapes:
// a paginated {"results": [...]} object, a bare row list, or a single row
// object. Unrecognised payloads pass through unchanged.
func (m *ResponseMasker) MaskPayload(ctx context.Context, actorID, tableID int64, payload any, useFieldNames bool) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	admin, err := m.actorIsAdmin(ctx, actorID, tableID)
	if err != nil {
		return nil, err
	}
	if admin {
		return payload, nil
	}

	view, err := m.buildView(ctx, actorID, tableID)
	if err != nil {
		return nil, err
	}
	if view.empty() {
		return payload, nil
	}

	names := map[int64]string(nil)
	if useFieldNames {
		names = view.fieldNames
	}

	switch shaped := payload.(type) {
	case map[string]any:
		if results, ok := shaped["results"].([]any); ok {
			shaped["results"] = view.maskList(actorID, results, names)
			return shaped, nil
		}
		return view.maskObject(actorID, shaped, names), nil
	case []any:
		return view.maskList(actorID, shaped, names), nil
	case []map[string]any:
		masked := make([]map[string]any, len(shaped))
		for i, row := range shaped {
			masked[i] = view.maskObject(actorID, row, names)
		}
		return masked, nil
	}

	return payload, nil
}

// actorView bundles everything needed to decide visibility of the actor's
// rows on one table.
type actorView struct {
	entry      Entry
	explicit   map[int64]accesscontrol.Level
	rules      []models.ConditionRule
	fieldNames map[int64]string
}

func (m *ResponseMasker) buildView(ctx context.Context, actorID, tableID int64) (*actorView, error) {
	audience, err := m.resolver.Audience(ctx, tableID)
	if err != nil {
		return nil, err
	}

	view := &actorView{
		entry:      audience[actorID],
		explicit:   map[int64]accesscontrol.Level{},
		fieldNames: map[int64]string{},
	}

	var rowPerms []models.RowPermission
	if err := m.db.WithContext(ctx).
		Where("table_id = ? AND user_id = ?", tableID, actorID).
		Find(&rowPerms).Error; err != nil {
		return nil, fmt.Errorf("masking: load row permissions: %w", err)
	}
	for _, perm := range rowPerms {
		view.explicit[perm.RowID] = accesscontrol.Level(perm.Level)
	}

	if err := m.db.WithContext(ctx).
		Where("table_id = ? AND is_active = ?", tableID, true).
		Order("priority DESC, id ASC").
		Find(&view.rules).Error; err != nil {
		return nil, fmt.Errorf("masking: load condition rules: %w", err)
	}

	var fields []models.Field
	if err := m.db.WithContext(ctx).Where("table_id = ?", tableID).Find(&fields).Error; err != nil {
		return nil, fmt.Errorf("masking: load fields: %w", err)
	}
	for _, field := range fields {
		view.fieldNames[field.ID] = field.Name
	}

	return view, nil
}

func (m *ResponseMasker) actorIsAdmin(ctx context.Context, actorID, tableID int64) (bool, error) {
	var member models.WorkspaceMember
	err := m.db.WithContext(ctx).
		Joins("JOIN databases ON databases.workspace_id = workspace_members.workspace_id").
		Joins("JOIN tables ON tables.database_id = databases.id").
		Where("tables.id = ? AND workspace_members.user_id = ?", tableID, actorID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("masking: workspace role lookup: %w", err)
	}
	return member.IsAdmin(), nil
}

func (v *actorView) empty() bool {
	return len(v.entry.InvisibleRowIDs) == 0 &&
		len(v.entry.HiddenFieldIDs) == 0 &&
		len(v.explicit) == 0 &&
		len(v.rules) == 0
}

// rowMasked resolves whole-row visibility: an explicit permission wins,
// otherwise active condition rules decide.
func (v *actorView) rowMasked(actorID int64, row map[string]any) bool {
	if id, ok := payloadRowID(row); ok {
		if level, ok := v.explicit[id]; ok {
			return level.Rank() == 0
		}
	}
	if len(v.rules) == 0 {
		return false
	}
	level, matched := accesscontrol.EvaluateRules(actorID, v.rules, row, v.fieldNames)
	return matched && level.Rank() == 0
}

func (v *actorView) maskObject(actorID int64, row map[string]any, names map[int64]string) map[string]any {
	wholeRow := v.rowMasked(actorID, row)
	if wholeRow {
		metrics.MaskedRows.WithLabelValues("response").Inc()
	}
	return MaskRow(row, v.entry.HiddenFieldSet(), wholeRow, names)
}

func (v *actorView) maskList(actorID int64, rows []any, names map[int64]string) []any {
	masked := make([]any, len(rows))
	for i, item := range rows {
		if row, ok := item.(map[string]any); ok {
			masked[i] = v.maskObject(actorID, row, names)
			continue
		}
		masked[i] = item
	}
	return masked
}

func payloadRowID(row map[string]any) (int64, bool) {
	switch v := row["id"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
