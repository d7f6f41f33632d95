package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/models"
)

// AuditService persists access-control audit events.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, fmt.Errorf("audit service requires database handle")
	}
	return &AuditService{db: db}, nil
}

// AuditEntry describes a single audit event.
type AuditEntry struct {
	UserID   *int64
	Action   string
	Resource string
	Result   string
	Metadata map[string]any
}

// AuditFilters narrows audit queries.
type AuditFilters struct {
	UserID   *int64
	Action   string
	Resource string
	Result   string
	From     *time.Time
	To       *time.Time
}

// AuditListOptions paginates audit queries.
type AuditListOptions struct {
	Filters  AuditFilters
	Page     int
	PageSize int
}

// AuditPage is a page of audit records.
type AuditPage struct {
	Logs     []models.AuditLog
	Total    int64
	Page     int
	PageSize int
}

const (
	auditDefaultPageSize = 50
	auditMaxPageSize     = 200
)

// Log stores an audit event. Metadata is serialized to JSON; a serialization
// failure is recorded in place of the metadata rather than dropping the event.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	record := models.AuditLog{
		UserID:   entry.UserID,
		Action:   strings.TrimSpace(entry.Action),
		Resource: strings.TrimSpace(entry.Resource),
		Result:   strings.TrimSpace(entry.Result),
	}
	if record.Action == "" {
		return fmt.Errorf("audit: action is required")
	}
	if record.Result == "" {
		record.Result = "success"
	}

	if len(entry.Metadata) > 0 {
		payload, err := json.Marshal(entry.Metadata)
		if err != nil {
			payload = []byte(fmt.Sprintf(`{"metadata_error":%q}`, err.Error()))
		}
		record.Metadata = string(payload)
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("audit: create log: %w", err)
	}
	return nil
}

// List returns a page of audit logs, most recent first.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) (*AuditPage, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = auditDefaultPageSize
	}
	if pageSize > auditMaxPageSize {
		pageSize = auditMaxPageSize
	}

	query := applyAuditFilters(s.db.WithContext(ctx).Model(&models.AuditLog{}), opts.Filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("audit: count logs: %w", err)
	}

	var logs []models.AuditLog
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("audit: list logs: %w", err)
	}

	return &AuditPage{Logs: logs, Total: total, Page: page, PageSize: pageSize}, nil
}

// CleanupOlderThan deletes audit logs older than the retention window and
// returns the number of rows removed.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit: cleanup logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		query = query.Where("action = ?", action)
	}
	if resource := strings.TrimSpace(filters.Resource); resource != "" {
		query = query.Where("resource = ?", resource)
	}
	if result := strings.TrimSpace(filters.Result); result != "" {
		query = query.Where("result = ?", result)
	}
	if filters.From != nil {
		query = query.Where("created_at >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("created_at <= ?", *filters.To)
	}
	return query
}
