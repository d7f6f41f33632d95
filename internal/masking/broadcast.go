package masking

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/models"
	"github.com/gridbasehq/gridbase/pkg/logger"
	"github.com/gridbasehq/gridbase/pkg/metrics"
)

// Row change event types.
const (
	EventRowsCreated = "rows_created"
	EventRowsUpdated = "rows_updated"
	EventRowsDeleted = "rows_deleted"
)

// Sender is the realtime delivery surface the broadcast masker fans out to.
// The hub implements it.
type Sender interface {
	BroadcastStream(stream string, payload any, excludeUserIDs []int64)
	SendToUser(stream string, userID int64, payload any)
}

// RowChangeEvent describes one committed row mutation on a table.
type RowChangeEvent struct {
	Type             string           `json:"type"`
	TableID          int64            `json:"table_id"`
	Rows             []map[string]any `json:"rows"`
	RowsBeforeUpdate []map[string]any `json:"rows_before_update,omitempty"`
}

// BroadcastMasker is the BeforeSend hook the write path calls once per
// committed row change. Users who need masking are excluded from the default
// broadcast and each receives an individually masked copy instead. Delivery
// runs on its own goroutine so the triggering write never blocks; the
// audience is computed after commit, when Publish is called.
type BroadcastMasker struct {
	db       *gorm.DB
	resolver *AudienceResolver
	sender   Sender
	log      *zap.Logger

	// dispatch is swapped out by tests to run deliveries synchronously.
	dispatch func(func())
}

// NewBroadcastMasker constructs a BroadcastMasker.
func NewBroadcastMasker(db *gorm.DB, resolver *AudienceResolver, sender Sender) (*BroadcastMasker, error) {
	if db == nil {
		return nil, errors.New("masking: db is required")
	}
	if resolver == nil {
		return nil, errors.New("masking: audience resolver is required")
	}
	if sender == nil {
		return nil, errors.New("masking: sender is required")
	}
	return &BroadcastMasker{
		db:       db,
		resolver: resolver,
		sender:   sender,
		log:      logger.WithModule("masking"),
		dispatch: func(fn func()) { go fn() },
	}, nil
}

// StreamName returns the realtime stream carrying a table's row changes.
func StreamName(tableID int64) string {
	return fmt.Sprintf("table:%d", tableID)
}

// Publish fans the event out. Call after the transaction that produced the
// change has committed.
func (b *BroadcastMasker) Publish(event RowChangeEvent) {
	b.dispatch(func() {
		b.deliver(context.Background(), event)
	})
}

func (b *BroadcastMasker) deliver(ctx context.Context, event RowChangeEvent) {
	stream := StreamName(event.TableID)

	audience, err := b.resolver.Audience(ctx, event.TableID)
	if err != nil {
		// Fail closed: without the audience there is no way to know who must
		// not see the unmasked payload, so the event is dropped. Clients
		// recover on their next fetch.
		b.log.Error("broadcast dropped: audience lookup failed",
			zap.Int64("table_id", event.TableID),
			zap.Error(err),
		)
		return
	}

	maskedUsers := b.nonAdminAudience(ctx, event.TableID, audience)

	exclude := make([]int64, 0, len(maskedUsers))
	for userID := range maskedUsers {
		exclude = append(exclude, userID)
	}

	b.sender.BroadcastStream(stream, event, exclude)

	for userID, entry := range maskedUsers {
		b.sender.SendToUser(stream, userID, b.maskEvent(event, entry))
	}
}

// nonAdminAudience drops workspace admins from the audience; masking never
// applies to them even when grant records exist.
func (b *BroadcastMasker) nonAdminAudience(ctx context.Context, tableID int64, audience Audience) Audience {
	if len(audience) == 0 {
		return audience
	}

	userIDs := make([]int64, 0, len(audience))
	for userID := range audience {
		userIDs = append(userIDs, userID)
	}

	var admins []int64
	err := b.db.WithContext(ctx).Model(&models.WorkspaceMember{}).
		Joins("JOIN databases ON databases.workspace_id = workspace_members.workspace_id").
		Joins("JOIN tables ON tables.database_id = databases.id").
		Where("tables.id = ? AND workspace_members.role = ? AND workspace_members.user_id IN ?",
			tableID, models.RoleAdmin, userIDs).
		Pluck("workspace_members.user_id", &admins).Error
	if err != nil {
		b.log.Warn("broadcast admin filter failed", zap.Int64("table_id", tableID), zap.Error(err))
		return audience
	}

	for _, adminID := range admins {
		delete(audience, adminID)
	}
	return audience
}

// maskEvent produces the per-user copy, masking both the after-state rows
// and, for updates, the before-state rows.
func (b *BroadcastMasker) maskEvent(event RowChangeEvent, entry Entry) RowChangeEvent {
	masked := RowChangeEvent{
		Type:    event.Type,
		TableID: event.TableID,
		Rows:    b.maskRows(event.Rows, entry),
	}
	if event.RowsBeforeUpdate != nil {
		masked.RowsBeforeUpdate = b.maskRows(event.RowsBeforeUpdate, entry)
	}
	return masked
}

func (b *BroadcastMasker) maskRows(rows []map[string]any, entry Entry) []map[string]any {
	hidden := entry.HiddenFieldSet()
	masked := make([]map[string]any, len(rows))
	for i, row := range rows {
		wholeRow := false
		if id, ok := payloadRowID(row); ok {
			wholeRow = entry.RowInvisible(id)
		}
		if wholeRow {
			metrics.MaskedRows.WithLabelValues("broadcast").Inc()
		}
		masked[i] = MaskRow(row, hidden, wholeRow, nil)
	}
	return masked
}
