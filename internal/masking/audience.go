package masking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/cache"
	"github.com/gridbasehq/gridbase/internal/models"
	"github.com/gridbasehq/gridbase/pkg/logger"
	"github.com/gridbasehq/gridbase/pkg/metrics"
)

const (
	defaultAudienceTTL     = 30 * time.Second
	defaultLookupTimeout   = 2 * time.Second
	audienceCacheKeyFormat = "masking:table:%d"
)

// Entry lists what must be obscured from one user on one table.
type Entry struct {
	InvisibleRowIDs []int64 `json:"invisible_row_ids"`
	HiddenFieldIDs  []int64 `json:"hidden_field_ids"`
}

// RowInvisible reports whether the row's content is blanked for this user.
func (e Entry) RowInvisible(rowID int64) bool {
	for _, id := range e.InvisibleRowIDs {
		if id == rowID {
			return true
		}
	}
	return false
}

// HiddenFieldSet returns the hidden field ids as a set for MaskRow.
func (e Entry) HiddenFieldSet() map[int64]struct{} {
	set := make(map[int64]struct{}, len(e.HiddenFieldIDs))
	for _, id := range e.HiddenFieldIDs {
		set[id] = struct{}{}
	}
	return set
}

// Audience maps user id to their masking entry for a table. Users without
// any invisible-row or hidden-field grant are absent.
type Audience map[int64]Entry

// AudienceResolver computes per-table masking audiences from explicit
// permission records, cached with a short TTL. Reads are concurrent; cache
// recomputation is serialised per table. Cache failures degrade to direct
// queries, never to a permission outcome.
type AudienceResolver struct {
	db            *gorm.DB
	store         cache.Store
	ttl           time.Duration
	lookupTimeout time.Duration
	log           *zap.Logger

	mu         sync.Mutex
	tableLocks map[int64]*sync.Mutex
}

// ResolverOption customises an AudienceResolver.
type ResolverOption func(*AudienceResolver)

// WithTTL overrides the audience cache TTL.
func WithTTL(ttl time.Duration) ResolverOption {
	return func(r *AudienceResolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLookupTimeout bounds how long a cache lookup may block before the
// resolver falls back to an uncached query.
func WithLookupTimeout(timeout time.Duration) ResolverOption {
	return func(r *AudienceResolver) {
		if timeout > 0 {
			r.lookupTimeout = timeout
		}
	}
}

// NewAudienceResolver constructs a resolver. The cache store is optional;
// without one every call queries the permission records directly.
func NewAudienceResolver(db *gorm.DB, store cache.Store, opts ...ResolverOption) (*AudienceResolver, error) {
	if db == nil {
		return nil, errors.New("masking: db is required")
	}

	r := &AudienceResolver{
		db:            db,
		store:         store,
		ttl:           defaultAudienceTTL,
		lookupTimeout: defaultLookupTimeout,
		log:           logger.WithModule("masking"),
		tableLocks:    make(map[int64]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Audience returns the masking audience for a table, serving from cache when
// possible.
func (r *AudienceResolver) Audience(ctx context.Context, tableID int64) (Audience, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if r.store == nil {
		return r.compute(ctx, tableID)
	}

	key := fmt.Sprintf(audienceCacheKeyFormat, tableID)

	if audience, ok := r.cachedAudience(ctx, key); ok {
		metrics.AudienceCacheLookups.WithLabelValues("hit").Inc()
		return audience, nil
	}

	lock := r.tableLock(tableID)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have repopulated the entry while we waited.
	if audience, ok := r.cachedAudience(ctx, key); ok {
		metrics.AudienceCacheLookups.WithLabelValues("hit").Inc()
		return audience, nil
	}
	metrics.AudienceCacheLookups.WithLabelValues("miss").Inc()

	audience, err := r.compute(ctx, tableID)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(audience)
	if err == nil {
		cacheCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
		if err := r.store.Set(cacheCtx, key, encoded, r.ttl); err != nil {
			r.log.Warn("audience cache write failed", zap.Int64("table_id", tableID), zap.Error(err))
		}
		cancel()
	}

	return audience, nil
}

// Invalidate drops the cached audience for a table. GrantService calls this
// in the same unit of work as any row or field permission write so no
// dependent read observes the stale entry.
func (r *AudienceResolver) Invalidate(ctx context.Context, tableID int64) error {
	if r.store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return r.store.Delete(ctx, fmt.Sprintf(audienceCacheKeyFormat, tableID))
}

func (r *AudienceResolver) cachedAudience(ctx context.Context, key string) (Audience, bool) {
	cacheCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	raw, ok, err := r.store.Get(cacheCtx, key)
	if err != nil {
		metrics.AudienceCacheLookups.WithLabelValues("error").Inc()
		r.log.Warn("audience cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var audience Audience
	if err := json.Unmarshal(raw, &audience); err != nil {
		metrics.AudienceCacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	return audience, true
}

// compute queries the explicit invisible-row and hidden-field grants for a
// table. Condition-rule invisibility is resolved per row at mask time, not
// here.
func (r *AudienceResolver) compute(ctx context.Context, tableID int64) (Audience, error) {
	audience := Audience{}

	var rowPerms []models.RowPermission
	if err := r.db.WithContext(ctx).
		Where("table_id = ? AND level = ?", tableID, "invisible").
		Find(&rowPerms).Error; err != nil {
		return nil, fmt.Errorf("masking: load row permissions: %w", err)
	}
	for _, perm := range rowPerms {
		entry := audience[perm.UserID]
		entry.InvisibleRowIDs = append(entry.InvisibleRowIDs, perm.RowID)
		audience[perm.UserID] = entry
	}

	var fieldPerms []models.FieldPermission
	if err := r.db.WithContext(ctx).
		Where("table_id = ? AND level = ?", tableID, "hidden").
		Find(&fieldPerms).Error; err != nil {
		return nil, fmt.Errorf("masking: load field permissions: %w", err)
	}
	for _, perm := range fieldPerms {
		entry := audience[perm.UserID]
		entry.HiddenFieldIDs = append(entry.HiddenFieldIDs, perm.FieldID)
		audience[perm.UserID] = entry
	}

	return audience, nil
}

func (r *AudienceResolver) tableLock(tableID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.tableLocks[tableID]
	if !ok {
		lock = &sync.Mutex{}
		r.tableLocks[tableID] = lock
	}
	return lock
}
