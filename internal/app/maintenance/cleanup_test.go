package maintenance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/cache"
	"github.com/gridbasehq/gridbase/internal/models"
	"github.com/gridbasehq/gridbase/internal/services"
)

func setupCleanerDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AuditLog{}, &models.CacheEntry{}))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestRunOncePrunesAuditAndCache(t *testing.T) {
	db := setupCleanerDB(t)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	store := cache.NewDatabaseStore(db)

	old := models.AuditLog{Action: "grant.table.set", Result: "success"}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Model(&old).
		Update("created_at", time.Now().UTC().AddDate(0, 0, -120)).Error)
	require.NoError(t, db.Create(&models.AuditLog{Action: "grant.row.set", Result: "success"}).Error)

	require.NoError(t, store.Set(context.Background(), "stale", []byte("x"), time.Millisecond))
	require.NoError(t, store.Set(context.Background(), "fresh", []byte("y"), time.Hour))
	time.Sleep(5 * time.Millisecond)

	cleaner := NewCleaner(audit, store, WithAuditRetentionDays(90))
	require.NoError(t, cleaner.RunOnce(context.Background()))

	var auditCount int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&auditCount).Error)
	require.Equal(t, int64(1), auditCount)

	var cacheCount int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&cacheCount).Error)
	require.Equal(t, int64(1), cacheCount)
}

func TestRunOnceWithoutDependencies(t *testing.T) {
	cleaner := NewCleaner(nil, nil)
	require.NoError(t, cleaner.RunOnce(context.Background()))
}

func TestStartRegistersJobs(t *testing.T) {
	db := setupCleanerDB(t)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	cleaner := NewCleaner(audit, cache.NewDatabaseStore(db))
	require.NoError(t, cleaner.Start())
	<-cleaner.Stop().Done()
}
