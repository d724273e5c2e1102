package migration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacare-backend/internal/models"
)

func TestProgressSaveLoadCleanup(t *testing.T) {
	db := openTestDB(t)
	store := NewProgressStore(db, MigrationName)
	ctx := context.Background()

	loaded, err := store.LoadProgress(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded, "no progress recorded yet")

	started := time.Now().Add(-time.Minute)
	require.NoError(t, store.SaveProgress(ctx, &models.MigrationProgress{
		TotalItems:     10,
		ProcessedItems: 4,
		FailedItems:    1,
		StartedAt:      started,
		Errors: []models.MigrationError{
			{ItemID: "3", Error: "boom", Timestamp: time.Now()},
		},
	}))

	loaded, err = store.LoadProgress(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, MigrationName, loaded.MigrationName)
	assert.Equal(t, 10, loaded.TotalItems)
	assert.Equal(t, 4, loaded.ProcessedItems)
	require.Len(t, loaded.Errors, 1)
	assert.Equal(t, "boom", loaded.Errors[0].Error)
	assert.Nil(t, loaded.CompletedAt)

	// A save replaces the row wholesale; only one row per migration.
	now := time.Now()
	require.NoError(t, store.SaveProgress(ctx, &models.MigrationProgress{
		TotalItems:     10,
		ProcessedItems: 10,
		StartedAt:      started,
		CompletedAt:    &now,
	}))

	var rows int64
	require.NoError(t, db.Model(&models.MigrationProgress{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)

	loaded, err = store.LoadProgress(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 10, loaded.ProcessedItems)
	assert.NotNil(t, loaded.CompletedAt)
	assert.Zero(t, loaded.FailedItems)

	require.NoError(t, store.Cleanup(ctx))
	loaded, err = store.LoadProgress(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestProgressIsolatedPerMigrationName(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := NewProgressStore(db, "workspace_subscriptions")
	other := NewProgressStore(db, "another_migration")

	require.NoError(t, first.SaveProgress(ctx, &models.MigrationProgress{TotalItems: 5}))

	loaded, err := other.LoadProgress(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, other.Cleanup(ctx))
	loaded, err = first.LoadProgress(ctx)
	require.NoError(t, err)
	assert.NotNil(t, loaded, "cleanup only touches its own migration")
}

func TestBackupBookkeeping(t *testing.T) {
	db := openTestDB(t)
	store := NewProgressStore(db, MigrationName)
	ctx := context.Background()

	empty, err := store.GetBackupStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.BackupCount)
	assert.Nil(t, empty.LatestBackup)

	require.NoError(t, store.RecordBackup(ctx, "users", 120, "pre-migration"))
	require.NoError(t, store.RecordBackup(ctx, "subscriptions", 80, "pre-migration"))
	require.NoError(t, store.RecordBackup(ctx, "users", 5, "retry"))

	stats, err := store.GetBackupStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.BackupCount)
	assert.EqualValues(t, 205, stats.TotalDocuments)
	assert.EqualValues(t, 125, stats.Collections["users"])
	assert.EqualValues(t, 80, stats.Collections["subscriptions"])
	require.NotNil(t, stats.LatestBackup)
}
