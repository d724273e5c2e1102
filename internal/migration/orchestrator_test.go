package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacare-backend/internal/models"
)

func TestDryRunDoesNotMutate(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	seedLegacyUser(t, db, plan.ID, "active")

	count := func(model interface{}) int64 {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		return n
	}
	usersBefore := count(&models.User{})
	workplacesBefore := count(&models.Workplace{})
	subsBefore := count(&models.Subscription{})

	orch := NewOrchestrator(db, nil)
	result, err := orch.DryRun(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, result.WorkspacesToCreate)
	assert.EqualValues(t, 1, result.UsersToUpdate)
	assert.EqualValues(t, 1, result.SubscriptionsToMigrate)
	assert.NotEmpty(t, result.Issues, "pre-migration state has known findings")

	assert.Equal(t, usersBefore, count(&models.User{}))
	assert.Equal(t, workplacesBefore, count(&models.Workplace{}))
	assert.Equal(t, subsBefore, count(&models.Subscription{}))
}

func TestExecuteMigrationDryRunOption(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	seedLegacyUser(t, db, plan.ID, "active")

	orch := NewOrchestrator(db, nil)
	opts := DefaultOptions()
	opts.DryRun = true

	result, err := orch.ExecuteMigration(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.Migration, "dry run never reaches the engine")

	var workplaces int64
	require.NoError(t, db.Model(&models.Workplace{}).Count(&workplaces).Error)
	assert.Zero(t, workplaces)
}

func TestExecuteMigrationLifecycle(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	seedLegacyUser(t, db, plan.ID, "active")

	orch := NewOrchestrator(db, nil)
	assert.Equal(t, StateIdle, orch.State())

	result, err := orch.ExecuteMigration(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, StateDone, orch.State())

	assert.True(t, result.Success)
	require.NotNil(t, result.Migration)
	assert.Equal(t, 1, result.Migration.WorkspacesCreated)
	require.NotNil(t, result.Validation)
	assert.True(t, result.Validation.Valid)
	require.NotNil(t, result.IntegrityCheck)
	assert.Empty(t, result.IntegrityCheck.Issues)

	require.NotNil(t, result.BackupStats)
	assert.EqualValues(t, 3, result.BackupStats.BackupCount, "one bookkeeping row per collection")

	// A clean run leaves no progress row behind.
	progress, err := orch.Progress().LoadProgress(context.Background())
	require.NoError(t, err)
	assert.Nil(t, progress)
}

func TestExecuteMigrationSurfacesPostCheckFindings(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	user, _ := seedLegacyUser(t, db, plan.ID, "active")

	// A workspace pointing at a missing subscription taints the
	// post-run consistency picture without stopping the engine.
	ghost := uint(31337)
	require.NoError(t, db.Create(&models.Workplace{
		Name:                  "Broken",
		OwnerID:               user.ID,
		CurrentSubscriptionID: &ghost,
		SubscriptionStatus:    models.SubscriptionStatusTrial,
		Stats:                 &models.WorkplaceStats{UsersCount: 1},
		Settings:              &models.WorkplaceSettings{MaxPendingInvites: 20},
		Locations:             []models.WorkplaceLocation{{ID: "primary", Name: "Broken", IsPrimary: true}},
	}).Error)

	orch := NewOrchestrator(db, nil)
	result, err := orch.ExecuteMigration(context.Background(), DefaultOptions())
	require.NoError(t, err)

	require.NotNil(t, result.IntegrityCheck)
	assert.NotNil(t, issueByCategory(result.IntegrityCheck.Issues, "invalid_subscription_refs"))
}

func TestExecuteMigrationFailureSavesProgress(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	seedLegacyUser(t, db, plan.ID, "active")

	// Dropping the users table makes the engine run itself fail.
	require.NoError(t, db.Migrator().DropTable(&models.User{}))

	orch := NewOrchestrator(db, nil)
	opts := DefaultOptions()
	opts.EnableIntegrityChecks = false
	opts.EnableBackup = false

	_, err := orch.ExecuteMigration(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, StateFailed, orch.State())

	progress, loadErr := orch.Progress().LoadProgress(context.Background())
	require.NoError(t, loadErr)
	require.NotNil(t, progress, "failed runs leave an inspectable progress row")
	assert.Equal(t, 1, progress.FailedItems)
	require.NotEmpty(t, progress.Errors)
	assert.Nil(t, progress.CompletedAt)
}

func TestExecuteRollbackLifecycle(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	user, _ := seedLegacyUser(t, db, plan.ID, "active")

	orch := NewOrchestrator(db, nil)
	_, err := orch.ExecuteMigration(context.Background(), DefaultOptions())
	require.NoError(t, err)

	result, err := orch.ExecuteRollback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, orch.State())

	assert.True(t, result.Success)
	require.NotNil(t, result.Rollback)
	assert.Equal(t, 1, result.Rollback.SubscriptionsReverted)

	var reverted models.Subscription
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&reverted).Error)
	assert.Nil(t, reverted.WorkplaceID)
}
