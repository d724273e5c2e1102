package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacare-backend/internal/models"
)

func TestMapSubscriptionStatus(t *testing.T) {
	cases := map[string]string{
		"trial":        models.SubscriptionStatusTrial,
		"active":       models.SubscriptionStatusActive,
		"grace_period": models.SubscriptionStatusPastDue,
		"inactive":     models.SubscriptionStatusPastDue,
		"expired":      models.SubscriptionStatusExpired,
		"cancelled":    models.SubscriptionStatusCanceled,
		"suspended":    models.SubscriptionStatusCanceled,
		"":             models.SubscriptionStatusTrial,
		"garbage":      models.SubscriptionStatusTrial,
	}
	for legacy, want := range cases {
		assert.Equal(t, want, MapSubscriptionStatus(legacy), "legacy status %q", legacy)
	}
}

func TestTempLicenseNumber(t *testing.T) {
	assert.Equal(t, "TEMP-000042", tempLicenseNumber(42))
	assert.Equal(t, "TEMP-234567", tempLicenseNumber(1234567))
}

func TestMigrateSingleUser(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	user, legacy := seedLegacyUser(t, db, plan.ID, "active")

	engine := NewEngine(db)
	result, err := engine.Migrate(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.WorkspacesCreated)
	assert.Equal(t, 1, result.SubscriptionsMigrated)
	assert.Equal(t, 1, result.UsersUpdated)

	var migrated models.User
	require.NoError(t, db.First(&migrated, user.ID).Error)
	require.NotNil(t, migrated.WorkplaceID)
	assert.Equal(t, models.WorkplaceRoleOwner, migrated.WorkplaceRole)
	assert.Nil(t, migrated.CurrentSubscriptionID, "legacy pointer must be cleared")

	var workplace models.Workplace
	require.NoError(t, db.First(&workplace, *migrated.WorkplaceID).Error)
	assert.Equal(t, "Ada Okafor's Pharmacy", workplace.Name)
	assert.Equal(t, user.ID, workplace.OwnerID)
	assert.Equal(t, "PCN-12345", workplace.LicenseNumber)
	assert.Equal(t, models.VerificationVerified, workplace.VerificationStatus)
	assert.True(t, workplace.HasTeamMember(user.ID))
	assert.Equal(t, models.SubscriptionStatusActive, workplace.SubscriptionStatus)
	require.NotNil(t, workplace.CurrentSubscriptionID)
	require.NotNil(t, workplace.CurrentPlanID)
	assert.Equal(t, plan.ID, *workplace.CurrentPlanID)
	require.NotNil(t, workplace.Stats)
	require.NotNil(t, workplace.Settings)
	require.Len(t, workplace.Locations, 1)
	assert.True(t, workplace.Locations[0].IsPrimary)

	var wsSub models.Subscription
	require.NoError(t, db.First(&wsSub, *workplace.CurrentSubscriptionID).Error)
	require.NotNil(t, wsSub.WorkplaceID)
	assert.Equal(t, workplace.ID, *wsSub.WorkplaceID)
	assert.Nil(t, wsSub.UserID)
	assert.Equal(t, legacy.Status, wsSub.Status)
	assert.Equal(t, legacy.PlanID, wsSub.PlanID)
	assert.Equal(t, "monthly", wsSub.BillingInterval)
	require.NotNil(t, wsSub.Limits)
	assert.Equal(t, 1, wsSub.Limits.Locations)
}

func TestMigrateUsesTempLicenseWhenMissing(t *testing.T) {
	db := openTestDB(t)

	user := models.User{FirstName: "Ngozi", LastName: "Eze", Email: "ngozi@example.com", Status: "active"}
	require.NoError(t, db.Create(&user).Error)

	engine := NewEngine(db)
	result, err := engine.Migrate(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)

	var workplace models.Workplace
	require.NoError(t, db.Where("owner_id = ?", user.ID).First(&workplace).Error)
	assert.Equal(t, tempLicenseNumber(user.ID), workplace.LicenseNumber)
	assert.Equal(t, models.VerificationUnverified, workplace.VerificationStatus)
	assert.Equal(t, models.SubscriptionStatusTrial, workplace.SubscriptionStatus)
}

func TestMigrateSecondRunIsNoop(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	seedLegacyUser(t, db, plan.ID, "active")

	engine := NewEngine(db)
	_, err := engine.Migrate(context.Background())
	require.NoError(t, err)

	again, err := engine.Migrate(context.Background())
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Zero(t, again.WorkspacesCreated)
	assert.Zero(t, again.SubscriptionsMigrated)
	assert.Zero(t, again.UsersUpdated)

	var workplaceCount int64
	require.NoError(t, db.Model(&models.Workplace{}).Count(&workplaceCount).Error)
	assert.EqualValues(t, 1, workplaceCount)
}

func TestMigrateWithDanglingLegacyPointer(t *testing.T) {
	db := openTestDB(t)

	missing := uint(9999)
	user := models.User{
		FirstName:             "Tunde",
		LastName:              "Bello",
		Email:                 "tunde@example.com",
		Status:                "active",
		CurrentSubscriptionID: &missing,
	}
	require.NoError(t, db.Create(&user).Error)

	engine := NewEngine(db)
	result, err := engine.Migrate(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success, "dangling pointers are skipped, not errors")
	assert.Equal(t, 1, result.WorkspacesCreated)
	assert.Zero(t, result.SubscriptionsMigrated)
}

func TestBackfillWorkplaces(t *testing.T) {
	db := openTestDB(t)

	owner := models.User{FirstName: "Bisi", LastName: "Ade", Email: "bisi@example.com", Status: "active"}
	require.NoError(t, db.Create(&owner).Error)

	bare := models.Workplace{Name: "Old Pharmacy", OwnerID: owner.ID, Address: "12 Allen Ave"}
	bare.AddTeamMember(owner.ID)
	require.NoError(t, db.Create(&bare).Error)
	require.NoError(t, db.Model(&owner).Updates(map[string]interface{}{
		"workplace_id":   bare.ID,
		"workplace_role": models.WorkplaceRoleOwner,
	}).Error)

	engine := NewEngine(db)
	result, err := engine.Migrate(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)

	var filled models.Workplace
	require.NoError(t, db.First(&filled, bare.ID).Error)
	assert.Equal(t, models.SubscriptionStatusTrial, filled.SubscriptionStatus)
	require.NotNil(t, filled.Stats)
	assert.Equal(t, 1, filled.Stats.UsersCount)
	require.NotNil(t, filled.Settings)
	assert.Equal(t, 20, filled.Settings.MaxPendingInvites)
	require.Len(t, filled.Locations, 1)
	assert.Equal(t, "12 Allen Ave", filled.Locations[0].Address)
}

func TestRollbackRevertsOwnershipOnly(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	user, _ := seedLegacyUser(t, db, plan.ID, "active")

	engine := NewEngine(db)
	_, err := engine.Migrate(context.Background())
	require.NoError(t, err)

	result, err := engine.Rollback(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.SubscriptionsReverted)

	var wsSubs int64
	require.NoError(t, db.Model(&models.Subscription{}).Where("workplace_id IS NOT NULL").Count(&wsSubs).Error)
	assert.Zero(t, wsSubs)

	var reverted models.Subscription
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&reverted).Error)
	assert.Equal(t, "active", reverted.Status)

	var owner models.User
	require.NoError(t, db.First(&owner, user.ID).Error)
	require.NotNil(t, owner.CurrentSubscriptionID)
	assert.Equal(t, reverted.ID, *owner.CurrentSubscriptionID)

	// The workspace itself survives rollback.
	var workplaces int64
	require.NoError(t, db.Model(&models.Workplace{}).Count(&workplaces).Error)
	assert.EqualValues(t, 1, workplaces)
}

func TestValidateMigrationReportsIncompleteness(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	seedLegacyUser(t, db, plan.ID, "active")

	engine := NewEngine(db)

	before, err := engine.ValidateMigration(context.Background())
	require.NoError(t, err)
	assert.False(t, before.Valid)
	assert.NotEmpty(t, before.Issues)

	_, err = engine.Migrate(context.Background())
	require.NoError(t, err)

	after, err := engine.ValidateMigration(context.Background())
	require.NoError(t, err)
	assert.True(t, after.Valid)
	assert.Empty(t, after.Issues)
	assert.EqualValues(t, 1, after.Stats.MigratedUsers)
	assert.Zero(t, after.Stats.LegacyUserSubscriptions)
}
