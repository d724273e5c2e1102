package migration

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pharmacare-backend/internal/models"
)

// openTestDB returns an isolated in-memory database with the full
// schema. A single connection keeps concurrent count queries
// serialized on the same database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Workplace{},
		&models.Subscription{},
		&models.SubscriptionPlan{},
		&models.MigrationProgress{},
		&models.MigrationBackup{},
	))
	return db
}

func seedPlan(t *testing.T, db *gorm.DB) models.SubscriptionPlan {
	t.Helper()
	plan := models.SubscriptionPlan{Name: fmt.Sprintf("Basic-%d", time.Now().UnixNano()), Tier: "basic"}
	require.NoError(t, db.Create(&plan).Error)
	return plan
}

// seedLegacyUser creates an unmigrated user holding an individual
// subscription, the starting state the migration is built for.
func seedLegacyUser(t *testing.T, db *gorm.DB, planID uint, status string) (models.User, models.Subscription) {
	t.Helper()

	user := models.User{
		FirstName:     "Ada",
		LastName:      "Okafor",
		Email:         fmt.Sprintf("ada-%d@example.com", time.Now().UnixNano()),
		Role:          models.RolePharmacist,
		Status:        "active",
		LicenseStatus: models.LicenseStatusApproved,
		LicenseNumber: "PCN-12345",
	}
	require.NoError(t, db.Create(&user).Error)

	sub := models.Subscription{
		UserID:          &user.ID,
		PlanID:          planID,
		Status:          status,
		Tier:            "basic",
		StartDate:       time.Now().AddDate(0, -1, 0),
		EndDate:         time.Now().AddDate(0, 1, 0),
		BillingInterval: "monthly",
		AutoRenew:       true,
	}
	require.NoError(t, db.Create(&sub).Error)

	user.CurrentSubscriptionID = &sub.ID
	require.NoError(t, db.Save(&user).Error)

	return user, sub
}
