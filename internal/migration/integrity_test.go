package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacare-backend/internal/models"
)

func issueByCategory(issues []Issue, category string) *Issue {
	for i := range issues {
		if issues[i].Category == category {
			return &issues[i]
		}
	}
	return nil
}

func warningByCategory(warnings []Warning, category string) *Warning {
	for i := range warnings {
		if warnings[i].Category == category {
			return &warnings[i]
		}
	}
	return nil
}

func TestCheckOrphanedRecordsCleanDatabase(t *testing.T) {
	db := openTestDB(t)

	checker := NewChecker(db)
	result, err := checker.CheckOrphanedRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Issues)
	assert.Empty(t, result.Warnings)
}

func TestCheckOrphanedRecordsFindings(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)

	// An unmigrated user with a legacy subscription.
	seedLegacyUser(t, db, plan.ID, "active")

	// A subscription whose owner reference resolves to nobody.
	ghostUser := uint(4242)
	orphan := models.Subscription{UserID: &ghostUser, PlanID: plan.ID, Status: "active"}
	require.NoError(t, db.Create(&orphan).Error)

	// A workspace with no owner.
	require.NoError(t, db.Create(&models.Workplace{Name: "Ownerless"}).Error)

	checker := NewChecker(db)
	result, err := checker.CheckOrphanedRecords(context.Background())
	require.NoError(t, err)

	noWorkplace := issueByCategory(result.Issues, "users_without_workplace")
	require.NotNil(t, noWorkplace)
	assert.Equal(t, SeverityError, noWorkplace.Severity)
	assert.Equal(t, 1, noWorkplace.Count)

	legacy := issueByCategory(result.Issues, "legacy_user_subscriptions")
	require.NotNil(t, legacy)
	assert.Equal(t, SeverityError, legacy.Severity)
	assert.Equal(t, 2, legacy.Count, "both the seeded and the orphaned user-owned subscription")

	fullyOrphaned := issueByCategory(result.Issues, "fully_orphaned_subscriptions")
	require.NotNil(t, fullyOrphaned)
	assert.Equal(t, SeverityCritical, fullyOrphaned.Severity)
	assert.Equal(t, 1, fullyOrphaned.Count)

	ownerless := issueByCategory(result.Issues, "workplaces_without_owner")
	require.NotNil(t, ownerless)
	assert.Equal(t, SeverityCritical, ownerless.Severity)
}

func TestCheckOrphanedRecordsIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	seedLegacyUser(t, db, plan.ID, "active")

	checker := NewChecker(db)
	first, err := checker.CheckOrphanedRecords(context.Background())
	require.NoError(t, err)
	second, err := checker.CheckOrphanedRecords(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second, "scans are read-only; repeated runs must agree")
}

func TestCheckDataConsistencyFindings(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)

	// A user pointing at a workspace that does not exist.
	missingWorkplace := uint(7777)
	user := models.User{Email: "lost@example.com", Status: "active", WorkplaceID: &missingWorkplace}
	require.NoError(t, db.Create(&user).Error)

	// A workspace pointing at a subscription that does not exist.
	missingSub := uint(8888)
	wp := models.Workplace{Name: "Dangling", OwnerID: user.ID, CurrentSubscriptionID: &missingSub}
	require.NoError(t, db.Create(&wp).Error)

	// A workspace subscription its workspace does not link back to.
	sub := models.Subscription{WorkplaceID: &wp.ID, PlanID: plan.ID, Status: "active"}
	require.NoError(t, db.Create(&sub).Error)

	checker := NewChecker(db)
	result, err := checker.CheckDataConsistency(context.Background())
	require.NoError(t, err)

	badWorkplaceRefs := issueByCategory(result.Issues, "invalid_workplace_refs")
	require.NotNil(t, badWorkplaceRefs)
	assert.Equal(t, SeverityError, badWorkplaceRefs.Severity)

	badSubRefs := issueByCategory(result.Issues, "invalid_subscription_refs")
	require.NotNil(t, badSubRefs)
	assert.Equal(t, SeverityError, badSubRefs.Severity)

	backlink := warningByCategory(result.Warnings, "subscription_backlink_mismatch")
	require.NotNil(t, backlink)
	assert.Equal(t, ImpactHigh, backlink.Impact)
}

func TestCheckDataConsistencyCleanAfterMigration(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	seedLegacyUser(t, db, plan.ID, "active")

	_, err := NewEngine(db).Migrate(context.Background())
	require.NoError(t, err)

	checker := NewChecker(db)
	result, err := checker.CheckDataConsistency(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Issues)
	assert.Empty(t, result.Warnings)
}
