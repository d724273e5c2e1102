package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"pharmacare-backend/internal/models"
)

// Engine performs the one-time rewrite of subscription ownership from
// individual users to workspaces, plus the inverse rollback pass.
type Engine struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewEngine creates a migration engine bound to a database handle.
func NewEngine(db *gorm.DB) *Engine {
	return &Engine{
		db:  db,
		log: logrus.WithField("component", "migration-engine"),
	}
}

// MapSubscriptionStatus maps a legacy subscription status onto the
// workspace subscription status enum. Total over all inputs: anything
// unrecognized maps to trial.
func MapSubscriptionStatus(legacy string) string {
	switch legacy {
	case "trial":
		return models.SubscriptionStatusTrial
	case "active":
		return models.SubscriptionStatusActive
	case "grace_period", "inactive":
		return models.SubscriptionStatusPastDue
	case "expired":
		return models.SubscriptionStatusExpired
	case "cancelled", "suspended":
		return models.SubscriptionStatusCanceled
	default:
		return models.SubscriptionStatusTrial
	}
}

// tempLicenseNumber generates a placeholder license for users who never
// entered one. Uses the last six digits of the user ID.
func tempLicenseNumber(userID uint) string {
	return fmt.Sprintf("TEMP-%06d", userID%1000000)
}

// workspaceLimits are the per-seat limits reset to workspace defaults
// during migration. Locations always starts at one.
func workspaceLimits() *models.SubscriptionLimits {
	return &models.SubscriptionLimits{Locations: 1}
}

// Migrate runs MigrateWithOptions with the default options.
func (e *Engine) Migrate(ctx context.Context) (*MigrateResult, error) {
	return e.MigrateWithOptions(ctx, DefaultOptions())
}

// MigrateWithOptions processes every user without a workspace: it
// creates a workspace per user, moves any legacy individual
// subscription onto the workspace, and backfills missing fields on
// pre-existing workspaces. Users are processed in batches of
// opts.BatchSize. Individual record failures are recorded and, unless
// opts.ContinueOnError is false, never abort the run.
func (e *Engine) MigrateWithOptions(ctx context.Context, opts Options) (*MigrateResult, error) {
	result := &MigrateResult{Errors: []string{}}

	var users []models.User
	if err := e.db.WithContext(ctx).Where("workplace_id IS NULL").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("fetch unassigned users: %w", err)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = len(users)
	}

	e.log.WithFields(logrus.Fields{
		"users":      len(users),
		"batch_size": batchSize,
	}).Info("starting workspace subscription migration")

	for start := 0; start < len(users); start += batchSize {
		end := start + batchSize
		if end > len(users) {
			end = len(users)
		}
		for i := start; i < end; i++ {
			user := &users[i]
			if err := e.migrateUser(ctx, user, result); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("user %d: %v", user.ID, err))
				if !opts.ContinueOnError {
					e.log.WithError(err).WithField("user_id", user.ID).Error("user migration failed, aborting run")
					result.Success = false
					return result, nil
				}
				e.log.WithError(err).WithField("user_id", user.ID).Warn("user migration failed, continuing")
			}
		}
	}

	backfilled, backfillErrs := e.backfillWorkplaces(ctx)
	result.Errors = append(result.Errors, backfillErrs...)

	result.Success = len(result.Errors) == 0
	e.log.WithFields(logrus.Fields{
		"workspaces_created":     result.WorkspacesCreated,
		"subscriptions_migrated": result.SubscriptionsMigrated,
		"users_updated":          result.UsersUpdated,
		"workspaces_backfilled":  backfilled,
		"errors":                 len(result.Errors),
	}).Info("workspace subscription migration finished")

	return result, nil
}

func (e *Engine) migrateUser(ctx context.Context, user *models.User, result *MigrateResult) error {
	db := e.db.WithContext(ctx)

	license := user.LicenseNumber
	if license == "" {
		license = tempLicenseNumber(user.ID)
	}

	verification := models.VerificationUnverified
	if user.LicenseStatus == models.LicenseStatusApproved {
		verification = models.VerificationVerified
	}

	now := time.Now()
	workplace := models.Workplace{
		Name:               fmt.Sprintf("%s's Pharmacy", user.FullName()),
		Type:               "Community",
		LicenseNumber:      license,
		InviteCode:         uuid.NewString()[:8],
		VerificationStatus: verification,
		OwnerID:            user.ID,
		SubscriptionStatus: models.SubscriptionStatusTrial,
		Stats:              &models.WorkplaceStats{UsersCount: 1, LastUpdated: &now},
		Settings:           &models.WorkplaceSettings{MaxPendingInvites: 20},
		Locations: []models.WorkplaceLocation{
			{ID: "primary", Name: fmt.Sprintf("%s's Pharmacy", user.FullName()), Address: "Main Location", IsPrimary: true},
		},
	}
	workplace.AddTeamMember(user.ID)

	if err := db.Create(&workplace).Error; err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	result.WorkspacesCreated++

	user.WorkplaceID = &workplace.ID
	user.WorkplaceRole = models.WorkplaceRoleOwner
	if err := db.Save(user).Error; err != nil {
		return fmt.Errorf("link user to workspace: %w", err)
	}
	result.UsersUpdated++

	if user.CurrentSubscriptionID == nil {
		return nil
	}

	var legacy models.Subscription
	if err := db.First(&legacy, *user.CurrentSubscriptionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			// Dangling legacy pointer. Nothing to migrate.
			return nil
		}
		return fmt.Errorf("resolve legacy subscription: %w", err)
	}

	interval := legacy.BillingInterval
	if interval == "" {
		interval = "monthly"
	}

	migrated := models.Subscription{
		WorkplaceID:     &workplace.ID,
		PlanID:          legacy.PlanID,
		Status:          legacy.Status,
		Tier:            legacy.Tier,
		StartDate:       legacy.StartDate,
		EndDate:         legacy.EndDate,
		TrialEndDate:    legacy.TrialEndDate,
		BillingInterval: interval,
		PriceAtPurchase: legacy.PriceAtPurchase,
		AutoRenew:       legacy.AutoRenew,
		PaymentHistory:  legacy.PaymentHistory,
		UsageMetrics:    legacy.UsageMetrics,
		Limits:          workspaceLimits(),
		Features:        legacy.Features,
	}
	if err := db.Create(&migrated).Error; err != nil {
		return fmt.Errorf("create workspace subscription: %w", err)
	}
	result.SubscriptionsMigrated++

	workplace.CurrentSubscriptionID = &migrated.ID
	workplace.CurrentPlanID = &legacy.PlanID
	workplace.SubscriptionStatus = MapSubscriptionStatus(legacy.Status)
	if legacy.TrialEndDate != nil {
		workplace.TrialEndDate = legacy.TrialEndDate
	}
	if err := db.Save(&workplace).Error; err != nil {
		return fmt.Errorf("link subscription into workspace: %w", err)
	}

	user.CurrentSubscriptionID = nil
	if err := db.Save(user).Error; err != nil {
		return fmt.Errorf("clear legacy subscription pointer: %w", err)
	}

	// The workspace copy supersedes the individual subscription.
	if err := db.Delete(&models.Subscription{}, legacy.ID).Error; err != nil {
		return fmt.Errorf("retire legacy subscription: %w", err)
	}

	return nil
}

// backfillWorkplaces fills defaults on pre-existing workspaces missing
// any of the fields introduced with workspace subscriptions.
func (e *Engine) backfillWorkplaces(ctx context.Context) (int, []string) {
	db := e.db.WithContext(ctx)

	var workplaces []models.Workplace
	if err := db.Find(&workplaces).Error; err != nil {
		return 0, []string{fmt.Sprintf("fetch workplaces for backfill: %v", err)}
	}

	var errs []string
	backfilled := 0
	for i := range workplaces {
		wp := &workplaces[i]
		changed := false

		if wp.SubscriptionStatus == "" {
			wp.SubscriptionStatus = models.SubscriptionStatusTrial
			changed = true
		}
		if wp.Stats == nil {
			users := len(wp.TeamMembers)
			if users == 0 {
				users = 1
			}
			now := time.Now()
			wp.Stats = &models.WorkplaceStats{UsersCount: users, LastUpdated: &now}
			changed = true
		}
		if wp.Settings == nil {
			wp.Settings = &models.WorkplaceSettings{MaxPendingInvites: 20}
			changed = true
		}
		if len(wp.Locations) == 0 {
			address := wp.Address
			if address == "" {
				address = "Main Location"
			}
			wp.Locations = []models.WorkplaceLocation{
				{ID: "primary", Name: wp.Name, Address: address, IsPrimary: true},
			}
			changed = true
		}

		if !changed {
			continue
		}
		if err := db.Save(wp).Error; err != nil {
			errs = append(errs, fmt.Sprintf("workplace %d: backfill failed: %v", wp.ID, err))
			continue
		}
		backfilled++
	}

	return backfilled, errs
}

// Rollback reverts subscription ownership only: every workspace-owned
// subscription whose workspace and owner still exist becomes a
// user-owned subscription again. Workspaces and users created by the
// migration are left in place.
func (e *Engine) Rollback(ctx context.Context) (*RollbackResult, error) {
	db := e.db.WithContext(ctx)
	result := &RollbackResult{Errors: []string{}}

	var subs []models.Subscription
	if err := db.Where("workplace_id IS NOT NULL").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("fetch workspace subscriptions: %w", err)
	}

	e.log.WithField("subscriptions", len(subs)).Info("starting subscription ownership rollback")

	for i := range subs {
		sub := &subs[i]

		var workplace models.Workplace
		if err := db.First(&workplace, *sub.WorkplaceID).Error; err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("subscription %d: workspace %d not found", sub.ID, *sub.WorkplaceID))
			continue
		}

		var owner models.User
		if err := db.First(&owner, workplace.OwnerID).Error; err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("subscription %d: owner %d not found", sub.ID, workplace.OwnerID))
			continue
		}

		reverted := models.Subscription{
			UserID:          &owner.ID,
			PlanID:          sub.PlanID,
			Status:          sub.Status,
			Tier:            sub.Tier,
			StartDate:       sub.StartDate,
			EndDate:         sub.EndDate,
			TrialEndDate:    sub.TrialEndDate,
			BillingInterval: sub.BillingInterval,
			PriceAtPurchase: sub.PriceAtPurchase,
			AutoRenew:       sub.AutoRenew,
			PaymentHistory:  sub.PaymentHistory,
			UsageMetrics:    sub.UsageMetrics,
			Limits:          sub.Limits,
			Features:        sub.Features,
		}
		if err := db.Create(&reverted).Error; err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("subscription %d: create user subscription: %v", sub.ID, err))
			continue
		}

		owner.CurrentSubscriptionID = &reverted.ID
		if err := db.Save(&owner).Error; err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("subscription %d: link owner: %v", sub.ID, err))
			continue
		}

		if err := db.Delete(&models.Subscription{}, sub.ID).Error; err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("subscription %d: delete workspace subscription: %v", sub.ID, err))
			continue
		}

		result.SubscriptionsReverted++
	}

	result.Success = len(result.Errors) == 0
	e.log.WithFields(logrus.Fields{
		"reverted": result.SubscriptionsReverted,
		"errors":   len(result.Errors),
	}).Info("subscription ownership rollback finished")

	return result, nil
}

// ValidateMigration is the engine's lightweight completeness check:
// counts only, no cross-collection joins. The full battery lives in the
// validation service.
func (e *Engine) ValidateMigration(ctx context.Context) (*CheckResult, error) {
	db := e.db.WithContext(ctx)
	result := &CheckResult{Issues: []string{}}

	if err := db.Model(&models.User{}).Count(&result.Stats.TotalUsers).Error; err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if err := db.Model(&models.User{}).Where("workplace_id IS NOT NULL").Count(&result.Stats.MigratedUsers).Error; err != nil {
		return nil, fmt.Errorf("count migrated users: %w", err)
	}
	if err := db.Model(&models.Subscription{}).
		Where("workplace_id IS NULL AND user_id IS NOT NULL").
		Count(&result.Stats.LegacyUserSubscriptions).Error; err != nil {
		return nil, fmt.Errorf("count legacy subscriptions: %w", err)
	}
	if err := db.Model(&models.Subscription{}).
		Where("workplace_id IS NULL").
		Count(&result.Stats.SubscriptionsWithoutWorkspace).Error; err != nil {
		return nil, fmt.Errorf("count subscriptions without workspace: %w", err)
	}

	if missing := result.Stats.TotalUsers - result.Stats.MigratedUsers; missing > 0 {
		result.Issues = append(result.Issues, fmt.Sprintf("%d users are not linked to a workspace", missing))
	}
	if result.Stats.LegacyUserSubscriptions > 0 {
		result.Issues = append(result.Issues, fmt.Sprintf("%d legacy user-owned subscriptions remain", result.Stats.LegacyUserSubscriptions))
	}
	if result.Stats.SubscriptionsWithoutWorkspace > 0 {
		result.Issues = append(result.Issues, fmt.Sprintf("%d subscriptions have no workspace ownership", result.Stats.SubscriptionsWithoutWorkspace))
	}

	result.Valid = len(result.Issues) == 0
	return result, nil
}
