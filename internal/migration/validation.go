package migration

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"pharmacare-backend/internal/models"
)

// Validator runs the full battery of migration checks and aggregates
// them into a 0-100 score with categorized findings.
type Validator struct {
	db      *gorm.DB
	checker *Checker
	log     *logrus.Entry
}

// NewValidator creates a validation service bound to a database handle.
func NewValidator(db *gorm.DB) *Validator {
	return &Validator{
		db:      db,
		checker: NewChecker(db),
		log:     logrus.WithField("component", "migration-validator"),
	}
}

// RunCompleteValidation composes every scan family, scores the result,
// and produces ordered recommendations.
func (v *Validator) RunCompleteValidation(ctx context.Context) (*Report, error) {
	stats, err := v.collectStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect validation stats: %w", err)
	}

	combined := &ScanResult{}

	orphaned, err := v.checker.CheckOrphanedRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("orphaned record scan: %w", err)
	}
	combined.Merge(*orphaned)
	for _, issue := range orphaned.Issues {
		stats.OrphanedRecords += int64(issue.Count)
	}

	consistency, err := v.checker.CheckDataConsistency(ctx)
	if err != nil {
		return nil, fmt.Errorf("data consistency scan: %w", err)
	}
	combined.Merge(*consistency)

	referential, err := v.CheckReferentialIntegrity(ctx)
	if err != nil {
		return nil, fmt.Errorf("referential integrity scan: %w", err)
	}
	combined.Merge(*referential)

	subMigration, err := v.checkSubscriptionMigration(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscription migration scan: %w", err)
	}
	combined.Merge(*subMigration)

	workspace, err := v.checkWorkspaceIntegrity(ctx)
	if err != nil {
		return nil, fmt.Errorf("workspace integrity scan: %w", err)
	}
	combined.Merge(*workspace)

	userMigration, err := v.checkUserMigration(ctx)
	if err != nil {
		return nil, fmt.Errorf("user migration scan: %w", err)
	}
	combined.Merge(*userMigration)

	score, consistencyScore := ComputeScore(combined.Issues, combined.Warnings, stats)

	report := &Report{
		Score:                score,
		DataConsistencyScore: consistencyScore,
		Issues:               combined.Issues,
		Warnings:             combined.Warnings,
		Stats:                stats,
		GeneratedAt:          nowFunc(),
	}
	report.Valid = score >= 90 && report.CriticalCount() == 0
	report.Recommendations = buildRecommendations(report)

	v.log.WithFields(logrus.Fields{
		"score":    score,
		"issues":   len(report.Issues),
		"warnings": len(report.Warnings),
		"valid":    report.Valid,
	}).Info("complete validation finished")

	return report, nil
}

// collectStats issues the independent count queries concurrently; they
// are read-only and commute.
func (v *Validator) collectStats(ctx context.Context) (ValidationStats, error) {
	var stats ValidationStats
	db := v.db.WithContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, query func(*gorm.DB) *gorm.DB) {
		g.Go(func() error {
			return query(db.WithContext(gctx)).Count(dst).Error
		})
	}

	count(&stats.TotalUsers, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.User{})
	})
	count(&stats.UsersWithWorkspace, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.User{}).Where("workplace_id IS NOT NULL")
	})
	count(&stats.UsersWithLegacySubs, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.User{}).Where("current_subscription_id IS NOT NULL")
	})
	count(&stats.TotalWorkplaces, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.Workplace{})
	})
	count(&stats.WorkplacesWithSubscription, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.Workplace{}).Where("current_subscription_id IS NOT NULL")
	})
	count(&stats.TotalSubscriptions, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.Subscription{})
	})
	count(&stats.WorkspaceSubscriptions, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.Subscription{}).Where("workplace_id IS NOT NULL")
	})
	count(&stats.UserSubscriptions, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.Subscription{}).Where("user_id IS NOT NULL AND workplace_id IS NULL")
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// CheckReferentialIntegrity verifies foreign references that the other
// scans do not cover: subscription plan references and workspace owner
// references.
func (v *Validator) CheckReferentialIntegrity(ctx context.Context) (*ScanResult, error) {
	db := v.db.WithContext(ctx)
	result := &ScanResult{}

	var plans []models.SubscriptionPlan
	if err := db.Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("fetch plans: %w", err)
	}
	planIDs := make(map[uint]bool, len(plans))
	for _, p := range plans {
		planIDs[p.ID] = true
	}

	var subs []models.Subscription
	if err := db.Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("fetch subscriptions: %w", err)
	}
	var badPlanRefs []string
	for i := range subs {
		if !planIDs[subs[i].PlanID] {
			badPlanRefs = append(badPlanRefs, strconv.FormatUint(uint64(subs[i].ID), 10))
		}
	}
	if len(badPlanRefs) > 0 {
		result.Issues = append(result.Issues, Issue{
			Severity:      SeverityError,
			Category:      "invalid_plan_refs",
			Description:   fmt.Sprintf("%d subscriptions reference a plan that does not exist", len(badPlanRefs)),
			AffectedIDs:   badPlanRefs,
			Count:         len(badPlanRefs),
			FixSuggestion: "Repoint these subscriptions at a valid plan",
		})
	}

	var users []models.User
	if err := db.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	userIDs := make(map[uint]bool, len(users))
	for i := range users {
		userIDs[users[i].ID] = true
	}

	var workplaces []models.Workplace
	if err := db.Find(&workplaces).Error; err != nil {
		return nil, fmt.Errorf("fetch workplaces: %w", err)
	}
	var badOwnerRefs []string
	for i := range workplaces {
		wp := &workplaces[i]
		if wp.OwnerID != 0 && !userIDs[wp.OwnerID] {
			badOwnerRefs = append(badOwnerRefs, strconv.FormatUint(uint64(wp.ID), 10))
		}
	}
	if len(badOwnerRefs) > 0 {
		result.Issues = append(result.Issues, Issue{
			Severity:      SeverityCritical,
			Category:      "invalid_owner_refs",
			Description:   fmt.Sprintf("%d workspaces are owned by a user that does not exist", len(badOwnerRefs)),
			AffectedIDs:   badOwnerRefs,
			Count:         len(badOwnerRefs),
			FixSuggestion: "Reassign ownership to an existing user",
		})
	}

	return result, nil
}

// checkSubscriptionMigration flags incomplete subscription migration
// state. These are all warnings: the migration can proceed, but the
// data is not in its final shape.
func (v *Validator) checkSubscriptionMigration(ctx context.Context) (*ScanResult, error) {
	db := v.db.WithContext(ctx)
	result := &ScanResult{}

	var legacyUsers []models.User
	if err := db.Where("current_subscription_id IS NOT NULL").Find(&legacyUsers).Error; err != nil {
		return nil, fmt.Errorf("fetch users with legacy subscriptions: %w", err)
	}
	if len(legacyUsers) > 0 {
		ids := make([]string, len(legacyUsers))
		for i := range legacyUsers {
			ids[i] = strconv.FormatUint(uint64(legacyUsers[i].ID), 10)
		}
		result.Warnings = append(result.Warnings, Warning{
			Category:    "legacy_subscription_pointers",
			Description: fmt.Sprintf("%d users still carry a legacy subscription pointer", len(legacyUsers)),
			AffectedIDs: ids,
			Count:       len(ids),
			Impact:      ImpactMedium,
		})
	}

	var workplaces []models.Workplace
	if err := db.Find(&workplaces).Error; err != nil {
		return nil, fmt.Errorf("fetch workplaces: %w", err)
	}

	var noSubscription []string
	var statusMismatch []string
	for i := range workplaces {
		wp := &workplaces[i]
		if wp.CurrentSubscriptionID == nil {
			noSubscription = append(noSubscription, strconv.FormatUint(uint64(wp.ID), 10))
			continue
		}
		var sub models.Subscription
		if err := db.First(&sub, *wp.CurrentSubscriptionID).Error; err != nil {
			continue // dangling reference, reported by the consistency scan
		}
		if MapSubscriptionStatus(sub.Status) != wp.SubscriptionStatus {
			statusMismatch = append(statusMismatch, strconv.FormatUint(uint64(wp.ID), 10))
		}
	}
	if len(noSubscription) > 0 {
		result.Warnings = append(result.Warnings, Warning{
			Category:    "workplaces_without_subscription",
			Description: fmt.Sprintf("%d workspaces have no subscription", len(noSubscription)),
			AffectedIDs: noSubscription,
			Count:       len(noSubscription),
			Impact:      ImpactMedium,
		})
	}
	if len(statusMismatch) > 0 {
		result.Warnings = append(result.Warnings, Warning{
			Category:    "subscription_status_mismatch",
			Description: fmt.Sprintf("%d workspaces have a subscription status that does not match their subscription", len(statusMismatch)),
			AffectedIDs: statusMismatch,
			Count:       len(statusMismatch),
			Impact:      ImpactHigh,
		})
	}

	return result, nil
}

// checkWorkspaceIntegrity verifies workspaces carry the fields the
// migration introduces and that team member references resolve.
func (v *Validator) checkWorkspaceIntegrity(ctx context.Context) (*ScanResult, error) {
	db := v.db.WithContext(ctx)
	result := &ScanResult{}

	var users []models.User
	if err := db.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	userIDs := make(map[string]bool, len(users))
	for i := range users {
		userIDs[strconv.FormatUint(uint64(users[i].ID), 10)] = true
	}

	var workplaces []models.Workplace
	if err := db.Find(&workplaces).Error; err != nil {
		return nil, fmt.Errorf("fetch workplaces: %w", err)
	}

	var missingFields []string
	var badMemberRefs []string
	for i := range workplaces {
		wp := &workplaces[i]
		if wp.SubscriptionStatus == "" || wp.Stats == nil || wp.Settings == nil || len(wp.Locations) == 0 {
			missingFields = append(missingFields, strconv.FormatUint(uint64(wp.ID), 10))
		}
		for _, member := range wp.TeamMembers {
			if !userIDs[member] {
				badMemberRefs = append(badMemberRefs, strconv.FormatUint(uint64(wp.ID), 10))
				break
			}
		}
	}
	if len(missingFields) > 0 {
		result.Warnings = append(result.Warnings, Warning{
			Category:    "incomplete_workspace_fields",
			Description: fmt.Sprintf("%d workspaces are missing fields introduced by the migration", len(missingFields)),
			AffectedIDs: missingFields,
			Count:       len(missingFields),
			Impact:      ImpactLow,
		})
	}
	if len(badMemberRefs) > 0 {
		result.Issues = append(result.Issues, Issue{
			Severity:      SeverityError,
			Category:      "invalid_team_member_refs",
			Description:   fmt.Sprintf("%d workspaces list team members that do not exist", len(badMemberRefs)),
			AffectedIDs:   badMemberRefs,
			Count:         len(badMemberRefs),
			FixSuggestion: "Remove stale team member entries",
		})
	}

	return result, nil
}

// checkUserMigration verifies users linked to a workspace are fully
// enrolled in it.
func (v *Validator) checkUserMigration(ctx context.Context) (*ScanResult, error) {
	db := v.db.WithContext(ctx)
	result := &ScanResult{}

	var workplaces []models.Workplace
	if err := db.Find(&workplaces).Error; err != nil {
		return nil, fmt.Errorf("fetch workplaces: %w", err)
	}
	workplaceIdx := make(map[uint]*models.Workplace, len(workplaces))
	for i := range workplaces {
		workplaceIdx[workplaces[i].ID] = &workplaces[i]
	}

	var users []models.User
	if err := db.Where("workplace_id IS NOT NULL").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("fetch workspace users: %w", err)
	}

	var missingRole []string
	var notInTeam []string
	for i := range users {
		user := &users[i]
		if user.WorkplaceRole == "" {
			missingRole = append(missingRole, strconv.FormatUint(uint64(user.ID), 10))
		}
		if wp := workplaceIdx[*user.WorkplaceID]; wp != nil && !wp.HasTeamMember(user.ID) {
			notInTeam = append(notInTeam, strconv.FormatUint(uint64(user.ID), 10))
		}
	}
	if len(missingRole) > 0 {
		result.Warnings = append(result.Warnings, Warning{
			Category:    "missing_workplace_role",
			Description: fmt.Sprintf("%d users belong to a workspace but have no workspace role", len(missingRole)),
			AffectedIDs: missingRole,
			Count:       len(missingRole),
			Impact:      ImpactLow,
		})
	}
	if len(notInTeam) > 0 {
		result.Issues = append(result.Issues, Issue{
			Severity:      SeverityError,
			Category:      "team_member_sync",
			Description:   fmt.Sprintf("%d users are linked to a workspace but missing from its team member list", len(notInTeam)),
			AffectedIDs:   notInTeam,
			Count:         len(notInTeam),
			FixSuggestion: "Re-sync workspace team member lists from user workspace links",
		})
	}

	return result, nil
}

// ComputeScore applies the validation scoring rules: a 100-point
// deduction pass over issues and warnings, averaged with an
// independently computed data consistency score. Returns the final
// clamped score and the consistency score, both rounded.
func ComputeScore(issues []Issue, warnings []Warning, stats ValidationStats) (int, int) {
	running := 100.0
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityCritical:
			running -= 20
		case SeverityError:
			running -= 10
		case SeverityWarning:
			running -= 5
		}
	}
	for _, w := range warnings {
		switch w.Impact {
		case ImpactHigh:
			running -= 5
		case ImpactMedium:
			running -= 3
		case ImpactLow:
			running -= 1
		}
	}

	consistency := consistencyScore(stats)
	final := (running + consistency) / 2
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}
	return int(math.Round(final)), int(math.Round(consistency))
}

// consistencyScore is the mean of four migration-completeness ratios,
// each with its denominator floored at 1 to avoid division by zero.
func consistencyScore(stats ValidationStats) float64 {
	floor := func(n int64) float64 {
		if n < 1 {
			return 1
		}
		return float64(n)
	}

	total := stats.TotalUsers + stats.TotalWorkplaces + stats.TotalSubscriptions
	ratios := []float64{
		float64(stats.UsersWithWorkspace) / floor(stats.TotalUsers),
		float64(stats.WorkplacesWithSubscription) / floor(stats.TotalWorkplaces),
		float64(stats.WorkspaceSubscriptions) / floor(stats.TotalSubscriptions),
		1 - float64(stats.OrphanedRecords)/floor(total),
	}

	sum := 0.0
	for _, r := range ratios {
		sum += r
	}
	return sum / float64(len(ratios)) * 100
}

func buildRecommendations(report *Report) []string {
	var recs []string

	if n := report.CriticalCount(); n > 0 {
		recs = append(recs, fmt.Sprintf("Resolve %d critical data integrity issues before running any further migration steps", n))
	}
	if remaining := report.Stats.TotalUsers - report.Stats.UsersWithWorkspace; remaining > 0 {
		recs = append(recs, fmt.Sprintf("Run the workspace migration for the %d users still without a workspace", remaining))
	}
	if report.Stats.UserSubscriptions > 0 {
		recs = append(recs, fmt.Sprintf("Migrate the %d remaining legacy user subscriptions to workspace ownership", report.Stats.UserSubscriptions))
	}
	if report.DataConsistencyScore < 90 {
		recs = append(recs, fmt.Sprintf("Investigate cross-collection consistency (consistency score %d)", report.DataConsistencyScore))
	}
	if report.Stats.TotalUsers > 1000 {
		recs = append(recs, "Process the migration in batches to limit load on the database")
	}

	recs = append(recs,
		"Monitor migration metrics while any migration activity is in progress",
		"Schedule regular validation runs until the migration is fully complete",
	)
	return recs
}
