package migration

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"pharmacare-backend/internal/models"
)

// Checker runs read-only multi-collection scans for orphaned records
// and cross-collection inconsistencies. The original cross-collection
// joins are done as application-level joins: fetch plus in-memory index.
type Checker struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewChecker creates an integrity checker bound to a database handle.
func NewChecker(db *gorm.DB) *Checker {
	return &Checker{
		db:  db,
		log: logrus.WithField("component", "integrity-checker"),
	}
}

type indexes struct {
	users         map[uint]*models.User
	workplaces    map[uint]*models.Workplace
	subscriptions map[uint]*models.Subscription
}

func (c *Checker) loadIndexes(ctx context.Context) (*indexes, []models.User, []models.Workplace, []models.Subscription, error) {
	db := c.db.WithContext(ctx)

	var users []models.User
	if err := db.Find(&users).Error; err != nil {
		return nil, nil, nil, nil, fmt.Errorf("fetch users: %w", err)
	}
	var workplaces []models.Workplace
	if err := db.Find(&workplaces).Error; err != nil {
		return nil, nil, nil, nil, fmt.Errorf("fetch workplaces: %w", err)
	}
	var subs []models.Subscription
	if err := db.Find(&subs).Error; err != nil {
		return nil, nil, nil, nil, fmt.Errorf("fetch subscriptions: %w", err)
	}

	idx := &indexes{
		users:         make(map[uint]*models.User, len(users)),
		workplaces:    make(map[uint]*models.Workplace, len(workplaces)),
		subscriptions: make(map[uint]*models.Subscription, len(subs)),
	}
	for i := range users {
		idx.users[users[i].ID] = &users[i]
	}
	for i := range workplaces {
		idx.workplaces[workplaces[i].ID] = &workplaces[i]
	}
	for i := range subs {
		idx.subscriptions[subs[i].ID] = &subs[i]
	}
	return idx, users, workplaces, subs, nil
}

// CheckOrphanedRecords scans for records stranded by the migration:
// users never assigned a workspace, legacy user-owned subscriptions,
// workspaces without an owner, and subscriptions owned by nobody.
func (c *Checker) CheckOrphanedRecords(ctx context.Context) (*ScanResult, error) {
	idx, users, workplaces, subs, err := c.loadIndexes(ctx)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{}

	var usersWithoutWorkplace []string
	for i := range users {
		if users[i].WorkplaceID == nil {
			usersWithoutWorkplace = append(usersWithoutWorkplace, strconv.FormatUint(uint64(users[i].ID), 10))
		}
	}
	if len(usersWithoutWorkplace) > 0 {
		result.Issues = append(result.Issues, Issue{
			Severity:      SeverityError,
			Category:      "users_without_workplace",
			Description:   fmt.Sprintf("%d users have no workspace assignment", len(usersWithoutWorkplace)),
			AffectedIDs:   usersWithoutWorkplace,
			Count:         len(usersWithoutWorkplace),
			FixSuggestion: "Run the workspace migration to create workspaces for these users",
		})
	}

	var legacySubs []string
	var fullyOrphaned []string
	for i := range subs {
		sub := &subs[i]
		if sub.UserID != nil && sub.WorkplaceID == nil {
			legacySubs = append(legacySubs, strconv.FormatUint(uint64(sub.ID), 10))
		}

		userResolves := sub.UserID != nil && idx.users[*sub.UserID] != nil
		workplaceResolves := sub.WorkplaceID != nil && idx.workplaces[*sub.WorkplaceID] != nil
		if !userResolves && !workplaceResolves {
			fullyOrphaned = append(fullyOrphaned, strconv.FormatUint(uint64(sub.ID), 10))
		}
	}
	if len(legacySubs) > 0 {
		result.Issues = append(result.Issues, Issue{
			Severity:      SeverityError,
			Category:      "legacy_user_subscriptions",
			Description:   fmt.Sprintf("%d subscriptions are still owned by individual users", len(legacySubs)),
			AffectedIDs:   legacySubs,
			Count:         len(legacySubs),
			FixSuggestion: "Migrate these subscriptions to workspace ownership",
		})
	}
	if len(fullyOrphaned) > 0 {
		result.Issues = append(result.Issues, Issue{
			Severity:      SeverityCritical,
			Category:      "fully_orphaned_subscriptions",
			Description:   fmt.Sprintf("%d subscriptions reference neither a valid user nor a valid workspace", len(fullyOrphaned)),
			AffectedIDs:   fullyOrphaned,
			Count:         len(fullyOrphaned),
			FixSuggestion: "Inspect these subscriptions manually; they may need deletion or repair",
		})
	}

	var ownerless []string
	for i := range workplaces {
		if workplaces[i].OwnerID == 0 {
			ownerless = append(ownerless, strconv.FormatUint(uint64(workplaces[i].ID), 10))
		}
	}
	if len(ownerless) > 0 {
		result.Issues = append(result.Issues, Issue{
			Severity:      SeverityCritical,
			Category:      "workplaces_without_owner",
			Description:   fmt.Sprintf("%d workspaces have no owner", len(ownerless)),
			AffectedIDs:   ownerless,
			Count:         len(ownerless),
			FixSuggestion: "Assign an owner or remove the workspace",
		})
	}

	c.log.WithFields(logrus.Fields{
		"issues":   len(result.Issues),
		"warnings": len(result.Warnings),
	}).Debug("orphaned record scan complete")

	return result, nil
}

// CheckDataConsistency scans for cross-collection reference breaks:
// dangling workspace references on users, dangling subscription
// references on workspaces, and broken bidirectional links between
// subscriptions and workspaces.
func (c *Checker) CheckDataConsistency(ctx context.Context) (*ScanResult, error) {
	idx, users, workplaces, subs, err := c.loadIndexes(ctx)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{}

	var danglingUserRefs []string
	for i := range users {
		if users[i].WorkplaceID != nil && idx.workplaces[*users[i].WorkplaceID] == nil {
			danglingUserRefs = append(danglingUserRefs, strconv.FormatUint(uint64(users[i].ID), 10))
		}
	}
	if len(danglingUserRefs) > 0 {
		result.Issues = append(result.Issues, Issue{
			Severity:      SeverityError,
			Category:      "invalid_workplace_refs",
			Description:   fmt.Sprintf("%d users reference a workspace that does not exist", len(danglingUserRefs)),
			AffectedIDs:   danglingUserRefs,
			Count:         len(danglingUserRefs),
			FixSuggestion: "Clear the workspace reference or restore the missing workspace",
		})
	}

	var danglingSubRefs []string
	for i := range workplaces {
		wp := &workplaces[i]
		if wp.CurrentSubscriptionID != nil && idx.subscriptions[*wp.CurrentSubscriptionID] == nil {
			danglingSubRefs = append(danglingSubRefs, strconv.FormatUint(uint64(wp.ID), 10))
		}
	}
	if len(danglingSubRefs) > 0 {
		result.Issues = append(result.Issues, Issue{
			Severity:      SeverityError,
			Category:      "invalid_subscription_refs",
			Description:   fmt.Sprintf("%d workspaces reference a subscription that does not exist", len(danglingSubRefs)),
			AffectedIDs:   danglingSubRefs,
			Count:         len(danglingSubRefs),
			FixSuggestion: "Clear the subscription reference or re-run the migration for these workspaces",
		})
	}

	var backlinkBreaks []string
	for i := range subs {
		sub := &subs[i]
		if sub.WorkplaceID == nil {
			continue
		}
		wp := idx.workplaces[*sub.WorkplaceID]
		if wp == nil {
			continue // already reported by the orphan scan
		}
		if wp.CurrentSubscriptionID == nil || *wp.CurrentSubscriptionID != sub.ID {
			backlinkBreaks = append(backlinkBreaks, strconv.FormatUint(uint64(sub.ID), 10))
		}
	}
	if len(backlinkBreaks) > 0 {
		result.Warnings = append(result.Warnings, Warning{
			Category:    "subscription_backlink_mismatch",
			Description: fmt.Sprintf("%d workspace subscriptions are not linked back from their workspace", len(backlinkBreaks)),
			AffectedIDs: backlinkBreaks,
			Count:       len(backlinkBreaks),
			Impact:      ImpactHigh,
		})
	}

	c.log.WithFields(logrus.Fields{
		"issues":   len(result.Issues),
		"warnings": len(result.Warnings),
	}).Debug("data consistency scan complete")

	return result, nil
}
