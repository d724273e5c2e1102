package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacare-backend/internal/models"
)

// perfectStats yields a consistency score of exactly 100.
func perfectStats() ValidationStats {
	return ValidationStats{
		TotalUsers:                 10,
		UsersWithWorkspace:         10,
		TotalWorkplaces:            10,
		WorkplacesWithSubscription: 10,
		TotalSubscriptions:         10,
		WorkspaceSubscriptions:     10,
	}
}

func TestComputeScorePerfect(t *testing.T) {
	score, consistency := ComputeScore(nil, nil, perfectStats())
	assert.Equal(t, 100, score)
	assert.Equal(t, 100, consistency)
}

func TestComputeScoreEmptyDatabase(t *testing.T) {
	// All denominators floored at 1; three zero ratios plus a full
	// orphan ratio average to 25, final (100+25)/2 = 62.5 → 63.
	score, consistency := ComputeScore(nil, nil, ValidationStats{})
	assert.Equal(t, 25, consistency)
	assert.Equal(t, 63, score)
}

func TestComputeScoreCriticalMonotonicity(t *testing.T) {
	stats := perfectStats()
	critical := Issue{Severity: SeverityCritical, Category: "x", Count: 1}

	base, _ := ComputeScore(nil, nil, stats)
	withOne, _ := ComputeScore([]Issue{critical}, nil, stats)
	withTwo, _ := ComputeScore([]Issue{critical, critical}, nil, stats)

	assert.Equal(t, base-10, withOne, "each critical issue costs 10 final points")
	assert.Equal(t, base-20, withTwo)
}

func TestComputeScoreDeductions(t *testing.T) {
	stats := perfectStats()

	score, _ := ComputeScore([]Issue{{Severity: SeverityError}}, nil, stats)
	assert.Equal(t, 95, score)

	score, _ = ComputeScore([]Issue{{Severity: SeverityWarning}}, nil, stats)
	assert.Equal(t, 98, score, "warning-severity issues cost 5 running points")

	score, _ = ComputeScore(nil, []Warning{{Impact: ImpactHigh}}, stats)
	assert.Equal(t, 98, score)

	score, _ = ComputeScore(nil, []Warning{{Impact: ImpactMedium}}, stats)
	assert.Equal(t, 99, score)

	score, _ = ComputeScore(nil, []Warning{{Impact: ImpactLow}}, stats)
	assert.Equal(t, 100, score, "rounded from 99.5")
}

func TestComputeScoreClampsAtZero(t *testing.T) {
	var issues []Issue
	for i := 0; i < 20; i++ {
		issues = append(issues, Issue{Severity: SeverityCritical})
	}
	score, _ := ComputeScore(issues, nil, ValidationStats{})
	assert.Equal(t, 0, score)
}

func TestRunCompleteValidationCleanMigratedState(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	seedLegacyUser(t, db, plan.ID, "active")

	_, err := NewEngine(db).Migrate(context.Background())
	require.NoError(t, err)

	report, err := NewValidator(db).RunCompleteValidation(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Valid)
	assert.GreaterOrEqual(t, report.Score, 90)
	assert.Zero(t, report.CriticalCount())
	assert.EqualValues(t, 1, report.Stats.UsersWithWorkspace)
	assert.EqualValues(t, 1, report.Stats.WorkspaceSubscriptions)
	assert.Zero(t, report.Stats.UserSubscriptions)
	assert.NotEmpty(t, report.Recommendations)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestRunCompleteValidationInvalidOwnerRef(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	seedLegacyUser(t, db, plan.ID, "active")

	_, err := NewEngine(db).Migrate(context.Background())
	require.NoError(t, err)

	// Point the workspace at an owner that does not exist.
	var wp models.Workplace
	require.NoError(t, db.First(&wp).Error)
	require.NoError(t, db.Model(&wp).Update("owner_id", 424242).Error)

	report, err := NewValidator(db).RunCompleteValidation(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Valid, "a critical issue always fails validation")
	found := issueByCategory(report.Issues, "invalid_owner_refs")
	require.NotNil(t, found)
	assert.Equal(t, SeverityCritical, found.Severity)
	assert.Equal(t, 1, found.Count)
}

func TestRunCompleteValidationStatusMismatchWarning(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	seedLegacyUser(t, db, plan.ID, "active")

	_, err := NewEngine(db).Migrate(context.Background())
	require.NoError(t, err)

	// Corrupt the denormalized status so it no longer matches the
	// mapped subscription status.
	var wp models.Workplace
	require.NoError(t, db.First(&wp).Error)
	require.NoError(t, db.Model(&wp).Update("subscription_status", models.SubscriptionStatusExpired).Error)

	report, err := NewValidator(db).RunCompleteValidation(context.Background())
	require.NoError(t, err)

	mismatch := warningByCategory(report.Warnings, "subscription_status_mismatch")
	require.NotNil(t, mismatch)
	assert.Equal(t, ImpactHigh, mismatch.Impact)
}

func TestRunCompleteValidationTeamMemberSync(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db)
	seedLegacyUser(t, db, plan.ID, "active")

	_, err := NewEngine(db).Migrate(context.Background())
	require.NoError(t, err)

	// Drop the owner from the team list while the user still links in.
	var wp models.Workplace
	require.NoError(t, db.First(&wp).Error)
	wp.TeamMembers = models.StringArray{}
	require.NoError(t, db.Save(&wp).Error)

	report, err := NewValidator(db).RunCompleteValidation(context.Background())
	require.NoError(t, err)

	sync := issueByCategory(report.Issues, "team_member_sync")
	require.NotNil(t, sync)
	assert.Equal(t, SeverityError, sync.Severity)
}

func TestBuildRecommendationsOrdering(t *testing.T) {
	report := &Report{
		Issues: []Issue{{Severity: SeverityCritical}},
		Stats: ValidationStats{
			TotalUsers:         5,
			UsersWithWorkspace: 3,
			UserSubscriptions:  2,
		},
		DataConsistencyScore: 50,
	}

	recs := buildRecommendations(report)
	require.GreaterOrEqual(t, len(recs), 5)
	assert.Contains(t, recs[0], "critical")
	assert.Contains(t, recs[1], "2 users still without a workspace")
	assert.Contains(t, recs[2], "legacy user subscriptions")
	// The generic monitoring guidance always closes the list.
	assert.Contains(t, recs[len(recs)-1], "validation runs")
}
