package migration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// seedMigratedState leaves the database in fully migrated, fully
// consistent shape.
func seedMigratedState(t *testing.T, db *gorm.DB) {
	t.Helper()
	plan := seedPlan(t, db)
	seedLegacyUser(t, db, plan.ID, "active")
	_, err := NewEngine(db).Migrate(context.Background())
	require.NoError(t, err)
}

func TestMigrationProgressFormula(t *testing.T) {
	assert.Equal(t, 0, migrationProgress(Metrics{}))
	assert.Equal(t, 100, migrationProgress(Metrics{
		TotalUsers: 4, MigratedUsers: 4,
		TotalSubscriptions: 2, WorkspaceSubscriptions: 2,
	}))
	assert.Equal(t, 50, migrationProgress(Metrics{
		TotalUsers: 4, MigratedUsers: 4,
		TotalSubscriptions: 2, WorkspaceSubscriptions: 0,
	}))
	// 3/4 users and 1/2 subscriptions: (0.75+0.5)/2 = 62.5 → 63.
	assert.Equal(t, 63, migrationProgress(Metrics{
		TotalUsers: 4, MigratedUsers: 3,
		TotalSubscriptions: 2, WorkspaceSubscriptions: 1,
	}))
}

func TestCollectMetricsMigratedDatabase(t *testing.T) {
	db := openTestDB(t)
	seedMigratedState(t, db)

	monitor := NewMonitor(db)
	metrics, err := monitor.CollectMetrics(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, metrics.TotalUsers)
	assert.EqualValues(t, 1, metrics.MigratedUsers)
	assert.Zero(t, metrics.UsersWithoutWorkspace)
	assert.EqualValues(t, 1, metrics.WorkspaceSubscriptions)
	assert.Zero(t, metrics.UserSubscriptions)
	assert.Equal(t, 100, metrics.MigrationProgress)
	assert.Zero(t, metrics.CriticalIssues)

	latest := monitor.LatestMetrics()
	require.NotNil(t, latest)
	assert.Equal(t, metrics.Timestamp, latest.Timestamp)
}

func TestMetricsRingIsBounded(t *testing.T) {
	monitor := NewMonitor(nil)

	monitor.mu.Lock()
	for i := 0; i < maxMetricsSamples+25; i++ {
		monitor.metrics = append(monitor.metrics, Metrics{MigrationProgress: i})
		if len(monitor.metrics) > maxMetricsSamples {
			monitor.metrics = monitor.metrics[len(monitor.metrics)-maxMetricsSamples:]
		}
	}
	samples := len(monitor.metrics)
	newest := monitor.metrics[len(monitor.metrics)-1].MigrationProgress
	monitor.mu.Unlock()

	assert.Equal(t, maxMetricsSamples, samples)
	assert.Equal(t, maxMetricsSamples+24, newest, "oldest samples are discarded first")
}

func TestTrendAnalysisFewSamples(t *testing.T) {
	monitor := NewMonitor(nil)

	empty := monitor.GetTrendAnalysis()
	assert.Equal(t, "stable", empty.ProgressTrend)
	assert.Equal(t, "stable", empty.ValidationTrend)
	assert.Zero(t, empty.SampleCount)

	monitor.mu.Lock()
	monitor.metrics = append(monitor.metrics, Metrics{MigrationProgress: 40, ValidationScore: 80})
	monitor.mu.Unlock()

	single := monitor.GetTrendAnalysis()
	assert.Equal(t, "stable", single.ProgressTrend)
	assert.Equal(t, 1, single.SampleCount)
	assert.Equal(t, 40.0, single.AverageProgress)
	assert.Equal(t, 80.0, single.AverageScore)
}

func TestTrendAnalysisDirections(t *testing.T) {
	monitor := NewMonitor(nil)

	monitor.mu.Lock()
	for _, p := range []int{10, 20, 30, 40} {
		monitor.metrics = append(monitor.metrics, Metrics{MigrationProgress: p, ValidationScore: 90})
	}
	monitor.mu.Unlock()

	trend := monitor.GetTrendAnalysis()
	assert.Equal(t, "improving", trend.ProgressTrend)
	assert.Equal(t, "stable", trend.ValidationTrend)
	assert.Equal(t, 25.0, trend.AverageProgress)

	// Small movements inside the threshold stay stable.
	flat := NewMonitor(nil)
	flat.mu.Lock()
	for _, p := range []int{50, 51, 50, 51} {
		flat.metrics = append(flat.metrics, Metrics{MigrationProgress: p, ValidationScore: 90})
	}
	flat.mu.Unlock()
	assert.Equal(t, "stable", flat.GetTrendAnalysis().ProgressTrend)
}

func TestAlertRulesOnFirstSample(t *testing.T) {
	monitor := NewMonitor(nil)
	current := &Metrics{
		Timestamp:         time.Now(),
		MigrationProgress: 50,
		ValidationScore:   95,
	}

	monitor.mu.Lock()
	raised := monitor.evaluateAlertRulesLocked(current, nil)
	monitor.mu.Unlock()

	assert.Empty(t, raised, "a healthy first sample can never look stalled")
}

func TestAlertRulesStalledProgress(t *testing.T) {
	monitor := NewMonitor(nil)
	previous := &Metrics{MigrationProgress: 50, ValidationScore: 95}
	current := &Metrics{MigrationProgress: 50, ValidationScore: 95}

	monitor.mu.Lock()
	raised := monitor.evaluateAlertRulesLocked(current, previous)
	monitor.mu.Unlock()

	require.Len(t, raised, 1)
	assert.Equal(t, "migration_stalled", raised[0].Category)
	assert.Equal(t, AlertWarning, raised[0].Severity)
}

func TestAlertRulesSeverities(t *testing.T) {
	monitor := NewMonitor(nil)
	current := &Metrics{
		MigrationProgress: 10,
		ValidationScore:   40,
		CriticalIssues:    2,
		Errors:            15,
		UserSubscriptions: 3,
	}
	previous := &Metrics{MigrationProgress: 5}

	monitor.mu.Lock()
	raised := monitor.evaluateAlertRulesLocked(current, previous)
	monitor.mu.Unlock()

	byCategory := map[string]Alert{}
	for _, alert := range raised {
		byCategory[alert.Category] = alert
	}

	assert.Equal(t, AlertCritical, byCategory["critical_issues"].Severity)
	assert.Equal(t, AlertError, byCategory["low_validation_score"].Severity)
	assert.Equal(t, AlertWarning, byCategory["high_error_count"].Severity)
	assert.Equal(t, AlertInfo, byCategory["legacy_subscriptions"].Severity)
	assert.NotContains(t, byCategory, "migration_stalled", "progress moved between samples")
}

func TestAlertUpsertDoesNotDuplicate(t *testing.T) {
	monitor := NewMonitor(nil)
	current := &Metrics{ValidationScore: 40, MigrationProgress: 10}

	monitor.mu.Lock()
	first := monitor.evaluateAlertRulesLocked(current, nil)
	second := monitor.evaluateAlertRulesLocked(current, nil)
	total := len(monitor.alerts)
	monitor.mu.Unlock()

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID, "the held condition refreshes the same alert")
	assert.Equal(t, 1, total)
}

func TestResolveAlert(t *testing.T) {
	monitor := NewMonitor(nil)
	current := &Metrics{ValidationScore: 40}

	monitor.mu.Lock()
	raised := monitor.evaluateAlertRulesLocked(current, nil)
	monitor.mu.Unlock()
	require.Len(t, raised, 1)

	assert.True(t, monitor.ResolveAlert(raised[0].ID))
	assert.False(t, monitor.ResolveAlert(raised[0].ID), "already resolved")
	assert.False(t, monitor.ResolveAlert("no-such-id"))

	alerts := monitor.Alerts()
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Resolved)
	require.NotNil(t, alerts[0].ResolvedAt)

	// The next occurrence of the condition opens a fresh alert.
	monitor.mu.Lock()
	again := monitor.evaluateAlertRulesLocked(current, nil)
	monitor.mu.Unlock()
	require.Len(t, again, 1)
	assert.NotEqual(t, raised[0].ID, again[0].ID)
}

func TestGetStatusSummaryStates(t *testing.T) {
	monitor := NewMonitor(nil)

	assert.Equal(t, StatusNotStarted, monitor.GetStatusSummary().Status)

	push := func(m Metrics) {
		monitor.mu.Lock()
		monitor.metrics = append(monitor.metrics, m)
		monitor.mu.Unlock()
	}

	push(Metrics{MigrationProgress: 0, ValidationScore: 100})
	assert.Equal(t, StatusNotStarted, monitor.GetStatusSummary().Status)

	push(Metrics{MigrationProgress: 100, ValidationScore: 95})
	assert.Equal(t, StatusCompleted, monitor.GetStatusSummary().Status)

	push(Metrics{MigrationProgress: 60, ValidationScore: 95, CriticalIssues: 1})
	assert.Equal(t, StatusFailed, monitor.GetStatusSummary().Status)

	push(Metrics{MigrationProgress: 60, ValidationScore: 95})
	assert.Equal(t, StatusInProgress, monitor.GetStatusSummary().Status)
}

func TestGenerateReport(t *testing.T) {
	db := openTestDB(t)
	seedMigratedState(t, db)

	monitor := NewMonitor(db)
	report, err := monitor.GenerateReport(context.Background(), "on_demand")
	require.NoError(t, err)

	assert.Equal(t, "on_demand", report.Type)
	require.NotNil(t, report.Validation)
	assert.True(t, report.Validation.Valid)
	assert.NotEmpty(t, report.NextActions)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestNextActions(t *testing.T) {
	clean := nextActions(&Metrics{MigrationProgress: 100}, &Report{Score: 100})
	require.Len(t, clean, 1)
	assert.Contains(t, clean[0], "monitoring")

	busy := nextActions(&Metrics{
		CriticalIssues:        1,
		UsersWithoutWorkspace: 5,
		UserSubscriptions:     2,
	}, &Report{Score: 60})
	assert.GreaterOrEqual(t, len(busy), 4)
	assert.Contains(t, busy[0], "critical")
}
