package migration

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"pharmacare-backend/internal/models"
)

const (
	maxMetricsSamples = 100
	alertRetention    = 7 * 24 * time.Hour
	trendWindow       = 10
	trendThreshold    = 2.0
)

var (
	progressGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pharmacare_migration_progress_percent",
		Help: "Workspace migration progress percentage",
	})
	scoreGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pharmacare_migration_validation_score",
		Help: "Latest workspace migration validation score",
	})
	activeAlertsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pharmacare_migration_active_alerts",
		Help: "Unresolved workspace migration alerts",
	})
	unmigratedUsersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pharmacare_migration_users_without_workspace",
		Help: "Users not yet assigned to a workspace",
	})
)

// Monitor samples migration metrics, derives trends, and raises
// alerts. All state is process-local: restarting the process discards
// history and active alerts.
type Monitor struct {
	db        *gorm.DB
	validator *Validator
	log       *logrus.Entry

	mu      sync.Mutex
	metrics []Metrics
	alerts  []Alert

	sampling atomic.Bool
}

// NewMonitor creates a monitoring service bound to a database handle.
func NewMonitor(db *gorm.DB) *Monitor {
	return &Monitor{
		db:        db,
		validator: NewValidator(db),
		log:       logrus.WithField("component", "migration-monitor"),
	}
}

// CollectMetrics takes one point-in-time snapshot. Count queries are
// issued concurrently; the snapshot is appended to the bounded sample
// ring.
func (m *Monitor) CollectMetrics(ctx context.Context) (*Metrics, error) {
	metrics := Metrics{Timestamp: nowFunc()}
	db := m.db.WithContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, query func(*gorm.DB) *gorm.DB) {
		g.Go(func() error {
			return query(db.WithContext(gctx)).Count(dst).Error
		})
	}

	count(&metrics.TotalUsers, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.User{})
	})
	count(&metrics.MigratedUsers, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.User{}).Where("workplace_id IS NOT NULL")
	})
	count(&metrics.TotalWorkplaces, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.Workplace{})
	})
	count(&metrics.TotalSubscriptions, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.Subscription{})
	})
	count(&metrics.WorkspaceSubscriptions, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.Subscription{}).Where("workplace_id IS NOT NULL")
	})
	count(&metrics.UserSubscriptions, func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.Subscription{}).Where("user_id IS NOT NULL AND workplace_id IS NULL")
	})

	var report *Report
	g.Go(func() error {
		var err error
		report, err = m.validator.RunCompleteValidation(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	metrics.UsersWithoutWorkspace = metrics.TotalUsers - metrics.MigratedUsers
	metrics.ValidationScore = report.Score
	metrics.CriticalIssues = report.CriticalCount()
	metrics.Errors = report.ErrorCount()
	metrics.Warnings = len(report.Warnings)
	metrics.MigrationProgress = migrationProgress(metrics)

	m.mu.Lock()
	m.metrics = append(m.metrics, metrics)
	if len(m.metrics) > maxMetricsSamples {
		m.metrics = m.metrics[len(m.metrics)-maxMetricsSamples:]
	}
	m.mu.Unlock()

	progressGauge.Set(float64(metrics.MigrationProgress))
	scoreGauge.Set(float64(metrics.ValidationScore))
	unmigratedUsersGauge.Set(float64(metrics.UsersWithoutWorkspace))

	return &metrics, nil
}

// migrationProgress averages user migration and subscription migration
// completion, denominators floored at 1.
func migrationProgress(m Metrics) int {
	floor := func(n int64) float64 {
		if n < 1 {
			return 1
		}
		return float64(n)
	}
	userRatio := float64(m.MigratedUsers) / floor(m.TotalUsers)
	subRatio := float64(m.WorkspaceSubscriptions) / floor(m.TotalSubscriptions)
	return int(math.Round((userRatio + subRatio) / 2 * 100))
}

// CheckForAlerts collects a fresh sample and evaluates the alert rules
// against it. Alerts are keyed by category: a condition that keeps
// holding refreshes the existing unresolved alert rather than creating
// a duplicate. Resolved alerts older than seven days are pruned.
func (m *Monitor) CheckForAlerts(ctx context.Context) ([]Alert, error) {
	current, err := m.CollectMetrics(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var previous *Metrics
	if len(m.metrics) >= 2 {
		previous = &m.metrics[len(m.metrics)-2]
	}

	raised := m.evaluateAlertRulesLocked(current, previous)

	m.pruneAlertsLocked()
	activeAlertsGauge.Set(float64(m.unresolvedCountLocked()))

	return raised, nil
}

// evaluateAlertRulesLocked applies the fixed alert rules in order.
// Caller holds m.mu.
func (m *Monitor) evaluateAlertRulesLocked(current, previous *Metrics) []Alert {
	var raised []Alert
	raise := func(severity, category, title, message string) {
		alert := m.upsertAlertLocked(severity, category, title, message, current)
		raised = append(raised, alert)
	}

	if current.CriticalIssues > 0 {
		raise(AlertCritical, "critical_issues",
			"Critical data integrity issues detected",
			fmt.Sprintf("%d critical issues found during validation", current.CriticalIssues))
	}
	if previous != nil && current.MigrationProgress == previous.MigrationProgress {
		raise(AlertWarning, "migration_stalled",
			"Migration progress has stalled",
			fmt.Sprintf("Progress unchanged at %d%% since the previous sample", current.MigrationProgress))
	}
	if current.ValidationScore < 70 {
		raise(AlertError, "low_validation_score",
			"Validation score is low",
			fmt.Sprintf("Validation score dropped to %d", current.ValidationScore))
	}
	if current.Errors > 10 {
		raise(AlertWarning, "high_error_count",
			"High number of validation errors",
			fmt.Sprintf("%d error-severity issues found during validation", current.Errors))
	}
	if current.UserSubscriptions > 0 {
		raise(AlertInfo, "legacy_subscriptions",
			"Legacy user subscriptions remain",
			fmt.Sprintf("%d subscriptions are still owned by individual users", current.UserSubscriptions))
	}

	return raised
}

// upsertAlertLocked refreshes an existing unresolved alert for the
// category or appends a new one. Caller holds m.mu.
func (m *Monitor) upsertAlertLocked(severity, category, title, message string, metrics *Metrics) Alert {
	for i := range m.alerts {
		if m.alerts[i].Category == category && !m.alerts[i].Resolved {
			m.alerts[i].Timestamp = nowFunc()
			m.alerts[i].Message = message
			return m.alerts[i]
		}
	}

	alert := Alert{
		ID:        uuid.NewString(),
		Severity:  severity,
		Category:  category,
		Title:     title,
		Message:   message,
		Timestamp: nowFunc(),
		Metadata: map[string]interface{}{
			"migration_progress": metrics.MigrationProgress,
			"validation_score":   metrics.ValidationScore,
		},
	}
	m.alerts = append(m.alerts, alert)
	m.log.WithFields(logrus.Fields{
		"severity": severity,
		"category": category,
	}).Warn(title)
	return alert
}

func (m *Monitor) pruneAlertsLocked() {
	cutoff := nowFunc().Add(-alertRetention)
	kept := m.alerts[:0]
	for _, alert := range m.alerts {
		if alert.Resolved && alert.ResolvedAt != nil && alert.ResolvedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, alert)
	}
	m.alerts = kept
}

func (m *Monitor) unresolvedCountLocked() int {
	n := 0
	for _, alert := range m.alerts {
		if !alert.Resolved {
			n++
		}
	}
	return n
}

// Alerts returns a copy of the alert list, unresolved first.
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// ResolveAlert marks an alert resolved by ID. Resolution is an
// explicit operator action.
func (m *Monitor) ResolveAlert(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id && !m.alerts[i].Resolved {
			now := nowFunc()
			m.alerts[i].Resolved = true
			m.alerts[i].ResolvedAt = &now
			activeAlertsGauge.Set(float64(m.unresolvedCountLocked()))
			return true
		}
	}
	return false
}

// LatestMetrics returns the most recent sample, or nil when none has
// been collected.
func (m *Monitor) LatestMetrics() *Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.metrics) == 0 {
		return nil
	}
	latest := m.metrics[len(m.metrics)-1]
	return &latest
}

// GetTrendAnalysis derives trend direction from recent samples. With
// fewer than two samples everything is reported stable.
func (m *Monitor) GetTrendAnalysis() TrendAnalysis {
	m.mu.Lock()
	defer m.mu.Unlock()

	analysis := TrendAnalysis{
		ProgressTrend:   "stable",
		ValidationTrend: "stable",
		SampleCount:     len(m.metrics),
	}

	if len(m.metrics) == 0 {
		return analysis
	}
	if len(m.metrics) == 1 {
		analysis.AverageProgress = float64(m.metrics[0].MigrationProgress)
		analysis.AverageScore = float64(m.metrics[0].ValidationScore)
		return analysis
	}

	window := m.metrics
	if len(window) > trendWindow {
		window = window[len(window)-trendWindow:]
	}

	mid := len(window) / 2
	firstProgress, firstScore := meanProgressAndScore(window[:mid])
	secondProgress, secondScore := meanProgressAndScore(window[mid:])
	analysis.AverageProgress, analysis.AverageScore = meanProgressAndScore(window)

	analysis.ProgressTrend = direction(secondProgress - firstProgress)
	analysis.ValidationTrend = direction(secondScore - firstScore)
	return analysis
}

func meanProgressAndScore(samples []Metrics) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var progress, score float64
	for _, s := range samples {
		progress += float64(s.MigrationProgress)
		score += float64(s.ValidationScore)
	}
	n := float64(len(samples))
	return progress / n, score / n
}

func direction(delta float64) string {
	switch {
	case delta > trendThreshold:
		return "improving"
	case delta < -trendThreshold:
		return "declining"
	default:
		return "stable"
	}
}

// GetStatusSummary derives a coarse migration status from the latest
// sample, with a crude linear completion estimate when progress is
// improving.
func (m *Monitor) GetStatusSummary() StatusSummary {
	latest := m.LatestMetrics()
	trend := m.GetTrendAnalysis()

	m.mu.Lock()
	active := m.unresolvedCountLocked()
	m.mu.Unlock()

	summary := StatusSummary{
		Status:       StatusNotStarted,
		Trend:        trend.ProgressTrend,
		ActiveAlerts: active,
	}
	if latest == nil {
		return summary
	}

	summary.Progress = latest.MigrationProgress
	summary.ValidationScore = latest.ValidationScore
	summary.CriticalIssues = latest.CriticalIssues

	switch {
	case latest.MigrationProgress == 0:
		summary.Status = StatusNotStarted
	case latest.MigrationProgress >= 100 && latest.ValidationScore >= 90:
		summary.Status = StatusCompleted
	case latest.CriticalIssues > 0:
		summary.Status = StatusFailed
	default:
		summary.Status = StatusInProgress
	}

	if summary.Status == StatusInProgress && trend.ProgressTrend == "improving" && trend.SampleCount > 0 {
		rate := trend.AverageProgress / float64(trend.SampleCount)
		if rate > 0 {
			hours := float64(100-latest.MigrationProgress) / rate
			summary.EstimatedHours = hours
			eta := nowFunc().Add(time.Duration(hours * float64(time.Hour)))
			summary.EstimatedCompletion = &eta
		}
	}

	return summary
}

// GenerateReport bundles metrics, validation, unresolved alerts, and a
// rule-driven action list into one operator-facing document.
func (m *Monitor) GenerateReport(ctx context.Context, reportType string) (*MonitoringReport, error) {
	metrics, err := m.CollectMetrics(ctx)
	if err != nil {
		return nil, err
	}
	validation, err := m.validator.RunCompleteValidation(ctx)
	if err != nil {
		return nil, err
	}

	var unresolved []Alert
	for _, alert := range m.Alerts() {
		if !alert.Resolved {
			unresolved = append(unresolved, alert)
		}
	}

	report := &MonitoringReport{
		Type:            reportType,
		GeneratedAt:     nowFunc(),
		Metrics:         *metrics,
		Validation:      validation,
		Alerts:          unresolved,
		Recommendations: validation.Recommendations,
		NextActions:     nextActions(metrics, validation),
	}
	return report, nil
}

func nextActions(metrics *Metrics, validation *Report) []string {
	var actions []string

	if metrics.CriticalIssues > 0 {
		actions = append(actions, fmt.Sprintf("Investigate and resolve %d critical issues first", metrics.CriticalIssues))
	}
	if metrics.UsersWithoutWorkspace > 0 {
		actions = append(actions, fmt.Sprintf("Migrate the remaining %d users without a workspace", metrics.UsersWithoutWorkspace))
	}
	if metrics.UserSubscriptions > 0 {
		actions = append(actions, fmt.Sprintf("Migrate the remaining %d legacy user subscriptions", metrics.UserSubscriptions))
	}
	if validation.Score < 90 {
		actions = append(actions, fmt.Sprintf("Improve the validation score from %d by working through the reported issues", validation.Score))
	}
	if metrics.MigrationProgress >= 90 {
		actions = append(actions, "Keep monitoring until all legacy records are migrated, then schedule final validation")
	}
	if len(actions) == 0 {
		actions = append(actions, "No action required; continue periodic monitoring")
	}
	return actions
}

// Run samples on a fixed interval until the context is cancelled. A
// single-flight guard skips a tick while the previous sample is still
// running.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.sampling.CompareAndSwap(false, true) {
				m.log.Debug("previous sample still running, skipping tick")
				continue
			}
			if _, err := m.CheckForAlerts(ctx); err != nil {
				m.log.WithError(err).Warn("monitoring sample failed")
			}
			m.sampling.Store(false)
		}
	}
}
