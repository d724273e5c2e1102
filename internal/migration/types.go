// Package migration implements the one-time transition of subscription
// ownership from individual users to pharmacy workspaces: the rewrite
// engine itself, read-only integrity scans, a scored validation
// service, resumable progress tracking, orchestration of the full
// lifecycle, and metrics/alerting around a running migration.
package migration

import (
	"time"
)

// MigrationName keys the persisted progress row for this migration.
const MigrationName = "workspace_subscriptions"

// nowFunc is swapped out in tests.
var nowFunc = time.Now

// Issue severities
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
)

// Warning impact levels
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

// Issue is one structured validation finding. Issues are ephemeral:
// regenerated on every scan, never persisted.
type Issue struct {
	Severity      string   `json:"severity"`
	Category      string   `json:"category"`
	Description   string   `json:"description"`
	AffectedIDs   []string `json:"affected_ids,omitempty"`
	Count         int      `json:"count"`
	FixSuggestion string   `json:"fix_suggestion,omitempty"`
}

// Warning is a lower-grade finding with an impact classification that
// feeds the validation score separately from issues.
type Warning struct {
	Category    string   `json:"category"`
	Description string   `json:"description"`
	AffectedIDs []string `json:"affected_ids,omitempty"`
	Count       int      `json:"count"`
	Impact      string   `json:"impact"`
}

// ScanResult is the output of one read-only scan family.
type ScanResult struct {
	Issues   []Issue   `json:"issues"`
	Warnings []Warning `json:"warnings"`
}

// Merge appends another scan's findings onto this one.
func (r *ScanResult) Merge(other ScanResult) {
	r.Issues = append(r.Issues, other.Issues...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// CriticalCount returns the number of critical issues.
func (r *ScanResult) CriticalCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// MigrateResult summarizes one engine run.
type MigrateResult struct {
	Success               bool     `json:"success"`
	WorkspacesCreated     int      `json:"workspaces_created"`
	SubscriptionsMigrated int      `json:"subscriptions_migrated"`
	UsersUpdated          int      `json:"users_updated"`
	Errors                []string `json:"errors"`
}

// RollbackResult summarizes one rollback run.
type RollbackResult struct {
	Success               bool     `json:"success"`
	SubscriptionsReverted int      `json:"subscriptions_reverted"`
	Errors                []string `json:"errors"`
}

// CheckStats are the counts behind the engine's lightweight
// completeness check.
type CheckStats struct {
	TotalUsers                    int64 `json:"total_users"`
	MigratedUsers                 int64 `json:"migrated_users"`
	LegacyUserSubscriptions       int64 `json:"legacy_user_subscriptions"`
	SubscriptionsWithoutWorkspace int64 `json:"subscriptions_without_workspace"`
}

// CheckResult is the engine's lightweight completeness check, distinct
// from the full validation service.
type CheckResult struct {
	Valid  bool       `json:"valid"`
	Issues []string   `json:"issues"`
	Stats  CheckStats `json:"stats"`
}

// ValidationStats are the collection counts a validation run is scored
// against.
type ValidationStats struct {
	TotalUsers                 int64 `json:"total_users"`
	UsersWithWorkspace         int64 `json:"users_with_workspace"`
	UsersWithLegacySubs        int64 `json:"users_with_legacy_subscriptions"`
	TotalWorkplaces            int64 `json:"total_workplaces"`
	WorkplacesWithSubscription int64 `json:"workplaces_with_subscription"`
	TotalSubscriptions         int64 `json:"total_subscriptions"`
	WorkspaceSubscriptions     int64 `json:"workspace_subscriptions"`
	UserSubscriptions          int64 `json:"user_subscriptions"`
	OrphanedRecords            int64 `json:"orphaned_records"`
}

// Report is the result of a complete validation run.
type Report struct {
	Valid                bool            `json:"valid"`
	Score                int             `json:"score"`
	DataConsistencyScore int             `json:"data_consistency_score"`
	Issues               []Issue         `json:"issues"`
	Warnings             []Warning       `json:"warnings"`
	Stats                ValidationStats `json:"stats"`
	Recommendations      []string        `json:"recommendations"`
	GeneratedAt          time.Time       `json:"generated_at"`
}

// CriticalCount returns the number of critical issues in the report.
func (r *Report) CriticalCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// ErrorCount returns the number of error-severity issues in the report.
func (r *Report) ErrorCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Metrics is one point-in-time monitoring sample.
type Metrics struct {
	Timestamp              time.Time `json:"timestamp"`
	TotalUsers             int64     `json:"total_users"`
	MigratedUsers          int64     `json:"migrated_users"`
	UsersWithoutWorkspace  int64     `json:"users_without_workspace"`
	TotalWorkplaces        int64     `json:"total_workplaces"`
	TotalSubscriptions     int64     `json:"total_subscriptions"`
	WorkspaceSubscriptions int64     `json:"workspace_subscriptions"`
	UserSubscriptions      int64     `json:"user_subscriptions"`
	ValidationScore        int       `json:"validation_score"`
	CriticalIssues         int       `json:"critical_issues"`
	Errors                 int       `json:"errors"`
	Warnings               int       `json:"warnings"`
	MigrationProgress      int       `json:"migration_progress"`
}

// Alert severities
const (
	AlertCritical = "critical"
	AlertError    = "error"
	AlertWarning  = "warning"
	AlertInfo     = "info"
)

// Alert is an in-memory, process-lifetime monitoring alert. Alerts are
// keyed by category: a condition that keeps holding refreshes the
// existing unresolved alert instead of appending a duplicate.
type Alert struct {
	ID         string                 `json:"id"`
	Severity   string                 `json:"severity"`
	Category   string                 `json:"category"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Timestamp  time.Time              `json:"timestamp"`
	Resolved   bool                   `json:"resolved"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// TrendAnalysis summarizes the direction of recent samples.
type TrendAnalysis struct {
	ProgressTrend   string  `json:"progress_trend"`   // improving|declining|stable
	ValidationTrend string  `json:"validation_trend"` // improving|declining|stable
	AverageProgress float64 `json:"average_progress"`
	AverageScore    float64 `json:"average_score"`
	SampleCount     int     `json:"sample_count"`
}

// Migration status values derived by the monitor.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// StatusSummary is the monitor's coarse view of the migration.
type StatusSummary struct {
	Status              string     `json:"status"`
	Progress            int        `json:"progress"`
	ValidationScore     int        `json:"validation_score"`
	CriticalIssues      int        `json:"critical_issues"`
	ActiveAlerts        int        `json:"active_alerts"`
	Trend               string     `json:"trend"`
	EstimatedHours      float64    `json:"estimated_hours,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// MonitoringReport bundles everything an operator needs in one document.
type MonitoringReport struct {
	Type            string    `json:"type"` // daily|weekly|on_demand
	GeneratedAt     time.Time `json:"generated_at"`
	Metrics         Metrics   `json:"metrics"`
	Validation      *Report   `json:"validation"`
	Alerts          []Alert   `json:"alerts"`
	Recommendations []string  `json:"recommendations"`
	NextActions     []string  `json:"next_actions"`
}

// BackupStats summarizes backup artifacts recorded for this migration.
type BackupStats struct {
	BackupCount    int64            `json:"backup_count"`
	TotalDocuments int64            `json:"total_documents"`
	Collections    map[string]int64 `json:"collections"`
	LatestBackup   *time.Time       `json:"latest_backup,omitempty"`
}

// Options control one orchestrated migration run.
type Options struct {
	DryRun                 bool `json:"dryRun"`
	BatchSize              int  `json:"batchSize"`
	EnableBackup           bool `json:"enableBackup"`
	EnableProgressTracking bool `json:"enableProgressTracking"`
	EnableIntegrityChecks  bool `json:"enableIntegrityChecks"`
	ContinueOnError        bool `json:"continueOnError"`
}

// DefaultOptions returns the options used when a caller supplies none.
func DefaultOptions() Options {
	return Options{
		BatchSize:              100,
		EnableBackup:           true,
		EnableProgressTracking: true,
		EnableIntegrityChecks:  true,
		ContinueOnError:        true,
	}
}

// DryRunResult projects what a real run would touch, without mutating.
type DryRunResult struct {
	WorkspacesToCreate    int64    `json:"workspaces_to_create"`
	SubscriptionsToMigrate int64   `json:"subscriptions_to_migrate"`
	UsersToUpdate         int64    `json:"users_to_update"`
	Issues                []string `json:"issues"`
}

// OrchestratorResult is the aggregate outcome of an orchestrated run.
type OrchestratorResult struct {
	Success        bool           `json:"success"`
	Migration      *MigrateResult `json:"migration,omitempty"`
	Rollback       *RollbackResult `json:"rollback,omitempty"`
	Validation     *CheckResult   `json:"validation,omitempty"`
	IntegrityCheck *ScanResult    `json:"integrity_check,omitempty"`
	BackupStats    *BackupStats   `json:"backup_stats,omitempty"`
}
