package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"pharmacare-backend/internal/models"
)

// Orchestrator states
const (
	StateIdle           = "idle"
	StatePreChecking    = "preChecking"
	StateMigrating      = "migrating"
	StateSavingProgress = "savingProgress"
	StatePostValidating = "postValidating"
	StatePostChecking   = "postChecking"
	StateDone           = "done"
	StateFailed         = "failed"
)

// Orchestrator composes the engine, checker, validator, and progress
// store into the full migration lifecycle:
// pre-check, migrate, save progress, post-validate, post-check, report.
type Orchestrator struct {
	db       *gorm.DB
	engine   *Engine
	checker  *Checker
	validator *Validator
	progress *ProgressStore
	lock     *RunLock
	log      *logrus.Entry

	mu    sync.Mutex
	state string
}

// NewOrchestrator wires the migration services together. The lock may
// be nil when Redis is not configured.
func NewOrchestrator(db *gorm.DB, lock *RunLock) *Orchestrator {
	return &Orchestrator{
		db:        db,
		engine:    NewEngine(db),
		checker:   NewChecker(db),
		validator: NewValidator(db),
		progress:  NewProgressStore(db, MigrationName),
		lock:      lock,
		log:       logrus.WithField("component", "migration-orchestrator"),
		state:     StateIdle,
	}
}

// State reports the orchestrator's current lifecycle state.
func (o *Orchestrator) State() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(state string) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
	o.log.WithField("state", state).Debug("orchestrator state change")
}

// Validator exposes the composed validation service.
func (o *Orchestrator) Validator() *Validator { return o.validator }

// Progress exposes the composed progress store.
func (o *Orchestrator) Progress() *ProgressStore { return o.progress }

// ExecuteMigration runs the full migration lifecycle. Per-record
// failures are collected inside the engine result; an error return
// means the run itself could not proceed.
func (o *Orchestrator) ExecuteMigration(ctx context.Context, opts Options) (result *OrchestratorResult, err error) {
	if opts.DryRun {
		dry, dryErr := o.DryRun(ctx)
		if dryErr != nil {
			return nil, dryErr
		}
		return &OrchestratorResult{
			Success: true,
			Validation: &CheckResult{
				Valid:  len(dry.Issues) == 0,
				Issues: dry.Issues,
			},
		}, nil
	}

	if o.lock != nil {
		if err := o.lock.Acquire(ctx); err != nil {
			return nil, err
		}
		defer func() {
			if relErr := o.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
				o.log.WithError(relErr).Warn("failed to release migration lock")
			}
		}()
	}

	startedAt := time.Now()
	defer func() {
		if err != nil {
			o.setState(StateFailed)
			o.saveFailedProgress(ctx, startedAt, err)
		}
	}()

	if opts.EnableIntegrityChecks {
		o.setState(StatePreChecking)
		if pre, preErr := o.checker.CheckOrphanedRecords(ctx); preErr != nil {
			o.log.WithError(preErr).Warn("pre-migration integrity check failed")
		} else {
			o.log.WithField("issues", len(pre.Issues)).Info("pre-migration integrity check complete")
		}
	}

	if opts.EnableProgressTracking {
		if prior, loadErr := o.progress.LoadProgress(ctx); loadErr != nil {
			o.log.WithError(loadErr).Warn("could not load prior migration progress")
		} else if prior != nil {
			o.log.WithFields(logrus.Fields{
				"processed": prior.ProcessedItems,
				"failed":    prior.FailedItems,
				"started":   prior.StartedAt,
			}).Info("prior migration progress found; users already assigned a workspace are skipped")
		}
	}

	if opts.EnableBackup {
		if backupErr := o.recordBackups(ctx); backupErr != nil {
			o.log.WithError(backupErr).Warn("backup bookkeeping failed")
		}
	}

	o.setState(StateMigrating)
	migration, err := o.engine.MigrateWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("migration run: %w", err)
	}

	result = &OrchestratorResult{Migration: migration}

	if opts.EnableProgressTracking {
		o.setState(StateSavingProgress)
		if saveErr := o.progress.SaveProgress(ctx, progressFromResult(migration, startedAt)); saveErr != nil {
			o.log.WithError(saveErr).Warn("could not save migration progress")
		}
	}

	o.setState(StatePostValidating)
	validation, err := o.engine.ValidateMigration(ctx)
	if err != nil {
		return nil, fmt.Errorf("post-migration validation: %w", err)
	}
	result.Validation = validation

	if opts.EnableIntegrityChecks {
		o.setState(StatePostChecking)
		post := &ScanResult{}
		if orphaned, postErr := o.checker.CheckOrphanedRecords(ctx); postErr != nil {
			o.log.WithError(postErr).Warn("post-migration orphan scan failed")
		} else {
			post.Merge(*orphaned)
		}
		if consistency, postErr := o.checker.CheckDataConsistency(ctx); postErr != nil {
			o.log.WithError(postErr).Warn("post-migration consistency scan failed")
		} else {
			post.Merge(*consistency)
		}
		result.IntegrityCheck = post
	}

	if opts.EnableBackup {
		if stats, statsErr := o.progress.GetBackupStats(ctx); statsErr != nil {
			o.log.WithError(statsErr).Warn("could not fetch backup stats")
		} else {
			result.BackupStats = stats
		}
	}

	result.Success = migration.Success && validation.Valid
	if result.Success && opts.EnableProgressTracking {
		if cleanErr := o.progress.Cleanup(ctx); cleanErr != nil {
			o.log.WithError(cleanErr).Warn("could not clean up migration progress")
		}
	}

	o.setState(StateDone)
	return result, nil
}

// ExecuteRollback reverts subscription ownership with the same
// integrity-check bracketing as ExecuteMigration. Workspaces and users
// are not reverted.
func (o *Orchestrator) ExecuteRollback(ctx context.Context) (result *OrchestratorResult, err error) {
	if o.lock != nil {
		if err := o.lock.Acquire(ctx); err != nil {
			return nil, err
		}
		defer func() {
			if relErr := o.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
				o.log.WithError(relErr).Warn("failed to release migration lock")
			}
		}()
	}

	defer func() {
		if err != nil {
			o.setState(StateFailed)
		}
	}()

	o.setState(StatePreChecking)
	if pre, preErr := o.checker.CheckOrphanedRecords(ctx); preErr != nil {
		o.log.WithError(preErr).Warn("pre-rollback integrity check failed")
	} else {
		o.log.WithField("issues", len(pre.Issues)).Info("pre-rollback integrity check complete")
	}

	o.setState(StateMigrating)
	rollback, err := o.engine.Rollback(ctx)
	if err != nil {
		return nil, fmt.Errorf("rollback run: %w", err)
	}

	result = &OrchestratorResult{Rollback: rollback, Success: rollback.Success}

	o.setState(StatePostChecking)
	post := &ScanResult{}
	if orphaned, postErr := o.checker.CheckOrphanedRecords(ctx); postErr != nil {
		o.log.WithError(postErr).Warn("post-rollback orphan scan failed")
	} else {
		post.Merge(*orphaned)
	}
	if consistency, postErr := o.checker.CheckDataConsistency(ctx); postErr != nil {
		o.log.WithError(postErr).Warn("post-rollback consistency scan failed")
	} else {
		post.Merge(*consistency)
	}
	result.IntegrityCheck = post

	o.setState(StateDone)
	return result, nil
}

// DryRun projects what a real run would touch without writing anything:
// both read-only scans plus simple counts of the records a migration
// would process.
func (o *Orchestrator) DryRun(ctx context.Context) (*DryRunResult, error) {
	db := o.db.WithContext(ctx)
	result := &DryRunResult{Issues: []string{}}

	if err := db.Model(&models.User{}).Where("workplace_id IS NULL").Count(&result.WorkspacesToCreate).Error; err != nil {
		return nil, fmt.Errorf("count users without workspace: %w", err)
	}
	result.UsersToUpdate = result.WorkspacesToCreate

	if err := db.Model(&models.User{}).
		Where("workplace_id IS NULL AND current_subscription_id IS NOT NULL").
		Count(&result.SubscriptionsToMigrate).Error; err != nil {
		return nil, fmt.Errorf("count legacy subscriptions: %w", err)
	}

	orphaned, err := o.checker.CheckOrphanedRecords(ctx)
	if err != nil {
		return nil, err
	}
	consistency, err := o.checker.CheckDataConsistency(ctx)
	if err != nil {
		return nil, err
	}
	for _, issue := range append(orphaned.Issues, consistency.Issues...) {
		result.Issues = append(result.Issues, issue.Description)
	}
	for _, warning := range append(orphaned.Warnings, consistency.Warnings...) {
		result.Issues = append(result.Issues, warning.Description)
	}

	return result, nil
}

// recordBackups notes pre-run document counts for the collections the
// migration mutates.
func (o *Orchestrator) recordBackups(ctx context.Context) error {
	db := o.db.WithContext(ctx)
	for _, collection := range []struct {
		name  string
		model interface{}
	}{
		{"users", &models.User{}},
		{"workplaces", &models.Workplace{}},
		{"subscriptions", &models.Subscription{}},
	} {
		var count int64
		if err := db.Model(collection.model).Count(&count).Error; err != nil {
			return err
		}
		location := fmt.Sprintf("pre-migration/%s/%s", MigrationName, collection.name)
		if err := o.progress.RecordBackup(ctx, collection.name, count, location); err != nil {
			return err
		}
	}
	return nil
}

func progressFromResult(result *MigrateResult, startedAt time.Time) *models.MigrationProgress {
	total := result.UsersUpdated + len(result.Errors)
	var errs []models.MigrationError
	for _, msg := range result.Errors {
		errs = append(errs, models.MigrationError{Error: msg, Timestamp: time.Now()})
	}

	progress := &models.MigrationProgress{
		TotalItems:      total,
		ProcessedItems:  total,
		SuccessfulItems: result.UsersUpdated,
		FailedItems:     len(result.Errors),
		CurrentBatch:    1,
		TotalBatches:    1,
		Errors:          errs,
		StartedAt:       startedAt,
	}
	if result.Success {
		now := time.Now()
		progress.CompletedAt = &now
	}
	return progress
}

// saveFailedProgress is a best-effort snapshot written when the run
// itself fails, so the failure is inspectable after the process exits.
func (o *Orchestrator) saveFailedProgress(ctx context.Context, startedAt time.Time, runErr error) {
	progress := &models.MigrationProgress{
		StartedAt: startedAt,
		Errors: []models.MigrationError{
			{Error: runErr.Error(), Timestamp: time.Now()},
		},
		FailedItems: 1,
	}
	if err := o.progress.SaveProgress(context.WithoutCancel(ctx), progress); err != nil {
		o.log.WithError(err).Warn("could not save failed migration progress")
	}
}
