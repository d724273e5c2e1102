package migration

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pharmacare-backend/internal/models"
)

// ProgressStore persists migration progress for inspection after an
// interrupted run and tracks backup bookkeeping for rollback decisions.
// One progress row exists per migration name; saves overwrite it
// wholesale rather than merging.
type ProgressStore struct {
	db   *gorm.DB
	name string
	log  *logrus.Entry
}

// NewProgressStore creates a progress store for the named migration.
func NewProgressStore(db *gorm.DB, name string) *ProgressStore {
	return &ProgressStore{
		db:   db,
		name: name,
		log:  logrus.WithField("component", "progress-store"),
	}
}

// SaveProgress upserts the progress row for this migration.
func (s *ProgressStore) SaveProgress(ctx context.Context, progress *models.MigrationProgress) error {
	progress.MigrationName = s.name
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "migration_name"}},
		UpdateAll: true,
	}).Create(progress).Error
	if err != nil {
		return fmt.Errorf("save migration progress: %w", err)
	}
	return nil
}

// LoadProgress fetches the progress row, or nil when none exists.
func (s *ProgressStore) LoadProgress(ctx context.Context) (*models.MigrationProgress, error) {
	var progress models.MigrationProgress
	err := s.db.WithContext(ctx).Where("migration_name = ?", s.name).First(&progress).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load migration progress: %w", err)
	}
	return &progress, nil
}

// Cleanup deletes the progress row. Called only after a fully
// successful migration.
func (s *ProgressStore) Cleanup(ctx context.Context) error {
	err := s.db.WithContext(ctx).Where("migration_name = ?", s.name).Delete(&models.MigrationProgress{}).Error
	if err != nil {
		return fmt.Errorf("cleanup migration progress: %w", err)
	}
	s.log.Info("migration progress cleaned up")
	return nil
}

// RecordBackup notes that a collection snapshot was taken. Snapshot
// storage is handled outside the application.
func (s *ProgressStore) RecordBackup(ctx context.Context, collection string, documents int64, location string) error {
	backup := models.MigrationBackup{
		MigrationName: s.name,
		Collection:    collection,
		DocumentCount: documents,
		Location:      location,
	}
	if err := s.db.WithContext(ctx).Create(&backup).Error; err != nil {
		return fmt.Errorf("record backup: %w", err)
	}
	return nil
}

// GetBackupStats summarizes the backup artifacts recorded for this
// migration.
func (s *ProgressStore) GetBackupStats(ctx context.Context) (*BackupStats, error) {
	var backups []models.MigrationBackup
	err := s.db.WithContext(ctx).
		Where("migration_name = ?", s.name).
		Order("created_at ASC").
		Find(&backups).Error
	if err != nil {
		return nil, fmt.Errorf("fetch backup records: %w", err)
	}

	stats := &BackupStats{Collections: map[string]int64{}}
	for _, b := range backups {
		stats.BackupCount++
		stats.TotalDocuments += b.DocumentCount
		stats.Collections[b.Collection] += b.DocumentCount
		created := b.CreatedAt
		stats.LatestBackup = &created
	}
	return stats, nil
}
