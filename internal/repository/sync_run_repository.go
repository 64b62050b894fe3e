package repository

import (
	"context"
	"errors"

	"github.com/straye-as/order-sync/internal/domain"
	"gorm.io/gorm"
)

// ErrNoRuns is returned when the history holds no sync runs
var ErrNoRuns = errors.New("no sync runs recorded")

// SyncRunRepository handles sync run history data access
type SyncRunRepository struct {
	db *gorm.DB
}

// NewSyncRunRepository creates a new sync run repository
func NewSyncRunRepository(db *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Create inserts a run when its cycle starts
func (r *SyncRunRepository) Create(ctx context.Context, run *domain.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Finish stores the final status and counters of a run
func (r *SyncRunRepository) Finish(ctx context.Context, run *domain.SyncRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// Latest returns the most recently started run
func (r *SyncRunRepository) Latest(ctx context.Context) (*domain.SyncRun, error) {
	var run domain.SyncRun
	err := r.db.WithContext(ctx).Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRecent returns up to limit runs, newest first
func (r *SyncRunRepository) ListRecent(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []domain.SyncRun
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// Prune deletes every run except the newest keep runs and returns the number deleted
func (r *SyncRunRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	newest := r.db.Model(&domain.SyncRun{}).
		Select("id").
		Order("started_at DESC").
		Limit(keep)

	result := r.db.WithContext(ctx).
		Where("id NOT IN (?)", newest).
		Delete(&domain.SyncRun{})
	return result.RowsAffected, result.Error
}
