// Package usagerepo implements usage.Repository using GORM.
package usagerepo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"tutor-server/services/voice-api/internal/domain/usage"
)

// UsageRepository implements usage.Repository.
type UsageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Create stores a new usage log record.
func (r *UsageRepository) Create(ctx context.Context, record *usage.Log) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// UserSecondsSince sums the logged seconds for a user since the given time.
func (r *UsageRepository) UserSecondsSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&usage.Log{}).
		Select("COALESCE(SUM(duration_seconds), 0)").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Scan(&total).Error
	return total, err
}

// FindByUser retrieves the most recent usage logs for a user.
func (r *UsageRepository) FindByUser(ctx context.Context, userID string, limit int) ([]*usage.Log, error) {
	var logs []*usage.Log
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
