package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"estatedesk/server/internal/models"
)

// GetCacheEntry returns the entry for key, or nil when it is missing or expired.
func (d *Database) GetCacheEntry(ctx context.Context, key string, now time.Time) (*models.ComparableQueryCacheEntry, error) {
	var entry models.ComparableQueryCacheEntry
	err := d.db.WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", key, now.UTC()).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read comparables cache: %w", err)
	}
	return &entry, nil
}

// UpsertCacheEntry inserts or replaces the entry stored under its key.
func (d *Database) UpsertCacheEntry(ctx context.Context, entry *models.ComparableQueryCacheEntry) error {
	entry.ExpiresAt = entry.ExpiresAt.UTC()
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"organization_id",
			"property_id",
			"response",
			"final_radius",
			"comparable_count",
			"target_reached",
			"expires_at",
			"updated_at",
		}),
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to write comparables cache: %w", err)
	}
	return nil
}

// PurgeExpired deletes entries that expired before now.
func (d *Database) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := d.db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&models.ComparableQueryCacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge comparables cache: %w", result.Error)
	}
	return result.RowsAffected, nil
}
