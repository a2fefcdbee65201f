package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"estatedesk/server/internal/models"
)

// UpsertTransactions inserts rows whose hash is not stored yet and ignores
// the others. It returns the number of inserted rows.
func UpsertTransactions(tx *gorm.DB, rows []models.ComparableTransaction) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batch := make([]models.ComparableTransaction, len(rows))
	copy(batch, rows)
	for i := range batch {
		batch[i].ID = 0
	}

	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_row_hash"}},
		DoNothing: true,
	}).Create(&batch)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to upsert comparable transactions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (d *Database) UpsertTransactions(ctx context.Context, rows []models.ComparableTransaction) (int64, error) {
	return UpsertTransactions(d.db.WithContext(ctx), rows)
}

func (d *Database) CountTransactions(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&models.ComparableTransaction{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
