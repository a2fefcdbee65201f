package database

import "estatedesk/server/internal/models"

func (d *Database) RunMigrations() error {
	if err := d.db.AutoMigrate(
		&models.Property{},
		&models.ComparableTransaction{},
		&models.ComparableQueryCacheEntry{},
	); err != nil {
		return err
	}

	// Comparable lookups by area and period
	if err := d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_comparable_transactions_coordinates
		ON comparable_transactions(latitude, longitude);
	`).Error; err != nil {
		return err
	}

	return nil
}
