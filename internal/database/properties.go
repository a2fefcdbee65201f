package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"estatedesk/server/internal/models"
)

// GetProperty loads a property scoped to its organization.
func (d *Database) GetProperty(ctx context.Context, organizationID, id uuid.UUID) (*models.Property, error) {
	var property models.Property
	err := d.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, organizationID).
		Take(&property).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPropertyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return &property, nil
}

func (d *Database) CreateProperty(ctx context.Context, property *models.Property) error {
	if property.ID == uuid.Nil {
		property.ID = uuid.New()
	}
	if property.Type == "" {
		property.Type = models.PropertyTypeOther
	}
	if err := d.db.WithContext(ctx).Create(property).Error; err != nil {
		return fmt.Errorf("failed to create property: %w", err)
	}
	return nil
}

// UpdateAttributes writes back the attribute bag only. Other columns belong
// to the CRUD layer.
func (d *Database) UpdateAttributes(ctx context.Context, property *models.Property) error {
	result := d.db.WithContext(ctx).
		Model(&models.Property{}).
		Where("id = ? AND organization_id = ?", property.ID, property.OrganizationID).
		Update("attributes", property.Attributes)
	if result.Error != nil {
		return fmt.Errorf("failed to update property attributes: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPropertyNotFound
	}
	return nil
}
