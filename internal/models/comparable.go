package models

import (
	"time"

	"gorm.io/datatypes"
)

// ComparableTransaction is a normalized sale from the public transaction
// registry. Rows are shared across properties and deduplicated by SourceRowHash.
type ComparableTransaction struct {
	ID            uint           `json:"-" gorm:"primaryKey;autoIncrement"`
	SourceID      string         `json:"source_id" gorm:"type:varchar(64);index"`
	SourceRowHash string         `json:"source_row_hash" gorm:"type:char(64);uniqueIndex;not null"`
	SaleDate      time.Time      `json:"sale_date" gorm:"type:date;index;not null"`
	SalePrice     float64        `json:"sale_price" gorm:"not null"`
	BuiltSurface  *float64       `json:"built_surface"`
	LandSurface   *float64       `json:"land_surface"`
	Surface       float64        `json:"surface" gorm:"not null"`
	PropertyType  PropertyType   `json:"property_type" gorm:"type:varchar(16);index;not null"`
	Latitude      *float64       `json:"latitude"`
	Longitude     *float64       `json:"longitude"`
	PostalCode    string         `json:"postal_code" gorm:"type:varchar(10)"`
	City          string         `json:"city"`
	AdminCode     string         `json:"admin_code" gorm:"type:varchar(10);index"`
	Raw           datatypes.JSON `json:"raw,omitempty"`
	CreatedAt     time.Time      `json:"-"`
}

func (ComparableTransaction) TableName() string { return "comparable_transactions" }

// PricePerSqm is zero when the surface is unknown.
func (t ComparableTransaction) PricePerSqm() float64 {
	if t.Surface <= 0 {
		return 0
	}
	return t.SalePrice / t.Surface
}

// ComparablePoint is the projection used for responses and regression.
type ComparablePoint struct {
	SaleDate       time.Time `json:"sale_date"`
	Surface        float64   `json:"surface"`
	LandSurface    *float64  `json:"land_surface,omitempty"`
	SalePrice      float64   `json:"sale_price"`
	PricePerSqm    float64   `json:"price_per_sqm"`
	DistanceMeters *float64  `json:"distance_meters,omitempty"`
	City           string    `json:"city,omitempty"`
	PostalCode     string    `json:"postal_code,omitempty"`
}

// RegressionResult holds an ordinary least squares price ~ surface fit.
// Every pointer is nil when fewer than two valid points exist.
type RegressionResult struct {
	Slope     *float64 `json:"slope"`
	Intercept *float64 `json:"intercept"`
	R2        *float64 `json:"r2"`
	N         int      `json:"n"`
}

// ComparableQueryCacheEntry persists a computed comparables response under a
// deterministic signature of every parameter that shaped it.
type ComparableQueryCacheEntry struct {
	CacheKey        string         `gorm:"type:char(64);primaryKey"`
	OrganizationID  string         `gorm:"type:uuid;index"`
	PropertyID      string         `gorm:"type:uuid;index"`
	Response        datatypes.JSON `gorm:"not null"`
	FinalRadius     int
	ComparableCount int
	TargetReached   bool
	ExpiresAt       time.Time `gorm:"index;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ComparableQueryCacheEntry) TableName() string { return "comparable_query_cache" }

// Criterion is one attribute that weighed on a valuation.
type Criterion struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// ValuationSnapshot is the last valuation embedded into the property's
// attribute bag. The prompt is deliberately not part of it.
type ValuationSnapshot struct {
	CalculatedValue *int64      `json:"calculated_value"`
	Justification   string      `json:"justification"`
	GeneratedAt     time.Time   `json:"generated_at"`
	ComparablesUsed int         `json:"comparables_used"`
	Criteria        []Criterion `json:"criteria"`
}

// SetValuationSnapshot overwrites the valuation group of the attribute bag.
func (p *Property) SetValuationSnapshot(s ValuationSnapshot) {
	criteria := make([]interface{}, 0, len(s.Criteria))
	for _, c := range s.Criteria {
		criteria = append(criteria, map[string]interface{}{
			"key":   c.Key,
			"label": c.Label,
			"value": c.Value,
		})
	}
	var value interface{}
	if s.CalculatedValue != nil {
		value = *s.CalculatedValue
	}
	p.Set(CategoryValuation, "calculated_value", value)
	p.Set(CategoryValuation, "justification", s.Justification)
	p.Set(CategoryValuation, "generated_at", s.GeneratedAt.UTC().Format(time.RFC3339))
	p.Set(CategoryValuation, "comparables_used", s.ComparablesUsed)
	p.Set(CategoryValuation, "criteria", criteria)
}
