package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Attribute bag categories.
const (
	CategoryGeneral         = "general"
	CategoryLocation        = "location"
	CategoryCharacteristics = "characteristics"
	CategoryFinance         = "finance"
	CategoryRegulation      = "regulation"
	CategoryAmenities       = "amenities"
	CategoryValuation       = "valuation"
)

// Categories lists the declared attribute groups in display order.
var Categories = []string{
	CategoryGeneral,
	CategoryLocation,
	CategoryCharacteristics,
	CategoryFinance,
	CategoryRegulation,
	CategoryAmenities,
}

type PropertyType string

const (
	PropertyTypeApartment  PropertyType = "APARTMENT"
	PropertyTypeHouse      PropertyType = "HOUSE"
	PropertyTypeBuilding   PropertyType = "BUILDING"
	PropertyTypeLand       PropertyType = "LAND"
	PropertyTypeCommercial PropertyType = "COMMERCIAL"
	PropertyTypeOther      PropertyType = "OTHER"
)

// ParsePropertyType maps a free-form value onto the enum, OTHER when unknown.
func ParsePropertyType(s string) PropertyType {
	switch PropertyType(strings.ToUpper(strings.TrimSpace(s))) {
	case PropertyTypeApartment:
		return PropertyTypeApartment
	case PropertyTypeHouse:
		return PropertyTypeHouse
	case PropertyTypeBuilding:
		return PropertyTypeBuilding
	case PropertyTypeLand:
		return PropertyTypeLand
	case PropertyTypeCommercial:
		return PropertyTypeCommercial
	default:
		return PropertyTypeOther
	}
}

// Property is owned by the CRUD layer. The valuation engine only writes the
// cached coordinates and the valuation snapshot inside Attributes.
type Property struct {
	ID             uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID         `json:"organization_id" gorm:"type:uuid;index;not null"`
	Title          string            `json:"title"`
	Address        string            `json:"address"`
	City           string            `json:"city"`
	PostalCode     string            `json:"postal_code"`
	Type           PropertyType      `json:"property_type" gorm:"type:varchar(16);not null;default:OTHER"`
	Price          *int64            `json:"price"`
	Attributes     datatypes.JSONMap `json:"attributes"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (Property) TableName() string { return "properties" }

// Attr returns the raw value stored under category/key.
func (p *Property) Attr(category, key string) (interface{}, bool) {
	if p.Attributes == nil {
		return nil, false
	}
	group, ok := p.Attributes[category].(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := group[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Number returns a numeric attribute. Numeric strings are accepted.
func (p *Property) Number(category, key string) (float64, bool) {
	v, ok := p.Attr(category, key)
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// Bool returns a boolean attribute, accepting the usual textual spellings.
func (p *Property) Bool(category, key string) (bool, bool) {
	v, ok := p.Attr(category, key)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "oui", "1":
			return true, true
		case "false", "no", "non", "0":
			return false, true
		}
	case float64:
		return b != 0, true
	case json.Number:
		f, err := b.Float64()
		return f != 0, err == nil
	}
	return false, false
}

// String returns a non-empty textual attribute.
func (p *Property) String(category, key string) (string, bool) {
	v, ok := p.Attr(category, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Set stores a value under category/key, creating the group when needed.
func (p *Property) Set(category, key string, value interface{}) {
	if p.Attributes == nil {
		p.Attributes = datatypes.JSONMap{}
	}
	group, ok := p.Attributes[category].(map[string]interface{})
	if !ok {
		group = map[string]interface{}{}
		p.Attributes[category] = group
	}
	group[key] = value
}

// Coordinates returns the geocoded position cached in the location group.
func (p *Property) Coordinates() (lat, lon float64, ok bool) {
	lat, okLat := p.Number(CategoryLocation, "latitude")
	lon, okLon := p.Number(CategoryLocation, "longitude")
	if !okLat || !okLon {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

func (p *Property) SetCoordinates(lat, lon float64) {
	p.Set(CategoryLocation, "latitude", lat)
	p.Set(CategoryLocation, "longitude", lon)
}

// AskingPrice prefers the top-level price and falls back to finance.asking_price.
func (p *Property) AskingPrice() (float64, bool) {
	if p.Price != nil && *p.Price > 0 {
		return float64(*p.Price), true
	}
	if raw, ok := p.Attr(CategoryFinance, "asking_price"); ok {
		if v, ok := ToAmount(raw); ok && v > 0 {
			return v, true
		}
	}
	return 0, false
}

// ToAmount is ToFloat for money values: strings go through ParseLooseAmount.
func ToAmount(v interface{}) (float64, bool) {
	if s, ok := v.(string); ok {
		return ParseLooseAmount(s)
	}
	return ToFloat(v)
}

// ToFloat converts JSON-decoded numbers and numeric strings.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		return ParseLooseNumber(n)
	}
	return 0, false
}
