package valuation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"estatedesk/server/internal/models"
)

// MaxKeyCriteria keeps the brief focused on the attributes that move prices most.
const MaxKeyCriteria = 5

type attributeRef struct {
	category string
	key      string
	label    string
}

// keyCriteria is ordered by priority.
var keyCriteria = []attributeRef{
	{models.CategoryRegulation, "energy_rating", "Energy rating (DPE)"},
	{models.CategoryCharacteristics, "finish_standard", "Finish standard"},
	{models.CategoryAmenities, "pool", "Swimming pool"},
	{models.CategoryCharacteristics, "living_area", "Living area (m²)"},
	{models.CategoryCharacteristics, "land_area", "Land area (m²)"},
	{models.CategoryCharacteristics, "structural_cracks", "Structural cracks"},
	{models.CategoryRegulation, "asbestos", "Asbestos"},
	{models.CategoryLocation, "overlooked", "Overlooked / lack of privacy"},
	{models.CategoryLocation, "noise_level", "Noise level"},
	{models.CategoryCharacteristics, "foundation_repair", "Foundation repair needed"},
	{models.CategoryCharacteristics, "general_condition", "General condition"},
	{models.CategoryCharacteristics, "last_renovation_year", "Last renovation"},
	{models.CategoryCharacteristics, "rooms", "Rooms"},
}

var influenceFactors = []attributeRef{
	{models.CategoryCharacteristics, "sanitation_type", "Sanitation (septic tank / mains sewer)"},
	{models.CategoryAmenities, "garage", "Garage"},
	{models.CategoryAmenities, "carport", "Carport"},
	{models.CategoryAmenities, "solar_panels", "Solar panels"},
	{models.CategoryAmenities, "solar_yield_kwh", "Solar yield (kWh/year)"},
	{models.CategoryAmenities, "fencing", "Fencing"},
	{models.CategoryAmenities, "features", "Other amenities"},
}

// ResolveCriteria returns the first key criteria the property declares.
func ResolveCriteria(p *models.Property) []models.Criterion {
	criteria := make([]models.Criterion, 0, MaxKeyCriteria)
	for _, ref := range keyCriteria {
		if len(criteria) == MaxKeyCriteria {
			break
		}
		if c, ok := criterion(p, ref); ok {
			criteria = append(criteria, c)
		}
	}
	return criteria
}

// InfluenceFactors lists the secondary features that shift a price.
func InfluenceFactors(p *models.Property) []models.Criterion {
	var factors []models.Criterion
	for _, ref := range influenceFactors {
		if c, ok := criterion(p, ref); ok {
			factors = append(factors, c)
		}
	}
	return factors
}

func criterion(p *models.Property, ref attributeRef) (models.Criterion, bool) {
	v, ok := p.Attr(ref.category, ref.key)
	if !ok {
		return models.Criterion{}, false
	}
	value := FormatValue(v)
	if value == "" {
		return models.Criterion{}, false
	}
	return models.Criterion{Key: ref.category + "." + ref.key, Label: ref.label, Value: value}, true
}

// Attribute is one declared key/value pair.
type Attribute struct {
	Key   string
	Value string
}

type AttributeGroup struct {
	Category   string
	Attributes []Attribute
}

// DeclaredAttributes lists every attribute of the bag grouped by category,
// known categories first, keys sorted. The valuation snapshot is skipped.
func DeclaredAttributes(p *models.Property) []AttributeGroup {
	if len(p.Attributes) == 0 {
		return nil
	}

	order := append([]string(nil), models.Categories...)
	known := make(map[string]bool, len(order))
	for _, c := range order {
		known[c] = true
	}
	var extra []string
	for c := range p.Attributes {
		if !known[c] && c != models.CategoryValuation {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	var groups []AttributeGroup
	for _, category := range order {
		values, ok := p.Attributes[category].(map[string]interface{})
		if !ok || len(values) == 0 {
			continue
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		group := AttributeGroup{Category: category}
		for _, k := range keys {
			if v := FormatValue(values[k]); v != "" {
				group.Attributes = append(group.Attributes, Attribute{Key: k, Value: v})
			}
		}
		if len(group.Attributes) > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

// FormatValue renders an attribute for humans. Empty values render as "".
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "yes"
		}
		return "no"
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int, int64:
		return fmt.Sprint(x)
	case []interface{}:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if s := FormatValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}
