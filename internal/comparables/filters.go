package comparables

import (
	"github.com/paulmach/orb"

	"estatedesk/server/internal/geometry"
	"estatedesk/server/internal/models"
)

// Surface range kept around the subject.
const (
	MinSurfaceRatio = 0.5
	MaxSurfaceRatio = 2.0
)

// SubjectSurface resolves the subject's comparable surface the same way
// transaction surfaces are resolved: legal (Carrez) area, then living area,
// then land area. Land plots start with their land area.
func SubjectSurface(p *models.Property) *float64 {
	keys := []string{"carrez_area", "living_area", "land_area"}
	if p.Type == models.PropertyTypeLand {
		keys = []string{"land_area", "carrez_area", "living_area"}
	}
	for _, key := range keys {
		if v, ok := p.Number(models.CategoryCharacteristics, key); ok && v > 0 {
			return &v
		}
	}
	return nil
}

// ToPoint projects a transaction for statistics and responses. The distance
// is set when both the subject and the sale are located.
func ToPoint(tx models.ComparableTransaction, center *orb.Point) models.ComparablePoint {
	point := models.ComparablePoint{
		SaleDate:    tx.SaleDate,
		Surface:     tx.Surface,
		LandSurface: tx.LandSurface,
		SalePrice:   tx.SalePrice,
		PricePerSqm: tx.PricePerSqm(),
		City:        tx.City,
		PostalCode:  tx.PostalCode,
	}
	if center != nil && tx.Latitude != nil && tx.Longitude != nil {
		d := geometry.DistanceMeters(*center, orb.Point{*tx.Longitude, *tx.Latitude})
		point.DistanceMeters = &d
	}
	return point
}

// NewFilters describes the plausibility bounds for a subject. The surface
// range is omitted when the subject surface is unknown.
func NewFilters(subjectSurface *float64, minPricePerSqm float64) models.ComparableFilters {
	filters := models.ComparableFilters{SubjectSurface: subjectSurface}
	if subjectSurface != nil && *subjectSurface > 0 {
		minSurface := *subjectSurface * MinSurfaceRatio
		maxSurface := *subjectSurface * MaxSurfaceRatio
		filters.MinSurface = &minSurface
		filters.MaxSurface = &maxSurface
	}
	if minPricePerSqm > 0 {
		filters.MinPricePerSqm = &minPricePerSqm
	}
	return filters
}

// FilterBySurface keeps points within the surface range of the filters.
func FilterBySurface(points []models.ComparablePoint, filters models.ComparableFilters) []models.ComparablePoint {
	surfaceOnly := &models.ComparableFilters{MinSurface: filters.MinSurface, MaxSurface: filters.MaxSurface}
	return keep(points, surfaceOnly)
}

// FilterByPricePerSqm drops points below the price floor, which catches
// garages and bare plots filed under the requested type.
func FilterByPricePerSqm(points []models.ComparablePoint, filters models.ComparableFilters) []models.ComparablePoint {
	floorOnly := &models.ComparableFilters{MinPricePerSqm: filters.MinPricePerSqm}
	return keep(points, floorOnly)
}

// ApplyFilters runs the surface filter then the price floor.
func ApplyFilters(points []models.ComparablePoint, filters models.ComparableFilters) []models.ComparablePoint {
	return FilterByPricePerSqm(FilterBySurface(points, filters), filters)
}

func keep(points []models.ComparablePoint, filters *models.ComparableFilters) []models.ComparablePoint {
	out := make([]models.ComparablePoint, 0, len(points))
	for _, p := range points {
		if filters.IsAllowed(p) {
			out = append(out, p)
		}
	}
	return out
}
