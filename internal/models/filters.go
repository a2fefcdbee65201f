package models

// ComparableFilters stores the plausibility bounds applied to comparables
// before statistics are computed.
type ComparableFilters struct {
	SubjectSurface *float64 `json:"subject_surface"`
	MinSurface     *float64 `json:"min_surface"`
	MaxSurface     *float64 `json:"max_surface"`
	MinPricePerSqm *float64 `json:"min_price_per_sqm"`
}

// IsAllowed checks if a comparable matches the filter criteria
func (f *ComparableFilters) IsAllowed(point ComparablePoint) bool {
	if f == nil {
		return true // No filters means allow all
	}

	// Check surface range
	if f.MinSurface != nil && point.Surface < *f.MinSurface {
		return false
	}
	if f.MaxSurface != nil && point.Surface > *f.MaxSurface {
		return false
	}

	// Check price floor
	if f.MinPricePerSqm != nil && point.PricePerSqm < *f.MinPricePerSqm {
		return false
	}

	return true
}
