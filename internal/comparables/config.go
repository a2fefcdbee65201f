package comparables

import "time"

// Defaults for the comparable search and cache.
var (
	DefaultRadiiMeters = []int{1000, 2000, 3000, 5000, 7000, 10000}
)

const (
	DefaultTargetCount        = 100
	DefaultLookbackYears      = 10
	DefaultTrendYears         = 5
	DefaultMinPricePerSqm     = 500.0
	DefaultLandMinPricePerSqm = 1.0
	DefaultCacheTTL           = 7 * 24 * time.Hour
	MaxResponseComparables    = 50
)

type Config struct {
	RadiiMeters        []int
	TargetCount        int
	LookbackYears      int
	TrendYears         int
	MinPricePerSqm     float64
	LandMinPricePerSqm float64
	CacheTTL           time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.RadiiMeters) == 0 {
		c.RadiiMeters = DefaultRadiiMeters
	}
	if c.TargetCount <= 0 {
		c.TargetCount = DefaultTargetCount
	}
	if c.LookbackYears <= 0 {
		c.LookbackYears = DefaultLookbackYears
	}
	if c.TrendYears <= 0 {
		c.TrendYears = DefaultTrendYears
	}
	if c.MinPricePerSqm <= 0 {
		c.MinPricePerSqm = DefaultMinPricePerSqm
	}
	if c.LandMinPricePerSqm <= 0 {
		c.LandMinPricePerSqm = DefaultLandMinPricePerSqm
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	return c
}

// priceFloor returns the minimum price per square metre for a property type.
func (c Config) priceFloor(isLand bool) float64 {
	if isLand {
		return c.LandMinPricePerSqm
	}
	return c.MinPricePerSqm
}
