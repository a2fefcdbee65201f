package comparables

import (
	"math"
	"sort"

	"estatedesk/server/internal/models"
)

// PricingPosition classifies an asking price against the predicted price.
type PricingPosition string

const (
	PricingUnderPriced PricingPosition = "UNDER_PRICED"
	PricingNormal      PricingPosition = "NORMAL"
	PricingOverPriced  PricingPosition = "OVER_PRICED"
	PricingUnknown     PricingPosition = "UNKNOWN"
)

// PricingTolerance is the relative deviation still considered NORMAL.
const PricingTolerance = 0.10

// Summary describes the distribution of one metric.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// Summarize returns nil for an empty set.
func Summarize(values []float64) *Summary {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return &Summary{
		Count:  len(sorted),
		Min:    sorted[0],
		Q1:     quantile(sorted, 0.25),
		Median: quantile(sorted, 0.5),
		Q3:     quantile(sorted, 0.75),
		Max:    sorted[len(sorted)-1],
	}
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*frac
}

// Regress fits price = slope * surface + intercept by ordinary least squares
// over points with a positive surface and price.
func Regress(points []models.ComparablePoint) models.RegressionResult {
	var xs, ys []float64
	for _, p := range points {
		if p.Surface > 0 && p.SalePrice > 0 {
			xs = append(xs, p.Surface)
			ys = append(ys, p.SalePrice)
		}
	}

	result := models.RegressionResult{N: len(xs)}
	if len(xs) < 2 {
		return result
	}

	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy, sst float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		sxx += dx * dx
		sxy += dx * dy
		sst += dy * dy
	}
	if sxx == 0 {
		return result
	}

	slope := sxy / sxx
	intercept := meanY - slope*meanX

	r2 := 1.0
	if sst > 0 {
		var ssr float64
		for i := range xs {
			d := slope*xs[i] + intercept - meanY
			ssr += d * d
		}
		r2 = ssr / sst
	}

	result.Slope = &slope
	result.Intercept = &intercept
	result.R2 = &r2
	return result
}

// PredictPrice evaluates the fit at surface, nil when the result is unusable.
func PredictPrice(reg models.RegressionResult, surface *float64) *float64 {
	if reg.Slope == nil || reg.Intercept == nil || surface == nil || *surface <= 0 {
		return nil
	}
	price := *reg.Slope**surface + *reg.Intercept
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return nil
	}
	return &price
}

// ClassifyPricing compares asking to predicted. The deviation is relative to
// the predicted price and is nil when either price is missing.
func ClassifyPricing(asking, predicted *float64) (PricingPosition, *float64) {
	if asking == nil || predicted == nil || *asking <= 0 || *predicted <= 0 {
		return PricingUnknown, nil
	}
	deviation := (*asking - *predicted) / *predicted
	switch {
	case deviation > PricingTolerance:
		return PricingOverPriced, &deviation
	case deviation < -PricingTolerance:
		return PricingUnderPriced, &deviation
	default:
		return PricingNormal, &deviation
	}
}

// TrendYear aggregates the sales of one calendar year.
type TrendYear struct {
	Year                 int      `json:"year"`
	Count                int      `json:"count"`
	AvgPricePerSqm       float64  `json:"avg_price_per_sqm"`
	CountChangePct       *float64 `json:"count_change_pct"`
	PricePerSqmChangePct *float64 `json:"price_per_sqm_change_pct"`
}

// MarketTrend returns the most recent years present in points, oldest
// first, each compared with the calendar year before it.
func MarketTrend(points []models.ComparablePoint, years int) []TrendYear {
	type bucket struct {
		count int
		sum   float64
	}
	buckets := make(map[int]*bucket)
	for _, p := range points {
		if p.SaleDate.IsZero() || p.PricePerSqm <= 0 {
			continue
		}
		y := p.SaleDate.Year()
		b, ok := buckets[y]
		if !ok {
			b = &bucket{}
			buckets[y] = b
		}
		b.count++
		b.sum += p.PricePerSqm
	}
	if len(buckets) == 0 || years <= 0 {
		return nil
	}

	present := make([]int, 0, len(buckets))
	for y := range buckets {
		present = append(present, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(present)))
	if len(present) > years {
		present = present[:years]
	}
	sort.Ints(present)

	trend := make([]TrendYear, 0, len(present))
	for _, y := range present {
		b := buckets[y]
		row := TrendYear{
			Year:           y,
			Count:          b.count,
			AvgPricePerSqm: b.sum / float64(b.count),
		}
		if prev, ok := buckets[y-1]; ok {
			countChange := percentChange(float64(prev.count), float64(b.count))
			priceChange := percentChange(prev.sum/float64(prev.count), row.AvgPricePerSqm)
			row.CountChangePct = countChange
			row.PricePerSqmChangePct = priceChange
		}
		trend = append(trend, row)
	}
	return trend
}

func percentChange(from, to float64) *float64 {
	if from == 0 {
		return nil
	}
	pct := (to - from) / from * 100
	return &pct
}
