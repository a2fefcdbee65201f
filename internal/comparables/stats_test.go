package comparables

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatedesk/server/internal/models"
)

func TestSummarize(t *testing.T) {
	assert.Nil(t, Summarize(nil))

	s := Summarize([]float64{4, 1, 3, 2, 5})
	require.NotNil(t, s)
	assert.Equal(t, 5, s.Count)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 2.0, s.Q1)
	assert.Equal(t, 3.0, s.Median)
	assert.Equal(t, 4.0, s.Q3)
	assert.Equal(t, 5.0, s.Max)

	even := Summarize([]float64{10, 20, 30, 40})
	require.NotNil(t, even)
	assert.InDelta(t, 25.0, even.Median, 1e-9)
	assert.InDelta(t, 17.5, even.Q1, 1e-9)
	assert.InDelta(t, 32.5, even.Q3, 1e-9)
}

func points(pairs ...[2]float64) []models.ComparablePoint {
	out := make([]models.ComparablePoint, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, models.ComparablePoint{Surface: p[0], SalePrice: p[1]})
	}
	return out
}

func TestRegress(t *testing.T) {
	t.Run("Perfect line", func(t *testing.T) {
		reg := Regress(points([2]float64{50, 312500}, [2]float64{65, 402500}, [2]float64{80, 492500}))
		require.NotNil(t, reg.Slope)
		require.NotNil(t, reg.Intercept)
		require.NotNil(t, reg.R2)
		assert.InDelta(t, 6000, *reg.Slope, 1e-6)
		assert.InDelta(t, 12500, *reg.Intercept, 1e-6)
		assert.InDelta(t, 1, *reg.R2, 1e-12)
		assert.Equal(t, 3, reg.N)
	})

	t.Run("Fewer than two valid points", func(t *testing.T) {
		reg := Regress(points([2]float64{50, 300000}, [2]float64{0, 100000}, [2]float64{60, -1}))
		assert.Nil(t, reg.Slope)
		assert.Nil(t, reg.Intercept)
		assert.Nil(t, reg.R2)
		assert.Equal(t, 1, reg.N)
	})

	t.Run("No surface variance", func(t *testing.T) {
		reg := Regress(points([2]float64{50, 300000}, [2]float64{50, 320000}))
		assert.Nil(t, reg.Slope)
		assert.Nil(t, reg.Intercept)
		assert.Equal(t, 2, reg.N)
	})

	t.Run("No price variance", func(t *testing.T) {
		reg := Regress(points([2]float64{50, 300000}, [2]float64{70, 300000}))
		require.NotNil(t, reg.R2)
		assert.Equal(t, 1.0, *reg.R2)
		assert.InDelta(t, 0, *reg.Slope, 1e-12)
	})

	t.Run("Noisy data", func(t *testing.T) {
		reg := Regress(points([2]float64{40, 250000}, [2]float64{60, 340000}, [2]float64{80, 520000}, [2]float64{100, 560000}))
		require.NotNil(t, reg.R2)
		assert.Greater(t, *reg.R2, 0.0)
		assert.Less(t, *reg.R2, 1.0)
	})
}

func TestPredictPrice(t *testing.T) {
	reg := Regress(points([2]float64{50, 312500}, [2]float64{80, 492500}))
	predicted := PredictPrice(reg, f64(65))
	require.NotNil(t, predicted)
	assert.InDelta(t, 402500, *predicted, 1e-6)

	assert.Nil(t, PredictPrice(reg, nil))
	assert.Nil(t, PredictPrice(models.RegressionResult{}, f64(65)))

	negative := Regress(points([2]float64{50, 100000}, [2]float64{60, 10000}))
	assert.Nil(t, PredictPrice(negative, f64(200)))
}

func TestClassifyPricing(t *testing.T) {
	tests := []struct {
		name      string
		asking    *float64
		predicted *float64
		want      PricingPosition
	}{
		{"Exactly plus ten percent", f64(110), f64(100), PricingNormal},
		{"Exactly minus ten percent", f64(90), f64(100), PricingNormal},
		{"Just above", f64(110.01), f64(100), PricingOverPriced},
		{"Just below", f64(89.99), f64(100), PricingUnderPriced},
		{"Close", f64(420000), f64(402500), PricingNormal},
		{"No asking price", nil, f64(100), PricingUnknown},
		{"No prediction", f64(100), nil, PricingUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, deviation := ClassifyPricing(tt.asking, tt.predicted)
			assert.Equal(t, tt.want, got)
			if tt.want == PricingUnknown {
				assert.Nil(t, deviation)
			} else {
				assert.NotNil(t, deviation)
			}
		})
	}
}

func TestMarketTrend(t *testing.T) {
	at := func(year int) time.Time { return time.Date(year, 3, 1, 0, 0, 0, 0, time.UTC) }
	var pts []models.ComparablePoint
	add := func(year int, pricePerSqm ...float64) {
		for _, p := range pricePerSqm {
			pts = append(pts, models.ComparablePoint{SaleDate: at(year), PricePerSqm: p})
		}
	}
	add(2016, 4000)
	add(2018, 5000)
	add(2019, 5000, 5400)
	add(2020, 5600)
	add(2022, 6000, 6200, 6400)
	add(2023, 6600, 6600)

	trend := MarketTrend(pts, 5)
	require.Len(t, trend, 5)

	years := make([]int, 0, len(trend))
	for _, y := range trend {
		years = append(years, y.Year)
	}
	assert.Equal(t, []int{2018, 2019, 2020, 2022, 2023}, years)

	// 2018 has no 2017 baseline.
	assert.Nil(t, trend[0].CountChangePct)
	assert.Nil(t, trend[0].PricePerSqmChangePct)

	// 2019 vs 2018: count 1 -> 2, mean 5000 -> 5200.
	require.NotNil(t, trend[1].CountChangePct)
	assert.InDelta(t, 100, *trend[1].CountChangePct, 1e-9)
	assert.InDelta(t, 4, *trend[1].PricePerSqmChangePct, 1e-9)

	// 2022 has no 2021 baseline even though 2020 exists.
	assert.Nil(t, trend[3].CountChangePct)

	// 2023 vs 2022: count 3 -> 2, mean 6200 -> 6600.
	assert.InDelta(t, -33.333333, *trend[4].CountChangePct, 1e-5)
	assert.InDelta(t, 6.451613, *trend[4].PricePerSqmChangePct, 1e-5)

	assert.Nil(t, MarketTrend(nil, 5))
}
