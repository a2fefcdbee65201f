package valuation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatedesk/server/internal/ai"
)

func fp(v float64) *float64 { return &v }

func TestSanitizeEstimate(t *testing.T) {
	all := Fallbacks{Median: fp(390000), Predicted: fp(402500), Asking: fp(420000)}

	tests := []struct {
		name       string
		raw        *float64
		fallbacks  Fallbacks
		want       int64
		wantSource EstimateSource
	}{
		{"Model value rounded", fp(401999.6), all, 402000, EstimateModel},
		{"Missing uses median", nil, all, 390000, EstimateMedian},
		{"Negative uses median", fp(-5), all, 390000, EstimateMedian},
		{"Zero uses median", fp(0.2), all, 390000, EstimateMedian},
		{"NaN uses median", fp(math.NaN()), all, 390000, EstimateMedian},
		{"Huge value uses median", fp(1e30), all, 390000, EstimateMedian},
		{"Max float uses median", fp(math.MaxFloat64), all, 390000, EstimateMedian},
		{"Just above int64 uses median", fp(math.Ldexp(1, 63)), all, 390000, EstimateMedian},
		{"Then predicted", nil, Fallbacks{Predicted: fp(402500), Asking: fp(420000)}, 402500, EstimatePredicted},
		{"Then asking", nil, Fallbacks{Median: fp(0), Asking: fp(420000)}, 420000, EstimateAsking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source := SanitizeEstimate(tt.raw, tt.fallbacks)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
			assert.Equal(t, tt.wantSource, source)
		})
	}

	got, source := SanitizeEstimate(nil, Fallbacks{})
	assert.Nil(t, got)
	assert.Equal(t, EstimateNone, source)
}

func TestSanitizeEstimateFromFormattedAnswer(t *testing.T) {
	all := Fallbacks{Median: fp(390000), Predicted: fp(402500), Asking: fp(420000)}

	tests := []struct {
		name string
		text string
		want int64
	}{
		{"Dot thousands", `{"calculatedValuation": "402.500 €", "justification": "<p>ok</p>"}`, 402500},
		{"Comma thousands", `{"calculatedValuation": "1,250,000", "justification": "<p>ok</p>"}`, 1250000},
		{"Space thousands", `{"calculatedValuation": "402 500 €", "justification": "<p>ok</p>"}`, 402500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := ai.ParseOutput(tt.text)
			got, source := SanitizeEstimate(output.CalculatedValuation, all)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
			assert.Equal(t, EstimateModel, source)
		})
	}
}

func TestSanitizeJustification(t *testing.T) {
	const fallback = "<h3>Valuation</h3><p>fallback</p>"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "Allowed markup is kept",
			in:   "<h3>Synthèse</h3><p>Bien <strong>lumineux</strong>.<br/>Proche métro.</p><ul><li>A</li></ul>",
			want: "<h3>Synthèse</h3><p>Bien <strong>lumineux</strong>.<br>Proche métro.</p><ul><li>A</li></ul>",
		},
		{
			name: "Attributes are dropped",
			in:   `<p class="x" onclick="alert(1)">ok</p>`,
			want: "<p>ok</p>",
		},
		{
			name: "Text is escaped",
			in:   "<p>5 < 6 & 7</p>",
			want: "<p>5 &lt; 6 &amp; 7</p>",
		},
		{
			name: "Plain text is wrapped",
			in:   "Worth about 400k & rising",
			want: "<h3>Valuation</h3><p>Worth about 400k &amp; rising</p>",
		},
		{
			name: "Disallowed tag falls back to text",
			in:   "<p>ok</p><script>alert(1)</script>",
			want: "<h3>Valuation</h3><p>ok alert(1)</p>",
		},
		{
			name: "Unbalanced markup falls back to text",
			in:   "<p>open <strong>bold</p>",
			want: "<h3>Valuation</h3><p>open bold</p>",
		},
		{
			name: "Empty uses fallback",
			in:   "  \n ",
			want: fallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeJustification(tt.in, fallback))
		})
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "402 500", formatNumber(402500))
	assert.Equal(t, "1 000 000", formatNumber(999999.6))
	assert.Equal(t, "950", formatNumber(950))
	assert.Equal(t, "-12 500", formatNumber(-12500))
}
