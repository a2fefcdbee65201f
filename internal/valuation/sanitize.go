package valuation

import (
	"fmt"
	"html"
	"io"
	"math"
	"strings"

	nethtml "golang.org/x/net/html"

	"estatedesk/server/internal/comparables"
)

// EstimateSource tells where the stored value comes from.
type EstimateSource string

const (
	EstimateModel     EstimateSource = "MODEL"
	EstimateMedian    EstimateSource = "MEDIAN"
	EstimatePredicted EstimateSource = "PREDICTED"
	EstimateAsking    EstimateSource = "ASKING"
	EstimateNone      EstimateSource = "NONE"
)

// Fallbacks are the statistical values used when the model's number is unusable.
type Fallbacks struct {
	Median    *float64
	Predicted *float64
	Asking    *float64
}

func fallbacksFrom(resp *comparables.Response) Fallbacks {
	var f Fallbacks
	if resp == nil {
		return f
	}
	if resp.PriceStats != nil {
		median := resp.PriceStats.Median
		f.Median = &median
	}
	f.Predicted = resp.PredictedPrice
	f.Asking = resp.AskingPrice
	return f
}

// SanitizeEstimate coerces the model estimate to a positive integer, falling
// back to the filtered median, the predicted price, then the asking price.
func SanitizeEstimate(raw *float64, fallbacks Fallbacks) (*int64, EstimateSource) {
	candidates := []struct {
		value  *float64
		source EstimateSource
	}{
		{raw, EstimateModel},
		{fallbacks.Median, EstimateMedian},
		{fallbacks.Predicted, EstimatePredicted},
		{fallbacks.Asking, EstimateAsking},
	}
	for _, c := range candidates {
		if v, ok := positiveInt(c.value); ok {
			return &v, c.source
		}
	}
	return nil, EstimateNone
}

// maxEstimate bounds any accepted value well inside the int64 range.
const maxEstimate = 1e12

func positiveInt(v *float64) (int64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v > maxEstimate {
		return 0, false
	}
	n := int64(math.Round(*v))
	return n, n > 0
}

var allowedTags = map[string]bool{
	"h3": true, "h4": true, "p": true, "ul": true, "ol": true, "li": true,
	"strong": true, "em": true, "br": true,
	"table": true, "thead": true, "tbody": true, "tr": true, "th": true, "td": true,
}

// SanitizeJustification returns well-formed markup restricted to the allowed
// tags, attributes removed. Plain or malformed text is escaped into a minimal
// block; empty text is replaced by fallback.
func SanitizeJustification(text, fallback string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	if clean, ok := cleanMarkup(text); ok {
		return clean
	}
	return wrapText(plainText(text))
}

// cleanMarkup re-renders text when it only uses allowed, balanced tags and
// contains at least one of them.
func cleanMarkup(text string) (string, bool) {
	z := nethtml.NewTokenizer(strings.NewReader(text))
	var out strings.Builder
	var stack []string
	tags := 0

	for {
		tt := z.Next()
		switch tt {
		case nethtml.ErrorToken:
			if z.Err() != io.EOF {
				return "", false
			}
			if len(stack) > 0 || tags == 0 {
				return "", false
			}
			return strings.TrimSpace(out.String()), true

		case nethtml.TextToken:
			out.WriteString(html.EscapeString(string(z.Text())))

		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if !allowedTags[tag] {
				return "", false
			}
			tags++
			if tag == "br" {
				out.WriteString("<br>")
				continue
			}
			if tt == nethtml.SelfClosingTagToken {
				return "", false
			}
			stack = append(stack, tag)
			fmt.Fprintf(&out, "<%s>", tag)

		case nethtml.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "br" {
				continue
			}
			if len(stack) == 0 || stack[len(stack)-1] != tag {
				return "", false
			}
			stack = stack[:len(stack)-1]
			fmt.Fprintf(&out, "</%s>", tag)

		case nethtml.CommentToken:
			continue

		default:
			return "", false
		}
	}
}

// plainText drops any markup and returns the text content.
func plainText(text string) string {
	z := nethtml.NewTokenizer(strings.NewReader(text))
	var out strings.Builder
	for {
		switch z.Next() {
		case nethtml.ErrorToken:
			return strings.Join(strings.Fields(out.String()), " ")
		case nethtml.TextToken:
			out.Write(z.Text())
			out.WriteByte(' ')
		}
	}
}

func wrapText(text string) string {
	return "<h3>Valuation</h3><p>" + html.EscapeString(text) + "</p>"
}

// SummaryJustification describes the statistics when the model gave nothing usable.
func SummaryJustification(resp *comparables.Response, value *int64, source EstimateSource) string {
	var b strings.Builder
	b.WriteString("<h3>Valuation</h3>")
	if value != nil {
		fmt.Fprintf(&b, "<p>Estimated value: %s € (%s).</p>", formatNumber(float64(*value)), describeSource(source))
	} else {
		b.WriteString("<p>No estimate could be produced from the available data.</p>")
	}
	if resp == nil {
		return b.String()
	}

	b.WriteString("<ul>")
	fmt.Fprintf(&b, "<li>Comparable sales kept: %d</li>", resp.FilteredCount)
	if resp.PricePerSqmStats != nil {
		fmt.Fprintf(&b, "<li>Median price per m²: %s €</li>", formatNumber(resp.PricePerSqmStats.Median))
	}
	if resp.PredictedPrice != nil {
		fmt.Fprintf(&b, "<li>Regression price for the subject surface: %s €</li>", formatNumber(*resp.PredictedPrice))
	}
	fmt.Fprintf(&b, "<li>Pricing position: %s</li>", resp.PricingPosition)
	b.WriteString("</ul>")
	return b.String()
}

func describeSource(source EstimateSource) string {
	switch source {
	case EstimateModel:
		return "model estimate"
	case EstimateMedian:
		return "median of comparable sales"
	case EstimatePredicted:
		return "regression prediction"
	case EstimateAsking:
		return "asking price"
	default:
		return "no source"
	}
}
