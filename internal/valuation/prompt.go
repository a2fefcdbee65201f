package valuation

import (
	"fmt"
	"strings"

	"estatedesk/server/internal/comparables"
	"estatedesk/server/internal/models"
)

// MaxRecentSales is the number of individual sales quoted in the brief.
const MaxRecentSales = 5

// Context gathers everything the brief is rendered from.
type Context struct {
	Property    *models.Property
	Comparables *comparables.Response
	Criteria    []models.Criterion
	Declared    []AttributeGroup
	Influence   []models.Criterion
}

func NewContext(p *models.Property, resp *comparables.Response) Context {
	return Context{
		Property:    p,
		Comparables: resp,
		Criteria:    ResolveCriteria(p),
		Declared:    DeclaredAttributes(p),
		Influence:   InfluenceFactors(p),
	}
}

// BuildPrompt renders the structured valuation brief.
func BuildPrompt(c Context) string {
	var b strings.Builder
	p := c.Property
	resp := c.Comparables

	b.WriteString("You are valuing a property for a French real-estate agency.\n")
	b.WriteString("Use the market data below, weigh the property's own features, and give a realistic sale price.\n\n")

	b.WriteString("## Subject property\n")
	fmt.Fprintf(&b, "- Title: %s\n", orDash(p.Title))
	fmt.Fprintf(&b, "- Type: %s\n", p.Type)
	fmt.Fprintf(&b, "- Address: %s, %s %s\n", orDash(p.Address), p.PostalCode, p.City)
	if resp != nil && resp.SubjectSurface != nil {
		fmt.Fprintf(&b, "- Reference surface: %s m²\n", formatNumber(*resp.SubjectSurface))
	} else {
		b.WriteString("- Reference surface: unknown\n")
	}
	if asking, ok := p.AskingPrice(); ok {
		fmt.Fprintf(&b, "- Asking price: %s €\n", formatNumber(asking))
	} else {
		b.WriteString("- Asking price: not set\n")
	}
	b.WriteString("\n")

	b.WriteString("## Key criteria\n")
	writeCriteria(&b, c.Criteria)

	b.WriteString("## Declared attributes\n")
	if len(c.Declared) == 0 {
		b.WriteString("- none\n")
	}
	for _, group := range c.Declared {
		fmt.Fprintf(&b, "### %s\n", group.Category)
		for _, a := range group.Attributes {
			fmt.Fprintf(&b, "- %s: %s\n", a.Key, a.Value)
		}
	}
	b.WriteString("\n")

	b.WriteString("## Influence factors\n")
	writeCriteria(&b, c.Influence)

	if resp == nil {
		b.WriteString("## Market data\n- unavailable\n\n")
	} else {
		writeMarket(&b, resp)
	}

	b.WriteString("## Output\n")
	b.WriteString("Return a JSON object with exactly two fields:\n")
	b.WriteString("- \"calculatedValuation\": integer price in euros, or null if no estimate is possible\n")
	b.WriteString("- \"justification\": HTML written in French using only <h3>, <p>, <ul> and <li>, with sections ")
	b.WriteString("\"Synthèse\", \"Analyse du marché\", \"Points forts\", \"Points de vigilance\"\n")
	return b.String()
}

func writeCriteria(b *strings.Builder, criteria []models.Criterion) {
	if len(criteria) == 0 {
		b.WriteString("- none declared\n\n")
		return
	}
	for _, c := range criteria {
		fmt.Fprintf(b, "- %s: %s\n", c.Label, c.Value)
	}
	b.WriteString("\n")
}

func writeMarket(b *strings.Builder, resp *comparables.Response) {
	b.WriteString("## Comparable filters\n")
	f := resp.Filters
	if f.MinSurface != nil && f.MaxSurface != nil {
		fmt.Fprintf(b, "- Surface between %s and %s m²\n", formatNumber(*f.MinSurface), formatNumber(*f.MaxSurface))
	} else {
		b.WriteString("- No surface range (subject surface unknown)\n")
	}
	if f.MinPricePerSqm != nil {
		fmt.Fprintf(b, "- Price per m² at least %s €\n", formatNumber(*f.MinPricePerSqm))
	}
	fmt.Fprintf(b, "- Sales since %s within %s m\n", resp.Search.From.Format("2006-01-02"), formatNumber(float64(resp.Search.FinalRadius)))
	b.WriteString("\n")

	b.WriteString("## Statistics\n")
	fmt.Fprintf(b, "- Comparables kept: %d of %d found\n", resp.FilteredCount, resp.TotalFound)
	if s := resp.PriceStats; s != nil {
		fmt.Fprintf(b, "- Sale price: min %s, Q1 %s, median %s, Q3 %s, max %s €\n",
			formatNumber(s.Min), formatNumber(s.Q1), formatNumber(s.Median), formatNumber(s.Q3), formatNumber(s.Max))
	}
	if s := resp.PricePerSqmStats; s != nil {
		fmt.Fprintf(b, "- Price per m²: min %s, Q1 %s, median %s, Q3 %s, max %s €\n",
			formatNumber(s.Min), formatNumber(s.Q1), formatNumber(s.Median), formatNumber(s.Q3), formatNumber(s.Max))
	}
	b.WriteString("\n")

	b.WriteString("## Regression\n")
	reg := resp.Regression
	if reg.Slope != nil && reg.Intercept != nil {
		fmt.Fprintf(b, "- price = %s × surface + %s (n=%d", formatNumber(*reg.Slope), formatNumber(*reg.Intercept), reg.N)
		if reg.R2 != nil {
			fmt.Fprintf(b, ", R²=%.2f", *reg.R2)
		}
		b.WriteString(")\n")
	} else {
		fmt.Fprintf(b, "- not enough data (n=%d)\n", reg.N)
	}
	if resp.PredictedPrice != nil {
		fmt.Fprintf(b, "- Predicted price: %s €\n", formatNumber(*resp.PredictedPrice))
	}
	fmt.Fprintf(b, "- Pricing position: %s", resp.PricingPosition)
	if resp.Deviation != nil {
		fmt.Fprintf(b, " (%+.1f%% vs predicted)", *resp.Deviation*100)
	}
	b.WriteString("\n\n")

	b.WriteString("## Market trend\n")
	if len(resp.MarketTrend) == 0 {
		b.WriteString("- no data\n")
	} else {
		b.WriteString("| Year | Sales | Avg €/m² | Sales YoY | €/m² YoY |\n|---|---|---|---|---|\n")
		for _, y := range resp.MarketTrend {
			fmt.Fprintf(b, "| %d | %d | %s | %s | %s |\n",
				y.Year, y.Count, formatNumber(y.AvgPricePerSqm), formatPct(y.CountChangePct), formatPct(y.PricePerSqmChangePct))
		}
	}
	b.WriteString("\n")

	b.WriteString("## Most recent sales\n")
	if len(resp.Comparables) == 0 {
		b.WriteString("- none\n")
	}
	for i, p := range resp.Comparables {
		if i == MaxRecentSales {
			break
		}
		fmt.Fprintf(b, "- %s: %s m² for %s € (%s €/m²)",
			p.SaleDate.Format("2006-01-02"), formatNumber(p.Surface), formatNumber(p.SalePrice), formatNumber(p.PricePerSqm))
		if p.DistanceMeters != nil {
			fmt.Fprintf(b, ", %s m away", formatNumber(*p.DistanceMeters))
		}
		if p.City != "" {
			fmt.Fprintf(b, ", %s", p.City)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// formatNumber rounds to an integer and groups thousands with spaces.
func formatNumber(v float64) string {
	n := int64(v + 0.5)
	if v < 0 {
		n = int64(v - 0.5)
	}
	s := fmt.Sprint(n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var out strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out.WriteByte(' ')
		}
		out.WriteRune(r)
	}
	if neg {
		return "-" + out.String()
	}
	return out.String()
}

func formatPct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", *v)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
