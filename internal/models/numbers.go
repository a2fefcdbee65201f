package models

import (
	"math"
	"strconv"
	"strings"
)

// ParseLooseNumber parses numbers the way people and French open data write
// them: "1.234,5", "6200.50", "65 m²". Leading text is skipped and parsing
// stops at the first unit or word after the digits.
func ParseLooseNumber(s string) (float64, bool) {
	return parseNormalized(extractNumber(s))
}

// ParseLooseAmount parses a money amount. On top of ParseLooseNumber, a lone
// separator followed by exactly three digits groups thousands, so "402.500 €"
// and "402,500" both read as 402500.
func ParseLooseAmount(s string) (float64, bool) {
	return parseNormalized(groupThousands(extractNumber(s)))
}

func extractNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		case r == ' ', r == '\u00a0', r == '\u202f', r == '\'':
			// thousands separators
		case b.Len() == 0 || b.String() == "-":
			// leading text or currency symbol
		default:
			return b.String()
		}
	}
	return b.String()
}

func groupThousands(clean string) string {
	if strings.Count(clean, ".")+strings.Count(clean, ",") != 1 {
		return clean
	}
	sep := strings.IndexAny(clean, ".,")
	whole := strings.TrimPrefix(clean[:sep], "-")
	if len(clean)-sep-1 != 3 || whole == "" || whole == "0" {
		return clean
	}
	return clean[:sep] + clean[sep+1:]
}

func parseNormalized(clean string) (float64, bool) {
	if clean == "" || clean == "-" {
		return 0, false
	}
	dot := strings.LastIndex(clean, ".")
	comma := strings.LastIndex(clean, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case comma >= 0:
		if strings.Count(clean, ",") > 1 {
			clean = strings.ReplaceAll(clean, ",", "")
		} else {
			clean = strings.Replace(clean, ",", ".", 1)
		}
	case strings.Count(clean, ".") > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
