package dvf

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/datatypes"

	"estatedesk/server/internal/geometry"
	"estatedesk/server/internal/models"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006",
}

// ParseDate accepts the date spellings seen across registry mirrors.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// foldLabel lower-cases a label and strips its diacritics.
func foldLabel(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// ResolvePropertyType maps a registry type code, then a type label, onto the
// property enum.
func ResolvePropertyType(code, label string) models.PropertyType {
	if t, ok := typeFromCode(code); ok {
		return t
	}
	return typeFromLabel(label)
}

func typeFromCode(code string) (models.PropertyType, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		f, ferr := strconv.ParseFloat(code, 64)
		if ferr != nil {
			return "", false
		}
		n = int(f)
	}
	switch {
	case n == 1 || n == 111:
		return models.PropertyTypeHouse, true
	case n == 2 || n == 121:
		return models.PropertyTypeApartment, true
	case n >= 210 && n <= 299:
		return models.PropertyTypeLand, true
	case n == 4 || n == 5:
		return models.PropertyTypeCommercial, true
	case n >= 110 && n <= 119:
		return models.PropertyTypeHouse, true
	case n >= 120 && n <= 129:
		return models.PropertyTypeApartment, true
	case n >= 130 && n <= 139:
		return models.PropertyTypeBuilding, true
	case n >= 140 && n <= 149:
		return models.PropertyTypeCommercial, true
	}
	return "", false
}

func typeFromLabel(label string) models.PropertyType {
	l := foldLabel(label)
	switch {
	case l == "":
		return models.PropertyTypeOther
	case strings.Contains(l, "appartement"):
		return models.PropertyTypeApartment
	case strings.Contains(l, "maison"):
		return models.PropertyTypeHouse
	case strings.Contains(l, "immeuble"):
		return models.PropertyTypeBuilding
	case strings.Contains(l, "terrain"), strings.Contains(l, "non bati"):
		return models.PropertyTypeLand
	case strings.Contains(l, "local"), strings.Contains(l, "commercial"),
		strings.Contains(l, "activite"), strings.Contains(l, "industriel"):
		return models.PropertyTypeCommercial
	}
	return models.PropertyTypeOther
}

// ResolveSurface picks the comparable surface: Carrez total, then built, then
// land. Land plots use their land surface first.
func ResolveSurface(propertyType models.PropertyType, carrez float64, built, land *float64) float64 {
	if propertyType == models.PropertyTypeLand && land != nil && *land > 0 {
		return *land
	}
	if carrez > 0 {
		return carrez
	}
	if built != nil && *built > 0 {
		return *built
	}
	if land != nil && *land > 0 {
		return *land
	}
	return 0
}

func carrezTotal(row map[string]interface{}) float64 {
	var total float64
	for _, key := range carrezFields {
		if v, ok := numberField(row, []string{key}); ok && v > 0 {
			total += v
		}
	}
	return total
}

// RowHash identifies a registry row. A stable source id is preferred; rows
// without one hash their date, price, position and place in the result pages.
func RowHash(sourceID string, saleDate time.Time, price float64, lat, lon *float64, page, offset int) string {
	var key string
	if sourceID != "" {
		key = "id:" + sourceID
	} else {
		key = fmt.Sprintf("row:%s|%.2f|%s|%s|%d|%d",
			saleDate.Format("2006-01-02"), price, formatCoord(lat), formatCoord(lon), page, offset)
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}

// splitRow separates the attribute map, the stable id and the position of a
// flat row or a GeoJSON-like feature. A feature without an id in its
// properties falls back to its top-level id. row is never modified.
func splitRow(row map[string]interface{}) (map[string]interface{}, string, *orb.Point) {
	props, isFeature := row["properties"].(map[string]interface{})
	if !isFeature {
		return row, stringField(row, idFields), coordinatesFromFields(row)
	}

	id := stringField(props, idFields)
	if id == "" {
		id = stringField(row, []string{"id"})
	}

	if point := featurePoint(row["geometry"]); point != nil {
		return props, id, point
	}
	return props, id, coordinatesFromFields(props)
}

func featurePoint(raw interface{}) *orb.Point {
	if raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil || g == nil || g.Coordinates == nil {
		return nil
	}

	var point orb.Point
	if p, ok := g.Coordinates.(orb.Point); ok {
		point = p
	} else {
		point = g.Coordinates.Bound().Center()
	}
	if !geometry.ValidPoint(point) {
		return nil
	}
	return &point
}

func coordinatesFromFields(row map[string]interface{}) *orb.Point {
	lat, okLat := numberField(row, latitudeFields)
	lon, okLon := numberField(row, longitudeFields)
	if !okLat || !okLon {
		return nil
	}
	point := orb.Point{lon, lat}
	if !geometry.ValidPoint(point) {
		return nil
	}
	return &point
}

// Normalize turns one registry row into a canonical transaction. It reports
// false when the row has no usable sale date. Price, surface and type are
// checked by the caller against the query.
func Normalize(row map[string]interface{}, page, offset int) (models.ComparableTransaction, bool) {
	props, sourceID, point := splitRow(row)

	saleDate, ok := ParseDate(stringField(props, dateFields))
	if !ok {
		return models.ComparableTransaction{}, false
	}

	price, _ := numberField(props, priceFields)
	built := positiveField(props, builtSurfaceFields)
	land := positiveField(props, landSurfaceFields)
	propertyType := ResolvePropertyType(stringField(props, typeCodeFields), stringField(props, typeLabelFields))

	tx := models.ComparableTransaction{
		SourceID:     sourceID,
		SaleDate:     saleDate,
		SalePrice:    price,
		BuiltSurface: built,
		LandSurface:  land,
		Surface:      ResolveSurface(propertyType, carrezTotal(props), built, land),
		PropertyType: propertyType,
		PostalCode:   stringField(props, postalCodeFields),
		City:         stringField(props, cityFields),
		AdminCode:    stringField(props, adminCodeFields),
	}
	if point != nil {
		lat, lon := point.Lat(), point.Lon()
		tx.Latitude = &lat
		tx.Longitude = &lon
	}
	tx.SourceRowHash = RowHash(tx.SourceID, tx.SaleDate, tx.SalePrice, tx.Latitude, tx.Longitude, page, offset)

	if raw, err := json.Marshal(row); err == nil {
		tx.Raw = datatypes.JSON(raw)
	}
	return tx, true
}
