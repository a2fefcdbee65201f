package dvf

import (
	"fmt"
	"strconv"
	"strings"

	"estatedesk/server/internal/models"
)

// Ordered candidate keys per logical field. The registry has renamed columns
// across releases and mirrors, so the first present key wins.
var (
	idFields           = []string{"id_mutation", "idmutation", "idmutinvar", "id"}
	dateFields         = []string{"date_mutation", "datemut", "date"}
	priceFields        = []string{"valeur_fonciere", "valeurfonc", "price", "prix"}
	builtSurfaceFields = []string{"surface_reelle_bati", "sbati", "surface_bati", "built_surface"}
	landSurfaceFields  = []string{"surface_terrain", "sterr", "land_surface"}
	typeCodeFields     = []string{"code_type_local", "codtypbien", "type_code"}
	typeLabelFields    = []string{"type_local", "libtypbien", "type_label"}
	latitudeFields     = []string{"latitude", "lat", "y"}
	longitudeFields    = []string{"longitude", "lon", "lng", "x"}
	postalCodeFields   = []string{"code_postal", "codepostal", "postal_code"}
	cityFields         = []string{"nom_commune", "commune", "city"}
	adminCodeFields    = []string{"code_commune", "l_codinsee", "codinsee", "code_insee"}
)

var carrezFields = []string{
	"lot1_surface_carrez",
	"lot2_surface_carrez",
	"lot3_surface_carrez",
	"lot4_surface_carrez",
	"lot5_surface_carrez",
}

// firstPresent returns the value of the first candidate key holding a
// non-empty value.
func firstPresent(row map[string]interface{}, keys []string) (interface{}, bool) {
	for _, key := range keys {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		if arr, isArray := v.([]interface{}); isArray {
			if len(arr) == 0 || arr[0] == nil {
				continue
			}
			return arr[0], true
		}
		return v, true
	}
	return nil, false
}

func stringField(row map[string]interface{}, keys []string) string {
	v, ok := firstPresent(row, keys)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

func numberField(row map[string]interface{}, keys []string) (float64, bool) {
	v, ok := firstPresent(row, keys)
	if !ok {
		return 0, false
	}
	return models.ToFloat(v)
}

func positiveField(row map[string]interface{}, keys []string) *float64 {
	n, ok := numberField(row, keys)
	if !ok || n <= 0 {
		return nil
	}
	return &n
}
