package comparables

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"estatedesk/server/internal/geometry"
	"estatedesk/server/internal/models"
)

// signatureVersion changes whenever the cached response layout changes.
const signatureVersion = 1

// coordinateDecimals rounds the center to about 11 metres.
const coordinateDecimals = 4

type SignatureInput struct {
	OrganizationID string
	PropertyID     string
	PropertyType   models.PropertyType
	LookbackYears  int
	RadiiMeters    []int
	TargetCount    int
	Latitude       float64
	Longitude      float64
}

// Signature is the cache key of a comparables computation: a SHA-256 over
// the canonical JSON of every parameter that shapes the result.
func Signature(in SignatureInput) string {
	canonical := struct {
		Version       int     `json:"v"`
		Organization  string  `json:"org"`
		Property      string  `json:"property"`
		PropertyType  string  `json:"type"`
		LookbackYears int     `json:"lookback_years"`
		Radii         []int   `json:"radii"`
		Target        int     `json:"target"`
		Latitude      float64 `json:"lat"`
		Longitude     float64 `json:"lon"`
	}{
		Version:       signatureVersion,
		Organization:  in.OrganizationID,
		Property:      in.PropertyID,
		PropertyType:  string(in.PropertyType),
		LookbackYears: in.LookbackYears,
		Radii:         in.RadiiMeters,
		Target:        in.TargetCount,
		Latitude:      geometry.RoundCoordinate(in.Latitude, coordinateDecimals),
		Longitude:     geometry.RoundCoordinate(in.Longitude, coordinateDecimals),
	}

	// Marshalling a struct of scalars and an int slice cannot fail.
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
