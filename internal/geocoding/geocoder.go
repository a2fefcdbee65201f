package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"estatedesk/server/internal/geometry"
)

const (
	DefaultBaseURL = "https://api-adresse.data.gouv.fr/search/"
	DefaultTimeout = 5 * time.Second
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Geocoder resolves French postal addresses through the Base Adresse
// Nationale search API. It holds no state besides its HTTP client.
type Geocoder struct {
	logger *logrus.Logger
	config Config
	client *http.Client
}

func NewGeocoder(logger *logrus.Logger, config Config) *Geocoder {
	return &Geocoder{
		logger: logger,
		config: config.withDefaults(),
		client: &http.Client{},
	}
}

type banResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Geocode returns the coordinates of an address, or nil when the address
// cannot be resolved for any reason. It never returns an error: callers
// decide whether a missing location matters.
func (g *Geocoder) Geocode(ctx context.Context, address, postalCode, city string) *orb.Point {
	address = strings.TrimSpace(address)
	postalCode = strings.TrimSpace(postalCode)
	city = strings.TrimSpace(city)
	if address == "" || postalCode == "" || city == "" {
		return nil
	}

	fullAddress := fmt.Sprintf("%s %s %s", address, postalCode, city)
	log := g.logger.WithField("address", fullAddress)

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	params := url.Values{
		"q":        []string{fullAddress},
		"postcode": []string{postalCode},
		"limit":    []string{"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.config.BaseURL, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to create geocoding request")
		return nil
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("Geocoding request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithField("status", resp.StatusCode).Warn("Geocoding service returned an error status")
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("Failed to read geocoding response")
		return nil
	}

	var result banResponse
	if err := json.Unmarshal(body, &result); err != nil {
		log.WithError(err).Warn("Failed to parse geocoding response")
		return nil
	}

	if len(result.Features) == 0 || len(result.Features[0].Geometry.Coordinates) < 2 {
		log.Warn("No results found")
		return nil
	}

	coords := result.Features[0].Geometry.Coordinates
	point := orb.Point{coords[0], coords[1]}
	if !geometry.ValidPoint(point) {
		log.WithFields(logrus.Fields{
			"longitude": coords[0],
			"latitude":  coords[1],
		}).Warn("Geocoding returned out-of-range coordinates")
		return nil
	}

	log.WithFields(logrus.Fields{
		"latitude":  point.Lat(),
		"longitude": point.Lon(),
	}).Info("Successfully geocoded address")

	return &point
}
