package dvf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"estatedesk/server/internal/geometry"
	"estatedesk/server/internal/metrics"
	"estatedesk/server/internal/models"
)

const (
	DefaultBaseURL  = "https://apidf-preprod.cerema.fr/dvf_opendata/geomutations/"
	DefaultTimeout  = 20 * time.Second
	DefaultPageSize = 500
	DefaultMaxPages = 10
)

type Config struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration
	PageSize int
	MaxPages int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	return c
}

// Query describes one registry lookup around a point.
type Query struct {
	Center       orb.Point
	RadiusMeters float64
	PropertyType models.PropertyType
	From         time.Time
	To           time.Time

	// Limit stops pagination once this many rows were accepted. Zero means no limit.
	Limit int
}

// Accepts reports whether a normalized row satisfies the query.
func (q Query) Accepts(tx models.ComparableTransaction) bool {
	if tx.SaleDate.IsZero() || tx.SaleDate.Before(q.From) || tx.SaleDate.After(q.To) {
		return false
	}
	if tx.SalePrice <= 0 || tx.Surface <= 0 {
		return false
	}
	return tx.PropertyType == q.PropertyType
}

// Client reads the DVF open-data land transaction registry.
type Client struct {
	logger  *logrus.Logger
	config  Config
	client  *http.Client
	metrics *metrics.Metrics
}

func NewClient(logger *logrus.Logger, config Config, m *metrics.Metrics) *Client {
	return &Client{
		logger:  logger,
		config:  config.withDefaults(),
		client:  &http.Client{},
		metrics: m,
	}
}

// typeCodes are the registry codtypbien filters for each property type.
var typeCodes = map[models.PropertyType]string{
	models.PropertyTypeApartment:  "121",
	models.PropertyTypeHouse:      "111",
	models.PropertyTypeLand:       "2",
	models.PropertyTypeCommercial: "4",
}

func (c *Client) buildURL(q Query) (*url.URL, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DVF base URL: %w", err)
	}

	bbox := geometry.BoundingBox(q.Center, q.RadiusMeters)
	params := u.Query()
	params.Set("in_bbox", fmt.Sprintf("%s,%s,%s,%s",
		formatDegrees(bbox.Min.Lon()), formatDegrees(bbox.Min.Lat()),
		formatDegrees(bbox.Max.Lon()), formatDegrees(bbox.Max.Lat())))
	params.Set("anneemut_min", strconv.Itoa(q.From.Year()))
	params.Set("anneemut_max", strconv.Itoa(q.To.Year()))
	if code, ok := typeCodes[q.PropertyType]; ok {
		params.Set("codtypbien", code)
	}
	params.Set("page_size", strconv.Itoa(c.config.PageSize))
	u.RawQuery = params.Encode()
	return u, nil
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Fetch pages through the registry and returns the rows accepted by q.
// On error the rows accepted before the failing page are returned with it.
func (c *Client) Fetch(ctx context.Context, q Query) ([]models.ComparableTransaction, error) {
	start, err := c.buildURL(q)
	if err != nil {
		return nil, err
	}

	log := c.logger.WithFields(logrus.Fields{
		"radius_meters": q.RadiusMeters,
		"property_type": q.PropertyType,
	})

	var accepted []models.ComparableTransaction
	seen := make(map[string]struct{})
	visited := make(map[string]struct{})
	current := start

	for page := 1; page <= c.config.MaxPages && current != nil; page++ {
		pageURL := current.String()
		if _, ok := visited[pageURL]; ok {
			log.WithField("url", pageURL).Warn("Pagination loop detected, stopping")
			break
		}
		visited[pageURL] = struct{}{}

		rows, next, err := c.fetchPage(ctx, pageURL, page)
		if err != nil {
			var fetchErr *FetchError
			if errors.As(err, &fetchErr) {
				c.metrics.DVFFetchFailed(string(fetchErr.Kind))
			}
			log.WithError(err).WithField("page", page).Warn("DVF page fetch failed")
			return accepted, err
		}
		c.metrics.DVFPageFetched()

		for offset, row := range rows {
			tx, ok := Normalize(row, page, offset)
			if !ok || !q.Accepts(tx) {
				continue
			}
			if _, dup := seen[tx.SourceRowHash]; dup {
				continue
			}
			seen[tx.SourceRowHash] = struct{}{}
			accepted = append(accepted, tx)
		}

		if q.Limit > 0 && len(accepted) >= q.Limit {
			break
		}
		current = resolveNext(current, start.Scheme, next)
	}

	log.WithField("accepted", len(accepted)).Debug("DVF fetch completed")
	return accepted, nil
}

// resolveNext returns the next page URL with the scheme of the first request,
// or nil when there is none.
func resolveNext(current *url.URL, scheme, next string) *url.URL {
	if next == "" {
		return nil
	}
	ref, err := url.Parse(next)
	if err != nil {
		return nil
	}
	resolved := current.ResolveReference(ref)
	resolved.Scheme = scheme
	return resolved
}

func (c *Client) fetchPage(ctx context.Context, pageURL string, page int) ([]map[string]interface{}, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	fail := func(kind ErrorKind, status int, err error) error {
		return &FetchError{Kind: kind, Endpoint: c.config.BaseURL, Page: page, StatusCode: status, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", fail(KindNetwork, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fail(classifyTransportError(err), 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, "", fail(KindHTTP, resp.StatusCode, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fail(classifyTransportError(err), 0, err)
	}

	rows, next, err := decodePage(body)
	if err != nil {
		return nil, "", fail(KindInvalidPayload, 0, err)
	}
	return rows, next, nil
}

var collectionKeys = []string{"results", "records", "features", "data", "rows"}

// decodePage extracts the row list and the next link from any of the
// envelope shapes served by registry mirrors.
func decodePage(body []byte) ([]map[string]interface{}, string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("decode body: %w", err)
	}

	switch v := payload.(type) {
	case []interface{}:
		return objectRows(v), "", nil
	case map[string]interface{}:
		if rows, ok := collection(v); ok {
			return rows, nextLink(v), nil
		}
		if nested, ok := v["result"].(map[string]interface{}); ok {
			if rows, ok := collection(nested); ok {
				next := nextLink(v)
				if next == "" {
					next = nextLink(nested)
				}
				return rows, next, nil
			}
		}
		return nil, "", errors.New("no row collection in payload")
	default:
		return nil, "", errors.New("unexpected payload type")
	}
}

func collection(obj map[string]interface{}) ([]map[string]interface{}, bool) {
	for _, key := range collectionKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if raw == nil {
			return nil, true
		}
		if arr, ok := raw.([]interface{}); ok {
			return objectRows(arr), true
		}
	}
	return nil, false
}

func objectRows(arr []interface{}) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(arr))
	for _, item := range arr {
		if row, ok := item.(map[string]interface{}); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func nextLink(obj map[string]interface{}) string {
	next, _ := obj["next"].(string)
	return next
}
