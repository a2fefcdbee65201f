package comparables

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"estatedesk/server/internal/metrics"
	"estatedesk/server/internal/models"
)

// ErrMissingCoordinates means the property has no cached location and its
// address could not be geocoded.
var ErrMissingCoordinates = errors.New("property has no coordinates")

// Response sources.
const (
	SourceLive  = "LIVE"
	SourceCache = "CACHE"
)

type PropertyRepository interface {
	GetProperty(ctx context.Context, organizationID, id uuid.UUID) (*models.Property, error)
	UpdateAttributes(ctx context.Context, property *models.Property) error
}

type CacheRepository interface {
	GetCacheEntry(ctx context.Context, key string, now time.Time) (*models.ComparableQueryCacheEntry, error)
	UpsertCacheEntry(ctx context.Context, entry *models.ComparableQueryCacheEntry) error
}

type Geocoder interface {
	Geocode(ctx context.Context, address, postalCode, city string) *orb.Point
}

type Options struct {
	Refresh bool
}

type Center struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type SearchSummary struct {
	RadiiTried    []int     `json:"radii_tried"`
	FinalRadius   int       `json:"final_radius"`
	TargetCount   int       `json:"target_count"`
	TargetReached bool      `json:"target_reached"`
	LookbackYears int       `json:"lookback_years"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	Degraded      bool      `json:"degraded"`
	DegradedCause string    `json:"degraded_cause,omitempty"`
}

// Response is the comparables analysis of one property. Cached and live
// responses differ only by Source.
type Response struct {
	Source           string                   `json:"source"`
	PropertyID       string                   `json:"property_id"`
	PropertyType     models.PropertyType      `json:"property_type"`
	Center           Center                   `json:"center"`
	SubjectSurface   *float64                 `json:"subject_surface"`
	AskingPrice      *float64                 `json:"asking_price"`
	Search           SearchSummary            `json:"search"`
	Filters          models.ComparableFilters `json:"filters"`
	TotalFound       int                      `json:"total_found"`
	FilteredCount    int                      `json:"filtered_count"`
	PriceStats       *Summary                 `json:"price_stats"`
	PricePerSqmStats *Summary                 `json:"price_per_sqm_stats"`
	Regression       models.RegressionResult  `json:"regression"`
	PredictedPrice   *float64                 `json:"predicted_price"`
	Deviation        *float64                 `json:"deviation"`
	PricingPosition  PricingPosition          `json:"pricing_position"`
	MarketTrend      []TrendYear              `json:"market_trend"`
	Comparables      []models.ComparablePoint `json:"comparables"`
	GeneratedAt      time.Time                `json:"generated_at"`
}

// Service answers comparables requests, serving the query cache when possible.
type Service struct {
	logger     *logrus.Logger
	config     Config
	properties PropertyRepository
	cache      CacheRepository
	geocoder   Geocoder
	searcher   *Searcher
	metrics    *metrics.Metrics
	group      singleflight.Group
	now        func() time.Time
}

func NewService(
	logger *logrus.Logger,
	config Config,
	properties PropertyRepository,
	cache CacheRepository,
	geocoder Geocoder,
	searcher *Searcher,
	m *metrics.Metrics,
) *Service {
	return &Service{
		logger:     logger,
		config:     config.withDefaults(),
		properties: properties,
		cache:      cache,
		geocoder:   geocoder,
		searcher:   searcher,
		metrics:    m,
		now:        time.Now,
	}
}

// Comparables returns the comparables analysis of a property.
func (s *Service) Comparables(ctx context.Context, organizationID, propertyID uuid.UUID, opts Options) (*Response, error) {
	property, err := s.properties.GetProperty(ctx, organizationID, propertyID)
	if err != nil {
		return nil, err
	}
	return s.ComparablesFor(ctx, property, opts)
}

// ComparablesFor runs the analysis for an already loaded property.
func (s *Service) ComparablesFor(ctx context.Context, property *models.Property, opts Options) (*Response, error) {
	center, err := s.ResolveCoordinates(ctx, property)
	if err != nil {
		return nil, err
	}

	key := Signature(SignatureInput{
		OrganizationID: property.OrganizationID.String(),
		PropertyID:     property.ID.String(),
		PropertyType:   property.Type,
		LookbackYears:  s.config.LookbackYears,
		RadiiMeters:    s.config.RadiiMeters,
		TargetCount:    s.config.TargetCount,
		Latitude:       center.Lat(),
		Longitude:      center.Lon(),
	})
	log := s.logger.WithFields(logrus.Fields{
		"property_id": property.ID,
		"cache_key":   key,
	})

	if !opts.Refresh {
		if cached := s.readCache(ctx, log, key); cached != nil {
			s.metrics.CacheHit()
			return cached, nil
		}
	}
	s.metrics.CacheMiss()

	// The shared computation outlives any single caller; the source's
	// per-request timeouts still bound it.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.compute(shared, log, property, center, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		response := *res.Val.(*Response)
		return &response, nil
	}
}

// ResolveCoordinates returns the cached location of a property, geocoding and
// storing it when missing.
func (s *Service) ResolveCoordinates(ctx context.Context, property *models.Property) (orb.Point, error) {
	if lat, lon, ok := property.Coordinates(); ok {
		return orb.Point{lon, lat}, nil
	}
	return s.Geocode(ctx, property)
}

// GeocodeProperty loads a property and refreshes its cached location from
// its address.
func (s *Service) GeocodeProperty(ctx context.Context, organizationID, propertyID uuid.UUID) (orb.Point, error) {
	property, err := s.properties.GetProperty(ctx, organizationID, propertyID)
	if err != nil {
		return orb.Point{}, err
	}
	return s.Geocode(ctx, property)
}

// Geocode resolves the property's address and caches the result on the property.
func (s *Service) Geocode(ctx context.Context, property *models.Property) (orb.Point, error) {
	if s.geocoder == nil {
		return orb.Point{}, ErrMissingCoordinates
	}
	point := s.geocoder.Geocode(ctx, property.Address, property.PostalCode, property.City)
	if point == nil {
		return orb.Point{}, ErrMissingCoordinates
	}

	property.SetCoordinates(point.Lat(), point.Lon())
	if err := s.properties.UpdateAttributes(ctx, property); err != nil {
		s.logger.WithError(err).WithField("property_id", property.ID).Error("Failed to cache property coordinates")
	}
	return *point, nil
}

func (s *Service) readCache(ctx context.Context, log *logrus.Entry, key string) *Response {
	entry, err := s.cache.GetCacheEntry(ctx, key, s.now())
	if err != nil {
		log.WithError(err).Warn("Failed to read comparables cache")
		return nil
	}
	if entry == nil {
		return nil
	}

	var response Response
	if err := json.Unmarshal(entry.Response, &response); err != nil {
		log.WithError(err).Warn("Discarding unreadable comparables cache entry")
		return nil
	}
	response.Source = SourceCache
	return &response
}

func (s *Service) compute(ctx context.Context, log *logrus.Entry, property *models.Property, center orb.Point, key string) (*Response, error) {
	now := s.now().UTC()

	result, err := s.searcher.Search(ctx, SearchParams{
		Center:       center,
		PropertyType: property.Type,
		Now:          now,
	})
	if err != nil {
		return nil, fmt.Errorf("comparables search: %w", err)
	}

	response := s.analyze(property, center, result, now)
	s.writeCache(ctx, log, property, key, response, now)
	return response, nil
}

func (s *Service) analyze(property *models.Property, center orb.Point, result *SearchResult, now time.Time) *Response {
	points := make([]models.ComparablePoint, 0, len(result.Transactions))
	for _, tx := range result.Transactions {
		points = append(points, ToPoint(tx, &center))
	}

	subjectSurface := SubjectSurface(property)
	filters := NewFilters(subjectSurface, s.config.priceFloor(property.Type == models.PropertyTypeLand))
	filtered := ApplyFilters(points, filters)

	prices := make([]float64, 0, len(filtered))
	perSqm := make([]float64, 0, len(filtered))
	for _, p := range filtered {
		prices = append(prices, p.SalePrice)
		perSqm = append(perSqm, p.PricePerSqm)
	}

	var asking *float64
	if v, ok := property.AskingPrice(); ok {
		asking = &v
	}

	regression := Regress(filtered)
	predicted := PredictPrice(regression, subjectSurface)
	position, deviation := ClassifyPricing(asking, predicted)

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].SaleDate.After(filtered[j].SaleDate)
	})
	recent := filtered
	if len(recent) > MaxResponseComparables {
		recent = recent[:MaxResponseComparables]
	}

	return &Response{
		Source:         SourceLive,
		PropertyID:     property.ID.String(),
		PropertyType:   property.Type,
		Center:         Center{Latitude: center.Lat(), Longitude: center.Lon()},
		SubjectSurface: subjectSurface,
		AskingPrice:    asking,
		Search: SearchSummary{
			RadiiTried:    result.RadiiTried,
			FinalRadius:   result.FinalRadius,
			TargetCount:   s.config.TargetCount,
			TargetReached: result.TargetReached,
			LookbackYears: s.config.LookbackYears,
			From:          result.From.UTC(),
			To:            result.To.UTC(),
			Degraded:      result.Degraded,
			DegradedCause: result.DegradedCause,
		},
		Filters:          filters,
		TotalFound:       len(result.Transactions),
		FilteredCount:    len(filtered),
		PriceStats:       Summarize(prices),
		PricePerSqmStats: Summarize(perSqm),
		Regression:       regression,
		PredictedPrice:   predicted,
		Deviation:        deviation,
		PricingPosition:  position,
		MarketTrend:      MarketTrend(filtered, s.config.TrendYears),
		Comparables:      recent,
		GeneratedAt:      now,
	}
}

func (s *Service) writeCache(ctx context.Context, log *logrus.Entry, property *models.Property, key string, response *Response, now time.Time) {
	data, err := json.Marshal(response)
	if err != nil {
		log.WithError(err).Error("Failed to serialize comparables response")
		return
	}

	entry := &models.ComparableQueryCacheEntry{
		CacheKey:        key,
		OrganizationID:  property.OrganizationID.String(),
		PropertyID:      property.ID.String(),
		Response:        datatypes.JSON(data),
		FinalRadius:     response.Search.FinalRadius,
		ComparableCount: response.FilteredCount,
		TargetReached:   response.Search.TargetReached,
		ExpiresAt:       now.Add(s.config.CacheTTL),
	}
	if err := s.cache.UpsertCacheEntry(ctx, entry); err != nil {
		log.WithError(err).Error("Failed to write comparables cache")
	}
}
