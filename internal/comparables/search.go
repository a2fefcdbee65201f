package comparables

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"estatedesk/server/internal/dvf"
	"estatedesk/server/internal/metrics"
	"estatedesk/server/internal/models"
)

// ErrSourceUnavailable is matched by errors.Is when the registry could not
// provide a single row.
var ErrSourceUnavailable = errors.New("transaction source unavailable")

// SourceUnavailableError wraps the fetch failure that left the search empty.
type SourceUnavailableError struct {
	Radius int
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("%v at radius %dm: %v", ErrSourceUnavailable, e.Radius, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

func (e *SourceUnavailableError) Is(target error) bool { return target == ErrSourceUnavailable }

// TransactionSource fetches candidate sales around a point.
type TransactionSource interface {
	Fetch(ctx context.Context, q dvf.Query) ([]models.ComparableTransaction, error)
}

// TransactionSink persists newly seen sales for reuse across properties.
type TransactionSink interface {
	SaveTransactions(ctx context.Context, rows []models.ComparableTransaction) error
}

type SearchParams struct {
	Center       orb.Point
	PropertyType models.PropertyType
	Now          time.Time
}

// SearchResult holds the deduplicated sales of an adaptive search.
type SearchResult struct {
	Transactions  []models.ComparableTransaction
	RadiiTried    []int
	FinalRadius   int
	TargetReached bool
	From          time.Time
	To            time.Time

	// Degraded is set when a radius failed after rows were already found.
	Degraded      bool
	DegradedCause string
}

// Searcher widens the search radius until enough sales are found.
type Searcher struct {
	logger  *logrus.Logger
	config  Config
	source  TransactionSource
	sink    TransactionSink
	metrics *metrics.Metrics
}

func NewSearcher(logger *logrus.Logger, config Config, source TransactionSource, sink TransactionSink, m *metrics.Metrics) *Searcher {
	return &Searcher{
		logger:  logger,
		config:  config.withDefaults(),
		source:  source,
		sink:    sink,
		metrics: m,
	}
}

// Search walks the radius ladder. Fetches are sequential: each step's count
// decides whether the next one happens.
func (s *Searcher) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	result := &SearchResult{
		From: now.AddDate(-s.config.LookbackYears, 0, 0),
		To:   now,
	}

	seen := make(map[string]struct{})
	log := s.logger.WithFields(logrus.Fields{
		"property_type": params.PropertyType,
		"latitude":      params.Center.Lat(),
		"longitude":     params.Center.Lon(),
	})

	for _, radius := range s.config.RadiiMeters {
		result.RadiiTried = append(result.RadiiTried, radius)

		rows, err := s.source.Fetch(ctx, dvf.Query{
			Center:       params.Center,
			RadiusMeters: float64(radius),
			PropertyType: params.PropertyType,
			From:         result.From,
			To:           result.To,
			Limit:        s.config.TargetCount,
		})

		fresh := s.merge(result, seen, rows)
		s.persist(ctx, log, fresh)

		if err != nil {
			if len(result.Transactions) == 0 {
				return nil, &SourceUnavailableError{Radius: radius, Err: err}
			}
			log.WithError(err).WithFields(logrus.Fields{
				"radius_meters": radius,
				"accumulated":   len(result.Transactions),
			}).Warn("Comparable search degraded, continuing with partial results")
			result.Degraded = true
			result.DegradedCause = err.Error()
			if len(fresh) > 0 {
				result.FinalRadius = radius
			}
			break
		}

		result.FinalRadius = radius
		if len(result.Transactions) >= s.config.TargetCount {
			result.TargetReached = true
			break
		}
	}

	s.metrics.SearchCompleted(result.FinalRadius)
	log.WithFields(logrus.Fields{
		"radii_tried":    result.RadiiTried,
		"final_radius":   result.FinalRadius,
		"found":          len(result.Transactions),
		"target_reached": result.TargetReached,
	}).Info("Comparable search completed")

	return result, nil
}

// merge adds rows inside the look-back window that were not seen at a
// smaller radius and returns them.
func (s *Searcher) merge(result *SearchResult, seen map[string]struct{}, rows []models.ComparableTransaction) []models.ComparableTransaction {
	var fresh []models.ComparableTransaction
	for _, tx := range rows {
		if tx.SaleDate.Before(result.From) || tx.SaleDate.After(result.To) {
			continue
		}
		if _, ok := seen[tx.SourceRowHash]; ok {
			continue
		}
		seen[tx.SourceRowHash] = struct{}{}
		result.Transactions = append(result.Transactions, tx)
		fresh = append(fresh, tx)
	}
	return fresh
}

func (s *Searcher) persist(ctx context.Context, log *logrus.Entry, rows []models.ComparableTransaction) {
	if s.sink == nil || len(rows) == 0 {
		return
	}
	if err := s.sink.SaveTransactions(ctx, rows); err != nil {
		log.WithError(err).WithField("rows", len(rows)).Error("Failed to persist comparable transactions")
	}
}
