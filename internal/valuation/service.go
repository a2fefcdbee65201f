package valuation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"estatedesk/server/internal/ai"
	"estatedesk/server/internal/comparables"
	"estatedesk/server/internal/metrics"
	"estatedesk/server/internal/models"
)

const providerFailureNote = "<p><em>Technical note: the valuation assistant was unavailable. " +
	"The value above is a statistical estimate derived from comparable sales.</em></p>"

type PropertyRepository interface {
	GetProperty(ctx context.Context, organizationID, id uuid.UUID) (*models.Property, error)
	UpdateAttributes(ctx context.Context, property *models.Property) error
}

type ComparablesProvider interface {
	ComparablesFor(ctx context.Context, property *models.Property, opts comparables.Options) (*comparables.Response, error)
}

type Options struct {
	Refresh bool
}

// Result is returned to API clients. It mirrors the stored snapshot plus the
// market context it was computed from.
type Result struct {
	PropertyID      string                      `json:"property_id"`
	CalculatedValue *int64                      `json:"calculated_value"`
	EstimateSource  EstimateSource              `json:"estimate_source"`
	Justification   string                      `json:"justification"`
	GeneratedAt     time.Time                   `json:"generated_at"`
	ComparablesUsed int                         `json:"comparables_used"`
	Criteria        []models.Criterion          `json:"criteria"`
	PricingPosition comparables.PricingPosition `json:"pricing_position"`
	PredictedPrice  *float64                    `json:"predicted_price"`
	ProviderFailed  bool                        `json:"provider_failed"`
	Comparables     *comparables.Response       `json:"comparables"`
}

type Service struct {
	logger      *logrus.Logger
	properties  PropertyRepository
	comparables ComparablesProvider
	provider    ai.Provider
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewService(
	logger *logrus.Logger,
	properties PropertyRepository,
	comparablesProvider ComparablesProvider,
	provider ai.Provider,
	m *metrics.Metrics,
) *Service {
	return &Service{
		logger:      logger,
		properties:  properties,
		comparables: comparablesProvider,
		provider:    provider,
		metrics:     m,
		now:         time.Now,
	}
}

// Valuate computes a valuation and stores its snapshot on the property.
// Provider failures degrade to a statistical value and never fail the call.
func (s *Service) Valuate(ctx context.Context, organizationID, propertyID uuid.UUID, opts Options) (*Result, error) {
	property, err := s.properties.GetProperty(ctx, organizationID, propertyID)
	if err != nil {
		return nil, err
	}

	resp, err := s.comparables.ComparablesFor(ctx, property, comparables.Options{Refresh: opts.Refresh})
	if err != nil {
		return nil, err
	}

	log := s.logger.WithField("property_id", property.ID)
	vctx := NewContext(property, resp)
	prompt := BuildPrompt(vctx)

	var output ai.Result
	providerFailed := false
	if s.provider != nil {
		output, err = s.provider.ComputeValuation(ctx, prompt)
		if err != nil {
			log.WithError(err).Warn("Valuation provider failed, using statistical fallback")
			s.metrics.ValuationFallback("provider_error")
			providerFailed = true
			output = ai.Result{}
		}
	}

	value, source := SanitizeEstimate(output.CalculatedValuation, fallbacksFrom(resp))
	if !providerFailed && source != EstimateModel {
		s.metrics.ValuationFallback("unusable_estimate")
	}

	justification := SanitizeJustification(output.Justification, SummaryJustification(resp, value, source))
	if providerFailed {
		justification += providerFailureNote
	}

	snapshot := models.ValuationSnapshot{
		CalculatedValue: value,
		Justification:   justification,
		GeneratedAt:     s.now().UTC().Truncate(time.Second),
		ComparablesUsed: resp.FilteredCount,
		Criteria:        vctx.Criteria,
	}
	property.SetValuationSnapshot(snapshot)
	if err := s.properties.UpdateAttributes(ctx, property); err != nil {
		return nil, fmt.Errorf("store valuation snapshot: %w", err)
	}

	log.WithFields(logrus.Fields{
		"value":           value,
		"estimate_source": source,
		"comparables":     snapshot.ComparablesUsed,
	}).Info("Valuation computed")

	return &Result{
		PropertyID:      property.ID.String(),
		CalculatedValue: value,
		EstimateSource:  source,
		Justification:   justification,
		GeneratedAt:     snapshot.GeneratedAt,
		ComparablesUsed: snapshot.ComparablesUsed,
		Criteria:        snapshot.Criteria,
		PricingPosition: resp.PricingPosition,
		PredictedPrice:  resp.PredictedPrice,
		ProviderFailed:  providerFailed,
		Comparables:     resp,
	}, nil
}
