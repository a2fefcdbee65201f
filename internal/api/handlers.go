package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"estatedesk/server/internal/comparables"
	"estatedesk/server/internal/database"
	"estatedesk/server/internal/dvf"
	"estatedesk/server/internal/valuation"
)

// OrganizationHeader scopes every property request to one tenant.
const OrganizationHeader = "X-Organization-ID"

type ComparablesService interface {
	Comparables(ctx context.Context, organizationID, propertyID uuid.UUID, opts comparables.Options) (*comparables.Response, error)
	GeocodeProperty(ctx context.Context, organizationID, propertyID uuid.UUID) (orb.Point, error)
}

type ValuationService interface {
	Valuate(ctx context.Context, organizationID, propertyID uuid.UUID, opts valuation.Options) (*valuation.Result, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	logger      *logrus.Logger
	comparables ComparablesService
	valuations  ValuationService
	db          Pinger
}

type ValuationRequest struct {
	Refresh bool `json:"refresh"`
}

func NewHandler(logger *logrus.Logger, comparablesService ComparablesService, valuations ValuationService, db Pinger) *Handler {
	return &Handler{
		logger:      logger,
		comparables: comparablesService,
		valuations:  valuations,
		db:          db,
	}
}

// scope reads the tenant header and the property id. It writes a 400 and
// returns false when either is not a valid UUID.
func (h *Handler) scope(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	organizationID, err := uuid.Parse(c.GetHeader(OrganizationHeader))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid " + OrganizationHeader + " header"})
		return uuid.Nil, uuid.Nil, false
	}
	propertyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property id"})
		return uuid.Nil, uuid.Nil, false
	}
	return organizationID, propertyID, true
}

func (h *Handler) GetComparables(c *gin.Context) {
	organizationID, propertyID, ok := h.scope(c)
	if !ok {
		return
	}

	refresh, err := strconv.ParseBool(c.DefaultQuery("refresh", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid refresh parameter"})
		return
	}

	response, err := h.comparables.Comparables(c.Request.Context(), organizationID, propertyID, comparables.Options{Refresh: refresh})
	if err != nil {
		h.writeError(c, err, "Failed to get comparables")
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) ComputeValuation(c *gin.Context) {
	organizationID, propertyID, ok := h.scope(c)
	if !ok {
		return
	}

	var req ValuationRequest
	// Chunked bodies report ContentLength -1; an empty body means defaults.
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			h.logger.WithError(err).Error("Failed to parse valuation request")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	result, err := h.valuations.Valuate(c.Request.Context(), organizationID, propertyID, valuation.Options{Refresh: req.Refresh})
	if err != nil {
		h.writeError(c, err, "Failed to compute valuation")
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GeocodeProperty(c *gin.Context) {
	organizationID, propertyID, ok := h.scope(c)
	if !ok {
		return
	}

	point, err := h.comparables.GeocodeProperty(c.Request.Context(), organizationID, propertyID)
	if err != nil {
		h.writeError(c, err, "Failed to geocode property")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"latitude":  point.Lat(),
		"longitude": point.Lon(),
	})
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("Database health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps domain errors to HTTP statuses. Unknown errors are logged
// and hidden behind a generic message.
func (h *Handler) writeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, database.ErrPropertyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
	case errors.Is(err, comparables.ErrMissingCoordinates):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Property location is unknown and its address could not be geocoded"})
	case errors.Is(err, comparables.ErrSourceUnavailable):
		h.logger.WithError(err).Warn(message)
		body := gin.H{"error": "Transaction registry unavailable"}
		var fetchErr *dvf.FetchError
		if errors.As(err, &fetchErr) {
			body["kind"] = fetchErr.Kind
			body["endpoint"] = fetchErr.Endpoint
			body["page"] = fetchErr.Page
			body["cause"] = fetchErr.Cause()
		}
		c.JSON(http.StatusBadGateway, body)
	default:
		h.logger.WithError(err).Error(message)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
