package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartprocure/backend/internal/domain"
	"github.com/smartprocure/backend/internal/logger"
	"github.com/smartprocure/backend/internal/usecase"
)

// Version is reported by the health check
var Version = "1.0.0"

// DiscoveryRunner runs discovery for a raw requirements document
type DiscoveryRunner interface {
	Run(ctx context.Context, doc map[string]any) (*usecase.DiscoveryResult, error)
}

// ShortlistReader reads persisted shortlist artifacts
type ShortlistReader interface {
	Latest(ctx context.Context) (string, error)
	Load(ctx context.Context, path string) (*domain.ShortlistArtifact, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	discovery  DiscoveryRunner
	shortlists ShortlistReader
	log        logger.Logger
}

// NewHandler creates a new HTTP handler. Either dependency may be nil; its endpoints then answer 503.
func NewHandler(discovery DiscoveryRunner, shortlists ShortlistReader, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{discovery: discovery, shortlists: shortlists, log: log}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "smartprocure-backend",
		"version": Version,
	})
}

// Discover runs supplier discovery for the requirements document in the request body
func (h *Handler) Discover(c *gin.Context) {
	if h.discovery == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "discovery service not configured"})
		return
	}

	var doc map[string]any
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object: " + err.Error()})
		return
	}

	result, err := h.discovery.Run(c.Request.Context(), doc)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("Discovery request failed", logger.Int("status", status), logger.Error(err))
		}
		c.JSON(status, errorBody(err))
		return
	}

	c.JSON(http.StatusOK, result)
}

// LatestShortlist returns the most recently saved shortlist artifact
func (h *Handler) LatestShortlist(c *gin.Context) {
	if h.shortlists == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shortlist storage not configured"})
		return
	}

	ctx := c.Request.Context()
	path, err := h.shortlists.Latest(ctx)
	if err == nil {
		var artifact *domain.ShortlistArtifact
		if artifact, err = h.shortlists.Load(ctx, path); err == nil {
			c.JSON(http.StatusOK, artifact)
			return
		}
	}

	if errors.Is(err, domain.ErrArtifactNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.log.Error("Failed to read latest shortlist", logger.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read shortlist"})
}

// statusForError maps pipeline errors onto HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrGeneration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDiscovery), errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrRateLimited):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		body["stage"] = stageErr.Stage
		body["queries_attempted"] = stageErr.QueriesAttempted
		body["listings_fetched"] = stageErr.ListingsFetched
	}
	return body
}
