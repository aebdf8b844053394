package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/checoluis2212/backend-b2b/internal/identity"
	"github.com/checoluis2212/backend-b2b/internal/ingest"
	"github.com/checoluis2212/backend-b2b/internal/merge"
	"github.com/checoluis2212/backend-b2b/internal/models"
	"github.com/checoluis2212/backend-b2b/internal/normalize"
	"github.com/checoluis2212/backend-b2b/internal/store"
)

// requestMeta captures transport metadata at the HTTP boundary. The first
// X-Forwarded-For hop is the real client when the service sits behind a
// proxy.
func requestMeta(c *gin.Context) models.RequestMeta {
	ip := c.ClientIP()
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0]); first != "" {
			ip = first
		}
	}
	return models.RequestMeta{
		IP:         ip,
		UserAgent:  c.GetHeader("User-Agent"),
		ReceivedAt: time.Now().UTC(),
	}
}

// respondError maps the ingestion error taxonomy to HTTP statuses. The
// caller only ever learns about normalization, identity, and store outcomes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, normalize.ErrMalformedInput):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "malformed_input"})
	case errors.Is(err, identity.ErrUnresolvable):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unresolvable_identity"})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "store_unavailable"})
	case errors.Is(err, merge.ErrInvariantViolation):
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "invariant_violation"})
	case errors.Is(err, ingest.ErrCRMUnavailable):
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "crm_unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error"})
	}
}

// RegisterResponseRoutes registers the ingestion-path endpoints.
//
// POST /responses/button takes button-click events (visitorId plus an
// allow-listed button name). POST /forms/submit takes form submissions and
// requires at least an email. GET /responses/:visitorId returns the
// post-merge snapshot of one lead.
func RegisterResponseRoutes(r gin.IRoutes, orch *ingest.Orchestrator, st store.Store) {
	r.POST("/responses/button", func(c *gin.Context) {
		ingestEvent(c, orch, models.EventButtonClick)
	})

	r.POST("/forms/submit", func(c *gin.Context) {
		ingestEvent(c, orch, models.EventFormSubmit)
	})

	r.GET("/responses/:visitorId", func(c *gin.Context) {
		key := identity.Key{Kind: identity.KeyVisitor, Value: c.Param("visitorId")}
		lead, err := st.FindByKey(c.Request.Context(), key.String())
		if err != nil {
			respondError(c, err)
			return
		}
		if lead == nil {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found"})
			return
		}
		c.JSON(http.StatusOK, lead)
	})
}

func ingestEvent(c *gin.Context, orch *ingest.Orchestrator, kind models.EventKind) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "malformed_input"})
		return
	}

	snap, err := orch.Ingest(c.Request.Context(), kind, payload, requestMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.IngestResponseFrom(snap))
}
