package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/checoluis2212/backend-b2b/internal/ingest"
	"github.com/checoluis2212/backend-b2b/internal/models"
)

// RegisterWebhookRoutes registers the CRM callback endpoint.
//
// POST /webhooks/crm takes contact-creation callbacks, single object or
// array. Always acknowledges with 200; per-event failures are logged and
// skipped so the CRM never retry-storms the endpoint.
func RegisterWebhookRoutes(r gin.IRoutes, orch *ingest.Orchestrator) {
	r.POST("/webhooks/crm", func(c *gin.Context) {
		var raw json.RawMessage
		if err := c.ShouldBindJSON(&raw); err != nil {
			// Even unparseable bodies are acknowledged; there is nothing to
			// gain from making the CRM redeliver them.
			c.JSON(http.StatusOK, models.WebhookResponse{OK: true})
			return
		}

		var events []ingest.WebhookEvent
		if err := json.Unmarshal(raw, &events); err != nil {
			var single ingest.WebhookEvent
			if err := json.Unmarshal(raw, &single); err != nil {
				c.JSON(http.StatusOK, models.WebhookResponse{OK: true})
				return
			}
			events = []ingest.WebhookEvent{single}
		}

		processed, skipped := orch.ProcessWebhook(c.Request.Context(), events, requestMeta(c))
		c.JSON(http.StatusOK, models.WebhookResponse{OK: true, Processed: processed, Skipped: skipped})
	})
}

// RegisterSyncRoutes registers the authenticated CRM reconciliation endpoint.
//
// POST /crm/submissions takes externally-captured form submissions and
// reconciles them through the CRM contact directory before merging.
func RegisterSyncRoutes(r gin.IRoutes, orch *ingest.Orchestrator) {
	r.POST("/crm/submissions", func(c *gin.Context) {
		var req struct {
			PortalID string         `json:"portalId"`
			FormID   string         `json:"formId"`
			Fields   map[string]any `json:"fields"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || len(req.Fields) == 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "malformed_input"})
			return
		}

		snap, err := orch.SyncSubmission(c.Request.Context(), req.Fields, requestMeta(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.IngestResponseFrom(snap))
	})
}
