package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/checoluis2212/backend-b2b/internal/models"
)

// APIKeyMiddleware gates the ingestion endpoints behind X-API-Key. The
// accepted keys come from configuration; in production they would typically
// be rotated through a secret manager.
func APIKeyMiddleware(keys map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if !keys[apiKey] {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}
