package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modsentry/moderation-api/internal/quota"
)

// QuotaRequired rejects requests from users whose daily quota is spent.
// Usage itself is recorded by the orchestrator after admission.
func QuotaRequired(tracker *quota.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API token"})
			return
		}
		if !tracker.CanAdmit(user) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Request limit exceeded"})
			return
		}
		c.Next()
	}
}
