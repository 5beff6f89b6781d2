package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aulalabs/aula-api/internal/models"
	"github.com/aulalabs/aula-api/internal/service"
)

// Audit records an audit entry after successful mutating requests. Entries
// are written best-effort; the response is never affected.
func Audit(auditSvc *service.AuditService, action, entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if auditSvc == nil || c.Writer.Status() >= 400 {
			return
		}

		var userID string
		if claimsValue, ok := c.Get(ContextUserKey); ok {
			if claims, ok := claimsValue.(*models.JWTClaims); ok {
				userID = claims.UserID
			}
		}

		ip := c.ClientIP()
		auditSvc.Record(c.Request.Context(), &models.AuditLog{
			Action:     action,
			EntityType: entityType,
			EntityID:   c.Param("id"),
			UserID:     userID,
			Details: models.JSONMap{
				"path":    c.FullPath(),
				"method":  c.Request.Method,
				"status":  c.Writer.Status(),
				"latency": time.Since(start).Milliseconds(),
			},
			IPAddress: &ip,
		})
	}
}
