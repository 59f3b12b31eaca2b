package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const adminTokenHeader = "X-Admin-Token"

// AdminAuthMiddleware guards the admin surface with the static shared-secret
// token. The comparison is constant-time; a mismatch or missing header is a
// plain 401 with no detail about which it was.
func AdminAuthMiddleware(adminToken string, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("AdminAuthMiddleware")
	return func(c *gin.Context) {
		header := c.GetHeader(adminTokenHeader)
		if header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(adminToken)) != 1 {
			log.Warn("Admin token missing or mismatched",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Next()
	}
}
