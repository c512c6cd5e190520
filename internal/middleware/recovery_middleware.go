// internal/middleware/recovery_middleware.go
package middleware

import (
	"net/http"

	"sokopay-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns panics into 500 responses. Paths listed in
// alwaysOK are acknowledged with 200 {"ok":true} instead: the payment
// gateway retries any non-200 callback delivery, and a panic mid-reconcile
// must not trigger that.
func RecoveryMiddleware(logger *zap.Logger, alwaysOK ...string) gin.HandlerFunc {
	okPaths := make(map[string]bool, len(alwaysOK))
	for _, p := range alwaysOK {
		okPaths[p] = true
	}

	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
				)
				if okPaths[c.Request.URL.Path] {
					c.AbortWithStatusJSON(http.StatusOK, gin.H{"ok": true})
					return
				}
				response.Error(c, http.StatusInternalServerError, "internal server error", nil)
			}
		}()
		c.Next()
	}
}
