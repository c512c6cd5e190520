// internal/handlers/payment/callback_handler.go
package payment

import (
	"crypto/subtle"
	"io"
	"net/http"

	"sokopay-service/internal/metrics"
	"sokopay-service/internal/pkg/response"
	service "sokopay-service/internal/service/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxCallbackBytes = 1 << 20

// CallbackHandler ingests the gateway's asynchronous result deliveries.
// Everything it returns is HTTP 200: the gateway treats any other status as
// an invitation to retry, and retries are already handled by the
// reconciler's idempotent merge.
type CallbackHandler struct {
	reconciler *service.Reconciler
	secret     string
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewCallbackHandler(reconciler *service.Reconciler, secret string, m *metrics.Metrics, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{
		reconciler: reconciler,
		secret:     secret,
		metrics:    m,
		logger:     logger,
	}
}

// Receive handles POST /payments/callback.
func (h *CallbackHandler) Receive(c *gin.Context) {
	response.NoCache(c)

	if !h.authorized(c) {
		h.metrics.Callbacks.WithLabelValues(metrics.OutcomeIgnored).Inc()
		h.logger.Warn("callback with bad shared secret ignored",
			zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": true})
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBytes))
	if err != nil {
		h.logger.Warn("failed to read callback body", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	outcome := h.reconciler.Process(c.Request.Context(), raw)
	if outcome.Empty {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	// resultDesc is part of the ack shape even when the gateway sent none.
	var resultDesc any
	if outcome.ResultDesc != "" {
		resultDesc = outcome.ResultDesc
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"status":     outcome.Status,
		"resultDesc": resultDesc,
	})
}

// Ping answers GET/HEAD liveness probes on the callback path.
func (h *CallbackHandler) Ping(c *gin.Context) {
	response.NoCache(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// authorized applies the optional shared-secret check. Without a configured
// secret every delivery is accepted; with one, either header must match.
func (h *CallbackHandler) authorized(c *gin.Context) bool {
	if h.secret == "" {
		return true
	}
	for _, header := range []string{"x-callback-token", "x-callback-secret"} {
		value := c.GetHeader(header)
		if value != "" && subtle.ConstantTimeCompare([]byte(value), []byte(h.secret)) == 1 {
			return true
		}
	}
	return false
}
