// internal/handlers/payment/status_handler.go
package payment

import (
	"net/http"

	xerrors "sokopay-service/internal/pkg/errors"
	"sokopay-service/internal/pkg/response"
	service "sokopay-service/internal/service/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusHandler serves the public polling lookup. The checkout request ID is
// unguessable, so holding it is the capability; there is no further auth.
type StatusHandler struct {
	query  *service.QueryService
	logger *zap.Logger
}

func NewStatusHandler(query *service.QueryService, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		query:  query,
		logger: logger,
	}
}

// Status handles GET /payments/status?checkout_request_id=...
func (h *StatusHandler) Status(c *gin.Context) {
	response.NoCache(c)

	checkoutRequestID := c.Query("checkout_request_id")
	rec, err := h.query.FindByCheckoutID(c.Request.Context(), checkoutRequestID)
	if err != nil {
		switch {
		case xerrors.Is(err, xerrors.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "checkout_request_id is required"})
		case xerrors.Is(err, xerrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		default:
			h.logger.Error("status lookup failed",
				zap.String("checkout_request_id", checkoutRequestID),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, rec.ToResponse())
}
