// internal/handlers/payment/stk_handler.go
package payment

import (
	"errors"
	"net/http"

	"sokopay-service/internal/domain/payment"
	"sokopay-service/internal/pkg/response"
	service "sokopay-service/internal/service/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StkHandler serves the public initiation endpoint. Its wire format is fixed
// by the checkout clients: the verdict object on 200/502, a bare
// {"error": ...} on 400/500, no envelope.
type StkHandler struct {
	initiation *service.InitiationService
	logger     *zap.Logger
}

func NewStkHandler(initiation *service.InitiationService, logger *zap.Logger) *StkHandler {
	return &StkHandler{
		initiation: initiation,
		logger:     logger,
	}
}

// Initiate handles POST /payments/stk-initiate.
func (h *StkHandler) Initiate(c *gin.Context) {
	response.NoCache(c)

	if c.ContentType() != "application/json" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content-type must be application/json"})
		return
	}

	var input payment.InitiateRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrInvalidJSON.Error()})
		return
	}

	verdict, err := h.initiation.Initiate(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidPhone):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrGatewayConfig), errors.Is(err, service.ErrInsecureCallback):
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			h.logger.Error("initiation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	status := http.StatusOK
	if !verdict.OK {
		status = http.StatusBadGateway
	}
	c.JSON(status, verdict)
}

// Ping answers GET/HEAD liveness probes on the initiation path.
func (h *StkHandler) Ping(c *gin.Context) {
	response.NoCache(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
