// internal/handlers/stream/stream_handler.go
package stream

import (
	"net/http"
	"strings"
	"time"

	"sokopay-service/internal/pkg/response"
	service "sokopay-service/internal/service/payment"
	"sokopay-service/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Checkout pages live on merchant origins.
		return true
	},
}

type StreamHandler struct {
	hub    *stream.Hub
	query  *service.QueryService
	logger *zap.Logger
}

func NewStreamHandler(hub *stream.Hub, query *service.QueryService, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		hub:    hub,
		query:  query,
		logger: logger,
	}
}

// HandleConnection handles GET /payments/stream?checkout_request_id=...
func (h *StreamHandler) HandleConnection(c *gin.Context) {
	checkoutRequestID := strings.TrimSpace(c.Query("checkout_request_id"))
	if checkoutRequestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "checkout_request_id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("stream upgrade failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		return
	}

	client := stream.NewClient(h.hub, conn, checkoutRequestID)
	h.hub.Attach(client)

	go client.WritePump()
	go client.ReadPump()

	// Send the current state so a subscriber arriving after the callback
	// still sees the terminal status.
	if rec, err := h.query.FindByCheckoutID(c.Request.Context(), checkoutRequestID); err == nil {
		h.hub.NotifyStatus(checkoutRequestID, rec)
	}
}

// GetStats returns stream connection statistics
func (h *StreamHandler) GetStats(c *gin.Context) {
	response.Success(c, http.StatusOK, "stream stats", gin.H{
		"total_connections": h.hub.TotalClients(),
		"timestamp":         time.Now(),
	})
}
