// internal/app/router.go
package app

import (
	opsHandler "sokopay-service/internal/handlers/ops"
	paymentHandler "sokopay-service/internal/handlers/payment"
	streamHandler "sokopay-service/internal/handlers/stream"
	"sokopay-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	StkHandler      *paymentHandler.StkHandler
	CallbackHandler *paymentHandler.CallbackHandler
	StatusHandler   *paymentHandler.StatusHandler
	OpsHandler      *opsHandler.OpsHandler
	StreamHandler   *streamHandler.StreamHandler
	AuthMiddleware  *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	// ==================== Health Check ====================
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ==================== Metrics ====================
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ==================== Payments ====================
	// The initiate and callback routes are the wire surface checkout pages
	// and the gateway depend on; their shapes do not change.
	payments := r.Group("/payments")
	{
		payments.POST("/stk-initiate", h.StkHandler.Initiate)
		payments.GET("/stk-initiate", h.StkHandler.Ping)
		payments.HEAD("/stk-initiate", h.StkHandler.Ping)

		payments.POST("/callback", h.CallbackHandler.Receive)
		payments.GET("/callback", h.CallbackHandler.Ping)
		payments.HEAD("/callback", h.CallbackHandler.Ping)

		payments.GET("/status", h.StatusHandler.Status)
		payments.GET("/stream", h.StreamHandler.HandleConnection)
	}

	// ==================== Operator API ====================
	api := r.Group("/api/v1")

	ops := api.Group("/payments")
	ops.Use(h.AuthMiddleware.Auth())
	{
		ops.GET("", h.OpsHandler.ListPayments)
		ops.GET("/stats", h.OpsHandler.GetStats)
		ops.GET("/:id", h.OpsHandler.GetPayment)
		ops.POST("/reconcile", h.OpsHandler.Reconcile)
	}

	streamOps := api.Group("/stream")
	streamOps.Use(h.AuthMiddleware.Auth())
	{
		streamOps.GET("/stats", h.StreamHandler.GetStats)
	}
}
