// internal/handlers/ops/ops_handler.go
package ops

import (
	"net/http"

	"sokopay-service/internal/domain/payment"
	xerrors "sokopay-service/internal/pkg/errors"
	"sokopay-service/internal/pkg/response"
	service "sokopay-service/internal/service/payment"

	"github.com/gin-gonic/gin"
)

// OpsHandler is the operator-facing payment API: listing, inspection, and
// manual reconciliation for payments whose callback went missing.
type OpsHandler struct {
	query      *service.QueryService
	reconciler *service.Reconciler
}

func NewOpsHandler(query *service.QueryService, reconciler *service.Reconciler) *OpsHandler {
	return &OpsHandler{
		query:      query,
		reconciler: reconciler,
	}
}

// ListPayments retrieves payments with filters
func (h *OpsHandler) ListPayments(c *gin.Context) {
	var filters payment.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	result, err := h.query.ListPayments(c.Request.Context(), filters)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list payments", err)
		return
	}

	response.Success(c, http.StatusOK, "payments retrieved", result)
}

// GetPayment retrieves a payment by ID
func (h *OpsHandler) GetPayment(c *gin.Context) {
	rec, err := h.query.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "payment not found", err)
			return
		}
		if xerrors.Is(err, xerrors.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, "invalid payment ID", err)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to get payment", err)
		return
	}

	response.Success(c, http.StatusOK, "payment retrieved", rec.ToResponse())
}

// GetStats retrieves payment statistics
func (h *OpsHandler) GetStats(c *gin.Context) {
	stats, err := h.query.GetStats(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to get payment stats", err)
		return
	}

	response.Success(c, http.StatusOK, "payment stats retrieved", stats)
}

// Reconcile queries the gateway for a checkout's current result and merges it
func (h *OpsHandler) Reconcile(c *gin.Context) {
	var input payment.ReconcileQueryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	rec, err := h.reconciler.ReconcileByQuery(c.Request.Context(), input.CheckoutRequestID)
	if err != nil {
		switch {
		case xerrors.Is(err, xerrors.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, "invalid request", err)
		case xerrors.Is(err, xerrors.ErrUnavailable):
			response.Error(c, http.StatusBadGateway, "gateway could not resolve checkout", err)
		default:
			response.Error(c, http.StatusInternalServerError, "failed to reconcile payment", err)
		}
		return
	}

	response.Success(c, http.StatusOK, "payment reconciled", rec.ToResponse())
}
