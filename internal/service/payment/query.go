// internal/service/payment/query.go
package payment

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sokopay-service/internal/domain/payment"
	xerrors "sokopay-service/internal/pkg/errors"
)

// QueryService is the read side: lookups for the public status endpoint and
// the operator listing/stats API.
type QueryService struct {
	store  payment.Store
	logger *zap.Logger
}

func NewQueryService(store payment.Store, logger *zap.Logger) *QueryService {
	return &QueryService{
		store:  store,
		logger: logger,
	}
}

// GetPayment retrieves one record by its internal ID.
func (s *QueryService) GetPayment(ctx context.Context, id string) (*payment.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("payment id required: %w", xerrors.ErrInvalidInput)
	}

	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return rec, nil
}

// FindByCheckoutID retrieves one record by the gateway's checkout request ID.
func (s *QueryService) FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*payment.Record, error) {
	checkoutRequestID = strings.TrimSpace(checkoutRequestID)
	if checkoutRequestID == "" {
		return nil, fmt.Errorf("checkout request id required: %w", xerrors.ErrInvalidInput)
	}

	rec, err := s.store.FindByKey(ctx, payment.KeyCheckoutRequestID, checkoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return rec, nil
}

// ListPayments applies filters and assembles the paginated response.
// Unknown status values are dropped rather than rejected so that operator
// dashboards with stale filter sets keep working.
func (s *QueryService) ListPayments(ctx context.Context, filters payment.ListFilters) (*payment.ListResponse, error) {
	statuses := make([]payment.Status, 0, len(filters.Statuses))
	for _, st := range filters.Statuses {
		switch normalized := payment.Status(strings.ToUpper(strings.TrimSpace(string(st)))); normalized {
		case payment.StatusPending, payment.StatusPaid, payment.StatusFailed:
			statuses = append(statuses, normalized)
		}
	}
	filters.Statuses = statuses

	records, total, err := s.store.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	// Mirror the repository's clamps so the pagination meta is truthful.
	page := filters.Page
	if page < 1 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	payments := make([]payment.RecordResponse, 0, len(records))
	for i := range records {
		payments = append(payments, records[i].ToResponse())
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &payment.ListResponse{
		Payments:   payments,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// GetStats returns payment counts by status plus the paid sum.
func (s *QueryService) GetStats(ctx context.Context) (*payment.PaymentStats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment stats: %w", err)
	}
	return stats, nil
}
