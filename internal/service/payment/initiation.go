// internal/service/payment/initiation.go
package payment

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"sokopay-service/internal/config"
	"sokopay-service/internal/domain/payment"
	"sokopay-service/internal/metrics"
	xerrors "sokopay-service/internal/pkg/errors"
	"sokopay-service/internal/pkg/msisdn"
	"sokopay-service/internal/service/mpesa"
)

const (
	maxAccountRefLen  = 12
	maxDescriptionLen = 32
)

// Gateway is the slice of the M-Pesa client this package consumes.
type Gateway interface {
	StkPush(ctx context.Context, req mpesa.StkPushRequest) (*mpesa.StkPushResponse, error)
	StkQuery(ctx context.Context, checkoutRequestID string) (*mpesa.StkQueryResponse, error)
	Env() string
}

// InitiationService validates an inbound payment request, pushes it to the
// gateway and shapes the verdict. It persists nothing on failure; the only
// record it writes is the PENDING row after the gateway accepts a push.
type InitiationService struct {
	store      payment.Store
	gateway    Gateway
	cfg        config.MpesaConfig
	production bool
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewInitiationService(
	store payment.Store,
	gateway Gateway,
	cfg config.MpesaConfig,
	production bool,
	m *metrics.Metrics,
	logger *zap.Logger,
) *InitiationService {
	return &InitiationService{
		store:      store,
		gateway:    gateway,
		cfg:        cfg,
		production: production,
		metrics:    m,
		logger:     logger,
	}
}

// Initiate runs the fail-fast validation sequence and submits the push.
// Validation and configuration failures return sentinel errors; once the
// gateway is reached, every outcome is expressed in the verdict, with OK
// deciding between 200 and 502 upstream.
func (s *InitiationService) Initiate(ctx context.Context, input payment.InitiateRequest) (*payment.InitiateVerdict, error) {
	amount, ok := msisdn.NormalizeAmount(input.Amount)
	if !ok {
		s.metrics.Initiations.WithLabelValues(metrics.ResultInvalid).Inc()
		return nil, ErrInvalidAmount
	}

	phone := msisdn.Normalize(input.Msisdn)
	if !msisdn.Valid(phone) {
		s.metrics.Initiations.WithLabelValues(metrics.ResultInvalid).Inc()
		return nil, ErrInvalidPhone
	}

	if s.cfg.Shortcode == "" || s.cfg.Passkey == "" || s.cfg.CallbackURL == "" ||
		s.cfg.ConsumerKey == "" || s.cfg.ConsumerSecret == "" {
		return nil, ErrGatewayConfig
	}

	if s.production && !strings.HasPrefix(strings.ToLower(s.cfg.CallbackURL), "https://") {
		return nil, ErrInsecureCallback
	}

	// Anything other than an explicit "till" is a pay-bill push.
	mode := "paybill"
	transactionType := mpesa.TransactionTypePayBill
	if strings.ToLower(strings.TrimSpace(input.Mode)) == "till" {
		mode = "till"
		transactionType = mpesa.TransactionTypeBuyGoods
	}

	accountRef := strings.TrimSpace(input.AccountRef)
	if accountRef == "" {
		accountRef = s.cfg.AccountRef
	}
	if len(accountRef) > maxAccountRefLen {
		accountRef = accountRef[:maxAccountRefLen]
	}

	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = "Payment"
	}
	if len(description) > maxDescriptionLen {
		description = description[:maxDescriptionLen]
	}

	resp, err := s.gateway.StkPush(ctx, mpesa.StkPushRequest{
		Amount:           amount,
		PhoneNumber:      phone,
		TransactionType:  transactionType,
		AccountReference: accountRef,
		TransactionDesc:  description,
	})
	if err != nil {
		s.metrics.Initiations.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error("stk push failed",
			zap.String("phone", phone),
			zap.Int64("amount", amount),
			zap.Error(err))
		return &payment.InitiateVerdict{
			OK:      false,
			Message: gatewayErrorMessage(err),
			Env:     s.gateway.Env(),
			Mode:    mode,
		}, nil
	}

	verdict := &payment.InitiateVerdict{
		OK:      resp.Accepted(),
		Message: verdictMessage(resp),
		Mpesa: payment.GatewayEcho{
			MerchantRequestID:   resp.MerchantRequestID,
			CheckoutRequestID:   resp.CheckoutRequestID,
			ResponseCode:        resp.ResponseCode,
			ResponseDescription: resp.ResponseDescription,
			CustomerMessage:     resp.CustomerMessage,
		},
		Env:  s.gateway.Env(),
		Mode: mode,
	}

	if verdict.OK {
		s.metrics.Initiations.WithLabelValues(metrics.ResultAccepted).Inc()
		s.logger.Info("stk push accepted",
			zap.String("phone", phone),
			zap.Int64("amount", amount),
			zap.String("mode", mode),
			zap.Stringp("checkout_request_id", resp.CheckoutRequestID))
		s.recordPending(ctx, resp, amount, phone)
	} else {
		s.metrics.Initiations.WithLabelValues(metrics.ResultRejected).Inc()
		s.logger.Warn("stk push rejected",
			zap.String("phone", phone),
			zap.Stringp("response_code", resp.ResponseCode),
			zap.Stringp("response_description", resp.ResponseDescription))
	}

	return verdict, nil
}

// recordPending writes the PENDING row for an accepted push. The initiation
// amount recorded here is authoritative; a later callback can only fill a
// blank amount, never replace this one. Failures are logged, never surfaced:
// the push already went out and the callback path can still create a record.
func (s *InitiationService) recordPending(ctx context.Context, resp *mpesa.StkPushResponse, amount int64, phone string) {
	if resp.CheckoutRequestID == nil || *resp.CheckoutRequestID == "" {
		return
	}

	rec := &payment.Record{
		ID:                ulid.Make().String(),
		Status:            payment.StatusPending,
		CheckoutRequestID: sql.NullString{String: *resp.CheckoutRequestID, Valid: true},
		Amount:            sql.NullInt64{Int64: amount, Valid: true},
		PayerPhone:        sql.NullString{String: phone, Valid: true},
	}
	if resp.MerchantRequestID != nil && *resp.MerchantRequestID != "" {
		rec.MerchantRequestID = sql.NullString{String: *resp.MerchantRequestID, Valid: true}
	}

	if err := s.store.Create(ctx, rec); err != nil {
		if xerrors.Is(err, xerrors.ErrConflict) {
			// The callback arrived before us; the reconciler owns the record.
			s.logger.Debug("pending record lost creation race",
				zap.String("checkout_request_id", *resp.CheckoutRequestID))
			return
		}
		s.metrics.StoreFailures.WithLabelValues("create_pending").Inc()
		s.logger.Warn("failed to record pending payment",
			zap.String("checkout_request_id", *resp.CheckoutRequestID),
			zap.Error(err))
	}
}

func verdictMessage(resp *mpesa.StkPushResponse) string {
	if resp.CustomerMessage != nil && *resp.CustomerMessage != "" {
		return *resp.CustomerMessage
	}
	if resp.ResponseDescription != nil && *resp.ResponseDescription != "" {
		return *resp.ResponseDescription
	}
	if resp.Accepted() {
		return "STK push initiated"
	}
	return "STK push rejected by gateway"
}

func gatewayErrorMessage(err error) string {
	var apiErr *mpesa.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
