// internal/service/payment/reconciler.go
package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"sokopay-service/internal/domain/payment"
	"sokopay-service/internal/events"
	"sokopay-service/internal/metrics"
	xerrors "sokopay-service/internal/pkg/errors"
	"sokopay-service/internal/service/mpesa"
)

// StatusNotifier pushes a reconciled record to live status subscribers.
type StatusNotifier interface {
	NotifyStatus(checkoutRequestID string, rec *payment.Record)
}

// CallbackOutcome is what the HTTP layer needs to acknowledge the gateway.
// Empty marks a delivery with nothing to reconcile. Record is nil when
// persistence failed; the acknowledgment does not depend on it.
type CallbackOutcome struct {
	Empty      bool
	Status     payment.Status
	ResultDesc string
	Record     *payment.Record
}

// Reconciler folds asynchronous gateway callbacks into payment records.
// Every merge is monotonic and idempotent, so at-least-once delivery in any
// order converges on the same final state.
type Reconciler struct {
	store     payment.Store
	gateway   Gateway
	publisher events.Publisher
	notifier  StatusNotifier
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewReconciler(
	store payment.Store,
	gateway Gateway,
	publisher events.Publisher,
	notifier StatusNotifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		store:     store,
		gateway:   gateway,
		publisher: publisher,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Process ingests one raw callback delivery. It never returns an error:
// whatever happens inside, the gateway gets its 200.
func (s *Reconciler) Process(ctx context.Context, raw []byte) CallbackOutcome {
	res := payment.ParseCallback(raw)
	if res == nil {
		s.metrics.Callbacks.WithLabelValues(metrics.OutcomeEmpty).Inc()
		s.logger.Info("callback without stk payload acknowledged", zap.Int("body_bytes", len(raw)))
		return CallbackOutcome{Empty: true}
	}
	return s.apply(ctx, res)
}

// apply reconciles an already-parsed callback result. The gateway query
// path reuses it so manual reconciliation follows the exact merge rules.
func (s *Reconciler) apply(ctx context.Context, res *payment.CallbackResult) CallbackOutcome {
	status := res.Status()
	if status == payment.StatusPaid {
		s.metrics.Callbacks.WithLabelValues(metrics.OutcomePaid).Inc()
	} else {
		s.metrics.Callbacks.WithLabelValues(metrics.OutcomeFailed).Inc()
	}

	outcome := CallbackOutcome{Status: status, ResultDesc: res.ResultDesc}

	key, value, keyed := res.DedupeKey()
	if !keyed {
		// Nothing to correlate on; best-effort insert for the audit trail.
		rec := recordFromCallback(res, s.now())
		if err := s.store.Create(ctx, rec); err != nil {
			s.metrics.StoreFailures.WithLabelValues("create_keyless").Inc()
			s.logger.Error("failed to persist keyless callback", zap.Error(err))
			return outcome
		}
		outcome.Record = rec
		s.announce(ctx, rec, "")
		return outcome
	}

	rec, created, prev, err := s.upsert(ctx, key, value, res)
	if xerrors.Is(err, xerrors.ErrConflict) {
		// Lost an insert race; the winner's row exists now, so one retry
		// goes down the update path.
		rec, created, prev, err = s.upsert(ctx, key, value, res)
	}
	if err != nil {
		s.metrics.StoreFailures.WithLabelValues("reconcile").Inc()
		s.logger.Error("callback reconciliation failed",
			zap.String("key", string(key)),
			zap.String("value", value),
			zap.Error(err))
		return outcome
	}

	outcome.Record = rec

	if !created && prev == rec.Status {
		s.metrics.CallbackReplays.Inc()
		s.logger.Info("duplicate callback absorbed",
			zap.String("key", string(key)),
			zap.String("value", value),
			zap.String("status", string(rec.Status)))
		return outcome
	}

	s.logger.Info("payment reconciled",
		zap.String("payment_id", rec.ID),
		zap.String("key", string(key)),
		zap.String("value", value),
		zap.String("status", string(rec.Status)),
		zap.Bool("created", created))
	s.announce(ctx, rec, prev)
	return outcome
}

// upsert performs the atomic read-modify-write for one dedupe key.
func (s *Reconciler) upsert(ctx context.Context, key payment.Key, value string, res *payment.CallbackResult) (rec *payment.Record, created bool, prev payment.Status, err error) {
	err = s.store.InTx(ctx, func(tx payment.StoreTx) error {
		existing, ferr := tx.FindByKeyForUpdate(ctx, key, value)
		if ferr != nil {
			if !xerrors.Is(ferr, xerrors.ErrNotFound) {
				return ferr
			}
			rec = recordFromCallback(res, s.now())
			created = true
			return tx.Create(ctx, rec)
		}

		prev = existing.Status
		created = false
		merged := mergeCallback(*existing, res, s.now())
		rec = &merged
		return tx.Update(ctx, &merged)
	})
	if err != nil {
		rec, created, prev = nil, false, ""
	}
	return rec, created, prev, err
}

// ReconcileByQuery asks the gateway for the current result of a checkout
// and applies it through the normal merge path. It exists for payments
// whose callback never arrived.
func (s *Reconciler) ReconcileByQuery(ctx context.Context, checkoutRequestID string) (*payment.Record, error) {
	checkoutRequestID = strings.TrimSpace(checkoutRequestID)
	if checkoutRequestID == "" {
		return nil, fmt.Errorf("checkout request id required: %w", xerrors.ErrInvalidInput)
	}

	resp, err := s.gateway.StkQuery(ctx, checkoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query gateway: %w", err)
	}
	if resp.ResponseCode != "0" {
		return nil, fmt.Errorf("gateway could not resolve checkout: %s: %w",
			resp.ResponseDescription, xerrors.ErrUnavailable)
	}

	res := queryToCallbackResult(checkoutRequestID, resp)
	outcome := s.apply(ctx, res)
	if outcome.Record == nil {
		return nil, fmt.Errorf("failed to persist queried result: %w", xerrors.ErrInternal)
	}
	return outcome.Record, nil
}

// announce publishes the status change and feeds live subscribers. Both are
// fire-and-forget; the acknowledgment to the gateway never waits on them.
func (s *Reconciler) announce(ctx context.Context, rec *payment.Record, prev payment.Status) {
	ev := events.StatusChangedEvent{
		PaymentID:      rec.ID,
		Status:         rec.Status,
		PreviousStatus: prev,
		OccurredAt:     s.now(),
	}
	if rec.CheckoutRequestID.Valid {
		ev.CheckoutRequestID = rec.CheckoutRequestID.String
	}
	if rec.Amount.Valid {
		ev.Amount = rec.Amount.Int64
	}
	if rec.ReceiptNumber.Valid {
		ev.ReceiptNumber = rec.ReceiptNumber.String
	}

	if err := s.publisher.PaymentStatusChanged(ctx, ev); err != nil {
		s.logger.Warn("failed to publish status event",
			zap.String("payment_id", rec.ID),
			zap.Error(err))
	}

	if s.notifier != nil && rec.CheckoutRequestID.Valid {
		s.notifier.NotifyStatus(rec.CheckoutRequestID.String, rec)
	}
}

// recordFromCallback builds a fresh record for a callback with no existing
// row. paidAt comes from the gateway's transaction timestamp when it parsed,
// otherwise the server clock.
func recordFromCallback(res *payment.CallbackResult, now time.Time) *payment.Record {
	rec := &payment.Record{
		ID:          ulid.Make().String(),
		Status:      res.Status(),
		RawCallback: res.Raw,
	}
	if res.CheckoutRequestID != "" {
		rec.CheckoutRequestID = sql.NullString{String: res.CheckoutRequestID, Valid: true}
	}
	if res.MerchantRequestID != "" {
		rec.MerchantRequestID = sql.NullString{String: res.MerchantRequestID, Valid: true}
	}
	if res.ReceiptNumber != "" {
		rec.ReceiptNumber = sql.NullString{String: res.ReceiptNumber, Valid: true}
	}
	if res.Amount > 0 {
		rec.Amount = sql.NullInt64{Int64: res.Amount, Valid: true}
	}
	if res.PayerPhone != "" {
		rec.PayerPhone = sql.NullString{String: res.PayerPhone, Valid: true}
	}
	if res.ResultDesc != "" {
		rec.ResultDesc = sql.NullString{String: res.ResultDesc, Valid: true}
	}
	if rec.Status == payment.StatusPaid {
		paidAt := res.TransactionDate
		if paidAt.IsZero() {
			paidAt = now
		}
		rec.PaidAt = sql.NullTime{Time: paidAt, Valid: true}
	}
	return rec
}

// mergeCallback folds a callback into an existing record.
//
// Rules, in order of authority:
//   - status never downgrades: PAID is terminal, FAILED may become PAID
//   - paidAt is stamped once, on the transition into PAID
//   - a recorded positive amount wins over the callback's echo
//   - identity fields fill blanks only
//   - resultDesc follows the callback unless its status was suppressed
//   - rawCallback always tracks the latest delivery
func mergeCallback(existing payment.Record, res *payment.CallbackResult, now time.Time) payment.Record {
	merged := existing

	next := res.Status()
	if existing.Status == payment.StatusPaid {
		next = payment.StatusPaid
	}
	merged.Status = next

	if next == payment.StatusPaid && !merged.PaidAt.Valid {
		paidAt := res.TransactionDate
		if paidAt.IsZero() {
			paidAt = now
		}
		merged.PaidAt = sql.NullTime{Time: paidAt, Valid: true}
	}

	fillString(&merged.CheckoutRequestID, res.CheckoutRequestID)
	fillString(&merged.MerchantRequestID, res.MerchantRequestID)
	fillString(&merged.ReceiptNumber, res.ReceiptNumber)
	fillString(&merged.PayerPhone, res.PayerPhone)

	if (!merged.Amount.Valid || merged.Amount.Int64 <= 0) && res.Amount > 0 {
		merged.Amount = sql.NullInt64{Int64: res.Amount, Valid: true}
	}

	if next == res.Status() && res.ResultDesc != "" {
		merged.ResultDesc = sql.NullString{String: res.ResultDesc, Valid: true}
	}

	merged.RawCallback = res.Raw
	merged.UpdatedAt = now
	return merged
}

// fillString populates dst only when it is absent or blank.
func fillString(dst *sql.NullString, value string) {
	if value == "" {
		return
	}
	if dst.Valid && dst.String != "" {
		return
	}
	*dst = sql.NullString{String: value, Valid: true}
}

// queryToCallbackResult reshapes a push-status query into the callback
// result form the merge path understands.
func queryToCallbackResult(checkoutRequestID string, resp *mpesa.StkQueryResponse) *payment.CallbackResult {
	code := -1
	if parsed, err := strconv.Atoi(strings.TrimSpace(resp.ResultCode)); err == nil {
		code = parsed
	}

	res := &payment.CallbackResult{
		ResultCode:        code,
		ResultDesc:        resp.ResultDesc,
		CheckoutRequestID: checkoutRequestID,
		MerchantRequestID: strings.TrimSpace(resp.MerchantRequestID),
	}
	if resp.CheckoutRequestID != "" {
		res.CheckoutRequestID = resp.CheckoutRequestID
	}
	if raw, err := json.Marshal(resp); err == nil {
		res.Raw = raw
	}
	return res
}
