// internal/handlers/payment/handlers_test.go
package payment

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"sokopay-service/internal/config"
	"sokopay-service/internal/domain/payment"
	"sokopay-service/internal/events"
	"sokopay-service/internal/metrics"
	"sokopay-service/internal/middleware"
	xerrors "sokopay-service/internal/pkg/errors"
	service "sokopay-service/internal/service/payment"
	"sokopay-service/internal/service/mpesa"
)

// fakeStore gives the handlers the same uniqueness and lookup semantics as
// the Postgres repository, minus the database.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*payment.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*payment.Record)}
}

func (s *fakeStore) InTx(ctx context.Context, fn func(tx payment.StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&fakeTx{store: s})
}

func (s *fakeStore) Create(ctx context.Context, rec *payment.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(rec)
}

func (s *fakeStore) FindByID(ctx context.Context, id string) (*payment.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) FindByKey(ctx context.Context, key payment.Key, value string) (*payment.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByKeyLocked(key, value)
}

func (s *fakeStore) List(ctx context.Context, filters payment.ListFilters) ([]payment.Record, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]payment.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out, int64(len(out)), nil
}

func (s *fakeStore) Stats(ctx context.Context) (*payment.PaymentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &payment.PaymentStats{TotalPayments: int64(len(s.records))}, nil
}

func (s *fakeStore) insertLocked(rec *payment.Record) error {
	for _, existing := range s.records {
		if collide(existing.CheckoutRequestID, rec.CheckoutRequestID) ||
			collide(existing.MerchantRequestID, rec.MerchantRequestID) ||
			collide(existing.ReceiptNumber, rec.ReceiptNumber) {
			return xerrors.ErrConflict
		}
	}
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *fakeStore) findByKeyLocked(key payment.Key, value string) (*payment.Record, error) {
	for _, rec := range s.records {
		var field sql.NullString
		switch key {
		case payment.KeyCheckoutRequestID:
			field = rec.CheckoutRequestID
		case payment.KeyMerchantRequestID:
			field = rec.MerchantRequestID
		case payment.KeyReceiptNumber:
			field = rec.ReceiptNumber
		}
		if field.Valid && field.String == value {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func collide(a, b sql.NullString) bool {
	return a.Valid && b.Valid && a.String != "" && a.String == b.String
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeTx struct {
	store *fakeStore
}

func (tx *fakeTx) FindByKeyForUpdate(ctx context.Context, key payment.Key, value string) (*payment.Record, error) {
	return tx.store.findByKeyLocked(key, value)
}

func (tx *fakeTx) Create(ctx context.Context, rec *payment.Record) error {
	return tx.store.insertLocked(rec)
}

func (tx *fakeTx) Update(ctx context.Context, rec *payment.Record) error {
	if _, ok := tx.store.records[rec.ID]; !ok {
		return xerrors.ErrNotFound
	}
	cp := *rec
	tx.store.records[rec.ID] = &cp
	return nil
}

type stubGateway struct {
	push  func(ctx context.Context, req mpesa.StkPushRequest) (*mpesa.StkPushResponse, error)
	query func(ctx context.Context, checkoutRequestID string) (*mpesa.StkQueryResponse, error)
}

func (g *stubGateway) StkPush(ctx context.Context, req mpesa.StkPushRequest) (*mpesa.StkPushResponse, error) {
	if g.push == nil {
		return nil, errors.New("unexpected StkPush call")
	}
	return g.push(ctx, req)
}

func (g *stubGateway) StkQuery(ctx context.Context, checkoutRequestID string) (*mpesa.StkQueryResponse, error) {
	if g.query == nil {
		return nil, errors.New("unexpected StkQuery call")
	}
	return g.query(ctx, checkoutRequestID)
}

func (g *stubGateway) Env() string { return "sandbox" }

type testEnv struct {
	store   *fakeStore
	gateway *stubGateway
	router  *gin.Engine
}

// newTestEnv wires the real services and handlers over the fakes, with the
// same route table and recovery middleware the server installs.
func newTestEnv(t *testing.T, callbackSecret string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())
	store := newFakeStore()

	checkoutID := "ws_CO_191220191020363925"
	merchantID := "29115-34620561-1"
	code := "0"
	desc := "Success. Request accepted for processing"
	gw := &stubGateway{
		push: func(ctx context.Context, req mpesa.StkPushRequest) (*mpesa.StkPushResponse, error) {
			return &mpesa.StkPushResponse{
				MerchantRequestID:   &merchantID,
				CheckoutRequestID:   &checkoutID,
				ResponseCode:        &code,
				ResponseDescription: &desc,
				CustomerMessage:     &desc,
			}, nil
		},
	}

	cfg := config.MpesaConfig{
		Env:            "sandbox",
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Shortcode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://pay.example.com/payments/callback",
		AccountRef:     "SOKOPAY",
		CallbackSecret: callbackSecret,
	}

	initiation := service.NewInitiationService(store, gw, cfg, false, m, logger)
	reconciler := service.NewReconciler(store, gw, events.NopPublisher{}, nil, m, logger)
	query := service.NewQueryService(store, logger)

	stk := NewStkHandler(initiation, logger)
	cb := NewCallbackHandler(reconciler, callbackSecret, m, logger)
	status := NewStatusHandler(query, logger)

	r := gin.New()
	r.Use(middleware.RecoveryMiddleware(logger, "/payments/callback"))
	r.POST("/payments/stk-initiate", stk.Initiate)
	r.GET("/payments/stk-initiate", stk.Ping)
	r.HEAD("/payments/stk-initiate", stk.Ping)
	r.POST("/payments/callback", cb.Receive)
	r.GET("/payments/callback", cb.Ping)
	r.HEAD("/payments/callback", cb.Ping)
	r.GET("/payments/status", status.Status)

	return &testEnv{store: store, gateway: gw, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func assertNoCache(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	if got := w.Header().Get("Cache-Control"); got != "no-store, no-cache, must-revalidate" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := w.Header().Get("Pragma"); got != "no-cache" {
		t.Errorf("Pragma = %q", got)
	}
	if got := w.Header().Get("Expires"); got != "0" {
		t.Errorf("Expires = %q", got)
	}
}

func callbackBody(t *testing.T, stk map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"Body": map[string]any{"stkCallback": stk},
	})
	if err != nil {
		t.Fatalf("marshal callback: %v", err)
	}
	return body
}

func metadata(pairs ...any) map[string]any {
	items := make([]map[string]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		items = append(items, map[string]any{"Name": pairs[i], "Value": pairs[i+1]})
	}
	return map[string]any{"Item": items}
}
