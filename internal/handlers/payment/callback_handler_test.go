// internal/handlers/payment/callback_handler_test.go
package payment

import (
	"net/http"
	"testing"
)

func paidCallback(t *testing.T) []byte {
	return callbackBody(t, map[string]any{
		"MerchantRequestID": "29115-34620561-1",
		"CheckoutRequestID": "ws_CO_191220191020363925",
		"ResultCode":        0,
		"ResultDesc":        "The service request is processed successfully.",
		"CallbackMetadata": metadata(
			"Amount", 50.0,
			"MpesaReceiptNumber", "NLJ7RT61SV",
			"TransactionDate", 20240615093045,
			"PhoneNumber", 254712345678,
		),
	})
}

// Initiate a payment, deliver its PAID callback, then read the record back.
func TestCallbackPaidFlow(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/payments/stk-initiate",
		[]byte(`{"amount": 50, "msisdn": "0712345678"}`), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("initiate status = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/payments/callback", paidCallback(t), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("callback status = %d, body = %s", w.Code, w.Body.String())
	}
	ack := decodeBody(t, w)
	if ack["ok"] != true || ack["status"] != "PAID" {
		t.Errorf("ack = %v", ack)
	}
	if ack["resultDesc"] != "The service request is processed successfully." {
		t.Errorf("resultDesc = %v", ack["resultDesc"])
	}

	w = env.do(t, http.MethodGet, "/payments/status?checkout_request_id=ws_CO_191220191020363925", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status lookup = %d, body = %s", w.Code, w.Body.String())
	}
	rec := decodeBody(t, w)
	if rec["status"] != "PAID" {
		t.Errorf("status = %v", rec["status"])
	}
	if rec["receipt_number"] != "NLJ7RT61SV" {
		t.Errorf("receipt_number = %v", rec["receipt_number"])
	}
	if rec["paid_at"] == nil {
		t.Error("paid_at is null after PAID callback")
	}
	if env.store.count() != 1 {
		t.Errorf("records = %d, want 1", env.store.count())
	}
}

func TestCallbackReplayIsIdempotent(t *testing.T) {
	env := newTestEnv(t, "")

	env.do(t, http.MethodPost, "/payments/stk-initiate",
		[]byte(`{"amount": 50, "msisdn": "0712345678"}`), nil)
	env.do(t, http.MethodPost, "/payments/callback", paidCallback(t), nil)

	w := env.do(t, http.MethodPost, "/payments/callback", paidCallback(t), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("replay status = %d", w.Code)
	}
	ack := decodeBody(t, w)
	if ack["ok"] != true || ack["status"] != "PAID" {
		t.Errorf("replay ack = %v", ack)
	}
	if env.store.count() != 1 {
		t.Errorf("records = %d after replay, want 1", env.store.count())
	}
}

// A failure callback with no prior record still creates a FAILED row.
func TestCallbackFailureWithoutPriorRecord(t *testing.T) {
	env := newTestEnv(t, "")

	body := callbackBody(t, map[string]any{
		"MerchantRequestID": "29115-34620561-2",
		"CheckoutRequestID": "ws_CO_unseen",
		"ResultCode":        1032,
		"ResultDesc":        "Request cancelled by user",
	})
	w := env.do(t, http.MethodPost, "/payments/callback", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	ack := decodeBody(t, w)
	if ack["ok"] != true || ack["status"] != "FAILED" {
		t.Errorf("ack = %v", ack)
	}
	if ack["resultDesc"] != "Request cancelled by user" {
		t.Errorf("resultDesc = %v", ack["resultDesc"])
	}

	w = env.do(t, http.MethodGet, "/payments/status?checkout_request_id=ws_CO_unseen", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status lookup = %d", w.Code)
	}
	rec := decodeBody(t, w)
	if rec["status"] != "FAILED" {
		t.Errorf("status = %v", rec["status"])
	}
	if rec["paid_at"] != nil {
		t.Errorf("paid_at = %v, want null", rec["paid_at"])
	}
}

// Deliveries without a parsable stkCallback are acknowledged and dropped.
func TestCallbackUnparsableBodies(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"empty object", []byte(`{}`)},
		{"no stkCallback", []byte(`{"Body": {}}`)},
		{"not json", []byte(`hello`)},
		{"empty body", []byte(``)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")
			w := env.do(t, http.MethodPost, "/payments/callback", tt.body, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			ack := decodeBody(t, w)
			if ack["ok"] != true {
				t.Errorf("ack = %v", ack)
			}
			if _, present := ack["status"]; present {
				t.Errorf("status present in ack for unparsable body: %v", ack)
			}
			if env.store.count() != 0 {
				t.Errorf("records = %d, want 0", env.store.count())
			}
		})
	}
}

func TestCallbackSecretMismatchIgnored(t *testing.T) {
	env := newTestEnv(t, "hunter2")

	w := env.do(t, http.MethodPost, "/payments/callback", paidCallback(t),
		map[string]string{"x-callback-token": "wrong"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	ack := decodeBody(t, w)
	if ack["ok"] != true || ack["ignored"] != true {
		t.Errorf("ack = %v", ack)
	}
	if env.store.count() != 0 {
		t.Errorf("records = %d, want 0", env.store.count())
	}

	// Missing header is the same as a wrong one.
	w = env.do(t, http.MethodPost, "/payments/callback", paidCallback(t), nil)
	ack = decodeBody(t, w)
	if ack["ignored"] != true {
		t.Errorf("ack without header = %v", ack)
	}
}

func TestCallbackSecretAccepted(t *testing.T) {
	for _, header := range []string{"x-callback-token", "x-callback-secret"} {
		t.Run(header, func(t *testing.T) {
			env := newTestEnv(t, "hunter2")
			w := env.do(t, http.MethodPost, "/payments/callback", paidCallback(t),
				map[string]string{header: "hunter2"})
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			ack := decodeBody(t, w)
			if ack["status"] != "PAID" {
				t.Errorf("ack = %v", ack)
			}
			if env.store.count() != 1 {
				t.Errorf("records = %d, want 1", env.store.count())
			}
		})
	}
}

func TestCallbackLivenessPings(t *testing.T) {
	env := newTestEnv(t, "hunter2")

	w := env.do(t, http.MethodGet, "/payments/callback", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d", w.Code)
	}
	assertNoCache(t, w)
	body := decodeBody(t, w)
	if body["ok"] != true {
		t.Errorf("ok = %v", body["ok"])
	}

	w = env.do(t, http.MethodHead, "/payments/callback", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("HEAD status = %d", w.Code)
	}
}

func TestStatusLookupErrors(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/payments/status", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing param status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/payments/status?checkout_request_id=ws_CO_nope", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["error"] != "payment not found" {
		t.Errorf("error = %v", body["error"])
	}
}
