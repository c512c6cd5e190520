package payment

import (
	"testing"
	"time"
)

func TestParseCallbackFull(t *testing.T) {
	raw := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 50.0},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
						{"Name": "TransactionDate", "Value": 20240101120000},
						{"Name": "PhoneNumber", "Value": 254712345678}
					]
				}
			}
		}
	}`)

	res := ParseCallback(raw)
	if res == nil {
		t.Fatal("ParseCallback returned nil for a well-formed callback")
	}
	if res.ResultCode != 0 {
		t.Errorf("ResultCode = %d, want 0", res.ResultCode)
	}
	if res.Status() != StatusPaid {
		t.Errorf("Status() = %s, want PAID", res.Status())
	}
	if res.CheckoutRequestID != "ws_CO_191220191020363925" {
		t.Errorf("CheckoutRequestID = %q", res.CheckoutRequestID)
	}
	if res.MerchantRequestID != "29115-34620561-1" {
		t.Errorf("MerchantRequestID = %q", res.MerchantRequestID)
	}
	if res.ReceiptNumber != "NLJ7RT61SV" {
		t.Errorf("ReceiptNumber = %q", res.ReceiptNumber)
	}
	if res.Amount != 50 {
		t.Errorf("Amount = %d, want 50", res.Amount)
	}
	if res.PayerPhone != "254712345678" {
		t.Errorf("PayerPhone = %q, want 254712345678", res.PayerPhone)
	}
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if !res.TransactionDate.Equal(want) {
		t.Errorf("TransactionDate = %v, want %v", res.TransactionDate, want)
	}
}

func TestParseCallbackUnusableBodies(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "MerchantRequestID=123&ResultCode=0"},
		{"empty body", ""},
		{"json without body node", `{"hello":"world"}`},
		{"body without stkCallback", `{"Body":{"other":{}}}`},
		{"stkCallback explicitly null", `{"Body":{"stkCallback":null}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := ParseCallback([]byte(tt.raw)); res != nil {
				t.Errorf("ParseCallback(%q) = %+v, want nil", tt.raw, res)
			}
		})
	}
}

func TestParseCallbackResultCodes(t *testing.T) {
	tests := []struct {
		name       string
		fragment   string
		wantCode   int
		wantStatus Status
	}{
		{"numeric zero", `"ResultCode": 0`, 0, StatusPaid},
		{"numeric failure", `"ResultCode": 1032`, 1032, StatusFailed},
		{"string zero", `"ResultCode": "0"`, 0, StatusPaid},
		{"string failure", `"ResultCode": "1"`, 1, StatusFailed},
		{"missing", `"ResultDesc": "x"`, -1, StatusFailed},
		{"garbage string", `"ResultCode": "oops"`, -1, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"Body":{"stkCallback":{` + tt.fragment + `}}}`)
			res := ParseCallback(raw)
			if res == nil {
				t.Fatal("ParseCallback returned nil")
			}
			if res.ResultCode != tt.wantCode {
				t.Errorf("ResultCode = %d, want %d", res.ResultCode, tt.wantCode)
			}
			if res.Status() != tt.wantStatus {
				t.Errorf("Status() = %s, want %s", res.Status(), tt.wantStatus)
			}
		})
	}
}

func TestParseCallbackMetadataFolding(t *testing.T) {
	raw := []byte(`{"Body":{"stkCallback":{
		"ResultCode": 0,
		"CheckoutRequestID": "ws_1",
		"CallbackMetadata": {"Item": [
			{"Name": "Amount", "Value": 10},
			{"Name": "", "Value": "skipped"},
			{"Name": "Amount", "Value": 75},
			{"Value": "nameless"}
		]}
	}}}`)

	res := ParseCallback(raw)
	if res == nil {
		t.Fatal("ParseCallback returned nil")
	}
	if res.Amount != 75 {
		t.Errorf("Amount = %d, want 75 (last value wins)", res.Amount)
	}
}

func TestParseCallbackTransactionDate(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		wantZero bool
	}{
		{"valid", `"20240615093045"`, false},
		{"valid numeric", `20240615093045`, false},
		{"too short", `"2024061509"`, true},
		{"too long", `"202406150930450"`, true},
		{"non numeric", `"2024-06-15 09:3"`, true},
		{"impossible month", `"20241315093045"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"Body":{"stkCallback":{"ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"TransactionDate","Value":` + tt.value + `}]}}}}`)
			res := ParseCallback(raw)
			if res == nil {
				t.Fatal("ParseCallback returned nil")
			}
			if got := res.TransactionDate.IsZero(); got != tt.wantZero {
				t.Errorf("TransactionDate zero = %v, want %v (parsed %v)", got, tt.wantZero, res.TransactionDate)
			}
		})
	}
}

func TestDedupeKeyPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		res       CallbackResult
		wantKey   Key
		wantValue string
		wantOK    bool
	}{
		{
			name:      "checkout wins over all",
			res:       CallbackResult{CheckoutRequestID: "ws_1", MerchantRequestID: "m_1", ReceiptNumber: "R1"},
			wantKey:   KeyCheckoutRequestID,
			wantValue: "ws_1",
			wantOK:    true,
		},
		{
			name:      "merchant when checkout blank",
			res:       CallbackResult{MerchantRequestID: "m_1", ReceiptNumber: "R1"},
			wantKey:   KeyMerchantRequestID,
			wantValue: "m_1",
			wantOK:    true,
		},
		{
			name:      "receipt as last resort",
			res:       CallbackResult{ReceiptNumber: "R1"},
			wantKey:   KeyReceiptNumber,
			wantValue: "R1",
			wantOK:    true,
		},
		{
			name:   "nothing usable",
			res:    CallbackResult{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, value, ok := tt.res.DedupeKey()
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if key != tt.wantKey || value != tt.wantValue {
				t.Errorf("DedupeKey() = (%s, %q), want (%s, %q)", key, value, tt.wantKey, tt.wantValue)
			}
		})
	}
}

func TestParseCallbackStringAmountAndPhone(t *testing.T) {
	raw := []byte(`{"Body":{"stkCallback":{
		"ResultCode": 0,
		"CheckoutRequestID": "ws_2",
		"CallbackMetadata": {"Item": [
			{"Name": "Amount", "Value": "120.6"},
			{"Name": "PhoneNumber", "Value": "+254 712 345 678"}
		]}
	}}}`)

	res := ParseCallback(raw)
	if res == nil {
		t.Fatal("ParseCallback returned nil")
	}
	if res.Amount != 121 {
		t.Errorf("Amount = %d, want 121", res.Amount)
	}
	if res.PayerPhone != "254712345678" {
		t.Errorf("PayerPhone = %q, want 254712345678", res.PayerPhone)
	}
}
