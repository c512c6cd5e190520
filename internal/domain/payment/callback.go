// internal/domain/payment/callback.go
package payment

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"sokopay-service/internal/pkg/msisdn"
)

// callbackEnvelope mirrors the gateway's nested notification shape.
type callbackEnvelope struct {
	Body struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        any    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []metadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type metadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

// CallbackResult is a gateway callback folded into flat, typed fields.
// Zero values mean "absent": Amount 0, TransactionDate zero time, empty
// strings. ResultCode is -1 when missing or unparseable so that an
// incomplete callback can never read as success.
type CallbackResult struct {
	ResultCode        int
	ResultDesc        string
	CheckoutRequestID string
	MerchantRequestID string
	ReceiptNumber     string
	Amount            int64
	PayerPhone        string
	TransactionDate   time.Time
	Raw               []byte
}

// ParseCallback extracts the stkCallback node from a raw request body.
// Bodies that are not JSON, or that lack the node, yield nil; the caller
// still acknowledges the gateway. Field-level type mismatches are tolerated
// rather than rejecting the whole delivery.
func ParseCallback(raw []byte) *CallbackResult {
	var env callbackEnvelope
	// Decode errors are deliberately ignored; whatever fields did decode
	// are used, matching the gateway's loose delivery contract.
	_ = json.Unmarshal(raw, &env)

	stk := env.Body.StkCallback
	if stk == nil {
		return nil
	}

	res := &CallbackResult{
		ResultCode:        coerceResultCode(stk.ResultCode),
		ResultDesc:        strings.TrimSpace(stk.ResultDesc),
		CheckoutRequestID: strings.TrimSpace(stk.CheckoutRequestID),
		MerchantRequestID: strings.TrimSpace(stk.MerchantRequestID),
		Raw:               raw,
	}

	meta := foldMetadata(stk.CallbackMetadata.Item)

	if v, ok := meta["Amount"]; ok {
		if amount, ok := msisdn.NormalizeAmount(v); ok {
			res.Amount = amount
		}
	}
	if v, ok := meta["MpesaReceiptNumber"]; ok {
		res.ReceiptNumber = strings.TrimSpace(stringValue(v))
	}
	if v, ok := meta["PhoneNumber"]; ok {
		res.PayerPhone = digitsOnly(stringValue(v))
	}
	if v, ok := meta["TransactionDate"]; ok {
		res.TransactionDate = parseTransactionDate(stringValue(v))
	}

	return res
}

// Status derives the terminal state: result code 0 means the payer
// authorized the charge, anything else (including a missing code) failed.
func (r *CallbackResult) Status() Status {
	if r.ResultCode == 0 {
		return StatusPaid
	}
	return StatusFailed
}

// DedupeKey picks the identifier used to correlate deliveries of the same
// logical payment, in decreasing order of gateway specificity.
func (r *CallbackResult) DedupeKey() (Key, string, bool) {
	switch {
	case r.CheckoutRequestID != "":
		return KeyCheckoutRequestID, r.CheckoutRequestID, true
	case r.MerchantRequestID != "":
		return KeyMerchantRequestID, r.MerchantRequestID, true
	case r.ReceiptNumber != "":
		return KeyReceiptNumber, r.ReceiptNumber, true
	default:
		return "", "", false
	}
}

// foldMetadata flattens the item list into a name->value map. Later items
// win on repeated names; blank names are skipped.
func foldMetadata(items []metadataItem) map[string]any {
	meta := make(map[string]any, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		meta[name] = item.Value
	}
	return meta
}

func coerceResultCode(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		code, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return -1
		}
		return code
	case json.Number:
		code, err := t.Int64()
		if err != nil {
			return -1
		}
		return int(code)
	default:
		return -1
	}
}

// stringValue renders a metadata value as text. JSON numbers arrive as
// float64; formatting with 'f' keeps fourteen-digit timestamps and twelve-
// digit phone numbers exact (both are far below 2^53).
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseTransactionDate parses the gateway's YYYYMMDDHHmmss timestamp as UTC.
// Anything that is not exactly fourteen digits is treated as absent.
func parseTransactionDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if len(s) != 14 || digitsOnly(s) != s {
		return time.Time{}
	}
	ts, err := time.ParseInLocation("20060102150405", s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return ts
}
