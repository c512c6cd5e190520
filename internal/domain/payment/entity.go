// internal/domain/payment/entity.go
package payment

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusFailed  Status = "FAILED"
)

// Key names one of the alternate unique identifiers a gateway callback may
// reference. Values double as column names; the repository maps them through
// a closed switch, never by interpolation.
type Key string

const (
	KeyCheckoutRequestID Key = "checkout_request_id"
	KeyMerchantRequestID Key = "merchant_request_id"
	KeyReceiptNumber     Key = "receipt_number"
)

type Record struct {
	ID string `json:"id" db:"id"`

	// Alternate unique keys; any subset may be present
	CheckoutRequestID sql.NullString `json:"checkout_request_id,omitempty" db:"checkout_request_id"`
	MerchantRequestID sql.NullString `json:"merchant_request_id,omitempty" db:"merchant_request_id"`
	ReceiptNumber     sql.NullString `json:"receipt_number,omitempty" db:"receipt_number"`

	// Payment outcome
	Status     Status         `json:"status" db:"status"`
	Amount     sql.NullInt64  `json:"amount,omitempty" db:"amount"`
	PayerPhone sql.NullString `json:"payer_phone,omitempty" db:"payer_phone"`
	ResultDesc sql.NullString `json:"result_desc,omitempty" db:"result_desc"`
	PaidAt     sql.NullTime   `json:"paid_at,omitempty" db:"paid_at"`

	// Audit: last callback payload seen for this record
	RawCallback []byte `json:"-" db:"raw_callback"`

	// Timestamps
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type PaymentStats struct {
	TotalPayments int64 `json:"total_payments"`
	PendingCount  int64 `json:"pending_count"`
	PaidCount     int64 `json:"paid_count"`
	FailedCount   int64 `json:"failed_count"`
	PaidAmount    int64 `json:"paid_amount"`
}
