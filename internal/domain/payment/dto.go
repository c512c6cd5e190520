// internal/domain/payment/dto.go
package payment

import "time"

// InitiateRequest is the inbound STK push request. Amount is declared as any
// because callers legitimately send it as a JSON number or a numeric string;
// normalization settles it into whole shillings.
type InitiateRequest struct {
	Amount      any    `json:"amount"`
	Msisdn      string `json:"msisdn"`
	Mode        string `json:"mode"`
	AccountRef  string `json:"accountRef"`
	Description string `json:"description"`
}

// GatewayEcho carries the gateway's own response fields back to the caller
// verbatim. Pointers so absent fields serialize as null, never "".
type GatewayEcho struct {
	MerchantRequestID   *string `json:"MerchantRequestID"`
	CheckoutRequestID   *string `json:"CheckoutRequestID"`
	ResponseCode        *string `json:"ResponseCode"`
	ResponseDescription *string `json:"ResponseDescription"`
	CustomerMessage     *string `json:"CustomerMessage"`
}

// InitiateVerdict is the uniform initiation response: ok means the push was
// accepted and the payer's phone should prompt, not that money moved.
type InitiateVerdict struct {
	OK      bool        `json:"ok"`
	Message string      `json:"message"`
	Mpesa   GatewayEcho `json:"mpesa"`
	Env     string      `json:"env"`
	Mode    string      `json:"mode"`
}

// RecordResponse flattens Record's nullable columns for API output.
type RecordResponse struct {
	ID                string     `json:"id"`
	CheckoutRequestID string     `json:"checkout_request_id,omitempty"`
	MerchantRequestID string     `json:"merchant_request_id,omitempty"`
	ReceiptNumber     string     `json:"receipt_number,omitempty"`
	Status            Status     `json:"status"`
	Amount            *int64     `json:"amount,omitempty"`
	PayerPhone        string     `json:"payer_phone,omitempty"`
	ResultDesc        string     `json:"result_desc,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ToResponse converts a Record into its API representation.
func (r *Record) ToResponse() RecordResponse {
	resp := RecordResponse{
		ID:        r.ID,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.CheckoutRequestID.Valid {
		resp.CheckoutRequestID = r.CheckoutRequestID.String
	}
	if r.MerchantRequestID.Valid {
		resp.MerchantRequestID = r.MerchantRequestID.String
	}
	if r.ReceiptNumber.Valid {
		resp.ReceiptNumber = r.ReceiptNumber.String
	}
	if r.Amount.Valid {
		amount := r.Amount.Int64
		resp.Amount = &amount
	}
	if r.PayerPhone.Valid {
		resp.PayerPhone = r.PayerPhone.String
	}
	if r.ResultDesc.Valid {
		resp.ResultDesc = r.ResultDesc.String
	}
	if r.PaidAt.Valid {
		paidAt := r.PaidAt.Time
		resp.PaidAt = &paidAt
	}
	return resp
}

type ListFilters struct {
	Statuses []Status   `form:"status"`
	Phone    string     `form:"phone"`
	DateFrom *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	DateTo   *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page     int        `form:"page"`
	PageSize int        `form:"page_size"`
}

type ListResponse struct {
	Payments   []RecordResponse `json:"payments"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// ReconcileQueryInput asks the service to query the gateway for a checkout
// that never produced a callback and merge whatever state it reports.
type ReconcileQueryInput struct {
	CheckoutRequestID string `json:"checkout_request_id" binding:"required"`
}
