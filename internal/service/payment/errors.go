// internal/service/payment/errors.go
package payment

import "errors"

// Initiation failures the HTTP layer maps onto status codes: the first three
// are caller mistakes (400), the last two deployment defects (500).
var (
	ErrInvalidJSON      = errors.New("invalid JSON body")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidPhone     = errors.New("invalid msisdn")
	ErrGatewayConfig    = errors.New("payment gateway not configured")
	ErrInsecureCallback = errors.New("callback URL must use https in production")
)
