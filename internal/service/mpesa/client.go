// internal/service/mpesa/client.go
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sokopay-service/internal/config"
	"sokopay-service/internal/metrics"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"

	TransactionTypePayBill  = "CustomerPayBillOnline"
	TransactionTypeBuyGoods = "CustomerBuyGoodsOnline"
)

// SignFunc derives the gateway request password. The algorithm is owned by
// the gateway; DefaultSign implements the published scheme but deployments
// can swap it without touching the client.
type SignFunc func(shortcode, passkey, timestamp string) string

// DefaultSign is the gateway's documented derivation:
// base64(shortcode + passkey + timestamp).
func DefaultSign(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

// Timestamp renders t in the gateway's YYYYMMDDHHmmss wall-clock form.
func Timestamp(t time.Time) string {
	return t.Format("20060102150405")
}

// StkPushRequest carries the per-payment fields of a push; the client
// supplies shortcode, password, timestamp and callback URL itself.
type StkPushRequest struct {
	Amount           int64
	PhoneNumber      string
	TransactionType  string
	AccountReference string
	TransactionDesc  string
}

// StkPushResponse echoes the gateway's acceptance verdict. Pointer fields
// keep absent values distinguishable from empty strings.
type StkPushResponse struct {
	MerchantRequestID   *string `json:"MerchantRequestID"`
	CheckoutRequestID   *string `json:"CheckoutRequestID"`
	ResponseCode        *string `json:"ResponseCode"`
	ResponseDescription *string `json:"ResponseDescription"`
	CustomerMessage     *string `json:"CustomerMessage"`
}

// Accepted reports whether the gateway queued the push (response code "0").
func (r *StkPushResponse) Accepted() bool {
	return r.ResponseCode != nil && *r.ResponseCode == "0"
}

// StkQueryResponse is the synchronous status of an earlier push.
type StkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// APIError is a non-2xx gateway reply, decoded from the gateway's error body
// when possible.
type APIError struct {
	StatusCode int
	RequestID  string `json:"requestId"`
	Code       string `json:"errorCode"`
	Message    string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gateway returned status %d", e.StatusCode)
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkQueryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// Client talks to the Daraja-style gateway: OAuth token acquisition (cached
// in Redis), STK push, and push-status query.
type Client struct {
	baseURL        string
	env            string
	consumerKey    string
	consumerSecret string
	shortcode      string
	passkey        string
	callbackURL    string
	timeout        time.Duration
	sign           SignFunc
	httpClient     *http.Client
	cache          *redis.Client
	metrics        *metrics.Metrics
	logger         *zap.Logger
	now            func() time.Time
}

// NewClient builds a gateway client. cache may be nil; tokens are then
// fetched on every call.
func NewClient(cfg config.MpesaConfig, cache *redis.Client, m *metrics.Metrics, logger *zap.Logger) *Client {
	baseURL := sandboxBaseURL
	if cfg.Env == "production" {
		baseURL = productionBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:        baseURL,
		env:            cfg.Env,
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortcode:      cfg.Shortcode,
		passkey:        cfg.Passkey,
		callbackURL:    cfg.CallbackURL,
		timeout:        timeout,
		sign:           DefaultSign,
		httpClient:     &http.Client{Timeout: timeout},
		cache:          cache,
		metrics:        m,
		logger:         logger,
		now:            time.Now,
	}
}

// Env returns the environment classification the client targets.
func (c *Client) Env() string {
	return c.env
}

// StkPush submits a push-payment request. A decoded response means the
// gateway answered, even when it rejected the push; transport failures and
// gateway error bodies surface as errors.
func (c *Client) StkPush(ctx context.Context, req StkPushRequest) (*StkPushResponse, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire gateway token: %w", err)
	}

	ts := Timestamp(c.now())
	payload := stkPushPayload{
		BusinessShortCode: c.shortcode,
		Password:          c.sign(c.shortcode, c.passkey, ts),
		Timestamp:         ts,
		TransactionType:   req.TransactionType,
		Amount:            req.Amount,
		PartyA:            req.PhoneNumber,
		PartyB:            c.shortcode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       c.callbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.TransactionDesc,
	}

	var resp StkPushResponse
	if err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", "stkpush", token, payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StkQuery asks the gateway for the current result of an earlier push.
func (c *Client) StkQuery(ctx context.Context, checkoutRequestID string) (*StkQueryResponse, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire gateway token: %w", err)
	}

	ts := Timestamp(c.now())
	payload := stkQueryPayload{
		BusinessShortCode: c.shortcode,
		Password:          c.sign(c.shortcode, c.passkey, ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}

	var resp StkQueryResponse
	if err := c.post(ctx, "/mpesa/stkpushquery/v1/query", "stkquery", token, payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path, operation, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", operation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := c.now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GatewayDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("gateway %s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		// Daraja error bodies are JSON; keep the status code when they are not.
		_ = json.Unmarshal(raw, apiErr)
		c.logger.Warn("gateway rejected request",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.String("error_code", apiErr.Code))
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}
