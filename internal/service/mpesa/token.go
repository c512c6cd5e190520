// internal/service/mpesa/token.go
package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// tokenTTLSkew is shaved off the gateway's expiry so a cached token is
// never presented moments before it dies.
const tokenTTLSkew = 60 * time.Second

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// Token returns a bearer token for gateway calls, serving from the Redis
// cache when possible. Cache failures degrade to a fresh fetch, never to a
// request failure.
func (c *Client) Token(ctx context.Context) (string, error) {
	key := c.tokenCacheKey()

	if c.cache != nil {
		token, err := c.cache.Get(ctx, key).Result()
		if err == nil && token != "" {
			return token, nil
		}
		if err != nil && err != redis.Nil {
			c.logger.Warn("token cache read failed", zap.Error(err))
		}
	}

	token, ttl, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	if c.cache != nil && ttl > 0 {
		if err := c.cache.Set(ctx, key, token, ttl).Err(); err != nil {
			c.logger.Warn("token cache write failed", zap.Error(err))
		}
	}
	return token, nil
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	start := c.now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GatewayDuration.WithLabelValues("token").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return "", 0, apiErr
	}

	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", 0, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}

	// expires_in arrives as a string of seconds
	ttl := time.Duration(0)
	if secs, err := strconv.Atoi(tok.ExpiresIn); err == nil {
		ttl = time.Duration(secs)*time.Second - tokenTTLSkew
	}
	return tok.AccessToken, ttl, nil
}

func (c *Client) tokenCacheKey() string {
	return "mpesa:oauth:" + c.env + ":" + c.shortcode
}
