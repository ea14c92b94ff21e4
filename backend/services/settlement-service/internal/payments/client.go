// Package payments wraps the payment provider's REST API in the three calls
// the settlement engine needs. Every mutating call carries an idempotency key
// so provider-side retries cannot double-charge.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Error is a provider-reported failure, opaque beyond code and message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("payments: %s: %s", e.Code, e.Message)
}

// HTTPDoer defines http.Client interface subset.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to the payment provider.
type Client struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

// NewClient builds client with base URL and API key.
func NewClient(baseURL, apiKey string, client HTTPDoer) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// NewDefaultHTTPClient returns *http.Client with timeout.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// CreateAuthorization places a hold against the payment method and returns
// the authorization reference.
func (c *Client) CreateAuthorization(ctx context.Context, paymentMethodID string, amountCents int64, idempotencyKey string) (string, error) {
	body := map[string]interface{}{
		"payment_method": paymentMethodID,
		"amount":         amountCents,
		"currency":       "usd",
		"capture":        false,
	}
	resp, err := c.post(ctx, "/v1/authorizations", body, idempotencyKey)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CaptureAuthorization finalizes the hold at the real amount and returns the
// receipt id.
func (c *Client) CaptureAuthorization(ctx context.Context, authRef string, amountCents int64, idempotencyKey string) (string, error) {
	body := map[string]interface{}{
		"amount": amountCents,
	}
	resp, err := c.post(ctx, "/v1/authorizations/"+authRef+"/capture", body, idempotencyKey)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Transfer moves the owner share to the linked payout destination, tagged
// with the session for traceability.
func (c *Client) Transfer(ctx context.Context, destination string, amountCents int64, sourceRef, idempotencyKey string) error {
	body := map[string]interface{}{
		"destination": destination,
		"amount":      amountCents,
		"currency":    "usd",
		"source_ref":  sourceRef,
	}
	_, err := c.post(ctx, "/v1/transfers", body, idempotencyKey)
	return err
}

type providerResponse struct {
	ID    string `json:"id"`
	Error *Error `json:"error,omitempty"`
}

func (c *Client) post(ctx context.Context, path string, body map[string]interface{}, idempotencyKey string) (*providerResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var decoded providerResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("payments: decode response (%d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return nil, decoded.Error
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: string(raw)}
	}
	return &decoded, nil
}
