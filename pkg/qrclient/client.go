// Package qrclient is a typed client for the valecashback payment API.
// It is what the mobile and web shells talk through: it guards against
// double-submitting a redemption and never retries one on its own.
package qrclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	KindNetwork      = "network"
	KindAuth         = "auth"
	KindNotFound     = "not-found"
	KindConflict     = "conflict"
	KindGone         = "gone"
	KindForbidden    = "forbidden"
	KindInsufficient = "insufficient"
	KindInvalid      = "invalid"
	KindUnknown      = "unknown"
)

// ErrRedeemInFlight is returned when a redemption for the same code is
// already running. The button stays disabled until the first one settles.
var ErrRedeemInFlight = errors.New("redemption for this code is already in flight")

type Error struct {
	Kind    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kind: %s, error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("kind: %s, status: %d, message: %s", e.Kind, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Token struct {
	ID          uuid.UUID  `json:"id"`
	Code        string     `json:"code"`
	Amount      float64    `json:"amount"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RedeemedAt  *time.Time `json:"redeemed_at,omitempty"`
}

type Settlement struct {
	Code          string    `json:"code"`
	Amount        float64   `json:"amount"`
	Cashback      float64   `json:"cashback"`
	PaymentMethod string    `json:"payment_method"`
	RedeemedAt    time.Time `json:"redeemed_at"`
}

type Config struct {
	// Base address of the service, e.g. http://localhost:8000
	BaseAddr string

	// Transport lets callers route requests through an offline cache
	// controller. Defaults to http.DefaultTransport.
	Transport http.RoundTripper

	// Per request timeout, defaults to 5 seconds
	Timeout time.Duration
}

type Client struct {
	baseAddr string
	client   *http.Client

	mu       sync.Mutex
	access   string
	inflight map[string]struct{}
}

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Client{
		baseAddr: strings.TrimSuffix(cfg.BaseAddr, "/"),
		client: &http.Client{
			Transport: cfg.Transport,
			Timeout:   cfg.Timeout,
		},
		inflight: make(map[string]struct{}),
	}
}

// SetAccessToken sets the bearer token used for authenticated calls
func (c *Client) SetAccessToken(access string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = access
}

// Issue asks the service for a new payment token.
// Amount is validated before any network call.
func (c *Client) Issue(ctx context.Context, amount float64, description string) (Token, error) {
	var token Token

	if amount <= 0 {
		return token, &Error{Kind: KindInvalid, Message: "amount must be positive"}
	}

	err := c.do(ctx, http.MethodPost, "/api/payments/qr-code/generate", map[string]any{
		"amount":      amount,
		"description": description,
	}, nil, &token)

	return token, err
}

// TokenStatus returns the current token snapshot for polling
func (c *Client) TokenStatus(ctx context.Context, code string) (Token, error) {
	var token Token

	if code == "" {
		return token, &Error{Kind: KindInvalid, Message: "code must not be empty"}
	}

	err := c.do(ctx, http.MethodGet, "/api/payments/qr-code/"+code, nil, nil, &token)

	return token, err
}

// Cancel voids a pending token issued by the current user
func (c *Client) Cancel(ctx context.Context, code string) (Token, error) {
	var token Token

	if code == "" {
		return token, &Error{Kind: KindInvalid, Message: "code must not be empty"}
	}

	err := c.do(ctx, http.MethodPost, "/api/payments/qr-code/"+code+"/cancel", nil, nil, &token)

	return token, err
}

// Redeem settles the token. One attempt only: a timed out redemption is
// reported as a network error and never resent automatically, the caller
// has to check the token status before trying again. Concurrent redemptions
// of the same code are rejected with ErrRedeemInFlight.
func (c *Client) Redeem(ctx context.Context, code string, method string) (Settlement, error) {
	var settlement Settlement

	if code == "" {
		return settlement, &Error{Kind: KindInvalid, Message: "code must not be empty"}
	}

	if err := c.beginRedeem(code); err != nil {
		return settlement, err
	}
	defer c.endRedeem(code)

	// Client generated key: if the caller deliberately retries after a
	// timeout the server replays the stored response instead of settling twice
	headers := map[string]string{"Idempotency-Key": uuid.NewString()}

	err := c.do(ctx, http.MethodPost, "/api/payments/pay-qrcode", map[string]any{
		"code":           code,
		"payment_method": method,
	}, headers, &settlement)

	return settlement, err
}

// ProcessScan settles a payment straight from scanned qr data
func (c *Client) ProcessScan(ctx context.Context, qrData string, method string) (Settlement, error) {
	var settlement Settlement

	// Reject empty scans before any network call
	if strings.TrimSpace(qrData) == "" {
		return settlement, &Error{Kind: KindInvalid, Message: "qr payload is empty"}
	}

	if err := c.beginRedeem(qrData); err != nil {
		return settlement, err
	}
	defer c.endRedeem(qrData)

	headers := map[string]string{"Idempotency-Key": uuid.NewString()}

	err := c.do(ctx, http.MethodPost, "/api/payments/process-qrcode", map[string]any{
		"qrData":         qrData,
		"payment_method": method,
	}, headers, &settlement)

	return settlement, err
}

func (c *Client) beginRedeem(code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.inflight[code]; busy {
		return ErrRedeemInFlight
	}
	c.inflight[code] = struct{}{}

	return nil
}

func (c *Client) endRedeem(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, code)
}

func (c *Client) do(ctx context.Context, method string, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindUnknown, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseAddr+path, reader)
	if err != nil {
		return &Error{Kind: KindUnknown, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	if c.access != "" {
		req.Header.Set("Authorization", "Bearer "+c.access)
	}
	c.mu.Unlock()
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Kind: KindUnknown, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
		return nil
	}

	return errorFromStatus(resp)
}

func errorFromStatus(resp *http.Response) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)

	kind := KindUnknown
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		kind = KindAuth
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusConflict:
		kind = KindConflict
	case http.StatusGone:
		kind = KindGone
	case http.StatusForbidden:
		kind = KindForbidden
	case http.StatusPaymentRequired:
		kind = KindInsufficient
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = KindInvalid
	}

	return &Error{Kind: kind, Status: resp.StatusCode, Message: payload.Message}
}
