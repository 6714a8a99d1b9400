package midtrans

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-core/pkg/config"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

const (
	sandboxSnapURL    = "https://app.sandbox.midtrans.com"
	sandboxAPIURL     = "https://api.sandbox.midtrans.com"
	productionSnapURL = "https://app.midtrans.com"
	productionAPIURL  = "https://api.midtrans.com"

	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

var (
	errServerKeyRequired = errors.New("midtrans server key is required")
	// ErrTransactionNotFound is returned when the gateway has no record of the order.
	ErrTransactionNotFound = errors.New("midtrans transaction not found")
)

// APIError is a non-success reply from the gateway.
type APIError struct {
	HTTPStatus int      `json:"-"`
	StatusCode string   `json:"status_code,omitempty"`
	Messages   []string `json:"error_messages,omitempty"`
	Message    string   `json:"status_message,omitempty"`
}

func (e *APIError) Error() string {
	parts := e.Messages
	if len(parts) == 0 && e.Message != "" {
		parts = []string{e.Message}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("midtrans: http %d", e.HTTPStatus)
	}
	return fmt.Sprintf("midtrans: http %d: %s", e.HTTPStatus, strings.Join(parts, "; "))
}

// Client talks to the Snap and Core APIs with the merchant server key.
type Client struct {
	serverKey  string
	production bool
	snapURL    string
	apiURL     string
	http       *http.Client
	logg       *logger.Logger
}

type Option func(*Client)

// WithBaseURLs points the client at alternate Snap and Core hosts.
func WithBaseURLs(snapURL, apiURL string) Option {
	return func(c *Client) {
		c.snapURL = strings.TrimRight(snapURL, "/")
		c.apiURL = strings.TrimRight(apiURL, "/")
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient validates the credentials and selects sandbox or production hosts.
func NewClient(ctx context.Context, cfg config.MidtransConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	serverKey := strings.TrimSpace(cfg.ServerKey)
	if serverKey == "" {
		return nil, errServerKeyRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		serverKey:  serverKey,
		production: cfg.IsProduction,
		snapURL:    sandboxSnapURL,
		apiURL:     sandboxAPIURL,
		http:       &http.Client{Timeout: timeout},
		logg:       logg,
	}
	if cfg.IsProduction {
		c.snapURL, c.apiURL = productionSnapURL, productionAPIURL
	}
	for _, opt := range opts {
		opt(c)
	}
	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("midtrans client initialized (production=%t)", c.production))
	}
	return c, nil
}

// IsProduction reports whether the client targets the live gateway.
func (c *Client) IsProduction() bool {
	return c != nil && c.production
}

// CreateTransaction opens a Snap session for the request.
func (c *Client) CreateTransaction(ctx context.Context, req SnapRequest) (*SnapResponse, error) {
	if req.TransactionDetails.OrderID == "" {
		return nil, errors.New("midtrans order id is required")
	}
	var out SnapResponse
	if err := c.do(ctx, http.MethodPost, c.snapURL+"/snap/v1/transactions", req, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, &APIError{HTTPStatus: http.StatusOK, Messages: out.ErrorMessages}
	}
	return &out, nil
}

// Status fetches the current transaction state for an order number.
func (c *Client) Status(ctx context.Context, orderID string) (*TransactionStatus, error) {
	return c.transaction(ctx, http.MethodGet, orderID, "status")
}

// Cancel voids a pending or captured transaction.
func (c *Client) Cancel(ctx context.Context, orderID string) (*TransactionStatus, error) {
	return c.transaction(ctx, http.MethodPost, orderID, "cancel")
}

func (c *Client) transaction(ctx context.Context, method, orderID, action string) (*TransactionStatus, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, errors.New("midtrans order id is required")
	}
	endpoint := fmt.Sprintf("%s/v2/%s/%s", c.apiURL, url.PathEscape(orderID), action)
	var out TransactionStatus
	if err := c.do(ctx, method, endpoint, nil, &out); err != nil {
		return nil, err
	}
	// Core API reports failures in the body with HTTP 200.
	switch {
	case out.StatusCode == "404":
		return nil, ErrTransactionNotFound
	case strings.HasPrefix(out.StatusCode, "4"), strings.HasPrefix(out.StatusCode, "5"):
		if out.StatusCode != "407" {
			return nil, &APIError{HTTPStatus: http.StatusOK, StatusCode: out.StatusCode, Message: out.StatusMessage}
		}
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode midtrans request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build midtrans request: %w", err)
	}
	req.SetBasicAuth(c.serverKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logError(ctx, endpoint, err)
		return fmt.Errorf("midtrans request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read midtrans response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		c.logError(ctx, endpoint, apiErr)
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode midtrans response: %w", err)
	}
	return nil
}

func (c *Client) logError(ctx context.Context, endpoint string, err error) {
	if c.logg == nil {
		return
	}
	ctx = c.logg.WithField(ctx, "midtrans_endpoint", endpoint)
	c.logg.Error(ctx, "midtrans call failed", err)
}
