// Package ingest talks to the receipt ingestion backend over HTTP.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"finos/internal/core"
	"finos/internal/metrics"
)

var (
	// ErrUnauthorized is returned by calls other than FetchReceipts on 401/403.
	ErrUnauthorized = errors.New("ingest: unauthorized")
	ErrCircuitOpen  = errors.New("ingest: circuit breaker open")
)

const requestIDHeader = "X-Request-ID"

// Config configures the client.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// MaxFailures consecutive failures open the breaker (default: 5)
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing (default: 30s)
	OpenTimeout time.Duration
}

// Client implements the receipt fetcher, category updater and sync trigger
// against the ingestion backend.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	metrics metrics.Collector
}

// envelope is the response wrapper of every backend endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type transactionsPayload struct {
	Transactions []core.RawReceipt `json:"transactions"`
}

type syncRequest struct {
	Account    string `json:"account"`
	LastSynced *int64 `json:"last_synced,omitempty"`
}

type categoriesRequest struct {
	Categories []string `json:"categories"`
}

// statusError is a non-2xx response.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	if e.msg != "" {
		return fmt.Sprintf("status %d: %s", e.code, e.msg)
	}
	return fmt.Sprintf("status %d", e.code)
}

// NewClient creates a client. A nil collector disables metrics.
func NewClient(cfg Config, collector metrics.Collector) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", cfg.BaseURL)
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
		metrics: collector,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ingest",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Auth rejections and caller cancellation are not an outage.
			var se *statusError
			if errors.As(err, &se) && isAuthStatus(se.code) {
				return true
			}
			if errors.Is(err, context.Canceled) {
				return true
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			c.metrics.RecordCircuitState(name, circuitState(to))
		},
	})
	return c, nil
}

// FetchReceipts returns the raw receipts of account. A 401 or 403 yields an
// empty set and no error.
func (c *Client) FetchReceipts(ctx context.Context, account string) ([]core.RawReceipt, error) {
	var payload transactionsPayload
	err := c.do(ctx, "fetch", http.MethodGet, "/receipts/"+url.PathEscape(account), nil, &payload)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && isAuthStatus(se.code) {
			slog.InfoContext(ctx, "Receipts not accessible, treating as empty", "account", account, "status", se.code)
			return []core.RawReceipt{}, nil
		}
		return nil, fmt.Errorf("fetch receipts: %w", err)
	}
	if payload.Transactions == nil {
		return []core.RawReceipt{}, nil
	}
	return payload.Transactions, nil
}

// UpdateCategories replaces the categories of a receipt upstream.
func (c *Client) UpdateCategories(ctx context.Context, receiptID string, categories []string) error {
	body := categoriesRequest{Categories: categories}
	if body.Categories == nil {
		body.Categories = []string{}
	}
	if err := c.do(ctx, "update_categories", http.MethodPut, "/receipts/"+url.PathEscape(receiptID)+"/categories", body, nil); err != nil {
		return fmt.Errorf("update categories: %w", mapAuth(err))
	}
	return nil
}

// TriggerSync asks the backend to ingest new receipts for account. The
// transactions in the response are not used; the caller refreshes afterwards.
func (c *Client) TriggerSync(ctx context.Context, account string, lastSynced *time.Time) error {
	req := syncRequest{Account: account}
	if lastSynced != nil {
		ms := lastSynced.UnixMilli()
		req.LastSynced = &ms
	}
	var payload transactionsPayload
	if err := c.do(ctx, "trigger_sync", http.MethodPost, "/sync", req, &payload); err != nil {
		return fmt.Errorf("trigger sync: %w", mapAuth(err))
	}
	slog.DebugContext(ctx, "Sync triggered", "account", account, "transactions", len(payload.Transactions))
	return nil
}

// do runs one request through the breaker and decodes the envelope data into out.
func (c *Client) do(ctx context.Context, operation, method, path string, in, out any) error {
	start := time.Now()
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, in, out)
	})
	c.metrics.RecordIngestCall(operation, err == nil, time.Since(start))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID(ctx))
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if decodeErr == nil {
			msg = env.Error
		}
		return &statusError{code: resp.StatusCode, msg: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if !env.Success {
		if env.Error == "" {
			env.Error = "request failed"
		}
		return errors.New(env.Error)
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

type requestIDKey struct{}

// WithRequestID attaches a request id that is forwarded to the backend.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func mapAuth(err error) error {
	var se *statusError
	if errors.As(err, &se) && isAuthStatus(se.code) {
		return fmt.Errorf("%w (%s)", ErrUnauthorized, se.Error())
	}
	return err
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}
