package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"finos/internal/analytics"
	"finos/internal/core"
	"finos/internal/ingest"
	"finos/internal/log"
	"finos/internal/services"
	"finos/internal/sheets"
)

// ReceiptAPI is the part of the receipt service the API reads and mutates.
type ReceiptAPI interface {
	State() services.ReceiptState
	Dashboard(spec core.FilterSpec, displayCurrency string) analytics.Dashboard
	UpdateCategories(ctx context.Context, receiptID string, categories []string) error
}

// SyncAPI exposes the sync status cell and its retry action.
type SyncAPI interface {
	Status() core.SyncStatus
	Retry(ctx context.Context) (core.SyncStatus, error)
}

// Options configures the API server. Exporter, Metrics and Ready may be nil.
type Options struct {
	Receipts        ReceiptAPI
	Sync            SyncAPI
	Exporter        sheets.DashboardExporter
	Converter       *core.Converter
	DisplayCurrency string
	AllowedOrigins  []string
	Metrics         http.Handler
	Ready           func(context.Context) error
	Logger          *log.Logger

	// WriteLimit is the number of mutating requests per client per minute (default: 30)
	WriteLimit int

	// RetryTimeout bounds a sync retry, which outlives the request that started it (default: 60s)
	RetryTimeout time.Duration
}

type Server struct {
	http.Server
	opts         Options
	limiter      *rateLimiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, opts Options) *Server {
	if opts.WriteLimit <= 0 {
		opts.WriteLimit = 30
	}
	if opts.RetryTimeout <= 0 {
		opts.RetryTimeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.DisplayCurrency == "" {
		opts.DisplayCurrency = core.DefaultCurrency
	}

	s := &Server{
		opts:    opts,
		limiter: newRateLimiter(opts.WriteLimit, time.Minute),
	}
	go s.limiter.startCleanup(5 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	mux.HandleFunc("GET /api/receipts", s.handleReceipts)
	mux.HandleFunc("PUT /api/receipts/{id}/categories", s.handleUpdateCategories)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/currencies", s.handleCurrencies)
	mux.HandleFunc("GET /api/sync/status", s.handleSyncStatus)
	mux.HandleFunc("POST /api/sync/retry", s.handleRetrySync)
	mux.HandleFunc("POST /api/export", s.handleExport)

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         600,
	})

	var h http.Handler = mux
	h = s.withRateLimit(h)
	h = c.Handler(h)
	h = securityHeaders(h)
	h = log.Middleware(opts.Logger, func(r *http.Request) string { return requestIDFrom(r.Context()) })(h)
	h = withRequestID(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// withRequestID keeps a well-formed incoming X-Request-ID or assigns a new
// one, echoes it and forwards it to ingestion calls made for the request.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 || strings.ContainsFunc(id, func(c rune) bool { return c < 33 || c > 126 }) {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = ingest.WithRequestID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRateLimit throttles mutating requests per client IP.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			clientIP := extractClientIP(r)
			if !s.limiter.allow(clientIP) {
				log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
					log.FieldClientIP, clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
				TooManyRequestsError("60").Write(w)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
