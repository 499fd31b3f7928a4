// Package worker runs the background refresh of the receipt set.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"finos/internal/amqp"
	"finos/internal/metrics"
	"finos/internal/services"
)

// EventSource delivers ingestion events until ctx is done.
type EventSource interface {
	ConsumeIngestEvents(ctx context.Context, handler func(context.Context, *amqp.IngestEvent) error) error
}

// RefreshWorkerConfig holds configuration for the refresh worker
type RefreshWorkerConfig struct {
	// Interval between periodic refreshes (default: 5m)
	Interval time.Duration
}

func DefaultRefreshWorkerConfig() RefreshWorkerConfig {
	return RefreshWorkerConfig{Interval: 5 * time.Minute}
}

// RefreshWorker refreshes receipts on a timer and whenever the ingestion
// backend reports new receipts for the active account.
type RefreshWorker struct {
	refresher services.Refresher
	account   func() string
	events    EventSource
	metrics   metrics.Collector
	config    RefreshWorkerConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewRefreshWorker creates a worker. account reports the active account; events
// and collector may be nil.
func NewRefreshWorker(
	refresher services.Refresher,
	account func() string,
	events EventSource,
	collector metrics.Collector,
	config RefreshWorkerConfig,
) *RefreshWorker {
	if config.Interval <= 0 {
		config.Interval = DefaultRefreshWorkerConfig().Interval
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	return &RefreshWorker{
		refresher: refresher,
		account:   account,
		events:    events,
		metrics:   collector,
		config:    config,
	}
}

// Start launches the refresh loop. Returns an error if already running.
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("refresh worker is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.runLoop(runCtx)
	}()
	if w.events != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consumeEvents(runCtx)
		}()
	}
	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	slog.InfoContext(ctx, "Refresh worker started",
		"interval", w.config.Interval,
		"events", w.events != nil)
	return nil
}

// Stop cancels the loops and waits for them to finish.
func (w *RefreshWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.doneCh
	w.mu.Unlock()

	cancel()

	select {
	case <-done:
		slog.InfoContext(ctx, "Refresh worker stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Refresh worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *RefreshWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *RefreshWorker) runLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.refresh(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refresh(ctx, "interval")
		}
	}
}

func (w *RefreshWorker) refresh(ctx context.Context, reason string) {
	if err := w.refresher.Refresh(ctx); err != nil && ctx.Err() == nil {
		slog.WarnContext(ctx, "Scheduled refresh failed", "reason", reason, "error", err)
	}
}

func (w *RefreshWorker) consumeEvents(ctx context.Context) {
	err := w.events.ConsumeIngestEvents(ctx, w.HandleIngestEvent)
	if err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Ingest event consumption stopped", "error", err)
	}
}

// HandleIngestEvent refreshes when the event concerns the active account.
// Events for other accounts are acknowledged and ignored.
func (w *RefreshWorker) HandleIngestEvent(ctx context.Context, ev *amqp.IngestEvent) error {
	if w.account == nil || ev.Account != w.account() {
		slog.DebugContext(ctx, "Ignoring ingest event for inactive account", "account", ev.Account)
		return nil
	}

	err := w.refresher.Refresh(ctx)
	w.metrics.RecordIngestEvent(err == nil)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Refreshed after ingest event", "account", ev.Account, "count", ev.Count)
	return nil
}
