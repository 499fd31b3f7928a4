// Package metrics defines the instrumentation points of finos. Backends
// implement Collector; NoOpCollector is used when metrics are disabled.
package metrics

import (
	"context"
	"time"

	"finos/internal/core"
)

// Collector records finos metrics.
type Collector interface {
	// Ingestion backend calls, operation is one of fetch, update_categories, trigger_sync.
	RecordIngestCall(operation string, success bool, duration time.Duration)

	// Circuit breaker around the ingestion backend
	RecordCircuitState(name string, state CircuitState)

	// Sync status transitions
	RecordSyncState(state core.SyncState)

	// Dashboard memo lookups
	RecordDashboard(hit bool)

	// Ingestion events received over AMQP
	RecordIngestEvent(success bool)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards everything.
type NoOpCollector struct{}

func (NoOpCollector) RecordIngestCall(operation string, success bool, duration time.Duration) {}
func (NoOpCollector) RecordCircuitState(name string, state CircuitState)                      {}
func (NoOpCollector) RecordSyncState(state core.SyncState)                                    {}
func (NoOpCollector) RecordDashboard(hit bool)                                                {}
func (NoOpCollector) RecordIngestEvent(success bool)                                          {}

// SyncObserver forwards sync status transitions to a collector.
type SyncObserver struct {
	Collector Collector
}

func (o SyncObserver) OnSyncStatus(_ context.Context, _ string, status core.SyncStatus) {
	o.Collector.RecordSyncState(status.State)
}
