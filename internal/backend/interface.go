package backend

import (
	"context"

	"finos/internal/core"
	"finos/internal/services"
	"finos/internal/sheets"
	"finos/internal/worker"
)

// Broker is a message broker that can request syncs and deliver ingestion
// events.
type Broker interface {
	services.SyncTrigger
	worker.EventSource
	Close() error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// SyncBackend is the transport chosen for sync requests, plus the optional
// source of ingestion events.
type SyncBackend struct {
	Trigger services.SyncTrigger
	Events  worker.EventSource
	Cleanup CleanupFunc
}

// Factory creates the pluggable collaborators of the process from configuration.
type Factory interface {
	// CreateSyncBackend selects the sync transport. direct is used for the
	// http trigger and whenever the broker is optional and unreachable.
	CreateSyncBackend(ctx context.Context, config Config, direct services.SyncTrigger) (*SyncBackend, error)

	// CreateExporter returns the dashboard exporter. It never fails: a
	// misconfigured spreadsheet falls back to the in-memory exporter.
	CreateExporter(ctx context.Context, config Config, conv *core.Converter) sheets.DashboardExporter
}

// TriggerType names a sync transport
type TriggerType string

const (
	HTTPTrigger TriggerType = "http"
	AMQPTrigger TriggerType = "amqp"
)

// String implements fmt.Stringer
func (t TriggerType) String() string {
	return string(t)
}

// IsValid returns true if the trigger type is known
func (t TriggerType) IsValid() bool {
	switch t {
	case HTTPTrigger, AMQPTrigger:
		return true
	default:
		return false
	}
}
