package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"finos/internal/amqp"
	"finos/internal/config"
	"finos/internal/core"
	"finos/internal/sheets/memory"
)

type fakeTrigger struct{ name string }

func (fakeTrigger) TriggerSync(context.Context, string, *time.Time) error { return nil }

type fakeBroker struct {
	cfg    amqp.Config
	closed bool
}

func (*fakeBroker) TriggerSync(context.Context, string, *time.Time) error { return nil }

func (*fakeBroker) ConsumeIngestEvents(context.Context, func(context.Context, *amqp.IngestEvent) error) error {
	return nil
}

func (b *fakeBroker) Close() error {
	b.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateSyncBackend(t *testing.T) {
	direct := fakeTrigger{name: "http"}
	brokerCfg := Config{AMQPURL: "amqp://localhost", AMQPExchange: "finos", AMQPQueue: "sync_requests", AMQPEventsQueue: "receipts_ingested"}

	tests := []struct {
		name        string
		config      Config
		dialErr     error
		wantErr     bool
		wantBroker  bool // trigger is the broker
		wantEvents  bool
		wantCleanup bool
	}{
		{name: "http without broker", config: Config{Trigger: HTTPTrigger}},
		{
			name:        "http with broker events",
			config:      withTrigger(brokerCfg, HTTPTrigger),
			wantEvents:  true,
			wantCleanup: true,
		},
		{
			name:        "amqp trigger",
			config:      withTrigger(brokerCfg, AMQPTrigger),
			wantBroker:  true,
			wantEvents:  true,
			wantCleanup: true,
		},
		{
			name:    "optional broker unreachable",
			config:  withTrigger(brokerCfg, HTTPTrigger),
			dialErr: errors.New("connection refused"),
		},
		{
			name:    "required broker unreachable",
			config:  withTrigger(brokerCfg, AMQPTrigger),
			dialErr: errors.New("connection refused"),
			wantErr: true,
		},
		{name: "amqp trigger without url", config: Config{Trigger: AMQPTrigger}, wantErr: true},
		{name: "unknown trigger", config: Config{Trigger: "smtp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dialed *fakeBroker
			f := NewFactoryWithDialer(quietLogger(), func(cfg amqp.Config) (Broker, error) {
				if tt.dialErr != nil {
					return nil, tt.dialErr
				}
				dialed = &fakeBroker{cfg: cfg}
				return dialed, nil
			})

			got, err := f.CreateSyncBackend(context.Background(), tt.config, direct)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantBroker {
				if got.Trigger != dialed {
					t.Errorf("expected broker trigger, got %T", got.Trigger)
				}
			} else if got.Trigger != direct {
				t.Errorf("expected direct trigger, got %T", got.Trigger)
			}
			if (got.Events != nil) != tt.wantEvents {
				t.Errorf("events = %v, want %v", got.Events != nil, tt.wantEvents)
			}
			if (got.Cleanup != nil) != tt.wantCleanup {
				t.Fatalf("cleanup = %v, want %v", got.Cleanup != nil, tt.wantCleanup)
			}
			if got.Cleanup != nil {
				if err := got.Cleanup(); err != nil || !dialed.closed {
					t.Errorf("cleanup should close the broker")
				}
				if dialed.cfg.EventsQueueName != "receipts_ingested" {
					t.Errorf("unexpected broker config %+v", dialed.cfg)
				}
			}
		})
	}
}

func withTrigger(c Config, t TriggerType) Config {
	c.Trigger = t
	return c
}

func TestCreateExporter_FallsBackToMemory(t *testing.T) {
	f := NewFactoryWithDialer(quietLogger(), nil)
	conv := core.NewConverter()

	if _, ok := f.CreateExporter(context.Background(), Config{}, conv).(*memory.Store); !ok {
		t.Error("expected memory exporter without spreadsheet")
	}

	missing := Config{
		GoogleSpreadsheetID:      "sheet-1",
		GoogleServiceAccountFile: filepath.Join(t.TempDir(), "missing.json"),
	}
	if _, ok := f.CreateExporter(context.Background(), missing, conv).(*memory.Store); !ok {
		t.Error("expected memory exporter when credentials cannot be read")
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}

	app := &config.Config{
		SyncTrigger:           "amqp",
		AMQPURL:               "amqp://localhost",
		AMQPExchange:          "finos",
		AMQPQueue:             "sync_requests",
		GoogleExportSheetName: "Export",
	}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Trigger != AMQPTrigger || cfg.GoogleSheetName != "Export" {
		t.Errorf("unexpected config %+v", cfg)
	}

	app.AMQPURL = ""
	if _, err := FromAppConfig(app); err == nil {
		t.Error("expected error for amqp trigger without url")
	}
}
