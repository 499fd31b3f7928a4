package backend

import (
	"context"
	"fmt"
	"log/slog"

	"finos/internal/amqp"
	"finos/internal/core"
	"finos/internal/services"
	"finos/internal/sheets"
	gsheet "finos/internal/sheets/google"
	"finos/internal/sheets/memory"
)

// DialFunc connects to the broker.
type DialFunc func(amqp.Config) (Broker, error)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	dial   DialFunc
}

// NewFactory creates a factory that dials RabbitMQ with amqp.NewClient.
func NewFactory(logger *slog.Logger) *DefaultFactory {
	return NewFactoryWithDialer(logger, func(cfg amqp.Config) (Broker, error) {
		c, err := amqp.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

func NewFactoryWithDialer(logger *slog.Logger, dial DialFunc) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger, dial: dial}
}

// CreateSyncBackend implements Factory.CreateSyncBackend
func (f *DefaultFactory) CreateSyncBackend(ctx context.Context, config Config, direct services.SyncTrigger) (*SyncBackend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	result := &SyncBackend{Trigger: direct}
	if config.AMQPURL == "" {
		f.logger.InfoContext(ctx, "Initialized sync backend", "trigger", HTTPTrigger, "events", false)
		return result, nil
	}

	broker, err := f.dial(amqp.Config{
		URL:             config.AMQPURL,
		ExchangeName:    config.AMQPExchange,
		QueueName:       config.AMQPQueue,
		EventsQueueName: config.AMQPEventsQueue,
	})
	if err != nil {
		if config.Trigger == AMQPTrigger {
			return nil, fmt.Errorf("connect to AMQP broker: %w", err)
		}
		f.logger.WarnContext(ctx, "AMQP broker unavailable, continuing without ingestion events", "error", err)
		return result, nil
	}

	if config.Trigger == AMQPTrigger {
		result.Trigger = broker
	}
	if config.AMQPEventsQueue != "" {
		result.Events = broker
	}
	result.Cleanup = broker.Close

	f.logger.InfoContext(ctx, "Initialized sync backend",
		"trigger", config.Trigger,
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue,
		"events", result.Events != nil)
	return result, nil
}

// CreateExporter implements Factory.CreateExporter
func (f *DefaultFactory) CreateExporter(ctx context.Context, config Config, conv *core.Converter) sheets.DashboardExporter {
	if config.GoogleSpreadsheetID == "" {
		f.logger.InfoContext(ctx, "Initialized memory exporter")
		return memory.New(conv)
	}

	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	}, conv)
	if err != nil {
		f.logger.WarnContext(ctx, "Google Sheets export unavailable, keeping exports in memory", "error", err)
		return memory.New(conv)
	}
	return client
}
