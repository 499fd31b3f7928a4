package backend

import (
	"errors"
	"fmt"

	"finos/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Trigger TriggerType

	// AMQP, optional unless Trigger is amqp
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPEventsQueue string

	// Google Sheets export, disabled when SpreadsheetID is empty
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	cfg := Config{
		Trigger: TriggerType(appConfig.SyncTrigger),

		AMQPURL:         appConfig.AMQPURL,
		AMQPExchange:    appConfig.AMQPExchange,
		AMQPQueue:       appConfig.AMQPQueue,
		AMQPEventsQueue: appConfig.AMQPEventsQueue,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleExportSheetName,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
	}
	return cfg, cfg.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Trigger.IsValid() {
		return fmt.Errorf("invalid sync trigger: %s", c.Trigger)
	}
	if c.Trigger == AMQPTrigger && c.AMQPURL == "" {
		return errors.New("AMQP URL is required for the amqp sync trigger")
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return errors.New("AMQP exchange and queue are required when AMQP URL is set")
	}
	return nil
}
