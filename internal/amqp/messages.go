package amqp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SyncRequestMessage asks the ingestion workers to pull new receipts for an
// account. LastSynced is epoch milliseconds.
type SyncRequestMessage struct {
	Account     string    `json:"account"`
	LastSynced  *int64    `json:"last_synced,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewSyncRequestMessage(account string, lastSynced *time.Time) *SyncRequestMessage {
	msg := &SyncRequestMessage{
		Account:     account,
		RequestedAt: time.Now(),
	}
	if lastSynced != nil {
		ms := lastSynced.UnixMilli()
		msg.LastSynced = &ms
	}
	return msg
}

func (m *SyncRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// IngestEvent is published by the ingestion workers after new receipts of an
// account were stored.
type IngestEvent struct {
	Account    string    `json:"account"`
	Count      int       `json:"count"`
	IngestedAt time.Time `json:"ingested_at"`
}

// IngestEventFromJSON parses an event and rejects one without an account.
func IngestEventFromJSON(data []byte) (*IngestEvent, error) {
	var ev IngestEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	ev.Account = strings.TrimSpace(ev.Account)
	if ev.Account == "" {
		return nil, fmt.Errorf("ingest event without account")
	}
	return &ev, nil
}
