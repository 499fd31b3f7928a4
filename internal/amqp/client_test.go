package amqp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{15, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"closed sentinel", amqp091.ErrClosed, true},
		{"wrapped closed", fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"unexpected EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"channel closed", errors.New("channel closed"), true},
		{"other error", errors.New("PRECONDITION_FAILED"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestPublishSyncRequest_CircuitOpen(t *testing.T) {
	client := &Client{cfg: Config{ExchangeName: "finos", QueueName: "sync"}, cb: newBreaker(1)}
	_, _ = client.cb.Execute(func() (any, error) { return nil, errors.New("boom") })

	err := client.TriggerSync(context.Background(), "a@x.io", nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestPublishSyncRequest_CancelledContext(t *testing.T) {
	client := &Client{cfg: Config{ExchangeName: "finos", QueueName: "sync"}, cb: newBreaker(5)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.TriggerSync(ctx, "a@x.io", nil); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestConsumeIngestEvents_RequiresQueue(t *testing.T) {
	client := &Client{cfg: Config{ExchangeName: "finos", QueueName: "sync"}, cb: newBreaker(5)}
	if err := client.ConsumeIngestEvents(context.Background(), nil); err == nil {
		t.Error("expected error without events queue")
	}
}

func TestNewSyncRequestMessage(t *testing.T) {
	last := time.UnixMilli(1700000000123)
	msg := NewSyncRequestMessage("a@x.io", &last)

	if msg.Account != "a@x.io" {
		t.Errorf("Account = %q", msg.Account)
	}
	if msg.LastSynced == nil || *msg.LastSynced != 1700000000123 {
		t.Errorf("LastSynced = %v, want 1700000000123", msg.LastSynced)
	}
	if time.Since(msg.RequestedAt) > time.Second {
		t.Error("RequestedAt should be recent")
	}
	if NewSyncRequestMessage("a@x.io", nil).LastSynced != nil {
		t.Error("LastSynced should be nil when unknown")
	}
}

func TestIngestEventFromJSON(t *testing.T) {
	ev, err := IngestEventFromJSON([]byte(`{"account":" a@x.io ","count":3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Account != "a@x.io" || ev.Count != 3 {
		t.Errorf("unexpected event %+v", ev)
	}

	for _, bad := range []string{`{"count":1}`, `{"account":1}`, `nope`} {
		if _, err := IngestEventFromJSON([]byte(bad)); err == nil {
			t.Errorf("expected error for %s", bad)
		}
	}
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }
func (f *fakeAck) Nack(_ bool, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func TestSettle(t *testing.T) {
	ok := func(context.Context, *IngestEvent) error { return nil }
	fail := func(context.Context, *IngestEvent) error { return errors.New("busy") }

	tests := []struct {
		name        string
		body        string
		handler     func(context.Context, *IngestEvent) error
		wantAck     bool
		wantRequeue bool
	}{
		{"handled", `{"account":"a@x.io"}`, ok, true, false},
		{"handler error requeues", `{"account":"a@x.io"}`, fail, false, true},
		{"bad payload dropped", `{}`, ok, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			settle(context.Background(), []byte(tt.body), ack, tt.handler)
			if ack.acked != tt.wantAck {
				t.Errorf("acked = %v, want %v", ack.acked, tt.wantAck)
			}
			if !tt.wantAck && !ack.nacked {
				t.Error("expected nack")
			}
			if ack.requeued != tt.wantRequeue {
				t.Errorf("requeued = %v, want %v", ack.requeued, tt.wantRequeue)
			}
		})
	}
}
