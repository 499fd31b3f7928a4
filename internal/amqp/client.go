// Package amqp publishes sync requests to the ingestion workers and consumes
// the events they emit once receipts are stored.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
)

var ErrCircuitOpen = errors.New("amqp: circuit breaker is open")

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// Config names the broker topology.
type Config struct {
	URL          string
	ExchangeName string
	// QueueName receives sync requests.
	QueueName string
	// EventsQueueName receives ingestion events. Empty disables consumption.
	EventsQueueName string
}

type Client struct {
	cfg Config
	cb  *gobreaker.CircuitBreaker

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func NewClient(cfg Config) (*Client, error) {
	c := &Client{cfg: cfg, cb: newBreaker(maxFailures)}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func newBreaker(failures uint32) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "amqp",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.cfg); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()
	return nil
}

func setup(ch *amqp091.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(
		cfg.ExchangeName, // name
		"direct",         // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	queues := []string{cfg.QueueName}
	if cfg.EventsQueueName != "" {
		queues = append(queues, cfg.EventsQueueName)
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		// Direct exchange: the routing key is the queue name.
		if err := ch.QueueBind(q, q, cfg.ExchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return nil
}

// reconnect replaces a broken connection.
func (c *Client) reconnect() error {
	c.mu.Lock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.channel = nil
	c.conn = nil
	c.mu.Unlock()
	return c.connect()
}

func (c *Client) currentChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil || c.channel.IsClosed() {
		return nil, errors.New("channel closed")
	}
	return c.channel, nil
}

// TriggerSync publishes a sync request for account.
func (c *Client) TriggerSync(ctx context.Context, account string, lastSynced *time.Time) error {
	return c.PublishSyncRequest(ctx, NewSyncRequestMessage(account, lastSynced))
}

// PublishSyncRequest publishes msg as a persistent message. A connection error
// triggers one reconnect and retry.
func (c *Client) PublishSyncRequest(ctx context.Context, msg *SyncRequestMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = c.cb.Execute(func() (any, error) {
		err := c.publish(ctx, body)
		if err != nil && isConnectionError(err) {
			slog.WarnContext(ctx, "AMQP connection lost, reconnecting", "error", err)
			if rerr := c.reconnect(); rerr != nil {
				return nil, fmt.Errorf("reconnect: %w", rerr)
			}
			err = c.publish(ctx, body)
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("publish sync request: %w", ErrCircuitOpen)
	}
	if err != nil {
		return fmt.Errorf("publish sync request: %w", err)
	}

	slog.InfoContext(ctx, "Published sync request",
		"account", msg.Account,
		"exchange", c.cfg.ExchangeName,
		"queue", c.cfg.QueueName)
	return nil
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	ch, err := c.currentChannel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		c.cfg.ExchangeName, // exchange
		c.cfg.QueueName,    // routing key
		false,              // mandatory
		false,              // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// ConsumeIngestEvents delivers ingestion events to handler until ctx is done.
// A handler error requeues the delivery; an unparsable one is dropped. When the
// broker connection drops the client reconnects with exponential backoff.
func (c *Client) ConsumeIngestEvents(ctx context.Context, handler func(context.Context, *IngestEvent) error) error {
	if c.cfg.EventsQueueName == "" {
		return errors.New("no events queue configured")
	}

	attempt := 0
	for {
		err := c.consume(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "Event consumption interrupted, retrying",
			"error", err, "attempt", attempt, "backoff", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if rerr := c.reconnect(); rerr != nil {
			slog.ErrorContext(ctx, "Failed to reconnect to AMQP", "error", rerr)
			attempt++
			continue
		}
		attempt = 0
	}
}

func (c *Client) consume(ctx context.Context, handler func(context.Context, *IngestEvent) error) error {
	ch, err := c.currentChannel()
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		c.cfg.EventsQueueName, // queue
		"",                    // consumer
		false,                 // auto-ack
		false,                 // exclusive
		false,                 // no-local
		false,                 // no-wait
		nil,                   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming ingest events", "queue", c.cfg.EventsQueueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			handleDelivery(ctx, delivery, handler)
		}
	}
}

// acknowledger is the part of a delivery the consumer settles.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func handleDelivery(ctx context.Context, d amqp091.Delivery, handler func(context.Context, *IngestEvent) error) {
	settle(ctx, d.Body, &d, handler)
}

func settle(ctx context.Context, body []byte, ack acknowledger, handler func(context.Context, *IngestEvent) error) {
	ev, err := IngestEventFromJSON(body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal ingest event", "error", err)
		ack.Nack(false, false)
		return
	}

	if err := handler(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to handle ingest event", "account", ev.Account, "error", err)
		ack.Nack(false, true)
		return
	}

	ack.Ack(false)
	slog.DebugContext(ctx, "Processed ingest event", "account", ev.Account, "count", ev.Count)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
