package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"launchfeed/internal/domain"
	"launchfeed/internal/observability"
)

// SubscriptionOptions configures a SubscriptionController. Zero values
// take the defaults.
type SubscriptionOptions struct {
	// Endpoint is the websocket URL of the realtime event feed.
	Endpoint string

	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration

	Logger *log.Logger
}

func (o *SubscriptionOptions) withDefaults() SubscriptionOptions {
	opts := *o
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 1 * time.Second
	}
	if opts.MaxReconnectDelay <= 0 {
		opts.MaxReconnectDelay = 30 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return opts
}

// SubscriptionController consumes discrete INSERT, UPDATE and DELETE events
// from the realtime websocket feed and applies them through the runner.
// Unknown event types are logged and skipped.
type SubscriptionController struct {
	opts   SubscriptionOptions
	runner *Runner

	conn   *websocket.Conn
	connMu sync.Mutex
}

// NewSubscriptionController creates a subscription controller bound to a
// runner.
func NewSubscriptionController(opts SubscriptionOptions, runner *Runner) *SubscriptionController {
	return &SubscriptionController{
		opts:   opts.withDefaults(),
		runner: runner,
	}
}

// Run connects to the realtime feed and applies events until the context
// is cancelled. Dropped connections reconnect with capped exponential
// backoff.
func (c *SubscriptionController) Run(ctx context.Context) error {
	if c.opts.Endpoint == "" {
		return errors.New("ingest: subscription endpoint not configured")
	}

	delay := c.opts.ReconnectDelay
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.readOnce(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return ctx.Err()
		}

		observability.RecordSubscriptionReconnect()
		c.opts.Logger.Printf("[subscription] connection lost: %v, reconnecting in %v", err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.opts.MaxReconnectDelay {
			delay = c.opts.MaxReconnectDelay
		}
	}
}

// readOnce dials the endpoint and processes messages until the connection
// drops or the context is cancelled.
func (c *SubscriptionController) readOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.opts.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		conn.Close()
	}()

	// Close the connection when the context ends so the read loop unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-stop:
		}
	}()

	go c.pingLoop(conn, stop)

	for {
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		c.handleMessage(ctx, message)
	}
}

// handleMessage decodes and applies one subscription event.
func (c *SubscriptionController) handleMessage(ctx context.Context, message []byte) {
	var event domain.SubscriptionEvent
	if err := json.Unmarshal(message, &event); err != nil {
		c.opts.Logger.Printf("[subscription] undecodable event (%d bytes): %v", len(message), err)
		return
	}

	var err error
	switch event.EventType {
	case domain.EventInsert:
		err = c.runner.ApplyInsert(ctx, event.New)
	case domain.EventUpdate:
		err = c.runner.ApplyUpdate(ctx, event.New)
	case domain.EventDelete:
		err = c.runner.ApplyDelete(ctx, event.Old)
	default:
		c.opts.Logger.Printf("[subscription] unknown event type %q", event.EventType)
		return
	}

	observability.RecordSubscriptionEvent(event.EventType)
	if err != nil {
		c.opts.Logger.Printf("[subscription] apply %s: %v", event.EventType, err)
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *SubscriptionController) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
