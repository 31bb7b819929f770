package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"launchfeed/internal/domain"
	"launchfeed/internal/observability"
)

// SSE controller connection states.
const (
	StateIdle       = "idle"
	StateConnecting = "connecting"
	StateStreaming  = "streaming"
	StateError      = "error"
	StateClosed     = "closed"
)

// SSEOptions configures an SSEController. Zero values take the defaults.
type SSEOptions struct {
	// Endpoint is the stream URL. Required for live runs.
	Endpoint string

	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff.
	MaxReconnectDelay time.Duration
	// MaxRetries bounds consecutive failed connection attempts before the
	// controller gives up. Zero means the default; negative means retry
	// forever.
	MaxRetries int

	// MaxEventBytes caps the reassembly buffer for one event. An event that
	// grows past it is discarded and reassembly restarts.
	MaxEventBytes int
	// EventTimeout caps how long a partial event may keep accumulating.
	EventTimeout time.Duration

	// RawWriter, when set, receives every complete event payload verbatim
	// before parsing. Used by the capture path of the replay tool.
	RawWriter io.Writer

	HTTPClient *http.Client
	Logger     *log.Logger
}

func (o *SSEOptions) withDefaults() SSEOptions {
	opts := *o
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 1 * time.Second
	}
	if opts.MaxReconnectDelay <= 0 {
		opts.MaxReconnectDelay = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}
	if opts.MaxEventBytes <= 0 {
		opts.MaxEventBytes = 50 * 1024 * 1024
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 60 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return opts
}

// SSEController consumes the upstream token event stream: it reassembles
// chunked data lines into complete payloads, repairs the malformed JSON the
// feed is known to emit, and hands decoded envelopes to the runner.
type SSEController struct {
	opts   SSEOptions
	runner *Runner

	stateMu sync.RWMutex
	state   string
}

// NewSSEController creates a stream controller bound to a runner.
func NewSSEController(opts SSEOptions, runner *Runner) *SSEController {
	return &SSEController{
		opts:   opts.withDefaults(),
		runner: runner,
		state:  StateIdle,
	}
}

// State returns the current connection state.
func (c *SSEController) State() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *SSEController) setState(s string) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
	observability.RecordSSEState(s)
}

// Run connects to the stream and processes events until the context is
// cancelled or the retry budget is exhausted. Dropped connections reconnect
// with capped exponential backoff; a connection that delivered at least one
// event resets the backoff and the retry count.
func (c *SSEController) Run(ctx context.Context) error {
	if c.opts.Endpoint == "" {
		return errors.New("ingest: sse endpoint not configured")
	}

	delay := c.opts.ReconnectDelay
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			c.setState(StateClosed)
			return err
		}

		c.setState(StateConnecting)
		delivered, err := c.streamOnce(ctx)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.setState(StateClosed)
			return ctx.Err()
		}

		c.setState(StateError)
		observability.RecordSSEReconnect()

		if delivered > 0 {
			delay = c.opts.ReconnectDelay
			failures = 0
		}
		failures++
		if c.opts.MaxRetries > 0 && failures > c.opts.MaxRetries {
			c.setState(StateClosed)
			return fmt.Errorf("sse stream failed after %d attempts: %w", failures-1, err)
		}

		c.opts.Logger.Printf("[sse] stream error (attempt %d): %v, reconnecting in %v", failures, err, delay)
		select {
		case <-ctx.Done():
			c.setState(StateClosed)
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.opts.MaxReconnectDelay {
			delay = c.opts.MaxReconnectDelay
		}
	}
}

// streamOnce opens one connection and processes it to exhaustion. It
// returns the number of events delivered to the runner.
func (c *SSEController) streamOnce(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.Endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("connect stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("stream endpoint returned %s", resp.Status)
	}

	c.setState(StateStreaming)

	// An upstream that goes silent mid-event never unblocks the read loop on
	// its own; close the body when no bytes arrive for a full event timeout.
	watched := newStallReader(resp.Body, c.opts.EventTimeout)
	defer watched.stop()

	delivered, err := c.ProcessStream(ctx, watched)
	if err == nil {
		err = errors.New("stream ended")
	}
	return delivered, err
}

// ProcessStream reads SSE-framed events from r until EOF or cancellation.
// It is the shared path for the live connection and file replay. The
// returned count is the number of events delivered to the runner.
func (c *SSEController) ProcessStream(ctx context.Context, r io.Reader) (int, error) {
	reader := bufio.NewReaderSize(r, 64*1024)

	var buf strings.Builder
	var started time.Time
	delivered := 0
	discarding := false

	reset := func() {
		buf.Reset()
		started = time.Time{}
	}

	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		line, err := readLine(reader)
		if err != nil {
			if err == io.EOF {
				if buf.Len() > 0 {
					if c.dispatch(ctx, buf.String()) {
						delivered++
					}
				}
				return delivered, nil
			}
			return delivered, err
		}

		switch {
		case line == "":
			// Blank line terminates the event, and ends the skip window after
			// a discard.
			if discarding {
				discarding = false
			} else if buf.Len() > 0 {
				if c.dispatch(ctx, buf.String()) {
					delivered++
				}
				reset()
			}

		case strings.HasPrefix(line, "data:"):
			if discarding {
				// Remaining fragments of a discarded event must not seed a
				// fresh buffer.
				continue
			}

			chunk := strings.TrimPrefix(line, "data:")
			chunk = strings.TrimPrefix(chunk, " ")

			if started.IsZero() {
				started = time.Now()
			}
			if !started.IsZero() && time.Since(started) > c.opts.EventTimeout {
				c.opts.Logger.Printf("[sse] event stalled past %v, discarding %d buffered bytes", c.opts.EventTimeout, buf.Len())
				observability.RecordSSEDrop("stalled")
				reset()
				discarding = true
				continue
			}
			if buf.Len()+len(chunk) > c.opts.MaxEventBytes {
				c.opts.Logger.Printf("[sse] event exceeds %d bytes, discarding", c.opts.MaxEventBytes)
				observability.RecordSSEDrop("oversized")
				reset()
				discarding = true
				continue
			}
			buf.WriteString(chunk)

		default:
			// Comment lines and other SSE fields (event:, id:, retry:) are
			// not used by this feed.
		}
	}
}

// dispatch parses one reassembled payload and applies it through the
// runner. It reports whether the event reached the runner. Payloads that
// fail strict parsing go through one repair pass; still-broken payloads
// are dropped.
func (c *SSEController) dispatch(ctx context.Context, payload string) bool {
	if c.opts.RawWriter != nil {
		fmt.Fprintln(c.opts.RawWriter, payload)
	}

	repaired, err := RepairJSON(payload)
	if err != nil {
		c.opts.Logger.Printf("[sse] dropping payload (%d bytes): %v", len(payload), err)
		observability.RecordSSEDrop("unparseable")
		return false
	}
	if repaired != payload {
		observability.RecordSSERepair()
	}

	var envelope domain.StreamEnvelope
	if err := json.Unmarshal([]byte(repaired), &envelope); err != nil {
		c.opts.Logger.Printf("[sse] dropping payload, envelope decode: %v", err)
		observability.RecordSSEDrop("envelope")
		return false
	}

	switch {
	case len(envelope.Data.Tokens) > 0:
		if err := c.runner.ApplyBulk(ctx, envelope.Data.Tokens, envelope.Data.TotalCount); err != nil {
			c.opts.Logger.Printf("[sse] bulk event rejected: %v", err)
			observability.RecordSSEDrop("incomplete")
			return false
		}
		observability.RecordSSEEvent("bulk")

	case envelope.Data.Token != nil:
		if err := c.runner.ApplySingle(ctx, envelope.Data.Token); err != nil {
			c.opts.Logger.Printf("[sse] single event rejected: %v", err)
			observability.RecordSSEDrop("invalid")
			return false
		}
		observability.RecordSSEEvent("single")

	default:
		// Heartbeats and empty envelopes carry no tokens.
		observability.RecordSSEEvent("empty")
	}
	return true
}

// stallReader closes the wrapped stream when no bytes arrive for the
// configured duration, turning a silently stalled upstream into a read
// error the reconnect loop handles.
type stallReader struct {
	rc    io.ReadCloser
	d     time.Duration
	timer *time.Timer
}

func newStallReader(rc io.ReadCloser, d time.Duration) *stallReader {
	s := &stallReader{rc: rc, d: d}
	s.timer = time.AfterFunc(d, func() { rc.Close() })
	return s
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	if n > 0 {
		s.timer.Reset(s.d)
	}
	return n, err
}

func (s *stallReader) stop() {
	s.timer.Stop()
}

// readLine reads one line without a size cap beyond the event budget,
// tolerating lines longer than the reader buffer.
func readLine(r *bufio.Reader) (string, error) {
	var full []byte
	for {
		part, isPrefix, err := r.ReadLine()
		if err != nil {
			return "", err
		}
		if full == nil && !isPrefix {
			return string(part), nil
		}
		full = append(full, part...)
		if !isPrefix {
			return string(full), nil
		}
	}
}
