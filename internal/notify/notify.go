// Package notify delivers pipeline notifications to an external dashboard.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Message is the payload describing a pipeline outcome.
type Message struct {
	RunID    string `json:"run_id"`
	Pipeline string `json:"pipeline"`
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Error    string `json:"error,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

func (m Message) payload() map[string]any {
	p := map[string]any{
		"run_id":   m.RunID,
		"pipeline": m.Pipeline,
		"status":   m.Status,
	}
	if m.Stage != "" {
		p["stage"] = m.Stage
	}
	if m.Error != "" {
		p["error"] = m.Error
	}
	if m.Summary != "" {
		p["summary"] = m.Summary
	}
	return p
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Discard drops every message. It is used when no notify block is configured.
type Discard struct{}

// Send implements Sender.
func (Discard) Send(ctx context.Context, msg Message) error {
	ctxlog.FromContext(ctx).Debug("Notification dropped, no sink configured.", "status", msg.Status)
	return nil
}

// DefaultAckTimeout bounds the wait for the dashboard's acknowledgement.
const DefaultAckTimeout = 5 * time.Second

// SocketIO emits messages as a socket.io event. The receiving server must
// acknowledge the event.
type SocketIO struct {
	URL                string
	Namespace          string
	Event              string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
	AckTimeout         time.Duration
}

// Send implements Sender. A fresh connection is opened for every message and
// closed once the server acknowledged the event.
func (s *SocketIO) Send(ctx context.Context, msg Message) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	timeout := s.AckTimeout
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	ctxlog.FromContext(ctx).Debug("Emitting notification.", "event", s.Event, "status", msg.Status)
	err = awaitAck(ctx, timeout, func(ack func([]any, error)) error {
		return client.Timeout(timeout).Emit(s.Event, msg.payload(), ack)
	})
	if err != nil {
		return fmt.Errorf("notification %q was not delivered: %w", s.Event, err)
	}
	return nil
}

// awaitAck emits through emit and blocks until the acknowledgement arrives,
// the timeout passes or ctx ends.
func awaitAck(ctx context.Context, timeout time.Duration, emit func(ack func([]any, error)) error) error {
	acked := make(chan error, 1)
	ack := func(_ []any, err error) {
		select {
		case acked <- err:
		default:
		}
	}
	if err := emit(ack); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-acked:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no acknowledgement within %s", timeout)
	}
}

func (s *SocketIO) connect(ctx context.Context) (*socket.Socket, error) {
	logger := ctxlog.FromContext(ctx).With("notify", "socketio", "url", s.URL)

	parsedURL, err := url.Parse(s.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	timeout := s.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if s.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(s.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Connected.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return io, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

// Recorder keeps every message in memory. Tests use it as a sink.
type Recorder struct {
	Messages []Message
	Err      error
}

// Send implements Sender.
func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.Messages = append(r.Messages, msg)
	return r.Err
}
