package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMessagePayload_OmitsEmptyFields(t *testing.T) {
	t.Parallel()

	p := Message{RunID: "r1", Pipeline: "gut", Status: "failed", Error: "boom"}.payload()

	assert.Equal(t, map[string]any{
		"run_id":   "r1",
		"pipeline": "gut",
		"status":   "failed",
		"error":    "boom",
	}, p)
}

func TestRecorder_ReturnsConfiguredError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	sendErr := errors.New("smtp down")
	r := &Recorder{Err: sendErr}

	// --- Act ---
	err := r.Send(testContext(), Message{Status: "failed"})

	// --- Assert ---
	require.ErrorIs(t, err, sendErr)
	require.Len(t, r.Messages, 1)
}

func TestSocketIO_InvalidURL(t *testing.T) {
	t.Parallel()

	s := &SocketIO{URL: "://bad", Event: "pipeline", ConnectTimeout: time.Second}

	err := s.Send(testContext(), Message{Status: "failed"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse URL")
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	require.NoError(t, Discard{}.Send(testContext(), Message{Status: "complete"}))
}

func TestAwaitAck(t *testing.T) {
	t.Parallel()

	ackErr := errors.New("server rejected event")
	emitErr := errors.New(`"connect" is a reserved event name`)

	testCases := []struct {
		name        string
		emit        func(ack func([]any, error)) error
		expectedErr string
	}{
		{
			name: "acknowledged",
			emit: func(ack func([]any, error)) error {
				go ack([]any{"ok"}, nil)
				return nil
			},
		},
		{
			name: "acknowledged with error",
			emit: func(ack func([]any, error)) error {
				ack(nil, ackErr)
				return nil
			},
			expectedErr: ackErr.Error(),
		},
		{
			name:        "emit refused",
			emit:        func(func([]any, error)) error { return emitErr },
			expectedErr: emitErr.Error(),
		},
		{
			name:        "never acknowledged",
			emit:        func(func([]any, error)) error { return nil },
			expectedErr: "no acknowledgement within 20ms",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Act ---
			err := awaitAck(testContext(), 20*time.Millisecond, tc.emit)

			// --- Assert ---
			if tc.expectedErr == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}

func TestAwaitAck_StopsWithContext(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, cancel := context.WithCancel(testContext())
	cancel()

	// --- Act ---
	err := awaitAck(ctx, time.Minute, func(func([]any, error)) error { return nil })

	// --- Assert ---
	require.ErrorIs(t, err, context.Canceled)
}
