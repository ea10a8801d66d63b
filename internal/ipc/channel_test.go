package ipc

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbridge/agentbridge/internal/common/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console"})
	require.NoError(t, err)
	return log
}

func TestChannelRequestResponse(t *testing.T) {
	log := testLogger(t)
	client := NewChannel("tui", log)
	server := NewChannel("extension", log)
	Loopback(client, server)

	server.OnRequest(func(env Envelope) {
		assert.Equal(t, EnvelopeRequest, env.Type)
		assert.Equal(t, "ping", env.Data)
		server.Respond(env.ID, "pong")
	})

	result, err := client.Request(context.Background(), "ping", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pong", result)
	assert.Equal(t, 0, client.PendingCount())
}

func TestChannelRequestTimeout(t *testing.T) {
	log := testLogger(t)
	clock := clockwork.NewFakeClock()
	ch := NewChannel("tui", log, WithClock(clock))

	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := ch.Request(context.Background(), "ping", 100*time.Millisecond)
		done <- outcome{data, err}
	}()

	clock.BlockUntil(1)
	clock.Advance(100 * time.Millisecond)

	res := <-done
	require.Error(t, res.err)
	assert.Nil(t, res.data)
	assert.True(t, IsTimeout(res.err))
	assert.Contains(t, res.err.Error(), "IPC request timeout after 100ms")
	assert.Equal(t, 0, ch.PendingCount())
}

func TestChannelDefaultTimeout(t *testing.T) {
	log := testLogger(t)
	clock := clockwork.NewFakeClock()
	ch := NewChannel("tui", log, WithClock(clock), WithDefaultTimeout(250*time.Millisecond))

	errCh := make(chan error, 1)
	go func() {
		// A non-positive timeout falls back to the configured default.
		_, err := ch.Request(context.Background(), "ping", 0)
		errCh <- err
	}()

	clock.BlockUntil(1)
	clock.Advance(250 * time.Millisecond)

	err := <-errCh
	require.True(t, IsTimeout(err))
	assert.Contains(t, err.Error(), "IPC request timeout after 250ms")
}

func TestChannelLateResponseDropped(t *testing.T) {
	log := testLogger(t)
	clock := clockwork.NewFakeClock()
	ch := NewChannel("tui", log, WithClock(clock))

	var requestID string
	ch.OnMessage(func(env Envelope) {
		requestID = env.ID
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := ch.Request(context.Background(), "ping", 50*time.Millisecond)
		errCh <- err
	}()

	clock.BlockUntil(1)
	clock.Advance(50 * time.Millisecond)
	require.True(t, IsTimeout(<-errCh))

	// A response arriving after the timeout must be absorbed without effect.
	ch.HandleMessage(Envelope{ID: requestID, Type: EnvelopeResponse, Data: "too late"})
	assert.Equal(t, 0, ch.PendingCount())
}

func TestChannelRequestContextCancel(t *testing.T) {
	log := testLogger(t)
	ch := NewChannel("tui", log)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := ch.Request(ctx, "ping", time.Minute)
		errCh <- err
	}()

	cancel()
	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, ch.PendingCount())
}

func TestChannelEventDualEmit(t *testing.T) {
	log := testLogger(t)
	ch := NewChannel("tui", log)

	var messages, events []Envelope
	ch.OnMessage(func(env Envelope) { messages = append(messages, env) })
	ch.OnEvent(func(env Envelope) { events = append(events, env) })

	ch.Event("hello")

	require.Len(t, messages, 1)
	require.Len(t, events, 1)
	assert.Equal(t, EnvelopeEvent, messages[0].Type)
	assert.Equal(t, "hello", messages[0].Data)
	assert.Equal(t, messages[0].ID, events[0].ID)
}

func TestChannelInboundEventDispatch(t *testing.T) {
	log := testLogger(t)
	ch := NewChannel("extension", log)

	var got []Envelope
	ch.OnEvent(func(env Envelope) { got = append(got, env) })
	ch.OnMessage(func(env Envelope) {
		t.Fatal("inbound envelopes must not re-emit on the outbound signal")
	})

	ch.HandleMessage(Envelope{ID: "ev-1", Type: EnvelopeEvent, Data: "state"})

	require.Len(t, got, 1)
	assert.Equal(t, "state", got[0].Data)
}

func TestChannelDisposeRejectsPending(t *testing.T) {
	log := testLogger(t)
	ch := NewChannel("tui", log)
	ch.OnMessage(func(env Envelope) {})
	ch.OnRequest(func(env Envelope) {})
	ch.OnEvent(func(env Envelope) {})

	const inflight = 3
	errCh := make(chan error, inflight)
	for i := 0; i < inflight; i++ {
		go func() {
			_, err := ch.Request(context.Background(), "ping", time.Minute)
			errCh <- err
		}()
	}

	require.Eventually(t, func() bool {
		return ch.PendingCount() == inflight
	}, time.Second, time.Millisecond)

	ch.Dispose()

	for i := 0; i < inflight; i++ {
		require.ErrorIs(t, <-errCh, ErrChannelDisposed)
	}
	assert.Equal(t, 0, ch.ListenerCount("message"))
	assert.Equal(t, 0, ch.ListenerCount("request"))
	assert.Equal(t, 0, ch.ListenerCount("event"))

	// Idempotent, and all verbs degrade to no-ops afterwards.
	ch.Dispose()
	_, err := ch.Request(context.Background(), "ping", time.Second)
	require.ErrorIs(t, err, ErrChannelDisposed)
	ch.Event("ignored")
	ch.Respond("req-1", "ignored")
}
