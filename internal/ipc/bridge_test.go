package ipc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeRoundTrip(t *testing.T) {
	log := testLogger(t)
	bridge := NewBridge(log)
	defer bridge.Dispose()

	// Front-end peer talking to the bridge's TUI-facing channel.
	peer := NewChannel("tui-peer", log)
	Loopback(peer, bridge.TUI())

	bridge.OnTUIRequest(func(env Envelope) {
		bridge.RespondTUI(env.ID, map[string]any{"ok": true})
	})

	result, err := peer.Request(context.Background(), map[string]any{"action": "task.new"}, time.Second)
	require.NoError(t, err)
	data, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["ok"])
}

func TestBridgeSendExtensionMessage(t *testing.T) {
	log := testLogger(t)
	bridge := NewBridge(log)
	defer bridge.Dispose()

	peer := NewChannel("tui-peer", log)
	Loopback(peer, bridge.TUI())

	var got []Envelope
	peer.OnEvent(func(env Envelope) { got = append(got, env) })

	bridge.SendExtensionMessage(map[string]any{"state": "streaming"})

	require.Len(t, got, 1)
	msg, ok := got[0].Data.(ExtensionMessage)
	require.True(t, ok)
	assert.Equal(t, ExtensionMessageType, msg.Type)
	assert.Equal(t, map[string]any{"state": "streaming"}, msg.Payload)
}

func TestBridgeSidesAreIndependent(t *testing.T) {
	log := testLogger(t)
	bridge := NewBridge(log)
	defer bridge.Dispose()

	var tuiEvents, extEvents int
	bridge.OnTUIEvent(func(env Envelope) { tuiEvents++ })
	bridge.OnExtensionEvent(func(env Envelope) { extEvents++ })

	bridge.TUI().HandleMessage(Envelope{ID: "a", Type: EnvelopeEvent})
	bridge.Extension().HandleMessage(Envelope{ID: "b", Type: EnvelopeEvent})
	bridge.Extension().HandleMessage(Envelope{ID: "c", Type: EnvelopeEvent})

	assert.Equal(t, 1, tuiEvents)
	assert.Equal(t, 2, extEvents)
}

func TestBridgeDisposeIsIdempotent(t *testing.T) {
	log := testLogger(t)
	bridge := NewBridge(log)
	bridge.OnTUIRequest(func(env Envelope) {})
	bridge.OnExtensionEvent(func(env Envelope) {})

	bridge.Dispose()
	bridge.Dispose()

	assert.Equal(t, 0, bridge.TUI().ListenerCount("request"))
	assert.Equal(t, 0, bridge.Extension().ListenerCount("event"))
}
