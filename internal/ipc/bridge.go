package ipc

import (
	"go.uber.org/zap"

	"github.com/agentbridge/agentbridge/internal/common/logger"
)

// ExtensionMessageType tags envelopes carrying agent-side UI payloads that
// are pushed to front-ends via SendExtensionMessage.
const ExtensionMessageType = "extensionMessage"

// ExtensionMessage is the payload shape SendExtensionMessage wraps around
// agent-side state for delivery to the front-end channel.
type ExtensionMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Bridge owns the two channels of the duplex pipe between the front-end
// (TUI) and the agent host (extension). It does not forward traffic on its
// own; it re-raises each side's inbound envelopes as side-scoped signals so
// that one consumer can observe both directions, and offers typed send
// helpers for the common flows.
type Bridge struct {
	tui       *Channel
	extension *Channel
	logger    *logger.Logger
}

// NewBridge creates the two channels and wires their inbound signals.
func NewBridge(log *logger.Logger, opts ...Option) *Bridge {
	return &Bridge{
		tui:       NewChannel("tui", log, opts...),
		extension: NewChannel("extension", log, opts...),
		logger:    log.WithFields(zap.String("component", "ipc-bridge")),
	}
}

// TUI returns the channel facing the front-end.
func (b *Bridge) TUI() *Channel {
	return b.tui
}

// Extension returns the channel facing the agent host.
func (b *Bridge) Extension() *Channel {
	return b.extension
}

// OnTUIRequest registers a listener for requests arriving on the TUI-facing
// channel.
func (b *Bridge) OnTUIRequest(h Handler) {
	b.tui.OnRequest(h)
}

// OnTUIEvent registers a listener for events arriving on the TUI-facing
// channel.
func (b *Bridge) OnTUIEvent(h Handler) {
	b.tui.OnEvent(h)
}

// OnExtensionRequest registers a listener for requests arriving on the
// extension-facing channel.
func (b *Bridge) OnExtensionRequest(h Handler) {
	b.extension.OnRequest(h)
}

// OnExtensionEvent registers a listener for events arriving on the
// extension-facing channel.
func (b *Bridge) OnExtensionEvent(h Handler) {
	b.extension.OnEvent(h)
}

// RespondTUI answers a request received on the TUI-facing channel.
func (b *Bridge) RespondTUI(requestID string, data any) {
	b.tui.Respond(requestID, data)
}

// RespondExtension answers a request received on the extension-facing
// channel.
func (b *Bridge) RespondExtension(requestID string, data any) {
	b.extension.Respond(requestID, data)
}

// SendExtensionMessage pushes an agent-side payload to the front-end as an
// event on the TUI-facing channel, wrapped in the extensionMessage envelope.
func (b *Bridge) SendExtensionMessage(payload any) {
	b.tui.Event(ExtensionMessage{Type: ExtensionMessageType, Payload: payload})
}

// Dispose tears down both channels. Idempotent.
func (b *Bridge) Dispose() {
	b.tui.Dispose()
	b.extension.Dispose()
	b.logger.Debug("bridge disposed")
}

// Loopback connects two channels in-process: every envelope one side emits
// is handled by the other. Used when front-end and agent host share the
// process, and by tests that need full round trips without a transport.
func Loopback(a, b *Channel) {
	a.OnMessage(func(env Envelope) {
		b.HandleMessage(env)
	})
	b.OnMessage(func(env Envelope) {
		a.HandleMessage(env)
	})
}
