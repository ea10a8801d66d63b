package ipc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/agentbridge/agentbridge/internal/common/logger"
)

// Handler consumes one envelope. Handlers run synchronously on the calling
// goroutine; per-channel arrival order is preserved by construction.
type Handler func(env Envelope)

type pendingRequest struct {
	ch chan pendingResult
}

type pendingResult struct {
	data any
	err  error
}

// Channel is one side of a duplex message pipe. Outbound envelopes are
// delivered to "message" listeners (the transport hookup plus any generic
// loggers); inbound envelopes arrive via HandleMessage and are dispatched by
// type: requests and events raise their typed signals, responses resolve the
// matching pending request.
type Channel struct {
	name           string
	clock          clockwork.Clock
	logger         *logger.Logger
	defaultTimeout time.Duration

	mu              sync.Mutex
	disposed        bool
	pending         map[string]*pendingRequest
	messageHandlers []Handler
	requestHandlers []Handler
	eventHandlers   []Handler
}

// Option configures a Channel.
type Option func(*Channel)

// WithClock injects a clock for deterministic timeout testing.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Channel) {
		c.clock = clock
	}
}

// WithDefaultTimeout sets the timeout Request applies when the caller passes
// a non-positive one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.defaultTimeout = d
	}
}

// defaultRequestTimeout applies when neither the caller nor the channel
// options specify one.
const defaultRequestTimeout = 30 * time.Second

// NewChannel creates a channel named for the side it faces ("tui",
// "extension").
func NewChannel(name string, log *logger.Logger, opts ...Option) *Channel {
	c := &Channel{
		name:    name,
		clock:   clockwork.NewRealClock(),
		logger:  log.WithFields(zap.String("component", "ipc-channel"), zap.String("channel", name)),
		pending: make(map[string]*pendingRequest),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the side name the channel was created with.
func (c *Channel) Name() string {
	return c.name
}

// OnMessage registers a listener for outbound envelopes. The transport
// delivering frames to the remote side subscribes here.
func (c *Channel) OnMessage(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageHandlers = append(c.messageHandlers, h)
}

// OnRequest registers a listener for inbound request envelopes. The listener
// is expected to answer via Respond with the envelope's ID.
func (c *Channel) OnRequest(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestHandlers = append(c.requestHandlers, h)
}

// OnEvent registers a listener for event envelopes, both inbound and locally
// emitted ones.
func (c *Channel) OnEvent(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventHandlers = append(c.eventHandlers, h)
}

// ListenerCount returns the number of registered listeners for a signal
// ("message", "request", "event").
func (c *Channel) ListenerCount(signal string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch signal {
	case "message":
		return len(c.messageHandlers)
	case "request":
		return len(c.requestHandlers)
	case "event":
		return len(c.eventHandlers)
	default:
		return 0
	}
}

// Request emits a request envelope and waits for the correlated response.
// It is the only suspending operation on the channel. Timeout is the single
// expected failure mode; retries belong to the caller.
func (c *Channel) Request(ctx context.Context, payload any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = c.defaultTimeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, ErrChannelDisposed
	}

	id := uuid.New().String()
	p := &pendingRequest{ch: make(chan pendingResult, 1)}
	c.pending[id] = p
	handlers := append([]Handler(nil), c.messageHandlers...)
	c.mu.Unlock()

	env := Envelope{ID: id, Type: EnvelopeRequest, Data: payload, Ts: c.clock.Now().UnixMilli()}
	for _, h := range handlers {
		h(env)
	}

	timer := c.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	case res := <-p.ch:
		return res.data, res.err
	case <-timer.Chan():
		c.removePending(id)
		c.logger.Warn("request timed out",
			zap.String("request_id", id),
			zap.Duration("timeout", timeout))
		return nil, &TimeoutError{Timeout: timeout}
	}
}

// Event emits a fire-and-forget event envelope. It is raised twice: once on
// the generic message signal (so transports and loggers see it) and once on
// the typed event signal (so same-process subscribers see it without a
// transport round trip).
func (c *Channel) Event(payload any) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	messageHandlers := append([]Handler(nil), c.messageHandlers...)
	eventHandlers := append([]Handler(nil), c.eventHandlers...)
	c.mu.Unlock()

	env := Envelope{ID: uuid.New().String(), Type: EnvelopeEvent, Data: payload, Ts: c.clock.Now().UnixMilli()}
	for _, h := range messageHandlers {
		h(env)
	}
	for _, h := range eventHandlers {
		h(env)
	}
}

// Respond emits a response envelope for a previously received request.
func (c *Channel) Respond(requestID string, data any) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	handlers := append([]Handler(nil), c.messageHandlers...)
	c.mu.Unlock()

	env := Envelope{ID: requestID, Type: EnvelopeResponse, Data: data, Ts: c.clock.Now().UnixMilli()}
	for _, h := range handlers {
		h(env)
	}
}

// HandleMessage ingests one inbound envelope from the transport. Envelopes
// must be delivered in arrival order; dispatch is synchronous.
func (c *Channel) HandleMessage(env Envelope) {
	switch env.Type {
	case EnvelopeRequest:
		c.mu.Lock()
		handlers := append([]Handler(nil), c.requestHandlers...)
		c.mu.Unlock()
		for _, h := range handlers {
			h(env)
		}

	case EnvelopeResponse:
		c.mu.Lock()
		p, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.mu.Unlock()
		if !ok {
			// Expected race: response arrived after its request timed out.
			c.logger.Debug("dropping response with no pending request",
				zap.String("request_id", env.ID))
			return
		}
		p.ch <- pendingResult{data: env.Data}

	case EnvelopeEvent:
		c.mu.Lock()
		handlers := append([]Handler(nil), c.eventHandlers...)
		c.mu.Unlock()
		for _, h := range handlers {
			h(env)
		}

	default:
		c.logger.Warn("unknown envelope type",
			zap.String("envelope_type", string(env.Type)),
			zap.String("envelope_id", env.ID))
	}
}

// Dispose rejects every pending request with ErrChannelDisposed and clears
// all listeners. It is idempotent.
func (c *Channel) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.messageHandlers = nil
	c.requestHandlers = nil
	c.eventHandlers = nil
	c.mu.Unlock()

	for id, p := range pending {
		p.ch <- pendingResult{err: ErrChannelDisposed}
		c.logger.Debug("rejected pending request on dispose", zap.String("request_id", id))
	}
	c.logger.Debug("channel disposed")
}

// PendingCount returns the number of in-flight requests.
func (c *Channel) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Channel) removePending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
