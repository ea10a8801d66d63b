package agentstate

import (
	"sync"

	"go.uber.org/zap"

	"github.com/agentbridge/agentbridge/internal/common/logger"
	"github.com/agentbridge/agentbridge/pkg/taskstream"
)

// StateChange describes one state transition and the message that caused it.
type StateChange struct {
	Previous State
	New      State
	Message  taskstream.TaskMessage
}

// PendingAsk is the payload of a waiting-for-input notification.
type PendingAsk struct {
	State   State
	Message taskstream.TaskMessage
}

// AgentState is the snapshot returned by GetAgentState.
type AgentState struct {
	State             State `json:"state"`
	IsRunning         bool  `json:"is_running"`
	IsWaitingForInput bool  `json:"is_waiting_for_input"`
}

// Client ingests the task message stream, keeps the ordered log, and emits
// change notifications. The log is mutated only by HandleMessage and Reset;
// consumers get snapshots.
//
// Notification order per ingested message: message or messageUpdated first,
// then stateChange, then waitingForInput or taskCompleted. Renderers must
// see content before being told what the content implies.
type Client struct {
	logger *logger.Logger

	mu    sync.Mutex
	log   []taskstream.TaskMessage
	index map[int64]int
	state State

	messageHandlers    []func(taskstream.TaskMessage)
	updatedHandlers    []func(taskstream.TaskMessage)
	stateHandlers      []func(StateChange)
	waitingHandlers    []func(PendingAsk)
	completionHandlers []func(taskstream.TaskMessage)
}

// NewClient creates a client in the initial running state.
func NewClient(log *logger.Logger) *Client {
	return &Client{
		logger: log.WithFields(zap.String("component", "agent-state")),
		index:  make(map[int64]int),
		state:  StateRunning,
	}
}

// OnMessage registers a listener for newly appended messages.
func (c *Client) OnMessage(h func(taskstream.TaskMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageHandlers = append(c.messageHandlers, h)
}

// OnMessageUpdated registers a listener for in-place streaming updates.
func (c *Client) OnMessageUpdated(h func(taskstream.TaskMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updatedHandlers = append(c.updatedHandlers, h)
}

// OnStateChange registers a listener for state transitions.
func (c *Client) OnStateChange(h func(StateChange)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandlers = append(c.stateHandlers, h)
}

// OnWaitingForInput registers a listener for blocking asks that need a
// user decision.
func (c *Client) OnWaitingForInput(h func(PendingAsk)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitingHandlers = append(c.waitingHandlers, h)
}

// OnTaskCompleted registers a listener for terminal completion asks.
func (c *Client) OnTaskCompleted(h func(taskstream.TaskMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completionHandlers = append(c.completionHandlers, h)
}

// HandleMessage ingests one message. A message whose ts is already in the
// log replaces the stored version in place, preserving log order; anything
// else is appended. Ingestion never fails: malformed messages are logged and
// skipped, and an ask outside the taxonomy keeps the last known state.
func (c *Client) HandleMessage(msg taskstream.TaskMessage) {
	if msg.Ts <= 0 || (msg.Type != taskstream.MessageTypeAsk && msg.Type != taskstream.MessageTypeSay) {
		c.logger.Warn("ignoring malformed task message",
			zap.Int64("ts", msg.Ts),
			zap.String("type", string(msg.Type)))
		return
	}

	c.mu.Lock()

	updated := false
	supersededPartial := false
	if idx, ok := c.index[msg.Ts]; ok {
		updated = true
		supersededPartial = c.log[idx].Partial
		c.log[idx] = msg
	} else {
		c.log = append(c.log, msg)
		c.index[msg.Ts] = len(c.log) - 1
	}

	previous := c.state
	next, err := DetectState(c.log)
	if err != nil {
		// Taxonomy gap. Keep the last known state rather than guessing
		// whether the unknown ask blocks.
		c.logger.Error("ask kind outside taxonomy, retaining state",
			zap.Error(err),
			zap.Int64("ts", msg.Ts),
			zap.String("state", string(previous)))
		next = previous
	}
	changed := next != previous
	c.state = next

	// A blocking ask is dispatched when it first becomes final, which is
	// either a fresh non-partial arrival or the final update superseding
	// its partial chunks. Re-ingesting an already final ask stays quiet.
	newlyFinal := msg.IsFinal() && (!updated || supersededPartial)

	messageHandlers := c.messageHandlers
	updatedHandlers := c.updatedHandlers
	stateHandlers := c.stateHandlers
	waitingHandlers := c.waitingHandlers
	completionHandlers := c.completionHandlers
	c.mu.Unlock()

	if updated {
		for _, h := range updatedHandlers {
			h(msg)
		}
	} else {
		for _, h := range messageHandlers {
			h(msg)
		}
	}

	if changed {
		for _, h := range stateHandlers {
			h(StateChange{Previous: previous, New: next, Message: msg})
		}
	}

	if newlyFinal && msg.Type == taskstream.MessageTypeAsk && next.IsWaiting() {
		if msg.Ask == taskstream.AskCompletionResult || msg.Ask == taskstream.AskResumeCompletedTask {
			for _, h := range completionHandlers {
				h(msg)
			}
		} else {
			for _, h := range waitingHandlers {
				h(PendingAsk{State: next, Message: msg})
			}
		}
	}
}

// GetAgentState returns the current derived state snapshot.
func (c *Client) GetAgentState() AgentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return AgentState{
		State:             c.state,
		IsRunning:         c.state.IsRunning(),
		IsWaitingForInput: c.state.IsWaiting(),
	}
}

// Messages returns a copy of the ordered message log.
func (c *Client) Messages() []taskstream.TaskMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]taskstream.TaskMessage, len(c.log))
	copy(out, c.log)
	return out
}

// Reset clears the log and returns to the initial running state without
// emitting a state change. It marks a task lifecycle boundary, not a
// transition within one.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
	c.index = make(map[int64]int)
	c.state = StateRunning
	c.logger.Debug("message log reset")
}
