// Package bridgehost connects the IPC bridge to the rest of the daemon: it
// decodes the agent's message stream off the extension-facing channel, feeds
// the state client, persists the log, tunnels raw messages to the TUI-facing
// channel, and carries control responses back to the agent.
package bridgehost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentbridge/agentbridge/internal/agentstate"
	apperrors "github.com/agentbridge/agentbridge/internal/common/errors"
	"github.com/agentbridge/agentbridge/internal/common/logger"
	"github.com/agentbridge/agentbridge/internal/events"
	"github.com/agentbridge/agentbridge/internal/events/bus"
	"github.com/agentbridge/agentbridge/internal/ipc"
	"github.com/agentbridge/agentbridge/internal/session"
	"github.com/agentbridge/agentbridge/pkg/taskstream"
)

const eventSource = "bridged"

// Host owns the bridge wiring for one agent connection.
type Host struct {
	bridge *ipc.Bridge
	state  *agentstate.Client
	store  session.Store // nil disables persistence
	bus    bus.EventBus  // nil disables lifecycle events
	logger *logger.Logger

	mu         sync.Mutex
	taskID     string
	completion chan taskstream.TaskMessage
}

// New creates a host. Call Start to wire the bridge signals.
func New(bridge *ipc.Bridge, state *agentstate.Client, store session.Store, eventBus bus.EventBus, log *logger.Logger) *Host {
	return &Host{
		bridge:     bridge,
		state:      state,
		store:      store,
		bus:        eventBus,
		logger:     log.WithFields(zap.String("component", "bridge-host")),
		completion: make(chan taskstream.TaskMessage, 1),
	}
}

// Start subscribes to the bridge's inbound signals.
func (h *Host) Start(ctx context.Context) {
	h.bridge.OnExtensionEvent(func(env ipc.Envelope) {
		// Locally emitted controls also raise the event signal; they are
		// outbound traffic, not agent stream.
		if _, isControl := env.Data.(taskstream.ControlMessage); isControl {
			return
		}
		msg, ok := DecodeTaskMessage(env.Data)
		if !ok {
			h.logger.Warn("dropping undecodable extension event",
				zap.String("envelope_id", env.ID))
			return
		}
		h.ingest(ctx, msg)
	})

	h.state.OnTaskCompleted(func(m taskstream.TaskMessage) {
		select {
		case h.completion <- m:
		default:
		}
		if h.store != nil {
			// Tasks begun before this daemon have no persisted record;
			// their completions are not an error.
			err := h.store.UpdateTaskState(ctx, h.CurrentTaskID(), string(agentstate.StateIdle))
			if err != nil && !apperrors.IsNotFound(err) {
				h.logger.WithError(err).Warn("failed to persist task completion")
			}
		}
	})
}

func (h *Host) ingest(ctx context.Context, msg taskstream.TaskMessage) {
	h.state.HandleMessage(msg)

	if h.store != nil {
		if err := h.store.SaveMessage(ctx, h.CurrentTaskID(), msg); err != nil {
			h.logger.Warn("failed to persist message",
				zap.Int64("ts", msg.Ts),
				zap.Error(err))
		}
	}

	// Tunnel the raw message to the TUI-facing channel so embedded
	// front-ends see the stream without understanding the bridge.
	h.bridge.SendExtensionMessage(msg)
}

// SendControl delivers a control message to the agent process. It satisfies
// the dispatcher's ControlSender.
func (h *Host) SendControl(msg taskstream.ControlMessage) {
	h.bridge.Extension().Event(msg)
}

// BeginTask registers a fresh task identity, resets the state client, and
// persists the task record. It does not send the newTask control; the
// dispatcher owns outbound controls.
func (h *Host) BeginTask(ctx context.Context, prompt string) (string, error) {
	id := uuid.New().String()

	h.mu.Lock()
	h.taskID = id
	// Drop any completion left over from the previous task.
	select {
	case <-h.completion:
	default:
	}
	h.mu.Unlock()

	h.state.Reset()

	if h.store != nil {
		err := h.store.CreateTask(ctx, &session.Task{
			ID:     id,
			Prompt: prompt,
			State:  string(agentstate.StateRunning),
		})
		if err != nil {
			return "", fmt.Errorf("failed to persist task: %w", err)
		}
	}

	h.publish(ctx, events.BuildTaskStartedSubject(id), events.TaskStarted, map[string]any{
		"task_id": id,
		"prompt":  prompt,
	})

	h.logger.WithTaskID(id).Info("task started")
	return id, nil
}

// ClearTask forgets the current task: the state client is reset, persisted
// rows are removed, and the cleared event is published.
func (h *Host) ClearTask(ctx context.Context) error {
	h.mu.Lock()
	id := h.taskID
	h.taskID = ""
	select {
	case <-h.completion:
	default:
	}
	h.mu.Unlock()

	h.state.Reset()

	if h.store != nil && id != "" {
		if err := h.store.ClearTask(ctx, id); err != nil {
			return fmt.Errorf("failed to clear persisted task: %w", err)
		}
	}

	if id != "" {
		h.publish(ctx, events.BuildTaskClearedSubject(id), events.TaskCleared, map[string]any{
			"task_id": id,
		})
		h.logger.WithTaskID(id).Info("task cleared")
	}
	return nil
}

func (h *Host) publish(ctx context.Context, subject, eventType string, payload map[string]any) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(ctx, subject, bus.NewEvent(eventType, eventSource, payload)); err != nil {
		h.logger.WithError(err).Warn("failed to publish lifecycle event",
			zap.String("subject", subject))
	}
}

// CurrentTaskID returns the task the host is currently serving, or "" when
// none has begun.
func (h *Host) CurrentTaskID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.taskID
}

// WaitForCompletion blocks until the current task completes or the timeout
// elapses. Used by non-interactive callers that await an entire agent turn.
func (h *Host) WaitForCompletion(ctx context.Context, timeout time.Duration) (taskstream.TaskMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return taskstream.TaskMessage{}, ctx.Err()
	case msg := <-h.completion:
		return msg, nil
	case <-timer.C:
		return taskstream.TaskMessage{}, fmt.Errorf("timed out waiting for task completion after %s", timeout)
	}
}

// DecodeTaskMessage extracts a TaskMessage from an envelope payload. The
// payload may be a typed value (in-process loopback) or a decoded JSON map
// (after a real transport), optionally wrapped in an extensionMessage.
func DecodeTaskMessage(data any) (taskstream.TaskMessage, bool) {
	switch v := data.(type) {
	case taskstream.TaskMessage:
		return v, true
	case *taskstream.TaskMessage:
		if v == nil {
			return taskstream.TaskMessage{}, false
		}
		return *v, true
	case ipc.ExtensionMessage:
		return DecodeTaskMessage(v.Payload)
	case map[string]any:
		if payload, ok := v["payload"]; ok && v["type"] == ipc.ExtensionMessageType {
			return DecodeTaskMessage(payload)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return taskstream.TaskMessage{}, false
		}
		var msg taskstream.TaskMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return taskstream.TaskMessage{}, false
		}
		if msg.Ts == 0 {
			return taskstream.TaskMessage{}, false
		}
		return msg, true
	default:
		return taskstream.TaskMessage{}, false
	}
}
