package websocket

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentbridge/agentbridge/internal/agentstate"
	"github.com/agentbridge/agentbridge/internal/common/logger"
	"github.com/agentbridge/agentbridge/internal/dispatch"
	"github.com/agentbridge/agentbridge/internal/events"
	"github.com/agentbridge/agentbridge/internal/events/bus"
	"github.com/agentbridge/agentbridge/pkg/taskstream"
	"github.com/agentbridge/agentbridge/pkg/wsproto"
)

const eventSource = "bridged"

// Notifier fans agent activity out to subscribed WebSocket clients and onto
// the event bus. TaskID resolves the task the daemon is currently serving.
type Notifier struct {
	hub    *Hub
	bus    bus.EventBus
	taskID func() string
	logger *logger.Logger
}

// NewNotifier creates a notifier. The bus may be nil when no fan-out beyond
// the hub is wanted.
func NewNotifier(hub *Hub, eventBus bus.EventBus, taskID func() string, log *logger.Logger) *Notifier {
	return &Notifier{
		hub:    hub,
		bus:    eventBus,
		taskID: taskID,
		logger: log.WithFields(zap.String("component", "ws-notifier")),
	}
}

// Attach subscribes the notifier to the state client's and dispatcher's
// notifications.
func (n *Notifier) Attach(ctx context.Context, client *agentstate.Client, d *dispatch.Dispatcher) {
	client.OnMessage(func(m taskstream.TaskMessage) {
		n.notify(ctx, wsproto.ActionTaskMessage, events.BuildTaskStreamSubject(n.taskID()), events.TaskStream, map[string]any{
			"task_id": n.taskID(),
			"message": m,
		})
	})
	client.OnMessageUpdated(func(m taskstream.TaskMessage) {
		n.notify(ctx, wsproto.ActionTaskMessageUpdated, events.BuildTaskStreamSubject(n.taskID()), events.TaskStream, map[string]any{
			"task_id": n.taskID(),
			"message": m,
		})
	})
	client.OnStateChange(func(sc agentstate.StateChange) {
		n.notify(ctx, wsproto.ActionTaskStateChanged, events.BuildTaskStateSubject(n.taskID()), events.TaskState, map[string]any{
			"task_id":  n.taskID(),
			"previous": string(sc.Previous),
			"state":    string(sc.New),
		})
	})
	client.OnWaitingForInput(func(p agentstate.PendingAsk) {
		n.notify(ctx, wsproto.ActionTaskWaitingInput, events.BuildAskPendingSubject(n.taskID()), events.AskPending, map[string]any{
			"task_id": n.taskID(),
			"state":   string(p.State),
			"message": p.Message,
		})
	})
	client.OnTaskCompleted(func(m taskstream.TaskMessage) {
		n.notify(ctx, wsproto.ActionTaskCompleted, events.BuildTaskCompletedSubject(n.taskID()), events.TaskCompleted, map[string]any{
			"task_id": n.taskID(),
			"message": m,
		})
	})

	if d != nil {
		d.OnResolved(func(m taskstream.TaskMessage) {
			n.notify(ctx, wsproto.ActionAskResolved, events.BuildAskResolvedSubject(n.taskID()), events.AskResolved, map[string]any{
				"task_id": n.taskID(),
				"ask":     string(m.Ask),
			})
		})
		d.OnError(func(m taskstream.TaskMessage, err error) {
			n.notify(ctx, wsproto.ActionAskFailed, events.BuildAskPendingSubject(n.taskID()), events.AskPending, map[string]any{
				"task_id": n.taskID(),
				"ask":     string(m.Ask),
				"error":   err.Error(),
			})
		})
	}
}

func (n *Notifier) notify(ctx context.Context, action, subject, eventType string, payload map[string]any) {
	note, err := wsproto.NewNotification(action, payload)
	if err != nil {
		n.logger.Error("failed to build notification",
			zap.String("action", action),
			zap.Error(err))
		return
	}
	n.hub.BroadcastToTask(n.taskID(), note)

	if n.bus != nil {
		if err := n.bus.Publish(ctx, subject, bus.NewEvent(eventType, eventSource, payload)); err != nil {
			n.logger.Warn("failed to publish bus event",
				zap.String("subject", subject),
				zap.Error(err))
		}
	}
}
