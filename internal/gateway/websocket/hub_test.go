package websocket

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbridge/agentbridge/internal/common/logger"
	"github.com/agentbridge/agentbridge/pkg/wsproto"
)

func hubFixture(t *testing.T) (*Hub, *logger.Logger) {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console"})
	require.NoError(t, err)
	return NewHub(nil, log), log
}

func TestHubBroadcastToTaskReachesOnlySubscribers(t *testing.T) {
	hub, log := hubFixture(t)

	sub := NewClient("sub", nil, hub, log)
	other := NewClient("other", nil, hub, log)
	hub.SubscribeToTask(sub, "task-1")
	hub.SubscribeToTask(other, "task-2")

	note, err := wsproto.NewNotification(wsproto.ActionTaskMessage, map[string]any{"task_id": "task-1"})
	require.NoError(t, err)
	hub.BroadcastToTask("task-1", note)

	select {
	case data := <-sub.send:
		assert.Contains(t, string(data), "task-1")
	default:
		t.Fatal("subscriber did not receive the notification")
	}
	assert.Empty(t, other.send)
}

func TestHubBroadcastToTaskDuringDisconnect(t *testing.T) {
	hub, log := hubFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	note, err := wsproto.NewNotification(wsproto.ActionTaskMessage, map[string]any{"task_id": "task-1"})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			hub.BroadcastToTask("task-1", note)
		}
	}()

	// Clients churn through subscribe and disconnect while the broadcast
	// loop runs. A send must never land on a channel the hub has closed.
	for i := 0; i < 200; i++ {
		c := NewClient(fmt.Sprintf("c-%d", i), nil, hub, log)
		hub.Register(c)
		hub.SubscribeToTask(c, "task-1")
		hub.Unregister(c)
	}
	<-done

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, time.Millisecond)
}
