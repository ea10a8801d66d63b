package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbridge/agentbridge/internal/common/logger"
)

func newTestBus(t *testing.T) *MemoryEventBus {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console"})
	require.NoError(t, err)
	return NewMemoryEventBus(log)
}

func collect(events *[]*Event, mu *sync.Mutex) EventHandler {
	return func(ctx context.Context, e *Event) error {
		mu.Lock()
		*events = append(*events, e)
		mu.Unlock()
		return nil
	}
}

func TestMemoryBusExactSubject(t *testing.T) {
	b := newTestBus(t)
	defer b.Close()

	var mu sync.Mutex
	var got []*Event
	_, err := b.Subscribe("task.stream.t1", collect(&got, &mu))
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "task.stream.t1", NewEvent("task.stream", "test", nil)))
	require.NoError(t, b.Publish(context.Background(), "task.stream.t2", NewEvent("task.stream", "test", nil)))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryBusWildcards(t *testing.T) {
	b := newTestBus(t)
	defer b.Close()

	var mu sync.Mutex
	var star, gt []*Event
	_, err := b.Subscribe("task.stream.*", collect(&star, &mu))
	require.NoError(t, err)
	_, err = b.Subscribe("task.>", collect(&gt, &mu))
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "task.stream.t1", NewEvent("task.stream", "test", nil)))
	require.NoError(t, b.Publish(context.Background(), "task.state.t1", NewEvent("task.state", "test", nil)))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		// * matches one token, > matches the rest.
		return len(star) == 1 && len(gt) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	b := newTestBus(t)
	defer b.Close()

	var mu sync.Mutex
	var got []*Event
	sub, err := b.Subscribe("task.stream.t1", collect(&got, &mu))
	require.NoError(t, err)
	require.True(t, sub.IsValid())

	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())

	require.NoError(t, b.Publish(context.Background(), "task.stream.t1", NewEvent("task.stream", "test", nil)))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, got)
}

func TestMemoryBusClose(t *testing.T) {
	b := newTestBus(t)

	sub, err := b.Subscribe("task.stream.t1", func(ctx context.Context, e *Event) error { return nil })
	require.NoError(t, err)

	b.Close()

	assert.False(t, b.IsConnected())
	assert.False(t, sub.IsValid())
	assert.Error(t, b.Publish(context.Background(), "task.stream.t1", NewEvent("task.stream", "test", nil)))
	_, err = b.Subscribe("task.stream.t1", func(ctx context.Context, e *Event) error { return nil })
	assert.Error(t, err)
}
