package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/agentbridge/agentbridge/internal/common/errors"
	"github.com/agentbridge/agentbridge/pkg/taskstream"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestTaskLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := &Task{ID: "t1", Prompt: "add a health endpoint", State: "running"}
	require.NoError(t, store.CreateTask(ctx, task))

	got, err := store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "add a health endpoint", got.Prompt)
	assert.Equal(t, "running", got.State)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, store.UpdateTaskState(ctx, "t1", "idle"))
	got, err = store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "idle", got.State)

	tasks, err := store.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestTaskNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetTask(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))

	err = store.UpdateTaskState(ctx, "missing", "idle")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMessageUpsertAndReplay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTask(ctx, &Task{ID: "t1", Prompt: "p", State: "running"}))

	partial := taskstream.TaskMessage{Ts: 1, Type: taskstream.MessageTypeSay, Say: taskstream.SayText, Text: "hel", Partial: true}
	final := taskstream.TaskMessage{Ts: 1, Type: taskstream.MessageTypeSay, Say: taskstream.SayText, Text: "hello"}
	ask := taskstream.TaskMessage{Ts: 2, Type: taskstream.MessageTypeAsk, Ask: taskstream.AskTool, Text: "write file?"}

	require.NoError(t, store.SaveMessage(ctx, "t1", partial))
	require.NoError(t, store.SaveMessage(ctx, "t1", final))
	require.NoError(t, store.SaveMessage(ctx, "t1", ask))

	msgs, err := store.ListMessages(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	// The final version replaced the partial at the same ts.
	assert.Equal(t, final, msgs[0])
	assert.Equal(t, ask, msgs[1])
}

func TestClearTaskCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTask(ctx, &Task{ID: "t1", Prompt: "p", State: "running"}))
	require.NoError(t, store.SaveMessage(ctx, "t1", taskstream.TaskMessage{Ts: 1, Type: taskstream.MessageTypeSay, Say: taskstream.SayText, Text: "x"}))

	require.NoError(t, store.ClearTask(ctx, "t1"))

	_, err := store.GetTask(ctx, "t1")
	assert.True(t, apperrors.IsNotFound(err))

	msgs, err := store.ListMessages(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
