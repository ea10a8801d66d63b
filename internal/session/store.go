// Package session persists tasks and their message logs so a front-end can
// replay history and resume an interrupted task after a restart.
package session

import (
	"context"
	"time"

	"github.com/agentbridge/agentbridge/pkg/taskstream"
)

// Task is one persisted agent task.
type Task struct {
	ID        string    `db:"id"`
	Prompt    string    `db:"prompt"`
	State     string    `db:"state"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store persists tasks and their ordered message logs. Messages are keyed by
// (task id, ts); saving an existing key overwrites the stored version, which
// matches the stream's supersede-in-place semantics.
type Store interface {
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context) ([]*Task, error)
	UpdateTaskState(ctx context.Context, id, state string) error

	SaveMessage(ctx context.Context, taskID string, msg taskstream.TaskMessage) error
	ListMessages(ctx context.Context, taskID string) ([]taskstream.TaskMessage, error)

	// ClearTask removes the task and its messages.
	ClearTask(ctx context.Context, taskID string) error

	Close() error
}
