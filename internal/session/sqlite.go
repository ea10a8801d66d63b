package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/agentbridge/agentbridge/internal/common/errors"
	"github.com/agentbridge/agentbridge/pkg/taskstream"
)

type sqliteStore struct {
	db *sqlx.DB
}

var _ Store = (*sqliteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and initializes the
// schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a second connection would just contend.
	db.SetMaxOpenConns(1)

	s := &sqliteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		prompt TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		ts INTEGER NOT NULL,
		type TEXT NOT NULL,
		ask TEXT NOT NULL DEFAULT '',
		say TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		partial INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (task_id, ts)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("task is nil")
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO tasks (id, prompt, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`), task.ID, task.Prompt, task.State, task.CreatedAt, task.UpdatedAt)
	return err
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	var task Task
	err := s.db.GetContext(ctx, &task, s.db.Rebind(`
		SELECT id, prompt, state, created_at, updated_at FROM tasks WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("task", id)
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *sqliteStore) ListTasks(ctx context.Context) ([]*Task, error) {
	var tasks []*Task
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT id, prompt, state, created_at, updated_at FROM tasks ORDER BY created_at ASC
	`)
	return tasks, err
}

func (s *sqliteStore) UpdateTaskState(ctx context.Context, id, state string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE tasks SET state = ?, updated_at = ? WHERE id = ?
	`), state, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NotFound("task", id)
	}
	return nil
}

func (s *sqliteStore) SaveMessage(ctx context.Context, taskID string, msg taskstream.TaskMessage) error {
	partial := 0
	if msg.Partial {
		partial = 1
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO messages (task_id, ts, type, ask, say, text, partial)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id, ts) DO UPDATE SET
			type = excluded.type,
			ask = excluded.ask,
			say = excluded.say,
			text = excluded.text,
			partial = excluded.partial
	`), taskID, msg.Ts, string(msg.Type), string(msg.Ask), string(msg.Say), msg.Text, partial)
	return err
}

func (s *sqliteStore) ListMessages(ctx context.Context, taskID string) ([]taskstream.TaskMessage, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT ts, type, ask, say, text, partial
		FROM messages
		WHERE task_id = ?
		ORDER BY ts ASC
	`), taskID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var msgs []taskstream.TaskMessage
	for rows.Next() {
		var (
			msg     taskstream.TaskMessage
			msgType string
			ask     string
			say     string
			partial int
		)
		if err := rows.Scan(&msg.Ts, &msgType, &ask, &say, &msg.Text, &partial); err != nil {
			return nil, err
		}
		msg.Type = taskstream.MessageType(msgType)
		msg.Ask = taskstream.AskKind(ask)
		msg.Say = taskstream.SayKind(say)
		msg.Partial = partial == 1
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *sqliteStore) ClearTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM tasks WHERE id = ?`), taskID)
	return err
}
