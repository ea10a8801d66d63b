package websocket

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbridge/agentbridge/internal/agentstate"
	"github.com/agentbridge/agentbridge/internal/common/config"
	"github.com/agentbridge/agentbridge/internal/common/logger"
	"github.com/agentbridge/agentbridge/internal/dispatch"
	"github.com/agentbridge/agentbridge/pkg/taskstream"
	"github.com/agentbridge/agentbridge/pkg/wsproto"
)

type captureSender struct {
	controls []taskstream.ControlMessage
}

func (s *captureSender) SendControl(msg taskstream.ControlMessage) {
	s.controls = append(s.controls, msg)
}

type fakeLifecycle struct {
	taskID  string
	prompt  string
	cleared bool
	err     error
}

func (f *fakeLifecycle) BeginTask(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.taskID, f.err
}

func (f *fakeLifecycle) ClearTask(ctx context.Context) error {
	f.cleared = true
	return f.err
}

func actionsFixture(t *testing.T) (*wsproto.Dispatcher, *captureSender, *fakeLifecycle, *agentstate.Client) {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console"})
	require.NoError(t, err)

	sender := &captureSender{}
	tasks := &fakeLifecycle{taskID: "task-123"}
	state := agentstate.NewClient(log)
	asks := dispatch.NewDispatcher(sender, dispatch.NewPolicy(config.ApprovalConfig{}), nil, log)

	return NewActionDispatcher(state, asks, tasks), sender, tasks, state
}

func dispatchAction(t *testing.T, d *wsproto.Dispatcher, action string, payload any) *wsproto.Message {
	t.Helper()
	req, err := wsproto.NewRequest("req-1", action, payload)
	require.NoError(t, err)
	resp, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func TestActionHealthCheck(t *testing.T) {
	d, _, _, _ := actionsFixture(t)

	resp := dispatchAction(t, d, wsproto.ActionHealthCheck, nil)
	assert.Equal(t, wsproto.MessageTypeResponse, resp.Type)

	var body map[string]string
	require.NoError(t, resp.ParsePayload(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestActionTaskNew(t *testing.T) {
	d, sender, tasks, _ := actionsFixture(t)

	resp := dispatchAction(t, d, wsproto.ActionTaskNew, NewTaskRequest{Text: "fix the tests"})
	assert.Equal(t, wsproto.MessageTypeResponse, resp.Type)

	var body map[string]any
	require.NoError(t, resp.ParsePayload(&body))
	assert.Equal(t, "task-123", body["task_id"])
	assert.Equal(t, "fix the tests", tasks.prompt)

	require.Len(t, sender.controls, 1)
	assert.Equal(t, taskstream.ControlNewTask, sender.controls[0].Type)
	assert.Equal(t, "fix the tests", sender.controls[0].Text)
}

func TestActionTaskNewRejectsEmptyText(t *testing.T) {
	d, sender, _, _ := actionsFixture(t)

	resp := dispatchAction(t, d, wsproto.ActionTaskNew, NewTaskRequest{})
	assert.Equal(t, wsproto.MessageTypeError, resp.Type)
	assert.Empty(t, sender.controls)
}

func TestActionTaskNewStarterFailure(t *testing.T) {
	d, sender, tasks, _ := actionsFixture(t)
	tasks.err = errors.New("disk full")

	resp := dispatchAction(t, d, wsproto.ActionTaskNew, NewTaskRequest{Text: "p"})
	assert.Equal(t, wsproto.MessageTypeError, resp.Type)

	var body wsproto.ErrorPayload
	require.NoError(t, resp.ParsePayload(&body))
	assert.Equal(t, wsproto.ErrorCodeInternalError, body.Code)
	assert.Empty(t, sender.controls)
}

func TestActionTaskState(t *testing.T) {
	d, _, _, state := actionsFixture(t)
	state.HandleMessage(taskstream.TaskMessage{Ts: 1, Type: taskstream.MessageTypeAsk, Ask: taskstream.AskCommand, Text: "ls"})

	resp := dispatchAction(t, d, wsproto.ActionTaskState, nil)
	require.Equal(t, wsproto.MessageTypeResponse, resp.Type)

	var body agentstate.AgentState
	require.NoError(t, resp.ParsePayload(&body))
	assert.Equal(t, agentstate.StateInteractive, body.State)
	assert.True(t, body.IsWaitingForInput)
}

func TestActionTerminalSignal(t *testing.T) {
	d, sender, _, _ := actionsFixture(t)

	resp := dispatchAction(t, d, wsproto.ActionTerminalSignal, TerminalSignalRequest{Signal: "abort"})
	assert.Equal(t, wsproto.MessageTypeResponse, resp.Type)

	require.Len(t, sender.controls, 1)
	assert.Equal(t, taskstream.ControlTerminalOperation, sender.controls[0].Type)
	assert.Equal(t, taskstream.TerminalAbort, sender.controls[0].Terminal)

	resp = dispatchAction(t, d, wsproto.ActionTerminalSignal, TerminalSignalRequest{Signal: "pause"})
	assert.Equal(t, wsproto.MessageTypeError, resp.Type)
	assert.Len(t, sender.controls, 1)
}

func TestActionTaskClear(t *testing.T) {
	d, sender, tasks, _ := actionsFixture(t)

	resp := dispatchAction(t, d, wsproto.ActionTaskClear, nil)
	assert.Equal(t, wsproto.MessageTypeResponse, resp.Type)

	assert.True(t, tasks.cleared)
	require.Len(t, sender.controls, 1)
	assert.Equal(t, taskstream.ControlClearTask, sender.controls[0].Type)
}

func TestUnknownActionYieldsErrorResponse(t *testing.T) {
	d, _, _, _ := actionsFixture(t)

	resp := dispatchAction(t, d, "task.levitate", nil)
	assert.Equal(t, wsproto.MessageTypeError, resp.Type)

	var body wsproto.ErrorPayload
	require.NoError(t, resp.ParsePayload(&body))
	assert.Equal(t, wsproto.ErrorCodeUnknownAction, body.Code)
}
