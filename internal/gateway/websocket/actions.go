package websocket

import (
	"context"

	"github.com/agentbridge/agentbridge/internal/agentstate"
	"github.com/agentbridge/agentbridge/internal/dispatch"
	"github.com/agentbridge/agentbridge/pkg/taskstream"
	"github.com/agentbridge/agentbridge/pkg/wsproto"
)

// NewTaskRequest is the payload for task.new.
type NewTaskRequest struct {
	Text string `json:"text"`
}

// AskRespondRequest is the payload for ask.respond.
type AskRespondRequest struct {
	Approved bool   `json:"approved"`
	Text     string `json:"text,omitempty"`
}

// TerminalSignalRequest is the payload for terminal.signal.
type TerminalSignalRequest struct {
	Signal string `json:"signal"` // "continue" or "abort"
}

// SettingsUpdateRequest is the payload for settings.update.
type SettingsUpdateRequest struct {
	Settings map[string]any `json:"settings"`
}

// TaskLifecycle owns task identity: BeginTask registers a fresh task before
// the newTask control is sent, ClearTask forgets the current one. The bridge
// host implements it.
type TaskLifecycle interface {
	BeginTask(ctx context.Context, prompt string) (string, error)
	ClearTask(ctx context.Context) error
}

// NewActionDispatcher wires the protocol actions to the state client, the
// ask dispatcher, and the task lifecycle.
func NewActionDispatcher(state *agentstate.Client, asks *dispatch.Dispatcher, tasks TaskLifecycle) *wsproto.Dispatcher {
	d := wsproto.NewDispatcher()

	d.RegisterFunc(wsproto.ActionHealthCheck, func(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
		return wsproto.NewResponse(msg.ID, msg.Action, map[string]string{"status": "ok"})
	})

	d.RegisterFunc(wsproto.ActionTaskState, func(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
		return wsproto.NewResponse(msg.ID, msg.Action, state.GetAgentState())
	})

	d.RegisterFunc(wsproto.ActionTaskLog, func(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
		return wsproto.NewResponse(msg.ID, msg.Action, map[string]any{
			"messages": state.Messages(),
		})
	})

	d.RegisterFunc(wsproto.ActionTaskNew, func(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
		var req NewTaskRequest
		if err := msg.ParsePayload(&req); err != nil {
			return wsproto.NewError(msg.ID, msg.Action, wsproto.ErrorCodeBadRequest, "invalid payload: "+err.Error(), nil)
		}
		if req.Text == "" {
			return wsproto.NewError(msg.ID, msg.Action, wsproto.ErrorCodeBadRequest, "text is required", nil)
		}
		taskID, err := tasks.BeginTask(ctx, req.Text)
		if err != nil {
			return wsproto.NewError(msg.ID, msg.Action, wsproto.ErrorCodeInternalError, err.Error(), nil)
		}
		asks.NewTask(req.Text)
		return wsproto.NewResponse(msg.ID, msg.Action, map[string]any{
			"success": true,
			"task_id": taskID,
		})
	})

	d.RegisterFunc(wsproto.ActionTaskCancel, func(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
		asks.CancelTask()
		return wsproto.NewResponse(msg.ID, msg.Action, map[string]bool{"success": true})
	})

	d.RegisterFunc(wsproto.ActionTaskClear, func(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
		asks.ClearTask()
		if err := tasks.ClearTask(ctx); err != nil {
			return wsproto.NewError(msg.ID, msg.Action, wsproto.ErrorCodeInternalError, err.Error(), nil)
		}
		return wsproto.NewResponse(msg.ID, msg.Action, map[string]bool{"success": true})
	})

	d.RegisterFunc(wsproto.ActionAskRespond, func(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
		var req AskRespondRequest
		if err := msg.ParsePayload(&req); err != nil {
			return wsproto.NewError(msg.ID, msg.Action, wsproto.ErrorCodeBadRequest, "invalid payload: "+err.Error(), nil)
		}
		if err := asks.Answer(ctx, dispatch.Decision{Approved: req.Approved, Text: req.Text}); err != nil {
			return wsproto.NewError(msg.ID, msg.Action, wsproto.ErrorCodeNotFound, err.Error(), nil)
		}
		return wsproto.NewResponse(msg.ID, msg.Action, map[string]bool{"success": true})
	})

	d.RegisterFunc(wsproto.ActionTerminalSignal, func(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
		var req TerminalSignalRequest
		if err := msg.ParsePayload(&req); err != nil {
			return wsproto.NewError(msg.ID, msg.Action, wsproto.ErrorCodeBadRequest, "invalid payload: "+err.Error(), nil)
		}
		switch taskstream.TerminalOp(req.Signal) {
		case taskstream.TerminalContinue:
			asks.TerminalContinue()
		case taskstream.TerminalAbort:
			asks.TerminalAbort()
		default:
			return wsproto.NewError(msg.ID, msg.Action, wsproto.ErrorCodeBadRequest, "signal must be continue or abort", nil)
		}
		return wsproto.NewResponse(msg.ID, msg.Action, map[string]bool{"success": true})
	})

	d.RegisterFunc(wsproto.ActionSettingsUpdate, func(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
		var req SettingsUpdateRequest
		if err := msg.ParsePayload(&req); err != nil {
			return wsproto.NewError(msg.ID, msg.Action, wsproto.ErrorCodeBadRequest, "invalid payload: "+err.Error(), nil)
		}
		asks.UpdateSettings(req.Settings)
		return wsproto.NewResponse(msg.ID, msg.Action, map[string]bool{"success": true})
	})

	return d
}
