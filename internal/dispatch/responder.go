package dispatch

import (
	"context"

	"github.com/agentbridge/agentbridge/pkg/taskstream"
)

// Decision is a front-end's answer to an approval prompt. Text optionally
// accompanies a rejection ("no, because ...") or an approval with feedback.
type Decision struct {
	Approved bool
	Text     string
}

// Responder is the front-end hook the dispatcher suspends on when an ask is
// not auto-resolved. Implementations render a prompt (CLI, webview, API) and
// block until the user decides. A returned error means the front-end failed
// to produce a decision; the ask stays unanswered.
type Responder interface {
	// PromptApproval asks for an approve/reject decision on an interactive
	// or retryable idle ask.
	PromptApproval(ctx context.Context, msg taskstream.TaskMessage) (Decision, error)
	// PromptFollowup asks for the free-text answer to a followup question.
	PromptFollowup(ctx context.Context, msg taskstream.TaskMessage) (string, error)
	// PromptResume asks whether an interrupted task should be resumed.
	// False terminates the task.
	PromptResume(ctx context.Context, msg taskstream.TaskMessage) (bool, error)
}

// ControlSender delivers control messages to the agent process. The bridge's
// extension-facing channel satisfies this through SenderFunc.
type ControlSender interface {
	SendControl(msg taskstream.ControlMessage)
}

// SenderFunc adapts a function to the ControlSender interface.
type SenderFunc func(msg taskstream.ControlMessage)

// SendControl calls f(msg).
func (f SenderFunc) SendControl(msg taskstream.ControlMessage) {
	f(msg)
}
