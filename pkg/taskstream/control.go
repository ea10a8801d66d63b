package taskstream

// ControlType identifies an outbound control message sent back to the agent
// process in response to its stream (the reverse direction of TaskMessage).
type ControlType string

const (
	// ControlAskResponse answers a pending ask with a button decision.
	ControlAskResponse ControlType = "askResponse"
	// ControlMessageResponse answers a followup ask with free text.
	ControlMessageResponse ControlType = "messageResponse"
	// ControlNewTask starts a new task with the given prompt text.
	ControlNewTask ControlType = "newTask"
	// ControlClearTask discards the current task and its message log.
	ControlClearTask ControlType = "clearTask"
	// ControlCancelTask interrupts the current task without clearing it.
	ControlCancelTask ControlType = "cancelTask"
	// ControlTerminalOperation continues or aborts a running command.
	ControlTerminalOperation ControlType = "terminalOperation"
	// ControlUpdateSettings pushes updated agent settings.
	ControlUpdateSettings ControlType = "updateSettings"
)

// AskResponse enumerates the button decisions for an askResponse control.
type AskResponse string

const (
	// AskResponseYes approves the pending ask.
	AskResponseYes AskResponse = "yesButtonClicked"
	// AskResponseNo rejects the pending ask.
	AskResponseNo AskResponse = "noButtonClicked"
	// AskResponseMessage carries a text reply instead of a button.
	AskResponseMessage AskResponse = "messageResponse"
)

// TerminalOp enumerates terminalOperation payloads.
type TerminalOp string

const (
	// TerminalContinue lets a running command keep going.
	TerminalContinue TerminalOp = "continue"
	// TerminalAbort kills the running command.
	TerminalAbort TerminalOp = "abort"
)

// ControlMessage is the envelope for all agent-bound control traffic.
// Exactly one of the optional fields is meaningful per Type.
type ControlMessage struct {
	Type     ControlType `json:"type"`
	Response AskResponse `json:"askResponse,omitempty"`
	Text     string      `json:"text,omitempty"`
	Terminal TerminalOp  `json:"terminalOperation,omitempty"`
	Settings any         `json:"settings,omitempty"`
}

// NewAskResponse builds an askResponse control with an optional text reply.
func NewAskResponse(response AskResponse, text string) ControlMessage {
	return ControlMessage{Type: ControlAskResponse, Response: response, Text: text}
}

// NewMessageResponse builds a free-text answer to a followup ask.
func NewMessageResponse(text string) ControlMessage {
	return ControlMessage{Type: ControlMessageResponse, Response: AskResponseMessage, Text: text}
}

// NewTaskControl builds a newTask control with the task prompt.
func NewTaskControl(text string) ControlMessage {
	return ControlMessage{Type: ControlNewTask, Text: text}
}

// NewTerminalOperation builds a terminalOperation control.
func NewTerminalOperation(op TerminalOp) ControlMessage {
	return ControlMessage{Type: ControlTerminalOperation, Terminal: op}
}
