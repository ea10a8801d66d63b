// Package taskstream defines the typed message stream emitted by a running
// agent task and the classification of its ask/say vocabulary.
// The agent emits newline-delimited JSON records; each record is either an
// "ask" (the agent is blocked on a decision) or a "say" (informational
// output). Streaming updates are keyed by timestamp: a later record with the
// same ts supersedes earlier partial versions.
package taskstream

import "encoding/json"

// MessageType discriminates the two top-level record variants.
type MessageType string

const (
	// MessageTypeAsk marks a record that requires a decision before the
	// agent can proceed (with the exception of non-blocking asks).
	MessageTypeAsk MessageType = "ask"
	// MessageTypeSay marks an informational or output record.
	MessageTypeSay MessageType = "say"
)

// AskKind is the sub-kind of an "ask" record.
type AskKind string

const (
	// AskFollowup requests a free-text answer or suggestion pick from the user.
	AskFollowup AskKind = "followup"
	// AskCommand requests approval to run a terminal command.
	AskCommand AskKind = "command"
	// AskCommandOutput streams command output; it never blocks the agent.
	AskCommandOutput AskKind = "command_output"
	// AskTool requests approval for a tool invocation.
	AskTool AskKind = "tool"
	// AskBrowserActionLaunch requests approval to launch a browser action.
	AskBrowserActionLaunch AskKind = "browser_action_launch"
	// AskUseMCPServer requests approval to call an MCP server.
	AskUseMCPServer AskKind = "use_mcp_server"
	// AskCompletionResult presents the finished result of the task.
	AskCompletionResult AskKind = "completion_result"
	// AskAPIReqFailed reports a failed API request and offers a retry.
	AskAPIReqFailed AskKind = "api_req_failed"
	// AskResumeTask offers to resume a previously interrupted task.
	AskResumeTask AskKind = "resume_task"
	// AskResumeCompletedTask offers to reopen an already completed task.
	AskResumeCompletedTask AskKind = "resume_completed_task"
	// AskMistakeLimitReached reports the agent hit its mistake ceiling.
	AskMistakeLimitReached AskKind = "mistake_limit_reached"
	// AskAutoApprovalMaxReqReached reports the auto-approval budget is spent.
	AskAutoApprovalMaxReqReached AskKind = "auto_approval_max_req_reached"
)

// SayKind is the sub-kind of a "say" record.
type SayKind string

const (
	// SayText is plain assistant output.
	SayText SayKind = "text"
	// SayAPIReqStarted marks the start of an upstream API request. Its Text
	// field carries a JSON-encoded APIReqInfo; the cost field appears only
	// once the request has finished.
	SayAPIReqStarted SayKind = "api_req_started"
	// SayError is an error surfaced by the agent.
	SayError SayKind = "error"
	// SayCompletionResult is the say-form echo of a completed result.
	SayCompletionResult SayKind = "completion_result"
)

// TaskMessage is one record on the agent's message stream.
// Ts doubles as the identity key for streaming updates: for any ts at most
// one final (Partial=false) version exists, and it replaces all earlier
// partial versions rather than appending to them.
type TaskMessage struct {
	Ts      int64       `json:"ts"`
	Type    MessageType `json:"type"`
	Ask     AskKind     `json:"ask,omitempty"`
	Say     SayKind     `json:"say,omitempty"`
	Text    string      `json:"text,omitempty"`
	Partial bool        `json:"partial,omitempty"`
}

// IsFinal reports whether the message is a terminal (non-partial) version.
func (m *TaskMessage) IsFinal() bool {
	return !m.Partial
}

// APIReqInfo is the payload embedded as JSON in a SayAPIReqStarted message.
// Cost is nil while the API request is still in flight; it is set on the
// final update for the request.
type APIReqInfo struct {
	Cost      *float64 `json:"cost,omitempty"`
	TokensIn  int64    `json:"tokensIn,omitempty"`
	TokensOut int64    `json:"tokensOut,omitempty"`
}

// ParseAPIReqInfo decodes the nested api_req_started payload. Malformed or
// empty text yields a zero-value info (Cost nil), never an error: an
// unparseable payload must read as "request still in flight" so a parse
// failure cannot masquerade as a finished request.
func ParseAPIReqInfo(text string) APIReqInfo {
	var info APIReqInfo
	if text == "" {
		return info
	}
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		return APIReqInfo{}
	}
	return info
}
