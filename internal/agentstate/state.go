// Package agentstate maintains the ordered message log of a running agent
// task and derives the agent loop state from its tail. The state is never
// stored on its own; it is recomputed from the log on every ingested message.
package agentstate

import (
	"github.com/agentbridge/agentbridge/pkg/taskstream"
)

// State is the derived agent loop state.
type State string

const (
	// StateRunning means the agent is working and nothing blocks it.
	StateRunning State = "running"
	// StateStreaming means a response chunk or API request is in flight.
	StateStreaming State = "streaming"
	// StateInteractive means an approval decision is required to proceed.
	StateInteractive State = "interactive"
	// StateFollowup means the agent asked a question and needs an answer.
	StateFollowup State = "followup"
	// StateIdle means the task reached a terminal or retryable stop.
	StateIdle State = "idle"
	// StateResumable means a paused task is waiting to be resumed.
	StateResumable State = "resumable"
)

// IsWaiting reports whether the state blocks on user input.
func (s State) IsWaiting() bool {
	switch s {
	case StateInteractive, StateFollowup, StateResumable, StateIdle:
		return true
	default:
		return false
	}
}

// IsRunning reports whether the agent is actively making progress.
func (s State) IsRunning() bool {
	return s == StateRunning || s == StateStreaming
}

// DetectState classifies the agent loop state from the ordered message log.
//
// Priority order: a partial tail always means streaming; an ask tail maps
// through the ask taxonomy; a final say tail consults the cost of the most
// recent api_req_started entry (absent or unparsable cost means the request
// is still in flight). An empty log means running.
//
// The returned error is non-nil only for an ask kind outside the taxonomy.
// The accompanying state is still the best-effort answer (running), but
// callers should surface the error instead of trusting it.
func DetectState(log []taskstream.TaskMessage) (State, error) {
	if len(log) == 0 {
		return StateRunning, nil
	}

	last := log[len(log)-1]
	if last.Partial {
		return StateStreaming, nil
	}

	if last.Type == taskstream.MessageTypeAsk {
		category, err := taskstream.CategoryOf(last.Ask)
		if err != nil {
			return StateRunning, err
		}
		switch category {
		case taskstream.CategoryIdle:
			return StateIdle, nil
		case taskstream.CategoryResumable:
			return StateResumable, nil
		case taskstream.CategoryInteractive:
			if last.Ask == taskstream.AskFollowup {
				return StateFollowup, nil
			}
			return StateInteractive, nil
		case taskstream.CategoryNonBlocking:
			return StateRunning, nil
		}
	}

	// Final say tail: in flight iff the latest API request has no cost yet.
	for i := len(log) - 1; i >= 0; i-- {
		m := log[i]
		if m.Type == taskstream.MessageTypeSay && m.Say == taskstream.SayAPIReqStarted {
			info := taskstream.ParseAPIReqInfo(m.Text)
			if info.Cost == nil {
				return StateStreaming, nil
			}
			break
		}
	}
	return StateRunning, nil
}
