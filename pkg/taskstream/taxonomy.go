package taskstream

import "fmt"

// AskCategory partitions the ask vocabulary into four disjoint sets that
// drive agent-loop state detection and dispatch policy.
type AskCategory int

const (
	// CategoryIdle asks mean the agent has stopped and is offering a
	// retry/acknowledge choice; the loop is no longer making progress.
	CategoryIdle AskCategory = iota
	// CategoryInteractive asks block the agent until the user approves,
	// rejects, or answers.
	CategoryInteractive
	// CategoryResumable asks offer to pick an interrupted task back up.
	CategoryResumable
	// CategoryNonBlocking asks stream information (command output) and do
	// not suspend the agent loop.
	CategoryNonBlocking
)

// String returns the category name for logging.
func (c AskCategory) String() string {
	switch c {
	case CategoryIdle:
		return "idle"
	case CategoryInteractive:
		return "interactive"
	case CategoryResumable:
		return "resumable"
	case CategoryNonBlocking:
		return "non_blocking"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// ErrUnknownAsk reports an ask kind outside the known vocabulary. This is a
// taxonomy gap, not a runtime condition: callers must surface it loudly
// instead of defaulting, because misfiling a blocking ask as idle makes the
// agent look stuck and misfiling an idle ask as blocking skips an approval.
type ErrUnknownAsk struct {
	Ask AskKind
}

func (e *ErrUnknownAsk) Error() string {
	return fmt.Sprintf("unknown ask kind %q: not covered by any ask category", e.Ask)
}

var askCategories = map[AskKind]AskCategory{
	AskCompletionResult:          CategoryIdle,
	AskAPIReqFailed:              CategoryIdle,
	AskResumeCompletedTask:       CategoryIdle,
	AskMistakeLimitReached:       CategoryIdle,
	AskAutoApprovalMaxReqReached: CategoryIdle,

	AskFollowup:            CategoryInteractive,
	AskCommand:             CategoryInteractive,
	AskTool:                CategoryInteractive,
	AskBrowserActionLaunch: CategoryInteractive,
	AskUseMCPServer:        CategoryInteractive,

	AskResumeTask: CategoryResumable,

	AskCommandOutput: CategoryNonBlocking,
}

// CategoryOf classifies an ask kind. It returns ErrUnknownAsk for any value
// outside the closed vocabulary.
func CategoryOf(ask AskKind) (AskCategory, error) {
	cat, ok := askCategories[ask]
	if !ok {
		return 0, &ErrUnknownAsk{Ask: ask}
	}
	return cat, nil
}

// KnownAsks returns the full ask vocabulary. The order is unspecified.
func KnownAsks() []AskKind {
	asks := make([]AskKind, 0, len(askCategories))
	for ask := range askCategories {
		asks = append(asks, ask)
	}
	return asks
}

// IsIdleAsk reports whether the ask means the agent has gone idle.
func IsIdleAsk(ask AskKind) bool {
	return askCategories[ask] == CategoryIdle && hasCategory(ask)
}

// IsInteractiveAsk reports whether the ask blocks on a user decision.
func IsInteractiveAsk(ask AskKind) bool {
	return askCategories[ask] == CategoryInteractive && hasCategory(ask)
}

// IsResumableAsk reports whether the ask offers to resume a task.
func IsResumableAsk(ask AskKind) bool {
	return askCategories[ask] == CategoryResumable && hasCategory(ask)
}

// IsNonBlockingAsk reports whether the ask streams without suspending.
func IsNonBlockingAsk(ask AskKind) bool {
	return askCategories[ask] == CategoryNonBlocking && hasCategory(ask)
}

func hasCategory(ask AskKind) bool {
	_, ok := askCategories[ask]
	return ok
}
