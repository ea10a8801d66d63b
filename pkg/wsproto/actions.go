package wsproto

// Client request actions.
const (
	ActionHealthCheck = "health.check"

	// Task control.
	ActionTaskNew    = "task.new"
	ActionTaskCancel = "task.cancel"
	ActionTaskClear  = "task.clear"
	ActionTaskState  = "task.state"
	ActionTaskLog    = "task.log"

	// Stream subscriptions.
	ActionTaskSubscribe   = "task.subscribe"
	ActionTaskUnsubscribe = "task.unsubscribe"

	// Ask/terminal responses.
	ActionAskRespond     = "ask.respond"
	ActionTerminalSignal = "terminal.signal"

	// Agent settings.
	ActionSettingsUpdate = "settings.update"
)

// Server notification actions.
const (
	ActionTaskMessage        = "task.message"
	ActionTaskMessageUpdated = "task.messageUpdated"
	ActionTaskStateChanged   = "task.stateChanged"
	ActionTaskWaitingInput   = "task.waitingForInput"
	ActionTaskCompleted      = "task.completed"
	ActionAskResolved        = "ask.resolved"
	ActionAskFailed          = "ask.failed"
)

// Error codes.
const (
	ErrorCodeBadRequest    = "BAD_REQUEST"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeInternalError = "INTERNAL_ERROR"
	ErrorCodeUnknownAction = "UNKNOWN_ACTION"
)
