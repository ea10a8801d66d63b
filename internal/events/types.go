// Package events defines the bus subjects the bridge daemon publishes on.
// Per-task subjects carry the task id as the final token so consumers can
// subscribe to one task or to all of them with a wildcard.
package events

// Subjects for the raw agent message stream.
const (
	TaskStream = "task.stream" // every ingested TaskMessage, new or updated
	TaskState  = "task.state"  // agent loop state transitions
)

// Subjects for dispatch activity.
const (
	AskPending  = "ask.pending"  // a blocking ask reached the dispatcher
	AskResolved = "ask.resolved" // a control response was sent for an ask
)

// Subjects for task lifecycle.
const (
	TaskStarted   = "task.started"
	TaskCompleted = "task.completed"
	TaskCleared   = "task.cleared"
)

// BuildTaskStreamSubject returns the stream subject for one task.
func BuildTaskStreamSubject(taskID string) string {
	return TaskStream + "." + taskID
}

// BuildTaskStreamWildcardSubject subscribes to every task's stream.
func BuildTaskStreamWildcardSubject() string {
	return TaskStream + ".*"
}

// BuildTaskStateSubject returns the state subject for one task.
func BuildTaskStateSubject(taskID string) string {
	return TaskState + "." + taskID
}

// BuildTaskStateWildcardSubject subscribes to every task's state changes.
func BuildTaskStateWildcardSubject() string {
	return TaskState + ".*"
}

// BuildAskPendingSubject returns the pending-ask subject for one task.
func BuildAskPendingSubject(taskID string) string {
	return AskPending + "." + taskID
}

// BuildAskResolvedSubject returns the resolved-ask subject for one task.
func BuildAskResolvedSubject(taskID string) string {
	return AskResolved + "." + taskID
}

// BuildTaskStartedSubject returns the start subject for one task.
func BuildTaskStartedSubject(taskID string) string {
	return TaskStarted + "." + taskID
}

// BuildTaskCompletedSubject returns the completion subject for one task.
func BuildTaskCompletedSubject(taskID string) string {
	return TaskCompleted + "." + taskID
}

// BuildTaskClearedSubject returns the cleared subject for one task.
func BuildTaskClearedSubject(taskID string) string {
	return TaskCleared + "." + taskID
}
