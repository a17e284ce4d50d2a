package queue

import (
	"errors"
	"fmt"
)

// taskEvent drives a task from one status to the next.
type taskEvent string

const (
	eventClaim      taskEvent = "claim"
	eventRetry      taskEvent = "retry"
	eventRecover    taskEvent = "recover"
	eventComplete   taskEvent = "complete"
	eventFail       taskEvent = "fail"
	eventDeadLetter taskEvent = "dead_letter"
	eventRequeue    taskEvent = "requeue"
)

// lifecycle is the transition table keyed by [from][event].
var lifecycle = map[TaskStatus]map[taskEvent]TaskStatus{
	TaskStatusPending: {
		eventClaim: TaskStatusProcessing,
	},
	TaskStatusProcessing: {
		eventRetry:      TaskStatusPending,
		eventRecover:    TaskStatusPending,
		eventComplete:   TaskStatusCompleted,
		eventFail:       TaskStatusFailed,
		eventDeadLetter: TaskStatusDeadLetter,
	},
	TaskStatusFailed: {
		eventRequeue: TaskStatusPending,
	},
	TaskStatusDeadLetter: {
		eventRequeue: TaskStatusPending,
	},
}

// TransitionError reports an event that is not allowed in the task's current status.
type TransitionError struct {
	Status TaskStatus
	Event  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("no transition from status %q for event %q", e.Status, e.Event)
}

// IsTransitionError reports whether err wraps a *TransitionError.
func IsTransitionError(err error) bool {
	var e *TransitionError
	return errors.As(err, &e)
}

// canFire reports whether e is allowed in the task's current status.
func (t *Task) canFire(e taskEvent) bool {
	_, ok := lifecycle[t.Status][e]
	return ok
}

// fire moves the task to the status the table assigns to e.
func (t *Task) fire(e taskEvent) error {
	next, ok := lifecycle[t.Status][e]
	if !ok {
		return &TransitionError{Status: t.Status, Event: string(e)}
	}
	t.Status = next
	return nil
}
