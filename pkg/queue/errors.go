package queue

import "errors"

// Common errors
var (
	// ErrCacheNil is returned when a manager is built without a cache engine
	ErrCacheNil = errors.New("cache cannot be nil")

	// ErrManagerNil is returned when a runner or scheduler is built without a manager
	ErrManagerNil = errors.New("manager cannot be nil")

	// ErrInvalidQueueName is returned for empty, malformed or reserved queue names
	ErrInvalidQueueName = errors.New("invalid queue name")

	// ErrInvalidQueueConfig is returned when a queue definition fails validation
	ErrInvalidQueueConfig = errors.New("invalid queue configuration")

	// ErrQueueNotFound is returned when a queue is not registered
	ErrQueueNotFound = errors.New("queue not registered")

	// ErrHandlerNil is returned when registering a nil handler
	ErrHandlerNil = errors.New("handler cannot be nil")

	// ErrHandlerNotFound is returned when no handler is registered for a task
	ErrHandlerNotFound = errors.New("no handler registered for task")

	// ErrPayloadMarshal is returned when payload marshaling fails
	ErrPayloadMarshal = errors.New("failed to marshal payload to JSON")

	// ErrInvalidPriority is returned when priority is outside valid range
	ErrInvalidPriority = errors.New("priority must be between 0 and 100")

	// ErrNoItemsToEnqueue is returned when batch enqueue is called with empty items
	ErrNoItemsToEnqueue = errors.New("no items to enqueue")

	// ErrTaskCreate is returned when the task record could not be persisted
	ErrTaskCreate = errors.New("failed to create task in storage")

	// ErrTaskUpdate is returned when a task state transition could not be persisted
	ErrTaskUpdate = errors.New("failed to update task in storage")

	// ErrTaskNotFound is returned when no record exists for a task id
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotRetryable is returned when retrying a task that is not failed
	ErrTaskNotRetryable = errors.New("task is not in a retryable state")

	// ErrNotDeadLettered is returned when requeueing a task that is not dead-lettered
	ErrNotDeadLettered = errors.New("task is not dead-lettered")

	// ErrTaskTimeout marks an execution that ran past its timeout
	ErrTaskTimeout = errors.New("task execution timed out")

	// ErrTaskPanicked marks an execution that panicked
	ErrTaskPanicked = errors.New("task handler panicked")

	// ErrRunnerStarted is returned when Start is called on a running Runner
	ErrRunnerStarted = errors.New("runner already started")

	// ErrInvalidSchedule is returned when schedule format is invalid
	ErrInvalidSchedule = errors.New("invalid schedule format")

	// ErrTaskAlreadyRegistered is returned when trying to register a duplicate recurring task
	ErrTaskAlreadyRegistered = errors.New("task already registered")

	// ErrSchedulerNotConfigured is returned when scheduler has no tasks
	ErrSchedulerNotConfigured = errors.New("scheduler has no registered tasks")

	// ErrInvalidDefinitions is returned when a queue definitions document cannot be parsed
	ErrInvalidDefinitions = errors.New("invalid queue definitions")

	// ErrLeaseLost is reported when a dispatch pass cannot extend its queue lease
	ErrLeaseLost = errors.New("queue lease lost")
)
