package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusDeadLetter TaskStatus = "dead_letter"
)

// Terminal reports whether the dispatcher will never pick the task up again.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusDeadLetter
}

// Priority represents task and queue priority (0-100, higher is served first)
type Priority int8

// Priority constants
const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within valid range
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// retention is how long an active task record is kept in storage. Urgent work
// is expected to drain quickly, so it is kept for the shortest time.
func (p Priority) retention() time.Duration {
	switch {
	case p >= PriorityHigh:
		return 24 * time.Hour
	case p >= PriorityMedium:
		return 72 * time.Hour
	default:
		return 168 * time.Hour
	}
}

// Dead-letter reasons
const (
	ReasonMaxAttemptsExceeded = "max_attempts_exceeded"
	ReasonHandlerNotFound     = "handler_not_found"
)

// Task is a persisted unit of deferred work: a handler name plus an opaque payload.
type Task struct {
	ID               uuid.UUID       `json:"id"`
	Queue            string          `json:"queue"`
	Handler          string          `json:"handler"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	Status           TaskStatus      `json:"status"`
	Priority         Priority        `json:"priority"`
	Attempts         int             `json:"attempts"`
	MaxAttempts      int             `json:"max_attempts"`
	Timeout          time.Duration   `json:"timeout"`
	CreatedAt        time.Time       `json:"created_at"`
	ScheduledAt      time.Time       `json:"scheduled_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	Error            string          `json:"error,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
	History          []RetryRecord   `json:"history,omitempty"`
	SourceQueue      string          `json:"source_queue,omitempty"`
	DeadLetterReason string          `json:"dead_letter_reason,omitempty"`
}

// RetryRecord captures one failed attempt that was rescheduled.
type RetryRecord struct {
	Attempt       int       `json:"attempt"`
	Error         string    `json:"error"`
	RescheduledAt time.Time `json:"rescheduled_at"`
}

// eligible reports whether a pending task may run at now.
func (t *Task) eligible(now time.Time) bool {
	return t.canFire(eventClaim) && !t.ScheduledAt.After(now)
}

// QueueStats is a snapshot of per-queue counters.
type QueueStats struct {
	Total          int64         `json:"total"`
	Pending        int64         `json:"pending"`
	Processing     int64         `json:"processing"`
	Completed      int64         `json:"completed"`
	Failed         int64         `json:"failed"`
	AvgProcessing  time.Duration `json:"avg_processing"`
	LastActivityAt time.Time     `json:"last_activity_at"`
}

// QueueStatus pairs a queue definition with its statistics.
type QueueStatus struct {
	Name   string      `json:"name"`
	Config QueueConfig `json:"config"`
	Stats  QueueStats  `json:"stats"`
}

// BatchItem is one entry of AddBatchTasks.
type BatchItem struct {
	Handler string
	Payload any
	Options []TaskOption
}

// Summary reports the outcome of a dispatch pass.
type Summary struct {
	Queues       int     `json:"queues"`
	Claimed      int     `json:"claimed"`
	Succeeded    int     `json:"succeeded"`
	Retried      int     `json:"retried"`
	Failed       int     `json:"failed"`
	DeadLettered int     `json:"dead_lettered"`
	Recovered    int     `json:"recovered"`
	Skipped      int     `json:"skipped"`
	Errors       []error `json:"-"`
}

func (s *Summary) merge(o Summary) {
	s.Queues += o.Queues
	s.Claimed += o.Claimed
	s.Succeeded += o.Succeeded
	s.Retried += o.Retried
	s.Failed += o.Failed
	s.DeadLettered += o.DeadLettered
	s.Recovered += o.Recovered
	s.Skipped += o.Skipped
	s.Errors = append(s.Errors, o.Errors...)
}
