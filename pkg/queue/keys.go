package queue

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	taskKeyPrefix      = "queue_task_"
	completedKeyPrefix = "queue_completed_"
	failedKeyPrefix    = "queue_failed_"
	lockKeyPrefix      = "queue_lock_"
	deadLetterPrefix   = "dead_letter_"
)

var queueNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func taskKey(queue string, id uuid.UUID) string {
	return taskKeyPrefix + queue + "_" + id.String()
}

func completedKey(queue string, id uuid.UUID) string {
	return completedKeyPrefix + queue + "_" + id.String()
}

func failedKey(queue string, id uuid.UUID) string {
	return failedKeyPrefix + queue + "_" + id.String()
}

// recordKey places failed records in their own key family so dispatch scans
// never load them.
func recordKey(t *Task) string {
	if t.Status == TaskStatusFailed {
		return failedKey(t.Queue, t.ID)
	}
	return taskKey(t.Queue, t.ID)
}

func lockKey(queue string) string {
	return lockKeyPrefix + queue
}

// Prefix patterns match every queue whose name starts with queue; callers filter
// decoded records by Task.Queue.
func taskPattern(queue string) string {
	return taskKeyPrefix + queue + "_*"
}

func completedPattern(queue string) string {
	return completedKeyPrefix + queue + "_*"
}

func failedPattern(queue string) string {
	return failedKeyPrefix + queue + "_*"
}

// DeadLetterQueueName returns the name of the dead-letter queue paired with queue.
func DeadLetterQueueName(queue string) string {
	return deadLetterPrefix + queue
}

// IsDeadLetterQueue reports whether name belongs to a dead-letter queue.
func IsDeadLetterQueue(name string) bool {
	return strings.HasPrefix(name, deadLetterPrefix)
}

func validateQueueName(name string) error {
	if !queueNamePattern.MatchString(name) || IsDeadLetterQueue(name) {
		return ErrInvalidQueueName
	}
	return nil
}
