package queue

import (
	"sync"
	"time"
)

// queueStats holds the counters of one queue. Only the manager's transition
// points mutate it; every counter is clamped at zero.
type queueStats struct {
	mu           sync.Mutex
	total        int64
	pending      int64
	processing   int64
	completed    int64
	failed       int64
	processed    int64
	avgNanos     float64
	lastActivity time.Time
}

func dec(v *int64) {
	if *v > 0 {
		*v--
	}
}

func (s *queueStats) touch(now time.Time) {
	s.lastActivity = now
}

func (s *queueStats) added(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.pending++
	s.touch(now)
}

func (s *queueStats) started(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dec(&s.pending)
	s.processing++
	s.touch(now)
}

func (s *queueStats) succeeded(now time.Time, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dec(&s.processing)
	s.completed++
	s.processed++
	s.avgNanos += (float64(took) - s.avgNanos) / float64(s.processed)
	s.touch(now)
}

func (s *queueStats) retried(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dec(&s.processing)
	s.pending++
	s.touch(now)
}

func (s *queueStats) failedTask(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dec(&s.processing)
	s.failed++
	s.touch(now)
}

// movedOut drops a processing task from this queue's accounting entirely.
func (s *queueStats) movedOut(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dec(&s.processing)
	dec(&s.total)
	s.touch(now)
}

// deadLettered accounts a task arriving in a dead-letter queue.
func (s *queueStats) deadLettered(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.failed++
	s.touch(now)
}

// requeued moves a failed task back to pending.
func (s *queueStats) requeued(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dec(&s.failed)
	s.pending++
	s.touch(now)
}

// recovered moves a stale processing task back to pending.
func (s *queueStats) recovered(now time.Time) {
	s.retried(now)
}

// removed accounts a record deleted by ClearQueue.
func (s *queueStats) removed(status TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch status {
	case TaskStatusPending:
		dec(&s.pending)
	case TaskStatusProcessing:
		dec(&s.processing)
	case TaskStatusCompleted:
		dec(&s.completed)
	case TaskStatusFailed, TaskStatusDeadLetter:
		dec(&s.failed)
	}
	dec(&s.total)
}

// takeFailed drops a failed record leaving its queue for another one.
func (s *queueStats) takeFailed(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dec(&s.failed)
	dec(&s.total)
	s.touch(now)
}

func (s *queueStats) snapshot() QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	// counters reset by re-registration can see transitions of older tasks
	total := max(s.total, s.pending+s.processing+s.completed+s.failed)
	return QueueStats{
		Total:          total,
		Pending:        s.pending,
		Processing:     s.processing,
		Completed:      s.completed,
		Failed:         s.failed,
		AvgProcessing:  time.Duration(s.avgNanos),
		LastActivityAt: s.lastActivity,
	}
}
