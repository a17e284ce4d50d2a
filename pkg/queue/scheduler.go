package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/taskengine/pkg/logger"
)

// Scheduler turns Schedule definitions into tasks of a Manager at runtime
type Scheduler struct {
	manager  *Manager
	tasks    map[string]*scheduledTask
	mu       sync.RWMutex
	interval time.Duration
	logger   *slog.Logger
}

// scheduledTask holds configuration for a recurring task
type scheduledTask struct {
	name            string
	schedule        Schedule
	queue           string
	priority        *Priority
	maxAttempts     *int
	lastScheduledAt *time.Time // Track when we last created a task
}

// NewScheduler creates a new recurring task scheduler
func NewScheduler(m *Manager, opts ...SchedulerOption) (*Scheduler, error) {
	if m == nil {
		return nil, ErrManagerNil
	}

	// Default options
	options := &schedulerOptions{
		checkInterval: 30 * time.Second,
		logger:        slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		manager:  m,
		tasks:    make(map[string]*scheduledTask),
		interval: options.checkInterval,
		logger:   options.logger.With(logger.Component("queue_scheduler")),
	}, nil
}

// AddTask registers handler with the manager and schedules it into a registered queue
func (s *Scheduler) AddTask(handler Handler, schedule Schedule, opts ...SchedulerTaskOption) error {
	if handler == nil {
		return ErrHandlerNil
	}
	if schedule == nil {
		return ErrInvalidSchedule
	}

	// Default task options
	taskOpts := &schedulerTaskOptions{
		queue: DefaultQueueName,
	}

	// Apply options
	for _, opt := range opts {
		opt(taskOpts)
	}

	if _, ok := s.manager.registry.get(taskOpts.queue); !ok {
		return fmt.Errorf("%w: %s", ErrQueueNotFound, taskOpts.queue)
	}

	name := handler.Name()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check if task already registered
	if _, exists := s.tasks[name]; exists {
		return ErrTaskAlreadyRegistered
	}
	if err := s.manager.RegisterHandler(handler); err != nil {
		return err
	}

	s.tasks[name] = &scheduledTask{
		name:        name,
		schedule:    schedule,
		queue:       taskOpts.queue,
		priority:    taskOpts.priority,
		maxAttempts: taskOpts.maxAttempts,
	}

	s.logger.Info("registered recurring task",
		logger.Handler(name),
		logger.Queue(taskOpts.queue),
		slog.String("schedule", schedule.String()))

	return nil
}

// Start begins the scheduler's periodic task checking
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	taskCount := len(s.tasks)
	s.mu.RUnlock()

	if taskCount == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Check immediately on start
	s.CheckTasks(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.CheckTasks(ctx)
		}
	}
}

// Run returns a function suitable for errgroup; cancellation is not an error
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
}

// CheckTasks creates every recurring task that is due and has no pending instance
func (s *Scheduler) CheckTasks(ctx context.Context) {
	// Get a snapshot of tasks
	s.mu.RLock()
	tasks := make([]*scheduledTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	s.mu.RUnlock()

	now := s.manager.now()

	for _, task := range tasks {
		if err := s.scheduleTaskIfNeeded(ctx, task, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to schedule task",
				logger.Handler(task.name),
				logger.Error(err))
		}
	}
}

// scheduleTaskIfNeeded checks if a task should be scheduled and creates it if needed
func (s *Scheduler) scheduleTaskIfNeeded(ctx context.Context, task *scheduledTask, now time.Time) error {
	s.mu.RLock()
	last := task.lastScheduledAt
	s.mu.RUnlock()

	var nextRun time.Time
	if last == nil {
		nextRun = task.schedule.Next(now)
	} else {
		nextRun = task.schedule.Next(*last)
		if nextRun.After(now) {
			return nil
		}
	}

	if existing, ok := s.manager.pendingTask(ctx, task.queue, task.name); ok {
		s.updateTaskState(task.name, existing.ScheduledAt)
		s.logger.DebugContext(ctx, "recurring task already pending",
			logger.Handler(task.name),
			slog.Time("scheduled_for", existing.ScheduledAt))
		return nil
	}

	opts := []TaskOption{WithScheduledAt(nextRun)}
	if task.priority != nil {
		opts = append(opts, WithPriority(*task.priority))
	}
	if task.maxAttempts != nil {
		opts = append(opts, WithMaxAttempts(*task.maxAttempts))
	}
	if _, err := s.manager.AddTask(ctx, task.queue, task.name, nil, opts...); err != nil {
		return fmt.Errorf("failed to create recurring task: %w", err)
	}

	s.updateTaskState(task.name, nextRun)

	s.logger.InfoContext(ctx, "created recurring task",
		logger.Handler(task.name),
		logger.Queue(task.queue),
		slog.Bool("first_run", last == nil),
		slog.Time("scheduled_for", nextRun))

	return nil
}

// updateTaskState updates the lastScheduledAt time for a task
func (s *Scheduler) updateTaskState(taskName string, scheduledAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[taskName]; ok {
		t.lastScheduledAt = &scheduledAt
	}
}

// RemoveTask removes a recurring task from the scheduler. Instances already
// enqueued are left in place.
func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, name)

	s.logger.Info("removed recurring task", logger.Handler(name))
}

// ListTasks returns the names of all registered recurring tasks, sorted
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// pendingTask returns a not yet finished instance of handler in queue.
func (m *Manager) pendingTask(ctx context.Context, queue, handler string) (*Task, bool) {
	for _, t := range m.store.active(ctx, queue) {
		if t.Handler == handler && (t.Status == TaskStatusPending || t.Status == TaskStatusProcessing) {
			return t, true
		}
	}
	return nil, false
}
