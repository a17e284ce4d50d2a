// Package queue provides a multi-queue task manager persisted through the tiered
// cache engine of package cache.
//
// The package is organised around four components:
//
//   - Manager: queue registry, handler table, task store and dispatcher
//   - Runner: drives Manager.DispatchAll on a fixed tick, optionally with a faster persistent loop
//   - Scheduler: converts Schedule definitions into tasks at runtime
//   - Definitions: YAML queue declarations loaded at startup
//
// # Queues
//
// A queue is a named lane of work with its own priority, worker budget, batch size,
// timeout, attempt budget, retry policy and dead-letter switch. Queues are registered
// once and replaced wholesale on re-registration, which also zeroes their statistics.
//
// # Tasks
//
// A task is a handler name plus an opaque JSON payload. Records live under
// queue_task_<queue>_<id> while active and queue_completed_<queue>_<id> for a short
// window after success. Active records expire after a retention that depends on the
// task priority plus any scheduling delay.
//
// # Dispatch
//
// A dispatch pass takes the lease queue_lock_<queue>, loads the due pending tasks,
// orders them by priority (then scheduled time, creation time and id), and runs at
// most min(queue workers, global workers) * tasks per worker of them in order.
// Failures are retried with exponential backoff until the attempt budget is spent,
// after which the task moves to dead_letter_<queue> or stays failed:
//
//	pending -> processing -> completed
//	                      -> pending (retry)
//	                      -> dead_letter | failed
//	failed | dead_letter  -> pending (RetryTask, RequeueDeadLetter)
//
// Any other status change is rejected with a *TransitionError.
//
// Timeouts are soft. The handler context carries the deadline, and an execution
// that returns after it is recorded as ErrTaskTimeout, but a handler that ignores
// its context blocks the pass until it returns.
//
// # Usage
//
//	c, _ := cache.New(cache.NewMemoryBackend(10000))
//	m, _ := queue.NewManager(c)
//
//	_ = m.RegisterQueue("emails", queue.WithQueuePriority(queue.PriorityHigh))
//	_ = m.RegisterHandler(queue.NewNamedHandler("send_email",
//	    func(ctx context.Context, p SendEmail) error {
//	        return mailer.Send(ctx, p.To)
//	    }))
//
//	id, err := m.AddTask(ctx, "emails", "send_email", SendEmail{To: "a@b.c"},
//	    queue.WithDelay(time.Minute))
//
//	runner, _ := queue.NewRunner(m, queue.WithTickInterval(10*time.Second))
//	g.Go(runner.Run(ctx))
package queue
