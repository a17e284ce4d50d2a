package queue

import "context"

type taskCtxKey struct{}

func withTask(ctx context.Context, t Task) context.Context {
	return context.WithValue(ctx, taskCtxKey{}, t)
}

// TaskFromContext returns a copy of the task being executed. Handlers use it to
// read the attempt number, queue or task id.
func TaskFromContext(ctx context.Context) (Task, bool) {
	t, ok := ctx.Value(taskCtxKey{}).(Task)
	return t, ok
}
