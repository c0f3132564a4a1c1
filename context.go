package cohook

import (
	"context"
)

// taskContextKey is a unique type used as a key for storing Task
// values in a context.
type taskContextKey struct{}

// withTaskContext creates a new context with the task value stored in
// it. Hooked calls use it to find the task to suspend.
func withTaskContext(ctx context.Context, task *Task) context.Context {
	return context.WithValue(ctx, taskContextKey{}, task)
}

// TaskFromContext retrieves the Task running with ctx. Returns the
// task and a boolean indicating whether a task was found.
func TaskFromContext(ctx context.Context) (*Task, bool) {
	if ctx == nil {
		return nil, false
	}
	val, ok := ctx.Value(taskContextKey{}).(*Task)
	return val, ok
}

// MustTaskFromContext retrieves the Task running with ctx, panicking
// if not found.
func MustTaskFromContext(ctx context.Context) *Task {
	val, ok := TaskFromContext(ctx)
	if !ok {
		panic("cohook: task not found in context")
	}
	return val
}
