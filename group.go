package cohook

import "context"

// Group runs a set of tasks and collects the first error. The first
// failure cancels the group's context; tasks that make several socket
// calls should check it between calls.
type Group struct {
	task   *Task
	ctx    context.Context
	cancel func(error)
	wg     WaitGroup
	err    error
}

// Group returns a new Group whose tasks run on t's scheduler with a
// context derived from t's.
func (t *Task) Group() *Group {
	ctx, cancel := context.WithCancelCause(t.ctx)
	return &Group{task: t, ctx: ctx, cancel: cancel}
}

// Go starts f as a new task with the group's context.
func (g *Group) Go(f func(context.Context) error) {
	g.wg.Add(1)
	g.task.sched.goctx(g.ctx, func(ctx context.Context) {
		defer g.wg.Done()
		if err := f(ctx); err != nil && g.err == nil {
			g.err = err
			g.cancel(err)
		}
	})
}

// Wait suspends task until every task in the group has finished and
// returns the first error.
func (g *Group) Wait(task *Task) error {
	g.wg.Wait(task)
	g.cancel(g.err)
	return g.err
}
