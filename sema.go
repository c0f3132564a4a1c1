package cohook

import "github.com/gammazero/deque"

// sema implements a semaphore for task synchronization. It manages a
// count of available resources and a queue of waiting tasks.
type sema struct {
	noCopy noCopy             // Prevents copying of the semaphore
	v      uint32             // Value (available resources)
	w      deque.Deque[*Task] // Waiting tasks queue
}

// acquire takes a resource for the given task. If none is available,
// the task is suspended and added to the waiting queue.
func (s *sema) acquire(t *Task) {
	if s.v > 0 {
		s.v--
		return
	}

	s.w.PushBack(t)
	t.park()
}

// release hands a resource to the longest waiting task, which is
// queued to run on its scheduler. With no waiters the resource is
// kept.
func (s *sema) release() {
	for s.w.Len() > 0 {
		task := s.w.PopFront()
		if task.done {
			continue
		}
		task.sched.ready(task, wakeStart)
		return
	}
	s.v++
}
