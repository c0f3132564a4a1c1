package cohook

// Mutex provides mutual exclusion for tasks. Since only one task may
// wait on a descriptor direction at a time, tasks sharing a socket
// serialize their calls on it with a Mutex.
type Mutex struct {
	noCopy noCopy // Prevents copying of the mutex
	r      *Task  // Task that holds the lock
	sema   sema   // Semaphore for queuing waiting tasks
}

// Lock acquires the mutex for the given task. If the mutex is already
// locked, the task is suspended until the mutex is handed to it.
func (m *Mutex) Lock(task *Task) {
	if m.r == nil {
		m.r = task
		return
	}

	m.sema.acquire(task)
	m.r = task
}

// Unlock releases the mutex. If there are tasks waiting, the longest
// waiting one is resumed holding the lock.
func (m *Mutex) Unlock() {
	if m.sema.w.Len() == 0 {
		m.r = nil
		return
	}
	m.sema.release()
}

// WaitCount returns the number of tasks waiting to acquire the mutex.
func (m *Mutex) WaitCount() int {
	return m.sema.w.Len()
}
