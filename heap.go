package cohook

import "container/heap"

// MinTimerCapacity is the smallest capacity a deadline heap is built
// with. Smaller requests are raised to it.
const MinTimerCapacity = 100000

// timerSlice implements heap.Interface. Swap keeps every Timer's slot
// in step with its position so removal never searches.
type timerSlice []*Timer

func (h timerSlice) Len() int           { return len(h) }
func (h timerSlice) Less(i, j int) bool { return h[i].expire < h[j].expire }

func (h timerSlice) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].slot = i + 1
	h[j].slot = j + 1
}

func (h *timerSlice) Push(x any) {
	t := x.(*Timer)
	*h = append(*h, t)
	t.slot = len(*h)
}

func (h *timerSlice) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	t.slot = 0
	return t
}

// deadlineHeap is a fixed-capacity min-heap of timers ordered by
// absolute deadline.
type deadlineHeap struct {
	noCopy noCopy
	items  timerSlice
	limit  int
}

func newDeadlineHeap(capacity int) *deadlineHeap {
	if capacity < MinTimerCapacity {
		capacity = MinTimerCapacity
	}
	return &deadlineHeap{
		items: make(timerSlice, 0, capacity),
		limit: capacity,
	}
}

// push inserts t ordered by t.expire. t must not already be in a heap.
func (h *deadlineHeap) push(t *Timer) error {
	if t == nil {
		return ErrNilTimer
	}
	if len(h.items) >= h.limit {
		return ErrTimerCapacity
	}
	heap.Push(&h.items, t)
	return nil
}

// remove extracts t from wherever it sits. Timers that are not in this
// heap are ignored.
func (h *deadlineHeap) remove(t *Timer) {
	if !h.contains(t) {
		return
	}
	heap.Remove(&h.items, t.slot-1)
}

func (h *deadlineHeap) contains(t *Timer) bool {
	if t == nil || t.slot <= 0 || t.slot > len(h.items) {
		return false
	}
	return h.items[t.slot-1] == t
}

func (h *deadlineHeap) min() *Timer {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

func (h *deadlineHeap) size() int {
	return len(h.items)
}

func (h *deadlineHeap) capacity() int {
	return h.limit
}
