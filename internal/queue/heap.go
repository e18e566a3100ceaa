package queue

import "time"

// task is the internal queued form; it sits in exactly one of the two
// lane heaps at a time, so a single index field suffices.
type task struct {
	id         string
	kind       string
	payload    []byte
	priority   int
	attempt    int
	maxRetries int
	fn         HandlerFunc
	handle     *Handle
	seq        uint64
	notBefore  time.Time
	index      int
}

// readyHeap orders runnable tasks by priority (higher first), then by
// enqueue sequence so equal priorities stay FIFO.
type readyHeap []*task

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *readyHeap) Push(x interface{}) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *readyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// delayHeap orders waiting tasks by the time they become runnable.
type delayHeap []*task

func (h delayHeap) Len() int { return len(h) }

func (h delayHeap) Less(i, j int) bool {
	return h[i].notBefore.Before(h[j].notBefore)
}

func (h delayHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayHeap) Push(x interface{}) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *delayHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
