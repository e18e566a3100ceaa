// Package queue is an in-process task queue with named lanes, per-lane
// worker pools and rate limits, priorities, and retry with exponential
// backoff. Delivery is at-least-once: a handler that panics or returns
// a transient error sees the task again until its retries run out.
package queue

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Hetprajapati12/Assignment-solution/pkg/logging"
	"github.com/Hetprajapati12/Assignment-solution/pkg/metrics"
)

// Lane names used by the ingestion pipeline. Separate lanes keep heavy
// chunk traffic from starving file intake or cache refreshes.
const (
	LaneFileProcessing  = "file_processing"
	LaneChunkProcessing = "chunk_processing"
	LaneCacheUpdates    = "cache_updates"
)

// Task priorities range 0..PriorityMax; higher runs first within a lane.
const (
	PriorityDefault = 5
	PriorityMax     = 10
)

// Options tunes retry scheduling for the whole queue.
type Options struct {
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

const (
	DefaultRetryBackoffBase = time.Second
	DefaultRetryBackoffMax  = 5 * time.Minute
)

type handlerSpec struct {
	lane       *lane
	fn         HandlerFunc
	maxRetries int
}

type lane struct {
	name    string
	workers int
	limiter *rate.Limiter

	mu      sync.Mutex
	ready   readyHeap
	delayed delayHeap
	wake    chan struct{}
}

func (ln *lane) signal() {
	select {
	case ln.wake <- struct{}{}:
	default:
	}
}

// Queue dispatches registered task kinds onto their lanes.
type Queue struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	opts    Options

	mu       sync.Mutex
	lanes    map[string]*lane
	handlers map[string]*handlerSpec
	started  bool
	stopped  bool

	seq    atomic.Uint64
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a queue. Lanes and handlers must be added before Start.
func New(logger *logging.StructuredLogger, metricsCollector *metrics.Collector, opts Options) *Queue {
	if opts.RetryBackoffBase <= 0 {
		opts.RetryBackoffBase = DefaultRetryBackoffBase
	}
	if opts.RetryBackoffMax <= 0 {
		opts.RetryBackoffMax = DefaultRetryBackoffMax
	}

	return &Queue{
		logger:   logger,
		metrics:  metricsCollector,
		opts:     opts,
		lanes:    make(map[string]*lane),
		handlers: make(map[string]*handlerSpec),
	}
}

// AddLane declares a lane with its worker pool size and rate limit.
// ratePerMinute 0 means unlimited.
func (q *Queue) AddLane(name string, workers, ratePerMinute int) {
	if workers < 1 {
		workers = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if ratePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), 1)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.lanes[name] = &lane{
		name:    name,
		workers: workers,
		limiter: limiter,
		wake:    make(chan struct{}, 1),
	}
}

// Register binds a task kind to a lane and handler. maxRetries is the
// number of re-deliveries after the first attempt fails.
func (q *Queue) Register(kind, laneName string, maxRetries int, fn HandlerFunc) error {
	if fn == nil {
		return fmt.Errorf("nil handler for task kind %q", kind)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ln, ok := q.lanes[laneName]
	if !ok {
		return fmt.Errorf("unknown lane %q for task kind %q", laneName, kind)
	}
	if _, exists := q.handlers[kind]; exists {
		return fmt.Errorf("handler already registered for task kind %q", kind)
	}

	q.handlers[kind] = &handlerSpec{lane: ln, fn: fn, maxRetries: maxRetries}
	return nil
}

// Enqueue schedules a task of the given kind. The payload is JSON
// encoded for the handler. The returned handle resolves when the task
// succeeds, fails permanently, or exhausts its retries.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload interface{}, opts ...EnqueueOption) (*Handle, error) {
	q.mu.Lock()
	stopped := q.stopped
	spec := q.handlers[kind]
	q.mu.Unlock()

	if stopped {
		return nil, fmt.Errorf("queue is stopped")
	}
	if spec == nil {
		return nil, fmt.Errorf("no handler registered for task kind %q", kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload for %s: %w", kind, err)
	}

	o := enqueueOptions{priority: PriorityDefault}
	for _, opt := range opts {
		opt(&o)
	}

	t := &task{
		id:         uuid.NewString(),
		kind:       kind,
		payload:    data,
		priority:   o.priority,
		maxRetries: spec.maxRetries,
		fn:         spec.fn,
		seq:        q.seq.Add(1),
	}
	t.handle = newHandle(t.id)
	if o.delay > 0 {
		t.notBefore = time.Now().Add(o.delay)
	}

	q.push(spec.lane, t)

	q.logger.Debug(ctx, "[TASK_ENQUEUED] Task scheduled", logging.Fields{
		"task_id":  t.id,
		"kind":     kind,
		"lane":     spec.lane.name,
		"priority": o.priority,
	})

	return t.handle, nil
}

// Start launches the worker pools. Tasks enqueued before Start sit in
// their lanes until workers come up.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.ctx, q.cancel = context.WithCancel(context.Background())
	lanes := make([]*lane, 0, len(q.lanes))
	for _, ln := range q.lanes {
		lanes = append(lanes, ln)
	}
	q.mu.Unlock()

	total := 0
	for _, ln := range lanes {
		for i := 0; i < ln.workers; i++ {
			q.wg.Add(1)
			go q.worker(q.ctx, ln)
		}
		total += ln.workers
	}

	q.logger.Info(q.ctx, "[QUEUE_START] Task queue started", logging.Fields{
		"lanes":   len(lanes),
		"workers": total,
	})
}

// Stop cancels the workers and waits for in-flight handlers to return.
// Tasks still waiting in a lane are not executed; their handles only
// resolve through a caller's Wait context.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.stopped = true
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()

	q.logger.Info(context.Background(), "[QUEUE_STOP] Task queue stopped", logging.Fields{})
}

func (q *Queue) push(ln *lane, t *task) {
	ln.mu.Lock()
	if t.notBefore.After(time.Now()) {
		heap.Push(&ln.delayed, t)
	} else {
		heap.Push(&ln.ready, t)
	}
	ready, delayed := ln.ready.Len(), ln.delayed.Len()
	ln.mu.Unlock()

	q.metrics.UpdateQueueDepth(ln.name, ready, delayed)
	ln.signal()
}

// pop promotes due delayed tasks, then takes the highest-priority ready
// task. The second return value is how long until the next delayed task
// is due, or -1 when none are waiting.
func (q *Queue) pop(ln *lane, now time.Time) (*task, time.Duration) {
	ln.mu.Lock()
	for ln.delayed.Len() > 0 && !ln.delayed[0].notBefore.After(now) {
		heap.Push(&ln.ready, heap.Pop(&ln.delayed).(*task))
	}

	wait := time.Duration(-1)
	if ln.delayed.Len() > 0 {
		wait = ln.delayed[0].notBefore.Sub(now)
	}

	var t *task
	if ln.ready.Len() > 0 {
		t = heap.Pop(&ln.ready).(*task)
	}
	ready, delayed := ln.ready.Len(), ln.delayed.Len()
	ln.mu.Unlock()

	q.metrics.UpdateQueueDepth(ln.name, ready, delayed)

	// Cascade the wakeup so sibling workers re-check the lane.
	if t != nil && ready > 0 {
		ln.signal()
	}
	return t, wait
}

func (q *Queue) worker(ctx context.Context, ln *lane) {
	defer q.wg.Done()

	for {
		t, wait := q.pop(ln, time.Now())
		if t != nil {
			if err := ln.limiter.Wait(ctx); err != nil {
				t.handle.resolve(err)
				return
			}
			q.execute(ctx, ln, t)
			continue
		}

		if wait < 0 {
			select {
			case <-ctx.Done():
				return
			case <-ln.wake:
			}
		} else {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-ln.wake:
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

func (q *Queue) execute(ctx context.Context, ln *lane, t *task) {
	t.attempt++

	err := q.runHandler(ctx, t)
	if err == nil {
		q.metrics.RecordQueueTask(ln.name, "ok")
		t.handle.resolve(nil)
		return
	}

	if isPermanent(err) {
		q.metrics.RecordQueueTask(ln.name, "failed")
		q.logger.Warn(ctx, "[TASK_FAILED] Task failed permanently", logging.Fields{
			"task_id": t.id,
			"kind":    t.kind,
			"attempt": t.attempt,
			"error":   err.Error(),
		})
		t.handle.resolve(terminalError(err))
		return
	}

	if t.attempt > t.maxRetries {
		q.metrics.RecordQueueTask(ln.name, "failed")
		q.logger.Error(ctx, "[TASK_EXHAUSTED] Task failed after final retry", logging.Fields{
			"task_id":  t.id,
			"kind":     t.kind,
			"attempts": t.attempt,
		}, err)
		t.handle.resolve(&RetriesExhaustedError{
			Kind:     t.kind,
			TaskID:   t.id,
			Attempts: t.attempt,
			Err:      err,
		})
		return
	}

	delay := q.backoff(t.attempt)
	q.metrics.RecordQueueTask(ln.name, "retry")
	q.logger.Warn(ctx, "[TASK_RETRY] Task failed, retry scheduled", logging.Fields{
		"task_id":  t.id,
		"kind":     t.kind,
		"attempt":  t.attempt,
		"retry_in": delay.String(),
		"error":    err.Error(),
	})

	t.notBefore = time.Now().Add(delay)
	q.push(ln, t)
}

func (q *Queue) runHandler(ctx context.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			q.logger.Error(ctx, "[TASK_PANIC] Handler panicked", logging.Fields{
				"task_id": t.id,
				"kind":    t.kind,
				"attempt": t.attempt,
			}, err)
		}
	}()

	return t.fn(ctx, &Task{
		ID:         t.id,
		Kind:       t.kind,
		Payload:    t.payload,
		Attempt:    t.attempt,
		MaxRetries: t.maxRetries,
	})
}

// backoff doubles per failed attempt with a jitter of up to 25%,
// capped at RetryBackoffMax.
func (q *Queue) backoff(attempt int) time.Duration {
	d := q.opts.RetryBackoffBase << uint(attempt-1)
	if d <= 0 || d > q.opts.RetryBackoffMax {
		d = q.opts.RetryBackoffMax
	}
	d += time.Duration(rand.Int63n(int64(d)/4 + 1))
	if d > q.opts.RetryBackoffMax {
		d = q.opts.RetryBackoffMax
	}
	return d
}
