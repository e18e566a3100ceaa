package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Task is the unit of work delivered to a handler. Attempt is 1-based;
// a task may be delivered more than once, so handlers must be
// idempotent.
type Task struct {
	ID         string
	Kind       string
	Payload    []byte
	Attempt    int
	MaxRetries int
}

// HandlerFunc processes one task delivery. Returning a transient error
// schedules a retry with backoff; wrap with Permanent to fail
// immediately.
type HandlerFunc func(ctx context.Context, task *Task) error

// Handle tracks one enqueued task through to its terminal outcome.
type Handle struct {
	id   string
	done chan struct{}
	once sync.Once
	err  error
}

func newHandle(id string) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

// ID returns the task id assigned at enqueue time.
func (h *Handle) ID() string {
	return h.id
}

// Done is closed when the task reaches a terminal outcome.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the terminal error. It is only meaningful once Done is
// closed; before that it returns nil.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or the context is cancelled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.err
	}
}

func (h *Handle) resolve(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// RetriesExhaustedError is the terminal error of a task whose every
// allowed attempt failed. Err holds the last attempt's error.
type RetriesExhaustedError struct {
	Kind     string
	TaskID   string
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("task %s (%s) failed after %d attempts: %v", e.TaskID, e.Kind, e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks an error as non-retryable. The queue fails the task
// immediately and the handle resolves with the original error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type transienter interface {
	IsTransient() bool
}

// IsPermanent reports whether an error will not be retried: either wrapped
// with Permanent or carrying IsTransient() == false anywhere in its chain.
// Handlers use this to run their own last-attempt cleanup before returning.
func IsPermanent(err error) bool {
	return isPermanent(err)
}

func isPermanent(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return true
	}
	var tr transienter
	if errors.As(err, &tr) {
		return !tr.IsTransient()
	}
	return false
}

func terminalError(err error) error {
	var p *permanentError
	if errors.As(err, &p) {
		return p.err
	}
	return err
}

// EnqueueOption customizes a single enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	priority int
	delay    time.Duration
}

// WithPriority sets the task priority (0-10, higher runs first).
// The default is PriorityDefault.
func WithPriority(p int) EnqueueOption {
	return func(o *enqueueOptions) {
		if p < 0 {
			p = 0
		}
		if p > PriorityMax {
			p = PriorityMax
		}
		o.priority = p
	}
}

// WithDelay holds the task back for at least d before its first
// delivery.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}
