package snd

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

type workItem struct {
	fn   func() error
	next *workItem
	op   string
}

// Dispatcher is the only path by which a driver thread may cause host code to run.
//
// Enqueue is lock-free and safe from any goroutine, including driver threads
// that must not block. Drain runs queued work on the calling goroutine, which
// is by definition the host context.
type Dispatcher struct {
	head     atomic.Pointer[workItem]
	pending  atomic.Int64
	draining atomic.Bool
	wake     chan struct{}
	onError  func(error)
	log      *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithErrorHandler routes failed work items to fn instead of the logger.
// Without a handler or a dispatcher logger, failures go to the package logger,
// or to stderr when no package logger is set.
func WithErrorHandler(fn func(error)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onError = fn
	}
}

// WithDispatcherLogger sets the logger used to report failed work items.
func WithDispatcherLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.log = l
	}
}

var defaultDispatcher = NewDispatcher()

// DefaultDispatcher returns the process-wide dispatcher.
func DefaultDispatcher() *Dispatcher {
	return defaultDispatcher
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		wake: make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Enqueue appends fn to the pending queue and returns immediately.
// It never runs fn itself.
func (d *Dispatcher) Enqueue(fn func() error) {
	d.enqueue("dispatch", fn)
}

func (d *Dispatcher) enqueue(op string, fn func() error) {
	it := &workItem{fn: fn, op: op}

	d.pending.Add(1)
	for {
		old := d.head.Load()
		it.next = old
		if d.head.CompareAndSwap(old, it) {
			break
		}
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued work items.
func (d *Dispatcher) Pending() int {
	return int(d.pending.Load())
}

// Drain runs every item queued before the call, in FIFO order, and returns how
// many ran. A failing item is reported and does not stop the rest. Items queued
// while draining wait for the next call. A nested Drain from inside a work item
// returns 0.
func (d *Dispatcher) Drain() int {
	if !d.draining.CompareAndSwap(false, true) {
		return 0
	}
	defer d.draining.Store(false)

	// The list is LIFO; reverse it into enqueue order.
	var fifo *workItem
	for it := d.head.Swap(nil); it != nil; {
		next := it.next
		it.next = fifo
		fifo = it
		it = next
	}

	n := 0
	for it := fifo; it != nil; it = it.next {
		d.pending.Add(-1)
		d.run(it)
		n++
	}

	return n
}

// Serve drains the queue every time work arrives until ctx is done, then
// drains once more and returns ctx.Err().
func (d *Dispatcher) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.Drain()

			return ctx.Err()
		case <-d.wake:
			d.Drain()
		}
	}
}

func (d *Dispatcher) run(it *workItem) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()

		return it.fn()
	}()

	if err != nil {
		d.report(callbackError(it.op, err))
	}
}

func (d *Dispatcher) report(err error) {
	if d.onError != nil {
		d.onError(err)

		return
	}

	l := d.log
	if l == nil {
		l = errorLogger()
	}

	l.Error("deferred callback failed", zap.Error(err))
}
