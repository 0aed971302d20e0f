// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock

import (
	"context"
	"sync/atomic"
)

// TaskFunc is a unit of work. ctx carries the Thread it runs on.
type TaskFunc func(ctx context.Context) (any, error)

// Task is a unit of work executed exactly once on some thread.
//
// The outcome is written before finished is set and done is closed.
// The submitter is released exactly once, either when the task finishes
// or earlier, when the executing thread parks at a breakpoint.
type Task struct {
	fn      TaskFunc
	outcome Outcome

	started  atomic.Bool
	finished atomic.Bool
	released atomic.Bool

	wake chan struct{} // closed by release
	done chan struct{} // closed when finished
}

func newTask(fn TaskFunc) *Task {
	return &Task{
		fn:   fn,
		wake: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// run executes the task body, capturing its result or fault.
func (t *Task) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.outcome = failure(faultFromPanic(r))
		}
		t.finished.Store(true)
		close(t.done)
		t.release()
	}()
	v, err := t.fn(ctx)
	if err != nil {
		t.outcome = failure(faultFromError(err))
		return
	}
	t.outcome = success(v)
}

// abort finishes a task that never started with err as its fault.
func (t *Task) abort(err error) {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	t.outcome = failure(faultFromError(err))
	t.finished.Store(true)
	close(t.done)
	t.release()
}

// release wakes the submitter unless an earlier path already did.
// It reports whether this call performed the wake.
func (t *Task) release() bool {
	if !t.released.CompareAndSwap(false, true) {
		return false
	}
	close(t.wake)
	return true
}

// Finished reports whether the task body has returned.
func (t *Task) Finished() bool { return t.finished.Load() }

// Done returns a channel closed when the task finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx is done, and returns the
// task's value or its *Fault.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return unpack(t.outcome)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Outcome returns the tagged outcome. ok is false until the task finishes.
func (t *Task) Outcome() (o Outcome, ok bool) {
	select {
	case <-t.done:
		return t.outcome, true
	default:
		return o, false
	}
}
