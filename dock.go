// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock

import (
	"context"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// intakeCapacity is the ring size of the dock intake. The idle handshake
// in handoff keeps at most one task in it.
const intakeCapacity = 2

// Dock hands tasks from exactly one owner thread to a dedicated
// breakpointable worker and blocks the owner until each task completes.
//
// Intake is a single-producer single-consumer lock-free queue: the owner
// is the only producer, the worker the only consumer. If the worker parks
// at a breakpoint while running a task, the owner is released early with a
// *ParkedError and the task continues independently.
type Dock struct {
	owner     *Thread
	worker    *Thread
	singleUse bool
	log       Logger

	intake  lfq.SPSC[*Task]
	wake    chan struct{}
	quit    chan struct{}
	exited  chan struct{}
	idle    atomic.Bool
	current atomic.Pointer[Task]
	once    sync.Once
}

type dockConfig struct {
	name       string
	log        Logger
	singleUse  bool
	workerOpts []ThreadOption
}

// DockOption configures a Dock.
type DockOption func(*dockConfig)

// WithDockName names the worker thread.
func WithDockName(name string) DockOption {
	return func(c *dockConfig) { c.name = name }
}

// WithDockLogger sets the dock's logger.
func WithDockLogger(l Logger) DockOption {
	return func(c *dockConfig) { c.log = orNoOp(l) }
}

func singleUse() DockOption {
	return func(c *dockConfig) { c.singleUse = true }
}

func workerOptions(opts ...ThreadOption) DockOption {
	return func(c *dockConfig) { c.workerOpts = append(c.workerOpts, opts...) }
}

// NewDock starts a breakpointable worker bound to owner. A nil owner accepts
// submissions from any single thread that is not the worker; callers must
// still never submit concurrently. ctx supplies the values the worker's
// tasks observe.
func NewDock(ctx context.Context, owner *Thread, opts ...DockOption) *Dock {
	cfg := dockConfig{log: NoOpLogger{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	d := &Dock{
		owner:     owner,
		singleUse: cfg.singleUse,
		log:       cfg.log,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	wopts := append([]ThreadOption{Breakpointable(), withParkHook(d.notifyParked)}, cfg.workerOpts...)
	d.worker = NewThread(cfg.name, wopts...)
	d.intake.Init(intakeCapacity)
	d.idle.Store(true)
	go d.loop(WithThread(ctx, d.worker))
	return d
}

// Worker returns the dock's bound worker thread.
func (d *Dock) Worker() *Thread { return d.worker }

// Owner returns the designated submitter, or nil.
func (d *Dock) Owner() *Thread { return d.owner }

// Idle reports whether no task is in flight.
func (d *Dock) Idle() bool { return d.idle.Load() }

// Exited returns a channel closed when the worker loop has returned.
func (d *Dock) Exited() <-chan struct{} { return d.exited }

// Close asks the worker to exit once its intake is empty.
// A task that is running, or parked at a breakpoint, finishes first.
func (d *Dock) Close() {
	d.once.Do(func() { close(d.quit) })
}

// loop takes the next task, runs it, signals completion and repeats.
func (d *Dock) loop(ctx context.Context) {
	defer close(d.exited)
	for {
		t, err := d.intake.Dequeue()
		if err != nil {
			select {
			case <-d.wake:
				continue
			case <-d.quit:
				return
			}
		}
		d.current.Store(t)
		t.run(ctx)
		d.current.Store(nil)
		if d.singleUse {
			return
		}
		d.idle.Store(true)
	}
}

// notifyParked is the worker's park hook: the running task's submitter is
// released now, so the task's own completion must not release it again.
func (d *Dock) notifyParked() {
	if t := d.current.Load(); t != nil && t.release() {
		d.log.Debug("submitter released by breakpoint", F("worker", d.worker.String()))
	}
}

// Submit runs fn on the dock's worker and waits for it.
//
// It returns fn's value, or its error as a *Fault with the original category.
// If the worker parks at a breakpoint before fn returns, Submit returns a
// *ParkedError whose Task yields the eventual outcome.
func (d *Dock) Submit(ctx context.Context, fn TaskFunc) (any, error) {
	return d.submitTask(ctx, newTask(fn))
}

func (d *Dock) submitTask(ctx context.Context, t *Task) (any, error) {
	th := ThreadFrom(ctx)
	if th != nil && th == d.worker {
		return nil, ErrSelfSubmit
	}
	if d.owner != nil && th != d.owner {
		return nil, ErrForeignSubmitter
	}
	if !t.started.CompareAndSwap(false, true) {
		panic(invariantf("task submitted twice"))
	}
	if err := d.handoff(t); err != nil {
		t.started.Store(false)
		return nil, err
	}

	select {
	case <-t.wake:
	case <-d.exited:
		select {
		case <-t.wake:
		default:
			return nil, ErrDockExited
		}
	}
	select {
	case <-t.done:
		return unpack(t.outcome)
	default:
		return nil, &ParkedError{Task: t}
	}
}

// handoff places t into the intake. While a previous task is in flight it
// blocks on that task's completion, never on a breakpoint signal. Backoff
// only covers the short window between a task finishing and the worker
// marking itself idle.
func (d *Dock) handoff(t *Task) error {
	var bo iox.Backoff
	for !d.idle.CompareAndSwap(true, false) {
		if prev := d.current.Load(); prev != nil {
			select {
			case <-prev.done:
			case <-d.exited:
			}
		}
		if d.isExited() {
			return ErrDockExited
		}
		bo.Wait()
	}
	if d.isExited() {
		d.idle.Store(true)
		return ErrDockExited
	}
	bo.Reset()
	for {
		err := d.intake.Enqueue(&t)
		if err == nil {
			break
		}
		if !iox.IsWouldBlock(err) {
			d.idle.Store(true)
			return err
		}
		bo.Wait()
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

func (d *Dock) isExited() bool {
	select {
	case <-d.exited:
		return true
	default:
		return false
	}
}

// RunBreakpointable runs fn on a fresh single-use breakpointable worker
// owned by the calling thread. It returns when fn finishes or when the
// worker parks at a breakpoint (*ParkedError).
func RunBreakpointable(ctx context.Context, fn TaskFunc, opts ...DockOption) (any, error) {
	return runSingleUse(ctx, newTask(fn), opts...)
}

func runSingleUse(ctx context.Context, t *Task, opts ...DockOption) (any, error) {
	d := NewDock(ctx, ThreadFrom(ctx), append(opts, singleUse())...)
	return d.submitTask(ctx, t)
}
