// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/atomix"
)

// Coordinator is the host's main loop thread.
//
// Host work posted with Post runs on the coordinator goroutine itself.
// Docked work runs on a breakpointable child owned by the coordinator, with
// the coordinator blocked until the child finishes or parks at a breakpoint.
// A parked child never stalls the main loop: the coordinator is released and
// later docked work bypasses the busy child on a single-use worker.
type Coordinator struct {
	thread *Thread
	log    Logger

	queue    chan coordinatorJob
	child    *Dock // owned by the Run goroutine
	running  atomix.Uint32
	stopped  chan struct{}
	stopOnce sync.Once
}

type coordinatorJob struct {
	host func(ctx context.Context)
	task *Task
	// claim is taken once: by Run before the task starts, or by a Dock
	// caller giving up on a stopped coordinator.
	claim *atomic.Bool
}

type coordinatorConfig struct {
	name      string
	queueSize int
	log       Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*coordinatorConfig)

// WithQueueSize sets the coordinator's intake buffer. Values <= 0 select the default.
func WithQueueSize(n int) CoordinatorOption {
	return func(c *coordinatorConfig) { c.queueSize = n }
}

// WithCoordinatorLogger sets the coordinator's logger.
func WithCoordinatorLogger(l Logger) CoordinatorOption {
	return func(c *coordinatorConfig) { c.log = orNoOp(l) }
}

// WithCoordinatorName names the coordinator thread.
func WithCoordinatorName(name string) CoordinatorOption {
	return func(c *coordinatorConfig) { c.name = name }
}

// NewCoordinator creates a coordinator. Call Run on the goroutine that
// should act as the host's main loop.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	cfg := coordinatorConfig{name: "coordinator", queueSize: DefaultConfig().CoordinatorQueue, log: NoOpLogger{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.queueSize <= 0 {
		cfg.queueSize = DefaultConfig().CoordinatorQueue
	}
	return &Coordinator{
		thread:  NewThread(cfg.name, AsCoordinator()),
		log:     cfg.log,
		queue:   make(chan coordinatorJob, cfg.queueSize),
		stopped: make(chan struct{}),
	}
}

// Thread returns the coordinator's thread identity.
func (c *Coordinator) Thread() *Thread { return c.thread }

// OnPath reports whether ctx runs on the coordinator or on work docked on it.
func (c *Coordinator) OnPath(ctx context.Context) bool {
	return ThreadFrom(ctx).OnCoordinatorPath()
}

// Run serves posted and docked work until ctx is done or Stop is called.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(0, 1) {
		return errors.New("linelock: coordinator already running")
	}
	cctx := WithThread(ctx, c.thread)
	c.child = c.newChild(cctx)
	defer func() {
		c.Stop()
		c.child.Close()
	}()

	c.log.Info("coordinator started", F("thread", c.thread.String()))
	for {
		select {
		case <-ctx.Done():
			c.log.Info("coordinator stopping", F("reason", ctx.Err()))
			return ctx.Err()
		case <-c.stopped:
			c.log.Info("coordinator stopping", F("reason", "stop"))
			return nil
		case job := <-c.queue:
			c.exec(cctx, job)
		}
	}
}

// Stop ends Run. Docks not yet taken by Run, and future docks, fail with
// ErrCoordinatorStopped. A docked task already started still runs to
// completion and its caller waits for it.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopped) })
}

func (c *Coordinator) isStopped() bool {
	select {
	case <-c.stopped:
		return true
	default:
		return false
	}
}

// Post queues host work for the coordinator goroutine.
func (c *Coordinator) Post(fn func(ctx context.Context)) error {
	if c.isStopped() {
		return ErrCoordinatorStopped
	}
	select {
	case <-c.stopped:
		return ErrCoordinatorStopped
	case c.queue <- coordinatorJob{host: fn}:
		return nil
	}
}

// Dock runs fn on the coordinator's path and waits for it to finish.
//
// From the coordinator thread itself fn runs in place. From code already
// docked on the coordinator Dock fails with ErrDockReentrant instead of
// deadlocking. Otherwise the caller blocks once, until fn completes, even
// if fn parks at a breakpoint on the way.
func (c *Coordinator) Dock(ctx context.Context, fn TaskFunc) (any, error) {
	th := ThreadFrom(ctx)
	if th == c.thread {
		t := newTask(fn)
		t.started.Store(true)
		t.run(ctx)
		return unpack(t.outcome)
	}
	if th.OnCoordinatorPath() {
		return nil, ErrDockReentrant
	}

	if c.isStopped() {
		return nil, ErrCoordinatorStopped
	}
	t := newTask(fn)
	job := coordinatorJob{task: t, claim: new(atomic.Bool)}
	select {
	case <-c.stopped:
		return nil, ErrCoordinatorStopped
	case c.queue <- job:
	}
	select {
	case <-t.done:
	case <-c.stopped:
		if job.claim.CompareAndSwap(false, true) {
			return nil, ErrCoordinatorStopped
		}
		// Already running, possibly parked: its caller stays blocked until it ends.
		<-t.done
	}
	return unpack(t.outcome)
}

// Join waits for t. It fails immediately with ErrJoinOnCoordinator on the
// coordinator path, where waiting could need the coordinator itself.
func (c *Coordinator) Join(ctx context.Context, t *Task) (any, error) {
	if c.OnPath(ctx) {
		return nil, ErrJoinOnCoordinator
	}
	return t.Wait(ctx)
}

func (c *Coordinator) newChild(cctx context.Context) *Dock {
	return NewDock(cctx, c.thread,
		WithDockName(c.thread.Name()+"-child"),
		WithDockLogger(c.log),
		workerOptions(onCoordinatorPath()))
}

func (c *Coordinator) exec(cctx context.Context, job coordinatorJob) {
	if job.host != nil {
		c.runHost(cctx, job.host)
		return
	}
	if !job.claim.CompareAndSwap(false, true) {
		return
	}

	var err error
	switch {
	case c.child.Idle():
		_, err = c.child.submitTask(cctx, job.task)
	default:
		c.log.Debug("coordinator child busy, docking on single-use worker")
		_, err = runSingleUse(cctx, job.task,
			WithDockName(c.thread.Name()+"-oneshot"),
			WithDockLogger(c.log),
			workerOptions(onCoordinatorPath()))
	}

	var parked *ParkedError
	switch {
	case err == nil:
	case errors.As(err, &parked):
		c.log.Info("docked task parked at a breakpoint, coordinator resumes")
	default:
		c.log.Error("docked task not started", F("error", err))
		job.task.abort(err)
	}
}

func (c *Coordinator) runHost(cctx context.Context, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("host task panicked", F("fault", faultFromPanic(r)))
		}
	}()
	fn(cctx)
}
