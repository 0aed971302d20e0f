// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Thread is the execution context a goroutine runs under.
//
// Goroutines have no identity of their own, so a Thread travels with the
// context.Context handed to script code. Its capability flags decide what
// the core may do with the goroutine: only breakpointable threads are ever
// parked at an armed Site.
type Thread struct {
	id     uuid.UUID
	serial Serial
	name   string

	breakpointable  bool
	coordinator     bool
	coordinatorPath bool

	// onPark runs on the thread itself right before it parks at a Site.
	onPark func()

	// blocker is the activation this thread is parked on, or nil.
	// It is set before the activation is published, so a resumer
	// always observes it.
	blocker atomic.Pointer[Activation]
}

// ThreadOption configures a Thread.
type ThreadOption func(*Thread)

// Breakpointable marks the thread as safe to park at an armed Site.
func Breakpointable() ThreadOption {
	return func(t *Thread) { t.breakpointable = true }
}

// AsCoordinator marks the thread as the host's coordinator (main loop).
func AsCoordinator() ThreadOption {
	return func(t *Thread) {
		t.coordinator = true
		t.coordinatorPath = true
	}
}

// onCoordinatorPath marks a thread running work docked on the coordinator.
func onCoordinatorPath() ThreadOption {
	return func(t *Thread) { t.coordinatorPath = true }
}

// withParkHook installs the notifyParked hook.
func withParkHook(fn func()) ThreadOption {
	return func(t *Thread) { t.onPark = fn }
}

// NewThread creates a Thread. An empty name is replaced by "thread-<serial>".
func NewThread(name string, opts ...ThreadOption) *Thread {
	t := &Thread{
		id:     uuid.New(),
		serial: nextThreadSerial(),
		name:   name,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.name == "" {
		t.name = fmt.Sprintf("thread-%d", t.serial)
	}
	return t
}

// ID returns the thread's unique identity.
func (t *Thread) ID() uuid.UUID { return t.id }

// Serial returns the thread's monotonic serial.
func (t *Thread) Serial() Serial { return t.serial }

// Name returns the thread's display name.
func (t *Thread) Name() string { return t.name }

// IsBreakpointable reports whether the thread may be parked at a Site.
func (t *Thread) IsBreakpointable() bool { return t != nil && t.breakpointable }

// IsCoordinator reports whether the thread is the coordinator itself.
func (t *Thread) IsCoordinator() bool { return t != nil && t.coordinator }

// OnCoordinatorPath reports whether the thread is the coordinator or runs
// work docked on it. Waiting on the coordinator from such a thread deadlocks.
func (t *Thread) OnCoordinatorPath() bool { return t != nil && t.coordinatorPath }

// Blocker returns the activation the thread is currently parked on, or nil.
func (t *Thread) Blocker() *Activation { return t.blocker.Load() }

func (t *Thread) String() string {
	if t == nil {
		return "<no thread>"
	}
	return fmt.Sprintf("%s#%d", t.name, t.serial)
}

// notifyParked runs the park hook, if any.
func (t *Thread) notifyParked() {
	if t.onPark != nil {
		t.onPark()
	}
}

type threadKey struct{}

// WithThread returns a context carrying t.
func WithThread(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, threadKey{}, t)
}

// ThreadFrom returns the Thread carried by ctx, or nil.
func ThreadFrom(ctx context.Context) *Thread {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(threadKey{}).(*Thread)
	return t
}

// Go starts fn on a fresh breakpointable thread and returns its Task.
// The parent's context values flow into fn; the parent's Thread does not.
func Go(ctx context.Context, name string, fn TaskFunc) *Task {
	th := NewThread(name, Breakpointable())
	t := newTask(fn)
	t.started.Store(true)
	go t.run(WithThread(ctx, th))
	return t
}
