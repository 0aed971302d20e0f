// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock

import (
	"errors"
	"fmt"

	"code.hybscloud.com/kont"
)

// Usage faults. They fail the call, never the process.
var (
	// ErrJoinOnCoordinator is returned when a join is attempted from the coordinator path.
	ErrJoinOnCoordinator = errors.New("linelock: join cannot be called from the coordinator thread")

	// ErrDockReentrant is returned when docked code tries to dock on the coordinator again.
	ErrDockReentrant = errors.New("linelock: dock called from code already docked on the coordinator")

	// ErrDockExited is returned when submitting to a dock whose worker has exited.
	ErrDockExited = errors.New("linelock: dock worker has exited")

	// ErrForeignSubmitter is returned when a thread other than the dock's owner submits.
	ErrForeignSubmitter = errors.New("linelock: only the dock owner may submit")

	// ErrSelfSubmit is returned when the dock's own worker submits to it.
	ErrSelfSubmit = errors.New("linelock: dock worker cannot submit to itself")

	// ErrAlreadyRegistered is returned when a point already has a site.
	ErrAlreadyRegistered = errors.New("linelock: point already registered")

	// ErrNoSuchPoint is returned when a point has no registered site.
	ErrNoSuchPoint = errors.New("linelock: no such point")

	// ErrNoSuchProgram is returned when a program name is not loaded.
	ErrNoSuchProgram = errors.New("linelock: no such program")

	// ErrProgramLoaded is returned when loading a name that is already loaded.
	ErrProgramLoaded = errors.New("linelock: program already loaded")

	// ErrCoordinatorStopped is returned when docking on a coordinator that is not running.
	ErrCoordinatorStopped = errors.New("linelock: coordinator stopped")
)

// FaultKind is the category of a propagated execution fault.
type FaultKind uint8

const (
	// FaultRecoverable is a language-level error the script may handle.
	FaultRecoverable FaultKind = iota + 1
	// FaultFatal is an unrecoverable error (a panic carrying an error).
	FaultFatal
	// FaultPropagation is used when the original category could not be
	// reconstructed across the thread boundary. Only the message survives.
	FaultPropagation
)

func (k FaultKind) String() string {
	switch k {
	case FaultRecoverable:
		return "recoverable"
	case FaultFatal:
		return "fatal"
	case FaultPropagation:
		return "propagation"
	default:
		return fmt.Sprintf("FaultKind(%d)", uint8(k))
	}
}

// Fault is an execution fault captured on one thread and re-raised on another.
type Fault struct {
	Kind    FaultKind
	Message string
	Cause   error
}

func (f *Fault) Error() string {
	return f.Kind.String() + ": " + f.Message
}

func (f *Fault) Unwrap() error { return f.Cause }

// Recoverable wraps err as a recoverable fault.
func Recoverable(err error) *Fault {
	return &Fault{Kind: FaultRecoverable, Message: err.Error(), Cause: err}
}

// faultFromError keeps an existing *Fault as-is, otherwise wraps err as recoverable.
func faultFromError(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return Recoverable(err)
}

// faultFromPanic maps a recovered panic value to a fault. Panics carrying an
// error are fatal; any other value loses its category.
func faultFromPanic(r any) *Fault {
	switch v := r.(type) {
	case *Fault:
		return v
	case *InvariantError:
		// never swallowed
		panic(v)
	case error:
		return &Fault{Kind: FaultFatal, Message: v.Error(), Cause: v}
	default:
		return &Fault{Kind: FaultPropagation, Message: fmt.Sprintf("internal stack trace is gone: %v", v)}
	}
}

// Outcome is the tagged result of a task: Left carries the fault, Right the value.
type Outcome = kont.Either[*Fault, any]

func success(v any) Outcome { return kont.Right[*Fault, any](v) }

func failure(f *Fault) Outcome { return kont.Left[*Fault, any](f) }

// unpack converts an Outcome into Go's (value, error) shape.
func unpack(o Outcome) (any, error) {
	if f, ok := o.GetLeft(); ok {
		return nil, f
	}
	v, _ := o.GetRight()
	return v, nil
}

// InvariantError reports a broken concurrency invariant. It is raised with
// panic and must never be recovered by callers of this package.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "linelock: invariant violated: " + e.Msg }

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// ParkedError is returned by Dock.Submit when the worker parked at a
// breakpoint before the task finished. The task keeps running independently;
// Task.Wait retrieves its eventual outcome.
type ParkedError struct {
	Task *Task
}

func (e *ParkedError) Error() string { return "linelock: docked task parked at a breakpoint" }
