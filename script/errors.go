// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package script

import (
	"errors"

	"code.hybscloud.com/linelock"
	lua "github.com/yuin/gopher-lua"
)

// Errors for program loading and script built-ins.
var (
	// ErrSyntax is returned when a program fails to parse or compile.
	ErrSyntax = errors.New("lua syntax error")

	// ErrNoSuchFunction is returned when a task names a global that is not a function.
	ErrNoSuchFunction = errors.New("lua global is not a function")

	// ErrNotTask is raised when task_join receives something other than a task handle.
	ErrNotTask = errors.New("task handle expected")

	// ErrTooLarge is returned when a program has more lines than the runtime allows.
	ErrTooLarge = errors.New("lua program too large")
)

const (
	faultTypeName = "linelock.fault"
	taskTypeName  = "linelock.task"
)

// faultFromLua maps a gopher-lua call error to a fault. Errors raised by
// Lua code are recoverable; Go panics inside built-ins are fatal. A fault
// re-raised by a nested task keeps its original category.
func faultFromLua(err error) *linelock.Fault {
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return linelock.Recoverable(err)
	}
	if ud, ok := apiErr.Object.(*lua.LUserData); ok {
		if f, ok := ud.Value.(*linelock.Fault); ok {
			return f
		}
	}
	msg := err.Error()
	if apiErr.Object != nil {
		msg = apiErr.Object.String()
	}
	if apiErr.Type == lua.ApiErrorPanic {
		return &linelock.Fault{Kind: linelock.FaultFatal, Message: msg, Cause: err}
	}
	return &linelock.Fault{Kind: linelock.FaultRecoverable, Message: msg, Cause: err}
}

// raise rethrows err inside the calling Lua state. Recoverable faults and
// usage errors surface as plain Lua error strings; other faults travel as
// userdata so an outer task boundary can restore their category.
func raise(L *lua.LState, err error) {
	var f *linelock.Fault
	if errors.As(err, &f) {
		if f.Kind == linelock.FaultRecoverable {
			L.RaiseError("%s", f.Message)
			return
		}
		ud := L.NewUserData()
		ud.Value = f
		L.SetMetatable(ud, L.GetTypeMetatable(faultTypeName))
		L.Error(ud, 1)
		return
	}
	L.RaiseError("%s", err.Error())
}
