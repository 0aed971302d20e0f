// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package script runs Lua programs with line breakpoints.
//
// [Compile] parses a chunk with gopher-lua and inserts a call to
// [EnterHook] before the first statement of every source line, including
// lines inside function bodies. Each instrumented line owns one
// [linelock.Site], so a controller arms breakpoints by program name and
// line number.
//
// Programs see four built-ins:
//
//	task(name, ...)    run global function name on a new thread, return a handle
//	task_join(handle)  wait for a task and return its value
//	task_completed(h)  report whether a task has finished
//	task_dock(fn)      run fn on the coordinator's path and return its value
//
// Errors raised by Lua code cross task boundaries as recoverable faults.
// Go panics inside built-ins become fatal faults.
package script
