// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package linelock provides line-addressable breakpoints and synchronous task
// docking for scripting runtimes that run user code on many goroutines while
// one coordinator goroutine, the host's main loop, stays responsive.
//
// # Architecture
//
//   - Sites: A [SiteTable] holds one [Site] per instrumented program point. [Site.Enter] parks breakpointable threads while the site is armed.
//   - Activations: Each parked thread is an [Activation], delivered in entry order by [Site.Poll] and resumed exactly once by [Activation.Step].
//   - Threads: A [Thread] travels in the [context.Context]. Only breakpointable threads are ever parked; others get a logged diagnostic.
//   - Docking: A [Dock] hands tasks from one owner to a breakpointable worker through a lock-free SPSC intake ([code.hybscloud.com/lfq]).
//   - Coordinator: [Coordinator.Dock] and [Coordinator.Join] are the task_dock and task_join built-ins of the script layer.
//   - Faults: Task outcomes cross goroutines as [code.hybscloud.com/kont.Either] values carrying a categorized [*Fault].
//
// # Parking
//
// Parking is unbounded. A controller that never steps an activation, or a
// worker that never drains its intake, leaves the waiter blocked. Breaking
// an exactly-once invariant panics with [*InvariantError].
//
// # Example
//
//	reg := linelock.NewRegistry(nil)
//	table, _ := reg.Load("P", 16)
//	site, _ := table.Register(8)
//	_ = reg.Arm("P", 8)
//
//	worker := linelock.NewThread("A", linelock.Breakpointable())
//	go site.Enter(linelock.WithThread(ctx, worker)) // parks
//
//	acts, _ := reg.PollActivations("P") // [(8, A)] once A has parked
//	for _, a := range acts {
//		a.Step()
//	}
package linelock
