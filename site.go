// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Site is a single instrumented program point.
//
// Worker threads pass through a Site with Enter. While the Site is armed,
// breakpointable threads park there, each recorded as an Activation that
// the controller polls in entry order and resumes one at a time.
type Site struct {
	point int
	table *SiteTable
	log   Logger

	// armed is sequentially consistent: Enter stores to the queue then loads
	// armed, Disarm stores armed then loads the queue.
	armed atomic.Bool

	// queue holds activations not yet delivered by Poll.
	queue activationQueue
	// blocked holds every activation whose thread has not been resumed.
	// Keys are *Activation; LoadAndDelete makes removal at-most-once.
	blocked sync.Map
}

func newSite(table *SiteTable, point int) *Site {
	s := &Site{point: point, table: table, log: table.log}
	s.queue.init()
	return s
}

// Point returns the program-point index of the site.
func (s *Site) Point() int { return s.point }

// Table returns the owning site table.
func (s *Site) Table() *SiteTable { return s.table }

// Armed reports whether passing breakpointable threads park here.
func (s *Site) Armed() bool { return s.armed.Load() }

func (s *Site) arm() {
	s.armed.Store(true)
}

// Enter passes the calling thread through the site.
//
// Disarmed sites return immediately. Armed sites park the thread carried by
// ctx until its activation is stepped, unless the thread is not
// breakpointable, in which case a diagnostic is logged and Enter returns.
// Parking ignores ctx cancellation.
func (s *Site) Enter(ctx context.Context) {
	if !s.armed.Load() {
		return
	}
	th := ThreadFrom(ctx)
	if !th.IsBreakpointable() {
		s.log.Warn("breakpoint not applied: unsupported thread",
			F("program", s.table.name), F("point", s.point), F("thread", th.String()),
			F("stack", string(debug.Stack())))
		return
	}

	a := newActivation(s, th)
	if !th.blocker.CompareAndSwap(nil, a) {
		panic(invariantf("thread %s entered point %d while parked on point %d",
			th, s.point, th.blocker.Load().Point()))
	}
	s.blocked.Store(a, struct{}{})
	s.queue.push(a)

	// Disarm may have drained the queue between our armed check and the push,
	// possibly stopping at our unlinked node. Drain again on its behalf.
	if !s.armed.Load() {
		s.drain()
	}

	if !a.resumed.Load() {
		s.log.Debug("thread parked", F("program", s.table.name), F("point", s.point),
			F("thread", th.String()), F("activation", a.serial))
		th.notifyParked()
		<-a.release
	}
	th.blocker.CompareAndSwap(a, nil)
}

// Poll removes and returns the oldest activation not yet delivered, or nil.
// Each activation is delivered at most once.
func (s *Site) Poll() *Activation {
	return s.queue.pop()
}

// Disarm stops parking new threads and steps every activation that has not
// been delivered by Poll. Activations already polled stay parked until the
// controller steps them.
func (s *Site) Disarm() {
	s.armed.Store(false)
	s.drain()
}

func (s *Site) drain() {
	for a := s.Poll(); a != nil; a = s.Poll() {
		a.Step()
	}
}

// DisarmAndRelease disarms the site and steps every activation still
// blocking a thread, polled or not. No thread is left parked here afterward.
func (s *Site) DisarmAndRelease() {
	s.Disarm()
	s.blocked.Range(func(k, _ any) bool {
		k.(*Activation).Step()
		return true
	})
}

// Blocked returns the number of threads currently parked at the site.
func (s *Site) Blocked() int {
	n := 0
	s.blocked.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
