// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock

import (
	"fmt"
	"sync/atomic"
)

// Activation records one thread parked (or previously parked) at a Site.
// Its only mutation is the single false→true transition made by Step.
type Activation struct {
	site    *Site
	thread  *Thread
	serial  Serial
	resumed atomic.Bool
	release chan struct{}
}

func newActivation(s *Site, th *Thread) *Activation {
	return &Activation{
		site:    s,
		thread:  th,
		serial:  nextActivationSerial(),
		release: make(chan struct{}),
	}
}

// Site returns the site the thread parked at.
func (a *Activation) Site() *Site { return a.site }

// Point returns the program-point index of the owning site.
func (a *Activation) Point() int { return a.site.point }

// Thread returns the parked thread.
func (a *Activation) Thread() *Thread { return a.thread }

// Serial returns the activation's monotonic serial.
func (a *Activation) Serial() Serial { return a.serial }

// Stepped reports whether the activation has been resumed.
func (a *Activation) Stepped() bool { return a.resumed.Load() }

// Step resumes the parked thread. Only the first call has an effect.
//
// Step panics with *InvariantError if the activation is no longer in its
// site's blocked set or its thread is parked on a different activation:
// both mean a resume raced with another resume path.
func (a *Activation) Step() {
	if !a.resumed.CompareAndSwap(false, true) {
		return
	}
	if _, ok := a.site.blocked.LoadAndDelete(a); !ok {
		panic(invariantf("activation %d at point %d: almost released a thread that is not parked here",
			a.serial, a.site.point))
	}
	if b := a.thread.blocker.Load(); b != a {
		panic(invariantf("activation %d at point %d: thread %s is not blocked by this activation",
			a.serial, a.site.point, a.thread))
	}
	close(a.release)
	a.site.log.Debug("activation stepped", F("program", a.site.table.name),
		F("point", a.site.point), F("thread", a.thread.String()), F("activation", a.serial))
}

func (a *Activation) String() string {
	return fmt.Sprintf("activation %d in %s at point %d on %s", a.serial, a.site.table.name, a.site.point, a.thread)
}
