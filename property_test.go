// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock_test

import (
	"context"
	"testing"
	"testing/quick"
	"time"

	"code.hybscloud.com/linelock"
)

// TestPropertyPollFIFO proves that for any number of threads entering an
// armed site one after another, Poll delivers their activations in entry
// order, each exactly once, and each step resumes only its own thread.
func TestPropertyPollFIFO(t *testing.T) {
	propertyFIFO := func(n uint8) bool {
		count := int(n%12) + 1
		table := linelock.NewSiteTable("P", 1)
		site, _ := table.Register(0)
		table.Arm(0)

		threads := make([]*linelock.Thread, count)
		passed := make([]<-chan struct{}, count)
		for i := range count {
			threads[i] = linelock.NewThread("", linelock.Breakpointable())
			passed[i] = enterAsync(site, threads[i])
			deadline := time.Now().Add(waitTimeout)
			for site.Blocked() != i+1 {
				if time.Now().After(deadline) {
					return false
				}
				time.Sleep(time.Millisecond)
			}
		}

		for i := range count {
			a := site.Poll()
			if a == nil || a.Thread() != threads[i] {
				return false
			}
			a.Step()
			select {
			case <-passed[i]:
			case <-time.After(waitTimeout):
				return false
			}
			for j := i + 1; j < count; j++ {
				if isClosed(passed[j]) {
					return false
				}
			}
		}
		return site.Poll() == nil
	}

	if err := quick.Check(propertyFIFO, &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

// TestPropertyDockDeliversOnce proves that every docked task's outcome,
// value or fault, reaches its submitter exactly once and unchanged.
func TestPropertyDockDeliversOnce(t *testing.T) {
	skipRace(t)
	owner := linelock.NewThread("owner")
	ctx := linelock.WithThread(context.Background(), owner)
	d := linelock.NewDock(ctx, owner)
	defer d.Close()

	propertyOnce := func(values []int, fail []bool) bool {
		for i, v := range values {
			shouldFail := i < len(fail) && fail[i]
			calls := 0
			got, err := d.Submit(ctx, func(context.Context) (any, error) {
				calls++
				if shouldFail {
					return nil, linelock.Recoverable(errValue(v))
				}
				return v, nil
			})
			if calls != 1 {
				return false
			}
			if shouldFail {
				f, ok := err.(*linelock.Fault)
				if !ok || f.Kind != linelock.FaultRecoverable || f.Cause != errValue(v) {
					return false
				}
				continue
			}
			if err != nil || got != v {
				return false
			}
		}
		return true
	}

	if err := quick.Check(propertyOnce, nil); err != nil {
		t.Error(err)
	}
}

type errValue int

func (e errValue) Error() string { return "value error" }
