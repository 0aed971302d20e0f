// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock_test

import (
	"context"
	"testing"
	"time"

	"code.hybscloud.com/linelock"
)

const waitTimeout = 5 * time.Second

// waitFor polls cond until it holds or the test times out.
func waitFor(tb testing.TB, what string, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			tb.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// enterAsync passes th through site on a new goroutine. The returned
// channel is closed once Enter returns.
func enterAsync(site *linelock.Site, th *linelock.Thread) <-chan struct{} {
	passed := make(chan struct{})
	ctx := linelock.WithThread(context.Background(), th)
	go func() {
		site.Enter(ctx)
		close(passed)
	}()
	return passed
}

// isClosed reports whether ch is closed, without blocking.
func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// mustPass fails the test if ch does not close in time.
func mustPass(tb testing.TB, what string, ch <-chan struct{}) {
	tb.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		tb.Fatalf("timed out waiting for %s", what)
	}
}

// armedSite loads program "P" with 16 points and arms point 8.
func armedSite(tb testing.TB) (*linelock.Registry, *linelock.Site) {
	tb.Helper()
	reg := linelock.NewRegistry(nil)
	table, err := reg.Load("P", 16)
	if err != nil {
		tb.Fatalf("Load: %v", err)
	}
	site, ok := table.Register(8)
	if !ok {
		tb.Fatalf("Register(8) failed")
	}
	if err := reg.Arm("P", 8); err != nil {
		tb.Fatalf("Arm: %v", err)
	}
	return reg, site
}

// pollOne waits until site delivers an activation.
func pollOne(tb testing.TB, site *linelock.Site) *linelock.Activation {
	tb.Helper()
	var a *linelock.Activation
	waitFor(tb, "an activation", func() bool {
		a = site.Poll()
		return a != nil
	})
	return a
}
