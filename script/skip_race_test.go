// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package script_test

import "testing"

// skipRace skips tests that drive a Dock. The dock intake is an lfq SPSC
// ring that publishes a slot through an index release; the race detector
// only follows per-variable happens-before and reports the slot access.
func skipRace(tb testing.TB) {
	tb.Helper()
	tb.Skip("skip: dock intake publishes through lfq SPSC ordering")
}
