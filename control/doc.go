// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package control is the operator surface over a [linelock.Registry].
//
// A [Controller] remembers, per program, the breakpoints the operator
// enabled and the activations already picked up from the sites. Stepping
// is by source line: every picked-up activation on that line resumes.
// A [Shell] drives a Controller with one text command per line.
package control
