// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"code.hybscloud.com/linelock"
)

var (
	// ErrNotEnabled is returned when removing a breakpoint that was never added.
	ErrNotEnabled = errors.New("no breakpoint on that line")

	// ErrUsage is returned for a malformed command.
	ErrUsage = errors.New("usage")
)

// Breakpoint is an enabled breakpoint and the picked-up activations parked on it.
type Breakpoint struct {
	Line   int
	Parked []*linelock.Activation
}

// Controller keeps the operator's view of each program: the breakpoints
// it enabled and the activations it has picked up but not yet stepped.
type Controller struct {
	reg *linelock.Registry
	log linelock.Logger

	mu       sync.Mutex
	enabled  map[string][]int
	pickedUp map[string][]*linelock.Activation
}

// New creates a controller over reg.
func New(reg *linelock.Registry, log linelock.Logger) *Controller {
	if log == nil {
		log = linelock.NoOpLogger{}
	}
	return &Controller{
		reg:      reg,
		log:      log,
		enabled:  make(map[string][]int),
		pickedUp: make(map[string][]*linelock.Activation),
	}
}

// Add arms line of program.
func (c *Controller) Add(program string, line int) error {
	if err := c.reg.Arm(program, line); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.enabled[program], line) {
		c.enabled[program] = append(c.enabled[program], line)
		slices.Sort(c.enabled[program])
	}
	c.log.Info("breakpoint added", linelock.F("program", program), linelock.F("line", line))
	return nil
}

// Remove disarms line of program. Threads parked there that were not yet
// picked up resume; picked-up ones wait for a step.
func (c *Controller) Remove(program string, line int) error {
	c.mu.Lock()
	lines := c.enabled[program]
	i := slices.Index(lines, line)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s:%d", ErrNotEnabled, program, line)
	}
	c.enabled[program] = slices.Delete(lines, i, i+1)
	c.mu.Unlock()

	if err := c.reg.Disarm(program, line); err != nil {
		return err
	}
	c.log.Info("breakpoint removed", linelock.F("program", program), linelock.F("line", line))
	return nil
}

// List returns the enabled breakpoints of program with their picked-up activations.
func (c *Controller) List(program string) []Breakpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Breakpoint, 0, len(c.enabled[program]))
	for _, line := range c.enabled[program] {
		bp := Breakpoint{Line: line}
		for _, a := range c.pickedUp[program] {
			if a.Point() == line {
				bp.Parked = append(bp.Parked, a)
			}
		}
		out = append(out, bp)
	}
	return out
}

// Parked picks up new activations of program and returns every picked-up
// activation still parked, oldest first.
func (c *Controller) Parked(program string) ([]*linelock.Activation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.update(program); err != nil {
		return nil, err
	}
	return slices.Clone(c.pickedUp[program]), nil
}

// StepLine picks up new activations of program, then steps every picked-up
// activation on line. It returns how many it stepped.
func (c *Controller) StepLine(program string, line int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.update(program); err != nil {
		return 0, err
	}
	n := 0
	c.pickedUp[program] = slices.DeleteFunc(c.pickedUp[program], func(a *linelock.Activation) bool {
		if a.Point() != line {
			return false
		}
		a.Step()
		n++
		return true
	})
	return n, nil
}

// Release disarms every breakpoint of program and resumes every thread
// parked in it.
func (c *Controller) Release(program string) error {
	t, err := c.reg.Table(program)
	if err != nil {
		return err
	}
	t.ReleaseAll()
	c.Forget(program)
	return nil
}

// Forget drops the controller state of program, e.g. after it unloads.
func (c *Controller) Forget(program string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.enabled, program)
	delete(c.pickedUp, program)
}

// Rearm re-arms the enabled breakpoints of program after it loads again.
// Lines the new program does not instrument are dropped. Activations picked
// up from the old program were released by its unload and are forgotten.
func (c *Controller) Rearm(program string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pickedUp, program)
	lines := c.enabled[program]
	if len(lines) == 0 {
		return
	}
	kept := lines[:0]
	for _, line := range lines {
		if err := c.reg.Arm(program, line); err != nil {
			c.log.Info("breakpoint dropped on reload", linelock.F("program", program),
				linelock.F("line", line), linelock.F("error", err))
			continue
		}
		kept = append(kept, line)
	}
	if len(kept) == 0 {
		delete(c.enabled, program)
		return
	}
	c.enabled[program] = kept
}

// update polls program's sites and drops activations resumed elsewhere.
func (c *Controller) update(program string) error {
	acts, err := c.reg.PollActivations(program)
	if err != nil {
		return err
	}
	picked := append(c.pickedUp[program], acts...)
	c.pickedUp[program] = slices.DeleteFunc(picked, (*linelock.Activation).Stepped)
	return nil
}
