// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps loaded program names to their site tables.
//
// A table enters the registry when its program loads and leaves it when the
// program unloads, after every thread parked on it has been released.
type Registry struct {
	mu       sync.RWMutex
	programs map[string]*SiteTable
	log      Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log Logger) *Registry {
	return &Registry{programs: make(map[string]*SiteTable), log: orNoOp(log)}
}

// Load creates and registers a table of points slots for program name.
func (r *Registry) Load(name string, points int) (*SiteTable, error) {
	t := NewSiteTable(name, points, WithTableLogger(r.log))
	if err := r.Attach(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Attach registers an existing table under its own name.
func (r *Registry) Attach(t *SiteTable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.programs[t.name]; ok {
		return fmt.Errorf("%w: %s", ErrProgramLoaded, t.name)
	}
	r.programs[t.name] = t
	r.log.Info("program loaded", F("program", t.name), F("points", t.Len()))
	return nil
}

// Unload releases every activation of program name and forgets its table.
func (r *Registry) Unload(name string) error {
	r.mu.Lock()
	t, ok := r.programs[name]
	delete(r.programs, name)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchProgram, name)
	}
	t.ReleaseAll()
	r.log.Info("program unloaded", F("program", name))
	return nil
}

// Table returns the table of program name.
func (r *Registry) Table(name string) (*SiteTable, error) {
	r.mu.RLock()
	t, ok := r.programs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchProgram, name)
	}
	return t, nil
}

// Programs returns the loaded program names, sorted.
func (r *Registry) Programs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.programs))
	for name := range r.programs {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Register instruments point of program.
func (r *Registry) Register(program string, point int) error {
	t, err := r.Table(program)
	if err != nil {
		return err
	}
	if _, ok := t.Register(point); !ok {
		return fmt.Errorf("%w: %s:%d", ErrAlreadyRegistered, program, point)
	}
	return nil
}

func (r *Registry) site(program string, point int) (*Site, error) {
	t, err := r.Table(program)
	if err != nil {
		return nil, err
	}
	s := t.Site(point)
	if s == nil {
		return nil, fmt.Errorf("%w: %s:%d", ErrNoSuchPoint, program, point)
	}
	return s, nil
}

// Arm arms point of program.
func (r *Registry) Arm(program string, point int) error {
	s, err := r.site(program, point)
	if err != nil {
		return err
	}
	s.arm()
	r.log.Debug("breakpoint armed", F("program", program), F("point", point))
	return nil
}

// Disarm disarms point of program, stepping activations not yet polled.
func (r *Registry) Disarm(program string, point int) error {
	s, err := r.site(program, point)
	if err != nil {
		return err
	}
	s.Disarm()
	r.log.Debug("breakpoint disarmed", F("program", program), F("point", point))
	return nil
}

// DisarmAndRelease disarms point of program and resumes every thread parked there.
func (r *Registry) DisarmAndRelease(program string, point int) error {
	s, err := r.site(program, point)
	if err != nil {
		return err
	}
	s.DisarmAndRelease()
	r.log.Debug("breakpoint released", F("program", program), F("point", point))
	return nil
}

// ListArmed returns the armed points of program.
func (r *Registry) ListArmed(program string) ([]int, error) {
	t, err := r.Table(program)
	if err != nil {
		return nil, err
	}
	return t.Armed(), nil
}

// PollActivations returns the activations of program not yet delivered.
func (r *Registry) PollActivations(program string) ([]*Activation, error) {
	t, err := r.Table(program)
	if err != nil {
		return nil, err
	}
	return t.PollAll(), nil
}

// Step resumes the thread of a.
func (r *Registry) Step(a *Activation) {
	a.Step()
}
