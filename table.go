// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock

import (
	"context"
	"sync/atomic"
)

// SiteTable holds one slot per addressable program point of a loaded
// program. The slot array never grows; each slot is written at most once.
type SiteTable struct {
	name  string
	log   Logger
	sites []atomic.Pointer[Site]
}

// TableOption configures a SiteTable.
type TableOption func(*SiteTable)

// WithTableLogger sets the logger used by the table's sites.
func WithTableLogger(l Logger) TableOption {
	return func(t *SiteTable) { t.log = orNoOp(l) }
}

// NewSiteTable creates a table for program name with points slots.
func NewSiteTable(name string, points int, opts ...TableOption) *SiteTable {
	if points < 0 {
		points = 0
	}
	t := &SiteTable{
		name:  name,
		log:   NoOpLogger{},
		sites: make([]atomic.Pointer[Site], points),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the program name the table belongs to.
func (t *SiteTable) Name() string { return t.name }

// Len returns the number of addressable points.
func (t *SiteTable) Len() int { return len(t.sites) }

// Register creates the site for point. It returns false if point is out of
// range or already has a site.
func (t *SiteTable) Register(point int) (*Site, bool) {
	if point < 0 || point >= len(t.sites) {
		return nil, false
	}
	s := newSite(t, point)
	if !t.sites[point].CompareAndSwap(nil, s) {
		return nil, false
	}
	return s, true
}

// Site returns the site registered at point, or nil.
func (t *SiteTable) Site(point int) *Site {
	if point < 0 || point >= len(t.sites) {
		return nil
	}
	return t.sites[point].Load()
}

// Arm arms the site at point. It returns false if point is not instrumented.
func (t *SiteTable) Arm(point int) (*Site, bool) {
	s := t.Site(point)
	if s == nil {
		return nil, false
	}
	s.arm()
	return s, true
}

// Enter passes through the site at point. Uninstrumented points are a no-op.
func (t *SiteTable) Enter(ctx context.Context, point int) {
	if s := t.Site(point); s != nil {
		s.Enter(ctx)
	}
}

// Points returns every registered point in ascending order.
func (t *SiteTable) Points() []int {
	var out []int
	for i := range t.sites {
		if t.sites[i].Load() != nil {
			out = append(out, i)
		}
	}
	return out
}

// Armed returns every armed point in ascending order.
func (t *SiteTable) Armed() []int {
	var out []int
	for i := range t.sites {
		if s := t.sites[i].Load(); s != nil && s.Armed() {
			out = append(out, i)
		}
	}
	return out
}

// PollAll drains every site's undelivered activations, site by site in
// point order. Activations of one site keep their entry order.
func (t *SiteTable) PollAll() []*Activation {
	var out []*Activation
	for i := range t.sites {
		s := t.sites[i].Load()
		if s == nil {
			continue
		}
		for a := s.Poll(); a != nil; a = s.Poll() {
			out = append(out, a)
		}
	}
	return out
}

// ReleaseAll disarms every site and resumes every parked thread.
// Called before the table is discarded.
func (t *SiteTable) ReleaseAll() {
	for i := range t.sites {
		if s := t.sites[i].Load(); s != nil {
			s.DisarmAndRelease()
		}
	}
}
