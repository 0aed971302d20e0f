// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package script

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"code.hybscloud.com/linelock"
	lua "github.com/yuin/gopher-lua"
)

// Runtime runs instrumented Lua programs on breakpointable threads.
//
// Each run gets a fresh Lua state. A program's site table is created when
// the program loads and lives in the registry until it unloads, so the
// controller addresses breakpoints by program name and source line.
type Runtime struct {
	reg   *linelock.Registry
	coord *linelock.Coordinator
	log   linelock.Logger

	maxPoints int
	onLoad    func(name string)
	onUnload  func(name string)
	funcs     map[string]lua.LGFunction

	mu       sync.RWMutex
	programs map[string]*Program
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime's logger.
func WithLogger(l linelock.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMaxPoints caps the number of source lines a program may have.
func WithMaxPoints(n int) Option {
	return func(r *Runtime) { r.maxPoints = n }
}

// WithOnLoad calls fn after a program loads, including each reload.
func WithOnLoad(fn func(name string)) Option {
	return func(r *Runtime) { r.onLoad = fn }
}

// WithOnUnload calls fn after a program unloads for good. A reload does not
// call it.
func WithOnUnload(fn func(name string)) Option {
	return func(r *Runtime) { r.onUnload = fn }
}

// WithFunction exposes a Go function to every program as the global name.
// A panic inside fn fails the calling run with a fatal fault.
func WithFunction(name string, fn lua.LGFunction) Option {
	return func(r *Runtime) { r.funcs[name] = fn }
}

// NewRuntime creates a runtime over reg. Docking and joining go through coord.
func NewRuntime(reg *linelock.Registry, coord *linelock.Coordinator, opts ...Option) *Runtime {
	r := &Runtime{
		reg:       reg,
		coord:     coord,
		log:       linelock.NoOpLogger{},
		maxPoints: linelock.DefaultConfig().MaxPoints,
		programs:  make(map[string]*Program),
		funcs:     make(map[string]lua.LGFunction),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the program registry.
func (r *Runtime) Registry() *linelock.Registry { return r.reg }

// Load registers p and its site table.
func (r *Runtime) Load(p *Program) error {
	if p.Points() > r.maxPoints {
		return fmt.Errorf("%w: %s has %d lines, limit %d", ErrTooLarge, p.name, p.Points(), r.maxPoints)
	}
	r.mu.Lock()
	err := r.reg.Attach(p.NewTable(linelock.WithTableLogger(r.log)))
	if err == nil {
		r.programs[p.name] = p
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if r.onLoad != nil {
		r.onLoad(p.name)
	}
	return nil
}

// Unload releases every thread parked in program name and forgets it.
// Runs already started keep executing without breakpoints.
func (r *Runtime) Unload(name string) error {
	if err := r.unload(name); err != nil {
		return err
	}
	if r.onUnload != nil {
		r.onUnload(name)
	}
	return nil
}

func (r *Runtime) unload(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.reg.Unload(name); err != nil {
		return err
	}
	delete(r.programs, name)
	return nil
}

// Reload replaces the program of the same name, loading it if absent.
func (r *Runtime) Reload(p *Program) error {
	if err := r.unload(p.name); err != nil && !errors.Is(err, linelock.ErrNoSuchProgram) {
		return err
	}
	return r.Load(p)
}

// Program returns the loaded program name.
func (r *Runtime) Program(name string) (*Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", linelock.ErrNoSuchProgram, name)
	}
	return p, nil
}

// Programs returns the loaded program names, sorted.
func (r *Runtime) Programs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.programs))
	for name := range r.programs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run starts program name on a new breakpointable thread. The task's value
// is the chunk's first return value converted to Go.
func (r *Runtime) Run(ctx context.Context, name string) (*linelock.Task, error) {
	return r.Call(ctx, name, "")
}

// Call starts program name on a new breakpointable thread, then calls its
// global function fn with args. An empty fn only runs the chunk.
//
// With fn named, the chunk is first replayed to define fn and its globals.
// During the replay breakpoints do not park and task, task_dock and
// task_join return nil without acting, so top-level statements never
// spawn further tasks.
func (r *Runtime) Call(ctx context.Context, name, fn string, args ...any) (*linelock.Task, error) {
	p, table, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return r.spawn(ctx, p, table, fn, args), nil
}

func (r *Runtime) lookup(name string) (*Program, *linelock.SiteTable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", linelock.ErrNoSuchProgram, name)
	}
	table, err := r.reg.Table(name)
	if err != nil {
		return nil, nil, err
	}
	return p, table, nil
}

func (r *Runtime) spawn(ctx context.Context, p *Program, table *linelock.SiteTable, fn string, args []any) *linelock.Task {
	thread := p.name
	if fn != "" {
		thread += ":" + fn
	}
	return linelock.Go(ctx, thread, func(tctx context.Context) (any, error) {
		s := r.newSession(tctx, p, table)
		defer s.L.Close()
		if fn == "" {
			return s.exec()
		}
		return s.execFunc(fn, args)
	})
}

// session is one Lua state bound to one program run. Only the goroutine
// currently holding the run touches it: the run's own thread, or a docked
// child while that thread waits.
type session struct {
	rt     *Runtime
	prog   *Program
	table  *linelock.SiteTable
	L      *lua.LState
	bridge *Bridge

	ctx    context.Context
	broken *linelock.InvariantError

	// defining is set while a task's state replays the chunk to obtain its
	// globals. Breakpoints and task built-ins are inert meanwhile.
	defining bool
}

func (r *Runtime) newSession(ctx context.Context, p *Program, table *linelock.SiteTable) *session {
	L := lua.NewState()
	s := &session{rt: r, prog: p, table: table, L: L, bridge: NewBridge(L), ctx: ctx}

	faultMT := L.NewTypeMetatable(faultTypeName)
	L.SetField(faultMT, "__tostring", L.NewFunction(func(L *lua.LState) int {
		f, _ := L.CheckUserData(1).Value.(*linelock.Fault)
		L.Push(lua.LString(fmt.Sprint(f)))
		return 1
	}))
	taskMT := L.NewTypeMetatable(taskTypeName)
	L.SetField(taskMT, "__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString("task"))
		return 1
	}))

	for name, fn := range r.funcs {
		L.SetGlobal(name, L.NewFunction(fn))
	}
	L.SetGlobal(EnterHook, L.NewFunction(s.enter))
	L.SetGlobal("task", L.NewFunction(s.task))
	L.SetGlobal("task_dock", L.NewFunction(s.dock))
	L.SetGlobal("task_join", L.NewFunction(s.join))
	L.SetGlobal("task_completed", L.NewFunction(s.completed))
	return s
}

// exec runs the chunk and returns its first value.
func (s *session) exec() (any, error) {
	ret, err := s.call(s.L.NewFunctionFromProto(s.prog.proto))
	if err != nil {
		return nil, err
	}
	return s.bridge.ToGoValue(ret), nil
}

// execFunc replays the chunk in definition mode, then calls the global fn.
// A chunk error only matters if it left fn undefined.
func (s *session) execFunc(fn string, args []any) (any, error) {
	s.defining = true
	_, err := s.call(s.L.NewFunctionFromProto(s.prog.proto))
	s.defining = false
	if err != nil {
		s.rt.log.Debug("chunk replay stopped early", linelock.F("program", s.prog.name),
			linelock.F("function", fn), linelock.F("error", err))
	}

	callee, ok := s.L.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchFunction, s.prog.name, fn)
	}
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = s.bridge.ToLuaValue(a)
	}
	ret, err := s.call(callee, largs...)
	if err != nil {
		return nil, err
	}
	return s.bridge.ToGoValue(ret), nil
}

// call invokes fn in protected mode and returns its first result.
func (s *session) call(fn lua.LValue, args ...lua.LValue) (lua.LValue, error) {
	top := s.L.GetTop()
	err := s.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	if s.broken != nil {
		panic(s.broken)
	}
	if err != nil {
		s.L.SetTop(top)
		return nil, faultFromLua(err)
	}
	ret := s.L.Get(-1)
	s.L.SetTop(top)
	return ret, nil
}

// enter is the instrumentation hook: __linelock_enter(line).
func (s *session) enter(L *lua.LState) int {
	line := L.CheckInt(1)
	if s.defining {
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(*linelock.InvariantError); ok {
				s.broken = ie
			}
			panic(r)
		}
	}()
	s.table.Enter(s.ctx, line)
	return 0
}

// task(name, args...) runs the global function name of this program on a
// new breakpointable thread with a fresh Lua state and returns its handle.
func (s *session) task(L *lua.LState) int {
	fn := L.CheckString(1)
	if s.defining {
		L.Push(lua.LNil)
		return 1
	}
	args := make([]any, 0, L.GetTop()-1)
	for i := 2; i <= L.GetTop(); i++ {
		args = append(args, s.bridge.ToGoValue(L.Get(i)))
	}
	t := s.rt.spawn(s.ctx, s.prog, s.table, fn, args)
	ud := L.NewUserData()
	ud.Value = t
	L.SetMetatable(ud, L.GetTypeMetatable(taskTypeName))
	L.Push(ud)
	return 1
}

// task_dock(fn) runs fn on the coordinator's path and returns its result.
func (s *session) dock(L *lua.LState) int {
	fn := L.CheckFunction(1)
	if s.defining {
		L.Push(lua.LNil)
		return 1
	}
	outer := s.ctx
	v, err := s.rt.coord.Dock(outer, func(dctx context.Context) (any, error) {
		s.ctx = dctx
		defer func() { s.ctx = outer }()
		return s.call(fn)
	})
	if err != nil {
		raise(L, err)
		return 0
	}
	L.Push(s.bridge.ToLuaValue(v))
	return 1
}

// task_join(handle) waits for a task and returns its result.
func (s *session) join(L *lua.LState) int {
	if s.defining {
		L.Push(lua.LNil)
		return 1
	}
	t := s.checkTask(L)
	v, err := s.rt.coord.Join(s.ctx, t)
	if err != nil {
		raise(L, err)
		return 0
	}
	L.Push(s.bridge.ToLuaValue(v))
	return 1
}

// task_completed(handle) reports whether a task has finished.
func (s *session) completed(L *lua.LState) int {
	if s.defining {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LBool(s.checkTask(L).Finished()))
	return 1
}

func (s *session) checkTask(L *lua.LState) *linelock.Task {
	t, ok := L.CheckUserData(1).Value.(*linelock.Task)
	if !ok {
		L.ArgError(1, ErrNotTask.Error())
	}
	return t
}
