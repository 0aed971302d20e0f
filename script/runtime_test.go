// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package script_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"code.hybscloud.com/linelock"
	"code.hybscloud.com/linelock/script"
	lua "github.com/yuin/gopher-lua"
)

func TestRunReturnsValue(t *testing.T) {
	rt := newRuntime(t)
	mustLoad(t, rt, "P", "local x = 1\nreturn x + 41\n")
	v, err := wait(t, mustRun(t, rt, "P"))
	if err != nil || v != int64(42) {
		t.Fatalf("got (%v, %v), want (42, nil)", v, err)
	}
}

func TestRunScriptError(t *testing.T) {
	rt := newRuntime(t)
	mustLoad(t, rt, "P", "error('boom')\n")
	_, err := wait(t, mustRun(t, rt, "P"))
	var f *linelock.Fault
	if !errors.As(err, &f) || f.Kind != linelock.FaultRecoverable || !strings.Contains(f.Message, "boom") {
		t.Fatalf("got %v, want recoverable fault boom", err)
	}
}

func TestRunUnknownProgram(t *testing.T) {
	rt := newRuntime(t)
	if _, err := rt.Run(context.Background(), "nope"); !errors.Is(err, linelock.ErrNoSuchProgram) {
		t.Fatalf("got %v, want ErrNoSuchProgram", err)
	}
}

func TestCallNamedFunction(t *testing.T) {
	rt := newRuntime(t)
	mustLoad(t, rt, "P", "function double(n) return n * 2 end\n")
	task, err := rt.Call(context.Background(), "P", "double", 21)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v, err := wait(t, task); err != nil || v != int64(42) {
		t.Fatalf("got (%v, %v), want (42, nil)", v, err)
	}

	task, _ = rt.Call(context.Background(), "P", "missing")
	if _, err := wait(t, task); !errors.Is(err, script.ErrNoSuchFunction) {
		t.Fatalf("got %v, want ErrNoSuchFunction", err)
	}
}

func TestBreakpointOnLine(t *testing.T) {
	rt := newRuntime(t)
	mustLoad(t, rt, "P", "x = 1\nx = x + 1\nreturn x\n")
	if err := rt.Registry().Arm("P", 2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	task := mustRun(t, rt, "P")

	a := pollParked(t, rt, "P")
	if a.Point() != 2 {
		t.Fatalf("parked on line %d, want 2", a.Point())
	}
	if task.Finished() {
		t.Fatal("script finished while parked")
	}
	a.Step()
	if v, err := wait(t, task); err != nil || v != int64(2) {
		t.Fatalf("got (%v, %v), want (2, nil)", v, err)
	}
}

func TestBreakpointInsideFunction(t *testing.T) {
	rt := newRuntime(t)
	mustLoad(t, rt, "P", "local function f(n)\n  return n + 1\nend\nreturn f(f(0))\n")
	rt.Registry().Arm("P", 2)
	task := mustRun(t, rt, "P")

	for range 2 {
		a := pollParked(t, rt, "P")
		if a.Point() != 2 {
			t.Fatalf("parked on line %d, want 2", a.Point())
		}
		a.Step()
	}
	if v, err := wait(t, task); err != nil || v != int64(2) {
		t.Fatalf("got (%v, %v), want (2, nil)", v, err)
	}
}

func TestTaskJoin(t *testing.T) {
	rt := newRuntime(t)
	mustLoad(t, rt, "P", `function work(n, t)
  return n * 2 + #t
end
local h = task('work', 20, {1, 2})
local v = task_join(h)
return {v, task_completed(h)}
`)
	v, err := wait(t, mustRun(t, rt, "P"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, ok := v.([]any)
	if !ok || len(got) != 2 || got[0] != int64(42) || got[1] != true {
		t.Fatalf("got %v, want [42 true]", v)
	}
}

func TestTaskJoinPropagatesError(t *testing.T) {
	rt := newRuntime(t)
	mustLoad(t, rt, "P", `function bad() error('inner') end
local ok, err = pcall(task_join, task('bad'))
return err
`)
	v, err := wait(t, mustRun(t, rt, "P"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s, _ := v.(string); !strings.Contains(s, "inner") {
		t.Fatalf("got %v, want an error mentioning inner", v)
	}
}

func TestTaskReplaysChunkWithoutSpawning(t *testing.T) {
	rt := newRuntime(t)
	mustLoad(t, rt, "P", `function work(n) return n * 2 end
local h = task('work', 21)
return task_join(h)
`)
	rt.Registry().Arm("P", 2)
	task := mustRun(t, rt, "P")

	a := pollParked(t, rt, "P")
	if a.Thread().Name() != "P" {
		t.Fatalf("parked thread %s, want the root run", a.Thread())
	}
	a.Step()
	if v, err := wait(t, task); err != nil || v != int64(42) {
		t.Fatalf("got (%v, %v), want (42, nil)", v, err)
	}
	acts, _ := rt.Registry().PollActivations("P")
	if len(acts) != 0 {
		t.Fatalf("got %d activations after the run, want 0", len(acts))
	}
}

func TestTaskToleratesChunkErrorAfterDefinition(t *testing.T) {
	rt := newRuntime(t)
	mustLoad(t, rt, "P", `function work() return 'ok' end
local v = task_join(task('work'))
return v .. '!'
`)
	if v, err := wait(t, mustRun(t, rt, "P")); err != nil || v != "ok!" {
		t.Fatalf("got (%v, %v), want (ok!, nil)", v, err)
	}
}

func TestTaskDock(t *testing.T) {
	skipRace(t)
	rt := newRuntime(t)
	mustLoad(t, rt, "P", "local base = 5\nreturn task_dock(function() return base + 2 end)\n")
	if v, err := wait(t, mustRun(t, rt, "P")); err != nil || v != int64(7) {
		t.Fatalf("got (%v, %v), want (7, nil)", v, err)
	}
}

func TestTaskDockRecoverableError(t *testing.T) {
	skipRace(t)
	rt := newRuntime(t)
	mustLoad(t, rt, "P", `local ok, err = pcall(task_dock, function() error('x') end)
return {ok, err}
`)
	v, err := wait(t, mustRun(t, rt, "P"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := v.([]any)
	if len(got) != 2 || got[0] != false {
		t.Fatalf("got %v, want [false <message>]", v)
	}
	if s, _ := got[1].(string); !strings.Contains(s, "x") {
		t.Fatalf("message %v does not mention x", got[1])
	}
}

func TestTaskDockGoPanicIsFatal(t *testing.T) {
	skipRace(t)
	coord := linelock.NewCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		coord.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	rt := script.NewRuntime(linelock.NewRegistry(nil), coord,
		script.WithFunction("explode", func(*lua.LState) int { panic("host bug") }))
	mustLoad(t, rt, "P", `local v = task_dock(function()
  return explode()
end)
return v
`)
	_, err := wait(t, mustRun(t, rt, "P"))
	var f *linelock.Fault
	if !errors.As(err, &f) || f.Kind != linelock.FaultFatal || !strings.Contains(f.Message, "host bug") {
		t.Fatalf("got %v, want a fatal fault mentioning host bug", err)
	}
}

func TestTaskJoinFromDockedCode(t *testing.T) {
	skipRace(t)
	rt := newRuntime(t)
	mustLoad(t, rt, "P", `function f() return 1 end
return task_dock(function() return task_join(task('f')) end)
`)
	_, err := wait(t, mustRun(t, rt, "P"))
	var f *linelock.Fault
	if !errors.As(err, &f) || !strings.Contains(f.Message, linelock.ErrJoinOnCoordinator.Error()) {
		t.Fatalf("got %v, want a fault carrying ErrJoinOnCoordinator", err)
	}
}

func TestNestedTaskDock(t *testing.T) {
	skipRace(t)
	rt := newRuntime(t)
	mustLoad(t, rt, "P", "return task_dock(function() return task_dock(function() return 1 end) end)\n")
	_, err := wait(t, mustRun(t, rt, "P"))
	var f *linelock.Fault
	if !errors.As(err, &f) || !strings.Contains(f.Message, linelock.ErrDockReentrant.Error()) {
		t.Fatalf("got %v, want a fault carrying ErrDockReentrant", err)
	}
}

func TestBreakpointInsideDock(t *testing.T) {
	skipRace(t)
	rt := newRuntime(t)
	mustLoad(t, rt, "P", `local v = task_dock(function()
  return 42
end)
return v
`)
	rt.Registry().Arm("P", 2)
	task := mustRun(t, rt, "P")

	a := pollParked(t, rt, "P")
	if !a.Thread().OnCoordinatorPath() {
		t.Fatalf("parked thread %s is not on the coordinator path", a.Thread())
	}
	if task.Finished() {
		t.Fatal("script finished while its docked code was parked")
	}
	a.Step()
	if v, err := wait(t, task); err != nil || v != int64(42) {
		t.Fatalf("got (%v, %v), want (42, nil)", v, err)
	}
}

func TestUnloadReleasesParkedRun(t *testing.T) {
	rt := newRuntime(t)
	mustLoad(t, rt, "P", "x = 1\nreturn x\n")
	rt.Registry().Arm("P", 1)
	task := mustRun(t, rt, "P")
	pollParked(t, rt, "P")

	if err := rt.Unload("P"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if v, err := wait(t, task); err != nil || v != int64(1) {
		t.Fatalf("got (%v, %v), want (1, nil)", v, err)
	}
	if _, err := rt.Program("P"); !errors.Is(err, linelock.ErrNoSuchProgram) {
		t.Fatalf("Program after unload: got %v, want ErrNoSuchProgram", err)
	}
}

func TestReloadReplacesProgram(t *testing.T) {
	rt := newRuntime(t)
	mustLoad(t, rt, "P", "return 1\n")
	p, _ := script.CompileString("P", "return 2\n")
	if err := rt.Reload(p); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if v, err := wait(t, mustRun(t, rt, "P")); err != nil || v != int64(2) {
		t.Fatalf("got (%v, %v), want (2, nil)", v, err)
	}
	if err := rt.Load(p); !errors.Is(err, linelock.ErrProgramLoaded) {
		t.Fatalf("Load twice: got %v, want ErrProgramLoaded", err)
	}
}

func TestLoadTooLarge(t *testing.T) {
	coord := linelock.NewCoordinator()
	rt := script.NewRuntime(linelock.NewRegistry(nil), coord, script.WithMaxPoints(2))
	p, _ := script.CompileString("P", "x = 1\nx = 2\nx = 3\n")
	if err := rt.Load(p); !errors.Is(err, script.ErrTooLarge) {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
}
