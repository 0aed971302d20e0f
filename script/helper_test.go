// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package script_test

import (
	"context"
	"testing"
	"time"

	"code.hybscloud.com/linelock"
	"code.hybscloud.com/linelock/script"
)

const waitTimeout = 5 * time.Second

func newRuntime(t *testing.T) *script.Runtime {
	t.Helper()
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
	return script.NewRuntime(linelock.NewRegistry(nil), coord)
}

func mustLoad(t *testing.T, rt *script.Runtime, name, src string) *script.Program {
	t.Helper()
	p, err := script.CompileString(name, src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := rt.Load(p); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return p
}

func mustRun(t *testing.T, rt *script.Runtime, name string) *linelock.Task {
	t.Helper()
	task, err := rt.Run(context.Background(), name)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return task
}

func wait(t *testing.T, task *linelock.Task) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	v, err := task.Wait(ctx)
	if ctx.Err() != nil {
		t.Fatal("timed out waiting for the script")
	}
	return v, err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// pollParked waits until program has an undelivered activation.
func pollParked(t *testing.T, rt *script.Runtime, program string) *linelock.Activation {
	t.Helper()
	var acts []*linelock.Activation
	waitFor(t, "a parked thread", func() bool {
		var err error
		acts, err = rt.Registry().PollActivations(program)
		if err != nil {
			t.Fatalf("PollActivations: %v", err)
		}
		return len(acts) > 0
	})
	if len(acts) != 1 {
		t.Fatalf("got %d activations, want 1", len(acts))
	}
	return acts[0]
}
