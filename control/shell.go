// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"code.hybscloud.com/linelock"
)

// Runner starts programs. *script.Runtime implements it.
type Runner interface {
	Run(ctx context.Context, program string) (*linelock.Task, error)
	Programs() []string
}

const usage = `commands:
  programs                 list loaded programs
  run <program>            start a program on a new thread
  <program>                show parked threads
  <program> list           show enabled breakpoints
  <program> add <line>     enable a breakpoint
  <program> remove <line>  disable a breakpoint
  <program> step <line>    resume threads parked on a line
  <program> release        disable all breakpoints and resume every thread`

// Shell executes textual controller commands, one per line.
type Shell struct {
	ctl    *Controller
	runner Runner

	mu  sync.Mutex
	out io.Writer
}

// NewShell creates a shell writing to out. runner may be nil, which
// disables the run and programs commands.
func NewShell(ctl *Controller, runner Runner, out io.Writer) *Shell {
	return &Shell{ctl: ctl, runner: runner, out: out}
}

// Serve executes commands read from r until EOF or ctx is done.
func (s *Shell) Serve(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.Exec(ctx, sc.Text()); err != nil {
			s.printf("error: %v\n", err)
		}
	}
	return sc.Err()
}

// Exec executes one command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	args := strings.Fields(line)
	switch {
	case len(args) == 0:
		return nil
	case args[0] == "help":
		s.printf("%s\n", usage)
		return nil
	case args[0] == "programs" && len(args) == 1:
		return s.programs()
	case args[0] == "run" && len(args) == 2:
		return s.run(ctx, args[1])
	case len(args) == 1:
		return s.showParked(args[0])
	case len(args) == 2 && args[1] == "list":
		s.showBreakpoints(args[0])
		return nil
	case len(args) == 2 && args[1] == "release":
		if err := s.ctl.Release(args[0]); err != nil {
			return err
		}
		s.printf("Released %s\n", args[0])
		return nil
	case len(args) == 3:
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 0 {
			return fmt.Errorf("%w: line must be a non-negative integer, got %q", ErrUsage, args[2])
		}
		return s.lineCommand(args[0], args[1], n)
	}
	return fmt.Errorf("%w: %q (try help)", ErrUsage, line)
}

func (s *Shell) lineCommand(program, verb string, line int) error {
	switch verb {
	case "add":
		if err := s.ctl.Add(program, line); err != nil {
			return err
		}
		s.printf("Added breakpoint\n")
	case "remove":
		if err := s.ctl.Remove(program, line); err != nil {
			return err
		}
		s.printf("Removed breakpoint\n")
	case "step":
		n, err := s.ctl.StepLine(program, line)
		if err != nil {
			return err
		}
		s.printf("Stepped %d activations\n", n)
	default:
		return fmt.Errorf("%w: unknown command %q (try help)", ErrUsage, verb)
	}
	return nil
}

func (s *Shell) showParked(program string) error {
	acts, err := s.ctl.Parked(program)
	if err != nil {
		return err
	}
	if len(acts) == 0 {
		s.printf("No breakpoint activations\n")
		return nil
	}
	for _, a := range acts {
		s.printActivation(program, a)
	}
	return nil
}

func (s *Shell) showBreakpoints(program string) {
	bps := s.ctl.List(program)
	if len(bps) == 0 {
		s.printf("No active breakpoints\n")
		return
	}
	for _, bp := range bps {
		s.printf("Breakpoint in line %d\n", bp.Line)
		for _, a := range bp.Parked {
			s.printActivation(program, a)
		}
	}
}

func (s *Shell) printActivation(program string, a *linelock.Activation) {
	s.printf("- Activation in %s in line %d on %s\n", program, a.Point(), a.Thread())
}

func (s *Shell) programs() error {
	if s.runner == nil {
		return fmt.Errorf("%w: no program runner", ErrUsage)
	}
	for _, name := range s.runner.Programs() {
		s.printf("%s\n", name)
	}
	return nil
}

func (s *Shell) run(ctx context.Context, program string) error {
	if s.runner == nil {
		return fmt.Errorf("%w: no program runner", ErrUsage)
	}
	task, err := s.runner.Run(ctx, program)
	if err != nil {
		return err
	}
	s.printf("Started %s\n", program)
	go func() {
		v, err := task.Wait(ctx)
		switch {
		case ctx.Err() != nil:
		case err != nil:
			s.printf("%s failed: %v\n", program, err)
		default:
			s.printf("%s returned %v\n", program, v)
		}
	}()
	return nil
}

func (s *Shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}
