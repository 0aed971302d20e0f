// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package script

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"code.hybscloud.com/linelock"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Program is a compiled, instrumented Lua chunk. It is immutable and may
// be instantiated on any number of Lua states.
type Program struct {
	name  string
	proto *lua.FunctionProto
	lines []int
}

// Compile parses and instruments the Lua source read from r.
func Compile(name string, r io.Reader) (*Program, error) {
	chunk, err := parse.Parse(r, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSyntax, name, err)
	}
	chunk, lines := instrument(chunk)
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSyntax, name, err)
	}
	return &Program{name: name, proto: proto, lines: lines}, nil
}

// CompileString compiles Lua source held in a string.
func CompileString(name, src string) (*Program, error) {
	return Compile(name, strings.NewReader(src))
}

// Name returns the program name.
func (p *Program) Name() string { return p.name }

// Lines returns the instrumented source lines in ascending order.
func (p *Program) Lines() []int { return p.lines }

// Points returns the size of the site table the program needs.
func (p *Program) Points() int {
	if len(p.lines) == 0 {
		return 1
	}
	return p.lines[len(p.lines)-1] + 1
}

// NewTable builds a site table with one registered site per instrumented line.
func (p *Program) NewTable(opts ...linelock.TableOption) *linelock.SiteTable {
	t := linelock.NewSiteTable(p.name, p.Points(), opts...)
	for _, l := range p.lines {
		t.Register(l)
	}
	return t
}

// HasLine reports whether line is instrumented.
func (p *Program) HasLine(line int) bool {
	_, ok := slices.BinarySearch(p.lines, line)
	return ok
}
