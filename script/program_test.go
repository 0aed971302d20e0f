// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package script_test

import (
	"errors"
	"slices"
	"testing"

	"code.hybscloud.com/linelock/script"
)

func TestCompileInstrumentsLines(t *testing.T) {
	src := `local function f(n)
  local y = n + 1
  if y > 1 then
    y = y * 2
  end
  return y
end
local a = 1 local b = 2
return f(a + b)
`
	p, err := script.CompileString("P", src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	want := []int{1, 2, 3, 4, 6, 8, 9}
	if got := p.Lines(); !slices.Equal(got, want) {
		t.Fatalf("Lines: got %v, want %v", got, want)
	}
	if p.Points() != 10 {
		t.Fatalf("Points: got %d, want 10", p.Points())
	}
	if !p.HasLine(4) || p.HasLine(5) {
		t.Fatal("HasLine disagrees with Lines")
	}

	table := p.NewTable()
	if got := table.Points(); !slices.Equal(got, want) {
		t.Fatalf("table points: got %v, want %v", got, want)
	}
}

func TestCompileNestedFunctionExpressions(t *testing.T) {
	src := `local t = {
  f = function()
    return 1
  end,
}
call(function()
  return 2
end)
`
	p, err := script.CompileString("P", src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	want := []int{1, 3, 6, 7}
	if got := p.Lines(); !slices.Equal(got, want) {
		t.Fatalf("Lines: got %v, want %v", got, want)
	}
}

func TestCompileSyntaxError(t *testing.T) {
	_, err := script.CompileString("P", "local = 1")
	if !errors.Is(err, script.ErrSyntax) {
		t.Fatalf("got %v, want ErrSyntax", err)
	}
}
