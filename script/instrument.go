// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package script

import (
	"slices"
	"strconv"

	"github.com/yuin/gopher-lua/ast"
)

// EnterHook is the global every instrumented statement calls with its
// source line before it runs.
const EnterHook = "__linelock_enter"

// instrumenter rewrites statement lists so each source line first passes
// through its breakpoint site.
type instrumenter struct {
	lines map[int]struct{}
}

// instrument returns chunk with hook calls inserted, together with the
// instrumented source lines in ascending order. Nested blocks are rewritten
// in place.
func instrument(chunk []ast.Stmt) ([]ast.Stmt, []int) {
	in := &instrumenter{lines: make(map[int]struct{})}
	chunk = in.block(chunk)
	lines := make([]int, 0, len(in.lines))
	for l := range in.lines {
		lines = append(lines, l)
	}
	slices.Sort(lines)
	return chunk, lines
}

// block returns stmts with a hook call before the first statement of each
// line. Statements sharing a line share one call.
func (in *instrumenter) block(stmts []ast.Stmt) []ast.Stmt {
	out := make([]ast.Stmt, 0, 2*len(stmts))
	last := -1
	for _, st := range stmts {
		in.stmt(st)
		if line := st.Line(); line > 0 && line != last {
			out = append(out, hookCall(line))
			in.lines[line] = struct{}{}
			last = line
		}
		out = append(out, st)
	}
	return out
}

func (in *instrumenter) stmt(st ast.Stmt) {
	switch s := st.(type) {
	case *ast.AssignStmt:
		in.exprs(s.Lhs)
		in.exprs(s.Rhs)
	case *ast.LocalAssignStmt:
		in.exprs(s.Exprs)
	case *ast.FuncCallStmt:
		in.expr(s.Expr)
	case *ast.DoBlockStmt:
		s.Stmts = in.block(s.Stmts)
	case *ast.WhileStmt:
		in.expr(s.Condition)
		s.Stmts = in.block(s.Stmts)
	case *ast.RepeatStmt:
		in.expr(s.Condition)
		s.Stmts = in.block(s.Stmts)
	case *ast.IfStmt:
		in.expr(s.Condition)
		s.Then = in.block(s.Then)
		s.Else = in.block(s.Else)
	case *ast.NumberForStmt:
		in.expr(s.Init)
		in.expr(s.Limit)
		in.expr(s.Step)
		s.Stmts = in.block(s.Stmts)
	case *ast.GenericForStmt:
		in.exprs(s.Exprs)
		s.Stmts = in.block(s.Stmts)
	case *ast.FuncDefStmt:
		in.expr(s.Func)
	case *ast.ReturnStmt:
		in.exprs(s.Exprs)
	}
}

func (in *instrumenter) exprs(es []ast.Expr) {
	for _, e := range es {
		in.expr(e)
	}
}

// expr descends into e looking for function bodies.
func (in *instrumenter) expr(e ast.Expr) {
	switch x := e.(type) {
	case *ast.FunctionExpr:
		x.Stmts = in.block(x.Stmts)
	case *ast.AttrGetExpr:
		in.expr(x.Object)
		in.expr(x.Key)
	case *ast.TableExpr:
		for _, f := range x.Fields {
			in.expr(f.Key)
			in.expr(f.Value)
		}
	case *ast.FuncCallExpr:
		in.expr(x.Func)
		in.expr(x.Receiver)
		in.exprs(x.Args)
	case *ast.LogicalOpExpr:
		in.expr(x.Lhs)
		in.expr(x.Rhs)
	case *ast.RelationalOpExpr:
		in.expr(x.Lhs)
		in.expr(x.Rhs)
	case *ast.StringConcatOpExpr:
		in.expr(x.Lhs)
		in.expr(x.Rhs)
	case *ast.ArithmeticOpExpr:
		in.expr(x.Lhs)
		in.expr(x.Rhs)
	case *ast.UnaryMinusOpExpr:
		in.expr(x.Expr)
	case *ast.UnaryNotOpExpr:
		in.expr(x.Expr)
	case *ast.UnaryLenOpExpr:
		in.expr(x.Expr)
	}
}

// hookCall builds `__linelock_enter(line)` positioned at line.
func hookCall(line int) ast.Stmt {
	fn := &ast.IdentExpr{Value: EnterHook}
	fn.SetLine(line)
	arg := &ast.NumberExpr{Value: strconv.Itoa(line)}
	arg.SetLine(line)
	call := &ast.FuncCallExpr{Func: fn, Args: []ast.Expr{arg}}
	call.SetLine(line)
	call.SetLastLine(line)
	st := &ast.FuncCallStmt{Expr: call}
	st.SetLine(line)
	st.SetLastLine(line)
	return st
}
