package main

import (
	"context"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/kitelang/kite/compiler"
	"github.com/kitelang/kite/compiler/ast"
	"github.com/kitelang/kite/compiler/flowgraph"
	"github.com/kitelang/kite/compiler/rt"
)

func main() {
	flowCmd := &cli.Command{
		Name:        "flow",
		Description: "lower built-in demo functions and print their flow graphs",
		Action:      flowAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "kite",
		Description: "kite is a tool for inspecting kite compiler internals",
		Commands: []*cli.Command{
			flowCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

// flowAct builds each demo function twice: once as a plain CFG and
// once in SSA form. Pass demo names as args to restrict the set.
func flowAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	selected := map[string]bool{}
	for _, a := range c.Args {
		selected[a] = true
	}

	for _, d := range demos() {
		if len(selected) != 0 && !selected[string(d.Function.Name)] {
			continue
		}

		for _, useSSA := range []bool{false, true} {
			opts := flowgraph.DefaultOptions()
			opts.PrintFlowGraph = true
			opts.UseSSA = useSSA
			opts.Sink = os.Stdout

			tlog.Printw("flow graph", "function", d.Function.Name, "ssa", useSSA)

			_, err = compiler.BuildFunction(ctx, d, opts)
			if err != nil {
				return errors.Wrap(err, "build %v", d.Function.Name)
			}
		}
	}

	return nil
}

// demos are small hand-built ASTs standing in for parser output.
func demos() []*ast.ParsedFunction {
	return []*ast.ParsedFunction{
		demoMax(),
		demoCountdown(),
		demoLogical(),
	}
}

func intLit(v int) *ast.LiteralNode {
	return &ast.LiteralNode{Literal: rt.NewSmi(v)}
}

func newParsed(name string, params []string, locals int) (*ast.ParsedFunction, *ast.LocalScope, []*ast.LocalVariable) {
	scope := ast.NewScope(nil)

	vars := make([]*ast.LocalVariable, 0, len(params)+locals)
	for i, p := range params {
		vars = append(vars, scope.AddVariable(&ast.LocalVariable{
			Name:  rt.Intern(p),
			Type:  rt.Dynamic(),
			Index: i,
		}))
	}

	for i := 0; i < locals; i++ {
		vars = append(vars, scope.AddVariable(&ast.LocalVariable{
			Name:  rt.Intern("v" + string(rune('0'+i))),
			Type:  rt.Dynamic(),
			Index: len(params) + i,
		}))
	}

	pf := &ast.ParsedFunction{
		Function: &rt.Function{
			Name:               rt.Intern(name),
			Kind:               rt.FuncNormal,
			Static:             true,
			Result:             rt.Dynamic(),
			NumFixedParameters: len(params),
		},
		StackLocalCount: locals,
	}

	return pf, scope, vars
}

// max(a, b) { if (a > b) { return a; } return b; }
func demoMax() *ast.ParsedFunction {
	pf, scope, vars := newParsed("max", []string{"a", "b"}, 0)
	a, b := vars[0], vars[1]

	pf.NodeSequence = &ast.SequenceNode{
		Scope: scope,
		Nodes: []ast.Node{
			&ast.IfNode{
				Condition: &ast.ComparisonNode{
					Op:    ast.GT,
					Left:  &ast.LoadLocalNode{Local: a},
					Right: &ast.LoadLocalNode{Local: b},
				},
				TrueBranch: &ast.SequenceNode{Nodes: []ast.Node{
					&ast.ReturnNode{Value: &ast.LoadLocalNode{Local: a}},
				}},
			},
			&ast.ReturnNode{Value: &ast.LoadLocalNode{Local: b}},
		},
	}

	return pf
}

// countdown(n) { while (n > 0) { n = n - 1; } return n; }
func demoCountdown() *ast.ParsedFunction {
	pf, scope, vars := newParsed("countdown", []string{"n"}, 0)
	n := vars[0]

	label := &ast.SourceLabel{Name: rt.Intern("L"), Owner: scope}

	pf.NodeSequence = &ast.SequenceNode{
		Scope: scope,
		Nodes: []ast.Node{
			&ast.WhileNode{
				Label: label,
				Condition: &ast.ComparisonNode{
					Op:    ast.GT,
					Left:  &ast.LoadLocalNode{Local: n},
					Right: intLit(0),
				},
				Body: &ast.SequenceNode{Nodes: []ast.Node{
					&ast.StoreLocalNode{Local: n, Value: &ast.BinaryOpNode{
						Op:    ast.SUB,
						Left:  &ast.LoadLocalNode{Local: n},
						Right: intLit(1),
					}},
				}},
			},
			&ast.ReturnNode{Value: &ast.LoadLocalNode{Local: n}},
		},
	}

	return pf
}

// both(a, b) { return a && b; }
func demoLogical() *ast.ParsedFunction {
	pf, scope, vars := newParsed("both", []string{"a", "b"}, 1)
	a, b := vars[0], vars[1]

	exprTemp := vars[2]
	pf.ExpressionTempVar = exprTemp

	pf.NodeSequence = &ast.SequenceNode{
		Scope: scope,
		Nodes: []ast.Node{
			&ast.ReturnNode{Value: &ast.BinaryOpNode{
				Op:    ast.AND,
				Left:  &ast.LoadLocalNode{Local: a},
				Right: &ast.LoadLocalNode{Local: b},
			}},
		},
	}

	return pf
}
