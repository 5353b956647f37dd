// Package compiler drives flow-graph construction for single
// functions and implements the SSA bailout retry policy.
package compiler

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/kitelang/kite/compiler/ast"
	"github.com/kitelang/kite/compiler/flowgraph"
	"github.com/kitelang/kite/compiler/il"
)

// BuildFunction lowers one analyzed function into a flow graph. A
// bailout from the SSA pipeline is retried with SSA disabled; other
// errors propagate.
func BuildFunction(ctx context.Context, parsed *ast.ParsedFunction, opts flowgraph.Options) (_ *il.GraphEntry, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile function", "name", parsed.Function.Name)
	defer tr.Finish("err", &err)

	graph, err := flowgraph.NewBuilder(parsed, opts).BuildGraph(ctx)

	if bailout, ok := err.(*flowgraph.BailoutError); ok && opts.UseSSA {
		tr.Printw("retry without ssa", "reason", bailout.Reason)

		opts.UseSSA = false

		graph, err = flowgraph.NewBuilder(parsed, opts).BuildGraph(ctx)
	}

	if err != nil {
		return nil, errors.Wrap(err, "build flow graph")
	}

	return graph, nil
}
