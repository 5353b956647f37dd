package ast

import (
	"fmt"
	"io"
	"strings"
)

// Print dumps the function AST to w, one node per line.
func Print(w io.Writer, pf *ParsedFunction) {
	fmt.Fprintf(w, "function %s\n", pf.Function.Name)
	printNode(w, pf.NodeSequence, 1)
}

func printNode(w io.Writer, n Node, depth int) {
	indent := strings.Repeat("  ", depth)

	switch x := n.(type) {
	case nil:
	case *SequenceNode:
		if x == nil {
			return
		}

		fmt.Fprintf(w, "%sseq\n", indent)

		for _, q := range x.Nodes {
			printNode(w, q, depth+1)
		}
	case *ReturnNode:
		fmt.Fprintf(w, "%sreturn\n", indent)
		printNode(w, x.Value, depth+1)
	case *LiteralNode:
		fmt.Fprintf(w, "%slit %v\n", indent, x.Literal)
	case *BinaryOpNode:
		fmt.Fprintf(w, "%sbinop %v\n", indent, x.Op)
		printNode(w, x.Left, depth+1)
		printNode(w, x.Right, depth+1)
	case *ComparisonNode:
		fmt.Fprintf(w, "%scmp %v\n", indent, x.Op)
		printNode(w, x.Left, depth+1)
		printNode(w, x.Right, depth+1)
	case *UnaryOpNode:
		fmt.Fprintf(w, "%sunary %v\n", indent, x.Op)
		printNode(w, x.Operand, depth+1)
	case *IfNode:
		fmt.Fprintf(w, "%sif\n", indent)
		printNode(w, x.Condition, depth+1)
		printNode(w, x.TrueBranch, depth+1)
		printNode(w, x.FalseBranch, depth+1)
	case *WhileNode:
		fmt.Fprintf(w, "%swhile\n", indent)
		printNode(w, x.Condition, depth+1)
		printNode(w, x.Body, depth+1)
	case *DoWhileNode:
		fmt.Fprintf(w, "%sdo-while\n", indent)
		printNode(w, x.Body, depth+1)
		printNode(w, x.Condition, depth+1)
	case *ForNode:
		fmt.Fprintf(w, "%sfor\n", indent)
		printNode(w, x.Initializer, depth+1)
		printNode(w, x.Condition, depth+1)
		printNode(w, x.Increment, depth+1)
		printNode(w, x.Body, depth+1)
	case *JumpNode:
		fmt.Fprintf(w, "%s%v %s\n", indent, x.Kind, x.Label.Name)
	case *LoadLocalNode:
		fmt.Fprintf(w, "%sload %s\n", indent, x.Local.Name)
	case *StoreLocalNode:
		fmt.Fprintf(w, "%sstore %s\n", indent, x.Local.Name)
		printNode(w, x.Value, depth+1)
	case *TryCatchNode:
		fmt.Fprintf(w, "%stry\n", indent)
		printNode(w, x.TryBlock, depth+1)

		if x.CatchBlock != nil {
			fmt.Fprintf(w, "%scatch\n", indent)
			printNode(w, x.CatchBlock.Body, depth+1)
		}

		if x.FinallyBlock != nil {
			fmt.Fprintf(w, "%sfinally\n", indent)
			printNode(w, x.FinallyBlock, depth+1)
		}
	case *ThrowNode:
		fmt.Fprintf(w, "%sthrow\n", indent)
		printNode(w, x.Exception, depth+1)
	default:
		fmt.Fprintf(w, "%s%s\n", indent, strings.TrimPrefix(fmt.Sprintf("%T", x), "*ast."))
	}
}
