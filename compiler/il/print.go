package il

import (
	"fmt"
	"io"
	"strings"
)

// Print writes a readable listing of the flow graph in reverse
// postorder, one block per paragraph.
func Print(w io.Writer, postorder []BlockEntry) {
	for i := len(postorder) - 1; i >= 0; i-- {
		printBlock(w, postorder[i])
	}
}

func printBlock(w io.Writer, block BlockEntry) {
	fmt.Fprintf(w, "B%d[%s]", block.BlockID(), blockKind(block))

	if n := block.PredecessorCount(); n > 0 {
		fmt.Fprintf(w, " pred(")

		for i := 0; i < n; i++ {
			if i > 0 {
				fmt.Fprintf(w, ", ")
			}

			fmt.Fprintf(w, "B%d", block.PredecessorAt(i).BlockID())
		}

		fmt.Fprintf(w, ")")
	}

	if t := block.TryIndex(); t != InvalidTryIndex {
		fmt.Fprintf(w, " try_idx %d", t)
	}

	fmt.Fprintln(w)

	if join, ok := block.(*JoinEntry); ok {
		for v, phi := range join.Phis {
			if phi == nil {
				continue
			}

			fmt.Fprintf(w, "    %s <- phi(", defName(phi))

			for i, in := range phi.Inputs {
				if i > 0 {
					fmt.Fprintf(w, ", ")
				}

				fmt.Fprintf(w, "%s", valName(in))
			}

			fmt.Fprintf(w, ") [var %d]\n", v)
		}
	}

	if _, ok := block.(*GraphEntry); ok {
		return
	}

	for cur := block.Successor(); cur != nil && !IsBlockEntry(cur); cur = cur.Successor() {
		printInstr(w, cur)
	}
}

func printInstr(w io.Writer, i Instruction) {
	switch x := i.(type) {
	case *BindInstr:
		fmt.Fprintf(w, "    %s <- %s\n", defName(x), compName(x.Comp))
	case *DoInstr:
		fmt.Fprintf(w, "    %s\n", compName(x.Comp))
	case *BranchInstr:
		fmt.Fprintf(w, "    if %s goto (B%d, B%d)\n", valName(x.Val), x.True.BlockID(), x.False.BlockID())
	case *ReturnInstr:
		fmt.Fprintf(w, "    return %s\n", valName(x.Val))
	case *ThrowInstr:
		fmt.Fprintf(w, "    throw %s\n", valName(x.Exception))
	case *ReThrowInstr:
		fmt.Fprintf(w, "    rethrow %s, %s\n", valName(x.Exception), valName(x.Stacktrace))
	default:
		fmt.Fprintf(w, "    %T\n", x)
	}
}

func compName(c Computation) string {
	var b strings.Builder

	name := fmt.Sprintf("%T", c)
	name = strings.TrimPrefix(name, "*il.")
	name = strings.TrimSuffix(name, "Comp")

	b.WriteString(name)
	b.WriteByte('(')

	for i := 0; i < c.InputCount(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteString(valName(c.InputAt(i)))
	}

	switch x := c.(type) {
	case *ConstantComp:
		fmt.Fprintf(&b, "#%v", x.Literal)
	case *LoadLocalComp:
		fmt.Fprintf(&b, "%s", x.Local.Name)
	case *StoreLocalComp:
		fmt.Fprintf(&b, ", %s", x.Local.Name)
	case *InstanceCallComp:
		fmt.Fprintf(&b, ", %s", x.Name)
	case *StaticCallComp:
		fmt.Fprintf(&b, ", %s", x.Function.Name)
	case *NativeCallComp:
		fmt.Fprintf(&b, "%s", x.Name)
	case *LoadVMFieldComp:
		fmt.Fprintf(&b, ", @%d", x.OffsetInBytes)
	case *StoreVMFieldComp:
		fmt.Fprintf(&b, ", @%d", x.OffsetInBytes)
	case *AssertAssignableComp:
		fmt.Fprintf(&b, ", %s", x.DstType)
	case *InstanceOfComp:
		op := "is"
		if x.Negate {
			op = "is!"
		}

		fmt.Fprintf(&b, ", %s %s", op, x.Type)
	}

	b.WriteByte(')')

	return b.String()
}

func defName(d Definition) string {
	if idx := d.SSATempIndex(); idx >= 0 {
		return fmt.Sprintf("v%d", idx)
	}

	return fmt.Sprintf("t%d", d.TempIndex())
}

func valName(v Value) string {
	switch x := v.(type) {
	case nil:
		return "_"
	case *ConstantVal:
		return fmt.Sprintf("#%v", x.Literal)
	case *UseVal:
		return defName(x.Def)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func blockKind(b BlockEntry) string {
	switch b.(type) {
	case *GraphEntry:
		return "graph"
	case *TargetEntry:
		return "target"
	case *JoinEntry:
		return "join"
	default:
		return "?"
	}
}
