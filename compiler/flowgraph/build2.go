package flowgraph

import (
	"fmt"

	"github.com/kitelang/kite/compiler/ast"
	"github.com/kitelang/kite/compiler/il"
	"github.com/kitelang/kite/compiler/rt"
)

// visit lowers a node into the fragment according to its result mode.
func (f *fragment) visit(n ast.Node) {
	switch x := n.(type) {
	case *ast.SequenceNode:
		f.visitSequence(x)
	case *ast.ReturnNode:
		f.visitReturn(x)
	case *ast.LiteralNode:
		f.visitLiteral(x)
	case *ast.AssignableNode:
		f.visitAssignable(x)
	case *ast.BinaryOpNode:
		f.visitBinaryOp(x)
	case *ast.ComparisonNode:
		f.visitComparison(x)
	case *ast.UnaryOpNode:
		f.visitUnaryOp(x)
	case *ast.ConditionalExprNode:
		f.visitConditionalExpr(x)
	case *ast.IfNode:
		f.visitIf(x)
	case *ast.SwitchNode:
		f.visitSwitch(x)
	case *ast.CaseNode:
		f.visitCase(x)
	case *ast.WhileNode:
		f.visitWhile(x)
	case *ast.DoWhileNode:
		f.visitDoWhile(x)
	case *ast.ForNode:
		f.visitFor(x)
	case *ast.JumpNode:
		f.visitJump(x)
	case *ast.ArrayNode:
		f.visitArray(x)
	case *ast.ClosureNode:
		f.visitClosure(x)
	case *ast.InstanceCallNode:
		f.visitInstanceCall(x)
	case *ast.InstanceGetterNode:
		f.visitInstanceGetter(x)
	case *ast.InstanceSetterNode:
		f.visitInstanceSetter(x)
	case *ast.StaticGetterNode:
		f.visitStaticGetter(x)
	case *ast.StaticSetterNode:
		f.visitStaticSetter(x)
	case *ast.StaticCallNode:
		f.visitStaticCall(x)
	case *ast.ClosureCallNode:
		f.visitClosureCall(x)
	case *ast.CloneContextNode:
		f.visitCloneContext(x)
	case *ast.ConstructorCallNode:
		f.visitConstructorCall(x)
	case *ast.LoadLocalNode:
		f.visitLoadLocal(x)
	case *ast.StoreLocalNode:
		f.visitStoreLocal(x)
	case *ast.LoadInstanceFieldNode:
		f.visitLoadInstanceField(x)
	case *ast.StoreInstanceFieldNode:
		f.visitStoreInstanceField(x)
	case *ast.LoadStaticFieldNode:
		f.visitLoadStaticField(x)
	case *ast.StoreStaticFieldNode:
		f.visitStoreStaticField(x)
	case *ast.LoadIndexedNode:
		f.visitLoadIndexed(x)
	case *ast.StoreIndexedNode:
		f.visitStoreIndexed(x)
	case *ast.CatchClauseNode:
		f.visitCatchClause(x)
	case *ast.TryCatchNode:
		f.visitTryCatch(x)
	case *ast.ThrowNode:
		f.visitThrow(x)
	case *ast.InlinedFinallyNode:
		f.visitInlinedFinally(x)
	case *ast.NativeBodyNode:
		f.visitNativeBody(x)
	case *ast.TypeNode, *ast.ArgumentListNode:
		// Handled in their enclosing nodes.
		panic(fmt.Sprintf("%T visited directly", x))
	default:
		panic(fmt.Sprintf("unexpected node %T", x))
	}
}

func (f *fragment) visitLiteral(node *ast.LiteralNode) {
	if !f.forValue() {
		return
	}

	f.returnComputation(&il.ConstantComp{Literal: node.Literal})
}

func (f *fragment) visitAssignable(node *ast.AssignableNode) {
	if !f.forValue() {
		panic("assignable node in effect context")
	}

	forValue := f.owner.valueVisitor(f.temp)
	forValue.visit(node.Expr)
	f.append(forValue)

	f.returnValue(f.buildAssignableValue(node.Expr.Pos(), forValue.value(), node.Type, node.Name))
}

// Operators && and || cannot be overloaded and are lowered as
// short-circuit control flow. In value context both arms converge on
// the shared expression temp.
func (f *fragment) visitBinaryOp(node *ast.BinaryOpNode) {
	if node.Op == ast.AND || node.Op == ast.OR {
		if f.forValue() {
			f.buildLogicalValue(node)
		} else {
			f.buildLogicalEffect(node)
		}

		return
	}

	forLeft := f.owner.valueVisitor(f.temp)
	forLeft.visit(node.Left)
	f.append(forLeft)

	forRight := f.owner.valueVisitor(f.temp)
	forRight.visit(node.Right)
	f.append(forRight)

	f.returnComputation(&il.InstanceCallComp{
		P:               node.P,
		TryIndex:        f.owner.tryIndex(),
		Name:            rt.Intern(node.Op.Name()),
		Kind:            node.Op,
		Args:            []il.Value{forLeft.value(), forRight.value()},
		CheckedArgCount: 2,
	})
}

func (f *fragment) buildLogicalEffect(node *ast.BinaryOpNode) {
	forLeft := f.owner.testVisitor(f.temp, node.Left.Pos())
	forLeft.visit(node.Left)

	forRight := f.owner.effectVisitor(f.temp)
	forRight.visit(node.Right)

	empty := f.owner.effectVisitor(f.temp)

	if node.Op == ast.AND {
		f.join(forLeft, forRight, empty)
	} else {
		f.join(forLeft, empty, forRight)
	}
}

// AND:  left ? right === true : false
// OR:   left ? true : right === true
func (f *fragment) buildLogicalValue(node *ast.BinaryOpNode) {
	exprTemp := f.owner.parsed.ExpressionTempVar

	forTest := f.owner.testVisitor(f.temp, node.Left.Pos())
	forTest.visit(node.Left)

	forRight := f.owner.valueVisitor(f.temp)
	forRight.visit(node.Right)

	rightValue := forRight.value()
	if f.owner.opts.EnableTypeChecks {
		rightValue = forRight.bind(&il.AssertBooleanComp{
			P:        node.Right.Pos(),
			TryIndex: f.owner.tryIndex(),
			Val:      rightValue,
		})
	}

	constantTrue := forRight.bind(&il.ConstantComp{Literal: rt.NewBool(true)})
	compare := forRight.bind(&il.StrictCompareComp{
		Kind:  ast.EQStrict,
		Left:  rightValue,
		Right: constantTrue,
	})
	forRight.do(forRight.buildStoreLocal(exprTemp, compare))

	if node.Op == ast.AND {
		forFalse := f.owner.valueVisitor(f.temp)
		constantFalse := forFalse.bind(&il.ConstantComp{Literal: rt.NewBool(false)})
		forFalse.do(forFalse.buildStoreLocal(exprTemp, constantFalse))

		f.join(forTest, forRight, forFalse)
	} else {
		forTrue := f.owner.valueVisitor(f.temp)
		constantTrue := forTrue.bind(&il.ConstantComp{Literal: rt.NewBool(true)})
		forTrue.do(forTrue.buildStoreLocal(exprTemp, constantTrue))

		f.join(forTest, forTrue, forRight)
	}

	f.returnComputation(f.buildLoadLocal(exprTemp))
}

func (f *fragment) visitComparison(node *ast.ComparisonNode) {
	if node.Op.IsTypeTestOperator() {
		f.buildTypeTest(node)
		return
	}

	if node.Op.IsTypeCastOperator() {
		f.buildTypeCast(node)
		return
	}

	forLeft := f.owner.valueVisitor(f.temp)
	forLeft.visit(node.Left)
	f.append(forLeft)

	forRight := f.owner.valueVisitor(f.temp)
	forRight.visit(node.Right)
	f.append(forRight)

	switch node.Op {
	case ast.EQStrict, ast.NEStrict:
		f.returnComputation(&il.StrictCompareComp{
			Kind:  node.Op,
			Left:  forLeft.value(),
			Right: forRight.value(),
		})
	case ast.EQ, ast.NE:
		comp := &il.EqualityCompareComp{
			P:        node.P,
			TryIndex: f.owner.tryIndex(),
			Left:     forLeft.value(),
			Right:    forRight.value(),
		}

		if node.Op == ast.EQ {
			f.returnComputation(comp)
			return
		}

		eqResult := il.Value(f.bind(comp))
		if f.owner.opts.EnableTypeChecks {
			eqResult = f.bind(&il.AssertBooleanComp{
				P:        node.P,
				TryIndex: f.owner.tryIndex(),
				Val:      eqResult,
			})
		}

		f.returnComputation(&il.BooleanNegateComp{Val: eqResult})
	default:
		f.returnComputation(&il.RelationalOpComp{
			P:        node.P,
			TryIndex: f.owner.tryIndex(),
			Kind:     node.Op,
			Left:     forLeft.value(),
			Right:    forRight.value(),
		})
	}
}

func (f *fragment) buildTypeTest(node *ast.ComparisonNode) {
	if !f.forValue() {
		forLeft := f.owner.effectVisitor(f.temp)
		forLeft.visit(node.Left)
		f.append(forLeft)

		return
	}

	typ := node.Right.(*ast.TypeNode).Type
	if !typ.IsFinalized() || typ.IsMalformed() {
		panic("malformed type in type test")
	}

	negate := node.Op == ast.ISNOT

	// All objects are instances of T if Object is a subtype of T.
	if typ.IsInstantiated() {
		if ok, _ := rt.ObjectType().IsSubtypeOf(typ); ok {
			forLeft := f.owner.effectVisitor(f.temp)
			forLeft.visit(node.Left)
			f.append(forLeft)

			f.returnComputation(&il.ConstantComp{Literal: rt.NewBool(!negate)})

			return
		}
	}

	// Evaluate the test at build time against a literal operand.
	if lit, ok := node.Left.(*ast.LiteralNode); ok && typ.IsInstantiated() {
		var result *rt.Instance

		if lit.Literal.IsNull() {
			// null is only an instance of Object and dynamic, both
			// already handled above.
			result = rt.NewBool(negate)
		} else if ok, _ := lit.Literal.IsInstanceOf(typ); ok {
			result = rt.NewBool(!negate)
		} else {
			result = rt.NewBool(negate)
		}

		f.returnComputation(&il.ConstantComp{Literal: result})

		return
	}

	forLeft := f.owner.valueVisitor(f.temp)
	forLeft.visit(node.Left)
	f.append(forLeft)

	var instantiator, instantiatorTypeArgs il.Value
	if typ.IsInstantiated() {
		instantiator = f.buildNullValue()
		instantiatorTypeArgs = f.buildNullValue()
	} else {
		instantiator, instantiatorTypeArgs = f.buildTypecheckArguments(node.P)
	}

	f.returnComputation(&il.InstanceOfComp{
		P:                    node.P,
		TryIndex:             f.owner.tryIndex(),
		Val:                  forLeft.value(),
		Instantiator:         instantiator,
		InstantiatorTypeArgs: instantiatorTypeArgs,
		Type:                 typ,
		Negate:               negate,
	})
}

func (f *fragment) buildTypeCast(node *ast.ComparisonNode) {
	typ := node.Right.(*ast.TypeNode).Type
	if !typ.IsFinalized() {
		panic("unfinalized type in type cast")
	}

	forValue := f.owner.valueVisitor(f.temp)
	forValue.visit(node.Left)
	f.append(forValue)

	castName := rt.Intern("type cast")

	if !f.forValue() {
		if !f.canSkipTypeCheck(forValue.value(), typ) {
			f.do(f.buildAssertAssignable(node.P, forValue.value(), typ, castName))
		}

		return
	}

	f.returnValue(f.buildAssignableValue(node.P, forValue.value(), typ, castName))
}

func (f *fragment) visitUnaryOp(node *ast.UnaryOpNode) {
	// Operator ! cannot be overloaded.
	if node.Op == ast.NOT {
		forValue := f.owner.valueVisitor(f.temp)
		forValue.visit(node.Operand)
		f.append(forValue)

		value := forValue.value()
		if f.owner.opts.EnableTypeChecks {
			value = f.bind(&il.AssertBooleanComp{
				P:        node.Operand.Pos(),
				TryIndex: f.owner.tryIndex(),
				Val:      value,
			})
		}

		f.returnComputation(&il.BooleanNegateComp{Val: value})

		return
	}

	forValue := f.owner.valueVisitor(f.temp)
	forValue.visit(node.Operand)
	f.append(forValue)

	kind := node.Op
	if kind == ast.SUB {
		kind = ast.NEGATE
	}

	f.returnComputation(&il.InstanceCallComp{
		P:               node.P,
		TryIndex:        f.owner.tryIndex(),
		Name:            rt.Intern(kind.Name()),
		Kind:            kind,
		Args:            []il.Value{forValue.value()},
		CheckedArgCount: 1,
	})
}

func (f *fragment) visitConditionalExpr(node *ast.ConditionalExprNode) {
	forTest := f.owner.testVisitor(f.temp, node.Condition.Pos())
	forTest.visit(node.Condition)

	if !f.forValue() {
		forTrue := f.owner.effectVisitor(f.temp)
		forTrue.visit(node.TrueExpr)

		forFalse := f.owner.effectVisitor(f.temp)
		forFalse.visit(node.FalseExpr)

		f.join(forTest, forTrue, forFalse)

		return
	}

	exprTemp := f.owner.parsed.ExpressionTempVar

	forTrue := f.owner.valueVisitor(f.temp)
	forTrue.visit(node.TrueExpr)

	if !forTrue.isOpen() {
		panic("conditional arm closed")
	}

	forTrue.do(forTrue.buildStoreLocal(exprTemp, forTrue.value()))

	forFalse := f.owner.valueVisitor(f.temp)
	forFalse.visit(node.FalseExpr)

	if !forFalse.isOpen() {
		panic("conditional arm closed")
	}

	forFalse.do(forFalse.buildStoreLocal(exprTemp, forFalse.value()))

	f.join(forTest, forTrue, forFalse)
	f.returnComputation(f.buildLoadLocal(exprTemp))
}

func (f *fragment) translateArgumentList(node *ast.ArgumentListNode, values *[]il.Value) {
	for _, arg := range node.Nodes {
		forArgument := f.owner.valueVisitor(f.temp)
		forArgument.visit(arg)
		f.append(forArgument)

		*values = append(*values, forArgument.value())
	}
}

func (f *fragment) visitArray(node *ast.ArrayNode) {
	values := make([]il.Value, 0, len(node.Elements))

	for _, el := range node.Elements {
		forValue := f.owner.valueVisitor(f.temp)
		forValue.visit(el)
		f.append(forValue)

		values = append(values, forValue.value())
	}

	elementType := f.buildInstantiatedTypeArguments(node.P, node.TypeArgs)

	f.returnComputation(&il.CreateArrayComp{
		P:           node.P,
		TryIndex:    f.owner.tryIndex(),
		Elements:    values,
		ElementType: elementType,
	})
}

func (f *fragment) visitClosure(node *ast.ClosureNode) {
	function := node.Function

	var receiver il.Value

	switch {
	case function.IsNonImplicitClosureFunction():
		// Preserve the outer scope on first build; the context scope
		// may have been set by an earlier compilation already.
		if function.ContextScope == nil {
			if function.HasCode {
				panic("closure with code but no context scope")
			}

			function.ContextScope = &rt.ContextScope{
				Level:        f.owner.contextLevel,
				NumVariables: node.Scope.NumContextVariables(),
			}
		}

		receiver = f.buildNullValue()
	case function.IsImplicitInstanceClosureFunction():
		forReceiver := f.owner.valueVisitor(f.temp)
		forReceiver.visit(node.Receiver)
		f.append(forReceiver)

		receiver = forReceiver.value()
	default:
		receiver = f.buildNullValue()
	}

	var typeArguments il.Value
	if function.Owner != nil && function.Owner.NumTypeParameters > 0 && !function.IsImplicitStaticClosureFunction() {
		typeArguments = f.buildInstantiatorTypeArguments(node.P, nil)
	} else {
		typeArguments = f.buildNullValue()
	}

	f.returnComputation(&il.CreateClosureComp{
		P:             node.P,
		TryIndex:      f.owner.tryIndex(),
		Function:      function,
		TypeArguments: typeArguments,
		Receiver:      receiver,
	})
}

func (f *fragment) visitInstanceCall(node *ast.InstanceCallNode) {
	forReceiver := f.owner.valueVisitor(f.temp)
	forReceiver.visit(node.Receiver)
	f.append(forReceiver)

	values := make([]il.Value, 0, len(node.Args.Nodes)+1)
	values = append(values, forReceiver.value())
	f.translateArgumentList(node.Args, &values)

	f.returnComputation(&il.InstanceCallComp{
		P:               node.P,
		TryIndex:        f.owner.tryIndex(),
		Name:            node.Name,
		Kind:            ast.ILLEGAL,
		Args:            values,
		ArgNames:        node.Args.Names,
		CheckedArgCount: 1,
	})
}

func (f *fragment) visitStaticCall(node *ast.StaticCallNode) {
	values := make([]il.Value, 0, len(node.Args.Nodes))
	f.translateArgumentList(node.Args, &values)

	f.returnComputation(&il.StaticCallComp{
		P:        node.P,
		TryIndex: f.owner.tryIndex(),
		Function: node.Function,
		ArgNames: node.Args.Names,
		Args:     values,
	})
}

func (f *fragment) buildClosureCall(node *ast.ClosureCallNode) *il.ClosureCallComp {
	forClosure := f.owner.valueVisitor(f.temp)
	forClosure.visit(node.Closure)
	f.append(forClosure)

	values := make([]il.Value, 0, len(node.Args.Nodes)+1)
	values = append(values, forClosure.value())
	f.translateArgumentList(node.Args, &values)

	// Save the context around the call.
	f.buildStoreContext(f.owner.parsed.ExpressionTempVar)

	return &il.ClosureCallComp{
		P:        node.P,
		TryIndex: f.owner.tryIndex(),
		Args:     values,
	}
}

func (f *fragment) visitClosureCall(node *ast.ClosureCallNode) {
	if !f.forValue() {
		f.do(f.buildClosureCall(node))
		f.buildLoadContext(f.owner.parsed.ExpressionTempVar)

		return
	}

	result := f.bind(f.buildClosureCall(node))
	f.buildLoadContext(f.owner.parsed.ExpressionTempVar)
	f.returnValue(result)
}

func (f *fragment) visitCloneContext(node *ast.CloneContextNode) {
	context := f.bind(&il.CurrentContextComp{})
	clone := f.bind(&il.CloneContextComp{
		P:        node.P,
		TryIndex: f.owner.tryIndex(),
		Context:  context,
	})

	f.returnComputation(&il.StoreContextComp{Val: clone})
}

func (f *fragment) buildObjectAllocation(node *ast.ConstructorCallNode) il.Value {
	cls := node.Constructor.Owner
	requiresTypeArguments := cls.NumTypeParameters > 0

	var allocateArguments []il.Value
	if requiresTypeArguments {
		f.buildConstructorTypeArguments(node, &allocateArguments)
	}

	// With checked mode on, uninstantiated type arguments may need a
	// bounds check at run time.
	withinBounds := true
	if node.TypeArgs != nil {
		withinBounds, _ = node.TypeArgs.IsWithinBoundsOf(cls)
	}

	if f.owner.opts.EnableTypeChecks &&
		requiresTypeArguments &&
		node.TypeArgs != nil &&
		!node.TypeArgs.IsInstantiated() &&
		!withinBounds {
		return f.bind(&il.AllocateObjectWithBoundsCheckComp{
			P:           node.P,
			TryIndex:    f.owner.tryIndex(),
			Constructor: node.Constructor,
			Args:        allocateArguments,
		})
	}

	return f.bind(&il.AllocateObjectComp{
		P:           node.P,
		TryIndex:    f.owner.tryIndex(),
		Constructor: node.Constructor,
		Args:        allocateArguments,
	})
}

func (f *fragment) buildConstructorCall(node *ast.ConstructorCallNode, allocValue il.Value) {
	ctorArg := f.bind(&il.ConstantComp{Literal: rt.NewSmi(rt.CtorPhaseAll)})

	values := []il.Value{allocValue, ctorArg}
	f.translateArgumentList(node.Args, &values)

	f.do(&il.StaticCallComp{
		P:        node.P,
		TryIndex: f.owner.tryIndex(),
		Function: node.Constructor,
		ArgNames: node.Args.Names,
		Args:     values,
	})
}

// Non-factory construction in value position:
//
//	t_n   <- AllocateObject(class)
//	t_n   <- StoreLocal(temp, t_n)
//	t_n+1 <- ctor-arg
//	StaticCall(constructor, t_n, t_n+1, ...)
//	t_n   <- LoadLocal(temp)
func (f *fragment) visitConstructorCall(node *ast.ConstructorCallNode) {
	if node.Constructor.IsFactory() {
		values := []il.Value{
			f.buildInstantiatedTypeArguments(node.P, node.TypeArgs),
		}
		f.translateArgumentList(node.Args, &values)

		f.returnComputation(&il.StaticCallComp{
			P:        node.P,
			TryIndex: f.owner.tryIndex(),
			Function: node.Constructor,
			ArgNames: node.Args.Names,
			Args:     values,
		})

		return
	}

	if !f.forValue() {
		// No need to preserve the allocated value.
		allocate := f.buildObjectAllocation(node)
		f.buildConstructorCall(node, allocate)

		return
	}

	allocate := f.buildObjectAllocation(node)
	allocatedValue := f.bind(f.buildStoreLocal(node.AllocatedObjectVar, allocate))
	f.buildConstructorCall(node, allocatedValue)
	f.returnValue(f.bind(f.buildLoadLocal(node.AllocatedObjectVar)))
}

func (f *fragment) buildInstantiator() il.Value {
	instantiatorClass := f.owner.parsed.Function.Owner
	if instantiatorClass == nil || instantiatorClass.NumTypeParameters == 0 {
		return nil
	}

	outer := f.owner.parsed.Function
	for outer.IsLocalFunction() {
		outer = outer.Parent
	}

	if outer.IsFactory() {
		return nil
	}

	if f.owner.parsed.InstantiatorNode == nil {
		panic("missing instantiator")
	}

	forInstantiator := f.owner.valueVisitor(f.temp)
	forInstantiator.visit(f.owner.parsed.InstantiatorNode)
	f.append(forInstantiator)

	return forInstantiator.value()
}

// The expression temp may not be used here when instantiator is
// non-nil; the caller owns it in that case.
func (f *fragment) buildInstantiatorTypeArguments(pos ast.Pos, instantiator il.Value) il.Value {
	instantiatorClass := f.owner.parsed.Function.Owner
	if instantiatorClass == nil || instantiatorClass.NumTypeParameters == 0 {
		// The type arguments are compile time constants.
		return f.bind(&il.ConstantComp{Literal: rt.NewTypeArguments(nil)})
	}

	outer := f.owner.parsed.Function
	for outer.IsLocalFunction() {
		outer = outer.Parent
	}

	if outer.IsFactory() {
		// The instantiator is the first parameter of the factory,
		// already a type-arguments vector.
		if instantiator != nil {
			panic("factory with explicit instantiator")
		}

		forInstantiator := f.owner.valueVisitor(f.temp)
		forInstantiator.visit(f.owner.parsed.InstantiatorNode)
		f.append(forInstantiator)

		return forInstantiator.value()
	}

	if instantiator == nil {
		instantiator = f.buildInstantiator()
	}

	// The instantiator is the receiver; extract its type arguments at
	// the class-specific field offset.
	offset := instantiatorClass.TypeArgumentsInstanceFieldOffset()
	if offset == rt.NoTypeArguments {
		panic("instantiator class has no type arguments field")
	}

	return f.bind(&il.LoadVMFieldComp{
		Obj:           instantiator,
		OffsetInBytes: offset,
	})
}

func (f *fragment) buildInstantiatedTypeArguments(pos ast.Pos, typeArgs *rt.TypeArguments) il.Value {
	if typeArgs == nil || typeArgs.IsInstantiated() {
		return f.bind(&il.ConstantComp{Literal: rt.NewTypeArguments(typeArgs)})
	}

	instantiatorValue := f.buildInstantiatorTypeArguments(pos, nil)

	return f.bind(&il.InstantiateTypeArgumentsComp{
		P:             pos,
		TryIndex:      f.owner.tryIndex(),
		TypeArguments: typeArgs,
		Instantiator:  instantiatorValue,
	})
}

// Uninstantiated constructor type arguments are extracted through two
// temps:
//
//	t1 = InstantiatorTypeArguments()
//	t2 = ExtractConstructorTypeArguments(t1)
//	t1 = ExtractConstructorInstantiator(t1)
func (f *fragment) buildConstructorTypeArguments(node *ast.ConstructorCallNode, args *[]il.Value) {
	cls := node.Constructor.Owner
	if cls.NumTypeParameters == 0 || node.Constructor.IsFactory() {
		panic("constructor type arguments without type parameters")
	}

	if node.TypeArgs == nil || node.TypeArgs.IsInstantiated() {
		typeArgs := f.bind(&il.ConstantComp{Literal: rt.NewTypeArguments(node.TypeArgs)})
		noInstantiator := f.bind(&il.ConstantComp{Literal: rt.NewSmi(rt.NoInstantiator)})
		*args = append(*args, typeArgs, noInstantiator)

		return
	}

	t1 := f.owner.parsed.ExpressionTempVar
	t2 := node.AllocatedObjectVar

	instantiatorTypeArguments := f.buildInstantiatorTypeArguments(node.P, nil)

	if _, ok := instantiatorTypeArguments.(*il.UseVal); !ok {
		panic("instantiator type arguments must be a use")
	}

	storedInstantiator := f.bind(f.buildStoreLocal(t1, instantiatorTypeArguments))

	extractTypeArguments := f.bind(&il.ExtractConstructorTypeArgumentsComp{
		P:             node.P,
		TryIndex:      f.owner.tryIndex(),
		TypeArguments: node.TypeArgs,
		Instantiator:  storedInstantiator,
	})
	f.do(f.buildStoreLocal(t2, extractTypeArguments))

	loadInstantiator := f.bind(f.buildLoadLocal(t1))
	extractInstantiator := f.bind(&il.ExtractConstructorInstantiatorComp{
		Constructor:  node.Constructor,
		Instantiator: loadInstantiator,
	})
	f.do(f.buildStoreLocal(t1, extractInstantiator))

	*args = append(*args, f.bind(f.buildLoadLocal(t2)), f.bind(f.buildLoadLocal(t1)))
}

func (f *fragment) visitInstanceGetter(node *ast.InstanceGetterNode) {
	forReceiver := f.owner.valueVisitor(f.temp)
	forReceiver.visit(node.Receiver)
	f.append(forReceiver)

	f.returnComputation(&il.InstanceCallComp{
		P:               node.P,
		TryIndex:        f.owner.tryIndex(),
		Name:            rt.GetterName(node.FieldName),
		Kind:            ast.GET,
		Args:            []il.Value{forReceiver.value()},
		CheckedArgCount: 1,
	})
}

func (f *fragment) buildInstanceSetterValues(node *ast.InstanceSetterNode) (receiver, value il.Value) {
	forReceiver := f.owner.valueVisitor(f.temp)
	forReceiver.visit(node.Receiver)
	f.append(forReceiver)

	forValue := f.owner.valueVisitor(f.temp)
	forValue.visit(node.Value)
	f.append(forValue)

	return forReceiver.value(), forValue.value()
}

func (f *fragment) visitInstanceSetter(node *ast.InstanceSetterNode) {
	receiver, value := f.buildInstanceSetterValues(node)

	if !f.forValue() {
		f.returnComputation(&il.InstanceSetterComp{
			P:         node.P,
			TryIndex:  f.owner.tryIndex(),
			FieldName: node.FieldName,
			Receiver:  receiver,
			Val:       value,
		})

		return
	}

	exprTemp := f.owner.parsed.ExpressionTempVar

	savedValue := f.bind(f.buildStoreLocal(exprTemp, value))
	f.do(&il.InstanceSetterComp{
		P:         node.P,
		TryIndex:  f.owner.tryIndex(),
		FieldName: node.FieldName,
		Receiver:  receiver,
		Val:       savedValue,
	})

	f.returnComputation(f.buildLoadLocal(exprTemp))
}

func (f *fragment) visitStaticGetter(node *ast.StaticGetterNode) {
	getter := node.Class.LookupStaticFunction(rt.GetterName(node.FieldName))
	if getter == nil {
		panic(fmt.Sprintf("static getter %v not found", node.FieldName))
	}

	f.returnComputation(&il.StaticCallComp{
		P:        node.P,
		TryIndex: f.owner.tryIndex(),
		Function: getter,
	})
}

func (f *fragment) visitStaticSetter(node *ast.StaticSetterNode) {
	setter := node.Class.LookupStaticFunction(rt.SetterName(node.FieldName))
	if setter == nil {
		panic(fmt.Sprintf("static setter %v not found", node.FieldName))
	}

	forValue := f.owner.valueVisitor(f.temp)
	forValue.visit(node.Value)
	f.append(forValue)

	f.returnComputation(&il.StaticSetterComp{
		P:        node.P,
		TryIndex: f.owner.tryIndex(),
		Setter:   setter,
		Val:      forValue.value(),
	})
}

func (f *fragment) visitNativeBody(node *ast.NativeBodyNode) {
	f.returnComputation(&il.NativeCallComp{
		P:        node.P,
		TryIndex: f.owner.tryIndex(),
		Name:     node.Name,
		ArgCount: node.ArgCount,
	})
}

func (f *fragment) visitLoadLocal(node *ast.LoadLocalNode) {
	if node.Pseudo != nil {
		forPseudo := f.owner.effectVisitor(f.temp)
		forPseudo.visit(node.Pseudo)
		f.append(forPseudo)
	}

	if f.forValue() {
		f.returnComputation(f.buildLoadLocal(node.Local))
	}
}

func (f *fragment) visitStoreLocal(node *ast.StoreLocalNode) {
	forValue := f.owner.valueVisitor(f.temp)
	forValue.visit(node.Value)
	f.append(forValue)

	storeValue := forValue.value()
	if f.owner.opts.EnableTypeChecks {
		storeValue = f.buildAssignableValue(node.Value.Pos(), storeValue, node.Local.Type, node.Local.Name)
	}

	f.returnComputation(f.buildStoreLocal(node.Local, storeValue))
}

func (f *fragment) visitLoadInstanceField(node *ast.LoadInstanceFieldNode) {
	forInstance := f.owner.valueVisitor(f.temp)
	forInstance.visit(node.Instance)
	f.append(forInstance)

	f.returnComputation(&il.LoadInstanceFieldComp{
		Field:    node.Field,
		Instance: forInstance.value(),
	})
}

func (f *fragment) visitStoreInstanceField(node *ast.StoreInstanceFieldNode) {
	if f.forValue() {
		panic("store instance field produces no value")
	}

	forInstance := f.owner.valueVisitor(f.temp)
	forInstance.visit(node.Instance)
	f.append(forInstance)

	forValue := f.owner.valueVisitor(f.temp)
	forValue.visit(node.Value)
	f.append(forValue)

	storeValue := forValue.value()
	if f.owner.opts.EnableTypeChecks {
		storeValue = f.buildAssignableValue(node.Value.Pos(), storeValue, node.Field.Type, node.Field.Name)
	}

	f.returnComputation(&il.StoreInstanceFieldComp{
		Field:    node.Field,
		Instance: forInstance.value(),
		Val:      storeValue,
	})
}

func (f *fragment) visitLoadStaticField(node *ast.LoadStaticFieldNode) {
	f.returnComputation(&il.LoadStaticFieldComp{Field: node.Field})
}

func (f *fragment) visitStoreStaticField(node *ast.StoreStaticFieldNode) {
	forValue := f.owner.valueVisitor(f.temp)
	forValue.visit(node.Value)
	f.append(forValue)

	storeValue := forValue.value()
	if f.owner.opts.EnableTypeChecks {
		storeValue = f.buildAssignableValue(node.Value.Pos(), storeValue, node.Field.Type, node.Field.Name)
	}

	f.returnComputation(&il.StoreStaticFieldComp{
		Field: node.Field,
		Val:   storeValue,
	})
}

func (f *fragment) visitLoadIndexed(node *ast.LoadIndexedNode) {
	forArray := f.owner.valueVisitor(f.temp)
	forArray.visit(node.Array)
	f.append(forArray)

	forIndex := f.owner.valueVisitor(f.temp)
	forIndex.visit(node.Index)
	f.append(forIndex)

	f.returnComputation(&il.LoadIndexedComp{
		P:        node.P,
		TryIndex: f.owner.tryIndex(),
		Array:    forArray.value(),
		Index:    forIndex.value(),
	})
}

func (f *fragment) buildStoreIndexedValues(node *ast.StoreIndexedNode) (array, index, value il.Value) {
	forArray := f.owner.valueVisitor(f.temp)
	forArray.visit(node.Array)
	f.append(forArray)

	forIndex := f.owner.valueVisitor(f.temp)
	forIndex.visit(node.Index)
	f.append(forIndex)

	forValue := f.owner.valueVisitor(f.temp)
	forValue.visit(node.Value)
	f.append(forValue)

	return forArray.value(), forIndex.value(), forValue.value()
}

func (f *fragment) visitStoreIndexed(node *ast.StoreIndexedNode) {
	array, index, value := f.buildStoreIndexedValues(node)

	if !f.forValue() {
		f.returnComputation(&il.StoreIndexedComp{
			P:        node.P,
			TryIndex: f.owner.tryIndex(),
			Array:    array,
			Index:    index,
			Val:      value,
		})

		return
	}

	exprTemp := f.owner.parsed.ExpressionTempVar

	savedValue := f.bind(f.buildStoreLocal(exprTemp, value))
	f.do(&il.StoreIndexedComp{
		P:        node.P,
		TryIndex: f.owner.tryIndex(),
		Array:    array,
		Index:    index,
		Val:      savedValue,
	})

	f.returnComputation(f.buildLoadLocal(exprTemp))
}
