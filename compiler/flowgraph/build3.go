package flowgraph

import (
	"github.com/kitelang/kite/compiler/ast"
	"github.com/kitelang/kite/compiler/il"
	"github.com/kitelang/kite/compiler/rt"
)

// buildStoreLocal lowers a store into either a frame slot or the
// context object owning a captured variable.
func (f *fragment) buildStoreLocal(local *ast.LocalVariable, value il.Value) il.Computation {
	if !local.Captured {
		return &il.StoreLocalComp{
			Local:        local,
			Val:          value,
			ContextLevel: f.owner.contextLevel,
		}
	}

	delta := f.owner.contextLevel - local.Owner.ContextLevel()
	if delta < 0 {
		panic("store to outer context below current level")
	}

	context := il.Value(f.bind(&il.CurrentContextComp{}))
	for ; delta > 0; delta-- {
		context = f.bind(&il.LoadVMFieldComp{
			Obj:           context,
			OffsetInBytes: rt.ContextParentOffset(),
		})
	}

	return &il.StoreVMFieldComp{
		Obj:           context,
		OffsetInBytes: rt.ContextVariableOffset(local.Index),
		Val:           value,
		Type:          local.Type,
	}
}

func (f *fragment) buildLoadLocal(local *ast.LocalVariable) il.Computation {
	if !local.Captured {
		return &il.LoadLocalComp{
			Local:        local,
			ContextLevel: f.owner.contextLevel,
		}
	}

	delta := f.owner.contextLevel - local.Owner.ContextLevel()
	if delta < 0 {
		panic("load from outer context below current level")
	}

	context := il.Value(f.bind(&il.CurrentContextComp{}))
	for ; delta > 0; delta-- {
		context = f.bind(&il.LoadVMFieldComp{
			Obj:           context,
			OffsetInBytes: rt.ContextParentOffset(),
		})
	}

	return &il.LoadVMFieldComp{
		Obj:           context,
		OffsetInBytes: rt.ContextVariableOffset(local.Index),
		Type:          local.Type,
	}
}

// buildStoreContext saves the current context into variable.
func (f *fragment) buildStoreContext(variable *ast.LocalVariable) {
	context := f.bind(&il.CurrentContextComp{})
	f.do(f.buildStoreLocal(variable, context))
}

// buildLoadContext installs the context saved in variable.
func (f *fragment) buildLoadContext(variable *ast.LocalVariable) {
	loadSavedContext := f.bind(f.buildLoadLocal(variable))
	f.do(&il.StoreContextComp{Val: loadSavedContext})
}

func (f *fragment) unchainContext() {
	context := f.bind(&il.CurrentContextComp{})
	parent := f.bind(&il.LoadVMFieldComp{
		Obj:           context,
		OffsetInBytes: rt.ContextParentOffset(),
	})
	f.do(&il.StoreContextComp{Val: parent})
}

func (f *fragment) buildNullValue() il.Value {
	return f.bind(&il.ConstantComp{Literal: rt.Null()})
}

// canSkipTypeCheck reports whether an assignability check against
// dstType can be proven redundant at build time. A nil value stands
// for an operand with no known static type, e.g. a passed parameter.
func (f *fragment) canSkipTypeCheck(value il.Value, dstType rt.Type) bool {
	if dstType == nil || !dstType.IsFinalized() {
		panic("type check against unfinalized type")
	}

	if !f.owner.opts.EliminateTypeChecks {
		return false
	}

	// Everything is assignable to dynamic and to Object.
	if !dstType.IsMalformed() && (dstType.IsDynamicType() || dstType.IsObjectType()) {
		return true
	}

	// Functions without an explicit return value implicitly return
	// null, void functions included; trust the analyzer there.
	if dstType.IsVoidType() {
		return true
	}

	if value == nil {
		return false
	}

	staticType := il.StaticTypeOf(value)
	if staticType.IsMalformed() {
		panic("malformed static type")
	}

	// A void-typed value must be null, which the runtime check
	// verifies.
	if staticType.IsVoidType() {
		return false
	}

	if staticType.IsNullType() {
		return true
	}

	// Subtyping is not transitive across run time and compile time;
	// the more-specific-than relation is, so only it can eliminate
	// the check.
	if ok, _ := staticType.IsMoreSpecificThan(dstType); ok {
		return true
	}

	return false
}

func (f *fragment) buildAssertAssignable(pos ast.Pos, value il.Value, dstType rt.Type, dstName rt.Symbol) *il.AssertAssignableComp {
	var instantiator, instantiatorTypeArgs il.Value

	if dstType.IsInstantiated() {
		instantiator = f.buildNullValue()
		instantiatorTypeArgs = f.buildNullValue()
	} else {
		instantiator, instantiatorTypeArgs = f.buildTypecheckArguments(pos)
	}

	return &il.AssertAssignableComp{
		P:                    pos,
		TryIndex:             f.owner.tryIndex(),
		Val:                  value,
		Instantiator:         instantiator,
		InstantiatorTypeArgs: instantiatorTypeArgs,
		DstType:              dstType,
		DstName:              dstName,
	}
}

func (f *fragment) buildAssignableValue(pos ast.Pos, value il.Value, dstType rt.Type, dstName rt.Symbol) il.Value {
	if f.canSkipTypeCheck(value, dstType) {
		return value
	}

	return f.bind(f.buildAssertAssignable(pos, value, dstType, dstName))
}

func (f *fragment) buildTypecheckArguments(pos ast.Pos) (instantiator, instantiatorTypeArgs il.Value) {
	instantiatorClass := f.owner.parsed.Function.Owner
	if instantiatorClass == nil || instantiatorClass.NumTypeParameters == 0 {
		// Only reached when the tested type is uninstantiated.
		panic("typecheck arguments without type parameters")
	}

	instantiator = f.buildInstantiator()
	if instantiator == nil {
		// No instantiator inside a factory.
		instantiator = f.buildNullValue()
		instantiatorTypeArgs = f.buildInstantiatorTypeArguments(pos, nil)

		return instantiator, instantiatorTypeArgs
	}

	// Preserve the instantiator; it is consumed twice.
	exprTemp := f.owner.parsed.ExpressionTempVar
	instantiator = f.bind(f.buildStoreLocal(exprTemp, instantiator))
	loaded := f.bind(f.buildLoadLocal(exprTemp))
	instantiatorTypeArgs = f.buildInstantiatorTypeArguments(pos, loaded)

	return instantiator, instantiatorTypeArgs
}

func (f *fragment) mustSaveRestoreContext(node *ast.SequenceNode) bool {
	return node == f.owner.parsed.NodeSequence && f.owner.parsed.SavedContextVar != nil
}

func (f *fragment) visitSequence(node *ast.SequenceNode) {
	scope := node.Scope

	numContextVariables := 0
	if scope != nil {
		numContextVariables = scope.NumContextVariables()
	}

	previousContextLevel := f.owner.contextLevel

	if numContextVariables > 0 {
		// The scope declares captured variables; allocate and chain a
		// new context off the current one.
		allocatedContext := f.bind(&il.AllocateContextComp{
			P:                   node.P,
			TryIndex:            f.owner.tryIndex(),
			NumContextVariables: numContextVariables,
		})

		// For the body of a non-closure function the current context
		// must not be reachable through the new chain; save it aside
		// and install a null parent instead.
		if f.mustSaveRestoreContext(node) {
			currentContext := f.bind(&il.CurrentContextComp{})
			f.do(f.buildStoreLocal(f.owner.parsed.SavedContextVar, currentContext))

			nullContext := f.bind(&il.ConstantComp{Literal: rt.Null()})
			f.do(&il.StoreContextComp{Val: nullContext})
		}

		f.do(&il.ChainContextComp{Context: allocatedContext})
		f.owner.contextLevel = scope.ContextLevel()

		// Copy captured parameters from their frame slots into the
		// context and null the frame slot to catch stale reads.
		if node == f.owner.parsed.NodeSequence {
			if scope.ContextLevel() != 1 {
				panic("function body context level must be 1")
			}

			function := f.owner.parsed.Function
			for pos := 0; pos < function.NumFixedParameters; pos++ {
				parameter := scope.VariableAt(pos)
				if parameter.Owner != scope {
					panic("parameter owned by inner scope")
				}

				if !parameter.Captured {
					continue
				}

				origLocal := &ast.LocalVariable{
					Name:  rt.Intern(string(parameter.Name) + "-orig"),
					Type:  rt.Dynamic(),
					Index: pos,
				}

				load := f.bind(f.buildLoadLocal(origLocal))
				f.do(f.buildStoreLocal(parameter, load))

				nullConstant := f.bind(&il.ConstantComp{Literal: rt.Null()})
				f.do(f.buildStoreLocal(origLocal, nullConstant))
			}
		}
	}

	if f.owner.opts.EnableTypeChecks && node == f.owner.parsed.NodeSequence && scope != nil {
		function := f.owner.parsed.Function

		pos := 0
		if function.IsConstructor() {
			// Skip the receiver and the phase argument.
			pos = 2
		} else if function.IsFactory() || function.IsDynamicFunction() {
			// Skip the type arguments or the receiver.
			pos = 1
		}

		for ; pos < function.NumFixedParameters; pos++ {
			parameter := scope.VariableAt(pos)
			if parameter.Owner != scope {
				panic("parameter owned by inner scope")
			}

			if !f.canSkipTypeCheck(nil, parameter.Type) {
				load := f.bind(f.buildLoadLocal(parameter))
				f.do(f.buildAssertAssignable(parameter.P, load, parameter.Type, parameter.Name))
			}
		}
	}

	for i := 0; f.isOpen() && i < len(node.Nodes); i++ {
		forEffect := f.owner.effectVisitor(f.temp)
		forEffect.visit(node.Nodes[i])
		f.append(forEffect)
	}

	if f.isOpen() {
		if f.mustSaveRestoreContext(node) {
			f.buildLoadContext(f.owner.parsed.SavedContextVar)
		} else if numContextVariables > 0 {
			f.unchainContext()
		}
	}

	if node.Label != nil {
		if f.owner.continueJoin(node.Label) != nil {
			panic("continue target on sequence")
		}

		// A break out of a labeled sequence has already unchained the
		// context.
		if breakJoin := f.owner.breakJoin(node.Label); breakJoin != nil {
			if f.isOpen() {
				f.addInstruction(breakJoin)
			} else {
				f.exit = breakJoin
			}
		}
	}

	f.owner.contextLevel = previousContextLevel
}

func (f *fragment) visitReturn(node *ast.ReturnNode) {
	forValue := f.owner.valueVisitor(f.temp)
	forValue.visit(node.Value)
	f.append(forValue)

	for _, fin := range node.InlinedFinally {
		forEffect := f.owner.effectVisitor(f.temp)
		forEffect.visit(fin)
		f.append(forEffect)

		if !f.isOpen() {
			return
		}
	}

	returnValue := forValue.value()

	if f.owner.opts.EnableTypeChecks {
		function := f.owner.parsed.Function

		// Implicit getters need no check at return unless they
		// compute the initial value of a static field.
		if function.Static || !function.IsImplicitGetter() {
			dstType := function.Result
			if dstType == nil {
				dstType = rt.Dynamic()
			}

			returnValue = f.buildAssignableValue(node.Value.Pos(), returnValue, dstType, rt.Intern("function result"))
		}
	}

	currentContextLevel := f.owner.contextLevel
	if currentContextLevel < 0 {
		panic("negative context level")
	}

	if f.owner.parsed.SavedContextVar != nil {
		// The context on entry was saved, not chained as parent.
		f.buildLoadContext(f.owner.parsed.SavedContextVar)
	} else {
		for ; currentContextLevel > 0; currentContextLevel-- {
			f.unchainContext()
		}
	}

	f.addInstruction(&il.ReturnInstr{P: node.P, Val: returnValue})
	f.closeFragment()
}

func (f *fragment) visitIf(node *ast.IfNode) {
	forTest := f.owner.testVisitor(f.temp, node.Condition.Pos())
	forTest.visit(node.Condition)

	forTrue := f.owner.effectVisitor(f.temp)
	forFalse := f.owner.effectVisitor(f.temp)

	forTrue.visit(node.TrueBranch)

	if node.FalseBranch != nil {
		forFalse.visit(node.FalseBranch)
	}

	f.join(forTest, forTrue, forFalse)
}

// While loop fragment:
//
//	a) continue-join (optional)
//	b) loop-join
//	c) [ test ] -> (body-entry-target, loop-exit-target)
//	d) body-entry-target
//	e) [ body ] -> (loop-join)
//	f) loop-exit-target
//	g) break-join (optional)
func (f *fragment) visitWhile(node *ast.WhileNode) {
	forTest := f.owner.testVisitor(f.temp, node.Condition.Pos())
	forTest.visit(node.Condition)

	if forTest.isEmpty() {
		panic("empty loop condition")
	}

	forBody := f.owner.effectVisitor(f.temp)
	forBody.do(&il.CheckStackOverflowComp{P: node.P, TryIndex: f.owner.tryIndex()})
	forBody.visit(node.Body)

	// Jump joins exist only after body traversal.
	if node.Label != nil {
		if continueJoin := f.owner.continueJoin(node.Label); continueJoin != nil {
			f.addInstruction(continueJoin)
		}
	}

	f.tieLoop(forTest, forBody)

	if node.Label != nil {
		if breakJoin := f.owner.breakJoin(node.Label); breakJoin != nil {
			f.addInstruction(breakJoin)
		}
	}
}

// Do-while loop fragment:
//
//	a) body-entry-join
//	b) [ body ]
//	c) test-entry (continue-join or body-exit-target)
//	d) [ test ] -> (back-target, loop-exit-target)
//	e) back-target -> (body-entry-join)
//	f) loop-exit-target
//	g) break-join (optional)
func (f *fragment) visitDoWhile(node *ast.DoWhileNode) {
	// Traverse the body first to materialize continue and break joins.
	forBody := f.owner.effectVisitor(f.temp)
	forBody.do(&il.CheckStackOverflowComp{P: node.P, TryIndex: f.owner.tryIndex()})
	forBody.visit(node.Body)

	forTest := f.owner.testVisitor(f.temp, node.Condition.Pos())
	forTest.visit(node.Condition)

	if !f.isOpen() {
		panic("do-while in closed fragment")
	}

	bodyEntryJoin := il.NewJoinEntry()
	f.addInstruction(bodyEntryJoin)
	bodyExit := appendFragment(bodyEntryJoin, forBody)

	var continueJoin *il.JoinEntry
	if node.Label != nil {
		continueJoin = f.owner.continueJoin(node.Label)
	}

	if forBody.isOpen() || continueJoin != nil {
		var testEntry il.BlockEntry
		if continueJoin != nil {
			testEntry = continueJoin
		} else {
			testEntry = il.NewTargetEntry()
		}

		testEntry.SetSuccessor(forTest.entry)

		if bodyExit != nil {
			bodyExit.SetSuccessor(testEntry)
		}
	}

	backTarget := il.NewTargetEntry()
	*forTest.trueAddr = backTarget
	backTarget.SetSuccessor(bodyEntryJoin)

	loopExit := il.NewTargetEntry()
	*forTest.falseAddr = loopExit

	var breakJoin *il.JoinEntry
	if node.Label != nil {
		breakJoin = f.owner.breakJoin(node.Label)
	}

	if breakJoin == nil {
		f.exit = loopExit
	} else {
		loopExit.SetSuccessor(breakJoin)
		f.exit = breakJoin
	}
}

// For loop fragment ('break' joins at the exit, 'continue' before the
// increment; the test sits at the bottom, reusing the body entry as
// its true successor):
//
//	a) [ initializer ]
//	b) loop-join
//	c) [ test ] -> (body-entry-target, loop-exit-target)
//	d) body-entry-target
//	e) [ body ]
//	f) continue-join (optional)
//	g) [ increment ] -> (loop-join)
//	h) loop-exit-target
//	i) break-join (optional)
func (f *fragment) visitFor(node *ast.ForNode) {
	if node.Initializer != nil {
		forInitializer := f.owner.effectVisitor(f.temp)
		forInitializer.visit(node.Initializer)
		f.append(forInitializer)
	}

	if !f.isOpen() {
		panic("for loop in closed fragment")
	}

	// Compose the body first to materialize any jump joins.
	forBody := f.owner.effectVisitor(f.temp)
	bodyEntry := il.NewTargetEntry()
	forBody.addInstruction(bodyEntry)
	forBody.do(&il.CheckStackOverflowComp{P: node.P, TryIndex: f.owner.tryIndex()})
	forBody.visit(node.Body)

	var continueJoin *il.JoinEntry
	if node.Label != nil {
		continueJoin = f.owner.continueJoin(node.Label)
	}

	forIncrement := f.owner.effectVisitor(f.temp)

	var loopIncrementEnd il.Instruction

	switch {
	case continueJoin == nil && forBody.isOpen():
		// No extra basic block needed.
		if node.Increment != nil {
			forIncrement.visit(node.Increment)
		}

		forBody.append(forIncrement)
		loopIncrementEnd = forBody.exit
	case continueJoin != nil:
		if forBody.isOpen() {
			forBody.exit.SetSuccessor(continueJoin)
		}

		forIncrement.addInstruction(continueJoin)

		if node.Increment != nil {
			forIncrement.visit(node.Increment)
		}

		loopIncrementEnd = forIncrement.exit
	default:
		// No backward branch exists.
		loopIncrementEnd = nil
	}

	if loopIncrementEnd != nil {
		loopStart := il.NewJoinEntry()
		f.addInstruction(loopStart)
		loopIncrementEnd.SetSuccessor(loopStart)
	}

	var breakJoin *il.JoinEntry
	if node.Label != nil {
		breakJoin = f.owner.breakJoin(node.Label)
	}

	if node.Condition == nil {
		// Endless loop.
		f.append(forBody)

		if breakJoin == nil {
			f.closeFragment()
		} else {
			f.exit = breakJoin
		}

		return
	}

	loopExit := il.NewTargetEntry()

	forTest := f.owner.testVisitor(f.temp, node.Condition.Pos())
	forTest.visit(node.Condition)
	f.append(forTest)

	*forTest.trueAddr = bodyEntry
	*forTest.falseAddr = loopExit

	if breakJoin == nil {
		f.exit = loopExit
	} else {
		loopExit.SetSuccessor(breakJoin)
		f.exit = breakJoin
	}
}

func (f *fragment) visitJump(node *ast.JumpNode) {
	for _, fin := range node.InlinedFinally {
		forEffect := f.owner.effectVisitor(f.temp)
		forEffect.visit(fin)
		f.append(forEffect)

		if !f.isOpen() {
			return
		}
	}

	// Unchain contexts up to the outer context level of the scope
	// containing the destination label.
	label := node.Label
	if label.Owner == nil {
		panic("unresolved jump label")
	}

	targetContextLevel := 0
	targetScope := label.Owner

	if targetScope.NumContextVariables() > 0 {
		// The target scope allocates a context; its outer scope is
		// one level below.
		targetContextLevel = targetScope.ContextLevel() - 1
	} else {
		for targetScope != nil && targetScope.NumContextVariables() == 0 {
			targetScope = targetScope.Parent
		}

		if targetScope != nil {
			targetContextLevel = targetScope.ContextLevel()
		}
	}

	if targetContextLevel < 0 {
		panic("negative target context level")
	}

	currentContextLevel := f.owner.contextLevel
	if currentContextLevel < targetContextLevel {
		panic("jump target above current context level")
	}

	for ; currentContextLevel > targetContextLevel; currentContextLevel-- {
		f.unchainContext()
	}

	var jumpTarget *il.JoinEntry
	if node.Kind == ast.BREAK {
		jumpTarget = f.owner.ensureBreakJoin(label)
	} else {
		jumpTarget = f.owner.ensureContinueJoin(label)
	}

	f.addInstruction(jumpTarget)
	f.closeFragment()
}

func (f *fragment) visitSwitch(node *ast.SwitchNode) {
	forBody := f.owner.effectVisitor(f.temp)
	forBody.visit(node.Body)
	f.append(forBody)

	if node.Label != nil {
		if breakJoin := f.owner.breakJoin(node.Label); breakJoin != nil {
			if f.isOpen() {
				f.addInstruction(breakJoin)
			} else {
				f.exit = breakJoin
			}
		}

		// No continue label allowed on the switch itself.
		if f.owner.continueJoin(node.Label) != nil {
			panic("continue target on switch")
		}
	}
}

// A case node holds zero or more case expressions, possibly a default,
// and a statement body. The tests chain through fresh target entries;
// all true successors route to a shared join in front of the
// statements unless a single case makes the join redundant.
func (f *fragment) visitCase(node *ast.CaseNode) {
	length := len(node.Expressions)
	needsJoinAtStatementEntry := length > 1 || (length > 0 && node.ContainsDefault)

	forCaseStatements := f.owner.effectVisitor(f.temp)

	var statementStart il.BlockEntry

	switch {
	case node.Label != nil && node.Label.ContinueTarget:
		// A labeled continue into this case occurs in a different
		// case node; share its join as the statement start.
		statementStart = f.owner.ensureContinueJoin(node.Label)
	case needsJoinAtStatementEntry:
		statementStart = il.NewJoinEntry()
	default:
		statementStart = il.NewTargetEntry()
	}

	forCaseStatements.addInstruction(statementStart)
	forCaseStatements.visit(node.Statements)

	if f.isOpen() && length == 0 {
		if !node.ContainsDefault {
			panic("case node without expressions must contain default")
		}

		f.append(forCaseStatements)

		return
	}

	// Lower every case expression as a test and collect its successor
	// slots; only the first test is appended inline.
	caseTrueAddrs := make([]**il.TargetEntry, 0, length)
	caseFalseAddrs := make([]**il.TargetEntry, 0, length)
	caseEntries := make([]*il.TargetEntry, 0, length)

	for i, caseExpr := range node.Expressions {
		forCaseExpression := f.owner.testVisitor(f.temp, caseExpr.Pos())

		if i == 0 {
			caseEntries = append(caseEntries, nil)
			forCaseExpression.visit(caseExpr)
			f.append(forCaseExpression)
		} else {
			caseEntryTarget := il.NewTargetEntry()
			caseEntries = append(caseEntries, caseEntryTarget)
			forCaseExpression.addInstruction(caseEntryTarget)
			forCaseExpression.visit(caseExpr)
		}

		caseTrueAddrs = append(caseTrueAddrs, forCaseExpression.trueAddr)
		caseFalseAddrs = append(caseFalseAddrs, forCaseExpression.falseAddr)
	}

	if f.isOpen() {
		panic("test fragment left the graph open")
	}

	// Chain all tests except the last one.
	for i := 0; i < length-1; i++ {
		*caseFalseAddrs[i] = caseEntries[i+1]

		trueTarget := il.NewTargetEntry()
		*caseTrueAddrs[i] = trueTarget
		trueTarget.SetSuccessor(statementStart)
	}

	var exitInstruction il.Instruction

	if length > 0 {
		// The last false successor routes to the default path or the
		// exit.
		if target, ok := statementStart.(*il.TargetEntry); ok {
			*caseTrueAddrs[length-1] = target
		} else {
			trueTarget := il.NewTargetEntry()
			*caseTrueAddrs[length-1] = trueTarget
			trueTarget.SetSuccessor(statementStart)
		}

		falseTarget := il.NewTargetEntry()
		*caseFalseAddrs[length-1] = falseTarget

		if node.ContainsDefault {
			falseTarget.SetSuccessor(statementStart)

			if forCaseStatements.isOpen() {
				exit := il.NewTargetEntry()
				forCaseStatements.exit.SetSuccessor(exit)
				exitInstruction = exit
			}
		} else {
			if forCaseStatements.isOpen() {
				exit := il.NewJoinEntry()
				forCaseStatements.exit.SetSuccessor(exit)
				exitInstruction = exit
			} else {
				exitInstruction = il.NewTargetEntry()
			}

			falseTarget.SetSuccessor(exitInstruction)
		}
	} else {
		panic("closed fragment before default-only case")
	}

	f.exit = exitInstruction
}

func (f *fragment) visitCatchClause(node *ast.CatchClauseNode) {
	// The implicit exception and stacktrace variables are never
	// captured.
	f.do(&il.CatchEntryComp{
		ExceptionVar:  node.ExceptionVar,
		StacktraceVar: node.StacktraceVar,
	})
	f.buildLoadContext(node.ContextVar)

	forCatch := f.owner.effectVisitor(f.temp)
	forCatch.visit(node.Body)
	f.append(forCatch)
}

func (f *fragment) visitTryCatch(node *ast.TryCatchNode) {
	oldTryIndex := f.owner.tryIndex()
	tryIndex := f.owner.allocateTryIndex()
	f.owner.setTryIndex(tryIndex)

	// Preserve the context across the try block.
	f.buildStoreContext(node.ContextVar)

	forTryBlock := f.owner.effectVisitor(f.temp)
	forTryBlock.visit(node.TryBlock)
	f.append(forTryBlock)

	f.owner.setTryIndex(oldTryIndex)

	if node.CatchBlock != nil {
		// The catch handler pc is resolved through the try index.
		node.CatchBlock.TryIndex = tryIndex

		forCatchBlock := f.owner.effectVisitor(f.temp)
		catchEntry := il.NewCatchTargetEntry(tryIndex)
		forCatchBlock.addInstruction(catchEntry)
		forCatchBlock.visit(node.CatchBlock)
		f.owner.addCatchEntry(catchEntry)

		if forCatchBlock.isOpen() {
			panic("catch block left open")
		}

		if node.EndCatchLabel != nil {
			if endCatch := f.owner.continueJoin(node.EndCatchLabel); endCatch != nil {
				if f.isOpen() {
					f.addInstruction(endCatch)
				} else {
					f.exit = endCatch
				}
			}
		}
	}

	if node.FinallyBlock != nil && f.isOpen() {
		forFinallyBlock := f.owner.effectVisitor(f.temp)
		forFinallyBlock.visit(node.FinallyBlock)
		f.append(forFinallyBlock)
	}
}

func (f *fragment) buildThrow(node *ast.ThrowNode) {
	forException := f.owner.valueVisitor(f.temp)
	forException.visit(node.Exception)
	f.append(forException)

	if node.Stacktrace == nil {
		f.addInstruction(&il.ThrowInstr{
			P:         node.P,
			TryIdx:    f.owner.tryIndex(),
			Exception: forException.value(),
		})

		return
	}

	forStackTrace := f.owner.valueVisitor(f.temp)
	forStackTrace.visit(node.Stacktrace)
	f.append(forStackTrace)

	f.addInstruction(&il.ReThrowInstr{
		P:          node.P,
		TryIdx:     f.owner.tryIndex(),
		Exception:  forException.value(),
		Stacktrace: forStackTrace.value(),
	})
}

func (f *fragment) visitThrow(node *ast.ThrowNode) {
	f.buildThrow(node)

	if !f.forValue() {
		f.closeFragment()
		return
	}

	// The parser may place a throw in expression position; yield a
	// null so the fragment stays open mid-expression.
	f.returnComputation(&il.ConstantComp{Literal: rt.Null()})
}

func (f *fragment) visitInlinedFinally(node *ast.InlinedFinallyNode) {
	tryIndex := f.owner.tryIndex()

	// Exceptions thrown in an inlined finally block belong to the
	// outer try block, if any.
	if tryIndex >= 0 {
		f.owner.setTryIndex(tryIndex - 1)
	}

	f.buildLoadContext(node.ContextVar)

	forFinallyBlock := f.owner.effectVisitor(f.temp)
	forFinallyBlock.visit(node.FinallyBlock)
	f.append(forFinallyBlock)

	if tryIndex >= 0 {
		f.owner.setTryIndex(tryIndex)
	}
}
