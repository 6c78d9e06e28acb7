package moka

import (
	"bytes"
	"errors"
	"testing"

	"mokalift/classfile"
)

func testOwner() classfile.ClassReference { return classfile.NewClassReference("com/example/T") }

func TestLiftAddTwoParams(t *testing.T) {
	desc := classfile.MethodDescriptor{
		ParametersTypes: []classfile.FieldType{classfile.Int, classfile.Int},
		ReturnType:      classfile.ReturnOf(classfile.Int),
	}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.ILoad, Index: 0},
		1: {Op: classfile.ILoad, Index: 1},
		2: {Op: classfile.IAdd},
		3: {Op: classfile.IReturn},
	}
	method := &classfile.Method{
		AccessFlags: classfile.AccStatic,
		Name:        "add",
		Descriptor:  desc,
		Owner:       testOwner(),
		Body: &classfile.MethodBody{
			MaxStack: 2, MaxLocals: 2,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}

	ir, err := Lift(method)
	assert(t, err == nil, "lift should succeed: %v", err)
	assert(t, len(ir.Instructions) == len(instrs), "expected an IR instruction for every reachable pc")

	def, ok := ir.Instructions[2].(Definition)
	assert(t, ok, "pc 2 should lift to a Definition, got %T", ir.Instructions[2])
	arith, ok := def.Expr.(ArithExpr)
	assert(t, ok, "pc 2's expression should be arithmetic, got %T", def.Expr)
	assert(t, arith.Op == classfile.IAdd, "expected iadd")
	assert(t, arith.Args[0].Single() == Arg(0), "first operand should be arg0")
	assert(t, arith.Args[1].Single() == Arg(1), "second operand should be arg1")

	ret, ok := ir.Instructions[3].(Return)
	assert(t, ok, "pc 3 should lift to Return, got %T", ir.Instructions[3])
	assert(t, ret.Value.Single() == Def(LocalDef(2)), "return value should reference pc 2's definition")
}

func TestLiftBranchMergesToPhi(t *testing.T) {
	desc := classfile.MethodDescriptor{
		ParametersTypes: []classfile.FieldType{classfile.Int},
		ReturnType:      classfile.ReturnOf(classfile.Int),
	}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.ILoad, Index: 0},
		1: {Op: classfile.IfLe, Target: 4},
		2: {Op: classfile.IConst, Const: classfile.IntValue(1)},
		3: {Op: classfile.Goto, Target: 5},
		4: {Op: classfile.IConst, Const: classfile.IntValue(2)},
		5: {Op: classfile.IReturn},
	}
	method := &classfile.Method{
		AccessFlags: classfile.AccStatic,
		Name:        "choose",
		Descriptor:  desc,
		Owner:       testOwner(),
		Body: &classfile.MethodBody{
			MaxStack: 1, MaxLocals: 1,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}

	ir, err := Lift(method)
	assert(t, err == nil, "lift should succeed: %v", err)

	ret, ok := ir.Instructions[5].(Return)
	assert(t, ok, "pc 5 should be a Return, got %T", ir.Instructions[5])
	assert(t, ret.Value.IsPhi(), "return value at the merge point should be a phi")
	ids := ret.Value.Identifiers()
	assert(t, len(ids) == 2, "expected a 2-way phi, got %d", len(ids))

	branchEdges := ir.CFG.EdgesFrom(1)
	assert(t, len(branchEdges) == 2, "conditional jump should have 2 successors, got %d", len(branchEdges))
	for _, e := range branchEdges {
		assert(t, e.Data.Kind == Conditional, "both legs of the branch should be tagged conditional")
	}
}

func TestLiftTryCatchAddsExceptionEdge(t *testing.T) {
	desc := classfile.MethodDescriptor{ReturnType: classfile.ReturnOf(classfile.Int)}
	riskyRef := classfile.MethodReference{Owner: testOwner(), Name: "risky", Descriptor: desc}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.InvokeStatic, Method: &riskyRef, Invoke: classfile.InvokeKindStatic},
		1: {Op: classfile.IReturn},
		2: {Op: classfile.IConst, Const: classfile.IntValue(-1)},
		3: {Op: classfile.IReturn},
	}
	exceptionClass := classfile.NewClassReference("java/lang/Exception")
	method := &classfile.Method{
		AccessFlags: classfile.AccStatic,
		Name:        "guarded",
		Descriptor:  desc,
		Owner:       testOwner(),
		Body: &classfile.MethodBody{
			MaxStack: 2, MaxLocals: 0,
			Instructions: classfile.NewInstructionList(instrs),
			ExceptionTable: []classfile.ExceptionTableEntry{
				{StartPC: 0, EndPC: 0, HandlerPC: 2, CatchType: &exceptionClass},
			},
		},
	}

	ir, err := Lift(method)
	assert(t, err == nil, "lift should succeed: %v", err)

	edges := ir.CFG.EdgesFrom(0)
	var sawException bool
	for _, e := range edges {
		if e.Data.Kind == Exception {
			sawException = true
			assert(t, e.To == 2, "exception edge should target the handler pc")
			assert(t, len(e.Data.CaughtClasses) == 1 && e.Data.CaughtClasses[0].Name == "java/lang/Exception",
				"expected the declared catch type")
		}
	}
	assert(t, sawException, "expected an exception edge out of the invoke instruction")
	assert(t, len(ir.ExceptionTable) == 1, "the lifted method should carry the exception table over")

	def, ok := ir.Instructions[2].(Definition)
	assert(t, ok, "handler entry pc should still lift its own const, got %T", ir.Instructions[2])
	_, isConst := def.Expr.(ConstExpr)
	assert(t, isConst, "expected a ConstExpr at the handler entry pc, got %T", def.Expr)
}

func TestLiftExceptionEdgeOnlyFromThrowCapablePCs(t *testing.T) {
	desc := classfile.MethodDescriptor{
		ParametersTypes: []classfile.FieldType{classfile.Int},
		ReturnType:      classfile.ReturnOf(classfile.Int),
	}
	field := classfile.FieldReference{Owner: testOwner(), Name: "counter", Type: classfile.Int}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.ILoad, Index: 0},
		1: {Op: classfile.GetStatic, Field: &field},
		2: {Op: classfile.IAdd},
		3: {Op: classfile.IReturn},
		4: {Op: classfile.IConst, Const: classfile.IntValue(0)},
		5: {Op: classfile.IReturn},
	}
	method := &classfile.Method{
		AccessFlags: classfile.AccStatic,
		Name:        "readCounter",
		Descriptor:  desc,
		Owner:       testOwner(),
		Body: &classfile.MethodBody{
			MaxStack: 2, MaxLocals: 1,
			Instructions: classfile.NewInstructionList(instrs),
			ExceptionTable: []classfile.ExceptionTableEntry{
				{StartPC: 0, EndPC: 2, HandlerPC: 4},
			},
		},
	}

	ir, err := Lift(method)
	assert(t, err == nil, "lift should succeed: %v", err)

	for _, e := range ir.CFG.EdgesFrom(0) {
		assert(t, e.Data.Kind != Exception, "a load (lifted to Nop) should not grow exception edges")
	}
	var fromGetstatic, fromAdd bool
	for _, e := range ir.CFG.EdgesFrom(1) {
		fromGetstatic = fromGetstatic || e.Data.Kind == Exception
	}
	for _, e := range ir.CFG.EdgesFrom(2) {
		fromAdd = fromAdd || e.Data.Kind == Exception
	}
	assert(t, fromGetstatic, "getstatic should reach the handler")
	assert(t, !fromAdd, "iadd cannot throw and should not reach the handler")
	for _, e := range ir.CFG.EdgesFrom(1) {
		if e.Data.Kind == Exception {
			assert(t, len(e.Data.CaughtClasses) == 1 && e.Data.CaughtClasses[0] == classfile.ObjectThrowable,
				"an entry with no catch type should default to java/lang/Throwable")
		}
	}
}

func TestLiftTableSwitch(t *testing.T) {
	desc := classfile.MethodDescriptor{
		ParametersTypes: []classfile.FieldType{classfile.Int},
		ReturnType:      classfile.ReturnOf(classfile.Int),
	}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.ILoad, Index: 0},
		1: {Op: classfile.TableSwitch, Low: 0, High: 1, Default: 6, Targets: []classfile.ProgramCounter{2, 4}},
		2: {Op: classfile.IConst, Const: classfile.IntValue(10)},
		3: {Op: classfile.IReturn},
		4: {Op: classfile.IConst, Const: classfile.IntValue(11)},
		5: {Op: classfile.IReturn},
		6: {Op: classfile.IConst, Const: classfile.IntValue(-1)},
		7: {Op: classfile.IReturn},
	}
	method := &classfile.Method{
		AccessFlags: classfile.AccStatic,
		Name:        "dispatch",
		Descriptor:  desc,
		Owner:       testOwner(),
		Body: &classfile.MethodBody{
			MaxStack: 1, MaxLocals: 1,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}

	ir, err := Lift(method)
	assert(t, err == nil, "lift should succeed: %v", err)

	sw, ok := ir.Instructions[1].(Switch)
	assert(t, ok, "pc 1 should lift to Switch, got %T", ir.Instructions[1])
	assert(t, len(sw.Cases) == 2, "expected 2 cases, got %d", len(sw.Cases))
	assert(t, sw.Cases[0].Match == 0 && sw.Cases[1].Match == 1, "tableswitch keys should start at low")
	assert(t, sw.Default == 6, "expected default target 6")
	assert(t, sw.Scrutinee.Single() == Arg(0), "scrutinee should be the loaded parameter")

	edges := ir.CFG.EdgesFrom(1)
	assert(t, len(edges) == 3, "expected 3 outgoing edges (2 cases + default), got %d", len(edges))
	for _, e := range edges {
		assert(t, e.Data.Kind == Conditional, "switch edges should be tagged conditional")
	}
}

func TestLiftWideLongAdd(t *testing.T) {
	desc := classfile.MethodDescriptor{
		ParametersTypes: []classfile.FieldType{classfile.Long},
		ReturnType:      classfile.ReturnOf(classfile.Long),
	}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.LLoad, Index: 0},
		1: {Op: classfile.LConst, Const: classfile.LongValue(1)},
		2: {Op: classfile.LAdd},
		3: {Op: classfile.LReturn},
	}
	method := &classfile.Method{
		AccessFlags: classfile.AccStatic,
		Name:        "addOne",
		Descriptor:  desc,
		Owner:       testOwner(),
		Body: &classfile.MethodBody{
			MaxStack: 4, MaxLocals: 2,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}

	ir, err := Lift(method)
	assert(t, err == nil, "lift should succeed: %v", err)
	def, ok := ir.Instructions[2].(Definition)
	assert(t, ok, "pc 2 should be a Definition, got %T", ir.Instructions[2])
	arith := def.Expr.(ArithExpr)
	assert(t, arith.Op == classfile.LAdd, "expected ladd")
	assert(t, arith.Args[0].Single() == Arg(0), "first operand should be the long parameter")

	ret := ir.Instructions[3].(Return)
	assert(t, ret.Value.Single() == Def(LocalDef(2)), "lreturn should return the ladd definition")
}

func TestLiftConversionCategories(t *testing.T) {
	desc := classfile.MethodDescriptor{
		ParametersTypes: []classfile.FieldType{classfile.Int},
		ReturnType:      classfile.ReturnOf(classfile.Int),
	}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.ILoad, Index: 0},
		1: {Op: classfile.I2L},
		2: {Op: classfile.L2I},
		3: {Op: classfile.IReturn},
	}
	method := &classfile.Method{
		AccessFlags: classfile.AccStatic,
		Name:        "roundTrip",
		Descriptor:  desc,
		Owner:       testOwner(),
		Body: &classfile.MethodBody{
			MaxStack: 2, MaxLocals: 1,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}

	ir, err := Lift(method)
	assert(t, err == nil, "lift should succeed: %v", err)

	widen, ok := ir.Instructions[1].(Definition)
	assert(t, ok, "i2l should lift to a Definition, got %T", ir.Instructions[1])
	conv := widen.Expr.(ConversionExpr)
	assert(t, conv.Op == classfile.I2L, "expected i2l")
	assert(t, conv.Arg.Single() == Arg(0), "i2l should consume the int parameter")

	narrow := ir.Instructions[2].(Definition)
	back := narrow.Expr.(ConversionExpr)
	assert(t, back.Op == classfile.L2I, "expected l2i")
	assert(t, back.Arg.Single() == Def(LocalDef(1)), "l2i should consume the widened value")

	ret := ir.Instructions[3].(Return)
	assert(t, ret.Value.Single() == Def(LocalDef(2)), "the narrowed value should be returned")
}

func TestLiftStackOverflowIsExecutionError(t *testing.T) {
	desc := classfile.MethodDescriptor{ReturnType: classfile.ReturnOf(classfile.Int)}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.IConst, Const: classfile.IntValue(1)},
		1: {Op: classfile.IConst, Const: classfile.IntValue(2)},
		2: {Op: classfile.IReturn},
	}
	method := &classfile.Method{
		AccessFlags: classfile.AccStatic,
		Name:        "tooDeep",
		Descriptor:  desc,
		Owner:       testOwner(),
		Body: &classfile.MethodBody{
			MaxStack: 1, MaxLocals: 0,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}

	_, err := Lift(method)
	assert(t, err != nil, "pushing past max_stack should fail the lift")
	var execErr *ExecutionError
	assert(t, errors.As(err, &execErr), "expected an ExecutionError, got %T", err)
	assert(t, execErr.Kind == ErrStackOverflow, "expected a stack overflow, got %v", execErr.Kind)
	assert(t, execErr.PC == 1, "the overflow should be reported at the second push")
}

func TestLiftNoBodyErrors(t *testing.T) {
	method := &classfile.Method{Name: "abstractMethod", Owner: testOwner()}
	_, err := Lift(method)
	assert(t, errors.Is(err, ErrNoBody), "expected ErrNoBody lifting a method with no body, got %v", err)
}

func TestLiftIdentityOnInt(t *testing.T) {
	desc := classfile.MethodDescriptor{
		ParametersTypes: []classfile.FieldType{classfile.Int},
		ReturnType:      classfile.ReturnOf(classfile.Int),
	}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.ILoad, Index: 0},
		1: {Op: classfile.IReturn},
	}
	method := &classfile.Method{
		AccessFlags: classfile.AccStatic,
		Name:        "identity",
		Descriptor:  desc,
		Owner:       testOwner(),
		Body: &classfile.MethodBody{
			MaxStack: 1, MaxLocals: 1,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}

	ir, err := Lift(method)
	assert(t, err == nil, "lift should succeed: %v", err)
	_, isNop := ir.Instructions[0].(Nop)
	assert(t, isNop, "a bare load should lift to Nop, got %T", ir.Instructions[0])
	ret := ir.Instructions[1].(Return)
	assert(t, ret.Value.Single() == Arg(0), "identity function should return arg0 unchanged")

	exits := ir.CFG.Exits()
	assert(t, len(exits) == 1 && exits[0] == 1, "the return pc should be the only exit")
}

func TestLiftSubroutineCallAndReturn(t *testing.T) {
	desc := classfile.MethodDescriptor{ReturnType: classfile.VoidReturn}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.Jsr, Target: 3},
		1: {Op: classfile.Return},
		3: {Op: classfile.AStore, Index: 0},
		4: {Op: classfile.Ret, Index: 0},
	}
	method := &classfile.Method{
		AccessFlags: classfile.AccStatic,
		Name:        "finallyBlock",
		Descriptor:  desc,
		Owner:       testOwner(),
		Body: &classfile.MethodBody{
			MaxStack: 1, MaxLocals: 1,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}

	ir, err := Lift(method)
	assert(t, err == nil, "lift should succeed: %v", err)

	jsr, ok := ir.Instructions[0].(Definition)
	assert(t, ok, "pc 0 should lift to a Definition, got %T", ir.Instructions[0])
	sub, ok := jsr.Expr.(SubroutineExpr)
	assert(t, ok, "pc 0's expression should be a subroutine call, got %T", jsr.Expr)
	assert(t, sub.Target == 3, "jsr should target pc 3")
	assert(t, sub.ReturnAddress == 1, "jsr's return address should be the next pc")

	ret, ok := ir.Instructions[4].(SubroutineRet)
	assert(t, ok, "pc 4 should lift to SubroutineRet, got %T", ir.Instructions[4])
	assert(t, ret.Addr.Single() == Def(LocalDef(0)), "ret's operand should be the jsr definition")

	edges := ir.CFG.EdgesFrom(4)
	assert(t, len(edges) == 1, "ret should have exactly one successor, got %d", len(edges))
	assert(t, edges[0].To == 1, "ret should return control to pc 1")
	assert(t, edges[0].Data.Kind == SubroutineReturn, "ret's edge should be tagged SubroutineReturn")
}

func TestLiftHasNoDuplicateEdges(t *testing.T) {
	desc := classfile.MethodDescriptor{ReturnType: classfile.VoidReturn}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.Goto, Target: 0},
	}
	method := &classfile.Method{
		AccessFlags: classfile.AccStatic,
		Name:        "loop",
		Descriptor:  desc,
		Owner:       testOwner(),
		Body: &classfile.MethodBody{
			MaxStack: 0, MaxLocals: 0,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}
	ir, err := Lift(method)
	assert(t, err == nil, "self-loop should lift without error: %v", err)
	assert(t, len(ir.CFG.EdgesFrom(0)) == 1, "self-loop should have exactly one outgoing edge")
}

func TestLiftSwitchWithSharedTargets(t *testing.T) {
	desc := classfile.MethodDescriptor{
		ParametersTypes: []classfile.FieldType{classfile.Int},
		ReturnType:      classfile.ReturnOf(classfile.Int),
	}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.ILoad, Index: 0},
		1: {Op: classfile.LookupSwitch, Default: 2, Targets: []classfile.ProgramCounter{2, 4}, Matches: []int32{7, 42}},
		2: {Op: classfile.IConst, Const: classfile.IntValue(0)},
		3: {Op: classfile.IReturn},
		4: {Op: classfile.IConst, Const: classfile.IntValue(1)},
		5: {Op: classfile.IReturn},
	}
	method := &classfile.Method{
		AccessFlags: classfile.AccStatic,
		Name:        "sparse",
		Descriptor:  desc,
		Owner:       testOwner(),
		Body: &classfile.MethodBody{
			MaxStack: 1, MaxLocals: 1,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}

	ir, err := Lift(method)
	assert(t, err == nil, "a switch whose default shares a case target should lift: %v", err)

	sw := ir.Instructions[1].(Switch)
	assert(t, len(sw.Cases) == 2, "both declared cases should survive in the IR")
	assert(t, sw.Cases[0].Match == 7 && sw.Cases[1].Match == 42, "lookupswitch keys should keep declared order")
	assert(t, len(ir.CFG.EdgesFrom(1)) == 2, "coinciding targets should collapse to one edge apiece")
}

func TestLiftIsDeterministic(t *testing.T) {
	desc := classfile.MethodDescriptor{
		ParametersTypes: []classfile.FieldType{classfile.Int},
		ReturnType:      classfile.ReturnOf(classfile.Int),
	}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.ILoad, Index: 0},
		1: {Op: classfile.IfLe, Target: 4},
		2: {Op: classfile.IConst, Const: classfile.IntValue(1)},
		3: {Op: classfile.Goto, Target: 5},
		4: {Op: classfile.IConst, Const: classfile.IntValue(2)},
		5: {Op: classfile.IReturn},
	}
	build := func() *classfile.Method {
		return &classfile.Method{
			AccessFlags: classfile.AccStatic,
			Name:        "choose",
			Descriptor:  desc,
			Owner:       testOwner(),
			Body: &classfile.MethodBody{
				MaxStack: 1, MaxLocals: 1,
				Instructions: classfile.NewInstructionList(instrs),
			},
		}
	}

	first, err := Lift(build())
	assert(t, err == nil, "lift should succeed: %v", err)
	second, err := Lift(build())
	assert(t, err == nil, "lift should succeed: %v", err)

	var a, b bytes.Buffer
	Dump(&a, first)
	Dump(&b, second)
	assert(t, a.String() == b.String(), "repeated lifts should render identically:\n%s\nvs\n%s", a.String(), b.String())
}
