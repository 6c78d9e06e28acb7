package moka

import (
	"mokalift/classfile"
)

// jumpTarget is one explicit control transfer leaving an instruction
// (a branch, switch case, subroutine call or subroutine return), paired
// with the frame state live at that target.
type jumpTarget struct {
	PC       classfile.ProgramCounter
	Frame    JvmStackFrame
	Transfer ControlTransfer
}

// liftStep is the result of simulating one instruction against the
// abstract frame: the MokaInstruction it lifts to, the frame left behind
// for fallthrough (meaningful only if Fallthrough is true), and any
// explicit jump targets.
type liftStep struct {
	Instruction MokaInstruction
	Frame       JvmStackFrame
	Fallthrough bool
	// FallthroughTransfer labels the fallthrough edge, if any. The zero
	// value is UnconditionalTransfer(); a conditional branch overrides it
	// to ConditionalTransfer() since the fallthrough leg is just as much a
	// function of the predicate as the taken leg.
	FallthroughTransfer ControlTransfer
	Jumps               []jumpTarget
}

// step simulates a single bytecode instruction against frame (which step
// mutates a clone of, never the caller's copy) and returns the lifted
// MokaInstruction plus every place control can go next, aside from
// exception edges, which the caller layers on uniformly from the method's
// exception table. A frame fault (underflow, category mismatch, bad
// local index) surfaces as an ExecutionError at this PC.
func step(pc classfile.ProgramCounter, instr classfile.Instruction, next classfile.ProgramCounter, hasNext bool, in JvmStackFrame) (result liftStep, err error) {
	defer func() {
		if r := recover(); r != nil {
			flt, ok := r.(frameFault)
			if !ok {
				panic(r)
			}
			result = liftStep{}
			err = &ExecutionError{PC: pc, Kind: flt.Kind, Detail: flt.Detail}
		}
	}()

	f := in.Clone()
	op := instr.Op

	switch {
	case op.IsCategory2() && isConstLoadStore(op):
		return stepWideLoadStoreConst(pc, instr, f)
	case isWideBinaryArith(op):
		b := f.PopWide()
		a := f.PopWide()
		return defAndFallthroughWide(pc, f, ArithExpr{Op: op, Args: []Argument{a, b}})
	case isWideUnaryArith(op):
		a := f.PopWide()
		return defAndFallthroughWide(pc, f, ArithExpr{Op: op, Args: []Argument{a}})
	case isWideShift(op):
		shift := f.Pop()
		value := f.PopWide()
		return defAndFallthroughWide(pc, f, ArithExpr{Op: op, Args: []Argument{value, shift}})
	case isWideComparison(op):
		b := f.PopWide()
		a := f.PopWide()
		return defAndFallthrough(pc, f, ComparisonExpr{Op: op, Args: []Argument{a, b}})
	case isNarrowComparison(op):
		b := f.Pop()
		a := f.Pop()
		return defAndFallthrough(pc, f, ComparisonExpr{Op: op, Args: []Argument{a, b}})
	case isConversion(op):
		return stepConversion(pc, instr, f)
	}

	switch op {
	case classfile.Nop:
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil

	case classfile.IConst, classfile.FConst, classfile.Ldc:
		return defAndFallthrough(pc, f, ConstExpr{Value: instr.Const})
	case classfile.BiPush, classfile.SiPush:
		return defAndFallthrough(pc, f, ConstExpr{Value: classfile.IntValue(instr.IntImm)})
	case classfile.AConstNull:
		return defAndFallthrough(pc, f, ConstExpr{Value: classfile.Null})

	case classfile.ILoad, classfile.FLoad, classfile.ALoad:
		f.Push(f.GetLocal(instr.Index))
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil

	case classfile.IStore, classfile.FStore:
		f.SetLocal(instr.Index, f.Pop())
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil
	case classfile.AStore:
		// astore is also how a jsr's return address gets filed into a
		// local, so the popped slot may be a ReturnAddress rather than a
		// plain Value.
		if f.TopIsReturnAddress() {
			f.SetLocalReturnAddressSlot(instr.Index, f.PopReturnAddressSlot())
		} else {
			f.SetLocal(instr.Index, f.Pop())
		}
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil

	case classfile.IALoad, classfile.FALoad, classfile.AALoad, classfile.BALoad, classfile.CALoad, classfile.SALoad:
		idx := f.Pop()
		arr := f.Pop()
		return defAndFallthrough(pc, f, ArrayLoadExpr{Array: arr, Index: idx})
	case classfile.LALoad, classfile.DALoad:
		idx := f.Pop()
		arr := f.Pop()
		return defAndFallthroughWide(pc, f, ArrayLoadExpr{Array: arr, Index: idx})
	case classfile.IAStore, classfile.FAStore, classfile.AAStore, classfile.BAStore, classfile.CAStore, classfile.SAStore:
		val := f.Pop()
		idx := f.Pop()
		arr := f.Pop()
		return sideEffectAndFallthrough(pc, f, ArrayStoreExpr{Array: arr, Index: idx, Value: val})
	case classfile.LAStore, classfile.DAStore:
		val := f.PopWide()
		idx := f.Pop()
		arr := f.Pop()
		return sideEffectAndFallthrough(pc, f, ArrayStoreExpr{Array: arr, Index: idx, Value: val})

	case classfile.Pop:
		f.PopCategory1()
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil
	case classfile.Pop2:
		f.PopCategory2OrTwo1s()
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil
	case classfile.Dup:
		f.Dup()
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil
	case classfile.DupX1:
		f.DupX1()
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil
	case classfile.DupX2:
		f.DupX2()
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil
	case classfile.Dup2:
		f.Dup2()
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil
	case classfile.Dup2X1:
		f.Dup2X1()
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil
	case classfile.Dup2X2:
		f.Dup2X2()
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil
	case classfile.Swap:
		f.Swap()
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil

	case classfile.IAdd, classfile.FAdd, classfile.ISub, classfile.FSub,
		classfile.IMul, classfile.FMul, classfile.IDiv, classfile.FDiv,
		classfile.IRem, classfile.FRem, classfile.IShl, classfile.IShr, classfile.IUShr,
		classfile.IAnd, classfile.IOr, classfile.IXor:
		b := f.Pop()
		a := f.Pop()
		return defAndFallthrough(pc, f, ArithExpr{Op: op, Args: []Argument{a, b}})
	case classfile.INeg, classfile.FNeg:
		a := f.Pop()
		return defAndFallthrough(pc, f, ArithExpr{Op: op, Args: []Argument{a}})
	case classfile.IInc:
		cur := f.GetLocal(instr.Index)
		def := LocalDef(pc)
		f.SetLocal(instr.Index, ArgID(Def(def)))
		return liftStep{
			Instruction: Definition{Def: def, Expr: IncExpr{Arg: cur, Amount: instr.IntImm}},
			Frame:       f,
			Fallthrough: true,
		}, nil

	case classfile.GetStatic:
		return defOrWideDefAndFallthrough(pc, f, instr.Field.Type, FieldReadExpr{Field: *instr.Field})
	case classfile.PutStatic:
		val := popByType(&f, instr.Field.Type)
		return sideEffectAndFallthrough(pc, f, FieldWriteExpr{Field: *instr.Field, Value: val})
	case classfile.GetField:
		recv := f.Pop()
		return defOrWideDefAndFallthrough(pc, f, instr.Field.Type, FieldReadExpr{Field: *instr.Field, Receiver: &recv})
	case classfile.PutField:
		val := popByType(&f, instr.Field.Type)
		recv := f.Pop()
		return sideEffectAndFallthrough(pc, f, FieldWriteExpr{Field: *instr.Field, Receiver: &recv, Value: val})

	case classfile.ArrayLength:
		arr := f.Pop()
		return defAndFallthrough(pc, f, ArrayLengthExpr{Array: arr})

	case classfile.New:
		return defAndFallthrough(pc, f, NewExpr{Class: *instr.Class})
	case classfile.NewArray:
		length := f.Pop()
		return defAndFallthrough(pc, f, NewArrayExpr{ElementType: instr.ArrayType, Length: length})
	case classfile.ANewArray:
		length := f.Pop()
		return defAndFallthrough(pc, f, NewArrayExpr{ElementType: classfile.Object(instr.Class.Name), Length: length})
	case classfile.MultiANewArray:
		dims := make([]Argument, instr.Dimensions)
		for i := int(instr.Dimensions) - 1; i >= 0; i-- {
			dims[i] = f.Pop()
		}
		return defAndFallthrough(pc, f, MultiANewArrayExpr{Class: *instr.Class, Dimensions: dims})

	case classfile.InvokeVirtual, classfile.InvokeSpecial, classfile.InvokeInterface:
		args := popArgs(&f, instr.Method.Descriptor.ParametersTypes)
		recv := f.Pop()
		return invokeAndFallthrough(pc, f, instr, InvokeExpr{Kind: instr.Invoke, Target: *instr.Method, Receiver: &recv, Args: args})
	case classfile.InvokeStatic, classfile.InvokeDynamic:
		args := popArgs(&f, instr.Method.Descriptor.ParametersTypes)
		return invokeAndFallthrough(pc, f, instr, InvokeExpr{Kind: instr.Invoke, Target: *instr.Method, Args: args})

	case classfile.InstanceOf:
		a := f.Pop()
		return defAndFallthrough(pc, f, InstanceOfExpr{Class: *instr.Class, Arg: a})
	case classfile.CheckCast:
		a := f.Pop()
		return defAndFallthrough(pc, f, CheckCastExpr{Class: *instr.Class, Arg: a})

	case classfile.MonitorEnter:
		a := f.Pop()
		return sideEffectAndFallthrough(pc, f, MonitorEnterExpr{Arg: a})
	case classfile.MonitorExit:
		a := f.Pop()
		return sideEffectAndFallthrough(pc, f, MonitorExitExpr{Arg: a})

	case classfile.AThrow:
		a := f.Pop()
		def := LocalDef(pc)
		f.Reachable = false
		return liftStep{Instruction: Definition{Def: def, Expr: ThrowExpr{Arg: a}}, Frame: f}, nil

	case classfile.IReturn, classfile.FReturn, classfile.AReturn:
		a := f.Pop()
		f.Reachable = false
		return liftStep{Instruction: Return{Value: &a}, Frame: f}, nil
	case classfile.LReturn, classfile.DReturn:
		a := f.PopWide()
		f.Reachable = false
		return liftStep{Instruction: Return{Value: &a}, Frame: f}, nil
	case classfile.Return:
		f.Reachable = false
		return liftStep{Instruction: Return{}, Frame: f}, nil

	case classfile.Goto:
		jumpFrame := f.Clone()
		f.Reachable = false
		return liftStep{
			Instruction: Jump{Target: instr.Target},
			Frame:       f,
			Jumps:       []jumpTarget{{PC: instr.Target, Frame: jumpFrame, Transfer: UnconditionalTransfer()}},
		}, nil

	case classfile.Jsr:
		// The return address is the instruction after the jsr; a jsr as
		// the method's last instruction has nowhere to come back to.
		if !hasNext {
			return liftStep{}, ErrMalformedControlFlow
		}
		retPC := next
		def := LocalDef(pc)
		callFrame := f.Clone()
		callFrame.PushReturnAddress(retPC, ArgID(Def(def)))
		f.Reachable = false
		return liftStep{
			Instruction: Definition{Def: def, Expr: SubroutineExpr{Target: instr.Target, ReturnAddress: retPC}},
			Frame:       f,
			Jumps:       []jumpTarget{{PC: instr.Target, Frame: callFrame, Transfer: UnconditionalTransfer()}},
		}, nil

	case classfile.Ret:
		slot := f.GetLocalReturnAddressSlot(instr.Index)
		retFrame := f.Clone()
		f.Reachable = false
		addrs := sortedPCs(slot.RetAddrs)
		jumps := make([]jumpTarget, 0, len(addrs))
		for _, retPC := range addrs {
			jumps = append(jumps, jumpTarget{PC: retPC, Frame: retFrame, Transfer: SubroutineReturnTransfer()})
		}
		return liftStep{Instruction: SubroutineRet{Addr: slot.Value}, Frame: f, Jumps: jumps}, nil

	case classfile.TableSwitch, classfile.LookupSwitch:
		return stepSwitch(pc, instr, f)
	}

	if op.IsConditionalBranch() {
		return stepConditional(pc, instr, next, f)
	}

	return liftStep{}, &ExecutionError{PC: pc, Kind: ErrInvalidOperand, Detail: op.String() + " not handled by semantics"}
}

func isConstLoadStore(op classfile.Opcode) bool {
	switch op {
	case classfile.LConst, classfile.DConst, classfile.LLoad, classfile.DLoad,
		classfile.LStore, classfile.DStore, classfile.Ldc2W:
		return true
	}
	return false
}

// isWideBinaryArith covers the long/double arithmetic and bitwise
// instructions that pop two category-2 operands and push one.
func isWideBinaryArith(op classfile.Opcode) bool {
	switch op {
	case classfile.LAdd, classfile.DAdd, classfile.LSub, classfile.DSub,
		classfile.LMul, classfile.DMul, classfile.LDiv, classfile.DDiv,
		classfile.LRem, classfile.DRem,
		classfile.LAnd, classfile.LOr, classfile.LXor:
		return true
	}
	return false
}

// isWideUnaryArith covers lneg/dneg.
func isWideUnaryArith(op classfile.Opcode) bool {
	switch op {
	case classfile.LNeg, classfile.DNeg:
		return true
	}
	return false
}

// isWideShift covers lshl/lshr/lushr, whose shift amount is a category-1
// int popped above the category-2 value being shifted.
func isWideShift(op classfile.Opcode) bool {
	switch op {
	case classfile.LShl, classfile.LShr, classfile.LUShr:
		return true
	}
	return false
}

// isWideComparison covers lcmp/dcmpl/dcmpg, which pop two category-2
// operands and push a category-1 int result.
func isWideComparison(op classfile.Opcode) bool {
	switch op {
	case classfile.LCmp, classfile.DCmpl, classfile.DCmpg:
		return true
	}
	return false
}

// isNarrowComparison covers fcmpl/fcmpg, which pop two category-1 float
// operands and push a category-1 int result.
func isNarrowComparison(op classfile.Opcode) bool {
	switch op {
	case classfile.FCmpl, classfile.FCmpg:
		return true
	}
	return false
}

func isConversion(op classfile.Opcode) bool {
	switch op {
	case classfile.I2L, classfile.I2F, classfile.I2D,
		classfile.L2I, classfile.L2F, classfile.L2D,
		classfile.F2I, classfile.F2L, classfile.F2D,
		classfile.D2I, classfile.D2L, classfile.D2F,
		classfile.I2B, classfile.I2C, classfile.I2S:
		return true
	}
	return false
}

// stepConversion dispatches the i2l/l2i/... family by the categories of
// the source and destination types: the source decides how the operand
// is popped, the destination how the result is pushed.
func stepConversion(pc classfile.ProgramCounter, instr classfile.Instruction, f JvmStackFrame) (liftStep, error) {
	var a Argument
	switch instr.Op {
	case classfile.L2I, classfile.L2F, classfile.L2D, classfile.D2I, classfile.D2L, classfile.D2F:
		a = f.PopWide()
	default:
		a = f.Pop()
	}
	expr := ConversionExpr{Op: instr.Op, Arg: a}
	switch instr.Op {
	case classfile.I2L, classfile.I2D, classfile.F2L, classfile.F2D, classfile.L2D, classfile.D2L:
		return defAndFallthroughWide(pc, f, expr)
	default:
		return defAndFallthrough(pc, f, expr)
	}
}

func stepWideLoadStoreConst(pc classfile.ProgramCounter, instr classfile.Instruction, f JvmStackFrame) (liftStep, error) {
	switch instr.Op {
	case classfile.LConst, classfile.DConst, classfile.Ldc2W:
		return defAndFallthroughWide(pc, f, ConstExpr{Value: instr.Const})
	case classfile.LLoad, classfile.DLoad:
		f.PushWide(f.GetLocalWide(instr.Index))
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil
	case classfile.LStore, classfile.DStore:
		f.SetLocalWide(instr.Index, f.PopWide())
		return liftStep{Instruction: Nop{}, Frame: f, Fallthrough: true}, nil
	}
	return liftStep{}, &ExecutionError{PC: pc, Kind: ErrInvalidOperand, Detail: "unreachable wide opcode"}
}

func defAndFallthrough(pc classfile.ProgramCounter, f JvmStackFrame, expr Expression) (liftStep, error) {
	def := LocalDef(pc)
	f.Push(ArgID(Def(def)))
	return liftStep{Instruction: Definition{Def: def, Expr: expr}, Frame: f, Fallthrough: true}, nil
}

func defAndFallthroughWide(pc classfile.ProgramCounter, f JvmStackFrame, expr Expression) (liftStep, error) {
	def := LocalDef(pc)
	f.PushWide(ArgID(Def(def)))
	return liftStep{Instruction: Definition{Def: def, Expr: expr}, Frame: f, Fallthrough: true}, nil
}

// defOrWideDefAndFallthrough pushes the definition as one or two slots
// depending on the produced value's type (getfield/getstatic of a long
// or double field pushes a category-2 result).
func defOrWideDefAndFallthrough(pc classfile.ProgramCounter, f JvmStackFrame, t classfile.FieldType, expr Expression) (liftStep, error) {
	if t.IsCategory2() {
		return defAndFallthroughWide(pc, f, expr)
	}
	return defAndFallthrough(pc, f, expr)
}

// invokeAndFallthrough emits the invoke definition, pushing its result
// according to the invoked descriptor's return type: nothing for void,
// two slots for long/double, one slot otherwise.
func invokeAndFallthrough(pc classfile.ProgramCounter, f JvmStackFrame, instr classfile.Instruction, expr InvokeExpr) (liftStep, error) {
	ret := instr.Method.Descriptor.ReturnType
	if ret.Void {
		return sideEffectAndFallthrough(pc, f, expr)
	}
	return defOrWideDefAndFallthrough(pc, f, ret.Type, expr)
}

// sideEffectAndFallthrough emits a Definition kept purely for its
// expression's side effect; the def is allocated so producers uniformly
// have an id, but nothing is pushed for it.
func sideEffectAndFallthrough(pc classfile.ProgramCounter, f JvmStackFrame, expr Expression) (liftStep, error) {
	def := LocalDef(pc)
	return liftStep{Instruction: Definition{Def: def, Expr: expr}, Frame: f, Fallthrough: true}, nil
}

// popByType pops one operand whose slot count depends on its declared
// type (putfield/putstatic of a long/double field pops two slots).
func popByType(f *JvmStackFrame, t classfile.FieldType) Argument {
	if t.IsCategory2() {
		return f.PopWide()
	}
	return f.Pop()
}

// popArgs pops a call's arguments in reverse source order, so the
// returned slice is in declaration order. Category-2 parameters pop two
// slots apiece.
func popArgs(f *JvmStackFrame, params []classfile.FieldType) []Argument {
	args := make([]Argument, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		args[i] = popByType(f, params[i])
	}
	return args
}

func stepConditional(pc classfile.ProgramCounter, instr classfile.Instruction, next classfile.ProgramCounter, f JvmStackFrame) (liftStep, error) {
	condOp, ok := conditionOpFor(instr.Op)
	if !ok {
		return liftStep{}, &ExecutionError{PC: pc, Kind: ErrInvalidOperand, Detail: "unknown conditional opcode"}
	}
	var cond Condition
	if condOp.IsBinary() {
		b := f.Pop()
		a := f.Pop()
		cond = BinaryCondition(condOp, a, b)
	} else {
		a := f.Pop()
		cond = UnaryCondition(condOp, a)
	}
	takenFrame := f.Clone()
	fallFrame := f.Clone()
	return liftStep{
		Instruction:         Jump{Condition: &cond, Target: instr.Target},
		Frame:               fallFrame,
		Fallthrough:         true,
		FallthroughTransfer: ConditionalTransfer(),
		Jumps:               []jumpTarget{{PC: instr.Target, Frame: takenFrame, Transfer: ConditionalTransfer()}},
	}, nil
}

func conditionOpFor(op classfile.Opcode) (ConditionOp, bool) {
	switch op {
	case classfile.IfEq:
		return CondIfEq, true
	case classfile.IfNe:
		return CondIfNe, true
	case classfile.IfLt:
		return CondIfLt, true
	case classfile.IfGe:
		return CondIfGe, true
	case classfile.IfGt:
		return CondIfGt, true
	case classfile.IfLe:
		return CondIfLe, true
	case classfile.IfNull:
		return CondIfNull, true
	case classfile.IfNonNull:
		return CondIfNonNull, true
	case classfile.IfICmpEq:
		return CondIfICmpEq, true
	case classfile.IfICmpNe:
		return CondIfICmpNe, true
	case classfile.IfICmpLt:
		return CondIfICmpLt, true
	case classfile.IfICmpGe:
		return CondIfICmpGe, true
	case classfile.IfICmpGt:
		return CondIfICmpGt, true
	case classfile.IfICmpLe:
		return CondIfICmpLe, true
	case classfile.IfACmpEq:
		return CondIfACmpEq, true
	case classfile.IfACmpNe:
		return CondIfACmpNe, true
	}
	return 0, false
}

func stepSwitch(pc classfile.ProgramCounter, instr classfile.Instruction, f JvmStackFrame) (liftStep, error) {
	scrutinee := f.Pop()
	jumps := make([]jumpTarget, 0, len(instr.Targets)+1)
	jumps = append(jumps, jumpTarget{PC: instr.Default, Frame: f.Clone(), Transfer: ConditionalTransfer()})
	for _, target := range instr.Targets {
		jumps = append(jumps, jumpTarget{PC: target, Frame: f.Clone(), Transfer: ConditionalTransfer()})
	}

	cases := make([]SwitchCase, len(instr.Targets))
	if instr.Op == classfile.TableSwitch {
		for i, target := range instr.Targets {
			cases[i] = SwitchCase{Match: instr.Low + int32(i), Target: target}
		}
	} else {
		for i, target := range instr.Targets {
			match := int32(0)
			if i < len(instr.Matches) {
				match = instr.Matches[i]
			}
			cases[i] = SwitchCase{Match: match, Target: target}
		}
	}

	f.Reachable = false
	return liftStep{
		Instruction: Switch{Scrutinee: scrutinee, Default: instr.Default, Cases: cases},
		Frame:       f,
		Jumps:       jumps,
	}, nil
}
