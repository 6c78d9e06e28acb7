package moka

import (
	"sort"

	"mokalift/classfile"
)

// MokaIRMethod is a fully lifted method: its IR instructions keyed by
// the bytecode program counter they were lifted from, the method's
// exception table carried over unchanged, and the control flow graph
// connecting the instructions.
type MokaIRMethod struct {
	AccessFlags    classfile.MethodAccessFlags
	Name           string
	Descriptor     classfile.MethodDescriptor
	Owner          classfile.ClassReference
	Instructions   map[classfile.ProgramCounter]MokaInstruction
	ExceptionTable []classfile.ExceptionTableEntry
	CFG            *ControlFlowGraph[struct{}, ControlTransfer]
}

// Lift runs the fixed-point analyzer over method's bytecode and returns
// its IR and control flow graph. It returns an error wrapping ErrNoBody
// if the method has no Code attribute.
func Lift(method *classfile.Method) (*MokaIRMethod, error) {
	if method.Body == nil {
		return nil, &LiftError{Method: methodRef(method), Err: ErrNoBody}
	}
	body := method.Body
	entry, ok := body.Instructions.EntryPoint()
	if !ok {
		return nil, &LiftError{Method: methodRef(method), Err: ErrMalformedControlFlow}
	}

	analysis := fixedPointAnalysis[classfile.ProgramCounter, JvmStackFrame]{
		Transfer: func(pc classfile.ProgramCounter, frame JvmStackFrame) ([]affectedLocation[classfile.ProgramCounter, JvmStackFrame], error) {
			instr, ok := body.Instructions.Get(pc)
			if !ok {
				return nil, ErrMalformedControlFlow
			}
			next, hasNext := body.Instructions.NextPCOf(pc)
			result, err := step(pc, instr, next, hasNext, frame)
			if err != nil {
				return nil, err
			}

			var successors []affectedLocation[classfile.ProgramCounter, JvmStackFrame]
			if result.Fallthrough {
				if !hasNext {
					return nil, ErrMalformedControlFlow
				}
				successors = append(successors, affectedLocation[classfile.ProgramCounter, JvmStackFrame]{Location: next, Fact: result.Frame})
			}
			for _, j := range result.Jumps {
				if !body.Instructions.Has(j.PC) {
					return nil, ErrMalformedControlFlow
				}
				successors = append(successors, affectedLocation[classfile.ProgramCounter, JvmStackFrame]{Location: j.PC, Fact: j.Frame})
			}
			if liftedMayThrow(result.Instruction) {
				for _, h := range exceptionTargets(body.ExceptionTable, pc) {
					if !body.Instructions.Has(h.Handler) {
						return nil, ErrMalformedControlFlow
					}
					successors = append(successors, affectedLocation[classfile.ProgramCounter, JvmStackFrame]{Location: h.Handler, Fact: handlerEntryFrame(result.Frame)})
				}
			}
			return successors, nil
		},
		Merge: func(pc classfile.ProgramCounter, current, incoming JvmStackFrame) (JvmStackFrame, error) {
			merged, err := current.Merge(incoming)
			if err != nil {
				if mergeErr, ok := err.(*MergeError); ok && mergeErr.PC == 0 {
					mergeErr.PC = pc
				}
				return JvmStackFrame{}, err
			}
			return merged, nil
		},
		Equal: JvmStackFrame.Equal,
	}

	entryFrame := NewEntryFrame(int(body.MaxLocals), int(body.MaxStack), method.IsStatic(), method.Descriptor.ParametersTypes)
	facts, err := analysis.Run(entry, entryFrame)
	if err != nil {
		return nil, &LiftError{Method: methodRef(method), Err: err}
	}

	// Re-step every reached PC against its converged frame to emit the
	// final IR and the edge set. The semantics are deterministic, so this
	// pass reproduces exactly the instructions the last worklist visit
	// produced, keyed in PC order.
	cfg := NewControlFlowGraph[struct{}, ControlTransfer](entry)
	instructions := map[classfile.ProgramCounter]MokaInstruction{}

	for _, pc := range body.Instructions.PCs() {
		if _, reached := facts[pc]; reached {
			cfg.AddNode(pc, struct{}{})
		}
	}
	for _, pc := range body.Instructions.PCs() {
		frame, reached := facts[pc]
		if !reached {
			continue
		}
		instr, _ := body.Instructions.Get(pc)
		next, hasNext := body.Instructions.NextPCOf(pc)
		result, err := step(pc, instr, next, hasNext, frame)
		if err != nil {
			return nil, &LiftError{Method: methodRef(method), Err: err}
		}
		instructions[pc] = result.Instruction

		// An instruction names each successor at most once even when
		// several transfers coincide there (a switch whose cases share a
		// target, a branch whose target is also its fallthrough).
		recorded := map[classfile.ProgramCounter]struct{}{}
		if result.Fallthrough && hasNext && cfg.HasNode(next) {
			cfg.AddEdge(pc, next, result.FallthroughTransfer)
			recorded[next] = struct{}{}
		}
		for _, j := range result.Jumps {
			if _, dup := recorded[j.PC]; dup || !cfg.HasNode(j.PC) {
				continue
			}
			cfg.AddEdge(pc, j.PC, j.Transfer)
			recorded[j.PC] = struct{}{}
		}
		if liftedMayThrow(result.Instruction) {
			for _, h := range exceptionTargets(body.ExceptionTable, pc) {
				if _, dup := recorded[h.Handler]; dup || !cfg.HasNode(h.Handler) {
					continue
				}
				cfg.AddEdge(pc, h.Handler, ExceptionTransfer(h.Classes))
				recorded[h.Handler] = struct{}{}
			}
		}
	}

	return &MokaIRMethod{
		AccessFlags:    method.AccessFlags,
		Name:           method.Name,
		Descriptor:     method.Descriptor,
		Owner:          method.Owner,
		Instructions:   instructions,
		ExceptionTable: body.ExceptionTable,
		CFG:            cfg,
	}, nil
}

func methodRef(m *classfile.Method) classfile.MethodReference {
	return classfile.MethodReference{Owner: m.Owner, Name: m.Name, Descriptor: m.Descriptor}
}

// liftedMayThrow reports whether the lifted instruction can route
// control into an exception handler covering its PC. Only Definitions of
// throw-capable expressions qualify: field and array access, invocations,
// allocations, integer division and remainder, monitors, checkcast and
// athrow itself. Constants, other arithmetic, conversions, comparisons,
// iinc, instanceof, pure frame reshaping (Nop), jumps, switches, returns
// and subroutine transfers do not.
func liftedMayThrow(inst MokaInstruction) bool {
	def, ok := inst.(Definition)
	if !ok {
		return false
	}
	switch e := def.Expr.(type) {
	case FieldReadExpr, FieldWriteExpr, ArrayLoadExpr, ArrayStoreExpr, ArrayLengthExpr,
		NewExpr, NewArrayExpr, MultiANewArrayExpr, InvokeExpr, CheckCastExpr,
		ThrowExpr, MonitorEnterExpr, MonitorExitExpr:
		return true
	case ArithExpr:
		switch e.Op {
		case classfile.IDiv, classfile.LDiv, classfile.IRem, classfile.LRem:
			return true
		}
	}
	return false
}

// handlerEntryFrame derives the abstract frame at a handler's entry from
// the frame live at a throwing instruction: locals survive unchanged, the
// operand stack collapses to the single caught exception (the
// same_locals_1_stack_item_frame shape StackMapTable uses).
func handlerEntryFrame(at JvmStackFrame) JvmStackFrame {
	locals := make([]Slot, len(at.Locals))
	copy(locals, at.Locals)
	return JvmStackFrame{
		Locals:    locals,
		Stack:     []Slot{ValueSlot(ArgID(CaughtException()))},
		MaxStack:  at.MaxStack,
		Reachable: true,
	}
}

// exceptionTarget is one handler reachable from a covered PC, with the
// catch types that route to it.
type exceptionTarget struct {
	Handler classfile.ProgramCounter
	Classes []classfile.ClassReference
}

// exceptionTargets collects the handlers whose range covers pc, grouped
// by handler PC in ascending order, with each handler's caught classes
// deduplicated and an entry with no explicit catch type defaulting to
// java/lang/Throwable.
func exceptionTargets(table []classfile.ExceptionTableEntry, pc classfile.ProgramCounter) []exceptionTarget {
	byHandler := map[classfile.ProgramCounter][]classfile.ClassReference{}
	var order []classfile.ProgramCounter
	for _, e := range table {
		if !e.Covers(pc) {
			continue
		}
		if _, ok := byHandler[e.HandlerPC]; !ok {
			order = append(order, e.HandlerPC)
		}
		byHandler[e.HandlerPC] = appendUniqueClass(byHandler[e.HandlerPC], e.CaughtClass())
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	targets := make([]exceptionTarget, len(order))
	for i, handlerPC := range order {
		targets[i] = exceptionTarget{Handler: handlerPC, Classes: byHandler[handlerPC]}
	}
	return targets
}

func appendUniqueClass(classes []classfile.ClassReference, c classfile.ClassReference) []classfile.ClassReference {
	for _, existing := range classes {
		if existing.Name == c.Name {
			return classes
		}
	}
	return append(classes, c)
}
