package classfile

import "sort"

// InstructionList is a dense, PC-ordered mapping from program counter to
// instruction. It is built once (by the external parser) and never mutated
// after construction.
type InstructionList struct {
	byPC    map[ProgramCounter]Instruction
	ordered []ProgramCounter
}

// NewInstructionList builds an InstructionList from a PC-keyed set of
// instructions, sorting the keys once up front so lookups stay O(log n)
// without repeated sorting.
func NewInstructionList(entries map[ProgramCounter]Instruction) InstructionList {
	ordered := make([]ProgramCounter, 0, len(entries))
	for pc := range entries {
		ordered = append(ordered, pc)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	byPC := make(map[ProgramCounter]Instruction, len(entries))
	for pc, instr := range entries {
		byPC[pc] = instr
	}
	return InstructionList{byPC: byPC, ordered: ordered}
}

// Get returns the instruction at pc, if any.
func (l InstructionList) Get(pc ProgramCounter) (Instruction, bool) {
	instr, ok := l.byPC[pc]
	return instr, ok
}

// Has reports whether pc names an instruction in the list.
func (l InstructionList) Has(pc ProgramCounter) bool {
	_, ok := l.byPC[pc]
	return ok
}

// EntryPoint returns the lowest PC in the list, if non-empty.
func (l InstructionList) EntryPoint() (ProgramCounter, bool) {
	if len(l.ordered) == 0 {
		return 0, false
	}
	return l.ordered[0], true
}

// NextPCOf returns the PC of the instruction immediately following pc in
// program order, if pc is not the last instruction.
func (l InstructionList) NextPCOf(pc ProgramCounter) (ProgramCounter, bool) {
	idx := sort.Search(len(l.ordered), func(i int) bool { return l.ordered[i] > pc })
	if idx >= len(l.ordered) {
		return 0, false
	}
	return l.ordered[idx], true
}

// Len returns the number of instructions in the list.
func (l InstructionList) Len() int {
	return len(l.ordered)
}

// PCs returns the instruction PCs in ascending order. Callers must not
// mutate the returned slice.
func (l InstructionList) PCs() []ProgramCounter {
	return l.ordered
}
