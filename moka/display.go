package moka

import (
	"fmt"
	"io"
)

// Dump writes a human-readable rendering of a lifted method: its
// signature, every instruction in program order, and the CFG's edges.
// The format is meant for eyeballing during development, not for
// round-tripping.
func Dump(w io.Writer, m *MokaIRMethod) {
	fmt.Fprintf(w, "%s.%s%s\n", m.Owner, m.Name, m.Descriptor)

	pcs := m.CFG.Nodes()
	for _, pc := range pcs {
		inst := m.Instructions[pc]
		fmt.Fprintf(w, "  %s: %s\n", pc, inst)
		for _, edge := range m.CFG.EdgesFrom(pc) {
			fmt.Fprintf(w, "      -> %s [%s]\n", edge.To, edge.Data)
		}
	}
}
