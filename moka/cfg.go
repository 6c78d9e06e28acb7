package moka

import (
	"fmt"
	"sort"

	"mokalift/classfile"
)

// ControlTransferKind discriminates why one program point transfers
// control to another.
type ControlTransferKind int

const (
	// Unconditional covers fallthrough, goto and the jsr call edge.
	Unconditional ControlTransferKind = iota
	// Conditional marks either leg (taken or fallthrough) of an if* jump
	// or a tableswitch/lookupswitch dispatch, since both legs depend on
	// evaluating the same predicate/scrutinee.
	Conditional
	// Exception marks an edge into an exception handler; CaughtClasses
	// lists the (deduplicated) catch types that route through it.
	Exception
	// SubroutineReturn marks the edge from a ret instruction back to the
	// instruction following the jsr that invoked it.
	SubroutineReturn
)

func (k ControlTransferKind) String() string {
	switch k {
	case Unconditional:
		return "unconditional"
	case Conditional:
		return "conditional"
	case Exception:
		return "exception"
	case SubroutineReturn:
		return "subroutine_return"
	default:
		return "?transfer?"
	}
}

// ControlTransfer labels a CFG edge with why it exists.
type ControlTransfer struct {
	Kind          ControlTransferKind
	CaughtClasses []classfile.ClassReference // populated only when Kind == Exception
}

func UnconditionalTransfer() ControlTransfer { return ControlTransfer{Kind: Unconditional} }
func ConditionalTransfer() ControlTransfer   { return ControlTransfer{Kind: Conditional} }
func SubroutineReturnTransfer() ControlTransfer {
	return ControlTransfer{Kind: SubroutineReturn}
}
func ExceptionTransfer(classes []classfile.ClassReference) ControlTransfer {
	return ControlTransfer{Kind: Exception, CaughtClasses: classes}
}

func (t ControlTransfer) String() string {
	if t.Kind != Exception {
		return t.Kind.String()
	}
	names := make([]string, len(t.CaughtClasses))
	for i, c := range t.CaughtClasses {
		names[i] = c.Name
	}
	return fmt.Sprintf("exception(%v)", names)
}

// edgeKey identifies a directed edge by its endpoints; the CFG rejects a
// second edge between the same ordered pair.
type edgeKey struct {
	from, to classfile.ProgramCounter
}

// ControlFlowGraph is a directed graph whose nodes are program counters,
// generic over the data attached to each node and edge. The lifter
// produces a ControlFlowGraph[struct{}, ControlTransfer]; consumers can
// reshape it with MapGraph.
type ControlFlowGraph[N, E any] struct {
	entryPoint classfile.ProgramCounter
	nodes      map[classfile.ProgramCounter]N
	order      []classfile.ProgramCounter // nodes in insertion order, for deterministic iteration
	edges      map[edgeKey]E
	out        map[classfile.ProgramCounter][]classfile.ProgramCounter
}

// NewControlFlowGraph builds an empty graph rooted at entryPoint.
func NewControlFlowGraph[N, E any](entryPoint classfile.ProgramCounter) *ControlFlowGraph[N, E] {
	return &ControlFlowGraph[N, E]{
		entryPoint: entryPoint,
		nodes:      map[classfile.ProgramCounter]N{},
		edges:      map[edgeKey]E{},
		out:        map[classfile.ProgramCounter][]classfile.ProgramCounter{},
	}
}

func (g *ControlFlowGraph[N, E]) EntryPoint() classfile.ProgramCounter { return g.entryPoint }

// AddNode registers pc with its node data. Adding an already-present
// node overwrites the data and keeps the original insertion position.
func (g *ControlFlowGraph[N, E]) AddNode(pc classfile.ProgramCounter, data N) {
	if _, ok := g.nodes[pc]; !ok {
		g.order = append(g.order, pc)
	}
	g.nodes[pc] = data
}

// AddEdge records a transfer from -> to. Both endpoints must already be
// nodes (via AddNode). It panics if the exact ordered pair already has an
// edge: the lifter should never attempt to add the same control transfer
// twice, and a silent overwrite would hide a lifting bug.
func (g *ControlFlowGraph[N, E]) AddEdge(from, to classfile.ProgramCounter, data E) {
	key := edgeKey{from, to}
	if _, ok := g.edges[key]; ok {
		panic(fmt.Sprintf("moka: duplicate control flow edge %s -> %s", from, to))
	}
	g.edges[key] = data
	g.out[from] = append(g.out[from], to)
}

// Nodes returns every node's program counter in insertion order.
func (g *ControlFlowGraph[N, E]) Nodes() []classfile.ProgramCounter {
	out := make([]classfile.ProgramCounter, len(g.order))
	copy(out, g.order)
	return out
}

// NodeData returns the data attached to pc, if pc is a node.
func (g *ControlFlowGraph[N, E]) NodeData(pc classfile.ProgramCounter) (N, bool) {
	data, ok := g.nodes[pc]
	return data, ok
}

// Exits returns nodes with no outgoing edges, sorted ascending.
func (g *ControlFlowGraph[N, E]) Exits() []classfile.ProgramCounter {
	var exits []classfile.ProgramCounter
	for pc := range g.nodes {
		if len(g.out[pc]) == 0 {
			exits = append(exits, pc)
		}
	}
	sort.Slice(exits, func(i, j int) bool { return exits[i] < exits[j] })
	return exits
}

// Edge is one directed edge and its data.
type Edge[E any] struct {
	From, To classfile.ProgramCounter
	Data     E
}

// Edges returns every edge ordered by (source, destination).
func (g *ControlFlowGraph[N, E]) Edges() []Edge[E] {
	keys := make([]edgeKey, 0, len(g.edges))
	for k := range g.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})
	result := make([]Edge[E], len(keys))
	for i, k := range keys {
		result[i] = Edge[E]{From: k.from, To: k.to, Data: g.edges[k]}
	}
	return result
}

// EdgeEndpoint pairs a destination node with the edge data that reaches
// it.
type EdgeEndpoint[E any] struct {
	To   classfile.ProgramCounter
	Data E
}

// EdgesFrom returns pc's outgoing edges ordered by destination PC.
func (g *ControlFlowGraph[N, E]) EdgesFrom(pc classfile.ProgramCounter) []EdgeEndpoint[E] {
	targets := make([]classfile.ProgramCounter, len(g.out[pc]))
	copy(targets, g.out[pc])
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	result := make([]EdgeEndpoint[E], len(targets))
	for i, to := range targets {
		result[i] = EdgeEndpoint[E]{To: to, Data: g.edges[edgeKey{pc, to}]}
	}
	return result
}

// HasNode reports whether pc was registered via AddNode.
func (g *ControlFlowGraph[N, E]) HasNode(pc classfile.ProgramCounter) bool {
	_, ok := g.nodes[pc]
	return ok
}

// Len reports the number of nodes in the graph.
func (g *ControlFlowGraph[N, E]) Len() int { return len(g.nodes) }

// MapGraph transforms every node and edge datum to build a structurally
// identical graph with new data types.
func MapGraph[N, E, N1, E1 any](
	g *ControlFlowGraph[N, E],
	nf func(classfile.ProgramCounter, N) N1,
	ef func(classfile.ProgramCounter, classfile.ProgramCounter, E) E1,
) *ControlFlowGraph[N1, E1] {
	mapped := NewControlFlowGraph[N1, E1](g.entryPoint)
	for _, pc := range g.order {
		mapped.AddNode(pc, nf(pc, g.nodes[pc]))
	}
	for key, data := range g.edges {
		mapped.AddEdge(key.from, key.to, ef(key.from, key.to, data))
	}
	return mapped
}
