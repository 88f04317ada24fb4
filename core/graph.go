// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

// Package core holds the tensor-operation IR that the offline transformation
// passes rewrite: a Graph of typed operator Nodes with known input/output
// arity, shapes and element types.
//
// The mutation surface of the IR is deliberately narrow. Passes may:
//
//   - Graph.ReplaceNode: replace a node's entire output, rewiring all of its
//     external consumers to the replacement;
//   - Node.SetArgument: set one input argument of a node;
//   - RoPE.SetConfig via Graph nodes holding a RoPE op: amend the fused-node
//     configuration in place (see rope.go for why this exception exists).
//
// Everything else about a built node is read-only. Graph building errors are
// reported by panicking with an exception (see github.com/gomlx/exceptions),
// following the deferred-error discipline used throughout graph construction:
// structurally invalid graphs are programming errors, not run-time conditions.
package core

import (
	"sort"

	"github.com/gomlx/exceptions"

	"github.com/AndreeaGavrilescuIntel/openvino/types/sets"
	"github.com/AndreeaGavrilescuIntel/openvino/types/shapes"
)

// Graph with the operations and dependencies of one computation.
type Graph struct {
	name    string
	nodes   []*Node
	outputs []Value
}

// New creates an empty named Graph.
func New(name string) *Graph {
	return &Graph{name: name}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// NumNodes returns the number of nodes ever registered, including nodes
// already disconnected by rewrites. See LiveNodes for the reachable count.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Nodes returns all registered nodes in creation (id) order, including nodes
// disconnected by rewrites.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// NewNode creates and registers a node with the given op, output shapes and
// input edges. Output shapes are declared by the caller; ops implementing
// ShapeInferer have them re-derived on later mutations.
func (g *Graph) NewNode(op Op, outShapes []shapes.Shape, inputs ...Value) *Node {
	if op == nil {
		exceptions.Panicf("Graph(%q).NewNode: op must not be nil", g.name)
	}
	if len(outShapes) == 0 {
		exceptions.Panicf("Graph(%q).NewNode(%s): at least one output shape required", g.name, op)
	}
	for i, in := range inputs {
		if !in.Ok() {
			exceptions.Panicf("Graph(%q).NewNode(%s): input %d is not a valid value", g.name, op, i)
		}
		if in.Node.graph != g {
			exceptions.Panicf("Graph(%q).NewNode(%s): input %d belongs to graph %q", g.name, op, i, in.Node.graph.name)
		}
	}
	n := &Node{
		graph:     g,
		id:        NodeID(len(g.nodes)),
		op:        op,
		inputs:    append([]Value(nil), inputs...),
		outShapes: append([]shapes.Shape(nil), outShapes...),
	}
	g.nodes = append(g.nodes, n)
	return n
}

// Parameter registers a named graph input with the given shape.
func (g *Graph) Parameter(name string, shape shapes.Shape) *Node {
	n := g.NewNode(&Parameter{Name: name}, []shapes.Shape{shape})
	n.SetName(name)
	return n
}

// SetOutputs declares the graph results. Rewrites keep results up to date
// when a result-producing node is replaced.
func (g *Graph) SetOutputs(outputs ...Value) {
	g.outputs = append([]Value(nil), outputs...)
}

// Outputs returns the declared graph results.
func (g *Graph) Outputs() []Value {
	out := make([]Value, len(g.outputs))
	copy(out, g.outputs)
	return out
}

// Consumer is one use of a node output: the consuming node and which of its
// inputs takes the value.
type Consumer struct {
	Node       *Node
	InputIndex int
}

// Consumers returns every use of the given value, in node id order.
func (g *Graph) Consumers(v Value) []Consumer {
	var out []Consumer
	for _, n := range g.nodes {
		for i, in := range n.inputs {
			if in == v {
				out = append(out, Consumer{Node: n, InputIndex: i})
			}
		}
	}
	return out
}

// SoleConsumer returns the single consumer of v, or a zero Consumer when v
// has no consumer or more than one.
func (g *Graph) SoleConsumer(v Value) Consumer {
	all := g.Consumers(v)
	if len(all) != 1 {
		return Consumer{}
	}
	return all[0]
}

// ReplaceNode replaces old's entire output with new: every consumer of any
// output of old is rewired to the matching output of new, and graph results
// referring to old are updated. Rewired consumers have their output shapes
// re-validated.
//
// new must have at least as many outputs as old has consumed outputs.
func (g *Graph) ReplaceNode(old, new *Node) {
	if old == new {
		return
	}
	if old.graph != g || new.graph != g {
		exceptions.Panicf("Graph(%q).ReplaceNode: both nodes must belong to this graph", g.name)
	}
	revalidate := sets.Make[*Node]()
	for _, n := range g.nodes {
		if n == new {
			continue
		}
		for i, in := range n.inputs {
			if in.Node == old {
				if in.Index >= new.NumOutputs() {
					exceptions.Panicf("Graph(%q).ReplaceNode: output %d of %s has no counterpart in %s",
						g.name, in.Index, old, new)
				}
				n.inputs[i] = new.Out(in.Index)
				revalidate.Insert(n)
			}
		}
	}
	for i, out := range g.outputs {
		if out.Node == old {
			g.outputs[i] = new.Out(out.Index)
		}
	}
	for n := range revalidate {
		n.revalidate()
	}
}

// LiveNodes returns the nodes reachable from the graph outputs, in id order.
// Nodes disconnected by rewrites are excluded.
func (g *Graph) LiveNodes() []*Node {
	seen := sets.Make[*Node]()
	var visit func(n *Node)
	visit = func(n *Node) {
		if seen.Has(n) {
			return
		}
		seen.Insert(n)
		for _, in := range n.inputs {
			visit(in.Node)
		}
	}
	for _, out := range g.outputs {
		visit(out.Node)
	}
	live := make([]*Node, 0, len(seen))
	for n := range seen {
		live = append(live, n)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].id < live[j].id })
	return live
}

// NumLiveNodes returns the number of nodes reachable from the graph outputs.
func (g *Graph) NumLiveNodes() int { return len(g.LiveNodes()) }
