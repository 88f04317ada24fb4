// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package core

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/AndreeaGavrilescuIntel/openvino/types/shapes"
)

// NodeID is the unique id of a Node within its Graph.
type NodeID int

// InvalidNodeID is returned for nil nodes.
const InvalidNodeID = NodeID(-1)

// Value is one output of a Node: the edge type of the computation graph.
// Most ops have a single output (Index 0); Split and VariadicSplit have one
// Value per part.
type Value struct {
	Node  *Node
	Index int
}

// Ok returns whether the Value refers to an actual node output.
func (v Value) Ok() bool { return v.Node != nil }

// Shape of this output.
func (v Value) Shape() shapes.Shape {
	if v.Node == nil {
		return shapes.Shape{}
	}
	return v.Node.OutShape(v.Index)
}

// DType of this output.
func (v Value) DType() dtypes.DType { return v.Shape().DType }

// Rank of this output's shape.
func (v Value) Rank() int { return v.Shape().Rank() }

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.Node == nil {
		return "Value(nil)"
	}
	if v.Node.NumOutputs() == 1 {
		return fmt.Sprintf("#%d", v.Node.id)
	}
	return fmt.Sprintf("#%d:%d", v.Node.id, v.Index)
}

// Node is one typed operation in a Graph. It holds the op (kind plus static
// attributes), the input edges, and one shape per output.
//
// Nodes are created through Graph builders and are immutable except through
// the two sanctioned mutation primitives -- Graph.ReplaceNode and
// Node.SetArgument -- plus the narrow RoPE configuration amendment.
type Node struct {
	graph     *Graph
	id        NodeID
	op        Op
	inputs    []Value
	outShapes []shapes.Shape

	// name is the friendly name, carried over from replaced nodes on rewrites.
	name string

	rtInfo RTInfo
}

// Graph that holds this Node.
func (n *Node) Graph() *Graph {
	if n == nil {
		return nil
	}
	return n.graph
}

// Id is the unique id of this node within the Graph.
func (n *Node) Id() NodeID {
	if n == nil {
		return InvalidNodeID
	}
	return n.id
}

// Op returns the operation of this node.
func (n *Node) Op() Op { return n.op }

// Type identifies the operation performed by the node.
func (n *Node) Type() OpType {
	if n == nil || n.op == nil {
		return OpTypeInvalid
	}
	return n.op.Type()
}

// NumInputs returns the number of input edges.
func (n *Node) NumInputs() int { return len(n.inputs) }

// Input returns the i-th input edge.
func (n *Node) Input(i int) Value { return n.inputs[i] }

// Inputs returns a copy of the input edges.
func (n *Node) Inputs() []Value {
	out := make([]Value, len(n.inputs))
	copy(out, n.inputs)
	return out
}

// NumOutputs returns the number of outputs of this node.
func (n *Node) NumOutputs() int { return len(n.outShapes) }

// Out returns the i-th output of this node as a Value.
func (n *Node) Out(i int) Value {
	if i < 0 || i >= len(n.outShapes) {
		exceptions.Panicf("Node.Out(%d): node %s has %d outputs", i, n, n.NumOutputs())
	}
	return Value{Node: n, Index: i}
}

// OutShape returns the shape of the i-th output.
func (n *Node) OutShape(i int) shapes.Shape {
	if n == nil || i < 0 || i >= len(n.outShapes) {
		return shapes.Shape{}
	}
	return n.outShapes[i]
}

// Shape returns the shape of the node's first output. It implements
// shapes.HasShape.
func (n *Node) Shape() shapes.Shape { return n.OutShape(0) }

// Name returns the friendly name, or an id-derived placeholder when unset.
func (n *Node) Name() string {
	if n.name == "" {
		return fmt.Sprintf("%s_%d", n.Type(), n.id)
	}
	return n.name
}

// SetName sets the friendly name.
func (n *Node) SetName(name string) { n.name = name }

// RTInfo returns the node's runtime (provenance) metadata.
func (n *Node) RTInfo() *RTInfo { return &n.rtInfo }

// SetArgument replaces the i-th input edge with v and re-validates the
// node's output shapes. It may grow the input list by exactly one (appending
// a new trailing argument), mirroring how preprocessing rules attach
// position-id inputs to an existing fused node.
func (n *Node) SetArgument(i int, v Value) {
	if i < 0 || i > len(n.inputs) {
		exceptions.Panicf("Node.SetArgument(%d): node %s has %d inputs", i, n, n.NumInputs())
	}
	if i == len(n.inputs) {
		n.inputs = append(n.inputs, v)
	} else {
		n.inputs[i] = v
	}
	n.revalidate()
}

// revalidate re-runs output shape inference when the op supports it.
// Ops without inference keep their declared output shapes.
func (n *Node) revalidate() {
	inferer, ok := n.op.(ShapeInferer)
	if !ok {
		return
	}
	inferred, err := inferer.InferShapes(n.inputs)
	if err != nil {
		exceptions.Panicf("node %s: shape inference after mutation: %v", n, err)
	}
	n.outShapes = inferred
}

// ShapeInferer is implemented by ops that can recompute their output shapes
// from their inputs. Mutation primitives re-run inference on mutated nodes.
type ShapeInferer interface {
	InferShapes(inputs []Value) ([]shapes.Shape, error)
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	ins := make([]string, len(n.inputs))
	for i, in := range n.inputs {
		ins[i] = in.String()
	}
	return fmt.Sprintf("#%d %s(%s) -> %s", n.id, n.op, strings.Join(ins, ", "), n.OutShape(0))
}
