// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package core

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/AndreeaGavrilescuIntel/openvino/types/shapes"
)

// RoPEConfig describes which rotary-positional-embedding dialect a fused
// node implements and its parameters. Exactly one fusion rule populates it
// per match; preprocessing rules may later amend it through SetConfig.
type RoPEConfig struct {
	// SliceStart / SliceStop select the sub-range of the data input that is
	// rotated, when the projection tensor carries more than one head group
	// (for example a combined qkv projection).
	SliceStart int
	SliceStop  int

	// InputTrans0213 / OutputTrans0213 record a [0,2,1,3] transpose absorbed
	// from the graph on the input or output side.
	InputTrans0213  bool
	OutputTrans0213 bool

	// IsInterleaved selects the even/odd-pair rotation layout (GPT-J, Flux)
	// instead of the half-rotation layout (GPT-NeoX).
	IsInterleaved bool

	// RotaryNDims is the number of feature dimensions actually rotated; it
	// may be smaller than HeadSize.
	RotaryNDims int

	// ChatGLM-family flags.
	IsChatGLM     bool
	Support2DRope bool
	UseRopeCache  bool

	// IsQwen marks the Qwen dialect (float table sliced by position).
	IsQwen bool

	// HeadCnt and HeadSize describe the attention-head layout of the data.
	HeadCnt  int
	HeadSize int

	// GatherPositionArgID is the input index of the position-id argument
	// when one is attached, or 0 when absent.
	GatherPositionArgID int
}

// RoPE is the canonical fused rotary-positional-embedding op. Its node takes
// (data, cos table, sin table) plus an optional position-id input, and
// replaces the whole recognized subgraph.
type RoPE struct {
	config RoPEConfig
}

// NewRoPE creates a fused RoPE node with the given configuration and
// arguments (data, cos, sin, optional positions). The output shape is
// derived from the data shape and the configuration.
func NewRoPE(g *Graph, config RoPEConfig, args ...Value) *Node {
	op := &RoPE{config: config}
	outShape, err := op.inferShape(args)
	if err != nil {
		exceptions.Panicf("NewRoPE: %+v", err)
	}
	return g.NewNode(op, []shapes.Shape{outShape}, args...)
}

func (op *RoPE) Type() OpType { return OpTypeRoPE }

func (op *RoPE) String() string {
	c := op.config
	return fmt.Sprintf("RoPE(rotary_ndims=%d, head_cnt=%d, head_size=%d, interleaved=%v)",
		c.RotaryNDims, c.HeadCnt, c.HeadSize, c.IsInterleaved)
}

// Config returns a copy of the node configuration.
func (op *RoPE) Config() RoPEConfig { return op.config }

// SetConfig amends the configuration in place. This is the one sanctioned
// deviation from the replace-only mutation model: later preprocessing and
// slicing rules fold surrounding ops into an already-emitted fused node by
// editing its configuration rather than rebuilding it. Callers must follow
// up with Node.SetArgument or Graph revalidation as appropriate.
func (op *RoPE) SetConfig(config RoPEConfig) { op.config = config }

// AsRoPE narrows a generic node handle to its RoPE op: the capability query
// used by rules that pattern-match on an already-fused node.
func AsRoPE(n *Node) (*RoPE, bool) { return As[*RoPE](n) }

// InferShapes implements ShapeInferer: mutations of the node arguments or
// configuration recompute the output shape.
func (op *RoPE) InferShapes(inputs []Value) ([]shapes.Shape, error) {
	out, err := op.inferShape(inputs)
	if err != nil {
		return nil, err
	}
	return []shapes.Shape{out}, nil
}

func (op *RoPE) inferShape(inputs []Value) (shapes.Shape, error) {
	if len(inputs) < 3 {
		return shapes.Shape{}, errors.Errorf("RoPE requires (data, cos, sin) inputs, got %d", len(inputs))
	}
	data := inputs[0].Shape()
	c := op.config

	switch {
	case c.IsQwen:
		// data: [batch, length, qkv-projection] -> [batch, length, head_cnt, head_size]
		if data.Rank() != 3 {
			return shapes.Shape{}, errors.Errorf("qwen RoPE expects rank-3 data, got %s", data)
		}
		return shapes.MakeDynamic(data.DType, data.Dim(0), data.Dim(1), c.HeadCnt, c.HeadSize), nil
	case c.IsChatGLM:
		if data.Rank() != 3 {
			return shapes.Shape{}, errors.Errorf("chatglm RoPE expects rank-3 data, got %s", data)
		}
		if c.Support2DRope {
			// [batch, length, qkv] -> [batch, head_cnt, length, head_size]
			return shapes.MakeDynamic(data.DType, data.Dim(0), c.HeadCnt, data.Dim(1), c.HeadSize), nil
		}
		// [length, batch, qkv] -> [length, batch, head_cnt, head_size]
		return shapes.MakeDynamic(data.DType, data.Dim(0), data.Dim(1), c.HeadCnt, c.HeadSize), nil
	default:
		if data.Rank() != 4 {
			return shapes.Shape{}, errors.Errorf("RoPE expects rank-4 data, got %s", data)
		}
		dims := []int{data.Dim(0), data.Dim(1), data.Dim(2), data.Dim(3)}
		if c.SliceStop > c.SliceStart {
			dims[3] = c.SliceStop - c.SliceStart
		}
		if c.InputTrans0213 {
			dims[1], dims[2] = dims[2], dims[1]
		}
		if c.OutputTrans0213 {
			dims[1], dims[2] = dims[2], dims[1]
		}
		return shapes.MakeDynamic(data.DType, dims...), nil
	}
}
