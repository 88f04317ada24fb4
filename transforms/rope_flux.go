// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/pass"
	"github.com/AndreeaGavrilescuIntel/openvino/pass/pattern"
	"github.com/AndreeaGavrilescuIntel/openvino/types/shapes"
)

// NewRoPEFusionFlux recognizes the rotation layout used by Flux-style
// diffusion transformers:
//
//	x[?,H,?,S]
//	x1 = reshape(x, [?,H,?,S/2,2])
//	x1_0, x1_1 = split(x1, -1)
//	x2 = concat(x1_1 * -1, x1_0, -1)
//	x3 = reshape(x2, [?,H,?,S])
//	y = x*t_cos + x3*t_sin
func NewRoPEFusionFlux() *pass.MatcherPass {
	x := pattern.AnyInput(pattern.RankEquals(4),
		pattern.ShapeMatches("[PRESERVED_DIMS..., head_size]"))
	tCos := pattern.AnyInput(pattern.RankEquals(4))
	tSin := pattern.AnyInput(pattern.RankEquals(4))

	x1 := pattern.WrapType(core.OpTypeReshape, x, pattern.AnyInput()).
		WithPredicates(pattern.ShapeMatches("[PRESERVED_DIMS..., ?, 2]"))
	split := pattern.WrapType(core.OpTypeSplit, x1, pattern.Consts(-1)).
		WithAttrs(pattern.Attrs{"num_splits": 2}).
		WithOutputs(2)

	// Three shapes of "multiply by -1" occur depending on which
	// simplifications ran before this pass.
	optSqueeze := pattern.Optional(core.OpTypeSqueeze, split.Output(1), pattern.Consts(-1))
	x11Neg := pattern.WrapType(core.OpTypeMultiply, optSqueeze, pattern.Consts(-1)).
		WithAttrs(numpyBroadcast)
	optSqueeze1 := pattern.Optional(core.OpTypeSqueeze, x11Neg, pattern.Consts(-1))
	optUnsqueeze := pattern.Optional(core.OpTypeUnsqueeze, optSqueeze1, pattern.Consts(-1))

	x2 := pattern.WrapType(core.OpTypeConcat, optUnsqueeze, split.Output(0)).
		WithAttrs(pattern.Attrs{"axis": -1})
	x3 := pattern.WrapType(core.OpTypeReshape, x2, pattern.AnyInput()).
		WithPredicates(pattern.ShapeMatches("[PRESERVED_DIMS..., head_size]"))

	y1 := pattern.WrapType(core.OpTypeMultiply, x, tCos).WithAttrs(numpyBroadcast)
	y2 := pattern.WrapType(core.OpTypeMultiply, x3, tSin).WithAttrs(numpyBroadcast)
	result := pattern.WrapType(core.OpTypeAdd, y1, y2).WithAttrs(numpyBroadcast)

	callback := func(m *pattern.Matcher) bool {
		symbols := m.Symbols()
		preserved := symbols.Get("PRESERVED_DIMS")
		headSize := symbols.Get("head_size")
		if !preserved.IsList() || !headSize.IsInteger() {
			return false
		}
		dims := preserved.List()
		if len(dims) < 2 || dims[1] == shapes.DimDynamic {
			return false
		}

		config := core.RoPEConfig{
			HeadCnt:       dims[1],
			HeadSize:      int(headSize.I()),
			RotaryNDims:   int(headSize.I()),
			IsInterleaved: true,
		}

		root := m.MatchRoot()
		newNode := core.NewRoPE(m.Graph(), config, m.At(x), m.At(tCos), m.At(tSin))
		newNode.SetName(root.Name())
		core.CopyRuntimeInfo([]*core.Node{
			m.NodeAt(x1), m.NodeAt(split), m.NodeAt(x2), m.NodeAt(x3),
			m.NodeAt(y1), m.NodeAt(y2), root,
		}, newNode)
		m.Graph().ReplaceNode(root, newNode)
		return true
	}

	return pass.NewMatcherPass("RoPEFusionFlux", result, callback)
}
