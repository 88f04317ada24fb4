// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"bytes"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/pass"
	"github.com/AndreeaGavrilescuIntel/openvino/pass/pattern"
)

// shareCosSinState carries the first matched table-preparation subgraph
// across callback invocations of one NewRoPEShareCosSin pass. The state is
// per pass instance; build a fresh pass per run.
type shareCosSinState struct {
	invFreq      *core.Constant
	sharedInputs [2]*core.Node
	sharedCos0   *core.Node
	sharedSin0   *core.Node
}

// NewRoPEShareCosSin deduplicates per-layer cos/sin table preparation. Every
// transformer layer of an unoptimized model recomputes the same tables from
// the same inverse-frequency constant; the first matched preparation is kept
// and later ones whose inputs are identical and whose constant compares
// equal byte-for-byte are replaced by it.
func NewRoPEShareCosSin() *pass.MatcherPass {
	input0 := pattern.AnyInput()
	input1 := pattern.AnyInput()
	constInvFreq := pattern.WrapType(core.OpTypeConstant)

	broadcast := pattern.WrapType(core.OpTypeBroadcast,
		pattern.Consts(1.0), input0, pattern.Consts(0)).
		WithAttrs(pattern.Attrs{"mode": "numpy"})
	expand := pattern.WrapType(core.OpTypeMultiply, constInvFreq, broadcast).
		WithAttrs(numpyBroadcast)
	matmul := pattern.WrapType(core.OpTypeMatMul, expand, input1).
		WithAttrs(pattern.Attrs{"transpose_a": false, "transpose_b": false})
	transpose := pattern.WrapType(core.OpTypeTranspose, matmul, pattern.Consts(0, 2, 1))
	concat := pattern.WrapType(core.OpTypeConcat, transpose, transpose).
		WithAttrs(pattern.Attrs{"axis": -1})
	cosTab := pattern.WrapType(core.OpTypeCos, concat)
	sinTab := pattern.WrapType(core.OpTypeSin, concat)
	result := pattern.WrapType(core.OpTypeUnsqueeze,
		pattern.Or(cosTab, sinTab), pattern.Consts(1))

	state := &shareCosSinState{}

	callback := func(m *pattern.Matcher) bool {
		root := m.MatchRoot()
		curInvFreq, ok := core.As[*core.Constant](m.NodeAt(constInvFreq))
		if !ok {
			return false
		}

		// The first match is the one to be shared: capture its inputs and
		// constant.
		if state.invFreq == nil {
			state.sharedInputs[0] = m.NodeAt(input0)
			state.sharedInputs[1] = m.NodeAt(input1)
			state.invFreq = curInvFreq
		}

		if curInvFreq != state.invFreq {
			if curInvFreq.ConstShape().DType != state.invFreq.ConstShape().DType {
				return false
			}
			if !curInvFreq.ConstShape().Equal(state.invFreq.ConstShape()) {
				return false
			}
			if !bytes.Equal(curInvFreq.Data(), state.invFreq.Data()) {
				return false
			}
		}
		if m.NodeAt(input0) != state.sharedInputs[0] || m.NodeAt(input1) != state.sharedInputs[1] {
			return false
		}

		// Same topology and inputs up to the cos/sin node: remember the
		// first unsqueezed table of each kind, share the rest.
		isSin := m.Has(sinTab)
		if isSin && state.sharedSin0 == nil {
			state.sharedSin0 = root
			return false
		}
		if !isSin && state.sharedCos0 == nil {
			state.sharedCos0 = root
			return false
		}

		replacement := state.sharedCos0
		if isSin {
			replacement = state.sharedSin0
		}
		if replacement == root {
			return false
		}
		kind := "cos"
		if isSin {
			kind = "sin"
		}
		klog.V(1).Infof("sharing %s table %s (%s)",
			kind, root.Name(), humanize.Bytes(uint64(curInvFreq.ByteSize())))
		m.Graph().ReplaceNode(root, replacement)
		return true
	}

	return pass.NewMatcherPass("RoPEShareCosSin", result, callback)
}
