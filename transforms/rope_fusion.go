// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

// Package transforms holds the graph rewrites that fuse rotary
// positional embedding (RoPE) subgraphs into single nodes.
//
// Each supported model dialect (GPT-NeoX, GPT-J, ChatGLM, Qwen, Flux) gets
// its own matcher pass that recognizes the dialect's rotation subgraph and
// replaces it with a configured fused node. Follow-up passes then fold the
// optional heads and tails (table preparation, input/output slicing, input
// transposes) into the already-fused nodes, and a final stateful pass shares
// the cos/sin table preparation across layers.
package transforms

import (
	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/pass"
)

// RoPEFusion bundles all dialect fusion rules in their required order.
// Support2DRope additionally enables the batch-first ChatGLM forms used
// after the paged-attention rewrite.
type RoPEFusion struct {
	support2DRope bool
}

// NewRoPEFusion builds the rule bundle.
func NewRoPEFusion(support2DRope bool) *RoPEFusion {
	return &RoPEFusion{support2DRope: support2DRope}
}

// RunOnGraph rewrites g to a fixpoint and reports whether anything changed.
//
// Ordering matters: the head/tail passes (cos-sin preprocess, io-slicing,
// preprocess) pattern-match on fused nodes, so they come after the rules
// that create them; the sharing pass runs on the prepared tables left in
// place by everything else. The sharing pass is stateful, so a fresh
// instance is built per call.
func (f *RoPEFusion) RunOnGraph(g *core.Graph) bool {
	rewrite := pass.NewGraphRewrite()
	rewrite.Register(
		NewRoPEFusionFlux(),
		NewRoPEFusionGPTNEOX(),
		NewRoPEFusionGPTJ(),
		NewRoPEFusionCosSinPreprocess(),
		NewRoPEFusionIOSlicing(),
		NewRoPEFusionPreprocess(),
		NewRoPEFusionChatGLM(0, false),
		NewRoPEFusionChatGLM(1, false),
	)
	if f.support2DRope {
		rewrite.Register(
			NewRoPEFusionChatGLM(0, true),
			NewRoPEFusionChatGLM(1, true),
			NewRoPEFusionChatGLMHF(),
		)
	}
	rewrite.Register(
		NewRoPEFusionQwen(0),
		NewRoPEFusionQwen(1),
	)
	rewrite.Register(NewRoPEShareCosSin())
	return rewrite.RunOnGraph(g)
}
