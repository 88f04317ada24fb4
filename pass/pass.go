// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

// Package pass drives matcher passes over a graph.
//
// A MatcherPass owns one pattern template, one Matcher and one rewrite
// callback. GraphRewrite runs an ordered list of matcher passes over every
// node of a graph, repeating sweeps until no pass fires (or a safety cap is
// reached). Registration order is a correctness dependency: rules that
// pattern-match on a fused node as an operand must be registered after the
// rules that create that node kind.
package pass

import (
	"k8s.io/klog/v2"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/pass/pattern"
)

// Callback rewrites the graph after a structural match. It returns true when
// a rewrite was committed; returning false rejects this candidate without
// touching the graph and without aborting the traversal.
type Callback func(m *pattern.Matcher) bool

// MatcherPass pairs a pattern template with its rewrite callback.
type MatcherPass struct {
	name     string
	matcher  *pattern.Matcher
	callback Callback
}

// NewMatcherPass builds a matcher pass: root is the template root pattern,
// callback performs validation and rewriting.
func NewMatcherPass(name string, root pattern.Source, callback Callback, opts ...pattern.MatcherOption) *MatcherPass {
	return &MatcherPass{
		name:     name,
		matcher:  pattern.NewMatcher(name, root, opts...),
		callback: callback,
	}
}

// Name of the pass.
func (p *MatcherPass) Name() string { return p.name }

// applyAt attempts one match-and-rewrite cycle rooted at v.
func (p *MatcherPass) applyAt(v core.Value) bool {
	if !p.matcher.Match(v) {
		return false
	}
	if !p.callback(p.matcher) {
		return false
	}
	klog.V(2).Infof("pass %s rewrote %s", p.name, v.Node.Name())
	return true
}

// GraphRewrite runs registered matcher passes over whole graphs.
type GraphRewrite struct {
	passes []*MatcherPass
}

// NewGraphRewrite returns an empty pass list.
func NewGraphRewrite() *GraphRewrite { return &GraphRewrite{} }

// Register appends passes; they run in registration order on each candidate.
func (gr *GraphRewrite) Register(passes ...*MatcherPass) {
	gr.passes = append(gr.passes, passes...)
}

// maxRewrites bounds the fixpoint loop; rewrites strictly shrink the matched
// subgraphs, so the bound is never reached on well-formed rule sets.
const maxRewrites = 100000

// RunOnGraph sweeps all passes over the graph until no rule fires a further
// time. A rewrite completes fully (all consumer rewiring done) before the
// traversal considers the next candidate: after every committed rewrite the
// node list is re-derived, since later candidates may reference nodes just
// replaced. Returns whether anything changed.
func (gr *GraphRewrite) RunOnGraph(g *core.Graph) bool {
	changed := false
	rewrites := 0
	for {
		fired := false
	scan:
		for _, n := range g.LiveNodes() {
			for _, p := range gr.passes {
				if p.applyAt(n.Out(0)) {
					fired = true
					changed = true
					rewrites++
					break scan
				}
			}
		}
		if !fired {
			return changed
		}
		if rewrites >= maxRewrites {
			klog.Warningf("GraphRewrite on %q: rewrite budget exhausted, rule set may not terminate", g.Name())
			return changed
		}
	}
}
