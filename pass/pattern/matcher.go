// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package pattern

import (
	"maps"
	"math"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
)

// Matcher aligns a pattern template against concrete IR values. One Matcher
// is built per rule and reused for every candidate root; the binding state is
// ephemeral, reset on each Match call, and exposed to the rule callback only
// for the duration of that invocation.
//
// Alignment is recursive with short-circuit failure. Once a typed pattern
// commits to a concrete node identity there is no backtracking; state is
// rolled back only when trying the alternatives of an Or or the two forms of
// an Optional. Commutative ambiguity (mul(x, cos) binding x to the table) is
// deliberately not resolved here: rules match one branch structurally and
// disambiguate the other post hoc in their callback.
type Matcher struct {
	name       string
	root       Output
	noValidate map[string]bool

	// Per-attempt state.
	graph     *core.Graph
	nodeBind  map[*Pattern]*core.Node
	valueBind map[*Pattern]Value
	obs       []observation
	symbols   Symbols
	matchRoot *core.Node
}

// MatcherOption configures a Matcher at construction.
type MatcherOption func(*Matcher)

// WithoutValidation exempts the given symbols from cross-occurrence
// consistency checking. Their first resolution is still recorded. Used for
// symbols read from unreliable sites, such as Reshape target constants that
// may hold -1/0 placeholders instead of the true batch or sequence length.
func WithoutValidation(names ...string) MatcherOption {
	return func(m *Matcher) {
		for _, name := range names {
			m.noValidate[name] = true
		}
	}
}

// NewMatcher builds a matcher for the given template root.
func NewMatcher(name string, root Source, opts ...MatcherOption) *Matcher {
	m := &Matcher{name: name, root: root.patternOutput(), noValidate: make(map[string]bool)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name of the owning rule.
func (m *Matcher) Name() string { return m.name }

// Match attempts to align the template against the given value as root.
// On success the binding is queryable until the next Match call.
func (m *Matcher) Match(v Value) bool {
	m.graph = v.Node.Graph()
	m.nodeBind = make(map[*Pattern]*core.Node)
	m.valueBind = make(map[*Pattern]Value)
	m.obs = m.obs[:0]
	m.symbols = nil
	m.matchRoot = nil

	if !m.matchValue(m.root, v) {
		return false
	}
	symbols, ok := resolveSymbols(m.obs, m.noValidate)
	if !ok {
		return false
	}
	m.symbols = symbols
	m.matchRoot = v.Node
	return true
}

// MatchRoot returns the concrete node the template root aligned with.
func (m *Matcher) MatchRoot() *core.Node { return m.matchRoot }

// Graph of the current match.
func (m *Matcher) Graph() *core.Graph { return m.graph }

// Symbols returns the resolved symbol table of the current match.
func (m *Matcher) Symbols() Symbols { return m.symbols }

// Has reports whether the given pattern node participated in the match
// (optional and alternative sub-patterns may not have).
func (m *Matcher) Has(p *Pattern) bool {
	_, ok := m.valueBind[p]
	return ok
}

// At returns the concrete value a pattern node aligned with; the zero Value
// when it did not participate.
func (m *Matcher) At(p *Pattern) Value { return m.valueBind[p] }

// NodeAt returns the concrete node a pattern node aligned with, or nil.
func (m *Matcher) NodeAt(p *Pattern) *core.Node { return m.nodeBind[p] }

// observe records one symbol resolution site.
func (m *Matcher) observe(expr symExpr, val SymbolValue) {
	m.obs = append(m.obs, observation{expr: expr, val: val})
}

type snapshot struct {
	nodeBind  map[*Pattern]*core.Node
	valueBind map[*Pattern]Value
	obsLen    int
}

func (m *Matcher) snapshot() snapshot {
	return snapshot{
		nodeBind:  maps.Clone(m.nodeBind),
		valueBind: maps.Clone(m.valueBind),
		obsLen:    len(m.obs),
	}
}

func (m *Matcher) restore(s snapshot) {
	m.nodeBind = s.nodeBind
	m.valueBind = s.valueBind
	m.obs = m.obs[:s.obsLen]
}

func (m *Matcher) matchValue(po Output, v Value) bool {
	p := po.P
	switch p.kind {
	case kindAnyInput:
		if bound, ok := m.valueBind[p]; ok {
			return bound == v
		}
		for _, pred := range p.predicates {
			if !pred(m, v) {
				return false
			}
		}
		m.valueBind[p] = v
		m.nodeBind[p] = v.Node
		return true

	case kindOr:
		if bound, ok := m.valueBind[p]; ok {
			return bound == v
		}
		for _, alt := range p.alternatives {
			s := m.snapshot()
			if m.matchValue(alt, v) {
				m.valueBind[p] = v
				m.nodeBind[p] = v.Node
				return true
			}
			m.restore(s)
		}
		return false

	case kindOptional:
		s := m.snapshot()
		if m.matchTyped(p, po.Index, v) {
			return true
		}
		m.restore(s)
		return m.matchValue(p.inputs[0], v)

	case kindConsts:
		return m.matchConsts(p, v)

	default: // kindWrapType
		return m.matchTyped(p, po.Index, v)
	}
}

// matchTyped aligns a typed pattern against one output of a concrete node,
// then recursively aligns every declared input.
func (m *Matcher) matchTyped(p *Pattern, outIndex int, v Value) bool {
	if v.Index != outIndex {
		return false
	}
	node := v.Node
	if prior, ok := m.nodeBind[p]; ok {
		// Aliased reference (shared sub-pattern): the same pattern node must
		// align with the same concrete node; its inputs were already matched.
		return prior == node
	}
	typeOk := false
	for _, t := range p.opTypes {
		if node.Type() == t {
			typeOk = true
			break
		}
	}
	if !typeOk {
		return false
	}
	if p.numOutputs > 0 && node.NumOutputs() != p.numOutputs {
		return false
	}
	if len(p.attrs) > 0 {
		attrOp, ok := node.Op().(core.AttrOp)
		if !ok {
			return false
		}
		actual := attrOp.Attrs()
		for key, want := range p.attrs {
			got, present := actual[key]
			if !present || !attrValueEqual(want, got) {
				return false
			}
		}
	}
	for _, pred := range p.predicates {
		if !pred(m, v) {
			return false
		}
	}
	if len(p.inputs) != node.NumInputs() {
		return false
	}
	m.nodeBind[p] = node
	m.valueBind[p] = v
	for i, in := range p.inputs {
		if !m.matchValue(in, node.Input(i)) {
			return false
		}
	}
	return true
}

// matchConsts aligns a Consts pattern against a Constant node: the flat
// element count must equal the declared list, and each element must satisfy
// its literal or record its symbol observation.
func (m *Matcher) matchConsts(p *Pattern, v Value) bool {
	if bound, ok := m.valueBind[p]; ok {
		return bound == v
	}
	c, ok := core.As[*core.Constant](v.Node)
	if !ok || v.Index != 0 {
		return false
	}
	var asFloats []float64
	if ints, intsOk := c.Ints(); intsOk {
		asFloats = make([]float64, len(ints))
		for i, x := range ints {
			asFloats[i] = float64(x)
		}
	} else if floats, floatsOk := c.Floats(); floatsOk {
		asFloats = make([]float64, len(floats))
		for i, x := range floats {
			asFloats[i] = float64(x)
		}
	} else {
		return false
	}
	if len(asFloats) != len(p.constElems) {
		return false
	}
	for i, expr := range p.constElems {
		elem := asFloats[i]
		switch {
		case expr.anon:
			// don't care
		case expr.literal && expr.litIsF:
			if math.Abs(elem-expr.litF) > 1e-5 {
				return false
			}
		case expr.literal:
			if math.Abs(elem-float64(expr.litInt)) > 1e-5 {
				return false
			}
		default:
			if elem == math.Trunc(elem) {
				m.observe(expr, IntValue(int64(elem)))
			} else {
				m.observe(expr, FloatValue(elem))
			}
		}
	}
	m.nodeBind[p] = v.Node
	m.valueBind[p] = v
	return true
}

// attrValueEqual compares a required attribute value with an op's actual
// one, normalizing integer widths and int slices.
func attrValueEqual(want, got any) bool {
	if wi, ok := asInt64(want); ok {
		gi, ok := asInt64(got)
		return ok && wi == gi
	}
	switch w := want.(type) {
	case string:
		g, ok := got.(string)
		return ok && w == g
	case bool:
		g, ok := got.(bool)
		return ok && w == g
	case []int64:
		g, ok := asInt64Slice(got)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if w[i] != g[i] {
				return false
			}
		}
		return true
	}
	return false
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func asInt64Slice(v any) ([]int64, bool) {
	switch x := v.(type) {
	case []int64:
		return x, true
	case []int:
		out := make([]int64, len(x))
		for i, e := range x {
			out[i] = int64(e)
		}
		return out, true
	}
	return nil, false
}
