// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

// Package pattern implements the pattern-description language and the
// structural matcher used by the graph fusion rules.
//
// A fusion rule builds an immutable template DAG of match-nodes once:
//
//   - AnyInput matches any producer, optionally constrained by predicates
//     (rank, dtype, shape grammar);
//   - WrapType matches one operator kind (plus attribute constraints);
//   - Optional matches an operator if present and otherwise transparently
//     forwards to its first input;
//   - Or matches if any of its alternatives match, first match wins;
//   - Consts matches a Constant whose elements align with a list of
//     literals and symbol expressions.
//
// Templates are built once per rule and reused across every match attempt;
// sub-patterns may be shared between alternatives (the DAG aliases them, it
// never duplicates an instance).
//
// Symbol expressions ("ndims", "ndims/2", "head_cnt*head_size", "?") may
// appear in shape grammars and constant element lists. Every occurrence of
// the same expression must resolve to the same value for a match to succeed,
// unless the owning rule disabled validation for that symbol (used where the
// producing operator -- a Reshape with -1/0 placeholder dims -- does not
// reveal the true run-time value).
package pattern

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
)

// Value aliases core.Value: one output of a concrete IR node.
type Value = core.Value

// Predicate constrains which concrete value an AnyInput or WrapType pattern
// accepts. Predicates may record symbol observations on the matcher.
type Predicate func(m *Matcher, v Value) bool

// Attrs lists required static attributes of a matched op; a subset match
// against core.AttrOp.Attrs().
type Attrs map[string]any

type patternKind int

const (
	kindAnyInput patternKind = iota
	kindWrapType
	kindOptional
	kindOr
	kindConsts
)

// Pattern is one match-node of a template. Build them with AnyInput,
// WrapType, Optional, Or and Consts; templates are immutable once built.
type Pattern struct {
	kind       patternKind
	opTypes    []core.OpType
	inputs     []Output
	attrs      Attrs
	predicates []Predicate
	numOutputs int // 0 means "don't care"

	alternatives []Output // Or only
	constElems   []symExpr
}

// Output is a reference to one output of a Pattern, the edge type of the
// template DAG.
type Output struct {
	P     *Pattern
	Index int
}

func (o Output) patternOutput() Output { return o }

// Source is anything usable as a pattern input: a *Pattern (its output 0)
// or an explicit Output of a multi-output pattern.
type Source interface {
	patternOutput() Output
}

func (p *Pattern) patternOutput() Output { return Output{P: p} }

// Output references the i-th output of a multi-output pattern (e.g. the two
// halves of a Split).
func (p *Pattern) Output(i int) Output {
	if p.numOutputs > 0 && i >= p.numOutputs {
		exceptions.Panicf("pattern.Output(%d): pattern declares %d outputs", i, p.numOutputs)
	}
	return Output{P: p, Index: i}
}

func sourcesToOutputs(sources []Source) []Output {
	outs := make([]Output, len(sources))
	for i, s := range sources {
		if s == nil {
			exceptions.Panicf("pattern input %d is nil", i)
		}
		outs[i] = s.patternOutput()
	}
	return outs
}

// AnyInput matches any producer value satisfying all predicates.
func AnyInput(predicates ...Predicate) *Pattern {
	return &Pattern{kind: kindAnyInput, predicates: predicates}
}

// WrapType matches a node of the given operator kind with exactly the given
// inputs. Constrain further with WithAttrs, WithPredicates and WithOutputs.
func WrapType(opType core.OpType, inputs ...Source) *Pattern {
	return &Pattern{
		kind:    kindWrapType,
		opTypes: []core.OpType{opType},
		inputs:  sourcesToOutputs(inputs),
	}
}

// WrapTypes is WrapType accepting any of several operator kinds.
func WrapTypes(opTypes []core.OpType, inputs ...Source) *Pattern {
	return &Pattern{kind: kindWrapType, opTypes: opTypes, inputs: sourcesToOutputs(inputs)}
}

// Optional matches a node of the given kind if present; when the concrete
// graph does not have it, the pattern transparently forwards to its first
// input. Used to tolerate transformation-order variance (e.g. a Squeeze that
// an earlier pass may or may not have inserted).
func Optional(opType core.OpType, inputs ...Source) *Pattern {
	if len(inputs) == 0 {
		exceptions.Panicf("pattern.Optional(%s): needs at least the forwarded input", opType)
	}
	return &Pattern{
		kind:    kindOptional,
		opTypes: []core.OpType{opType},
		inputs:  sourcesToOutputs(inputs),
	}
}

// Or matches if any alternative matches; alternatives are tried in order and
// the first success wins, with no backtracking across committed siblings.
func Or(alternatives ...Source) *Pattern {
	if len(alternatives) < 2 {
		exceptions.Panicf("pattern.Or: needs at least two alternatives")
	}
	return &Pattern{kind: kindOr, alternatives: sourcesToOutputs(alternatives)}
}

// Consts matches a Constant node whose flat elements align one-to-one with
// elems. Elements may be int, float64, or a symbol-expression string
// ("ndims", "ndims/2", "?", ...). A scalar constant aligns with a
// single-element list.
func Consts(elems ...any) *Pattern {
	exprs := make([]symExpr, len(elems))
	for i, elem := range elems {
		switch v := elem.(type) {
		case int:
			exprs[i] = symExpr{raw: "", literal: true, litInt: int64(v)}
		case int64:
			exprs[i] = symExpr{raw: "", literal: true, litInt: v}
		case float64:
			exprs[i] = symExpr{raw: "", literal: true, litIsF: true, litF: v}
		case string:
			expr, err := parseSymExpr(v)
			if err != nil {
				exceptions.Panicf("pattern.Consts: %v", err)
			}
			exprs[i] = expr
		default:
			exceptions.Panicf("pattern.Consts: element %d has unsupported type %T", i, elem)
		}
	}
	return &Pattern{kind: kindConsts, constElems: exprs}
}

// WithAttrs requires the matched op to carry the given attribute values.
func (p *Pattern) WithAttrs(attrs Attrs) *Pattern {
	p.attrs = attrs
	return p
}

// WithPredicates adds predicates to a WrapType or AnyInput pattern.
func (p *Pattern) WithPredicates(predicates ...Predicate) *Pattern {
	p.predicates = append(p.predicates, predicates...)
	return p
}

// WithOutputs declares the exact output arity the matched node must have;
// required before referencing outputs beyond 0.
func (p *Pattern) WithOutputs(n int) *Pattern {
	p.numOutputs = n
	return p
}

// RankEquals matches values of the given rank.
func RankEquals(rank int) Predicate {
	return func(_ *Matcher, v Value) bool { return v.Rank() == rank }
}

// TypeMatches matches values of the given element type.
func TypeMatches(dtype dtypes.DType) Predicate {
	return func(_ *Matcher, v Value) bool { return v.DType() == dtype }
}

// ConstMatches matches a Constant node satisfying the given check.
func ConstMatches(check func(c *core.Constant) bool) Predicate {
	return func(_ *Matcher, v Value) bool {
		c, ok := core.As[*core.Constant](v.Node)
		return ok && check(c)
	}
}
