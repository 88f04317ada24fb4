// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package pattern

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/AndreeaGavrilescuIntel/openvino/types/shapes"
)

// SymbolValue is the value a named algebraic unknown resolved to during one
// match attempt: an integer scalar (possibly dynamic, when bound to an
// unknown dimension), a float scalar, or a list of dimensions (bound by a
// variadic shape-grammar symbol).
type SymbolValue struct {
	valid   bool
	isFloat bool
	isList  bool
	i       int64
	f       float64
	list    []int
}

// IntValue makes a scalar integer SymbolValue.
func IntValue(i int64) SymbolValue { return SymbolValue{valid: true, i: i} }

// FloatValue makes a scalar float SymbolValue.
func FloatValue(f float64) SymbolValue { return SymbolValue{valid: true, isFloat: true, f: f} }

// ListValue makes a dimension-list SymbolValue.
func ListValue(dims []int) SymbolValue {
	return SymbolValue{valid: true, isList: true, list: append([]int(nil), dims...)}
}

// Valid reports whether the symbol resolved at all.
func (v SymbolValue) Valid() bool { return v.valid }

// IsInteger reports whether the symbol resolved to a static integer.
func (v SymbolValue) IsInteger() bool {
	return v.valid && !v.isFloat && !v.isList && v.i != shapes.DimDynamic
}

// IsStatic reports whether the resolved value contains no dynamic dimension.
func (v SymbolValue) IsStatic() bool {
	if !v.valid {
		return false
	}
	if v.isList {
		for _, d := range v.list {
			if d == shapes.DimDynamic {
				return false
			}
		}
		return true
	}
	if v.isFloat {
		return true
	}
	return v.i != shapes.DimDynamic
}

// IsList reports whether the symbol is bound to a dimension list.
func (v SymbolValue) IsList() bool { return v.valid && v.isList }

// I returns the integer value; zero when not an integer.
func (v SymbolValue) I() int64 {
	if !v.valid || v.isList || v.isFloat {
		return 0
	}
	return v.i
}

// F returns the float value, widening integers.
func (v SymbolValue) F() float64 {
	if !v.valid || v.isList {
		return 0
	}
	if v.isFloat {
		return v.f
	}
	return float64(v.i)
}

// List returns the bound dimension list, or nil.
func (v SymbolValue) List() []int {
	if !v.IsList() {
		return nil
	}
	return append([]int(nil), v.list...)
}

// consistentWith reports whether two resolutions of the same symbol can
// describe the same value. Dynamic dimensions are unknowns: they cannot
// disprove equality, so they are consistent with anything.
func (v SymbolValue) consistentWith(o SymbolValue) bool {
	if !v.valid || !o.valid {
		return false
	}
	if v.isList != o.isList {
		return false
	}
	if v.isList {
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			a, b := v.list[i], o.list[i]
			if a != shapes.DimDynamic && b != shapes.DimDynamic && a != b {
				return false
			}
		}
		return true
	}
	if v.isFloat || o.isFloat {
		return math.Abs(v.F()-o.F()) < 1e-5
	}
	if v.i == shapes.DimDynamic || o.i == shapes.DimDynamic {
		return true
	}
	return v.i == o.i
}

// Symbols is the fully resolved symbol table handed to a fusion callback.
type Symbols map[string]SymbolValue

// Get returns the value of the given symbol expression; the zero SymbolValue
// when the expression never occurred in the match.
func (s Symbols) Get(name string) SymbolValue { return s[name] }

// symExpr is one parsed symbol expression: a bare name, a literal, or a name
// combined with a divisor/multiplier. Composite expressions over two names
// (e.g. "head_cnt*head_size") stay opaque: they act as an independent symbol
// whose algebraic relation the callback re-checks.
type symExpr struct {
	raw     string
	anon    bool // "?": matches anything, records nothing
	literal bool
	litInt  int64
	litF    float64
	litIsF  bool

	name    string
	divisor int64 // name/divisor when > 0
	factor  int64 // name*factor when > 0
}

// parseSymExpr parses a symbol expression string. Accepted forms:
// "?", integer and float literals, NAME, NAME/INT, NAME*INT, NAME*NAME.
func parseSymExpr(s string) (symExpr, error) {
	e := symExpr{raw: s}
	s = strings.TrimSpace(s)
	if s == "" {
		return e, errors.New("empty symbol expression")
	}
	if s == "?" {
		e.anon = true
		return e, nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		e.literal = true
		e.litInt = i
		return e, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		e.literal = true
		e.litIsF = true
		e.litF = f
		return e, nil
	}
	if idx := strings.IndexByte(s, '/'); idx > 0 {
		div, err := strconv.ParseInt(strings.TrimSpace(s[idx+1:]), 10, 64)
		if err != nil || div == 0 {
			return e, errors.Errorf("symbol expression %q: divisor must be a non-zero integer", s)
		}
		e.name = strings.TrimSpace(s[:idx])
		e.divisor = div
		return e, nil
	}
	if idx := strings.IndexByte(s, '*'); idx > 0 {
		if f, err := strconv.ParseInt(strings.TrimSpace(s[idx+1:]), 10, 64); err == nil {
			if f == 0 {
				return e, errors.Errorf("symbol expression %q: factor must be non-zero", s)
			}
			e.name = strings.TrimSpace(s[:idx])
			e.factor = f
			return e, nil
		}
		// NAME*NAME: opaque composite, consistency-checked under its own key.
		e.name = s
		return e, nil
	}
	e.name = s
	return e, nil
}

// observation is one resolution site of a symbol expression during a match.
type observation struct {
	expr symExpr
	val  SymbolValue
}

// resolveSymbols folds the observations of one structural match into a
// consistent symbol table. Symbols in noValidate contribute their first
// resolution but are exempt from cross-occurrence consistency. Derived
// expressions NAME/k and NAME*k auto-derive NAME when it was not directly
// observed; the derivation uses integer arithmetic, so callbacks re-check
// exactness (e.g. half*2 == ndims).
func resolveSymbols(obs []observation, noValidate map[string]bool) (Symbols, bool) {
	resolved := make(Symbols, len(obs))
	for _, o := range obs {
		key := o.expr.raw
		prev, seen := resolved[key]
		if !seen {
			resolved[key] = o.val
			continue
		}
		if noValidate[o.expr.name] || noValidate[key] {
			continue
		}
		if !prev.consistentWith(o.val) {
			return nil, false
		}
	}
	// Auto-derive bases of NAME/k and NAME*k expressions, and cross-check
	// when the base was observed directly.
	for _, o := range obs {
		e := o.expr
		if e.name == "" || (e.divisor == 0 && e.factor == 0) {
			continue
		}
		site := resolved[e.raw]
		if !site.IsInteger() {
			continue
		}
		base, haveBase := resolved[e.name]
		switch {
		case e.divisor > 0 && haveBase:
			if base.IsInteger() && base.I()/e.divisor != site.I() {
				return nil, false
			}
		case e.divisor > 0:
			resolved[e.name] = IntValue(site.I() * e.divisor)
		case e.factor > 0 && haveBase:
			if base.IsInteger() && base.I()*e.factor != site.I() {
				return nil, false
			}
		case e.factor > 0:
			if site.I()%e.factor == 0 {
				resolved[e.name] = IntValue(site.I() / e.factor)
			}
		}
	}
	return resolved, true
}
