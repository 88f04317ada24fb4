// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package pattern

import (
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/AndreeaGavrilescuIntel/openvino/types/shapes"
)

// shapeGrammar is a parsed variadic-rank shape pattern, e.g.
// "[PRESERVED_DIMS..., head_size]" or "[?, head_cnt, 1, head_size]".
//
// Each entry is either a fixed-position dimension spec (literal, "?", or a
// symbol expression) or the single variadic entry ("NAME..." binding a list
// symbol, or a bare "..." matching an anonymous prefix/suffix).
type shapeGrammar struct {
	raw      string
	prefix   []symExpr // specs before the variadic entry
	suffix   []symExpr // specs after it
	variadic bool
	varName  string // empty for anonymous "..."
}

// parseShapeGrammar parses the bracketed dimension list.
func parseShapeGrammar(s string) (*shapeGrammar, error) {
	g := &shapeGrammar{raw: s}
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return nil, errors.Errorf("shape grammar %q: must be bracketed", s)
	}
	inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	if inner == "" {
		return g, nil // "[]" matches only scalars? -- rank 0
	}
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		if strings.HasSuffix(part, "...") {
			if g.variadic {
				return nil, errors.Errorf("shape grammar %q: at most one variadic entry", s)
			}
			g.variadic = true
			g.varName = strings.TrimSpace(strings.TrimSuffix(part, "..."))
			continue
		}
		expr, err := parseSymExpr(part)
		if err != nil {
			return nil, errors.Wrapf(err, "shape grammar %q", s)
		}
		if g.variadic {
			g.suffix = append(g.suffix, expr)
		} else {
			g.prefix = append(g.prefix, expr)
		}
	}
	return g, nil
}

// match aligns the grammar against a concrete shape, appending symbol
// observations to m on success. A literal dimension never matches a dynamic
// axis; a named dimension binds to it (resolving the symbol as dynamic, to
// be rejected by the callback's static checks).
func (g *shapeGrammar) match(m *Matcher, shape shapes.Shape) bool {
	fixed := len(g.prefix) + len(g.suffix)
	rank := shape.Rank()
	if g.variadic {
		if rank < fixed {
			return false
		}
	} else if rank != fixed {
		return false
	}

	matchAt := func(expr symExpr, dim int) bool {
		switch {
		case expr.anon:
			return true
		case expr.literal:
			return !expr.litIsF && dim != shapes.DimDynamic && int64(dim) == expr.litInt
		default:
			m.observe(expr, IntValue(int64(dim)))
			return true
		}
	}

	for i, expr := range g.prefix {
		if !matchAt(expr, shape.Dimensions[i]) {
			return false
		}
	}
	for i, expr := range g.suffix {
		if !matchAt(expr, shape.Dimensions[rank-len(g.suffix)+i]) {
			return false
		}
	}
	if g.variadic && g.varName != "" {
		bound := shape.Dimensions[len(g.prefix) : rank-len(g.suffix)]
		m.observe(symExpr{raw: g.varName, name: g.varName}, ListValue(bound))
	}
	return true
}

// ShapeMatches returns a predicate that matches a value whose shape aligns
// with the given grammar, binding any symbols it names.
func ShapeMatches(grammar string) Predicate {
	g, err := parseShapeGrammar(grammar)
	if err != nil {
		exceptions.Panicf("pattern.ShapeMatches: %v", err)
	}
	return func(m *Matcher, v Value) bool {
		return g.match(m, v.Shape())
	}
}
