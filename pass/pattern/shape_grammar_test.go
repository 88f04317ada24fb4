// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package pattern

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/AndreeaGavrilescuIntel/openvino/types/shapes"
)

func TestParseShapeGrammar(t *testing.T) {
	g, err := parseShapeGrammar("[PRESERVED_DIMS..., head_size]")
	require.NoError(t, err)
	require.True(t, g.variadic)
	require.Equal(t, "PRESERVED_DIMS", g.varName)
	require.Empty(t, g.prefix)
	require.Len(t, g.suffix, 1)

	g, err = parseShapeGrammar("[?, head_cnt, 1, head_size]")
	require.NoError(t, err)
	require.False(t, g.variadic)
	require.Len(t, g.prefix, 4)

	_, err = parseShapeGrammar("[a..., b...]")
	require.Error(t, err)
	_, err = parseShapeGrammar("no brackets")
	require.Error(t, err)
}

// grammarSymbols matches the grammar against the shape on a scratch matcher
// and resolves the observed symbols.
func grammarSymbols(t *testing.T, grammar string, shape shapes.Shape) (Symbols, bool) {
	t.Helper()
	g, err := parseShapeGrammar(grammar)
	require.NoError(t, err)
	m := &Matcher{}
	if !g.match(m, shape) {
		return nil, false
	}
	return resolveSymbols(m.obs, nil)
}

func TestShapeGrammarMatch(t *testing.T) {
	f32 := func(dims ...int) shapes.Shape { return shapes.MakeDynamic(dtypes.Float32, dims...) }

	t.Run("fixed rank with symbols", func(t *testing.T) {
		symbols, ok := grammarSymbols(t, "[?, head_cnt, 1, head_size]", f32(2, 32, 1, 128))
		require.True(t, ok)
		require.EqualValues(t, 32, symbols.Get("head_cnt").I())
		require.EqualValues(t, 128, symbols.Get("head_size").I())
	})

	t.Run("literal mismatch", func(t *testing.T) {
		_, ok := grammarSymbols(t, "[?, head_cnt, 1, head_size]", f32(2, 32, 7, 128))
		require.False(t, ok)
	})

	t.Run("rank mismatch", func(t *testing.T) {
		_, ok := grammarSymbols(t, "[?, head_cnt, 1, head_size]", f32(2, 32, 128))
		require.False(t, ok)
	})

	t.Run("literal never matches dynamic", func(t *testing.T) {
		_, ok := grammarSymbols(t, "[?, 1, ?]", f32(2, shapes.DimDynamic, 4096))
		require.False(t, ok)
	})

	t.Run("named symbol binds dynamic", func(t *testing.T) {
		symbols, ok := grammarSymbols(t, "[batch, seq, hidden]", f32(2, shapes.DimDynamic, 4096))
		require.True(t, ok)
		require.False(t, symbols.Get("seq").IsInteger())
		require.True(t, symbols.Get("batch").IsInteger())
	})

	t.Run("variadic prefix binds list", func(t *testing.T) {
		symbols, ok := grammarSymbols(t, "[PRESERVED_DIMS..., head_size]", f32(2, 24, 7, 128))
		require.True(t, ok)
		require.Equal(t, []int{2, 24, 7}, symbols.Get("PRESERVED_DIMS").List())
		require.EqualValues(t, 128, symbols.Get("head_size").I())
	})

	t.Run("variadic may bind empty", func(t *testing.T) {
		symbols, ok := grammarSymbols(t, "[PRESERVED_DIMS..., head_size]", f32(128))
		require.True(t, ok)
		require.Empty(t, symbols.Get("PRESERVED_DIMS").List())
		require.True(t, symbols.Get("PRESERVED_DIMS").IsList())
	})

	t.Run("anonymous variadic", func(t *testing.T) {
		_, ok := grammarSymbols(t, "[..., head_cnt, 2, head_size/2]", f32(2, 7, 32, 2, 64))
		require.True(t, ok)
		_, ok = grammarSymbols(t, "[..., head_cnt, 2, head_size/2]", f32(32, 3, 64))
		require.False(t, ok)
	})

	t.Run("derived suffix symbol", func(t *testing.T) {
		symbols, ok := grammarSymbols(t, "[?, head_cnt, 1, ndims/2, 1]", f32(4, 32, 1, 32, 1))
		require.True(t, ok)
		require.EqualValues(t, 64, symbols.Get("ndims").I())
	})
}
