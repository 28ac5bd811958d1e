// interp/methods_test.go
package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velang/velprof/decl"
)

func dispatchTable(t *testing.T) *MethodTable {
	t.Helper()
	tt := decl.NewTypeTable()
	require.NoError(t, tt.Declare(&decl.TypeDef{Name: "Shape", Kind: decl.KindAbstract}))
	require.NoError(t, tt.Declare(&decl.TypeDef{Name: "Circle", Kind: decl.KindStruct, Parent: "Shape"}))
	require.NoError(t, tt.Declare(&decl.TypeDef{Name: "Square", Kind: decl.KindStruct, Parent: "Shape"}))
	return NewMethodTable(tt)
}

func sig(name string, params ...*decl.Type) *MethodSignature {
	names := make([]string, len(params))
	for i := range names {
		names[i] = "a"
	}
	return &MethodSignature{Name: name, Params: params, ParamNames: names, Result: decl.NothingType}
}

func TestLookupNoMatch(t *testing.T) {
	tbl := dispatchTable(t)
	require.NoError(t, tbl.Register(sig("f", decl.IntType)))

	res := tbl.Lookup("f", []*decl.Type{decl.StrType})
	assert.Equal(t, DispatchNoMatch, res.Status)
	res = tbl.Lookup("g", []*decl.Type{decl.IntType})
	assert.Equal(t, DispatchNoMatch, res.Status)
	// arity mismatch never applies
	res = tbl.Lookup("f", []*decl.Type{decl.IntType, decl.IntType})
	assert.Equal(t, DispatchNoMatch, res.Status)
}

func TestLookupMostSpecificWins(t *testing.T) {
	tbl := dispatchTable(t)
	circle := decl.Concrete("Circle")
	narrow := sig("f", circle)
	wide := sig("f", decl.Abstract("Shape"))
	require.NoError(t, tbl.Register(wide))
	require.NoError(t, tbl.Register(narrow))

	res := tbl.Lookup("f", []*decl.Type{circle})
	require.Equal(t, DispatchMatched, res.Status)
	assert.Same(t, narrow, res.Method)

	// a Square only fits the Shape method
	res = tbl.Lookup("f", []*decl.Type{decl.Concrete("Square")})
	require.Equal(t, DispatchMatched, res.Status)
	assert.Same(t, wide, res.Method)
}

func TestLookupAbstractArgumentMatchesViaMeet(t *testing.T) {
	tbl := dispatchTable(t)
	circle := decl.Concrete("Circle")
	require.NoError(t, tbl.Register(sig("f", circle)))

	// Shape might be a Circle at runtime, so the method applies
	res := tbl.Lookup("f", []*decl.Type{decl.Abstract("Shape")})
	assert.Equal(t, DispatchMatched, res.Status)
}

func TestLookupAmbiguous(t *testing.T) {
	tbl := dispatchTable(t)
	circle := decl.Concrete("Circle")
	square := decl.Concrete("Square")
	shape := decl.Abstract("Shape")
	require.NoError(t, tbl.Register(sig("f", circle, shape)))
	require.NoError(t, tbl.Register(sig("f", shape, square)))

	// (Circle, Square) fits both and neither dominates
	res := tbl.Lookup("f", []*decl.Type{circle, square})
	require.Equal(t, DispatchAmbiguous, res.Status)
	assert.Len(t, res.Candidates, 2)

	// (Circle, Circle) fits only the first
	res = tbl.Lookup("f", []*decl.Type{circle, circle})
	assert.Equal(t, DispatchMatched, res.Status)
}

func TestLookupUnionArgument(t *testing.T) {
	tbl := dispatchTable(t)
	circle := decl.Concrete("Circle")
	require.NoError(t, tbl.Register(sig("f", circle)))

	// a union applies when some member overlaps
	res := tbl.Lookup("f", []*decl.Type{decl.Union(circle, decl.StrType)})
	assert.Equal(t, DispatchMatched, res.Status)
	res = tbl.Lookup("f", []*decl.Type{decl.Union(decl.IntType, decl.StrType)})
	assert.Equal(t, DispatchNoMatch, res.Status)
}

func TestRegisterAfterFreezeFails(t *testing.T) {
	tbl := dispatchTable(t)
	require.NoError(t, tbl.Register(sig("f", decl.IntType)))
	tbl.Freeze()
	assert.Error(t, tbl.Register(sig("g", decl.IntType)))
}

func TestCacheKeyCanonical(t *testing.T) {
	a := Key("f", []*decl.Type{decl.Union(decl.IntType, decl.StrType)})
	b := Key("f", []*decl.Type{decl.Union(decl.StrType, decl.IntType)})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Key("f", []*decl.Type{decl.IntType}))
}

func TestCacheLifecycle(t *testing.T) {
	c := NewCache(0)
	e, err := c.Begin("f(Int)")
	require.NoError(t, err)
	assert.True(t, e.current.IsBottom())
	assert.False(t, e.sealed)

	c.Seal("f(Int)", InferenceResult{Return: decl.IntType, Converged: true})
	got, ok := c.Lookup("f(Int)")
	require.True(t, ok)
	assert.True(t, got.sealed)
	assert.True(t, got.result.Return.Equals(decl.IntType))

	c.Drop("f(Int)")
	_, ok = c.Lookup("f(Int)")
	assert.False(t, ok)
}

func TestCacheEntryCap(t *testing.T) {
	c := NewCache(2)
	_, err := c.Begin("a()")
	require.NoError(t, err)
	_, err = c.Begin("b()")
	require.NoError(t, err)
	_, err = c.Begin("c()")
	require.ErrorIs(t, err, ErrResourceLimit)
	assert.Equal(t, 2, c.Len())
}
