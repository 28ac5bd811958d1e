// loader/loader_test.go
package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velang/velprof/decl"
	"github.com/velang/velprof/interp"
)

func loadString(t *testing.T, src string) *SourceUnit {
	t.Helper()
	unit, err := NewLoader().LoadSource("test.vel", src)
	require.NoError(t, err, "input:\n%s", src)
	require.NotNil(t, unit)
	return unit
}

func loadStringWithError(t *testing.T, src string) error {
	t.Helper()
	_, err := NewLoader().LoadSource("test.vel", src)
	require.Error(t, err, "expected loading to fail for input:\n%s", src)
	return err
}

func TestLoadDeclaresHierarchy(t *testing.T) {
	unit := loadString(t, `
abstract Shape
struct Circle <: Shape { r: Float }
struct Square <: Shape { s: Float }
`)
	circle := decl.Concrete("Circle")
	assert.True(t, unit.Types.IsSubtype(circle, decl.Abstract("Shape")))
	assert.False(t, unit.Types.IsSubtype(circle, decl.Concrete("Square")))

	ft, found, structural := unit.Types.FieldType(circle, "r")
	require.True(t, structural)
	require.True(t, found)
	assert.True(t, ft.Equals(decl.FloatType))
}

func TestLoadOutOfOrderDeclarations(t *testing.T) {
	// struct before its abstract parent, field referencing a later struct
	unit := loadString(t, `
struct Circle <: Shape { next: Ring }
abstract Shape
struct Ring <: Shape { r: Float }
`)
	ft, found, _ := unit.Types.FieldType(decl.Concrete("Circle"), "next")
	require.True(t, found)
	assert.True(t, ft.Equals(decl.Concrete("Ring")))
}

func TestLoadRegistersConstructor(t *testing.T) {
	unit := loadString(t, `struct Point { x: Int, y: Int }`)
	res := unit.Table.Lookup("Point", []*decl.Type{decl.IntType, decl.IntType})
	require.Equal(t, interp.DispatchMatched, res.Status)
	assert.Equal(t, "Point", res.Method.Ctor)

	res = unit.Table.Lookup("Point", []*decl.Type{decl.StrType, decl.IntType})
	assert.Equal(t, interp.DispatchNoMatch, res.Status)
}

func TestLoadGenericStructHasNoConstructor(t *testing.T) {
	unit := loadString(t, `struct Box[+T] { item: T }`)
	res := unit.Table.Lookup("Box", []*decl.Type{decl.IntType})
	assert.Equal(t, interp.DispatchNoMatch, res.Status)
}

func TestLoadRegistersMethods(t *testing.T) {
	unit := loadString(t, `
def f(x: Int) { return x }
def f(x: Str) { return x }
def g(x) { return x }
`)
	assert.Len(t, unit.Table.MethodsOf("f"), 2)

	// untyped parameters dispatch as Any
	res := unit.Table.Lookup("g", []*decl.Type{decl.BoolType})
	require.Equal(t, interp.DispatchMatched, res.Status)
	assert.True(t, res.Method.Params[0].IsAny())
}

func TestLoadWhereClause(t *testing.T) {
	unit := loadString(t, `
abstract Shape
struct Circle <: Shape { r: Float }
struct Box[+T] { item: T }
def unwrap(b: Box[T]) where T <: Shape { return b.item }
`)
	sigs := unit.Table.MethodsOf("unwrap")
	require.Len(t, sigs, 1)
	tv, ok := sigs[0].TypeVars["T"]
	require.True(t, ok)
	assert.Equal(t, decl.TagTypeVar, tv.Tag)
	assert.True(t, tv.Bound.Equals(decl.Abstract("Shape")))
}

func TestGenericFieldSubstitution(t *testing.T) {
	unit := loadString(t, `struct Box[+T] { item: T }`)
	ft, found, structural := unit.Types.FieldType(decl.Concrete("Box", decl.IntType), "item")
	require.True(t, structural)
	require.True(t, found)
	assert.True(t, ft.Equals(decl.IntType))
}

func TestPreludeArithmetic(t *testing.T) {
	unit := loadString(t, ``)
	tbl := unit.Table

	res := tbl.Lookup("+", []*decl.Type{decl.IntType, decl.IntType})
	require.Equal(t, interp.DispatchMatched, res.Status)
	assert.True(t, res.Method.Result.Equals(decl.IntType))

	// mixed numerics land on the Number signature
	res = tbl.Lookup("*", []*decl.Type{decl.IntType, decl.FloatType})
	require.Equal(t, interp.DispatchMatched, res.Status)
	assert.True(t, res.Method.Result.Equals(decl.NumberType))

	// a union against a concrete picks the tighter method, no tie
	res = tbl.Lookup("+", []*decl.Type{decl.Union(decl.IntType, decl.FloatType), decl.FloatType})
	require.Equal(t, interp.DispatchMatched, res.Status)
	assert.True(t, res.Method.Result.Equals(decl.FloatType))

	// string concatenation, but no other string arithmetic
	res = tbl.Lookup("+", []*decl.Type{decl.StrType, decl.StrType})
	require.Equal(t, interp.DispatchMatched, res.Status)
	res = tbl.Lookup("-", []*decl.Type{decl.StrType, decl.StrType})
	assert.Equal(t, interp.DispatchNoMatch, res.Status)
}

func TestPreludeComparisonsAndPrint(t *testing.T) {
	unit := loadString(t, ``)
	tbl := unit.Table

	res := tbl.Lookup("<=", []*decl.Type{decl.IntType, decl.FloatType})
	require.Equal(t, interp.DispatchMatched, res.Status)
	assert.True(t, res.Method.Result.Equals(decl.BoolType))

	res = tbl.Lookup("<=", []*decl.Type{decl.StrType, decl.IntType})
	assert.Equal(t, interp.DispatchNoMatch, res.Status)

	res = tbl.Lookup("==", []*decl.Type{decl.StrType, decl.IntType})
	require.Equal(t, interp.DispatchMatched, res.Status)

	res = tbl.Lookup("print", []*decl.Type{decl.StrType})
	require.Equal(t, interp.DispatchMatched, res.Status)
	assert.True(t, res.Method.Result.Equals(decl.NothingType))
}

func TestLoadRejectsUnknownTypes(t *testing.T) {
	loadStringWithError(t, `def f(x: Widget) { return x }`)
	loadStringWithError(t, `struct Circle <: Shape { r: Float }`)
	loadStringWithError(t, `def f(x: Int) { y: Widget = x  return y }`)
	loadStringWithError(t, `def f(x: Int) { if x isa Widget { return x } return 0 }`)
}

func TestLoadRejectsUnknownTypeInEntryCall(t *testing.T) {
	err := loadStringWithError(t, `
def f(x: Bool) { return x }
f(1 isa Bogus)
`)
	assert.Contains(t, err.Error(), "Bogus")
}

func TestLoadRejectsDuplicateType(t *testing.T) {
	loadStringWithError(t, `
struct Point { x: Int }
struct Point { y: Int }
`)
}

func TestLoadCollectsAllErrors(t *testing.T) {
	err := loadStringWithError(t, `
def f(x: Widget) { return x }
def g(x: Gadget) { return x }
`)
	assert.Contains(t, err.Error(), "Widget")
	assert.Contains(t, err.Error(), "Gadget")
}

func TestLoadEntriesInSourceOrder(t *testing.T) {
	unit := loadString(t, `
def f(x: Int) { return x }
f(1)
f(2)
f(3)
`)
	require.Len(t, unit.Entries, 3)
	for i, e := range unit.Entries {
		assert.Equal(t, "f", e.Func)
		assert.Equal(t, 3+i, e.Pos().Line)
	}
}
