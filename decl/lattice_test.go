// decl/lattice_test.go
package decl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Shape hierarchy used across the lattice tests:
//
//	Shape (abstract)
//	├── Circle { r: Float }
//	└── Square { s: Float }
//	Box[+T] { item: T }
func shapeTable(t *testing.T) *TypeTable {
	t.Helper()
	tt := NewTypeTable()
	require.NoError(t, tt.Declare(&TypeDef{Name: "Shape", Kind: KindAbstract}))
	require.NoError(t, tt.Declare(&TypeDef{
		Name: "Circle", Kind: KindStruct, Parent: "Shape",
		Fields: []*FieldInfo{{Name: "r", Type: FloatType}},
	}))
	require.NoError(t, tt.Declare(&TypeDef{
		Name: "Square", Kind: KindStruct, Parent: "Shape",
		Fields: []*FieldInfo{{Name: "s", Type: FloatType}},
	}))
	require.NoError(t, tt.Declare(&TypeDef{
		Name: "Box", Kind: KindStruct,
		Params: []*TypeParamInfo{{Name: "T", Covariant: true}},
		Fields: []*FieldInfo{{Name: "item", Type: TypeVar("T", nil)}},
	}))
	require.NoError(t, tt.Declare(&TypeDef{
		Name: "Pair", Kind: KindStruct,
		Params: []*TypeParamInfo{{Name: "T", Covariant: false}},
		Fields: []*FieldInfo{{Name: "fst", Type: TypeVar("T", nil)}},
	}))
	return tt
}

func TestSubtypeExtremes(t *testing.T) {
	tt := shapeTable(t)
	circle := Concrete("Circle")

	assert.True(t, tt.IsSubtype(Bottom, circle))
	assert.True(t, tt.IsSubtype(Bottom, Any))
	assert.True(t, tt.IsSubtype(circle, Any))
	assert.True(t, tt.IsSubtype(Any, Any))
	assert.False(t, tt.IsSubtype(Any, circle))
	assert.True(t, tt.IsSubtype(circle, circle))
}

func TestSubtypeHierarchy(t *testing.T) {
	tt := shapeTable(t)
	shape := Abstract("Shape")
	circle := Concrete("Circle")
	square := Concrete("Square")

	assert.True(t, tt.IsSubtype(circle, shape))
	assert.True(t, tt.IsSubtype(square, shape))
	assert.False(t, tt.IsSubtype(shape, circle))
	assert.False(t, tt.IsSubtype(circle, square))

	assert.True(t, tt.IsSubtype(IntType, NumberType))
	assert.True(t, tt.IsSubtype(FloatType, NumberType))
	assert.False(t, tt.IsSubtype(StrType, NumberType))
}

func TestSubtypeUnions(t *testing.T) {
	tt := shapeTable(t)
	circle := Concrete("Circle")
	square := Concrete("Square")
	u := Union(circle, square)

	// every member on the left must fit
	assert.True(t, tt.IsSubtype(u, Abstract("Shape")))
	assert.False(t, tt.IsSubtype(Union(circle, StrType), Abstract("Shape")))
	// a single type fits a union when it fits some member
	assert.True(t, tt.IsSubtype(circle, u))
	assert.False(t, tt.IsSubtype(StrType, u))
}

func TestSubtypeVariance(t *testing.T) {
	tt := shapeTable(t)
	circle := Concrete("Circle")
	shape := Abstract("Shape")

	// Box is covariant in T
	assert.True(t, tt.IsSubtype(Concrete("Box", circle), Concrete("Box", shape)))
	assert.False(t, tt.IsSubtype(Concrete("Box", shape), Concrete("Box", circle)))
	// Pair is invariant
	assert.False(t, tt.IsSubtype(Concrete("Pair", circle), Concrete("Pair", shape)))
	assert.True(t, tt.IsSubtype(Concrete("Pair", circle), Concrete("Pair", circle)))
}

func TestUnionNormalization(t *testing.T) {
	circle := Concrete("Circle")
	square := Concrete("Square")

	// single member collapses
	assert.True(t, Union(circle).Equals(circle))
	// duplicates drop, order canonicalizes
	a := Union(circle, square, circle)
	b := Union(square, circle)
	assert.True(t, a.Equals(b))
	assert.Equal(t, a.String(), b.String())
	// nested unions flatten
	c := Union(Union(circle, square), StrType)
	assert.Len(t, c.Members, 3)
	// Any absorbs, Bottom vanishes
	assert.True(t, Union(circle, Any).IsAny())
	assert.True(t, Union(Bottom, circle).Equals(circle))
	assert.True(t, Union().IsBottom())
}

func TestJoin(t *testing.T) {
	tt := shapeTable(t)
	circle := Concrete("Circle")
	square := Concrete("Square")

	assert.True(t, tt.Join(circle, circle).Equals(circle))
	assert.True(t, tt.Join(circle, Bottom).Equals(circle))
	assert.True(t, tt.Join(circle, Any).IsAny())

	u := tt.Join(circle, square)
	require.Equal(t, TagUnion, u.Tag)
	assert.Len(t, u.Members, 2)

	// joining a member into its supertype stays the supertype
	assert.True(t, tt.Join(circle, Abstract("Shape")).Equals(Abstract("Shape")))
	assert.True(t, tt.JoinAll(IntType, FloatType, Bottom).Equals(Union(IntType, FloatType)))
}

func TestMeet(t *testing.T) {
	tt := shapeTable(t)
	circle := Concrete("Circle")
	square := Concrete("Square")
	shape := Abstract("Shape")

	assert.True(t, tt.Meet(circle, shape).Equals(circle))
	assert.True(t, tt.Meet(shape, circle).Equals(circle))
	assert.True(t, tt.Meet(circle, square).IsBottom())
	assert.True(t, tt.Meet(circle, Any).Equals(circle))
	assert.True(t, tt.Meet(circle, Bottom).IsBottom())
	assert.True(t, tt.Meet(Union(circle, StrType), shape).Equals(circle))
	assert.True(t, tt.Meet(Union(circle, square), shape).Equals(Union(circle, square)))
}

func TestSubtract(t *testing.T) {
	tt := shapeTable(t)
	circle := Concrete("Circle")
	square := Concrete("Square")

	// removing the tested type from a union leaves the rest
	assert.True(t, tt.Subtract(Union(circle, square), circle).Equals(square))
	assert.True(t, tt.Subtract(Union(circle, square), Abstract("Shape")).IsBottom())
	// subtracting an unrelated type changes nothing
	assert.True(t, tt.Subtract(circle, StrType).Equals(circle))
	// subtracting a type from itself empties it
	assert.True(t, tt.Subtract(circle, circle).IsBottom())
}

func TestWiden(t *testing.T) {
	tt := shapeTable(t)
	circle := Concrete("Circle")
	square := Concrete("Square")

	// under the threshold the history joins precisely
	w := tt.Widen([]*Type{IntType, IntType}, 3)
	assert.True(t, w.Equals(IntType))

	// past the threshold siblings collapse to the declared ancestor
	w = tt.Widen([]*Type{circle, square, circle, square}, 1)
	assert.True(t, w.Equals(Abstract("Shape")))

	w = tt.Widen([]*Type{IntType, FloatType, IntType, FloatType}, 1)
	assert.True(t, w.Equals(NumberType))

	// no common declared ancestor widens to Any
	w = tt.Widen([]*Type{IntType, StrType}, 1)
	assert.True(t, w.IsAny())
}
