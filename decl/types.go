package decl

import (
	"fmt"
	"sort"
	"strings"

	gfn "github.com/panyam/goutils/fn"
)

type TypeTag int

const (
	TagAny TypeTag = iota
	TagBottom
	TagConcrete
	TagAbstract
	TagUnion
	TagTypeVar
)

// Type is the tagged-variant abstract type used throughout profiling.
// Values are immutable once constructed; helpers below always build new
// nodes rather than mutating in place.
type Type struct {
	Tag     TypeTag
	Name    string  // Concrete, Abstract, TypeVar
	Args    []*Type // Concrete type arguments
	Members []*Type // Union members, normalized (flat, deduped, sorted)
	Bound   *Type   // TypeVar upper bound
}

// Singletons for the lattice extremes.
var (
	Any    = &Type{Tag: TagAny}
	Bottom = &Type{Tag: TagBottom}
)

func Concrete(name string, args ...*Type) *Type {
	return &Type{Tag: TagConcrete, Name: name, Args: args}
}

func Abstract(name string) *Type {
	return &Type{Tag: TagAbstract, Name: name}
}

func TypeVar(name string, bound *Type) *Type {
	if bound == nil {
		bound = Any
	}
	return &Type{Tag: TagTypeVar, Name: name, Bound: bound}
}

// Union builds a normalized union: nested unions are flattened, Bottom
// dropped, duplicates removed, and members ordered by their canonical
// string so equal unions are structurally identical. Any absorbs
// everything; a single survivor is returned unwrapped.
func Union(members ...*Type) *Type {
	var flat []*Type
	var add func(t *Type)
	add = func(t *Type) {
		switch t.Tag {
		case TagBottom:
		case TagUnion:
			for _, m := range t.Members {
				add(m)
			}
		default:
			for _, seen := range flat {
				if seen.Equals(t) {
					return
				}
			}
			flat = append(flat, t)
		}
	}
	for _, m := range members {
		if m.Tag == TagAny {
			return Any
		}
		add(m)
	}
	switch len(flat) {
	case 0:
		return Bottom
	case 1:
		return flat[0]
	}
	sort.Slice(flat, func(i, j int) bool { return flat[i].String() < flat[j].String() })
	return &Type{Tag: TagUnion, Members: flat}
}

func (t *Type) String() string {
	switch t.Tag {
	case TagAny:
		return "Any"
	case TagBottom:
		return "Bottom"
	case TagUnion:
		return strings.Join(gfn.Map(t.Members, func(m *Type) string { return m.String() }), " | ")
	case TagTypeVar:
		return fmt.Sprintf("%s <: %s", t.Name, t.Bound.String())
	case TagConcrete:
		if len(t.Args) > 0 {
			args := gfn.Map(t.Args, func(a *Type) string { return a.String() })
			return fmt.Sprintf("%s[%s]", t.Name, strings.Join(args, ", "))
		}
		return t.Name
	default:
		return t.Name
	}
}

// Equals checks structural equivalence. Union members are kept in
// canonical order, so positional comparison suffices.
func (t *Type) Equals(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Tag != o.Tag || t.Name != o.Name {
		return false
	}
	if len(t.Args) != len(o.Args) || len(t.Members) != len(o.Members) {
		return false
	}
	for i, a := range t.Args {
		if !a.Equals(o.Args[i]) {
			return false
		}
	}
	for i, m := range t.Members {
		if !m.Equals(o.Members[i]) {
			return false
		}
	}
	if t.Tag == TagTypeVar {
		return t.Bound.Equals(o.Bound)
	}
	return true
}

func (t *Type) IsBottom() bool { return t.Tag == TagBottom }
func (t *Type) IsAny() bool    { return t.Tag == TagAny }

// --- Declared type information ---

type TypeKind int

const (
	KindAbstract TypeKind = iota
	KindStruct
	KindBuiltin // concrete, no declared fields
)

type FieldInfo struct {
	Name string
	Type *Type // may reference TypeVars of the owner's params
}

type TypeParamInfo struct {
	Name      string
	Covariant bool
}

// TypeDef is the declared structure behind a named type: its place in
// the hierarchy, its type parameters and their variance, and its fields.
type TypeDef struct {
	Name   string
	Kind   TypeKind
	Parent string // "" means Any is the parent
	Params []*TypeParamInfo
	Fields []*FieldInfo
	Loc    Location
}

// TypeTable holds every declared type of a source unit plus the
// builtins. It is populated during loading and read-only afterwards;
// all lattice operations hang off it because subtyping depends on the
// declared hierarchy.
type TypeTable struct {
	defs map[string]*TypeDef
}

func NewTypeTable() *TypeTable {
	tt := &TypeTable{defs: make(map[string]*TypeDef)}
	for _, b := range []struct{ name, parent string }{
		{"Number", ""}, {"Int", "Number"}, {"Float", "Number"},
		{"Str", ""}, {"Bool", ""}, {"Nothing", ""},
	} {
		kind := KindBuiltin
		if b.name == "Number" {
			kind = KindAbstract
		}
		tt.defs[b.name] = &TypeDef{Name: b.name, Kind: kind, Parent: b.parent}
	}
	return tt
}

// Builtin leaf types, usable wherever a TypeTable is in scope.
var (
	IntType     = Concrete("Int")
	FloatType   = Concrete("Float")
	StrType     = Concrete("Str")
	BoolType    = Concrete("Bool")
	NothingType = Concrete("Nothing")
	NumberType  = Abstract("Number")
)

func (tt *TypeTable) Get(name string) (*TypeDef, bool) {
	d, ok := tt.defs[name]
	return d, ok
}

func (tt *TypeTable) Declare(def *TypeDef) error {
	if _, dup := tt.defs[def.Name]; dup {
		return fmt.Errorf("type '%s' already declared", def.Name)
	}
	if def.Parent != "" {
		p, ok := tt.defs[def.Parent]
		if !ok {
			return fmt.Errorf("type '%s': unknown parent type '%s'", def.Name, def.Parent)
		}
		if p.Kind != KindAbstract {
			return fmt.Errorf("type '%s': parent '%s' is not abstract", def.Name, def.Parent)
		}
	}
	tt.defs[def.Name] = def
	return nil
}

// TypeOf turns a declared name into its abstract Type. Unknown names
// come back as nil.
func (tt *TypeTable) TypeOf(name string, args ...*Type) *Type {
	d, ok := tt.defs[name]
	if !ok {
		return nil
	}
	if d.Kind == KindAbstract {
		return Abstract(name)
	}
	return Concrete(name, args...)
}

// FieldType resolves a field on a concrete type, substituting the
// owner's type arguments into the declared field type. Second result is
// false when the type has no such field; third is false when the type
// carries no structural information at all (builtins).
func (tt *TypeTable) FieldType(t *Type, field string) (ft *Type, found bool, structural bool) {
	if t.Tag != TagConcrete {
		return nil, false, false
	}
	d, ok := tt.defs[t.Name]
	if !ok || d.Kind != KindStruct {
		return nil, false, false
	}
	for _, f := range d.Fields {
		if f.Name == field {
			return tt.substitute(f.Type, d, t.Args), true, true
		}
	}
	return nil, false, true
}

// substitute replaces TypeVar references to the struct's own params with
// the instance's type arguments.
func (tt *TypeTable) substitute(t *Type, owner *TypeDef, args []*Type) *Type {
	switch t.Tag {
	case TagTypeVar:
		for i, p := range owner.Params {
			if p.Name == t.Name && i < len(args) {
				return args[i]
			}
		}
		return t.Bound
	case TagConcrete:
		if len(t.Args) == 0 {
			return t
		}
		sub := gfn.Map(t.Args, func(a *Type) *Type { return tt.substitute(a, owner, args) })
		return Concrete(t.Name, sub...)
	case TagUnion:
		sub := gfn.Map(t.Members, func(m *Type) *Type { return tt.substitute(m, owner, args) })
		return Union(sub...)
	default:
		return t
	}
}
