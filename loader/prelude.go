package loader

import (
	"github.com/velang/velprof/decl"
	"github.com/velang/velprof/interp"
)

// registerPrelude installs the builtin operator methods every unit
// starts with. Operators are ordinary multi-methods; user code may add
// its own methods for them on declared types.
func registerPrelude(table *interp.MethodTable) {
	binop := func(name string, a, b, ret *decl.Type) {
		_ = table.Register(&interp.MethodSignature{
			Name:       name,
			Params:     []*decl.Type{a, b},
			ParamNames: []string{"a", "b"},
			Result:     ret,
		})
	}
	unop := func(name string, a, ret *decl.Type) {
		_ = table.Register(&interp.MethodSignature{
			Name:       name,
			Params:     []*decl.Type{a},
			ParamNames: []string{"a"},
			Result:     ret,
		})
	}

	I, F, S, B := decl.IntType, decl.FloatType, decl.StrType, decl.BoolType

	// Mixed Int/Float arithmetic falls through to the Number signature
	// rather than enumerating the cross products, which would tie with
	// each other on union arguments.
	for _, op := range []string{"+", "-", "*", "/"} {
		binop(op, I, I, I)
		binop(op, F, F, F)
		binop(op, decl.NumberType, decl.NumberType, decl.NumberType)
	}
	binop("+", S, S, S) // concatenation

	unop("-", I, I)
	unop("-", F, F)

	for _, op := range []string{"<", "<=", ">", ">="} {
		binop(op, decl.NumberType, decl.NumberType, B)
		binop(op, S, S, B)
	}
	for _, op := range []string{"==", "!="} {
		binop(op, decl.Any, decl.Any, B)
	}

	unop("print", decl.Any, decl.NothingType)
}
