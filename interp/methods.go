package interp

import (
	"fmt"
	"strings"

	gfn "github.com/panyam/goutils/fn"

	"github.com/velang/velprof/decl"
)

// MethodSignature is one registered definition of a function. Exactly
// one of Body, Result or Ctor describes what a successful dispatch
// yields: a body to interpret, a fixed builtin result type, or a struct
// construction.
type MethodSignature struct {
	Name       string
	Params     []*decl.Type
	ParamNames []string
	Body       *decl.BlockStmt
	Result     *decl.Type            // builtin methods: fixed return type
	Ctor       string                // constructor methods: the struct being built
	TypeVars   map[string]*decl.Type // where-clause variables, by name
	Loc        decl.Location
}

func (s *MethodSignature) String() string {
	params := gfn.Map(s.Params, func(t *decl.Type) string { return t.String() })
	return fmt.Sprintf("%s(%s)", s.Name, strings.Join(params, ", "))
}

type DispatchStatus int

const (
	DispatchMatched DispatchStatus = iota
	DispatchNoMatch
	DispatchAmbiguous
)

// DispatchResult is the outcome of a method-table lookup.
type DispatchResult struct {
	Status     DispatchStatus
	Method     *MethodSignature   // set when Status == DispatchMatched
	Candidates []*MethodSignature // tied maximally-specific set when ambiguous
}

// MethodTable is the per-function collection of declared signatures.
// Registration is a one-time pre-pass; Freeze makes the table read-only
// before interpretation starts, after which concurrent readers need no
// locking.
type MethodTable struct {
	Types   *decl.TypeTable
	methods map[string][]*MethodSignature
	frozen  bool
}

func NewMethodTable(types *decl.TypeTable) *MethodTable {
	return &MethodTable{Types: types, methods: make(map[string][]*MethodSignature)}
}

func (mt *MethodTable) Register(sig *MethodSignature) error {
	if mt.frozen {
		return fmt.Errorf("method table is frozen; cannot register %s", sig.String())
	}
	if sig.Name == "" {
		return fmt.Errorf("method signature with empty name at %s", sig.Loc)
	}
	mt.methods[sig.Name] = append(mt.methods[sig.Name], sig)
	return nil
}

func (mt *MethodTable) Freeze() { mt.frozen = true }

// MethodsOf returns the registered signatures for a function name.
func (mt *MethodTable) MethodsOf(name string) []*MethodSignature {
	return mt.methods[name]
}

// Lookup resolves multi-dispatch for argTypes. Applicable candidates
// are those whose parameter types all have a non-empty intersection
// with the corresponding argument; among those, the most specific under
// pointwise subtyping wins. Two or more maximally-specific survivors
// tie as DispatchAmbiguous.
func (mt *MethodTable) Lookup(name string, argTypes []*decl.Type) DispatchResult {
	var applicable []*MethodSignature
	for _, sig := range mt.methods[name] {
		if len(sig.Params) != len(argTypes) {
			continue
		}
		ok := true
		for i, p := range sig.Params {
			if mt.Types.Meet(argTypes[i], p).IsBottom() && !argTypes[i].IsBottom() {
				ok = false
				break
			}
		}
		if ok {
			applicable = append(applicable, sig)
		}
	}
	if len(applicable) == 0 {
		return DispatchResult{Status: DispatchNoMatch}
	}

	// Keep candidates not strictly less specific than some other.
	var maximal []*MethodSignature
	for _, cand := range applicable {
		dominated := false
		for _, other := range applicable {
			if other != cand && mt.moreSpecific(other, cand) && !mt.moreSpecific(cand, other) {
				dominated = true
				break
			}
		}
		if !dominated {
			maximal = append(maximal, cand)
		}
	}
	if len(maximal) == 1 {
		return DispatchResult{Status: DispatchMatched, Method: maximal[0]}
	}
	return DispatchResult{Status: DispatchAmbiguous, Candidates: maximal}
}

// moreSpecific reports whether a's parameters are pointwise subtypes of
// b's.
func (mt *MethodTable) moreSpecific(a, b *MethodSignature) bool {
	for i := range a.Params {
		if !mt.Types.IsSubtype(a.Params[i], b.Params[i]) {
			return false
		}
	}
	return true
}
