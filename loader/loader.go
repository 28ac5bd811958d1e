package loader

import (
	"errors"
	"fmt"
	"os"

	gfn "github.com/panyam/goutils/fn"

	"github.com/velang/velprof/decl"
	"github.com/velang/velprof/interp"
	"github.com/velang/velprof/parser"
)

// SourceUnit is a loaded, validated unit ready for profiling: the
// frozen method table, the declared type table, and the entry calls in
// source order.
type SourceUnit struct {
	Path    string
	File    *decl.SourceFile
	Types   *decl.TypeTable
	Table   *interp.MethodTable
	Entries []*decl.CallExpr
}

// Loader turns parsed source files into registered method tables. Type
// and method registration is a one-time pre-pass; the produced table is
// frozen before any interpretation starts.
type Loader struct {
	ErrorCollector
}

func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and registers one file.
func (l *Loader) Load(path string) (*SourceUnit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return l.LoadSource(path, string(src))
}

// LoadSource parses and registers a unit held in memory. Any collected
// error aborts the load; a unit that fails to load is never profiled.
func (l *Loader) LoadSource(name, src string) (*SourceUnit, error) {
	file, err := parser.ParseSource(name, src)
	if err != nil {
		return nil, err
	}

	types := decl.NewTypeTable()
	table := interp.NewMethodTable(types)
	unit := &SourceUnit{Path: name, File: file, Types: types, Table: table, Entries: file.Entries}

	// Hierarchy first: abstracts, then structs, so parents resolve
	// regardless of declaration order among structs.
	for _, a := range file.Abstracts {
		def := &decl.TypeDef{Name: a.Name, Kind: decl.KindAbstract, Parent: a.Parent, Loc: a.Pos()}
		if err := types.Declare(def); err != nil {
			l.Errorf(a.Pos(), "%s", err.Error())
		}
	}
	for _, s := range file.Structs {
		def := &decl.TypeDef{
			Name:   s.Name,
			Kind:   decl.KindStruct,
			Parent: s.Parent,
			Loc:    s.Pos(),
			Params: gfn.Map(s.TypeParams, func(tp *decl.TypeParamDecl) *decl.TypeParamInfo {
				return &decl.TypeParamInfo{Name: tp.Name, Covariant: tp.Covariant}
			}),
		}
		if err := types.Declare(def); err != nil {
			l.Errorf(s.Pos(), "%s", err.Error())
		}
	}

	// Struct fields in a second pass so fields may reference any
	// declared type, including later ones.
	for _, s := range file.Structs {
		def, ok := types.Get(s.Name)
		if !ok {
			continue
		}
		params := map[string]*decl.Type{}
		for _, tp := range s.TypeParams {
			params[tp.Name] = decl.TypeVar(tp.Name, decl.Any)
		}
		for _, f := range s.Fields {
			ft := l.resolveRef(types, f.Type, params)
			def.Fields = append(def.Fields, &decl.FieldInfo{Name: f.Name, Type: ft})
		}
	}

	registerPrelude(table)

	// Constructor methods for non-generic structs: Point(Int, Int).
	for _, s := range file.Structs {
		if len(s.TypeParams) > 0 {
			continue
		}
		def, ok := types.Get(s.Name)
		if !ok {
			continue
		}
		sig := &interp.MethodSignature{
			Name:       s.Name,
			Params:     gfn.Map(def.Fields, func(f *decl.FieldInfo) *decl.Type { return f.Type }),
			ParamNames: gfn.Map(def.Fields, func(f *decl.FieldInfo) string { return f.Name }),
			Ctor:       s.Name,
			Loc:        s.Pos(),
		}
		if err := table.Register(sig); err != nil {
			l.Errorf(s.Pos(), "%s", err.Error())
		}
	}

	for _, m := range file.Methods {
		l.registerMethod(table, types, m)
	}

	// Entry-call and body type references must resolve before the run.
	for _, m := range file.Methods {
		tvars := map[string]*decl.Type{}
		for _, w := range m.Where {
			tvars[w.Name] = decl.Bottom // placeholder; only names matter here
		}
		l.validateBlock(types, m.Body, tvars)
	}
	for _, e := range file.Entries {
		l.validateExpr(types, e, nil)
	}

	if l.HasErrors() {
		return nil, errors.Join(l.Errors...)
	}
	table.Freeze()
	return unit, nil
}

func (l *Loader) registerMethod(table *interp.MethodTable, types *decl.TypeTable, m *decl.MethodDecl) {
	tvars := map[string]*decl.Type{}
	for _, w := range m.Where {
		bound := l.resolveRef(types, w.Bound, nil)
		tvars[w.Name] = decl.TypeVar(w.Name, bound)
	}
	sig := &interp.MethodSignature{
		Name:       m.Name,
		ParamNames: gfn.Map(m.Params, func(p *decl.ParamDecl) string { return p.Name }),
		Params: gfn.Map(m.Params, func(p *decl.ParamDecl) *decl.Type {
			if p.Type == nil {
				return decl.Any
			}
			return l.resolveRef(types, p.Type, tvars)
		}),
		Body:     m.Body,
		TypeVars: tvars,
		Loc:      m.Pos(),
	}
	if err := table.Register(sig); err != nil {
		l.Errorf(m.Pos(), "%s", err.Error())
	}
}

// resolveRef resolves a syntactic type reference, collecting an error
// for unknown names.
func (l *Loader) resolveRef(types *decl.TypeTable, ref *decl.TypeRef, tvars map[string]*decl.Type) *decl.Type {
	if ref == nil {
		return decl.Any
	}
	if len(ref.Alts) > 0 {
		parts := gfn.Map(ref.Alts, func(a *decl.TypeRef) *decl.Type { return l.resolveRef(types, a, tvars) })
		return decl.Union(parts...)
	}
	if ref.Name == "Any" {
		return decl.Any
	}
	if tvars != nil {
		if tv, ok := tvars[ref.Name]; ok {
			return tv
		}
	}
	args := gfn.Map(ref.Args, func(a *decl.TypeRef) *decl.Type { return l.resolveRef(types, a, tvars) })
	if t := types.TypeOf(ref.Name, args...); t != nil {
		return t
	}
	l.Errorf(ref.Pos(), "unknown type '%s'", ref.Name)
	return decl.Any
}

// validateBlock checks that every type reference inside a body resolves;
// the interpreter assumes validated IR.
func (l *Loader) validateBlock(types *decl.TypeTable, block *decl.BlockStmt, tvars map[string]*decl.Type) {
	if block == nil {
		return
	}
	for _, stmt := range block.Stmts {
		switch s := stmt.(type) {
		case *decl.AssignStmt:
			if s.Declared != nil {
				l.resolveRef(types, s.Declared, tvars)
			}
			l.validateExpr(types, s.Value, tvars)
		case *decl.ExprStmt:
			l.validateExpr(types, s.E, tvars)
		case *decl.ReturnStmt:
			if s.Value != nil {
				l.validateExpr(types, s.Value, tvars)
			}
		case *decl.IfStmt:
			l.validateExpr(types, s.Cond, tvars)
			l.validateBlock(types, s.Then, tvars)
			l.validateBlock(types, s.Else, tvars)
		case *decl.WhileStmt:
			l.validateExpr(types, s.Cond, tvars)
			l.validateBlock(types, s.Body, tvars)
		case *decl.BlockStmt:
			l.validateBlock(types, s, tvars)
		}
	}
}

func (l *Loader) validateExpr(types *decl.TypeTable, e decl.Expr, tvars map[string]*decl.Type) {
	switch x := e.(type) {
	case *decl.CallExpr:
		for _, a := range x.Args {
			l.validateExpr(types, a, tvars)
		}
	case *decl.FieldAccessExpr:
		l.validateExpr(types, x.Receiver, tvars)
	case *decl.IsaExpr:
		l.validateExpr(types, x.Subject, tvars)
		l.resolveRef(types, x.Tested, tvars)
	}
}
