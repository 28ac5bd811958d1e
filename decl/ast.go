package decl

import (
	"fmt"
	"strings"

	gfn "github.com/panyam/goutils/fn"
)

// --- Positions ---

// Location identifies a point in a source unit, for error reporting.
type Location struct {
	File string
	Line int // 1-based
	Col  int // 1-based, rune offsets
}

func (l Location) String() string     { return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col) }
func (l Location) LineColStr() string { return fmt.Sprintf("%s:%d", l.File, l.Line) }

// Before orders locations within one unit by source position.
func (l Location) Before(o Location) bool {
	if l.Line != o.Line {
		return l.Line < o.Line
	}
	return l.Col < o.Col
}

// --- Interfaces ---

// Node represents any node in the Vel IR.
type Node interface {
	Pos() Location
	String() string
}

// NodeInfo embeddable struct for position tracking.
type NodeInfo struct{ Loc Location }

func (n *NodeInfo) Pos() Location  { return n.Loc }
func (n *NodeInfo) String() string { return "{Node}" } // Default stringer

// Expr is any expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is any statement node.
type Stmt interface {
	Node
	stmtNode()
}

// --- Type references (syntactic, resolved against a TypeTable at load time) ---

// TypeRef is an unresolved mention of a type in source: a name, a
// parameterized application, or a union of alternatives.
type TypeRef struct {
	NodeInfo
	Name string
	Args []*TypeRef // for Name[A, B]
	Alts []*TypeRef // for A | B; Name is empty when set
}

func (t *TypeRef) String() string {
	if len(t.Alts) > 0 {
		return strings.Join(gfn.Map(t.Alts, func(a *TypeRef) string { return a.String() }), " | ")
	}
	if len(t.Args) > 0 {
		argstrs := gfn.Map(t.Args, func(a *TypeRef) string { return a.String() })
		return fmt.Sprintf("%s[%s]", t.Name, strings.Join(argstrs, ", "))
	}
	return t.Name
}

// --- Expressions ---

type LitKind int

const (
	LitInt LitKind = iota
	LitFloat
	LitStr
	LitBool
)

type LiteralExpr struct {
	NodeInfo
	Kind     LitKind
	IntVal   int64
	FloatVal float64
	StrVal   string
	BoolVal  bool
}

func (e *LiteralExpr) exprNode() {}
func (e *LiteralExpr) String() string {
	switch e.Kind {
	case LitInt:
		return fmt.Sprintf("%d", e.IntVal)
	case LitFloat:
		return fmt.Sprintf("%g", e.FloatVal)
	case LitStr:
		return fmt.Sprintf("%q", e.StrVal)
	default:
		return fmt.Sprintf("%t", e.BoolVal)
	}
}

type IdentExpr struct {
	NodeInfo
	Name string
}

func (e *IdentExpr) exprNode()      {}
func (e *IdentExpr) String() string { return e.Name }

// CallExpr covers named calls and operator applications; `a + b` is
// parsed as CallExpr{Func: "+", Args: [a, b], Operator: true}.
type CallExpr struct {
	NodeInfo
	Func     string
	Args     []Expr
	Operator bool
}

func (e *CallExpr) exprNode() {}
func (e *CallExpr) String() string {
	argstrs := gfn.Map(e.Args, func(a Expr) string { return a.String() })
	if e.Operator && len(argstrs) == 2 {
		return fmt.Sprintf("%s %s %s", argstrs[0], e.Func, argstrs[1])
	}
	return fmt.Sprintf("%s(%s)", e.Func, strings.Join(argstrs, ", "))
}

// FieldAccessExpr is `recv.field`. Field access participates in the
// call-frame tree like any other dispatch.
type FieldAccessExpr struct {
	NodeInfo
	Receiver Expr
	Field    string
}

func (e *FieldAccessExpr) exprNode()      {}
func (e *FieldAccessExpr) String() string { return fmt.Sprintf("%s.%s", e.Receiver.String(), e.Field) }

// IsaExpr is the type test `subject isa Type`; the interpreter narrows
// the subject inside branch arms guarded by it.
type IsaExpr struct {
	NodeInfo
	Subject Expr
	Tested  *TypeRef
}

func (e *IsaExpr) exprNode() {}
func (e *IsaExpr) String() string {
	return fmt.Sprintf("%s isa %s", e.Subject.String(), e.Tested.String())
}

// --- Statements ---

// AssignStmt binds Name to Value; Declared is the optional `x: T = v`
// annotation.
type AssignStmt struct {
	NodeInfo
	Name     string
	Declared *TypeRef // may be nil
	Value    Expr
}

func (s *AssignStmt) stmtNode() {}
func (s *AssignStmt) String() string {
	if s.Declared != nil {
		return fmt.Sprintf("%s: %s = %s", s.Name, s.Declared.String(), s.Value.String())
	}
	return fmt.Sprintf("%s = %s", s.Name, s.Value.String())
}

type BlockStmt struct {
	NodeInfo
	Stmts []Stmt
}

func (s *BlockStmt) stmtNode()      {}
func (s *BlockStmt) String() string { return fmt.Sprintf("{ %d stmts }", len(s.Stmts)) }

type IfStmt struct {
	NodeInfo
	Cond Expr
	Then *BlockStmt
	Else *BlockStmt // may be nil
}

func (s *IfStmt) stmtNode()      {}
func (s *IfStmt) String() string { return fmt.Sprintf("if %s ...", s.Cond.String()) }

type WhileStmt struct {
	NodeInfo
	Cond Expr
	Body *BlockStmt
}

func (s *WhileStmt) stmtNode()      {}
func (s *WhileStmt) String() string { return fmt.Sprintf("while %s ...", s.Cond.String()) }

type ReturnStmt struct {
	NodeInfo
	Value Expr // may be nil
}

func (s *ReturnStmt) stmtNode() {}
func (s *ReturnStmt) String() string {
	if s.Value == nil {
		return "return"
	}
	return "return " + s.Value.String()
}

type ExprStmt struct {
	NodeInfo
	E Expr
}

func (s *ExprStmt) stmtNode()      {}
func (s *ExprStmt) String() string { return s.E.String() }

// --- Declarations ---

type ParamDecl struct {
	NodeInfo
	Name string
	Type *TypeRef // nil means Any
}

func (p *ParamDecl) String() string {
	if p.Type == nil {
		return p.Name
	}
	return fmt.Sprintf("%s: %s", p.Name, p.Type.String())
}

// TypeVarDecl is one `T <: Bound` clause from a method's where-list.
type TypeVarDecl struct {
	NodeInfo
	Name  string
	Bound *TypeRef
}

// MethodDecl is one definition of a (possibly multi-method) function.
type MethodDecl struct {
	NodeInfo
	Name   string
	Params []*ParamDecl
	Where  []*TypeVarDecl
	Body   *BlockStmt
}

func (m *MethodDecl) String() string {
	params := gfn.Map(m.Params, func(p *ParamDecl) string { return p.String() })
	return fmt.Sprintf("def %s(%s)", m.Name, strings.Join(params, ", "))
}

// AbstractDecl declares a node of the nominal type hierarchy.
type AbstractDecl struct {
	NodeInfo
	Name   string
	Parent string // "" means Any
}

func (d *AbstractDecl) String() string { return "abstract " + d.Name }

type FieldDecl struct {
	NodeInfo
	Name string
	Type *TypeRef
}

// TypeParamDecl is a struct's type parameter; Covariant when declared
// with a leading `+`.
type TypeParamDecl struct {
	Name      string
	Covariant bool
}

// StructDecl declares a concrete type with named, typed fields. A
// constructor method of the same name is registered for non-generic
// structs.
type StructDecl struct {
	NodeInfo
	Name       string
	TypeParams []*TypeParamDecl
	Parent     string // "" means Any
	Fields     []*FieldDecl
}

func (d *StructDecl) String() string { return "struct " + d.Name }

// SourceFile is the parsed form of one source unit: declarations in
// order, plus the toplevel call expressions that act as entry calls.
type SourceFile struct {
	NodeInfo
	Path      string
	Abstracts []*AbstractDecl
	Structs   []*StructDecl
	Methods   []*MethodDecl
	Entries   []*CallExpr
}
