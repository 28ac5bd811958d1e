package interp

import (
	"fmt"
	"strings"

	gfn "github.com/panyam/goutils/fn"

	"github.com/velang/velprof/decl"
)

// ErrorKind enumerates target-program diagnostics. These are collected
// on call frames, never raised; one bug must not mask another.
type ErrorKind int

const (
	UndefinedBinding ErrorKind = iota
	NoMatchingMethod
	AmbiguousMethod
	InvalidFieldAccess
	InvalidBuiltinCall
	TypeConversionFailure
)

func (k ErrorKind) String() string {
	switch k {
	case UndefinedBinding:
		return "UndefinedBinding"
	case NoMatchingMethod:
		return "NoMatchingMethod"
	case AmbiguousMethod:
		return "AmbiguousMethod"
	case InvalidFieldAccess:
		return "InvalidFieldAccess"
	case InvalidBuiltinCall:
		return "InvalidBuiltinCall"
	case TypeConversionFailure:
		return "TypeConversionFailure"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ErrorRecord is one diagnostic attached to the frame where it was
// detected.
type ErrorRecord struct {
	Kind ErrorKind
	Msg  string
	Call string // offending expression rendered with resolved types
	Loc  decl.Location
}

func (e *ErrorRecord) String() string {
	return fmt.Sprintf("%s: %s", e.Loc.String(), e.Msg)
}

// CallFrame is one node of the interpreted call tree. Frames are owned
// exclusively by their parent; the entry frame has no parent. Children
// appear in source order.
type CallFrame struct {
	FnName   string
	CallSite decl.Location
	ArgTypes []*decl.Type
	Return   *decl.Type
	Children []*CallFrame
	Errors   []*ErrorRecord

	// Stub marks a frame that was recorded but never dispatched: its
	// arguments were already Bottom, so the call sits in unreachable
	// code and expanding it would only cascade spurious errors.
	Stub bool
	// Field marks frames that model a field access rather than a call.
	Field bool
	// Recursive marks a re-entry into an in-progress inference; the
	// frame carries the fixpoint's current best type and no children.
	Recursive bool
}

func newFrame(fn string, loc decl.Location, args []*decl.Type) *CallFrame {
	return &CallFrame{FnName: fn, CallSite: loc, ArgTypes: args, Return: decl.Bottom}
}

// RenderCall shows the frame's expression with resolved argument types,
// e.g. `fib(Int)` or `Point.xx` for field frames.
func (f *CallFrame) RenderCall() string {
	if f.Field {
		recv := "?"
		if len(f.ArgTypes) > 0 {
			recv = f.ArgTypes[0].String()
		}
		return fmt.Sprintf("%s.%s", recv, f.FnName)
	}
	return renderCall(f.FnName, f.ArgTypes)
}

func renderCall(fn string, args []*decl.Type) string {
	strs := gfn.Map(args, func(t *decl.Type) string { return t.String() })
	return fmt.Sprintf("%s(%s)", fn, strings.Join(strs, ", "))
}

// addError attaches a diagnostic to this frame. The call string is the
// offending expression rendered with resolved types, which need not be
// the frame's own call. Returns the recovery type the failed expression
// continues with: Any for ambiguity (either candidate might apply at
// runtime), Bottom otherwise.
func (f *CallFrame) addError(kind ErrorKind, loc decl.Location, call string, format string, args ...any) *decl.Type {
	f.Errors = append(f.Errors, &ErrorRecord{
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
		Call: call,
		Loc:  loc,
	})
	if kind == AmbiguousMethod {
		return decl.Any
	}
	return decl.Bottom
}

// HasErrors reports whether the frame or any descendant carries a
// diagnostic.
func (f *CallFrame) HasErrors() bool {
	if len(f.Errors) > 0 {
		return true
	}
	for _, c := range f.Children {
		if c.HasErrors() {
			return true
		}
	}
	return false
}

// CountErrors counts diagnostics across the whole subtree.
func (f *CallFrame) CountErrors() int {
	n := len(f.Errors)
	for _, c := range f.Children {
		n += c.CountErrors()
	}
	return n
}

// AllErrors flattens the subtree's diagnostics in frame order.
func (f *CallFrame) AllErrors() []*ErrorRecord {
	out := append([]*ErrorRecord{}, f.Errors...)
	for _, c := range f.Children {
		out = append(out, c.AllErrors()...)
	}
	return out
}
