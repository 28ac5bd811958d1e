// report/report_test.go
package report

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velang/velprof/decl"
	"github.com/velang/velprof/interp"
)

func at(line int) decl.Location {
	return decl.Location{File: "test.vel", Line: line, Col: 1}
}

func frame(fn string, line int, args ...*decl.Type) *interp.CallFrame {
	return &interp.CallFrame{FnName: fn, CallSite: at(line), ArgTypes: args, Return: decl.Bottom}
}

func TestReportClean(t *testing.T) {
	r := Build([]*interp.CallFrame{frame("f", 1, decl.IntType)})
	assert.False(t, r.HasErrors())
	assert.Equal(t, 0, r.Total)
	assert.Equal(t, "no errors detected\n", r.String())
}

func TestReportCountsSubtree(t *testing.T) {
	child := frame("<=", 1, decl.StrType, decl.IntType)
	child.Errors = []*interp.ErrorRecord{{
		Kind: interp.NoMatchingMethod,
		Msg:  "no method matching <=(Str, Int)",
		Loc:  at(1),
	}}
	entry := frame("fib", 7, decl.StrType)
	entry.Children = []*interp.CallFrame{child}

	r := Build([]*interp.CallFrame{entry})
	assert.True(t, r.HasErrors())
	assert.Equal(t, 1, r.Total)
}

func TestReportRendering(t *testing.T) {
	child := frame("<=", 1, decl.StrType, decl.IntType)
	child.Errors = []*interp.ErrorRecord{{
		Kind: interp.NoMatchingMethod,
		Msg:  "no method matching <=(Str, Int)",
		Loc:  at(1),
	}}
	clean := frame("abs", 1, decl.IntType)
	entry := frame("fib", 7, decl.StrType)
	entry.Children = []*interp.CallFrame{child, clean}

	out := Build([]*interp.CallFrame{entry}).String()
	want := "profiling detected 1 possible errors\n" +
		"@ test.vel:7  fib(Str)\n" +
		"  @ test.vel:1  <=(Str, Int)\n" +
		"    no method matching <=(Str, Int)\n"
	assert.Equal(t, want, out)
	// the clean sibling was pruned
	assert.NotContains(t, out, "abs")
}

func TestReportColorizedRendering(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = prev }()

	child := frame("<=", 1, decl.StrType, decl.IntType)
	child.Errors = []*interp.ErrorRecord{{
		Kind: interp.NoMatchingMethod,
		Msg:  "no method matching <=(Str, Int)",
		Loc:  at(1),
	}}
	entry := frame("fib", 7, decl.StrType)
	entry.Children = []*interp.CallFrame{child}

	var sb strings.Builder
	Build([]*interp.CallFrame{entry}).Render(&sb, true)
	out := sb.String()
	assert.Contains(t, out, "\x1b[")
	// locations are wrapped but their text survives intact
	assert.Contains(t, out, "test.vel:7")
	assert.Contains(t, out, "test.vel:1")
}

func TestReportOrdersBySourcePosition(t *testing.T) {
	late := frame("g", 3, decl.IntType)
	late.Errors = []*interp.ErrorRecord{{Kind: interp.NoMatchingMethod, Msg: "late", Loc: at(3)}}
	early := frame("h", 2, decl.IntType)
	early.Errors = []*interp.ErrorRecord{{Kind: interp.NoMatchingMethod, Msg: "early", Loc: at(2)}}

	entry := frame("f", 1, decl.IntType)
	entry.Children = []*interp.CallFrame{late, early}
	entry.Errors = []*interp.ErrorRecord{{Kind: interp.UndefinedBinding, Msg: "own", Loc: at(5)}}

	out := Build([]*interp.CallFrame{entry}).String()
	iEarly := strings.Index(out, "early")
	iLate := strings.Index(out, "late")
	iOwn := strings.Index(out, "own")
	require.GreaterOrEqual(t, iEarly, 0)
	assert.Less(t, iEarly, iLate)
	assert.Less(t, iLate, iOwn)
}

func TestReportSkipsCleanEntries(t *testing.T) {
	bad := frame("g", 2, decl.IntType)
	bad.Errors = []*interp.ErrorRecord{{Kind: interp.UndefinedBinding, Msg: "oops", Loc: at(2)}}
	out := Build([]*interp.CallFrame{frame("f", 1, decl.IntType), bad}).String()
	assert.NotContains(t, out, "f(Int)")
	assert.Contains(t, out, "g(Int)")
}
