// Package report renders the profiled call trees into the hierarchical
// diagnostic report: one nested block per erroring entry call, one
// indentation level per call-chain frame.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/velang/velprof/decl"
	"github.com/velang/velprof/interp"
)

// Report is the pruned view over a run's entry frames.
type Report struct {
	Entries []*interp.CallFrame
	Total   int // ErrorRecords across all entry calls
}

// Build assembles a report from the entry-call frames of one run, in
// entry order.
func Build(entries []*interp.CallFrame) *Report {
	r := &Report{Entries: entries}
	for _, f := range entries {
		r.Total += f.CountErrors()
	}
	return r
}

func (r *Report) HasErrors() bool { return r.Total > 0 }

// String renders without color, mostly for tests and logs.
func (r *Report) String() string {
	var sb strings.Builder
	r.Render(&sb, false)
	return sb.String()
}

// Render writes the report. Output is deterministic: sibling frames and
// diagnostics are ordered by source position, so identical input yields
// byte-identical reports.
func (r *Report) Render(w io.Writer, colorize bool) {
	headerErr := fmt.Sprintf("profiling detected %d possible errors", r.Total)
	headerOk := "no errors detected"
	loc := func(s string) string { return s }
	if colorize {
		headerErr = color.New(color.FgRed, color.Bold).Sprint(headerErr)
		headerOk = color.New(color.FgGreen).Sprint(headerOk)
		cyan := color.New(color.FgCyan)
		loc = func(s string) string { return cyan.Sprint(s) }
	}

	if r.Total == 0 {
		fmt.Fprintln(w, headerOk)
		return
	}
	fmt.Fprintln(w, headerErr)
	for _, entry := range r.Entries {
		if !entry.HasErrors() {
			continue
		}
		renderFrame(w, entry, 0, loc)
	}
}

// renderItem is either a diagnostic leaf or a child frame, ordered with
// its siblings by source position.
type renderItem struct {
	pos   decl.Location
	err   *interp.ErrorRecord
	child *interp.CallFrame
}

func renderFrame(w io.Writer, f *interp.CallFrame, depth int, loc func(string) string) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%s@ %s  %s\n", indent, loc(f.CallSite.LineColStr()), f.RenderCall())

	items := make([]renderItem, 0, len(f.Errors)+len(f.Children))
	for _, e := range f.Errors {
		items = append(items, renderItem{pos: e.Loc, err: e})
	}
	for _, c := range f.Children {
		if c.HasErrors() {
			items = append(items, renderItem{pos: c.CallSite, child: c})
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].pos.Before(items[j].pos) })

	for _, it := range items {
		if it.err != nil {
			fmt.Fprintf(w, "%s  %s\n", indent, it.err.Msg)
		} else {
			renderFrame(w, it.child, depth+1, loc)
		}
	}
}
