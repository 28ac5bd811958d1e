// Package driver invokes the profiler: once per source unit, or in a
// watch loop that re-profiles on every file change.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/velang/velprof/interp"
	"github.com/velang/velprof/loader"
	"github.com/velang/velprof/report"
)

// RunOnce profiles every entry call of a loaded unit with a fresh
// inference cache and returns the built report. A non-nil error is a
// tool-internal failure (cancellation, resource limits); target bugs
// live inside the report.
func RunOnce(ctx context.Context, unit *loader.SourceUnit, limits interp.Limits) (*report.Report, error) {
	in := interp.New(ctx, unit.Table, limits)
	frames := make([]*interp.CallFrame, 0, len(unit.Entries))
	for _, call := range unit.Entries {
		frame, err := in.EntryCall(call)
		if err != nil {
			return nil, fmt.Errorf("profiling %s: %w", call.String(), err)
		}
		frames = append(frames, frame)
	}
	return report.Build(frames), nil
}

// LoadAndRun is the one-shot path used by the CLI: parse, register,
// profile.
func LoadAndRun(ctx context.Context, path string, limits interp.Limits) (*report.Report, error) {
	unit, err := loader.NewLoader().Load(path)
	if err != nil {
		return nil, err
	}
	return RunOnce(ctx, unit, limits)
}

// Watcher re-profiles a file on every modification. Each change cancels
// any in-flight run (its cache and partial trees are dropped) and
// starts a fresh run from scratch; events are debounced to at most one
// run per burst of changes.
type Watcher struct {
	Path     string
	Limits   interp.Limits
	Out      io.Writer
	Colorize bool
	Debounce time.Duration
	Logger   *slog.Logger
}

func (w *Watcher) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

func (w *Watcher) debounce() time.Duration {
	if w.Debounce > 0 {
		return w.Debounce
	}
	return 200 * time.Millisecond
}

// Watch performs an initial run, then blocks until ctx is done,
// re-running on each change. Tool-internal failures are logged and the
// loop stays alive so the next edit can retry.
func (w *Watcher) Watch(ctx context.Context) error {
	out := w.Out
	if out == nil {
		out = os.Stdout
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer fw.Close()

	// Watch the containing directory: editors commonly replace the
	// file via rename, which drops a direct watch.
	dir := filepath.Dir(w.Path)
	base := filepath.Base(w.Path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	// cancel + join so two runs never write to out at the same time
	var runCancel context.CancelFunc
	var runDone chan struct{}
	stopRun := func() {
		if runCancel == nil {
			return
		}
		runCancel()
		<-runDone
	}
	startRun := func() {
		stopRun()
		rctx, cancel := context.WithCancel(ctx)
		runCancel = cancel
		done := make(chan struct{})
		runDone = done
		go func() {
			defer close(done)
			w.runAndPrint(rctx, out)
		}()
	}
	defer stopRun()

	startRun()

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger().Debug("source changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce())

		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger().Warn("watch error", "err", werr)

		case <-timer.C:
			startRun()
		}
	}
}

func (w *Watcher) runAndPrint(ctx context.Context, out io.Writer) {
	rep, err := LoadAndRun(ctx, w.Path, w.Limits)
	switch {
	case errors.Is(err, context.Canceled):
		w.logger().Debug("run cancelled by newer change", "path", w.Path)
	case err != nil:
		// Malformed input or resource limits: report distinctly from
		// target diagnostics, then wait for the next change.
		fmt.Fprintf(out, "velprof: %v\n", err)
	default:
		rep.Render(out, w.Colorize)
	}
}
