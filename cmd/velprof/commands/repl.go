package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/velang/velprof/interp"
	"github.com/velang/velprof/loader"
	"github.com/velang/velprof/parser"
	"github.com/velang/velprof/report"
)

const (
	replPrompt  = "vel> "
	historyFile = ".velprof_history"
)

var replCmd = &cobra.Command{
	Use:   "repl <file.vel>",
	Short: "Profile ad-hoc entry calls against a loaded file",
	Long: `The repl command loads a file's definitions once, then profiles each
entered call expression against its method table, with a fresh
inference cache per line. Type :quit or Ctrl+D to exit.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRepl(cmd, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "velprof: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, path string) error {
	unit, err := loader.NewLoader().Load(path)
	if err != nil {
		return err
	}

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	histPath := filepath.Join(os.TempDir(), historyFile)
	if f, err := os.Open(histPath); err == nil {
		ln.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			ln.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Printf("velprof %s: loaded %s (%d entry calls ignored in repl mode)\n",
		Version, path, len(unit.Entries))

	for {
		line, err := ln.Prompt(replPrompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == ":quit" || line == ":q" {
			return nil
		}
		ln.AppendHistory(line)
		profileLine(cmd, unit, line)
	}
}

// profileLine parses one call expression and profiles it against the
// loaded unit with a fresh cache.
func profileLine(cmd *cobra.Command, unit *loader.SourceUnit, line string) {
	file, err := parser.ParseSource("repl", line)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	if len(file.Methods)+len(file.Structs)+len(file.Abstracts) > 0 {
		fmt.Fprintln(os.Stderr, "definitions must live in the loaded file; enter a call expression")
		return
	}
	if len(file.Entries) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to profile; enter a call expression")
		return
	}

	in := interp.New(cmd.Context(), unit.Table, limits())
	frames := make([]*interp.CallFrame, 0, len(file.Entries))
	for _, call := range file.Entries {
		frame, err := in.EntryCall(call)
		if err != nil {
			fmt.Fprintf(os.Stderr, "velprof: %v\n", err)
			return
		}
		frames = append(frames, frame)
	}
	report.Build(frames).Render(os.Stdout, colorize())
}
