package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/velang/velprof/driver"
)

var runCmd = &cobra.Command{
	Use:   "run <file.vel...>",
	Short: "Profile the entry calls of one or more Vel files",
	Long: `The run command parses each file, registers its method table, and
abstractly interprets every toplevel call, printing one report per
file. Exits non-zero when any diagnostics are found.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		failed := false
		for _, path := range args {
			rep, err := driver.LoadAndRun(cmd.Context(), path, limits())
			if err != nil {
				fmt.Fprintf(os.Stderr, "velprof: %s: %v\n", path, err)
				failed = true
				continue
			}
			if len(args) > 1 {
				fmt.Printf("== %s\n", path)
			}
			rep.Render(os.Stdout, colorize())
			failed = failed || rep.HasErrors()
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	AddCommand(runCmd)
}
