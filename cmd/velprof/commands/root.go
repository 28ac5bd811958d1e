package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/velang/velprof/interp"
)

var (
	maxDepth   int
	maxEntries int
	widenAfter int
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "velprof",
	Short: "velprof finds type-level bugs in Vel programs without running them",
	Long: `velprof abstractly interprets the call graph reachable from a Vel
file's toplevel calls, using declared method signatures instead of
values, and reports every call chain that provably cannot resolve.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 0, "Call-chain depth cap (default: VELPROF_MAX_DEPTH or 256)")
	rootCmd.PersistentFlags().IntVar(&maxEntries, "max-cache", 0, "Inference cache entry cap (default: VELPROF_MAX_CACHE or 10000)")
	rootCmd.PersistentFlags().IntVar(&widenAfter, "widen-after", 0, "Distinct types tolerated before widening (default: VELPROF_WIDEN_AFTER or 3)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored report output")
}

// AddCommand allows adding subcommands from other files.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// limits resolves resource bounds: flag, then environment, then the
// built-in default.
func limits() interp.Limits {
	pick := func(flag int, env string) int {
		if flag > 0 {
			return flag
		}
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return 0 // interp fills in its default
	}
	return interp.Limits{
		MaxDepth:        pick(maxDepth, "VELPROF_MAX_DEPTH"),
		MaxCacheEntries: pick(maxEntries, "VELPROF_MAX_CACHE"),
		WidenThreshold:  pick(widenAfter, "VELPROF_WIDEN_AFTER"),
	}
}

func colorize() bool { return !noColor }
