package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/velang/velprof/driver"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file.vel>",
	Short: "Profile a Vel file and re-profile on every change",
	Long: `The watch command runs an initial profile, then watches the file for
modifications. Each change cancels any in-flight run and starts a
fresh one, printing a new report. Ctrl+C exits.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := &driver.Watcher{
			Path:     args[0],
			Limits:   limits(),
			Out:      os.Stdout,
			Colorize: colorize(),
		}
		if err := w.Watch(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "velprof: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	AddCommand(watchCmd)
}
