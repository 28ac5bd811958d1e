package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped at release time.
var Version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the velprof version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("velprof %s\n", Version)
	},
}

func init() {
	AddCommand(versionCmd)
}
