// Package cli implements the statetable command line: the serve daemon and a
// small client for sending single requests.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "statetable",
		Short:         "In-memory state table server",
		Long:          "Serve named in-memory record tables over HTTP and Connect, or send a single request to a running server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}
