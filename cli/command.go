// Package cli provides the shared cobra scaffolding for the mesh binary.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// NewStandardCommand creates a root command with the flags and behavior every
// mesh binary shares: usage/error silencing (errors are printed once by the
// handler in main) and a --debug flag that raises the log level.
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Pick up flags registered on the global set (e.g. by test binaries).
	cmd.PersistentFlags().AddFlagSet(pflag.CommandLine)

	var debug bool
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if debug {
			os.Setenv("MESH_DEBUG", "1")
			os.Setenv("MESH_LOG_LEVEL", "debug")
		}
	}

	return cmd
}
