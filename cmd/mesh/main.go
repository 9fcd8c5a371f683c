package main

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/mesh/cli"
	"github.com/grovetools/mesh/version"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"mesh",
		"File-based coordination fabric for coding agents sharing a host",
	)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAgentsCmd())
	rootCmd.AddCommand(newFeedCmd())
	rootCmd.AddCommand(newPathsCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.String())
		},
	})

	cli.HandleError(rootCmd.Execute())
}
