package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grovetools/mesh/pkg/paths"
)

// PathsOutput represents the mesh directory layout.
type PathsOutput struct {
	BaseDir     string `json:"base_dir"`
	RegistryDir string `json:"registry_dir"`
	ClaimsPath  string `json:"claims_path"`
	FeedPath    string `json:"feed_path"`
	ConfigPath  string `json:"config_path"`
	CrewDir     string `json:"crew_dir"`
}

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the directory layout the mesh uses",
		Long: `Print the directory layout the mesh uses.

The output is JSON, making it easy to parse from scripts. The shared base
directory can be overridden with ` + paths.EnvBaseDir + `.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			output := PathsOutput{
				BaseDir:     paths.BaseDir(),
				RegistryDir: paths.RegistryDir(),
				ClaimsPath:  paths.ClaimsPath(),
				FeedPath:    paths.FeedPath(),
				ConfigPath:  paths.ConfigPath(),
				CrewDir:     paths.CrewDir(cwd),
			}
			jsonData, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal paths to JSON: %w", err)
			}
			cmd.Println(string(jsonData))
			return nil
		},
	}
}
