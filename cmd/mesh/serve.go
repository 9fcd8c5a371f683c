package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/grovetools/mesh/config"
	"github.com/grovetools/mesh/internal/messenger"
	"github.com/grovetools/mesh/logging"
	"github.com/grovetools/mesh/version"
)

// stdioHost adapts the host-runtime capabilities the mesh consumes to an MCP
// stdio session. Steer text is written to stderr where the embedding runtime
// picks it up as a user-visible input.
type stdioHost struct{}

func (h *stdioHost) Steer(text string) {
	fmt.Fprintln(os.Stderr, text)
}

func (h *stdioHost) Notify(title, body string) {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", title, body)
}

func newServeCmd() *cobra.Command {
	var name string
	var model string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pi_messenger tool over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLogger("serve")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			cwd, err := os.Getwd()
			if err != nil {
				return err
			}

			m := messenger.New(messenger.Options{
				Host:   &stdioHost{},
				Config: cfg,
				Cwd:    cwd,
				Model:  model,
			})

			if should, err := cfg.ShouldAutoRegister(cwd); err == nil && should {
				if _, err := m.Join(name, "", false); err != nil {
					log.WithError(err).Warn("auto-registration failed")
				}
			}
			defer func() {
				if err := m.Leave(); err != nil {
					log.WithError(err).Warn("clean shutdown failed")
				}
			}()

			s := server.NewMCPServer(
				"pi-messenger",
				version.Version,
				server.WithToolCapabilities(true),
				server.WithRecovery(),
			)
			s.AddTool(m.ToolDefinition(), m.HandleTool)

			log.Info("serving pi_messenger on stdio")
			return server.ServeStdio(s)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "explicit agent name (no collision retry)")
	cmd.Flags().StringVar(&model, "model", "", "model label recorded on the registration")
	return cmd
}
