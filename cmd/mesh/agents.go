package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/grovetools/mesh/config"
	"github.com/grovetools/mesh/internal/tui"
	"github.com/grovetools/mesh/pkg/presence"
	"github.com/grovetools/mesh/pkg/registry"
)

var (
	nameStyle   = lipgloss.NewStyle().Bold(true)
	statusStyle = map[presence.Status]lipgloss.Style{
		presence.StatusActive: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		presence.StatusIdle:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		presence.StatusAway:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		presence.StatusStuck:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

func newAgentsCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List agents on the mesh",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				program := tea.NewProgram(tui.NewWatchModel(), tea.WithAltScreen())
				_, err := program.Run()
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			reg := registry.New()
			agents, err := reg.ActiveAgents(registry.ListOptions{})
			if err != nil {
				return err
			}
			if len(agents) == 0 {
				cmd.Println("No agents on the mesh.")
				return nil
			}

			threshold := time.Duration(cfg.StuckThresholdSeconds) * time.Second
			for i := range agents {
				agent := &agents[i]
				status := presence.Derive(agent.Activity.LastActivityAt,
					len(agent.Reservations) > 0, threshold, time.Now())
				line := fmt.Sprintf("%s  %s  %s",
					nameStyle.Render(agent.Name),
					statusStyle[status].Render(string(status)),
					agent.Cwd)
				if agent.Branch != "" {
					line += "  " + agent.Branch
				}
				cmd.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "live presence dashboard")
	return cmd
}
