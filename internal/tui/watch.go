// Package tui holds the live presence dashboard behind `mesh agents --watch`.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/grovetools/mesh/config"
	"github.com/grovetools/mesh/pkg/presence"
	"github.com/grovetools/mesh/pkg/registry"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusColor = map[presence.Status]lipgloss.Style{
		presence.StatusActive: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		presence.StatusIdle:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		presence.StatusAway:   dimStyle,
		presence.StatusStuck:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
)

type tickMsg time.Time

// WatchModel renders the mesh's live presence and recent activity.
type WatchModel struct {
	reg     *registry.Registry
	feed    *presence.Feed
	cfg     *config.Config
	spin    spinner.Model
	agents  []registry.Registration
	events  []presence.Event
	lastErr error
}

// NewWatchModel creates the dashboard model.
func NewWatchModel() WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	return WatchModel{
		reg:  registry.New(),
		feed: presence.NewFeed(0),
		cfg:  cfg,
		spin: s,
	}
}

// Init starts the refresh loop.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles keys and refresh ticks.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		m.agents, m.lastErr = m.reg.ActiveAgents(registry.ListOptions{})
		if events, err := m.feed.Recent(8); err == nil {
			m.events = events
		}
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the dashboard.
func (m WatchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("mesh agents"))
	b.WriteString(" " + m.spin.View() + "\n\n")

	if m.lastErr != nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("error: %v", m.lastErr)) + "\n")
	}
	if len(m.agents) == 0 {
		b.WriteString(dimStyle.Render("no agents registered") + "\n")
	}

	threshold := time.Duration(m.cfg.StuckThresholdSeconds) * time.Second
	for i := range m.agents {
		agent := &m.agents[i]
		status := presence.Derive(agent.Activity.LastActivityAt,
			len(agent.Reservations) > 0, threshold, time.Now())
		fmt.Fprintf(&b, "  %-20s %s  %s",
			agent.Name,
			statusColor[status].Render(fmt.Sprintf("%-6s", status)),
			agent.Cwd)
		if agent.Branch != "" {
			b.WriteString(dimStyle.Render("  " + agent.Branch))
		}
		b.WriteString("\n")
	}

	if len(m.events) > 0 {
		b.WriteString("\n" + titleStyle.Render("activity") + "\n")
		for _, event := range m.events {
			line, err := presence.FormatLine(event)
			if err != nil {
				continue
			}
			b.WriteString("  " + dimStyle.Render(line) + "\n")
		}
	}

	b.WriteString("\n" + dimStyle.Render("q to quit"))
	return b.String()
}
