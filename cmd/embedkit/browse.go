package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/embedkit/embedkit/config"
	"github.com/embedkit/embedkit/lifecycle"
	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the configured database's tables in a read-only TUI.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		m, err := lifecycle.Connect(cmd.Context(), cfg.Manager.DatabasePath, nil)
		if err != nil {
			return err
		}
		defer m.Disconnect()

		stats, err := m.GetDatabaseStats(context.Background())
		if err != nil {
			return err
		}

		p := tea.NewProgram(newBrowseModel(stats))
		_, err = p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

// browseModel is a minimal read-only table browser over
// lifecycle.DatabaseStats, deliberately thin per spec.md §1's Non-goals —
// this is an external collaborator, not part of the embeddable core.
// Grounded on the teacher's internal/wizard bubbletea model shape.
type browseModel struct {
	tbl table.Model
}

func newBrowseModel(stats lifecycle.DatabaseStats) browseModel {
	columns := []table.Column{
		{Title: "Table", Width: 24},
		{Title: "Records", Width: 10},
		{Title: "Size", Width: 10},
	}
	var rows []table.Row
	for _, t := range stats.TableStats {
		rows = append(rows, table.Row{t.Name, fmt.Sprintf("%d", t.Records), t.Size})
	}
	tbl := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(len(rows)+1),
	)
	style := table.DefaultStyles()
	style.Header = style.Header.BorderStyle(lipgloss.NormalBorder()).Bold(true)
	style.Selected = style.Selected.Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	tbl.SetStyles(style)
	return browseModel{tbl: tbl}
}

func (m browseModel) Init() tea.Cmd { return nil }

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.tbl, cmd = m.tbl.Update(msg)
	return m, cmd
}

func (m browseModel) View() string {
	return lipgloss.NewStyle().Padding(1).Render(m.tbl.View()) + "\nq to quit\n"
}
