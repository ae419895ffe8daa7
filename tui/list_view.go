package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"

	"github.com/harperreed/trendscope/models"
)

func (m Model) renderListView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("TRENDSCOPE"))
	s.WriteString("\n\n")

	if m.searching {
		s.WriteString("Search: " + m.searchInput.View())
		s.WriteString("\n\n")
	} else if query := m.searchInput.Value(); query != "" {
		s.WriteString("Filter: " + query)
		s.WriteString("\n\n")
	}

	s.WriteString(m.renderKeywordTable())
	s.WriteString("\n")

	if m.syncing {
		s.WriteString(statusStyle.Render(m.spin.View() + " Working..."))
		s.WriteString("\n")
	} else if m.status != "" {
		s.WriteString(statusStyle.Render(m.status))
		s.WriteString("\n")
	}

	s.WriteString(m.renderListHelp())
	return s.String()
}

func (m Model) renderKeywordTable() string {
	records := m.visibleRecords()
	if len(records) == 0 {
		return "No keywords yet. Upload a trends CSV to get started."
	}

	columns := []table.Column{
		{Title: "Keyword", Width: 30},
		{Title: "Freshness", Width: 10},
		{Title: "Weekly Vol", Width: 12},
		{Title: "Monthly Vol", Width: 12},
		{Title: "Reviewed", Width: 9},
	}

	var rows []table.Row
	for _, r := range records {
		reviewed := ""
		if r.Reviewed {
			reviewed = reviewedStyle.Render("✓")
		}
		rows = append(rows, table.Row{
			r.TargetKeyword,
			fmt.Sprintf("%d", models.FreshnessScore(r.ComparisonData)),
			fmt.Sprintf("%d", r.LastWeekVolume),
			fmt.Sprintf("%.0f", r.AverageMonthlyVolume()),
			reviewed,
		})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(m.height-10),
	)

	if m.selectedRow < len(rows) {
		t.SetCursor(m.selectedRow)
	}

	return t.View()
}

func (m Model) renderConfirmPurgeView() string {
	count := 0
	for _, r := range m.manager.Records() {
		if r.Reviewed {
			count++
		}
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("TRENDSCOPE"))
	s.WriteString("\n\n")
	s.WriteString(warnStyle.Render(fmt.Sprintf("Permanently delete %d reviewed keyword(s)?", count)))
	s.WriteString("\n\n")
	s.WriteString("This removes them from the local cache and the remote store.")
	s.WriteString("\n\n")
	if m.syncing {
		s.WriteString(statusStyle.Render(m.spin.View() + " Purging..."))
		s.WriteString("\n")
	}
	s.WriteString(helpStyle.Render("y: Confirm • n/Esc: Cancel"))
	return s.String()
}

func (m Model) renderListHelp() string {
	help := []string{
		"↑/↓: Navigate",
		"/: Search",
		"r: Toggle reviewed",
		"s: Sync",
		"p: Purge reviewed",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

// visibleRecords applies the search filter to the manager's projection.
func (m Model) visibleRecords() []models.TrendsRecord {
	records := m.manager.Records()
	query := strings.ToLower(strings.TrimSpace(m.searchInput.Value()))
	if query == "" {
		return records
	}
	var out []models.TrendsRecord
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.TargetKeyword), query) {
			out = append(out, r)
		}
	}
	return out
}
