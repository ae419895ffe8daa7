// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Interactive keyword browser with review, sync, and purge controls
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/trendscope/sync"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewConfirmPurge
)

// Model is the main bubbletea model
type Model struct {
	manager  *sync.Manager
	viewMode ViewMode

	// List view state
	selectedRow int
	searching   bool
	searchInput textinput.Model

	// Sync state
	syncing bool
	spin    spinner.Model
	status  string

	// UI state
	width  int
	height int
}

type syncDoneMsg struct{ err error }
type purgeDoneMsg struct{ err error }
type reviewDoneMsg struct{ err error }

// NewModel creates a new TUI model
func NewModel(m *sync.Manager) Model {
	search := textinput.New()
	search.Placeholder = "keyword"
	search.CharLimit = 64

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		manager:     m,
		viewMode:    ViewList,
		searchInput: search,
		spin:        sp,
		width:       80,
		height:      24,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case spinner.TickMsg:
		if !m.syncing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case syncDoneMsg:
		m.syncing = false
		if msg.err != nil {
			m.status = "Sync failed: " + msg.err.Error()
		} else {
			m.status = "Synced"
		}
		return m, nil
	case reviewDoneMsg:
		m.syncing = false
		if msg.err != nil {
			m.status = "Review update failed: " + msg.err.Error()
		} else {
			m.status = "Review status updated"
		}
		return m, nil
	case purgeDoneMsg:
		m.syncing = false
		m.viewMode = ViewList
		m.selectedRow = 0
		if msg.err != nil {
			m.status = "Purge failed: " + msg.err.Error()
		} else {
			m.status = "Reviewed keywords purged"
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewList:
		return m.renderListView()
	case ViewConfirmPurge:
		return m.renderConfirmPurgeView()
	}
	return ""
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.handleSearchKeys(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}

	switch m.viewMode {
	case ViewList:
		return m.handleListKeys(msg)
	case ViewConfirmPurge:
		return m.handleConfirmPurgeKeys(msg)
	}

	return m, nil
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.searching = false
		m.searchInput.Blur()
		m.selectedRow = 0
		return m, nil
	}
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "down", "j":
		if m.selectedRow < len(m.visibleRecords())-1 {
			m.selectedRow++
		}
	case "/":
		m.searching = true
		m.searchInput.Focus()
		return m, textinput.Blink
	case "r":
		records := m.visibleRecords()
		if m.syncing || m.selectedRow >= len(records) {
			return m, nil
		}
		selected := records[m.selectedRow]
		m.syncing = true
		m.status = ""
		return m, tea.Batch(m.spin.Tick, func() tea.Msg {
			err := m.manager.SetReviewedStatus(context.Background(),
				[]string{selected.ID}, !selected.Reviewed)
			return reviewDoneMsg{err: err}
		})
	case "s":
		if m.syncing {
			return m, nil
		}
		m.syncing = true
		m.status = ""
		return m, tea.Batch(m.spin.Tick, func() tea.Msg {
			return syncDoneMsg{err: m.manager.Sync(context.Background())}
		})
	case "p":
		m.viewMode = ViewConfirmPurge
	}

	return m, nil
}

func (m Model) handleConfirmPurgeKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y":
		m.syncing = true
		m.status = ""
		return m, tea.Batch(m.spin.Tick, func() tea.Msg {
			return purgeDoneMsg{err: m.manager.PurgeReviewed(context.Background())}
		})
	case "n", "esc":
		m.viewMode = ViewList
	}
	return m, nil
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	reviewedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)
