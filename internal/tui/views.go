package tui

import (
	"fmt"
	"strings"

	"github.com/Veraticus/kasa/internal/model"
	"github.com/charmbracelet/lipgloss"
)

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			m.spinner.View()+" "+m.theme.Subtitle.Render("Loading settlement log..."))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderStatus(),
		m.table.View(),
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	title := m.theme.Title.Render("📒 kasa watch")
	counts := fmt.Sprintf("%d records · %d pending", len(m.records), m.pending)
	style := m.theme.StatusSuccess
	if m.pending > 0 {
		style = m.theme.StatusWarning
	}
	if m.pendingOnly {
		counts += " · pending only"
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", style.Render(counts))
}

// renderStatus draws the live status box.
func (m Model) renderStatus() string {
	if m.status == nil {
		return m.theme.RoundedBox.Render(m.theme.StatusPending.Render("No run in progress"))
	}
	s := m.status

	var stage string
	switch s.Stage {
	case model.StageProcessing, model.StageAlmostCompleted:
		stage = m.spinner.View() + " " + m.theme.StatusInfo.Render(string(s.Stage))
	case model.StageCompleted:
		stage = m.theme.StatusSuccess.Render(string(s.Stage))
	case model.StageFlagged:
		stage = m.theme.StatusWarning.Render(string(s.Stage))
	case model.StageFailed:
		stage = m.theme.StatusError.Render(string(s.Stage))
	default:
		stage = m.theme.Normal.Render(string(s.Stage))
	}

	var parts []string
	parts = append(parts, stage)
	if s.Name != "" {
		parts = append(parts, m.theme.Bold.Render(s.Name))
	}
	if s.Category != "" {
		parts = append(parts, s.Category.Label())
	}
	if !s.Amount.IsZero() {
		parts = append(parts, s.Amount.StringFixed(2)+" TL")
	}
	if !s.UpdatedAt.IsZero() {
		parts = append(parts, m.theme.Subtitle.Render("updated "+s.UpdatedAt.Format("15:04:05")))
	}
	return m.theme.RoundedBox.Render(strings.Join(parts, "  "))
}

func (m Model) renderFooter() string {
	var lines []string
	if m.lastError != nil {
		lines = append(lines, m.theme.StatusError.Render("✗ "+m.lastError.Error()))
	} else if !m.lastRefresh.IsZero() {
		lines = append(lines, lipgloss.NewStyle().Foreground(m.theme.Muted).
			Render("refreshed "+m.lastRefresh.Format("15:04:05")))
	}
	lines = append(lines, m.help.View(m.keymap))
	return strings.Join(lines, "\n")
}
