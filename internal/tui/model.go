// Package tui implements the live watch dashboard for kasa runs.
package tui

import (
	"fmt"
	"time"

	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/tui/themes"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

// reservedLines is the height taken by the header, status box, and footer.
const reservedLines = 9

// Model holds the dashboard state.
type Model struct {
	lastRefresh time.Time
	lastError   error
	theme       themes.Theme
	status      *model.ProcessingStatus
	keymap      KeyMap
	help        help.Model
	spinner     spinner.Model
	config      Config
	records     []model.SettlementRecord
	table       table.Model
	pending     int
	width       int
	height      int
	pendingOnly bool
	ready       bool
	quitting    bool
}

// New creates the dashboard model.
func New(opts ...Option) Model {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = s.Style.Foreground(cfg.Theme.Primary)

	t := table.New(
		table.WithColumns(columns(cfg.Width)),
		table.WithFocused(true),
		table.WithHeight(max(cfg.Height-reservedLines, 3)),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderForeground(cfg.Theme.Border).
		BorderBottom(true).
		Bold(true)
	styles.Selected = cfg.Theme.Selected
	t.SetStyles(styles)

	return Model{
		config:  cfg,
		theme:   cfg.Theme,
		keymap:  DefaultKeyMap(),
		help:    help.New(),
		spinner: s,
		table:   t,
		width:   cfg.Width,
		height:  cfg.Height,
	}
}

// columns sizes the record table to width. The note column takes the slack.
func columns(width int) []table.Column {
	cols := []table.Column{
		{Title: "Row", Width: 5},
		{Title: "Name", Width: 22},
		{Title: "Category", Width: 18},
		{Title: "Amount", Width: 11},
		{Title: "Disposition", Width: 22},
		{Title: "Note", Width: 10},
	}
	used := 0
	for _, c := range cols[:len(cols)-1] {
		used += c.Width + 2
	}
	if rest := width - used - 4; rest > cols[len(cols)-1].Width {
		cols[len(cols)-1].Width = rest
	}
	return cols
}

// Init starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadSnapshot(), m.spinner.Tick)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Refresh):
			return m, m.loadSnapshot()
		case key.Matches(msg, m.keymap.PendingOnly):
			m.pendingOnly = !m.pendingOnly
			m.refreshRows()
			return m, nil
		case key.Matches(msg, m.keymap.ToggleHelp):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.table.SetColumns(columns(msg.Width))
		m.table.SetHeight(max(msg.Height-reservedLines, 3))
		return m, nil

	case tickMsg:
		return m, m.loadSnapshot()

	case snapshotMsg:
		m.ready = true
		m.lastRefresh = msg.at
		m.lastError = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.records = msg.records
			m.pending = msg.pending
			m.refreshRows()
		}
		return m, tick(m.config.Interval)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// visibleRecords applies the pending filter.
func (m Model) visibleRecords() []model.SettlementRecord {
	if !m.pendingOnly {
		return m.records
	}
	out := make([]model.SettlementRecord, 0, len(m.records))
	for _, rec := range m.records {
		if rec.Disposition.IsOpen() {
			out = append(out, rec)
		}
	}
	return out
}

func (m *Model) refreshRows() {
	recs := m.visibleRecords()
	rows := make([]table.Row, 0, len(recs))
	for _, rec := range recs {
		name := rec.Name
		if name == "" {
			name = "?"
		}
		category := "-"
		if rec.Category != nil {
			category = rec.Category.Label()
		}
		rows = append(rows, table.Row{
			fmt.Sprint(rec.Row + 1),
			name,
			category,
			rec.Amount.StringFixed(2),
			string(rec.Disposition),
			rec.Note,
		})
	}
	m.table.SetRows(rows)
}
