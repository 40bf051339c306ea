package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/kasa/internal/engine"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/charmbracelet/lipgloss"
)

var recordColumns = []string{"ID", "ROW", "NAME", "CATEGORY", "AMOUNT", "DISPOSITION", "NOTE"}

// RenderRecords lays out settlement records as an aligned table.
func RenderRecords(records []model.SettlementRecord) string {
	if len(records) == 0 {
		return SubtleStyle.Render("No settlement records.")
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		category := "-"
		if rec.Category != nil {
			category = rec.Category.Label()
		}
		name := rec.Name
		if name == "" {
			name = "?"
		}
		rows = append(rows, []string{
			fmt.Sprint(rec.ID),
			fmt.Sprint(rec.Row + 1),
			name,
			category,
			rec.Amount.StringFixed(2),
			string(rec.Disposition),
			truncateCell(rec.Note, 40),
		})
	}

	widths := make([]int, len(recordColumns))
	for i, h := range recordColumns {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, c := range row {
			if w := lipgloss.Width(c); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	header := make([]string, len(recordColumns))
	for i, h := range recordColumns {
		header[i] = TableCellStyle.Width(widths[i] + 2).Render(h)
	}
	b.WriteString(TableHeaderStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, header...)))
	b.WriteByte('\n')

	for r, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			style := TableCellStyle.Width(widths[i] + 2)
			if i == 5 {
				style = style.Inherit(DispositionStyle(records[r].Disposition))
			}
			cells[i] = style.Render(c)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func truncateCell(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// RenderSummary renders the end-of-run box.
func RenderSummary(s *engine.RunSummary) string {
	if s == nil {
		return ""
	}
	if s.AlreadyComplete {
		return RenderBox("Nothing to do", "Every row up to the resume balance is already processed.")
	}

	body := fmt.Sprintf("  • Rows selected: %d\n", s.Rows) +
		fmt.Sprintf("  • Processed: %d (skipped %d)\n", s.Processed, s.Skipped) +
		fmt.Sprintf("  • Settlements entered: %d\n", s.Settled) +
		fmt.Sprintf("  • Flagged for review: %d\n", s.Flagged) +
		fmt.Sprintf("  • Unmatched: %d\n", s.Unmatched) +
		fmt.Sprintf("  • Errors: %d\n", s.Errors) +
		fmt.Sprintf("  • Time taken: %s", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))

	title := "Run Complete"
	if s.Cancelled {
		title = "Run Stopped"
	}
	return RenderBox(title, body)
}
