package sheets

import (
	"sort"
	"time"

	"github.com/Veraticus/kasa/internal/model"
	"github.com/shopspring/decimal"
)

// RecordRow is one settlement record as exported.
type RecordRow struct {
	CreatedAt   time.Time
	ResolvedAt  *time.Time
	RunID       string
	Name        string
	Category    string
	Disposition string
	Note        string
	Amount      decimal.Decimal
	ID          int64
	Row         int
}

// DispositionSummaryRow totals the records of one disposition.
type DispositionSummaryRow struct {
	Disposition string
	Total       decimal.Decimal
	Count       int
}

// CategorySummaryRow totals the settled records of one category.
type CategorySummaryRow struct {
	Category string
	Total    decimal.Decimal
	Count    int
}

// Report holds everything written to the export.
type Report struct {
	GeneratedAt   time.Time
	Title         string
	Records       []RecordRow
	ByDisposition []DispositionSummaryRow
	ByCategory    []CategorySummaryRow
	Settled       decimal.Decimal
	Pending       int
}

// BuildReport summarizes records for export. Records keep the log order.
func BuildReport(title string, records []model.SettlementRecord, generatedAt time.Time) Report {
	r := Report{
		Title:       title,
		GeneratedAt: generatedAt,
		Records:     make([]RecordRow, 0, len(records)),
	}

	byDisp := map[model.Disposition]*DispositionSummaryRow{}
	byCat := map[model.Category]*CategorySummaryRow{}
	for _, rec := range records {
		row := RecordRow{
			ID:          rec.ID,
			RunID:       rec.RunID,
			Row:         rec.Row,
			Name:        rec.Name,
			Amount:      rec.Amount,
			Disposition: string(rec.Disposition),
			Note:        rec.Note,
			CreatedAt:   rec.CreatedAt,
			ResolvedAt:  rec.ResolvedAt,
		}
		if rec.Category != nil {
			row.Category = rec.Category.Label()
		}
		r.Records = append(r.Records, row)

		d, ok := byDisp[rec.Disposition]
		if !ok {
			d = &DispositionSummaryRow{Disposition: string(rec.Disposition)}
			byDisp[rec.Disposition] = d
		}
		d.Count++
		d.Total = d.Total.Add(rec.Amount)

		if rec.Disposition.IsOpen() {
			r.Pending++
		}
		if rec.Disposition.IsSettled() && rec.Category != nil {
			r.Settled = r.Settled.Add(rec.Amount)
			c, ok := byCat[*rec.Category]
			if !ok {
				c = &CategorySummaryRow{Category: rec.Category.Label()}
				byCat[*rec.Category] = c
			}
			c.Count++
			c.Total = c.Total.Add(rec.Amount)
		}
	}

	for _, d := range byDisp {
		r.ByDisposition = append(r.ByDisposition, *d)
	}
	sort.Slice(r.ByDisposition, func(i, j int) bool {
		return r.ByDisposition[i].Disposition < r.ByDisposition[j].Disposition
	})
	for _, c := range byCat {
		r.ByCategory = append(r.ByCategory, *c)
	}
	sort.Slice(r.ByCategory, func(i, j int) bool {
		if !r.ByCategory[i].Total.Equal(r.ByCategory[j].Total) {
			return r.ByCategory[i].Total.GreaterThan(r.ByCategory[j].Total)
		}
		return r.ByCategory[i].Category < r.ByCategory[j].Category
	})
	return r
}

// recordHeader is the column list of the record table.
var recordHeader = []any{"ID", "Run", "Row", "Name", "Category", "Amount", "Disposition", "Note", "Created", "Resolved"}

// Values lays the report out as spreadsheet rows. Amounts are numbers so the
// sheet can sum them.
func (r Report) Values() [][]any {
	values := make([][]any, 0, 10+len(r.ByDisposition)+len(r.ByCategory)+len(r.Records))

	values = append(values,
		[]any{r.Title, r.GeneratedAt.Format("2006-01-02 15:04")},
		[]any{},
		[]any{"Summary"},
		[]any{"Settled Total", r.Settled.InexactFloat64()},
		[]any{"Pending Flags", r.Pending},
		[]any{"Records", len(r.Records)},
		[]any{},
		[]any{"Disposition", "Count", "Amount"},
	)
	for _, d := range r.ByDisposition {
		values = append(values, []any{d.Disposition, d.Count, d.Total.InexactFloat64()})
	}

	values = append(values, []any{}, []any{"Category", "Count", "Amount"})
	for _, c := range r.ByCategory {
		values = append(values, []any{c.Category, c.Count, c.Total.InexactFloat64()})
	}

	values = append(values, []any{}, []any{"Settlement Records"}, recordHeader)
	for _, rec := range r.Records {
		resolved := ""
		if rec.ResolvedAt != nil {
			resolved = rec.ResolvedAt.Format("2006-01-02 15:04")
		}
		values = append(values, []any{
			rec.ID,
			rec.RunID,
			rec.Row + 1,
			rec.Name,
			rec.Category,
			rec.Amount.InexactFloat64(),
			rec.Disposition,
			rec.Note,
			rec.CreatedAt.Format("2006-01-02 15:04"),
			resolved,
		})
	}
	return values
}
