// Package sheets describes exports of dashboard reports to spreadsheets.
package sheets

import (
	"context"
	"time"

	"finos/internal/analytics"
	"finos/internal/core"
)

// Report is one dashboard snapshot ready for export. Amounts are already in
// Currency.
type Report struct {
	Account     string
	Currency    string
	Filter      core.FilterSpec
	GeneratedAt time.Time
	Dashboard   analytics.Dashboard
}

// DashboardExporter writes a report somewhere and returns a reference to it.
type DashboardExporter interface {
	Export(ctx context.Context, r Report) (ref string, err error)
}

// Rows renders r as a grid: a header block, the summary, the category
// breakdown and the filtered receipts.
func Rows(r Report, conv *core.Converter) [][]interface{} {
	money := func(v float64) string {
		if conv == nil || r.Currency == "" {
			return formatPlain(v)
		}
		return conv.Format(v, r.Currency)
	}
	d := r.Dashboard

	rows := [][]interface{}{
		{"Account", r.Account},
		{"Generated", r.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Range", string(r.Filter.Range)},
		{"Currency", r.Currency},
		{},
		{"Total spend", money(d.Summary.TotalSpend)},
		{"Average ticket", money(d.Summary.AvgTicket)},
		{"Transactions", d.Summary.TxCount},
	}
	if d.Summary.TopMerchant != nil {
		rows = append(rows, []interface{}{"Top merchant", d.Summary.TopMerchant.Name, money(d.Summary.TopMerchant.Total)})
	}

	rows = append(rows, []interface{}{}, []interface{}{"Category", "Amount", "Share"})
	for _, s := range d.Categories {
		rows = append(rows, []interface{}{s.Label, money(s.Value), formatPercent(s.Percent)})
	}

	rows = append(rows, []interface{}{}, []interface{}{"Date", "Merchant", "Amount", "Currency", "Categories"})
	for _, rc := range d.Receipts {
		rows = append(rows, []interface{}{
			rc.Timestamp.UTC().Format("2006-01-02"),
			rc.Merchant,
			rc.Amount,
			rc.Currency,
			joinCategories(rc.Categories),
		})
	}
	return rows
}
