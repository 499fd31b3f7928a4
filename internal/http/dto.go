package http

import (
	"time"

	"finos/internal/analytics"
	"finos/internal/core"
)

type receiptDTO struct {
	ID              string   `json:"id"`
	SourceMessageID string   `json:"source_message_id,omitempty"`
	Owner           string   `json:"owner"`
	Issuer          string   `json:"issuer,omitempty"`
	Merchant        string   `json:"merchant"`
	Amount          float64  `json:"amount"`
	Currency        string   `json:"currency"`
	Categories      []string `json:"categories"`
	Timestamp       int64    `json:"timestamp"`
	Notes           string   `json:"notes,omitempty"`
}

type merchantDTO struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

type summaryDTO struct {
	TotalSpend  float64      `json:"total_spend"`
	AvgTicket   float64      `json:"avg_ticket"`
	TxCount     int          `json:"tx_count"`
	TopMerchant *merchantDTO `json:"top_merchant"`
	Formatted   struct {
		TotalSpend string `json:"total_spend"`
		AvgTicket  string `json:"avg_ticket"`
	} `json:"formatted"`
}

type pointDTO struct {
	Date  string  `json:"date"`
	Total float64 `json:"total"`
}

type sliceDTO struct {
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Percent float64 `json:"percent"`
}

type anomalyDTO struct {
	ID          string  `json:"id"`
	ReceiptID   string  `json:"receipt_id"`
	Merchant    string  `json:"merchant"`
	Delta       float64 `json:"delta"`
	Description string  `json:"description"`
}

type dashboardDTO struct {
	Currency   string       `json:"currency"`
	Range      string       `json:"range"`
	Receipts   []receiptDTO `json:"receipts"`
	Summary    summaryDTO   `json:"summary"`
	Series     []pointDTO   `json:"series"`
	Categories []sliceDTO   `json:"categories"`
	Anomalies  []anomalyDTO `json:"anomalies"`
}

type syncStatusDTO struct {
	State      string `json:"state"`
	LastSynced *int64 `json:"last_synced"`
	Message    string `json:"message"`
}

type currencyDTO struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

type receiptsDTO struct {
	Account  string       `json:"account"`
	Loading  bool         `json:"loading"`
	Error    string       `json:"error,omitempty"`
	Receipts []receiptDTO `json:"receipts"`
}

func toReceiptDTOs(in []core.Receipt) []receiptDTO {
	out := make([]receiptDTO, 0, len(in))
	for _, r := range in {
		cats := r.Categories
		if cats == nil {
			cats = []string{}
		}
		out = append(out, receiptDTO{
			ID:              r.ID,
			SourceMessageID: r.SourceMessageID,
			Owner:           r.Owner,
			Issuer:          r.Issuer,
			Merchant:        r.Merchant,
			Amount:          r.Amount,
			Currency:        r.Currency,
			Categories:      cats,
			Timestamp:       r.TimestampMillis(),
			Notes:           r.Notes,
		})
	}
	return out
}

func toDashboardDTO(d analytics.Dashboard, q dashboardQuery, conv *core.Converter) dashboardDTO {
	out := dashboardDTO{
		Currency:   q.Currency,
		Range:      string(q.Filter.Range),
		Receipts:   toReceiptDTOs(d.Receipts),
		Series:     make([]pointDTO, 0, len(d.Series)),
		Categories: make([]sliceDTO, 0, len(d.Categories)),
		Anomalies:  make([]anomalyDTO, 0, len(d.Anomalies)),
	}

	out.Summary.TotalSpend = d.Summary.TotalSpend
	out.Summary.AvgTicket = d.Summary.AvgTicket
	out.Summary.TxCount = d.Summary.TxCount
	if m := d.Summary.TopMerchant; m != nil {
		out.Summary.TopMerchant = &merchantDTO{Name: m.Name, Total: m.Total}
	}
	if conv != nil && q.Currency != "" {
		out.Summary.Formatted.TotalSpend = conv.Format(d.Summary.TotalSpend, q.Currency)
		out.Summary.Formatted.AvgTicket = conv.Format(d.Summary.AvgTicket, q.Currency)
	}

	for _, p := range d.Series {
		out.Series = append(out.Series, pointDTO{Date: p.Date, Total: p.Total})
	}
	for _, s := range d.Categories {
		out.Categories = append(out.Categories, sliceDTO{Label: s.Label, Value: s.Value, Percent: s.Percent})
	}
	for _, a := range d.Anomalies {
		out.Anomalies = append(out.Anomalies, anomalyDTO{
			ID:          a.ID,
			ReceiptID:   a.ReceiptID,
			Merchant:    a.Merchant,
			Delta:       a.Delta,
			Description: a.Description,
		})
	}
	return out
}

func toSyncStatusDTO(s core.SyncStatus) syncStatusDTO {
	return syncStatusDTO{
		State:      string(s.State),
		LastSynced: millis(s.LastSynced),
		Message:    s.Message,
	}
}

func millis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
