package core

// MerchantTotal is a merchant name with its summed projected spend.
type MerchantTotal struct {
	Name  string
	Total float64
}

// InsightSummary is the rollup shown at the top of the dashboard.
type InsightSummary struct {
	TotalSpend  float64
	AvgTicket   float64
	TxCount     int
	TopMerchant *MerchantTotal
}

// TimeSeriesPoint is the projected spend of one calendar day.
type TimeSeriesPoint struct {
	Date  string // YYYY-MM-DD
	Total float64
}

// CategorySlice is one category's share of projected spend. Categories are
// non-exclusive tags, so the values of all slices can add up to more than
// the summary total.
type CategorySlice struct {
	Label   string
	Value   float64
	Percent float64
}

// Anomaly flags a receipt whose projected amount is well above the mean.
type Anomaly struct {
	ID          string
	ReceiptID   string
	Merchant    string
	Delta       float64
	Description string
}
