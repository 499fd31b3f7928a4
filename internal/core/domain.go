package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Range7Days   DateRange = "7d"
	Range30Days  DateRange = "30d"
	Range90Days  DateRange = "90d"
	Range365Days DateRange = "365d"
	RangeCustom  DateRange = "custom"
)

const (
	SyncIdle    SyncState = "idle"
	SyncSyncing SyncState = "syncing"
	SyncSuccess SyncState = "success"
	SyncError   SyncState = "error"
)

type (
	DateRange string

	SyncState string

	// Receipt is the canonical transaction record. Only Normalize builds one
	// from external data, so every field here is already sanitized.
	Receipt struct {
		ID              string
		SourceMessageID string
		Owner           string
		Issuer          string // payment rail or processor, empty when unknown
		Merchant        string
		Amount          float64
		Currency        string
		Categories      []string
		Timestamp       time.Time
		Notes           string
	}

	// FilterSpec is the active dashboard filter.
	FilterSpec struct {
		Account   string
		Range     DateRange
		Category  string
		Merchant  string
		MinAmount *float64
		MaxAmount *float64
		Search    string
	}

	SyncStatus struct {
		State      SyncState
		LastSynced *time.Time
		Message    string
	}
)

var ErrInvalidRange = errors.New("invalid date range")

// rangeDays maps each date range to its window length in days.
var rangeDays = map[DateRange]int{
	Range7Days:   7,
	Range30Days:  30,
	Range90Days:  90,
	Range365Days: 365,
	RangeCustom:  90,
}

// DefaultRangeDays is used for a range outside the known set.
const DefaultRangeDays = 30

// Days returns the window length for the range.
func (r DateRange) Days() int {
	if d, ok := rangeDays[r]; ok {
		return d
	}
	return DefaultRangeDays
}

func (r DateRange) Validate() error {
	if _, ok := rangeDays[r]; !ok {
		return ErrInvalidRange
	}
	return nil
}

// ParseDateRange accepts the wire names of a range, case-insensitively.
func ParseDateRange(s string) (DateRange, error) {
	r := DateRange(strings.ToLower(strings.TrimSpace(s)))
	if err := r.Validate(); err != nil {
		return "", err
	}
	return r, nil
}

// TimestampMillis returns the canonical epoch representation of the receipt time.
func (r Receipt) TimestampMillis() int64 {
	return r.Timestamp.UnixMilli()
}

// WithCategories returns a copy of the receipt carrying the given categories.
// Blank entries are dropped and the rest trimmed.
func (r Receipt) WithCategories(categories []string) Receipt {
	r.Categories = CleanCategories(categories)
	return r
}

// CleanCategories trims categories and drops the empty ones.
func CleanCategories(categories []string) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CloneReceipts copies the slice and each receipt's categories so the copy
// can be mutated without touching the original.
func CloneReceipts(in []Receipt) []Receipt {
	if in == nil {
		return nil
	}
	out := make([]Receipt, len(in))
	for i, r := range in {
		r.Categories = append([]string(nil), r.Categories...)
		out[i] = r
	}
	return out
}
