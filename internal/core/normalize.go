package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultOwner    = "unknown@finos.app"
	DefaultMerchant = "Unknown merchant"

	// MillisThreshold separates epoch seconds from epoch milliseconds.
	// Values above it are already milliseconds.
	MillisThreshold = 10_000_000_000
)

// RawReceipt is a receipt as delivered by the ingestion backend. Nothing about
// it is trusted; Normalize is the only place that turns it into a Receipt.
type RawReceipt struct {
	MsgID      *string   `json:"msg_id,omitempty"`
	Owner      *string   `json:"owner,omitempty"`
	Issuer     *string   `json:"issuer,omitempty"`
	Merchant   *string   `json:"merchant,omitempty"`
	Amount     *float64  `json:"amount,omitempty"`
	Currency   *string   `json:"currency,omitempty"`
	Categories []*string `json:"categories,omitempty"`
	Timestamp  *float64  `json:"timestamp,omitempty"`
}

// Normalize maps raw records to canonical receipts. It never fails; missing or
// malformed fields are replaced with defaults.
func Normalize(raw []RawReceipt, fallbackOwner string) []Receipt {
	return NormalizeAt(raw, fallbackOwner, time.Now())
}

// NormalizeAt is Normalize with an explicit "now" for records without a timestamp.
func NormalizeAt(raw []RawReceipt, fallbackOwner string, now time.Time) []Receipt {
	ownerFallback := strings.TrimSpace(fallbackOwner)
	if ownerFallback == "" {
		ownerFallback = DefaultOwner
	}

	out := make([]Receipt, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, rr := range raw {
		r := Receipt{
			Owner:           firstNonBlank(ownerFallback, rr.Owner),
			Issuer:          trimmed(rr.Issuer),
			Merchant:        firstNonBlank(DefaultMerchant, rr.Merchant, rr.Issuer),
			Currency:        sanitizeCurrency(rr.Currency),
			Categories:      normalizeCategories(rr.Categories),
			SourceMessageID: trimmed(rr.MsgID),
		}
		if rr.Amount != nil {
			r.Amount = *rr.Amount
		}
		if rr.Timestamp != nil {
			r.Timestamp = EpochToTime(*rr.Timestamp, now)
		} else {
			r.Timestamp = now.UTC()
		}

		id := r.SourceMessageID
		if id == "" {
			id = strings.Join([]string{r.Owner, r.Merchant, strconv.FormatInt(r.TimestampMillis(), 10)}, ":")
		}
		if _, dup := seen[id]; dup || id == "" {
			id = fallbackID(i, seen)
		}
		seen[id] = struct{}{}
		r.ID = id

		out = append(out, r)
	}
	return out
}

// fallbackID returns "receipt-<i>", suffixed until it is not already taken.
func fallbackID(i int, seen map[string]struct{}) string {
	base := fmt.Sprintf("receipt-%d", i)
	id := base
	for n := 1; ; n++ {
		if _, taken := seen[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// EpochToTime interprets v as epoch seconds or milliseconds depending on its
// magnitude. Zero means "unknown" and resolves to now.
func EpochToTime(v float64, now time.Time) time.Time {
	if v == 0 {
		return now.UTC()
	}
	ms := v
	if v <= MillisThreshold {
		ms = v * 1000
	}
	return time.UnixMilli(int64(ms)).UTC()
}

func sanitizeCurrency(code *string) string {
	c := strings.ToUpper(trimmed(code))
	if len(c) != 3 {
		return DefaultCurrency
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return DefaultCurrency
		}
	}
	if !IsSupportedCurrency(c) {
		return DefaultCurrency
	}
	return c
}

func normalizeCategories(in []*string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if v := trimmed(c); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func firstNonBlank(fallback string, candidates ...*string) string {
	for _, c := range candidates {
		if v := trimmed(c); v != "" {
			return v
		}
	}
	return fallback
}
