// Package analytics derives dashboard views from a receipt set: filtering,
// aggregation and anomaly detection. Every function here is pure.
package analytics

import (
	"strings"
	"time"

	"finos/internal/core"
)

// ApplyFilters keeps the receipts matching spec, evaluated against the wall clock.
func ApplyFilters(receipts []core.Receipt, spec core.FilterSpec) []core.Receipt {
	return ApplyFiltersAt(receipts, spec, time.Now())
}

// ApplyFiltersAt keeps the receipts matching spec. The date window ends at now.
// Input order is preserved.
func ApplyFiltersAt(receipts []core.Receipt, spec core.FilterSpec, now time.Time) []core.Receipt {
	cutoff := now.AddDate(0, 0, -spec.Range.Days())
	category := strings.ToLower(strings.TrimSpace(spec.Category))
	merchant := strings.ToLower(strings.TrimSpace(spec.Merchant))
	search := strings.ToLower(strings.TrimSpace(spec.Search))

	out := make([]core.Receipt, 0, len(receipts))
	for _, r := range receipts {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		if category != "" && !hasCategory(r, category) {
			continue
		}
		if merchant != "" && !strings.Contains(strings.ToLower(r.Merchant), merchant) {
			continue
		}
		if spec.MinAmount != nil && r.Amount < *spec.MinAmount {
			continue
		}
		if spec.MaxAmount != nil && r.Amount > *spec.MaxAmount {
			continue
		}
		if search != "" && !matchesSearch(r, search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func hasCategory(r core.Receipt, lowered string) bool {
	for _, c := range r.Categories {
		if strings.ToLower(c) == lowered {
			return true
		}
	}
	return false
}

func matchesSearch(r core.Receipt, lowered string) bool {
	if strings.Contains(strings.ToLower(r.Merchant), lowered) ||
		strings.Contains(strings.ToLower(r.Issuer), lowered) ||
		strings.Contains(strings.ToLower(r.Notes), lowered) {
		return true
	}
	for _, c := range r.Categories {
		if strings.Contains(strings.ToLower(c), lowered) {
			return true
		}
	}
	return false
}
