package analytics

import (
	"sort"

	"finos/internal/core"
)

const dayLayout = "2006-01-02"

func projectorOrRaw(p core.Projector) core.Projector {
	if p == nil {
		return core.RawAmount
	}
	return p
}

// BuildSummary computes the headline figures for receipts. A nil projector
// aggregates raw amounts.
func BuildSummary(receipts []core.Receipt, project core.Projector) core.InsightSummary {
	project = projectorOrRaw(project)

	var s core.InsightSummary
	totals := make(map[string]float64)
	order := make([]string, 0)
	for _, r := range receipts {
		v := project(r)
		s.TotalSpend += v
		if _, ok := totals[r.Merchant]; !ok {
			order = append(order, r.Merchant)
		}
		totals[r.Merchant] += v
	}
	s.TxCount = len(receipts)
	if s.TxCount > 0 {
		s.AvgTicket = s.TotalSpend / float64(s.TxCount)
	}

	for _, name := range order {
		if s.TopMerchant == nil || totals[name] > s.TopMerchant.Total {
			s.TopMerchant = &core.MerchantTotal{Name: name, Total: totals[name]}
		}
	}
	return s
}

// BuildTimeSeries buckets projected amounts by UTC calendar day. Days without
// receipts are omitted; points are in ascending date order.
func BuildTimeSeries(receipts []core.Receipt, project core.Projector) []core.TimeSeriesPoint {
	project = projectorOrRaw(project)

	byDay := make(map[string]float64)
	for _, r := range receipts {
		byDay[r.Timestamp.UTC().Format(dayLayout)] += project(r)
	}

	points := make([]core.TimeSeriesPoint, 0, len(byDay))
	for day, total := range byDay {
		points = append(points, core.TimeSeriesPoint{Date: day, Total: total})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// BuildCategorySlices sums projected amounts per category. A receipt counts
// toward every category it carries, so the slices can add up to more than the
// total spend.
func BuildCategorySlices(receipts []core.Receipt, project core.Projector) []core.CategorySlice {
	project = projectorOrRaw(project)

	totals := make(map[string]float64)
	order := make([]string, 0)
	for _, r := range receipts {
		v := project(r)
		for _, c := range r.Categories {
			if _, ok := totals[c]; !ok {
				order = append(order, c)
			}
			totals[c] += v
		}
	}

	var grand float64
	for _, v := range totals {
		grand += v
	}

	slices := make([]core.CategorySlice, 0, len(order))
	for _, label := range order {
		s := core.CategorySlice{Label: label, Value: totals[label]}
		if grand != 0 {
			s.Percent = s.Value / grand * 100
		}
		slices = append(slices, s)
	}
	sort.SliceStable(slices, func(i, j int) bool { return slices[i].Value > slices[j].Value })
	return slices
}
