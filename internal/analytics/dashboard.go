package analytics

import (
	"time"

	"finos/internal/core"
)

// Dashboard is every derived view of one filtered receipt set.
type Dashboard struct {
	Receipts   []core.Receipt
	Summary    core.InsightSummary
	Series     []core.TimeSeriesPoint
	Categories []core.CategorySlice
	Anomalies  []core.Anomaly
}

// BuildDashboard filters receipts by spec and derives all views from the result.
func BuildDashboard(receipts []core.Receipt, spec core.FilterSpec, project core.Projector) Dashboard {
	return BuildDashboardAt(receipts, spec, project, time.Now())
}

func BuildDashboardAt(receipts []core.Receipt, spec core.FilterSpec, project core.Projector, now time.Time) Dashboard {
	filtered := ApplyFiltersAt(receipts, spec, now)
	return Dashboard{
		Receipts:   filtered,
		Summary:    BuildSummary(filtered, project),
		Series:     BuildTimeSeries(filtered, project),
		Categories: BuildCategorySlices(filtered, project),
		Anomalies:  DetectAnomalies(filtered, project),
	}
}
