package analytics

import (
	"fmt"
	"math"

	"finos/internal/core"
)

// anomalyFactor is how far above the mean, relative to its magnitude, an
// amount must be to be flagged. For a non-negative mean this is 1.5x the mean.
const anomalyFactor = 0.5

// DetectAnomalies flags receipts whose projected amount exceeds 1.5x the mean
// of the set. The baseline is recomputed from the input on every call.
func DetectAnomalies(receipts []core.Receipt, project core.Projector) []core.Anomaly {
	project = projectorOrRaw(project)
	if len(receipts) < 2 {
		return []core.Anomaly{}
	}

	amounts := make([]float64, len(receipts))
	var sum float64
	for i, r := range receipts {
		amounts[i] = project(r)
		sum += amounts[i]
	}
	mean := sum / float64(len(receipts))
	// Equal to 1.5x the mean when the mean is non-negative. With a negative
	// mean, 1.5x would sit below the mean and flag equal amounts.
	threshold := mean + anomalyFactor*math.Abs(mean)

	out := make([]core.Anomaly, 0)
	for i, r := range receipts {
		v := amounts[i]
		if v <= threshold {
			continue
		}
		delta := v - mean
		out = append(out, core.Anomaly{
			ID:          "anom-" + r.ID,
			ReceiptID:   r.ID,
			Merchant:    r.Merchant,
			Delta:       delta,
			Description: describe(r.Merchant, delta, mean),
		})
	}
	return out
}

func describe(merchant string, delta, mean float64) string {
	if mean == 0 {
		return fmt.Sprintf("%s spend is above average", merchant)
	}
	pct := int(math.Round(delta / math.Abs(mean) * 100))
	return fmt.Sprintf("%s spend is %d%% above average", merchant, pct)
}
