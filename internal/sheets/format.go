package sheets

import (
	"strconv"
	"strings"
)

func formatPlain(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}

func joinCategories(cats []string) string {
	return strings.Join(cats, ", ")
}
