package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"finos/internal/core"
)

// maxBodyBytes bounds request bodies accepted by the API.
const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("bad request")

// dashboardQuery is the parsed form of the dashboard query string.
type dashboardQuery struct {
	Filter   core.FilterSpec
	Currency string
}

// parseDashboardQuery maps range, category, merchant, min, max, q and
// currency onto a filter for account. An absent range means 30 days and an
// absent currency means defaultCurrency.
func parseDashboardQuery(query url.Values, account, defaultCurrency string, conv *core.Converter) (dashboardQuery, error) {
	q := dashboardQuery{
		Filter: core.FilterSpec{
			Account:  account,
			Range:    core.Range30Days,
			Category: sanitizeInput(query.Get("category")),
			Merchant: sanitizeInput(query.Get("merchant")),
			Search:   sanitizeInput(query.Get("q")),
		},
		Currency: defaultCurrency,
	}

	if v := strings.TrimSpace(query.Get("range")); v != "" {
		r, err := core.ParseDateRange(v)
		if err != nil {
			return q, fmt.Errorf("%w: range %q must be one of 7d, 30d, 90d, 365d, custom", errBadRequest, v)
		}
		q.Filter.Range = r
	}

	var err error
	if q.Filter.MinAmount, err = parseAmount(query, "min"); err != nil {
		return q, err
	}
	if q.Filter.MaxAmount, err = parseAmount(query, "max"); err != nil {
		return q, err
	}

	if v := strings.ToUpper(strings.TrimSpace(query.Get("currency"))); v != "" {
		if conv != nil && !conv.IsSupported(v) {
			return q, fmt.Errorf("%w: unsupported currency %q", errBadRequest, v)
		}
		q.Currency = v
	}
	return q, nil
}

func parseAmount(query url.Values, key string) (*float64, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", errBadRequest, key)
	}
	return &f, nil
}

type categoriesBody struct {
	Categories []string `json:"categories"`
}

// decodeCategories reads {"categories": [...]} from the request body.
func decodeCategories(w http.ResponseWriter, r *http.Request) ([]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var body categoriesBody
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty body", errBadRequest)
		}
		return nil, fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	if body.Categories == nil {
		return nil, fmt.Errorf("%w: categories is required", errBadRequest)
	}

	out := make([]string, 0, len(body.Categories))
	for _, c := range body.Categories {
		out = append(out, sanitizeInput(c))
	}
	return out, nil
}

// sanitizeInput drops control characters except tab and newlines, then trims.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}
