package http

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"finos/internal/core"
)

func TestParseDashboardQuery(t *testing.T) {
	conv := core.NewConverter()

	tests := []struct {
		name     string
		query    string
		wantErr  bool
		wantSpec core.FilterSpec
		wantCur  string
	}{
		{
			name:     "defaults",
			query:    "",
			wantSpec: core.FilterSpec{Account: "a@x.io", Range: core.Range30Days},
			wantCur:  "USD",
		},
		{
			name:     "range is case insensitive",
			query:    "range=365D&merchant=%20Cafe%20",
			wantSpec: core.FilterSpec{Account: "a@x.io", Range: core.Range365Days, Merchant: "Cafe"},
			wantCur:  "USD",
		},
		{
			name:     "control characters dropped",
			query:    "q=co%00ffee&currency=jpy",
			wantSpec: core.FilterSpec{Account: "a@x.io", Range: core.Range30Days, Search: "coffee"},
			wantCur:  "JPY",
		},
		{name: "unknown range", query: "range=1y", wantErr: true},
		{name: "bad max", query: "max=ten", wantErr: true},
		{name: "unknown currency", query: "currency=BTC", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("bad test query: %v", err)
			}
			got, err := parseDashboardQuery(values, "a@x.io", "USD", conv)
			if tt.wantErr {
				if !errors.Is(err, errBadRequest) {
					t.Errorf("expected bad request, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Filter.Account != tt.wantSpec.Account || got.Filter.Range != tt.wantSpec.Range ||
				got.Filter.Merchant != tt.wantSpec.Merchant || got.Filter.Search != tt.wantSpec.Search {
				t.Errorf("got %+v, want %+v", got.Filter, tt.wantSpec)
			}
			if got.Currency != tt.wantCur {
				t.Errorf("currency = %q, want %q", got.Currency, tt.wantCur)
			}
		})
	}
}

func TestParseDashboardQuery_AmountBounds(t *testing.T) {
	got, err := parseDashboardQuery(url.Values{"min": {"-5"}, "max": {"99.5"}}, "", "USD", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Filter.MinAmount == nil || *got.Filter.MinAmount != -5 {
		t.Errorf("unexpected min %v", got.Filter.MinAmount)
	}
	if got.Filter.MaxAmount == nil || *got.Filter.MaxAmount != 99.5 {
		t.Errorf("unexpected max %v", got.Filter.MaxAmount)
	}
}

func TestRateLimiter_Window(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.allow("ip") || !rl.allow("ip") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("ip") {
		t.Error("third request in window should be rejected")
	}
	if !rl.allow("other") {
		t.Error("clients are limited independently")
	}

	now = now.Add(time.Minute)
	if !rl.allow("ip") {
		t.Error("new window should reset the counter")
	}

	now = now.Add(5 * time.Minute)
	if removed := rl.cleanupStaleEntries(); removed != 2 {
		t.Errorf("expected 2 stale clients removed, got %d", removed)
	}
}
