package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, MaxFailures: 3, OpenTimeout: time.Minute}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "not a url"}, nil); err == nil {
		t.Error("expected error for relative base url")
	}
}

func TestFetchReceipts(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/receipts/a@x.io" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get(requestIDHeader) == "" {
			t.Error("expected request id header")
		}
		w.Write([]byte(`{"success":true,"data":{"transactions":[
			{"msg_id":"m1","merchant":"Cafe","amount":4.5,"currency":"EUR","categories":["food",null],"timestamp":1700000000},
			{"merchant":"Bare"}
		]}}`))
	})

	got, err := c.FetchReceipts(context.Background(), "a@x.io")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 receipts, got %d", len(got))
	}
	if got[0].MsgID == nil || *got[0].MsgID != "m1" || got[0].Amount == nil || *got[0].Amount != 4.5 {
		t.Errorf("unexpected first receipt %+v", got[0])
	}
	if len(got[0].Categories) != 2 || got[0].Categories[1] != nil {
		t.Errorf("null category should decode as nil, got %+v", got[0].Categories)
	}
	if got[1].Amount != nil || got[1].Timestamp != nil {
		t.Errorf("missing fields should stay nil, got %+v", got[1])
	}
}

func TestFetchReceipts_AuthIsEmpty(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, code, map[string]any{"success": false, "error": "no session"})
		})
		got, err := c.FetchReceipts(context.Background(), "a@x.io")
		if err != nil {
			t.Errorf("%d: expected no error, got %v", code, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("%d: expected empty set, got %v", code, got)
		}
	}
}

func TestFetchReceipts_Errors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"server error", http.StatusInternalServerError, `{"success":false,"error":"boom"}`, "fetch receipts: status 500: boom"},
		{"not json", http.StatusBadGateway, `<html>`, "fetch receipts: status 502"},
		{"success false", http.StatusOK, `{"success":false,"error":"mailbox locked"}`, "fetch receipts: mailbox locked"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			_, err := c.FetchReceipts(context.Background(), "a@x.io")
			if err == nil || err.Error() != tc.wantMsg {
				t.Errorf("want %q, got %v", tc.wantMsg, err)
			}
		})
	}
}

func TestUpdateCategories(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/receipts/r-1/categories" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body categoriesRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body.Categories) != 2 || body.Categories[0] != "food" {
			t.Errorf("unexpected body %+v", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	if err := c.UpdateCategories(context.Background(), "r-1", []string{"food", "work"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUpdateCategories_Unauthorized(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	err := c.UpdateCategories(context.Background(), "r-1", nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTriggerSync(t *testing.T) {
	last := time.UnixMilli(1700000000123)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sync" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["account"] != "a@x.io" || body["last_synced"] != float64(1700000000123) {
			t.Errorf("unexpected body %v", body)
		}
		w.Write([]byte(`{"success":true,"data":{"transactions":[{"msg_id":"m1"}]}}`))
	})
	if err := c.TriggerSync(context.Background(), "a@x.io", &last); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTriggerSync_OmitsLastSynced(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["last_synced"]; ok {
			t.Errorf("last_synced should be omitted, got %v", body)
		}
		w.Write([]byte(`{"success":true}`))
	})
	if err := c.TriggerSync(context.Background(), "a@x.io", nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 3; i++ {
		if _, err := c.FetchReceipts(context.Background(), "a@x.io"); err == nil {
			t.Fatal("expected error")
		}
	}
	_, err := c.FetchReceipts(context.Background(), "a@x.io")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("open breaker should not reach the backend, got %d hits", hits.Load())
	}
}

func TestAuthFailuresDoNotTripBreaker(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	for i := 0; i < 5; i++ {
		if _, err := c.FetchReceipts(context.Background(), "a@x.io"); err != nil {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
	}
}

func TestCancelledCallsDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"success":true,"data":{"transactions":[]}}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		if _, err := c.FetchReceipts(ctx, "a@x.io"); !errors.Is(err, context.Canceled) {
			t.Fatalf("call %d: expected context.Canceled, got %v", i, err)
		}
	}

	if _, err := c.FetchReceipts(context.Background(), "a@x.io"); err != nil {
		t.Fatalf("breaker should stay closed after cancellations, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected one backend hit, got %d", hits.Load())
	}
}

func TestRequestIDPropagated(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(requestIDHeader); got != "req-123" {
			t.Errorf("expected forwarded request id, got %q", got)
		}
		w.Write([]byte(`{"success":true,"data":{"transactions":[]}}`))
	})
	ctx := WithRequestID(context.Background(), "req-123")
	if _, err := c.FetchReceipts(ctx, "a@x.io"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
