package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"finos/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "finos.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewSQLiteRepository_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finos.db")
	for i := 0; i < 2; i++ {
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := repo.Ping(context.Background()); err != nil {
			t.Errorf("ping: %v", err)
		}
		repo.Close()
	}
}

func TestReceiptsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ts := time.UnixMilli(1700000000123).UTC()

	in := []core.Receipt{
		{ID: "b", SourceMessageID: "b", Owner: "a@x.io", Issuer: "Visa", Merchant: "Cafe", Amount: 4.5, Currency: "EUR", Categories: []string{"food", "work"}, Timestamp: ts, Notes: "latte"},
		{ID: "a", Owner: "a@x.io", Merchant: "Air", Amount: 300, Currency: "USD", Categories: []string{}, Timestamp: ts},
	}
	if err := repo.SaveReceipts(ctx, "a@x.io", in); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.LoadReceipts(ctx, "a@x.io")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(in, got) {
		t.Errorf("round trip mismatch\nwant %+v\ngot  %+v", in, got)
	}
}

func TestSaveReceipts_ReplacesPerAccount(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_ = repo.SaveReceipts(ctx, "a@x.io", []core.Receipt{{ID: "1", Categories: []string{}}, {ID: "2", Categories: []string{}}})
	_ = repo.SaveReceipts(ctx, "b@x.io", []core.Receipt{{ID: "3", Categories: []string{}}})
	if err := repo.SaveReceipts(ctx, "a@x.io", nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}

	a, _ := repo.LoadReceipts(ctx, "a@x.io")
	b, _ := repo.LoadReceipts(ctx, "b@x.io")
	if len(a) != 0 {
		t.Errorf("expected account a cleared, got %d", len(a))
	}
	if len(b) != 1 {
		t.Errorf("expected account b untouched, got %d", len(b))
	}
}

func TestSyncStatusRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.LoadSyncStatus(ctx, "a@x.io"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	last := time.UnixMilli(1700000000000).UTC()
	want := core.SyncStatus{State: core.SyncSuccess, LastSynced: &last, Message: "Loaded 2 receipts"}
	repo.OnSyncStatus(ctx, "a@x.io", core.SyncStatus{State: core.SyncSyncing, Message: "Syncing"})
	repo.OnSyncStatus(ctx, "a@x.io", want)

	got, err := repo.LoadSyncStatus(ctx, "a@x.io")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.State != want.State || got.Message != want.Message || got.LastSynced == nil || !got.LastSynced.Equal(last) {
		t.Errorf("want %+v, got %+v", want, got)
	}

	repo.OnSyncStatus(ctx, "", want)
	if _, err := repo.LoadSyncStatus(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("status without account should not be stored, got %v", err)
	}
}
