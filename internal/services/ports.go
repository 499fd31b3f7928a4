package services

import (
	"context"
	"time"

	"finos/internal/core"
)

// ReceiptFetcher loads the raw receipt collection of an account.
type ReceiptFetcher interface {
	FetchReceipts(ctx context.Context, account string) ([]core.RawReceipt, error)
}

// CategoryUpdater persists a receipt's categories upstream.
type CategoryUpdater interface {
	UpdateCategories(ctx context.Context, receiptID string, categories []string) error
}

// SyncTrigger asks the ingestion backend to pull new receipts for an account.
type SyncTrigger interface {
	TriggerSync(ctx context.Context, account string, lastSynced *time.Time) error
}

// Refresher reloads the local receipt set.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// StatusObserver is notified after every sync status transition.
type StatusObserver interface {
	OnSyncStatus(ctx context.Context, account string, status core.SyncStatus)
}

// SnapshotStore keeps the last known receipt set of an account.
type SnapshotStore interface {
	SaveReceipts(ctx context.Context, account string, receipts []core.Receipt) error
	LoadReceipts(ctx context.Context, account string) ([]core.Receipt, error)
}
