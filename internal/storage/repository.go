// Package storage keeps a local SQLite copy of the last known receipt set and
// sync status of each account, so a restart can serve data before the first
// fetch completes.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"finos/internal/core"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// migrates it.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; sqlite serializes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SaveReceipts replaces the stored receipt set of account.
func (r *SQLiteRepository) SaveReceipts(ctx context.Context, account string, receipts []core.Receipt) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM receipts WHERE account = ?`, account); err != nil {
		return fmt.Errorf("clear receipts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO receipts (account, id, position, source_message_id, owner, issuer,
			merchant, amount, currency, categories, timestamp_ms, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rc := range receipts {
		cats, err := json.Marshal(nonNil(rc.Categories))
		if err != nil {
			return fmt.Errorf("encode categories: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			account, rc.ID, i, rc.SourceMessageID, rc.Owner, rc.Issuer,
			rc.Merchant, rc.Amount, rc.Currency, string(cats), rc.TimestampMillis(), rc.Notes,
		); err != nil {
			return fmt.Errorf("insert receipt %s: %w", rc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit receipts: %w", err)
	}

	slog.DebugContext(ctx, "Receipt snapshot saved", "account", account, "count", len(receipts))
	return nil
}

// LoadReceipts returns the stored receipt set of account in its saved order.
// An unknown account yields an empty set.
func (r *SQLiteRepository) LoadReceipts(ctx context.Context, account string) ([]core.Receipt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_message_id, owner, issuer, merchant, amount, currency,
			categories, timestamp_ms, notes
		FROM receipts
		WHERE account = ?
		ORDER BY position`, account)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	out := make([]core.Receipt, 0)
	for rows.Next() {
		var (
			rc   core.Receipt
			cats string
			ts   int64
		)
		if err := rows.Scan(&rc.ID, &rc.SourceMessageID, &rc.Owner, &rc.Issuer, &rc.Merchant,
			&rc.Amount, &rc.Currency, &cats, &ts, &rc.Notes); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		if err := json.Unmarshal([]byte(cats), &rc.Categories); err != nil {
			return nil, fmt.Errorf("decode categories of %s: %w", rc.ID, err)
		}
		rc.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return out, nil
}

// SaveSyncStatus stores the latest sync status of account.
func (r *SQLiteRepository) SaveSyncStatus(ctx context.Context, account string, st core.SyncStatus) error {
	var last sql.NullInt64
	if st.LastSynced != nil {
		last = sql.NullInt64{Int64: st.LastSynced.UnixMilli(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_status (account, state, last_synced_ms, message, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			state = excluded.state,
			last_synced_ms = excluded.last_synced_ms,
			message = excluded.message,
			updated_at = excluded.updated_at`,
		account, string(st.State), last, st.Message, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save sync status: %w", err)
	}
	return nil
}

// LoadSyncStatus returns the stored status of account, or ErrNotFound.
func (r *SQLiteRepository) LoadSyncStatus(ctx context.Context, account string) (core.SyncStatus, error) {
	var (
		st    core.SyncStatus
		state string
		last  sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT state, last_synced_ms, message FROM sync_status WHERE account = ?`, account,
	).Scan(&state, &last, &st.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SyncStatus{}, ErrNotFound
	}
	if err != nil {
		return core.SyncStatus{}, fmt.Errorf("load sync status: %w", err)
	}
	st.State = core.SyncState(state)
	if last.Valid {
		t := time.UnixMilli(last.Int64).UTC()
		st.LastSynced = &t
	}
	return st, nil
}

// OnSyncStatus persists every transition of a connected account.
func (r *SQLiteRepository) OnSyncStatus(ctx context.Context, account string, st core.SyncStatus) {
	if account == "" {
		return
	}
	if err := r.SaveSyncStatus(ctx, account, st); err != nil {
		slog.WarnContext(ctx, "Failed to persist sync status", "account", account, "error", err)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
