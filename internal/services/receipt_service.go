package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"finos/internal/analytics"
	"finos/internal/cache"
	"finos/internal/core"
)

var (
	ErrCategoryUpdateFailed = errors.New("category update failed")
	ErrReceiptNotFound      = errors.New("receipt not found")
)

// ReceiptServiceConfig holds tuning for the receipt service.
type ReceiptServiceConfig struct {
	// FallbackOwner is used for receipts without an owner. Empty means the account.
	FallbackOwner string

	// DashboardCacheSize is the number of memoized dashboards (default: 64)
	DashboardCacheSize int

	// DashboardCacheTTL bounds how long a memoized dashboard is served (default: 1m)
	DashboardCacheTTL time.Duration
}

func DefaultReceiptServiceConfig() ReceiptServiceConfig {
	return ReceiptServiceConfig{
		DashboardCacheSize: 64,
		DashboardCacheTTL:  time.Minute,
	}
}

// ReceiptState is a point-in-time view of the service.
type ReceiptState struct {
	Account  string
	Receipts []core.Receipt
	Loading  bool
	Err      error
}

// ReceiptService owns the receipt set of the active account. Every change is
// reported to the sync controller.
type ReceiptService struct {
	fetcher    ReceiptFetcher
	updater    CategoryUpdater
	controller *SyncController
	snapshots  SnapshotStore
	converter  *core.Converter
	dashboards *cache.LRUCache[analytics.Dashboard]
	config     ReceiptServiceConfig

	mu                sync.Mutex
	account           string
	profileLastSynced *time.Time
	receipts          []core.Receipt
	loading           bool
	err               error

	// fetchGen identifies the newest fetch; dataGen changes with the receipt set.
	fetchGen uint64
	dataGen  uint64
}

// NewReceiptService wires the service to its collaborators and registers it as
// the controller's refresher. snapshots may be nil.
func NewReceiptService(
	fetcher ReceiptFetcher,
	updater CategoryUpdater,
	controller *SyncController,
	snapshots SnapshotStore,
	converter *core.Converter,
	config ReceiptServiceConfig,
) *ReceiptService {
	if config.DashboardCacheSize <= 0 {
		config.DashboardCacheSize = DefaultReceiptServiceConfig().DashboardCacheSize
	}
	if config.DashboardCacheTTL <= 0 {
		config.DashboardCacheTTL = DefaultReceiptServiceConfig().DashboardCacheTTL
	}
	s := &ReceiptService{
		fetcher:    fetcher,
		updater:    updater,
		controller: controller,
		snapshots:  snapshots,
		converter:  converter,
		dashboards: cache.NewLRUCache[analytics.Dashboard](config.DashboardCacheSize, config.DashboardCacheTTL),
		config:     config,
	}
	controller.SetRefresher(s)
	return s
}

// DashboardCache exposes the memo cache for periodic cleanup.
func (s *ReceiptService) DashboardCache() *cache.LRUCache[analytics.Dashboard] {
	return s.dashboards
}

// SetAccount switches the active account. Receipts of the previous account are
// dropped and replaced by the stored snapshot of the new one, if any. Any
// fetch still running for the old account is superseded.
func (s *ReceiptService) SetAccount(ctx context.Context, account string, profileLastSynced *time.Time) {
	account = strings.TrimSpace(account)

	var warm []core.Receipt
	if account != "" && s.snapshots != nil {
		rs, err := s.snapshots.LoadReceipts(ctx, account)
		if err != nil {
			slog.WarnContext(ctx, "Failed to load receipt snapshot", "account", account, "error", err)
		}
		warm = rs
	}

	s.mu.Lock()
	if account != s.account {
		s.fetchGen++
		s.loading = false
		s.err = nil
		s.receipts = warm
		s.dataGen++
	}
	s.account = account
	s.profileLastSynced = profileLastSynced
	s.reconcileLocked(ctx)
	s.mu.Unlock()
}

// Refresh fetches the receipt set of the active account. A fetch overtaken by
// a newer one is discarded without touching any state.
func (s *ReceiptService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	account := s.account
	if account == "" {
		s.reconcileLocked(ctx)
		s.mu.Unlock()
		return nil
	}
	s.fetchGen++
	gen := s.fetchGen
	s.loading = true
	s.err = nil
	s.reconcileLocked(ctx)
	s.mu.Unlock()

	raw, err := s.fetcher.FetchReceipts(ctx, account)

	s.mu.Lock()
	if gen != s.fetchGen {
		s.mu.Unlock()
		slog.DebugContext(ctx, "Discarding superseded fetch", "account", account)
		return nil
	}
	s.loading = false
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.reconcileLocked(ctx)
		s.mu.Unlock()
		return ctxErr
	}
	if err != nil {
		s.err = err
		s.reconcileLocked(ctx)
		s.mu.Unlock()
		return fmt.Errorf("fetch receipts: %w", err)
	}

	owner := s.config.FallbackOwner
	if owner == "" {
		owner = account
	}
	s.receipts = core.Normalize(raw, owner)
	s.dataGen++
	snapshot := core.CloneReceipts(s.receipts)
	s.reconcileLocked(ctx)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Receipts refreshed", "account", account, "count", len(snapshot))
	s.saveSnapshot(ctx, account, snapshot)
	return nil
}

// UpdateCategories replaces a receipt's categories locally, then upstream.
// When the upstream call fails the receipt gets its previous categories back.
func (s *ReceiptService) UpdateCategories(ctx context.Context, receiptID string, categories []string) error {
	next := core.CleanCategories(categories)

	s.mu.Lock()
	idx := s.indexOf(receiptID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("update categories %s: %w", receiptID, ErrReceiptNotFound)
	}
	account := s.account
	previous := append([]string(nil), s.receipts[idx].Categories...)
	s.receipts = core.CloneReceipts(s.receipts)
	s.receipts[idx] = s.receipts[idx].WithCategories(next)
	s.dataGen++
	s.mu.Unlock()

	if err := s.updater.UpdateCategories(ctx, receiptID, next); err != nil {
		s.mu.Lock()
		if i := s.indexOf(receiptID); i >= 0 && s.account == account {
			s.receipts = core.CloneReceipts(s.receipts)
			s.receipts[i].Categories = previous
			s.dataGen++
		}
		s.mu.Unlock()
		slog.WarnContext(ctx, "Category update rolled back", "receipt_id", receiptID, "error", err)
		return fmt.Errorf("%w: %v", ErrCategoryUpdateFailed, err)
	}

	s.mu.Lock()
	snapshot := core.CloneReceipts(s.receipts)
	s.mu.Unlock()
	s.saveSnapshot(ctx, account, snapshot)
	return nil
}

// Account returns the active account.
func (s *ReceiptService) Account() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// Receipts returns a copy of the current receipt set.
func (s *ReceiptService) Receipts() []core.Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.CloneReceipts(s.receipts)
}

func (s *ReceiptService) State() ReceiptState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReceiptState{
		Account:  s.account,
		Receipts: core.CloneReceipts(s.receipts),
		Loading:  s.loading,
		Err:      s.err,
	}
}

// Dashboard returns every derived view for spec, with amounts projected into
// displayCurrency. An empty currency keeps raw amounts.
func (s *ReceiptService) Dashboard(spec core.FilterSpec, displayCurrency string) analytics.Dashboard {
	s.mu.Lock()
	receipts := s.receipts
	key := dashboardKey(s.account, s.dataGen, spec, displayCurrency)
	s.mu.Unlock()

	if d, ok := s.dashboards.Get(key); ok {
		return d
	}

	var project core.Projector
	if displayCurrency != "" && s.converter != nil {
		project = core.ToCurrency(s.converter, displayCurrency)
	}
	d := analytics.BuildDashboard(receipts, spec, project)
	s.dashboards.Set(key, d)
	return d
}

func (s *ReceiptService) indexOf(id string) int {
	for i, r := range s.receipts {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// reconcileLocked reports the current inputs to the controller. Holding mu
// keeps the reports in the order the state changed.
func (s *ReceiptService) reconcileLocked(ctx context.Context) {
	s.controller.Reconcile(ctx, SyncInputs{
		Account:           s.account,
		ProfileLastSynced: s.profileLastSynced,
		Loading:           s.loading,
		Err:               s.err,
		ReceiptCount:      len(s.receipts),
	})
}

func (s *ReceiptService) saveSnapshot(ctx context.Context, account string, receipts []core.Receipt) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.SaveReceipts(ctx, account, receipts); err != nil {
		slog.WarnContext(ctx, "Failed to save receipt snapshot", "account", account, "error", err)
	}
}

func dashboardKey(account string, gen uint64, spec core.FilterSpec, currency string) string {
	bound := func(p *float64) string {
		if p == nil {
			return "-"
		}
		return strconv.FormatFloat(*p, 'g', -1, 64)
	}
	return strings.Join([]string{
		account,
		strconv.FormatUint(gen, 10),
		string(spec.Range),
		strings.ToLower(spec.Category),
		strings.ToLower(spec.Merchant),
		bound(spec.MinAmount),
		bound(spec.MaxAmount),
		strings.ToLower(spec.Search),
		strings.ToUpper(currency),
	}, "\x1f")
}
