package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"finos/internal/core"
)

// ErrNoAccount is returned by Retry when no account is connected.
var ErrNoAccount = errors.New("no account available for sync")

// SyncInputs is everything the sync status is derived from.
type SyncInputs struct {
	Account           string
	ProfileLastSynced *time.Time
	Loading           bool
	Err               error
	ReceiptCount      int
}

// SyncController owns the sync status of the active account. The status is
// only ever replaced as a whole under mu.
type SyncController struct {
	trigger   SyncTrigger
	refresher Refresher
	observers []StatusObserver
	now       func() time.Time

	mu     sync.Mutex
	status core.SyncStatus
	inputs SyncInputs
	gen    uint64

	flights singleflight.Group
}

// NewSyncController creates a controller in the "no account" state. The
// refresher may be set later with SetRefresher when it depends on the controller.
func NewSyncController(trigger SyncTrigger, refresher Refresher, observers ...StatusObserver) *SyncController {
	c := &SyncController{
		trigger:   trigger,
		refresher: refresher,
		observers: observers,
		now:       time.Now,
	}
	c.status = reduce(core.SyncStatus{}, SyncInputs{}, c.now())
	return c
}

func (c *SyncController) SetRefresher(r Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresher = r
}

// Status returns a copy of the current status.
func (c *SyncController) Status() core.SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyStatus(c.status)
}

// Reconcile derives the status from the latest inputs and stores it. An account
// change invalidates any retry still in flight.
func (c *SyncController) Reconcile(ctx context.Context, in SyncInputs) core.SyncStatus {
	c.mu.Lock()
	if in.Account != c.inputs.Account {
		c.gen++
	}
	c.inputs = in
	c.status = reduce(c.status, in, c.now())
	st := copyStatus(c.status)
	c.mu.Unlock()

	c.notify(ctx, in.Account, st)
	return st
}

// reduce applies the first matching rule to the inputs.
func reduce(prev core.SyncStatus, in SyncInputs, now time.Time) core.SyncStatus {
	switch {
	case in.Account == "":
		return core.SyncStatus{
			State:   core.SyncIdle,
			Message: "Connect an account to start ingesting receipts.",
		}
	case in.Loading:
		return core.SyncStatus{
			State:      core.SyncSyncing,
			LastSynced: prev.LastSynced,
			Message:    fmt.Sprintf("Syncing receipts for %s…", in.Account),
		}
	case in.Err != nil:
		return core.SyncStatus{
			State:      core.SyncError,
			LastSynced: prev.LastSynced,
			Message:    fmt.Sprintf("Couldn't load receipts for %s: %s", in.Account, in.Err.Error()),
		}
	case in.ReceiptCount > 0:
		last := prev.LastSynced
		if last == nil {
			last = in.ProfileLastSynced
		}
		if last == nil {
			t := now
			last = &t
		}
		return core.SyncStatus{
			State:      core.SyncSuccess,
			LastSynced: last,
			Message:    fmt.Sprintf("Loaded %d receipts", in.ReceiptCount),
		}
	default:
		return core.SyncStatus{
			State:      core.SyncIdle,
			LastSynced: in.ProfileLastSynced,
			Message:    "No receipts found.",
		}
	}
}

// Retry triggers a remote sync followed by a local refresh. Concurrent calls
// for the same account share one run. The outcome is discarded when another
// retry started or the account changed while it was running.
func (c *SyncController) Retry(ctx context.Context) (core.SyncStatus, error) {
	c.mu.Lock()
	account := c.inputs.Account
	profile := c.inputs.ProfileLastSynced
	c.mu.Unlock()

	if account == "" {
		st := c.set(ctx, account, nil, core.SyncStatus{
			State:      core.SyncError,
			LastSynced: profile,
			Message:    "No account available for sync.",
		})
		return st, ErrNoAccount
	}

	_, err, shared := c.flights.Do(account, func() (any, error) {
		return nil, c.runRetry(ctx, account, profile)
	})
	if shared {
		slog.DebugContext(ctx, "Joined in-flight sync retry", "account", account)
	}
	return c.Status(), err
}

func (c *SyncController) runRetry(ctx context.Context, account string, profile *time.Time) error {
	runID := uuid.NewString()

	c.mu.Lock()
	c.gen++
	gen := c.gen
	refresher := c.refresher
	c.mu.Unlock()

	c.set(ctx, account, &gen, core.SyncStatus{
		State:      core.SyncSyncing,
		LastSynced: profile,
		Message:    fmt.Sprintf("Syncing receipts for %s…", account),
	})
	slog.InfoContext(ctx, "Sync retry started", "account", account, "run_id", runID)

	err := c.trigger.TriggerSync(ctx, account, profile)
	if err == nil && refresher != nil {
		err = refresher.Refresh(ctx)
	}

	if err != nil {
		slog.WarnContext(ctx, "Sync retry failed", "account", account, "run_id", runID, "error", err)
		c.set(ctx, account, &gen, core.SyncStatus{
			State:      core.SyncError,
			LastSynced: profile,
			Message:    err.Error(),
		})
		return fmt.Errorf("retry sync: %w", err)
	}

	now := c.now()
	c.set(ctx, account, &gen, core.SyncStatus{
		State:      core.SyncSuccess,
		LastSynced: &now,
		Message:    fmt.Sprintf("Triggered ingest for %s", account),
	})
	slog.InfoContext(ctx, "Sync retry completed", "account", account, "run_id", runID)
	return nil
}

// set stores st unless gen is given and no longer current.
func (c *SyncController) set(ctx context.Context, account string, gen *uint64, st core.SyncStatus) core.SyncStatus {
	c.mu.Lock()
	if gen != nil && *gen != c.gen {
		cur := copyStatus(c.status)
		c.mu.Unlock()
		slog.DebugContext(ctx, "Dropping stale sync status", "account", account, "state", st.State)
		return cur
	}
	c.status = st
	out := copyStatus(st)
	c.mu.Unlock()

	c.notify(ctx, account, out)
	return out
}

func (c *SyncController) notify(ctx context.Context, account string, st core.SyncStatus) {
	for _, o := range c.observers {
		o.OnSyncStatus(ctx, account, st)
	}
}

func copyStatus(s core.SyncStatus) core.SyncStatus {
	if s.LastSynced != nil {
		t := *s.LastSynced
		s.LastSynced = &t
	}
	return s
}
