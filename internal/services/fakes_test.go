package services

import (
	"context"
	"sync"
	"time"

	"finos/internal/core"
)

type fakeTrigger struct {
	mu      sync.Mutex
	calls   int
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeTrigger) TriggerSync(ctx context.Context, account string, lastSynced *time.Time) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.err
}

func (f *fakeTrigger) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls++
	return f.err
}

type recordingObserver struct {
	mu     sync.Mutex
	states []core.SyncState
}

func (o *recordingObserver) OnSyncStatus(ctx context.Context, account string, st core.SyncStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, st.State)
}

type fetchResult struct {
	raw []core.RawReceipt
	err error
}

// fakeFetcher returns queued results in order. When gate is set, each call
// waits for a value on it before returning.
type fakeFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	gate    chan struct{}
}

func (f *fakeFetcher) FetchReceipts(ctx context.Context, account string) ([]core.RawReceipt, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
		}
	}
	if i >= len(f.results) {
		return nil, nil
	}
	return f.results[i].raw, f.results[i].err
}

type fakeUpdater struct {
	err   error
	calls int
}

func (f *fakeUpdater) UpdateCategories(ctx context.Context, receiptID string, categories []string) error {
	f.calls++
	return f.err
}

type memorySnapshots struct {
	mu   sync.Mutex
	sets map[string][]core.Receipt
}

func (m *memorySnapshots) SaveReceipts(ctx context.Context, account string, receipts []core.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets == nil {
		m.sets = map[string][]core.Receipt{}
	}
	m.sets[account] = core.CloneReceipts(receipts)
	return nil
}

func (m *memorySnapshots) LoadReceipts(ctx context.Context, account string) ([]core.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return core.CloneReceipts(m.sets[account]), nil
}

func strp(s string) *string    { return &s }
func f64p(f float64) *float64 { return &f }
