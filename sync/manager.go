// ABOUTME: Sync manager coordinating the local cache with the remote store
// ABOUTME: Pushes pending records in retried batches, pulls remote changes, and serves an in-memory projection
package sync

import (
	"context"
	"fmt"
	"log"
	"sort"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/harperreed/trendscope/cache"
	"github.com/harperreed/trendscope/models"
	"github.com/harperreed/trendscope/remote"
)

// Options tunes the push loop. Zero values fall back to the defaults the
// config package ships.
type Options struct {
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	BatchPause     time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	if o.BatchPause <= 0 {
		o.BatchPause = 500 * time.Millisecond
	}
	return o
}

// Manager owns the sync lifecycle between the local cache and the remote
// store. At most one Sync runs at a time; overlapping calls are no-ops. The
// projection returned by Records is a read-only snapshot refreshed after
// every mutating operation.
type Manager struct {
	cache  *cache.Store
	remote remote.Store
	opts   Options

	syncing atomic.Bool

	mu      stdsync.RWMutex
	records []models.TrendsRecord
}

// NewManager builds a manager over the given stores and loads the initial
// projection from the cache.
func NewManager(c *cache.Store, r remote.Store, opts Options) (*Manager, error) {
	m := &Manager{cache: c, remote: r, opts: opts.withDefaults()}
	if err := m.refresh(); err != nil {
		return nil, err
	}
	return m, nil
}

// Records returns the current projection, newest first.
func (m *Manager) Records() []models.TrendsRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.TrendsRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Syncing reports whether a sync run is in flight.
func (m *Manager) Syncing() bool {
	return m.syncing.Load()
}

// refresh rebuilds the projection from the cache, newest first.
func (m *Manager) refresh() error {
	records, err := m.cache.Query(cache.Filter{})
	if err != nil {
		return fmt.Errorf("failed to refresh records: %w", err)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
	m.mu.Lock()
	m.records = records
	m.mu.Unlock()
	return nil
}

// Upload validates, deduplicates, and stores the given records locally, then
// syncs. Records failing validation or carrying no volume data are skipped
// with a warning rather than failing the whole upload.
func (m *Manager) Upload(ctx context.Context, records []models.TrendsRecord) error {
	kept := make([]models.TrendsRecord, 0, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			log.Printf("Warning: skipping %q: %v", r.TargetKeyword, err)
			continue
		}
		if !r.HasVolume() {
			log.Printf("Warning: skipping %q: no volume data", r.TargetKeyword)
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return nil
	}

	merged := Dedupe(kept)
	for i, r := range merged {
		if existing, _, ok, err := m.cache.Get(r.TargetKeyword); err != nil {
			return err
		} else if ok {
			merged[i] = Reconcile(existing, r)
		}
	}
	if err := m.cache.Upsert(merged); err != nil {
		return err
	}
	if err := m.refresh(); err != nil {
		return err
	}
	return m.Sync(ctx)
}

// SetReviewedStatus flips the reviewed flag on the given record IDs and
// syncs. IDs not present in the projection are skipped with a warning.
func (m *Manager) SetReviewedStatus(ctx context.Context, ids []string, reviewed bool) error {
	byID := make(map[string]string)
	m.mu.RLock()
	for _, r := range m.records {
		byID[r.ID] = r.TargetKeyword
	}
	m.mu.RUnlock()

	keywords := make([]string, 0, len(ids))
	for _, id := range ids {
		kw, ok := byID[id]
		if !ok {
			log.Printf("Warning: no record with id %q", id)
			continue
		}
		keywords = append(keywords, kw)
	}
	if len(keywords) == 0 {
		return nil
	}

	if err := m.cache.SetReviewed(models.ReviewedPatch{Keywords: keywords, Reviewed: reviewed}); err != nil {
		return err
	}
	if err := m.refresh(); err != nil {
		return err
	}
	return m.Sync(ctx)
}

// Sync pushes pending local changes to the remote store, then pulls remote
// changes newer than the cache's last sync instant. When another sync is
// already running the call returns nil immediately.
func (m *Manager) Sync(ctx context.Context) error {
	if !m.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer m.syncing.Store(false)

	if err := m.push(ctx); err != nil {
		return err
	}
	if err := m.pull(ctx); err != nil {
		return err
	}
	return m.refresh()
}

// push sends pending records to the remote store in batches. Each batch is
// retried with exponential backoff on transient failures; a batch that
// exhausts its attempts or hits a non-retryable error aborts the push and
// reports how far it got.
func (m *Manager) push(ctx context.Context) error {
	pending, err := m.cache.PendingSyncs()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	pending = Dedupe(pending)

	persisted := 0
	for start := 0; start < len(pending); start += m.opts.BatchSize {
		end := start + m.opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		if start > 0 && m.opts.BatchPause > 0 {
			if err := sleepCtx(ctx, m.opts.BatchPause); err != nil {
				return &SyncFailure{Persisted: persisted, Remaining: len(pending) - persisted, Err: err}
			}
		}

		keywords := make([]string, 0, len(batch))
		var reviewed []string
		for _, r := range batch {
			keywords = append(keywords, r.TargetKeyword)
			if r.Reviewed {
				reviewed = append(reviewed, r.TargetKeyword)
			}
		}

		if err := m.pushBatch(ctx, batch); err != nil {
			if patchErr := m.cache.PatchSyncState(keywords, models.SyncStatePatch{Status: models.SyncStatusError}); patchErr != nil {
				log.Printf("Warning: failed to mark batch errored: %v", patchErr)
			}
			return &SyncFailure{Persisted: persisted, Remaining: len(pending) - persisted, Err: err}
		}
		// The batch is remotely durable from here on; the follow-up calls
		// only adjust flags, so a failure past this point still counts the
		// batch as persisted.
		persisted += len(batch)
		if len(reviewed) > 0 {
			// Re-assert the reviewed flag server side so a stale remote
			// copy cannot clear it during upsert arbitration.
			if _, err := m.remote.UpdateReviewed(ctx, reviewed, true); err != nil {
				return &SyncFailure{Persisted: persisted, Remaining: len(pending) - persisted, Err: err}
			}
		}
		if err := m.cache.MarkSynced(keywords); err != nil {
			return &SyncFailure{Persisted: persisted, Remaining: len(pending) - persisted, Err: err}
		}
	}
	return nil
}

// pushBatch upserts one batch, retrying transient failures with doubling
// delays. Non-transient errors fail immediately.
func (m *Manager) pushBatch(ctx context.Context, batch []models.TrendsRecord) error {
	delay := m.opts.RetryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		_, err := m.remote.UpsertMany(ctx, batch)
		if err == nil {
			return nil
		}
		if !remote.IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt < m.opts.MaxAttempts {
			log.Printf("Warning: batch upsert attempt %d failed, retrying in %s: %v", attempt, delay, err)
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}
	}
	return fmt.Errorf("batch upsert failed after %d attempts: %w", m.opts.MaxAttempts, lastErr)
}

// pull fetches records the remote store changed since the last sync and
// merges them into the cache.
func (m *Manager) pull(ctx context.Context) error {
	since, ok, err := m.cache.LastSyncedAt()
	if err != nil {
		return err
	}
	if !ok {
		since = time.Time{}
	}

	changed, err := m.remote.ChangedSince(ctx, since)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	merged := make([]models.TrendsRecord, 0, len(changed))
	for _, incoming := range changed {
		existing, _, ok, err := m.cache.Get(incoming.TargetKeyword)
		if err != nil {
			return err
		}
		if !ok {
			merged = append(merged, incoming)
			continue
		}
		merged = append(merged, Reconcile(existing, incoming))
	}
	if err := m.cache.Upsert(merged); err != nil {
		return err
	}
	keywords := make([]string, 0, len(merged))
	for _, r := range merged {
		keywords = append(keywords, r.TargetKeyword)
	}
	return m.cache.MarkSynced(keywords)
}

// PurgeReviewed deletes every reviewed record from the remote store and the
// cache. Any record present in both partitions remotely is stripped from the
// unreviewed partition first so the delete cannot resurrect it.
func (m *Manager) PurgeReviewed(ctx context.Context) error {
	reviewed := true
	unreviewed := false

	reviewedRecords, err := m.remote.Query(ctx, remote.Filter{Reviewed: &reviewed})
	if err != nil {
		return err
	}
	keywords := make([]string, 0, len(reviewedRecords))
	for _, r := range reviewedRecords {
		keywords = append(keywords, r.TargetKeyword)
	}
	if len(keywords) > 0 {
		err = m.remote.DeleteWhere(ctx, remote.Predicate{Reviewed: &unreviewed, Keywords: keywords})
		if err != nil {
			return err
		}
	}
	if err := m.remote.DeleteWhere(ctx, remote.Predicate{Reviewed: &reviewed}); err != nil {
		return err
	}

	// Drop the remotely reviewed keywords regardless of their local flag. A
	// copy cached as unreviewed would otherwise stay pending and push the
	// purged keyword straight back on the next sync.
	if err := m.cache.Delete(keywords); err != nil {
		return err
	}
	if err := m.cache.DeleteReviewed(); err != nil {
		return err
	}
	return m.refresh()
}

// LoadPartitioned queries the remote store and returns unreviewed records,
// plus reviewed ones when includeReviewed is set. A record found in both
// partitions counts as reviewed and is healed out of the unreviewed set.
func (m *Manager) LoadPartitioned(ctx context.Context, includeReviewed bool) ([]models.TrendsRecord, error) {
	unreviewed := false
	unreviewedRecords, err := m.remote.Query(ctx, remote.Filter{Reviewed: &unreviewed})
	if err != nil {
		return nil, err
	}

	reviewed := true
	reviewedRecords, err := m.remote.Query(ctx, remote.Filter{Reviewed: &reviewed})
	if err != nil {
		return nil, err
	}

	inReviewed := make(map[string]bool, len(reviewedRecords))
	for _, r := range reviewedRecords {
		inReviewed[r.TargetKeyword] = true
	}

	var out []models.TrendsRecord
	var violators []string
	for _, r := range unreviewedRecords {
		if inReviewed[r.TargetKeyword] {
			violators = append(violators, r.TargetKeyword)
			continue
		}
		r.Reviewed = false
		out = append(out, r)
	}
	if len(violators) > 0 {
		log.Printf("Warning: healing %d records found in both partitions", len(violators))
		err = m.remote.DeleteWhere(ctx, remote.Predicate{Reviewed: &unreviewed, Keywords: violators})
		if err != nil {
			return nil, err
		}
	}

	if includeReviewed {
		for _, r := range reviewedRecords {
			r.Reviewed = true
			out = append(out, r)
		}
	}
	return out, nil
}

// Initialize replaces the cache with the remote store's contents and
// refreshes the projection. Used on first run and when rebuilding a corrupt
// cache.
func (m *Manager) Initialize(ctx context.Context, includeReviewed bool) error {
	records, err := m.LoadPartitioned(ctx, includeReviewed)
	if err != nil {
		return err
	}
	if err := m.cache.Clear(); err != nil {
		return err
	}
	if len(records) > 0 {
		if err := m.cache.Upsert(records); err != nil {
			return err
		}
		keywords := make([]string, 0, len(records))
		for _, r := range records {
			keywords = append(keywords, r.TargetKeyword)
		}
		if err := m.cache.MarkSynced(keywords); err != nil {
			return err
		}
	}
	return m.refresh()
}

// AutoSync runs Sync on the given interval until ctx is done. Failed runs
// are logged and the loop keeps going.
func (m *Manager) AutoSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sync(ctx); err != nil {
				log.Printf("Warning: auto sync failed: %v", err)
			}
		}
	}
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
