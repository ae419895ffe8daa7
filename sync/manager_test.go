// ABOUTME: Tests for the sync manager against a memory remote and a real badger cache
// ABOUTME: Covers merge arbitration, batched retries, partition healing, and purge safety
package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/trendscope/cache"
	"github.com/harperreed/trendscope/models"
	"github.com/harperreed/trendscope/remote"
)

func makeRecord(keyword string, ts int64, reviewed bool) models.TrendsRecord {
	return models.TrendsRecord{
		ID:             keyword + "-id",
		TargetKeyword:  keyword,
		FileName:       keyword + ".csv",
		Timestamp:      ts,
		Reviewed:       reviewed,
		LastWeekVolume: 120,
		ComparisonData: []models.ComparisonPoint{
			{Date: "2026-08-01", GPTs: 50, Keyword: 25, DailyVolume: 2500, MonthlyVolume: 75000},
		},
	}
}

func newTestManager(t *testing.T, r remote.Store) (*Manager, *cache.Store) {
	t.Helper()
	c, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	m, err := NewManager(c, r, Options{
		BatchSize:      2,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		BatchPause:     time.Millisecond,
	})
	require.NoError(t, err)
	return m, c
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 100, o.BatchSize)
	assert.Equal(t, 3, o.MaxAttempts)
	assert.Equal(t, time.Second, o.RetryBaseDelay)
	assert.Equal(t, 500*time.Millisecond, o.BatchPause)
}

func TestReconcileIdempotent(t *testing.T) {
	x := makeRecord("golang", 1000, true)
	assert.Equal(t, x, Reconcile(x, x))
}

func TestReconcileReviewedSurvivesEitherSide(t *testing.T) {
	a := makeRecord("golang", 1000, true)
	b := makeRecord("golang", 2000, false)
	b.FileName = "newer.csv"

	ab := Reconcile(a, b)
	ba := Reconcile(b, a)

	assert.True(t, ab.Reviewed)
	assert.True(t, ba.Reviewed)
	assert.Equal(t, "newer.csv", ab.FileName)
	assert.Equal(t, "newer.csv", ba.FileName)
}

func TestReconcileNewerTimestampWins(t *testing.T) {
	older := makeRecord("golang", 1000, false)
	older.LastWeekVolume = 10
	newer := makeRecord("golang", 2000, false)
	newer.LastWeekVolume = 500

	merged := Reconcile(older, newer)
	assert.Equal(t, int64(2000), merged.Timestamp)
	assert.Equal(t, int64(500), merged.LastWeekVolume)

	// A tie keeps the existing side.
	tie := makeRecord("golang", 2000, false)
	tie.LastWeekVolume = 999
	assert.Equal(t, int64(500), Reconcile(newer, tie).LastWeekVolume)
}

func TestDedupeCollapsesByKeyword(t *testing.T) {
	records := []models.TrendsRecord{
		makeRecord("golang", 1000, false),
		makeRecord("rust", 1500, false),
		makeRecord("golang", 2000, true),
	}

	out := Dedupe(records)
	require.Len(t, out, 2)
	assert.Equal(t, "golang", out[0].TargetKeyword)
	assert.Equal(t, int64(2000), out[0].Timestamp)
	assert.True(t, out[0].Reviewed)
	assert.Equal(t, "rust", out[1].TargetKeyword)
}

func TestUploadPushesAndMarksSynced(t *testing.T) {
	store := remote.NewMemoryStore()
	m, c := newTestManager(t, store)

	err := m.Upload(context.Background(), []models.TrendsRecord{
		makeRecord("golang", 1000, false),
		makeRecord("rust", 2000, false),
		makeRecord("zig", 3000, false),
	})
	require.NoError(t, err)

	pending, err := c.PendingSyncs()
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := store.Query(context.Background(), remote.Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	records := m.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "zig", records[0].TargetKeyword)
	assert.Equal(t, "golang", records[2].TargetKeyword)
}

func TestUploadSkipsInvalidRecords(t *testing.T) {
	store := remote.NewMemoryStore()
	m, _ := newTestManager(t, store)

	noVolume := makeRecord("quiet", 1000, false)
	noVolume.LastWeekVolume = 0
	noVolume.ComparisonData = []models.ComparisonPoint{{Date: "2026-08-01"}}

	err := m.Upload(context.Background(), []models.TrendsRecord{
		{TargetKeyword: ""},
		noVolume,
		makeRecord("golang", 1000, false),
	})
	require.NoError(t, err)

	records := m.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "golang", records[0].TargetKeyword)
}

func TestSyncPullsRemoteChanges(t *testing.T) {
	store := remote.NewMemoryStore()
	m, c := newTestManager(t, store)

	_, err := store.UpsertMany(context.Background(), []models.TrendsRecord{
		makeRecord("golang", 1000, false),
	})
	require.NoError(t, err)

	require.NoError(t, m.Sync(context.Background()))

	got, _, ok, err := c.Get("golang")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1000), got.Timestamp)

	pending, err := c.PendingSyncs()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSyncConvergesAfterOneRound(t *testing.T) {
	store := remote.NewMemoryStore()
	m, c := newTestManager(t, store)

	err := m.Upload(context.Background(), []models.TrendsRecord{
		makeRecord("golang", 1000, false),
	})
	require.NoError(t, err)

	calls := store.UpsertCalls
	require.NoError(t, m.Sync(context.Background()))

	assert.Equal(t, calls, store.UpsertCalls)
	pending, err := c.PendingSyncs()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSyncMergesConflictingCopies(t *testing.T) {
	store := remote.NewMemoryStore()
	m, c := newTestManager(t, store)

	local := makeRecord("golang", 2000, false)
	local.FileName = "local.csv"
	require.NoError(t, c.Upsert([]models.TrendsRecord{local}))

	// Stamp the remote copy ahead of the local sync state so the pull
	// picks it up as a change.
	store.SetClock(func() time.Time { return time.Now().Add(time.Hour) })
	remoteCopy := makeRecord("golang", 1000, true)
	remoteCopy.FileName = "remote.csv"
	_, err := store.UpsertMany(context.Background(), []models.TrendsRecord{remoteCopy})
	require.NoError(t, err)
	store.SetClock(time.Now)

	require.NoError(t, m.Sync(context.Background()))

	got, _, ok, err := c.Get("golang")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "local.csv", got.FileName)
	assert.True(t, got.Reviewed)
}

func TestSetReviewedStatusRelocatesRemotely(t *testing.T) {
	store := remote.NewMemoryStore()
	m, _ := newTestManager(t, store)

	err := m.Upload(context.Background(), []models.TrendsRecord{
		makeRecord("golang", 1000, false),
	})
	require.NoError(t, err)

	err = m.SetReviewedStatus(context.Background(), []string{"golang-id", "missing-id"}, true)
	require.NoError(t, err)

	reviewed := true
	got, err := store.Query(context.Background(), remote.Filter{Reviewed: &reviewed})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "golang", got[0].TargetKeyword)

	unreviewed := false
	got, err = store.Query(context.Background(), remote.Filter{Reviewed: &unreviewed})
	require.NoError(t, err)
	assert.Empty(t, got)

	records := m.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].Reviewed)
}

func TestPushRetriesTransientFailures(t *testing.T) {
	store := remote.NewMemoryStore()
	m, c := newTestManager(t, store)

	require.NoError(t, c.Upsert([]models.TrendsRecord{makeRecord("golang", 1000, false)}))
	store.FailUpsertTimes = 2

	require.NoError(t, m.Sync(context.Background()))

	assert.Equal(t, 3, store.UpsertCalls)
	got, err := store.Query(context.Background(), remote.Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	pending, err := c.PendingSyncs()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPushReportsFailureCounts(t *testing.T) {
	store := remote.NewMemoryStore()
	m, c := newTestManager(t, store)

	require.NoError(t, c.Upsert([]models.TrendsRecord{
		makeRecord("golang", 1000, false),
		makeRecord("rust", 2000, false),
		makeRecord("zig", 3000, false),
	}))
	store.FailUpsertTimes = 3

	err := m.Sync(context.Background())
	require.Error(t, err)

	var failure *SyncFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 0, failure.Persisted)
	assert.Equal(t, 3, failure.Remaining)

	_, state, found, err := c.Get("golang")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.SyncStatusError, state.Status)

	// The second run resumes where the first one stopped.
	require.NoError(t, m.Sync(context.Background()))
	pending, err := c.PendingSyncs()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPushPartialFailureKeepsPersistedBatches(t *testing.T) {
	store := remote.NewMemoryStore()
	m, c := newTestManager(t, store)

	require.NoError(t, c.Upsert([]models.TrendsRecord{
		makeRecord("golang", 1000, false),
		makeRecord("rust", 2000, false),
		makeRecord("zig", 3000, false),
	}))

	// First batch of two lands, the second batch exhausts its retries.
	store.FailUpsertAfter = 1

	err := m.Sync(context.Background())
	require.Error(t, err)

	var failure *SyncFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 2, failure.Persisted)
	assert.Equal(t, 1, failure.Remaining)

	pending, err := c.PendingSyncs()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "zig", pending[0].TargetKeyword)

	store.FailUpsertAfter = 0
	require.NoError(t, m.Sync(context.Background()))

	got, err := store.Query(context.Background(), remote.Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestPushCountsBatchPersistedWhenReviewedUpdateFails(t *testing.T) {
	store := remote.NewMemoryStore()
	m, c := newTestManager(t, store)

	require.NoError(t, c.Upsert([]models.TrendsRecord{makeRecord("golang", 1000, true)}))
	store.FailReviewedTimes = 1

	err := m.Sync(context.Background())
	require.Error(t, err)

	// The upsert landed, so the batch counts as persisted even though the
	// reviewed re-assertion failed.
	var failure *SyncFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 1, failure.Persisted)
	assert.Equal(t, 0, failure.Remaining)

	got, err := store.Query(context.Background(), remote.Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Still pending, so the next run finishes the job.
	pending, err := c.PendingSyncs()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, m.Sync(context.Background()))
	pending, err = c.PendingSyncs()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSyncNotAuthenticatedFailsWithoutRetry(t *testing.T) {
	m, c := newTestManager(t, remote.Unauthenticated{})

	require.NoError(t, c.Upsert([]models.TrendsRecord{makeRecord("golang", 1000, false)}))

	err := m.Sync(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrNotAuthenticated)

	var failure *SyncFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 1, failure.Remaining)

	pending, err := c.PendingSyncs()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSyncSkipsWhenAlreadyRunning(t *testing.T) {
	store := remote.NewMemoryStore()
	m, c := newTestManager(t, store)

	require.NoError(t, c.Upsert([]models.TrendsRecord{makeRecord("golang", 1000, false)}))

	m.syncing.Store(true)
	require.NoError(t, m.Sync(context.Background()))
	assert.Equal(t, 0, store.UpsertCalls)
	m.syncing.Store(false)

	require.NoError(t, m.Sync(context.Background()))
	assert.Equal(t, 1, store.UpsertCalls)
}

func TestPurgeReviewedLeavesUnreviewedIntact(t *testing.T) {
	store := remote.NewMemoryStore()
	m, c := newTestManager(t, store)

	// Keyword "a" violates the partition invariant on purpose.
	_, err := store.UpsertMany(context.Background(), []models.TrendsRecord{
		makeRecord("a", 1000, false),
		makeRecord("b", 1000, false),
		makeRecord("a", 2000, true),
	})
	require.NoError(t, err)
	require.NoError(t, c.Upsert([]models.TrendsRecord{
		makeRecord("a", 2000, true),
		makeRecord("b", 1000, false),
	}))
	require.NoError(t, c.MarkSynced([]string{"a", "b"}))
	require.NoError(t, m.refresh())

	require.NoError(t, m.PurgeReviewed(context.Background()))

	got, err := store.Query(context.Background(), remote.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].TargetKeyword)
	assert.False(t, got[0].Reviewed)

	records := m.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].TargetKeyword)
}

func TestPurgeReviewedDropsLocallyUnreviewedCopy(t *testing.T) {
	store := remote.NewMemoryStore()
	m, c := newTestManager(t, store)

	// "a" was reviewed from another session: the remote copy is reviewed
	// but the cached copy still carries the old flag.
	_, err := store.UpsertMany(context.Background(), []models.TrendsRecord{
		makeRecord("a", 2000, true),
	})
	require.NoError(t, err)
	require.NoError(t, c.Upsert([]models.TrendsRecord{
		makeRecord("a", 1000, false),
		makeRecord("b", 1000, false),
	}))
	require.NoError(t, m.refresh())

	require.NoError(t, m.PurgeReviewed(context.Background()))

	_, _, ok, err := c.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, ok, err = c.Get("b")
	require.NoError(t, err)
	assert.True(t, ok)

	// Nothing left to resurrect the purged keyword remotely.
	require.NoError(t, m.Sync(context.Background()))
	got, err := store.Query(context.Background(), remote.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].TargetKeyword)
}

func TestLoadPartitionedHealsDuplicates(t *testing.T) {
	store := remote.NewMemoryStore()
	m, _ := newTestManager(t, store)

	_, err := store.UpsertMany(context.Background(), []models.TrendsRecord{
		makeRecord("a", 1000, false),
		makeRecord("b", 1000, false),
		makeRecord("a", 2000, true),
	})
	require.NoError(t, err)

	got, err := m.LoadPartitioned(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].TargetKeyword)

	// The duplicate is deleted from the unreviewed partition, not just hidden.
	unreviewed := false
	remaining, err := store.Query(context.Background(), remote.Filter{Reviewed: &unreviewed})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "b", remaining[0].TargetKeyword)

	withReviewed, err := m.LoadPartitioned(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, withReviewed, 2)
}

func TestInitializeReplacesCache(t *testing.T) {
	store := remote.NewMemoryStore()
	m, c := newTestManager(t, store)

	require.NoError(t, c.Upsert([]models.TrendsRecord{makeRecord("stale", 500, false)}))
	_, err := store.UpsertMany(context.Background(), []models.TrendsRecord{
		makeRecord("golang", 1000, false),
		makeRecord("rust", 2000, true),
	})
	require.NoError(t, err)

	require.NoError(t, m.Initialize(context.Background(), true))

	records := m.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "rust", records[0].TargetKeyword)

	_, _, ok, err := c.Get("stale")
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := c.PendingSyncs()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSyncFailureMessage(t *testing.T) {
	err := &SyncFailure{Persisted: 2, Remaining: 3, Err: errors.New("boom")}
	assert.Contains(t, err.Error(), "2 of 5")
	assert.ErrorIs(t, err, err.Err)
}
