// ABOUTME: In-memory remote store for tests and offline runs
// ABOUTME: Mirrors the partitioned document semantics of the Drive backend
package remote

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/harperreed/trendscope/models"
)

// MemoryStore holds both partitions in maps keyed by target keyword. It is
// safe for concurrent use. FailUpsertTimes makes the next N UpsertMany calls
// fail with a TransientError, for exercising the retry path; FailUpsertAfter
// fails every call after the first N, for exercising partial pushes; and
// FailReviewedTimes does the same for UpdateReviewed.
type MemoryStore struct {
	mu         sync.Mutex
	partitions map[bool]map[string]storedRecord
	now        func() time.Time

	FailUpsertTimes   int
	FailUpsertAfter   int
	FailReviewedTimes int
	UpsertCalls       int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		partitions: map[bool]map[string]storedRecord{
			false: {},
			true:  {},
		},
		now: time.Now,
	}
}

// SetClock overrides the server clock, for tests.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) UpsertMany(ctx context.Context, records []models.TrendsRecord) ([]models.TrendsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpsertCalls++
	if m.FailUpsertTimes > 0 {
		m.FailUpsertTimes--
		return nil, &TransientError{Op: "upsert", Err: context.DeadlineExceeded}
	}
	if m.FailUpsertAfter > 0 && m.UpsertCalls > m.FailUpsertAfter {
		return nil, &TransientError{Op: "upsert", Err: context.DeadlineExceeded}
	}

	now := m.now().Truncate(time.Millisecond)
	out := make([]models.TrendsRecord, 0, len(records))
	for _, r := range records {
		sr := storedRecord{TrendsRecord: r, UpdatedAt: now}
		m.partitions[r.Reviewed][r.TargetKeyword] = sr
		out = append(out, sr.TrendsRecord)
	}
	return out, nil
}

func (m *MemoryStore) Query(ctx context.Context, f Filter) ([]models.TrendsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.TrendsRecord
	search := strings.ToLower(f.Search)
	for reviewed, part := range m.partitions {
		if f.Reviewed != nil && reviewed != *f.Reviewed {
			continue
		}
		for _, sr := range part {
			if search != "" && !strings.Contains(strings.ToLower(sr.TargetKeyword), search) {
				continue
			}
			out = append(out, sr.TrendsRecord)
		}
	}

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateReviewed(ctx context.Context, keywords []string, reviewed bool) ([]models.TrendsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailReviewedTimes > 0 {
		m.FailReviewedTimes--
		return nil, &TransientError{Op: "update reviewed", Err: context.DeadlineExceeded}
	}

	now := m.now().Truncate(time.Millisecond)
	var out []models.TrendsRecord
	for _, kw := range keywords {
		// Prefer the copy already in the target partition so a stale
		// duplicate in the other partition cannot overwrite it.
		sr, ok := m.partitions[reviewed][kw]
		if !ok {
			sr, ok = m.partitions[!reviewed][kw]
			if !ok {
				continue
			}
		}
		delete(m.partitions[!reviewed], kw)
		sr.Reviewed = reviewed
		sr.UpdatedAt = now
		m.partitions[reviewed][kw] = sr
		out = append(out, sr.TrendsRecord)
	}
	return out, nil
}

func (m *MemoryStore) DeleteWhere(ctx context.Context, p Predicate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var only map[string]bool
	if len(p.Keywords) > 0 {
		only = make(map[string]bool, len(p.Keywords))
		for _, kw := range p.Keywords {
			only[kw] = true
		}
	}

	for reviewed, part := range m.partitions {
		if p.Reviewed != nil && reviewed != *p.Reviewed {
			continue
		}
		for kw := range part {
			if only == nil || only[kw] {
				delete(part, kw)
			}
		}
	}
	return nil
}

func (m *MemoryStore) ChangedSince(ctx context.Context, since time.Time) ([]models.TrendsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.TrendsRecord
	for _, part := range m.partitions {
		for _, sr := range part {
			if sr.UpdatedAt.After(since) {
				out = append(out, sr.TrendsRecord)
			}
		}
	}
	return out, nil
}
