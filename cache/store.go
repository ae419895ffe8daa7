// ABOUTME: Embedded local cache for trends records backed by BadgerDB
// ABOUTME: Keys records by target keyword with reviewed and timestamp index entries
package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/harperreed/trendscope/models"
)

const (
	recordPrefix   = "record:"
	reviewedPrefix = "idx:reviewed:"
	tsPrefix       = "idx:ts:"
)

// storedRecord is the persisted cache layout: the record plus its
// cache-local sync state. The sync state never leaves this package's
// serialization.
type storedRecord struct {
	models.TrendsRecord
	SyncState models.SyncState `json:"syncState"`
}

// Filter selects records from the cache. A nil Reviewed matches both
// partitions. Search is a case-insensitive substring match on the target
// keyword. Limit/Offset slice the filtered set; the result carries no
// ordering contract.
type Filter struct {
	Reviewed *bool
	Search   string
	Limit    int
	Offset   int
}

// Store is the local cache, keyed by target keyword.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the cache at the given directory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(keyword string) []byte {
	return []byte(recordPrefix + keyword)
}

func reviewedKey(reviewed bool, keyword string) []byte {
	flag := "0"
	if reviewed {
		flag = "1"
	}
	return []byte(reviewedPrefix + flag + ":" + keyword)
}

func tsKey(millis int64, keyword string) []byte {
	return []byte(fmt.Sprintf("%s%013d:%s", tsPrefix, millis, keyword))
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// writeRecord replaces the record and its index entries inside txn. The old
// copy's index entries are removed first so the indexes never hold stale
// pointers.
func writeRecord(txn *badger.Txn, sr storedRecord) error {
	key := recordKey(sr.TargetKeyword)
	if old, err := readRecord(txn, sr.TargetKeyword); err == nil {
		if err := txn.Delete(reviewedKey(old.Reviewed, old.TargetKeyword)); err != nil {
			return err
		}
		if err := txn.Delete(tsKey(old.Timestamp, old.TargetKeyword)); err != nil {
			return err
		}
	} else if err != badger.ErrKeyNotFound {
		return err
	}

	data, err := json.Marshal(sr)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := txn.Set(key, data); err != nil {
		return err
	}
	if err := txn.Set(reviewedKey(sr.Reviewed, sr.TargetKeyword), nil); err != nil {
		return err
	}
	return txn.Set(tsKey(sr.Timestamp, sr.TargetKeyword), nil)
}

func readRecord(txn *badger.Txn, keyword string) (storedRecord, error) {
	var sr storedRecord
	item, err := txn.Get(recordKey(keyword))
	if err != nil {
		return sr, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &sr)
	})
	return sr, err
}

func deleteRecord(txn *badger.Txn, sr storedRecord) error {
	if err := txn.Delete(recordKey(sr.TargetKeyword)); err != nil {
		return err
	}
	if err := txn.Delete(reviewedKey(sr.Reviewed, sr.TargetKeyword)); err != nil {
		return err
	}
	return txn.Delete(tsKey(sr.Timestamp, sr.TargetKeyword))
}

// Upsert writes each record as a whole-record replacement, stamping it
// pending. The cache does not arbitrate conflicting timestamps; merging
// against remote copies is the sync manager's job.
func (s *Store) Upsert(records []models.TrendsRecord) error {
	now := nowMillis()
	return s.db.Update(func(txn *badger.Txn) error {
		for _, r := range records {
			sr := storedRecord{
				TrendsRecord: r,
				SyncState: models.SyncState{
					LastSynced: now,
					Status:     models.SyncStatusPending,
				},
			}
			if err := writeRecord(txn, sr); err != nil {
				return fmt.Errorf("failed to upsert %q: %w", r.TargetKeyword, err)
			}
		}
		return nil
	})
}

// Get returns the record and its sync state for a keyword.
func (s *Store) Get(keyword string) (models.TrendsRecord, models.SyncState, bool, error) {
	var sr storedRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		sr, err = readRecord(txn, keyword)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return models.TrendsRecord{}, models.SyncState{}, false, nil
	}
	if err != nil {
		return models.TrendsRecord{}, models.SyncState{}, false, fmt.Errorf("failed to read %q: %w", keyword, err)
	}
	return sr.TrendsRecord, sr.SyncState, true, nil
}

// Query returns records matching the filter.
func (s *Store) Query(f Filter) ([]models.TrendsRecord, error) {
	var out []models.TrendsRecord
	search := strings.ToLower(f.Search)
	err := s.iterate(func(sr storedRecord) error {
		if f.Reviewed != nil && sr.Reviewed != *f.Reviewed {
			return nil
		}
		if search != "" && !strings.Contains(strings.ToLower(sr.TargetKeyword), search) {
			return nil
		}
		out = append(out, sr.TrendsRecord)
		return nil
	})
	if err != nil {
		return nil, err
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

// SetReviewed flips the reviewed flag on the patched keywords and marks each
// touched record pending. Keywords not in the cache are silently skipped.
func (s *Store) SetReviewed(p models.ReviewedPatch) error {
	now := nowMillis()
	return s.db.Update(func(txn *badger.Txn) error {
		for _, kw := range p.Keywords {
			sr, err := readRecord(txn, kw)
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read %q: %w", kw, err)
			}
			sr.Reviewed = p.Reviewed
			sr.Timestamp = now
			sr.SyncState = models.SyncState{LastSynced: now, Status: models.SyncStatusPending}
			if err := writeRecord(txn, sr); err != nil {
				return fmt.Errorf("failed to update %q: %w", kw, err)
			}
		}
		return nil
	})
}

// DeleteReviewed removes every reviewed record, walking the reviewed index.
func (s *Store) DeleteReviewed() error {
	keywords, err := s.keywordsByReviewed(true)
	if err != nil {
		return err
	}
	return s.Delete(keywords)
}

// Delete removes the given keywords. Missing keywords are skipped.
func (s *Store) Delete(keywords []string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, kw := range keywords {
			sr, err := readRecord(txn, kw)
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read %q: %w", kw, err)
			}
			if err := deleteRecord(txn, sr); err != nil {
				return fmt.Errorf("failed to delete %q: %w", kw, err)
			}
		}
		return nil
	})
}

// PendingSyncs returns records with local-only changes not yet confirmed
// persisted remotely. Records stuck in the error state count as pending so
// the next sync run retries them.
func (s *Store) PendingSyncs() ([]models.TrendsRecord, error) {
	var out []models.TrendsRecord
	err := s.iterate(func(sr storedRecord) error {
		if sr.SyncState.Status != models.SyncStatusSynced {
			out = append(out, sr.TrendsRecord)
		}
		return nil
	})
	return out, err
}

// PatchSyncState applies a sync state patch to the given keywords. A zero
// LastSynced in the patch keeps each record's existing stamp.
func (s *Store) PatchSyncState(keywords []string, p models.SyncStatePatch) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, kw := range keywords {
			sr, err := readRecord(txn, kw)
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read %q: %w", kw, err)
			}
			sr.SyncState.Status = p.Status
			if p.LastSynced > 0 {
				sr.SyncState.LastSynced = p.LastSynced
			}
			if err := writeRecord(txn, sr); err != nil {
				return fmt.Errorf("failed to patch %q: %w", kw, err)
			}
		}
		return nil
	})
}

// MarkSynced stamps the given keywords synced as of now.
func (s *Store) MarkSynced(keywords []string) error {
	return s.PatchSyncState(keywords, models.SyncStatePatch{
		Status:     models.SyncStatusSynced,
		LastSynced: nowMillis(),
	})
}

// LastSyncedAt returns the maximum last-synced instant across all records.
// The second return is false when the cache is empty.
func (s *Store) LastSyncedAt() (time.Time, bool, error) {
	var latest int64
	var found bool
	err := s.iterate(func(sr storedRecord) error {
		if sr.SyncState.LastSynced > latest {
			latest = sr.SyncState.LastSynced
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return time.Time{}, false, err
	}
	return time.UnixMilli(latest), true, nil
}

// Clear wipes the cache, used before a full remote-driven reload.
func (s *Store) Clear() error {
	return s.db.DropAll()
}

// iterate walks every stored record.
func (s *Store) iterate(fn func(storedRecord) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var sr storedRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sr)
			})
			if err != nil {
				return fmt.Errorf("failed to decode record: %w", err)
			}
			if err := fn(sr); err != nil {
				return err
			}
		}
		return nil
	})
}

// keywordsByReviewed reads keyword names out of the reviewed index.
func (s *Store) keywordsByReviewed(reviewed bool) ([]string, error) {
	flag := "0:"
	if reviewed {
		flag = "1:"
	}
	prefix := []byte(reviewedPrefix + flag)
	var keywords []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			keywords = append(keywords, string(key[len(prefix):]))
		}
		return nil
	})
	return keywords, err
}
