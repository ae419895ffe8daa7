// ABOUTME: Remote store contract for durable trends record persistence
// ABOUTME: Defines the store interface, query filter, predicate, and error taxonomy
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/trendscope/models"
)

// ErrNotAuthenticated is returned when the remote backend is invoked without
// valid credentials. It is fatal to the current operation and never
// retryable; local state is left intact so the caller can re-authenticate
// and retry the whole operation.
var ErrNotAuthenticated = errors.New("remote: not authenticated")

// TransientError wraps a network, quota, or server-side failure that is safe
// to retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("remote: transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable under the backoff policy.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Filter selects records. A nil Reviewed spans both partitions. Search is a
// case-insensitive substring match on the target keyword.
type Filter struct {
	Reviewed *bool
	Search   string
	Limit    int
	Offset   int
}

// Predicate selects records for deletion. A nil Reviewed spans both
// partitions; an empty Keywords list matches every keyword.
type Predicate struct {
	Reviewed *bool
	Keywords []string
}

// Store is durable persistence for trends records, keyed by target keyword.
// Records live in one of two partitions according to their reviewed flag;
// upsert conflict resolution uses the keyword, never the generated ID.
type Store interface {
	// UpsertMany writes records into their partitions and returns the
	// persisted copies.
	UpsertMany(ctx context.Context, records []models.TrendsRecord) ([]models.TrendsRecord, error)

	// Query returns records matching the filter.
	Query(ctx context.Context, f Filter) ([]models.TrendsRecord, error)

	// UpdateReviewed patches the reviewed flag on the given keywords,
	// relocating each touched record into the matching partition, and
	// returns the records it touched.
	UpdateReviewed(ctx context.Context, keywords []string, reviewed bool) ([]models.TrendsRecord, error)

	// DeleteWhere removes every record matching the predicate.
	DeleteWhere(ctx context.Context, p Predicate) error

	// ChangedSince returns records whose server-side update instant is
	// strictly after the given time.
	ChangedSince(ctx context.Context, since time.Time) ([]models.TrendsRecord, error)
}

// storedRecord is the persisted remote layout: the record plus the server
// update stamp ChangedSince filters on.
type storedRecord struct {
	models.TrendsRecord
	UpdatedAt time.Time `json:"updatedAt"`
}

// Unauthenticated is a Store whose every operation fails with
// ErrNotAuthenticated. It backs commands that run before auth setup.
type Unauthenticated struct{}

func (Unauthenticated) UpsertMany(context.Context, []models.TrendsRecord) ([]models.TrendsRecord, error) {
	return nil, ErrNotAuthenticated
}

func (Unauthenticated) Query(context.Context, Filter) ([]models.TrendsRecord, error) {
	return nil, ErrNotAuthenticated
}

func (Unauthenticated) UpdateReviewed(context.Context, []string, bool) ([]models.TrendsRecord, error) {
	return nil, ErrNotAuthenticated
}

func (Unauthenticated) DeleteWhere(context.Context, Predicate) error {
	return ErrNotAuthenticated
}

func (Unauthenticated) ChangedSince(context.Context, time.Time) ([]models.TrendsRecord, error) {
	return nil, ErrNotAuthenticated
}
