// ABOUTME: Sync failure error carrying persistence progress counts
// ABOUTME: Surfaced when a push batch exhausts its retries or a step fails mid-run
package sync

import "fmt"

// SyncFailure reports a sync run that stopped partway through its push. The
// counts tell the caller how many pending records made it to the remote
// store and how many are still waiting; the local pending flags already
// reflect the same split, so re-running Sync resumes safely.
type SyncFailure struct {
	Persisted int
	Remaining int
	Err       error
}

func (e *SyncFailure) Error() string {
	return fmt.Sprintf("sync failed after persisting %d of %d records: %v",
		e.Persisted, e.Persisted+e.Remaining, e.Err)
}

func (e *SyncFailure) Unwrap() error { return e.Err }
