// ABOUTME: Sync CLI commands
// ABOUTME: Runs manual syncs and full cache rebuilds from the remote store
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/harperreed/trendscope/remote"
	"github.com/harperreed/trendscope/sync"
)

// SyncCommand pushes pending local changes and pulls remote updates.
func SyncCommand(m *sync.Manager, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	_ = fs.Parse(args)

	fmt.Println("Syncing with remote store...")
	if err := m.Sync(context.Background()); err != nil {
		if errors.Is(err, remote.ErrNotAuthenticated) {
			return fmt.Errorf("not authenticated. Run 'trendscope auth init' first")
		}
		var failure *sync.SyncFailure
		if errors.As(err, &failure) {
			fmt.Printf("⚠️  Persisted %d record(s), %d still pending\n",
				failure.Persisted, failure.Remaining)
		}
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("✓ Synced, %d keyword(s) tracked\n", len(m.Records()))
	return nil
}

// InitCommand rebuilds the local cache from the remote store.
func InitCommand(m *sync.Manager, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	includeReviewed := fs.Bool("include-reviewed", false, "Also load reviewed keywords")
	_ = fs.Parse(args)

	fmt.Println("Rebuilding local cache from remote store...")
	if err := m.Initialize(context.Background(), *includeReviewed); err != nil {
		if errors.Is(err, remote.ErrNotAuthenticated) {
			return fmt.Errorf("not authenticated. Run 'trendscope auth init' first")
		}
		return fmt.Errorf("initialize failed: %w", err)
	}

	fmt.Printf("✓ Loaded %d keyword(s)\n", len(m.Records()))
	return nil
}
