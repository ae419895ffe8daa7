// ABOUTME: Purge CLI command
// ABOUTME: Permanently deletes reviewed keywords locally and remotely
package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/harperreed/trendscope/sync"
)

// PurgeCommand deletes every reviewed keyword from both stores. Without
// --confirm it asks interactively when stdin is a terminal, and refuses
// otherwise.
func PurgeCommand(m *sync.Manager, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	confirm := fs.Bool("confirm", false, "Confirm purge operation")
	_ = fs.Parse(args)

	count := 0
	for _, r := range m.Records() {
		if r.Reviewed {
			count++
		}
	}
	if count == 0 {
		fmt.Println("No reviewed keywords to purge")
		return nil
	}

	if !*confirm {
		if !term.IsTerminal(int(syscall.Stdin)) {
			fmt.Printf("⚠️  WARNING: This will permanently delete %d reviewed keyword(s)!\n", count)
			fmt.Println("  - Removed from the local cache and the remote store")
			fmt.Println("  - This action cannot be undone")
			fmt.Println()
			fmt.Println("To proceed, run: trendscope purge --confirm")
			return nil
		}

		fmt.Printf("Permanently delete %d reviewed keyword(s)? [y/N] ", count)
		reader := bufio.NewReader(os.Stdin)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read answer: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := m.PurgeReviewed(context.Background()); err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	fmt.Printf("✓ Purged %d reviewed keyword(s)\n", count)
	return nil
}
