// ABOUTME: Upload CLI command
// ABOUTME: Parses trends CSV exports and stores them through the sync manager
package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/harperreed/trendscope/ingest"
	"github.com/harperreed/trendscope/sync"
)

// UploadCommand parses one or more CSV export files and uploads them.
func UploadCommand(m *sync.Manager, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	_ = fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		return fmt.Errorf("upload requires at least one CSV file")
	}

	records, errs := ingest.ParseFiles(paths)
	for _, err := range errs {
		fmt.Printf("⚠️  %v\n", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("no files could be parsed")
	}

	if err := m.Upload(context.Background(), records); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	fmt.Printf("✓ Uploaded %d of %d file(s)\n", len(records), len(paths))
	for _, r := range records {
		fmt.Printf("  %s (weekly volume: %d)\n", r.TargetKeyword, r.LastWeekVolume)
	}
	return nil
}
