// ABOUTME: List CLI command
// ABOUTME: Prints tracked keywords with freshness scores and volumes
package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/harperreed/trendscope/models"
	"github.com/harperreed/trendscope/sync"
)

// ListCommand lists tracked keywords.
func ListCommand(m *sync.Manager, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	reviewedOnly := fs.Bool("reviewed", false, "Show only reviewed keywords")
	unreviewedOnly := fs.Bool("unreviewed", false, "Show only unreviewed keywords")
	query := fs.String("query", "", "Search by keyword")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	if *reviewedOnly && *unreviewedOnly {
		return fmt.Errorf("--reviewed and --unreviewed are mutually exclusive")
	}

	search := strings.ToLower(*query)
	var matched []models.TrendsRecord
	for _, r := range m.Records() {
		if *reviewedOnly && !r.Reviewed {
			continue
		}
		if *unreviewedOnly && r.Reviewed {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(r.TargetKeyword), search) {
			continue
		}
		matched = append(matched, r)
		if *limit > 0 && len(matched) >= *limit {
			break
		}
	}

	if len(matched) == 0 {
		fmt.Println("No keywords found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEYWORD\tFRESHNESS\tWEEKLY VOL\tMONTHLY VOL\tREVIEWED\tUPDATED")
	fmt.Fprintln(w, "-------\t---------\t----------\t-----------\t--------\t-------")

	for _, r := range matched {
		reviewed := "-"
		if r.Reviewed {
			reviewed = "yes"
		}
		updated := time.UnixMilli(r.Timestamp).Format("2006-01-02")
		fmt.Fprintf(w, "%s\t%d\t%d\t%.0f\t%s\t%s\n",
			r.TargetKeyword,
			models.FreshnessScore(r.ComparisonData),
			r.LastWeekVolume,
			r.AverageMonthlyVolume(),
			reviewed,
			updated)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d keyword(s)\n", len(matched))
	return nil
}
