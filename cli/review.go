// ABOUTME: Review CLI commands
// ABOUTME: Marks keywords reviewed or unreviewed and syncs the change
package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/harperreed/trendscope/sync"
)

// ReviewCommand marks the given keywords reviewed.
func ReviewCommand(m *sync.Manager, args []string) error {
	return setReviewed(m, "review", args, true)
}

// UnreviewCommand clears the reviewed flag on the given keywords.
func UnreviewCommand(m *sync.Manager, args []string) error {
	return setReviewed(m, "unreview", args, false)
}

func setReviewed(m *sync.Manager, name string, args []string, reviewed bool) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	_ = fs.Parse(args)

	keywords := fs.Args()
	if len(keywords) == 0 {
		return fmt.Errorf("%s requires at least one keyword", name)
	}

	byKeyword := make(map[string]string)
	for _, r := range m.Records() {
		byKeyword[r.TargetKeyword] = r.ID
	}

	var ids []string
	for _, kw := range keywords {
		id, ok := byKeyword[kw]
		if !ok {
			fmt.Printf("⚠️  Unknown keyword: %s\n", kw)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return fmt.Errorf("no matching keywords")
	}

	if err := m.SetReviewedStatus(context.Background(), ids, reviewed); err != nil {
		return fmt.Errorf("failed to update review status: %w", err)
	}

	verb := "reviewed"
	if !reviewed {
		verb = "unreviewed"
	}
	fmt.Printf("✓ Marked %d keyword(s) %s\n", len(ids), verb)
	return nil
}
