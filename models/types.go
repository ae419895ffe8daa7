// ABOUTME: Data models for keyword trends records
// ABOUTME: Defines TrendsRecord, ComparisonPoint, chart config, sync state, and patch types
package models

import (
	"fmt"
	"math"
)

// ComparisonPoint is one sampled date from a trends export: the reference
// series (gpts), the target keyword series, and the volumes derived from
// their ratio.
type ComparisonPoint struct {
	Date          string  `json:"date"` // ISO calendar date (YYYY-MM-DD)
	GPTs          float64 `json:"gpts"`
	Keyword       float64 `json:"keyword"`
	DailyVolume   int64   `json:"dailyVolume"`
	MonthlyVolume int64   `json:"monthlyVolume"`
}

// ChartConfig is display metadata carried with a record. The sync engine
// treats it as opaque.
type ChartConfig struct {
	Title          string          `json:"title"`
	TimeRange      string          `json:"timeRange"`
	DisplayOptions map[string]bool `json:"displayOptions,omitempty"`
}

// TrendsRecord is one uploaded keyword's time series and metadata.
//
// TargetKeyword is the business key: two records with the same keyword are
// the same logical entity regardless of ID. ID is assigned at ingestion and
// kept for provenance only.
type TrendsRecord struct {
	ID             string            `json:"id"`
	TargetKeyword  string            `json:"targetKeyword"`
	FileName       string            `json:"fileName,omitempty"`
	Timestamp      int64             `json:"timestamp"` // unix milliseconds, last local mutation
	ComparisonData []ComparisonPoint `json:"comparisonData"`
	LastWeekVolume int64             `json:"lastWeekVolume"`
	Reviewed       bool              `json:"reviewed"`
	ChartConfig    *ChartConfig      `json:"chartConfig,omitempty"`
}

// Sync status values for cache-local records.
const (
	SyncStatusSynced  = "synced"
	SyncStatusPending = "pending"
	SyncStatusError   = "error"
)

// SyncState tags a cached record with its replication status. It lives only
// in the local cache and is never sent to the remote store.
type SyncState struct {
	LastSynced int64  `json:"lastSynced"` // unix milliseconds
	Status     string `json:"status"`
}

// ReviewedPatch is a partial update flipping the reviewed flag on a set of
// keywords.
type ReviewedPatch struct {
	Keywords []string
	Reviewed bool
}

// SyncStatePatch is a partial update to a record's sync state.
type SyncStatePatch struct {
	Status     string
	LastSynced int64
}

// ValidationError reports a malformed record at the ingestion boundary.
// It is non-fatal to the surrounding batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s %s", e.Field, e.Reason)
}

// Validate checks the structural invariants a record must satisfy before it
// may enter either store.
func (r *TrendsRecord) Validate() error {
	if r.TargetKeyword == "" {
		return &ValidationError{Field: "targetKeyword", Reason: "is empty"}
	}
	if len(r.ComparisonData) == 0 {
		return &ValidationError{Field: "comparisonData", Reason: "is empty"}
	}
	for _, p := range r.ComparisonData {
		if p.DailyVolume < 0 || p.MonthlyVolume < 0 {
			return &ValidationError{Field: "comparisonData", Reason: "has negative volume"}
		}
		if math.IsNaN(p.Keyword) || math.IsInf(p.Keyword, 0) ||
			math.IsNaN(p.GPTs) || math.IsInf(p.GPTs, 0) {
			return &ValidationError{Field: "comparisonData", Reason: "has non-finite value"}
		}
	}
	return nil
}

// HasVolume reports whether the record carries any measurable search volume.
// Records where both the trailing-week volume and the average monthly volume
// are exactly zero are rejected at ingestion.
func (r *TrendsRecord) HasVolume() bool {
	return r.LastWeekVolume != 0 || r.AverageMonthlyVolume() != 0
}

// AverageMonthlyVolume is the mean monthly volume across the whole series.
func (r *TrendsRecord) AverageMonthlyVolume() float64 {
	if len(r.ComparisonData) == 0 {
		return 0
	}
	var sum int64
	for _, p := range r.ComparisonData {
		sum += p.MonthlyVolume
	}
	return float64(sum) / float64(len(r.ComparisonData))
}

// ComputeLastWeekVolume is the average daily volume over the trailing 7
// points, or fewer if the series is shorter.
func ComputeLastWeekVolume(points []ComparisonPoint) int64 {
	if len(points) == 0 {
		return 0
	}
	tail := points
	if len(tail) > 7 {
		tail = tail[len(tail)-7:]
	}
	var sum int64
	for _, p := range tail {
		sum += p.DailyVolume
	}
	return int64(math.Round(float64(sum) / float64(len(tail))))
}
