// ABOUTME: Tests for the trends CSV export parser
// ABOUTME: Covers header extraction, value normalization, and malformed input handling
package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/trendscope/models"
)

const sampleCSV = `Category: All categories

Day,GPTs: (Worldwide),golang: (Worldwide)
2026-08-01,50,25
2026-08-02,50,<1
2026/8/3,40,80
`

func TestParseExtractsKeywordAndPoints(t *testing.T) {
	record, err := Parse(strings.NewReader(sampleCSV), "golang.csv")
	require.NoError(t, err)

	assert.Equal(t, "golang", record.TargetKeyword)
	assert.Equal(t, "golang.csv", record.FileName)
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.Reviewed)
	require.Len(t, record.ComparisonData, 3)

	first := record.ComparisonData[0]
	assert.Equal(t, "2026-08-01", first.Date)
	assert.Equal(t, float64(50), first.GPTs)
	assert.Equal(t, float64(25), first.Keyword)
	assert.Equal(t, int64(2500), first.DailyVolume)
	assert.Equal(t, int64(75000), first.MonthlyVolume)

	require.NotNil(t, record.ChartConfig)
	assert.Equal(t, "golang vs GPTs", record.ChartConfig.Title)
	assert.Equal(t, "2026-08-01 - 2026-08-03", record.ChartConfig.TimeRange)
}

func TestParseBelowResolutionValue(t *testing.T) {
	record, err := Parse(strings.NewReader(sampleCSV), "golang.csv")
	require.NoError(t, err)

	point := record.ComparisonData[1]
	assert.Equal(t, 0.5, point.Keyword)
	assert.Equal(t, int64(50), point.DailyVolume)
	assert.Equal(t, int64(1500), point.MonthlyVolume)
}

func TestParseNormalizesSlashDates(t *testing.T) {
	record, err := Parse(strings.NewReader(sampleCSV), "golang.csv")
	require.NoError(t, err)

	point := record.ComparisonData[2]
	assert.Equal(t, "2026-08-03", point.Date)
	assert.Equal(t, int64(10000), point.DailyVolume)
}

func TestParseZeroReferenceYieldsZeroVolume(t *testing.T) {
	csv := "a\nb\nDay,GPTs,golang\n2026-08-01,0,40\n"
	record, err := Parse(strings.NewReader(csv), "golang.csv")
	require.NoError(t, err)

	point := record.ComparisonData[0]
	assert.Equal(t, int64(0), point.DailyVolume)
	assert.Equal(t, int64(0), point.MonthlyVolume)
}

func TestParseSkipsMalformedRows(t *testing.T) {
	csv := `a
b
Day,GPTs: (Worldwide),golang: (Worldwide)
2026-08-01,50,25
not-a-date,50,25

2026-08-02,junk,25
short,line
2026-08-03,50,75
`
	record, err := Parse(strings.NewReader(csv), "golang.csv")
	require.NoError(t, err)

	require.Len(t, record.ComparisonData, 2)
	assert.Equal(t, "2026-08-01", record.ComparisonData[0].Date)
	assert.Equal(t, "2026-08-03", record.ComparisonData[1].Date)
}

func TestParseSortsAndDeduplicatesDates(t *testing.T) {
	csv := `a
b
Day,GPTs: (Worldwide),golang: (Worldwide)
2026-08-03,50,30
2026-08-01,50,25
2026-08-02,50,10
2026-08-02,50,90
`
	record, err := Parse(strings.NewReader(csv), "golang.csv")
	require.NoError(t, err)

	require.Len(t, record.ComparisonData, 3)
	assert.Equal(t, "2026-08-01", record.ComparisonData[0].Date)
	assert.Equal(t, "2026-08-02", record.ComparisonData[1].Date)
	assert.Equal(t, "2026-08-03", record.ComparisonData[2].Date)

	// The later row for a repeated date wins.
	assert.Equal(t, float64(90), record.ComparisonData[1].Keyword)
	assert.Equal(t, "2026-08-01 - 2026-08-03", record.ChartConfig.TimeRange)
}

func TestParseQuotedCells(t *testing.T) {
	csv := "a\nb\n\"Day\",\"GPTs: (Worldwide)\",\"machine learning: (United States)\"\n\"2026-08-01\",\"50\",\"25\"\n"
	record, err := Parse(strings.NewReader(csv), "ml.csv")
	require.NoError(t, err)

	assert.Equal(t, "machine learning", record.TargetKeyword)
	require.Len(t, record.ComparisonData, 1)
	assert.Equal(t, int64(2500), record.ComparisonData[0].DailyVolume)
}

func TestParseKeywordWithoutRegionSuffix(t *testing.T) {
	csv := "a\nb\nDay,GPTs,rust\n2026-08-01,50,25\n"
	record, err := Parse(strings.NewReader(csv), "rust.csv")
	require.NoError(t, err)
	assert.Equal(t, "rust", record.TargetKeyword)
}

func TestParseLastWeekVolume(t *testing.T) {
	var b strings.Builder
	b.WriteString("a\nb\nDay,GPTs,golang\n")
	// Ten days at 10, then seven days at 50: only the trailing week counts.
	for i := 1; i <= 10; i++ {
		b.WriteString("2026-08-" + pad(i) + ",50,10\n")
	}
	for i := 11; i <= 17; i++ {
		b.WriteString("2026-08-" + pad(i) + ",50,50\n")
	}

	record, err := Parse(strings.NewReader(b.String()), "golang.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), record.LastWeekVolume)
	assert.Equal(t, record.LastWeekVolume, models.ComputeLastWeekVolume(record.ComparisonData))
}

func pad(n int) string {
	if n < 10 {
		return "0" + string(rune('0'+n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		reason string
	}{
		{"empty file", "", "missing header line"},
		{"no header", "a\nb\n", "missing header line"},
		{"narrow header", "a\nb\nDay,GPTs\n", "too few columns"},
		{"blank keyword", "a\nb\nDay,GPTs,: (Worldwide)\n2026-08-01,50,25\n", "no target keyword"},
		{"no data", "a\nb\nDay,GPTs,golang\n", "no valid data rows"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.input), "bad.csv")
			require.Error(t, err)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, perr.Reason, tc.reason)
			assert.Contains(t, err.Error(), "bad.csv")
		})
	}
}

func TestParseFilesCollectsErrors(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "golang.csv")
	bad := filepath.Join(dir, "broken.csv")
	require.NoError(t, os.WriteFile(good, []byte(sampleCSV), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))

	records, errs := ParseFiles([]string{good, bad, filepath.Join(dir, "missing.csv")})
	require.Len(t, records, 1)
	assert.Equal(t, "golang", records[0].TargetKeyword)
	assert.Len(t, errs, 2)
}
