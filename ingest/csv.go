// ABOUTME: Parser for Google Trends comparison CSV exports
// ABOUTME: Converts raw export files into TrendsRecord values with derived volumes
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/trendscope/models"
)

// ReferenceDailyVolume is the assumed daily search volume of the reference
// series. Target volumes are derived from the ratio of the two series.
const ReferenceDailyVolume = 5000

// headerLineIndex is where the column header sits in a trends export: two
// metadata lines, then the header, then data.
const headerLineIndex = 2

// regionSuffix strips the locale qualifier trends appends to column names,
// e.g. "golang: (Worldwide)".
var regionSuffix = regexp.MustCompile(`: \([^)]*\)`)

// slashDate matches the alternate date layout some exports use.
var slashDate = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`)

// ParseError reports a file that could not be parsed at all. Individual bad
// data rows inside an otherwise valid file are skipped, not reported.
type ParseError struct {
	File   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %s: %s", e.File, e.Reason)
}

// Parse reads one trends comparison export and builds a record. The reader's
// content must follow the export layout: metadata lines, a header naming the
// reference series and the target keyword, then one row per date.
func Parse(r io.Reader, fileName string) (models.TrendsRecord, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return models.TrendsRecord{}, fmt.Errorf("failed to read %s: %w", fileName, err)
	}

	if len(lines) <= headerLineIndex || strings.TrimSpace(lines[headerLineIndex]) == "" {
		return models.TrendsRecord{}, &ParseError{File: fileName, Reason: "missing header line"}
	}

	header := splitLine(lines[headerLineIndex])
	if len(header) < 3 {
		return models.TrendsRecord{}, &ParseError{File: fileName, Reason: "header has too few columns"}
	}

	keyword := strings.TrimSpace(regionSuffix.ReplaceAllString(header[2], ""))
	if keyword == "" {
		return models.TrendsRecord{}, &ParseError{File: fileName, Reason: "no target keyword in header"}
	}

	var points []models.ComparisonPoint
	byDate := make(map[string]int)
	for _, line := range lines[headerLineIndex+1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := splitLine(line)
		if len(cells) < 3 {
			continue
		}
		point, ok := parsePoint(cells)
		if !ok {
			continue
		}
		// One point per date; a repeated date replaces the earlier row.
		if i, seen := byDate[point.Date]; seen {
			points[i] = point
			continue
		}
		byDate[point.Date] = len(points)
		points = append(points, point)
	}
	if len(points) == 0 {
		return models.TrendsRecord{}, &ParseError{File: fileName, Reason: "no valid data rows"}
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Date < points[j].Date
	})

	record := models.TrendsRecord{
		ID:             uuid.NewString(),
		TargetKeyword:  keyword,
		FileName:       fileName,
		Timestamp:      time.Now().UnixMilli(),
		ComparisonData: points,
		LastWeekVolume: models.ComputeLastWeekVolume(points),
		ChartConfig: &models.ChartConfig{
			Title:     keyword + " vs GPTs",
			TimeRange: points[0].Date + " - " + points[len(points)-1].Date,
			DisplayOptions: map[string]bool{
				"showLegend":  true,
				"showTooltip": true,
				"showVolume":  true,
			},
		},
	}
	return record, nil
}

// ParseFile opens and parses a single export file.
func ParseFile(path string) (models.TrendsRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.TrendsRecord{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, filepath.Base(path))
}

// ParseFiles parses each path, collecting records from the files that parse
// and errors from the ones that do not. The error slice is index-aligned
// with the inputs that failed, not with paths.
func ParseFiles(paths []string) ([]models.TrendsRecord, []error) {
	var records []models.TrendsRecord
	var errs []error
	for _, path := range paths {
		record, err := ParseFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, record)
	}
	return records, errs
}

// parsePoint converts one data row. Rows with an empty date or unparseable
// numbers are dropped.
func parsePoint(cells []string) (models.ComparisonPoint, bool) {
	date := normalizeDate(cells[0])
	if date == "" {
		return models.ComparisonPoint{}, false
	}

	gpts, ok := parseValue(cells[1])
	if !ok {
		return models.ComparisonPoint{}, false
	}
	target, ok := parseValue(cells[2])
	if !ok {
		return models.ComparisonPoint{}, false
	}

	var daily, monthly int64
	if gpts != 0 {
		d := target / gpts * ReferenceDailyVolume
		daily = int64(math.Round(d))
		monthly = int64(math.Round(d * 30))
	}

	return models.ComparisonPoint{
		Date:          date,
		GPTs:          gpts,
		Keyword:       target,
		DailyVolume:   daily,
		MonthlyVolume: monthly,
	}, true
}

// parseValue reads a trends interest value. The export writes "<1" for
// values below its resolution; those count as 0.5. An empty cell is 0.
func parseValue(cell string) (float64, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "<1" {
		return 0.5, true
	}
	if cell == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// normalizeDate accepts ISO dates and rewrites YYYY/M/D into ISO. Anything
// that does not parse as a calendar date comes back empty.
func normalizeDate(cell string) string {
	cell = strings.TrimSpace(cell)
	if m := slashDate.FindStringSubmatch(cell); m != nil {
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		cell = fmt.Sprintf("%s-%02d-%02d", m[1], month, day)
	}
	if _, err := time.Parse("2006-01-02", cell); err != nil {
		return ""
	}
	return cell
}

// splitLine is a quote-aware CSV split. Export rows never contain escaped
// quotes, so toggling on every quote character is enough.
func splitLine(line string) []string {
	var cells []string
	var cell strings.Builder
	inQuotes := false
	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteRune(ch)
		}
	}
	cells = append(cells, strings.TrimSpace(cell.String()))
	return cells
}
