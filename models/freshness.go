// ABOUTME: Freshness score classification for keyword time series
// ABOUTME: Awards 0-100 based on the smallest lookback window showing a traffic surge
package models

import (
	"sort"
	"time"
)

// Freshness policy constants. The noise fraction sets the floor below which
// recent traffic is ignored (as a fraction of the series mean); the growth
// ratio is the minimum recent/older multiple that counts as a surge. Both
// are policy choices, not derived values.
const (
	FreshnessNoiseFraction = 0.1
	FreshnessGrowthRatio   = 2.0
)

// FreshnessFloor is returned when no lookback window qualifies (flat or
// long-established traffic).
const FreshnessFloor = 10

// freshnessWindows is the lookback ladder, smallest first. Days == 0 marks
// the unbounded window.
var freshnessWindows = []struct {
	Days  int
	Score int
}{
	{7, 100},
	{14, 90},
	{30, 80},
	{60, 60},
	{90, 40},
	{180, 20},
	{0, 10},
}

// FreshnessScore estimates how recently a keyword's search interest became
// active, in [0, 100]. The score of the first window where the recent
// average clears the noise floor and is at least FreshnessGrowthRatio times
// the older average is awarded. Empty input scores 0.
func FreshnessScore(points []ComparisonPoint) int {
	if len(points) == 0 {
		return 0
	}

	type sample struct {
		date  time.Time
		value float64
	}
	samples := make([]sample, 0, len(points))
	var total float64
	for _, p := range points {
		d, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			continue
		}
		samples = append(samples, sample{date: d, value: p.Keyword})
		total += p.Keyword
	}
	if len(samples) == 0 {
		return 0
	}

	// Input is expected newest-last but not trusted to be.
	sort.Slice(samples, func(i, j int) bool { return samples[i].date.After(samples[j].date) })

	latest := samples[0].date
	threshold := FreshnessNoiseFraction * (total / float64(len(samples)))

	for _, w := range freshnessWindows {
		var recentSum, olderSum float64
		var recentN, olderN int
		for _, s := range samples {
			if w.Days == 0 || s.date.After(latest.AddDate(0, 0, -w.Days)) {
				recentSum += s.value
				recentN++
			} else {
				olderSum += s.value
				olderN++
			}
		}
		if recentN == 0 {
			continue
		}
		recentAvg := recentSum / float64(recentN)
		var olderAvg float64
		if olderN > 0 {
			olderAvg = olderSum / float64(olderN)
		}
		if recentAvg <= threshold {
			continue
		}
		if olderAvg == 0 || recentAvg/olderAvg >= FreshnessGrowthRatio {
			return w.Score
		}
	}
	return FreshnessFloor
}
