package coverage

import (
	"sort"
	"time"
)

// Gap is an interval during which no satellite is visible from a location.
// Passes and gaps together partition the analysis window exactly.
type Gap struct {
	Location string    `json:"location"`
	Start    time.Time `json:"start_time"`
	End      time.Time `json:"end_time"`
}

// Duration returns the gap length.
func (g Gap) Duration() time.Duration {
	return g.End.Sub(g.Start)
}

// Report is the coverage summary for one ground location over an analysis
// window. MaxGapSeconds is the primary revisit metric: the longest interval
// the location could go without contact.
type Report struct {
	Location       string    `json:"location"`
	LatDeg         float64   `json:"latitude"`
	LonDeg         float64   `json:"longitude"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	CoveragePct    float64   `json:"coverage_pct"`
	PassCount      int       `json:"pass_count"`
	MaxGapSeconds  float64   `json:"max_gap_s"`
	AvgGapSeconds  float64   `json:"avg_gap_s"`
	AvgPassSeconds float64   `json:"avg_pass_duration_s"`
	Passes         []Pass    `json:"passes"`
	Gaps           []Gap     `json:"gaps"`
}

// interval is a half-open covered time range used for the union computation.
type interval struct {
	start, end time.Time
}

// ComputeReport derives gap and revisit statistics from the passes observed
// at one location within [windowStart, windowEnd].
//
// Coverage is the union of pass intervals, not their sum: two satellites
// visible simultaneously cover the same seconds once. Gaps are the exact
// complement of that union within the window, including a leading gap before
// the first pass and a trailing gap after the last one. An empty pass set
// yields a single full-window gap and zero coverage, a valid result, not an
// error.
func ComputeReport(passes []Pass, location string, windowStart, windowEnd time.Time) Report {
	if passes == nil {
		passes = []Pass{}
	}
	rep := Report{
		Location:    location,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		PassCount:   len(passes),
		Passes:      passes,
		// Non-nil so full-coverage windows serialize as an empty JSON
		// array, not null.
		Gaps: []Gap{},
	}

	windowDur := windowEnd.Sub(windowStart).Seconds()
	if windowDur <= 0 {
		return rep
	}

	// Clamp pass intervals to the window and merge overlaps.
	merged := mergeIntervals(passes, windowStart, windowEnd)

	// Gaps are the complement of the merged covered intervals.
	cursor := windowStart
	gaps := []Gap{}
	for _, iv := range merged {
		if iv.start.After(cursor) {
			gaps = append(gaps, Gap{Location: location, Start: cursor, End: iv.start})
		}
		if iv.end.After(cursor) {
			cursor = iv.end
		}
	}
	if cursor.Before(windowEnd) {
		gaps = append(gaps, Gap{Location: location, Start: cursor, End: windowEnd})
	}
	rep.Gaps = gaps

	var covered float64
	for _, iv := range merged {
		covered += iv.end.Sub(iv.start).Seconds()
	}
	rep.CoveragePct = covered / windowDur * 100
	if rep.CoveragePct > 100 {
		rep.CoveragePct = 100
	} else if rep.CoveragePct < 0 {
		rep.CoveragePct = 0
	}

	if len(gaps) > 0 {
		var total float64
		for _, g := range gaps {
			d := g.Duration().Seconds()
			total += d
			if d > rep.MaxGapSeconds {
				rep.MaxGapSeconds = d
			}
		}
		rep.AvgGapSeconds = total / float64(len(gaps))
	}

	if len(passes) > 0 {
		var total float64
		for _, p := range passes {
			total += p.Duration().Seconds()
		}
		rep.AvgPassSeconds = total / float64(len(passes))
	}

	return rep
}

// mergeIntervals clamps pass intervals to the window, sorts them by start,
// and merges overlapping or touching intervals into a disjoint covered set.
func mergeIntervals(passes []Pass, windowStart, windowEnd time.Time) []interval {
	ivs := make([]interval, 0, len(passes))
	for _, p := range passes {
		start, end := p.Start, p.End
		if start.Before(windowStart) {
			start = windowStart
		}
		if end.After(windowEnd) {
			end = windowEnd
		}
		if !end.After(start) {
			continue // zero-length or entirely outside the window
		}
		ivs = append(ivs, interval{start: start, end: end})
	}

	sort.Slice(ivs, func(i, j int) bool {
		return ivs[i].start.Before(ivs[j].start)
	})

	merged := ivs[:0]
	for _, iv := range ivs {
		if n := len(merged); n > 0 && !iv.start.After(merged[n-1].end) {
			if iv.end.After(merged[n-1].end) {
				merged[n-1].end = iv.end
			}
			continue
		}
		merged = append(merged, iv)
	}

	return merged
}

// SortPasses orders passes by start time, breaking ties by NORAD ID so the
// merge of per-satellite pass lists is deterministic.
func SortPasses(passes []Pass) {
	sort.Slice(passes, func(i, j int) bool {
		if passes[i].Start.Equal(passes[j].Start) {
			return passes[i].NORADID < passes[j].NORADID
		}
		return passes[i].Start.Before(passes[j].Start)
	})
}
