// Package coverage turns visibility observations into passes, gap/revisit
// statistics, and per-location coverage reports.
package coverage

import (
	"time"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/visibility"
)

// Pass is a contiguous interval during which one satellite stays above the
// elevation threshold from one ground location. Truncated marks a pass cut
// off by the analysis window end.
type Pass struct {
	NORADID          int       `json:"norad_id"`
	Location         string    `json:"location"`
	Start            time.Time `json:"start_time"`
	End              time.Time `json:"end_time"`
	PeakElevationDeg float64   `json:"peak_elevation"`
	Truncated        bool      `json:"truncated,omitempty"`
}

// Duration returns the pass length.
func (p Pass) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// segmenter is the per-(satellite, location) pass detection state machine.
// Two states: below the horizon (initial and terminal) and in a pass.
type segmenter struct {
	noradID    int
	location   string
	minElevDeg float64

	inPass    bool
	passStart time.Time
	peakElev  float64
	prev      visibility.Observation
	hasPrev   bool

	passes []Pass
}

// Segment converts a time-ordered observation sequence into discrete passes.
//
// Rise and set times are linearly interpolated between the samples that
// bracket the threshold crossing, so pass boundaries are more accurate than
// the sampling interval. A sequence that ends while still in a pass is closed
// at windowEnd and marked truncated. Isolated threshold-grazing samples
// produce very short passes; they are emitted as-is, and filtering policy
// belongs to the report consumer, keeping this a lossless transform.
//
// O(n) in the number of observations with O(1) auxiliary state.
func Segment(obs []visibility.Observation, noradID int, location string, minElevDeg float64, windowEnd time.Time) []Pass {
	sm := segmenter{
		noradID:    noradID,
		location:   location,
		minElevDeg: minElevDeg,
	}
	for _, o := range obs {
		sm.observe(o)
	}
	return sm.finish(windowEnd)
}

// observe advances the state machine by one observation.
func (sm *segmenter) observe(o visibility.Observation) {
	switch {
	case o.Visible && !sm.inPass:
		sm.inPass = true
		sm.passStart = sm.crossingTime(o)
		sm.peakElev = o.ElevationDeg

	case o.Visible && sm.inPass:
		if o.ElevationDeg > sm.peakElev {
			sm.peakElev = o.ElevationDeg
		}

	case !o.Visible && sm.inPass:
		sm.inPass = false
		sm.passes = append(sm.passes, Pass{
			NORADID:          sm.noradID,
			Location:         sm.location,
			Start:            sm.passStart,
			End:              sm.crossingTime(o),
			PeakElevationDeg: sm.peakElev,
		})
	}

	sm.prev = o
	sm.hasPrev = true
}

// finish closes a pass left open at the end of the sequence. The pass
// extends past the analysis window, so it is clamped to windowEnd and
// marked truncated; dropping it would break gap continuity at the boundary.
func (sm *segmenter) finish(windowEnd time.Time) []Pass {
	if sm.inPass {
		sm.passes = append(sm.passes, Pass{
			NORADID:          sm.noradID,
			Location:         sm.location,
			Start:            sm.passStart,
			End:              windowEnd,
			PeakElevationDeg: sm.peakElev,
			Truncated:        true,
		})
		sm.inPass = false
	}
	return sm.passes
}

// crossingTime estimates when the elevation crossed the threshold between
// the previous observation and o by linear interpolation. Falls back to the
// raw sample time when there is no bracketing sample or the elevations are
// degenerate.
func (sm *segmenter) crossingTime(o visibility.Observation) time.Time {
	if !sm.hasPrev || sm.prev.Visible == o.Visible {
		return o.Time
	}

	e0 := sm.prev.ElevationDeg
	e1 := o.ElevationDeg
	if e1 == e0 {
		return o.Time
	}

	frac := (sm.minElevDeg - e0) / (e1 - e0)
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}

	dt := o.Time.Sub(sm.prev.Time)
	return sm.prev.Time.Add(time.Duration(float64(dt) * frac))
}
