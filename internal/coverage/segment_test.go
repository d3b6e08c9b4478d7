package coverage

import (
	"testing"
	"time"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/visibility"
)

var t0 = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

// obsSeries builds a sampled observation sequence from elevation values at a
// fixed interval, applying the threshold the way the evaluator would.
func obsSeries(start time.Time, interval time.Duration, minElev float64, elevations []float64) []visibility.Observation {
	obs := make([]visibility.Observation, len(elevations))
	for i, el := range elevations {
		obs[i] = visibility.Observation{
			Time:         start.Add(time.Duration(i) * interval),
			ElevationDeg: el,
			Visible:      el >= minElev,
		}
	}
	return obs
}

func TestSegmentInterpolatesCrossings(t *testing.T) {
	// Elevation ramps -5 → 15 → 5 at 60s steps with a 10° threshold.
	// Linear interpolation puts the rise at t0+45s and the set at t0+90s.
	obs := obsSeries(t0, time.Minute, 10, []float64{-5, 15, 5})
	windowEnd := t0.Add(10 * time.Minute)

	passes := Segment(obs, 25544, "test", 10, windowEnd)
	if len(passes) != 1 {
		t.Fatalf("expected 1 pass, got %d", len(passes))
	}

	p := passes[0]
	if want := t0.Add(45 * time.Second); !p.Start.Equal(want) {
		t.Errorf("start = %v, want %v", p.Start, want)
	}
	if want := t0.Add(90 * time.Second); !p.End.Equal(want) {
		t.Errorf("end = %v, want %v", p.End, want)
	}
	if p.PeakElevationDeg != 15 {
		t.Errorf("peak = %.1f, want 15", p.PeakElevationDeg)
	}
	if p.Truncated {
		t.Error("pass within the window marked truncated")
	}
	if !p.End.After(p.Start) {
		t.Error("pass end not after start")
	}
}

func TestSegmentPeakTracking(t *testing.T) {
	obs := obsSeries(t0, 30*time.Second, 10, []float64{2, 12, 35, 61, 40, 18, 4})
	passes := Segment(obs, 1, "test", 10, t0.Add(time.Hour))
	if len(passes) != 1 {
		t.Fatalf("expected 1 pass, got %d", len(passes))
	}
	if passes[0].PeakElevationDeg != 61 {
		t.Errorf("peak = %.1f, want 61", passes[0].PeakElevationDeg)
	}
	if passes[0].PeakElevationDeg < 10 {
		t.Error("peak below the threshold that defined the pass")
	}
}

func TestSegmentMultiplePasses(t *testing.T) {
	obs := obsSeries(t0, time.Minute, 10, []float64{0, 20, 0, 0, 30, 40, 0})
	passes := Segment(obs, 1, "test", 10, t0.Add(time.Hour))
	if len(passes) != 2 {
		t.Fatalf("expected 2 passes, got %d", len(passes))
	}
	if !passes[0].End.Before(passes[1].Start) {
		t.Error("passes out of order or overlapping")
	}
}

func TestSegmentTruncatedAtWindowEnd(t *testing.T) {
	// Still visible when the sequence ends: close at windowEnd, flag it.
	obs := obsSeries(t0, time.Minute, 10, []float64{0, 20, 45})
	windowEnd := t0.Add(2 * time.Minute)

	passes := Segment(obs, 1, "test", 10, windowEnd)
	if len(passes) != 1 {
		t.Fatalf("expected 1 pass, got %d", len(passes))
	}
	p := passes[0]
	if !p.Truncated {
		t.Error("boundary pass not marked truncated")
	}
	if !p.End.Equal(windowEnd) {
		t.Errorf("truncated end = %v, want window end %v", p.End, windowEnd)
	}
}

func TestSegmentNoVisibility(t *testing.T) {
	obs := obsSeries(t0, time.Minute, 10, []float64{-20, -5, 3, 9, 2, -10})
	passes := Segment(obs, 1, "test", 10, t0.Add(time.Hour))
	if len(passes) != 0 {
		t.Fatalf("expected no passes, got %d", len(passes))
	}
}

func TestSegmentEmptyInput(t *testing.T) {
	if passes := Segment(nil, 1, "test", 10, t0.Add(time.Hour)); len(passes) != 0 {
		t.Fatalf("expected no passes for empty input, got %d", len(passes))
	}
}

// TestSegmentIsolatedSample verifies a single threshold-grazing sample is
// emitted as a short pass, not silently dropped; filtering is the report
// consumer's call.
func TestSegmentIsolatedSample(t *testing.T) {
	obs := obsSeries(t0, time.Minute, 10, []float64{0, 11, 0})
	passes := Segment(obs, 1, "test", 10, t0.Add(time.Hour))
	if len(passes) != 1 {
		t.Fatalf("expected 1 short pass, got %d", len(passes))
	}
	p := passes[0]
	if p.Duration() <= 0 {
		t.Errorf("interpolated isolated pass has non-positive duration %v", p.Duration())
	}
	if p.Duration() >= 2*time.Minute {
		t.Errorf("isolated pass duration %v should be under two sample intervals", p.Duration())
	}
}

func TestSegmentFirstSampleVisible(t *testing.T) {
	// No prior sample to interpolate against: start at the raw sample time.
	obs := obsSeries(t0, time.Minute, 10, []float64{25, 30, 5})
	passes := Segment(obs, 1, "test", 10, t0.Add(time.Hour))
	if len(passes) != 1 {
		t.Fatalf("expected 1 pass, got %d", len(passes))
	}
	if !passes[0].Start.Equal(t0) {
		t.Errorf("start = %v, want first sample time %v", passes[0].Start, t0)
	}
}

// TestSegmentThresholdMonotone: raising the threshold never increases the
// number of passes or the total covered duration.
func TestSegmentThresholdMonotone(t *testing.T) {
	elevations := []float64{-10, 2, 8, 14, 25, 40, 33, 19, 9, 1, -6, 5, 12, 22, 11, 3, -4}

	prevCount := len(elevations) + 1
	prevTotal := time.Duration(1<<62 - 1)
	for _, minEl := range []float64{0, 5, 10, 15, 20, 30} {
		obs := obsSeries(t0, 30*time.Second, minEl, elevations)
		passes := Segment(obs, 1, "test", minEl, t0.Add(time.Hour))

		var total time.Duration
		for _, p := range passes {
			total += p.Duration()
		}

		if len(passes) > prevCount {
			t.Errorf("threshold %.0f: pass count %d exceeds lower-threshold count %d", minEl, len(passes), prevCount)
		}
		if total > prevTotal {
			t.Errorf("threshold %.0f: total duration %v exceeds lower-threshold total %v", minEl, total, prevTotal)
		}
		prevCount = len(passes)
		prevTotal = total
	}
}
