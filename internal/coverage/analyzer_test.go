package coverage

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/propagation"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/visibility"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func mustLocation(t *testing.T, name string, lat, lon float64) visibility.GroundLocation {
	t.Helper()
	loc, err := visibility.NewGroundLocation(name, lat, lon, 0)
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

// syntheticTrack builds a track that sits directly over (lat, lon) during the
// sample indices in overhead, and over the antipode otherwise.
func syntheticTrack(noradID int, start time.Time, interval time.Duration, steps int, lat, lon float64, overhead func(i int) bool) propagation.Track {
	track := propagation.Track{NORADID: noradID, Samples: make([]propagation.Sample, steps)}
	for i := 0; i < steps; i++ {
		s := propagation.Sample{
			Time:    start.Add(time.Duration(i) * interval),
			AltKm:   550,
			NORADID: noradID,
		}
		if overhead(i) {
			s.LatDeg, s.LonDeg = lat, lon
		} else {
			s.LatDeg, s.LonDeg = -lat, lon+180
			if s.LonDeg >= 180 {
				s.LonDeg -= 360
			}
		}
		track.Samples[i] = s
	}
	return track
}

func analyzerConfig() Config {
	return Config{
		MinElevationDeg:    10,
		SampleInterval:     time.Minute,
		Window:             time.Hour,
		HeatmapCellSizeDeg: 2,
		Workers:            2,
	}
}

func TestAnalyzeSinglePass(t *testing.T) {
	loc := mustLocation(t, "seattle", 47.6062, -122.3321)
	track := syntheticTrack(1, t0, time.Minute, 61, loc.LatDeg, loc.LonDeg, func(i int) bool {
		return i >= 10 && i <= 15
	})

	a := NewAnalyzer(analyzerConfig(), testLogger())
	res, err := a.Analyze(context.Background(), []propagation.Track{track}, []visibility.GroundLocation{loc}, t0)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(res.Reports))
	}
	rep := res.Reports[0]
	if rep.PassCount != 1 {
		t.Fatalf("pass count = %d, want 1", rep.PassCount)
	}
	if rep.CoveragePct <= 0 || rep.CoveragePct > 100 {
		t.Errorf("coverage = %.4f%% out of range", rep.CoveragePct)
	}
	if rep.Passes[0].PeakElevationDeg < 80 {
		t.Errorf("overhead peak elevation = %.1f, want near 90", rep.Passes[0].PeakElevationDeg)
	}
	if len(rep.Gaps) != 2 {
		t.Errorf("expected leading and trailing gaps, got %d", len(rep.Gaps))
	}
}

// TestAnalyzeUnionNotSum: a second satellite with an identical overhead
// window must not change the coverage percentage.
func TestAnalyzeUnionNotSum(t *testing.T) {
	loc := mustLocation(t, "london", 51.5074, -0.1278)
	visibleWindow := func(i int) bool { return i >= 20 && i <= 30 }

	sat1 := syntheticTrack(1, t0, time.Minute, 61, loc.LatDeg, loc.LonDeg, visibleWindow)
	sat2 := syntheticTrack(2, t0, time.Minute, 61, loc.LatDeg, loc.LonDeg, visibleWindow)

	a := NewAnalyzer(analyzerConfig(), testLogger())

	resSingle, err := a.Analyze(context.Background(), []propagation.Track{sat1}, []visibility.GroundLocation{loc}, t0)
	if err != nil {
		t.Fatal(err)
	}
	resDouble, err := a.Analyze(context.Background(), []propagation.Track{sat1, sat2}, []visibility.GroundLocation{loc}, t0)
	if err != nil {
		t.Fatal(err)
	}

	single := resSingle.Reports[0]
	double := resDouble.Reports[0]

	if math.Abs(single.CoveragePct-double.CoveragePct) > 1e-9 {
		t.Errorf("concurrent visibility double-counted: %.6f%% vs %.6f%%", single.CoveragePct, double.CoveragePct)
	}
	if double.PassCount != 2 {
		t.Errorf("pass count = %d, want 2", double.PassCount)
	}
}

// TestAnalyzeThresholdMonotone: raising the elevation threshold never
// increases pass count or total covered time for a fixed trajectory.
func TestAnalyzeThresholdMonotone(t *testing.T) {
	loc := mustLocation(t, "tokyo", 35.6762, 139.6503)

	// A track that drifts across the sky: samples at increasing angular
	// offsets from the observer produce a range of elevations.
	track := propagation.Track{NORADID: 1}
	for i := 0; i < 40; i++ {
		offset := math.Abs(float64(i) - 20.0) // degrees away from overhead
		track.Samples = append(track.Samples, propagation.Sample{
			Time:    t0.Add(time.Duration(i) * time.Minute),
			LatDeg:  loc.LatDeg + offset/2,
			LonDeg:  loc.LonDeg,
			AltKm:   550,
			NORADID: 1,
		})
	}

	prevCovered := math.MaxFloat64
	prevCount := len(track.Samples) + 1
	for _, minEl := range []float64{5, 15, 30, 50, 70} {
		cfg := analyzerConfig()
		cfg.MinElevationDeg = minEl
		a := NewAnalyzer(cfg, testLogger())

		res, err := a.Analyze(context.Background(), []propagation.Track{track}, []visibility.GroundLocation{loc}, t0)
		if err != nil {
			t.Fatal(err)
		}
		rep := res.Reports[0]

		if rep.PassCount > prevCount {
			t.Errorf("threshold %.0f: pass count increased to %d", minEl, rep.PassCount)
		}
		if rep.CoveragePct > prevCovered {
			t.Errorf("threshold %.0f: coverage increased to %.4f%%", minEl, rep.CoveragePct)
		}
		prevCount = rep.PassCount
		prevCovered = rep.CoveragePct
	}
}

func TestAnalyzeNoSamples(t *testing.T) {
	loc := mustLocation(t, "nowhere", 0, 0)
	a := NewAnalyzer(analyzerConfig(), testLogger())

	// One satellite with an empty track: zero passes, not an error.
	res, err := a.Analyze(context.Background(), []propagation.Track{{NORADID: 1}}, []visibility.GroundLocation{loc}, t0)
	if err != nil {
		t.Fatal(err)
	}

	rep := res.Reports[0]
	if rep.PassCount != 0 {
		t.Errorf("pass count = %d, want 0", rep.PassCount)
	}
	if rep.CoveragePct != 0 {
		t.Errorf("coverage = %.4f%%, want 0", rep.CoveragePct)
	}
	if len(rep.Gaps) != 1 {
		t.Errorf("expected single full-window gap, got %d", len(rep.Gaps))
	}
}

func TestAnalyzeHeatmapWeightConservation(t *testing.T) {
	loc := mustLocation(t, "anywhere", 10, 20)
	track := syntheticTrack(1, t0, time.Minute, 61, 10, 20, func(i int) bool { return i%2 == 0 })

	cfg := analyzerConfig()
	a := NewAnalyzer(cfg, testLogger())
	res, err := a.Analyze(context.Background(), []propagation.Track{track}, []visibility.GroundLocation{loc}, t0)
	if err != nil {
		t.Fatal(err)
	}

	wantWeight := float64(len(track.Samples)) * cfg.SampleInterval.Seconds()
	if got := res.Grid.TotalWeight(); math.Abs(got-wantWeight) > 1e-9 {
		t.Errorf("grid total weight = %.1f, want %.1f (no samples dropped)", got, wantWeight)
	}
}

func TestAnalyzeReportOrderMatchesLocations(t *testing.T) {
	locs := []visibility.GroundLocation{
		mustLocation(t, "a", 10, 10),
		mustLocation(t, "b", 20, 20),
		mustLocation(t, "c", 30, 30),
	}
	track := syntheticTrack(1, t0, time.Minute, 61, 20, 20, func(i int) bool { return i > 5 && i < 10 })

	a := NewAnalyzer(analyzerConfig(), testLogger())
	for trial := 0; trial < 5; trial++ {
		res, err := a.Analyze(context.Background(), []propagation.Track{track}, locs, t0)
		if err != nil {
			t.Fatal(err)
		}
		for i, rep := range res.Reports {
			if rep.Location != locs[i].Name {
				t.Fatalf("trial %d: report %d is for %q, want %q", trial, i, rep.Location, locs[i].Name)
			}
		}
	}
}

func TestAnalyzeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loc := mustLocation(t, "x", 0, 0)
	a := NewAnalyzer(analyzerConfig(), testLogger())
	if _, err := a.Analyze(ctx, nil, []visibility.GroundLocation{loc}, t0); err == nil {
		t.Fatal("expected context error, got nil")
	}
}
