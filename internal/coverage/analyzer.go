package coverage

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/heatmap"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/metrics"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/propagation"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/visibility"
)

// Config holds the analysis parameters. Passed explicitly rather than read
// from ambient state so tests stay deterministic.
type Config struct {
	MinElevationDeg    float64       // visibility threshold (default: 10)
	SampleInterval     time.Duration // sampling interval (default: 30s)
	Window             time.Duration // analysis window (default: 24h)
	HeatmapCellSizeDeg float64       // density grid cell size (default: 2)
	Workers            int           // parallel locations (default: NumCPU)
}

// WithDefaults fills zero-valued fields with the standard defaults.
func (c Config) WithDefaults() Config {
	if c.MinElevationDeg == 0 {
		c.MinElevationDeg = 10
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = 30 * time.Second
	}
	if c.Window <= 0 {
		c.Window = 24 * time.Hour
	}
	if c.HeatmapCellSizeDeg <= 0 {
		c.HeatmapCellSizeDeg = 2
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	return c
}

// Result is the output of one full constellation analysis: one report per
// ground location plus one global density grid.
type Result struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Reports     []Report
	Grid        *heatmap.Grid
}

// Analyzer composes the evaluator, segmenter, gap calculator, and heatmap
// aggregator across a constellation and a set of ground locations.
type Analyzer struct {
	config Config
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer with defaults applied to the config.
func NewAnalyzer(config Config, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		config: config.WithDefaults(),
		logger: logger,
	}
}

// Config returns the analyzer's effective configuration.
func (a *Analyzer) Config() Config {
	return a.config
}

// Analyze runs the full coverage analysis over pre-materialized tracks.
//
// Per location: every sample of every satellite is evaluated for visibility,
// each satellite's observation sequence is segmented into passes, and the
// merged pass list feeds one gap computation. Coverage is the union of all
// satellites' visibility: two satellites overhead at once do not count
// twice. Locations are independent, so they run in parallel bounded by the
// worker count; results keep the caller's location order.
//
// The heatmap is aggregated once over all tracks, independent of locations.
// A satellite with no samples simply contributes no passes; that is not an
// error.
func (a *Analyzer) Analyze(ctx context.Context, tracks []propagation.Track, locations []visibility.GroundLocation, windowStart time.Time) (*Result, error) {
	windowStart = windowStart.UTC()
	windowEnd := windowStart.Add(a.config.Window)

	begin := time.Now()
	reports := make([]Report, len(locations))
	sem := make(chan struct{}, a.config.Workers)
	var wg sync.WaitGroup

	for i, loc := range locations {
		wg.Add(1)
		go func(idx int, loc visibility.GroundLocation) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			reports[idx] = a.analyzeLocation(ctx, tracks, loc, windowStart, windowEnd)
		}(i, loc)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	grid := heatmap.Aggregate(tracks, a.config.HeatmapCellSizeDeg, a.config.SampleInterval.Seconds())

	duration := time.Since(begin)
	var totalPasses int
	for _, r := range reports {
		totalPasses += r.PassCount
	}
	metrics.RecordAnalysis(duration, totalPasses)

	a.logger.Debug("coverage analysis complete",
		"locations", len(locations),
		"satellites", len(tracks),
		"passes", totalPasses,
		"grid_cells", grid.Len(),
		"duration_ms", duration.Milliseconds(),
	)

	return &Result{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Reports:     reports,
		Grid:        grid,
	}, nil
}

// analyzeLocation computes the coverage report for a single ground location.
func (a *Analyzer) analyzeLocation(ctx context.Context, tracks []propagation.Track, loc visibility.GroundLocation, windowStart, windowEnd time.Time) Report {
	var merged []Pass

	for _, track := range tracks {
		if ctx.Err() != nil {
			break
		}
		if len(track.Samples) == 0 {
			continue
		}

		obs := make([]visibility.Observation, len(track.Samples))
		for i, s := range track.Samples {
			obs[i] = visibility.Evaluate(s, loc, a.config.MinElevationDeg)
		}

		merged = append(merged, Segment(obs, track.NORADID, loc.Name, a.config.MinElevationDeg, windowEnd)...)
	}

	SortPasses(merged)

	rep := ComputeReport(merged, loc.Name, windowStart, windowEnd)
	rep.LatDeg = loc.LatDeg
	rep.LonDeg = loc.LonDeg
	return rep
}
