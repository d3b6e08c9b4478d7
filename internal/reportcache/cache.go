// Package reportcache keeps precomputed coverage reports for the configured
// ground locations. A full constellation analysis over a 24h window is too
// expensive to run per request, so a background worker refreshes a snapshot
// on an interval and rebuilds it immediately when the TLE dataset changes.
// Readers always see a complete, consistent snapshot via an atomic swap.
package reportcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/coverage"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/heatmap"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/metrics"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/propagation"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/tle"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/transform"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/visibility"
)

// Config holds report cache configuration.
type Config struct {
	RefreshInterval time.Duration // snapshot max age (default: 15m)
	Locations       []visibility.GroundLocation
}

// Snapshot is one complete analysis result: reports for every configured
// location plus the global density grid. Immutable after construction.
type Snapshot struct {
	GeneratedAt      time.Time
	WindowStart      time.Time
	WindowEnd        time.Time
	Reports          []coverage.Report
	Grid             *heatmap.Grid
	DatasetSource    string
	DatasetFetchedAt time.Time

	// MeanAltitudeKm and FootprintRadiusKm describe the constellation's
	// typical coverage circle at the analysis threshold.
	MeanAltitudeKm    float64
	FootprintRadiusKm float64
}

// Cache owns the current snapshot and the background refresh loop.
type Cache struct {
	config   Config
	analyzer *coverage.Analyzer
	sampler  *propagation.Sampler
	store    *tle.Store
	logger   *slog.Logger

	snapshot atomic.Pointer[Snapshot]

	hits       atomic.Int64
	misses     atomic.Int64
	refreshing atomic.Bool
}

// New creates a report cache. Start must be called for the snapshot to be
// populated and kept fresh.
func New(config Config, analyzer *coverage.Analyzer, sampler *propagation.Sampler, store *tle.Store, logger *slog.Logger) *Cache {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = 15 * time.Minute
	}
	logger.Info("report cache initialized",
		"locations", len(config.Locations),
		"refresh_interval_seconds", config.RefreshInterval.Seconds(),
	)
	return &Cache{
		config:   config,
		analyzer: analyzer,
		sampler:  sampler,
		store:    store,
		logger:   logger,
	}
}

// Snapshot returns the current snapshot, or nil if no analysis has completed
// yet.
func (c *Cache) Snapshot() *Snapshot {
	snap := c.snapshot.Load()
	if snap == nil {
		c.misses.Add(1)
		metrics.IncReportCacheMisses()
		return nil
	}
	c.hits.Add(1)
	metrics.IncReportCacheHits()
	return snap
}

// Stats holds cache statistics for the stats/metadata surface.
type Stats struct {
	GeneratedAt time.Time
	Reports     int
	GridCells   int
	Hits        int64
	Misses      int64
	Refreshing  bool
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	st := Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Refreshing: c.refreshing.Load(),
	}
	if snap := c.snapshot.Load(); snap != nil {
		st.GeneratedAt = snap.GeneratedAt
		st.Reports = len(snap.Reports)
		st.GridCells = snap.Grid.Len()
	}
	return st
}

// Start runs the refresh loop: wait for TLE data, build the first snapshot,
// then keep it fresh. A TLE dataset change triggers an immediate rebuild;
// otherwise the snapshot is rebuilt whenever it exceeds the refresh
// interval. Blocks until ctx is cancelled.
func (c *Cache) Start(ctx context.Context) {
	if len(c.config.Locations) == 0 {
		c.logger.Info("report cache disabled: no locations configured")
		return
	}

	if !c.waitForTLEData(ctx) {
		return
	}

	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("initial report refresh failed", "error", err)
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("report cache stopped")
			return
		case <-ticker.C:
			if !c.needsRefresh() {
				continue
			}
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("report refresh failed", "error", err)
			}
		}
	}
}

// waitForTLEData blocks until a TLE dataset is available, checking every
// second. Returns false if ctx is cancelled first.
func (c *Cache) waitForTLEData(ctx context.Context) bool {
	if c.store.Get() != nil {
		return true
	}

	c.logger.Info("report cache waiting for TLE data...")
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.store.Get() != nil {
				c.logger.Info("TLE data available, computing initial reports")
				return true
			}
		}
	}
}

// needsRefresh reports whether the snapshot is stale or was built from a
// TLE dataset that has since been replaced.
func (c *Cache) needsRefresh() bool {
	snap := c.snapshot.Load()
	if snap == nil {
		return true
	}
	if time.Since(snap.GeneratedAt) >= c.config.RefreshInterval {
		return true
	}
	ds := c.store.Get()
	return ds != nil && !ds.FetchedAt.Equal(snap.DatasetFetchedAt)
}

// Refresh runs one full analysis and atomically swaps in the new snapshot.
// The old snapshot keeps serving reads while the new one is computed.
func (c *Cache) Refresh(ctx context.Context) error {
	ds := c.store.Get()
	if ds == nil {
		return fmt.Errorf("no TLE dataset loaded")
	}

	c.refreshing.Store(true)
	defer c.refreshing.Store(false)

	start := time.Now()
	cfg := c.analyzer.Config()

	tracks, err := c.sampler.Tracks(ctx, start, cfg.Window, cfg.SampleInterval)
	if err != nil {
		metrics.IncReportRefreshErrors()
		return fmt.Errorf("sampling tracks: %w", err)
	}

	result, err := c.analyzer.Analyze(ctx, tracks, c.config.Locations, start)
	if err != nil {
		metrics.IncReportRefreshErrors()
		return fmt.Errorf("analyzing coverage: %w", err)
	}

	meanAlt := meanAltitudeKm(tracks)
	c.snapshot.Store(&Snapshot{
		GeneratedAt:       time.Now(),
		WindowStart:       result.WindowStart,
		WindowEnd:         result.WindowEnd,
		Reports:           result.Reports,
		Grid:              result.Grid,
		DatasetSource:     ds.Source,
		DatasetFetchedAt:  ds.FetchedAt,
		MeanAltitudeKm:    meanAlt,
		FootprintRadiusKm: transform.FootprintRadiusKm(meanAlt, cfg.MinElevationDeg),
	})

	duration := time.Since(start)
	metrics.ObserveReportRefresh(duration)

	c.logger.Info("report snapshot refreshed",
		"locations", len(result.Reports),
		"satellites", len(tracks),
		"grid_cells", result.Grid.Len(),
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
		"duration_ms", duration.Milliseconds(),
	)

	return nil
}

// meanAltitudeKm averages sample altitudes across all tracks. Returns 0 for
// an empty constellation.
func meanAltitudeKm(tracks []propagation.Track) float64 {
	var sum float64
	var n int
	for _, tr := range tracks {
		for _, s := range tr.Samples {
			sum += s.AltKm
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
