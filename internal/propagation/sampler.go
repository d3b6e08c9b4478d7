package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/metrics"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/tle"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/transform"
)

// sgp4Cache holds preinitialized SGP4 propagators for a specific TLE dataset.
// Immutable after construction; safe for concurrent reads.
type sgp4Cache struct {
	props     map[int]*SGP4Propagator
	fetchedAt time.Time
}

// Sampler turns the current TLE dataset into geodetic sample tracks over an
// analysis window. Satellites are propagated in parallel, bounded by the
// configured worker count.
type Sampler struct {
	store  *tle.Store
	config Config
	logger *slog.Logger
	sgp4   atomic.Pointer[sgp4Cache]
	sgp4Mu sync.Mutex // serializes cache rebuilds
}

// NewSampler creates a track sampler over the given TLE store.
func NewSampler(store *tle.Store, config Config, logger *slog.Logger) *Sampler {
	return &Sampler{
		store:  store,
		config: config.WithDefaults(),
		logger: logger,
	}
}

// Config returns the sampler's configuration.
func (s *Sampler) Config() Config {
	return s.config
}

// cachedProps returns preinitialized SGP4 propagators for the given dataset.
// Rebuilds the cache if the dataset has changed (double-checked locking).
func (s *Sampler) cachedProps(ds *tle.Dataset) map[int]*SGP4Propagator {
	if c := s.sgp4.Load(); c != nil && c.fetchedAt.Equal(ds.FetchedAt) {
		return c.props
	}

	s.sgp4Mu.Lock()
	defer s.sgp4Mu.Unlock()

	if c := s.sgp4.Load(); c != nil && c.fetchedAt.Equal(ds.FetchedAt) {
		return c.props
	}

	props := make(map[int]*SGP4Propagator, len(ds.Satellites))
	var skipped int
	for _, entry := range ds.Satellites {
		if _, ok := props[entry.NORADID]; ok {
			continue
		}
		sp, err := NewSGP4Propagator(entry.Line1, entry.Line2, entry.NORADID)
		if err != nil {
			s.logger.Warn("sgp4 cache init failed", "norad_id", entry.NORADID, "error", err)
			skipped++
			continue
		}
		props[entry.NORADID] = sp
	}

	s.logger.Info("sgp4 propagator cache rebuilt",
		"cached", len(props),
		"skipped", skipped,
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	s.sgp4.Store(&sgp4Cache{props: props, fetchedAt: ds.FetchedAt})
	return props
}

// Tracks propagates every satellite in the current dataset over
// [start, start+window] at the given interval and returns one track per
// satellite, in dataset order. A satellite whose propagator cannot be
// initialized is skipped; individual failed steps are dropped from that
// satellite's track.
func (s *Sampler) Tracks(ctx context.Context, start time.Time, window, interval time.Duration) ([]Track, error) {
	ds := s.store.Get()
	if ds == nil {
		return nil, fmt.Errorf("no TLE dataset loaded")
	}
	return s.TracksForEntries(ctx, ds.Satellites, s.cachedProps(ds), start, window, interval)
}

// TracksForEntries propagates the given entries over [start, start+window].
// props may be nil, in which case propagators are built per entry.
func (s *Sampler) TracksForEntries(ctx context.Context, entries []tle.Entry, props map[int]*SGP4Propagator, start time.Time, window, interval time.Duration) ([]Track, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sampling interval must be positive, got %v", interval)
	}
	if window <= 0 {
		return nil, fmt.Errorf("analysis window must be positive, got %v", window)
	}

	start = start.UTC()
	numSteps := int(window/interval) + 1

	// Step times and GMST angles are identical for every satellite;
	// compute them once.
	steps := make([]time.Time, numSteps)
	gmsts := make([]float64, numSteps)
	for i := 0; i < numSteps; i++ {
		steps[i] = start.Add(time.Duration(i) * interval)
		gmsts[i] = transform.GMST(steps[i])
	}

	s.logger.Debug("sampling tracks",
		"satellite_count", len(entries),
		"steps", numSteps,
		"window_hours", window.Hours(),
		"interval_seconds", interval.Seconds(),
		"workers", s.config.Workers,
	)

	begin := time.Now()
	tracks := make([]Track, len(entries))
	sem := make(chan struct{}, s.config.Workers)
	var wg sync.WaitGroup
	var failed atomic.Int64

	for i, entry := range entries {
		wg.Add(1)
		go func(idx int, e tle.Entry) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			prop := props[e.NORADID]
			if prop == nil {
				var err error
				prop, err = NewSGP4Propagator(e.Line1, e.Line2, e.NORADID)
				if err != nil {
					s.logger.Warn("skipping satellite", "norad_id", e.NORADID, "error", err)
					failed.Add(1)
					tracks[idx] = Track{NORADID: e.NORADID, Name: e.Name}
					return
				}
			}

			tracks[idx] = sampleTrack(ctx, prop, e, steps, gmsts)
		}(i, entry)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	duration := time.Since(begin)
	success := len(entries) - int(failed.Load())
	metrics.RecordPropagation(duration, success, int(failed.Load()))

	s.logger.Debug("sampling complete",
		"success", success,
		"errors", failed.Load(),
		"duration_ms", duration.Milliseconds(),
	)

	return tracks, nil
}

// sampleTrack propagates one satellite through every step, converting
// TEME → ECEF → geodetic. Failed steps are skipped so one bad epoch does not
// discard the whole track.
func sampleTrack(ctx context.Context, prop *SGP4Propagator, e tle.Entry, steps []time.Time, gmsts []float64) Track {
	track := Track{
		NORADID: e.NORADID,
		Name:    e.Name,
		Samples: make([]Sample, 0, len(steps)),
	}

	for i, t := range steps {
		if ctx.Err() != nil {
			return track
		}

		teme, err := prop.Propagate(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
		if err != nil {
			continue
		}

		ecef := transform.TEMEToECEFWithGMST(teme, gmsts[i])
		if !transform.ValidateECEF(ecef) {
			continue
		}

		geo := transform.ECEFToGeodetic(ecef.X, ecef.Y, ecef.Z)
		track.Samples = append(track.Samples, Sample{
			Time:    t,
			LatDeg:  geo.LatDeg,
			LonDeg:  geo.LonDeg,
			AltKm:   geo.AltM / 1000.0,
			NORADID: e.NORADID,
		})
	}

	return track
}
