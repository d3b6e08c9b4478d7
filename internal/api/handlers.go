package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/coverage"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/httputil"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/metrics"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/reportcache"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/tle"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/visibility"
)

// Request parameter bounds for on-demand analysis. A request costs roughly
// satellites x steps SGP4 propagations; maxSampleBudget caps that product so
// one request cannot consume unbounded CPU.
const (
	minWindowHours  = 1
	maxWindowHours  = 168
	minStepSeconds  = 10
	maxStepSeconds  = 600
	maxSampleBudget = 5_000_000
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// floatParam parses a float query parameter, returning def when absent.
func floatParam(r *http.Request, name string, def float64) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("invalid " + name + ": " + s)
	}
	return v, nil
}

// intParam parses an integer query parameter, returning def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid " + name + ": " + s)
	}
	return v, nil
}

// coverageResponse is the on-demand analysis payload.
type coverageResponse struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Satellites  int             `json:"satellites"`
	WindowHours int             `json:"window_hours"`
	StepSeconds int             `json:"step_seconds"`
	MinElevDeg  float64         `json:"min_elevation_deg"`
	Report      coverage.Report `json:"report"`
}

// coverageHandler runs a coverage analysis for an arbitrary ground location
// on demand. Unlike /api/v1/reports this is not cached: the constellation is
// propagated fresh for the requested window, so requests are bounded by the
// analysis limiter and the sample budget.
func coverageHandler(logger *slog.Logger, deps Deps, limiter *analysisLimiter, trustProxy bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := deps.Store.Get()
		if ds == nil {
			writeError(w, http.StatusServiceUnavailable, "no TLE data loaded")
			return
		}

		lat, err := floatParam(r, "lat", 0)
		if err != nil || r.URL.Query().Get("lat") == "" {
			writeError(w, http.StatusBadRequest, "lat is required and must be a number")
			return
		}
		lon, err := floatParam(r, "lon", 0)
		if err != nil || r.URL.Query().Get("lon") == "" {
			writeError(w, http.StatusBadRequest, "lon is required and must be a number")
			return
		}
		elevM, err := floatParam(r, "elev_m", 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "query"
		}

		loc, err := visibility.NewGroundLocation(name, lat, lon, elevM)
		if err != nil {
			var verr *visibility.ValidationError
			if errors.As(err, &verr) {
				writeError(w, http.StatusBadRequest, verr.Error())
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		hours, err := intParam(r, "hours", 24)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if hours < minWindowHours || hours > maxWindowHours {
			writeError(w, http.StatusBadRequest,
				"hours must be between "+strconv.Itoa(minWindowHours)+" and "+strconv.Itoa(maxWindowHours))
			return
		}

		step, err := intParam(r, "step", 30)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if step < minStepSeconds || step > maxStepSeconds {
			writeError(w, http.StatusBadRequest,
				"step must be between "+strconv.Itoa(minStepSeconds)+" and "+strconv.Itoa(maxStepSeconds)+" seconds")
			return
		}

		minElev, err := floatParam(r, "min_elevation", deps.Analyzer.Config().MinElevationDeg)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if minElev < 0 || minElev >= 90 {
			writeError(w, http.StatusBadRequest, "min_elevation must be in [0, 90)")
			return
		}

		steps := hours*3600/step + 1
		if budget := len(ds.Satellites) * steps; budget > maxSampleBudget {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":       "requested analysis exceeds the sample budget; reduce hours or increase step",
				"samples":     budget,
				"max_samples": maxSampleBudget,
			})
			return
		}

		ip := httputil.ClientIP(r, trustProxy)
		if !limiter.acquire(ip) {
			writeError(w, http.StatusTooManyRequests, "too many concurrent analyses")
			return
		}
		defer limiter.release(ip)

		start := time.Now()
		window := time.Duration(hours) * time.Hour
		interval := time.Duration(step) * time.Second

		tracks, err := deps.Sampler.Tracks(r.Context(), start, window, interval)
		if err != nil {
			logger.Warn("on-demand track sampling failed", "error", err)
			writeError(w, http.StatusInternalServerError, "propagation failed")
			return
		}

		cfg := deps.Analyzer.Config()
		cfg.MinElevationDeg = minElev
		cfg.SampleInterval = interval
		cfg.Window = window
		analyzer := coverage.NewAnalyzer(cfg, logger)

		result, err := analyzer.Analyze(r.Context(), tracks, []visibility.GroundLocation{loc}, start)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "analysis failed")
			return
		}

		writeJSON(w, http.StatusOK, coverageResponse{
			GeneratedAt: time.Now().UTC(),
			Satellites:  len(tracks),
			WindowHours: hours,
			StepSeconds: step,
			MinElevDeg:  minElev,
			Report:      result.Reports[0],
		})
	}
}

// reportsResponse is the cached constellation-wide report payload.
type reportsResponse struct {
	GeneratedAt      time.Time         `json:"generated_at"`
	WindowStart      time.Time         `json:"window_start"`
	WindowEnd        time.Time         `json:"window_end"`
	DatasetSource    string            `json:"dataset_source"`
	DatasetFetchedAt time.Time         `json:"dataset_fetched_at"`
	Reports          []coverage.Report `json:"reports"`
}

// reportsHandler serves the precomputed coverage reports for the configured
// ground locations.
func reportsHandler(cache *reportcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cache.Snapshot()
		if snap == nil {
			writeError(w, http.StatusServiceUnavailable, "reports not yet computed")
			return
		}
		writeJSON(w, http.StatusOK, reportsResponse{
			GeneratedAt:      snap.GeneratedAt,
			WindowStart:      snap.WindowStart,
			WindowEnd:        snap.WindowEnd,
			DatasetSource:    snap.DatasetSource,
			DatasetFetchedAt: snap.DatasetFetchedAt,
			Reports:          snap.Reports,
		})
	}
}

// heatmapCell is one grid cell in the heatmap payload. Lat/lon identify the
// cell's southwest corner.
type heatmapCell struct {
	LatDeg  float64 `json:"lat"`
	LonDeg  float64 `json:"lon"`
	WeightS float64 `json:"weight_s"`
}

type heatmapResponse struct {
	GeneratedAt       time.Time     `json:"generated_at"`
	WindowStart       time.Time     `json:"window_start"`
	WindowEnd         time.Time     `json:"window_end"`
	CellSizeDeg       float64       `json:"cell_size_deg"`
	TotalWeightS      float64       `json:"total_weight_s"`
	MeanAltitudeKm    float64       `json:"mean_altitude_km"`
	FootprintRadiusKm float64       `json:"footprint_radius_km"`
	Cells             []heatmapCell `json:"cells"`
}

// heatmapHandler serves the ground-track density grid from the latest
// snapshot.
func heatmapHandler(cache *reportcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cache.Snapshot()
		if snap == nil {
			writeError(w, http.StatusServiceUnavailable, "heatmap not yet computed")
			return
		}
		writeJSON(w, http.StatusOK, buildHeatmapResponse(snap))
	}
}

func buildHeatmapResponse(snap *reportcache.Snapshot) heatmapResponse {
	cells := snap.Grid.Cells()
	out := make([]heatmapCell, len(cells))
	for i, c := range cells {
		out[i] = heatmapCell{LatDeg: c.LatDeg, LonDeg: c.LonDeg, WeightS: c.Weight}
	}
	return heatmapResponse{
		GeneratedAt:       snap.GeneratedAt,
		WindowStart:       snap.WindowStart,
		WindowEnd:         snap.WindowEnd,
		CellSizeDeg:       snap.Grid.CellSizeDeg,
		TotalWeightS:      snap.Grid.TotalWeight(),
		MeanAltitudeKm:    snap.MeanAltitudeKm,
		FootprintRadiusKm: snap.FootprintRadiusKm,
		Cells:             out,
	}
}

// tleMetadataHandler serves dataset provenance: source, fetch time, element
// epoch range, and report cache state. Public even when auth is enabled.
func tleMetadataHandler(store *tle.Store, cache *reportcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := store.Get()
		if ds == nil {
			writeError(w, http.StatusServiceUnavailable, "no TLE data loaded")
			return
		}

		stats := cache.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"source":      ds.Source,
			"fetched_at":  ds.FetchedAt.UTC().Format(time.RFC3339),
			"age_seconds": time.Since(ds.FetchedAt).Seconds(),
			"satellites":  len(ds.Satellites),
			"epoch_min":   ds.EpochRange.Min.UTC().Format(time.RFC3339),
			"epoch_max":   ds.EpochRange.Max.UTC().Format(time.RFC3339),
			"report_cache": map[string]any{
				"generated_at": stats.GeneratedAt,
				"reports":      stats.Reports,
				"grid_cells":   stats.GridCells,
				"hits":         stats.Hits,
				"misses":       stats.Misses,
				"refreshing":   stats.Refreshing,
			},
		})
	}
}

// tleRefreshHandler forces an immediate TLE refresh from the upstream source.
// Fetches are serialized through the store's fetch lock so concurrent refresh
// requests do not hammer the upstream.
func tleRefreshHandler(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Store.Lock()
		defer deps.Store.Unlock()

		data, err := deps.Fetcher.Fetch(r.Context())
		if err != nil {
			logger.Warn("TLE refresh fetch failed", "error", err)
			writeError(w, http.StatusBadGateway, "upstream fetch failed")
			return
		}

		entries, err := tle.Parse(bytes.NewReader(data), logger)
		if err != nil || len(entries) == 0 {
			logger.Warn("TLE refresh parse failed", "error", err, "entries", len(entries))
			writeError(w, http.StatusBadGateway, "upstream returned no usable TLE data")
			return
		}

		fetchedAt := time.Now().UTC()
		ds := tle.NewDataset(deps.Fetcher.SourceURL(), fetchedAt, entries)
		deps.Store.Set(ds)
		metrics.SetTLEDatasetCount(len(entries))

		if deps.Cache != nil {
			if err := deps.Cache.Write(data, fetchedAt); err != nil {
				logger.Warn("writing TLE disk cache failed", "error", err)
			}
		}

		logger.Info("TLE data refreshed on request",
			"satellites", len(entries),
			"source", ds.Source,
		)

		writeJSON(w, http.StatusOK, map[string]any{
			"satellites": len(entries),
			"fetched_at": fetchedAt.Format(time.RFC3339),
			"source":     ds.Source,
		})
	}
}
