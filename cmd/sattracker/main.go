package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/api"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/auth"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/coverage"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/metrics"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/propagation"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/reportcache"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/tle"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/visibility"
)

// defaultLocations are the ground locations analyzed when
// SATTRACKER_LOCATIONS is not set.
var defaultLocations = []struct {
	name     string
	lat, lon float64
}{
	{"tel aviv", 32.0853, 34.7818},
	{"seattle", 47.6062, -122.3321},
	{"new york", 40.7128, -74.0060},
	{"london", 51.5074, -0.1278},
	{"tokyo", 35.6762, 139.6503},
	{"san francisco", 37.7749, -122.4194},
}

type tleConfig struct {
	EnableFetch bool
	SourceURL   string
	ExtraURLs   []string
	CacheDir    string
	MaxFiles    int
	MaxAge      time.Duration
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("SATTRACKER_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	tleCfg := loadTLEConfig(logger)
	store := tle.NewStore()
	tleCache := tle.NewCache(tleCfg.CacheDir, tleCfg.MaxFiles)
	fetcher := tle.NewFetcher(tleCfg.SourceURL, logger, tleCfg.ExtraURLs...)

	// Attempt to load cached TLE data on startup.
	data, ts, err := tleCache.LoadLatest()
	if err != nil {
		logger.Info("no TLE cache found, starting without TLE data", "error", err)
	} else {
		entries, err := tle.Parse(bytes.NewReader(data), logger)
		if err != nil {
			logger.Warn("failed to parse cached TLE data", "error", err)
		} else if len(entries) > 0 {
			store.Set(tle.NewDataset("cache", ts, entries))
			metrics.SetTLEDatasetCount(len(entries))
			logger.Info("loaded TLE data from cache", "count", len(entries), "cached_at", ts.Format(time.RFC3339))
		}
	}

	samplerCfg := loadSamplerConfig(logger)
	sampler := propagation.NewSampler(store, samplerCfg, logger)

	analyzerCfg := loadAnalyzerConfig(logger, samplerCfg)
	analyzer := coverage.NewAnalyzer(analyzerCfg, logger)

	locations, err := loadLocations(logger)
	if err != nil {
		logger.Error("invalid location configuration", "error", err)
		os.Exit(1)
	}

	reportCfg := loadReportConfig(logger)
	reportCfg.Locations = locations
	reports := reportcache.New(reportCfg, analyzer, sampler, store, logger)

	srvCfg := loadServerConfig(logger)
	srvCfg.Addr = addr
	srvCfg.Auth = authCfg
	srv := api.NewServer(srvCfg, api.Deps{
		Store:    store,
		Fetcher:  fetcher,
		Cache:    tleCache,
		Sampler:  sampler,
		Analyzer: analyzer,
		Reports:  reports,
	}, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start report cache background worker.
	go reports.Start(ctx)

	// Keep the TLE dataset fresh from the upstream source.
	if tleCfg.EnableFetch {
		go refreshTLELoop(ctx, logger, store, fetcher, tleCache, tleCfg.MaxAge)
	}

	// Background goroutine to update TLE dataset age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				age := store.AgeSeconds()
				if age >= 0 {
					metrics.SetTLEDatasetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"tle_fetch_enabled", tleCfg.EnableFetch,
			"locations", len(locations),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// refreshTLELoop fetches TLE data whenever the current dataset is missing or
// older than maxAge. Fetch failures keep the previous dataset in place.
func refreshTLELoop(ctx context.Context, logger *slog.Logger, store *tle.Store, fetcher *tle.Fetcher, cache *tle.Cache, maxAge time.Duration) {
	refresh := func() {
		store.Lock()
		defer store.Unlock()

		if age := store.AgeSeconds(); age >= 0 && age < maxAge.Seconds() {
			return
		}

		data, err := fetcher.Fetch(ctx)
		if err != nil {
			logger.Warn("TLE fetch failed", "error", err)
			return
		}

		entries, err := tle.Parse(bytes.NewReader(data), logger)
		if err != nil || len(entries) == 0 {
			logger.Warn("TLE parse failed", "error", err, "entries", len(entries))
			return
		}

		fetchedAt := time.Now().UTC()
		store.Set(tle.NewDataset(fetcher.SourceURL(), fetchedAt, entries))
		metrics.SetTLEDatasetCount(len(entries))

		if err := cache.Write(data, fetchedAt); err != nil {
			logger.Warn("writing TLE disk cache failed", "error", err)
		}

		logger.Info("TLE data refreshed", "satellites", len(entries))
	}

	refresh()

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			refresh()
		case <-ctx.Done():
			return
		}
	}
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("SATTRACKER_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("SATTRACKER_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("SATTRACKER_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("SATTRACKER_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadTLEConfig(logger *slog.Logger) tleConfig {
	cfg := tleConfig{
		EnableFetch: true,
		SourceURL:   tle.GroupURL("stations"),
		CacheDir:    "/tmp/sattracker/tle",
		MaxFiles:    5,
		MaxAge:      6 * time.Hour,
		ExtraURLs: []string{
			// Hubble Network satellites are not part of a CelesTrak group;
			// they are fetched individually by catalog number.
			tle.CatalogURL(64562), // HUBBLE 6
			tle.CatalogURL(64565), // LEMUR-2-HUBBLE-4
			tle.CatalogURL(64592), // HUBBLE 7
			tle.CatalogURL(64840), // LEMUR-2-HUBBLE-5
		},
	}

	if v := os.Getenv("SATTRACKER_ENABLE_TLE_FETCH"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SATTRACKER_ENABLE_TLE_FETCH value, defaulting to true", "value", v)
		} else {
			cfg.EnableFetch = enabled
		}
	}

	if v := os.Getenv("SATTRACKER_TLE_GROUP"); v != "" {
		cfg.SourceURL = tle.GroupURL(v)
	}

	if v := os.Getenv("SATTRACKER_TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}

	if v := os.Getenv("SATTRACKER_TLE_EXTRA_URLS"); v != "" {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				urls = append(urls, u)
			}
		}
		cfg.ExtraURLs = urls
	}

	if v := os.Getenv("SATTRACKER_TLE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	if v := os.Getenv("SATTRACKER_TLE_MAX_AGE"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds < 1 {
			logger.Warn("invalid SATTRACKER_TLE_MAX_AGE value, defaulting to 21600", "value", v)
		} else {
			cfg.MaxAge = time.Duration(seconds) * time.Second
		}
	}

	logger.Info("TLE config",
		"source_url", cfg.SourceURL,
		"extra_urls", len(cfg.ExtraURLs),
		"cache_dir", cfg.CacheDir,
		"max_age_seconds", cfg.MaxAge.Seconds(),
	)

	return cfg
}

func loadSamplerConfig(logger *slog.Logger) propagation.Config {
	cfg := propagation.Config{
		Workers:  runtime.NumCPU(),
		Interval: 30 * time.Second,
		Window:   24 * time.Hour,
	}

	if v := os.Getenv("SATTRACKER_PROP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATTRACKER_PROP_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	if v := os.Getenv("SATTRACKER_SAMPLE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATTRACKER_SAMPLE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.Interval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SATTRACKER_WINDOW_HOURS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATTRACKER_WINDOW_HOURS value, using default", "value", v, "default", 24)
		} else {
			cfg.Window = time.Duration(n) * time.Hour
		}
	}

	logger.Info("sampling config",
		"workers", cfg.Workers,
		"interval_seconds", cfg.Interval.Seconds(),
		"window_hours", cfg.Window.Hours(),
	)

	return cfg
}

func loadAnalyzerConfig(logger *slog.Logger, samplerCfg propagation.Config) coverage.Config {
	cfg := coverage.Config{
		MinElevationDeg:    10,
		SampleInterval:     samplerCfg.Interval,
		Window:             samplerCfg.Window,
		HeatmapCellSizeDeg: 2,
		Workers:            runtime.NumCPU(),
	}

	if v := os.Getenv("SATTRACKER_MIN_ELEVATION"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f >= 90 {
			logger.Warn("invalid SATTRACKER_MIN_ELEVATION value, using default", "value", v, "default", 10)
		} else {
			cfg.MinElevationDeg = f
		}
	}

	if v := os.Getenv("SATTRACKER_HEATMAP_CELL_SIZE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 90 {
			logger.Warn("invalid SATTRACKER_HEATMAP_CELL_SIZE value, using default", "value", v, "default", 2)
		} else {
			cfg.HeatmapCellSizeDeg = f
		}
	}

	if v := os.Getenv("SATTRACKER_ANALYSIS_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATTRACKER_ANALYSIS_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	logger.Info("analysis config",
		"min_elevation_deg", cfg.MinElevationDeg,
		"heatmap_cell_size_deg", cfg.HeatmapCellSizeDeg,
		"workers", cfg.Workers,
	)

	return cfg
}

// loadLocations parses SATTRACKER_LOCATIONS as a comma-separated list of
// name:lat:lon[:elev_m] entries, falling back to the default city set.
func loadLocations(logger *slog.Logger) ([]visibility.GroundLocation, error) {
	v := os.Getenv("SATTRACKER_LOCATIONS")
	if v == "" {
		locations := make([]visibility.GroundLocation, 0, len(defaultLocations))
		for _, c := range defaultLocations {
			loc, err := visibility.NewGroundLocation(c.name, c.lat, c.lon, 0)
			if err != nil {
				return nil, err
			}
			locations = append(locations, loc)
		}
		return locations, nil
	}

	var locations []visibility.GroundLocation
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		parts := strings.Split(item, ":")
		if len(parts) != 3 && len(parts) != 4 {
			return nil, errors.New("location must be name:lat:lon[:elev_m], got " + strconv.Quote(item))
		}

		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, errors.New("invalid latitude in location " + strconv.Quote(item))
		}
		lon, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, errors.New("invalid longitude in location " + strconv.Quote(item))
		}
		var elev float64
		if len(parts) == 4 {
			elev, err = strconv.ParseFloat(parts[3], 64)
			if err != nil {
				return nil, errors.New("invalid elevation in location " + strconv.Quote(item))
			}
		}

		loc, err := visibility.NewGroundLocation(parts[0], lat, lon, elev)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}

	logger.Info("location config", "locations", len(locations))
	return locations, nil
}

func loadReportConfig(logger *slog.Logger) reportcache.Config {
	cfg := reportcache.Config{
		RefreshInterval: 15 * time.Minute,
	}

	if v := os.Getenv("SATTRACKER_REPORT_REFRESH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATTRACKER_REPORT_REFRESH value, using default", "value", v, "default", 900)
		} else {
			cfg.RefreshInterval = time.Duration(n) * time.Second
		}
	}

	logger.Info("report config", "refresh_interval_seconds", cfg.RefreshInterval.Seconds())
	return cfg
}

func loadServerConfig(logger *slog.Logger) api.Config {
	cfg := api.Config{
		MaxAnalysesIP: 2,
		MaxAnalyses:   8,
	}

	if v := os.Getenv("SATTRACKER_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SATTRACKER_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	if v := os.Getenv("SATTRACKER_MAX_ANALYSES_PER_IP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATTRACKER_MAX_ANALYSES_PER_IP value, using default", "value", v, "default", 2)
		} else {
			cfg.MaxAnalysesIP = n
		}
	}

	if v := os.Getenv("SATTRACKER_MAX_ANALYSES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATTRACKER_MAX_ANALYSES value, using default", "value", v, "default", 8)
		} else {
			cfg.MaxAnalyses = n
		}
	}

	return cfg
}
