// Command coverage runs a one-shot coverage analysis from a TLE file and
// prints the resulting report. Useful for checking a dataset without
// standing up the full service.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/coverage"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/propagation"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/tle"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/visibility"
)

func main() {
	var (
		file    = flag.String("file", "", "path to a TLE file (required)")
		name    = flag.String("name", "observer", "ground location name")
		lat     = flag.Float64("lat", 0, "ground location latitude in degrees")
		lon     = flag.Float64("lon", 0, "ground location longitude in degrees")
		elev    = flag.Float64("elev", 0, "ground location elevation in meters")
		hours   = flag.Int("hours", 24, "analysis window in hours")
		step    = flag.Int("step", 30, "sampling interval in seconds")
		minElev = flag.Float64("min-elevation", 10, "visibility threshold in degrees")
		asJSON  = flag.Bool("json", false, "print the report as JSON")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "ERROR: -file is required")
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR reading TLE file:", err)
		os.Exit(1)
	}

	entries, err := tle.Parse(bytes.NewReader(data), logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR parsing TLE:", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "ERROR: no TLE entries in file")
		os.Exit(1)
	}

	loc, err := visibility.NewGroundLocation(*name, *lat, *lon, *elev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}

	store := tle.NewStore()
	store.Set(tle.NewDataset(*file, time.Now(), entries))

	window := time.Duration(*hours) * time.Hour
	interval := time.Duration(*step) * time.Second
	sampler := propagation.NewSampler(store, propagation.Config{
		Interval: interval,
		Window:   window,
	}, logger)
	analyzer := coverage.NewAnalyzer(coverage.Config{
		MinElevationDeg: *minElev,
		SampleInterval:  interval,
		Window:          window,
	}, logger)

	ctx := context.Background()
	start := time.Now().UTC()

	tracks, err := sampler.Tracks(ctx, start, window, interval)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR propagating:", err)
		os.Exit(1)
	}

	result, err := analyzer.Analyze(ctx, tracks, []visibility.GroundLocation{loc}, start)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR analyzing:", err)
		os.Exit(1)
	}
	report := result.Reports[0]

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		return
	}

	fmt.Printf("Loaded %d TLE entries from %s\n", len(entries), *file)
	fmt.Printf("Location: %s (%.4f, %.4f)\n", loc.Name, loc.LatDeg, loc.LonDeg)
	fmt.Printf("Window:   %v → %v (min elevation %.1f°)\n\n",
		report.WindowStart.Format(time.RFC3339), report.WindowEnd.Format(time.RFC3339), *minElev)

	fmt.Printf("Coverage:     %.2f%%\n", report.CoveragePct)
	fmt.Printf("Passes:       %d (avg %.0fs)\n", report.PassCount, report.AvgPassSeconds)
	fmt.Printf("Max gap:      %.0fs\n", report.MaxGapSeconds)
	fmt.Printf("Avg gap:      %.0fs\n\n", report.AvgGapSeconds)

	for i, p := range report.Passes {
		trunc := ""
		if p.Truncated {
			trunc = " (truncated)"
		}
		fmt.Printf("  pass %d: NORAD %d start=%v maxEl=%.1f° dur=%.0fs%s\n",
			i, p.NORADID, p.Start.Format(time.RFC3339), p.PeakElevationDeg, p.Duration().Seconds(), trunc)
	}
	if len(report.Gaps) > 0 {
		fmt.Println()
		for i, g := range report.Gaps {
			fmt.Printf("  gap %d: %v → %v (%.0fs)\n",
				i, g.Start.Format(time.RFC3339), g.End.Format(time.RFC3339), g.Duration().Seconds())
		}
	}
}
