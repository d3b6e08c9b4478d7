package visibility

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/propagation"
)

func TestNewGroundLocationValidation(t *testing.T) {
	tests := []struct {
		name     string
		locName  string
		lat, lon float64
		wantErr  bool
	}{
		{"valid", "new york", 40.7128, -74.006, false},
		{"valid pole", "north pole", 90, 0, false},
		{"valid dateline", "dateline", 0, 180, false},
		{"lat too high", "bad", 90.1, 0, true},
		{"lat too low", "bad", -91, 0, true},
		{"lon too high", "bad", 0, 180.5, true},
		{"lon too low", "bad", 0, -181, true},
		{"empty name", "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGroundLocation(tt.locName, tt.lat, tt.lon, 0)
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("error type = %T, want *ValidationError", err)
				}
			}
		})
	}
}

func TestEvaluateOverhead(t *testing.T) {
	loc, err := NewGroundLocation("equator", 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	// Satellite directly above the observer at 550 km.
	s := propagation.Sample{
		Time:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		LatDeg:  0,
		LonDeg:  0,
		AltKm:   550,
		NORADID: 1,
	}

	obs := Evaluate(s, loc, 10)
	if !obs.Visible {
		t.Error("zenith satellite should be visible at 10° threshold")
	}
	if math.Abs(obs.ElevationDeg-90) > 0.1 {
		t.Errorf("zenith elevation = %.2f, want ~90", obs.ElevationDeg)
	}
	if math.Abs(obs.RangeKm-550) > 1 {
		t.Errorf("zenith range = %.2f km, want ~550", obs.RangeKm)
	}
	if math.IsNaN(obs.AzimuthDeg) {
		t.Error("azimuth is NaN at the zenith singularity")
	}
}

func TestEvaluateBelowHorizon(t *testing.T) {
	loc, err := NewGroundLocation("equator", 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	// Satellite over the antipode; far below the horizon.
	s := propagation.Sample{
		Time:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		LatDeg:  0,
		LonDeg:  180,
		AltKm:   550,
		NORADID: 1,
	}

	obs := Evaluate(s, loc, 10)
	if obs.Visible {
		t.Error("antipodal satellite reported visible")
	}
	if obs.ElevationDeg > -80 {
		t.Errorf("antipodal elevation = %.2f, expected near -90", obs.ElevationDeg)
	}
	if math.IsNaN(obs.ElevationDeg) || math.IsNaN(obs.AzimuthDeg) || math.IsNaN(obs.RangeKm) {
		t.Errorf("antipodal observation contains NaN: %+v", obs)
	}
}

// TestEvaluateThresholdMonotone checks visibility is monotone non-increasing
// in the elevation threshold for a fixed geometry.
func TestEvaluateThresholdMonotone(t *testing.T) {
	loc, err := NewGroundLocation("seattle", 47.6062, -122.3321, 0)
	if err != nil {
		t.Fatal(err)
	}

	// A satellite at moderate elevation northeast of the observer.
	s := propagation.Sample{
		Time:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		LatDeg: 52.0,
		LonDeg: -117.0,
		AltKm:  550,
	}

	prev := true
	for _, minEl := range []float64{0, 5, 10, 20, 40, 60, 80} {
		obs := Evaluate(s, loc, minEl)
		if obs.Visible && !prev {
			t.Fatalf("visibility became true again at threshold %.0f", minEl)
		}
		prev = obs.Visible
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	loc, _ := NewGroundLocation("tokyo", 35.6762, 139.6503, 40)
	s := propagation.Sample{
		Time:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		LatDeg: 36.2,
		LonDeg: 140.1,
		AltKm:  420,
	}

	a := Evaluate(s, loc, 10)
	b := Evaluate(s, loc, 10)
	if a != b {
		t.Errorf("evaluation not deterministic: %+v vs %+v", a, b)
	}
}
