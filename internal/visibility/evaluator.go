// Package visibility determines whether a satellite at a propagated geodetic
// position is visible from a ground location, and at what look angles.
package visibility

import (
	"fmt"
	"time"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/propagation"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/transform"
)

// ValidationError reports a ground location that cannot exist on the
// ellipsoid. It is returned at construction so invalid coordinates never
// reach the evaluator.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid ground location: %s %s", e.Field, e.Msg)
}

// GroundLocation is a named static observer on the ground. The observer's
// ECEF coordinates are precomputed so repeated evaluations against tens of
// thousands of samples do not redo the ellipsoid math.
type GroundLocation struct {
	Name   string
	LatDeg float64
	LonDeg float64
	ElevM  float64

	obs transform.ObserverPosition
}

// NewGroundLocation validates and constructs a GroundLocation.
func NewGroundLocation(name string, latDeg, lonDeg, elevM float64) (GroundLocation, error) {
	if name == "" {
		return GroundLocation{}, &ValidationError{Field: "name", Msg: "must not be empty"}
	}
	if latDeg < -90 || latDeg > 90 {
		return GroundLocation{}, &ValidationError{Field: "latitude", Msg: fmt.Sprintf("%.4f outside [-90, 90]", latDeg)}
	}
	if lonDeg < -180 || lonDeg > 180 {
		return GroundLocation{}, &ValidationError{Field: "longitude", Msg: fmt.Sprintf("%.4f outside [-180, 180]", lonDeg)}
	}

	return GroundLocation{
		Name:   name,
		LatDeg: latDeg,
		LonDeg: lonDeg,
		ElevM:  elevM,
		obs:    transform.NewObserverPosition(latDeg, lonDeg, elevM),
	}, nil
}

// Observation is the visibility evaluation of one sample from one location.
// Derived, not stored; the segmenter consumes it immediately.
type Observation struct {
	Time         time.Time
	ElevationDeg float64
	AzimuthDeg   float64
	RangeKm      float64
	Visible      bool
}

// Evaluate computes the topocentric look angles from loc to the satellite's
// geodetic position and applies the minimum elevation threshold.
//
// Pure function: no side effects, deterministic for identical inputs. The
// underlying SEZ math clamps its trigonometric domain, so degenerate
// geometry yields a clamped elevation rather than NaN.
func Evaluate(s propagation.Sample, loc GroundLocation, minElevDeg float64) Observation {
	satX, satY, satZ := transform.GeodeticToECEF(s.LatDeg, s.LonDeg, s.AltKm*1000.0)
	la := transform.ECEFToLookAngles(loc.obs, satX, satY, satZ)

	return Observation{
		Time:         s.Time,
		ElevationDeg: la.ElevationDeg,
		AzimuthDeg:   la.AzimuthDeg,
		RangeKm:      la.RangeKm,
		Visible:      la.ElevationDeg >= minElevDeg,
	}
}
