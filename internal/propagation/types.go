package propagation

import (
	"runtime"
	"time"
)

// Sample is one propagated sub-satellite point: geodetic position at an
// instant. Samples are immutable once produced.
type Sample struct {
	Time    time.Time `json:"time"`
	LatDeg  float64   `json:"latitude"`
	LonDeg  float64   `json:"longitude"`
	AltKm   float64   `json:"altitude_km"`
	NORADID int       `json:"norad_id"`
}

// Track is the time-ordered sample sequence for one satellite over an
// analysis window.
type Track struct {
	NORADID int
	Name    string
	Samples []Sample
}

// Config holds sampling configuration loaded from environment variables.
type Config struct {
	Workers  int           // parallel satellites (default: runtime.NumCPU())
	Interval time.Duration // sampling interval (default: 30s)
	Window   time.Duration // analysis window (default: 24h)
}

// WithDefaults fills zero-valued fields with the standard defaults.
func (c Config) WithDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Window <= 0 {
		c.Window = 24 * time.Hour
	}
	return c
}
