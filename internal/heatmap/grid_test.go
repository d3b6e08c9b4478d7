package heatmap

import (
	"math"
	"testing"
	"time"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/propagation"
)

func TestCellForBasic(t *testing.T) {
	g := NewGrid(2)

	tests := []struct {
		lat, lon float64
		want     Cell
	}{
		{0, 0, Cell{0, 0}},
		{1.9, 1.9, Cell{0, 0}},
		{2, 2, Cell{1, 1}},
		{-0.1, -0.1, Cell{-1, -1}},
		{-90, -180, Cell{-45, -90}},
		{89.9, 179.9, Cell{44, 89}},
	}

	for _, tt := range tests {
		if got := g.CellFor(tt.lat, tt.lon); got != tt.want {
			t.Errorf("CellFor(%.1f, %.1f) = %+v, want %+v", tt.lat, tt.lon, got, tt.want)
		}
	}
}

// TestCellForAntimeridian: samples just west and just east of ±180° map to
// distinct, adjacent cells: not merged, not separated by the grid seam.
func TestCellForAntimeridian(t *testing.T) {
	g := NewGrid(2)

	east := g.CellFor(0, 179.9)  // just west of the antimeridian
	west := g.CellFor(0, -179.9) // just east of it

	if east == west {
		t.Fatal("cells on opposite sides of ±180° merged")
	}
	if east.LonBin != 89 {
		t.Errorf("lon bin for 179.9° = %d, want 89", east.LonBin)
	}
	if west.LonBin != -90 {
		t.Errorf("lon bin for -179.9° = %d, want -90", west.LonBin)
	}

	// +180 wraps onto -180: same westernmost cell.
	if got := g.CellFor(0, 180); got.LonBin != -90 {
		t.Errorf("lon bin for +180° = %d, want -90 (wrapped)", got.LonBin)
	}
}

func TestCellForPoleClamp(t *testing.T) {
	g := NewGrid(2)

	north := g.CellFor(90, 0)
	if north.LatBin != 44 {
		t.Errorf("lat bin for +90° = %d, want 44 (clamped into northernmost cell)", north.LatBin)
	}
	south := g.CellFor(-90, 0)
	if south.LatBin != -45 {
		t.Errorf("lat bin for -90° = %d, want -45", south.LatBin)
	}
}

func TestAggregateWeightConservation(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	tracks := []propagation.Track{
		{NORADID: 1, Samples: []propagation.Sample{
			{Time: start, LatDeg: 0, LonDeg: 179.9, AltKm: 550},
			{Time: start.Add(time.Minute), LatDeg: 0, LonDeg: -179.9, AltKm: 550},
			{Time: start.Add(2 * time.Minute), LatDeg: 90, LonDeg: 0, AltKm: 550},
		}},
		{NORADID: 2, Samples: []propagation.Sample{
			{Time: start, LatDeg: -45, LonDeg: 30, AltKm: 550},
		}},
	}

	const weight = 60.0 // time-weighted: one minute per sample
	g := Aggregate(tracks, 2, weight)

	want := 4 * weight
	if got := g.TotalWeight(); math.Abs(got-want) > 1e-9 {
		t.Errorf("total weight = %.1f, want %.1f (no samples dropped)", got, want)
	}
	if g.Len() != 4 {
		t.Errorf("populated cells = %d, want 4", g.Len())
	}
}

func TestGridAccumulation(t *testing.T) {
	g := NewGrid(2)
	g.Add(10.5, 20.5, 30)
	g.Add(10.9, 21.9, 30) // same cell
	g.Add(12.1, 20.5, 30) // next lat bin

	if w := g.Weight(10.5, 20.5); w != 60 {
		t.Errorf("accumulated weight = %.1f, want 60", w)
	}
	if w := g.Weight(12.1, 20.5); w != 30 {
		t.Errorf("neighbor weight = %.1f, want 30", w)
	}
}

func TestCellsOrderedAndLocated(t *testing.T) {
	g := NewGrid(2)
	g.Add(10.5, 20.5, 1)
	g.Add(-8.1, 100, 2)
	g.Add(10.5, -21.9, 3)

	cells := g.Cells()
	if len(cells) != 3 {
		t.Fatalf("expected 3 cells, got %d", len(cells))
	}

	// Ordered south-to-north, then west-to-east.
	if cells[0].LatBin != -5 {
		t.Errorf("first cell lat bin = %d, want -5", cells[0].LatBin)
	}
	if cells[1].LonBin >= cells[2].LonBin {
		t.Errorf("same-latitude cells not ordered by longitude: %d, %d", cells[1].LonBin, cells[2].LonBin)
	}

	// Southwest corner of the cell containing (10.5, 20.5).
	for _, c := range cells {
		if c.Weight == 1 {
			if c.LatDeg != 10 || c.LonDeg != 20 {
				t.Errorf("cell corner = (%.1f, %.1f), want (10, 20)", c.LatDeg, c.LonDeg)
			}
		}
	}
}

func TestNewGridDefaultCellSize(t *testing.T) {
	g := NewGrid(0)
	if g.CellSizeDeg != 2 {
		t.Errorf("default cell size = %.1f, want 2", g.CellSizeDeg)
	}
}
