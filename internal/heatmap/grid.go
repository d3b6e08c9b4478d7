// Package heatmap aggregates constellation sample positions into a global
// density grid. The grid answers "where do satellites spend their time",
// independent of any ground observer; no visibility filtering is applied.
package heatmap

import (
	"math"
	"sort"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/propagation"
)

// Cell identifies one grid cell by its discretized latitude/longitude bin.
// LonBin is computed on longitude wrapped into [-180, 180), so a cell just
// west of the antimeridian and one just east of it are distinct and adjacent.
type Cell struct {
	LatBin int `json:"lat_bin"`
	LonBin int `json:"lon_bin"`
}

// CellWeight is one populated grid cell with its accumulated weight and the
// cell's southwest corner in degrees, ready for rendering.
type CellWeight struct {
	Cell
	LatDeg float64 `json:"latitude"`
	LonDeg float64 `json:"longitude"`
	Weight float64 `json:"weight"`
}

// Grid is a sparse spatial density grid. Built fresh per analysis; not safe
// for concurrent mutation.
type Grid struct {
	CellSizeDeg float64
	cells       map[Cell]float64
}

// NewGrid creates an empty grid with the given cell size in degrees.
// Non-positive sizes fall back to the 2° default.
func NewGrid(cellSizeDeg float64) *Grid {
	if cellSizeDeg <= 0 {
		cellSizeDeg = 2
	}
	return &Grid{
		CellSizeDeg: cellSizeDeg,
		cells:       make(map[Cell]float64),
	}
}

// CellFor maps a geodetic position to its grid cell. Longitude is wrapped
// into [-180, 180) first; latitude at exactly +90 is clamped into the
// northernmost bin so no sample is dropped.
func (g *Grid) CellFor(latDeg, lonDeg float64) Cell {
	lon := math.Mod(lonDeg+180, 360)
	if lon < 0 {
		lon += 360
	}
	lon -= 180

	latBin := int(math.Floor(latDeg / g.CellSizeDeg))
	maxLatBin := int(math.Ceil(90/g.CellSizeDeg)) - 1
	if latBin > maxLatBin {
		latBin = maxLatBin
	}
	if minLatBin := -int(math.Ceil(90 / g.CellSizeDeg)); latBin < minLatBin {
		latBin = minLatBin
	}

	return Cell{
		LatBin: latBin,
		LonBin: int(math.Floor(lon / g.CellSizeDeg)),
	}
}

// Add accumulates weight into the cell containing the given position.
func (g *Grid) Add(latDeg, lonDeg, weight float64) {
	g.cells[g.CellFor(latDeg, lonDeg)] += weight
}

// Weight returns the accumulated weight of the cell containing the position.
func (g *Grid) Weight(latDeg, lonDeg float64) float64 {
	return g.cells[g.CellFor(latDeg, lonDeg)]
}

// TotalWeight returns the sum of all cell weights.
func (g *Grid) TotalWeight() float64 {
	var total float64
	for _, w := range g.cells {
		total += w
	}
	return total
}

// Len returns the number of populated cells.
func (g *Grid) Len() int {
	return len(g.cells)
}

// Cells returns the populated cells ordered south-to-north, west-to-east.
// The corner coordinates are the cell's southwest corner.
func (g *Grid) Cells() []CellWeight {
	out := make([]CellWeight, 0, len(g.cells))
	for c, w := range g.cells {
		out = append(out, CellWeight{
			Cell:   c,
			LatDeg: float64(c.LatBin) * g.CellSizeDeg,
			LonDeg: float64(c.LonBin) * g.CellSizeDeg,
			Weight: w,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LatBin != out[j].LatBin {
			return out[i].LatBin < out[j].LatBin
		}
		return out[i].LonBin < out[j].LonBin
	})
	return out
}

// Aggregate builds a density grid from every sample of every track. Each
// sample contributes sampleWeight; callers pass the sampling interval in
// seconds for time-weighted density, so uneven sampling rates do not bias
// the result. Pass 1 for simple visit counts.
func Aggregate(tracks []propagation.Track, cellSizeDeg, sampleWeight float64) *Grid {
	g := NewGrid(cellSizeDeg)
	for _, track := range tracks {
		for _, s := range track.Samples {
			g.Add(s.LatDeg, s.LonDeg, sampleWeight)
		}
	}
	return g
}
