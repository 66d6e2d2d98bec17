/*
Copyright © 2018 the OceanDrift authors.
This file is part of OceanDrift.

OceanDrift is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

OceanDrift is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with OceanDrift.  If not, see <http://www.gnu.org/licenses/>.
*/

package drift

import (
	"fmt"
	"time"

	"github.com/ctessum/geom"
)

// A Grid holds the coordinate axes that one or more fields are defined
// on: rectilinear longitude and latitude axes in degrees, an optional
// depth axis in meters, and a time axis in seconds since Origin.
type Grid struct {
	Lon   []float64
	Lat   []float64
	Depth []float64

	// Time is the time axis in seconds since Origin.
	Time []float64

	// Origin is the reference time that the Time axis counts from.
	Origin time.Time

	// TimeSlices are the timestamps of the loaded records, in axis order.
	TimeSlices []time.Time

	// Period, if positive, makes the time axis periodic: sample times
	// are wrapped modulo Period seconds before lookup.
	Period float64
}

// NewGrid creates a grid from coordinate axes. Axes must be strictly
// increasing; time is given as timestamps and converted to seconds
// since the first one.
func NewGrid(lon, lat, depth []float64, times []time.Time) (*Grid, error) {
	g := &Grid{
		Lon:        lon,
		Lat:        lat,
		Depth:      depth,
		TimeSlices: times,
	}
	if err := checkAxis("lon", lon); err != nil {
		return nil, err
	}
	if err := checkAxis("lat", lat); err != nil {
		return nil, err
	}
	if len(times) > 0 {
		g.Origin = times[0]
		g.Time = make([]float64, len(times))
		for i, t := range times {
			g.Time[i] = t.Sub(g.Origin).Seconds()
		}
		if err := checkAxis("time", g.Time); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func checkAxis(name string, ax []float64) error {
	for i := 1; i < len(ax); i++ {
		if ax[i] <= ax[i-1] {
			return fmt.Errorf("drift: %s axis is not strictly increasing at index %d (%g ≤ %g)",
				name, i, ax[i], ax[i-1])
		}
	}
	return nil
}

// Bounds returns the spatial extent of the grid.
func (g *Grid) Bounds() *geom.Bounds {
	b := geom.NewBounds()
	b.Extend(geom.NewBoundsPoint(geom.Point{X: g.Lon[0], Y: g.Lat[0]}))
	b.Extend(geom.NewBoundsPoint(geom.Point{X: g.Lon[len(g.Lon)-1], Y: g.Lat[len(g.Lat)-1]}))
	return b
}

// WrapTime maps t into the grid's periodic time window. If the grid is
// not periodic, t is returned unchanged.
func (g *Grid) WrapTime(t float64) float64 {
	if g.Period <= 0 {
		return t
	}
	t0 := g.Time[0]
	w := t - t0
	w -= float64(int(w/g.Period)) * g.Period
	if w < 0 {
		w += g.Period
	}
	return t0 + w
}

// searchAxis finds i and the fraction f in [0,1) such that
// ax[i] + f*(ax[i+1]-ax[i]) == v. A value exactly at the upper end of
// the axis is in range with i = len(ax)-2, f = 1.
func searchAxis(ax []float64, v float64) (int, float64, bool) {
	n := len(ax)
	if n == 0 || v < ax[0] || v > ax[n-1] {
		return 0, 0, false
	}
	if n == 1 {
		return 0, 0, true
	}
	// The axes here are small (tens to hundreds of points); a linear
	// scan is competitive with binary search and simpler to reason
	// about for the periodic wrap cases.
	i := n - 2
	for j := 1; j < n; j++ {
		if v < ax[j] {
			i = j - 1
			break
		}
	}
	return i, (v - ax[i]) / (ax[i+1] - ax[i]), true
}

// TimeIndex locates the time-axis interval bracketing t, returning the
// lower slice index and the interpolation fraction. Periodic grids wrap
// t first. Out-of-axis times on non-periodic grids return
// ErrTimeExtrapolation.
func (g *Grid) TimeIndex(t float64) (int, float64, error) {
	tw := g.WrapTime(t)
	if g.Period > 0 && tw > g.Time[len(g.Time)-1] {
		// Between the last slice and the wrap point: interpolate
		// across the seam back to the first slice.
		last := len(g.Time) - 1
		f := (tw - g.Time[last]) / (g.Time[0] + g.Period - g.Time[last])
		return last, f, nil
	}
	i, f, ok := searchAxis(g.Time, tw)
	if !ok {
		return 0, 0, fmt.Errorf("%w: t=%gs, axis [%gs, %gs]",
			ErrTimeExtrapolation, t, g.Time[0], g.Time[len(g.Time)-1])
	}
	return i, f, nil
}

// DepthIndex returns the index of the depth level nearest to z, or 0 if
// the grid has no depth axis. Negative z is above the surface.
func (g *Grid) DepthIndex(z float64) (int, error) {
	if z < 0 {
		return 0, fmt.Errorf("%w: z=%gm", ErrThroughSurface, z)
	}
	if len(g.Depth) == 0 {
		return 0, nil
	}
	i, f, ok := searchAxis(g.Depth, z)
	if !ok {
		if z > g.Depth[len(g.Depth)-1] {
			return 0, fmt.Errorf("%w: z=%gm below deepest level %gm",
				ErrOutOfBounds, z, g.Depth[len(g.Depth)-1])
		}
		return 0, nil // above the shallowest level; clamp to it
	}
	if f > 0.5 {
		i++
	}
	return i, nil
}

// Indices selects subsets of grid dimensions by index, keyed by
// dimension name ("lon", "lat", "depth").
type Indices map[string][]int

// Subset returns a copy of the grid restricted to the given indices.
// Dimensions absent from idx are kept whole. Index lists must be
// increasing so that the subset axes stay monotone.
func (g *Grid) Subset(idx Indices) (*Grid, error) {
	out := &Grid{
		Lon:        g.Lon,
		Lat:        g.Lat,
		Depth:      g.Depth,
		Time:       g.Time,
		Origin:     g.Origin,
		TimeSlices: g.TimeSlices,
		Period:     g.Period,
	}
	var err error
	if is, ok := idx["lon"]; ok {
		if out.Lon, err = takeAxis("lon", g.Lon, is); err != nil {
			return nil, err
		}
	}
	if is, ok := idx["lat"]; ok {
		if out.Lat, err = takeAxis("lat", g.Lat, is); err != nil {
			return nil, err
		}
	}
	if is, ok := idx["depth"]; ok {
		if out.Depth, err = takeAxis("depth", g.Depth, is); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func takeAxis(name string, ax []float64, is []int) ([]float64, error) {
	out := make([]float64, len(is))
	for j, i := range is {
		if i < 0 || i >= len(ax) {
			return nil, fmt.Errorf("drift: %s subset index %d out of range [0, %d)", name, i, len(ax))
		}
		out[j] = ax[i]
	}
	if err := checkAxis(name, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Range builds the index list [lo, hi).
func Range(lo, hi int) []int {
	is := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		is = append(is, i)
	}
	return is
}
