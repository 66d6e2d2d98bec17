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
	"math"
	"sync"

	"github.com/ctessum/sparse"
)

// maxLoadedSlabs is the number of time slices a deferred-load field
// keeps in memory at once. Advection only ever needs the bracketing
// pair; a few extra avoid thrashing when kernels sample at substep
// times near a slice boundary.
const maxLoadedSlabs = 4

// A Field is one named variable (e.g. eastward velocity) on a Grid,
// sampled at the grid's time slices. Data is either fully in memory or
// loaded per time slice on demand (deferred load); both modes return
// identical sample values.
type Field struct {
	Name  string
	Grid  *Grid
	Units string

	mu     sync.Mutex
	data   []*sparse.DenseArray // indexed by time slice; nil = not loaded
	src    *fieldSource         // nil for in-memory fields
	loaded []int                // load order, for eviction
}

// fieldSource describes where the time slices of a deferred-load field
// come from.
type fieldSource struct {
	backend Backend
	varName string
	refs    []recordRef

	lonIdx, latIdx, depthIdx []int // subset index selections; nil keeps all

	mu   sync.Mutex
	open map[string]Dataset
}

// recordRef addresses one time slice: a file and a record index within it.
type recordRef struct {
	path string
	rec  int
}

func (s *fieldSource) dataset(path string) (Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		s.open = make(map[string]Dataset)
	}
	if d, ok := s.open[path]; ok {
		return d, nil
	}
	d, err := OpenDataset(s.backend, path)
	if err != nil {
		return nil, err
	}
	s.open[path] = d
	return d, nil
}

func (s *fieldSource) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for _, d := range s.open {
		if cerr := d.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	s.open = nil
	return err
}

// NewField creates an in-memory field. data holds one array per grid
// time slice, each shaped (lat, lon) or (depth, lat, lon).
func NewField(name string, g *Grid, data []*sparse.DenseArray) (*Field, error) {
	if len(g.Time) > 0 && len(data) != len(g.Time) {
		return nil, fmt.Errorf("drift: field %s: %d data slices for %d time slices",
			name, len(data), len(g.Time))
	}
	for _, a := range data {
		nanToZero(a)
	}
	return &Field{Name: name, Grid: g, data: data}, nil
}

// slab returns the data for time slice i, loading it if necessary.
func (f *Field) slab(i int) (*sparse.DenseArray, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a := f.data[i]; a != nil {
		return a, nil
	}
	if f.src == nil {
		return nil, fmt.Errorf("drift: field %s: time slice %d has no data", f.Name, i)
	}
	ref := f.src.refs[i]
	d, err := f.src.dataset(ref.path)
	if err != nil {
		return nil, err
	}
	var a *sparse.DenseArray
	if ref.rec < 0 {
		a, err = d.Read(f.src.varName)
	} else {
		a, err = d.ReadRecord(f.src.varName, ref.rec)
	}
	if err != nil {
		return nil, fmt.Errorf("drift: field %s: %w", f.Name, err)
	}
	a = subsetDense(a, f.src.depthIdx, f.src.latIdx, f.src.lonIdx)
	nanToZero(a)
	f.data[i] = a
	f.loaded = append(f.loaded, i)
	if len(f.loaded) > maxLoadedSlabs {
		evict := f.loaded[0]
		f.loaded = f.loaded[1:]
		f.data[evict] = nil
	}
	return a, nil
}

// Interpolate samples the field at time t (seconds on the grid's time
// axis), depth z (m), and position (lat, lon) (degrees): bilinear in
// lon/lat, linear in time between the bracketing slices, nearest depth
// level. NaN cells were replaced with zero at load time, so samples
// near land blend smoothly to zero as the original does.
func (f *Field) Interpolate(t, z, lat, lon float64) (float64, error) {
	g := f.Grid
	di, err := g.DepthIndex(z)
	if err != nil {
		return 0, err
	}
	if len(g.Time) == 0 {
		a, err := f.slab(0)
		if err != nil {
			return 0, err
		}
		return f.sample(a, di, lat, lon)
	}
	i, frac, err := g.TimeIndex(t)
	if err != nil {
		return 0, err
	}
	a0, err := f.slab(i)
	if err != nil {
		return 0, err
	}
	v0, err := f.sample(a0, di, lat, lon)
	if err != nil || frac == 0 {
		return v0, err
	}
	i1 := i + 1
	if i1 == len(g.Time) { // periodic seam: wrap to the first slice
		i1 = 0
	}
	a1, err := f.slab(i1)
	if err != nil {
		return 0, err
	}
	v1, err := f.sample(a1, di, lat, lon)
	if err != nil {
		return 0, err
	}
	return v0*(1-frac) + v1*frac, nil
}

// sample does the bilinear spatial interpolation on one time slice.
func (f *Field) sample(a *sparse.DenseArray, di int, lat, lon float64) (float64, error) {
	g := f.Grid
	yi, fy, yok := searchAxis(g.Lat, lat)
	xi, fx, xok := searchAxis(g.Lon, lon)
	if !yok || !xok {
		return 0, fmt.Errorf("%w: field %s at (%g, %g), domain lon [%g, %g] lat [%g, %g]",
			ErrOutOfBounds, f.Name, lon, lat,
			g.Lon[0], g.Lon[len(g.Lon)-1], g.Lat[0], g.Lat[len(g.Lat)-1])
	}
	get := func(y, x int) float64 {
		if len(a.Shape) == 3 {
			return a.Get(di, y, x)
		}
		return a.Get(y, x)
	}
	ny, nx := len(g.Lat), len(g.Lon)
	y1, x1 := yi+1, xi+1
	if y1 >= ny {
		y1 = yi
	}
	if x1 >= nx {
		x1 = xi
	}
	v00 := get(yi, xi)
	v01 := get(yi, x1)
	v10 := get(y1, xi)
	v11 := get(y1, x1)
	return v00*(1-fy)*(1-fx) + v01*(1-fy)*fx + v10*fy*(1-fx) + v11*fy*fx, nil
}

// Loaded reports how many time slices are currently in memory.
func (f *Field) Loaded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.data {
		if a != nil {
			n++
		}
	}
	return n
}

// Deferred reports whether the field loads time slices on demand.
func (f *Field) Deferred() bool { return f.src != nil }

func nanToZero(a *sparse.DenseArray) {
	if a == nil {
		return
	}
	for i, v := range a.Elements {
		if math.IsNaN(v) {
			a.Elements[i] = 0
		}
	}
}

// subsetDense applies per-dimension index selections to a (lat, lon) or
// (depth, lat, lon) array. Nil selections keep the dimension whole.
func subsetDense(a *sparse.DenseArray, depthIdx, latIdx, lonIdx []int) *sparse.DenseArray {
	if depthIdx == nil && latIdx == nil && lonIdx == nil {
		return a
	}
	sel := func(idx []int, n int) []int {
		if idx == nil {
			return Range(0, n)
		}
		return idx
	}
	switch len(a.Shape) {
	case 2:
		ys := sel(latIdx, a.Shape[0])
		xs := sel(lonIdx, a.Shape[1])
		out := sparse.ZerosDense(len(ys), len(xs))
		for j, y := range ys {
			for i, x := range xs {
				out.Set(a.Get(y, x), j, i)
			}
		}
		return out
	case 3:
		zs := sel(depthIdx, a.Shape[0])
		ys := sel(latIdx, a.Shape[1])
		xs := sel(lonIdx, a.Shape[2])
		out := sparse.ZerosDense(len(zs), len(ys), len(xs))
		for k, z := range zs {
			for j, y := range ys {
				for i, x := range xs {
					out.Set(a.Get(z, y, x), k, j, i)
				}
			}
		}
		return out
	default:
		return a
	}
}
