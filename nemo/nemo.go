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

// Package nemo reads and writes surface velocity fields in the NEMO
// ocean model's NetCDF conventions: paired <base>_U.nc and <base>_V.nc
// files carrying nav_lon/nav_lat coordinates and vozocrtx/vomecrty
// velocities with dimension order (time_counter, depth, y, x).
package nemo

import (
	"fmt"
	"math"
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/interp"

	"github.com/oceandrift/drift"
)

// A Grid holds one surface velocity snapshot on a NEMO grid, with
// separate coordinate axes for the U and V staggering.
type Grid struct {
	LonU, LatU []float64
	LonV, LatV []float64
	Depth      []float64
	TimeStamps []float64 // raw time_counter values

	// U and V are surface velocities shaped (y, x).
	U, V *sparse.DenseArray

	// Degree is the spline degree used by Eval: 1 for bilinear,
	// 3 (the default) for bicubic.
	Degree int

	interpU, interpV *bivariate
}

// Read opens <base>_U.nc and <base>_V.nc and loads the surface
// velocity slab (first time record, first depth level). NaN cells are
// replaced with zero so the spline interpolation stays finite over
// land.
func Read(base string, degree int) (*Grid, error) {
	if degree <= 0 {
		degree = 3
	}
	g := &Grid{Degree: degree}

	du, err := drift.OpenDataset(drift.BackendCDF, base+"_U.nc")
	if err != nil {
		return nil, err
	}
	defer du.Close()
	dv, err := drift.OpenDataset(drift.BackendCDF, base+"_V.nc")
	if err != nil {
		return nil, err
	}
	defer dv.Close()

	if g.LonU, g.LatU, err = readNav(du); err != nil {
		return nil, fmt.Errorf("nemo: %s_U.nc: %w", base, err)
	}
	if g.LonV, g.LatV, err = readNav(dv); err != nil {
		return nil, fmt.Errorf("nemo: %s_V.nc: %w", base, err)
	}
	if depth, err := du.Read("depthu"); err == nil {
		g.Depth = append(g.Depth, depth.Elements...)
	}
	if tc, err := du.Read("time_counter"); err == nil {
		g.TimeStamps = append(g.TimeStamps, tc.Elements...)
	}
	if g.U, err = readSurface(du, "vozocrtx"); err != nil {
		return nil, fmt.Errorf("nemo: %s_U.nc: %w", base, err)
	}
	if g.V, err = readSurface(dv, "vomecrty"); err != nil {
		return nil, fmt.Errorf("nemo: %s_V.nc: %w", base, err)
	}
	return g, nil
}

// readNav reduces the 2-D nav_lon/nav_lat coordinates to rectilinear
// axes: the first row of nav_lon and the first column of nav_lat.
func readNav(d drift.Dataset) (lon, lat []float64, err error) {
	lonA, err := d.Read("nav_lon")
	if err != nil {
		return nil, nil, err
	}
	latA, err := d.Read("nav_lat")
	if err != nil {
		return nil, nil, err
	}
	for i := 0; i < lonA.Shape[1]; i++ {
		lon = append(lon, lonA.Get(0, i))
	}
	for j := 0; j < latA.Shape[0]; j++ {
		lat = append(lat, latA.Get(j, 0))
	}
	return lon, lat, nil
}

// readSurface reads the first time record of a velocity variable and
// slices out the first depth level.
func readSurface(d drift.Dataset, varName string) (*sparse.DenseArray, error) {
	rec, err := d.ReadRecord(varName, 0) // (depth, y, x)
	if err != nil {
		return nil, err
	}
	if len(rec.Shape) != 3 {
		return nil, fmt.Errorf("nemo: variable %s has rank %d, want 3 after the time record", varName, len(rec.Shape))
	}
	ny, nx := rec.Shape[1], rec.Shape[2]
	out := sparse.ZerosDense(ny, nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			v := rec.Get(0, j, i)
			if math.IsNaN(v) {
				v = 0
			}
			out.Set(v, j, i)
		}
	}
	return out, nil
}

// Eval interpolates the velocity components at (lon, lat).
func (g *Grid) Eval(lon, lat float64) (u, v float64, err error) {
	if g.interpU == nil {
		if g.interpU, err = newBivariate(g.LatU, g.LonU, g.U, g.Degree); err != nil {
			return 0, 0, err
		}
		if g.interpV, err = newBivariate(g.LatV, g.LonV, g.V, g.Degree); err != nil {
			return 0, 0, err
		}
	}
	u, err = g.interpU.eval(lat, lon)
	if err != nil {
		return 0, 0, err
	}
	v, err = g.interpV.eval(lat, lon)
	if err != nil {
		return 0, 0, err
	}
	return u, v, nil
}

// bivariate composes 1-D spline fits along each grid row with a final
// fit across rows, approximating a rectangular bivariate spline.
type bivariate struct {
	lat, lon []float64
	rows     []interp.FittablePredictor
	degree   int
}

func newBivariate(lat, lon []float64, data *sparse.DenseArray, degree int) (*bivariate, error) {
	b := &bivariate{lat: lat, lon: lon, degree: degree}
	for j := range lat {
		row := make([]float64, len(lon))
		for i := range lon {
			row[i] = data.Get(j, i)
		}
		p := b.newPredictor()
		if err := p.Fit(lon, row); err != nil {
			return nil, fmt.Errorf("nemo: fitting row %d: %w", j, err)
		}
		b.rows = append(b.rows, p)
	}
	return b, nil
}

func (b *bivariate) newPredictor() interp.FittablePredictor {
	if b.degree >= 3 {
		return &interp.NaturalCubic{}
	}
	return &interp.PiecewiseLinear{}
}

func (b *bivariate) eval(lat, lon float64) (float64, error) {
	col := make([]float64, len(b.lat))
	for j, p := range b.rows {
		col[j] = p.Predict(lon)
	}
	pc := b.newPredictor()
	if err := pc.Fit(b.lat, col); err != nil {
		return 0, fmt.Errorf("nemo: fitting column at lon=%g: %w", lon, err)
	}
	return pc.Predict(lat), nil
}

// Write emits <base>_U.nc and <base>_V.nc in the NEMO layout, with
// valid_min/valid_max attributes on the coordinate variables. Data is
// stored (y, x), matching what Read expects back.
func (g *Grid) Write(base string) error {
	if err := writeComponent(base+"_U.nc", "depthu", "vozocrtx", g.LonU, g.LatU, g.Depth, g.TimeStamps, g.U); err != nil {
		return err
	}
	return writeComponent(base+"_V.nc", "depthv", "vomecrty", g.LonV, g.LatV, g.Depth, g.TimeStamps, g.V)
}

func writeComponent(path, depthDim, velVar string, lon, lat, depth, stamps []float64, vel *sparse.DenseArray) error {
	nx, ny, nz := len(lon), len(lat), len(depth)
	if nz == 0 {
		nz = 1
	}
	// A single record: the surface snapshot.
	if len(stamps) == 0 {
		stamps = []float64{0}
	}
	stamps = stamps[:1]

	h := cdf.NewHeader(
		[]string{"x", "y", depthDim, "time_counter"},
		[]int{nx, ny, nz, 0}, // time_counter is the record dimension
	)
	h.AddVariable("nav_lon", []string{"y", "x"}, []float32{0})
	h.AddAttribute("nav_lon", "valid_min", []float32{float32(lon[0])})
	h.AddAttribute("nav_lon", "valid_max", []float32{float32(lon[nx-1])})
	h.AddVariable("nav_lat", []string{"y", "x"}, []float32{0})
	h.AddAttribute("nav_lat", "valid_min", []float32{float32(lat[0])})
	h.AddAttribute("nav_lat", "valid_max", []float32{float32(lat[ny-1])})
	h.AddVariable(depthDim, []string{depthDim}, []float32{0})
	h.AddVariable("time_counter", []string{"time_counter"}, []float64{0})
	h.AddVariable(velVar, []string{"time_counter", depthDim, "y", "x"}, []float32{0})
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("nemo: defining %s: %w", path, err)
	}

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("nemo: creating %s: %w", path, err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("nemo: creating %s: %w", path, err)
	}

	navLon := make([]float32, ny*nx)
	navLat := make([]float32, ny*nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			navLon[j*nx+i] = float32(lon[i])
			navLat[j*nx+i] = float32(lat[j])
		}
	}
	if err := writeAll(f, "nav_lon", []int{0, 0}, []int{ny, nx}, navLon); err != nil {
		return err
	}
	if err := writeAll(f, "nav_lat", []int{0, 0}, []int{ny, nx}, navLat); err != nil {
		return err
	}
	depths := make([]float32, nz)
	for i, d := range depth {
		depths[i] = float32(d)
	}
	if err := writeAll(f, depthDim, []int{0}, []int{nz}, depths); err != nil {
		return err
	}
	if err := writeAll(f, "time_counter", []int{0}, []int{1}, stamps); err != nil {
		return err
	}

	// Surface velocity goes in record 0, level 0; deeper levels are
	// zero-filled.
	buf := make([]float32, nz*ny*nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			buf[j*nx+i] = float32(vel.Get(j, i))
		}
	}
	if err := writeAll(f, velVar, []int{0, 0, 0, 0}, []int{1, nz, ny, nx}, buf); err != nil {
		return err
	}
	if err := cdf.UpdateNumRecs(ff); err != nil {
		return fmt.Errorf("nemo: finalizing %s: %w", path, err)
	}
	return nil
}

func writeAll(f *cdf.File, v string, begin, end []int, data interface{}) error {
	w := f.Writer(v, begin, end)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("nemo: writing %s: %w", v, err)
	}
	return nil
}
