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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/cdf"
)

const (
	testUVar = "eastward_eulerian_current_velocity"
	testVVar = "northward_eulerian_current_velocity"
)

var testEpoch = time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)

// testAxes returns the coordinate axes used by the synthetic velocity
// files: lon [-10, 10] and lat [30, 40] at half-degree spacing.
func testAxes() (lon, lat []float64) {
	for x := -10.; x <= 10.+1e-9; x += 0.5 {
		lon = append(lon, x)
	}
	for y := 30.; y <= 40.+1e-9; y += 0.5 {
		lat = append(lat, y)
	}
	return lon, lat
}

// velocityAt defines a synthetic flow in m/s as a function of time
// (hours since the epoch) and position.
type velocityAt func(tHours, lat, lon float64) (u, v float64)

// gyreFlow is a single closed gyre filling the test domain, with a
// slow time modulation. The normal velocity vanishes on the domain
// boundary so particles seeded inside stay inside.
func gyreFlow(tHours, lat, lon float64) (u, v float64) {
	xf := (lon + 10) / 20
	yf := (lat - 30) / 10
	s := 1 + 0.3*math.Sin(2*math.Pi*tHours/240)
	u = -0.6 * s * math.Sin(math.Pi*xf) * math.Cos(math.Pi*yf)
	v = 0.3 * s * math.Cos(math.Pi*xf) * math.Sin(math.Pi*yf)
	return u, v
}

// writeVelocityFile writes one synthetic velocity file in the layout
// of an ocean current analysis product: 1-D lon/lat/time coordinates
// and float32 velocities with dimension order (time, lat, lon). When
// withTime is false the time coordinate variable is omitted.
func writeVelocityFile(t *testing.T, path string, lon, lat, hours []float64, vel velocityAt, withTime bool) {
	t.Helper()
	nx, ny, nt := len(lon), len(lat), len(hours)

	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{nt, ny, nx})
	if withTime {
		h.AddVariable("time", []string{"time"}, []float64{0})
		h.AddAttribute("time", "units", "hours since 1950-01-01 00:00:00")
	}
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddVariable(testUVar, []string{"time", "lat", "lon"}, []float32{0})
	h.AddAttribute(testUVar, "units", "m s-1")
	h.AddVariable(testVVar, []string{"time", "lat", "lon"}, []float32{0})
	h.AddAttribute(testVVar, "units", "m s-1")
	h.Define()
	for _, err := range h.Check() {
		t.Fatal(err)
	}

	ff, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		t.Fatal(err)
	}

	write := func(v string, begin, end []int, data interface{}) {
		t.Helper()
		if _, err := f.Writer(v, begin, end).Write(data); err != nil {
			t.Fatalf("writing %s: %v", v, err)
		}
	}
	if withTime {
		write("time", []int{0}, []int{nt}, hours)
	}
	write("lat", []int{0}, []int{ny}, lat)
	write("lon", []int{0}, []int{nx}, lon)

	ubuf := make([]float32, nt*ny*nx)
	vbuf := make([]float32, nt*ny*nx)
	for k, hr := range hours {
		for j, y := range lat {
			for i, x := range lon {
				u, v := vel(hr, y, x)
				ubuf[(k*ny+j)*nx+i] = float32(u)
				vbuf[(k*ny+j)*nx+i] = float32(v)
			}
		}
	}
	write(testUVar, []int{0, 0, 0}, []int{nt, ny, nx}, ubuf)
	write(testVVar, []int{0, 0, 0}, []int{nt, ny, nx}, vbuf)

	if err := cdf.UpdateNumRecs(ff); err != nil {
		t.Fatal(err)
	}
}

// writeVelocitySeries writes nfiles velocity files of perFile slices
// each, spaced stepHours apart starting at the epoch, and returns a
// glob pattern matching them together with all slice timestamps.
func writeVelocitySeries(t *testing.T, dir string, nfiles, perFile int, stepHours float64, vel velocityAt, withTime bool) (pattern string, stamps []time.Time) {
	t.Helper()
	lon, lat := testAxes()
	rec := 0
	for fi := 0; fi < nfiles; fi++ {
		hours := make([]float64, perFile)
		for k := range hours {
			hours[k] = float64(rec) * stepHours
			stamps = append(stamps, testEpoch.Add(time.Duration(hours[k]*float64(time.Hour))))
			rec++
		}
		path := filepath.Join(dir, fmt.Sprintf("vel_%04d.nc", fi))
		writeVelocityFile(t, path, lon, lat, hours, vel, withTime)
	}
	return filepath.Join(dir, "vel_*.nc"), stamps
}

// testVariables and testDimensions are the maps most tests load the
// fixture files with.
func testVariables() map[string]string {
	return map[string]string{"U": testUVar, "V": testVVar}
}

func testDimensions() map[string]string {
	return map[string]string{"lon": "lon", "lat": "lat", "time": "time"}
}

// loadTestFieldSet writes a small velocity series and loads it.
func loadTestFieldSet(t *testing.T, opts ...LoadOption) *FieldSet {
	t.Helper()
	pattern, _ := writeVelocitySeries(t, t.TempDir(), 3, 4, 6, gyreFlow, true)
	fs, err := LoadFieldSet([]string{pattern}, testVariables(), testDimensions(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fs.Close() })
	return fs
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
