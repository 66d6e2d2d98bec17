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
	"testing"
	"time"

	"github.com/ctessum/sparse"
)

func TestLoadFieldSet(t *testing.T) {
	fs := loadTestFieldSet(t)
	g := fs.Grid()
	lon, lat := testAxes()
	if len(g.Lon) != len(lon) || len(g.Lat) != len(lat) {
		t.Fatalf("grid is %dx%d, want %dx%d", len(g.Lon), len(g.Lat), len(lon), len(lat))
	}
	if len(g.Time) != 12 {
		t.Fatalf("time axis has %d slices, want 12", len(g.Time))
	}
	// Files concatenate in sorted order with 6 h spacing.
	for i, tv := range g.Time {
		if want := float64(i) * 6 * 3600; tv != want {
			t.Errorf("time[%d] = %gs, want %gs", i, tv, want)
		}
	}
	if !g.Origin.Equal(testEpoch) {
		t.Errorf("origin = %v, want %v", g.Origin, testEpoch)
	}
	if _, ok := fs.Field("U"); !ok {
		t.Error("field set is missing U")
	}

	// Sampling at a grid node at a slice time returns the written
	// value (to float32 precision).
	u, v, err := fs.Velocity(6*3600, 0, 34, -3)
	if err != nil {
		t.Fatal(err)
	}
	wantU, wantV := gyreFlow(6, 34, -3)
	wantU /= metersPerDegree * cosd(34)
	wantV /= metersPerDegree
	if !approx(u, wantU, 1e-10) || !approx(v, wantV, 1e-10) {
		t.Errorf("velocity = (%g, %g), want (%g, %g)", u, v, wantU, wantV)
	}
}

func TestLoadFieldSetErrors(t *testing.T) {
	pattern, _ := writeVelocitySeries(t, t.TempDir(), 1, 2, 6, gyreFlow, true)

	if _, err := LoadFieldSet([]string{pattern},
		map[string]string{"U": testUVar}, testDimensions()); err == nil {
		t.Error("expected error for a missing V variable")
	}
	if _, err := LoadFieldSet([]string{pattern}, testVariables(),
		map[string]string{"lat": "lat", "time": "time"}); err == nil {
		t.Error("expected error for a missing lon dimension")
	}
	if _, err := LoadFieldSet([]string{"/nonexistent/vel_*.nc"},
		testVariables(), testDimensions()); err == nil {
		t.Error("expected error for missing files")
	}

	// Timestamp override count must match the record count.
	if _, err := LoadFieldSet([]string{pattern}, testVariables(), testDimensions(),
		UseTimestamps([]time.Time{testEpoch})); err == nil {
		t.Error("expected error for mismatched timestamp count")
	}
}

func TestLoadFieldSetIndices(t *testing.T) {
	pattern, _ := writeVelocitySeries(t, t.TempDir(), 2, 3, 6, gyreFlow, true)
	idx := Indices{"lon": Range(5, 30), "lat": Range(4, 18)}

	full, err := LoadFieldSet([]string{pattern}, testVariables(), testDimensions())
	if err != nil {
		t.Fatal(err)
	}
	defer full.Close()
	sub, err := LoadFieldSet([]string{pattern}, testVariables(), testDimensions(), UseIndices(idx))
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	g := sub.Grid()
	if len(g.Lon) != 25 || len(g.Lat) != 14 {
		t.Fatalf("subset grid is %dx%d, want 25x14", len(g.Lon), len(g.Lat))
	}
	if g.Lon[0] != full.Grid().Lon[5] || g.Lat[0] != full.Grid().Lat[4] {
		t.Error("subset axes do not start at the selected indices")
	}

	// Inside the window the two field sets sample identically.
	for _, pos := range [][2]float64{{33, -5}, {36.2, 2.7}} {
		for _, tv := range []float64{0, 9 * 3600} {
			uf, vf, err := full.Velocity(tv, 0, pos[0], pos[1])
			if err != nil {
				t.Fatal(err)
			}
			us, vs, err := sub.Velocity(tv, 0, pos[0], pos[1])
			if err != nil {
				t.Fatal(err)
			}
			if uf != us || vf != vs {
				t.Fatalf("subset velocity (%g, %g) != full (%g, %g) at t=%gs", us, vs, uf, vf, tv)
			}
		}
	}

	// Outside the window the subset is out of bounds.
	if _, _, err := sub.Velocity(0, 0, 31, -9); err == nil {
		t.Error("expected out-of-bounds outside the subset window")
	}
}

func TestLoadFieldSetTimestamps(t *testing.T) {
	// Files without a time coordinate require caller-supplied
	// timestamps; with the right stamps they load identically to
	// files that carry their own time.
	dirA, dirB := t.TempDir(), t.TempDir()
	patternA, stamps := writeVelocitySeries(t, dirA, 2, 3, 6, gyreFlow, true)
	patternB, _ := writeVelocitySeries(t, dirB, 2, 3, 6, gyreFlow, false)

	withTime, err := LoadFieldSet([]string{patternA}, testVariables(), testDimensions())
	if err != nil {
		t.Fatal(err)
	}
	defer withTime.Close()

	dims := map[string]string{"lon": "lon", "lat": "lat"}
	if _, err := LoadFieldSet([]string{patternB}, testVariables(), dims); err == nil {
		t.Fatal("expected error with neither time coordinate nor timestamps")
	}
	stamped, err := LoadFieldSet([]string{patternB}, testVariables(), dims, UseTimestamps(stamps))
	if err != nil {
		t.Fatal(err)
	}
	defer stamped.Close()

	ga, gb := withTime.Grid(), stamped.Grid()
	if len(ga.Time) != len(gb.Time) {
		t.Fatalf("time axes differ: %d vs %d", len(ga.Time), len(gb.Time))
	}
	for i := range ga.Time {
		if ga.Time[i] != gb.Time[i] {
			t.Errorf("time[%d]: %g vs %g", i, ga.Time[i], gb.Time[i])
		}
	}
	for _, tv := range []float64{0, 6 * 3600, 30 * 3600} {
		ua, va, err := withTime.Velocity(tv, 0, 35.2, 1.4)
		if err != nil {
			t.Fatal(err)
		}
		ub, vb, err := stamped.Velocity(tv, 0, 35.2, 1.4)
		if err != nil {
			t.Fatal(err)
		}
		if ua != ub || va != vb {
			t.Fatalf("velocities differ at t=%gs: (%g, %g) vs (%g, %g)", tv, ua, va, ub, vb)
		}
	}
}

func TestVelocityConversion(t *testing.T) {
	// A 1 m/s eastward current at 60 N covers twice the longitude per
	// second of the same current at the equator.
	lon := []float64{-1, 0, 1}
	lat := []float64{0, 30, 60}
	fs, err := NewFieldSetData(
		[]*sparse.DenseArray{planeField(lon, lat, 1, 0, 0)},
		[]*sparse.DenseArray{planeField(lon, lat, 0.5, 0, 0)},
		lon, lat, nil)
	if err != nil {
		t.Fatal(err)
	}
	u0, v0, err := fs.Velocity(0, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	u60, _, err := fs.Velocity(0, 0, 60, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(u0, 1/metersPerDegree, 1e-15) {
		t.Errorf("u at equator = %g, want %g", u0, 1/metersPerDegree)
	}
	if !approx(v0, 0.5/metersPerDegree, 1e-15) {
		t.Errorf("v at equator = %g, want %g", v0, 0.5/metersPerDegree)
	}
	if !approx(u60, 2*u0, 1e-12) {
		t.Errorf("u at 60N = %g, want %g", u60, 2*u0)
	}
}
