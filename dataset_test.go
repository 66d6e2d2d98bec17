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
	"path/filepath"
	"testing"
	"time"
)

// The two reader implementations must agree on everything: names,
// shapes, attributes, and data.
func TestBackendsAgree(t *testing.T) {
	lon, lat := testAxes()
	path := filepath.Join(t.TempDir(), "vel.nc")
	writeVelocityFile(t, path, lon, lat, []float64{0, 6, 12}, gyreFlow, true)

	dc, err := OpenDataset(BackendCDF, path)
	if err != nil {
		t.Fatal(err)
	}
	defer dc.Close()
	dn, err := OpenDataset(BackendNative, path)
	if err != nil {
		t.Fatal(err)
	}
	defer dn.Close()

	for _, v := range []string{"time", "lat", "lon", testUVar, testVVar} {
		_, lensC, err := dc.Dims(v)
		if err != nil {
			t.Fatal(err)
		}
		_, lensN, err := dn.Dims(v)
		if err != nil {
			t.Fatal(err)
		}
		if len(lensC) != len(lensN) {
			t.Fatalf("%s: rank %d vs %d", v, len(lensC), len(lensN))
		}
		for i := range lensC {
			if lensC[i] != lensN[i] {
				t.Errorf("%s: dim %d is %d vs %d", v, i, lensC[i], lensN[i])
			}
		}

		ac, err := dc.Read(v)
		if err != nil {
			t.Fatal(err)
		}
		an, err := dn.Read(v)
		if err != nil {
			t.Fatal(err)
		}
		if len(ac.Elements) != len(an.Elements) {
			t.Fatalf("%s: %d vs %d elements", v, len(ac.Elements), len(an.Elements))
		}
		for i := range ac.Elements {
			if ac.Elements[i] != an.Elements[i] {
				t.Fatalf("%s[%d]: %g vs %g", v, i, ac.Elements[i], an.Elements[i])
			}
		}
	}

	// Record reads match whole reads slab for slab.
	whole, err := dc.Read(testUVar)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range []Dataset{dc, dn} {
		for rec := 0; rec < 3; rec++ {
			a, err := d.ReadRecord(testUVar, rec)
			if err != nil {
				t.Fatal(err)
			}
			if len(a.Shape) != 2 || a.Shape[0] != len(lat) || a.Shape[1] != len(lon) {
				t.Fatalf("record shape %v", a.Shape)
			}
			for j := 0; j < a.Shape[0]; j += 5 {
				for i := 0; i < a.Shape[1]; i += 5 {
					if got, want := a.Get(j, i), whole.Get(rec, j, i); got != want {
						t.Fatalf("record %d (%d,%d): %g, want %g", rec, j, i, got, want)
					}
				}
			}
		}
		if _, err := d.ReadRecord(testUVar, 3); err == nil {
			t.Error("expected error reading past the last record")
		}
	}

	for _, d := range []Dataset{dc, dn} {
		if got := attrString(d.Attribute("time", "units")); got != "hours since 1950-01-01 00:00:00" {
			t.Errorf("time units = %q", got)
		}
		if d.Attribute("time", "missing") != nil {
			t.Error("expected nil for an absent attribute")
		}
	}
}

func TestParseBackend(t *testing.T) {
	for _, test := range []struct {
		s    string
		want Backend
	}{{"", BackendCDF}, {"cdf", BackendCDF}, {"CDF", BackendCDF}, {"native", BackendNative}} {
		b, err := ParseBackend(test.s)
		if err != nil {
			t.Fatal(err)
		}
		if b != test.want {
			t.Errorf("ParseBackend(%q) = %v, want %v", test.s, b, test.want)
		}
	}
	if _, err := ParseBackend("hdf4"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestParseTimeUnits(t *testing.T) {
	tests := []struct {
		units string
		epoch time.Time
		scale float64
		ok    bool
	}{
		{"hours since 1950-01-01 00:00:00", testEpoch, 3600, true},
		{"seconds since 2001-06-15", time.Date(2001, 6, 15, 0, 0, 0, 0, time.UTC), 1, true},
		{"days since 1970-01-01T12:00:00", time.Date(1970, 1, 1, 12, 0, 0, 0, time.UTC), 86400, true},
		{"minutes since 1990-01-01 00:00:00", time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), 60, true},
		{"fortnights since 1950-01-01", time.Time{}, 0, false},
		{"hours", time.Time{}, 0, false},
	}
	for _, test := range tests {
		epoch, scale, err := parseTimeUnits(test.units)
		if test.ok != (err == nil) {
			t.Errorf("parseTimeUnits(%q) error = %v", test.units, err)
			continue
		}
		if err != nil {
			continue
		}
		if !epoch.Equal(test.epoch) || scale != test.scale {
			t.Errorf("parseTimeUnits(%q) = (%v, %g), want (%v, %g)",
				test.units, epoch, scale, test.epoch, test.scale)
		}
	}
}
