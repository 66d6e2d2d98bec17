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
	"path/filepath"
	"sort"
	"time"

	"github.com/ctessum/sparse"
)

// metersPerDegree is the length of one degree of latitude (or of
// longitude at the equator): one nautical mile per arc minute.
const metersPerDegree = 1852. * 60.

// A FieldSet is a collection of named fields on a shared grid. U and V
// (velocity, m/s) are always present; arbitrary extra scalar fields may
// be added.
type FieldSet struct {
	U, V   *Field
	Fields map[string]*Field
}

// Field returns the named field.
func (fs *FieldSet) Field(name string) (*Field, bool) {
	f, ok := fs.Fields[name]
	return f, ok
}

// Grid returns the shared grid.
func (fs *FieldSet) Grid() *Grid { return fs.U.Grid }

// Close releases any open dataset handles held by deferred-load fields.
func (fs *FieldSet) Close() error {
	var err error
	for _, f := range fs.Fields {
		if f.src != nil {
			if cerr := f.src.close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}
	return err
}

// Velocity samples U and V at the given time and position and converts
// them from m/s to degrees/s on a spherical mesh: zonal velocity is
// scaled by the local latitude circle radius, meridional by the
// meridian.
func (fs *FieldSet) Velocity(t, z, lat, lon float64) (u, v float64, err error) {
	u, err = fs.U.Interpolate(t, z, lat, lon)
	if err != nil {
		return 0, 0, err
	}
	v, err = fs.V.Interpolate(t, z, lat, lon)
	if err != nil {
		return 0, 0, err
	}
	u /= metersPerDegree * cosd(lat)
	v /= metersPerDegree
	return u, v, nil
}

// loadConfig collects the options for LoadFieldSet.
type loadConfig struct {
	backend    Backend
	indices    Indices
	timestamps []time.Time
	eager      bool
	period     time.Duration
}

// A LoadOption modifies how LoadFieldSet reads its files.
type LoadOption func(*loadConfig)

// UseBackend selects the NetCDF reader implementation.
func UseBackend(b Backend) LoadOption {
	return func(c *loadConfig) { c.backend = b }
}

// UseIndices restricts the loaded grid to the given per-dimension index
// selections, in the manner of loading only a window of a global
// product.
func UseIndices(idx Indices) LoadOption {
	return func(c *loadConfig) { c.indices = idx }
}

// UseTimestamps overrides the time coordinate read from the files with
// caller-supplied timestamps, one per record across all files in order.
// Required when the files carry no time coordinate.
func UseTimestamps(ts []time.Time) LoadOption {
	return func(c *loadConfig) { c.timestamps = ts }
}

// EagerLoad reads all time slices into memory at construction instead
// of the default on-demand (deferred) loading.
func EagerLoad() LoadOption {
	return func(c *loadConfig) { c.eager = true }
}

// TimePeriodic declares the fields periodic in time with the given
// period, enabling wraparound sampling beyond the time axis.
func TimePeriodic(period time.Duration) LoadOption {
	return func(c *loadConfig) { c.period = period }
}

// LoadFieldSet reads a field set from NetCDF files. paths entries may
// be glob patterns; the expanded list is sorted by filename and the
// files' time axes concatenated in that order. variables maps field
// names (which must include "U" and "V") to file variable names;
// dimensions maps the axis roles "lon", "lat", and optionally "time"
// and "depth" to the files' coordinate variable names.
func LoadFieldSet(paths []string, variables, dimensions map[string]string, opts ...LoadOption) (*FieldSet, error) {
	cfg := &loadConfig{backend: BackendCDF}
	for _, opt := range opts {
		opt(cfg)
	}
	for _, role := range []string{"U", "V"} {
		if _, ok := variables[role]; !ok {
			return nil, fmt.Errorf("drift: field set requires a %s variable", role)
		}
	}

	files, err := expandPaths(paths)
	if err != nil {
		return nil, err
	}

	first, err := OpenDataset(cfg.backend, files[0])
	if err != nil {
		return nil, err
	}

	lon, lat, depth, err := readAxes(first, dimensions)
	if err != nil {
		first.Close()
		return nil, err
	}

	// Count records per file and assemble the time axis.
	timeVar := dimensions["time"]
	var times []time.Time
	var refs []recordRef
	for _, path := range files {
		var d Dataset
		if path == files[0] {
			d = first
		} else {
			if d, err = OpenDataset(cfg.backend, path); err != nil {
				first.Close()
				return nil, err
			}
		}
		nrec, whole, fileTimes, err := readFileTimes(d, path, timeVar, variables["U"])
		if err != nil {
			d.Close()
			first.Close()
			return nil, err
		}
		times = append(times, fileTimes...)
		for r := 0; r < nrec; r++ {
			ref := recordRef{path: path, rec: r}
			if whole {
				ref.rec = -1 // variable has no time dimension; read it whole
			}
			refs = append(refs, ref)
		}
		if path != files[0] {
			d.Close()
		}
	}
	first.Close()

	if cfg.timestamps != nil {
		if len(cfg.timestamps) != len(refs) {
			return nil, fmt.Errorf("drift: %d timestamps supplied for %d records",
				len(cfg.timestamps), len(refs))
		}
		times = cfg.timestamps
	} else if timeVar == "" {
		return nil, fmt.Errorf("drift: no time dimension named and no timestamps supplied")
	}

	grid, err := NewGrid(lon, lat, depth, times)
	if err != nil {
		return nil, err
	}
	if cfg.indices != nil {
		if grid, err = grid.Subset(cfg.indices); err != nil {
			return nil, err
		}
	}
	grid.Period = cfg.period.Seconds()

	fs := &FieldSet{Fields: make(map[string]*Field)}
	for name, varName := range variables {
		f := &Field{
			Name: name,
			Grid: grid,
			data: make([]*sparse.DenseArray, len(refs)),
			src: &fieldSource{
				backend: cfg.backend,
				varName: varName,
				refs:    refs,
			},
		}
		if cfg.indices != nil {
			f.src.lonIdx = cfg.indices["lon"]
			f.src.latIdx = cfg.indices["lat"]
			f.src.depthIdx = cfg.indices["depth"]
		}
		fs.Fields[name] = f
	}
	fs.U = fs.Fields["U"]
	fs.V = fs.Fields["V"]

	if cfg.eager {
		if err := fs.loadAll(); err != nil {
			fs.Close()
			return nil, err
		}
	}
	return fs, nil
}

// loadAll reads every time slice of every field into memory and
// converts the fields to in-memory mode.
func (fs *FieldSet) loadAll() error {
	for _, f := range fs.Fields {
		src := f.src
		for i := range f.data {
			if f.data[i] != nil {
				continue
			}
			ref := src.refs[i]
			d, err := src.dataset(ref.path)
			if err != nil {
				return err
			}
			var a *sparse.DenseArray
			if ref.rec < 0 {
				a, err = d.Read(src.varName)
			} else {
				a, err = d.ReadRecord(src.varName, ref.rec)
			}
			if err != nil {
				return fmt.Errorf("drift: field %s: %w", f.Name, err)
			}
			a = subsetDense(a, src.depthIdx, src.latIdx, src.lonIdx)
			nanToZero(a)
			f.data[i] = a
		}
		f.src = nil
		f.loaded = nil
		if err := src.close(); err != nil {
			return err
		}
	}
	return nil
}

// NewFieldSetData builds a field set from in-memory velocity arrays,
// one (lat, lon) array per time slice.
func NewFieldSetData(u, v []*sparse.DenseArray, lon, lat []float64, times []time.Time) (*FieldSet, error) {
	grid, err := NewGrid(lon, lat, nil, times)
	if err != nil {
		return nil, err
	}
	uf, err := NewField("U", grid, u)
	if err != nil {
		return nil, err
	}
	vf, err := NewField("V", grid, v)
	if err != nil {
		return nil, err
	}
	return NewFieldSet(uf, vf), nil
}

// NewFieldSet assembles a field set from already-constructed fields.
func NewFieldSet(u, v *Field, extra ...*Field) *FieldSet {
	fs := &FieldSet{U: u, V: v, Fields: map[string]*Field{"U": u, "V": v}}
	for _, f := range extra {
		fs.Fields[f.Name] = f
	}
	return fs
}

// AddField adds an extra scalar field to the set.
func (fs *FieldSet) AddField(f *Field) { fs.Fields[f.Name] = f }

func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("drift: bad file pattern %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("drift: no input files")
	}
	sort.Strings(files)
	return files, nil
}

// readAxes reads the lon/lat (and optional depth) coordinate variables.
// Two-dimensional nav_lon/nav_lat style coordinates are reduced to
// their first row and column, assuming a rectilinear grid.
func readAxes(d Dataset, dimensions map[string]string) (lon, lat, depth []float64, err error) {
	lonName, ok := dimensions["lon"]
	if !ok {
		return nil, nil, nil, fmt.Errorf("drift: no lon dimension named")
	}
	latName, ok := dimensions["lat"]
	if !ok {
		return nil, nil, nil, fmt.Errorf("drift: no lat dimension named")
	}
	lonA, err := d.Read(lonName)
	if err != nil {
		return nil, nil, nil, err
	}
	latA, err := d.Read(latName)
	if err != nil {
		return nil, nil, nil, err
	}
	switch len(lonA.Shape) {
	case 1:
		lon = append(lon, lonA.Elements...)
	case 2: // nav_lon(y, x): take the first row
		for i := 0; i < lonA.Shape[1]; i++ {
			lon = append(lon, lonA.Get(0, i))
		}
	default:
		return nil, nil, nil, fmt.Errorf("drift: unsupported lon coordinate rank %d", len(lonA.Shape))
	}
	switch len(latA.Shape) {
	case 1:
		lat = append(lat, latA.Elements...)
	case 2: // nav_lat(y, x): take the first column
		for j := 0; j < latA.Shape[0]; j++ {
			lat = append(lat, latA.Get(j, 0))
		}
	default:
		return nil, nil, nil, fmt.Errorf("drift: unsupported lat coordinate rank %d", len(latA.Shape))
	}
	if depthName, ok := dimensions["depth"]; ok {
		depthA, err := d.Read(depthName)
		if err != nil {
			return nil, nil, nil, err
		}
		depth = append(depth, depthA.Elements...)
	}
	return lon, lat, depth, nil
}

// readFileTimes returns the number of records in one file and, if a
// time coordinate is named, their timestamps. whole reports that the
// data variables carry no time dimension, so each file is one record
// read whole.
func readFileTimes(d Dataset, path, timeVar, uVar string) (nrec int, whole bool, times []time.Time, err error) {
	_, lens, err := d.Dims(uVar)
	if err != nil {
		return 0, false, nil, err
	}
	if timeVar == "" {
		if len(lens) < 3 {
			return 1, true, nil, nil
		}
		return lens[0], false, nil, nil
	}
	ta, err := d.Read(timeVar)
	if err != nil {
		return 0, false, nil, err
	}
	epoch, scale, err := parseTimeUnits(attrString(d.Attribute(timeVar, "units")))
	if err != nil {
		return 0, false, nil, fmt.Errorf("drift: time coordinate in %s: %w", path, err)
	}
	times = make([]time.Time, len(ta.Elements))
	for i, v := range ta.Elements {
		times[i] = epoch.Add(time.Duration(v * scale * float64(time.Second)))
	}
	whole = len(lens) < 3
	return len(times), whole, times, nil
}
