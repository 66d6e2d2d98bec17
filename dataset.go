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
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// A Dataset is a read handle on one NetCDF file. Two implementations
// are provided: BackendCDF reads classic-format files with
// github.com/ctessum/cdf, and BackendNative reads classic or netCDF-4
// files with github.com/batchatco/go-native-netcdf. Both must produce
// identical data for the same file.
type Dataset interface {
	// Variables lists the variable names in the file.
	Variables() []string

	// Dims returns the dimension names and lengths of a variable.
	Dims(name string) ([]string, []int, error)

	// Read reads an entire variable.
	Read(name string) (*sparse.DenseArray, error)

	// ReadRecord reads the i'th slab of a variable along its leading
	// dimension; the result drops that dimension.
	ReadRecord(name string, i int) (*sparse.DenseArray, error)

	// Attribute returns a variable attribute value, or nil if absent.
	Attribute(v, a string) interface{}

	Close() error
}

// A Backend selects which NetCDF reader implementation to use.
type Backend int

const (
	// BackendCDF is the github.com/ctessum/cdf classic-format reader.
	BackendCDF Backend = iota
	// BackendNative is the github.com/batchatco/go-native-netcdf reader.
	BackendNative
)

func (b Backend) String() string {
	switch b {
	case BackendCDF:
		return "cdf"
	case BackendNative:
		return "native"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend converts a backend name to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(s) {
	case "", "cdf":
		return BackendCDF, nil
	case "native":
		return BackendNative, nil
	}
	return 0, fmt.Errorf("drift: unknown dataset backend %q", s)
}

// OpenDataset opens a NetCDF file with the given backend.
func OpenDataset(b Backend, path string) (Dataset, error) {
	switch b {
	case BackendCDF:
		return openCDF(path)
	case BackendNative:
		return openNative(path)
	}
	return nil, fmt.Errorf("drift: unknown dataset backend %v", b)
}

// cdfDataset reads classic-format files through github.com/ctessum/cdf.
type cdfDataset struct {
	f  *os.File
	ff *cdf.File
}

func openCDF(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("drift: opening dataset: %w", err)
	}
	ff, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("drift: reading NetCDF header of %s: %w", path, err)
	}
	return &cdfDataset{f: f, ff: ff}, nil
}

func (d *cdfDataset) Variables() []string { return d.ff.Header.Variables() }

func (d *cdfDataset) Dims(name string) ([]string, []int, error) {
	hLens := d.ff.Header.Lengths(name)
	if len(hLens) == 0 {
		return nil, nil, fmt.Errorf("drift: variable %q not in file %s", name, d.f.Name())
	}
	lens := make([]int, len(hLens)) // Lengths returns the header's own slice
	copy(lens, hLens)
	if lens[0] == 0 { // record variable: count records from the file size
		fi, err := d.f.Stat()
		if err != nil {
			return nil, nil, fmt.Errorf("drift: sizing %s: %w", d.f.Name(), err)
		}
		lens[0] = int(d.ff.Header.NumRecs(fi.Size()))
	}
	return d.ff.Header.Dimensions(name), lens, nil
}

func (d *cdfDataset) Read(name string) (*sparse.DenseArray, error) {
	_, lens, err := d.Dims(name)
	if err != nil {
		return nil, err
	}
	n := 1
	for _, l := range lens {
		n *= l
	}
	// An explicit end index is needed for record variables, where the
	// header length is zero and a nil end would stop after one record.
	begin, end := make([]int, len(lens)), make([]int, len(lens))
	end[0] = lens[0]
	r := d.ff.Reader(name, begin, end)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("drift: reading variable %q from %s: %w", name, d.f.Name(), err)
	}
	return bufToDense(buf, lens)
}

func (d *cdfDataset) ReadRecord(name string, i int) (*sparse.DenseArray, error) {
	_, lens, err := d.Dims(name)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= lens[0] {
		return nil, fmt.Errorf("drift: record %d of variable %q out of range [0, %d)", i, name, lens[0])
	}
	rest := lens[1:]
	n := 1
	for _, l := range rest {
		n *= l
	}
	begin, end := make([]int, len(lens)), make([]int, len(lens))
	begin[0], end[0] = i, i+1
	r := d.ff.Reader(name, begin, end)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("drift: reading record %d of variable %q from %s: %w", i, name, d.f.Name(), err)
	}
	return bufToDense(buf, rest)
}

func (d *cdfDataset) Attribute(v, a string) interface{} {
	return d.ff.Header.GetAttribute(v, a)
}

func (d *cdfDataset) Close() error { return d.f.Close() }

// nativeDataset reads files through github.com/batchatco/go-native-netcdf.
type nativeDataset struct {
	path string
	g    api.Group
}

func openNative(path string) (Dataset, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("drift: opening dataset %s: %w", path, err)
	}
	return &nativeDataset{path: path, g: g}, nil
}

func (d *nativeDataset) Variables() []string { return d.g.ListVariables() }

func (d *nativeDataset) Dims(name string) ([]string, []int, error) {
	vg, err := d.g.GetVarGetter(name)
	if err != nil {
		return nil, nil, fmt.Errorf("drift: variable %q not in file %s: %w", name, d.path, err)
	}
	dims := vg.Dimensions()
	if len(dims) == 0 {
		return nil, nil, nil // scalar
	}
	lens := []int{int(vg.Len())}
	if len(dims) > 1 {
		// The reader exposes only the leading dimension's length
		// directly; take the rest from the shape of one slab.
		rec, err := vg.GetSlice(0, 1)
		if err != nil {
			return nil, nil, fmt.Errorf("drift: reading shape of variable %q in %s: %w", name, d.path, err)
		}
		shape, err := nestedShape(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("drift: variable %q in %s: %w", name, d.path, err)
		}
		lens = append(lens, shape[1:]...)
	}
	return dims, lens, nil
}

func (d *nativeDataset) Read(name string) (*sparse.DenseArray, error) {
	v, err := d.g.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("drift: reading variable %q from %s: %w", name, d.path, err)
	}
	return nestedToDense(v.Values)
}

func (d *nativeDataset) ReadRecord(name string, i int) (*sparse.DenseArray, error) {
	vg, err := d.g.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("drift: variable %q not in file %s: %w", name, d.path, err)
	}
	if i < 0 || int64(i) >= vg.Len() {
		return nil, fmt.Errorf("drift: record %d of variable %q out of range [0, %d)", i, name, vg.Len())
	}
	rec, err := vg.GetSlice(int64(i), int64(i)+1)
	if err != nil {
		return nil, fmt.Errorf("drift: reading record %d of variable %q from %s: %w", i, name, d.path, err)
	}
	a, err := nestedToDense(rec)
	if err != nil {
		return nil, err
	}
	return dropLeadingDim(a), nil
}

func (d *nativeDataset) Attribute(v, a string) interface{} {
	vg, err := d.g.GetVarGetter(v)
	if err != nil {
		return nil
	}
	val, has := vg.Attributes().Get(a)
	if !has {
		return nil
	}
	return val
}

func (d *nativeDataset) Close() error {
	d.g.Close()
	return nil
}

// bufToDense converts a flat buffer from the cdf reader into a dense
// array with the given shape.
func bufToDense(buf interface{}, shape []int) (*sparse.DenseArray, error) {
	a := sparse.ZerosDense(shape...)
	switch b := buf.(type) {
	case []float64:
		copy(a.Elements, b)
	case []float32:
		for i, v := range b {
			a.Elements[i] = float64(v)
		}
	case []int32:
		for i, v := range b {
			a.Elements[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			a.Elements[i] = float64(v)
		}
	case []uint8:
		for i, v := range b {
			a.Elements[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("drift: unsupported NetCDF buffer type %T", buf)
	}
	return a, nil
}

// nestedShape walks a nested slice (as returned by go-native-netcdf)
// and returns its dimension lengths.
func nestedShape(v interface{}) ([]int, error) {
	var shape []int
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Slice {
		shape = append(shape, rv.Len())
		if rv.Len() == 0 {
			break
		}
		rv = rv.Index(0)
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("drift: expected slice data, got %T", v)
	}
	return shape, nil
}

// nestedToDense flattens a nested numeric slice into a dense array.
func nestedToDense(v interface{}) (*sparse.DenseArray, error) {
	shape, err := nestedShape(v)
	if err != nil {
		return nil, err
	}
	a := sparse.ZerosDense(shape...)
	i := 0
	var walk func(rv reflect.Value) error
	walk = func(rv reflect.Value) error {
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Slice {
			for j := 0; j < rv.Len(); j++ {
				if err := walk(rv.Index(j)); err != nil {
					return err
				}
			}
			return nil
		}
		switch s := rv.Interface().(type) {
		case []float64:
			for _, x := range s {
				a.Elements[i] = x
				i++
			}
		case []float32:
			for _, x := range s {
				a.Elements[i] = float64(x)
				i++
			}
		case []int32:
			for _, x := range s {
				a.Elements[i] = float64(x)
				i++
			}
		case []int16:
			for _, x := range s {
				a.Elements[i] = float64(x)
				i++
			}
		case []uint8:
			for _, x := range s {
				a.Elements[i] = float64(x)
				i++
			}
		default:
			return fmt.Errorf("drift: unsupported NetCDF value type %T", s)
		}
		return nil
	}
	if err := walk(reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return a, nil
}

// dropLeadingDim removes a leading length-1 dimension.
func dropLeadingDim(a *sparse.DenseArray) *sparse.DenseArray {
	if len(a.Shape) < 2 || a.Shape[0] != 1 {
		return a
	}
	out := sparse.ZerosDense(a.Shape[1:]...)
	copy(out.Elements, a.Elements)
	return out
}

// parseTimeUnits interprets a CF-style time units attribute such as
// "hours since 1950-01-01 00:00:00", returning the epoch and the
// number of seconds per unit.
func parseTimeUnits(units string) (time.Time, float64, error) {
	fields := strings.Fields(units)
	if len(fields) < 3 || strings.ToLower(fields[1]) != "since" {
		return time.Time{}, 0, fmt.Errorf("drift: cannot parse time units %q", units)
	}
	var scale float64
	switch strings.ToLower(strings.TrimSuffix(fields[0], "s")) + "s" {
	case "seconds":
		scale = 1
	case "minutes":
		scale = 60
	case "hours":
		scale = 3600
	case "days":
		scale = 86400
	default:
		return time.Time{}, 0, fmt.Errorf("drift: unsupported time unit %q", fields[0])
	}
	stamp := strings.Join(fields[2:], " ")
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, stamp); err == nil {
			return t.UTC(), scale, nil
		}
	}
	return time.Time{}, 0, fmt.Errorf("drift: cannot parse time epoch %q", stamp)
}

// attrString renders an attribute value, which NetCDF stores as either
// a string or a byte slice, as a string.
func attrString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}
