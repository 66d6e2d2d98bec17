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
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
)

// An obs is one recorded particle state.
type obs struct {
	Time, Lat, Lon, Depth float64
}

// A ParticleFile accumulates particle snapshots during execution and
// writes them out as a (trajectory, obs) NetCDF file or as GeoJSON.
type ParticleFile struct {
	mu    sync.Mutex
	order []int         // particle IDs in first-seen order
	rows  map[int][]obs // ID -> observation series
}

// NewParticleFile creates an empty trajectory accumulator.
func NewParticleFile() *ParticleFile {
	return &ParticleFile{rows: make(map[int][]obs)}
}

// Snapshot records the current state of every particle.
func (pf *ParticleFile) Snapshot(particles []*Particle) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	for _, p := range particles {
		if p == nil || p.Deleted() {
			continue
		}
		if _, ok := pf.rows[p.ID]; !ok {
			pf.order = append(pf.order, p.ID)
		}
		pf.rows[p.ID] = append(pf.rows[p.ID], obs{
			Time: p.Time, Lat: p.Lat, Lon: p.Lon, Depth: p.Depth,
		})
	}
}

// Trajectories returns the recorded paths, one per particle in
// first-seen order.
func (pf *ParticleFile) Trajectories() (ids []int, paths [][]geom.Point) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	for _, id := range pf.order {
		pts := make([]geom.Point, len(pf.rows[id]))
		for i, o := range pf.rows[id] {
			pts[i] = geom.Point{X: o.Lon, Y: o.Lat}
		}
		ids = append(ids, id)
		paths = append(paths, pts)
	}
	return ids, paths
}

// WriteNetCDF writes the recorded trajectories to path in the
// (trajectory, obs) layout: variables trajectory, time, lat, lon, z.
// Unobserved tail slots are NaN-filled.
func (pf *ParticleFile) WriteNetCDF(path string) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	n := len(pf.order)
	maxObs := 0
	for _, id := range pf.order {
		if len(pf.rows[id]) > maxObs {
			maxObs = len(pf.rows[id])
		}
	}
	if n == 0 || maxObs == 0 {
		return fmt.Errorf("drift: no trajectories recorded")
	}

	h := cdf.NewHeader([]string{"trajectory", "obs"}, []int{n, maxObs})
	h.AddVariable("trajectory", []string{"trajectory"}, []int32{0})
	h.AddAttribute("trajectory", "description", "particle ID")
	for _, v := range []struct{ name, units string }{
		{"time", "seconds since start of the field time axis"},
		{"lat", "degrees_north"},
		{"lon", "degrees_east"},
		{"z", "m"},
	} {
		h.AddVariable(v.name, []string{"trajectory", "obs"}, []float64{0})
		h.AddAttribute(v.name, "units", v.units)
	}
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("drift: creating trajectory file: %w", err)
	}

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("drift: creating trajectory file: %w", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("drift: creating trajectory file: %w", err)
	}

	ids := make([]int32, n)
	times := make([]float64, n*maxObs)
	lats := make([]float64, n*maxObs)
	lons := make([]float64, n*maxObs)
	zs := make([]float64, n*maxObs)
	for i := range times {
		times[i], lats[i], lons[i], zs[i] = math.NaN(), math.NaN(), math.NaN(), math.NaN()
	}
	for row, id := range pf.order {
		ids[row] = int32(id)
		for j, o := range pf.rows[id] {
			k := row*maxObs + j
			times[k], lats[k], lons[k], zs[k] = o.Time, o.Lat, o.Lon, o.Depth
		}
	}

	w := f.Writer("trajectory", []int{0}, []int{n})
	if _, err := w.Write(ids); err != nil {
		return fmt.Errorf("drift: writing trajectory IDs: %w", err)
	}
	for _, v := range []struct {
		name string
		data []float64
	}{{"time", times}, {"lat", lats}, {"lon", lons}, {"z", zs}} {
		w := f.Writer(v.name, []int{0, 0}, []int{n, maxObs})
		if _, err := w.Write(v.data); err != nil {
			return fmt.Errorf("drift: writing trajectory variable %s: %w", v.name, err)
		}
	}
	return nil
}

// geoJSONFeature and geoJSONCollection carry the GeoJSON framing around
// the geometry encoding provided by the geom package.
type geoJSONFeature struct {
	Type       string                 `json:"type"`
	Geometry   *geojson.Geometry      `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

// WriteGeoJSON writes the recorded trajectories to w as a GeoJSON
// FeatureCollection of points with pid and obs properties.
func (pf *ParticleFile) WriteGeoJSON(w io.Writer) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	coll := geoJSONCollection{Type: "FeatureCollection"}
	for _, id := range pf.order {
		for j, o := range pf.rows[id] {
			g, err := geojson.ToGeoJSON(geom.Point{X: o.Lon, Y: o.Lat})
			if err != nil {
				return fmt.Errorf("drift: encoding trajectory point: %w", err)
			}
			coll.Features = append(coll.Features, geoJSONFeature{
				Type:     "Feature",
				Geometry: g,
				Properties: map[string]interface{}{
					"pid":  id,
					"obs":  j,
					"time": o.Time,
					"z":    o.Depth,
				},
			})
		}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(coll)
}

// ReadTrajectories reads a trajectory NetCDF file written by
// WriteNetCDF, returning IDs and paths with NaN-padded tails trimmed.
func ReadTrajectories(path string) (ids []int, paths [][]geom.Point, err error) {
	d, err := OpenDataset(BackendCDF, path)
	if err != nil {
		return nil, nil, err
	}
	defer d.Close()

	idA, err := d.Read("trajectory")
	if err != nil {
		return nil, nil, err
	}
	latA, err := d.Read("lat")
	if err != nil {
		return nil, nil, err
	}
	lonA, err := d.Read("lon")
	if err != nil {
		return nil, nil, err
	}
	n, maxObs := latA.Shape[0], latA.Shape[1]
	for row := 0; row < n; row++ {
		var pts []geom.Point
		for j := 0; j < maxObs; j++ {
			lat, lon := latA.Get(row, j), lonA.Get(row, j)
			if math.IsNaN(lat) || math.IsNaN(lon) {
				continue
			}
			pts = append(pts, geom.Point{X: lon, Y: lat})
		}
		ids = append(ids, int(idA.Get1d(row)))
		paths = append(paths, pts)
	}
	// Rows are stored in first-seen order; return them sorted by ID for
	// stable downstream output.
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return ids[idx[a]] < ids[idx[b]] })
	outIDs := make([]int, n)
	outPaths := make([][]geom.Point, n)
	for i, j := range idx {
		outIDs[i], outPaths[i] = ids[j], paths[j]
	}
	return outIDs, outPaths, nil
}
