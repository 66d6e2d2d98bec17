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

package driftutil

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/oceandrift/drift"
)

// PlotTrajectories reads a trajectory NetCDF file and renders the
// particle paths as a PNG image written to w.
func PlotTrajectories(path string, w io.Writer) error {
	ids, paths, err := drift.ReadTrajectories(path)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = "Particle trajectories"
	p.X.Label.Text = "Longitude [degrees East]"
	p.Y.Label.Text = "Latitude [degrees North]"

	for i, pts := range paths {
		xys := make(plotter.XYs, len(pts))
		for j, pt := range pts {
			xys[j].X = pt.X
			xys[j].Y = pt.Y
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("driftutil: plotting trajectory %d: %w", ids[i], err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("particle %d", ids[i]), line)
	}

	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
