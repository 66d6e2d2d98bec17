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

	"github.com/ctessum/geom"
)

// A Particle is one Lagrangian particle: a position, a clock, and any
// extra per-particle variables declared on its set.
type Particle struct {
	ID    int
	Lon   float64 // degrees
	Lat   float64 // degrees
	Depth float64 // m, positive down

	// Time is the particle clock in seconds on its field set's time axis.
	Time float64

	// Dt is the particle's current integration step, set by the
	// executor each step; adaptive kernels may shrink it.
	Dt float64

	state StatusCode
	vars  map[string]float64
}

// State returns the particle's current status code.
func (p *Particle) State() StatusCode { return p.state }

// Delete marks the particle for removal. Removal happens between
// kernel passes.
func (p *Particle) Delete() { p.state = StatusDelete }

// Deleted reports whether the particle is marked for removal.
func (p *Particle) Deleted() bool { return p.state == StatusDelete }

// Point returns the particle's horizontal position.
func (p *Particle) Point() geom.Point { return geom.Point{X: p.Lon, Y: p.Lat} }

// Var returns the value of a declared extra variable.
func (p *Particle) Var(name string) float64 { return p.vars[name] }

// SetVar sets a declared extra variable.
func (p *Particle) SetVar(name string, v float64) {
	if p.vars == nil {
		p.vars = make(map[string]float64)
	}
	p.vars[name] = v
}

// AddVar adds to a declared extra variable.
func (p *Particle) AddVar(name string, v float64) { p.SetVar(name, p.vars[name]+v) }

func (p *Particle) String() string {
	return fmt.Sprintf("P[%d](lon=%g, lat=%g, depth=%g, time=%g)",
		p.ID, p.Lon, p.Lat, p.Depth, p.Time)
}

// A VariableSpec declares an extra per-particle variable, initialized
// either to a constant or to a field sampled at the particle's initial
// position and time.
type VariableSpec struct {
	Name        string
	Initial     float64
	InitialFrom *Field
}

// initialize sets the variable on p, sampling InitialFrom if given.
func (v *VariableSpec) initialize(p *Particle) error {
	val := v.Initial
	if v.InitialFrom != nil {
		var err error
		val, err = v.InitialFrom.Interpolate(p.Time, p.Depth, p.Lat, p.Lon)
		if err != nil {
			return fmt.Errorf("drift: initializing variable %s of particle %d: %w",
				v.Name, p.ID, err)
		}
	}
	p.SetVar(v.Name, val)
	return nil
}
