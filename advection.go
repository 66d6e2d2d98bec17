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

import "math"

// rk45MinDt is the smallest step [s] the adaptive scheme will take
// before giving up on shrinking further.
const rk45MinDt = 1.0

func cosd(deg float64) float64 { return math.Cos(deg * math.Pi / 180) }

// AdvectionEE advects particles with a first-order explicit Euler step.
var AdvectionEE = NewKernel("AdvectionEE", advectEE)

func advectEE(p *Particle, fs *FieldSet, t float64) StatusCode {
	dt := p.Dt
	u, v, err := fs.Velocity(t, p.Depth, p.Lat, p.Lon)
	if err != nil {
		return Status(err)
	}
	p.Lon += u * dt
	p.Lat += v * dt
	return StatusSuccess
}

// AdvectionRK4 advects particles with the classical fourth-order
// Runge-Kutta scheme.
var AdvectionRK4 = NewKernel("AdvectionRK4", advectRK4)

func advectRK4(p *Particle, fs *FieldSet, t float64) StatusCode {
	dt := p.Dt
	u1, v1, err := fs.Velocity(t, p.Depth, p.Lat, p.Lon)
	if err != nil {
		return Status(err)
	}
	u2, v2, err := fs.Velocity(t+dt/2, p.Depth, p.Lat+v1*dt/2, p.Lon+u1*dt/2)
	if err != nil {
		return Status(err)
	}
	u3, v3, err := fs.Velocity(t+dt/2, p.Depth, p.Lat+v2*dt/2, p.Lon+u2*dt/2)
	if err != nil {
		return Status(err)
	}
	u4, v4, err := fs.Velocity(t+dt, p.Depth, p.Lat+v3*dt, p.Lon+u3*dt)
	if err != nil {
		return Status(err)
	}
	p.Lon += (u1 + 2*u2 + 2*u3 + u4) / 6 * dt
	p.Lat += (v1 + 2*v2 + 2*v3 + v4) / 6 * dt
	return StatusSuccess
}

// AdvectionRK45 returns an adaptive Runge-Kutta-Fehlberg advection
// kernel. The step is accepted when the difference between the
// fourth- and fifth-order estimates is below tol degrees; otherwise the
// particle's Dt is halved and the step repeated. Accepted steps with
// very small error grow Dt again.
func AdvectionRK45(tol float64) *Kernel {
	// Cash-Karp tableau.
	var (
		a = [6]float64{0, 1. / 4., 3. / 8., 12. / 13., 1, 1. / 2.}
		b = [6][5]float64{
			{},
			{1. / 4.},
			{3. / 32., 9. / 32.},
			{1932. / 2197., -7200. / 2197., 7296. / 2197.},
			{439. / 216., -8, 3680. / 513., -845. / 4104.},
			{-8. / 27., 2, -3544. / 2565., 1859. / 4104., -11. / 40.},
		}
		c4 = [6]float64{25. / 216., 0, 1408. / 2565., 2197. / 4104., -1. / 5., 0}
		c5 = [6]float64{16. / 135., 0, 6656. / 12825., 28561. / 56430., -9. / 50., 2. / 55.}
	)
	return NewKernel("AdvectionRK45", func(p *Particle, fs *FieldSet, t float64) StatusCode {
		dt := p.Dt
		var us, vs [6]float64
		for i := 0; i < 6; i++ {
			lon, lat := p.Lon, p.Lat
			for j := 0; j < i; j++ {
				lon += b[i][j] * us[j] * dt
				lat += b[i][j] * vs[j] * dt
			}
			u, v, err := fs.Velocity(t+a[i]*dt, p.Depth, lat, lon)
			if err != nil {
				return Status(err)
			}
			us[i], vs[i] = u, v
		}
		var dLon4, dLat4, dLon5, dLat5 float64
		for i := 0; i < 6; i++ {
			dLon4 += c4[i] * us[i] * dt
			dLat4 += c4[i] * vs[i] * dt
			dLon5 += c5[i] * us[i] * dt
			dLat5 += c5[i] * vs[i] * dt
		}
		errEst := math.Hypot(dLon5-dLon4, dLat5-dLat4)
		if errEst > tol && math.Abs(dt) > rk45MinDt {
			p.Dt = dt / 2
			return StatusRepeat
		}
		p.Lon += dLon5
		p.Lat += dLat5
		if errEst < tol/10 {
			p.Dt = dt * 2
		}
		return StatusSuccess
	})
}

// SampleKernel returns a kernel that samples the named field at the
// particle's position each sub-step and accumulates the value into the
// particle variable of the same name.
func SampleKernel(name string) *Kernel {
	return NewKernel("Sample"+name, func(p *Particle, fs *FieldSet, t float64) StatusCode {
		f, ok := fs.Field(name)
		if !ok {
			return StatusError
		}
		v, err := f.Interpolate(t, p.Depth, p.Lat, p.Lon)
		if err != nil {
			return Status(err)
		}
		p.AddVar(name, v)
		return StatusSuccess
	})
}
