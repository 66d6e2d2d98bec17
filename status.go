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
	"errors"
	"fmt"
)

// A StatusCode is returned by a kernel to report the outcome of one
// evaluation for one particle. Codes at or above StatusError trigger
// the recovery machinery in ParticleSet.Execute.
type StatusCode int

const (
	// StatusSuccess indicates the particle can advance to the next time step.
	StatusSuccess StatusCode = iota

	// StatusEvaluate indicates the kernel needs to be re-evaluated at the
	// particle's current time before the particle can advance.
	StatusEvaluate

	// StatusRepeat indicates the current step should be attempted again,
	// for example after a recovery kernel has moved the particle.
	StatusRepeat

	// StatusDelete marks the particle for removal from the set. Removal
	// happens between kernel passes, so deleting one particle never
	// perturbs the trajectory of another.
	StatusDelete

	// StatusStop halts execution for all particles.
	StatusStop

	// StatusError is a generic kernel failure.
	StatusError

	// StatusErrorOutOfBounds indicates a field was sampled outside
	// its spatial domain.
	StatusErrorOutOfBounds

	// StatusErrorThroughSurface indicates a particle moved above the
	// ocean surface (negative depth).
	StatusErrorThroughSurface

	// StatusErrorTimeExtrapolation indicates a field was sampled outside
	// its time axis and the field is not time-periodic.
	StatusErrorTimeExtrapolation
)

func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusEvaluate:
		return "Evaluate"
	case StatusRepeat:
		return "Repeat"
	case StatusDelete:
		return "Delete"
	case StatusStop:
		return "StopExecution"
	case StatusError:
		return "Error"
	case StatusErrorOutOfBounds:
		return "ErrorOutOfBounds"
	case StatusErrorThroughSurface:
		return "ErrorThroughSurface"
	case StatusErrorTimeExtrapolation:
		return "ErrorTimeExtrapolation"
	default:
		return fmt.Sprintf("StatusCode(%d)", int(s))
	}
}

// IsError reports whether s aborts a particle's time step.
func (s StatusCode) IsError() bool { return s >= StatusError }

// Sentinel errors returned by field sampling. Kernels are expected to
// translate them to status codes with Status.
var (
	// ErrOutOfBounds is returned when a sample position falls outside
	// the spatial extent of a field.
	ErrOutOfBounds = errors.New("drift: field sampled out of bounds")

	// ErrTimeExtrapolation is returned when a sample time falls outside
	// the time axis of a non-periodic field.
	ErrTimeExtrapolation = errors.New("drift: field sampled outside time axis")

	// ErrThroughSurface is returned when a sample depth is negative.
	ErrThroughSurface = errors.New("drift: field sampled above surface")
)

// Status translates a field sampling error into the status code a
// kernel should return for it.
func Status(err error) StatusCode {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrOutOfBounds):
		return StatusErrorOutOfBounds
	case errors.Is(err, ErrTimeExtrapolation):
		return StatusErrorTimeExtrapolation
	case errors.Is(err, ErrThroughSurface):
		return StatusErrorThroughSurface
	default:
		return StatusError
	}
}

// A KernelError describes a kernel failure that no recovery kernel
// handled.
type KernelError struct {
	Particle *Particle
	Code     StatusCode
	Kernel   string
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("drift: kernel %s: particle %d at (%g, %g) t=%gs: %v",
		e.Kernel, e.Particle.ID, e.Particle.Lon, e.Particle.Lat, e.Particle.Time, e.Code)
}
