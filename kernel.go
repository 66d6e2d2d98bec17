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

// A KernelFunc updates one particle over one sub-step starting at time
// t. It may move the particle, sample fields, mutate extra variables,
// or delete the particle, and reports the outcome as a status code.
type KernelFunc func(p *Particle, fs *FieldSet, t float64) StatusCode

// A Kernel is a named chain of kernel functions that run in order each
// sub-step. Chains are built with Append, mirroring composition of
// per-step behaviors (e.g. a sampler followed by an advection scheme).
type Kernel struct {
	Name string
	fns  []KernelFunc
}

// NewKernel wraps a single kernel function.
func NewKernel(name string, f KernelFunc) *Kernel {
	return &Kernel{Name: name, fns: []KernelFunc{f}}
}

// Append returns a kernel that runs k's functions and then o's.
func (k *Kernel) Append(o *Kernel) *Kernel {
	fns := make([]KernelFunc, 0, len(k.fns)+len(o.fns))
	fns = append(fns, k.fns...)
	fns = append(fns, o.fns...)
	return &Kernel{Name: k.Name + "+" + o.Name, fns: fns}
}

// DeleteParticle is a recovery kernel that removes the offending
// particle, the usual response to particles leaving the domain.
func DeleteParticle(p *Particle, fs *FieldSet, t float64) StatusCode {
	p.Delete()
	return StatusSuccess
}

// run evaluates the chain for one particle. The first non-success
// status short-circuits the rest of the chain.
func (k *Kernel) run(p *Particle, fs *FieldSet, t float64) StatusCode {
	for _, f := range k.fns {
		if s := f(p, fs, t); s != StatusSuccess {
			return s
		}
	}
	return StatusSuccess
}
