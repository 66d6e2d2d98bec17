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
	"io"
	"math"
	"runtime"
	"sync"
	"time"
)

// maxStepRetries bounds Repeat/Evaluate/recovery loops within a single
// particle step so a misbehaving kernel cannot stall execution.
const maxStepRetries = 100

// A ParticleSet is a collection of particles advected through one
// field set.
type ParticleSet struct {
	Particles []*Particle

	fs      *FieldSet
	specs   []VariableSpec
	stopped bool
}

type psConfig struct {
	times  []float64
	depths []float64
	specs  []VariableSpec
}

// A ParticleOption modifies particle set construction.
type ParticleOption func(*psConfig, *Grid) error

// StartAge sets every particle's initial time to sec seconds on the
// field set's time axis.
func StartAge(sec float64) ParticleOption {
	return func(c *psConfig, g *Grid) error {
		c.times = []float64{sec}
		return nil
	}
}

// StartTime sets every particle's initial time from a timestamp,
// converted against the grid's time origin.
func StartTime(t time.Time) ParticleOption {
	return func(c *psConfig, g *Grid) error {
		c.times = []float64{t.Sub(g.Origin).Seconds()}
		return nil
	}
}

// StartTimes sets per-particle initial times from timestamps.
func StartTimes(ts []time.Time) ParticleOption {
	return func(c *psConfig, g *Grid) error {
		c.times = make([]float64, len(ts))
		for i, t := range ts {
			c.times[i] = t.Sub(g.Origin).Seconds()
		}
		return nil
	}
}

// StartDepths sets per-particle initial depths [m].
func StartDepths(zs []float64) ParticleOption {
	return func(c *psConfig, g *Grid) error {
		c.depths = zs
		return nil
	}
}

// DeclareVariables declares extra per-particle variables, initialized
// at construction (sampling their source fields where specified).
func DeclareVariables(specs ...VariableSpec) ParticleOption {
	return func(c *psConfig, g *Grid) error {
		c.specs = specs
		return nil
	}
}

// NewParticleSet creates a particle set from coordinate lists (the
// from-list constructor). Particles default to starting at the
// beginning of the field set's time axis.
func NewParticleSet(fs *FieldSet, lons, lats []float64, opts ...ParticleOption) (*ParticleSet, error) {
	if len(lons) != len(lats) {
		return nil, fmt.Errorf("drift: %d longitudes for %d latitudes", len(lons), len(lats))
	}
	g := fs.Grid()
	cfg := &psConfig{}
	for _, opt := range opts {
		if err := opt(cfg, g); err != nil {
			return nil, err
		}
	}
	t0 := 0.
	if len(g.Time) > 0 {
		t0 = g.Time[0]
	}
	ps := &ParticleSet{fs: fs, specs: cfg.specs}
	for i := range lons {
		p := &Particle{ID: i, Lon: lons[i], Lat: lats[i], Time: t0}
		switch len(cfg.times) {
		case 0:
		case 1:
			p.Time = cfg.times[0]
		default:
			if len(cfg.times) != len(lons) {
				return nil, fmt.Errorf("drift: %d start times for %d particles", len(cfg.times), len(lons))
			}
			p.Time = cfg.times[i]
		}
		if cfg.depths != nil {
			if len(cfg.depths) != len(lons) {
				return nil, fmt.Errorf("drift: %d depths for %d particles", len(cfg.depths), len(lons))
			}
			p.Depth = cfg.depths[i]
		}
		for i := range cfg.specs {
			if err := cfg.specs[i].initialize(p); err != nil {
				return nil, err
			}
		}
		ps.Particles = append(ps.Particles, p)
	}
	return ps, nil
}

// FieldSet returns the field set the particles are advected through.
func (ps *ParticleSet) FieldSet() *FieldSet { return ps.fs }

// Len returns the number of particles currently in the set.
func (ps *ParticleSet) Len() int { return len(ps.Particles) }

// Kernel wraps a kernel function for composition with the built-in
// kernels, e.g. ps.Kernel("DeleteP0", f).Append(AdvectionRK4).
func (ps *ParticleSet) Kernel(name string, f KernelFunc) *Kernel { return NewKernel(name, f) }

type execConfig struct {
	runtime  time.Duration
	dt       time.Duration
	recovery map[StatusCode]KernelFunc
	output   *ParticleFile
	outputDt time.Duration
	logTo    io.Writer
}

// An ExecOption modifies ParticleSet.Execute.
type ExecOption func(*execConfig)

// Runtime sets the total simulated duration.
func Runtime(d time.Duration) ExecOption {
	return func(c *execConfig) { c.runtime = d }
}

// Dt sets the integration time step. Negative steps run the simulation
// backward in time; a zero step evaluates the kernel once per particle
// without advancing the clock.
func Dt(d time.Duration) ExecOption {
	return func(c *execConfig) { c.dt = d }
}

// Recover maps an error status to a recovery kernel which is run when
// a kernel evaluation returns that status. If the recovery kernel
// leaves the particle alive, the step is retried.
func Recover(code StatusCode, k KernelFunc) ExecOption {
	return func(c *execConfig) {
		if c.recovery == nil {
			c.recovery = make(map[StatusCode]KernelFunc)
		}
		c.recovery[code] = k
	}
}

// Output writes particle snapshots to pf every interval of simulated
// time.
func Output(pf *ParticleFile, every time.Duration) ExecOption {
	return func(c *execConfig) {
		c.output = pf
		c.outputDt = every
	}
}

// LogTo writes per-pass status lines to w.
func LogTo(w io.Writer) ExecOption {
	return func(c *execConfig) { c.logTo = w }
}

// Execute advances all particles through the field set under the given
// kernel until each has covered the configured runtime. Particles are
// stepped concurrently; deletions are compacted between passes so one
// particle's removal never perturbs another's trajectory within a pass.
func (ps *ParticleSet) Execute(k *Kernel, opts ...ExecOption) error {
	cfg := &execConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(ps.Particles) == 0 {
		return nil
	}
	dt := cfg.dt.Seconds()
	ps.stopped = false

	if cfg.output != nil {
		cfg.output.Snapshot(ps.Particles)
	}

	if dt == 0 {
		// Evaluate the kernel once per particle at its current time.
		err := ps.pass(k, cfg, 0, 0, true)
		ps.compact()
		return err
	}

	// The executor tracks a single end time shared by all particles:
	// runtime counts from the earliest (latest, when running backward)
	// particle clock.
	start := ps.Particles[0].Time
	for _, p := range ps.Particles {
		if (dt > 0 && p.Time < start) || (dt < 0 && p.Time > start) {
			start = p.Time
		}
	}
	endTime := start + cfg.runtime.Seconds()
	if dt < 0 {
		endTime = start - cfg.runtime.Seconds()
	}

	for _, p := range ps.Particles {
		p.Dt = dt
	}

	wallStart := time.Now()
	nextOutput := start
	for pass := 0; ; pass++ {
		active := false
		for _, p := range ps.Particles {
			if !p.Deleted() && !stepDone(p.Time, endTime, dt) {
				active = true
				break
			}
		}
		if !active || ps.stopped {
			break
		}
		if err := ps.pass(k, cfg, dt, endTime, false); err != nil {
			return err
		}
		ps.compact()
		if cfg.logTo != nil {
			t := endTime
			if len(ps.Particles) > 0 {
				t = ps.Particles[0].Time
			}
			fmt.Fprintf(cfg.logTo, "pass %-5d walltime=%6.3gs  particles=%d  t=%gs\n",
				pass, time.Since(wallStart).Seconds(), len(ps.Particles), t)
		}
		if cfg.output != nil && len(ps.Particles) > 0 {
			t := ps.Particles[0].Time
			if math.Abs(t-nextOutput) >= cfg.outputDt.Seconds() {
				cfg.output.Snapshot(ps.Particles)
				nextOutput = t
			}
		}
	}
	if cfg.output != nil {
		cfg.output.Snapshot(ps.Particles)
	}
	return nil
}

// pass steps every particle once, splitting the set across
// GOMAXPROCS workers by stride.
func (ps *ParticleSet) pass(k *Kernel, cfg *execConfig, dt, endTime float64, once bool) error {
	nprocs := runtime.GOMAXPROCS(0)
	errs := make([]error, nprocs)
	var wg sync.WaitGroup
	var stop sync.Once
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for i := pp; i < len(ps.Particles); i += nprocs {
				p := ps.Particles[i]
				if p.Deleted() {
					continue
				}
				var err error
				var halted bool
				if once {
					halted, err = ps.evalOnce(k, cfg, p)
				} else {
					halted, err = ps.step(k, cfg, p, dt, endTime)
				}
				if err != nil {
					errs[pp] = err
					return
				}
				if halted {
					stop.Do(func() { ps.stopped = true })
				}
			}
		}(pp)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// evalOnce runs the kernel a single time for p without advancing its
// clock (the dt == 0 case).
func (ps *ParticleSet) evalOnce(k *Kernel, cfg *execConfig, p *Particle) (halted bool, err error) {
	p.Dt = 0
	return ps.dispatch(k, cfg, p, k.run(p, ps.fs, p.Time), nil)
}

// step advances p by one accepted time step, running recovery kernels
// and honoring Repeat/Evaluate requests along the way.
func (ps *ParticleSet) step(k *Kernel, cfg *execConfig, p *Particle, dt, endTime float64) (halted bool, err error) {
	for retry := 0; retry < maxStepRetries; retry++ {
		remaining := endTime - p.Time
		if stepDone(p.Time, endTime, dt) {
			return false, nil
		}
		dtp := p.Dt
		if dtp == 0 || dtp*dt < 0 { // unset, or sign flipped since last Execute
			dtp = dt
		}
		if math.Abs(dtp) > math.Abs(remaining) {
			dtp = remaining
		}
		p.Dt = dtp
		s := k.run(p, ps.fs, p.Time)
		if s == StatusSuccess {
			p.Time += dtp
			return false, nil
		}
		var retryStep bool
		halted, err = ps.dispatch(k, cfg, p, s, &retryStep)
		if err != nil || halted || !retryStep {
			return halted, err
		}
	}
	return false, fmt.Errorf("drift: kernel %s: particle %d: step did not settle after %d retries",
		k.Name, p.ID, maxStepRetries)
}

// dispatch handles a non-success status code. If retryStep is non-nil
// it is set when the caller should re-attempt the step.
func (ps *ParticleSet) dispatch(k *Kernel, cfg *execConfig, p *Particle, s StatusCode, retryStep *bool) (halted bool, err error) {
	switch {
	case s == StatusSuccess:
		return false, nil
	case s == StatusDelete:
		p.Delete()
		return false, nil
	case s == StatusStop:
		return true, nil
	case s == StatusRepeat || s == StatusEvaluate:
		if retryStep != nil {
			*retryStep = true
		}
		return false, nil
	case s.IsError():
		rk, ok := cfg.recovery[s]
		if !ok {
			return false, &KernelError{Particle: p, Code: s, Kernel: k.Name}
		}
		rs := rk(p, ps.fs, p.Time)
		if p.Deleted() {
			return false, nil
		}
		if rs != StatusSuccess && rs != StatusRepeat {
			return false, &KernelError{Particle: p, Code: rs, Kernel: k.Name + "(recovery)"}
		}
		if retryStep != nil {
			*retryStep = true
		}
		return false, nil
	default:
		return false, &KernelError{Particle: p, Code: s, Kernel: k.Name}
	}
}

// stepDone reports whether a particle clock has reached the end time
// for the given step direction.
func stepDone(t, endTime, dt float64) bool {
	const eps = 1e-6
	if dt > 0 {
		return t >= endTime-eps
	}
	return t <= endTime+eps
}

// compact removes deleted particles, preserving order.
func (ps *ParticleSet) compact() {
	out := ps.Particles[:0]
	for _, p := range ps.Particles {
		if !p.Deleted() {
			out = append(out, p)
		}
	}
	for i := len(out); i < len(ps.Particles); i++ {
		ps.Particles[i] = nil
	}
	ps.Particles = out
}
