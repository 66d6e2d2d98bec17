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
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/oceandrift/drift"
)

// RunSim runs a particle advection simulation as specified by the
// given configuration and writes the resulting trajectories.
func RunSim(cfg *viper.Viper) error {
	paths := cfg.GetStringSlice("Input.Files")
	if len(paths) == 0 {
		return fmt.Errorf("driftutil: Input.Files must list at least one velocity file")
	}

	backend, err := drift.ParseBackend(cfg.GetString("Input.Backend"))
	if err != nil {
		return err
	}

	variables := map[string]string{
		"U": cfg.GetString("Input.UVar"),
		"V": cfg.GetString("Input.VVar"),
	}
	dimensions := map[string]string{
		"lon": cfg.GetString("Input.LonVar"),
		"lat": cfg.GetString("Input.LatVar"),
	}
	if tv := cfg.GetString("Input.TimeVar"); tv != "" {
		dimensions["time"] = tv
	}

	opts := []drift.LoadOption{drift.UseBackend(backend)}
	if cfg.GetBool("Input.Eager") {
		opts = append(opts, drift.EagerLoad())
	}
	if days := cfg.GetFloat64("Input.TimePeriodicDays"); days > 0 {
		opts = append(opts, drift.TimePeriodic(time.Duration(days*24)*time.Hour))
	}

	log.WithFields(log.Fields{
		"files":   len(paths),
		"backend": cfg.GetString("Input.Backend"),
	}).Info("loading velocity fields")

	fs, err := drift.LoadFieldSet(paths, variables, dimensions, opts...)
	if err != nil {
		return err
	}
	defer fs.Close()

	lons, err := floatSlice(cfg, "Seed.Lon")
	if err != nil {
		return err
	}
	lats, err := floatSlice(cfg, "Seed.Lat")
	if err != nil {
		return err
	}
	if len(lons) == 0 || len(lons) != len(lats) {
		return fmt.Errorf("driftutil: Seed.Lon and Seed.Lat must be equal-length and non-empty; got %d and %d", len(lons), len(lats))
	}

	ps, err := drift.NewParticleSet(fs, lons, lats)
	if err != nil {
		return err
	}

	var kernel *drift.Kernel
	switch name := cfg.GetString("Sim.Kernel"); name {
	case "rk4":
		kernel = drift.AdvectionRK4
	case "ee":
		kernel = drift.AdvectionEE
	case "rk45":
		kernel = drift.AdvectionRK45(1.0e-5)
	default:
		return fmt.Errorf("driftutil: unknown advection kernel %q", name)
	}

	runtime := time.Duration(cfg.GetFloat64("Sim.RuntimeHours") * float64(time.Hour))
	dt := time.Duration(cfg.GetFloat64("Sim.DtMinutes") * float64(time.Minute))
	every := time.Duration(cfg.GetFloat64("Output.EveryHours") * float64(time.Hour))

	pf := drift.NewParticleFile()
	execOpts := []drift.ExecOption{
		drift.Runtime(runtime),
		drift.Dt(dt),
		drift.Output(pf, every),
		drift.LogTo(log.StandardLogger().Writer()),
	}
	if cfg.GetBool("Sim.DeleteOutOfBounds") {
		execOpts = append(execOpts,
			drift.Recover(drift.StatusErrorOutOfBounds, drift.DeleteParticle))
	}

	log.WithFields(log.Fields{
		"particles": ps.Len(),
		"kernel":    kernel.Name,
		"runtime":   runtime,
		"dt":        dt,
	}).Info("starting simulation")

	if err := ps.Execute(kernel, execOpts...); err != nil {
		return err
	}

	log.WithField("particles", ps.Len()).Info("simulation finished")

	out := cfg.GetString("Output.File")
	if err := pf.WriteNetCDF(out); err != nil {
		return err
	}
	log.WithField("file", out).Info("wrote trajectories")

	if gj := cfg.GetString("Output.GeoJSON"); gj != "" {
		if err := writeGeoJSONFile(pf, gj); err != nil {
			return err
		}
		log.WithField("file", gj).Info("wrote GeoJSON trajectories")
	}
	return nil
}

func writeGeoJSONFile(pf *drift.ParticleFile, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pf.WriteGeoJSON(f)
}

// floatSlice reads a configuration key as a slice of numbers. Viper
// delivers slice flags as strings, so the entries are coerced.
func floatSlice(cfg *viper.Viper, key string) ([]float64, error) {
	raw := cfg.GetStringSlice(key)
	out := make([]float64, len(raw))
	for i, s := range raw {
		v, err := cast.ToFloat64E(s)
		if err != nil {
			return nil, fmt.Errorf("driftutil: parsing %s[%d]: %w", key, i, err)
		}
		out[i] = v
	}
	return out, nil
}
