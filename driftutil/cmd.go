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

// Package driftutil holds the configuration and command-line interface
// for the drift particle advection model.
package driftutil

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is the model version.
const Version = "0.3.0"

// Cfg holds configuration information.
var Cfg *viper.Viper

func init() {
	Cfg = viper.New()

	// options are the configuration options available to drift.
	options := []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel sets the logging verbosity (debug, info, warning, error).`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Input.Files",
			usage: `
              Input.Files lists the NetCDF velocity files to load. Entries
              may be glob patterns; the expanded list is sorted by filename
              and concatenated along the time axis.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Input.UVar",
			usage: `
              Input.UVar is the NetCDF variable holding eastward velocity.`,
			defaultVal: "eastward_eulerian_current_velocity",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Input.VVar",
			usage: `
              Input.VVar is the NetCDF variable holding northward velocity.`,
			defaultVal: "northward_eulerian_current_velocity",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Input.LonVar",
			usage: `
              Input.LonVar is the longitude coordinate variable.`,
			defaultVal: "lon",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Input.LatVar",
			usage: `
              Input.LatVar is the latitude coordinate variable.`,
			defaultVal: "lat",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Input.TimeVar",
			usage: `
              Input.TimeVar is the time coordinate variable. Leave empty
              for files without a time coordinate.`,
			defaultVal: "time",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Input.Backend",
			usage: `
              Input.Backend selects the NetCDF reader: "cdf" for the
              classic-format reader or "native" for the netCDF-4 capable
              reader.`,
			defaultVal: "cdf",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Input.Eager",
			usage: `
              Input.Eager loads all field time slices into memory at
              startup instead of on demand.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Input.TimePeriodicDays",
			usage: `
              Input.TimePeriodicDays, if positive, treats the velocity
              fields as periodic in time with this period.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Seed.Lon",
			usage: `
              Seed.Lon lists the release longitudes [degrees East].`,
			defaultVal: []float64{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Seed.Lat",
			usage: `
              Seed.Lat lists the release latitudes [degrees North].`,
			defaultVal: []float64{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Sim.RuntimeHours",
			usage: `
              Sim.RuntimeHours is the simulated duration.`,
			defaultVal: 24.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Sim.DtMinutes",
			usage: `
              Sim.DtMinutes is the integration time step. Negative values
              run the simulation backward in time.`,
			defaultVal: 5.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Sim.Kernel",
			usage: `
              Sim.Kernel selects the advection scheme: "rk4", "ee", or
              "rk45".`,
			defaultVal: "rk4",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Sim.DeleteOutOfBounds",
			usage: `
              Sim.DeleteOutOfBounds deletes particles that leave the field
              domain instead of aborting the simulation.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Output.File",
			usage: `
              Output.File is the trajectory NetCDF file to write.`,
			defaultVal: "trajectories.nc",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "Output.GeoJSON",
			usage: `
              Output.GeoJSON, if set, also writes the trajectories as a
              GeoJSON FeatureCollection to this file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Output.EveryHours",
			usage: `
              Output.EveryHours is the interval between recorded particle
              snapshots.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Plot.File",
			usage: `
              Plot.File is the PNG file the plot command writes.`,
			defaultVal: "trajectories.png",
			flagsets:   []*pflag.FlagSet{plotCmd.Flags()},
		},
	}

	for _, option := range options {
		for _, set := range option.flagsets {
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case []float64:
				set.StringSliceP(option.name, option.shorthand, nil, option.usage)
			default:
				panic(fmt.Sprintf("driftutil: invalid option default type %T", option.defaultVal))
			}
			if f := set.Lookup(option.name); f != nil {
				Cfg.BindPFlag(option.name, f)
			}
		}
		Cfg.SetDefault(option.name, option.defaultVal)
	}

	Root.AddCommand(runCmd, plotCmd, versionCmd)
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "drift",
	Short: "drift advects Lagrangian particles through ocean current fields.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile := Cfg.GetString("config"); cfgFile != "" {
			Cfg.SetConfigFile(cfgFile)
			if err := Cfg.ReadInConfig(); err != nil {
				return fmt.Errorf("driftutil: reading configuration: %w", err)
			}
		}
		level, err := log.ParseLevel(Cfg.GetString("LogLevel"))
		if err != nil {
			return fmt.Errorf("driftutil: %w", err)
		}
		log.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a particle advection simulation.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunSim(Cfg)
	},
}

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render a trajectory file to PNG.",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := os.Create(Cfg.GetString("Plot.File"))
		if err != nil {
			return err
		}
		defer out.Close()
		return PlotTrajectories(Cfg.GetString("Output.File"), out)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "drift v%s\n", Version)
		return nil
	},
}
