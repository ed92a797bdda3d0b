/*
Copyright © 2025 the GridPost authors.
This file is part of GridPost.

GridPost is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GridPost is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GridPost.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package gridpostutil wires the gridpost operations into a command
// line interface with layered flag, environment and file
// configuration.
package gridpostutil

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/gridpost"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to GridPost.
	options = []struct {
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
			name: "input",
			usage: `
              input is the NetCDF file holding the variables to process.
              It can be a local path or an http://, https://, gs://, s3://,
              or file:// URL.`,
			shorthand:  "i",
			defaultVal: "",
			flagsets: []*pflag.FlagSet{regridCmd.Flags(), vicinityCmd.Flags(),
				thresholdCmd.Flags(), feelslikeCmd.Flags(), deriveCmd.Flags(), exportCmd.Flags()},
		},
		{
			name: "output",
			usage: `
              output is the file to write results to. It can be a local
              path or a gs://, s3://, or file:// URL.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets: []*pflag.FlagSet{regridCmd.Flags(), vicinityCmd.Flags(),
				thresholdCmd.Flags(), feelslikeCmd.Flags(), deriveCmd.Flags(), exportCmd.Flags()},
		},
		{
			name: "vars",
			usage: `
              vars selects a subset of the input's data variables to
              process. The default is all of them.`,
			defaultVal: []string{},
			flagsets: []*pflag.FlagSet{regridCmd.Flags(), vicinityCmd.Flags(),
				thresholdCmd.Flags(), exportCmd.Flags()},
		},
		{
			name: "attrs",
			usage: `
              attrs is a TOML file of attribute amendments applied to the
              output before it is written.`,
			defaultVal: "",
			flagsets: []*pflag.FlagSet{regridCmd.Flags(), vicinityCmd.Flags(),
				thresholdCmd.Flags(), feelslikeCmd.Flags(), deriveCmd.Flags()},
		},
		{
			name: "target-grid",
			usage: `
              target-grid is a NetCDF file whose horizontal grid the input
              variables will be regridded onto. For the mask-aware modes it
              should be the target land mask file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{regridCmd.Flags()},
		},
		{
			name: "mode",
			usage: `
              mode selects the interpolation method: bilinear, nearest,
              nearest-with-mask, or bilinear-with-mask.`,
			defaultVal: gridpost.RegridBilinear,
			flagsets:   []*pflag.FlagSet{regridCmd.Flags()},
		},
		{
			name: "extrapolation",
			usage: `
              extrapolation says what to do with target points that fall
              outside the source grid: nan marks them missing, clamp uses
              the nearest source edge value, and error refuses to regrid.`,
			defaultVal: gridpost.ExtrapolationNaN,
			flagsets:   []*pflag.FlagSet{regridCmd.Flags()},
		},
		{
			name: "source-land-mask",
			usage: `
              source-land-mask is a NetCDF file holding a land binary mask
              on the input grid, required by the mask-aware modes.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{regridCmd.Flags()},
		},
		{
			name: "target-land-mask",
			usage: `
              target-land-mask is a NetCDF file holding a land binary mask
              on the target grid, required by the mask-aware modes.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{regridCmd.Flags()},
		},
		{
			name: "search-radius",
			usage: `
              search-radius is how far, in metres, the mask-aware modes
              look for a source cell with the matching surface type.`,
			defaultVal: 25000.0,
			flagsets:   []*pflag.FlagSet{regridCmd.Flags()},
		},
		{
			name: "regridded-title",
			usage: `
              regridded-title replaces the title attribute of the regridded
              output. If unset, the title becomes "unknown".`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{regridCmd.Flags()},
		},
		{
			name: "radius",
			usage: `
              radius is the vicinity neighbourhood radius in metres.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{vicinityCmd.Flags()},
		},
		{
			name: "radii-by-lead-time",
			usage: `
              radii-by-lead-time is a lead time to radius table in
              seconds:metres format, e.g. "0:10000,10800:20000". The radius
              is interpolated at the input's forecast period. It cannot be
              combined with --radius.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{vicinityCmd.Flags()},
		},
		{
			name: "land-mask",
			usage: `
              land-mask is a NetCDF file holding a land binary mask on the
              input grid. When given, each neighbourhood only draws from
              cells with the centre cell's surface type.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{vicinityCmd.Flags()},
		},
		{
			name: "thresholds",
			usage: `
              thresholds is a comma-separated, increasing list of threshold
              values in the units of the input variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{thresholdCmd.Flags()},
		},
		{
			name: "comparator",
			usage: `
              comparator selects the comparison against each threshold:
              gt, ge, lt, or le.`,
			defaultVal: gridpost.GreaterThan,
			flagsets:   []*pflag.FlagSet{thresholdCmd.Flags()},
		},
		{
			name: "fuzzy-factor",
			usage: `
              fuzzy-factor, when between 0 and 1, ramps the probability
              linearly from 0 at threshold*factor to 1 at
              threshold*(2-factor) instead of stepping at the threshold.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{thresholdCmd.Flags()},
		},
		{
			name: "temperature",
			usage: `
              temperature is the name of the air temperature variable [K].`,
			defaultVal: "air_temperature",
			flagsets:   []*pflag.FlagSet{feelslikeCmd.Flags()},
		},
		{
			name: "wind",
			usage: `
              wind is the name of the 10 m wind speed variable [m s-1].`,
			defaultVal: "wind_speed",
			flagsets:   []*pflag.FlagSet{feelslikeCmd.Flags()},
		},
		{
			name: "rh",
			usage: `
              rh is the name of the relative humidity variable (fraction
              or %).`,
			defaultVal: "relative_humidity",
			flagsets:   []*pflag.FlagSet{feelslikeCmd.Flags()},
		},
		{
			name: "pressure",
			usage: `
              pressure is the name of the surface pressure variable [Pa].`,
			defaultVal: "surface_air_pressure",
			flagsets:   []*pflag.FlagSet{feelslikeCmd.Flags()},
		},
		{
			name: "diagnostic",
			usage: `
              diagnostic selects the output: wind_chill,
              apparent_temperature, or feels_like_temperature.`,
			defaultVal: "feels_like_temperature",
			flagsets:   []*pflag.FlagSet{feelslikeCmd.Flags()},
		},
		{
			name: "name",
			usage: `
              name is the name of the derived output variable.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "expr",
			usage: `
              expr is the expression to evaluate at each grid point.
              Variables refer to the input's data variables by name; the
              functions sqrt, abs, exp, log, pow, hypot, min and max are
              available. Example: --expr="hypot(eastward_wind, northward_wind)".`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "units",
			usage: `
              units gives the units of the derived variable.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "slice",
			usage: `
              slice selects which 2-d slice of variables with a leading
              dimension to export.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{exportCmd.Flags()},
		},
		{
			name: "renames",
			usage: `
              renames maps variable names to shapefile column names, which
              cannot exceed 10 characters. Example:
              --renames='{"air_temperature":"t2m"}'.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{exportCmd.Flags()},
		},
		{
			name: "clip",
			usage: `
              clip is a GeoJSON file or shapefile of polygons; only grid
              cells whose centres fall inside them are exported.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{exportCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("GRIDPOST")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(regridCmd)
	Root.AddCommand(vicinityCmd)
	Root.AddCommand(thresholdCmd)
	Root.AddCommand(feelslikeCmd)
	Root.AddCommand(deriveCmd)
	Root.AddCommand(exportCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("gridpost: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "gridpost",
	Short: "Post-process gridded weather forecasts.",
	Long: `GridPost turns raw gridded forecast data into derived products:
it regrids between coordinate systems, spreads events over
neighbourhoods, converts diagnostics into threshold probabilities,
calculates feels like temperatures, evaluates custom expressions, and
exports to GIS formats.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the format
'GRIDPOST_var' where 'var' is the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of GridPost.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("GridPost v%s\n", gridpost.Version)
	},
	DisableAutoGenTag: true,
}

var regridCmd = &cobra.Command{
	Use:   "regrid",
	Short: "Regrid variables onto a target grid.",
	Long: `regrid interpolates the input's data variables onto the horizontal
grid of the target-grid file, reprojecting between coordinate systems
as needed. The mask-aware modes only draw from source cells with the
same surface type as the target cell, so that coastal land values are
not contaminated by sea values and vice versa.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Regrid(
			Cfg.GetString("input"),
			Cfg.GetString("target-grid"),
			Cfg.GetString("output"),
			Cfg.GetString("mode"),
			Cfg.GetString("extrapolation"),
			Cfg.GetString("source-land-mask"),
			Cfg.GetString("target-land-mask"),
			Cfg.GetFloat64("search-radius"),
			Cfg.GetString("regridded-title"),
			Cfg.GetStringSlice("vars"),
			Cfg.GetString("attrs"))
	},
	DisableAutoGenTag: true,
}

var vicinityCmd = &cobra.Command{
	Use:   "vicinity",
	Short: "Spread occurrences over a neighbourhood.",
	Long: `vicinity rewrites each variable as its maximum within a square
neighbourhood, turning point probabilities into probabilities of an
event occurring anywhere within a vicinity of each point.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Vicinity(
			Cfg.GetString("input"),
			Cfg.GetString("output"),
			Cfg.GetFloat64("radius"),
			Cfg.GetString("radii-by-lead-time"),
			Cfg.GetString("land-mask"),
			Cfg.GetStringSlice("vars"),
			Cfg.GetString("attrs"))
	},
	DisableAutoGenTag: true,
}

var thresholdCmd = &cobra.Command{
	Use:   "threshold",
	Short: "Convert diagnostics to threshold probabilities.",
	Long: `threshold compares each variable against a list of thresholds and
writes the result as probabilities with a leading threshold dimension.
A fuzzy factor turns the sharp step at each threshold into a linear
ramp.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		thresholds, err := parseFloatSlice(Cfg.GetString("thresholds"))
		if err != nil {
			return err
		}
		return Threshold(
			Cfg.GetString("input"),
			Cfg.GetString("output"),
			thresholds,
			Cfg.GetString("comparator"),
			Cfg.GetFloat64("fuzzy-factor"),
			Cfg.GetStringSlice("vars"),
			Cfg.GetString("attrs"))
	},
	DisableAutoGenTag: true,
}

var feelslikeCmd = &cobra.Command{
	Use:   "feelslike",
	Short: "Calculate feels like temperatures.",
	Long: `feelslike calculates the wind chill, the apparent temperature, or
the feels like temperature, which blends the two based on the air
temperature.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return FeelsLike(
			Cfg.GetString("input"),
			Cfg.GetString("output"),
			Cfg.GetString("temperature"),
			Cfg.GetString("wind"),
			Cfg.GetString("rh"),
			Cfg.GetString("pressure"),
			Cfg.GetString("diagnostic"),
			Cfg.GetString("attrs"))
	},
	DisableAutoGenTag: true,
}

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Evaluate an expression over the input variables.",
	Long: `derive evaluates an arithmetic expression at each grid point, with
the input's data variables available by name, and writes the result as
a new variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Derive(
			Cfg.GetString("input"),
			Cfg.GetString("output"),
			Cfg.GetString("name"),
			Cfg.GetString("units"),
			Cfg.GetString("expr"),
			Cfg.GetString("attrs"))
	},
	DisableAutoGenTag: true,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export variables to a shapefile.",
	Long: `export writes variables to a polygon shapefile with one shape per
grid cell, for use in GIS tools. A clip mask restricts the export to a
region.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Export(
			Cfg.GetString("input"),
			Cfg.GetString("output"),
			Cfg.GetStringSlice("vars"),
			Cfg.GetInt("slice"),
			GetStringMapString("renames", Cfg),
			Cfg.GetString("clip"))
	},
	DisableAutoGenTag: true,
}
