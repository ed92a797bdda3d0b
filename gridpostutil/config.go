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

package gridpostutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/gridpost"
	"github.com/spf13/cast"
)

// log receives progress and diagnostic messages; main configures the
// standard logger's formatter and level.
var log logrus.FieldLogger = logrus.StandardLogger()

// outChan returns a channel forwarding messages to the logger.
func outChan() chan string {
	c := make(chan string)
	go func() {
		for msg := range c {
			log.Info(msg)
		}
	}()
	return c
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// checkOutputFile makes sure that the output file is specified, that
// its directory exists or its bucket is reachable, and expands any
// environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file (for example: --output="out.nc")`)
	}
	f = os.ExpandEnv(f)
	if IsBlob(f) {
		url, err := url.Parse(f)
		if err != nil {
			return f, err
		}
		_, err = OpenBucket(context.TODO(), url.Scheme+"://"+url.Host)
		if err != nil {
			return f, fmt.Errorf("gridpost: error when checking output location: %v", err)
		}
		return f, nil
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("gridpost: the output directory doesn't exist: %v", err)
	}
	return f, nil
}

// openInput downloads the input if it is remote and opens it.
func openInput(ctx context.Context, path string, c chan string) (*gridpost.File, error) {
	if path == "" {
		return nil, fmt.Errorf(`you need to specify an input file (for example: --input="in.nc")`)
	}
	local := maybeDownload(ctx, os.ExpandEnv(path), c)
	f, err := gridpost.OpenFilePath(local)
	if err != nil {
		return nil, fmt.Errorf("gridpost: opening input %s: %v", path, err)
	}
	return f, nil
}

// selectFields reads the named data variables from f, or all of them
// if vars is empty.
func selectFields(f *gridpost.File, vars []string) ([]*gridpost.Field, error) {
	avail := f.Fields()
	if len(vars) == 0 {
		vars = avail
	}
	if len(vars) == 0 {
		return nil, fmt.Errorf("gridpost: input contains no data variables")
	}
	availSet := make(map[string]bool, len(avail))
	for _, v := range avail {
		availSet[v] = true
	}
	fields := make([]*gridpost.Field, len(vars))
	for i, v := range expandStringSlice(vars) {
		if !availSet[v] {
			return nil, fmt.Errorf("gridpost: input has no variable %s; have %s",
				v, strings.Join(avail, ", "))
		}
		fd, err := f.ReadField(v)
		if err != nil {
			return nil, err
		}
		fields[i] = fd
	}
	return fields, nil
}

// loadLandMask downloads and reads a land binary mask field. The
// variable land_binary_mask is used if present; otherwise the file
// must contain exactly one data variable.
func loadLandMask(ctx context.Context, path string, c chan string) (*gridpost.Field, error) {
	local := maybeDownload(ctx, os.ExpandEnv(path), c)
	f, err := gridpost.OpenFilePath(local)
	if err != nil {
		return nil, fmt.Errorf("gridpost: opening land mask %s: %v", path, err)
	}
	defer f.Close()
	vars := f.Fields()
	name := "land_binary_mask"
	if !contains(vars, name) {
		if len(vars) != 1 {
			return nil, fmt.Errorf("gridpost: land mask %s has no land_binary_mask variable and %d data variables", path, len(vars))
		}
		name = vars[0]
	}
	return f.ReadField(name)
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// parseRadiiTable parses a lead time to radius table in the format
// "seconds:metres,seconds:metres,...", e.g. "0:10000,10800:20000".
func parseRadiiTable(s string) ([]gridpost.LeadTimeRadius, error) {
	var table []gridpost.LeadTimeRadius
	for _, pair := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(pair), ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("gridpost: radii table entry %q is not in seconds:metres format", pair)
		}
		secs, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("gridpost: radii table lead time %q: %v", parts[0], err)
		}
		radius, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("gridpost: radii table radius %q: %v", parts[1], err)
		}
		table = append(table, gridpost.LeadTimeRadius{
			LeadTime: time.Duration(secs * float64(time.Second)),
			Radius:   radius,
		})
	}
	return table, nil
}

// parseFloatSlice parses a comma-separated list of numbers.
func parseFloatSlice(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("gridpost: parsing %q as a number: %v", p, err)
		}
		vals[i] = v
	}
	return vals, nil
}

// applyAmendments applies the attribute amendment file, if any, to
// the fields and global attributes in place.
func applyAmendments(attrsFile string, fields []*gridpost.Field, gattrs map[string]string) error {
	if attrsFile == "" {
		return nil
	}
	a, err := gridpost.ReadAmendments(os.ExpandEnv(attrsFile))
	if err != nil {
		return err
	}
	return a.Apply(fields, gattrs)
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) map[string]string {
	i := cfg.Get(varName)
	switch i.(type) {
	case map[string]string:
		return i.(map[string]string)
	case map[string]interface{}:
		return cast.ToStringMapString(i)
	case string:
		b := bytes.NewBuffer(([]byte)(i.(string)))
		d := json.NewDecoder(b)
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			panic(err)
		}
		return o
	default:
		panic(fmt.Errorf("invalid type for GetStringMapString variable %s: %#v", varName, i))
	}
}
