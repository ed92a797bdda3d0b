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
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spatialmodel/gridpost"
)

func TestSetConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "cfg.toml")
	if err := ioutil.WriteFile(cfgFile, []byte("search-radius = 12345.0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	Cfg.Set("config", cfgFile)
	defer Cfg.Set("config", "")
	if err := setConfig(); err != nil {
		t.Fatal(err)
	}
	if r := Cfg.GetFloat64("search-radius"); r != 12345 {
		t.Errorf("want search-radius 12345 from the configuration file but have %g", r)
	}

	Cfg.Set("config", filepath.Join(dir, "missing.toml"))
	if err := setConfig(); err == nil {
		t.Error("want error for a missing configuration file but have none")
	}
}

func TestCheckOutputFile(t *testing.T) {
	if _, err := checkOutputFile(""); err == nil {
		t.Error("want error for an unset output file but have none")
	}
	if _, err := checkOutputFile("/no/such/dir/out.nc"); err == nil ||
		!strings.Contains(err.Error(), "doesn't exist") {
		t.Errorf("want a missing directory error but have %v", err)
	}

	dir := t.TempDir()
	want := filepath.Join(dir, "out.nc")
	have, err := checkOutputFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if have != want {
		t.Errorf("want %s but have %s", want, have)
	}

	os.Setenv("GRIDPOST_TEST_OUTDIR", dir)
	defer os.Unsetenv("GRIDPOST_TEST_OUTDIR")
	have, err = checkOutputFile("$GRIDPOST_TEST_OUTDIR/out.nc")
	if err != nil {
		t.Fatal(err)
	}
	if have != want {
		t.Errorf("want environment variables expanded to %s but have %s", want, have)
	}
}

func TestOpenInput(t *testing.T) {
	c := helperLog(t)
	ctx := context.Background()
	if _, err := openInput(ctx, "", c); err == nil {
		t.Error("want error for an unset input file but have none")
	}
	if _, err := openInput(ctx, filepath.Join(t.TempDir(), "nope.nc"), c); err == nil ||
		!strings.Contains(err.Error(), "opening input") {
		t.Errorf("want an open error but have %v", err)
	}

	g := gridDegrees(t, 2, 2)
	input := writeDataFile(t, filepath.Join(t.TempDir(), "in.nc"),
		makeField(t, "air_temperature", "K", g, nil))
	f, err := openInput(ctx, input, c)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if !reflect.DeepEqual(f.Fields(), []string{"air_temperature"}) {
		t.Errorf("unexpected variables %v", f.Fields())
	}
}

func TestSelectFields(t *testing.T) {
	g := gridDegrees(t, 2, 2)
	input := writeDataFile(t, filepath.Join(t.TempDir(), "in.nc"),
		makeField(t, "air_temperature", "K", g, nil),
		makeField(t, "rain_rate", "mm h-1", g, nil))
	f, err := gridpost.OpenFilePath(input)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	all, err := selectFields(f, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Name != "air_temperature" || all[1].Name != "rain_rate" {
		t.Errorf("unexpected fields %v", all)
	}

	one, err := selectFields(f, []string{"rain_rate"})
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 1 || one[0].Name != "rain_rate" {
		t.Errorf("unexpected fields %v", one)
	}

	_, err = selectFields(f, []string{"wind_speed"})
	if err == nil {
		t.Fatal("want error for an unknown variable but have none")
	}
	if !strings.Contains(err.Error(), "wind_speed") ||
		!strings.Contains(err.Error(), "air_temperature, rain_rate") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestLoadLandMask(t *testing.T) {
	c := helperLog(t)
	ctx := context.Background()
	g := gridDegrees(t, 2, 2)

	named := writeDataFile(t, filepath.Join(t.TempDir(), "mask.nc"),
		makeField(t, "land_binary_mask", "1", g, []float64{1, 0, 1, 0}),
		makeField(t, "air_temperature", "K", g, nil))
	f, err := loadLandMask(ctx, named, c)
	if err != nil {
		t.Fatal(err)
	}
	if f.Name != "land_binary_mask" {
		t.Errorf("want the land_binary_mask variable but have %s", f.Name)
	}
	if !reflect.DeepEqual(f.Data.Elements, []float64{1, 0, 1, 0}) {
		t.Errorf("unexpected mask values %v", f.Data.Elements)
	}

	single := writeDataFile(t, filepath.Join(t.TempDir(), "mask.nc"),
		makeField(t, "lsm", "1", g, []float64{0, 0, 1, 1}))
	f, err = loadLandMask(ctx, single, c)
	if err != nil {
		t.Fatal(err)
	}
	if f.Name != "lsm" {
		t.Errorf("want the only variable lsm but have %s", f.Name)
	}

	ambiguous := writeDataFile(t, filepath.Join(t.TempDir(), "mask.nc"),
		makeField(t, "a", "1", g, nil),
		makeField(t, "b", "1", g, nil))
	if _, err := loadLandMask(ctx, ambiguous, c); err == nil ||
		!strings.Contains(err.Error(), "land_binary_mask") {
		t.Errorf("want an ambiguous mask error but have %v", err)
	}
}

func TestParseRadiiTable(t *testing.T) {
	table, err := parseRadiiTable("0:10000,10800:20000")
	if err != nil {
		t.Fatal(err)
	}
	want := []gridpost.LeadTimeRadius{
		{LeadTime: 0, Radius: 10000},
		{LeadTime: 3 * time.Hour, Radius: 20000},
	}
	if !reflect.DeepEqual(table, want) {
		t.Errorf("want %v but have %v", want, table)
	}

	for _, bad := range []string{"10800", "x:5", "5:y", "1:2:3"} {
		if _, err := parseRadiiTable(bad); err == nil {
			t.Errorf("want error for %q but have none", bad)
		}
	}
}

func TestParseFloatSlice(t *testing.T) {
	vals, err := parseFloatSlice("271.5, 272.5")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vals, []float64{271.5, 272.5}) {
		t.Errorf("unexpected values %v", vals)
	}

	vals, err = parseFloatSlice("")
	if err != nil || vals != nil {
		t.Errorf("want no values for an empty list but have %v, %v", vals, err)
	}

	if _, err := parseFloatSlice("1,x"); err == nil {
		t.Error("want error for a malformed list but have none")
	}
}

func TestGetStringMapString(t *testing.T) {
	want := map[string]string{"air_temperature": "t2m"}

	Cfg.Set("test-map-json", `{"air_temperature": "t2m"}`)
	if have := GetStringMapString("test-map-json", Cfg); !reflect.DeepEqual(have, want) {
		t.Errorf("want %v but have %v", want, have)
	}

	Cfg.Set("test-map-string", map[string]string{"air_temperature": "t2m"})
	if have := GetStringMapString("test-map-string", Cfg); !reflect.DeepEqual(have, want) {
		t.Errorf("want %v but have %v", want, have)
	}

	Cfg.Set("test-map-iface", map[string]interface{}{"air_temperature": "t2m"})
	if have := GetStringMapString("test-map-iface", Cfg); !reflect.DeepEqual(have, want) {
		t.Errorf("want %v but have %v", want, have)
	}
}
