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

package gridpost

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

func TestFileRoundTrip(t *testing.T) {
	g := testGrid(2, 2)

	// Quarter values survive the float32 data encoding exactly.
	temperature := testField("air_temperature", "K", g,
		[]float64{271.25, 272.5, math.NaN(), 274.75})
	temperature.SetAttr("standard_name", "air_temperature")
	temperature.LeadTime = 3 * time.Hour
	temperature.HasLeadTime = true

	arr := sparse.ZerosDense(2, 2, 2)
	copy(arr.Elements, []float64{0, 0.25, 0.5, 0.75, 1, 0.125, 0.375, 0.625})
	probability, err := NewField("probability_of_air_temperature_above_threshold", "1", g, arr)
	if err != nil {
		t.Fatal(err)
	}
	probability.LeadDimName = "threshold"
	probability.LeadDimCoords = []float64{272.15, 273.15}
	probability.LeadDimUnits = "K"
	probability.SetAttr("relative_to_threshold", "above")

	path := filepath.Join(t.TempDir(), "out.nc")
	gattrs := map[string]string{
		"title":       "feels like test",
		"institution": "Bureau",
		"proj4":       "+proj=stale", // must be replaced by the grid's projection
	}
	if err := WriteFilePath(path, []*Field{temperature, probability}, gattrs); err != nil {
		t.Fatal(err)
	}

	f, err := OpenFilePath(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if !f.Grid().Equal(g) {
		t.Errorf("grid does not survive the round trip: have %+v", f.Grid())
	}
	if lt, ok := f.LeadTime(); !ok || lt != 3*time.Hour {
		t.Errorf("want lead time 3h but have %v (set: %v)", lt, ok)
	}
	wantNames := []string{"air_temperature", "probability_of_air_temperature_above_threshold"}
	if names := f.Fields(); !reflect.DeepEqual(names, wantNames) {
		t.Errorf("want fields %v but have %v", wantNames, names)
	}

	rt, err := f.ReadField("air_temperature")
	if err != nil {
		t.Fatal(err)
	}
	if rt.Units != "K" {
		t.Errorf("want units K but have %q", rt.Units)
	}
	if !reflect.DeepEqual(rt.Attrs, map[string]string{"standard_name": "air_temperature"}) {
		t.Errorf("unexpected attributes %v", rt.Attrs)
	}
	if !rt.HasLeadTime || rt.LeadTime != 3*time.Hour {
		t.Errorf("want field lead time 3h but have %v (set: %v)", rt.LeadTime, rt.HasLeadTime)
	}
	for i, want := range temperature.Data.Elements {
		have := rt.Data.Elements[i]
		if math.IsNaN(want) != math.IsNaN(have) || (!math.IsNaN(want) && want != have) {
			t.Errorf("element %d: want %g but have %g", i, want, have)
		}
	}

	rp, err := f.ReadField("probability_of_air_temperature_above_threshold")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rp.Data.Shape, []int{2, 2, 2}) {
		t.Errorf("want shape [2 2 2] but have %v", rp.Data.Shape)
	}
	if !reflect.DeepEqual(rp.Data.Elements, probability.Data.Elements) {
		t.Errorf("want elements %v but have %v", probability.Data.Elements, rp.Data.Elements)
	}
	if rp.LeadDimName != "threshold" {
		t.Errorf("want leading dimension threshold but have %q", rp.LeadDimName)
	}
	if !reflect.DeepEqual(rp.LeadDimCoords, []float64{272.15, 273.15}) {
		t.Errorf("unexpected threshold coordinates %v", rp.LeadDimCoords)
	}
	if rp.LeadDimUnits != "K" {
		t.Errorf("want threshold units K but have %q", rp.LeadDimUnits)
	}
	if rp.Attrs["relative_to_threshold"] != "above" {
		t.Errorf("unexpected attributes %v", rp.Attrs)
	}

	ga := f.GlobalAttrs()
	if ga["title"] != "feels like test" || ga["institution"] != "Bureau" {
		t.Errorf("unexpected global attributes %v", ga)
	}
	if ga["proj4"] != g.Proj4 {
		t.Errorf("want proj4 %q but have %q", g.Proj4, ga["proj4"])
	}

	if _, err := f.ReadField("x"); err == nil {
		t.Error("want error reading a coordinate variable as a field but have none")
	}
}

func TestWriteFileErrors(t *testing.T) {
	g := testGrid(2, 2)
	a := testField("a", "K", g, nil)
	b := testField("b", "K", g, nil)
	b.LeadTime, b.HasLeadTime = time.Hour, true
	c := testField("c", "K", g, nil)
	c.LeadTime, c.HasLeadTime = 2*time.Hour, true
	other := testField("d", "K", testGrid(3, 3), nil)

	threeD, err := NewField("p", "1", g, sparse.ZerosDense(2, 2, 2))
	if err != nil {
		t.Fatal(err)
	}
	short3d, err := NewField("p", "1", g, sparse.ZerosDense(3, 2, 2))
	if err != nil {
		t.Fatal(err)
	}
	short3d.LeadDimName = "threshold"
	named3d := threeD.Copy()
	named3d.Rename("q")
	named3d.LeadDimName = "threshold"

	tests := []struct {
		name   string
		fields []*Field
	}{
		{"no fields", nil},
		{"duplicate names", []*Field{a, a.Copy()}},
		{"different grids", []*Field{a, other}},
		{"conflicting lead times", []*Field{b, c}},
		{"unnamed leading dimension", []*Field{threeD}},
		{"conflicting dimension lengths", []*Field{short3d, named3d}},
	}
	path := filepath.Join(t.TempDir(), "bad.nc")
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := WriteFilePath(path, test.fields, nil); err == nil {
				t.Error("want error but have none")
			}
		})
	}
}

// writeRawFile builds a NetCDF file directly so that tests can cover
// input conventions the writer does not itself produce.
func writeRawFile(t *testing.T, path string, header func(h *cdf.Header), data func(ff *cdf.File)) {
	t.Helper()
	h := cdf.NewHeader([]string{"y", "x"}, []int{2, 2})
	header(h)
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		t.Fatal(errs[0])
	}
	w, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	ff, err := cdf.Create(w, h)
	if err != nil {
		t.Fatal(err)
	}
	data(ff)
	if err := cdf.UpdateNumRecs(w); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

// writeCoord writes a 1-d float64 coordinate variable.
func writeCoord(t *testing.T, ff *cdf.File, name string, vals []float64) {
	t.Helper()
	w := ff.Writer(name, []int{0}, []int{len(vals)})
	if _, err := w.Write(vals); err != nil {
		t.Fatal(err)
	}
}

func TestReadLeadTimeHours(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hours.nc")
	writeRawFile(t, path,
		func(h *cdf.Header) {
			h.AddVariable("x", []string{"x"}, []float64{0})
			h.AddVariable("y", []string{"y"}, []float64{0})
			h.AddVariable("forecast_period", []string{}, []int32{0})
			h.AddAttribute("forecast_period", "units", "hours")
		},
		func(ff *cdf.File) {
			writeCoord(t, ff, "x", []float64{0, 1})
			writeCoord(t, ff, "y", []float64{50, 51})
			w := ff.Writer("forecast_period", nil, nil)
			if _, err := w.Write([]int32{6}); err != nil && err != io.EOF {
				t.Fatal(err)
			}
		})

	f, err := OpenFilePath(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if lt, ok := f.LeadTime(); !ok || lt != 6*time.Hour {
		t.Errorf("want lead time 6h but have %v (set: %v)", lt, ok)
	}
}

func TestReadLeadTimeBadUnits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "days.nc")
	writeRawFile(t, path,
		func(h *cdf.Header) {
			h.AddVariable("x", []string{"x"}, []float64{0})
			h.AddVariable("y", []string{"y"}, []float64{0})
			h.AddVariable("forecast_period", []string{}, []int32{0})
			h.AddAttribute("forecast_period", "units", "days")
		},
		func(ff *cdf.File) {
			writeCoord(t, ff, "x", []float64{0, 1})
			writeCoord(t, ff, "y", []float64{50, 51})
			w := ff.Writer("forecast_period", nil, nil)
			if _, err := w.Write([]int32{1}); err != nil && err != io.EOF {
				t.Fatal(err)
			}
		})

	if _, err := OpenFilePath(path); err == nil {
		t.Error("want error for unsupported forecast_period units but have none")
	}
}

func TestCoordVarStandardNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "std.nc")
	writeRawFile(t, path,
		func(h *cdf.Header) {
			h.AddVariable("x", []string{"x"}, []float64{0})
			h.AddAttribute("x", "standard_name", "projection_y_coordinate")
			h.AddVariable("y", []string{"y"}, []float64{0})
			h.AddAttribute("y", "standard_name", "projection_x_coordinate")
		},
		func(ff *cdf.File) {
			writeCoord(t, ff, "x", []float64{50, 51})
			writeCoord(t, ff, "y", []float64{0, 1})
		})

	// standard_name attributes outrank the conventional axis names, so
	// here the variable called "y" is the x axis.
	f, err := OpenFilePath(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if f.Grid().XName != "y" || f.Grid().YName != "x" {
		t.Errorf("want axes (y, x) but have (%s, %s)", f.Grid().XName, f.Grid().YName)
	}
	if f.Grid().X[0] != 0 || f.Grid().Y[0] != 50 {
		t.Errorf("coordinates not matched to axes: x %v y %v", f.Grid().X, f.Grid().Y)
	}
}

func TestOpenFileCRSAttr(t *testing.T) {
	const wantProj = "+proj=utm +zone=55 +south +datum=WGS84"
	path := filepath.Join(t.TempDir(), "crs.nc")
	writeRawFile(t, path,
		func(h *cdf.Header) {
			h.AddAttribute("", "crs", wantProj)
			h.AddVariable("x", []string{"x"}, []float64{0})
			h.AddVariable("y", []string{"y"}, []float64{0})
		},
		func(ff *cdf.File) {
			writeCoord(t, ff, "x", []float64{0, 1})
			writeCoord(t, ff, "y", []float64{50, 51})
		})

	f, err := OpenFilePath(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if f.Grid().Proj4 != wantProj {
		t.Errorf("want projection %q but have %q", wantProj, f.Grid().Proj4)
	}
}

func TestOpenFileNoCoords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nocoords.nc")
	writeRawFile(t, path,
		func(h *cdf.Header) {
			h.AddVariable("a", []string{"x"}, []float64{0})
			h.AddVariable("b", []string{"y"}, []float64{0})
		},
		func(ff *cdf.File) {
			writeCoord(t, ff, "a", []float64{0, 1})
			writeCoord(t, ff, "b", []float64{50, 51})
		})

	if _, err := OpenFilePath(path); err == nil {
		t.Error("want error for a file without grid coordinates but have none")
	}
}

func TestOpenFilePathMissing(t *testing.T) {
	if _, err := OpenFilePath(filepath.Join(t.TempDir(), "absent.nc")); err == nil {
		t.Error("want error opening a missing file but have none")
	}
}
