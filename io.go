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
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// defaultFillValue is the NetCDF default fill value for floating-point
// variables, used when writing fields that do not declare their own.
const defaultFillValue = 9.9692099683868690e+36

// File is an open gridded-data file. All data variables in a file
// share one horizontal grid and, when present, one forecast period.
type File struct {
	ff *cdf.File

	grid *Grid

	leadTime    time.Duration
	hasLeadTime bool

	// r is the file handle when opened from a path.
	r *os.File
}

// OpenFile opens the NetCDF dataset stored in rw. The file must
// contain a pair of one-dimensional coordinate variables describing a
// regular horizontal grid. The grid's spatial reference is taken from
// the global attribute "proj4" or "crs", defaulting to "+proj=longlat".
func OpenFile(rw cdf.ReaderWriterAt) (*File, error) {
	ff, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("gridpost: opening file: %v", err)
	}
	f := &File{ff: ff}

	xName, yName, err := findCoordVars(ff.Header)
	if err != nil {
		return nil, err
	}
	x, err := readFullVar(ff, xName)
	if err != nil {
		return nil, err
	}
	y, err := readFullVar(ff, yName)
	if err != nil {
		return nil, err
	}
	proj4 := "+proj=longlat"
	if p, ok := attrString(ff.Header, "", "proj4"); ok {
		proj4 = p
	} else if p, ok := attrString(ff.Header, "", "crs"); ok {
		proj4 = p
	}
	f.grid, err = NewGrid(x, y, proj4)
	if err != nil {
		return nil, err
	}
	f.grid.XName, f.grid.YName = xName, yName
	f.grid.XUnits, _ = attrString(ff.Header, xName, "units")
	f.grid.YUnits, _ = attrString(ff.Header, yName, "units")

	if err := f.readLeadTime(); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenFilePath opens the NetCDF file at path. The returned File
// should be closed after use.
func OpenFilePath(path string) (*File, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gridpost: %v", err)
	}
	f, err := OpenFile(r)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("gridpost: reading %s: %v", path, err)
	}
	f.r = r
	return f, nil
}

// Close closes the underlying file handle, if the File was opened
// from a path.
func (f *File) Close() error {
	if f.r == nil {
		return nil
	}
	return f.r.Close()
}

// Grid returns the horizontal grid shared by the file's data variables.
func (f *File) Grid() *Grid { return f.grid }

// LeadTime returns the file's forecast period, if it has one.
func (f *File) LeadTime() (time.Duration, bool) { return f.leadTime, f.hasLeadTime }

// findCoordVars locates the x and y coordinate variables: 1-d
// variables dimensioned by themselves, classified by standard_name or,
// failing that, by conventional axis names.
func findCoordVars(h *cdf.Header) (xName, yName string, err error) {
	for _, v := range h.Variables() {
		dims := h.Dimensions(v)
		if len(dims) != 1 || dims[0] != v {
			continue
		}
		std, _ := attrString(h, v, "standard_name")
		switch {
		case std == "projection_x_coordinate" || std == "longitude":
			xName = v
		case std == "projection_y_coordinate" || std == "latitude":
			yName = v
		default:
			switch strings.ToLower(v) {
			case "x", "lon", "longitude":
				xName = v
			case "y", "lat", "latitude":
				yName = v
			}
		}
	}
	if xName == "" || yName == "" {
		return "", "", fmt.Errorf("gridpost: file does not contain a recognizable pair of grid coordinate variables")
	}
	return xName, yName, nil
}

// readLeadTime reads the forecast_period variable if the file has one.
// The variable is expected to hold a single value; its units default to
// seconds.
func (f *File) readLeadTime() error {
	h := f.ff.Header
	found := false
	for _, v := range h.Variables() {
		if v == "forecast_period" {
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	vals, err := readFullVar(f.ff, "forecast_period")
	if err != nil {
		return err
	}
	if len(vals) != 1 {
		return fmt.Errorf("gridpost: forecast_period has %d values; want 1", len(vals))
	}
	unit := time.Second
	if u, ok := attrString(h, "forecast_period", "units"); ok {
		switch u {
		case "seconds", "s":
			unit = time.Second
		case "hours", "h":
			unit = time.Hour
		default:
			return fmt.Errorf("gridpost: unsupported forecast_period units %q", u)
		}
	}
	f.leadTime = time.Duration(vals[0] * float64(unit))
	f.hasLeadTime = true
	return nil
}

// Fields returns the sorted names of the file's data variables: those
// whose trailing dimensions are the grid's y and x dimensions.
func (f *File) Fields() []string {
	var names []string
	for _, v := range f.ff.Header.Variables() {
		if f.isDataVar(v) {
			names = append(names, v)
		}
	}
	sort.Strings(names)
	return names
}

func (f *File) isDataVar(v string) bool {
	dims := f.ff.Header.Dimensions(v)
	if len(dims) != 2 && len(dims) != 3 {
		return false
	}
	return dims[len(dims)-2] == f.grid.YName && dims[len(dims)-1] == f.grid.XName
}

// ReadField reads the data variable named name. Values equal to the
// variable's declared fill value become NaN.
func (f *File) ReadField(name string) (*Field, error) {
	h := f.ff.Header
	if !f.isDataVar(name) {
		return nil, fmt.Errorf("gridpost: %s is not a gridded data variable", name)
	}
	data, err := readFullVar(f.ff, name)
	if err != nil {
		return nil, err
	}
	dims := h.Dimensions(name)
	lens := h.Lengths(name)
	arr := sparse.ZerosDense(lens...)
	copy(arr.Elements, data)

	fd := &Field{
		Name:      name,
		Attrs:     make(map[string]string),
		Grid:      f.grid,
		Data:      arr,
		LeadTime:  f.leadTime,
		FillValue: math.NaN(),
	}
	fd.HasLeadTime = f.hasLeadTime
	fd.Units, _ = attrString(h, name, "units")

	fill, hasFill := attrFloat(h, name, "_FillValue")
	if !hasFill {
		fill, hasFill = attrFloat(h, name, "missing_value")
	}
	if hasFill {
		fd.FillValue = fill
		for i, v := range arr.Elements {
			if v == fill {
				arr.Elements[i] = math.NaN()
			}
		}
	}

	for _, a := range h.Attributes(name) {
		switch a {
		case "units", "_FillValue", "missing_value":
			continue
		}
		if s, ok := attrString(h, name, a); ok {
			fd.Attrs[a] = s
		}
	}

	if len(dims) == 3 {
		fd.LeadDimName = dims[0]
		for _, v := range h.Variables() {
			vdims := h.Dimensions(v)
			if v == dims[0] && len(vdims) == 1 && vdims[0] == dims[0] {
				fd.LeadDimCoords, err = readFullVar(f.ff, v)
				if err != nil {
					return nil, err
				}
				fd.LeadDimUnits, _ = attrString(h, v, "units")
			}
		}
	}
	return fd, nil
}

// GlobalAttrs returns the file's global string attributes.
func (f *File) GlobalAttrs() map[string]string {
	o := make(map[string]string)
	for _, a := range f.ff.Header.Attributes("") {
		if s, ok := attrString(f.ff.Header, "", a); ok {
			o[a] = s
		}
	}
	return o
}

// readFullVar reads all values of variable v, widening them to
// float64.
func readFullVar(ff *cdf.File, v string) ([]float64, error) {
	r := ff.Reader(v, nil, nil)
	if r == nil {
		return nil, fmt.Errorf("gridpost: file has no variable %s", v)
	}
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("gridpost: reading variable %s: %v", v, err)
	}
	return toFloat64(buf, v)
}

func toFloat64(buf interface{}, v string) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		o := make([]float64, len(b))
		for i, val := range b {
			o[i] = float64(val)
		}
		return o, nil
	case []int32:
		o := make([]float64, len(b))
		for i, val := range b {
			o[i] = float64(val)
		}
		return o, nil
	case []int16:
		o := make([]float64, len(b))
		for i, val := range b {
			o[i] = float64(val)
		}
		return o, nil
	case []uint8:
		o := make([]float64, len(b))
		for i, val := range b {
			o[i] = float64(val)
		}
		return o, nil
	}
	return nil, fmt.Errorf("gridpost: variable %s has unsupported data type %T", v, buf)
}

// attrString returns the string attribute a of variable v, or the
// global attribute a if v is empty.
func attrString(h *cdf.Header, v, a string) (string, bool) {
	if s, ok := h.GetAttribute(v, a).(string); ok {
		return s, true
	}
	return "", false
}

// attrFloat returns the scalar numeric attribute a of variable v.
func attrFloat(h *cdf.Header, v, a string) (float64, bool) {
	switch val := h.GetAttribute(v, a).(type) {
	case []float64:
		if len(val) == 1 {
			return val[0], true
		}
	case []float32:
		if len(val) == 1 {
			return float64(val[0]), true
		}
	case []int32:
		if len(val) == 1 {
			return float64(val[0]), true
		}
	case []int16:
		if len(val) == 1 {
			return float64(val[0]), true
		}
	case []uint8:
		if len(val) == 1 {
			return float64(val[0]), true
		}
	}
	return 0, false
}

// reservedAttrs are attribute names the writer manages itself; entries
// in Field.Attrs with these names would create duplicate attributes.
var reservedAttrs = map[string]bool{
	"units":         true,
	"_FillValue":    true,
	"missing_value": true,
}

// WriteFile writes fields and the global attributes gattrs to w as a
// NetCDF file. All fields must share the same grid; coordinate
// variables are written as float64 and data as float32, matching
// common NWP post-processing output.
func WriteFile(w *os.File, fields []*Field, gattrs map[string]string) error {
	if len(fields) == 0 {
		return fmt.Errorf("gridpost: no fields to write")
	}
	grid := fields[0].Grid
	names := make(map[string]bool)
	for _, fd := range fields {
		if err := fd.checkShape(); err != nil {
			return err
		}
		if !fd.Grid.Equal(grid) {
			return fmt.Errorf("gridpost: cannot write fields %s and %s with different grids to one file",
				fields[0].Name, fd.Name)
		}
		if names[fd.Name] {
			return fmt.Errorf("gridpost: duplicate field name %s", fd.Name)
		}
		names[fd.Name] = true
	}

	dimNames := []string{grid.YName, grid.XName}
	dimLens := []int{grid.Ny(), grid.Nx()}
	leadDims := make(map[string]*Field)
	for _, fd := range fields {
		if len(fd.Data.Shape) != 3 {
			continue
		}
		if fd.LeadDimName == "" {
			return fmt.Errorf("gridpost: 3-d field %s has no leading dimension name", fd.Name)
		}
		if prev, ok := leadDims[fd.LeadDimName]; ok {
			if prev.Data.Shape[0] != fd.Data.Shape[0] {
				return fmt.Errorf("gridpost: dimension %s has conflicting lengths %d and %d",
					fd.LeadDimName, prev.Data.Shape[0], fd.Data.Shape[0])
			}
			continue
		}
		leadDims[fd.LeadDimName] = fd
		dimNames = append(dimNames, fd.LeadDimName)
		dimLens = append(dimLens, fd.Data.Shape[0])
	}

	h := cdf.NewHeader(dimNames, dimLens)
	for _, a := range sortedKeys(gattrs) {
		if a == "proj4" { // always matches the written grid
			continue
		}
		h.AddAttribute("", a, gattrs[a])
	}
	h.AddAttribute("", "proj4", grid.Proj4)

	h.AddVariable(grid.XName, []string{grid.XName}, []float64{0})
	if grid.XUnits != "" {
		h.AddAttribute(grid.XName, "units", grid.XUnits)
	}
	h.AddVariable(grid.YName, []string{grid.YName}, []float64{0})
	if grid.YUnits != "" {
		h.AddAttribute(grid.YName, "units", grid.YUnits)
	}
	for _, dim := range sortedDimNames(leadDims) {
		fd := leadDims[dim]
		if fd.LeadDimCoords == nil {
			continue
		}
		h.AddVariable(dim, []string{dim}, []float64{0})
		if fd.LeadDimUnits != "" {
			h.AddAttribute(dim, "units", fd.LeadDimUnits)
		}
	}
	var leadTime time.Duration
	var hasLeadTime bool
	for _, fd := range fields {
		if !fd.HasLeadTime {
			continue
		}
		if hasLeadTime && fd.LeadTime != leadTime {
			return fmt.Errorf("gridpost: fields have conflicting lead times %v and %v", leadTime, fd.LeadTime)
		}
		leadTime, hasLeadTime = fd.LeadTime, true
	}
	if hasLeadTime {
		h.AddVariable("forecast_period", []string{}, []int32{0})
		h.AddAttribute("forecast_period", "units", "seconds")
	}

	for _, fd := range fields {
		dims := []string{grid.YName, grid.XName}
		if len(fd.Data.Shape) == 3 {
			dims = []string{fd.LeadDimName, grid.YName, grid.XName}
		}
		h.AddVariable(fd.Name, dims, []float32{0})
		if fd.Units != "" {
			h.AddAttribute(fd.Name, "units", fd.Units)
		}
		h.AddAttribute(fd.Name, "_FillValue", []float32{float32(writeFill(fd))})
		for _, a := range sortedKeys(fd.Attrs) {
			if reservedAttrs[a] {
				continue
			}
			h.AddAttribute(fd.Name, a, fd.Attrs[a])
		}
	}

	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("gridpost: invalid output file header: %v", errs[0])
	}
	ff, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("gridpost: creating output file: %v", err)
	}

	if err := writeVar64(ff, grid.XName, grid.X); err != nil {
		return err
	}
	if err := writeVar64(ff, grid.YName, grid.Y); err != nil {
		return err
	}
	for _, dim := range sortedDimNames(leadDims) {
		fd := leadDims[dim]
		if fd.LeadDimCoords == nil {
			continue
		}
		if err := writeVar64(ff, dim, fd.LeadDimCoords); err != nil {
			return err
		}
	}
	if hasLeadTime {
		lw := ff.Writer("forecast_period", nil, nil)
		secs := int32(leadTime / time.Second)
		// A write that exactly fills a scalar variable reports io.EOF.
		if _, err := lw.Write([]int32{secs}); err != nil && err != io.EOF {
			return fmt.Errorf("gridpost: writing forecast_period: %v", err)
		}
	}
	for _, fd := range fields {
		if err := writeVar32(ff, fd); err != nil {
			return err
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		return fmt.Errorf("gridpost: finalizing output file: %v", err)
	}
	return nil
}

// writeFill returns the fill value to declare for fd on disk.
func writeFill(fd *Field) float64 {
	if math.IsNaN(fd.FillValue) {
		return defaultFillValue
	}
	return fd.FillValue
}

func writeVar64(ff *cdf.File, name string, vals []float64) error {
	end := ff.Header.Lengths(name)
	start := make([]int, len(end))
	w := ff.Writer(name, start, end)
	if _, err := w.Write(vals); err != nil {
		return fmt.Errorf("gridpost: writing variable %s: %v", name, err)
	}
	return nil
}

func writeVar32(ff *cdf.File, fd *Field) error {
	fill := float32(writeFill(fd))
	data32 := make([]float32, len(fd.Data.Elements))
	for i, e := range fd.Data.Elements {
		if math.IsNaN(e) {
			data32[i] = fill
		} else {
			data32[i] = float32(e)
		}
	}
	end := ff.Header.Lengths(fd.Name)
	start := make([]int, len(end))
	w := ff.Writer(fd.Name, start, end)
	if _, err := w.Write(data32); err != nil {
		return fmt.Errorf("gridpost: writing variable %s: %v", fd.Name, err)
	}
	return nil
}

// WriteFilePath writes fields to a new NetCDF file at path.
func WriteFilePath(path string, fields []*Field, gattrs map[string]string) error {
	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("gridpost: %v", err)
	}
	if err := WriteFile(w, fields, gattrs); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gridpost: closing %s: %v", path, err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedDimNames(m map[string]*Field) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
