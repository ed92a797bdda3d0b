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
	"math"
	"time"

	"github.com/ctessum/sparse"
)

// Field holds one gridded diagnostic. The data array is either
// [ny, nx] or, for diagnostics with a leading dimension such as
// threshold or realization, [n, ny, nx]. Missing data is represented
// as NaN in memory regardless of the fill value used on disk.
type Field struct {
	// Name is the diagnostic name, e.g. "air_temperature" or
	// "probability_of_lwe_snowfall_rate_above_threshold".
	Name string

	// Units holds the units of the data, e.g. "K" or "1".
	Units string

	// Attrs holds the remaining variable attributes. Units, fill
	// values, and coordinate bookkeeping are kept out of this map.
	Attrs map[string]string

	Grid *Grid

	Data *sparse.DenseArray

	// LeadTime is the forecast period of the field, valid only when
	// HasLeadTime is true.
	LeadTime    time.Duration
	HasLeadTime bool

	// FillValue is the value used to represent missing data on disk.
	// NaN means the file did not declare one.
	FillValue float64

	// LeadDimName, LeadDimCoords, and LeadDimUnits describe the
	// leading dimension of a 3-d field so that it survives a round
	// trip to disk.
	LeadDimName   string
	LeadDimCoords []float64
	LeadDimUnits  string
}

// NewField creates a field from data on grid. It returns an error if
// the trailing dimensions of data do not match the grid.
func NewField(name, units string, grid *Grid, data *sparse.DenseArray) (*Field, error) {
	f := &Field{
		Name:      name,
		Units:     units,
		Attrs:     make(map[string]string),
		Grid:      grid,
		Data:      data,
		FillValue: math.NaN(),
	}
	if err := f.checkShape(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Field) checkShape() error {
	s := f.Data.Shape
	if len(s) != 2 && len(s) != 3 {
		return fmt.Errorf("gridpost: field %s has %d dimensions; want 2 or 3", f.Name, len(s))
	}
	ny, nx := s[len(s)-2], s[len(s)-1]
	if ny != f.Grid.Ny() || nx != f.Grid.Nx() {
		return fmt.Errorf("gridpost: field %s shape [%d, %d] does not match grid [%d, %d]",
			f.Name, ny, nx, f.Grid.Ny(), f.Grid.Nx())
	}
	return nil
}

// Copy returns a deep copy of the field. The grid is shared; grids are
// immutable once created.
func (f *Field) Copy() *Field {
	o := *f
	o.Data = f.Data.Copy()
	o.Attrs = make(map[string]string, len(f.Attrs))
	for k, v := range f.Attrs {
		o.Attrs[k] = v
	}
	if f.LeadDimCoords != nil {
		o.LeadDimCoords = append([]float64(nil), f.LeadDimCoords...)
	}
	return &o
}

// Rename sets the field's diagnostic name.
func (f *Field) Rename(name string) { f.Name = name }

// SetAttr sets the variable attribute k to v.
func (f *Field) SetAttr(k, v string) {
	if f.Attrs == nil {
		f.Attrs = make(map[string]string)
	}
	f.Attrs[k] = v
}

// DelAttr removes the variable attribute k if present.
func (f *Field) DelAttr(k string) { delete(f.Attrs, k) }

// Slices returns the number of 2-d slices in the field: 1 for a 2-d
// field, the length of the leading dimension otherwise.
func (f *Field) Slices() int {
	if len(f.Data.Shape) == 2 {
		return 1
	}
	return f.Data.Shape[0]
}

// sliceElements returns the elements of slice k as a view into the
// underlying array.
func (f *Field) sliceElements(k int) []float64 {
	n := f.Grid.Ny() * f.Grid.Nx()
	return f.Data.Elements[k*n : (k+1)*n]
}

// ExtractSlice returns slice k of the field as a new 2-d field. A 2-d
// field only has slice 0. If the leading dimension is forecast_period
// in seconds, the extracted slice keeps the matching scalar lead time.
func (f *Field) ExtractSlice(k int) (*Field, error) {
	if k < 0 || k >= f.Slices() {
		return nil, fmt.Errorf("gridpost: field %s has %d slices; no slice %d", f.Name, f.Slices(), k)
	}
	out := f.Copy()
	if len(f.Data.Shape) == 2 {
		return out, nil
	}
	out.Data = sparse.ZerosDense(f.Grid.Ny(), f.Grid.Nx())
	copy(out.Data.Elements, f.sliceElements(k))
	if f.LeadDimName == "forecast_period" && f.LeadDimUnits == "seconds" {
		out.LeadTime = time.Duration(f.LeadDimCoords[k] * float64(time.Second))
		out.HasLeadTime = true
	}
	out.LeadDimName = ""
	out.LeadDimCoords = nil
	out.LeadDimUnits = ""
	return out, nil
}
