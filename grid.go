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

// Package gridpost post-processes gridded numerical weather prediction
// output: regridding fields between grids, neighbourhood (vicinity)
// processing, thresholding into probability fields, and derived
// diagnostics such as feels-like temperature.
package gridpost

import (
	"fmt"
	"math"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// Version gives the version number.
const Version = "0.1.0"

// axisSpacingTolerance is the maximum relative deviation from uniform
// spacing allowed along a grid axis. Coordinates in NWP output are
// typically stored as float32, so exact uniformity cannot be assumed.
const axisSpacingTolerance = 1.e-4

// Grid is a regular two-dimensional grid of cell centres. The
// coordinate axes must be strictly monotonic (ascending or descending)
// and uniformly spaced. Coordinates are in the units of the projection
// specified by Proj4: metres for projected grids, degrees for
// geographic grids.
type Grid struct {
	// X and Y are the cell-centre coordinates along each axis.
	X, Y []float64

	// XName and YName are the names used for the coordinate variables
	// when the grid is written to a file.
	XName, YName string

	// XUnits and YUnits hold the units of the coordinate axes.
	XUnits, YUnits string

	// Proj4 specifies the grid's spatial reference in PROJ.4 format.
	Proj4 string

	dx, dy float64 // signed cell spacing
}

// NewGrid creates a grid from cell-centre coordinates x and y and the
// spatial reference proj4. It returns an error if either axis has fewer
// than two points, is not strictly monotonic, or is not uniformly
// spaced.
func NewGrid(x, y []float64, proj4 string) (*Grid, error) {
	g := &Grid{
		X:     x,
		Y:     y,
		XName: "x",
		YName: "y",
		Proj4: proj4,
	}
	var err error
	if g.dx, err = axisSpacing(x); err != nil {
		return nil, fmt.Errorf("gridpost: x axis: %v", err)
	}
	if g.dy, err = axisSpacing(y); err != nil {
		return nil, fmt.Errorf("gridpost: y axis: %v", err)
	}
	return g, nil
}

// axisSpacing returns the signed spacing of axis c, checking that the
// axis is strictly monotonic and uniform.
func axisSpacing(c []float64) (float64, error) {
	if len(c) < 2 {
		return 0, fmt.Errorf("axis must have at least 2 points but has %d", len(c))
	}
	d := c[1] - c[0]
	if d == 0 {
		return 0, fmt.Errorf("repeated coordinate value %g", c[0])
	}
	for i := 1; i < len(c); i++ {
		di := c[i] - c[i-1]
		if di == 0 || (di > 0) != (d > 0) {
			return 0, fmt.Errorf("axis is not strictly monotonic at index %d (%g)", i, c[i])
		}
		if math.Abs(di-d) > axisSpacingTolerance*math.Abs(d) {
			return 0, fmt.Errorf("axis is not uniformly spaced at index %d (spacing %g vs %g)", i, di, d)
		}
	}
	return d, nil
}

// Nx returns the number of grid columns.
func (g *Grid) Nx() int { return len(g.X) }

// Ny returns the number of grid rows.
func (g *Grid) Ny() int { return len(g.Y) }

// Dx returns the absolute spacing between cell centres along the x axis.
func (g *Grid) Dx() float64 { return math.Abs(g.dx) }

// Dy returns the absolute spacing between cell centres along the y axis.
func (g *Grid) Dy() float64 { return math.Abs(g.dy) }

// metersPerDegree is the length of one degree of arc along the equator
// on the WGS84 ellipsoid.
const metersPerDegree = 111319.49079327358

// CellSizeMeters returns the approximate dimensions of a grid cell in
// metres. For geographic grids the equatorial degree length is used,
// which overestimates east-west distances away from the equator.
func (g *Grid) CellSizeMeters() (dx, dy float64) {
	dx, dy = g.Dx(), g.Dy()
	if strings.Contains(g.Proj4, "longlat") || strings.Contains(g.Proj4, "latlong") {
		dx *= metersPerDegree
		dy *= metersPerDegree
	}
	return dx, dy
}

// Bounds returns the outer edges of the grid, extending half a cell
// beyond the outermost cell centres.
func (g *Grid) Bounds() *geom.Bounds {
	x0, x1 := g.X[0]-g.dx/2, g.X[len(g.X)-1]+g.dx/2
	y0, y1 := g.Y[0]-g.dy/2, g.Y[len(g.Y)-1]+g.dy/2
	return &geom.Bounds{
		Min: geom.Point{X: math.Min(x0, x1), Y: math.Min(y0, y1)},
		Max: geom.Point{X: math.Max(x0, x1), Y: math.Max(y0, y1)},
	}
}

// CellPolygon returns the rectangular outline of the cell in row j,
// column i.
func (g *Grid) CellPolygon(j, i int) geom.Polygon {
	x, y := g.X[i], g.Y[j]
	w, e := x-g.dx/2, x+g.dx/2
	s, n := y-g.dy/2, y+g.dy/2
	return geom.Polygon{{
		geom.Point{X: w, Y: s},
		geom.Point{X: e, Y: s},
		geom.Point{X: e, Y: n},
		geom.Point{X: w, Y: n},
		geom.Point{X: w, Y: s},
	}}
}

// SR returns the grid's spatial reference.
func (g *Grid) SR() (*proj.SR, error) {
	sr, err := proj.Parse(g.Proj4)
	if err != nil {
		return nil, fmt.Errorf("gridpost: parsing grid projection %q: %v", g.Proj4, err)
	}
	return sr, nil
}

// Transform returns a function that converts coordinates from this
// grid's spatial reference to dst's spatial reference.
func (g *Grid) Transform(dst *Grid) (proj.Transformer, error) {
	src, err := g.SR()
	if err != nil {
		return nil, err
	}
	d, err := dst.SR()
	if err != nil {
		return nil, err
	}
	t, err := src.NewTransform(d)
	if err != nil {
		return nil, fmt.Errorf("gridpost: creating grid transform: %v", err)
	}
	return t, nil
}

// Equal reports whether g and o have the same axes (within the axis
// spacing tolerance) and the same spatial reference string.
func (g *Grid) Equal(o *Grid) bool {
	if o == nil || len(g.X) != len(o.X) || len(g.Y) != len(o.Y) || g.Proj4 != o.Proj4 {
		return false
	}
	tolX := axisSpacingTolerance * g.Dx()
	for i, v := range g.X {
		if math.Abs(v-o.X[i]) > tolX {
			return false
		}
	}
	tolY := axisSpacingTolerance * g.Dy()
	for j, v := range g.Y {
		if math.Abs(v-o.Y[j]) > tolY {
			return false
		}
	}
	return true
}

// fractionalIndex returns the continuous grid indices of the point
// (x, y), where integer values lie exactly on cell centres. The
// returned values may lie outside [0, n-1] for points beyond the grid.
func (g *Grid) fractionalIndex(x, y float64) (fi, fj float64) {
	fi = (x - g.X[0]) / g.dx
	fj = (y - g.Y[0]) / g.dy
	return fi, fj
}
