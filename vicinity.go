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
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/interp"
)

// LeadTimeRadius associates a vicinity radius with a forecast period.
type LeadTimeRadius struct {
	LeadTime time.Duration
	Radius   float64 // metres
}

// VicinityOptions control neighbourhood processing.
type VicinityOptions struct {
	// Radius is a fixed vicinity radius in metres. Exactly one of
	// Radius and RadiiByLeadTime must be set.
	Radius float64

	// RadiiByLeadTime selects the radius by linear interpolation over
	// the field's forecast period, holding the end values constant
	// beyond the table. Entries must be ordered by strictly
	// increasing lead time.
	RadiiByLeadTime []LeadTimeRadius

	// LandMask, if set, restricts each neighbourhood to cells of the
	// same surface type as its centre (values above 0.5 are land).
	LandMask *Field
}

// RadiusForLeadTime interpolates the vicinity radius for leadTime from
// the lookup table, clamping at the table ends. A single-entry table
// is a constant.
func RadiusForLeadTime(radii []LeadTimeRadius, leadTime time.Duration) (float64, error) {
	if len(radii) == 0 {
		return 0, fmt.Errorf("gridpost: empty vicinity radius table")
	}
	for i := 1; i < len(radii); i++ {
		if radii[i].LeadTime <= radii[i-1].LeadTime {
			return 0, fmt.Errorf("gridpost: vicinity radius table lead times must be strictly increasing (%v then %v)",
				radii[i-1].LeadTime, radii[i].LeadTime)
		}
	}
	if len(radii) == 1 {
		return radii[0].Radius, nil
	}
	xs := make([]float64, len(radii))
	ys := make([]float64, len(radii))
	for i, r := range radii {
		xs[i] = r.LeadTime.Seconds()
		ys[i] = r.Radius
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return 0, fmt.Errorf("gridpost: fitting vicinity radius table: %v", err)
	}
	x := math.Min(math.Max(leadTime.Seconds(), xs[0]), xs[len(xs)-1])
	return pl.Predict(x), nil
}

// OccurrenceWithinVicinity computes, at each grid point, the maximum
// of f over a square neighbourhood whose half-width is the vicinity
// radius. For probability or occurrence fields this is the probability
// of the phenomenon occurring within the vicinity. The result is
// renamed with an "_in_vicinity" tag and carries a
// "radius_of_vicinity" attribute holding the radius actually applied.
//
// Missing points stay missing, and missing neighbours are ignored.
func OccurrenceWithinVicinity(f *Field, opts VicinityOptions) (*Field, error) {
	if (opts.Radius > 0) == (len(opts.RadiiByLeadTime) > 0) {
		return nil, fmt.Errorf("gridpost: exactly one of a fixed radius and a radius table must be given")
	}
	radius := opts.Radius
	if len(opts.RadiiByLeadTime) > 0 {
		if !f.HasLeadTime {
			return nil, fmt.Errorf("gridpost: field %s has no forecast period; cannot select a vicinity radius by lead time", f.Name)
		}
		var err error
		radius, err = RadiusForLeadTime(opts.RadiiByLeadTime, f.LeadTime)
		if err != nil {
			return nil, err
		}
	}
	if err := f.checkShape(); err != nil {
		return nil, err
	}
	var land []bool
	if opts.LandMask != nil {
		if !opts.LandMask.Grid.Equal(f.Grid) {
			return nil, fmt.Errorf("gridpost: land mask grid does not match the grid of field %s", f.Name)
		}
		land = landClasses(opts.LandMask)
	}

	dxm, dym := f.Grid.CellSizeMeters()
	kx := int(radius / dxm)
	ky := int(radius / dym)
	if kx < 1 || ky < 1 {
		return nil, fmt.Errorf("gridpost: vicinity radius %g m is smaller than a grid cell (%g x %g m)", radius, dxm, dym)
	}

	out := f.Copy()
	out.Rename(vicinityName(f.Name))
	out.SetAttr("radius_of_vicinity", strconv.FormatFloat(radius, 'f', -1, 64))
	for k := 0; k < f.Slices(); k++ {
		maxFilter(f.sliceElements(k), out.sliceElements(k), f.Grid.Ny(), f.Grid.Nx(), kx, ky, land)
	}
	return out, nil
}

// vicinityName inserts the vicinity tag into a diagnostic name. Names
// following the probability convention keep their threshold suffix
// after the tag.
func vicinityName(name string) string {
	if strings.HasPrefix(name, "probability_of_") {
		for _, suffix := range []string{"_above_threshold", "_below_threshold"} {
			if strings.HasSuffix(name, suffix) {
				return strings.TrimSuffix(name, suffix) + "_in_vicinity" + suffix
			}
		}
	}
	return name + "_in_vicinity"
}

// maxFilter writes to out the maximum of in over a (2kx+1) x (2ky+1)
// window at each point. Missing centres stay missing. If land is
// non-nil, only cells of the centre's surface type contribute.
func maxFilter(in, out []float64, ny, nx, kx, ky int, land []bool) {
	type empty struct{}
	sem := make(chan empty, ny) // semaphore pattern
	for j := 0; j < ny; j++ {
		go func(j int) { // concurrent processing
			j0, j1 := j-ky, j+ky
			if j0 < 0 {
				j0 = 0
			}
			if j1 > ny-1 {
				j1 = ny - 1
			}
			for i := 0; i < nx; i++ {
				n := j*nx + i
				if math.IsNaN(in[n]) {
					out[n] = math.NaN()
					continue
				}
				i0, i1 := i-kx, i+kx
				if i0 < 0 {
					i0 = 0
				}
				if i1 > nx-1 {
					i1 = nx - 1
				}
				max := math.Inf(-1)
				for jj := j0; jj <= j1; jj++ {
					for ii := i0; ii <= i1; ii++ {
						nn := jj*nx + ii
						v := in[nn]
						if math.IsNaN(v) {
							continue
						}
						if land != nil && land[nn] != land[n] {
							continue
						}
						if v > max {
							max = v
						}
					}
				}
				out[n] = max
			}
			sem <- empty{}
		}(j)
	}
	for j := 0; j < ny; j++ {
		<-sem
	}
}
