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

	"github.com/ctessum/sparse"
)

// Regridding modes.
const (
	RegridBilinear         = "bilinear"
	RegridNearest          = "nearest"
	RegridNearestWithMask  = "nearest-with-mask"
	RegridBilinearWithMask = "bilinear-with-mask"
)

// Extrapolation modes for target points that fall outside the source
// grid.
const (
	ExtrapolationNaN   = "nan"   // mark the point as missing
	ExtrapolationClamp = "clamp" // use the nearest edge value
	ExtrapolationError = "error" // fail the operation
)

// defaultSearchRadius is the distance in metres out to which the
// mask-aware modes search for a source point of matching surface type.
const defaultSearchRadius = 25000.

// RegridOptions control how a field is regridded.
type RegridOptions struct {
	// Mode selects the interpolation method; the default is bilinear.
	Mode string

	// Extrapolation selects how target points outside the source grid
	// are handled; the default is to mark them missing.
	Extrapolation string

	// SourceLandMask and TargetLandMask classify the surface type of
	// the source and target grids (values above 0.5 are land). Both
	// are required for the mask-aware modes and rejected otherwise.
	SourceLandMask *Field
	TargetLandMask *Field

	// SearchRadius is the distance in metres out to which the
	// mask-aware modes search for a source point of matching surface
	// type before falling back to the unmasked result. The default is
	// 25000 m.
	SearchRadius float64
}

// Regrid interpolates src onto the target grid. Fields with a leading
// dimension are regridded slice by slice. Missing source values are
// excluded from the interpolation; an output point with no valid
// source contribution is missing.
func Regrid(src *Field, target *Grid, opts RegridOptions) (*Field, error) {
	if opts.Mode == "" {
		opts.Mode = RegridBilinear
	}
	if opts.Extrapolation == "" {
		opts.Extrapolation = ExtrapolationNaN
	}
	if opts.SearchRadius == 0 {
		opts.SearchRadius = defaultSearchRadius
	}
	switch opts.Extrapolation {
	case ExtrapolationNaN, ExtrapolationClamp, ExtrapolationError:
	default:
		return nil, fmt.Errorf("gridpost: invalid extrapolation mode %q", opts.Extrapolation)
	}
	masked := false
	switch opts.Mode {
	case RegridNearest, RegridBilinear:
		if opts.SourceLandMask != nil || opts.TargetLandMask != nil {
			return nil, fmt.Errorf("gridpost: land masks are only used by the mask-aware regridding modes")
		}
	case RegridNearestWithMask, RegridBilinearWithMask:
		masked = true
		if opts.SourceLandMask == nil || opts.TargetLandMask == nil {
			return nil, fmt.Errorf("gridpost: regridding mode %s requires both source and target land masks", opts.Mode)
		}
		if !opts.SourceLandMask.Grid.Equal(src.Grid) {
			return nil, fmt.Errorf("gridpost: source land mask grid does not match the source grid")
		}
		if !opts.TargetLandMask.Grid.Equal(target) {
			return nil, fmt.Errorf("gridpost: target land mask grid does not match the target grid")
		}
	default:
		return nil, fmt.Errorf("gridpost: invalid regridding mode %q", opts.Mode)
	}
	if err := src.checkShape(); err != nil {
		return nil, err
	}

	rg := &regridder{
		src:    src,
		target: target,
		opts:   opts,
	}
	if masked {
		rg.srcLand = landClasses(opts.SourceLandMask)
		rg.tgtLand = landClasses(opts.TargetLandMask)
		rg.dxm, rg.dym = src.Grid.CellSizeMeters()
		minCell := math.Min(rg.dxm, rg.dym)
		rg.rmax = int(math.Ceil(opts.SearchRadius / minCell))
	}
	if err := rg.locate(); err != nil {
		return nil, err
	}

	shape := []int{target.Ny(), target.Nx()}
	if len(src.Data.Shape) == 3 {
		shape = []int{src.Data.Shape[0], target.Ny(), target.Nx()}
	}
	out := src.Copy()
	out.Grid = target
	out.Data = sparse.ZerosDense(shape...)
	for k := 0; k < src.Slices(); k++ {
		rg.interpolateSlice(src.sliceElements(k), out.sliceElements(k))
	}
	return out, nil
}

// landClasses converts a land mask field to per-cell booleans.
func landClasses(mask *Field) []bool {
	o := make([]bool, len(mask.Data.Elements))
	for i, v := range mask.Data.Elements {
		o[i] = v > 0.5
	}
	return o
}

// regridder holds the state shared between the slices of one Regrid
// call: the fractional source indices of every target cell centre.
type regridder struct {
	src    *Field
	target *Grid
	opts   RegridOptions

	// fi and fj are the fractional source-grid indices of each target
	// cell centre; NaN marks points that the extrapolation mode
	// declared missing.
	fi, fj []float64

	srcLand, tgtLand []bool

	// dxm and dym are the source cell dimensions in metres; rmax is
	// the search radius in source cells.
	dxm, dym float64
	rmax     int
}

// locate computes the fractional source-grid index of every target
// cell centre, applying the extrapolation mode to points beyond the
// source grid.
func (rg *regridder) locate() error {
	tg := rg.target
	sg := rg.src.Grid
	nx, ny := tg.Nx(), tg.Ny()
	rg.fi = make([]float64, ny*nx)
	rg.fj = make([]float64, ny*nx)

	identity := tg.Proj4 == sg.Proj4
	var transform func(x, y float64) (float64, float64, error)
	if !identity {
		t, err := tg.Transform(sg)
		if err != nil {
			return err
		}
		transform = t
	}

	snx, sny := float64(sg.Nx()), float64(sg.Ny())
	errs := make([]error, ny)
	type empty struct{}
	sem := make(chan empty, ny) // semaphore pattern
	for j := 0; j < ny; j++ {
		go func(j int) { // concurrent processing
			for i := 0; i < nx; i++ {
				x, y := tg.X[i], tg.Y[j]
				if !identity {
					var err error
					x, y, err = transform(x, y)
					if err != nil {
						errs[j] = fmt.Errorf("gridpost: transforming target point (%g, %g): %v", tg.X[i], tg.Y[j], err)
						break
					}
				}
				fi, fj := sg.fractionalIndex(x, y)
				if fi < -0.5 || fi > snx-0.5 || fj < -0.5 || fj > sny-0.5 {
					switch rg.opts.Extrapolation {
					case ExtrapolationError:
						errs[j] = fmt.Errorf("gridpost: target point (%g, %g) is outside the source grid", tg.X[i], tg.Y[j])
					case ExtrapolationNaN:
						fi, fj = math.NaN(), math.NaN()
					}
					if errs[j] != nil {
						break
					}
				}
				if rg.opts.Extrapolation == ExtrapolationClamp {
					fi = math.Min(math.Max(fi, 0), snx-1)
					fj = math.Min(math.Max(fj, 0), sny-1)
				}
				rg.fi[j*nx+i] = fi
				rg.fj[j*nx+i] = fj
			}
			sem <- empty{}
		}(j)
	}
	for j := 0; j < ny; j++ {
		<-sem
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// interpolateSlice fills one 2-d output slice from one source slice.
func (rg *regridder) interpolateSlice(src, out []float64) {
	ny, nx := rg.target.Ny(), rg.target.Nx()
	type empty struct{}
	sem := make(chan empty, ny) // semaphore pattern
	for j := 0; j < ny; j++ {
		go func(j int) { // concurrent processing
			for i := 0; i < nx; i++ {
				n := j*nx + i
				fi, fj := rg.fi[n], rg.fj[n]
				if math.IsNaN(fi) || math.IsNaN(fj) {
					out[n] = math.NaN()
					continue
				}
				switch rg.opts.Mode {
				case RegridNearest:
					out[n] = rg.nearest(src, fi, fj)
				case RegridBilinear:
					out[n] = rg.bilinear(src, fi, fj)
				case RegridNearestWithMask:
					out[n] = rg.nearestWithMask(src, fi, fj, rg.tgtLand[n])
				case RegridBilinearWithMask:
					out[n] = rg.bilinearWithMask(src, fi, fj, rg.tgtLand[n])
				}
			}
			sem <- empty{}
		}(j)
	}
	for j := 0; j < ny; j++ {
		<-sem
	}
}

// clampIndex rounds a fractional index to the nearest integer within
// [0, n-1].
func clampIndex(f float64, n int) int {
	i := int(f + 0.5)
	if i < 0 {
		i = 0
	}
	if i > n-1 {
		i = n - 1
	}
	return i
}

func (rg *regridder) nearest(src []float64, fi, fj float64) float64 {
	sg := rg.src.Grid
	i := clampIndex(fi, sg.Nx())
	j := clampIndex(fj, sg.Ny())
	return src[j*sg.Nx()+i]
}

func (rg *regridder) bilinear(src []float64, fi, fj float64) float64 {
	v, ok := rg.bilinearWeighted(src, fi, fj, nil, false)
	if !ok {
		return math.NaN()
	}
	return v
}

// bilinearWeighted computes the bilinear value at (fi, fj), skipping
// missing corners and renormalising the weights over those remaining.
// If land is non-nil, corners whose surface type differs from wantLand
// are skipped too. The second return value is false when no corner
// contributes.
func (rg *regridder) bilinearWeighted(src []float64, fi, fj float64, land []bool, wantLand bool) (float64, bool) {
	sg := rg.src.Grid
	nx, ny := sg.Nx(), sg.Ny()
	i0 := int(math.Floor(fi))
	j0 := int(math.Floor(fj))
	// Clamp the cell so that edge points interpolate within the
	// outermost cells.
	if i0 < 0 {
		i0 = 0
	}
	if i0 > nx-2 {
		i0 = nx - 2
	}
	if j0 < 0 {
		j0 = 0
	}
	if j0 > ny-2 {
		j0 = ny - 2
	}
	t := fi - float64(i0)
	u := fj - float64(j0)
	t = math.Min(math.Max(t, 0), 1)
	u = math.Min(math.Max(u, 0), 1)

	corners := [4]int{
		j0*nx + i0,
		j0*nx + i0 + 1,
		(j0+1)*nx + i0,
		(j0+1)*nx + i0 + 1,
	}
	weights := [4]float64{
		(1 - t) * (1 - u),
		t * (1 - u),
		(1 - t) * u,
		t * u,
	}
	var sum, wsum float64
	for c, n := range corners {
		v := src[n]
		if math.IsNaN(v) {
			continue
		}
		if land != nil && land[n] != wantLand {
			continue
		}
		sum += weights[c] * v
		wsum += weights[c]
	}
	if wsum == 0 {
		return 0, false
	}
	return sum / wsum, true
}

// nearestWithMask returns the value of the nearest source point whose
// surface type matches wantLand, searching an expanding window around
// the nearest point out to the search radius. If no matching point is
// found the plain nearest value is returned.
func (rg *regridder) nearestWithMask(src []float64, fi, fj float64, wantLand bool) float64 {
	sg := rg.src.Grid
	nx, ny := sg.Nx(), sg.Ny()
	i0 := clampIndex(fi, nx)
	j0 := clampIndex(fj, ny)
	n0 := j0*nx + i0
	if rg.srcLand[n0] == wantLand && !math.IsNaN(src[n0]) {
		return src[n0]
	}
	if n, ok := rg.searchMatching(src, i0, j0, wantLand); ok {
		return src[n]
	}
	return src[n0]
}

func (rg *regridder) bilinearWithMask(src []float64, fi, fj float64, wantLand bool) float64 {
	if v, ok := rg.bilinearWeighted(src, fi, fj, rg.srcLand, wantLand); ok {
		return v
	}
	return rg.nearestWithMask(src, fi, fj, wantLand)
}

// searchMatching scans rings of increasing radius around (i0, j0) for
// the closest valid source point of the wanted surface type within
// the search radius. Once a match is found, the scan continues until
// no closer ring can beat it.
func (rg *regridder) searchMatching(src []float64, i0, j0 int, wantLand bool) (int, bool) {
	sg := rg.src.Grid
	nx, ny := sg.Nx(), sg.Ny()
	minCell := math.Min(rg.dxm, rg.dym)
	best := -1
	bestDist := math.Inf(1)
	for r := 1; r <= rg.rmax; r++ {
		if float64(r)*minCell > bestDist {
			break
		}
		for dj := -r; dj <= r; dj++ {
			j := j0 + dj
			if j < 0 || j >= ny {
				continue
			}
			di := -r
			step := 1
			if dj != -r && dj != r {
				step = 2 * r // only the ring edges
			}
			for ; di <= r; di += step {
				i := i0 + di
				if i < 0 || i >= nx {
					continue
				}
				n := j*nx + i
				if rg.srcLand[n] != wantLand || math.IsNaN(src[n]) {
					continue
				}
				d := math.Hypot(float64(di)*rg.dxm, float64(dj)*rg.dym)
				if d > rg.opts.SearchRadius || d >= bestDist {
					continue
				}
				bestDist = d
				best = n
			}
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}
