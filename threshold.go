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

// Threshold comparators.
const (
	GreaterThan        = "gt"
	GreaterThanOrEqual = "ge"
	LessThan           = "lt"
	LessThanOrEqual    = "le"
)

var comparatorNames = map[string]string{
	GreaterThan:        "greater_than",
	GreaterThanOrEqual: "greater_than_or_equal_to",
	LessThan:           "less_than",
	LessThanOrEqual:    "less_than_or_equal_to",
}

// ThresholdOptions control the conversion of a diagnostic into
// probabilities of threshold exceedance.
type ThresholdOptions struct {
	// Thresholds are the threshold values, in the units of the input
	// field, ordered strictly increasing.
	Thresholds []float64

	// Comparator selects the comparison; the default is GreaterThan.
	Comparator string

	// FuzzyFactor, when in (0, 1), ramps the probability linearly
	// from 0 at threshold*factor to 1 at threshold*(2-factor) instead
	// of stepping at the threshold. It cannot be combined with a
	// threshold of zero.
	FuzzyFactor float64
}

// Threshold converts a 2-d diagnostic into probabilities of exceeding
// (or falling below) each threshold. The output gains a leading
// "threshold" dimension whose coordinate holds the threshold values in
// the input units, is renamed following the probability convention,
// and records the comparison in a "relative_to_threshold" attribute.
// Missing points stay missing at every threshold.
func Threshold(f *Field, opts ThresholdOptions) (*Field, error) {
	if opts.Comparator == "" {
		opts.Comparator = GreaterThan
	}
	spelled, ok := comparatorNames[opts.Comparator]
	if !ok {
		return nil, fmt.Errorf("gridpost: invalid threshold comparator %q", opts.Comparator)
	}
	if len(opts.Thresholds) == 0 {
		return nil, fmt.Errorf("gridpost: no thresholds given")
	}
	for i := 1; i < len(opts.Thresholds); i++ {
		if opts.Thresholds[i] <= opts.Thresholds[i-1] {
			return nil, fmt.Errorf("gridpost: thresholds must be strictly increasing (%g then %g)",
				opts.Thresholds[i-1], opts.Thresholds[i])
		}
	}
	if opts.FuzzyFactor != 0 {
		if opts.FuzzyFactor <= 0 || opts.FuzzyFactor >= 1 {
			return nil, fmt.Errorf("gridpost: fuzzy factor %g is outside (0, 1)", opts.FuzzyFactor)
		}
		for _, t := range opts.Thresholds {
			if t == 0 {
				return nil, fmt.Errorf("gridpost: fuzzy bounds are undefined for a threshold of zero")
			}
		}
	}
	if err := f.checkShape(); err != nil {
		return nil, err
	}
	if len(f.Data.Shape) != 2 {
		return nil, fmt.Errorf("gridpost: field %s already has a leading dimension; cannot threshold it", f.Name)
	}

	ny, nx := f.Grid.Ny(), f.Grid.Nx()
	out := f.Copy()
	out.Data = sparse.ZerosDense(len(opts.Thresholds), ny, nx)
	out.Units = "1"
	out.FillValue = math.NaN()
	out.LeadDimName = "threshold"
	out.LeadDimCoords = append([]float64(nil), opts.Thresholds...)
	out.LeadDimUnits = f.Units
	switch opts.Comparator {
	case GreaterThan, GreaterThanOrEqual:
		out.Rename("probability_of_" + f.Name + "_above_threshold")
	default:
		out.Rename("probability_of_" + f.Name + "_below_threshold")
	}
	// The thresholded field is a different quantity; identity
	// attributes from the input no longer apply.
	out.DelAttr("standard_name")
	out.DelAttr("long_name")
	out.SetAttr("relative_to_threshold", spelled)

	for ti, t := range opts.Thresholds {
		slice := out.sliceElements(ti)
		for n, v := range f.Data.Elements {
			if math.IsNaN(v) {
				slice[n] = math.NaN()
				continue
			}
			slice[n] = thresholdProbability(v, t, opts.Comparator, opts.FuzzyFactor)
		}
	}
	return out, nil
}

// thresholdProbability returns the probability that v satisfies the
// comparison with threshold t. With a fuzzy factor, the probability
// ramps linearly between the fuzzy bounds and passes 0.5 at the
// threshold itself.
func thresholdProbability(v, t float64, comparator string, fuzzyFactor float64) float64 {
	if fuzzyFactor == 0 {
		var hit bool
		switch comparator {
		case GreaterThan:
			hit = v > t
		case GreaterThanOrEqual:
			hit = v >= t
		case LessThan:
			hit = v < t
		default: // LessThanOrEqual
			hit = v <= t
		}
		if hit {
			return 1
		}
		return 0
	}
	lo := t * fuzzyFactor
	hi := t * (2 - fuzzyFactor)
	if lo > hi { // negative threshold
		lo, hi = hi, lo
	}
	above := math.Min(math.Max((v-lo)/(hi-lo), 0), 1)
	switch comparator {
	case LessThan, LessThanOrEqual:
		return 1 - above
	}
	return above
}
