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
	"fmt"

	"github.com/spatialmodel/gridpost"
)

// Vicinity rewrites each selected variable as its maximum within a
// neighbourhood, for use in probability-of-occurrence-within-vicinity
// products.
//
// Radius is the neighbourhood radius in metres; radiiSpec, mutually
// exclusive with radius, is a lead time to radius table in
// "seconds:metres,..." format interpolated at the input's lead time.
// landMaskFile, if given, restricts each neighbourhood to cells with
// the centre cell's surface type.
func Vicinity(input, output string, radius float64, radiiSpec, landMaskFile string, vars []string, attrsFile string) error {
	c := outChan()
	ctx := context.TODO()

	output, err := checkOutputFile(output)
	if err != nil {
		return err
	}
	in, err := openInput(ctx, input, c)
	if err != nil {
		return err
	}
	defer in.Close()
	fields, err := selectFields(in, vars)
	if err != nil {
		return err
	}

	opts := gridpost.VicinityOptions{Radius: radius}
	if radiiSpec != "" {
		opts.RadiiByLeadTime, err = parseRadiiTable(radiiSpec)
		if err != nil {
			return err
		}
	}
	if landMaskFile != "" {
		opts.LandMask, err = loadLandMask(ctx, landMaskFile, c)
		if err != nil {
			return err
		}
	}

	out := make([]*gridpost.Field, len(fields))
	for i, f := range fields {
		out[i], err = gridpost.OccurrenceWithinVicinity(f, opts)
		if err != nil {
			return err
		}
		log.Infof("%s -> %s", f.Name, out[i].Name)
	}

	gattrs := in.GlobalAttrs()
	if err := applyAmendments(attrsFile, out, gattrs); err != nil {
		return err
	}
	u := new(uploader)
	if err := gridpost.WriteFilePath(u.maybeUpload(output), out, gattrs); err != nil {
		return err
	}
	return u.flush()
}

// Threshold converts each selected variable into probabilities of
// exceeding (or falling below) the given thresholds.
//
// Comparator is one of "gt", "ge", "lt" or "le"; fuzzyFactor, when
// nonzero, ramps probabilities linearly around each threshold instead
// of stepping.
func Threshold(input, output string, thresholds []float64, comparator string, fuzzyFactor float64, vars []string, attrsFile string) error {
	c := outChan()
	ctx := context.TODO()

	if len(thresholds) == 0 {
		return fmt.Errorf(`you need to specify thresholds (for example: --thresholds="272.15,273.15")`)
	}
	output, err := checkOutputFile(output)
	if err != nil {
		return err
	}
	in, err := openInput(ctx, input, c)
	if err != nil {
		return err
	}
	defer in.Close()
	fields, err := selectFields(in, vars)
	if err != nil {
		return err
	}

	opts := gridpost.ThresholdOptions{
		Thresholds:  thresholds,
		Comparator:  comparator,
		FuzzyFactor: fuzzyFactor,
	}
	out := make([]*gridpost.Field, len(fields))
	for i, f := range fields {
		out[i], err = gridpost.Threshold(f, opts)
		if err != nil {
			return err
		}
		log.Infof("%s -> %s", f.Name, out[i].Name)
	}

	gattrs := in.GlobalAttrs()
	if err := applyAmendments(attrsFile, out, gattrs); err != nil {
		return err
	}
	u := new(uploader)
	if err := gridpost.WriteFilePath(u.maybeUpload(output), out, gattrs); err != nil {
		return err
	}
	return u.flush()
}
