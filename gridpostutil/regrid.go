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

// Regrid regrids the data variables in the input file onto the grid
// of the targetGrid file and writes the result.
//
// Input, targetGrid and the mask files can be local paths or URLs;
// output can be a local path or a blob storage URL.
//
// Mode is one of "bilinear", "nearest", "nearest-with-mask" or
// "bilinear-with-mask"; the mask modes require source and target land
// masks. Extrapolation says what happens to target points outside
// the source grid: "nan", "clamp" or "error". SearchRadius limits,
// in metres, how far the mask modes look for a matching surface type.
//
// Title becomes the output's title attribute; an empty title is
// written as "unknown". Vars selects a subset of the input's data
// variables, and attrsFile is an optional attribute amendment file
// applied before writing.
func Regrid(input, targetGrid, output, mode, extrapolation, srcMaskFile, tgtMaskFile string, searchRadius float64, title string, vars []string, attrsFile string) error {
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

	if targetGrid == "" {
		return fmt.Errorf(`you need to specify a target grid file (for example: --target-grid="grid.nc")`)
	}
	tf, err := openInput(ctx, targetGrid, c)
	if err != nil {
		return err
	}
	target := tf.Grid()
	tf.Close()

	opts := gridpost.RegridOptions{
		Mode:          mode,
		Extrapolation: extrapolation,
		SearchRadius:  searchRadius,
	}
	if srcMaskFile != "" {
		opts.SourceLandMask, err = loadLandMask(ctx, srcMaskFile, c)
		if err != nil {
			return err
		}
	}
	if tgtMaskFile != "" {
		opts.TargetLandMask, err = loadLandMask(ctx, tgtMaskFile, c)
		if err != nil {
			return err
		}
	}

	log.Infof("regridding %d variables from %dx%d to %dx%d",
		len(fields), in.Grid().Ny(), in.Grid().Nx(), target.Ny(), target.Nx())
	out := make([]*gridpost.Field, len(fields))
	for i, f := range fields {
		out[i], err = gridpost.Regrid(f, target, opts)
		if err != nil {
			return err
		}
	}

	gattrs := in.GlobalAttrs()
	if title == "" {
		title = "unknown"
	}
	gattrs["title"] = title
	if err := applyAmendments(attrsFile, out, gattrs); err != nil {
		return err
	}
	u := new(uploader)
	if err := gridpost.WriteFilePath(u.maybeUpload(output), out, gattrs); err != nil {
		return err
	}
	return u.flush()
}
