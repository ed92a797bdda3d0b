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
	"os"

	"github.com/spatialmodel/gridpost"
)

// Export writes selected variables to a polygon shapefile, one shape
// per grid cell.
//
// Slice selects which 2-d slice of fields with a leading dimension to
// export. Renames maps variable names to shapefile column names,
// which cannot exceed 10 characters. clipFile, if given, is a GeoJSON
// file or shapefile restricting the export to cells whose centres
// fall inside its polygons.
func Export(input, output string, vars []string, slice int, renames map[string]string, clipFile string) error {
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
	for i, f := range fields {
		fields[i], err = f.ExtractSlice(slice)
		if err != nil {
			return err
		}
		if newName, ok := renames[f.Name]; ok {
			fields[i].Rename(newName)
		}
	}

	var clip *gridpost.Mask
	if clipFile != "" {
		local := maybeDownload(ctx, os.ExpandEnv(clipFile), c)
		clip, err = gridpost.ReadMask(local, in.Grid().Proj4)
		if err != nil {
			return err
		}
	}

	u := new(uploader)
	if err := gridpost.WriteShapefile(u.maybeUpload(output), fields, clip); err != nil {
		return err
	}
	log.Infof("exported %d variables to %s", len(fields), output)
	return u.flush()
}
