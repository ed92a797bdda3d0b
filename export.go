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
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
)

// wgs84WKT is written to the .prj sidecar for grids in geographic
// coordinates; projected grids get their proj4 string, which GDAL and
// friends also accept.
const wgs84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

// WriteShapefile writes fields to a polygon shapefile with one shape
// per grid cell and one attribute column per field, plus a .prj
// sidecar holding the grid's projection. All fields must share a
// grid; fields with a leading dimension export their first slice.
// When clip is non-nil, only cells whose centres fall inside it are
// written. Cells that are missing in every field are skipped;
// remaining missing values are written as NaN, which fits the
// attribute column where a numeric fill value would not.
func WriteShapefile(fileName string, fields []*Field, clip *Mask) error {
	if len(fields) == 0 {
		return fmt.Errorf("gridpost: no fields to export")
	}
	if err := checkCompatible(fields...); err != nil {
		return err
	}
	columns := make([]*Field, len(fields))
	for i, f := range fields {
		f2, err := f.ExtractSlice(0)
		if err != nil {
			return err
		}
		columns[i] = f2
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].Name < columns[j].Name })
	if err := checkColumnNames(columns); err != nil {
		return err
	}

	shpFields := make([]goshp.Field, len(columns))
	for i, f := range columns {
		shpFields[i] = goshp.FloatField(f.Name, 14, 8)
	}

	fileBase := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	shape, err := shp.NewEncoderFromFields(fileBase+".shp", goshp.POLYGON, shpFields...)
	if err != nil {
		return fmt.Errorf("gridpost: creating output shapefile: %v", err)
	}

	g := columns[0].Grid
	outFields := make([]interface{}, len(columns))
	for j := 0; j < g.Ny(); j++ {
		for i := 0; i < g.Nx(); i++ {
			if clip != nil && !clip.Contains(geom.Point{X: g.X[i], Y: g.Y[j]}) {
				continue
			}
			n := j*g.Nx() + i
			allMissing := true
			for k, f := range columns {
				v := f.Data.Elements[n]
				if !math.IsNaN(v) {
					allMissing = false
				}
				outFields[k] = v
			}
			if allMissing {
				continue
			}
			if err := shape.EncodeFields(g.CellPolygon(j, i), outFields...); err != nil {
				return fmt.Errorf("gridpost: writing output shapefile: %v", err)
			}
		}
	}
	shape.Close()

	f, err := os.Create(fileBase + ".prj")
	if err != nil {
		return fmt.Errorf("gridpost: creating output prj file: %v", err)
	}
	if strings.Contains(g.Proj4, "longlat") || strings.Contains(g.Proj4, "latlong") {
		fmt.Fprint(f, wgs84WKT)
	} else {
		fmt.Fprint(f, g.Proj4)
	}
	return f.Close()
}

var columnNameRe = regexp.MustCompile(`^[A-Za-z]\w*$`)

// checkColumnNames rejects field names that the shapefile attribute
// table cannot hold: names longer than 10 characters or containing
// characters outside [A-Za-z0-9_].
func checkColumnNames(fields []*Field) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f.Name) > 10 {
			return fmt.Errorf("gridpost: export column name '%s' exceeds 10 characters; rename the field first", f.Name)
		}
		if !columnNameRe.MatchString(f.Name) {
			return fmt.Errorf("gridpost: export column name '%s' includes unsupported characters", f.Name)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("gridpost: duplicate export column name '%s'", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}
