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
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
)

// Mask is a set of polygons used to restrict an operation to a
// region, held in a spatial index for point lookups.
type Mask struct {
	index *rtree.Rtree
}

type maskShape struct {
	geom.Polygonal
}

// NewMask creates a mask from the given polygons, which must be in
// the coordinate system of the grid the mask will be applied to.
func NewMask(polys ...geom.Polygonal) *Mask {
	m := &Mask{index: rtree.NewTree(25, 50)}
	for _, p := range polys {
		m.index.Insert(&maskShape{Polygonal: p})
	}
	return m
}

// Contains reports whether p is inside any of the mask polygons.
func (m *Mask) Contains(p geom.Point) bool {
	for _, sI := range m.index.SearchIntersect(p.Bounds()) {
		s := sI.(*maskShape)
		if p.Within(s.Polygonal) == geom.Inside {
			return true
		}
	}
	return false
}

// ReadMask reads mask polygons from a GeoJSON file (.geojson or
// .json, assumed to be in WGS84 longitude-latitude coordinates) or a
// shapefile (.shp, in the projection given by its .prj sidecar), and
// reprojects them to the projection given by proj4.
func ReadMask(filename, proj4 string) (*Mask, error) {
	dst, err := proj.Parse(proj4)
	if err != nil {
		return nil, fmt.Errorf("gridpost: parsing mask target projection: %v", err)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".geojson", ".json":
		return readGeoJSONMask(filename, dst)
	case ".shp":
		return readShapefileMask(filename, dst)
	}
	return nil, fmt.Errorf("gridpost: mask file %s is not GeoJSON or a shapefile", filename)
}

func readGeoJSONMask(filename string, dst *proj.SR) (*Mask, error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("gridpost: reading mask: %v", err)
	}
	src, err := proj.Parse("+proj=longlat +datum=WGS84")
	if err != nil {
		return nil, err
	}
	trans, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("gridpost: reprojecting mask: %v", err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("gridpost: parsing mask %s: %v", filename, err)
	}
	var geometries [][]byte
	switch probe.Type {
	case "FeatureCollection":
		var fc struct {
			Features []struct {
				Geometry json.RawMessage `json:"geometry"`
			} `json:"features"`
		}
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("gridpost: parsing mask %s: %v", filename, err)
		}
		for _, f := range fc.Features {
			geometries = append(geometries, f.Geometry)
		}
	case "Feature":
		var ft struct {
			Geometry json.RawMessage `json:"geometry"`
		}
		if err := json.Unmarshal(data, &ft); err != nil {
			return nil, fmt.Errorf("gridpost: parsing mask %s: %v", filename, err)
		}
		geometries = append(geometries, ft.Geometry)
	default:
		geometries = append(geometries, data)
	}

	var polys []geom.Polygonal
	for _, gdata := range geometries {
		g, err := geojson.Decode(gdata)
		if err != nil {
			return nil, fmt.Errorf("gridpost: decoding mask %s: %v", filename, err)
		}
		gg, err := g.Transform(trans)
		if err != nil {
			return nil, fmt.Errorf("gridpost: reprojecting mask: %v", err)
		}
		p, ok := gg.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("gridpost: mask shapes need to be polygons")
		}
		polys = append(polys, p)
	}
	if len(polys) == 0 {
		return nil, fmt.Errorf("gridpost: mask %s contains no polygons", filename)
	}
	return NewMask(polys...), nil
}

func readShapefileMask(filename string, dst *proj.SR) (*Mask, error) {
	d, err := shp.NewDecoder(filename)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	src, err := d.SR()
	if err != nil {
		return nil, fmt.Errorf("gridpost: reading mask projection: %v", err)
	}
	trans, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("gridpost: reprojecting mask: %v", err)
	}
	var polys []geom.Polygonal
	for {
		g, _, more := d.DecodeRowFields()
		if !more {
			break
		}
		gg, err := g.Transform(trans)
		if err != nil {
			return nil, fmt.Errorf("gridpost: reprojecting mask: %v", err)
		}
		p, ok := gg.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("gridpost: mask shapes need to be polygons")
		}
		polys = append(polys, p)
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("gridpost: reading mask %s: %v", filename, err)
	}
	if len(polys) == 0 {
		return nil, fmt.Errorf("gridpost: mask %s contains no polygons", filename)
	}
	return NewMask(polys...), nil
}
