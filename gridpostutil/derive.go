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

// FeelsLike calculates wind chill, apparent temperature, or the
// blended feels like temperature from the named input variables.
//
// tempName, windName, rhName and pressureName are the input variable
// names; diagnostic selects which temperature to calculate. Wind
// chill does not read the humidity or pressure variables.
func FeelsLike(input, output, tempName, windName, rhName, pressureName, diagnostic, attrsFile string) error {
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

	temperature, err := in.ReadField(tempName)
	if err != nil {
		return err
	}
	windSpeed, err := in.ReadField(windName)
	if err != nil {
		return err
	}

	var result *gridpost.Field
	switch diagnostic {
	case "wind_chill":
		result, err = gridpost.WindChill(temperature, windSpeed)
	case "apparent_temperature", "feels_like_temperature":
		var rh, pressure *gridpost.Field
		rh, err = in.ReadField(rhName)
		if err != nil {
			return err
		}
		pressure, err = in.ReadField(pressureName)
		if err != nil {
			return err
		}
		if diagnostic == "apparent_temperature" {
			result, err = gridpost.ApparentTemperature(temperature, windSpeed, rh, pressure)
		} else {
			result, err = gridpost.FeelsLikeTemperature(temperature, windSpeed, rh, pressure)
		}
	default:
		return fmt.Errorf("gridpost: invalid feels-like diagnostic %q; use wind_chill, apparent_temperature or feels_like_temperature", diagnostic)
	}
	if err != nil {
		return err
	}
	log.Infof("calculated %s", result.Name)

	out := []*gridpost.Field{result}
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

// Derive evaluates an expression over the input's variables and
// writes the result as a new variable with the given name and units.
func Derive(input, output, name, units, expr, attrsFile string) error {
	c := outChan()
	ctx := context.TODO()

	if expr == "" {
		return fmt.Errorf(`you need to specify an expression (for example: --expr="hypot(u, v)")`)
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
	fields, err := selectFields(in, nil)
	if err != nil {
		return err
	}

	result, err := gridpost.Derive(fields, name, units, expr)
	if err != nil {
		return err
	}
	log.Infof("derived %s = %s", name, expr)

	out := []*gridpost.Field{result}
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
