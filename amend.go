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
	"io/ioutil"
	"strings"

	"github.com/BurntSushi/toml"
)

// AttrAmendment is a set of attribute edits for one target: values to
// set and names to delete.
type AttrAmendment struct {
	Set    map[string]string
	Delete []string
}

// Amendments describes metadata edits to apply before writing output,
// decoded from a TOML file of the form:
//
//	[global]
//	delete = ["history"]
//
//	[global.set]
//	institution = "Example Met Service"
//
//	[variables.air_temperature.set]
//	standard_name = "air_temperature"
type Amendments struct {
	Global    AttrAmendment
	Variables map[string]AttrAmendment
}

// ReadAmendments reads an attribute amendment file.
func ReadAmendments(filename string) (*Amendments, error) {
	bytes, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("gridpost: reading amendments: %v", err)
	}
	a := new(Amendments)
	if _, err := toml.Decode(string(bytes), a); err != nil {
		return nil, fmt.Errorf("gridpost: parsing amendments %s: %v", filename, err)
	}
	for name, va := range a.Variables {
		for k := range va.Set {
			if isReservedAttr(k) {
				return nil, fmt.Errorf("gridpost: attribute %s of %s is managed by the writer and cannot be amended", k, name)
			}
		}
		for _, k := range va.Delete {
			if isReservedAttr(k) {
				return nil, fmt.Errorf("gridpost: attribute %s of %s is managed by the writer and cannot be amended", k, name)
			}
		}
	}
	return a, nil
}

func isReservedAttr(k string) bool {
	return k == "_FillValue" || k == "missing_value"
}

// Apply applies the amendments to the given fields and global
// attributes in place. Amendments naming a variable that is not
// present are an error.
func (a *Amendments) Apply(fields []*Field, gattrs map[string]string) error {
	for k, v := range a.Global.Set {
		gattrs[k] = v
	}
	for _, k := range a.Global.Delete {
		delete(gattrs, k)
	}
	byName := make(map[string]*Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	for name, va := range a.Variables {
		f, ok := byName[name]
		if !ok {
			return fmt.Errorf("gridpost: amendments name variable %s; have %s",
				name, strings.Join(fieldNames(fields), ", "))
		}
		for k, v := range va.Set {
			if k == "units" {
				f.Units = v
				continue
			}
			f.SetAttr(k, v)
		}
		for _, k := range va.Delete {
			if k == "units" {
				f.Units = ""
				continue
			}
			f.DelAttr(k)
		}
	}
	return nil
}
