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
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
)

// deriveFunctions are the functions available in derived-diagnostic
// expressions.
var deriveFunctions = map[string]govaluate.ExpressionFunction{
	"sqrt": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("gridpost: got %d arguments for function 'sqrt', but needs 1", len(arg))
		}
		return math.Sqrt(arg[0].(float64)), nil
	},
	"abs": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("gridpost: got %d arguments for function 'abs', but needs 1", len(arg))
		}
		return math.Abs(arg[0].(float64)), nil
	},
	"exp": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("gridpost: got %d arguments for function 'exp', but needs 1", len(arg))
		}
		return math.Exp(arg[0].(float64)), nil
	},
	"log": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("gridpost: got %d arguments for function 'log', but needs 1", len(arg))
		}
		return math.Log(arg[0].(float64)), nil
	},
	"pow": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 2 {
			return nil, fmt.Errorf("gridpost: got %d arguments for function 'pow', but needs 2", len(arg))
		}
		return math.Pow(arg[0].(float64), arg[1].(float64)), nil
	},
	"hypot": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 2 {
			return nil, fmt.Errorf("gridpost: got %d arguments for function 'hypot', but needs 2", len(arg))
		}
		return math.Hypot(arg[0].(float64), arg[1].(float64)), nil
	},
	"min": func(arg ...interface{}) (interface{}, error) {
		if len(arg) < 2 {
			return nil, fmt.Errorf("gridpost: got %d arguments for function 'min', but needs at least 2", len(arg))
		}
		v := arg[0].(float64)
		for _, a := range arg[1:] {
			v = math.Min(v, a.(float64))
		}
		return v, nil
	},
	"max": func(arg ...interface{}) (interface{}, error) {
		if len(arg) < 2 {
			return nil, fmt.Errorf("gridpost: got %d arguments for function 'max', but needs at least 2", len(arg))
		}
		v := arg[0].(float64)
		for _, a := range arg[1:] {
			v = math.Max(v, a.(float64))
		}
		return v, nil
	},
}

// Derive evaluates expr point by point over the given fields and
// returns the result as a new field with the given name and units.
// Variables in the expression are resolved against the field names;
// the functions sqrt, abs, exp, log, pow, hypot, min and max are
// available. A point that is missing in any referenced field is
// missing in the result.
func Derive(fields []*Field, name, units, expr string) (*Field, error) {
	if name == "" {
		return nil, fmt.Errorf("gridpost: derived diagnostic needs a name")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("gridpost: no input fields for derived diagnostic %s", name)
	}
	if err := checkCompatible(fields...); err != nil {
		return nil, err
	}
	expression, err := govaluate.NewEvaluableExpressionWithFunctions(expr, deriveFunctions)
	if err != nil {
		return nil, fmt.Errorf("gridpost: parsing expression for %s: %v", name, err)
	}

	byName := make(map[string]*Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	var refs []*Field
	for _, v := range removeDuplicates(expression.Vars()) {
		f, ok := byName[v]
		if !ok {
			return nil, fmt.Errorf("gridpost: expression for %s references %s; have %s",
				name, v, strings.Join(fieldNames(fields), ", "))
		}
		refs = append(refs, f)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("gridpost: expression for %s references no fields", name)
	}
	if units == "" {
		units = "unknown"
	}

	out := newDerivedField(refs[0], name, units)
	params := make(map[string]interface{}, len(refs))
	for n := range out.Data.Elements {
		missing := false
		for _, f := range refs {
			v := f.Data.Elements[n]
			if math.IsNaN(v) {
				missing = true
				break
			}
			params[f.Name] = v
		}
		if missing {
			out.Data.Elements[n] = math.NaN()
			continue
		}
		result, err := expression.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("gridpost: evaluating expression for %s: %v", name, err)
		}
		switch r := result.(type) {
		case float64:
			out.Data.Elements[n] = r
		case bool:
			if r {
				out.Data.Elements[n] = 1
			} else {
				out.Data.Elements[n] = 0
			}
		default:
			return nil, fmt.Errorf("gridpost: expression for %s yielded %T, not a number", name, result)
		}
	}
	return out, nil
}

func fieldNames(fields []*Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	sort.Strings(names)
	return names
}

// removeDuplicates returns s with later repeats of earlier entries
// removed, preserving order.
func removeDuplicates(s []string) []string {
	seen := make(map[string]struct{}, len(s))
	var out []string
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
