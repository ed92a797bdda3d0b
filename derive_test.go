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
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestDerive(t *testing.T) {
	g := testGrid(2, 2)
	u := testField("x_wind", "m s-1", g, []float64{3, 8, 0, -3})
	v := testField("y_wind", "m s-1", g, []float64{4, 15, 0, -4})

	out, err := Derive([]*Field{u, v}, "wind_speed", "m s-1", "hypot(x_wind, y_wind)")
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != "wind_speed" || out.Units != "m s-1" {
		t.Errorf("want wind_speed in m s-1 but have %s in %s", out.Name, out.Units)
	}
	want := []float64{5, 17, 0, 5}
	if !reflect.DeepEqual(out.Data.Elements, want) {
		t.Errorf("want %v but have %v", want, out.Data.Elements)
	}
}

func TestDeriveArithmetic(t *testing.T) {
	g := testGrid(2, 2)
	a := testField("a", "K", g, []float64{1, 2, 3, 4})
	b := testField("b", "K", g, []float64{3, 4, 5, 6})

	out, err := Derive([]*Field{a, b}, "mean", "", "(a + b) / 2")
	if err != nil {
		t.Fatal(err)
	}
	if out.Units != "unknown" {
		t.Errorf("want default units unknown but have %q", out.Units)
	}
	want := []float64{2, 3, 4, 5}
	if !reflect.DeepEqual(out.Data.Elements, want) {
		t.Errorf("want %v but have %v", want, out.Data.Elements)
	}
}

func TestDeriveFunctions(t *testing.T) {
	g := testGrid(2, 2)
	tests := []struct {
		expr string
		data []float64
		want []float64
	}{
		{"sqrt(a)", []float64{4, 9, 16, 25}, []float64{2, 3, 4, 5}},
		{"abs(a)", []float64{-1, 2, -3, 0}, []float64{1, 2, 3, 0}},
		{"exp(a)", []float64{0, 0, 0, 0}, []float64{1, 1, 1, 1}},
		{"log(a)", []float64{1, 1, 1, 1}, []float64{0, 0, 0, 0}},
		{"pow(a, 2)", []float64{2, 3, 4, 5}, []float64{4, 9, 16, 25}},
		{"min(a, 10)", []float64{5, 15, 10, -1}, []float64{5, 10, 10, -1}},
		{"max(a, 10)", []float64{5, 15, 10, -1}, []float64{10, 15, 10, 10}},
	}
	for _, test := range tests {
		t.Run(test.expr, func(t *testing.T) {
			a := testField("a", "1", g, test.data)
			out, err := Derive([]*Field{a}, "d", "1", test.expr)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(out.Data.Elements, test.want) {
				t.Errorf("want %v but have %v", test.want, out.Data.Elements)
			}
		})
	}
}

func TestDeriveBool(t *testing.T) {
	g := testGrid(2, 2)
	a := testField("a", "K", g, []float64{1, 5, 2, 2})
	b := testField("b", "K", g, []float64{2, 3, 2, 1})

	out, err := Derive([]*Field{a, b}, "exceeds", "1", "a > b")
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 1, 0, 1}
	if !reflect.DeepEqual(out.Data.Elements, want) {
		t.Errorf("want %v but have %v", want, out.Data.Elements)
	}
}

func TestDeriveMissing(t *testing.T) {
	g := testGrid(2, 2)
	a := testField("a", "K", g, []float64{1, math.NaN(), 3, 4})
	b := testField("b", "K", g, []float64{1, 1, 1, math.NaN()})

	out, err := Derive([]*Field{a, b}, "sum", "K", "a + b")
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{2, math.NaN(), 4, math.NaN()}
	for i := range want {
		have := out.Data.Elements[i]
		if math.IsNaN(want[i]) != math.IsNaN(have) || (!math.IsNaN(want[i]) && want[i] != have) {
			t.Errorf("element %d: want %g but have %g", i, want[i], have)
		}
	}
}

func TestDeriveErrors(t *testing.T) {
	g := testGrid(2, 2)
	a := testField("a", "K", g, nil)
	b := testField("b", "K", g, nil)
	offGrid := testField("b", "K", testGrid(3, 3), nil)

	if _, err := Derive([]*Field{a}, "", "", "a"); err == nil {
		t.Error("want error for a missing name but have none")
	}
	if _, err := Derive(nil, "d", "", "a"); err == nil {
		t.Error("want error for no input fields but have none")
	}
	if _, err := Derive([]*Field{a, offGrid}, "d", "", "a + b"); err == nil {
		t.Error("want error for fields on different grids but have none")
	}
	if _, err := Derive([]*Field{a}, "d", "", "a +"); err == nil {
		t.Error("want error for an invalid expression but have none")
	}
	if _, err := Derive([]*Field{a}, "d", "", "2 + 2"); err == nil {
		t.Error("want error for an expression without field references but have none")
	}
	if _, err := Derive([]*Field{a}, "d", "", "sqrt(a, a)"); err == nil {
		t.Error("want error for wrong function arity but have none")
	}

	_, err := Derive([]*Field{a, b}, "d", "", "a + q")
	if err == nil {
		t.Fatal("want error for an unknown variable but have none")
	}
	if !strings.Contains(err.Error(), "references q") || !strings.Contains(err.Error(), "a, b") {
		t.Errorf("unexpected error %v", err)
	}
}
