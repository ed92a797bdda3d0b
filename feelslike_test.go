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
	"testing"
	"time"
)

const feelsLikeTolerance = 1.e-9

func TestWindChill(t *testing.T) {
	g := testGrid(2, 2)
	temperature := testField("air_temperature", "K", g,
		[]float64{270.15, 269.15, 273.15, 263.15})
	temperature.SetAttr("standard_name", "air_temperature")
	temperature.LeadTime, temperature.HasLeadTime = 3*time.Hour, true
	wind := testField("wind_speed", "m s-1", g, []float64{5, 10, 2, 8})

	out, err := WindChill(temperature, wind)
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != "wind_chill" || out.Units != "K" {
		t.Errorf("want wind_chill in K but have %s in %s", out.Name, out.Units)
	}
	if _, ok := out.Attrs["standard_name"]; ok {
		t.Error("the input standard_name should not survive")
	}
	if !out.HasLeadTime || out.LeadTime != 3*time.Hour {
		t.Error("the forecast period should survive")
	}
	want := []float64{264.4613307470669, 260.7971564784178, 270.67685691293553, 253.80153817187727}
	for i := range want {
		if different(out.Data.Elements[i], want[i], feelsLikeTolerance) {
			t.Errorf("element %d: want %g but have %g", i, want[i], out.Data.Elements[i])
		}
	}
}

func TestSaturationVapourPressure(t *testing.T) {
	tests := []struct{ t, want float64 }{
		{273.16, 611.1390010925688},
		{293.15, 2337.08019791657},
	}
	for _, test := range tests {
		if have := saturationVapourPressure(test.t); different(have, test.want, feelsLikeTolerance) {
			t.Errorf("svp(%g): want %g but have %g", test.t, test.want, have)
		}
	}
	if have := saturationVapourPressureInAir(293.15, 101325); different(have, 2348.3047383765247, feelsLikeTolerance) {
		t.Errorf("svp in air: want %g but have %g", 2348.3047383765247, have)
	}
}

func TestApparentTemperature(t *testing.T) {
	g := testGrid(2, 2)
	temperature := testField("air_temperature", "K", g,
		[]float64{295.15, 295.15, 295.15, 295.15})
	wind := testField("wind_speed", "m s-1", g, []float64{5, 5, 5, 5})
	humidity := testField("relative_humidity", "1", g, []float64{0, 0.075, 0.15, 0.5})
	pressure := testField("surface_air_pressure", "Pa", g,
		[]float64{99998, 101248, 102498, 101325})

	want := []float64{290.08, 290.4783408660285, 290.87672920709633, 292.73561552173123}

	out, err := ApparentTemperature(temperature, wind, humidity, pressure)
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != "apparent_temperature" || out.Units != "K" {
		t.Errorf("want apparent_temperature in K but have %s in %s", out.Name, out.Units)
	}
	for i := range want {
		if different(out.Data.Elements[i], want[i], feelsLikeTolerance) {
			t.Errorf("element %d: want %g but have %g", i, want[i], out.Data.Elements[i])
		}
	}

	// Humidity given in % instead of as a fraction.
	percent := testField("relative_humidity", "%", g, []float64{0, 7.5, 15, 50})
	out, err = ApparentTemperature(temperature, wind, percent, pressure)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if different(out.Data.Elements[i], want[i], feelsLikeTolerance) {
			t.Errorf("percent humidity, element %d: want %g but have %g", i, want[i], out.Data.Elements[i])
		}
	}
}

func TestFeelsLikeTemperature(t *testing.T) {
	g := testGrid(2, 2)
	temperature := testField("air_temperature", "K", g,
		[]float64{280.15, 285.15, 290.15, 297.15})
	wind := testField("wind_speed", "m s-1", g, []float64{4, 4, 4, 4})
	humidity := testField("relative_humidity", "1", g, []float64{0.4, 0.4, 0.4, 0.4})
	pressure := testField("surface_air_pressure", "Pa", g,
		[]float64{101325, 101325, 101325, 101325})

	out, err := FeelsLikeTemperature(temperature, wind, humidity, pressure)
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != "feels_like_temperature" {
		t.Errorf("want feels_like_temperature but have %s", out.Name)
	}
	want := []float64{277.45132361176957, 283.1685466563186, 287.8831371787183, 295.20802536536286}
	for i := range want {
		if different(out.Data.Elements[i], want[i], feelsLikeTolerance) {
			t.Errorf("element %d: want %g but have %g", i, want[i], out.Data.Elements[i])
		}
	}

	// At or below 10 degrees Celsius the result is the wind chill, at
	// or above 20 the apparent temperature.
	chill, err := WindChill(temperature, wind)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data.Elements[0] != chill.Data.Elements[0] {
		t.Errorf("want pure wind chill %g but have %g", chill.Data.Elements[0], out.Data.Elements[0])
	}
	apparent, err := ApparentTemperature(temperature, wind, humidity, pressure)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data.Elements[3] != apparent.Data.Elements[3] {
		t.Errorf("want pure apparent temperature %g but have %g", apparent.Data.Elements[3], out.Data.Elements[3])
	}
}

func TestFeelsLikeErrors(t *testing.T) {
	g := testGrid(2, 2)
	temperature := testField("air_temperature", "K", g, nil)
	wind := testField("wind_speed", "m s-1", g, nil)
	humidity := testField("relative_humidity", "1", g, nil)
	pressure := testField("surface_air_pressure", "Pa", g, nil)

	if _, err := WindChill(testField("air_temperature", "Cel", g, nil), wind); err == nil {
		t.Error("want error for temperature not in K but have none")
	}
	if _, err := WindChill(temperature, testField("wind_speed", "knots", g, nil)); err == nil {
		t.Error("want error for wind speed not in m s-1 but have none")
	}
	if _, err := ApparentTemperature(temperature, wind,
		testField("relative_humidity", "kg", g, nil), pressure); err == nil {
		t.Error("want error for humidity units but have none")
	}
	if _, err := ApparentTemperature(temperature, wind, humidity,
		testField("surface_air_pressure", "hPa", g, nil)); err == nil {
		t.Error("want error for pressure not in Pa but have none")
	}
	offGrid := testField("surface_air_pressure", "Pa", testGrid(3, 3), nil)
	if _, err := FeelsLikeTemperature(temperature, wind, humidity, offGrid); err == nil {
		t.Error("want error for fields on different grids but have none")
	}
}
