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
	"strings"
)

const (
	celsiusZero = 273.15 // [K]
	triplePoint = 273.16 // [K]
)

// WindChill calculates the wind chill temperature [K] from air
// temperature [K] and 10 m wind speed [m s-1] using the Met Office
// wind chill index. The formula is fitted for temperatures at or below
// 10 °C and wind speeds above 4.8 km h-1; outside that envelope it is
// still evaluated, and FeelsLikeTemperature weights it out.
func WindChill(temperature, windSpeed *Field) (*Field, error) {
	if err := checkCompatible(temperature, windSpeed); err != nil {
		return nil, err
	}
	if err := requireUnits(temperature, "K"); err != nil {
		return nil, err
	}
	if err := requireUnits(windSpeed, "m s-1", "m/s"); err != nil {
		return nil, err
	}
	out := newDerivedField(temperature, "wind_chill", "K")
	for n, t := range temperature.Data.Elements {
		out.Data.Elements[n] = windChillKelvin(t, windSpeed.Data.Elements[n])
	}
	return out, nil
}

// ApparentTemperature calculates the Steadman apparent temperature [K]
// from air temperature [K], 10 m wind speed [m s-1], relative humidity
// (fraction or %), and surface pressure [Pa].
func ApparentTemperature(temperature, windSpeed, relativeHumidity, pressure *Field) (*Field, error) {
	if err := checkCompatible(temperature, windSpeed, relativeHumidity, pressure); err != nil {
		return nil, err
	}
	if err := requireUnits(temperature, "K"); err != nil {
		return nil, err
	}
	if err := requireUnits(windSpeed, "m s-1", "m/s"); err != nil {
		return nil, err
	}
	if err := requireUnits(relativeHumidity, "1", "%"); err != nil {
		return nil, err
	}
	if err := requireUnits(pressure, "Pa"); err != nil {
		return nil, err
	}
	rhScale := 1.0
	if relativeHumidity.Units == "%" {
		rhScale = 0.01
	}
	out := newDerivedField(temperature, "apparent_temperature", "K")
	for n, t := range temperature.Data.Elements {
		out.Data.Elements[n] = apparentTemperatureKelvin(t,
			windSpeed.Data.Elements[n],
			rhScale*relativeHumidity.Data.Elements[n],
			pressure.Data.Elements[n])
	}
	return out, nil
}

// FeelsLikeTemperature calculates the feels like temperature [K]: the
// wind chill below 10 °C, the apparent temperature above 20 °C, and a
// linear blend of the two in between.
func FeelsLikeTemperature(temperature, windSpeed, relativeHumidity, pressure *Field) (*Field, error) {
	apparent, err := ApparentTemperature(temperature, windSpeed, relativeHumidity, pressure)
	if err != nil {
		return nil, err
	}
	out := newDerivedField(temperature, "feels_like_temperature", "K")
	for n, t := range temperature.Data.Elements {
		chill := windChillKelvin(t, windSpeed.Data.Elements[n])
		alpha := math.Min(math.Max((t-celsiusZero-10)/10, 0), 1)
		out.Data.Elements[n] = alpha*apparent.Data.Elements[n] + (1-alpha)*chill
	}
	return out, nil
}

func windChillKelvin(t, v float64) float64 {
	tc := t - celsiusZero
	vp := math.Pow(v*3.6, 0.16) // wind speed in km h-1
	return 13.12 + 0.6215*tc - 11.37*vp + 0.3965*tc*vp + celsiusZero
}

func apparentTemperatureKelvin(t, v, rh, p float64) float64 {
	avp := 1.e-3 * rh * saturationVapourPressureInAir(t, p) // [kPa]
	return -2.7 + 1.04*(t-celsiusZero) + 2.0*avp - 0.65*v + celsiusZero
}

// saturationVapourPressure returns the Goff-Gratch saturation vapour
// pressure [Pa] with respect to liquid water at temperature t [K].
func saturationVapourPressure(t float64) float64 {
	logES := 10.79574*(1-triplePoint/t) -
		5.028*math.Log10(t/triplePoint) +
		1.50475e-4*(1-math.Pow(10, -8.2969*(t/triplePoint-1))) +
		0.42873e-3*(math.Pow(10, 4.76955*(1-triplePoint/t))-1) +
		0.78614
	return math.Pow(10, logES) * 100 // hPa to Pa
}

// saturationVapourPressureInAir corrects the pure-phase saturation
// vapour pressure for the presence of air at pressure p [Pa].
func saturationVapourPressureInAir(t, p float64) float64 {
	tc := t - celsiusZero
	return saturationVapourPressure(t) * (1 + 1.e-8*p*(4.5+6.e-4*tc*tc))
}

// newDerivedField returns a field shaped like src holding a newly
// derived quantity: src's grid and lead time, fresh data, no inherited
// identity attributes.
func newDerivedField(src *Field, name, units string) *Field {
	out := src.Copy()
	out.Rename(name)
	out.Units = units
	out.FillValue = math.NaN()
	out.DelAttr("standard_name")
	out.DelAttr("long_name")
	for n := range out.Data.Elements {
		out.Data.Elements[n] = math.NaN()
	}
	return out
}

// checkCompatible verifies that all fields share the first field's
// grid and data shape.
func checkCompatible(fields ...*Field) error {
	for _, f := range fields {
		if err := f.checkShape(); err != nil {
			return err
		}
	}
	f0 := fields[0]
	for _, f := range fields[1:] {
		if !f.Grid.Equal(f0.Grid) {
			return fmt.Errorf("gridpost: fields %s and %s are on different grids", f0.Name, f.Name)
		}
		if len(f.Data.Shape) != len(f0.Data.Shape) {
			return fmt.Errorf("gridpost: fields %s and %s have different shapes", f0.Name, f.Name)
		}
		for i, s := range f.Data.Shape {
			if s != f0.Data.Shape[i] {
				return fmt.Errorf("gridpost: fields %s and %s have different shapes", f0.Name, f.Name)
			}
		}
	}
	return nil
}

// requireUnits checks that f's units are one of the accepted spellings.
func requireUnits(f *Field, accept ...string) error {
	for _, u := range accept {
		if f.Units == u {
			return nil
		}
	}
	return fmt.Errorf("gridpost: field %s has units %q; need %s",
		f.Name, f.Units, strings.Join(accept, " or "))
}
