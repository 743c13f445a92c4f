package coordinates

import "math"

// Refraction returns the atmospheric refraction in degrees for an apparent
// altitude in degrees, scaled for pressure (hPa) and temperature (°C).
// Bennett's formula with the Saemundsson pressure/temperature factor.
func Refraction(apparentAlt, temperatureC, pressureHPa float64) float64 {
	if apparentAlt < -1.0 {
		return 0
	}
	h := apparentAlt
	r := 1.0 / math.Tan(deg2rad(h+7.31/(h+4.4)))
	r -= 0.06 * math.Sin(deg2rad(14.7*r+13))
	if r < 0 {
		r = 0
	}
	return r / 60.0 * (pressureHPa / 1010.0) * (283.0 / (273.0 + temperatureC))
}

// refractTrueToApparent lifts a geometric altitude to the apparent one.
// Saemundsson's formula for the true-to-apparent direction.
func refractTrueToApparent(trueAlt, temperatureC, pressureHPa float64) float64 {
	if trueAlt < -1.0 {
		return trueAlt
	}
	h := trueAlt
	r := 1.02 / math.Tan(deg2rad(h+10.3/(h+5.11)))
	if r < 0 {
		r = 0
	}
	return trueAlt + r/60.0*(pressureHPa/1010.0)*(283.0/(273.0+temperatureC))
}

// refractApparentToTrue removes refraction from an apparent altitude. It
// iterates on refractTrueToApparent so the two directions invert each other.
func refractApparentToTrue(apparentAlt, temperatureC, pressureHPa float64) float64 {
	h := apparentAlt - Refraction(apparentAlt, temperatureC, pressureHPa)
	for i := 0; i < 5; i++ {
		h += apparentAlt - refractTrueToApparent(h, temperatureC, pressureHPa)
	}
	return h
}
