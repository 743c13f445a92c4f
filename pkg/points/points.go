// Package points generates the target lists of a modeling run in
// horizontal coordinates and filters them against a horizon mask.
package points

import (
	"fmt"
	"math"
	"sort"

	"github.com/unklstewy/mount-modeler/pkg/coordinates"
)

// Point is one target of a run plan.
type Point struct {
	Azimuth  float64 `json:"az" yaml:"az"`
	Altitude float64 `json:"alt" yaml:"alt"`

	// SlewOnly targets are visited without imaging.
	SlewOnly bool `json:"slewOnly,omitempty" yaml:"slewOnly,omitempty"`

	// SolveRequired targets are imaged and plate solved.
	SolveRequired bool `json:"solveRequired,omitempty" yaml:"solveRequired,omitempty"`
}

// Horizontal returns the point as horizontal coordinates.
func (p Point) Horizontal() coordinates.HorizontalCoordinates {
	return coordinates.HorizontalCoordinates{Azimuth: p.Azimuth, Altitude: p.Altitude}
}

func target(az, alt float64) Point {
	return Point{Azimuth: coordinates.NormalizeAzimuth(az), Altitude: alt, SolveRequired: true}
}

// Plan keeps base and refinement points apart. A run visits the base
// points first.
type Plan struct {
	Base       []Point `json:"base"`
	Refinement []Point `json:"refinement"`
}

// Points returns base then refinement points.
func (p Plan) Points() []Point {
	out := make([]Point, 0, len(p.Base)+len(p.Refinement))
	out = append(out, p.Base...)
	return append(out, p.Refinement...)
}

// Len returns the number of points in the plan.
func (p Plan) Len() int {
	return len(p.Base) + len(p.Refinement)
}

// Base returns the three base points: one altitude, azimuths az0, az0+120
// and az0+240.
func Base(altitude, az0 float64) []Point {
	return []Point{
		target(az0, altitude),
		target(az0+120, altitude),
		target(az0+240, altitude),
	}
}

// Grid returns rows × cols points. Azimuths start at 5° and step by
// 360/cols; altitudes step evenly from altMin to altMax. Every other row is
// reversed so consecutive points stay close.
func Grid(rows, cols int, altMin, altMax float64) ([]Point, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("grid needs at least one row and column, got %dx%d", rows, cols)
	}
	if altMin > altMax {
		return nil, fmt.Errorf("grid altitude range inverted: %.1f > %.1f", altMin, altMax)
	}

	altStep := 0.0
	if rows > 1 {
		altStep = (altMax - altMin) / float64(rows-1)
	}
	azStep := 360.0 / float64(cols)

	out := make([]Point, 0, rows*cols)
	for r := 0; r < rows; r++ {
		alt := altMin + float64(r)*altStep
		for c := 0; c < cols; c++ {
			col := c
			if r%2 == 1 {
				col = cols - 1 - c
			}
			out = append(out, target(5+float64(col)*azStep, alt))
		}
	}
	return out, nil
}

// band is a run of declination rows sharing one hour angle step.
type band struct {
	decFrom, decTo float64 // degrees, decTo exclusive
	haStep         float64 // degrees
}

var (
	denseBands = []band{
		{-10, 30, 15},
		{30, 70, 10},
		{70, 90, 30},
	}
	normalBands = []band{
		{-15, 60, 10},
		{60, 90, 20},
	}
)

// Dense returns points along declination circles from -10° to 80° every
// 10°, spaced in hour angle by 15° (dec < 30), 10° (dec < 70) or 30°.
// Points at or below the mathematical horizon are dropped.
func Dense(latitude float64) []Point {
	return declinationCircles(latitude, -10, 90, 10, denseBands)
}

// Normal returns points along declination circles from -15° to 75° every
// 15°, spaced in hour angle by 10° below dec 60 and 20° above.
func Normal(latitude float64) []Point {
	return declinationCircles(latitude, -15, 90, 15, normalBands)
}

func declinationCircles(lat, decFrom, decTo, decStep float64, bands []band) []Point {
	var out []Point
	row := 0
	for dec := decFrom; dec < decTo; dec += decStep {
		step := haStepFor(dec, bands)
		var circle []Point
		for ha := -180.0; ha < 180.0; ha += step {
			az, alt := coordinates.HADecToAzAlt(ha/coordinates.HoursToDegrees, dec, lat)
			if alt > 0 {
				circle = append(circle, target(az, alt))
			}
		}
		if row%2 == 1 {
			reverse(circle)
		}
		out = append(out, circle...)
		row++
	}
	return out
}

func haStepFor(dec float64, bands []band) float64 {
	for _, b := range bands {
		if dec >= b.decFrom && dec < b.decTo {
			return b.haStep
		}
	}
	return bands[len(bands)-1].haStep
}

func reverse(p []Point) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}

// DSOPath returns points along the path an object at (ra, dec) will take
// over the next hours. The path starts preview hours before the object's
// current hour angle and advances by hours/n per point.
//
// Parameters:
//   - ra, dec: object position in hours and degrees (JNow)
//   - latitude: site latitude in degrees
//   - lst: local sidereal time in hours
//   - hours: length of the path
//   - n: number of points
//   - preview: hours the path starts before the current position
//
// Returns: the points above the horizon, in time order
func DSOPath(ra, dec, latitude, lst, hours float64, n int, preview float64) []Point {
	if n < 1 || hours <= 0 {
		return nil
	}
	step := hours / float64(n)
	out := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		ha := coordinates.NormalizeHourAngle(lst - ra - preview + float64(i)*step)
		az, alt := coordinates.HADecToAzAlt(ha, dec, latitude)
		if alt > 0 {
			out = append(out, target(az, alt))
		}
	}
	return out
}

// TimeChange returns count visits of one position, for measuring drift of
// the pointing over time.
func TimeChange(az, alt float64, count int) []Point {
	out := make([]Point, 0, max(count, 0))
	for i := 0; i < count; i++ {
		out = append(out, target(az, alt))
	}
	return out
}

// Hysterese returns count alternating visits of two positions, for
// measuring the mechanical hysteresis between them.
func Hysterese(az1, alt1, az2, alt2 float64, count int) []Point {
	out := make([]Point, 0, 2*max(count, 0))
	for i := 0; i < count; i++ {
		out = append(out, target(az1, alt1), target(az2, alt2))
	}
	return out
}

// SortByPier orders points east of the meridian (az < 180) before those
// west of it, each side by ascending altitude. The sort is stable.
func SortByPier(points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		ei, ej := points[i].Azimuth < 180, points[j].Azimuth < 180
		if ei != ej {
			return ei
		}
		return points[i].Altitude < points[j].Altitude
	})
}

// Separation returns the largest single-axis distance between two points in
// degrees, which bounds the slew since both axes move at once.
func Separation(a, b Point) float64 {
	return math.Max(math.Abs(a.Altitude-b.Altitude), azimuthDifference(a.Azimuth, b.Azimuth))
}

// azimuthDifference calculates the smallest angle between two azimuths.
// Handles wrap-around (e.g., 359° to 1° is 2°, not 358°).
func azimuthDifference(az1, az2 float64) float64 {
	diff := math.Abs(az2 - az1)
	if diff > 180.0 {
		diff = 360.0 - diff
	}
	return diff
}
