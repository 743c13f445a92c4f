// Package measurement holds the per-target record produced by a modeling run:
// where the mount believed it pointed, where the plate solve says it pointed,
// and the residual between the two.
package measurement

import (
	"math"
	"time"

	"github.com/unklstewy/mount-modeler/pkg/coordinates"
)

// Point is one measured alignment target. Angles are degrees, right
// ascensions are hours and errors are arc seconds.
type Point struct {
	Index int `json:"index"` // 1-based

	AzimuthTarget  float64 `json:"azimuthTarget"`
	AltitudeTarget float64 `json:"altitudeTarget"`

	// Mount-reported pose at capture time
	RAJ2000           float64 `json:"raJ2000"`
	DecJ2000          float64 `json:"decJ2000"`
	RAJNow            float64 `json:"raJNow"`
	DecJNow           float64 `json:"decJNow"`
	Pierside          string  `json:"pierside"`
	LocalSiderealTime float64 `json:"localSiderealTime"`
	JulianDate        float64 `json:"julianDate"`

	// Plate-solve result
	RAJ2000Solved  float64 `json:"raJ2000Solved"`
	DecJ2000Solved float64 `json:"decJ2000Solved"`
	RAJNowSolved   float64 `json:"raJNowSolved"`
	DecJNowSolved  float64 `json:"decJNowSolved"`

	RAError    float64 `json:"raError"`
	DecError   float64 `json:"decError"`
	ModelError float64 `json:"modelError"`

	ImagePath     string  `json:"imagePath"`
	SolveTime     float64 `json:"solveTimeSeconds"`
	PixelScale    float64 `json:"pixelScale"`
	PositionAngle float64 `json:"positionAngle"`
	Exposure      float64 `json:"exposure"`
	Binning       int     `json:"binning"`

	CapturedAt time.Time `json:"capturedAt"`
}

// ComputeResiduals sets RAError, DecError and ModelError from the difference
// between the solved and the mount-reported J2000 position.
func (p *Point) ComputeResiduals() {
	dRA := coordinates.NormalizeHourAngle(p.RAJ2000Solved - p.RAJ2000)
	p.RAError = dRA * coordinates.HoursToDegrees * 3600.0 * math.Cos(p.DecJ2000*coordinates.DegreesToRadians)
	p.DecError = (p.DecJ2000Solved - p.DecJ2000) * 3600.0
	p.ModelError = math.Hypot(p.RAError, p.DecError)
}

// ApplyModelError overwrites the residuals from a model error given as a
// magnitude (arc seconds) and a direction angle (degrees). The RA component
// is the sine, the Dec component the cosine.
func (p *Point) ApplyModelError(rms, angle float64) {
	a := angle * coordinates.DegreesToRadians
	p.ModelError = rms
	p.RAError = rms * math.Sin(a)
	p.DecError = rms * math.Cos(a)
}

// ErrorAngle returns the direction of the residual vector in degrees [0, 360).
func (p Point) ErrorAngle() float64 {
	return coordinates.NormalizeAzimuth(math.Atan2(p.RAError, p.DecError) * coordinates.RadiansToDegrees)
}

// Renumber sets 1-based indexes in slice order.
func Renumber(points []Point) {
	for i := range points {
		points[i].Index = i + 1
	}
}
