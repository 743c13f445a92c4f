package points

import "fmt"

// LimitEvent tells why a point cannot be used.
type LimitEvent int

const (
	// WithinLimits means the point can be visited.
	WithinLimits LimitEvent = iota

	// BelowLimit means the point is below the mount's lower altitude limit.
	BelowLimit

	// AboveLimit means the point is above the mount's upper altitude limit,
	// usually set to keep the camera clear of the pier near zenith.
	AboveLimit
)

func (e LimitEvent) String() string {
	switch e {
	case BelowLimit:
		return "below limit"
	case AboveLimit:
		return "above limit"
	default:
		return "within limits"
	}
}

// Limits are the altitude limits configured on the mount.
type Limits struct {
	// MinAltitude is the lowest altitude the mount slews to, in degrees.
	MinAltitude float64

	// MaxAltitude is the highest altitude the mount slews to, in degrees.
	MaxAltitude float64
}

// DefaultLimits returns the full sky above the horizon.
func DefaultLimits() Limits {
	return Limits{
		MinAltitude: 0.0,
		MaxAltitude: 90.0,
	}
}

// LimitsFromMount creates Limits from the horizon limits read from the
// mount. Zero or inverted values fall back to the defaults.
func LimitsFromMount(low, high float64) Limits {
	limits := DefaultLimits()
	if high > 0 && high >= low {
		limits.MinAltitude = low
		limits.MaxAltitude = high
	}
	return limits
}

// Check classifies p against the limits.
func (l Limits) Check(p Point) (LimitEvent, string) {
	if p.Altitude < l.MinAltitude {
		return BelowLimit, fmt.Sprintf("altitude %.1f below mount limit %.1f", p.Altitude, l.MinAltitude)
	}
	if p.Altitude > l.MaxAltitude {
		return AboveLimit, fmt.Sprintf("altitude %.1f above mount limit %.1f", p.Altitude, l.MaxAltitude)
	}
	return WithinLimits, "OK"
}

// Filter removes the points outside the limits. The returned slice shares
// the backing array of points.
func (l Limits) Filter(points []Point) []Point {
	out := points[:0]
	for _, p := range points {
		if event, _ := l.Check(p); event == WithinLimits {
			out = append(out, p)
		}
	}
	return out
}

// SlewTime estimates how long the mount takes from one point to the next.
//
// Parameters:
//   - from, to: consecutive targets
//   - slewRate: mount slew rate in degrees per second
//
// Returns: estimated seconds, 0 when the rate is unknown
func SlewTime(from, to Point, slewRate float64) float64 {
	if slewRate <= 0 {
		return 0
	}
	// both axes move at once, so the longer one dominates
	return Separation(from, to) / slewRate
}
