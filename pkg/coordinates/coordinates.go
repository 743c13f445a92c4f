package coordinates

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// ArcsecToRadians converts arc seconds to radians
	ArcsecToRadians = DegreesToRadians / 3600.0

	// HoursToDegrees converts hours of right ascension to degrees
	HoursToDegrees = 15.0
)

// Geographic represents the observing site on Earth's surface.
// Uses the WGS84 coordinate system (same as GPS).
type Geographic struct {
	// Latitude in decimal degrees (-90 to +90)
	// Positive = North, Negative = South
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	// Positive = East, Negative = West
	Longitude float64

	// Altitude in meters above mean sea level (MSL)
	Altitude float64
}

// HorizontalCoordinates represents a position in the local horizontal coordinate system.
// Also known as Alt/Az (Altitude-Azimuth) coordinates.
type HorizontalCoordinates struct {
	// Altitude (elevation) in degrees above the horizon (0-90)
	// 0 = horizon, 90 = zenith (straight up)
	// Negative values are below the horizon
	Altitude float64

	// Azimuth in degrees from north (0-360)
	// 0/360 = North, 90 = East, 180 = South, 270 = West
	Azimuth float64
}

// EquatorialCoordinates represents a position in the equatorial coordinate system.
type EquatorialCoordinates struct {
	// RightAscension (RA) in decimal hours (0-24)
	// The celestial equivalent of longitude
	// Increases eastward along the celestial equator
	RightAscension float64

	// Declination (Dec) in decimal degrees (-90 to +90)
	// The celestial equivalent of latitude
	// 0 = celestial equator, +90 = north celestial pole, -90 = south celestial pole
	Declination float64
}

// ToRadians converts the Geographic coordinates to radians.
// Returns (latRad, lonRad, altMeters).
func (g Geographic) ToRadians() (float64, float64, float64) {
	return g.Latitude * DegreesToRadians,
		g.Longitude * DegreesToRadians,
		g.Altitude
}

// ToRadians converts HorizontalCoordinates to radians.
// Returns (altRad, azRad).
func (h HorizontalCoordinates) ToRadians() (float64, float64) {
	return h.Altitude * DegreesToRadians,
		h.Azimuth * DegreesToRadians
}

// ToHorizontalDegrees converts radians to HorizontalCoordinates in degrees.
func ToHorizontalDegrees(altRad, azRad float64) HorizontalCoordinates {
	return HorizontalCoordinates{
		Altitude: altRad * RadiansToDegrees,
		Azimuth:  azRad * RadiansToDegrees,
	}
}

// ToRadians converts EquatorialCoordinates to radians.
// Returns (raRad, decRad).
// Note: RA is converted from hours to radians (1 hour = 15 degrees = π/12 radians)
func (e EquatorialCoordinates) ToRadians() (float64, float64) {
	raRad := e.RightAscension * HoursToDegrees * DegreesToRadians
	decRad := e.Declination * DegreesToRadians
	return raRad, decRad
}

// ToEquatorialDegrees converts radians to EquatorialCoordinates.
// Returns RA in hours and Dec in degrees.
func ToEquatorialDegrees(raRad, decRad float64) EquatorialCoordinates {
	raHours := (raRad * RadiansToDegrees) / HoursToDegrees
	decDegrees := decRad * RadiansToDegrees
	return EquatorialCoordinates{
		RightAscension: raHours,
		Declination:    decDegrees,
	}
}

// NormalizeAzimuth ensures azimuth is in the range [0, 360).
func NormalizeAzimuth(azimuth float64) float64 {
	az := math.Mod(azimuth, 360.0)
	if az < 0 {
		az += 360.0
	}
	if az >= 360.0 {
		az = 0
	}
	return az
}

// NormalizeRA ensures right ascension is in the range [0, 24).
func NormalizeRA(ra float64) float64 {
	raHours := math.Mod(ra, 24.0)
	if raHours < 0 {
		raHours += 24.0
	}
	if raHours >= 24.0 {
		raHours = 0
	}
	return raHours
}

// NormalizeHourAngle maps an hour angle in hours to the range [-12, +12).
func NormalizeHourAngle(ha float64) float64 {
	h := NormalizeRA(ha + 12.0)
	return h - 12.0
}

// AngularSeparation returns the great-circle distance in degrees between two
// equatorial positions (RA in hours, Dec in degrees).
func AngularSeparation(a, b EquatorialCoordinates) float64 {
	ra1, dec1 := a.ToRadians()
	ra2, dec2 := b.ToRadians()

	// Haversine form, stable for small separations
	dRA := ra2 - ra1
	dDec := dec2 - dec1
	h := math.Sin(dDec/2)*math.Sin(dDec/2) +
		math.Cos(dec1)*math.Cos(dec2)*math.Sin(dRA/2)*math.Sin(dRA/2)
	return 2 * math.Asin(math.Min(1, math.Sqrt(h))) * RadiansToDegrees
}

// toVector converts RA/Dec in radians to a unit vector.
func toVector(raRad, decRad float64) mgl64.Vec3 {
	cd := math.Cos(decRad)
	return mgl64.Vec3{cd * math.Cos(raRad), cd * math.Sin(raRad), math.Sin(decRad)}
}

// fromVector converts a (not necessarily unit) vector to RA/Dec in radians.
// RA is normalized to [0, 2π).
func fromVector(v mgl64.Vec3) (float64, float64) {
	d2 := v[0]*v[0] + v[1]*v[1]
	ra := 0.0
	if d2 != 0 {
		ra = math.Atan2(v[1], v[0])
	}
	if ra < 0 {
		ra += 2 * math.Pi
	}
	dec := 0.0
	if d2 != 0 || v[2] != 0 {
		dec = math.Atan2(v[2], math.Sqrt(d2))
	}
	return ra, dec
}

func deg2rad(d float64) float64 {
	return d * DegreesToRadians
}

func rad2deg(r float64) float64 {
	return r * RadiansToDegrees
}
