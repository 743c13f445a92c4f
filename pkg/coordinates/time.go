package coordinates

import (
	"math"
	"time"
)

const (
	// J2000 is the Julian Date of the J2000.0 epoch (Jan 1, 2000, 12:00 TT)
	J2000 = 2451545.0

	// DaysPerCentury is the length of a Julian century in days
	DaysPerCentury = 36525.0

	// DeltaT approximates TT - UT1 in seconds (TAI-UTC 37s + 32.184s).
	DeltaT = 69.184
)

// JulianDate converts a Go time.Time to Julian Date (UTC based).
// The Julian Date is the number of days since noon on January 1, 4713 BC.
func JulianDate(t time.Time) float64 {
	u := t.UTC()
	year := u.Year()
	month := int(u.Month())

	decimalDay := float64(u.Day()) +
		float64(u.Hour())/24.0 +
		float64(u.Minute())/(24.0*60.0) +
		(float64(u.Second())+float64(u.Nanosecond())/1e9)/(24.0*60.0*60.0)

	// Adjust for January/February
	if month <= 2 {
		year--
		month += 12
	}

	// Gregorian calendar correction
	a := year / 100
	b := 2 - a + a/4

	return math.Floor(365.25*float64(year+4716)) +
		math.Floor(30.6001*float64(month+1)) +
		decimalDay + float64(b) - 1524.5
}

// TimeFromJulianDate converts a UTC Julian Date back to time.Time.
func TimeFromJulianDate(jd float64) time.Time {
	const unixEpochJD = 2440587.5
	nanos := (jd - unixEpochJD) * 86400.0 * 1e9
	return time.Unix(0, int64(math.Round(nanos))).UTC()
}

// terrestrialCenturies returns TT Julian centuries since J2000 for a UTC Julian Date.
func terrestrialCenturies(jdUTC float64) float64 {
	return (jdUTC + DeltaT/86400.0 - J2000) / DaysPerCentury
}

// EarthRotationAngle returns the IAU 2000 Earth rotation angle in radians.
// UT1 is approximated by UTC.
func EarthRotationAngle(jdUTC float64) float64 {
	d := jdUTC - J2000
	f := math.Mod(d, 1.0)
	era := 2 * math.Pi * (f + 0.7790572732640 + 0.00273781191135448*d)
	era = math.Mod(era, 2*math.Pi)
	if era < 0 {
		era += 2 * math.Pi
	}
	return era
}

// GreenwichMeanSiderealTime returns the IAU 2006 GMST in radians.
func GreenwichMeanSiderealTime(jdUTC float64) float64 {
	t := terrestrialCenturies(jdUTC)
	gmst := EarthRotationAngle(jdUTC) +
		(0.014506+
			(4612.156534+
				(1.3915817+
					(-0.00000044+
						(-0.000029956+
							(-0.0000000368)*t)*t)*t)*t)*t)*ArcsecToRadians
	return normalizeRadians(gmst)
}

// GreenwichApparentSiderealTime returns GAST in radians: GMST plus the
// equation of the equinoxes.
func GreenwichApparentSiderealTime(jdUTC float64) float64 {
	t := terrestrialCenturies(jdUTC)
	dpsi, _ := nutation(t)
	eps := meanObliquity(t)
	return normalizeRadians(GreenwichMeanSiderealTime(jdUTC) + dpsi*math.Cos(eps))
}

// LocalSiderealTime returns the local apparent sidereal time in decimal hours
// (0-24) for a longitude in degrees (east positive).
func LocalSiderealTime(longitudeDeg, jdUTC float64) float64 {
	gast := GreenwichApparentSiderealTime(jdUTC) * RadiansToDegrees / HoursToDegrees
	return NormalizeRA(gast + longitudeDeg/HoursToDegrees)
}

// CalculateLocalSiderealTime calculates the Local Sidereal Time (LST) for
// a given longitude and UTC time.
//
// Returns: LST in decimal hours (0-24)
func CalculateLocalSiderealTime(longitudeDeg float64, utcTime time.Time) float64 {
	return LocalSiderealTime(longitudeDeg, JulianDate(utcTime))
}

func normalizeRadians(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}
