package coordinates

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Mode selects the frame conversion performed by Transform.Convert.
type Mode int

const (
	// J2000ToHorizontal converts catalogue coordinates to observed az/alt.
	J2000ToHorizontal Mode = iota

	// JNowToJ2000 removes aberration, nutation and precession.
	JNowToJ2000

	// J2000ToJNow applies precession, nutation and annual aberration.
	J2000ToJNow

	// JNowToHorizontal converts apparent topocentric coordinates to az/alt.
	JNowToHorizontal
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case J2000ToHorizontal:
		return "J2000->Horizontal"
	case JNowToJ2000:
		return "JNow->J2000"
	case J2000ToJNow:
		return "J2000->JNow"
	case JNowToHorizontal:
		return "JNow->Horizontal"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// diurnalAberration is the equatorial rotation speed of the Earth's surface
// over c, in radians (about 0.32 arc seconds).
const diurnalAberration = 7.292115e-5 * 6378137.0 / 299792458.0

// Default weather used until the mount or a sensor reports real values.
const (
	DefaultTemperature = 10.0
	DefaultPressure    = 1010.0
)

// Transform converts between J2000, JNow and horizontal coordinates for one
// observing site. Site and weather are shared state: conversions take the read
// lock, setters take the write lock.
type Transform struct {
	mu          sync.RWMutex
	site        Geographic
	temperature float64
	pressure    float64
	refraction  bool

	// now supplies the time when a conversion is called with jd <= 0
	now func() time.Time
}

// NewTransform creates a transform for the given site with standard weather
// and refraction enabled.
func NewTransform(site Geographic) *Transform {
	return &Transform{
		site:        site,
		temperature: DefaultTemperature,
		pressure:    DefaultPressure,
		refraction:  true,
		now:         time.Now,
	}
}

// SetSite replaces the observing site.
func (t *Transform) SetSite(site Geographic) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.site = site
}

// Site returns the observing site.
func (t *Transform) Site() Geographic {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.site
}

// SetWeather sets the temperature (°C) and pressure (hPa) used for refraction.
func (t *Transform) SetWeather(temperatureC, pressureHPa float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.temperature = temperatureC
	t.pressure = pressureHPa
}

// Weather returns the temperature (°C) and pressure (hPa) in use.
func (t *Transform) Weather() (float64, float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.temperature, t.pressure
}

// SetRefraction enables or disables refraction on horizontal output.
func (t *Transform) SetRefraction(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refraction = enabled
}

// Convert applies mode to (ra hours, dec degrees) at the UTC Julian Date jd.
// Equatorial modes return (ra hours, dec degrees); horizontal modes return
// (azimuth, altitude) in degrees. A jd <= 0 means "now".
func (t *Transform) Convert(ra, dec float64, mode Mode, jd float64) (float64, float64) {
	in := EquatorialCoordinates{RightAscension: NormalizeRA(ra), Declination: dec}

	switch mode {
	case J2000ToJNow:
		out := t.J2000ToJNow(in, jd)
		return out.RightAscension, out.Declination
	case JNowToJ2000:
		out := t.JNowToJ2000(in, jd)
		return out.RightAscension, out.Declination
	case J2000ToHorizontal:
		out := t.J2000ToHorizontal(in, jd)
		return out.Azimuth, out.Altitude
	case JNowToHorizontal:
		out := t.JNowToHorizontal(in, jd)
		return out.Azimuth, out.Altitude
	default:
		return in.RightAscension, in.Declination
	}
}

// J2000ToJNow returns the apparent place of date (equinox based).
func (t *Transform) J2000ToJNow(eq EquatorialCoordinates, jd float64) EquatorialCoordinates {
	tc := terrestrialCenturies(t.julianDate(jd))

	// the velocity is barycentric J2000, so aberrate before rotating to date
	raRad, decRad := eq.ToRadians()
	p := applyAberration(toVector(raRad, decRad), earthVelocity(tc))
	p = biasPrecessionNutation(tc).Mul3x1(p)

	return ToEquatorialDegrees(fromVector(p))
}

// JNowToJ2000 is the exact inverse of J2000ToJNow.
func (t *Transform) JNowToJ2000(eq EquatorialCoordinates, jd float64) EquatorialCoordinates {
	tc := terrestrialCenturies(t.julianDate(jd))

	raRad, decRad := eq.ToRadians()
	p := biasPrecessionNutation(tc).Transpose().Mul3x1(toVector(raRad, decRad))
	p = removeAberration(p, earthVelocity(tc))

	return ToEquatorialDegrees(fromVector(p))
}

// J2000ToHorizontal returns the observed az/alt of a catalogue position.
func (t *Transform) J2000ToHorizontal(eq EquatorialCoordinates, jd float64) HorizontalCoordinates {
	jd = t.julianDate(jd)
	return t.JNowToHorizontal(t.J2000ToJNow(eq, jd), jd)
}

// JNowToHorizontal returns the observed az/alt of an apparent position,
// including diurnal aberration and, when enabled, refraction.
func (t *Transform) JNowToHorizontal(eq EquatorialCoordinates, jd float64) HorizontalCoordinates {
	jd = t.julianDate(jd)

	t.mu.RLock()
	site := t.site
	temp, press, refract := t.temperature, t.pressure, t.refraction
	t.mu.RUnlock()

	lst := LocalSiderealTime(site.Longitude, jd)
	ha, dec := diurnal(lst-eq.RightAscension, eq.Declination, site.Latitude)
	az, alt := HADecToAzAlt(ha, dec, site.Latitude)
	if refract {
		alt = refractTrueToApparent(alt, temp, press)
	}
	return HorizontalCoordinates{Altitude: alt, Azimuth: az}
}

// HorizontalToJNow converts an observed az/alt back to the apparent place.
func (t *Transform) HorizontalToJNow(h HorizontalCoordinates, jd float64) EquatorialCoordinates {
	jd = t.julianDate(jd)

	t.mu.RLock()
	site := t.site
	temp, press, refract := t.temperature, t.pressure, t.refraction
	t.mu.RUnlock()

	alt := h.Altitude
	if refract {
		alt = refractApparentToTrue(alt, temp, press)
	}
	eq := HorizontalToEquatorial(HorizontalCoordinates{Altitude: alt, Azimuth: h.Azimuth}, site,
		LocalSiderealTime(site.Longitude, jd))
	return eq
}

func (t *Transform) julianDate(jd float64) float64 {
	if jd > 0 {
		return jd
	}
	return JulianDate(t.now())
}

// diurnal shifts an hour angle/declination (hours, degrees) toward the east
// point by the observer's rotational velocity.
func diurnal(haHours, decDeg, latDeg float64) (float64, float64) {
	h := deg2rad(haHours * HoursToDegrees)
	d := deg2rad(decDeg)

	// y axis points east (H = -6h)
	p := mgl64.Vec3{math.Cos(d) * math.Cos(h), -math.Cos(d) * math.Sin(h), math.Sin(d)}
	v := mgl64.Vec3{0, diurnalAberration * math.Cos(deg2rad(latDeg)), 0}
	p = applyAberration(p, v)

	hr, dr := fromVector(mgl64.Vec3{p[0], -p[1], p[2]})
	return rad2deg(hr) / HoursToDegrees, rad2deg(dr)
}

// HADecToAzAlt converts a local hour angle (hours) and declination (degrees)
// to azimuth (north through east) and altitude in degrees.
func HADecToAzAlt(haHours, decDeg, latDeg float64) (az, alt float64) {
	h := deg2rad(haHours * HoursToDegrees)
	d := deg2rad(decDeg)
	lat := deg2rad(latDeg)

	// alt = asin(sin(dec)·sin(lat) + cos(dec)·cos(lat)·cos(HA))
	altRad := math.Asin(clamp(math.Sin(d)*math.Sin(lat) + math.Cos(d)*math.Cos(lat)*math.Cos(h)))

	// az = atan2(-cos(dec)·sin(HA), sin(dec)·cos(lat) - cos(dec)·cos(HA)·sin(lat))
	azRad := math.Atan2(
		-math.Cos(d)*math.Sin(h),
		math.Sin(d)*math.Cos(lat)-math.Cos(d)*math.Cos(h)*math.Sin(lat),
	)

	return NormalizeAzimuth(rad2deg(azRad)), rad2deg(altRad)
}

// RaDecLstToAzAlt converts RA (hours) and Dec (degrees) to az/alt for a site
// latitude and local sidereal time given in degrees. No aberration or
// refraction is applied.
func RaDecLstToAzAlt(raHours, decDeg, siteLatDeg, lstDeg float64) (az, alt float64) {
	return HADecToAzAlt(lstDeg/HoursToDegrees-raHours, decDeg, siteLatDeg)
}

// EquatorialToHorizontal converts equatorial coordinates (RA/Dec) to
// horizontal coordinates (alt/az) for a site and local sidereal time (hours).
func EquatorialToHorizontal(equatorial EquatorialCoordinates, site Geographic, lst float64) HorizontalCoordinates {
	az, alt := HADecToAzAlt(lst-equatorial.RightAscension, equatorial.Declination, site.Latitude)
	return HorizontalCoordinates{Altitude: alt, Azimuth: az}
}

// HorizontalToEquatorial converts horizontal coordinates (alt/az) to
// equatorial coordinates (RA/Dec) for a site and local sidereal time (hours).
//
// This is the inverse of EquatorialToHorizontal.
func HorizontalToEquatorial(horizontal HorizontalCoordinates, site Geographic, lst float64) EquatorialCoordinates {
	altRad, azRad := horizontal.ToRadians()
	latRad, _, _ := site.ToRadians()

	// dec = asin(sin(lat)·sin(alt) + cos(lat)·cos(alt)·cos(az))
	decRad := math.Asin(clamp(
		math.Sin(latRad)*math.Sin(altRad) +
			math.Cos(latRad)*math.Cos(altRad)*math.Cos(azRad),
	))

	// HA = atan2(-sin(az)·cos(alt), sin(alt)·cos(lat) - cos(alt)·cos(az)·sin(lat))
	haRad := math.Atan2(
		-math.Sin(azRad)*math.Cos(altRad),
		math.Sin(altRad)*math.Cos(latRad)-math.Cos(altRad)*math.Cos(azRad)*math.Sin(latRad),
	)

	// RA = LST - HA
	return EquatorialCoordinates{
		RightAscension: NormalizeRA(lst - rad2deg(haRad)/HoursToDegrees),
		Declination:    rad2deg(decRad),
	}
}

func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
