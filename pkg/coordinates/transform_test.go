package coordinates

import (
	"math"
	"sync"
	"testing"
	"time"
)

const mas = 1.0 / 3600000.0 // one milliarcsecond in degrees

// testSite is a mid-northern site used across tests.
var testSite = Geographic{Latitude: 49.0, Longitude: 11.5, Altitude: 500}

func TestParseSexagesimal(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		sep     string
		want    float64
		wantErr bool
	}{
		{"hours", "12:30:00.0", ":", 12.5, false},
		{"negative dec with star", "-45*30:00", ":", -45.5, false},
		{"positive with terminator", "+10:15:36.0#", ":", 10.26, false},
		{"space separator", "01 00 36", " ", 1.01, false},
		{"two fields", "12:30", ":", 0, true},
		{"garbage", "ab:cd:ef", ":", 0, true},
		{"empty", "", ":", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSexagesimal(tt.text, tt.sep)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSexagesimal(%q) expected error, got %f", tt.text, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSexagesimal(%q) unexpected error: %v", tt.text, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ParseSexagesimal(%q) = %f, want %f", tt.text, got, tt.want)
			}
		})
	}
}

func TestSexagesimalRoundTrip(t *testing.T) {
	values := []float64{0, 0.5, 12.3456789, 23.99999, -0.0001, -45.123456, 89.99, -89.5}

	for _, v := range values {
		for _, tenths := range []bool{false, true} {
			text := FormatSexagesimal(v, true, tenths, ":")
			got, err := ParseSexagesimal(text, ":")
			if err != nil {
				t.Fatalf("round trip of %f via %q: %v", v, text, err)
			}

			// Half of the smallest displayed unit
			tol := 0.5/3600.0 + 1e-12
			if tenths {
				tol = 0.05/3600.0 + 1e-12
			}
			if math.Abs(got-v) > tol {
				t.Errorf("round trip of %f via %q = %f (diff %g)", v, text, got, got-v)
			}
		}
	}
}

func TestFormatSexagesimal(t *testing.T) {
	tests := []struct {
		value    float64
		withSign bool
		tenths   bool
		want     string
	}{
		{12.5, false, false, "12:30:00"},
		{12.5, true, true, "+12:30:00.0"},
		{-5.25, false, true, "-05:15:00.0"},
		{1.0 - 0.01/3600.0, false, true, "01:00:00.0"},
		{59.0/60.0 + 59.96/3600.0, false, false, "01:00:00"},
	}

	for _, tt := range tests {
		got := FormatSexagesimal(tt.value, tt.withSign, tt.tenths, ":")
		if got != tt.want {
			t.Errorf("FormatSexagesimal(%f) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestJulianDate(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
		want float64
	}{
		{"J2000 epoch", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), 2451545.0},
		{"Unix epoch", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 2440587.5},
		{"Leap day", time.Date(2024, 2, 29, 18, 0, 0, 0, time.UTC), 2460370.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(tt.time)
			if math.Abs(got-tt.want) > 1e-8 {
				t.Errorf("JulianDate() = %f, want %f", got, tt.want)
			}

			back := TimeFromJulianDate(got)
			if d := back.Sub(tt.time); d > time.Millisecond || d < -time.Millisecond {
				t.Errorf("TimeFromJulianDate() = %v, want %v", back, tt.time)
			}
		})
	}
}

func TestSiderealTime(t *testing.T) {
	// GMST at the J2000 epoch is 18h41m50.55s (280.4606°)
	gmst := GreenwichMeanSiderealTime(J2000) * RadiansToDegrees
	if math.Abs(gmst-280.46062) > 0.001 {
		t.Errorf("GMST(J2000) = %f°, want 280.4606°", gmst)
	}

	// Equation of the equinoxes never exceeds about 1.2 seconds of time
	gast := GreenwichApparentSiderealTime(J2000) * RadiansToDegrees
	if math.Abs(gast-gmst) > 1.2*15.0/3600.0 {
		t.Errorf("GAST-GMST = %f°, too large", gast-gmst)
	}

	// LST advances by one sidereal day per 0.99727 solar days
	lst1 := LocalSiderealTime(testSite.Longitude, J2000)
	lst2 := LocalSiderealTime(testSite.Longitude, J2000+0.9972695663)
	if math.Abs(NormalizeHourAngle(lst2-lst1)) > 1e-4 {
		t.Errorf("LST drift over one sidereal day = %f h", lst2-lst1)
	}

	if lst := LocalSiderealTime(0, J2000); lst < 0 || lst >= 24 {
		t.Errorf("LST out of range: %f", lst)
	}
}

func TestJ2000JNowRoundTrip(t *testing.T) {
	tr := NewTransform(testSite)
	jd := JulianDate(time.Date(2025, 3, 20, 22, 15, 0, 0, time.UTC))

	for dec := -89.0; dec <= 89.0; dec += 7.0 {
		for ra := 0.0; ra < 24.0; ra += 0.75 {
			now := tr.J2000ToJNow(EquatorialCoordinates{RightAscension: ra, Declination: dec}, jd)
			back := tr.JNowToJ2000(now, jd)

			dRA := NormalizeHourAngle(back.RightAscension-ra) * HoursToDegrees * math.Cos(dec*DegreesToRadians)
			dDec := back.Declination - dec
			if math.Abs(dRA) > mas || math.Abs(dDec) > mas {
				t.Fatalf("round trip (%f, %f) -> (%f, %f): dRA=%g° dDec=%g°",
					ra, dec, back.RightAscension, back.Declination, dRA, dDec)
			}
		}
	}
}

func TestJ2000ToJNowPrecession(t *testing.T) {
	tr := NewTransform(testSite)
	jd := JulianDate(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))

	// Equatorial point at RA 0: precession adds about 3.07 s of RA per year
	now := tr.J2000ToJNow(EquatorialCoordinates{RightAscension: 0, Declination: 0}, jd)
	dRA := NormalizeHourAngle(now.RightAscension)
	if dRA < 0.020 || dRA > 0.0235 {
		t.Errorf("RA shift after 25.5 years = %f h, want about 0.0218 h", dRA)
	}

	// At the epoch itself only bias, nutation and aberration remain
	at := tr.J2000ToJNow(EquatorialCoordinates{RightAscension: 6, Declination: 20}, J2000)
	sep := AngularSeparation(at, EquatorialCoordinates{RightAscension: 6, Declination: 20})
	if sep > 60.0/3600.0 {
		t.Errorf("J2000 -> JNow at epoch moved %f arcsec", sep*3600)
	}
}

// SOFA t_nut00b / t_nut00a, TT 2400000.5 + 53736.0
func TestNutationReference(t *testing.T) {
	tc := (2400000.5 - J2000 + 53736.0) / DaysPerCentury
	dpsi, deps := nutation(tc)

	if math.Abs(dpsi-(-0.9632552291148362783e-5)) > 1e-12 || math.Abs(deps-0.4063197106621159367e-4) > 1e-12 {
		t.Errorf("nutation = (%.19e, %.19e), want 2000B (-0.9632552291148362783e-5, 0.4063197106621159367e-4)", dpsi, deps)
	}

	masRad := ArcsecToRadians / 1000
	if d := dpsi - (-0.9630909107115518431e-5); math.Abs(d) > masRad {
		t.Errorf("dpsi differs from IAU 2000A by %.3f mas", d/masRad)
	}
	if d := deps - 0.4063239174001678710e-4; math.Abs(d) > masRad {
		t.Errorf("deps differs from IAU 2000A by %.3f mas", d/masRad)
	}
}

// SOFA t_pnm06a, TT 2400000.5 + 50123.9999
func TestBiasPrecessionNutationReference(t *testing.T) {
	want := [3][3]float64{
		{0.9999995832794205484, 0.8372382772630962111e-3, 0.3639684771140623099e-3},
		{-0.8372533744743683605e-3, 0.9999996486492861646, 0.4132905944611019498e-4},
		{-0.3639337469629464969e-3, -0.4163377605910663999e-4, 0.9999999329094260057},
	}
	m := biasPrecessionNutation((2400000.5 - J2000 + 50123.9999) / DaysPerCentury)

	masRad := ArcsecToRadians / 1000
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if d := m.At(i, j) - want[i][j]; math.Abs(d) > masRad {
				t.Errorf("NPB[%d][%d] = %.19f, want %.19f (%.3f mas)", i, j, m.At(i, j), want[i][j], d/masRad)
			}
		}
	}
}

// SOFA t_epv00 barycentric velocity, TDB 2400000.5 + 53411.52501161
func TestEarthVelocityReference(t *testing.T) {
	want := [3]float64{-0.1091874268116823295e-1, -0.1246525461732861538e-1, -0.5404773180966231279e-2}
	v := earthVelocity((2400000.5 - J2000 + 53411.52501161) / DaysPerCentury).Mul(lightAUPerDay * 1e-8)

	// 2e-7 AU/day is 0.25 mas of aberration
	for i := range want {
		if math.Abs(v[i]-want[i]) > 2e-7 {
			t.Errorf("velocity[%d] = %.10f AU/d, want %.10f", i, v[i], want[i])
		}
	}
}

func TestAberrationInverse(t *testing.T) {
	v := earthVelocity(0.25)
	p := toVector(1.2, -0.4)
	back := removeAberration(applyAberration(p, v), v)
	if d := back.Sub(p).Len(); d > 1e-15 {
		t.Errorf("aberration round trip off by %g rad", d)
	}
}

// Apparent places from the SOFA bias-precession-nutation matrix and
// relativistic annual aberration at TT 2400000.5 + 50123.9999.
func TestJ2000ToJNowReference(t *testing.T) {
	tr := NewTransform(testSite)
	jd := 2400000.5 + 50123.9999 - DeltaT/86400.0

	tests := []struct {
		name     string
		in, want EquatorialCoordinates
	}{
		{"Sirius", EquatorialCoordinates{RightAscension: 6.7525, Declination: -16.7161},
			EquatorialCoordinates{RightAscension: 6.750024823515, Declination: -16.717017753981}},
		{"Vega", EquatorialCoordinates{RightAscension: 18.6156, Declination: 38.7837},
			EquatorialCoordinates{RightAscension: 18.613161722688, Declination: 38.779140769715}},
		{"near pole", EquatorialCoordinates{RightAscension: 2.5, Declination: 88.25},
			EquatorialCoordinates{RightAscension: 2.471127378142, Declination: 88.237293990170}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.J2000ToJNow(tt.in, jd)
			if sep := AngularSeparation(got, tt.want); sep > mas {
				t.Errorf("J2000ToJNow = (%.9f, %.9f), want (%.9f, %.9f): off by %.3f mas",
					got.RightAscension, got.Declination, tt.want.RightAscension, tt.want.Declination, sep/mas)
			}
		})
	}
}

func TestConvertModes(t *testing.T) {
	tr := NewTransform(testSite)
	jd := JulianDate(time.Date(2024, 10, 1, 21, 0, 0, 0, time.UTC))

	ra, dec := tr.Convert(26.5, 30, J2000ToJNow, jd)
	want := tr.J2000ToJNow(EquatorialCoordinates{RightAscension: 2.5, Declination: 30}, jd)
	if ra != want.RightAscension || dec != want.Declination {
		t.Errorf("Convert(J2000ToJNow) = (%f, %f), want (%f, %f)", ra, dec, want.RightAscension, want.Declination)
	}

	az1, alt1 := tr.Convert(2.5, 30, J2000ToHorizontal, jd)
	az2, alt2 := tr.Convert(want.RightAscension, want.Declination, JNowToHorizontal, jd)
	if math.Abs(az1-az2) > 1e-9 || math.Abs(alt1-alt2) > 1e-9 {
		t.Errorf("J2000ToHorizontal (%f, %f) != JNowToHorizontal (%f, %f)", az1, alt1, az2, alt2)
	}
}

func TestHorizontalRoundTrip(t *testing.T) {
	tr := NewTransform(testSite)
	jd := JulianDate(time.Date(2024, 10, 1, 21, 0, 0, 0, time.UTC))

	in := EquatorialCoordinates{RightAscension: 20.7, Declination: 45.3}
	h := tr.JNowToHorizontal(in, jd)
	if h.Altitude < 10 {
		t.Fatalf("test star too low: %f", h.Altitude)
	}
	back := tr.HorizontalToJNow(h, jd)

	// Diurnal aberration is not removed on the way back (< 0.33")
	if sep := AngularSeparation(in, back) * 3600; sep > 0.4 {
		t.Errorf("horizontal round trip error = %f arcsec", sep)
	}
}

func TestRefractionToggle(t *testing.T) {
	tr := NewTransform(testSite)
	jd := JulianDate(time.Date(2024, 10, 1, 21, 0, 0, 0, time.UTC))
	star := EquatorialCoordinates{RightAscension: 20.7, Declination: 45.3}

	with := tr.JNowToHorizontal(star, jd)
	tr.SetRefraction(false)
	without := tr.JNowToHorizontal(star, jd)

	if with.Altitude <= without.Altitude {
		t.Errorf("refraction should raise altitude: %f <= %f", with.Altitude, without.Altitude)
	}
	if with.Azimuth != without.Azimuth {
		t.Errorf("refraction changed azimuth: %f != %f", with.Azimuth, without.Azimuth)
	}

	// Cold, high pressure air refracts more
	tr.SetRefraction(true)
	tr.SetWeather(-20, 1050)
	cold := tr.JNowToHorizontal(star, jd)
	if cold.Altitude <= with.Altitude {
		t.Errorf("cold air refraction %f should exceed %f", cold.Altitude, with.Altitude)
	}
	if temp, press := tr.Weather(); temp != -20 || press != 1050 {
		t.Errorf("Weather() = (%f, %f)", temp, press)
	}
}

func TestRefraction(t *testing.T) {
	tests := []struct {
		alt    float64
		minDeg float64
		maxDeg float64
	}{
		{0, 0.45, 0.6},
		{45, 0.015, 0.018},
		{90, 0, 0.0001},
	}

	for _, tt := range tests {
		r := Refraction(tt.alt, 10, 1010)
		if r < tt.minDeg || r > tt.maxDeg {
			t.Errorf("Refraction(%f) = %f°, want [%f, %f]", tt.alt, r, tt.minDeg, tt.maxDeg)
		}
	}

	for alt := 5.0; alt < 90; alt += 5 {
		back := refractApparentToTrue(refractTrueToApparent(alt, 10, 1010), 10, 1010)
		if math.Abs(back-alt) > 1e-6 {
			t.Errorf("refraction inverse at %f = %f", alt, back)
		}
	}
}

func TestHADecToAzAlt(t *testing.T) {
	tests := []struct {
		name    string
		ha, dec float64
		wantAz  float64
		wantAlt float64
	}{
		{"Meridian equator", 0, 0, 180, 41},
		{"Pole", 3, 90, 0, 49},
		{"East horizon", -6, 0, 90, 0},
		{"West horizon", 6, 0, 270, 0},
		{"Zenith", 0, 49, -1, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			az, alt := HADecToAzAlt(tt.ha, tt.dec, testSite.Latitude)
			if math.Abs(alt-tt.wantAlt) > 1e-6 {
				t.Errorf("altitude = %f, want %f", alt, tt.wantAlt)
			}
			if tt.wantAz >= 0 && math.Abs(az-tt.wantAz) > 1e-6 && math.Abs(az-tt.wantAz-360) > 1e-6 {
				t.Errorf("azimuth = %f, want %f", az, tt.wantAz)
			}
		})
	}
}

func TestRaDecLstToAzAlt(t *testing.T) {
	// Object at RA = LST is on the meridian
	az, alt := RaDecLstToAzAlt(5, 10, testSite.Latitude, 75)
	if math.Abs(az-180) > 1e-6 || math.Abs(alt-51) > 1e-6 {
		t.Errorf("RaDecLstToAzAlt = (%f, %f), want (180, 51)", az, alt)
	}
}

func TestEquatorialHorizontalInverse(t *testing.T) {
	for _, lst := range []float64{0, 6.5, 13.25, 23.9} {
		for _, eq := range []EquatorialCoordinates{
			{RightAscension: 1, Declination: 10},
			{RightAscension: 12, Declination: 60},
			{RightAscension: 18.5, Declination: -20},
		} {
			h := EquatorialToHorizontal(eq, testSite, lst)
			back := HorizontalToEquatorial(h, testSite, lst)
			if sep := AngularSeparation(eq, back); sep > 1e-8 {
				t.Errorf("inverse at LST %f for %+v: separation %g°", lst, eq, sep)
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := NormalizeRA(-1); got != 23 {
		t.Errorf("NormalizeRA(-1) = %f", got)
	}
	if got := NormalizeAzimuth(370); got != 10 {
		t.Errorf("NormalizeAzimuth(370) = %f", got)
	}
	if got := NormalizeHourAngle(13); got != -11 {
		t.Errorf("NormalizeHourAngle(13) = %f", got)
	}
	if got := NormalizeHourAngle(-12); got != -12 {
		t.Errorf("NormalizeHourAngle(-12) = %f", got)
	}
}

func TestTransformConcurrentAccess(t *testing.T) {
	tr := NewTransform(testSite)
	jd := JulianDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tr.Convert(float64(i), float64(j), J2000ToHorizontal, jd)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			tr.SetWeather(float64(i), 1000+float64(i))
			tr.SetSite(Geographic{Latitude: float64(i), Longitude: float64(i)})
		}(i)
	}
	wg.Wait()
}
