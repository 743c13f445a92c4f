package points

import (
	"math"
	"sort"

	"github.com/unklstewy/mount-modeler/pkg/coordinates"
)

// Sample is one (azimuth, altitude) horizon point in degrees.
type Sample struct {
	Azimuth  float64 `json:"az" yaml:"az"`
	Altitude float64 `json:"alt" yaml:"alt"`
}

// Mask maps every integer azimuth to the lowest usable altitude.
type Mask struct {
	limits [360]float64
}

// NewMask builds a mask by linear interpolation between samples. Samples
// are sorted by azimuth and extended to 0° and 360° with the nearest
// altitude. No mask value is lower than floor.
func NewMask(samples []Sample, floor float64) *Mask {
	m := &Mask{}
	for i := range m.limits {
		m.limits[i] = floor
	}
	if len(samples) == 0 {
		return m
	}

	s := make([]Sample, 0, len(samples)+2)
	for _, p := range samples {
		s = append(s, Sample{Azimuth: coordinates.NormalizeAzimuth(p.Azimuth), Altitude: p.Altitude})
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].Azimuth < s[j].Azimuth })
	if s[0].Azimuth > 0 {
		s = append([]Sample{{Azimuth: 0, Altitude: s[0].Altitude}}, s...)
	}
	if last := s[len(s)-1]; last.Azimuth < 360 {
		s = append(s, Sample{Azimuth: 360, Altitude: last.Altitude})
	}

	for i := 0; i+1 < len(s); i++ {
		a, b := s[i], s[i+1]
		if b.Azimuth <= a.Azimuth {
			continue
		}
		for az := int(math.Ceil(a.Azimuth)); az < 360 && float64(az) <= b.Azimuth; az++ {
			frac := (float64(az) - a.Azimuth) / (b.Azimuth - a.Azimuth)
			alt := a.Altitude + frac*(b.Altitude-a.Altitude)
			m.limits[az] = math.Max(alt, floor)
		}
	}
	return m
}

// Limit returns the mask altitude at az.
func (m *Mask) Limit(az float64) float64 {
	i := int(math.Floor(coordinates.NormalizeAzimuth(az)))
	if i >= 360 {
		i = 359
	}
	return m.limits[i]
}

// IsAbove reports whether p lies strictly above the mask.
func (m *Mask) IsAbove(p Point) bool {
	return p.Altitude > m.Limit(p.Azimuth)
}

// DeleteBelowHorizon removes the points not above the mask. The returned
// slice shares the backing array of points.
func (m *Mask) DeleteBelowHorizon(points []Point) []Point {
	out := points[:0]
	for _, p := range points {
		if m.IsAbove(p) {
			out = append(out, p)
		}
	}
	return out
}

// Samples returns the mask at every integer azimuth, for display or export.
func (m *Mask) Samples() []Sample {
	out := make([]Sample, len(m.limits))
	for i, alt := range m.limits {
		out[i] = Sample{Azimuth: float64(i), Altitude: alt}
	}
	return out
}
