package coordinates

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// lightAUPerDay is the speed of light in units of 1e-8 AU per day, the unit
// of the velocity series below.
const lightAUPerDay = 17314463350.0

// velocityTerm is one periodic term of the Ron-Vondrák barycentric Earth
// velocity. arg holds the multipliers of Venus through Neptune, the Moon's
// mean longitude, D, M' and F. Each axis is (sin, sin·T, cos, cos·T) in
// 1e-8 AU/day.
type velocityTerm struct {
	arg     [11]float64
	x, y, z [4]float64
}

var velocitySeries = []velocityTerm{
	{[11]float64{0, 1}, [4]float64{-1719914, -2, -25, 0}, [4]float64{25, -13, 1578089, 156}, [4]float64{10, 32, 684185, -358}},
	{[11]float64{0, 2}, [4]float64{6434, 141, 28007, -107}, [4]float64{25697, -95, -5904, -130}, [4]float64{11141, -48, -2559, -55}},
	{[11]float64{0, 0, 0, 1}, [4]float64{715, 0, 0, 0}, [4]float64{6, 0, -657, 0}, [4]float64{-15, 0, -282, 0}},
	{[11]float64{0, 0, 0, 0, 0, 0, 0, 1}, [4]float64{715, 0, 0, 0}, [4]float64{0, 0, -656, 0}, [4]float64{0, 0, -285, 0}},
	{[11]float64{0, 3}, [4]float64{486, -5, -236, -4}, [4]float64{-216, -4, -446, 5}, [4]float64{-94, 0, -193, 0}},
	{[11]float64{0, 0, 0, 0, 1}, [4]float64{159, 0, 0, 0}, [4]float64{2, 0, -147, 0}, [4]float64{-6, 0, -61, 0}},
	{[11]float64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}, [4]float64{0, 0, 0, 0}, [4]float64{0, 0, 26, 0}, [4]float64{0, 0, -59, 0}},
	{[11]float64{0, 0, 0, 0, 0, 0, 0, 1, 0, 1}, [4]float64{39, 0, 0, 0}, [4]float64{0, 0, -36, 0}, [4]float64{0, 0, -16, 0}},
	{[11]float64{0, 0, 0, 2}, [4]float64{33, 0, -10, 0}, [4]float64{-9, 0, -30, 0}, [4]float64{-5, 0, -13, 0}},
	{[11]float64{0, 2, 0, -1}, [4]float64{31, 0, 1, 0}, [4]float64{1, 0, -28, 0}, [4]float64{0, 0, -12, 0}},
	{[11]float64{0, 3, -8, 3}, [4]float64{8, 0, -28, 0}, [4]float64{25, 0, 8, 0}, [4]float64{11, 0, 3, 0}},
	{[11]float64{0, 5, -8, 3}, [4]float64{8, 0, -28, 0}, [4]float64{-25, 0, -8, 0}, [4]float64{-11, 0, -3, 0}},
	{[11]float64{2, -1}, [4]float64{21, 0, 0, 0}, [4]float64{0, 0, -19, 0}, [4]float64{0, 0, -8, 0}},
	{[11]float64{1}, [4]float64{-19, 0, 0, 0}, [4]float64{0, 0, 17, 0}, [4]float64{0, 0, 8, 0}},
	{[11]float64{0, 0, 0, 0, 0, 1}, [4]float64{17, 0, 0, 0}, [4]float64{0, 0, -16, 0}, [4]float64{0, 0, -7, 0}},
	{[11]float64{0, 1, 0, -2}, [4]float64{16, 0, 0, 0}, [4]float64{0, 0, 15, 0}, [4]float64{1, 0, 7, 0}},
	{[11]float64{0, 0, 0, 0, 0, 0, 1}, [4]float64{16, 0, 0, 0}, [4]float64{1, 0, -15, 0}, [4]float64{-3, 0, -6, 0}},
	{[11]float64{0, 1, 0, 1}, [4]float64{11, 0, -1, 0}, [4]float64{-1, 0, -10, 0}, [4]float64{-1, 0, -5, 0}},
	{[11]float64{2, -2}, [4]float64{0, 0, -11, 0}, [4]float64{-10, 0, 0, 0}, [4]float64{-4, 0, 0, 0}},
	{[11]float64{0, 1, 0, -1}, [4]float64{-11, 0, -2, 0}, [4]float64{-2, 0, 9, 0}, [4]float64{-1, 0, 4, 0}},
	{[11]float64{0, 4}, [4]float64{-7, 0, -8, 0}, [4]float64{-8, 0, 6, 0}, [4]float64{-3, 0, 3, 0}},
	{[11]float64{0, 3, 0, -2}, [4]float64{-10, 0, 0, 0}, [4]float64{0, 0, 9, 0}, [4]float64{0, 0, 4, 0}},
	{[11]float64{1, -2}, [4]float64{-9, 0, 0, 0}, [4]float64{0, 0, -9, 0}, [4]float64{0, 0, -4, 0}},
	{[11]float64{2, -3}, [4]float64{-9, 0, 0, 0}, [4]float64{0, 0, -8, 0}, [4]float64{0, 0, -4, 0}},
	{[11]float64{0, 0, 0, 0, 2}, [4]float64{0, 0, -9, 0}, [4]float64{-8, 0, 0, 0}, [4]float64{-3, 0, 0, 0}},
	{[11]float64{2, -4}, [4]float64{0, 0, -9, 0}, [4]float64{8, 0, 0, 0}, [4]float64{3, 0, 0, 0}},
	{[11]float64{0, 3, -2}, [4]float64{8, 0, 0, 0}, [4]float64{0, 0, -8, 0}, [4]float64{0, 0, -3, 0}},
	{[11]float64{0, 0, 0, 0, 0, 0, 0, 1, 2, -1}, [4]float64{8, 0, 0, 0}, [4]float64{0, 0, -7, 0}, [4]float64{0, 0, -3, 0}},
	{[11]float64{8, -12}, [4]float64{-4, 0, -7, 0}, [4]float64{-6, 0, 4, 0}, [4]float64{-3, 0, 2, 0}},
	{[11]float64{8, -14}, [4]float64{-4, 0, -7, 0}, [4]float64{6, 0, -4, 0}, [4]float64{3, 0, -2, 0}},
	{[11]float64{0, 0, 2}, [4]float64{-6, 0, -5, 0}, [4]float64{-4, 0, 5, 0}, [4]float64{-2, 0, 2, 0}},
	{[11]float64{3, -4}, [4]float64{-1, 0, -1, 0}, [4]float64{-2, 0, -7, 0}, [4]float64{1, 0, -4, 0}},
	{[11]float64{0, 2, 0, -2}, [4]float64{4, 0, -6, 0}, [4]float64{-5, 0, -4, 0}, [4]float64{-2, 0, -2, 0}},
	{[11]float64{3, -3}, [4]float64{0, 0, -7, 0}, [4]float64{-6, 0, 0, 0}, [4]float64{-3, 0, 0, 0}},
	{[11]float64{0, 2, -2}, [4]float64{5, 0, -5, 0}, [4]float64{-4, 0, -5, 0}, [4]float64{-2, 0, -2, 0}},
	{[11]float64{0, 0, 0, 0, 0, 0, 0, 1, -2}, [4]float64{5, 0, 0, 0}, [4]float64{0, 0, -5, 0}, [4]float64{0, 0, -2, 0}},
}

// velocityArgs are the mean longitudes of Venus through Neptune, the Moon's
// mean longitude, D, M' and F as (radians, radians per century).
var velocityArgs = [11][2]float64{
	{3.1761467, 1021.3285546},
	{1.7534703, 628.3075849},
	{6.2034809, 334.0612431},
	{0.5995465, 52.9690965},
	{0.8740168, 21.3299095},
	{5.4812939, 7.4781599},
	{5.3118863, 3.8133036},
	{3.8103444, 8399.6847337},
	{5.1984667, 7771.3771486},
	{2.3555559, 8328.6914289},
	{1.6279052, 8433.4661601},
}

// earthVelocity returns the barycentric velocity of the Earth in units of c,
// referred to the mean equator and equinox of J2000, for TT centuries jc.
func earthVelocity(jc float64) mgl64.Vec3 {
	var args [11]float64
	for i, a := range velocityArgs {
		args[i] = a[0] + a[1]*jc
	}

	var v mgl64.Vec3
	for _, term := range velocitySeries {
		var arg float64
		for i, k := range term.arg {
			arg += k * args[i]
		}
		s, c := math.Sin(arg), math.Cos(arg)
		for i, axis := range [3][4]float64{term.x, term.y, term.z} {
			v[i] += (axis[0]+axis[1]*jc)*s + (axis[2]+axis[3]*jc)*c
		}
	}
	return v.Mul(1 / lightAUPerDay)
}

// applyAberration returns the direction of unit vector p seen by an observer
// moving with velocity v (units of c). The relativistic form is exact, so
// applying -v undoes it.
func applyAberration(p, v mgl64.Vec3) mgl64.Vec3 {
	bm1 := math.Sqrt(1 - v.Dot(v))
	pv := p.Dot(v)
	return p.Mul(bm1).Add(v.Mul(1 + pv/(1+bm1))).Normalize()
}

// removeAberration is the inverse of applyAberration.
func removeAberration(q, v mgl64.Vec3) mgl64.Vec3 {
	return applyAberration(q.Normalize(), v.Mul(-1))
}
