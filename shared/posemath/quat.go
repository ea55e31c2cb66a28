package posemath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi

	// Above this dot product slerp falls back to normalized lerp.
	slerpLinearThreshold = 0.9995
)

// Quat is a rotation quaternion stored as (X, Y, Z, W).
type Quat struct {
	X, Y, Z, W float64
}

func Identity() Quat {
	return Quat{W: 1}
}

func (q Quat) number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromNumber(n quat.Number) Quat {
	return Quat{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

// Mul returns the Hamilton product q*r (r applied first, then q).
func (q Quat) Mul(r Quat) Quat {
	return fromNumber(quat.Mul(q.number(), r.number()))
}

func (q Quat) Conjugate() Quat {
	return fromNumber(quat.Conj(q.number()))
}

func (q Quat) Norm() float64 {
	return quat.Abs(q.number())
}

func (q Quat) Negate() Quat {
	return Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
}

// Normalize returns q scaled to unit length. A zero quaternion becomes the identity.
func (q Quat) Normalize() Quat {
	n := q.Norm()
	if n == 0 {
		return Identity()
	}
	return fromNumber(quat.Scale(1/n, q.number()))
}

// Component returns the i-th component in X, Y, Z, W order.
func (q Quat) Component(i int) float64 {
	switch i {
	case 0:
		return q.X
	case 1:
		return q.Y
	case 2:
		return q.Z
	default:
		return q.W
	}
}

// QuatFromComponents builds a Quat from X, Y, Z, W ordered values.
func QuatFromComponents(c [4]float64) Quat {
	return Quat{X: c[0], Y: c[1], Z: c[2], W: c[3]}
}

// Components returns q in X, Y, Z, W order.
func (q Quat) Components() [4]float64 {
	return [4]float64{q.X, q.Y, q.Z, q.W}
}

func Dot(a, b Quat) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z + a.W*b.W
}

// AngleBetween returns the rotation angle in degrees needed to go from a to b.
func AngleBetween(a, b Quat) float64 {
	r := a.Normalize().Conjugate().Mul(b.Normalize())
	v := math.Sqrt(r.X*r.X + r.Y*r.Y + r.Z*r.Z)
	return 2 * math.Atan2(v, math.Abs(r.W)) * rad2deg
}

// Slerp spherically interpolates between a and b with t clamped to [0, 1].
func Slerp(a, b Quat, t float64) Quat {
	return SlerpUnclamped(a, b, math.Max(0, math.Min(1, t)))
}

// SlerpUnclamped spherically interpolates along the shortest arc. Values of t
// beyond 1 continue the rotation, which the interpolator uses to extrapolate.
func SlerpUnclamped(a, b Quat, t float64) Quat {
	d := Dot(a, b)
	if d < 0 {
		b = b.Negate()
		d = -d
	}
	if d > slerpLinearThreshold {
		n := quat.Add(a.number(), quat.Scale(t, quat.Sub(b.number(), a.number())))
		return fromNumber(n).Normalize()
	}
	theta := math.Acos(d)
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta
	return fromNumber(quat.Add(quat.Scale(wa, a.number()), quat.Scale(wb, b.number())))
}

// FromEuler builds a rotation from Euler angles in degrees. Rotations are
// applied Z first, then X, then Y.
func FromEuler(e Vec3) Quat {
	hx, hy, hz := e.X*deg2rad/2, e.Y*deg2rad/2, e.Z*deg2rad/2
	qx := Quat{X: math.Sin(hx), W: math.Cos(hx)}
	qy := Quat{Y: math.Sin(hy), W: math.Cos(hy)}
	qz := Quat{Z: math.Sin(hz), W: math.Cos(hz)}
	return qy.Mul(qx).Mul(qz)
}

// Euler returns the Euler angles in degrees, each wrapped into [0, 360).
// It is the inverse of FromEuler away from the X = ±90° singularity.
func (q Quat) Euler() Vec3 {
	q = q.Normalize()
	sinX := 2 * (q.W*q.X - q.Y*q.Z)
	sinX = math.Max(-1, math.Min(1, sinX))

	var x, y, z float64
	x = math.Asin(sinX)
	if math.Abs(sinX) < 0.9999 {
		y = math.Atan2(2*(q.X*q.Z+q.W*q.Y), 1-2*(q.X*q.X+q.Y*q.Y))
		z = math.Atan2(2*(q.X*q.Y+q.W*q.Z), 1-2*(q.X*q.X+q.Z*q.Z))
	} else {
		y = math.Atan2(-2*(q.X*q.Z-q.W*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
	}
	return Vec3{
		X: WrapAngle(x * rad2deg),
		Y: WrapAngle(y * rad2deg),
		Z: WrapAngle(z * rad2deg),
	}
}

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	p := Quat{X: v.X, Y: v.Y, Z: v.Z}
	r := q.Mul(p).Mul(q.Conjugate())
	return Vec3{X: r.X, Y: r.Y, Z: r.Z}
}

// SameRotation reports whether a and b describe the same rotation within eps
// degrees. q and -q are the same rotation.
func SameRotation(a, b Quat, eps float64) bool {
	return AngleBetween(a, b) <= eps
}
