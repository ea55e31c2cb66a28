// Package posemath holds the vector, quaternion and pose value types shared by
// the authority and the observers. It has no dependency on the ECS or the
// transport so both sides of the link can use it.
package posemath

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is a 3-component position, scale or Euler-angle vector.
type Vec3 = r3.Vec

// Axis indexes a single component of a Vec3.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Axes lists X, Y, Z in wire order.
var Axes = [3]Axis{AxisX, AxisY, AxisZ}

func V(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// One is the unit scale.
func One() Vec3 {
	return Vec3{X: 1, Y: 1, Z: 1}
}

func Add(a, b Vec3) Vec3 { return r3.Add(a, b) }

func Sub(a, b Vec3) Vec3 { return r3.Sub(a, b) }

func Scale(f float64, v Vec3) Vec3 { return r3.Scale(f, v) }

func Magnitude(v Vec3) float64 { return r3.Norm(v) }

// Normalize returns the unit vector of v, or the zero vector when v has no length.
func Normalize(v Vec3) Vec3 {
	if r3.Norm2(v) == 0 {
		return Vec3{}
	}
	return r3.Unit(v)
}

// Distance returns |a - b|.
func Distance(a, b Vec3) float64 {
	return r3.Norm(r3.Sub(a, b))
}

// Lerp interpolates between a and b. t is not clamped, so values past 1
// extrapolate along the same line.
func Lerp(a, b Vec3, t float64) Vec3 {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

// Component returns one axis of v.
func Component(v Vec3, axis Axis) float64 {
	switch axis {
	case AxisX:
		return v.X
	case AxisY:
		return v.Y
	default:
		return v.Z
	}
}

// WithComponent returns v with one axis replaced.
func WithComponent(v Vec3, axis Axis, f float64) Vec3 {
	switch axis {
	case AxisX:
		v.X = f
	case AxisY:
		v.Y = f
	default:
		v.Z = f
	}
	return v
}

// LerpScalar is the scalar form of Lerp.
func LerpScalar(a, b, t float64) float64 {
	return a + (b-a)*t
}

// DeltaAngle returns the shortest signed difference in degrees from one angle
// to another, in (-180, 180].
func DeltaAngle(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// LerpAngle interpolates between two angles in degrees along the shortest arc.
func LerpAngle(a, b, t float64) float64 {
	return a + DeltaAngle(a, b)*t
}

// WrapAngle maps an angle in degrees into [0, 360).
func WrapAngle(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// ApproxEqual compares two vectors component-wise within eps.
func ApproxEqual(a, b Vec3, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps && math.Abs(a.Z-b.Z) <= eps
}
