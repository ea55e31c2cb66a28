// Package halfprec encodes pose components as IEEE 754 half-precision floats.
//
// Absolute values (scale, rotation) are quantized directly. Positions use a
// DeltaState: only the offset from a shared base is sent as a half float, and
// the base is moved forward whenever the offset grows past a fold threshold so
// the 16-bit delta never has to represent a large magnitude.
package halfprec

import (
	"math"

	"github.com/automoto/netxform/shared/posemath"
	"github.com/x448/float16"
)

// MaxEncodable is the largest magnitude a half float represents without
// overflowing to infinity.
const MaxEncodable = 65504.0

// Quantize converts f to half-precision bits.
func Quantize(f float64) uint16 {
	return float16.Fromfloat32(float32(f)).Bits()
}

// Dequantize expands half-precision bits to a float64.
func Dequantize(bits uint16) float64 {
	return float64(float16.Frombits(bits).Float32())
}

// RoundTrip returns f as it would be reconstructed after a half-float trip.
func RoundTrip(f float64) float64 {
	return Dequantize(Quantize(f))
}

// Vector3 is a Vec3 as three half floats.
type Vector3 [3]uint16

// EncodeVector3 quantizes every axis of v.
func EncodeVector3(v posemath.Vec3) Vector3 {
	return Vector3{Quantize(v.X), Quantize(v.Y), Quantize(v.Z)}
}

func (h Vector3) Decode() posemath.Vec3 {
	return posemath.V(Dequantize(h[0]), Dequantize(h[1]), Dequantize(h[2]))
}

// Vector4 is a quaternion as four half floats in X, Y, Z, W order.
type Vector4 [4]uint16

// EncodeQuat quantizes the components of q.
func EncodeQuat(q posemath.Quat) Vector4 {
	return Vector4{Quantize(q.X), Quantize(q.Y), Quantize(q.Z), Quantize(q.W)}
}

// Decode returns the quaternion, renormalized to undo the quantization drift.
func (h Vector4) Decode() posemath.Quat {
	return posemath.Quat{
		X: Dequantize(h[0]),
		Y: Dequantize(h[1]),
		Z: Dequantize(h[2]),
		W: Dequantize(h[3]),
	}.Normalize()
}

// Encodable reports whether f fits in a half float without overflow.
func Encodable(f float64) bool {
	return !math.IsNaN(f) && math.Abs(f) <= MaxEncodable
}
