// Package compression packs pose deltas with the smallest-three encoding.
//
// A delta vector is split into a unit direction and a magnitude. The
// direction's largest component is dropped and rebuilt on the far side from
// the unit-sphere identity, so only two components, three signs and the index
// of the dropped axis travel. The magnitude is stored separately as a 9-bit
// integer part and an 11-bit fraction, or as a 20-bit fixed-point value when
// the delta is smaller than FractionalThreshold.
//
// Reconstruction error is a direction term that grows with the magnitude plus
// the resolution of the magnitude field. The fixed-point mode resolves about
// 1e-8, the integer mode 1/4096, so deltas just above FractionalThreshold have
// a flat error floor of about 0.00025:
//
//	magnitude   max error
//	255         ~0.115
//	64          ~0.03
//	1           ~0.0007
//	0.01-0.5    ~0.00025-0.00047
//	below 0.01  ~0.0000045
//	0.001       ~0.0000005
package compression

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/automoto/netxform/shared/posemath"
)

// DeltaPositionSize is the encoded size of a DeltaPosition in bytes.
const DeltaPositionSize = 6

const (
	// MaxMagnitude is the largest delta length the 9-bit integer part holds.
	MaxMagnitude = 511.0
	// FractionalThreshold is the length below which the fixed-point mode is used.
	FractionalThreshold = 0.01

	componentBits  = 11
	componentMax   = 1<<componentBits - 1
	fractionBits   = 11
	fractionScale  = 1 << fractionBits
	fractionMask   = fractionScale - 1
	integerBits    = 9
	integerMax     = 1<<integerBits - 1
	fixedPointBits = integerBits + fractionBits
	fixedPointMax  = 1<<fixedPointBits - 1

	// Two of three unit components are never larger than this.
	invSqrt2 = 0.70710678118654752440

	headerIndexShift   = 14
	headerLargestSign  = 1 << 13
	headerSignA        = 1 << 12
	headerSignB        = 1 << 11
	payloadFractional  = 1 << 31
	payloadIntegerMask = integerMax << 22
	payloadAShift      = 11
)

// ErrMagnitudeOutOfRange is returned for deltas longer than MaxMagnitude.
var ErrMagnitudeOutOfRange = errors.New("compression: delta magnitude out of range")

// ErrMalformedDelta is returned for a header naming a dropped axis beyond Z.
var ErrMalformedDelta = errors.New("compression: malformed delta")

// magnitudeSlack absorbs the rounding left by normalizing a vector whose
// length is exactly MaxMagnitude.
const magnitudeSlack = 1e-9

// DeltaPosition is a compressed delta vector.
type DeltaPosition struct {
	Header  uint16
	Payload uint32
}

// CompressDelta packs delta into a DeltaPosition.
func CompressDelta(delta posemath.Vec3) (DeltaPosition, error) {
	mag := posemath.Magnitude(delta)
	if math.IsNaN(mag) || mag > MaxMagnitude+magnitudeSlack {
		return DeltaPosition{}, fmt.Errorf("%w: %.4f", ErrMagnitudeOutOfRange, mag)
	}
	mag = math.Min(mag, MaxMagnitude)
	if mag == 0 {
		return DeltaPosition{Payload: payloadFractional}, nil
	}

	dir := [3]float64{delta.X / mag, delta.Y / mag, delta.Z / mag}
	largest := 0
	for i := 1; i < 3; i++ {
		if math.Abs(dir[i]) > math.Abs(dir[largest]) {
			largest = i
		}
	}
	a, b := (largest+1)%3, (largest+2)%3

	var d DeltaPosition
	d.Header = uint16(largest) << headerIndexShift
	if dir[largest] < 0 {
		d.Header |= headerLargestSign
	}
	if dir[a] < 0 {
		d.Header |= headerSignA
	}
	if dir[b] < 0 {
		d.Header |= headerSignB
	}
	d.Payload = quantizeComponent(dir[a])<<payloadAShift | quantizeComponent(dir[b])

	if mag < FractionalThreshold {
		fixed := uint32(math.Round(mag / FractionalThreshold * fixedPointMax))
		if fixed > fixedPointMax {
			fixed = fixedPointMax
		}
		d.Payload |= payloadFractional
		d.Payload |= (fixed >> fractionBits) << 22
		d.Header |= uint16(fixed & fractionMask)
		return d, nil
	}

	integer := math.Floor(mag)
	fraction := uint32(math.Round((mag - integer) * fractionScale))
	if fraction == fractionScale {
		integer++
		fraction = 0
	}
	if integer > integerMax {
		integer = integerMax
		fraction = fractionMask
	}
	d.Payload |= uint32(integer) << 22
	d.Header |= uint16(fraction)
	return d, nil
}

// Validate reports a header that names no valid dropped axis.
func (d DeltaPosition) Validate() error {
	if d.DroppedAxis() > 2 {
		return fmt.Errorf("%w: dropped axis index %d", ErrMalformedDelta, d.DroppedAxis())
	}
	return nil
}

// Decompress rebuilds the delta vector. A delta that fails Validate
// decompresses to zero.
func (d DeltaPosition) Decompress() posemath.Vec3 {
	integer := (d.Payload & payloadIntegerMask) >> 22
	fraction := uint32(d.Header & fractionMask)

	var mag float64
	if d.Payload&payloadFractional != 0 {
		fixed := integer<<fractionBits | fraction
		mag = float64(fixed) / fixedPointMax * FractionalThreshold
	} else {
		mag = float64(integer) + float64(fraction)/fractionScale
	}
	if mag == 0 {
		return posemath.Vec3{}
	}

	largest := int(d.Header>>headerIndexShift) & 0x3
	if largest > 2 {
		return posemath.Vec3{}
	}
	a, b := (largest+1)%3, (largest+2)%3

	ca := dequantizeComponent((d.Payload >> payloadAShift) & componentMax)
	cb := dequantizeComponent(d.Payload & componentMax)
	if d.Header&headerSignA != 0 {
		ca = -ca
	}
	if d.Header&headerSignB != 0 {
		cb = -cb
	}
	cl := math.Sqrt(math.Max(0, 1-ca*ca-cb*cb))
	if d.Header&headerLargestSign != 0 {
		cl = -cl
	}

	var dir [3]float64
	dir[largest], dir[a], dir[b] = cl, ca, cb
	return posemath.V(dir[0]*mag, dir[1]*mag, dir[2]*mag)
}

// IsFractional reports whether the magnitude is stored in fixed-point mode.
func (d DeltaPosition) IsFractional() bool {
	return d.Payload&payloadFractional != 0
}

// DroppedAxis returns the index of the axis rebuilt from the unit-sphere identity.
func (d DeltaPosition) DroppedAxis() int {
	return int(d.Header >> headerIndexShift)
}

// AppendBinary appends the 6-byte little-endian form of d.
func (d DeltaPosition) AppendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint16(b, d.Header)
	return binary.LittleEndian.AppendUint32(b, d.Payload)
}

// ReadDeltaPosition decodes a DeltaPosition from the first 6 bytes of b.
func ReadDeltaPosition(b []byte) (DeltaPosition, error) {
	if len(b) < DeltaPositionSize {
		return DeltaPosition{}, fmt.Errorf("compression: need %d bytes for delta, have %d", DeltaPositionSize, len(b))
	}
	d := DeltaPosition{
		Header:  binary.LittleEndian.Uint16(b),
		Payload: binary.LittleEndian.Uint32(b[2:]),
	}
	if err := d.Validate(); err != nil {
		return DeltaPosition{}, err
	}
	return d, nil
}

func quantizeComponent(c float64) uint32 {
	q := math.Round(math.Abs(c) / invSqrt2 * componentMax)
	if q > componentMax {
		q = componentMax
	}
	return uint32(q)
}

func dequantizeComponent(q uint32) float64 {
	return float64(q) / componentMax * invSqrt2
}

// ErrorBound is the documented worst-case reconstruction error for a delta of
// the given magnitude.
func ErrorBound(magnitude float64) float64 {
	if magnitude < FractionalThreshold {
		return magnitude*directionError + FractionalThreshold/fixedPointMax
	}
	return magnitude*directionError + 0.5/fractionScale
}

// directionError bounds the length of the unit-direction error: half a
// quantization step on each kept component plus the error that induces in the
// rebuilt one.
const directionError = 0.00045
