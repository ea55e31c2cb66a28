// Package protocol defines the state record sent from an authority to its
// observers and its binary layout:
//
//	[flags u16][sentTime f64][tick u32, stateful encodings only][fields...]
//
// Fields follow in fixed order: position, rotation, scale. Full-precision
// fields are one float32 per flagged axis. Half-precision vectors are three
// (or four, for quaternions) half floats. A compressed position is a 6-byte
// smallest-three delta and a compressed quaternion is 4 bytes. All values are
// little-endian.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/automoto/netxform/shared/compression"
	"github.com/automoto/netxform/shared/halfprec"
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/automoto/netxform/shared/posemath"
)

const headerSize = 2 + 8

// ErrMalformedRecord is returned for a buffer that does not hold a valid record.
var ErrMalformedRecord = errors.New("protocol: malformed state record")

// Validate checks that the flag combination is one the codec can write.
func (r StateRecord) Validate() error {
	f := r.Flags
	if f.Has(netconfig.PositionDeltaCompressed) && r.HasPosition() && !f.Has(netconfig.AllPosition) {
		return fmt.Errorf("%w: compressed position needs all three axes", ErrMalformedRecord)
	}
	if f.Has(netconfig.QuaternionCompressed) && !f.Has(netconfig.QuaternionSync) {
		return fmt.Errorf("%w: packed rotation without quaternion sync", ErrMalformedRecord)
	}
	return nil
}

// Size returns the encoded length of r.
func (r StateRecord) Size() int {
	f := r.Flags
	n := headerSize
	if f.Any(netconfig.StatefulEncoding) {
		n += 4
	}
	half := f.Has(netconfig.HalfPrecision)

	switch {
	case !r.HasPosition():
	case f.Has(netconfig.PositionDeltaCompressed):
		n += compression.DeltaPositionSize
	case half:
		n += 6
	default:
		n += 4 * countBits(f, netconfig.PositionBits)
	}

	switch {
	case !r.HasRotation():
	case f.Has(netconfig.QuaternionSync) && f.Has(netconfig.QuaternionCompressed):
		n += 4
	case f.Has(netconfig.QuaternionSync) && half:
		n += 8
	case f.Has(netconfig.QuaternionSync):
		n += 16
	case half:
		n += 6
	default:
		n += 4 * countBits(f, netconfig.RotationBits)
	}

	switch {
	case !r.HasScale():
	case half:
		n += 6
	default:
		n += 4 * countBits(f, netconfig.ScaleBits)
	}
	return n
}

// Marshal encodes r into a new buffer.
func (r StateRecord) Marshal() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, r.Size()))
}

// AppendBinary appends the encoded form of r to b.
func (r StateRecord) AppendBinary(b []byte) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return b, err
	}
	f := r.Flags
	half := f.Has(netconfig.HalfPrecision)

	b = binary.LittleEndian.AppendUint16(b, uint16(f))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(r.SentTime))
	if f.Any(netconfig.StatefulEncoding) {
		b = binary.LittleEndian.AppendUint32(b, r.Tick)
	}

	if r.HasPosition() {
		switch {
		case f.Has(netconfig.PositionDeltaCompressed):
			b = r.DeltaPosition.AppendBinary(b)
		case half:
			b = appendHalves(b, r.HalfPosition[:])
		default:
			b = appendAxes(b, f, netconfig.PositionBits, r.Position)
		}
	}

	if r.HasRotation() {
		switch {
		case f.Has(netconfig.QuaternionSync) && f.Has(netconfig.QuaternionCompressed):
			b = binary.LittleEndian.AppendUint32(b, r.PackedRotation)
		case f.Has(netconfig.QuaternionSync) && half:
			h := halfprec.EncodeQuat(r.Rotation)
			b = appendHalves(b, h[:])
		case f.Has(netconfig.QuaternionSync):
			for _, c := range r.Rotation.Components() {
				b = appendFloat32(b, c)
			}
		case half:
			h := halfprec.EncodeVector3(r.Euler)
			b = appendHalves(b, h[:])
		default:
			b = appendAxes(b, f, netconfig.RotationBits, r.Euler)
		}
	}

	if r.HasScale() {
		if half {
			h := halfprec.EncodeVector3(r.Scale)
			b = appendHalves(b, h[:])
		} else {
			b = appendAxes(b, f, netconfig.ScaleBits, r.Scale)
		}
	}
	return b, nil
}

// Unmarshal decodes a record. Stateful position encodings are returned as
// read; resolving them to a position is the receiver's codec's job.
func Unmarshal(b []byte) (StateRecord, error) {
	d := decoder{buf: b}
	var r StateRecord

	r.Flags = netconfig.AxisFlags(d.uint16())
	r.SentTime = math.Float64frombits(d.uint64())
	f := r.Flags
	if f.Any(netconfig.StatefulEncoding) {
		r.Tick = d.uint32()
	}
	if d.err != nil {
		return StateRecord{}, d.err
	}
	if err := r.Validate(); err != nil {
		return StateRecord{}, err
	}
	half := f.Has(netconfig.HalfPrecision)

	if r.HasPosition() {
		switch {
		case f.Has(netconfig.PositionDeltaCompressed):
			r.DeltaPosition = compression.DeltaPosition{Header: d.uint16(), Payload: d.uint32()}
			if d.err == nil {
				if err := r.DeltaPosition.Validate(); err != nil {
					return StateRecord{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
				}
			}
		case half:
			r.HalfPosition = halfprec.Vector3{d.uint16(), d.uint16(), d.uint16()}
		default:
			r.Position = d.axes(f, netconfig.PositionBits)
		}
	}

	if r.HasRotation() {
		switch {
		case f.Has(netconfig.QuaternionSync) && f.Has(netconfig.QuaternionCompressed):
			r.PackedRotation = d.uint32()
			r.Rotation = compression.DecompressQuaternion(r.PackedRotation)
		case f.Has(netconfig.QuaternionSync) && half:
			r.Rotation = halfprec.Vector4{d.uint16(), d.uint16(), d.uint16(), d.uint16()}.Decode()
		case f.Has(netconfig.QuaternionSync):
			var c [4]float64
			for i := range c {
				c[i] = d.float32()
			}
			r.Rotation = posemath.QuatFromComponents(c)
		case half:
			r.Euler = halfprec.Vector3{d.uint16(), d.uint16(), d.uint16()}.Decode()
		default:
			r.Euler = d.axes(f, netconfig.RotationBits)
		}
	}

	if r.HasScale() {
		if half {
			r.Scale = halfprec.Vector3{d.uint16(), d.uint16(), d.uint16()}.Decode()
		} else {
			r.Scale = d.axes(f, netconfig.ScaleBits)
		}
	}

	if d.err != nil {
		return StateRecord{}, d.err
	}
	if len(d.buf) != 0 {
		return StateRecord{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedRecord, len(d.buf))
	}
	if math.IsNaN(r.SentTime) || math.IsInf(r.SentTime, 0) {
		return StateRecord{}, fmt.Errorf("%w: invalid send time", ErrMalformedRecord)
	}
	return r, nil
}

func countBits(f netconfig.AxisFlags, bits [3]netconfig.AxisFlags) int {
	n := 0
	for _, bit := range bits {
		if f.Has(bit) {
			n++
		}
	}
	return n
}

func appendAxes(b []byte, f netconfig.AxisFlags, bits [3]netconfig.AxisFlags, v posemath.Vec3) []byte {
	for i, bit := range bits {
		if f.Has(bit) {
			b = appendFloat32(b, posemath.Component(v, posemath.Axes[i]))
		}
	}
	return b
}

func appendFloat32(b []byte, f float64) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(f)))
}

func appendHalves(b []byte, h []uint16) []byte {
	for _, v := range h {
		b = binary.LittleEndian.AppendUint16(b, v)
	}
	return b
}

// decoder reads little-endian values and records the first underrun.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf) < n {
		d.err = fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedRecord, n, len(d.buf))
		return nil
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) uint16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) uint32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) uint64() uint64 {
	if b := d.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (d *decoder) float32() float64 {
	return float64(math.Float32frombits(d.uint32()))
}

func (d *decoder) axes(f netconfig.AxisFlags, bits [3]netconfig.AxisFlags) posemath.Vec3 {
	var v posemath.Vec3
	for i, bit := range bits {
		if f.Has(bit) {
			v = posemath.WithComponent(v, posemath.Axes[i], d.float32())
		}
	}
	return v
}
