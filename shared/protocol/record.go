package protocol

import (
	"github.com/automoto/netxform/shared/compression"
	"github.com/automoto/netxform/shared/halfprec"
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/automoto/netxform/shared/posemath"
)

// StateRecord is one serialized pose update. Only the fields named by Flags
// are meaningful; the rest keep their zero value and are never written.
type StateRecord struct {
	Flags    netconfig.AxisFlags
	SentTime float64

	// Tick identifies the authority tick the position encoding was produced
	// for. It is on the wire only for stateful encodings.
	Tick uint32

	Position posemath.Vec3
	Euler    posemath.Vec3
	Rotation posemath.Quat
	Scale    posemath.Vec3

	HalfPosition   halfprec.Vector3
	DeltaPosition  compression.DeltaPosition
	PackedRotation uint32
}

// IsTeleport reports whether the receiver must skip interpolation for this record.
func (r StateRecord) IsTeleport() bool {
	return r.Flags.Has(netconfig.IsTeleportNextFrame)
}

// InLocalSpace reports the reference frame the values are expressed in.
func (r StateRecord) InLocalSpace() bool {
	return r.Flags.Has(netconfig.InLocalSpace)
}

// HasPosition reports whether any position axis is present.
func (r StateRecord) HasPosition() bool { return r.Flags.Any(netconfig.AllPosition) }

func (r StateRecord) HasRotation() bool { return r.Flags.Any(netconfig.AllRotation) }

func (r StateRecord) HasScale() bool { return r.Flags.Any(netconfig.AllScale) }

// IsStateful reports whether decoding the position needs codec history.
func (r StateRecord) IsStateful() bool {
	return r.Flags.Any(netconfig.StatefulEncoding) && r.HasPosition()
}

// HasFullPrecisionPosition reports whether the position is carried as plain
// floats, which lets a receiver reseed its delta codecs from it.
func (r StateRecord) HasFullPrecisionPosition() bool {
	return r.HasPosition() && !r.Flags.Any(netconfig.StatefulEncoding)
}

// Resent returns a copy of r stamped with a new send time. The tick is kept so
// stateful decoders treat it as the same update.
func (r StateRecord) Resent(sentTime float64) StateRecord {
	r.SentTime = sentTime
	r.Flags &^= netconfig.IsTeleportNextFrame | netconfig.SpaceChanged
	return r
}
