// Package netconfig defines lightweight types shared between the authority and
// observers for network serialization. It must have zero dependencies on the
// ECS or the transport so every side of the link can import it.
package netconfig

import (
	"fmt"
	"strings"
)

// AxisFlags is the 16-bit header of a state record. Each Has* bit marks one
// field carried in the record body; the remaining bits describe the encoding.
type AxisFlags uint16

const (
	InLocalSpace AxisFlags = 1 << iota
	HasPositionX
	HasPositionY
	HasPositionZ
	HasRotX
	HasRotY
	HasRotZ
	HasScaleX
	HasScaleY
	HasScaleZ
	IsTeleportNextFrame

	// Encoding bits
	HalfPrecision           // vector fields are half floats, position is a half delta
	QuaternionSync          // rotation is a quaternion rather than Euler angles
	QuaternionCompressed    // quaternion packed into 32 bits (smallest three)
	PositionDeltaCompressed // position is a 6-byte smallest-three delta

	// SpaceChanged marks the first record after a local/world switch. It makes
	// the record dirty even when no position axis is synchronized.
	SpaceChanged
)

const (
	AllPosition = HasPositionX | HasPositionY | HasPositionZ
	AllRotation = HasRotX | HasRotY | HasRotZ
	AllScale    = HasScaleX | HasScaleY | HasScaleZ

	// StateBits are the bits that mean "something in the pose changed".
	StateBits = AllPosition | AllRotation | AllScale | IsTeleportNextFrame | SpaceChanged

	// StatefulEncoding marks records whose position decode depends on the
	// receiver's codec history; those records carry a tick.
	StatefulEncoding = HalfPrecision | PositionDeltaCompressed
)

// PositionBits, RotationBits and ScaleBits index the per-axis bits by axis.
var (
	PositionBits = [3]AxisFlags{HasPositionX, HasPositionY, HasPositionZ}
	RotationBits = [3]AxisFlags{HasRotX, HasRotY, HasRotZ}
	ScaleBits    = [3]AxisFlags{HasScaleX, HasScaleY, HasScaleZ}
)

func (f AxisFlags) Has(bit AxisFlags) bool { return f&bit == bit }

// Any reports whether at least one bit of mask is set.
func (f AxisFlags) Any(mask AxisFlags) bool { return f&mask != 0 }

func (f *AxisFlags) Set(bit AxisFlags, on bool) {
	if on {
		*f |= bit
	} else {
		*f &^= bit
	}
}

// IsDirty reports whether the flags describe a pose change. The InLocalSpace
// bit on its own is not a change; SpaceChanged is.
func (f AxisFlags) IsDirty() bool { return f&StateBits != 0 }

var flagNames = []struct {
	bit  AxisFlags
	name string
}{
	{InLocalSpace, "local"},
	{HasPositionX, "px"},
	{HasPositionY, "py"},
	{HasPositionZ, "pz"},
	{HasRotX, "rx"},
	{HasRotY, "ry"},
	{HasRotZ, "rz"},
	{HasScaleX, "sx"},
	{HasScaleY, "sy"},
	{HasScaleZ, "sz"},
	{IsTeleportNextFrame, "teleport"},
	{HalfPrecision, "half"},
	{QuaternionSync, "quat"},
	{QuaternionCompressed, "quat32"},
	{PositionDeltaCompressed, "delta48"},
	{SpaceChanged, "space"},
}

func (f AxisFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.bit) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// PrecisionMode selects how vector fields are written on the wire.
type PrecisionMode int

const (
	PrecisionFull PrecisionMode = iota
	PrecisionHalf
)

func (m PrecisionMode) String() string {
	switch m {
	case PrecisionFull:
		return "full"
	case PrecisionHalf:
		return "half"
	}
	return "unknown"
}

// CompressionMode selects whether position deltas and quaternions are packed.
type CompressionMode int

const (
	CompressionNone CompressionMode = iota
	CompressionSmallestThree
)

func (m CompressionMode) String() string {
	switch m {
	case CompressionNone:
		return "none"
	case CompressionSmallestThree:
		return "smallest-three"
	}
	return "unknown"
}

// StaleDataHandling decides what an anticipating observer does with
// authoritative data older than its latest anticipation.
type StaleDataHandling int

const (
	StaleIgnore StaleDataHandling = iota
	StaleReanticipate
)

func (s StaleDataHandling) String() string {
	switch s {
	case StaleIgnore:
		return "ignore"
	case StaleReanticipate:
		return "reanticipate"
	}
	return "unknown"
}

// Reliability is the delivery guarantee requested from the transport.
type Reliability int

const (
	Unreliable Reliability = iota
	UnreliableSequenced
	Reliable
	ReliableSequenced
)

func (r Reliability) String() string {
	switch r {
	case Unreliable:
		return "unreliable"
	case UnreliableSequenced:
		return "unreliable-sequenced"
	case Reliable:
		return "reliable"
	case ReliableSequenced:
		return "reliable-sequenced"
	}
	return "unknown"
}

// ParsePrecisionMode, ParseCompressionMode and ParseStaleDataHandling accept
// the String forms; they are used by the JSON config and command-line flags.
func ParsePrecisionMode(s string) (PrecisionMode, error) {
	switch strings.ToLower(s) {
	case "full", "":
		return PrecisionFull, nil
	case "half":
		return PrecisionHalf, nil
	}
	return PrecisionFull, fmt.Errorf("unknown precision mode %q", s)
}

func ParseCompressionMode(s string) (CompressionMode, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return CompressionNone, nil
	case "smallest-three", "smallest3":
		return CompressionSmallestThree, nil
	}
	return CompressionNone, fmt.Errorf("unknown compression mode %q", s)
}

func ParseStaleDataHandling(s string) (StaleDataHandling, error) {
	switch strings.ToLower(s) {
	case "ignore", "":
		return StaleIgnore, nil
	case "reanticipate":
		return StaleReanticipate, nil
	}
	return StaleIgnore, fmt.Errorf("unknown stale data handling %q", s)
}

func (m PrecisionMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *PrecisionMode) UnmarshalText(b []byte) error {
	v, err := ParsePrecisionMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m CompressionMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *CompressionMode) UnmarshalText(b []byte) error {
	v, err := ParseCompressionMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (s StaleDataHandling) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *StaleDataHandling) UnmarshalText(b []byte) error {
	v, err := ParseStaleDataHandling(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
