package replication

import (
	"fmt"
	"math"

	"github.com/automoto/netxform/config"
	"github.com/automoto/netxform/shared/compression"
	"github.com/automoto/netxform/shared/halfprec"
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/automoto/netxform/shared/posemath"
	"github.com/automoto/netxform/shared/protocol"
)

// PositionCodec encodes position into a state record. Stateful codecs keep a
// base that both ends must agree on; they are reseeded from full-precision
// values with Reset.
type PositionCodec interface {
	// EncodingFlags are the header bits records from this codec carry.
	EncodingFlags() netconfig.AxisFlags
	Stateful() bool
	Seeded() bool
	Reset(base posemath.Vec3)
	Encode(position posemath.Vec3, tick uint32, rec *protocol.StateRecord) error
	Decode(rec protocol.StateRecord) (posemath.Vec3, error)
}

// NewPositionCodec selects the codec for a sync profile.
func NewPositionCodec(cfg config.SyncConfig) PositionCodec {
	switch {
	case cfg.Compression == netconfig.CompressionSmallestThree:
		return &CompressedCodec{}
	case cfg.Precision == netconfig.PrecisionHalf:
		return NewHalfCodec(cfg.MaxDeltaBeforeAdjustment)
	}
	return FullCodec{}
}

// FullCodec writes float32 axes and needs no state.
type FullCodec struct{}

func (FullCodec) EncodingFlags() netconfig.AxisFlags { return 0 }
func (FullCodec) Stateful() bool                     { return false }
func (FullCodec) Seeded() bool                       { return true }
func (FullCodec) Reset(posemath.Vec3)                {}

func (FullCodec) Encode(position posemath.Vec3, _ uint32, rec *protocol.StateRecord) error {
	rec.Position = position
	return nil
}

func (FullCodec) Decode(rec protocol.StateRecord) (posemath.Vec3, error) {
	return rec.Position, nil
}

// HalfCodec sends position as a half-precision offset from a shared base.
type HalfCodec struct {
	state  *halfprec.DeltaState
	seeded bool
}

func NewHalfCodec(maxDelta float64) *HalfCodec {
	return &HalfCodec{state: halfprec.NewDeltaState(maxDelta)}
}

func (c *HalfCodec) EncodingFlags() netconfig.AxisFlags { return netconfig.HalfPrecision }
func (c *HalfCodec) Stateful() bool                     { return true }
func (c *HalfCodec) Seeded() bool                       { return c.seeded }

func (c *HalfCodec) Reset(base posemath.Vec3) {
	c.state.Reset(base)
	c.seeded = true
}

func (c *HalfCodec) Encode(position posemath.Vec3, tick uint32, rec *protocol.StateRecord) error {
	if !c.seeded {
		return ErrUnseeded
	}
	// Offsets far past the fold threshold lose precision in 16 bits.
	limit := c.state.MaxDelta() * 4
	offset := posemath.Sub(position, c.state.Base())
	for _, axis := range posemath.Axes {
		if math.Abs(posemath.Component(offset, axis)) >= limit {
			return fmt.Errorf("%w: %v from base", ErrDeltaOutOfRange, offset)
		}
	}
	if !c.state.CanEncode(position) {
		return ErrDeltaOutOfRange
	}
	rec.HalfPosition = c.state.Update(position, tick)
	rec.Position = c.state.Value()
	rec.Tick = tick
	return nil
}

func (c *HalfCodec) Decode(rec protocol.StateRecord) (posemath.Vec3, error) {
	if !c.seeded {
		return posemath.Vec3{}, ErrUnseeded
	}
	return c.state.Decode(rec.HalfPosition, rec.Tick)
}

// State exposes the delta state for inspection.
func (c *HalfCodec) State() *halfprec.DeltaState { return c.state }

// CompressedCodec sends the change since the last reconstructed position as
// a 6-byte smallest-three delta. The encoder tracks the reconstructed value,
// not the true one, so quantization error never accumulates.
type CompressedCodec struct {
	base   posemath.Vec3
	seeded bool

	lastTick  uint32
	hasTick   bool
	lastValue posemath.Vec3
}

func (c *CompressedCodec) EncodingFlags() netconfig.AxisFlags {
	return netconfig.PositionDeltaCompressed
}

func (c *CompressedCodec) Stateful() bool { return true }
func (c *CompressedCodec) Seeded() bool   { return c.seeded }

func (c *CompressedCodec) Reset(base posemath.Vec3) {
	c.base = base
	c.lastValue = base
	c.hasTick = false
	c.seeded = true
}

func (c *CompressedCodec) Encode(position posemath.Vec3, tick uint32, rec *protocol.StateRecord) error {
	if !c.seeded {
		return ErrUnseeded
	}
	d, err := compression.CompressDelta(posemath.Sub(position, c.base))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeltaOutOfRange, err)
	}
	c.base = posemath.Add(c.base, d.Decompress())
	c.lastTick, c.hasTick, c.lastValue = tick, true, c.base

	rec.DeltaPosition = d
	rec.Position = c.base
	rec.Tick = tick
	return nil
}

func (c *CompressedCodec) Decode(rec protocol.StateRecord) (posemath.Vec3, error) {
	if !c.seeded {
		return posemath.Vec3{}, ErrUnseeded
	}
	if c.hasTick {
		if rec.Tick == c.lastTick {
			return c.lastValue, nil
		}
		if rec.Tick < c.lastTick {
			return c.lastValue, halfprec.ErrStaleTick
		}
	}
	c.base = posemath.Add(c.base, rec.DeltaPosition.Decompress())
	c.lastTick, c.hasTick, c.lastValue = rec.Tick, true, c.base
	return c.base, nil
}

// Base returns the reconstructed position both ends share.
func (c *CompressedCodec) Base() posemath.Vec3 { return c.base }

// roundToWire rounds v the way full-precision record fields are rounded, so
// an encoder can seed its base with exactly what the decoder will read.
func roundToWire(v posemath.Vec3) posemath.Vec3 {
	return posemath.V(float64(float32(v.X)), float64(float32(v.Y)), float64(float32(v.Z)))
}
