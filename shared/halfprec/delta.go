package halfprec

import (
	"errors"
	"math"

	"github.com/automoto/netxform/shared/posemath"
)

// DefaultMaxDeltaBeforeAdjustment is the offset at which an axis is folded
// into the base.
const DefaultMaxDeltaBeforeAdjustment = 64.0

var (
	// ErrStaleTick is returned when a delta older than the last decoded one arrives.
	ErrStaleTick = errors.New("halfprec: delta tick older than last decoded tick")
)

// DeltaState is one side of a half-precision position link. The encoder calls
// Update with the true position, the decoder calls Decode with what was sent;
// as long as both were Reset from the same value and use the same fold
// threshold their bases stay identical.
type DeltaState struct {
	maxDelta float64

	currentBase        posemath.Vec3
	runningDelta       posemath.Vec3
	precisionLossCarry posemath.Vec3

	lastTick  uint32
	hasTick   bool
	lastWire  Vector3
	lastValue posemath.Vec3
}

// NewDeltaState returns a state based at the origin. A non-positive maxDelta
// selects DefaultMaxDeltaBeforeAdjustment.
func NewDeltaState(maxDelta float64) *DeltaState {
	if maxDelta <= 0 {
		maxDelta = DefaultMaxDeltaBeforeAdjustment
	}
	return &DeltaState{maxDelta: maxDelta}
}

// Reset reseeds the base from a full-precision value and forgets all history.
func (s *DeltaState) Reset(base posemath.Vec3) {
	s.currentBase = base
	s.runningDelta = posemath.Vec3{}
	s.precisionLossCarry = posemath.Vec3{}
	s.hasTick = false
	s.lastTick = 0
	s.lastWire = Vector3{}
	s.lastValue = base
}

// CanEncode reports whether v is reachable from the current base with a half
// delta. When it is not, the caller sends a full-precision resync and Resets.
func (s *DeltaState) CanEncode(v posemath.Vec3) bool {
	for _, axis := range posemath.Axes {
		d := posemath.Component(v, axis) + posemath.Component(s.precisionLossCarry, axis) - posemath.Component(s.currentBase, axis)
		if !Encodable(d) {
			return false
		}
	}
	return true
}

// Update encodes the true value v for the given tick and returns the wire form.
func (s *DeltaState) Update(v posemath.Vec3, tick uint32) Vector3 {
	var wire Vector3
	for i, axis := range posemath.Axes {
		base := posemath.Component(s.currentBase, axis)
		carry := posemath.Component(s.precisionLossCarry, axis)

		delta := posemath.Component(v, axis) + carry - base
		q := Quantize(delta)
		dq := Dequantize(q)

		wire[i] = q
		value := base + dq
		carry = delta - dq
		running := dq

		if math.Abs(dq) >= s.maxDelta {
			base += dq
			running = 0
			carry = 0
		}

		s.currentBase = posemath.WithComponent(s.currentBase, axis, base)
		s.runningDelta = posemath.WithComponent(s.runningDelta, axis, running)
		s.precisionLossCarry = posemath.WithComponent(s.precisionLossCarry, axis, carry)
		s.lastValue = posemath.WithComponent(s.lastValue, axis, value)
	}
	s.lastTick = tick
	s.hasTick = true
	s.lastWire = wire
	return wire
}

// Decode reconstructs the value sent for tick. Decoding the same tick again
// returns the cached value without folding the base a second time.
func (s *DeltaState) Decode(wire Vector3, tick uint32) (posemath.Vec3, error) {
	if s.hasTick {
		if tick == s.lastTick {
			return s.lastValue, nil
		}
		if tick < s.lastTick {
			return s.lastValue, ErrStaleTick
		}
	}
	for i, axis := range posemath.Axes {
		base := posemath.Component(s.currentBase, axis)
		dq := Dequantize(wire[i])

		s.lastValue = posemath.WithComponent(s.lastValue, axis, base+dq)
		running := dq
		if math.Abs(dq) >= s.maxDelta {
			base += dq
			running = 0
		}
		s.currentBase = posemath.WithComponent(s.currentBase, axis, base)
		s.runningDelta = posemath.WithComponent(s.runningDelta, axis, running)
	}
	s.lastTick = tick
	s.hasTick = true
	s.lastWire = wire
	return s.lastValue, nil
}

// Value is the reconstructed value for the last Update or Decode.
func (s *DeltaState) Value() posemath.Vec3 { return s.lastValue }

func (s *DeltaState) Base() posemath.Vec3 { return s.currentBase }

func (s *DeltaState) RunningDelta() posemath.Vec3 { return s.runningDelta }

func (s *DeltaState) PrecisionLossCarry() posemath.Vec3 { return s.precisionLossCarry }

// LastTick returns the tick of the last Update or Decode, and whether there was one.
func (s *DeltaState) LastTick() (uint32, bool) { return s.lastTick, s.hasTick }

func (s *DeltaState) MaxDelta() float64 { return s.maxDelta }
