package replication

import (
	"errors"
	"fmt"
	"math"

	"github.com/automoto/netxform/anticipation"
	"github.com/automoto/netxform/shared/halfprec"
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/automoto/netxform/shared/posemath"
	"github.com/automoto/netxform/shared/protocol"
)

// Receive decodes one payload from the authority and feeds it to the
// interpolator and, when anticipating, the anticipation controller. A
// malformed payload is returned as an error and leaves all state untouched.
func (s *TransformSync) Receive(ctx Context, payload []byte) error {
	if s.closed {
		return ErrClosed
	}
	if s.authority {
		return ErrAuthorityReceive
	}
	rec, err := protocol.Unmarshal(payload)
	if err != nil {
		s.stats.Malformed++
		return fmt.Errorf("decode state record: %w", err)
	}
	s.ApplyRecord(ctx, rec)
	return nil
}

// ApplyRecord applies an already decoded record. Records sent before the
// newest applied one are dropped unless they teleport.
func (s *TransformSync) ApplyRecord(ctx Context, rec protocol.StateRecord) bool {
	if s.closed || s.authority {
		return false
	}
	if !rec.IsTeleport() && s.hasReceived && rec.SentTime < s.newestSent {
		s.stats.Dropped++
		return false
	}

	pose := s.received
	euler := s.receivedEuler
	frameChanged := rec.Flags.Has(netconfig.SpaceChanged) || (s.hasReceived && rec.InLocalSpace() != s.receivedLocal)

	if rec.HasPosition() {
		if rec.IsStateful() {
			p, err := s.decoderFor(rec).Decode(rec)
			switch {
			case errors.Is(err, ErrUnseeded):
				s.stats.Unseeded++
				return false
			case errors.Is(err, halfprec.ErrStaleTick):
				s.stats.Dropped++
				return false
			}
			pose.Position = p
		} else {
			for i, bit := range netconfig.PositionBits {
				if rec.Flags.Has(bit) {
					axis := posemath.Axes[i]
					pose.Position = posemath.WithComponent(pose.Position, axis, posemath.Component(rec.Position, axis))
				}
			}
			if rec.Flags.Has(netconfig.AllPosition) {
				s.half.Reset(pose.Position)
				s.compressed.Reset(pose.Position)
			}
		}
	}

	if rec.HasRotation() {
		if rec.Flags.Has(netconfig.QuaternionSync) {
			pose.Rotation = rec.Rotation.Normalize()
			euler = pose.Rotation.Euler()
		} else {
			for i, bit := range netconfig.RotationBits {
				if rec.Flags.Has(bit) {
					axis := posemath.Axes[i]
					euler = posemath.WithComponent(euler, axis, posemath.Component(rec.Euler, axis))
				}
			}
			pose.Rotation = posemath.FromEuler(euler)
		}
	}

	if rec.HasScale() {
		for i, bit := range netconfig.ScaleBits {
			if rec.Flags.Has(bit) {
				axis := posemath.Axes[i]
				pose.Scale = posemath.WithComponent(pose.Scale, axis, posemath.Component(rec.Scale, axis))
			}
		}
	}

	s.received = pose
	s.receivedEuler = euler
	s.receivedLocal = rec.InLocalSpace()
	if rec.SentTime > s.newestSent || !s.hasReceived {
		s.newestSent = rec.SentTime
	}
	s.hasReceived = true
	s.stats.Received++

	switch {
	case rec.IsTeleport():
		s.interp.ResetTo(pose, rec.SentTime)
		s.displayed = pose
		if s.anticipation != nil {
			s.anticipation.Reset(pose)
		}
		return true
	case frameChanged || !s.cfg.Interpolate:
		s.interp.ResetTo(pose, rec.SentTime)
		s.displayed = pose
	default:
		s.interp.AddMeasurement(pose, rec.SentTime)
	}

	if s.anticipation != nil {
		if s.anticipation.OnAuthoritative(pose, ctx.LastAnticipationAck, rec.SentTime) == anticipation.Reconciled {
			// Keep showing the reconciled value until interpolation reaches it.
			s.anticipationHold = math.Max(s.anticipationHold, rec.SentTime)
		}
	}
	return true
}

func (s *TransformSync) decoderFor(rec protocol.StateRecord) PositionCodec {
	if rec.Flags.Has(netconfig.PositionDeltaCompressed) {
		return s.compressed
	}
	return s.half
}

// Update advances the observer one frame and returns the pose to present.
// Render time trails server time by the configured interpolation delay.
func (s *TransformSync) Update(ctx Context) posemath.Pose {
	if s.authority || s.closed {
		return s.Pose()
	}
	renderTime := ctx.ServerTime - float64(s.cfg.InterpolationDelayTicks)*s.cfg.TickDuration()
	pose := s.interp.Update(ctx.DeltaTime, renderTime, ctx.ServerTime)

	if s.anticipation != nil {
		s.anticipation.Update(ctx.DeltaTime)
		if s.anticipation.State() != anticipation.Idle || s.anticipation.IsSmoothing() || renderTime < s.anticipationHold {
			pose = s.anticipation.Displayed()
		}
	}
	s.displayed = pose
	return pose
}

// Anticipate shows pose immediately on an observer, stamped with the
// context's anticipation counter. On the authority it is the same as SetState.
func (s *TransformSync) Anticipate(ctx Context, pose posemath.Pose) error {
	if s.closed {
		return ErrClosed
	}
	if s.authority {
		return s.SetState(pose)
	}
	if s.anticipation == nil {
		s.enableAnticipation()
	}
	s.anticipation.Anticipate(pose, ctx.AnticipationCounter, ctx.LocalTime)
	s.displayed = pose
	return nil
}

// AnticipatePosition anticipates a move while keeping the displayed rotation and scale.
func (s *TransformSync) AnticipatePosition(ctx Context, position posemath.Vec3) error {
	pose := s.Pose()
	pose.Position = position
	return s.Anticipate(ctx, pose)
}

// Received returns the newest reconstructed authoritative pose.
func (s *TransformSync) Received() (posemath.Pose, bool) {
	return s.received, s.hasReceived
}
