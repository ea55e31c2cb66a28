package replication

import (
	"fmt"

	"github.com/automoto/netxform/shared/compression"
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/automoto/netxform/shared/posemath"
	"github.com/automoto/netxform/shared/protocol"
)

// SetState writes the live pose. Only the authority may do this.
func (s *TransformSync) SetState(pose posemath.Pose) error {
	if s.closed {
		return ErrClosed
	}
	if !s.authority {
		return ErrNotAuthoritative
	}
	s.live = pose
	return nil
}

// SetLocalSpace switches the reference frame the pose is expressed in. The
// next tick sends every position axis.
func (s *TransformSync) SetLocalSpace(local bool) error {
	if s.closed {
		return ErrClosed
	}
	if !s.authority {
		return ErrNotAuthoritative
	}
	s.inLocalSpace = local
	return nil
}

// Teleport jumps to pose. The next record is sent regardless of thresholds,
// carries every synchronized channel, and tells receivers not to interpolate.
func (s *TransformSync) Teleport(pose posemath.Pose) error {
	if err := s.SetState(pose); err != nil {
		return err
	}
	s.teleportPending = true
	s.replicator.Cancel()
	return nil
}

// RequestResync makes the next tick send a full-precision record of every
// synchronized channel, for example when an observer joins late.
func (s *TransformSync) RequestResync() {
	if s.authority && !s.closed {
		s.resyncPending = true
	}
}

// Tick runs one authority step: send a record if the pose is dirty, a
// closeout copy if one is owed, or nothing.
func (s *TransformSync) Tick(ctx Context) error {
	if s.closed {
		return ErrClosed
	}
	if !s.authority {
		return ErrNotAuthoritative
	}
	forced := s.teleportPending || s.resyncPending
	if !forced && !s.rateOpen(ctx.ServerTime) {
		s.replicator.Quiet()
		return nil
	}

	rec, reliable, ok := s.buildRecord(ctx)
	if !ok {
		closeout, owed := s.replicator.Closeout(ctx.Tick, ctx.ServerTime)
		if !owed {
			return nil
		}
		if err := s.send(closeout, s.reliability(closeout, false)); err != nil {
			return err
		}
		s.stats.Closeouts++
		s.lastSendTime = ctx.ServerTime
		return nil
	}

	if err := s.send(rec, s.reliability(rec, reliable)); err != nil {
		return err
	}
	s.replicator.Sent(rec, ctx.Tick)
	s.stats.Sent++
	s.lastSendTime = ctx.ServerTime
	s.hasSent = true
	return nil
}

func (s *TransformSync) rateOpen(now float64) bool {
	if s.cfg.MaxSendRate <= 0 || !s.hasSent {
		return true
	}
	return now-s.lastSendTime >= 1/s.cfg.MaxSendRate-1e-9
}

func (s *TransformSync) resyncDue(tick uint32) bool {
	n := s.cfg.HalfPrecisionResyncTicks
	return n > 0 && tick-s.lastResyncTick >= uint32(n)
}

// buildRecord assembles this tick's record. reliable is set for records that
// reseed receivers and must not be lost.
func (s *TransformSync) buildRecord(ctx Context) (rec protocol.StateRecord, reliable bool, ok bool) {
	var flags netconfig.AxisFlags
	resync := false

	switch {
	case s.teleportPending:
		flags = s.tracker.Reset(s.live, s.inLocalSpace) | netconfig.IsTeleportNextFrame
		resync = true
	case s.resyncPending:
		flags = s.tracker.Reset(s.live, s.inLocalSpace)
		resync = true
	default:
		var spaceChanged bool
		flags, spaceChanged = s.tracker.Check(s.live, s.inLocalSpace)
		if !flags.IsDirty() {
			return protocol.StateRecord{}, false, false
		}
		resync = spaceChanged
	}
	s.teleportPending = false
	s.resyncPending = false

	rec = protocol.StateRecord{Flags: flags, SentTime: ctx.ServerTime, Tick: ctx.Tick}
	hasPosition := flags.Any(netconfig.AllPosition)
	stateful := s.codec.Stateful()

	if hasPosition && stateful {
		if !resync && (!s.codec.Seeded() || s.resyncDue(ctx.Tick)) {
			resync = true
		}
		if !resync {
			if err := s.codec.Encode(s.live.Position, ctx.Tick, &rec); err != nil {
				resync = true
			} else {
				rec.Flags |= s.codec.EncodingFlags()
			}
		}
		if resync {
			// Receivers reseed from the whole vector.
			rec.Flags |= netconfig.AllPosition
			rec.Position = s.live.Position
			s.codec.Reset(roundToWire(s.live.Position))
			s.lastResyncTick = ctx.Tick
			s.stats.Resyncs++
		}
	} else if hasPosition {
		rec.Position = s.live.Position
	}

	// Half floats for the remaining vectors, unless this record reseeds the
	// position decoder.
	if s.cfg.Precision == netconfig.PrecisionHalf && !(hasPosition && resync && stateful) {
		rec.Flags |= netconfig.HalfPrecision
	}

	if flags.Any(netconfig.AllRotation) {
		if s.cfg.UseQuaternionSynchronization {
			rec.Flags |= netconfig.QuaternionSync
			rec.Rotation = s.live.Rotation.Normalize()
			if s.cfg.Compression == netconfig.CompressionSmallestThree {
				rec.Flags |= netconfig.QuaternionCompressed
				rec.PackedRotation = compression.CompressQuaternion(rec.Rotation)
			}
		} else {
			rec.Euler = s.live.Rotation.Euler()
		}
	}
	if flags.Any(netconfig.AllScale) {
		rec.Scale = s.live.Scale
	}
	return rec, resync, true
}

// reliability picks the delivery guarantee for rec. Stateful encodings need
// every record in order; reseeding records must arrive.
func (s *TransformSync) reliability(rec protocol.StateRecord, reseeds bool) netconfig.Reliability {
	switch {
	case s.codec.Stateful():
		return netconfig.ReliableSequenced
	case rec.IsTeleport() || reseeds:
		return netconfig.Reliable
	}
	return netconfig.Unreliable
}

func (s *TransformSync) send(rec protocol.StateRecord, reliability netconfig.Reliability) error {
	payload, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}
	if err := s.sender.Send(payload, reliability); err != nil {
		return fmt.Errorf("send state record: %w", err)
	}
	return nil
}

// LastSent returns the last record the authority sent.
func (s *TransformSync) LastSent() (protocol.StateRecord, bool) {
	rec, _, ok := s.replicator.LastSent()
	return rec, ok
}
