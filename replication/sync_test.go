package replication

import (
	"errors"
	"math"
	"testing"

	"github.com/automoto/netxform/anticipation"
	"github.com/automoto/netxform/config"
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/automoto/netxform/shared/posemath"
	"github.com/automoto/netxform/shared/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTickRate = 30

type captured struct {
	payload     []byte
	reliability netconfig.Reliability
}

type captureSender struct {
	sent []captured
}

func (c *captureSender) Send(payload []byte, reliability netconfig.Reliability) error {
	c.sent = append(c.sent, captured{payload: append([]byte(nil), payload...), reliability: reliability})
	return nil
}

func (c *captureSender) drain() []captured {
	out := c.sent
	c.sent = nil
	return out
}

func ctxAt(tick uint32) Context {
	return Context{
		Tick:       tick,
		ServerTime: float64(tick) / testTickRate,
		LocalTime:  float64(tick) / testTickRate,
		DeltaTime:  1.0 / testTickRate,
	}
}

func decode(t *testing.T, c captured) protocol.StateRecord {
	t.Helper()
	rec, err := protocol.Unmarshal(c.payload)
	require.NoError(t, err)
	return rec
}

func newPair(t *testing.T, cfg config.SyncConfig) (*TransformSync, *TransformSync, *captureSender) {
	t.Helper()
	cfg.TickRate = testTickRate
	sender := &captureSender{}
	auth, err := NewTransformSync(Options{Config: cfg, Authority: true, Sender: sender, Initial: posemath.IdentityPose()})
	require.NoError(t, err)
	obs, err := NewTransformSync(Options{Config: cfg, Initial: posemath.IdentityPose()})
	require.NoError(t, err)
	return auth, obs, sender
}

// deliver feeds everything sent so far to the observer.
func deliver(t *testing.T, obs *TransformSync, sender *captureSender, ctx Context) []protocol.StateRecord {
	t.Helper()
	var recs []protocol.StateRecord
	for _, c := range sender.drain() {
		recs = append(recs, decode(t, c))
		require.NoError(t, obs.Receive(ctx, c.payload))
	}
	return recs
}

func TestEndToEndSingleAxisMove(t *testing.T) {
	auth, obs, sender := newPair(t, config.DefaultSync())

	pose := posemath.IdentityPose()
	pose.Position = posemath.V(10, 0, 0)
	require.NoError(t, auth.SetState(pose))
	require.NoError(t, auth.Tick(ctxAt(1)))

	sent := sender.drain()
	require.Len(t, sent, 1)
	rec := decode(t, sent[0])
	assert.True(t, rec.Flags.Has(netconfig.HasPositionX))
	assert.False(t, rec.Flags.Has(netconfig.HasPositionY))
	assert.False(t, rec.Flags.Has(netconfig.HasPositionZ))
	assert.False(t, rec.HasRotation())
	assert.False(t, rec.HasScale())
	assert.Equal(t, netconfig.Unreliable, sent[0].reliability)

	require.NoError(t, obs.Receive(ctxAt(1), sent[0].payload))

	// One tick of interpolation delay: converged once render time reaches the sample.
	mid := obs.Update(ctxAt(1))
	assert.Less(t, mid.Position.X, 10.0)
	got := obs.Update(ctxAt(2))
	assert.InDelta(t, 10, got.Position.X, 1e-6)
	assert.InDelta(t, 0, got.Position.Y, 1e-9)
}

func TestCloseoutSentOnceAfterMotionStops(t *testing.T) {
	auth, _, sender := newPair(t, config.DefaultSync())

	pose := posemath.IdentityPose()
	pose.Position = posemath.V(1, 0, 0)
	require.NoError(t, auth.SetState(pose))
	require.NoError(t, auth.Tick(ctxAt(1)))
	assert.Equal(t, Dirty, auth.ReplicatorState())

	require.NoError(t, auth.Tick(ctxAt(2)))
	require.NoError(t, auth.Tick(ctxAt(3)))
	require.NoError(t, auth.Tick(ctxAt(4)))
	assert.Equal(t, Idle, auth.ReplicatorState())

	sent := sender.drain()
	require.Len(t, sent, 2)
	first, closeout := decode(t, sent[0]), decode(t, sent[1])
	assert.Equal(t, first.Flags, closeout.Flags)
	assert.Equal(t, first.Position, closeout.Position)
	assert.Equal(t, float64(2)/testTickRate, closeout.SentTime)
	assert.Equal(t, 1, auth.Stats().Closeouts)
}

func TestNoCloseoutOnSameTick(t *testing.T) {
	auth, _, sender := newPair(t, config.DefaultSync())
	pose := posemath.IdentityPose()
	pose.Position = posemath.V(1, 0, 0)
	require.NoError(t, auth.SetState(pose))
	require.NoError(t, auth.Tick(ctxAt(1)))
	require.NoError(t, auth.Tick(ctxAt(1)))
	assert.Len(t, sender.drain(), 1)
	assert.Equal(t, PendingCloseout, auth.ReplicatorState())
}

func TestTeleportSkipsInterpolation(t *testing.T) {
	auth, obs, sender := newPair(t, config.DefaultSync())

	target := posemath.Pose{
		Position: posemath.V(100, 5, -3),
		Rotation: posemath.FromEuler(posemath.V(0, 90, 0)),
		Scale:    posemath.V(2, 2, 2),
	}
	require.NoError(t, auth.Teleport(target))
	require.NoError(t, auth.Tick(ctxAt(1)))

	sent := sender.drain()
	require.Len(t, sent, 1)
	rec := decode(t, sent[0])
	assert.True(t, rec.IsTeleport())
	assert.True(t, rec.Flags.Has(netconfig.AllPosition|netconfig.AllRotation|netconfig.AllScale))
	assert.Equal(t, netconfig.Reliable, sent[0].reliability)

	require.NoError(t, obs.Receive(ctxAt(1), sent[0].payload))
	// Render time is still before the record, yet the pose is applied at once.
	got := obs.Update(ctxAt(1))
	assert.InDelta(t, 100, got.Position.X, 1e-4)
	assert.InDelta(t, 2, got.Scale.Y, 1e-6)

	// Normal updates resume interpolating from the teleported pose.
	target.Position = posemath.V(110, 5, -3)
	require.NoError(t, auth.SetState(target))
	require.NoError(t, auth.Tick(ctxAt(2)))
	recs := deliver(t, obs, sender, ctxAt(2))
	require.Len(t, recs, 1)
	assert.False(t, recs[0].IsTeleport())

	obs.Update(ctxAt(2))
	halfway := Context{Tick: 2, ServerTime: 2.5 / testTickRate, DeltaTime: 0.5 / testTickRate}
	got = obs.Update(halfway)
	assert.InDelta(t, 105, got.Position.X, 1e-3)
}

func TestNonAuthorityRejectsWrites(t *testing.T) {
	auth, obs, _ := newPair(t, config.DefaultSync())

	assert.ErrorIs(t, obs.SetState(posemath.IdentityPose()), ErrNotAuthoritative)
	assert.ErrorIs(t, obs.Teleport(posemath.IdentityPose()), ErrNotAuthoritative)
	assert.ErrorIs(t, obs.SetLocalSpace(true), ErrNotAuthoritative)
	assert.ErrorIs(t, obs.Tick(ctxAt(1)), ErrNotAuthoritative)
	assert.ErrorIs(t, auth.Receive(ctxAt(1), []byte{0, 0}), ErrAuthorityReceive)
}

func TestAuthorityNeedsSender(t *testing.T) {
	_, err := NewTransformSync(Options{Config: config.DefaultSync(), Authority: true})
	assert.ErrorIs(t, err, ErrNoSender)

	bad := config.DefaultSync()
	bad.TickRate = 0
	_, err = NewTransformSync(Options{Config: bad})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestCloseAbandonsWork(t *testing.T) {
	auth, obs, sender := newPair(t, config.DefaultSync())
	pose := posemath.IdentityPose()
	pose.Position = posemath.V(3, 0, 0)
	require.NoError(t, auth.SetState(pose))
	require.NoError(t, auth.Tick(ctxAt(1)))
	sender.drain()

	require.NoError(t, auth.Close())
	assert.ErrorIs(t, auth.Tick(ctxAt(2)), ErrClosed)
	assert.Empty(t, sender.drain(), "closeout must not outlive the entity")
	assert.ErrorIs(t, auth.Close(), ErrClosed)

	require.NoError(t, obs.Close())
	assert.ErrorIs(t, obs.Receive(ctxAt(2), nil), ErrClosed)
	assert.ErrorIs(t, obs.Anticipate(ctxAt(2), pose), ErrClosed)
}

func TestMalformedPayloadLeavesStateUntouched(t *testing.T) {
	_, obs, _ := newPair(t, config.DefaultSync())
	err := obs.Receive(ctxAt(1), []byte{0x02, 0x00, 0x01})
	assert.True(t, errors.Is(err, protocol.ErrMalformedRecord))
	_, ok := obs.Received()
	assert.False(t, ok)
	assert.Equal(t, 1, obs.Stats().Malformed)
}

func TestOutOfOrderRecordsDropped(t *testing.T) {
	auth, obs, sender := newPair(t, config.DefaultSync())
	pose := posemath.IdentityPose()
	for tick := uint32(1); tick <= 2; tick++ {
		pose.Position = posemath.V(float64(tick), 0, 0)
		require.NoError(t, auth.SetState(pose))
		require.NoError(t, auth.Tick(ctxAt(tick)))
	}
	sent := sender.drain()
	require.Len(t, sent, 2)

	require.NoError(t, obs.Receive(ctxAt(2), sent[1].payload))
	require.NoError(t, obs.Receive(ctxAt(2), sent[0].payload))
	got, _ := obs.Received()
	assert.Equal(t, 2.0, got.Position.X)
	assert.Equal(t, 1, obs.Stats().Dropped)
}

func TestDecodeIdempotent(t *testing.T) {
	for _, mode := range []string{"full", "half", "compressed"} {
		t.Run(mode, func(t *testing.T) {
			cfg := config.DefaultSync()
			switch mode {
			case "half":
				cfg.Precision = netconfig.PrecisionHalf
			case "compressed":
				cfg.Compression = netconfig.CompressionSmallestThree
			}
			auth, obs, sender := newPair(t, cfg)
			pose := posemath.IdentityPose()
			for tick := uint32(1); tick <= 3; tick++ {
				pose.Position = posemath.V(float64(tick)*2.5, 1, 0)
				require.NoError(t, auth.SetState(pose))
				require.NoError(t, auth.Tick(ctxAt(tick)))
			}
			sent := sender.drain()
			require.Len(t, sent, 3)
			for _, c := range sent {
				require.NoError(t, obs.Receive(ctxAt(3), c.payload))
			}
			first, _ := obs.Received()

			require.NoError(t, obs.Receive(ctxAt(3), sent[2].payload))
			second, _ := obs.Received()
			assert.Equal(t, first, second)
			assert.InDelta(t, 7.5, second.Position.X, 0.01)
		})
	}
}

func followPath(tick uint32) posemath.Vec3 {
	f := float64(tick)
	return posemath.V(f*0.5, math.Sin(f/10)*3, 100+f*0.1)
}

func TestHalfPrecisionStaysInLockstep(t *testing.T) {
	cfg := config.DefaultSync()
	cfg.Precision = netconfig.PrecisionHalf
	cfg.HalfPrecisionResyncTicks = 50
	auth, obs, sender := newPair(t, cfg)

	pose := posemath.IdentityPose()
	resyncs := 0
	for tick := uint32(1); tick <= 300; tick++ {
		pose.Position = followPath(tick)
		require.NoError(t, auth.SetState(pose))
		require.NoError(t, auth.Tick(ctxAt(tick)))

		for _, c := range sender.drain() {
			assert.Equal(t, netconfig.ReliableSequenced, c.reliability)
			rec := decode(t, c)
			if rec.HasFullPrecisionPosition() {
				resyncs++
			} else {
				assert.True(t, rec.Flags.Has(netconfig.HalfPrecision))
			}
			require.NoError(t, obs.Receive(ctxAt(tick), c.payload))
		}
		got, ok := obs.Received()
		require.True(t, ok)
		require.InDelta(t, pose.Position.X, got.Position.X, 0.05, "tick %d", tick)
		require.InDelta(t, pose.Position.Y, got.Position.Y, 0.05, "tick %d", tick)
		require.InDelta(t, pose.Position.Z, got.Position.Z, 0.05, "tick %d", tick)
	}
	// Initial seed plus one every 50 ticks.
	assert.Equal(t, 6, resyncs)
	assert.Equal(t, auth.Stats().Resyncs, resyncs)
	assert.Zero(t, obs.Stats().Unseeded)
}

func TestHalfPrecisionResyncsOnLargeJump(t *testing.T) {
	cfg := config.DefaultSync()
	cfg.Precision = netconfig.PrecisionHalf
	cfg.HalfPrecisionResyncTicks = 0
	auth, obs, sender := newPair(t, cfg)

	pose := posemath.IdentityPose()
	pose.Position = posemath.V(1, 0, 0)
	require.NoError(t, auth.SetState(pose))
	require.NoError(t, auth.Tick(ctxAt(1)))
	pose.Position = posemath.V(5000, 0, 0)
	require.NoError(t, auth.SetState(pose))
	require.NoError(t, auth.Tick(ctxAt(2)))

	recs := deliver(t, obs, sender, ctxAt(2))
	require.Len(t, recs, 2)
	assert.True(t, recs[1].HasFullPrecisionPosition())
	got, _ := obs.Received()
	assert.Equal(t, 5000.0, got.Position.X)
}

func TestCompressedModeEndToEnd(t *testing.T) {
	cfg := config.DefaultSync()
	cfg.Compression = netconfig.CompressionSmallestThree
	cfg.UseQuaternionSynchronization = true
	auth, obs, sender := newPair(t, cfg)

	pose := posemath.IdentityPose()
	for tick := uint32(1); tick <= 200; tick++ {
		pose.Position = followPath(tick)
		pose.Rotation = posemath.FromEuler(posemath.V(0, float64(tick)*3, 0))
		require.NoError(t, auth.SetState(pose))
		require.NoError(t, auth.Tick(ctxAt(tick)))

		for _, rec := range deliver(t, obs, sender, ctxAt(tick)) {
			if rec.HasRotation() {
				assert.True(t, rec.Flags.Has(netconfig.QuaternionCompressed))
			}
		}
		got, _ := obs.Received()
		require.InDelta(t, 0, posemath.Distance(pose.Position, got.Position), 0.01, "tick %d", tick)
		require.Less(t, posemath.AngleBetween(pose.Rotation, got.Rotation), 0.5, "tick %d", tick)
	}
}

func TestMaxSendRateDefersWithoutLoss(t *testing.T) {
	cfg := config.DefaultSync()
	cfg.MaxSendRate = 10
	auth, obs, sender := newPair(t, cfg)

	pose := posemath.IdentityPose()
	for tick := uint32(1); tick <= 7; tick++ {
		pose.Position = posemath.V(float64(tick), 0, 0)
		require.NoError(t, auth.SetState(pose))
		require.NoError(t, auth.Tick(ctxAt(tick)))
	}
	// Ticks 1, 4 and 7 open the 100ms window.
	recs := deliver(t, obs, sender, ctxAt(7))
	require.Len(t, recs, 3)
	assert.Equal(t, 7.0, recs[2].Position.X)

	// A change on a closed-window tick goes out when the window reopens.
	pose.Position = posemath.V(8, 0, 0)
	require.NoError(t, auth.SetState(pose))
	require.NoError(t, auth.Tick(ctxAt(8)))
	require.NoError(t, auth.Tick(ctxAt(9)))
	assert.Empty(t, sender.sent)
	require.NoError(t, auth.Tick(ctxAt(10)))
	recs = deliver(t, obs, sender, ctxAt(10))
	require.Len(t, recs, 1)
	assert.Equal(t, 8.0, recs[0].Position.X)
}

func TestRequestResyncSendsEverything(t *testing.T) {
	auth, _, sender := newPair(t, config.DefaultSync())
	auth.RequestResync()
	require.NoError(t, auth.Tick(ctxAt(1)))
	sent := sender.drain()
	require.Len(t, sent, 1)
	rec := decode(t, sent[0])
	assert.True(t, rec.Flags.Has(netconfig.AllPosition|netconfig.AllRotation|netconfig.AllScale))
	assert.False(t, rec.IsTeleport())
	assert.Equal(t, netconfig.Reliable, sent[0].reliability)
}

func TestLocalSpaceChangeResetsObserver(t *testing.T) {
	auth, obs, sender := newPair(t, config.DefaultSync())
	require.NoError(t, auth.SetLocalSpace(true))
	require.NoError(t, auth.Tick(ctxAt(1)))
	recs := deliver(t, obs, sender, ctxAt(1))
	require.Len(t, recs, 1)
	assert.True(t, recs[0].InLocalSpace())
	assert.True(t, recs[0].Flags.Has(netconfig.AllPosition))
}

func TestLocalSpaceChangeSentWithoutPositionSync(t *testing.T) {
	cfg := config.DefaultSync()
	cfg.SyncPositionX, cfg.SyncPositionY, cfg.SyncPositionZ = false, false, false
	auth, obs, sender := newPair(t, cfg)

	require.NoError(t, auth.SetLocalSpace(true))
	require.NoError(t, auth.Tick(ctxAt(1)))
	recs := deliver(t, obs, sender, ctxAt(1))
	require.Len(t, recs, 1)
	assert.True(t, recs[0].InLocalSpace())
	assert.True(t, recs[0].Flags.Has(netconfig.SpaceChanged))
	assert.False(t, recs[0].HasPosition())
}

func TestReanticipationThroughSync(t *testing.T) {
	cfg := config.DefaultSync()
	cfg.StaleDataHandling = netconfig.StaleReanticipate
	cfg.TickRate = testTickRate

	var events []anticipation.Event[posemath.Pose]
	obs, err := NewTransformSync(Options{
		Config:       cfg,
		Initial:      posemath.IdentityPose(),
		Anticipation: true,
		OnReconcile: func(_ *anticipation.Controller[posemath.Pose], ev anticipation.Event[posemath.Pose]) {
			events = append(events, ev)
		},
	})
	require.NoError(t, err)

	ctx := ctxAt(1)
	ctx.AnticipationCounter = 1
	require.NoError(t, obs.AnticipatePosition(ctx, posemath.V(5, 0, 0)))
	assert.Equal(t, posemath.V(5, 0, 0), obs.Update(ctxAt(1)).Position)

	rec := protocol.StateRecord{Flags: netconfig.HasPositionX, SentTime: 2.0 / testTickRate, Position: posemath.V(4, 0, 0)}
	payload, err := rec.Marshal()
	require.NoError(t, err)
	// The authority has not applied counter 1 yet, so the data is stale.
	require.NoError(t, obs.Receive(ctxAt(2), payload))

	require.Len(t, events, 1)
	assert.True(t, events[0].Stale)
	assert.Equal(t, posemath.V(5, 0, 0), events[0].Anticipated.Position)
	assert.Equal(t, posemath.V(4, 0, 0), events[0].Authoritative.Position)
}

func TestIgnoredStaleKeepsAnticipation(t *testing.T) {
	cfg := config.DefaultSync()
	cfg.StaleDataHandling = netconfig.StaleIgnore
	cfg.TickRate = testTickRate

	called := false
	obs, err := NewTransformSync(Options{
		Config:       cfg,
		Initial:      posemath.IdentityPose(),
		Anticipation: true,
		OnReconcile: func(*anticipation.Controller[posemath.Pose], anticipation.Event[posemath.Pose]) {
			called = true
		},
	})
	require.NoError(t, err)

	ctx := ctxAt(1)
	ctx.AnticipationCounter = 3
	require.NoError(t, obs.AnticipatePosition(ctx, posemath.V(5, 0, 0)))

	rec := protocol.StateRecord{Flags: netconfig.HasPositionX, SentTime: 2.0 / testTickRate, Position: posemath.V(4, 0, 0)}
	payload, err := rec.Marshal()
	require.NoError(t, err)
	recv := ctxAt(2)
	recv.LastAnticipationAck = 2
	require.NoError(t, obs.Receive(recv, payload))

	assert.False(t, called)
	assert.Equal(t, posemath.V(5, 0, 0), obs.Update(ctxAt(3)).Position)
}

func TestSetAuthorityIsHardReset(t *testing.T) {
	cfg := config.DefaultSync()
	cfg.Precision = netconfig.PrecisionHalf
	auth, obs, sender := newPair(t, cfg)

	ctx := ctxAt(1)
	ctx.AnticipationCounter = 1
	require.NoError(t, obs.AnticipatePosition(ctx, posemath.V(9, 9, 9)))

	// Ownership moves to the former observer.
	handoff := posemath.IdentityPose()
	handoff.Position = posemath.V(2, 0, 0)
	handoffTime := 1.0 / testTickRate
	require.NoError(t, auth.SetAuthority(false, handoff, handoffTime))
	obs.SetSender(sender)
	require.NoError(t, obs.SetAuthority(true, handoff, handoffTime))

	_, _, anticipating := obs.Anticipation().Anticipation()
	assert.False(t, anticipating)
	assert.Equal(t, handoff, obs.Pose())

	require.NoError(t, obs.Tick(ctxAt(2)))
	sent := sender.drain()
	require.Len(t, sent, 1)
	rec := decode(t, sent[0])
	assert.True(t, rec.HasFullPrecisionPosition())
	assert.True(t, rec.Flags.Has(netconfig.AllPosition|netconfig.AllRotation|netconfig.AllScale))

	require.NoError(t, auth.Receive(ctxAt(2), sent[0].payload))
	got, _ := auth.Received()
	assert.Equal(t, 2.0, got.Position.X)
}
