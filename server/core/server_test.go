package core

import (
	"testing"
	"time"

	"github.com/automoto/netxform/config"
	"github.com/automoto/netxform/shared/messages"
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/automoto/netxform/shared/posemath"
	"github.com/automoto/netxform/shared/protocol"
	"github.com/automoto/netxform/systems"
	"github.com/automoto/netxform/tags"
	"github.com/leap-fish/necs/esync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yohamta/donburi"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	if err := protocol.RegisterComponents(); err != nil {
		panic(err)
	}
	goleak.VerifyTestMain(m)
}

type fakePeer struct {
	id   string
	msgs []any
}

func (p *fakePeer) Id() string { return p.id }

func (p *fakePeer) SendMessage(msg any) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePeer) drain() []any {
	out := p.msgs
	p.msgs = nil
	return out
}

func poseUpdates(msgs []any) []messages.PoseUpdate {
	var out []messages.PoseUpdate
	for _, m := range msgs {
		if u, ok := m.(messages.PoseUpdate); ok {
			out = append(out, u)
		}
	}
	return out
}

func newTestServer(t *testing.T, movers bool) *Server {
	t.Helper()
	srv, err := NewServer(Options{Name: "test", TickRate: 30, Sync: config.DefaultSync(), Movers: movers})
	require.NoError(t, err)
	return srv
}

func join(t *testing.T, srv *Server, p *fakePeer, session string) messages.JoinAccepted {
	t.Helper()
	srv.enqueue(func() { srv.handleJoin(p, messages.JoinRequest{ClientName: p.id, SessionID: session}) })
	srv.Step()

	// Everything else sent on the join tick stays queued for the caller.
	var acc *messages.JoinAccepted
	var rest []any
	for _, m := range p.drain() {
		if a, ok := m.(messages.JoinAccepted); ok && acc == nil {
			acc = &a
			continue
		}
		rest = append(rest, m)
	}
	p.msgs = rest
	require.NotNil(t, acc, "no JoinAccepted for %s", p.id)
	return *acc
}

func findKind(t *testing.T, w donburi.World, kind string) esync.NetworkId {
	t.Helper()
	var found *esync.NetworkId
	netQuery.Each(w, func(entry *donburi.Entry) {
		if netcomponents.NetEntity.Get(entry).Kind == kind {
			found = esync.GetNetworkId(entry)
		}
	})
	require.NotNil(t, found, kind)
	return *found
}

func TestNewServerValidatesConfig(t *testing.T) {
	bad := config.DefaultSync()
	bad.PositionThreshold = -1
	_, err := NewServer(Options{TickRate: 30, Sync: bad})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestJoinSpawnsClientOwnedAvatar(t *testing.T) {
	srv := newTestServer(t, false)
	p := &fakePeer{id: "a"}
	acc := join(t, srv, p, "s1")

	assert.Equal(t, "s1", acc.SessionID)
	assert.Equal(t, "test", acc.ServerName)
	assert.Equal(t, 30, acc.TickRate)
	assert.Equal(t, 1, srv.ClientCount())

	entry, ok := systems.FindEntry(srv.World(), acc.NetworkID)
	require.True(t, ok)
	data := netcomponents.NetEntity.Get(entry)
	assert.Equal(t, "avatar", data.Kind)
	assert.Equal(t, "s1", data.OwnerID)
	assert.False(t, entry.HasComponent(tags.Owned))
	assert.False(t, engineOf(entry).IsAuthority())
}

func TestJoinAssignsSessionWhenMissing(t *testing.T) {
	srv := newTestServer(t, false)
	acc := join(t, srv, &fakePeer{id: "a"}, "")
	assert.NotEmpty(t, acc.SessionID)
}

func TestJoinRejectsWrongVersion(t *testing.T) {
	srv, err := NewServer(Options{TickRate: 30, Sync: config.DefaultSync(), Version: "1.2"})
	require.NoError(t, err)
	p := &fakePeer{id: "a"}
	srv.handleJoin(p, messages.JoinRequest{Version: "1.1"})

	require.Len(t, p.msgs, 1)
	rej, ok := p.msgs[0].(messages.JoinRejected)
	require.True(t, ok)
	assert.Contains(t, rej.Reason, "1.2")
	assert.Zero(t, srv.ClientCount())
}

func TestMoversStreamToJoinedClients(t *testing.T) {
	srv := newTestServer(t, true)
	srv.Step()
	srv.Step()

	p := &fakePeer{id: "a"}
	join(t, srv, p, "s1")

	// The join tick itself carries a full resync of every mover.
	first := map[esync.NetworkId]protocol.StateRecord{}
	for _, u := range poseUpdates(p.drain()) {
		if _, seen := first[u.NetworkID]; seen {
			continue
		}
		rec, err := protocol.Unmarshal(u.Payload)
		require.NoError(t, err)
		first[u.NetworkID] = rec
	}
	assert.Len(t, first, len(demoMovers))
	for id, rec := range first {
		// A late joiner's first record for each entity is a full resync.
		assert.True(t, rec.Flags.Has(netconfig.AllPosition|netconfig.AllRotation|netconfig.AllScale), "entity %d: %v", id, rec.Flags)
	}

	for i := 0; i < 30; i++ {
		srv.Step()
	}
	assert.NotEmpty(t, poseUpdates(p.drain()))
}

func TestPoseUpdateFromOwnerIsRelayed(t *testing.T) {
	srv := newTestServer(t, false)
	a, b := &fakePeer{id: "a"}, &fakePeer{id: "b"}
	accA := join(t, srv, a, "sa")
	join(t, srv, b, "sb")
	a.drain()
	b.drain()

	payload, err := protocol.StateRecord{
		Flags:    netconfig.AllPosition,
		SentTime: 1,
		Position: posemath.V(1, 2, 3),
	}.Marshal()
	require.NoError(t, err)

	upd := messages.PoseUpdate{NetworkID: accA.NetworkID, Payload: payload, Reliability: netconfig.Unreliable}
	srv.handlePoseUpdate(a, upd)
	assert.Equal(t, []any{upd}, b.drain())
	assert.Empty(t, a.drain())

	entry, _ := systems.FindEntry(srv.World(), accA.NetworkID)
	got, ok := engineOf(entry).Received()
	require.True(t, ok)
	assert.Equal(t, posemath.V(1, 2, 3), got.Position)

	// Not b's entity.
	srv.handlePoseUpdate(b, upd)
	assert.Empty(t, a.drain())
}

func TestPoseRequestIsAppliedAndAcked(t *testing.T) {
	srv := newTestServer(t, true)
	p := &fakePeer{id: "a"}
	join(t, srv, p, "s1")
	p.drain()
	spin := findKind(t, srv.World(), "spin")

	srv.enqueue(func() { srv.handlePoseRequest(p, messages.NewPoseRequest(spin, 1, 3, 4, 5)) })
	srv.Step()

	entry, _ := systems.FindEntry(srv.World(), spin)
	assert.Equal(t, posemath.V(3, 4, 5), netcomponents.NetPose.Get(entry).Position)

	var acked bool
	for _, u := range poseUpdates(p.drain()) {
		if u.NetworkID == spin {
			assert.EqualValues(t, 1, u.AnticipationAck)
			acked = true
		}
	}
	assert.True(t, acked)
}

func TestOwnershipTransferAndReclaimOnLeave(t *testing.T) {
	srv := newTestServer(t, true)
	a, b := &fakePeer{id: "a"}, &fakePeer{id: "b"}
	accA := join(t, srv, a, "sa")
	join(t, srv, b, "sb")
	a.drain()
	b.drain()

	orbit := findKind(t, srv.World(), "orbit")
	require.NoError(t, srv.TransferOwnership(orbit, "sa"))

	entry, _ := systems.FindEntry(srv.World(), orbit)
	assert.False(t, entry.HasComponent(tags.Owned))
	assert.False(t, engineOf(entry).IsAuthority())
	for _, p := range []*fakePeer{a, b} {
		msgs := p.drain()
		require.Len(t, msgs, 1)
		ev, ok := msgs[0].(messages.OwnershipChangeEvent)
		require.True(t, ok)
		assert.Equal(t, "sa", ev.OwnerID)
	}

	// The host stops animating and sending it.
	before := netcomponents.NetPose.Get(entry).Position
	srv.Step()
	assert.InDelta(t, 0, posemath.Distance(before, netcomponents.NetPose.Get(entry).Position), 1e-9)
	for _, u := range poseUpdates(b.drain()) {
		assert.NotEqual(t, orbit, u.NetworkID)
	}

	srv.enqueue(func() { srv.handleLeave(a) })
	srv.Step()
	assert.Equal(t, 1, srv.ClientCount())

	var despawned, reclaimed bool
	for _, m := range b.drain() {
		switch ev := m.(type) {
		case messages.DespawnEvent:
			despawned = ev.NetworkID == accA.NetworkID
		case messages.OwnershipChangeEvent:
			reclaimed = ev.NetworkID == orbit && ev.OwnerID == HostID
		}
	}
	assert.True(t, despawned)
	assert.True(t, reclaimed)
	assert.True(t, engineOf(entry).IsAuthority())
	_, ok := systems.FindEntry(srv.World(), accA.NetworkID)
	assert.False(t, ok)
}

func TestTransferUnknownEntity(t *testing.T) {
	srv := newTestServer(t, false)
	assert.ErrorIs(t, srv.TransferOwnership(12345, "x"), systems.ErrUnknownEntity)
}

func TestLoopStartStop(t *testing.T) {
	srv := newTestServer(t, true)
	srv.loop.Start()
	time.Sleep(50 * time.Millisecond)
	srv.Stop()
	srv.Stop()
	srv.loop.Start()
	assert.Greater(t, srv.tick, uint32(0))
}
