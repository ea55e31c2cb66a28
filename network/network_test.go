package network

import (
	"sync"
	"testing"

	"github.com/automoto/netxform/shared/messages"
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPoseSenderWrapsPayload(t *testing.T) {
	lb := NewLoopback()
	s := PoseSender{ID: 7, Out: lb, Ack: func() uint64 { return 42 }}

	require.NoError(t, s.Send([]byte{1, 2, 3}, netconfig.Reliable))

	got := lb.DrainPoseUpdates()
	require.Len(t, got, 1)
	assert.EqualValues(t, 7, got[0].NetworkID)
	assert.Equal(t, []byte{1, 2, 3}, got[0].Payload)
	assert.Equal(t, netconfig.Reliable, got[0].Reliability)
	assert.EqualValues(t, 42, got[0].AnticipationAck)
	assert.Empty(t, lb.DrainPoseUpdates())
}

func TestPoseSenderWithoutOutbox(t *testing.T) {
	assert.ErrorIs(t, PoseSender{ID: 1}.Send(nil, netconfig.Unreliable), ErrNotConnected)
}

func TestLoopbackDropsOnlyUnreliable(t *testing.T) {
	lb := NewLoopback()
	lb.Drop = func(messages.PoseUpdate) bool { return true }

	require.NoError(t, lb.SendMessage(messages.PoseUpdate{NetworkID: 1, Reliability: netconfig.Unreliable}))
	require.NoError(t, lb.SendMessage(messages.PoseUpdate{NetworkID: 1, Reliability: netconfig.Reliable}))
	require.NoError(t, lb.SendMessage(messages.PoseUpdate{NetworkID: 1, Reliability: netconfig.ReliableSequenced}))

	assert.Len(t, lb.DrainPoseUpdates(), 2)
	sent, dropped := lb.Counts()
	assert.Equal(t, 3, sent)
	assert.Equal(t, 1, dropped)
}

func TestLoopbackCopiesPayload(t *testing.T) {
	lb := NewLoopback()
	buf := []byte{9, 9}
	require.NoError(t, lb.SendMessage(messages.PoseUpdate{Payload: buf}))
	buf[0] = 0
	assert.Equal(t, []byte{9, 9}, lb.DrainPoseUpdates()[0].Payload)
}

func TestLoopbackRosterLatestWins(t *testing.T) {
	lb := NewLoopback()
	_, ok := lb.LatestRoster()
	assert.False(t, ok)

	require.NoError(t, lb.SendMessage(Roster{1: {Kind: "a"}}))
	require.NoError(t, lb.SendMessage(Roster{2: {Kind: "b"}}))

	r, ok := lb.LatestRoster()
	require.True(t, ok)
	assert.Equal(t, Roster{2: netcomponents.NetEntityData{Kind: "b"}}, r)
	_, ok = lb.LatestRoster()
	assert.False(t, ok)
}

func TestLoopbackEvents(t *testing.T) {
	lb := NewLoopback()
	require.NoError(t, lb.SendMessage(messages.OwnershipChangeEvent{NetworkID: 3, OwnerID: "x"}))
	require.NoError(t, lb.SendMessage(messages.DespawnEvent{NetworkID: 4}))
	assert.Error(t, lb.SendMessage("nope"))

	own := lb.DrainOwnershipChanges()
	require.Len(t, own, 1)
	assert.Equal(t, "x", own[0].OwnerID)
	desp := lb.DrainDespawns()
	require.Len(t, desp, 1)
	assert.EqualValues(t, 4, desp[0].NetworkID)
}

func TestPipeDeliversAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	var got []any
	p := NewPipe(4, func(msg any) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	})
	for i := 0; i < 10; i++ {
		require.NoError(t, p.SendMessage(i))
	}
	p.Close()
	p.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 10)
	assert.Equal(t, 9, got[9])
	assert.ErrorIs(t, p.SendMessage(10), ErrNotConnected)
}

func TestDrainChan(t *testing.T) {
	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	assert.Equal(t, []int{1, 2}, drainChan(ch))
	assert.Nil(t, drainChan(ch))
}

func TestClientStartsDisconnected(t *testing.T) {
	c := NewClient()
	assert.Equal(t, StateDisconnected, c.State())
	assert.NotEmpty(t, c.SessionID())
	assert.Zero(t, c.ServerTime())
	assert.ErrorIs(t, c.SendMessage(messages.JoinRequest{}), ErrNotConnected)
	_, ok := c.LatestRoster()
	assert.False(t, ok)
	assert.Equal(t, "joined", StateJoined.String())
}
