package messages

import (
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/leap-fish/necs/esync"
)

// PoseUpdate carries one encoded state record for a replicated entity.
// AnticipationAck is the highest anticipation counter the authority had
// applied when the record was produced.
type PoseUpdate struct {
	NetworkID       esync.NetworkId
	Payload         []byte
	Reliability     netconfig.Reliability
	AnticipationAck uint64
}

// OwnershipChangeEvent is broadcast when authority over an entity moves to a
// different participant. Receivers treat it as a hard reset point.
type OwnershipChangeEvent struct {
	NetworkID esync.NetworkId
	OwnerID   string
	X, Y, Z   float64
}

// DespawnEvent is broadcast when an entity is removed ahead of the next world
// snapshot, so observers can cancel pending blends immediately.
type DespawnEvent struct {
	NetworkID esync.NetworkId
}
