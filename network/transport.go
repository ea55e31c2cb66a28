package network

import (
	"errors"

	"github.com/automoto/netxform/shared/messages"
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/leap-fish/necs/esync"
)

// ErrNotConnected is returned when a message is sent without a live connection.
var ErrNotConnected = errors.New("network: not connected")

// Outbox sends routed messages to the other side of a link.
type Outbox interface {
	SendMessage(msg any) error
}

// Roster is the set of replicated entities the host currently has, keyed by
// network id. Entities missing from the newest roster are gone.
type Roster map[esync.NetworkId]netcomponents.NetEntityData

// Inbox is what the observer drains once per frame. Every method is
// non-blocking.
type Inbox interface {
	LatestRoster() (Roster, bool)
	DrainPoseUpdates() []messages.PoseUpdate
	DrainOwnershipChanges() []messages.OwnershipChangeEvent
	DrainDespawns() []messages.DespawnEvent
}

// PoseSender wraps encoded records for one entity in PoseUpdate envelopes.
// It satisfies replication.Sender.
type PoseSender struct {
	ID  esync.NetworkId
	Out Outbox
	// Ack returns the newest anticipation counter applied to the entity. Nil sends 0.
	Ack func() uint64
}

func (s PoseSender) Send(payload []byte, reliability netconfig.Reliability) error {
	if s.Out == nil {
		return ErrNotConnected
	}
	var ack uint64
	if s.Ack != nil {
		ack = s.Ack()
	}
	return s.Out.SendMessage(messages.PoseUpdate{
		NetworkID:       s.ID,
		Payload:         payload,
		Reliability:     reliability,
		AnticipationAck: ack,
	})
}

// OutboxFunc adapts a function to Outbox.
type OutboxFunc func(msg any) error

func (f OutboxFunc) SendMessage(msg any) error { return f(msg) }

func drainChan[T any](ch chan T) []T {
	var out []T
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}
