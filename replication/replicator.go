package replication

import "github.com/automoto/netxform/shared/protocol"

// ReplicatorState is the authority-side send state of one entity.
type ReplicatorState int

const (
	Idle ReplicatorState = iota
	Dirty
	PendingCloseout
)

func (s ReplicatorState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dirty:
		return "dirty"
	case PendingCloseout:
		return "pending-closeout"
	}
	return "unknown"
}

// Replicator decides, once per tick, whether a record goes out: a fresh one
// when the pose is dirty, or one copy of the last record after motion stops
// so receivers can tell "stopped" from "lost".
type Replicator struct {
	state        ReplicatorState
	lastSent     protocol.StateRecord
	hasLastSent  bool
	lastSendTick uint32
	closeoutOwed bool
}

// Sent records that rec went out on tick.
func (r *Replicator) Sent(rec protocol.StateRecord, tick uint32) {
	r.state = Dirty
	r.lastSent = rec
	r.hasLastSent = true
	r.lastSendTick = tick
	r.closeoutOwed = true
}

// Closeout returns the copy owed for this tick, if any, and clears the debt.
// The copy keeps the original tick so stateful decoders treat it as a
// duplicate.
func (r *Replicator) Closeout(tick uint32, sentTime float64) (protocol.StateRecord, bool) {
	if !r.closeoutOwed || !r.hasLastSent {
		r.state = Idle
		return protocol.StateRecord{}, false
	}
	if tick <= r.lastSendTick {
		r.state = PendingCloseout
		return protocol.StateRecord{}, false
	}
	r.closeoutOwed = false
	r.state = Idle
	return r.lastSent.Resent(sentTime), true
}

// Quiet marks a tick with nothing to send.
func (r *Replicator) Quiet() {
	if r.closeoutOwed {
		r.state = PendingCloseout
		return
	}
	r.state = Idle
}

// Cancel drops any owed closeout.
func (r *Replicator) Cancel() {
	r.closeoutOwed = false
	r.state = Idle
}

// Reset forgets everything sent.
func (r *Replicator) Reset() {
	*r = Replicator{}
}

func (r *Replicator) State() ReplicatorState { return r.state }

func (r *Replicator) CloseoutOwed() bool { return r.closeoutOwed }

// LastSent returns the last record sent and its tick.
func (r *Replicator) LastSent() (protocol.StateRecord, uint32, bool) {
	return r.lastSent, r.lastSendTick, r.hasLastSent
}
