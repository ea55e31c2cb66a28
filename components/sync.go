package components

import (
	"github.com/automoto/netxform/replication"
	"github.com/yohamta/donburi"
)

// SyncData is the replication state of one networked entity. Both fields are
// pointers so senders built around them stay valid when the entry changes
// archetype.
type SyncData struct {
	Engine *replication.TransformSync
	Acks   *AckState
}

// AckState tracks anticipation counters. The authority records the newest
// request it applied; an observer hands out counters for its own requests.
type AckState struct {
	Applied uint64
	Next    uint64
}

// NextCounter returns a fresh anticipation counter.
func (a *AckState) NextCounter() uint64 {
	a.Next++
	return a.Next
}

var Sync = donburi.NewComponentType[SyncData]()
