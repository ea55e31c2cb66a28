package systems

import (
	"errors"
	"log"

	"github.com/automoto/netxform/archetypes"
	"github.com/automoto/netxform/components"
	"github.com/automoto/netxform/network"
	"github.com/automoto/netxform/replication"
	"github.com/automoto/netxform/shared/messages"
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/automoto/netxform/shared/posemath"
	"github.com/leap-fish/necs/esync"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

// maxPendingPerEntity bounds updates held for an entity whose spawn has not
// arrived yet.
const maxPendingPerEntity = 64

// ReceiveOptions configure a Receiver.
type ReceiveOptions struct {
	Settings SyncSettings
	// LocalID is this side's owner id; entities owned by it are authorities here.
	LocalID func() string
	// Outbox carries updates for entities this side owns.
	Outbox network.Outbox
	Clock  func() replication.Context
}

// Receiver applies everything the host sent since the last frame: spawns
// and removals from the roster, ownership changes, despawns and pose
// updates routed to each entity's TransformSync by network id.
type Receiver struct {
	inbox   network.Inbox
	opts    ReceiveOptions
	pending map[esync.NetworkId][]messages.PoseUpdate
}

func NewReceiver(inbox network.Inbox, opts ReceiveOptions) *Receiver {
	return &Receiver{
		inbox:   inbox,
		opts:    opts,
		pending: make(map[esync.NetworkId][]messages.PoseUpdate),
	}
}

// NewReceiveSystem returns the Receiver as an ECS system.
func NewReceiveSystem(inbox network.Inbox, opts ReceiveOptions) func(*ecs.ECS) {
	return NewReceiver(inbox, opts).Update
}

func (r *Receiver) Update(e *ecs.ECS) {
	r.Apply(e.World)
}

// Apply runs one receive step against w.
func (r *Receiver) Apply(w donburi.World) {
	ctx := r.opts.Clock()

	if roster, ok := r.inbox.LatestRoster(); ok {
		r.applyRoster(w, roster, ctx.ServerTime)
	}
	for _, ev := range r.inbox.DrainOwnershipChanges() {
		r.applyOwnership(w, ev, ctx.ServerTime)
	}
	for _, ev := range r.inbox.DrainDespawns() {
		delete(r.pending, ev.NetworkID)
		if entry, ok := FindEntry(w, ev.NetworkID); ok {
			CloseSync(entry)
			entry.Remove()
		}
	}

	for id, updates := range r.pending {
		entry, ok := FindEntry(w, id)
		if !ok {
			continue
		}
		delete(r.pending, id)
		for _, upd := range updates {
			r.deliver(entry, upd, ctx)
		}
	}

	for _, upd := range r.inbox.DrainPoseUpdates() {
		entry, ok := FindEntry(w, upd.NetworkID)
		if !ok {
			r.hold(upd)
			continue
		}
		r.deliver(entry, upd, ctx)
	}
}

func (r *Receiver) localID() string {
	if r.opts.LocalID == nil {
		return ""
	}
	return r.opts.LocalID()
}

func (r *Receiver) applyRoster(w donburi.World, roster network.Roster, now float64) {
	local := r.localID()
	for id, data := range roster {
		if _, ok := FindEntry(w, id); ok {
			continue
		}
		entry := archetypes.Replicated.Spawn(w)
		entry.AddComponent(esync.NetworkIdComponent)
		esync.NetworkIdComponent.SetValue(entry, id)
		netcomponents.NetEntity.SetValue(entry, data)
		pose := netcomponents.NetPose.Get(entry)
		pose.Position = posemath.V(data.SpawnX, data.SpawnY, data.SpawnZ)

		owned := local != "" && data.OwnerID == local
		if err := AttachSync(entry, id, r.opts.Settings, owned, r.opts.Outbox, now); err != nil {
			log.Printf("[netrecv] entity %d: %v", id, err)
			entry.Remove()
			continue
		}
		log.Printf("[netrecv] spawned %s entity %d (owner %q)", data.Kind, id, data.OwnerID)
	}

	var gone []*donburi.Entry
	esync.NetworkEntityQuery.Each(w, func(entry *donburi.Entry) {
		id := esync.GetNetworkId(entry)
		if id == nil {
			return
		}
		if _, ok := roster[*id]; !ok {
			gone = append(gone, entry)
		}
	})
	for _, entry := range gone {
		CloseSync(entry)
		entry.Remove()
	}
}

func (r *Receiver) applyOwnership(w donburi.World, ev messages.OwnershipChangeEvent, now float64) {
	entry, ok := FindEntry(w, ev.NetworkID)
	if !ok {
		return
	}
	netcomponents.NetEntity.Get(entry).OwnerID = ev.OwnerID

	pose := netcomponents.NetPose.Get(entry).Pose()
	pose.Position = posemath.V(ev.X, ev.Y, ev.Z)
	owned := ev.OwnerID != "" && ev.OwnerID == r.localID()
	if err := SetOwnership(entry, ev.NetworkID, owned, r.opts.Outbox, pose, now); err != nil {
		log.Printf("[netrecv] ownership of %d: %v", ev.NetworkID, err)
	}
}

func (r *Receiver) hold(upd messages.PoseUpdate) {
	q := r.pending[upd.NetworkID]
	if len(q) >= maxPendingPerEntity {
		q = q[1:]
	}
	r.pending[upd.NetworkID] = append(q, upd)
}

func (r *Receiver) deliver(entry *donburi.Entry, upd messages.PoseUpdate, ctx replication.Context) {
	s := components.Sync.Get(entry)
	if s.Engine == nil || s.Engine.IsAuthority() {
		return
	}
	ctx.LastAnticipationAck = upd.AnticipationAck
	netcomponents.NetAuthority.Get(entry).LastAnticipationAck = upd.AnticipationAck

	err := s.Engine.Receive(ctx, upd.Payload)
	switch {
	case err == nil:
	case errors.Is(err, replication.ErrClosed):
	default:
		log.Printf("[netrecv] entity %d: %v", upd.NetworkID, err)
	}
}

// Pending returns how many updates are held for an entity not spawned yet.
func (r *Receiver) Pending(id esync.NetworkId) int {
	return len(r.pending[id])
}
