package systems

import (
	"fmt"

	"github.com/automoto/netxform/components"
	"github.com/automoto/netxform/network"
	"github.com/automoto/netxform/replication"
	"github.com/automoto/netxform/shared/messages"
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/automoto/netxform/shared/posemath"
	"github.com/leap-fish/necs/esync"
	"github.com/yohamta/donburi"
)

// RequestMove moves an entity to target. On an owned entity the pose is
// simply written. Otherwise the move is anticipated locally and a
// PoseRequest stamped with a fresh counter goes to the authority.
func RequestMove(w donburi.World, id esync.NetworkId, target posemath.Vec3, ctx replication.Context, out network.Outbox) error {
	entry, ok := FindEntry(w, id)
	if !ok || !entry.HasComponent(components.Sync) {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	s := components.Sync.Get(entry)
	pose := netcomponents.NetPose.Get(entry)

	if s.Engine.IsAuthority() {
		pose.Position = target
		return nil
	}

	ctx.AnticipationCounter = s.Acks.NextCounter()
	if err := s.Engine.AnticipatePosition(ctx, target); err != nil {
		return err
	}
	pose.Position = target
	if out == nil {
		return network.ErrNotConnected
	}
	return out.SendMessage(messages.NewPoseRequest(id, ctx.AnticipationCounter, target.X, target.Y, target.Z))
}

// ApplyPoseRequest is the authority side of RequestMove: it writes the
// requested position and records the counter so outgoing updates ack it.
// Requests older than the last applied one are ignored.
func ApplyPoseRequest(w donburi.World, req messages.PoseRequest) error {
	entry, ok := FindEntry(w, req.NetworkID)
	if !ok || !entry.HasComponent(components.Sync) {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, req.NetworkID)
	}
	s := components.Sync.Get(entry)
	if !s.Engine.IsAuthority() {
		return replication.ErrNotAuthoritative
	}
	if req.Sequence <= s.Acks.Applied {
		return nil
	}
	s.Acks.Applied = req.Sequence
	netcomponents.NetAuthority.Get(entry).LastAnticipationAck = req.Sequence

	pose := netcomponents.NetPose.Get(entry)
	target := posemath.V(req.X, req.Y, req.Z)
	if target == pose.Position && !req.Teleport {
		// Nothing will be dirty; send a record anyway so the ack arrives.
		s.Engine.RequestResync()
		return nil
	}
	pose.Position = target
	if req.Teleport {
		return s.Engine.Teleport(pose.Pose())
	}
	return nil
}
