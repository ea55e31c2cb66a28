package systems

import (
	"log"

	"github.com/automoto/netxform/components"
	"github.com/automoto/netxform/replication"
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/automoto/netxform/tags"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
	"github.com/yohamta/donburi/filter"
)

var ownedQuery = donburi.NewQuery(filter.Contains(tags.Owned, components.Sync, netcomponents.NetPose))

// NewReplicateSystem returns an ECS system that feeds the pose of every
// entity this side owns into its TransformSync and runs one authority tick.
func NewReplicateSystem(clock func() replication.Context) func(*ecs.ECS) {
	return func(e *ecs.ECS) {
		ctx := clock()
		ownedQuery.Each(e.World, func(entry *donburi.Entry) {
			s := components.Sync.Get(entry)
			if s.Engine == nil || !s.Engine.IsAuthority() {
				return
			}
			if err := s.Engine.SetState(netcomponents.NetPose.Get(entry).Pose()); err != nil {
				log.Printf("[replication] set state: %v", err)
				return
			}
			if err := s.Engine.Tick(ctx); err != nil {
				log.Printf("[replication] tick %d: %v", ctx.Tick, err)
			}
		})
	}
}
