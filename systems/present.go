package systems

import (
	"github.com/automoto/netxform/components"
	"github.com/automoto/netxform/replication"
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/automoto/netxform/tags"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
	"github.com/yohamta/donburi/filter"
)

var observedQuery = donburi.NewQuery(filter.And(
	filter.Contains(tags.Replicated, components.Sync, netcomponents.NetPose),
	filter.Not(filter.Contains(tags.Owned)),
))

// NewPresentSystem returns an ECS system that advances every observed
// entity's interpolation and anticipation and writes the result to NetPose.
func NewPresentSystem(clock func() replication.Context) func(*ecs.ECS) {
	return func(e *ecs.ECS) {
		ctx := clock()
		observedQuery.Each(e.World, func(entry *donburi.Entry) {
			s := components.Sync.Get(entry)
			if s.Engine == nil || s.Engine.IsAuthority() {
				return
			}
			pose := s.Engine.Update(ctx)
			netcomponents.NetPose.SetValue(entry, netcomponents.PoseData(pose))
		})
	}
}
