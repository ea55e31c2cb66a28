package core

import (
	"log"
	"math"

	"github.com/automoto/netxform/components"
	"github.com/automoto/netxform/replication"
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/automoto/netxform/shared/posemath"
	"github.com/automoto/netxform/tags"
	"github.com/leap-fish/necs/esync"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
	"github.com/yohamta/donburi/filter"
)

const (
	platformTravel  = 8
	platformSeconds = 2
	blinkSeconds    = 2
)

var (
	moverQuery = donburi.NewQuery(filter.Contains(tags.Mover, components.Mover, netcomponents.NetPose, tags.Owned))
	ownedQuery = donburi.NewQuery(filter.Contains(tags.Owned, components.Sync))
	netQuery   = donburi.NewQuery(filter.Contains(netcomponents.NetEntity, esync.NetworkIdComponent))
)

// demoMovers is the set of host-owned entities spawned at startup.
var demoMovers = []components.MoverData{
	{Kind: components.MoverOrbit, Radius: 20, Speed: 0.6},
	{Kind: components.MoverSpin, Center: posemath.V(-10, 0, 0), Speed: 90},
	{Kind: components.MoverPulse, Center: posemath.V(10, 0, 0), Speed: 2},
	{Kind: components.MoverPlatform, Center: posemath.V(0, 0, 30)},
	{Kind: components.MoverBlink, Center: posemath.V(0, 5, -30), Radius: 40},
}

func (s *Server) spawnMovers() error {
	for _, m := range demoMovers {
		data := netcomponents.NetEntityData{
			Kind:          m.Kind.String(),
			OwnerID:       HostID,
			SpawnX:        m.Center.X,
			SpawnY:        m.Center.Y,
			SpawnZ:        m.Center.Z,
			FoldThreshold: s.opts.Sync.MaxDeltaBeforeAdjustment,
		}
		entry, id, err := s.spawn(data, true, components.Mover, tags.Mover)
		if err != nil {
			return err
		}
		if m.Kind == components.MoverPlatform {
			m.From = float32(m.Center.Y)
			m.To = float32(m.Center.Y + platformTravel)
			m.Tween = gween.New(m.From, m.To, platformSeconds, ease.InOutQuad)
		}
		components.Mover.SetValue(entry, m)
		log.Printf("[server] spawned %s mover %d", m.Kind, id)
	}
	return nil
}

// updateMovers returns the system that animates host-owned demo entities.
func updateMovers(clock func() replication.Context) func(*ecs.ECS) {
	return func(e *ecs.ECS) {
		ctx := clock()
		moverQuery.Each(e.World, func(entry *donburi.Entry) {
			m := components.Mover.Get(entry)
			pose := netcomponents.NetPose.Get(entry)
			t := ctx.ServerTime

			switch m.Kind {
			case components.MoverOrbit:
				a := m.Speed*t + m.Phase
				pose.Position = posemath.Add(m.Center, posemath.V(m.Radius*math.Cos(a), 0, m.Radius*math.Sin(a)))
				// Face along the direction of travel.
				pose.Rotation = posemath.FromEuler(posemath.V(0, posemath.WrapAngle(-a*180/math.Pi), 0))
			case components.MoverSpin:
				pose.Rotation = posemath.FromEuler(posemath.V(0, posemath.WrapAngle(m.Speed*t), 0))
			case components.MoverPulse:
				f := 1 + 0.5*math.Sin(m.Speed*t)
				pose.Scale = posemath.V(f, f, f)
			case components.MoverPlatform:
				y, done := m.Tween.Update(float32(ctx.DeltaTime))
				pose.Position.Y = float64(y)
				if done {
					m.From, m.To = m.To, m.From
					m.Tween = gween.New(m.From, m.To, platformSeconds, ease.InOutQuad)
				}
			case components.MoverBlink:
				if t < m.NextBlink {
					return
				}
				m.NextBlink = t + blinkSeconds
				m.Away = !m.Away
				target := pose.Pose()
				target.Position = m.Center
				if m.Away {
					target.Position = posemath.Add(m.Center, posemath.V(m.Radius, 0, 0))
				}
				pose.Position = target.Position
				if engine := engineOf(entry); engine != nil {
					if err := engine.Teleport(target); err != nil {
						log.Printf("[server] teleport: %v", err)
					}
				}
			}
		})
	}
}

func engineOf(entry *donburi.Entry) *replication.TransformSync {
	if !entry.HasComponent(components.Sync) {
		return nil
	}
	return components.Sync.Get(entry).Engine
}

func ownedEngines(w donburi.World, fn func(*replication.TransformSync)) {
	ownedQuery.Each(w, func(entry *donburi.Entry) {
		if engine := engineOf(entry); engine != nil {
			fn(engine)
		}
	})
}

// ownedBy lists the network ids of entities whose owner is ownerID.
func ownedBy(w donburi.World, ownerID string) []esync.NetworkId {
	var ids []esync.NetworkId
	netQuery.Each(w, func(entry *donburi.Entry) {
		if netcomponents.NetEntity.Get(entry).OwnerID != ownerID {
			return
		}
		if id := esync.GetNetworkId(entry); id != nil {
			ids = append(ids, *id)
		}
	})
	return ids
}
