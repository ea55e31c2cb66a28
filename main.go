package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/netxform/anticipation"
	"github.com/automoto/netxform/config"
	"github.com/automoto/netxform/network"
	"github.com/automoto/netxform/replication"
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/automoto/netxform/shared/posemath"
	"github.com/automoto/netxform/shared/protocol"
	"github.com/automoto/netxform/systems"
	"github.com/leap-fish/necs/esync"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
	"github.com/yohamta/donburi/filter"
)

var printQuery = donburi.NewQuery(filter.Contains(esync.NetworkIdComponent, netcomponents.NetEntity, netcomponents.NetPose))

func main() {
	addr := flag.String("addr", "ws://localhost:7373", "Host websocket address")
	name := flag.String("name", "observer", "Client name sent when joining")
	version := flag.String("version", config.Network.Version, "Client version")
	syncPath := flag.String("config", "", "Path to a JSON sync config, must match the host")
	profile := flag.String("profile", "", "Named sync profile to load")
	anticipate := flag.Bool("anticipate", false, "Periodically anticipate moves of the spin mover")
	printEvery := flag.Duration("print", time.Second, "How often to log entity poses")
	flag.Parse()

	// Register network components for snapshot deserialization
	if err := protocol.RegisterComponents(); err != nil {
		log.Fatalf("Failed to register network components: %v", err)
	}

	syncCfg, err := config.ResolveSync(*syncPath, *profile)
	if err != nil {
		log.Fatalf("Failed to load sync config: %v", err)
	}

	client := network.NewClient()
	client.Connect(*addr, *version, *name)

	start := time.Now()
	clock := func() replication.Context {
		rate := client.TickRate()
		if rate <= 0 {
			rate = syncCfg.TickRate
		}
		now := client.ServerTime()
		return replication.Context{
			Tick:       uint32(now * float64(rate)),
			ServerTime: now,
			LocalTime:  time.Since(start).Seconds(),
			DeltaTime:  1 / float64(rate),
		}
	}

	world := donburi.NewWorld()
	e := ecs.NewECS(world)
	e.AddSystem(systems.NewReceiveSystem(client, systems.ReceiveOptions{
		Settings: systems.SyncSettings{
			Config:       syncCfg,
			Anticipation: *anticipate,
			OnReconcile: func(c *anticipation.Controller[posemath.Pose], ev anticipation.Event[posemath.Pose]) {
				log.Printf("[client] reconciled ack %d: %v -> %v", ev.Counter, ev.Anticipated.Position, ev.Authoritative.Position)
				// Ease out of the anticipated pose over a quarter second.
				c.Smooth(ev.Previous, ev.Authoritative, 0.25)
			},
		},
		LocalID: client.SessionID,
		Outbox:  client,
		Clock:   clock,
	}))
	e.AddSystem(systems.NewPresentSystem(clock))
	e.AddSystem(systems.NewReplicateSystem(clock))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(syncCfg.TickRate))
	defer ticker.Stop()
	printTicker := time.NewTicker(*printEvery)
	defer printTicker.Stop()
	requestTicker := time.NewTicker(3 * time.Second)
	defer requestTicker.Stop()

	for {
		select {
		case <-sigChan:
			log.Println("[client] shutting down")
			client.Disconnect()
			return
		case <-ticker.C:
			if client.State() == network.StateError {
				log.Fatalf("[client] %v", client.LastError())
			}
			e.Update()
		case <-printTicker.C:
			printPoses(world)
		case <-requestTicker.C:
			if *anticipate && client.State() == network.StateJoined {
				requestSpin(world, clock(), client)
			}
		}
	}
}

func printPoses(w donburi.World) {
	printQuery.Each(w, func(entry *donburi.Entry) {
		id := esync.GetNetworkId(entry)
		if id == nil {
			return
		}
		data := netcomponents.NetEntity.Get(entry)
		pose := netcomponents.NetPose.Get(entry)
		log.Printf("[client] %d %-8s pos=(%.2f, %.2f, %.2f) scale=%.2f",
			*id, data.Kind, pose.Position.X, pose.Position.Y, pose.Position.Z, pose.Scale.X)
	})
}

var spinTargets = []posemath.Vec3{posemath.V(-10, 0, 0), posemath.V(-10, 4, 0)}

// requestSpin moves the spin mover between two points through anticipation.
func requestSpin(w donburi.World, ctx replication.Context, out network.Outbox) {
	printQuery.Each(w, func(entry *donburi.Entry) {
		if netcomponents.NetEntity.Get(entry).Kind != "spin" {
			return
		}
		id := *esync.GetNetworkId(entry)
		target := spinTargets[0]
		if posemath.ApproxEqual(netcomponents.NetPose.Get(entry).Position, target, 0.5) {
			target = spinTargets[1]
		}
		if err := systems.RequestMove(w, id, target, ctx, out); err != nil {
			log.Printf("[client] request move: %v", err)
		}
	})
}
