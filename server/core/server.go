package core

import (
	"fmt"
	"log"
	"sync"

	"github.com/automoto/netxform/archetypes"
	"github.com/automoto/netxform/config"
	"github.com/automoto/netxform/replication"
	"github.com/automoto/netxform/shared/messages"
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/automoto/netxform/systems"
	"github.com/google/uuid"
	"github.com/leap-fish/necs/esync"
	"github.com/leap-fish/necs/esync/srvsync"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

// HostID is the owner id of entities the host is the authority for.
const HostID = "host"

// Options configure a Server.
type Options struct {
	Name     string
	Version  string // Required client version, empty accepts any
	TickRate int
	Sync     config.SyncConfig
	// Movers spawns the demo entities at startup.
	Movers bool
}

// peer is the host's view of a connected client.
type peer interface {
	Id() string
	SendMessage(msg any) error
}

type session struct {
	peer   peer
	id     string
	name   string
	joined bool
	entity donburi.Entity
	netID  esync.NetworkId
}

// Server is the authoritative host. Router callbacks only queue commands;
// all world access happens on the loop goroutine.
type Server struct {
	opts      Options
	world     donburi.World
	ecs       *ecs.ECS
	loop      *GameLoop
	transport *transports.WsServerTransport
	settings  systems.SyncSettings

	tick uint32

	mu       sync.Mutex
	commands []func()

	// Loop goroutine only.
	sessions map[peer]*session
}

// NewServer creates a new replication host
func NewServer(opts Options) (*Server, error) {
	if opts.TickRate <= 0 {
		opts.TickRate = config.Network.TickRate
	}
	opts.Sync.TickRate = opts.TickRate
	if err := opts.Sync.Validate(); err != nil {
		return nil, err
	}

	world := donburi.NewWorld()
	s := &Server{
		opts:     opts,
		world:    world,
		ecs:      ecs.NewECS(world),
		settings: systems.SyncSettings{Config: opts.Sync},
		sessions: make(map[peer]*session),
	}
	s.loop = NewGameLoop(s, opts.TickRate)

	// Set up the world for esync
	srvsync.UseEsync(world)

	s.ecs.AddSystem(updateMovers(s.Context))
	s.ecs.AddSystem(systems.NewReplicateSystem(s.Context))
	s.ecs.AddSystem(systems.NewPresentSystem(s.Context))

	if opts.Movers {
		if err := s.spawnMovers(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start runs the loop and serves websocket clients on port. It blocks until
// the transport stops.
func (s *Server) Start(port uint) error {
	s.setupRouterCallbacks()
	s.loop.Start()

	s.transport = transports.NewWsServerTransport(port, "", nil)
	return s.transport.Start()
}

// Stop shuts the loop down.
func (s *Server) Stop() {
	s.loop.Stop()
}

func (s *Server) setupRouterCallbacks() {
	router.OnConnect(func(client *router.NetworkClient) {
		log.Printf("[server] client connected: %s", client.Id())
	})

	router.OnDisconnect(func(client *router.NetworkClient, err error) {
		if err != nil {
			log.Printf("[server] client %s disconnected with error: %v", client.Id(), err)
		} else {
			log.Printf("[server] client %s disconnected", client.Id())
		}
		s.enqueue(func() { s.handleLeave(client) })
	})

	router.On(func(client *router.NetworkClient, req messages.JoinRequest) {
		s.enqueue(func() { s.handleJoin(client, req) })
	})

	router.On(func(client *router.NetworkClient, upd messages.PoseUpdate) {
		s.enqueue(func() { s.handlePoseUpdate(client, upd) })
	})

	router.On(func(client *router.NetworkClient, req messages.PoseRequest) {
		s.enqueue(func() { s.handlePoseRequest(client, req) })
	})

	router.OnError(func(client *router.NetworkClient, err error) {
		log.Printf("[server] client error: %v", err)
	})
}

func (s *Server) enqueue(cmd func()) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
}

// ProcessCommands applies everything the router queued since the last tick.
func (s *Server) ProcessCommands() {
	s.mu.Lock()
	cmds := s.commands
	s.commands = nil
	s.mu.Unlock()

	for _, cmd := range cmds {
		cmd()
	}
}

// Context is the replication context of the current tick.
func (s *Server) Context() replication.Context {
	now := s.ServerTime()
	return replication.Context{
		Tick:       s.tick,
		ServerTime: now,
		LocalTime:  now,
		DeltaTime:  1 / float64(s.opts.TickRate),
	}
}

// ServerTime is the host clock in seconds, derived from the tick count.
func (s *Server) ServerTime() float64 {
	return float64(s.tick) / float64(s.opts.TickRate)
}

// Step runs one host tick: queued commands, movers, replication, snapshot sync.
func (s *Server) Step() {
	s.ProcessCommands()
	s.tick++
	s.ecs.Update()
}

func (s *Server) handleJoin(p peer, req messages.JoinRequest) {
	if s.opts.Version != "" && req.Version != s.opts.Version {
		log.Printf("[server] rejecting %s: version %q, want %q", p.Id(), req.Version, s.opts.Version)
		s.send(p, messages.JoinRejected{Reason: fmt.Sprintf("version mismatch: server requires %s", s.opts.Version)})
		return
	}
	if sess, ok := s.sessions[p]; ok && sess.joined {
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sess := &session{peer: p, id: sessionID, name: req.ClientName}

	entry, id, err := s.spawn(netcomponents.NetEntityData{
		Kind:          "avatar",
		OwnerID:       sessionID,
		FoldThreshold: s.opts.Sync.MaxDeltaBeforeAdjustment,
	}, false)
	if err != nil {
		log.Printf("[server] spawning avatar for %s: %v", p.Id(), err)
		s.send(p, messages.JoinRejected{Reason: "could not spawn entity"})
		return
	}
	sess.entity = entry.Entity()
	sess.netID = id
	sess.joined = true
	s.sessions[p] = sess

	s.send(p, messages.JoinAccepted{
		NetworkID:  id,
		SessionID:  sessionID,
		ServerName: s.opts.Name,
		TickRate:   s.opts.TickRate,
		ServerTime: s.ServerTime(),
	})

	// The newcomer has no codec state; make every host-owned entity resend in full.
	s.resyncOwned()
	log.Printf("[server] %s joined as %q (session %s, entity %d)", p.Id(), req.ClientName, sessionID, id)
}

func (s *Server) handleLeave(p peer) {
	sess, ok := s.sessions[p]
	if !ok {
		return
	}
	delete(s.sessions, p)
	if !sess.joined || !s.world.Valid(sess.entity) {
		return
	}
	entry := s.world.Entry(sess.entity)
	systems.CloseSync(entry)
	entry.Remove()
	s.broadcast(messages.DespawnEvent{NetworkID: sess.netID}, nil)
	log.Printf("[server] removed entity %d of session %s", sess.netID, sess.id)

	// Anything else the session owned goes back to the host.
	for _, id := range ownedBy(s.world, sess.id) {
		if err := s.TransferOwnership(id, HostID); err != nil {
			log.Printf("[server] reclaiming entity %d: %v", id, err)
		}
	}
}

// handlePoseUpdate applies an update from the client that owns the entity
// and relays it to everyone else.
func (s *Server) handlePoseUpdate(p peer, upd messages.PoseUpdate) {
	sess, ok := s.sessions[p]
	if !ok || !sess.joined {
		return
	}
	entry, ok := systems.FindEntry(s.world, upd.NetworkID)
	if !ok {
		return
	}
	if netcomponents.NetEntity.Get(entry).OwnerID != sess.id {
		log.Printf("[server] %s sent an update for entity %d it does not own", p.Id(), upd.NetworkID)
		return
	}
	engine := engineOf(entry)
	if engine == nil {
		return
	}
	ctx := s.Context()
	ctx.LastAnticipationAck = upd.AnticipationAck
	if err := engine.Receive(ctx, upd.Payload); err != nil {
		log.Printf("[server] entity %d: %v", upd.NetworkID, err)
		return
	}
	s.broadcast(upd, p)
}

func (s *Server) handlePoseRequest(p peer, req messages.PoseRequest) {
	if sess, ok := s.sessions[p]; !ok || !sess.joined {
		return
	}
	if err := systems.ApplyPoseRequest(s.world, req); err != nil {
		log.Printf("[server] pose request from %s: %v", p.Id(), err)
	}
}

// TransferOwnership gives authority over an entity to a session, or back to
// the host with HostID. The entity's current pose is the reset point.
func (s *Server) TransferOwnership(id esync.NetworkId, owner string) error {
	entry, ok := systems.FindEntry(s.world, id)
	if !ok {
		return fmt.Errorf("%w: %d", systems.ErrUnknownEntity, id)
	}
	pose := netcomponents.NetPose.Get(entry).Pose()
	if err := systems.SetOwnership(entry, id, owner == HostID, s, pose, s.ServerTime()); err != nil {
		return err
	}
	netcomponents.NetEntity.Get(entry).OwnerID = owner
	s.broadcast(messages.OwnershipChangeEvent{
		NetworkID: id,
		OwnerID:   owner,
		X:         pose.Position.X,
		Y:         pose.Position.Y,
		Z:         pose.Position.Z,
	}, nil)
	return nil
}

// spawn creates a replicated entity, registers it for snapshot sync and
// attaches its engine. Host-owned entities broadcast through the server.
func (s *Server) spawn(data netcomponents.NetEntityData, hostOwned bool, cs ...donburi.IComponentType) (*donburi.Entry, esync.NetworkId, error) {
	entry := archetypes.Replicated.Spawn(s.world, cs...)
	netcomponents.NetEntity.SetValue(entry, data)
	pose := netcomponents.NetPose.Get(entry)
	pose.Position.X, pose.Position.Y, pose.Position.Z = data.SpawnX, data.SpawnY, data.SpawnZ

	entity := entry.Entity()
	if err := srvsync.NetworkSync(s.world, &entity, netcomponents.NetEntity); err != nil {
		entry.Remove()
		return nil, 0, fmt.Errorf("network sync: %w", err)
	}
	entry = s.world.Entry(entity)
	nid := esync.GetNetworkId(entry)
	if nid == nil {
		entry.Remove()
		return nil, 0, fmt.Errorf("entity has no network id")
	}
	if err := systems.AttachSync(entry, *nid, s.settings, hostOwned, s, s.ServerTime()); err != nil {
		entry.Remove()
		return nil, 0, err
	}
	return entry, *nid, nil
}

func (s *Server) resyncOwned() {
	ownedEngines(s.world, func(engine *replication.TransformSync) {
		engine.RequestResync()
	})
}

// SendMessage broadcasts msg to every joined client. It makes the server the
// outbox of host-owned entities.
func (s *Server) SendMessage(msg any) error {
	s.broadcast(msg, nil)
	return nil
}

func (s *Server) broadcast(msg any, except peer) {
	for p, sess := range s.sessions {
		if !sess.joined || p == except {
			continue
		}
		s.send(p, msg)
	}
}

func (s *Server) send(p peer, msg any) {
	if err := p.SendMessage(msg); err != nil {
		log.Printf("[server] send %T to %s: %v", msg, p.Id(), err)
	}
}

// World returns the ECS world
func (s *Server) World() donburi.World {
	return s.world
}

// ClientCount returns the number of joined clients
func (s *Server) ClientCount() int {
	n := 0
	for _, sess := range s.sessions {
		if sess.joined {
			n++
		}
	}
	return n
}
