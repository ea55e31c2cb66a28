package network

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/automoto/netxform/shared/messages"
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/leap-fish/necs/esync"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
)

type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateJoined
	StateError
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateError:
		return "error"
	}
	return "unknown"
}

const poseQueueSize = 1024

// Client manages a WebSocket connection to a replication host.
// All shared fields are protected by mu (router callbacks run on necs goroutines).
type Client struct {
	mu sync.RWMutex

	state      ClientState
	lastError  error
	networkID  esync.NetworkId
	sessionID  string
	serverName string
	tickRate   int
	conn       *websocket.Conn

	serverTime float64
	joinedAt   time.Time

	rosterCh    chan Roster // size-1 buffered; latest wins
	poseCh      chan messages.PoseUpdate
	ownershipCh chan messages.OwnershipChangeEvent
	despawnCh   chan messages.DespawnEvent
}

func NewClient() *Client {
	return &Client{
		state:       StateDisconnected,
		sessionID:   uuid.NewString(),
		rosterCh:    make(chan Roster, 1),
		poseCh:      make(chan messages.PoseUpdate, poseQueueSize),
		ownershipCh: make(chan messages.OwnershipChangeEvent, 16),
		despawnCh:   make(chan messages.DespawnEvent, 16),
	}
}

// Connect dials the host in a background goroutine and initiates the join handshake.
func (c *Client) Connect(address, version, name string) {
	c.mu.Lock()
	c.state = StateConnecting
	c.lastError = nil
	sessionID := c.sessionID
	c.mu.Unlock()

	router.OnConnect(func(_ *router.NetworkClient) {
		log.Println("[client] connected to host")
		c.mu.Lock()
		c.state = StateConnected
		c.mu.Unlock()

		err := c.SendMessage(messages.JoinRequest{
			Version:    version,
			ClientName: name,
			SessionID:  sessionID,
		})
		if err != nil {
			c.setError(fmt.Errorf("failed to send join request: %w", err))
		}
	})

	router.On(func(_ *router.NetworkClient, msg messages.JoinAccepted) {
		log.Printf("[client] join accepted: networkID=%d server=%s tickRate=%d",
			msg.NetworkID, msg.ServerName, msg.TickRate)
		c.mu.Lock()
		c.networkID = msg.NetworkID
		if msg.SessionID != "" {
			c.sessionID = msg.SessionID
		}
		c.serverName = msg.ServerName
		c.tickRate = msg.TickRate
		c.serverTime = msg.ServerTime
		c.joinedAt = time.Now()
		c.state = StateJoined
		c.mu.Unlock()
	})

	router.On(func(_ *router.NetworkClient, msg messages.JoinRejected) {
		log.Printf("[client] join rejected: %s", msg.Reason)
		c.setError(fmt.Errorf("join rejected: %s", msg.Reason))
	})

	router.On(func(_ *router.NetworkClient, snapshot esync.WorldSnapshot) {
		roster := rosterFromSnapshot(snapshot)
		select { // drain stale, push latest
		case <-c.rosterCh:
		default:
		}
		c.rosterCh <- roster
	})

	router.On(func(_ *router.NetworkClient, msg messages.PoseUpdate) {
		select {
		case c.poseCh <- msg:
		default:
			log.Printf("[client] pose queue full, dropping update for %d", msg.NetworkID)
		}
	})

	router.On(func(_ *router.NetworkClient, evt messages.OwnershipChangeEvent) {
		select {
		case c.ownershipCh <- evt:
		default:
		}
	})

	router.On(func(_ *router.NetworkClient, evt messages.DespawnEvent) {
		select {
		case c.despawnCh <- evt:
		default:
		}
	})

	router.OnDisconnect(func(_ *router.NetworkClient, err error) {
		log.Printf("[client] disconnected: %v", err)
		c.mu.Lock()
		if c.state != StateError {
			c.state = StateDisconnected
		}
		c.conn = nil
		c.mu.Unlock()
	})

	router.OnError(func(_ *router.NetworkClient, err error) {
		log.Printf("[client] error: %v", err)
	})

	go func() {
		transport := transports.NewWsClientTransport("ws://" + address)
		err := transport.Start(func(conn *websocket.Conn) {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
		})
		if err != nil {
			c.setError(fmt.Errorf("connection failed: %w", err))
		}
	}()
}

// rosterFromSnapshot keeps the entity description of every snapshot entry.
// Entries whose components cannot be decoded still count as present.
func rosterFromSnapshot(snapshot esync.WorldSnapshot) Roster {
	roster := make(Roster, len(snapshot))
	for _, ent := range snapshot {
		var data netcomponents.NetEntityData
		for _, componentBytes := range ent.State {
			instance, err := esync.Mapper.Deserialize(componentBytes)
			if err != nil {
				continue
			}
			if d, ok := instance.(netcomponents.NetEntityData); ok {
				data = d
			}
		}
		roster[ent.Id] = data
	}
	return roster
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.state = StateDisconnected
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.CloseNow()
	}

	router.ResetRouter()
}

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Client) NetworkID() esync.NetworkId {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.networkID
}

// SessionID identifies this client in ownership events.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Client) TickRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tickRate
}

// ServerTime estimates the host clock from the time sent at join.
func (c *Client) ServerTime() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.joinedAt.IsZero() {
		return 0
	}
	return c.serverTime + time.Since(c.joinedAt).Seconds()
}

// LatestRoster returns the most recent roster, if a new one arrived. Non-blocking.
func (c *Client) LatestRoster() (Roster, bool) {
	select {
	case r := <-c.rosterCh:
		return r, true
	default:
		return nil, false
	}
}

// DrainPoseUpdates returns all pending pose updates in arrival order, non-blocking.
func (c *Client) DrainPoseUpdates() []messages.PoseUpdate {
	return drainChan(c.poseCh)
}

func (c *Client) DrainOwnershipChanges() []messages.OwnershipChangeEvent {
	return drainChan(c.ownershipCh)
}

func (c *Client) DrainDespawns() []messages.DespawnEvent {
	return drainChan(c.despawnCh)
}

func (c *Client) SendMessage(msg any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	payload, err := router.Serialize(msg)
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}

	return conn.Write(context.Background(), websocket.MessageBinary, payload)
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = err
	c.mu.Unlock()
}
