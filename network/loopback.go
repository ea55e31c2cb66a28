package network

import (
	"fmt"
	"maps"
	"sync"

	"github.com/automoto/netxform/shared/messages"
	"github.com/automoto/netxform/shared/netconfig"
)

// Loopback is an in-memory link from a host to one observer. The host side
// sends with SendMessage, the observer side drains it as an Inbox.
type Loopback struct {
	mu sync.Mutex

	roster    Roster
	hasRoster bool
	poses     []messages.PoseUpdate
	ownership []messages.OwnershipChangeEvent
	despawns  []messages.DespawnEvent

	// Drop, when set, decides whether an unreliable pose update is lost.
	// Reliable updates are always delivered.
	Drop func(messages.PoseUpdate) bool

	sent    int
	dropped int
}

func NewLoopback() *Loopback {
	return &Loopback{}
}

// SendMessage queues msg for the observer. Rosters replace the previous one.
func (l *Loopback) SendMessage(msg any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch m := msg.(type) {
	case messages.PoseUpdate:
		l.sent++
		if l.Drop != nil && !isReliable(m.Reliability) && l.Drop(m) {
			l.dropped++
			return nil
		}
		m.Payload = append([]byte(nil), m.Payload...)
		l.poses = append(l.poses, m)
	case messages.OwnershipChangeEvent:
		l.ownership = append(l.ownership, m)
	case messages.DespawnEvent:
		l.despawns = append(l.despawns, m)
	case Roster:
		l.roster = maps.Clone(m)
		l.hasRoster = true
	default:
		return fmt.Errorf("loopback: unsupported message %T", msg)
	}
	return nil
}

func (l *Loopback) LatestRoster() (Roster, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.hasRoster {
		return nil, false
	}
	l.hasRoster = false
	return l.roster, true
}

func (l *Loopback) DrainPoseUpdates() []messages.PoseUpdate {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.poses
	l.poses = nil
	return out
}

func (l *Loopback) DrainOwnershipChanges() []messages.OwnershipChangeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.ownership
	l.ownership = nil
	return out
}

func (l *Loopback) DrainDespawns() []messages.DespawnEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.despawns
	l.despawns = nil
	return out
}

// Counts returns how many pose updates were sent and how many were dropped.
func (l *Loopback) Counts() (sent, dropped int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent, l.dropped
}

func isReliable(r netconfig.Reliability) bool {
	return r == netconfig.Reliable || r == netconfig.ReliableSequenced
}

// Pipe hands messages to a callback on its own goroutine, the way the
// websocket transport runs router handlers.
type Pipe struct {
	mu     sync.RWMutex
	closed bool
	ch     chan any
	done   chan struct{}
}

// NewPipe starts the delivery goroutine. Close must be called to stop it.
func NewPipe(buffer int, handle func(any)) *Pipe {
	p := &Pipe{
		ch:   make(chan any, buffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		for msg := range p.ch {
			handle(msg)
		}
	}()
	return p
}

// SendMessage queues msg, blocking while the buffer is full.
func (p *Pipe) SendMessage(msg any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrNotConnected
	}
	p.ch <- msg
	return nil
}

// Close delivers what is queued, then stops the goroutine.
func (p *Pipe) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	p.mu.Unlock()
	<-p.done
}
