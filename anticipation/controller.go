// Package anticipation lets a non-authoritative participant apply a value
// before the authority confirms it, and reconcile once authoritative data for
// that anticipation arrives.
package anticipation

import (
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

type State int

const (
	Idle State = iota
	Anticipated
	AwaitingAuthority
	Reconciling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Anticipated:
		return "anticipated"
	case AwaitingAuthority:
		return "awaiting-authority"
	case Reconciling:
		return "reconciling"
	}
	return "unknown"
}

// Outcome reports what OnAuthoritative did with a sample.
type Outcome int

const (
	Applied Outcome = iota // no anticipation in flight, value shown directly
	Reconciled
	IgnoredStale
)

// LerpFunc blends a toward b for smoothing.
type LerpFunc[T any] func(a, b T, t float64) T

// Event is passed to the reconcile callback. Displayed has already been
// snapped to Authoritative when the callback runs.
type Event[T any] struct {
	Previous         T // value displayed before reconciliation
	Anticipated      T
	AnticipationTime float64
	Authoritative    T
	AuthorityTime    float64
	Counter          uint64 // anticipation counter the authority acknowledged
	Stale            bool
	Pending          []Record[T] // anticipations newer than Counter
}

// ReconcileFunc decides how to converge on authoritative data. It may call
// Smooth, Reanticipate or Anticipate on the controller, or nothing to snap.
type ReconcileFunc[T any] func(c *Controller[T], ev Event[T])

// Controller tracks one anticipated value. It is driven by one tick loop and
// is not safe for concurrent use.
type Controller[T any] struct {
	lerp        LerpFunc[T]
	stale       netconfig.StaleDataHandling
	onReconcile ReconcileFunc[T]

	state     State
	displayed T

	anticipated      T
	anticipationTime float64
	lastCounter      uint64
	hasAnticipation  bool

	authoritative T
	authorityTime float64
	hasAuthority  bool

	history History[T]
	smooth  *blend[T]
}

type blend[T any] struct {
	from, to T
	tween    *gween.Tween
	after    State
}

func NewController[T any](initial T, lerp LerpFunc[T], stale netconfig.StaleDataHandling, onReconcile ReconcileFunc[T]) *Controller[T] {
	return &Controller[T]{
		lerp:          lerp,
		stale:         stale,
		onReconcile:   onReconcile,
		displayed:     initial,
		authoritative: initial,
	}
}

// Anticipate applies value immediately and stamps it with counter and the
// local time.
func (c *Controller[T]) Anticipate(value T, counter uint64, now float64) {
	c.smooth = nil
	c.anticipated = value
	c.anticipationTime = now
	if counter > c.lastCounter || !c.hasAnticipation {
		c.lastCounter = counter
	}
	c.hasAnticipation = true
	c.history.Store(counter, value, now)
	c.displayed = value
	c.state = Anticipated
}

// Reanticipate replaces the in-flight anticipation with a recomputed value
// without taking a new counter.
func (c *Controller[T]) Reanticipate(value T) {
	c.smooth = nil
	c.anticipated = value
	c.displayed = value
	if c.hasAnticipation {
		c.history.Store(c.lastCounter, value, c.anticipationTime)
	}
	c.state = Anticipated
}

// OnAuthoritative feeds an authoritative value. authCounter is the newest
// anticipation counter the authority had applied when it produced value.
func (c *Controller[T]) OnAuthoritative(value T, authCounter uint64, authTime float64) Outcome {
	if !c.hasAnticipation {
		c.authoritative = value
		c.authorityTime = authTime
		c.hasAuthority = true
		if c.smooth == nil {
			c.displayed = value
		}
		return Applied
	}

	stale := authCounter < c.lastCounter
	if stale && c.stale == netconfig.StaleIgnore {
		return IgnoredStale
	}

	c.authoritative = value
	c.authorityTime = authTime
	c.hasAuthority = true

	ev := Event[T]{
		Previous:         c.displayed,
		Anticipated:      c.anticipated,
		AnticipationTime: c.anticipationTime,
		Authoritative:    value,
		AuthorityTime:    authTime,
		Counter:          authCounter,
		Stale:            stale,
		Pending:          c.history.Unacknowledged(authCounter),
	}

	c.smooth = nil
	c.displayed = value
	c.state = Reconciling
	if !stale {
		c.hasAnticipation = false
	}

	if c.onReconcile != nil {
		c.onReconcile(c, ev)
	}

	if c.state == Reconciling && c.smooth == nil {
		c.state = c.settledState()
	}
	return Reconciled
}

func (c *Controller[T]) settledState() State {
	if c.hasAnticipation {
		return AwaitingAuthority
	}
	return Idle
}

// Smooth blends the displayed value from one value to another over duration
// seconds, then returns control to normal anticipation.
func (c *Controller[T]) Smooth(from, to T, duration float64) {
	if duration <= 0 {
		c.displayed = to
		c.smooth = nil
		return
	}
	c.smooth = &blend[T]{
		from:  from,
		to:    to,
		tween: gween.New(0, 1, float32(duration), ease.Linear),
		after: c.settledState(),
	}
	c.displayed = from
	c.state = Reconciling
}

// Update advances an in-flight smooth blend by dt seconds. A fresh
// anticipation moves to AwaitingAuthority once it has been shown for a frame.
func (c *Controller[T]) Update(dt float64) T {
	if c.state == Anticipated {
		c.state = AwaitingAuthority
	}
	if c.smooth == nil {
		return c.displayed
	}
	progress, done := c.smooth.tween.Update(float32(dt))
	if done {
		c.displayed = c.smooth.to
		c.state = c.smooth.after
		c.smooth = nil
		return c.displayed
	}
	c.displayed = c.lerp(c.smooth.from, c.smooth.to, float64(progress))
	return c.displayed
}

// Reset abandons any anticipation or blend and shows value. Used on authority
// change and despawn.
func (c *Controller[T]) Reset(value T) {
	c.smooth = nil
	c.hasAnticipation = false
	c.lastCounter = 0
	c.history.Reset()
	c.displayed = value
	c.anticipated = value
	c.authoritative = value
	c.hasAuthority = false
	c.state = Idle
}

func (c *Controller[T]) State() State { return c.state }

func (c *Controller[T]) Displayed() T { return c.displayed }

func (c *Controller[T]) IsSmoothing() bool { return c.smooth != nil }

// Anticipation returns the in-flight anticipated value, if any.
func (c *Controller[T]) Anticipation() (T, uint64, bool) {
	return c.anticipated, c.lastCounter, c.hasAnticipation
}

// Authoritative returns the last accepted authoritative value and its time.
func (c *Controller[T]) Authoritative() (T, float64, bool) {
	return c.authoritative, c.authorityTime, c.hasAuthority
}

func (c *Controller[T]) History() *History[T] { return &c.history }

func (c *Controller[T]) SetStaleDataHandling(s netconfig.StaleDataHandling) { c.stale = s }
