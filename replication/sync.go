// Package replication is the pose replication engine. On the authority it
// detects which channels changed, encodes them and hands records to a
// sender; on observers it decodes records into a buffered interpolator and an
// optional anticipation controller.
package replication

import (
	"github.com/automoto/netxform/anticipation"
	"github.com/automoto/netxform/config"
	"github.com/automoto/netxform/interpolation"
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/automoto/netxform/shared/posemath"
)

// Sender is the transport hand-off for encoded records. Send must not block.
type Sender interface {
	Send(payload []byte, reliability netconfig.Reliability) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(payload []byte, reliability netconfig.Reliability) error

func (f SenderFunc) Send(payload []byte, reliability netconfig.Reliability) error {
	return f(payload, reliability)
}

// Options configure a TransformSync.
type Options struct {
	Config     config.SyncConfig
	Thresholds ThresholdPolicy // nil uses the config thresholds
	Authority  bool
	Sender     Sender // required on the authority

	Initial     posemath.Pose
	InitialTime float64

	// Anticipation enables an anticipation controller on observers.
	Anticipation bool
	OnReconcile  anticipation.ReconcileFunc[posemath.Pose]
}

// Stats counts what a sync has done, for logging.
type Stats struct {
	Sent      int
	Closeouts int
	Resyncs   int
	Received  int
	Dropped   int
	Malformed int
	Unseeded  int
}

// TransformSync replicates the pose of one entity. Every method must be
// called from the tick loop that owns the entity.
type TransformSync struct {
	cfg       config.SyncConfig
	authority bool
	closed    bool
	sender    Sender

	// Authority side
	live            posemath.Pose
	inLocalSpace    bool
	tracker         *DirtyTracker
	codec           PositionCodec
	replicator      Replicator
	teleportPending bool
	resyncPending   bool
	lastResyncTick  uint32
	lastSendTime    float64
	hasSent         bool

	// Observer side
	interp           *interpolation.PoseInterpolator
	anticipation     *anticipation.Controller[posemath.Pose]
	anticipationHold float64 // send time of the last reconciled record
	onReconcile      anticipation.ReconcileFunc[posemath.Pose]
	half             *HalfCodec
	compressed       *CompressedCodec
	received         posemath.Pose
	receivedEuler    posemath.Vec3
	receivedLocal    bool
	newestSent       float64
	hasReceived      bool

	displayed posemath.Pose
	stats     Stats
}

func NewTransformSync(opts Options) (*TransformSync, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Authority && opts.Sender == nil {
		return nil, ErrNoSender
	}

	s := &TransformSync{
		cfg:          opts.Config,
		authority:    opts.Authority,
		sender:       opts.Sender,
		inLocalSpace: opts.Config.InLocalSpace,
		tracker:      NewDirtyTracker(opts.Config, opts.Thresholds),
		interp: interpolation.NewPose(interpolation.Options{
			Extrapolate:      opts.Config.Extrapolate,
			MaxExtrapolation: opts.Config.MaxExtrapolationSeconds,
		}),
		onReconcile: opts.OnReconcile,
	}
	if opts.Anticipation {
		s.enableAnticipation()
	}
	s.reset(opts.Initial, opts.InitialTime)
	return s, nil
}

func (s *TransformSync) enableAnticipation() {
	s.anticipation = anticipation.NewController(s.displayed, posemath.LerpPose, s.cfg.StaleDataHandling, s.onReconcile)
}

// reset makes pose the agreed starting point on both sides.
func (s *TransformSync) reset(pose posemath.Pose, time float64) {
	s.live = pose
	s.tracker.Reset(pose, s.inLocalSpace)
	s.codec = NewPositionCodec(s.cfg)
	s.replicator.Reset()
	s.teleportPending = false
	s.resyncPending = false
	s.hasSent = false

	s.interp.ResetTo(pose, time)
	s.anticipationHold = 0
	if s.anticipation != nil {
		s.anticipation.Reset(pose)
	}
	s.half = NewHalfCodec(s.cfg.MaxDeltaBeforeAdjustment)
	s.compressed = &CompressedCodec{}
	s.received = pose
	s.receivedEuler = pose.Rotation.Euler()
	s.receivedLocal = s.inLocalSpace
	s.newestSent = time
	s.hasReceived = false

	s.displayed = pose
}

// SetAuthority moves the authoritative role to or away from this side. It is
// a hard reset: anticipation and blends are abandoned, interpolation history
// is replaced by pose, and codec bases are reseeded by a full resync.
func (s *TransformSync) SetAuthority(isAuthority bool, pose posemath.Pose, time float64) error {
	if s.closed {
		return ErrClosed
	}
	if isAuthority && s.sender == nil {
		return ErrNoSender
	}
	s.authority = isAuthority
	s.reset(pose, time)
	s.resyncPending = isAuthority
	return nil
}

// SetSender replaces the transport hand-off.
func (s *TransformSync) SetSender(sender Sender) { s.sender = sender }

// Close abandons pending closeouts and blends. Every later call fails with ErrClosed.
func (s *TransformSync) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.replicator.Cancel()
	if s.anticipation != nil {
		s.anticipation.Reset(s.displayed)
	}
	return nil
}

func (s *TransformSync) IsAuthority() bool { return s.authority }

func (s *TransformSync) Closed() bool { return s.closed }

func (s *TransformSync) Config() config.SyncConfig { return s.cfg }

func (s *TransformSync) Stats() Stats { return s.stats }

// Pose returns the pose to present: the live pose on the authority, the
// reconstructed one on observers.
func (s *TransformSync) Pose() posemath.Pose {
	if s.authority {
		return s.live
	}
	return s.displayed
}

// Anticipation returns the observer's anticipation controller, or nil.
func (s *TransformSync) Anticipation() *anticipation.Controller[posemath.Pose] {
	return s.anticipation
}

func (s *TransformSync) ReplicatorState() ReplicatorState { return s.replicator.State() }
