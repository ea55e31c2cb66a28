package replication

import (
	"github.com/automoto/netxform/config"
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/automoto/netxform/shared/posemath"
)

// DirtyTracker remembers the last synchronized value of every channel and
// reports which ones moved past their threshold.
type DirtyTracker struct {
	policy ThresholdPolicy

	positionAxes [3]bool
	rotationAxes [3]bool
	scaleAxes    [3]bool
	quaternion   bool

	// wholePosition makes any dirty position axis mark all three, for codecs
	// that encode the full vector.
	wholePosition bool

	lastPosition posemath.Vec3
	lastEuler    posemath.Vec3
	lastRotation posemath.Quat
	lastScale    posemath.Vec3
	lastLocal    bool
	seeded       bool
}

func NewDirtyTracker(cfg config.SyncConfig, policy ThresholdPolicy) *DirtyTracker {
	if policy == nil {
		policy = Thresholds{
			Position: cfg.PositionThreshold,
			RotAngle: cfg.RotAngleThreshold,
			Scale:    cfg.ScaleThreshold,
		}
	}
	return &DirtyTracker{
		policy:        policy,
		positionAxes:  cfg.PositionAxes(),
		rotationAxes:  cfg.RotationAxes(),
		scaleAxes:     cfg.ScaleAxes(),
		quaternion:    cfg.UseQuaternionSynchronization,
		wholePosition: cfg.Precision == netconfig.PrecisionHalf || cfg.Compression == netconfig.CompressionSmallestThree,
		lastRotation:  posemath.Identity(),
		lastScale:     posemath.One(),
	}
}

// Check compares pose against the last synchronized values. Flagged channels
// have their last value updated; the rest are left untouched. spaceChanged is
// true when the reference frame differs from the last check.
func (t *DirtyTracker) Check(pose posemath.Pose, inLocalSpace bool) (flags netconfig.AxisFlags, spaceChanged bool) {
	flags.Set(netconfig.InLocalSpace, inLocalSpace)
	spaceChanged = t.seeded && inLocalSpace != t.lastLocal
	if spaceChanged {
		// Every synchronized value is now expressed in the other frame.
		return t.Reset(pose, inLocalSpace) | netconfig.SpaceChanged, true
	}
	t.lastLocal = inLocalSpace

	for i, axis := range posemath.Axes {
		if !t.positionAxes[i] {
			continue
		}
		last := posemath.Component(t.lastPosition, axis)
		cur := posemath.Component(pose.Position, axis)
		if !t.seeded || t.policy.PositionExceeds(axis, last, cur) {
			flags |= netconfig.PositionBits[i]
		}
	}
	if flags.Any(netconfig.AllPosition) && t.wholePosition {
		flags |= netconfig.AllPosition
	}
	for i, bit := range netconfig.PositionBits {
		if flags.Has(bit) {
			t.lastPosition = posemath.WithComponent(t.lastPosition, posemath.Axes[i], posemath.Component(pose.Position, posemath.Axes[i]))
		}
	}

	if t.quaternion {
		if t.anyRotation() && (!t.seeded || t.policy.RotationExceeds(t.lastRotation, pose.Rotation)) {
			flags |= netconfig.AllRotation
			t.lastRotation = pose.Rotation
		}
	} else {
		euler := pose.Rotation.Euler()
		for i, axis := range posemath.Axes {
			if !t.rotationAxes[i] {
				continue
			}
			last := posemath.Component(t.lastEuler, axis)
			cur := posemath.Component(euler, axis)
			if !t.seeded || t.policy.AngleExceeds(axis, last, cur) {
				flags |= netconfig.RotationBits[i]
				t.lastEuler = posemath.WithComponent(t.lastEuler, axis, cur)
			}
		}
	}

	for i, axis := range posemath.Axes {
		if !t.scaleAxes[i] {
			continue
		}
		last := posemath.Component(t.lastScale, axis)
		cur := posemath.Component(pose.Scale, axis)
		if !t.seeded || t.policy.ScaleExceeds(axis, last, cur) {
			flags |= netconfig.ScaleBits[i]
			t.lastScale = posemath.WithComponent(t.lastScale, axis, cur)
		}
	}

	t.seeded = true
	return flags, spaceChanged
}

// Reset makes pose the last synchronized state and returns the flags that
// describe every synchronized channel, for teleports and resyncs.
func (t *DirtyTracker) Reset(pose posemath.Pose, inLocalSpace bool) netconfig.AxisFlags {
	t.lastPosition = pose.Position
	t.lastRotation = pose.Rotation
	t.lastEuler = pose.Rotation.Euler()
	t.lastScale = pose.Scale
	t.lastLocal = inLocalSpace
	t.seeded = true
	return t.AllFlags(inLocalSpace)
}

// AllFlags returns the bits of every synchronized channel.
func (t *DirtyTracker) AllFlags(inLocalSpace bool) netconfig.AxisFlags {
	var flags netconfig.AxisFlags
	flags.Set(netconfig.InLocalSpace, inLocalSpace)
	flags |= t.enabledPosition()
	if t.wholePosition && flags.Any(netconfig.AllPosition) {
		flags |= netconfig.AllPosition
	}
	if t.quaternion {
		if t.anyRotation() {
			flags |= netconfig.AllRotation
		}
	} else {
		for i, on := range t.rotationAxes {
			if on {
				flags |= netconfig.RotationBits[i]
			}
		}
	}
	for i, on := range t.scaleAxes {
		if on {
			flags |= netconfig.ScaleBits[i]
		}
	}
	return flags
}

func (t *DirtyTracker) enabledPosition() netconfig.AxisFlags {
	var flags netconfig.AxisFlags
	for i, on := range t.positionAxes {
		if on {
			flags |= netconfig.PositionBits[i]
		}
	}
	return flags
}

func (t *DirtyTracker) anyRotation() bool {
	return t.rotationAxes[0] || t.rotationAxes[1] || t.rotationAxes[2]
}

// LastPosition returns the last synchronized position.
func (t *DirtyTracker) LastPosition() posemath.Vec3 { return t.lastPosition }

func (t *DirtyTracker) LastScale() posemath.Vec3 { return t.lastScale }
