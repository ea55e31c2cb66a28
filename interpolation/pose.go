package interpolation

import "github.com/automoto/netxform/shared/posemath"

// PoseInterpolator keeps one channel per pose component. All three channels
// are fed together so they stay bracketed by the same samples.
type PoseInterpolator struct {
	Position *Interpolator[posemath.Vec3]
	Rotation *Interpolator[posemath.Quat]
	Scale    *Interpolator[posemath.Vec3]
}

func NewPose(opts Options) *PoseInterpolator {
	return &PoseInterpolator{
		Position: NewVector(opts),
		Rotation: NewQuat(opts),
		Scale:    NewVector(opts),
	}
}

func (p *PoseInterpolator) AddMeasurement(pose posemath.Pose, sentTime float64) bool {
	ok := p.Position.AddMeasurement(pose.Position, sentTime)
	p.Rotation.AddMeasurement(pose.Rotation, sentTime)
	p.Scale.AddMeasurement(pose.Scale, sentTime)
	return ok
}

func (p *PoseInterpolator) Update(deltaTime, renderTime, serverTime float64) posemath.Pose {
	return posemath.Pose{
		Position: p.Position.Update(deltaTime, renderTime, serverTime),
		Rotation: p.Rotation.Update(deltaTime, renderTime, serverTime).Normalize(),
		Scale:    p.Scale.Update(deltaTime, renderTime, serverTime),
	}
}

func (p *PoseInterpolator) ResetTo(pose posemath.Pose, time float64) {
	p.Position.ResetTo(pose.Position, time)
	p.Rotation.ResetTo(pose.Rotation, time)
	p.Scale.ResetTo(pose.Scale, time)
}

// Current returns the last computed pose, or false before any sample.
func (p *PoseInterpolator) Current() (posemath.Pose, bool) {
	pos, ok := p.Position.Current()
	if !ok {
		return posemath.IdentityPose(), false
	}
	rot, _ := p.Rotation.Current()
	scale, _ := p.Scale.Current()
	return posemath.Pose{Position: pos, Rotation: rot, Scale: scale}, true
}

func (p *PoseInterpolator) Clear() {
	p.Position.Clear()
	p.Rotation.Clear()
	p.Scale.Clear()
}
