// Package interpolation turns timestamped authoritative samples into a value
// for any render time: interpolated between bracketing samples, held or
// extrapolated across gaps.
package interpolation

import (
	"math"
	"sort"

	"github.com/automoto/netxform/shared/posemath"
)

// LerpFunc blends a toward b. It must accept t outside [0, 1] so the
// interpolator can extrapolate.
type LerpFunc[T any] func(a, b T, t float64) T

// Sample is a value stamped with the time the authority sent it.
type Sample[T any] struct {
	Value T
	Time  float64
}

// Options tune an Interpolator.
type Options struct {
	Extrapolate      bool
	MaxExtrapolation float64 // Seconds past the newest sample
	MaxSamples       int     // Buffer cap, oldest samples are dropped first
	SmoothingSeconds float64 // Output follows the target with this time constant, 0 = exact
}

const defaultMaxSamples = 32

// Interpolator buffers samples for one channel. It is not safe for
// concurrent use; each entity's channels belong to one tick loop.
type Interpolator[T any] struct {
	lerp LerpFunc[T]
	opts Options

	buffer  []Sample[T]
	prev    Sample[T] // last sample dropped from the front, for extrapolation
	hasPrev bool

	current  T
	hasValue bool
	consumed float64 // start time of the last bracket used
}

func New[T any](lerp LerpFunc[T], opts Options) *Interpolator[T] {
	if opts.MaxSamples < 2 {
		opts.MaxSamples = defaultMaxSamples
	}
	return &Interpolator[T]{
		lerp:     lerp,
		opts:     opts,
		buffer:   make([]Sample[T], 0, opts.MaxSamples),
		consumed: math.Inf(-1),
	}
}

func NewScalar(opts Options) *Interpolator[float64] {
	return New(posemath.LerpScalar, opts)
}

// NewAngle interpolates degrees along the shortest arc.
func NewAngle(opts Options) *Interpolator[float64] {
	return New(posemath.LerpAngle, opts)
}

func NewVector(opts Options) *Interpolator[posemath.Vec3] {
	return New(posemath.Lerp, opts)
}

func NewQuat(opts Options) *Interpolator[posemath.Quat] {
	return New(posemath.SlerpUnclamped, opts)
}

// AddMeasurement inserts a sample in time order. Samples older than data the
// interpolator has already moved past are rejected; a sample with the same
// time as a buffered one replaces it.
func (in *Interpolator[T]) AddMeasurement(value T, sentTime float64) bool {
	if sentTime < in.consumed {
		return false
	}

	i := sort.Search(len(in.buffer), func(i int) bool { return in.buffer[i].Time >= sentTime })
	if i < len(in.buffer) && in.buffer[i].Time == sentTime {
		in.buffer[i].Value = value
		return true
	}

	in.buffer = append(in.buffer, Sample[T]{})
	copy(in.buffer[i+1:], in.buffer[i:])
	in.buffer[i] = Sample[T]{Value: value, Time: sentTime}

	for len(in.buffer) > in.opts.MaxSamples {
		in.dropFront()
	}
	if !in.hasValue {
		in.current = value
		in.hasValue = true
	}
	return true
}

func (in *Interpolator[T]) dropFront() {
	in.prev = in.buffer[0]
	in.hasPrev = true
	in.buffer = in.buffer[1:]
}

// Update computes the value for renderTime. With no samples it keeps the last
// output. serverTime bounds how far past the newest sample extrapolation may
// reach.
func (in *Interpolator[T]) Update(deltaTime, renderTime, serverTime float64) T {
	if len(in.buffer) == 0 {
		return in.current
	}

	for len(in.buffer) >= 2 && in.buffer[1].Time <= renderTime {
		in.dropFront()
	}

	first := in.buffer[0]
	var target T
	switch {
	case renderTime <= first.Time:
		target = first.Value
	case len(in.buffer) >= 2:
		next := in.buffer[1]
		t := (renderTime - first.Time) / (next.Time - first.Time)
		target = in.lerp(first.Value, next.Value, t)
	default:
		target = in.extrapolate(first, renderTime, serverTime)
	}
	in.consumed = math.Max(in.consumed, math.Min(first.Time, renderTime))

	if in.opts.SmoothingSeconds > 0 && in.hasValue && deltaTime > 0 {
		k := math.Min(1, deltaTime/in.opts.SmoothingSeconds)
		in.current = in.lerp(in.current, target, k)
	} else {
		in.current = target
	}
	in.hasValue = true
	return in.current
}

func (in *Interpolator[T]) extrapolate(last Sample[T], renderTime, serverTime float64) T {
	if !in.opts.Extrapolate || !in.hasPrev || last.Time <= in.prev.Time {
		return last.Value
	}
	ahead := math.Min(renderTime, serverTime) - last.Time
	ahead = math.Min(ahead, in.opts.MaxExtrapolation)
	if ahead <= 0 {
		return last.Value
	}
	t := 1 + ahead/(last.Time-in.prev.Time)
	return in.lerp(in.prev.Value, last.Value, t)
}

// ResetTo clears history and seeds a single sample. The next Update returns
// value without blending from older data, and samples sent before time are
// rejected from then on.
func (in *Interpolator[T]) ResetTo(value T, time float64) {
	in.buffer = append(in.buffer[:0], Sample[T]{Value: value, Time: time})
	in.hasPrev = false
	in.current = value
	in.hasValue = true
	in.consumed = time
}

// Current returns the last computed value.
func (in *Interpolator[T]) Current() (T, bool) {
	return in.current, in.hasValue
}

func (in *Interpolator[T]) Len() int { return len(in.buffer) }

// Newest returns the newest buffered sample.
func (in *Interpolator[T]) Newest() (Sample[T], bool) {
	if len(in.buffer) == 0 {
		return Sample[T]{}, false
	}
	return in.buffer[len(in.buffer)-1], true
}

// Clear drops all samples and the current value.
func (in *Interpolator[T]) Clear() {
	var zero T
	in.buffer = in.buffer[:0]
	in.hasPrev = false
	in.current = zero
	in.hasValue = false
	in.consumed = math.Inf(-1)
}
