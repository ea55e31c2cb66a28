package compression

import (
	"math"

	"github.com/automoto/netxform/shared/posemath"
)

// Packed quaternion layout: [31:30] index of the dropped component, then three
// 10-bit fields (1 sign bit, 9 magnitude bits) for the remaining components in
// X, Y, Z, W order with the dropped one skipped.
const (
	quatFieldBits  = 10
	quatValueBits  = 9
	quatValueMax   = 1<<quatValueBits - 1
	quatSignBit    = 1 << quatValueBits
	quatFieldMask  = 1<<quatFieldBits - 1
	quatIndexShift = 30
)

// CompressQuaternion packs a rotation into 32 bits. The largest component is
// made positive by negating q when needed, since q and -q are the same rotation.
func CompressQuaternion(q posemath.Quat) uint32 {
	q = q.Normalize()
	c := q.Components()

	largest := 0
	for i := 1; i < 4; i++ {
		if math.Abs(c[i]) > math.Abs(c[largest]) {
			largest = i
		}
	}
	if c[largest] < 0 {
		for i := range c {
			c[i] = -c[i]
		}
	}

	packed := uint32(largest) << quatIndexShift
	shift := uint(quatFieldBits * 2)
	for i := 0; i < 4; i++ {
		if i == largest {
			continue
		}
		v := math.Round(math.Abs(c[i]) / invSqrt2 * quatValueMax)
		if v > quatValueMax {
			v = quatValueMax
		}
		field := uint32(v)
		if c[i] < 0 {
			field |= quatSignBit
		}
		packed |= field << shift
		shift -= quatFieldBits
	}
	return packed
}

// DecompressQuaternion unpacks a value produced by CompressQuaternion.
func DecompressQuaternion(packed uint32) posemath.Quat {
	largest := int(packed >> quatIndexShift)

	var c [4]float64
	sum := 0.0
	shift := uint(quatFieldBits * 2)
	for i := 0; i < 4; i++ {
		if i == largest {
			continue
		}
		field := (packed >> shift) & quatFieldMask
		v := float64(field&quatValueMax) / quatValueMax * invSqrt2
		if field&quatSignBit != 0 {
			v = -v
		}
		c[i] = v
		sum += v * v
		shift -= quatFieldBits
	}
	c[largest] = math.Sqrt(math.Max(0, 1-sum))
	return posemath.QuatFromComponents(c).Normalize()
}
