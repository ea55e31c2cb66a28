package replication

import (
	"testing"

	"github.com/automoto/netxform/config"
	"github.com/automoto/netxform/shared/halfprec"
	"github.com/automoto/netxform/shared/netconfig"
	"github.com/automoto/netxform/shared/posemath"
	"github.com/automoto/netxform/shared/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPositionCodecPicksMode(t *testing.T) {
	cfg := config.DefaultSync()
	assert.IsType(t, FullCodec{}, NewPositionCodec(cfg))

	cfg.Precision = netconfig.PrecisionHalf
	assert.IsType(t, &HalfCodec{}, NewPositionCodec(cfg))

	// Compression wins over half precision for position.
	cfg.Compression = netconfig.CompressionSmallestThree
	assert.IsType(t, &CompressedCodec{}, NewPositionCodec(cfg))
}

func TestStatefulCodecsNeedSeed(t *testing.T) {
	for name, c := range map[string]PositionCodec{
		"half":       NewHalfCodec(64),
		"compressed": &CompressedCodec{},
	} {
		t.Run(name, func(t *testing.T) {
			var rec protocol.StateRecord
			assert.ErrorIs(t, c.Encode(posemath.V(1, 2, 3), 1, &rec), ErrUnseeded)
			_, err := c.Decode(rec)
			assert.ErrorIs(t, err, ErrUnseeded)
			assert.False(t, c.Seeded())
		})
	}
}

func TestHalfCodecRejectsFarOffsets(t *testing.T) {
	c := NewHalfCodec(64)
	c.Reset(posemath.V(0, 0, 0))
	var rec protocol.StateRecord
	require.NoError(t, c.Encode(posemath.V(100, 0, 0), 1, &rec))
	assert.ErrorIs(t, c.Encode(posemath.V(0, 0, 300), 2, &rec), ErrDeltaOutOfRange)
}

func TestCompressedCodecRejectsLongDeltas(t *testing.T) {
	c := &CompressedCodec{}
	c.Reset(posemath.V(0, 0, 0))
	var rec protocol.StateRecord
	assert.ErrorIs(t, c.Encode(posemath.V(1000, 0, 0), 1, &rec), ErrDeltaOutOfRange)
}

func TestCodecPairsAgree(t *testing.T) {
	start := posemath.V(10, -4, 250)
	for name, pair := range map[string][2]PositionCodec{
		"half":       {NewHalfCodec(8), NewHalfCodec(8)},
		"compressed": {&CompressedCodec{}, &CompressedCodec{}},
	} {
		t.Run(name, func(t *testing.T) {
			enc, dec := pair[0], pair[1]
			enc.Reset(start)
			dec.Reset(start)
			pos := start
			for tick := uint32(1); tick <= 100; tick++ {
				pos = posemath.Add(pos, posemath.V(0.37, -0.11, 0.05))
				var rec protocol.StateRecord
				require.NoError(t, enc.Encode(pos, tick, &rec))

				got, err := dec.Decode(rec)
				require.NoError(t, err)
				// Decoder reproduces the encoder's reconstruction exactly.
				require.Equal(t, rec.Position, got, "tick %d", tick)
				require.InDelta(t, 0, posemath.Distance(pos, got), 0.01, "tick %d", tick)

				again, err := dec.Decode(rec)
				require.NoError(t, err)
				require.Equal(t, got, again)
			}

			var old protocol.StateRecord
			old.Tick = 50
			_, err := dec.Decode(old)
			assert.ErrorIs(t, err, halfprec.ErrStaleTick)
		})
	}
}

func TestRoundToWire(t *testing.T) {
	v := roundToWire(posemath.V(0.1, 1e10, -3))
	assert.Equal(t, float64(float32(0.1)), v.X)
	assert.Equal(t, -3.0, v.Z)
}
