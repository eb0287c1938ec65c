package convert

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt16FloatConversion(t *testing.T) {
	src := []byte{}
	for _, v := range []int16{0, 16384, -16384, math.MaxInt16, math.MinInt16} {
		src = binary.LittleEndian.AppendUint16(src, uint16(v))
	}
	src = append(src, 0x7f) // odd byte

	floats := Int16ToFloat32(nil, src)
	require.Len(t, floats, 5)
	assert.InDelta(t, 0.0, floats[0], 1e-6)
	assert.InDelta(t, 0.5, floats[1], 1e-6)
	assert.InDelta(t, -0.5, floats[2], 1e-6)
	assert.InDelta(t, -1.0, floats[4], 1e-6)

	assert.Equal(t, src[:10], Float32ToInt16(nil, floats))
}

func TestFloat32ToInt16Clips(t *testing.T) {
	out := Float32ToInt16(nil, []float32{2, -2})
	assert.Equal(t, int16(math.MaxInt16), int16(binary.LittleEndian.Uint16(out[0:])))
	assert.Equal(t, int16(math.MinInt16), int16(binary.LittleEndian.Uint16(out[2:])))
}

func sineChunk(channels, frames, rate int, phase *float64) []byte {
	samples := make([]float32, 0, channels*frames)
	step := 2 * math.Pi * 440 / float64(rate)
	for range frames {
		v := float32(0.5 * math.Sin(*phase))
		for range channels {
			samples = append(samples, v)
		}
		*phase += step
	}
	return Float32ToInt16(nil, samples)
}

func TestResamplerHalvesRate(t *testing.T) {
	for _, channels := range []int{1, 2} {
		r, err := NewResampler(channels, 44100, 22050)
		require.NoError(t, err)

		phase := 0.0
		totalFrames := 0
		for range 20 {
			out := r.Process(sineChunk(channels, 1024, 44100, &phase))
			require.Zero(t, len(out)%(2*channels))
			totalFrames += len(out) / (2 * channels)
		}
		assert.InDelta(t, 20*512, totalFrames, 128, "channels=%d", channels)
	}
}

func TestResamplerEmptyChunk(t *testing.T) {
	r, err := NewResampler(1, 44100, 48000)
	require.NoError(t, err)
	assert.Empty(t, r.Process(nil))
}

func TestNewResamplerRejectsBadRates(t *testing.T) {
	_, err := NewResampler(1, 0, 48000)
	assert.Error(t, err)
	_, err = NewResampler(0, 44100, 48000)
	assert.Error(t, err)
}
