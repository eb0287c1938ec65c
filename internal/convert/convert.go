// Package convert turns 16-bit PCM chunks into float samples and back, and
// resamples them a chunk at a time.
package convert

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/oov/audio/resampler"
)

const resampleQuality = 10

// Append the samples of a little endian int16 chunk to dst, scaled to [-1, 1).
// A trailing odd byte is ignored.
func Int16ToFloat32(dst []float32, src []byte) []float32 {
	for i := 0; i+1 < len(src); i += 2 {
		v := int16(binary.LittleEndian.Uint16(src[i:]))
		dst = append(dst, float32(v)/32768)
	}
	return dst
}

// Append samples to dst as little endian int16, clipping anything outside
// [-1, 1].
func Float32ToInt16(dst []byte, src []float32) []byte {
	for _, f := range src {
		v := math.Round(float64(f) * 32768)
		v = max(math.MinInt16, min(math.MaxInt16, v))
		dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(v)))
	}
	return dst
}

// Resampler converts interleaved int16 chunks from one sample rate to
// another. It keeps filter state between calls, so consecutive chunks of one
// stream must go through the same Resampler.
type Resampler struct {
	r        *resampler.Resampler
	channels int
	inRate   int
	outRate  int

	interleaved []float32
	planarIn    [][]float32
	planarOut   [][]float32
}

func NewResampler(channels, inRate, outRate int) (*Resampler, error) {
	if channels <= 0 || inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("cannot resample %d channels from %d Hz to %d Hz", channels, inRate, outRate)
	}
	return &Resampler{
		r:         resampler.New(channels, inRate, outRate, resampleQuality),
		channels:  channels,
		inRate:    inRate,
		outRate:   outRate,
		planarIn:  make([][]float32, channels),
		planarOut: make([][]float32, channels),
	}, nil
}

// Process resamples one chunk of whole frames. The result holds whole frames
// too, though not necessarily in proportion to the input for the first few
// chunks while the filter fills up.
func (r *Resampler) Process(chunk []byte) []byte {
	r.interleaved = Int16ToFloat32(r.interleaved[:0], chunk)
	frames := len(r.interleaved) / r.channels
	if frames == 0 {
		return nil
	}
	outCap := frames*r.outRate/r.inRate + 16

	// Decode to planar, the chunk is interleaved
	for ch := range r.channels {
		if cap(r.planarIn[ch]) < frames {
			r.planarIn[ch] = make([]float32, frames)
		}
		r.planarIn[ch] = r.planarIn[ch][:frames]
		if cap(r.planarOut[ch]) < outCap {
			r.planarOut[ch] = make([]float32, outCap)
		}
		r.planarOut[ch] = r.planarOut[ch][:outCap]
	}
	for i := range frames {
		for ch := range r.channels {
			r.planarIn[ch][i] = r.interleaved[i*r.channels+ch]
		}
	}

	written := outCap
	for ch := range r.channels {
		_, n := r.r.ProcessFloat32(ch, r.planarIn[ch], r.planarOut[ch])
		written = min(written, n)
	}

	// Interleave again
	r.interleaved = r.interleaved[:0]
	for i := range written {
		for ch := range r.channels {
			r.interleaved = append(r.interleaved, r.planarOut[ch][i])
		}
	}
	return Float32ToInt16(make([]byte, 0, 2*len(r.interleaved)), r.interleaved)
}
