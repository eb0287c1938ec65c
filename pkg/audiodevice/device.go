package audiodevice

import (
	"errors"
	"fmt"
)

var errUnsupportedSampleWidth = errors.New("unsupported sample width")

// SampleFormat is the encoding of a single PCM sample as it travels between
// the audio subsystem and the rest of mictest. All formats are little endian
// and interleaved.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	// Unsigned 8 bit, as stored in 8 bit WAV files.
	FormatUInt8
	// Signed 16 bit, the recording format.
	FormatInt16
	// Signed 24 bit packed into three bytes.
	FormatInt24
	// Signed 32 bit.
	FormatInt32
)

func (f SampleFormat) String() string {
	switch f {
	case FormatUInt8:
		return "uint8"
	case FormatInt16:
		return "int16"
	case FormatInt24:
		return "int24"
	case FormatInt32:
		return "int32"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// Width is the number of bytes a single sample of this format occupies.
// Unknown formats have a width of zero.
func (f SampleFormat) Width() int {
	switch f {
	case FormatUInt8:
		return 1
	case FormatInt16:
		return 2
	case FormatInt24:
		return 3
	case FormatInt32:
		return 4
	default:
		return 0
	}
}

// FormatFromWidth maps a sample width in bytes (as found in a WAV header) to
// the matching SampleFormat.
func FormatFromWidth(width int) (SampleFormat, error) {
	switch width {
	case 1:
		return FormatUInt8, nil
	case 2:
		return FormatInt16, nil
	case 3:
		return FormatInt24, nil
	case 4:
		return FormatInt32, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %d bytes", errUnsupportedSampleWidth, width)
	}
}

type DeviceProperties struct {
	SampleRate  int
	NumChannels int
}

// StreamConfig fully describes a stream to be opened on an audio subsystem:
// its rate and channel count, its sample encoding and how many frames every
// blocking read or write transfers.
type StreamConfig struct {
	DeviceProperties
	Format          SampleFormat
	FramesPerBuffer int
}

// BytesPerFrame is the size of one frame (one sample for every channel).
func (c StreamConfig) BytesPerFrame() int {
	return c.Format.Width() * c.NumChannels
}

// ChunkBytes is the size of one full buffer of FramesPerBuffer frames.
func (c StreamConfig) ChunkBytes() int {
	return c.BytesPerFrame() * c.FramesPerBuffer
}

func (c StreamConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("non-positive sample rate %d", c.SampleRate)
	}
	if c.NumChannels <= 0 {
		return fmt.Errorf("non-positive channel count %d", c.NumChannels)
	}
	if c.FramesPerBuffer <= 0 {
		return fmt.Errorf("non-positive frames per buffer %d", c.FramesPerBuffer)
	}
	if c.Format.Width() == 0 {
		return fmt.Errorf("%w: %v", errUnsupportedSampleWidth, c.Format)
	}
	return nil
}

// Interface for audio source streams, e.g. an open microphone.
//
// Unlike a free-running device, a source stream is pulled: every call to
// Read blocks until one full buffer is available.
type AudioSourceStream interface {
	// Read blocks until FramesPerBuffer frames have been captured and returns
	// them as interleaved little endian bytes.
	//
	// The returned slice is owned by the caller.
	Read() ([]byte, error)

	// Stop and close the stream. Safe to call more than once.
	Close() error

	GetStreamConfig() StreamConfig
}

// Interface for audio sink streams, e.g. an open speaker.
type AudioSinkStream interface {
	// Write blocks until the chunk has been handed to the device.
	//
	// The chunk must hold a whole number of frames and at most
	// FramesPerBuffer of them; a final, shorter chunk is allowed.
	Write(chunk []byte) error

	// Stop and close the stream. Safe to call more than once.
	Close() error

	GetStreamConfig() StreamConfig
}
