package audioapi

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/mictest/pkg/audiodevice"
)

const dummyToneFrequency = 440.0 // A4

// Options for a DummyAudioIODeviceAPI. The zero value lists one input and
// one output device and never fails.
type DummyOptions struct {
	Logger *slog.Logger

	// Devices replaces the default device list when non-nil.
	Devices []AudioIODevice

	// Sleep for the duration of every chunk, as real hardware would block.
	Realtime bool

	// Injected failures.
	DevicesErr    error
	OpenInputErr  error
	OpenOutputErr error
	// Returned by the Nth read (1-based), 0 disables it.
	ReadErr      error
	ReadErrAfter int
	// Returned by the Nth write (1-based), 0 disables it.
	WriteErr      error
	WriteErrAfter int
}

// Counters describing what was done to a DummyAudioIODeviceAPI.
type DummyStats struct {
	Terminated        int
	InputStreamsOpen  int
	OutputStreamsOpen int
	InputStreams      int
	OutputStreams     int
	ChunksRead        int
	ChunksWritten     int
	BytesWritten      int
	// Frame count of every written chunk, in order.
	WrittenFrames []int
	// Configuration of the last opened output stream.
	OutputConfig audiodevice.StreamConfig
}

// A dummy API that lists one input and one output device:
// - a dummy input device (produces a steady tone)
// - a dummy output device (consumes all chunks and does nothing)
//
// It lets mictest run without audio hardware and is what the tests drive.
type DummyAudioIODeviceAPI struct {
	logger  *slog.Logger
	options DummyOptions

	mtx   sync.Mutex
	stats DummyStats
}

func NewDummyAudioIODeviceAPI(options DummyOptions) *DummyAudioIODeviceAPI {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DummyAudioIODeviceAPI{
		logger:  logger.With("audio backend", BackendDummy),
		options: options,
	}
}

// Factory returns a Factory that always hands out this same API, so the
// caller can inspect it afterwards.
func (api *DummyAudioIODeviceAPI) Factory() Factory {
	return func() (AudioIODeviceAPI, error) {
		return api, nil
	}
}

func (api *DummyAudioIODeviceAPI) Stats() DummyStats {
	api.mtx.Lock()
	defer api.mtx.Unlock()
	stats := api.stats
	stats.WrittenFrames = append([]int(nil), api.stats.WrittenFrames...)
	return stats
}

func (api *DummyAudioIODeviceAPI) Name() string {
	return BackendDummy
}

func (api *DummyAudioIODeviceAPI) Devices() ([]AudioIODevice, error) {
	if api.options.DevicesErr != nil {
		return nil, api.options.DevicesErr
	}
	if api.options.Devices != nil {
		return append([]AudioIODevice(nil), api.options.Devices...), nil
	}
	return []AudioIODevice{
		{
			ID:                0,
			Name:              "DummyInput",
			MaxInputChannels:  1,
			DefaultSampleRate: 44100,
		},
		{
			ID:                1,
			Name:              "DummyOutput",
			MaxOutputChannels: 2,
			DefaultSampleRate: 44100,
		},
	}, nil
}

func (api *DummyAudioIODeviceAPI) SampleSize(format audiodevice.SampleFormat) int {
	return format.Width()
}

func (api *DummyAudioIODeviceAPI) OpenInputStream(config audiodevice.StreamConfig) (audiodevice.AudioSourceStream, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if api.options.OpenInputErr != nil {
		return nil, api.options.OpenInputErr
	}

	api.mtx.Lock()
	api.stats.InputStreams += 1
	api.stats.InputStreamsOpen += 1
	api.mtx.Unlock()

	return &dummyInputStream{api: api, config: config}, nil
}

func (api *DummyAudioIODeviceAPI) OpenOutputStream(config audiodevice.StreamConfig) (audiodevice.AudioSinkStream, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if api.options.OpenOutputErr != nil {
		return nil, api.options.OpenOutputErr
	}

	api.mtx.Lock()
	api.stats.OutputStreams += 1
	api.stats.OutputStreamsOpen += 1
	api.stats.OutputConfig = config
	api.mtx.Unlock()

	return &dummyOutputStream{api: api, config: config}, nil
}

func (api *DummyAudioIODeviceAPI) Terminate() error {
	api.mtx.Lock()
	api.stats.Terminated += 1
	api.mtx.Unlock()
	return nil
}

func (api *DummyAudioIODeviceAPI) pace(config audiodevice.StreamConfig, frames int) {
	if api.options.Realtime {
		time.Sleep(time.Duration(frames) * time.Second / time.Duration(config.SampleRate))
	}
}

// --------------------------------------------------------------------------------
// Streams

type dummyInputStream struct {
	api       *DummyAudioIODeviceAPI
	config    audiodevice.StreamConfig
	phase     float64
	closeOnce sync.Once
}

func (s *dummyInputStream) Read() ([]byte, error) {
	s.api.mtx.Lock()
	s.api.stats.ChunksRead += 1
	n := s.api.stats.ChunksRead
	s.api.mtx.Unlock()

	if s.api.options.ReadErrAfter > 0 && n >= s.api.options.ReadErrAfter {
		return nil, fmt.Errorf("dummy read %d: %w", n, s.api.options.ReadErr)
	}

	s.api.pace(s.config, s.config.FramesPerBuffer)
	return s.tone(), nil
}

// One chunk of a sine wave at half of full scale, same value on all channels.
func (s *dummyInputStream) tone() []byte {
	width := s.config.Format.Width()
	amplitude := float64(int(1)<<(8*width-1)-1) / 2
	offset := 0.0
	if s.config.Format == audiodevice.FormatUInt8 {
		offset = 128
	}

	samples := make([]int, 0, s.config.FramesPerBuffer*s.config.NumChannels)
	step := 2 * math.Pi * dummyToneFrequency / float64(s.config.SampleRate)
	for range s.config.FramesPerBuffer {
		v := int(offset + amplitude*math.Sin(s.phase))
		for range s.config.NumChannels {
			samples = append(samples, v)
		}
		s.phase += step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
	return audiodevice.AppendSamples(make([]byte, 0, s.config.ChunkBytes()), s.config.Format, samples)
}

func (s *dummyInputStream) Close() error {
	s.closeOnce.Do(func() {
		s.api.mtx.Lock()
		s.api.stats.InputStreamsOpen -= 1
		s.api.mtx.Unlock()
	})
	return nil
}

func (s *dummyInputStream) GetStreamConfig() audiodevice.StreamConfig {
	return s.config
}

type dummyOutputStream struct {
	api       *DummyAudioIODeviceAPI
	config    audiodevice.StreamConfig
	closeOnce sync.Once
}

func (s *dummyOutputStream) Write(chunk []byte) error {
	frameBytes := s.config.BytesPerFrame()
	if len(chunk)%frameBytes != 0 || len(chunk) > s.config.ChunkBytes() {
		return fmt.Errorf("chunk of %d bytes is not a whole number of frames up to %d", len(chunk), s.config.FramesPerBuffer)
	}

	s.api.mtx.Lock()
	n := s.api.stats.ChunksWritten + 1
	failed := s.api.options.WriteErrAfter > 0 && n >= s.api.options.WriteErrAfter
	if !failed {
		s.api.stats.ChunksWritten = n
		s.api.stats.BytesWritten += len(chunk)
		s.api.stats.WrittenFrames = append(s.api.stats.WrittenFrames, len(chunk)/frameBytes)
	}
	s.api.mtx.Unlock()

	if failed {
		return fmt.Errorf("dummy write %d: %w", n, s.api.options.WriteErr)
	}
	s.api.pace(s.config, len(chunk)/frameBytes)
	return nil
}

func (s *dummyOutputStream) Close() error {
	s.closeOnce.Do(func() {
		s.api.mtx.Lock()
		s.api.stats.OutputStreamsOpen -= 1
		s.api.mtx.Unlock()
	})
	return nil
}

func (s *dummyOutputStream) GetStreamConfig() audiodevice.StreamConfig {
	return s.config
}
