package audioapi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/mictest/pkg/audiodevice"
	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

// PortAudioApi talks to the platform audio system through PortAudio's
// blocking read/write interface.
type PortAudioApi struct {
	logger        *slog.Logger
	terminateOnce sync.Once
	terminated    bool
	terminateErr  error
}

// Initialize PortAudio and return a handle on it. The handle must be released
// with Terminate.
func NewPortAudioApi(logger *slog.Logger) (*PortAudioApi, error) {
	uuid := uuid.New()
	logger = logger.With(
		"portaudio api uuid", uuid,
	)

	if err := portaudio.Initialize(); err != nil {
		logger.Error("failed to initialize portaudio", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrSubsystemUnavailable, err)
	}
	logger.Debug("initialized portaudio", "version", portaudio.VersionText())

	return &PortAudioApi{
		logger: logger,
	}, nil
}

func (api *PortAudioApi) Name() string {
	return BackendPortAudio
}

func (api *PortAudioApi) Devices() ([]AudioIODevice, error) {
	if api.terminated {
		return nil, ErrTerminated
	}

	infos, err := portaudio.Devices()
	if err != nil {
		api.logger.Error("failed to enumerate devices", "err", err)
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	devices := make([]AudioIODevice, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, AudioIODevice{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		})
	}
	return devices, nil
}

func (api *PortAudioApi) SampleSize(format audiodevice.SampleFormat) int {
	if _, err := newPortAudioBuffer(format, 0); err != nil {
		return 0
	}
	return format.Width()
}

func (api *PortAudioApi) OpenInputStream(config audiodevice.StreamConfig) (audiodevice.AudioSourceStream, error) {
	if api.terminated {
		return nil, ErrTerminated
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: default input: %w", ErrNoDevice, err)
	}

	buffer, err := newPortAudioBuffer(config.Format, config.FramesPerBuffer*config.NumChannels)
	if err != nil {
		return nil, err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: config.NumChannels,
			Latency:  device.DefaultHighInputLatency,
		},
		SampleRate:      float64(config.SampleRate),
		FramesPerBuffer: config.FramesPerBuffer,
	}

	stream, err := openPortAudioStream(api.logger, "input", device, params, buffer, config)
	if err != nil {
		return nil, err
	}
	return &portAudioInputStream{portAudioStream: stream}, nil
}

func (api *PortAudioApi) OpenOutputStream(config audiodevice.StreamConfig) (audiodevice.AudioSinkStream, error) {
	if api.terminated {
		return nil, ErrTerminated
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	device, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: default output: %w", ErrNoDevice, err)
	}

	buffer, err := newPortAudioBuffer(config.Format, config.FramesPerBuffer*config.NumChannels)
	if err != nil {
		return nil, err
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: config.NumChannels,
			Latency:  device.DefaultHighOutputLatency,
		},
		SampleRate:      float64(config.SampleRate),
		FramesPerBuffer: config.FramesPerBuffer,
	}

	stream, err := openPortAudioStream(api.logger, "output", device, params, buffer, config)
	if err != nil {
		return nil, err
	}
	return &portAudioOutputStream{portAudioStream: stream}, nil
}

func (api *PortAudioApi) Terminate() error {
	api.terminateOnce.Do(func() {
		api.terminated = true
		api.terminateErr = portaudio.Terminate()
		if api.terminateErr != nil {
			api.logger.Error("error terminating portaudio", "err", api.terminateErr)
			return
		}
		api.logger.Debug("terminated portaudio")
	})
	return api.terminateErr
}

// --------------------------------------------------------------------------------
// Streams

type portAudioStream struct {
	logger *slog.Logger

	stream    *portaudio.Stream
	buffer    portAudioBuffer
	config    audiodevice.StreamConfig
	closeOnce sync.Once
	closeErr  error
}

func openPortAudioStream(
	logger *slog.Logger,
	direction string,
	device *portaudio.DeviceInfo,
	params portaudio.StreamParameters,
	buffer portAudioBuffer,
	config audiodevice.StreamConfig,
) (*portAudioStream, error) {
	uuid := uuid.New()
	logger = logger.With(
		"portaudio "+direction+" stream uuid", uuid,
	)

	stream, err := portaudio.OpenStream(params, buffer.arg())
	if err != nil {
		logger.Error("failed to open audio stream", "device", device.Name, "err", err)
		return nil, fmt.Errorf("failed to open %s stream: %w", direction, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		logger.Error("failed to start audio stream", "device", device.Name, "err", err)
		return nil, fmt.Errorf("failed to start %s stream: %w", direction, err)
	}

	logger.Debug(
		"opened portaudio stream",
		"device", device.Name,
		"sampleRate", config.SampleRate,
		"channels", config.NumChannels,
		"format", config.Format,
		"framesPerBuffer", config.FramesPerBuffer,
	)

	return &portAudioStream{
		logger: logger,
		stream: stream,
		buffer: buffer,
		config: config,
	}, nil
}

func (s *portAudioStream) Close() error {
	s.closeOnce.Do(func() {
		stopErr := s.stream.Stop()
		if stopErr != nil {
			s.logger.Error("error stopping audio stream", "err", stopErr)
		}
		closeErr := s.stream.Close()
		if closeErr != nil {
			s.logger.Error("error closing audio stream", "err", closeErr)
		}
		s.closeErr = errors.Join(stopErr, closeErr)
		s.logger.Debug("portaudio stream closed")
	})
	return s.closeErr
}

func (s *portAudioStream) GetStreamConfig() audiodevice.StreamConfig {
	return s.config
}

type portAudioInputStream struct {
	*portAudioStream
}

func (s *portAudioInputStream) Read() ([]byte, error) {
	s.buffer.resize(s.config.FramesPerBuffer * s.config.NumChannels)
	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, fmt.Errorf("failed to read from input stream: %w", err)
		}
		// The chunk is still complete, some earlier audio was lost.
		s.logger.Warn("input overflow detected")
	}
	return s.buffer.encode(make([]byte, 0, s.config.ChunkBytes())), nil
}

type portAudioOutputStream struct {
	*portAudioStream
}

func (s *portAudioOutputStream) Write(chunk []byte) error {
	frameBytes := s.config.BytesPerFrame()
	if len(chunk)%frameBytes != 0 || len(chunk) > s.config.ChunkBytes() {
		return fmt.Errorf("chunk of %d bytes is not a whole number of frames up to %d", len(chunk), s.config.FramesPerBuffer)
	}
	if len(chunk) == 0 {
		return nil
	}

	s.buffer.decode(chunk)
	if err := s.stream.Write(); err != nil {
		if !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("failed to write to output stream: %w", err)
		}
		s.logger.Warn("output underflow detected")
	}
	return nil
}

// --------------------------------------------------------------------------------
// Buffers
//
// PortAudio binds a typed Go slice to a blocking stream when it is opened. A
// pointer to the slice is handed over instead of the slice itself so the final
// chunk of a playback can be shorter than the rest.

type portAudioBuffer interface {
	arg() any
	resize(samples int)
	encode(dst []byte) []byte
	decode(src []byte)
}

func newPortAudioBuffer(format audiodevice.SampleFormat, samples int) (portAudioBuffer, error) {
	switch format {
	case audiodevice.FormatUInt8:
		b := &uint8Buffer{full: make([]uint8, samples)}
		b.cur = b.full
		return b, nil
	case audiodevice.FormatInt16:
		b := &int16Buffer{full: make([]int16, samples)}
		b.cur = b.full
		return b, nil
	case audiodevice.FormatInt24:
		b := &int24Buffer{full: make([]portaudio.Int24, samples)}
		b.cur = b.full
		return b, nil
	case audiodevice.FormatInt32:
		b := &int32Buffer{full: make([]int32, samples)}
		b.cur = b.full
		return b, nil
	default:
		return nil, fmt.Errorf("%w: portaudio backend cannot stream %v", ErrUnsupportedFormat, format)
	}
}

type uint8Buffer struct{ full, cur []uint8 }

func (b *uint8Buffer) arg() any           { return &b.cur }
func (b *uint8Buffer) resize(samples int) { b.cur = b.full[:samples] }

func (b *uint8Buffer) encode(dst []byte) []byte {
	return append(dst, b.cur...)
}

func (b *uint8Buffer) decode(src []byte) {
	b.resize(len(src))
	copy(b.cur, src)
}

type int16Buffer struct{ full, cur []int16 }

func (b *int16Buffer) arg() any           { return &b.cur }
func (b *int16Buffer) resize(samples int) { b.cur = b.full[:samples] }

func (b *int16Buffer) encode(dst []byte) []byte {
	for _, s := range b.cur {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

func (b *int16Buffer) decode(src []byte) {
	b.resize(len(src) / 2)
	for i := range b.cur {
		b.cur[i] = int16(binary.LittleEndian.Uint16(src[2*i:]))
	}
}

// portaudio.Int24 is in native byte order.
var int24LittleEndian = func() bool {
	var one portaudio.Int24
	one.PutInt32(1 << 8)
	return one[0] == 1
}()

type int24Buffer struct{ full, cur []portaudio.Int24 }

func (b *int24Buffer) arg() any           { return &b.cur }
func (b *int24Buffer) resize(samples int) { b.cur = b.full[:samples] }

func (b *int24Buffer) encode(dst []byte) []byte {
	for _, s := range b.cur {
		if int24LittleEndian {
			dst = append(dst, s[0], s[1], s[2])
		} else {
			dst = append(dst, s[2], s[1], s[0])
		}
	}
	return dst
}

func (b *int24Buffer) decode(src []byte) {
	b.resize(len(src) / 3)
	for i := range b.cur {
		u := uint32(src[3*i])<<8 | uint32(src[3*i+1])<<16 | uint32(src[3*i+2])<<24
		b.cur[i].PutInt32(int32(u))
	}
}

type int32Buffer struct{ full, cur []int32 }

func (b *int32Buffer) arg() any           { return &b.cur }
func (b *int32Buffer) resize(samples int) { b.cur = b.full[:samples] }

func (b *int32Buffer) encode(dst []byte) []byte {
	for _, s := range b.cur {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(s))
	}
	return dst
}

func (b *int32Buffer) decode(src []byte) {
	b.resize(len(src) / 4)
	for i := range b.cur {
		b.cur[i] = int32(binary.LittleEndian.Uint32(src[4*i:]))
	}
}
