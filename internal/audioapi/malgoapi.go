package audioapi

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/mictest/pkg/audiodevice"
	"github.com/gen2brain/malgo"
	"github.com/google/uuid"
)

const (
	// miniaudio's own default when a device does not report a native rate.
	malgoFallbackSampleRate = 48000

	// Captured chunks waiting for Read. Beyond this, chunks are dropped.
	malgoCaptureQueue = 64

	// Chunks waiting to be played. Write blocks beyond this.
	malgoPlaybackQueue = 8
)

var errMalgoStreamClosed = errors.New("malgo stream closed")

// MalgoApi talks to the platform audio system through miniaudio. miniaudio
// only offers callback driven devices, so the streams returned here adapt
// the callbacks to blocking reads and writes.
type MalgoApi struct {
	logger *slog.Logger

	context       *malgo.AllocatedContext
	terminateOnce sync.Once
	terminated    bool
	terminateErr  error
}

// Initialize a miniaudio context and return a handle on it. The handle must
// be released with Terminate.
func NewMalgoApi(logger *slog.Logger) (*MalgoApi, error) {
	uuid := uuid.New()
	logger = logger.With(
		"malgo api uuid", uuid,
	)

	context, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		logger.Error("failed to initialize malgo context", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrSubsystemUnavailable, err)
	}
	logger.Debug("initialized malgo context")

	return &MalgoApi{
		logger:  logger,
		context: context,
	}, nil
}

func (api *MalgoApi) Name() string {
	return BackendMalgo
}

// Devices lists capture devices followed by playback devices. miniaudio keeps
// the two kinds apart, so a physical device with both directions appears
// twice.
func (api *MalgoApi) Devices() ([]AudioIODevice, error) {
	if api.terminated {
		return nil, ErrTerminated
	}

	devices := make([]AudioIODevice, 0)
	for _, typ := range []malgo.DeviceType{malgo.Capture, malgo.Playback} {
		infos, err := api.context.Devices(typ)
		if err != nil {
			api.logger.Error("failed to enumerate devices", "type", typ, "err", err)
			return nil, fmt.Errorf("failed to enumerate devices: %w", err)
		}

		for _, info := range infos {
			full, err := api.context.DeviceInfo(typ, info.ID, malgo.Shared)
			if err != nil {
				api.logger.Warn("unable to get audio device info", "device", info.Name(), "err", err)
				full = info
			}

			channels, sampleRate := malgoNativeFormat(full)
			device := AudioIODevice{
				ID:                len(devices),
				Name:              full.Name(),
				DefaultSampleRate: float64(sampleRate),
			}
			if typ == malgo.Capture {
				device.MaxInputChannels = channels
			} else {
				device.MaxOutputChannels = channels
			}
			devices = append(devices, device)
		}
	}
	return devices, nil
}

// The widest channel count and the highest rate among the native formats of
// a device. miniaudio reports zero for "any", which is mapped to mono and the
// fallback rate.
func malgoNativeFormat(info malgo.DeviceInfo) (channels int, sampleRate int) {
	for i := 0; i < int(info.FormatCount) && i < len(info.Formats); i++ {
		channels = max(channels, int(info.Formats[i].Channels))
		sampleRate = max(sampleRate, int(info.Formats[i].SampleRate))
	}
	if channels == 0 {
		channels = 1
	}
	if sampleRate == 0 {
		sampleRate = malgoFallbackSampleRate
	}
	return channels, sampleRate
}

func (api *MalgoApi) SampleSize(format audiodevice.SampleFormat) int {
	malgoFormat, err := toMalgoFormat(format)
	if err != nil {
		return 0
	}
	return malgo.SampleSizeInBytes(malgoFormat)
}

func toMalgoFormat(format audiodevice.SampleFormat) (malgo.FormatType, error) {
	switch format {
	case audiodevice.FormatUInt8:
		return malgo.FormatU8, nil
	case audiodevice.FormatInt16:
		return malgo.FormatS16, nil
	case audiodevice.FormatInt24:
		return malgo.FormatS24, nil
	case audiodevice.FormatInt32:
		return malgo.FormatS32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
}

func (api *MalgoApi) deviceConfig(typ malgo.DeviceType, config audiodevice.StreamConfig) (malgo.DeviceConfig, error) {
	if err := config.Validate(); err != nil {
		return malgo.DeviceConfig{}, err
	}
	format, err := toMalgoFormat(config.Format)
	if err != nil {
		return malgo.DeviceConfig{}, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(typ)
	deviceConfig.SampleRate = uint32(config.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(config.FramesPerBuffer)
	if typ == malgo.Capture {
		deviceConfig.Capture.Format = format
		deviceConfig.Capture.Channels = uint32(config.NumChannels)
	} else {
		deviceConfig.Playback.Format = format
		deviceConfig.Playback.Channels = uint32(config.NumChannels)
	}
	deviceConfig.Alsa.NoMMap = 1
	return deviceConfig, nil
}

func (api *MalgoApi) OpenInputStream(config audiodevice.StreamConfig) (audiodevice.AudioSourceStream, error) {
	if api.terminated {
		return nil, ErrTerminated
	}
	deviceConfig, err := api.deviceConfig(malgo.Capture, config)
	if err != nil {
		return nil, err
	}

	uuid := uuid.New()
	s := &malgoInputStream{
		malgoStream: malgoStream{
			logger: api.logger.With("malgo input stream uuid", uuid),
			config: config,
			done:   make(chan struct{}),
		},
		chunks:  make(chan []byte, malgoCaptureQueue),
		pending: make([]byte, 0, 2*config.ChunkBytes()),
	}

	callbacks := malgo.DeviceCallbacks{
		Data: s.onCapture,
	}
	if err := s.start(api.context, deviceConfig, callbacks); err != nil {
		return nil, err
	}
	return s, nil
}

func (api *MalgoApi) OpenOutputStream(config audiodevice.StreamConfig) (audiodevice.AudioSinkStream, error) {
	if api.terminated {
		return nil, ErrTerminated
	}
	deviceConfig, err := api.deviceConfig(malgo.Playback, config)
	if err != nil {
		return nil, err
	}

	uuid := uuid.New()
	s := &malgoOutputStream{
		malgoStream: malgoStream{
			logger: api.logger.With("malgo output stream uuid", uuid),
			config: config,
			done:   make(chan struct{}),
		},
		queue: make(chan []byte, malgoPlaybackQueue),
	}

	callbacks := malgo.DeviceCallbacks{
		Data: s.onPlayback,
	}
	if err := s.start(api.context, deviceConfig, callbacks); err != nil {
		return nil, err
	}
	return s, nil
}

func (api *MalgoApi) Terminate() error {
	api.terminateOnce.Do(func() {
		api.terminated = true
		api.terminateErr = api.context.Uninit()
		api.context.Free()
		if api.terminateErr != nil {
			api.logger.Error("error uninitializing malgo context", "err", api.terminateErr)
			return
		}
		api.logger.Debug("terminated malgo context")
	})
	return api.terminateErr
}

// --------------------------------------------------------------------------------
// Streams

type malgoStream struct {
	logger *slog.Logger

	device    *malgo.Device
	config    audiodevice.StreamConfig
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (s *malgoStream) start(context *malgo.AllocatedContext, deviceConfig malgo.DeviceConfig, callbacks malgo.DeviceCallbacks) error {
	device, err := malgo.InitDevice(context.Context, deviceConfig, callbacks)
	if err != nil {
		s.logger.Error("failed to init audio device", "err", err)
		return fmt.Errorf("failed to init audio device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		s.logger.Error("failed to start audio device", "err", err)
		return fmt.Errorf("failed to start audio device: %w", err)
	}
	s.device = device

	s.logger.Debug(
		"opened malgo stream",
		"sampleRate", s.config.SampleRate,
		"channels", s.config.NumChannels,
		"format", s.config.Format,
		"framesPerBuffer", s.config.FramesPerBuffer,
	)
	return nil
}

func (s *malgoStream) stop() {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.device.Stop(); err != nil {
			s.logger.Error("error stopping audio device", "err", err)
			s.closeErr = err
		}
		s.device.Uninit()
		s.logger.Debug("malgo stream closed")
	})
}

func (s *malgoStream) GetStreamConfig() audiodevice.StreamConfig {
	return s.config
}

type malgoInputStream struct {
	malgoStream

	chunks chan []byte
	// Only touched from the capture callback.
	pending []byte
}

func (s *malgoInputStream) onCapture(_, input []byte, _ uint32) {
	s.pending = append(s.pending, input...)
	chunkBytes := s.config.ChunkBytes()
	for len(s.pending) >= chunkBytes {
		chunk := make([]byte, chunkBytes)
		copy(chunk, s.pending)
		s.pending = append(s.pending[:0], s.pending[chunkBytes:]...)

		select {
		case s.chunks <- chunk:
		default:
			s.logger.Warn("audio input buffer full, dropping chunk", "bytes", chunkBytes)
		}
	}
}

func (s *malgoInputStream) Read() ([]byte, error) {
	select {
	case chunk := <-s.chunks:
		return chunk, nil
	case <-s.done:
		return nil, errMalgoStreamClosed
	}
}

func (s *malgoInputStream) Close() error {
	s.stop()
	return s.closeErr
}

type malgoOutputStream struct {
	malgoStream

	queue   chan []byte
	pending sync.WaitGroup
	// Only touched from the playback callback.
	current []byte
}

func (s *malgoOutputStream) onPlayback(output, _ []byte, _ uint32) {
	written := 0
	for written < len(output) {
		if len(s.current) == 0 {
			select {
			case chunk := <-s.queue:
				s.current = chunk
			default:
			}
			if len(s.current) == 0 {
				break
			}
		}

		n := copy(output[written:], s.current)
		written += n
		s.current = s.current[n:]
		if len(s.current) == 0 {
			s.pending.Done()
		}
	}

	// Silence for whatever the queue could not fill.
	clear(output[written:])
}

func (s *malgoOutputStream) Write(chunk []byte) error {
	if len(chunk)%s.config.BytesPerFrame() != 0 || len(chunk) > s.config.ChunkBytes() {
		return fmt.Errorf("chunk of %d bytes is not a whole number of frames up to %d", len(chunk), s.config.FramesPerBuffer)
	}
	if len(chunk) == 0 {
		return nil
	}

	owned := make([]byte, len(chunk))
	copy(owned, chunk)

	s.pending.Add(1)
	select {
	case s.queue <- owned:
		return nil
	case <-s.done:
		s.pending.Done()
		return errMalgoStreamClosed
	}
}

// Close waits for queued audio to be played before stopping the device.
func (s *malgoOutputStream) Close() error {
	drained := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(drained)
	}()

	// Upper bound on what can still be queued, plus device latency.
	queued := time.Duration(malgoPlaybackQueue+1) * time.Duration(s.config.FramesPerBuffer) * time.Second /
		time.Duration(s.config.SampleRate)
	select {
	case <-drained:
		s.stop()
	case <-time.After(queued + time.Second):
		s.logger.Warn("timeout waiting for playback queue to drain")
		s.stop()
		s.discardQueued()
		<-drained
	}
	return s.closeErr
}

// Drop whatever was never played, releasing its pending count. Only safe once
// the playback callback can no longer run.
func (s *malgoOutputStream) discardQueued() {
	if len(s.current) > 0 {
		s.current = nil
		s.pending.Done()
	}
	for {
		select {
		case <-s.queue:
			s.pending.Done()
		default:
			return
		}
	}
}
