package audioapi

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Honorable-Knights-of-the-Roundtable/mictest/pkg/audiodevice"
)

var (
	// Returned (wrapped) when the audio subsystem itself cannot be brought up.
	// Nothing in mictest can work without it, so callers treat it as fatal.
	ErrSubsystemUnavailable = errors.New("audio subsystem unavailable")

	ErrNoDevice          = errors.New("no suitable audio device")
	ErrUnsupportedFormat = errors.New("unsupported sample format")
	ErrUnknownBackend    = errors.New("unknown audio backend")
	ErrTerminated        = errors.New("audio subsystem already terminated")
)

type AudioIODevice struct {
	// The index of the device within one enumeration pass.
	//
	// Comes from the underlying API (PortAudio/miniaudio) and is only
	// stable until the devices are enumerated again.
	ID int

	// A human-readable name for the device, if one exists.
	Name string

	MaxInputChannels  int
	MaxOutputChannels int

	// The sample rate the device prefers, in Hz.
	DefaultSampleRate float64
}

func (device AudioIODevice) IsInput() bool {
	return device.MaxInputChannels > 0
}

func (device AudioIODevice) IsOutput() bool {
	return device.MaxOutputChannels > 0
}

// The default sample rate rounded to the nearest Hz.
func (device AudioIODevice) SampleRateHz() int {
	return int(math.Round(device.DefaultSampleRate))
}

func (device AudioIODevice) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Device %d: %s\n", device.ID, device.Name)
	fmt.Fprintf(&sb, "  - Input Channels: %d\n", device.MaxInputChannels)
	fmt.Fprintf(&sb, "  - Sample Rate: %d Hz\n", device.SampleRateHz())
	return sb.String()
}

// Define an API to interface with hardware devices.
// Intended to be an abstract way to:
// - Query existing devices (input and output)
// - Open blocking input/output streams as AudioSourceStream/AudioSinkStream respectively
//
// An AudioIODeviceAPI is a scoped handle on the audio subsystem: it is
// acquired by one operation and released by that same operation with
// Terminate, on every exit path.
type AudioIODeviceAPI interface {
	// The backend name, e.g. "portaudio".
	Name() string

	// All devices known to the subsystem, in index order.
	Devices() ([]AudioIODevice, error)

	// The number of bytes the subsystem uses for one sample of format.
	SampleSize(format audiodevice.SampleFormat) int

	// Open a stream on the default input device.
	OpenInputStream(config audiodevice.StreamConfig) (audiodevice.AudioSourceStream, error)

	// Open a stream on the default output device.
	OpenOutputStream(config audiodevice.StreamConfig) (audiodevice.AudioSinkStream, error)

	// Release the subsystem. Safe to call more than once.
	Terminate() error
}

// Acquires a fresh AudioIODeviceAPI. Every operation calls the factory once
// and terminates what it got back before returning.
type Factory func() (AudioIODeviceAPI, error)

// Acquire calls newAPI, making sure any failure wraps ErrSubsystemUnavailable
// whatever the factory returned.
func Acquire(newAPI Factory) (AudioIODeviceAPI, error) {
	api, err := newAPI()
	if err != nil {
		if !errors.Is(err, ErrSubsystemUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSubsystemUnavailable, err)
		}
		return nil, err
	}
	return api, nil
}

// Filters devices to get only input
func InputDevices(devices []AudioIODevice) []AudioIODevice {
	inputDevices := make([]AudioIODevice, 0, len(devices))
	for _, d := range devices {
		if d.IsInput() {
			inputDevices = append(inputDevices, d)
		}
	}
	return inputDevices
}
