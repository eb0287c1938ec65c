package audioapi

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

const (
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
	BackendDummy     = "dummy"
)

// Backends lists the names accepted by NewFactory.
func Backends() []string {
	names := []string{BackendPortAudio, BackendMalgo, BackendDummy}
	sort.Strings(names)
	return names
}

// Create a Factory for the named backend. The factory does not touch the
// audio subsystem until it is called.
//
// Subsystem initialization errors returned by the factory wrap
// ErrSubsystemUnavailable.
func NewFactory(backend string, logger *slog.Logger) (Factory, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendPortAudio, "":
		return func() (AudioIODeviceAPI, error) {
			api, err := NewPortAudioApi(logger)
			if err != nil {
				return nil, err
			}
			return api, nil
		}, nil
	case BackendMalgo:
		return func() (AudioIODeviceAPI, error) {
			api, err := NewMalgoApi(logger)
			if err != nil {
				return nil, err
			}
			return api, nil
		}, nil
	case BackendDummy:
		return func() (AudioIODeviceAPI, error) {
			return NewDummyAudioIODeviceAPI(DummyOptions{Logger: logger, Realtime: true}), nil
		}, nil
	default:
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownBackend, backend, strings.Join(Backends(), ", "))
	}
}
