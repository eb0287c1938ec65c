package enumerator

import (
	"fmt"
	"log/slog"

	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/console"
)

// List every device of the audio subsystem that can capture audio, printing
// a short description of each to the console.
//
// The subsystem handle is acquired for this call only and released before
// returning. A failure to bring the subsystem up wraps
// audioapi.ErrSubsystemUnavailable.
func ListAudioDevices(newAPI audioapi.Factory, c *console.Console, logger *slog.Logger) ([]audioapi.AudioIODevice, error) {
	if logger == nil {
		logger = slog.Default()
	}

	api, err := audioapi.Acquire(newAPI)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := api.Terminate(); err != nil {
			logger.Warn("could not release audio subsystem", "err", err)
		}
	}()

	devices, err := api.Devices()
	if err != nil {
		return nil, fmt.Errorf("could not query audio devices: %w", err)
	}

	inputs := audioapi.InputDevices(devices)
	logger.Debug(
		"enumerated audio devices",
		"backend", api.Name(),
		"devices", len(devices),
		"inputs", len(inputs),
	)

	c.Println()
	c.Heading("Available Audio Devices")
	for _, device := range inputs {
		c.Printf("%s", device.String())
	}
	c.Println()

	return inputs, nil
}
