// Package player plays a WAV file through the default output device.
package player

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/console"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/convert"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/wavfile"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/pkg/audiodevice"
	"github.com/google/uuid"
)

// Frames read from the file and written to the device at a time.
const ChunkSize = 1024

type Outcome int

const (
	Played Outcome = iota
	NotFound
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Played:
		return "played"
	case NotFound:
		return "not found"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// What a Playback call did. Err is nil only when Outcome is Played.
type Result struct {
	Outcome Outcome
	Path    string
	// Zero if the file could not be opened.
	Header wavfile.Header
	// Chunks written to the output stream.
	Chunks int
	Err    error
}

type Player struct {
	newAPI  audioapi.Factory
	console *console.Console
	logger  *slog.Logger

	outputRate int
}

func New(newAPI audioapi.Factory, console *console.Console, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		newAPI:  newAPI,
		console: console,
		logger:  logger,
	}
}

// Play 16-bit files at rate Hz, resampling them on the fly. Zero, the
// default, plays every file at its own rate.
func (p *Player) SetOutputRate(rate int) {
	p.outputRate = rate
}

// Playback streams the WAV file at path to the default output device.
//
// Failures, including a panic inside the audio backend, are reported on the
// console and in the returned Result; Playback itself never fails.
func (p *Player) Playback(path string) (result Result) {
	uuid := uuid.New()
	logger := p.logger.With(
		"playback uuid", uuid,
	)
	result.Path = path

	p.console.Printf("\n🔊 Playing back recording from %s...\n", path)

	defer func() {
		if v := recover(); v != nil {
			result.Outcome = Failed
			result.Err = fmt.Errorf("audio backend panicked: %v", v)
			logger.Error("playback panicked", "panic", v)
			p.console.Error("Error during playback: %v", result.Err)
		}
	}()

	err := p.play(logger, &result)
	switch {
	case err == nil:
		result.Outcome = Played
		logger.Info("played recording", "path", path, "chunks", result.Chunks)
		p.console.Success("Playback complete!")
	case errors.Is(err, fs.ErrNotExist):
		result.Outcome = NotFound
		result.Err = err
		logger.Warn("recording not found", "path", path)
		p.console.Error("Error: File '%s' not found!", path)
	default:
		result.Outcome = Failed
		result.Err = err
		logger.Error("playback failed", "path", path, "err", err)
		p.console.Error("Error during playback: %v", err)
	}
	return result
}

// Everything play opens is closed before it returns, panics included.
func (p *Player) play(logger *slog.Logger, result *Result) error {
	reader, err := wavfile.Open(result.Path)
	if err != nil {
		return err
	}
	defer reader.Close()

	header := reader.Header()
	result.Header = header
	format, err := header.Format()
	if err != nil {
		return err
	}

	api, err := audioapi.Acquire(p.newAPI)
	if err != nil {
		return err
	}
	defer func() {
		if err := api.Terminate(); err != nil {
			logger.Warn("could not release audio subsystem", "err", err)
		}
	}()

	config := audiodevice.StreamConfig{
		DeviceProperties: audiodevice.DeviceProperties{
			SampleRate:  header.SampleRate,
			NumChannels: header.NumChannels,
		},
		Format:          format,
		FramesPerBuffer: ChunkSize,
	}
	resampler, err := p.resamplerFor(logger, &config)
	if err != nil {
		return err
	}

	stream, err := api.OpenOutputStream(config)
	if err != nil {
		return fmt.Errorf("could not open output stream: %w", err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			logger.Warn("could not close output stream", "err", err)
		}
	}()
	config = stream.GetStreamConfig()
	logger.Debug(
		"opened output stream",
		"backend", api.Name(),
		"sample rate", config.SampleRate,
		"channels", config.NumChannels,
		"format", config.Format,
		"payload bytes", reader.PayloadSize(),
	)

	for {
		chunk, err := reader.ReadFrames(ChunkSize)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		if resampler != nil {
			chunk = resampler.Process(chunk)
		}

		// A resampled chunk can hold more frames than the stream takes at once.
		for len(chunk) > 0 {
			n := min(len(chunk), config.ChunkBytes())
			if err := stream.Write(chunk[:n]); err != nil {
				return fmt.Errorf("could not write chunk %d: %w", result.Chunks+1, err)
			}
			result.Chunks += 1
			chunk = chunk[n:]
		}
	}
}

// Returns nil, with config untouched, when no resampling is needed.
func (p *Player) resamplerFor(logger *slog.Logger, config *audiodevice.StreamConfig) (*convert.Resampler, error) {
	if p.outputRate <= 0 || p.outputRate == config.SampleRate {
		return nil, nil
	}
	if config.Format != audiodevice.FormatInt16 {
		logger.Warn(
			"only 16-bit audio can be resampled, playing at the file's own rate",
			"format", config.Format,
			"requested rate", p.outputRate,
		)
		return nil, nil
	}

	resampler, err := convert.NewResampler(config.NumChannels, config.SampleRate, p.outputRate)
	if err != nil {
		return nil, err
	}
	logger.Debug("resampling playback", "from", config.SampleRate, "to", p.outputRate)
	config.SampleRate = p.outputRate
	return resampler, nil
}
