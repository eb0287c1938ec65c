// Package recorder captures a fixed length clip from the default input device
// and saves it as a WAV file.
package recorder

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/console"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/progress"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/wavfile"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/pkg/audiodevice"
	"github.com/google/uuid"
)

// Every recording uses the same format.
const (
	SampleRate  = 44100
	NumChannels = 1
	ChunkSize   = 1024 // frames per read
	Format      = audiodevice.FormatInt16
)

var ErrInvalidDuration = errors.New("recording duration must be a positive number of seconds")

// The number of chunks read for a recording of the given length.
func ChunkCount(seconds int) int {
	return int(math.Round(float64(SampleRate) / float64(ChunkSize) * float64(seconds)))
}

func StreamConfig() audiodevice.StreamConfig {
	return audiodevice.StreamConfig{
		DeviceProperties: audiodevice.DeviceProperties{
			SampleRate:  SampleRate,
			NumChannels: NumChannels,
		},
		Format:          Format,
		FramesPerBuffer: ChunkSize,
	}
}

// What a successful Record call produced.
type Recording struct {
	Path        string
	Header      wavfile.Header
	Chunks      int
	PayloadSize int
}

type Recorder struct {
	newAPI  audioapi.Factory
	console *console.Console
	logger  *slog.Logger
}

func New(newAPI audioapi.Factory, console *console.Console, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		newAPI:  newAPI,
		console: console,
		logger:  logger,
	}
}

// Record seconds of audio from the default input device into a WAV file at
// outputPath, replacing any file already there.
//
// Any failure while capturing is reported on the console and returned, and
// leaves outputPath as it was. A failure to bring up the audio subsystem
// wraps audioapi.ErrSubsystemUnavailable and is left for the caller to
// report.
func (r *Recorder) Record(seconds int, outputPath string) (Recording, error) {
	if seconds <= 0 {
		return Recording{}, fmt.Errorf("%w: got %d", ErrInvalidDuration, seconds)
	}

	uuid := uuid.New()
	logger := r.logger.With(
		"recording uuid", uuid,
	)

	r.console.Printf("\n🎤 Starting microphone test...\n")
	r.console.Printf("Recording for %d seconds...\n", seconds)
	r.console.Printf("Speak into your microphone now!\n\n")

	payload, sampleWidth, err := r.capture(logger, seconds)
	if errors.Is(err, audioapi.ErrSubsystemUnavailable) {
		return Recording{}, err
	}
	if err != nil {
		logger.Error("recording failed", "err", err)
		r.console.Printf("\n")
		r.console.Error("Error: %v", err)
		return Recording{}, err
	}
	r.console.Printf("\n")
	r.console.Success("Recording complete!")

	header := wavfile.Header{
		NumChannels: NumChannels,
		SampleWidth: sampleWidth,
		SampleRate:  SampleRate,
	}
	if err := wavfile.Write(outputPath, header, payload); err != nil {
		logger.Error("could not save recording", "path", outputPath, "err", err)
		r.console.Error("Error: %v", err)
		return Recording{}, err
	}
	r.console.Printf("💾 Audio saved to: %s\n", outputPath)

	recording := Recording{
		Path:        outputPath,
		Header:      header,
		Chunks:      ChunkCount(seconds),
		PayloadSize: len(payload),
	}
	logger.Info(
		"saved recording",
		"path", recording.Path,
		"chunks", recording.Chunks,
		"bytes", recording.PayloadSize,
	)
	return recording, nil
}

// Read every chunk of the recording into memory. The stream and the subsystem
// are both released before this returns, on every path.
func (r *Recorder) capture(logger *slog.Logger, seconds int) ([]byte, int, error) {
	api, err := audioapi.Acquire(r.newAPI)
	if err != nil {
		logger.Error("could not start the audio subsystem", "err", err)
		return nil, 0, err
	}
	defer func() {
		if err := api.Terminate(); err != nil {
			logger.Warn("could not release audio subsystem", "err", err)
		}
	}()

	stream, err := api.OpenInputStream(StreamConfig())
	if err != nil {
		return nil, 0, fmt.Errorf("could not open input stream: %w", err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			logger.Warn("could not close input stream", "err", err)
		}
	}()
	config := stream.GetStreamConfig()
	logger.Debug(
		"opened input stream",
		"backend", api.Name(),
		"sample rate", config.SampleRate,
		"channels", config.NumChannels,
		"frames per buffer", config.FramesPerBuffer,
	)

	total := ChunkCount(seconds)
	var frames bytes.Buffer
	frames.Grow(total * config.ChunkBytes())

	bar := progress.New(r.console.Out(), "Recording", total)
	for i := range total {
		chunk, err := stream.Read()
		if err != nil {
			return nil, 0, fmt.Errorf("could not read chunk %d of %d: %w", i+1, total, err)
		}
		frames.Write(chunk)
		bar.Update(i + 1)
	}

	return frames.Bytes(), api.SampleSize(Format), nil
}
