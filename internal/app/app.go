// Package app runs the microphone test from start to finish: list the input
// devices, record a clip and offer to play it back.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/console"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/enumerator"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/player"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/recorder"
)

const (
	DefaultOutputPath = "test_recording.wav"
	DefaultDuration   = 5
)

// How to decide whether to play the recording back.
type PlaybackMode string

const (
	PlaybackAsk PlaybackMode = "ask"
	PlaybackYes PlaybackMode = "yes"
	PlaybackNo  PlaybackMode = "no"
)

func ParsePlaybackMode(s string) (PlaybackMode, error) {
	switch mode := PlaybackMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case PlaybackAsk, PlaybackYes, PlaybackNo:
		return mode, nil
	case "":
		return PlaybackAsk, nil
	default:
		return "", fmt.Errorf("invalid playback mode %q (want ask, yes or no)", s)
	}
}

type Options struct {
	Console *console.Console
	NewAPI  audioapi.Factory
	Logger  *slog.Logger

	// Where the recording is saved, DefaultOutputPath if empty.
	OutputPath string
	// Recording length in seconds. Zero or less prompts for it.
	Duration int
	// The zero value asks.
	Playback PlaybackMode
	// Passed to player.SetOutputRate.
	PlaybackRate int
}

// Run the whole test once.
//
// Only a failure to bring up the audio subsystem is returned; everything else
// is reported on the console and the test carries on to its closing banner.
func Run(opts Options) error {
	c := opts.Console
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = DefaultOutputPath
	}

	c.Banner("   MICROPHONE TEST UTILITY")

	if _, err := enumerator.ListAudioDevices(opts.NewAPI, c, logger); err != nil {
		if errors.Is(err, audioapi.ErrSubsystemUnavailable) {
			c.Error("Error: %v", err)
			return err
		}
		logger.Warn("could not list audio devices", "err", err)
		c.Error("Error: %v", err)
	}

	duration := opts.Duration
	if duration <= 0 {
		duration = c.PromptDuration(DefaultDuration)
	}

	rec := recorder.New(opts.NewAPI, c, logger)
	_, err := rec.Record(duration, outputPath)
	if errors.Is(err, audioapi.ErrSubsystemUnavailable) {
		c.Error("Error: %v", err)
		return err
	}
	if err == nil && wantsPlayback(c, opts.Playback) {
		p := player.New(opts.NewAPI, c, logger)
		p.SetOutputRate(opts.PlaybackRate)
		result := p.Playback(outputPath)
		logger.Debug("playback finished", "outcome", result.Outcome, "chunks", result.Chunks)
	}

	c.Banner("Test complete!")
	c.Println()
	return nil
}

func wantsPlayback(c *console.Console, mode PlaybackMode) bool {
	switch mode {
	case PlaybackYes:
		return true
	case PlaybackNo:
		return false
	default:
		c.Println()
		return c.Confirm("Would you like to hear the recording? (y/n): ")
	}
}
