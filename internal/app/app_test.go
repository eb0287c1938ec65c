package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/console"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWithInput(t *testing.T, input string, dummy audioapi.DummyOptions, opts Options) (*audioapi.DummyAudioIODeviceAPI, string, error) {
	t.Helper()
	api := audioapi.NewDummyAudioIODeviceAPI(dummy)
	var out bytes.Buffer
	opts.Console = console.New(strings.NewReader(input), &out)
	opts.NewAPI = api.Factory()
	if opts.OutputPath == "" {
		opts.OutputPath = filepath.Join(t.TempDir(), DefaultOutputPath)
	}
	err := Run(opts)
	return api, out.String(), err
}

func recordedBytes(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size() - 44
}

func TestRunDefaultsDurationOnEmptyOrInvalidInput(t *testing.T) {
	for _, input := range []string{"\nn\n", "abc\nn\n"} {
		path := filepath.Join(t.TempDir(), "rec.wav")
		api, out, err := runWithInput(t, input, audioapi.DummyOptions{}, Options{OutputPath: path})
		require.NoError(t, err)

		assert.EqualValues(t, recorder.ChunkCount(5)*1024*2, recordedBytes(t, path), "input %q", input)
		assert.Equal(t, 0, api.Stats().OutputStreams)
		assert.Contains(t, out, "MICROPHONE TEST UTILITY")
		assert.Contains(t, out, "=== Available Audio Devices ===")
		assert.Contains(t, out, "Device 0: DummyInput")
		assert.NotContains(t, out, "DummyOutput")
		assert.True(t, strings.HasSuffix(out, "Test complete!\n"+strings.Repeat("=", 50)+"\n\n"))
	}
}

func TestRunPlaysBackOnYes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.wav")
	api, out, err := runWithInput(t, "1\n  Y \n", audioapi.DummyOptions{}, Options{OutputPath: path})
	require.NoError(t, err)

	stats := api.Stats()
	assert.Equal(t, 1, stats.OutputStreams)
	assert.Equal(t, recorder.ChunkCount(1), stats.ChunksWritten)
	// enumerator, recorder and player each release their own handle
	assert.Equal(t, 3, stats.Terminated)
	assert.Contains(t, out, "Would you like to hear the recording? (y/n): ")
	assert.Contains(t, out, "✅ Playback complete!")
}

func TestRunNonInteractive(t *testing.T) {
	api, out, err := runWithInput(t, "", audioapi.DummyOptions{}, Options{Duration: 1, Playback: PlaybackYes})
	require.NoError(t, err)

	assert.NotContains(t, out, "Enter recording duration")
	assert.NotContains(t, out, "Would you like")
	assert.Equal(t, 1, api.Stats().OutputStreams)
}

func TestRunRecordingFailureSkipsPlayback(t *testing.T) {
	dummy := audioapi.DummyOptions{ReadErr: errors.New("unplugged"), ReadErrAfter: 3}
	api, out, err := runWithInput(t, "1\ny\n", dummy, Options{})
	require.NoError(t, err)

	assert.Contains(t, out, "❌ Error: ")
	assert.NotContains(t, out, "Would you like")
	assert.Equal(t, 0, api.Stats().OutputStreams)
	assert.Contains(t, out, "Test complete!")
}

func TestRunDeviceQueryFailureIsNotFatal(t *testing.T) {
	_, out, err := runWithInput(t, "", audioapi.DummyOptions{DevicesErr: errors.New("busy")}, Options{Duration: 1, Playback: PlaybackNo})
	require.NoError(t, err)
	assert.Contains(t, out, "❌ Error: could not query audio devices")
	assert.Contains(t, out, "💾 Audio saved to: ")
}

func TestRunSubsystemUnavailableIsFatal(t *testing.T) {
	var out bytes.Buffer
	err := Run(Options{
		Console: console.New(strings.NewReader("\n"), &out),
		NewAPI: func() (audioapi.AudioIODeviceAPI, error) {
			return nil, errors.New("no sound server")
		},
		OutputPath: filepath.Join(t.TempDir(), "rec.wav"),
	})
	require.ErrorIs(t, err, audioapi.ErrSubsystemUnavailable)
	assert.NotContains(t, out.String(), "Test complete!")
}

func TestParsePlaybackMode(t *testing.T) {
	for input, want := range map[string]PlaybackMode{"": PlaybackAsk, "ask": PlaybackAsk, " YES": PlaybackYes, "no": PlaybackNo} {
		mode, err := ParsePlaybackMode(input)
		require.NoError(t, err)
		assert.Equal(t, want, mode)
	}
	_, err := ParsePlaybackMode("maybe")
	assert.Error(t, err)
}
