package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunWithDummyBackend(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "rec.wav")

	code := run([]string{
		"--config", "",
		"--backend", "dummy",
		"--loglevel", "none",
		"--duration", "1",
		"--playback", "no",
		"--output", output,
	})
	assert.Equal(t, 0, code)
	assert.FileExists(t, output)
}

func TestRunRejectsBadArguments(t *testing.T) {
	assert.Equal(t, 2, run([]string{"--config", "", "--backend", "rtaudio", "--loglevel", "none"}))
	assert.Equal(t, 2, run([]string{"--config", "", "--playback", "sometimes"}))
	assert.Equal(t, 2, run([]string{"--no-such-flag"}))
	assert.Equal(t, 1, run([]string{"--config", "", "--loglevel", "loud"}))
}
