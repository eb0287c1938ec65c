package wavfile

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/Honorable-Knights-of-the-Roundtable/mictest/pkg/audiodevice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monoHeader = Header{NumChannels: 1, SampleWidth: 2, SampleRate: 44100}

func rampPayload(format audiodevice.SampleFormat, samples int) []byte {
	values := make([]int, samples)
	for i := range values {
		values[i] = (i*37)%2000 - 1000
	}
	return audiodevice.AppendSamples(nil, format, values)
}

func TestWriteThenOpenKeepsHeaderAndPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	payload := rampPayload(audiodevice.FormatInt16, 5000)

	require.NoError(t, Write(path, monoHeader, payload))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 44+len(payload), info.Size())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, monoHeader, r.Header())
	assert.EqualValues(t, len(payload), r.PayloadSize())

	var got []byte
	for {
		chunk, err := r.ReadFrames(1024)
		require.NoError(t, err)
		if len(chunk) == 0 {
			break
		}
		got = append(got, chunk...)
	}
	assert.Equal(t, payload, got)
}

func TestReadFramesChunking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	header := Header{NumChannels: 2, SampleWidth: 2, SampleRate: 22050}
	// 2500 frames: two full chunks of 1024 and one of 452.
	require.NoError(t, Write(path, header, rampPayload(audiodevice.FormatInt16, 2*2500)))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	var sizes []int
	for {
		chunk, err := r.ReadFrames(1024)
		require.NoError(t, err)
		if len(chunk) == 0 {
			break
		}
		sizes = append(sizes, len(chunk)/header.BytesPerFrame())
	}
	assert.Equal(t, []int{1024, 1024, 452}, sizes)
}

func TestWriteOverwritesWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, Write(path, monoHeader, rampPayload(audiodevice.FormatInt16, 9000)))
	require.NoError(t, Write(path, monoHeader, rampPayload(audiodevice.FormatInt16, 100)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 44+200, info.Size())
}

func TestWriteFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.wav")

	err := Write(path, monoHeader, []byte{1, 2, 3})
	require.Error(t, err)

	err = Write(path, Header{NumChannels: 1, SampleWidth: 7, SampleRate: 44100}, nil)
	require.ErrorIs(t, err, ErrInvalidFile)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = Write(filepath.Join(dir, "missing", "clip.wav"), monoHeader, nil)
	assert.Error(t, err)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.wav"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestOpenRejectsNonWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a RIFF file, just some text"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestEightBitRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u8.wav")
	header := Header{NumChannels: 1, SampleWidth: 1, SampleRate: 8000}
	payload := []byte{0, 64, 128, 192, 255}
	require.NoError(t, Write(path, header, payload))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, header, r.Header())
	chunk, err := r.ReadFrames(1024)
	require.NoError(t, err)
	assert.Equal(t, payload, chunk)
}

func appendToFile(t *testing.T, path string, data []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func readAll(t *testing.T, r *Reader) []byte {
	t.Helper()
	var got []byte
	for {
		chunk, err := r.ReadFrames(1024)
		require.NoError(t, err)
		if len(chunk) == 0 {
			return got
		}
		got = append(got, chunk...)
	}
}

// A LIST chunk after the data, as some editors write.
var trailingChunk = []byte("LIST\x04\x00\x00\x00INFO")

func TestReadStopsAtOddDataSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u8.wav")
	header := Header{NumChannels: 1, SampleWidth: 1, SampleRate: 8000}
	payload := []byte{128, 130, 126, 129, 127}
	require.NoError(t, Write(path, header, payload))
	// RIFF pad byte, then another chunk.
	appendToFile(t, path, append([]byte{0xFF}, trailingChunk...))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.EqualValues(t, 5, r.PayloadSize())
	assert.Equal(t, payload, readAll(t, r))
}

func TestReadStopsBeforeTrailingChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	payload := rampPayload(audiodevice.FormatInt16, 1500)
	require.NoError(t, Write(path, monoHeader, payload))
	appendToFile(t, path, trailingChunk)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, payload, readAll(t, r))
}
