// Package wavfile reads and writes uncompressed PCM WAV files.
//
// Files are written in one piece from a payload already held in memory, and
// read back a few frames at a time so that playback never holds the whole
// payload.
package wavfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Honorable-Knights-of-the-Roundtable/mictest/pkg/audiodevice"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

var ErrInvalidFile = errors.New("invalid WAV file")

// The fmt chunk fields mictest cares about.
type Header struct {
	NumChannels int
	// Bytes per sample.
	SampleWidth int
	SampleRate  int
}

func (h Header) BytesPerFrame() int {
	return h.NumChannels * h.SampleWidth
}

func (h Header) BitDepth() int {
	return h.SampleWidth * 8
}

func (h Header) Format() (audiodevice.SampleFormat, error) {
	return audiodevice.FormatFromWidth(h.SampleWidth)
}

func (h Header) Validate() error {
	if h.NumChannels <= 0 || h.SampleRate <= 0 {
		return fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidFile, h.NumChannels, h.SampleRate)
	}
	if _, err := h.Format(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	return nil
}

// Write replaces the file at path with a WAV file holding payload, which must
// be interleaved little endian PCM matching header.
//
// The file is assembled next to its destination and renamed into place, so a
// failed write leaves any previous file untouched and no partial file behind.
func Write(path string, header Header, payload []byte) (err error) {
	if err := header.Validate(); err != nil {
		return err
	}
	format, _ := header.Format()
	if len(payload)%header.BytesPerFrame() != 0 {
		return fmt.Errorf("payload of %d bytes is not a whole number of %d byte frames", len(payload), header.BytesPerFrame())
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("could not create audio file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	encoder := wav.NewEncoder(tmp, header.SampleRate, header.BitDepth(), header.NumChannels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			SampleRate:  header.SampleRate,
			NumChannels: header.NumChannels,
		},
		Data:           audiodevice.DecodeSamples(nil, format, payload),
		SourceBitDepth: header.BitDepth(),
	}
	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("could not write audio data: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("could not finalize audio file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("could not set audio file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close audio file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not move audio file into place: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------------
// Reader

// Reader streams the PCM payload of a WAV file a few frames at a time.
type Reader struct {
	file    *os.File
	decoder *wav.Decoder
	header  Header
	format  audiodevice.SampleFormat
	buf     *goaudio.IntBuffer

	dataSize    int64
	samplesLeft int64
}

// The size of the data chunk as written in the file. The decoder reports it
// rounded up to the RIFF word boundary and reads past the chunk on request, so
// the pad byte and any trailing chunk would otherwise be decoded as samples.
// Must be called right after FwdToPCM, while the file sits at the first
// data byte.
func declaredDataSize(f *os.File) (int64, error) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	var size [4]byte
	if _, err := f.ReadAt(size[:], pos-4); err != nil {
		return 0, fmt.Errorf("could not read data chunk size: %w", err)
	}
	return int64(binary.LittleEndian.Uint32(size[:])), nil
}

// Open a WAV file for reading. A missing file yields an error satisfying
// errors.Is(err, fs.ErrNotExist); a file that is not PCM WAV yields
// ErrInvalidFile.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r, err := newReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func newReader(f *os.File) (*Reader, error) {
	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		if err := decoder.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
		}
		return nil, ErrInvalidFile
	}
	if decoder.WavAudioFormat != wavFormatPCM && decoder.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: audio format %d is not PCM", ErrInvalidFile, decoder.WavAudioFormat)
	}

	header := Header{
		NumChannels: int(decoder.NumChans),
		SampleWidth: (int(decoder.BitDepth) + 7) / 8,
		SampleRate:  int(decoder.SampleRate),
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}
	format, _ := header.Format()

	if err := decoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: no data chunk: %w", ErrInvalidFile, err)
	}
	dataSize, err := declaredDataSize(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}

	return &Reader{
		file:        f,
		decoder:     decoder,
		header:      header,
		format:      format,
		dataSize:    dataSize,
		samplesLeft: dataSize / int64(header.SampleWidth),
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				SampleRate:  header.SampleRate,
				NumChannels: header.NumChannels,
			},
			SourceBitDepth: header.BitDepth(),
		},
	}, nil
}

func (r *Reader) Header() Header {
	return r.header
}

// PayloadSize is the size of the data chunk in bytes, as declared by the file.
func (r *Reader) PayloadSize() int64 {
	return r.dataSize
}

// ReadFrames returns up to n frames of interleaved little endian PCM. An empty
// slice (and nil error) means the payload is exhausted.
func (r *Reader) ReadFrames(n int) ([]byte, error) {
	want := int(min(int64(n*r.header.NumChannels), r.samplesLeft))
	if want <= 0 {
		return []byte{}, nil
	}
	if cap(r.buf.Data) < want {
		r.buf.Data = make([]int, want)
	}
	r.buf.Data = r.buf.Data[:want]

	filled := 0
	for filled < want {
		part := &goaudio.IntBuffer{
			Format:         r.buf.Format,
			Data:           r.buf.Data[filled:],
			SourceBitDepth: r.buf.SourceBitDepth,
		}
		read, err := r.decoder.PCMBuffer(part)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("could not read audio data: %w", err)
		}
		if read <= 0 {
			break
		}
		filled += read
	}
	r.samplesLeft -= int64(filled)

	// Drop a trailing partial frame.
	filled -= filled % r.header.NumChannels
	return audiodevice.AppendSamples(make([]byte, 0, filled*r.header.SampleWidth), r.format, r.buf.Data[:filled]), nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}
