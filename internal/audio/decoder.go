package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Decode errors. ErrUnsupportedFormat means the container or encoding is not
// decodable; ErrIo wraps device and file read failures.
var (
	ErrUnsupportedFormat = errors.New("audio: unsupported format")
	ErrIo                = errors.New("audio: read failed")
)

const wavHeaderSize = 44

// MediaDecoder is an injected capability for container formats the built-in
// WAV parser cannot handle (MP3/MP4/FLAC/M4A). Implementations return raw
// float samples plus the stream's native rate and channel count.
type MediaDecoder interface {
	Decode(r io.Reader) (samples []float32, sampleRate, channels int, err error)
}

// DecodeWAV parses an uncompressed PCM-16 WAV stream into a mono Buffer at
// the source sample rate. Multi-channel input is downmixed by averaging.
func DecodeWAV(r io.Reader) (*Buffer, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: short WAV header: %v", ErrUnsupportedFormat, err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE magic", ErrUnsupportedFormat)
	}

	channels := int(binary.LittleEndian.Uint16(header[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(header[24:28]))
	bitsPerSample := int(binary.LittleEndian.Uint16(header[34:36]))

	if bitsPerSample != 16 {
		return nil, fmt.Errorf("%w: only 16-bit PCM supported, got %d bits", ErrUnsupportedFormat, bitsPerSample)
	}
	if channels < 1 {
		channels = 1
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrUnsupportedFormat, sampleRate)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}

	frames := make([]int16, len(raw)/2)
	for i := range frames {
		frames[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}

	return &Buffer{
		Samples:    DownmixInt16(frames, channels),
		SampleRate: sampleRate,
	}, nil
}

// DecodeReader decodes a stream, sniffing for a WAV header first and falling
// back to the injected media decoder for other containers.
func DecodeReader(r io.Reader, media MediaDecoder) (*Buffer, error) {
	magic := make([]byte, 4)
	n, err := io.ReadFull(r, magic)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}
	rest := io.MultiReader(bytes.NewReader(magic[:n]), r)

	if string(magic[:n]) == "RIFF" {
		return DecodeWAV(rest)
	}

	if media == nil {
		return nil, fmt.Errorf("%w: no media decoder available", ErrUnsupportedFormat)
	}
	samples, rate, channels, err := media.Decode(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if channels > 1 {
		samples = downmixFloat(samples, channels)
	}
	return &Buffer{Samples: samples, SampleRate: rate}, nil
}

// DecodeFile decodes an audio file from disk
func DecodeFile(path string, media MediaDecoder) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}
	defer f.Close()
	return DecodeReader(f, media)
}

func downmixFloat(samples []float32, channels int) []float32 {
	n := len(samples) / channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var acc float32
		for ch := 0; ch < channels; ch++ {
			acc += samples[i*channels+ch]
		}
		out[i] = acc / float32(channels)
	}
	return out
}
