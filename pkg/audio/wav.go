// Package audio decodes, edits and encodes the PCM WAV clips the studio handles.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned for input that is not a decodable PCM WAV stream
var ErrInvalidWAV = errors.New("invalid WAV data")

// Clip is mono audio with samples normalised to [-1, 1]
type Clip struct {
	Samples    []float64
	SampleRate int
	// Channels and BitDepth describe the source the clip was decoded from
	Channels int
	BitDepth int
}

// Duration returns the clip length
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Seconds returns the clip length in seconds
func (c *Clip) Seconds() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Decode reads a PCM WAV stream and mixes it down to mono
func Decode(r io.ReadSeeker) (*Clip, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}

	channels := int(decoder.NumChans)
	bitDepth := int(decoder.BitDepth)
	if channels < 1 || bitDepth < 8 {
		return nil, fmt.Errorf("%w: %d channels at %d bits", ErrInvalidWAV, channels, bitDepth)
	}

	maxVal := float64(int(1) << (uint(bitDepth) - 1))
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			v := buf.Data[i*channels+ch]
			if bitDepth == 8 {
				// 8-bit PCM is unsigned
				v -= 128
			}
			sum += float64(v) / maxVal
		}
		samples[i] = sum / float64(channels)
	}

	return &Clip{
		Samples:    samples,
		SampleRate: int(decoder.SampleRate),
		Channels:   channels,
		BitDepth:   bitDepth,
	}, nil
}

// DecodeBytes decodes an in-memory WAV file
func DecodeBytes(data []byte) (*Clip, error) {
	return Decode(bytes.NewReader(data))
}

// FromPCM16 builds a clip from raw signed 16-bit little-endian mono samples.
// A trailing odd byte is ignored.
func FromPCM16(data []byte, sampleRate int) *Clip {
	samples := make([]float64, len(data)/2)
	for i := range samples {
		v := int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
		samples[i] = float64(v) / 32768.0
	}
	return &Clip{Samples: samples, SampleRate: sampleRate, Channels: 1, BitDepth: 16}
}

// Encode writes the clip as a 16-bit mono PCM WAV file
func Encode(w io.WriteSeeker, c *Clip) error {
	const bitDepth = 16

	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		data[i] = int(math.Round(clamp(s, -1, 1) * 32767))
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  c.SampleRate,
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	// audio format 1 is uncompressed PCM
	enc := wav.NewEncoder(w, c.SampleRate, bitDepth, 1, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV: %w", err)
	}
	return nil
}

// EncodeBytes encodes the clip into memory
func EncodeBytes(c *Clip) ([]byte, error) {
	ws := &writeSeeker{}
	if err := Encode(ws, c); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to patch chunk sizes
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(abs)
	return abs, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
