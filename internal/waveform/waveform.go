// Package waveform renders a decoded clip as bars and tracks playback and an optional trim region.
package waveform

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/psantana5/denoise-studio/pkg/audio"
)

// ErrTrimmingDisabled is returned by SetRegion before EnableTrimming
var ErrTrimmingDisabled = errors.New("trimming is not enabled")

var levels = []rune(" ▁▂▃▄▅▆▇█")

// Waveform is a loaded clip
type Waveform struct {
	clip *audio.Clip

	mu       sync.Mutex
	trimming bool
	start    float64
	end      float64
	onRegion []func(start, end float64)
}

// Load decodes a WAV stream
func Load(r io.ReadSeeker) (*Waveform, error) {
	clip, err := audio.Decode(r)
	if err != nil {
		return nil, err
	}
	return FromClip(clip), nil
}

// FromClip wraps an already decoded clip
func FromClip(clip *audio.Clip) *Waveform {
	return &Waveform{clip: clip}
}

// Clip returns the decoded audio
func (w *Waveform) Clip() *audio.Clip {
	return w.clip
}

// Duration in seconds
func (w *Waveform) Duration() float64 {
	return w.clip.Seconds()
}

// Peaks splits the clip into n buckets and returns each bucket's peak,
// scaled so the loudest bucket is 1
func (w *Waveform) Peaks(n int) []float64 {
	if n <= 0 {
		return nil
	}
	peaks := make([]float64, n)
	samples := w.clip.Samples
	if len(samples) == 0 {
		return peaks
	}

	max := 0.0
	for i := 0; i < n; i++ {
		lo := i * len(samples) / n
		hi := (i + 1) * len(samples) / n
		if hi <= lo {
			hi = lo + 1
		}
		if hi > len(samples) {
			hi = len(samples)
		}
		for _, s := range samples[lo:hi] {
			if a := math.Abs(s); a > peaks[i] {
				peaks[i] = a
			}
		}
		if peaks[i] > max {
			max = peaks[i]
		}
	}

	if max > 0 {
		for i := range peaks {
			peaks[i] /= max
		}
	}
	return peaks
}

// Render draws width bars on one line
func (w *Waveform) Render(width int) string {
	var b strings.Builder
	for _, p := range w.Peaks(width) {
		idx := int(math.Round(p * float64(len(levels)-1)))
		b.WriteRune(levels[idx])
	}
	return b.String()
}

// EnableTrimming selects the whole clip as the trim region
func (w *Waveform) EnableTrimming() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trimming = true
	w.start = 0
	w.end = w.Duration()
}

// OnRegionChange registers fn to run after every SetRegion
func (w *Waveform) OnRegionChange(fn func(start, end float64)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onRegion = append(w.onRegion, fn)
}

// SetRegion moves the trim region. Bounds are ordered and clamped to the clip.
func (w *Waveform) SetRegion(start, end float64) error {
	w.mu.Lock()
	if !w.trimming {
		w.mu.Unlock()
		return ErrTrimmingDisabled
	}
	if start > end {
		start, end = end, start
	}
	dur := w.Duration()
	w.start = math.Max(0, math.Min(start, dur))
	w.end = math.Max(0, math.Min(end, dur))
	start, end = w.start, w.end
	callbacks := append([]func(float64, float64){}, w.onRegion...)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(start, end)
	}
	return nil
}

// Region returns the trim region; ok is false when trimming is off
func (w *Waveform) Region() (start, end float64, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.start, w.end, w.trimming
}

// Bounds returns the region as optional submission markers, nil when trimming is off
func (w *Waveform) Bounds() (start, end *float64) {
	s, e, ok := w.Region()
	if !ok {
		return nil, nil
	}
	return &s, &e
}

// SaveSpectrogram writes a PNG spectrogram of the clip
func (w *Waveform) SaveSpectrogram(path string, width, height int) error {
	if err := audio.SaveSpectrogram(w.clip, path, width, height); err != nil {
		return fmt.Errorf("failed to render spectrogram: %w", err)
	}
	return nil
}

// Player returns a playback position tracker for the clip
func (w *Waveform) Player() *Player {
	return NewPlayer(w.clip.Duration())
}

// FormatTime renders a position as m:ss, truncating fractions
func FormatTime(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
