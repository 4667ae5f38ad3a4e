package waveform

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/denoise-studio/pkg/audio"
)

// ramp returns a clip whose amplitude grows linearly over seconds
func ramp(seconds float64, rate int) *audio.Clip {
	n := int(seconds * float64(rate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = float64(i) / float64(n)
		if i%2 == 1 {
			samples[i] = -samples[i]
		}
	}
	return &audio.Clip{Samples: samples, SampleRate: rate, Channels: 1, BitDepth: 16}
}

func TestLoad(t *testing.T) {
	data, err := audio.EncodeBytes(ramp(2, 8000))
	require.NoError(t, err)

	w, err := Load(bytes.NewReader(data))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, w.Duration(), 1e-9)

	_, err = Load(bytes.NewReader([]byte("not audio")))
	assert.Error(t, err)
}

func TestPeaks(t *testing.T) {
	w := FromClip(ramp(1, 1000))

	peaks := w.Peaks(4)
	require.Len(t, peaks, 4)
	assert.InDelta(t, 1.0, peaks[3], 1e-9)
	for i := 1; i < len(peaks); i++ {
		assert.Greater(t, peaks[i], peaks[i-1])
	}

	assert.Nil(t, w.Peaks(0))
	assert.Equal(t, []float64{0, 0}, FromClip(&audio.Clip{SampleRate: 8000}).Peaks(2))
}

func TestPeaksMoreBucketsThanSamples(t *testing.T) {
	w := FromClip(&audio.Clip{Samples: []float64{0.5, -1}, SampleRate: 2})
	peaks := w.Peaks(5)
	assert.Len(t, peaks, 5)
	assert.InDelta(t, 1.0, peaks[4], 1e-9)
}

func TestRender(t *testing.T) {
	w := FromClip(ramp(1, 1000))
	line := w.Render(20)
	assert.Equal(t, 20, utf8.RuneCountInString(line))
	r, _ := utf8.DecodeLastRuneInString(line)
	assert.Equal(t, '█', r)
}

func TestRegion(t *testing.T) {
	w := FromClip(ramp(3, 1000))

	_, _, ok := w.Region()
	assert.False(t, ok)
	assert.ErrorIs(t, w.SetRegion(0, 1), ErrTrimmingDisabled)
	s, e := w.Bounds()
	assert.Nil(t, s)
	assert.Nil(t, e)

	var got [][2]float64
	w.OnRegionChange(func(start, end float64) { got = append(got, [2]float64{start, end}) })

	w.EnableTrimming()
	start, end, ok := w.Region()
	assert.True(t, ok)
	assert.Equal(t, 0.0, start)
	assert.InDelta(t, 3.0, end, 1e-9)
	assert.Empty(t, got)

	require.NoError(t, w.SetRegion(2.5, 0.5))
	require.NoError(t, w.SetRegion(-1, 10))
	require.Len(t, got, 2)
	assert.Equal(t, [2]float64{0.5, 2.5}, got[0])
	assert.Equal(t, 0.0, got[1][0])
	assert.InDelta(t, 3.0, got[1][1], 1e-9)

	s, e = w.Bounds()
	require.NotNil(t, s)
	require.NotNil(t, e)
	assert.Equal(t, 0.0, *s)
}

func TestSaveSpectrogram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.png")
	require.NoError(t, FromClip(ramp(0.5, 8000)).SaveSpectrogram(path, 128, 64))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{999 * time.Millisecond, "0:00"},
		{9 * time.Second, "0:09"},
		{61500 * time.Millisecond, "1:01"},
		{10 * time.Minute, "10:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTime(tt.in))
	}
}

func TestPlayer(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	p := NewPlayer(90 * time.Second)
	p.now = func() time.Time { return now }

	assert.False(t, p.Playing())
	assert.Equal(t, "0:00 / 1:30", p.Readout())

	assert.True(t, p.Toggle())
	now = base.Add(12 * time.Second)
	assert.Equal(t, "0:12 / 1:30", p.Readout())

	assert.False(t, p.Toggle())
	now = base.Add(40 * time.Second)
	assert.Equal(t, 12*time.Second, p.Elapsed())

	assert.True(t, p.Toggle())
	now = base.Add(200 * time.Second)
	assert.False(t, p.Playing())
	assert.Equal(t, 90*time.Second, p.Elapsed())

	// finished clips restart
	assert.True(t, p.Toggle())
	assert.Equal(t, time.Duration(0), p.Elapsed())
}
