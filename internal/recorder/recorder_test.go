package recorder

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/denoise-studio/pkg/audio"
)

func pcm(samples int) []byte {
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16((i % 200) * 100)
		out[2*i] = byte(v)
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}

func TestRecordFromPipe(t *testing.T) {
	pr, pw := io.Pipe()
	r := New(&ReaderSource{R: pr, Rate: 8000})
	r.now = func() time.Time { return time.Date(2024, 3, 1, 14, 5, 9, 0, time.Local) }

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.IsRecording())

	_, err := pw.Write(pcm(8000))
	require.NoError(t, err)

	rec, err := r.Stop()
	require.NoError(t, err)
	assert.False(t, r.IsRecording())
	assert.Equal(t, "live_record_14-05-09.wav", rec.Name)
	assert.Equal(t, time.Second, rec.Duration)

	clip, err := audio.DecodeBytes(rec.Data)
	require.NoError(t, err)
	assert.Equal(t, 8000, clip.SampleRate)
	assert.Len(t, clip.Samples, 8000)
}

func TestRecordSourceRunsDry(t *testing.T) {
	r := New(&ReaderSource{R: bytes.NewReader(pcm(1600))})
	require.NoError(t, r.Start(context.Background()))

	rec, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, rec.Duration)
}

func TestDoneClosesWhenSourceEnds(t *testing.T) {
	pr, pw := io.Pipe()
	r := New(&ReaderSource{R: pr})
	assert.Nil(t, r.Done())
	require.NoError(t, r.Start(context.Background()))

	done := r.Done()
	require.NotNil(t, done)
	go func() {
		pw.Write(pcm(800))
		pw.Close()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("capture kept running after the source closed")
	}
	assert.True(t, r.IsRecording())

	rec, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, rec.Duration)
}

func TestStartTwice(t *testing.T) {
	pr, _ := io.Pipe()
	r := New(&ReaderSource{R: pr})
	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrAlreadyRecording)

	_, err := r.Stop()
	assert.ErrorIs(t, err, ErrEmptyRecording)
}

func TestStopWithoutStart(t *testing.T) {
	r := New(&ReaderSource{R: bytes.NewReader(nil)})
	_, err := r.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestElapsed(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	now := base
	pr, pw := io.Pipe()
	r := New(&ReaderSource{R: pr})
	r.now = func() time.Time { return now }

	assert.Zero(t, r.Elapsed())
	require.NoError(t, r.Start(context.Background()))

	now = base.Add(2500 * time.Millisecond)
	assert.Equal(t, 2, r.Elapsed())

	go pw.Write(pcm(10))
	_, _ = r.Stop()
	assert.Zero(t, r.Elapsed())
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0:00", FormatElapsed(0))
	assert.Equal(t, "0:09", FormatElapsed(9))
	assert.Equal(t, "2:05", FormatElapsed(125))
}

func TestCommandSourceArgs(t *testing.T) {
	s := NewCommandSource("pulse", "default")
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "pulse",
		"-i", "default",
		"-ac", "1",
		"-ar", "16000",
		"-f", "s16le",
		"-",
	}, s.Args())
}

func TestCommandSourceMissingBinary(t *testing.T) {
	s := &CommandSource{Command: "denoise-studio-no-such-binary", Format: "pulse", Device: "default"}
	r := New(s)
	assert.Error(t, r.Start(context.Background()))
	assert.False(t, r.IsRecording())
}
