// Package recorder captures live audio from a Source and hands it back as a WAV file.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/psantana5/denoise-studio/pkg/audio"
	"github.com/psantana5/denoise-studio/pkg/logging"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
	ErrEmptyRecording   = errors.New("no audio captured")
)

// Recording is a finished capture
type Recording struct {
	Data     []byte
	Duration time.Duration
	Name     string
}

// Recorder captures one take at a time
type Recorder struct {
	source Source
	logger *logging.Logger
	now    func() time.Time

	mu        sync.Mutex
	recording bool
	started   time.Time
	pcm       bytes.Buffer
	cancel    context.CancelFunc
	done      chan struct{}
	readErr   error
}

// Option configures a Recorder
type Option func(*Recorder)

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// New creates a recorder reading from source
func New(source Source, opts ...Option) *Recorder {
	r := &Recorder{source: source, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	r.logger = r.logger.WithField("component", "recorder")
	return r
}

// Start begins capturing. Capture ends on Stop, when ctx is done, or when the source runs dry.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return ErrAlreadyRecording
	}

	ctx, cancel := context.WithCancel(ctx)
	rc, err := r.source.Open(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to open audio source: %w", err)
	}

	r.recording = true
	r.started = r.now()
	r.pcm.Reset()
	r.readErr = nil
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.capture(ctx, rc, r.done)
	r.logger.Info("Recording started")
	return nil
}

func (r *Recorder) capture(ctx context.Context, rc io.ReadCloser, done chan struct{}) {
	defer close(done)
	defer rc.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			r.mu.Lock()
			r.pcm.Write(buf[:n])
			r.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				r.mu.Lock()
				r.readErr = err
				r.mu.Unlock()
			}
			return
		}
	}
}

// Stop ends the capture and encodes what was recorded
func (r *Recorder) Stop() (Recording, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return Recording{}, ErrNotRecording
	}
	r.recording = false
	cancel, done, started := r.cancel, r.done, r.started
	r.mu.Unlock()

	cancel()
	<-done

	r.mu.Lock()
	pcm := append([]byte(nil), r.pcm.Bytes()...)
	readErr := r.readErr
	r.pcm.Reset()
	r.mu.Unlock()

	if readErr != nil {
		r.logger.Warn(fmt.Sprintf("Capture ended early: %v", readErr))
	}
	if len(pcm) < 2 {
		return Recording{}, ErrEmptyRecording
	}

	clip := audio.FromPCM16(pcm, r.source.SampleRate())
	data, err := audio.EncodeBytes(clip)
	if err != nil {
		return Recording{}, fmt.Errorf("failed to encode recording: %w", err)
	}

	rec := Recording{
		Data:     data,
		Duration: clip.Duration(),
		Name:     fmt.Sprintf("live_record_%s.wav", started.Format("15-04-05")),
	}
	r.logger.Info("Recording stopped", map[string]interface{}{"name": rec.Name, "duration": rec.Duration.String()})
	return rec, nil
}

// Done is closed once the current capture stops reading, either after Stop
// or because the source ended on its own. It is nil when idle.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil
	}
	return r.done
}

// IsRecording reports whether a capture is in progress
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Elapsed is the whole seconds recorded so far, or 0 when idle
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return 0
	}
	return int(r.now().Sub(r.started) / time.Second)
}

// FormatElapsed renders seconds as m:ss
func FormatElapsed(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
