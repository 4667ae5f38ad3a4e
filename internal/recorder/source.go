package recorder

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// DefaultSampleRate is the capture rate requested from sources
const DefaultSampleRate = 16000

// Source yields raw signed 16-bit little-endian mono PCM
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	SampleRate() int
}

// CommandSource captures from an external command, ffmpeg by default
type CommandSource struct {
	Command string
	// Format and Device select the ffmpeg input, e.g. "pulse"/"default" or "avfoundation"/":0"
	Format string
	Device string
	Rate   int
}

// NewCommandSource returns an ffmpeg capture of device through format
func NewCommandSource(format, device string) *CommandSource {
	return &CommandSource{
		Command: "ffmpeg",
		Format:  format,
		Device:  device,
		Rate:    DefaultSampleRate,
	}
}

func (s *CommandSource) SampleRate() int {
	if s.Rate <= 0 {
		return DefaultSampleRate
	}
	return s.Rate
}

// Args builds the capture command line
func (s *CommandSource) Args() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", s.Format,
		"-i", s.Device,
		"-ac", "1",
		"-ar", strconv.Itoa(s.SampleRate()),
		"-f", "s16le",
		"-",
	}
}

// Open starts the command; the process is killed when ctx is done or the reader is closed
func (s *CommandSource) Open(ctx context.Context) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, s.Command, s.Args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start %s: %w", s.Command, err)
	}
	return &commandReader{ReadCloser: stdout, cmd: cmd, cancel: cancel}, nil
}

type commandReader struct {
	io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

// Close stops the capture process. Its exit status is not an error: it is always killed.
func (r *commandReader) Close() error {
	r.cancel()
	r.cmd.Wait()
	return nil
}

// ReaderSource wraps an existing PCM stream
type ReaderSource struct {
	R    io.Reader
	Rate int
}

func (s *ReaderSource) SampleRate() int {
	if s.Rate <= 0 {
		return DefaultSampleRate
	}
	return s.Rate
}

// Open returns the stream. A reader that is also an io.Closer is closed when ctx is done,
// which unblocks a pending Read.
func (s *ReaderSource) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, ok := s.R.(io.ReadCloser)
	if !ok {
		return io.NopCloser(s.R), nil
	}
	go func() {
		<-ctx.Done()
		rc.Close()
	}()
	return rc, nil
}
