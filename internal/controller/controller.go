// Package controller drives a denoise job from upload to result and records finished jobs in history.
package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/psantana5/denoise-studio/pkg/client"
	"github.com/psantana5/denoise-studio/pkg/logging"
	"github.com/psantana5/denoise-studio/pkg/metrics"
	"github.com/psantana5/denoise-studio/pkg/models"
)

// DefaultPollInterval is the status poll cadence
const DefaultPollInterval = 1500 * time.Millisecond

// User-facing messages
const (
	MsgUploading     = "Uploading to AI server..."
	MsgUploadFailed  = "Upload failed. Check server connection."
	MsgJobLost       = "Job lost. Please try again."
	MsgDenoised      = "Audio denoised successfully!"
	msgProcessFailed = "Processing failed: "
)

var (
	ErrEmptyInput        = errors.New("no audio to submit")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrClosed            = errors.New("controller closed")
)

// API is the subset of the service client the controller needs
type API interface {
	Submit(ctx context.Context, filename string, audio io.Reader, start, end *float64) (*models.SubmitResponse, error)
	GetStatus(ctx context.Context, jobID string) (*models.StatusResponse, error)
	DownloadURL(jobID string) string
}

// History is where completed jobs are recorded
type History interface {
	Load() []models.HistoryEntry
	Append(entry models.HistoryEntry) ([]models.HistoryEntry, error)
}

// Input is audio handed to Submit
type Input struct {
	// Name is the file name reported to the service; generated when empty
	Name      string
	Data      []byte
	Recording bool
	// Start and End optionally bound the region to process, in seconds
	Start *float64
	End   *float64
}

// Snapshot is a copy of the controller state
type Snapshot struct {
	Status          models.JobStatus
	JobID           string
	FileName        string
	Progress        float64
	Message         string
	Result          *models.JobResult
	OriginalURL     string
	ShowSpectrogram bool
	History         []models.HistoryEntry
}

// Controller owns one job at a time
type Controller struct {
	api     API
	hist    History
	logger  *logging.Logger
	metrics *metrics.Collector

	interval     time.Duration
	tempDir      string
	originalsDir string
	now       func() time.Time
	observers []func(Snapshot)
	notifiers []func(Notification)

	mu       sync.Mutex
	status   models.JobStatus
	jobID    string
	fileName string
	progress float64
	message  string
	result   *models.JobResult
	showSpec bool
	entries  []models.HistoryEntry
	ref      audioRef
	poll     *pollTask
	gen      uint64
	closed   bool
	changed  chan struct{}

	activePollers int32
	events        *dispatcher
}

// Option configures a Controller
type Option func(*Controller)

// WithPollInterval overrides DefaultPollInterval
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithMetrics records activity on collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = collector }
}

// WithObserver registers fn to receive every state change, in order, on a separate goroutine
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) { c.observers = append(c.observers, fn) }
}

// WithNotifier registers fn to receive success and failure notifications
func WithNotifier(fn func(Notification)) Option {
	return func(c *Controller) { c.notifiers = append(c.notifiers, fn) }
}

// WithTempDir sets where temporary copies of submitted audio are kept
func WithTempDir(dir string) Option {
	return func(c *Controller) { c.tempDir = dir }
}

// WithOriginalsDir keeps submitted audio under dir so history entries can still
// reach it after the controller is reset or closed. See PruneOriginals.
func WithOriginalsDir(dir string) Option {
	return func(c *Controller) { c.originalsDir = dir }
}

// New creates an idle controller and loads the history list
func New(api API, hist History, opts ...Option) *Controller {
	c := &Controller{
		api:      api,
		hist:     hist,
		interval: DefaultPollInterval,
		now:      time.Now,
		status:   models.JobStatusIdle,
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	c.logger = c.logger.WithField("component", "controller")
	if c.metrics == nil {
		c.metrics = metrics.NewCollector()
	}

	c.entries = hist.Load()
	c.metrics.SetHistorySize(len(c.entries))
	c.events = newDispatcher(c.observers, c.notifiers)
	return c
}

// Close stops polling and releases the temporary audio. The controller is unusable afterwards.
// Close must not be called from an observer or notifier.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	c.stopPolling()
	err := c.releaseRef()
	close(c.changed)
	c.mu.Unlock()

	c.events.close()
	return err
}

// Submit uploads in.Data and, on success, starts polling the new job.
// Any job already in progress is abandoned first. Upload failures become the error state;
// only precondition failures are returned.
func (c *Controller) Submit(ctx context.Context, in Input) error {
	if len(in.Data) == 0 {
		return ErrEmptyInput
	}

	name := in.Name
	if name == "" {
		name = fmt.Sprintf("recording_%d.wav", c.now().UnixMilli())
	}

	var (
		ref audioRef
		err error
	)
	if c.originalsDir != "" {
		ref, err = newKeptRef(c.originalsDir, name, in.Data)
	} else {
		ref, err = newTempRef(c.tempDir, name, in.Data)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ref.Release()
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	c.stopPolling()
	if err := c.releaseRef(); err != nil {
		c.logger.Warn(fmt.Sprintf("Failed to release previous audio: %v", err))
	}
	c.ref = ref
	c.jobID = ""
	c.fileName = name
	c.result = nil
	c.showSpec = false
	c.setStatus(models.JobStatusProcessing)
	c.progress = 0
	c.message = MsgUploading
	c.publish(nil)
	c.mu.Unlock()

	c.logger.Info("Uploading audio", map[string]interface{}{"file": name, "bytes": len(in.Data), "recording": in.Recording})
	resp, err := c.api.Submit(ctx, name, bytes.NewReader(in.Data), in.Start, in.End)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		// reset, closed or superseded while uploading
		return nil
	}

	if err != nil {
		c.metrics.RecordSubmission(false)
		msg := MsgUploadFailed
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Detail != "" {
			msg = apiErr.Detail
		}
		c.logger.Warn(fmt.Sprintf("Upload failed: %v", err))
		c.setStatus(models.JobStatusError)
		c.message = msg
		c.metrics.RecordFinished(string(models.JobStatusError))
		c.publish(&Notification{Level: LevelError, Message: msg})
		return nil
	}

	c.metrics.RecordSubmission(true)
	c.jobID = resp.JobID
	c.logger.Info("Job accepted", map[string]interface{}{"job_id": resp.JobID})
	c.startPolling(resp.JobID)
	c.publish(nil)
	return nil
}

// Reset abandons the current job and returns to idle. Calling it repeatedly is harmless.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.gen++
	c.stopPolling()
	if err := c.releaseRef(); err != nil {
		c.logger.Warn(fmt.Sprintf("Failed to release audio: %v", err))
	}
	c.jobID = ""
	c.fileName = ""
	c.progress = 0
	c.message = ""
	c.result = nil
	c.showSpec = false
	c.setStatus(models.JobStatusIdle)
	c.publish(nil)
}

// LoadFromHistory shows a past result without contacting the service. Only valid when idle.
func (c *Controller) LoadFromHistory(entry models.HistoryEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.status != models.JobStatusIdle {
		return fmt.Errorf("%w: cannot load history while %s", ErrInvalidTransition, c.status)
	}

	c.gen++
	c.jobID = entry.ID
	c.fileName = entry.Name
	c.ref = borrowedRef{url: entry.OriginalURL}
	c.result = entry.Results
	c.setStatus(models.JobStatusCompleted)
	c.publish(nil)
	return nil
}

// ToggleSpectrogram flips the spectrogram view of a completed job and returns the new setting
func (c *Controller) ToggleSpectrogram() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != models.JobStatusCompleted {
		return false, fmt.Errorf("%w: no completed job", ErrInvalidTransition)
	}
	c.showSpec = !c.showSpec
	c.publish(nil)
	return c.showSpec, nil
}

// DownloadURL returns the artifact location of the current job
func (c *Controller) DownloadURL() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jobID == "" {
		return "", false
	}
	return c.api.DownloadURL(c.jobID), true
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Wait blocks while a job is processing and returns the state it settled in
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	for {
		c.mu.Lock()
		snap := c.snapshot()
		changed := c.changed
		closed := c.closed
		c.mu.Unlock()

		if snap.Status != models.JobStatusProcessing {
			return snap, nil
		}
		if closed {
			return snap, ErrClosed
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-changed:
		}
	}
}

// ActivePollers reports how many poll goroutines are running
func (c *Controller) ActivePollers() int {
	return int(atomic.LoadInt32(&c.activePollers))
}

// setStatus logs the transition; callers hold c.mu
func (c *Controller) setStatus(to models.JobStatus) {
	from := c.status
	if from != to {
		if err := models.ValidateTransition(from, to); err != nil {
			c.logger.Debug(fmt.Sprintf("Unusual transition: %v", err))
		}
		c.logger.Info("State change", map[string]interface{}{"from": from, "to": to, "job_id": c.jobID})
	}
	c.status = to
}

func (c *Controller) releaseRef() error {
	if c.ref == nil {
		return nil
	}
	err := c.ref.Release()
	c.ref = nil
	return err
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		Status:          c.status,
		JobID:           c.jobID,
		FileName:        c.fileName,
		Progress:        c.progress,
		Message:         c.message,
		ShowSpectrogram: c.showSpec,
		History:         append([]models.HistoryEntry(nil), c.entries...),
	}
	if c.result != nil {
		r := *c.result
		s.Result = &r
	}
	if c.ref != nil {
		s.OriginalURL = c.ref.URL()
	}
	return s
}

// publish wakes waiters and queues the new state (and n) for observers; callers hold c.mu
func (c *Controller) publish(n *Notification) {
	if !c.closed {
		close(c.changed)
		c.changed = make(chan struct{})
	}
	snap := c.snapshot()
	c.events.push(event{snapshot: &snap})
	if n != nil {
		c.events.push(event{notification: n})
	}
}
