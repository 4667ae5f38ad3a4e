package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/psantana5/denoise-studio/pkg/client"
	"github.com/psantana5/denoise-studio/pkg/history"
	"github.com/psantana5/denoise-studio/pkg/metrics"
	"github.com/psantana5/denoise-studio/pkg/models"
)

// pollTask is the single status poller the controller owns
type pollTask struct {
	gen    uint64
	jobID  string
	cancel context.CancelFunc
}

// startPolling replaces any running poller; callers hold c.mu
func (c *Controller) startPolling(jobID string) {
	c.stopPolling()

	ctx, cancel := context.WithCancel(context.Background())
	task := &pollTask{gen: c.gen, jobID: jobID, cancel: cancel}
	c.poll = task

	atomic.AddInt32(&c.activePollers, 1)
	c.metrics.PollerStarted()
	go c.runPoll(ctx, task)
}

// stopPolling cancels the owned poller. It does not wait for the goroutine:
// a result it delivers afterwards fails the ownership check in applyPoll.
// Callers hold c.mu.
func (c *Controller) stopPolling() {
	if c.poll == nil {
		return
	}
	c.poll.cancel()
	c.poll = nil
}

func (c *Controller) runPoll(ctx context.Context, task *pollTask) {
	defer func() {
		atomic.AddInt32(&c.activePollers, -1)
		c.metrics.PollerStopped()
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// one request in flight; ticks that fire meanwhile are coalesced by the ticker
		start := time.Now()
		status, err := c.api.GetStatus(ctx, task.jobID)
		if !c.applyPoll(task, status, err, time.Since(start)) {
			return
		}
	}
}

// applyPoll folds one poll result into the state and reports whether polling should continue
func (c *Controller) applyPoll(task *pollTask, status *models.StatusResponse, err error, elapsed time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poll != task || c.gen != task.gen {
		c.metrics.RecordPoll(metrics.PollStale, elapsed)
		return false
	}

	if err != nil {
		if errors.Is(err, client.ErrJobNotFound) {
			c.metrics.RecordPoll(metrics.PollNotFound, elapsed)
			c.logger.Warn("Job no longer known to the service", map[string]interface{}{"job_id": task.jobID})
			c.setStatus(models.JobStatusError)
			c.message = MsgJobLost
			c.stopPolling()
			c.metrics.RecordFinished(string(models.JobStatusError))
			c.publish(nil)
			return false
		}
		// transient; the next tick retries
		c.metrics.RecordPoll(metrics.PollTransient, elapsed)
		c.logger.Debug(fmt.Sprintf("Status poll failed: %v", err), map[string]interface{}{"job_id": task.jobID})
		return true
	}

	c.metrics.RecordPoll(metrics.PollOK, elapsed)
	c.progress = status.Progress
	c.message = status.Message

	switch models.ControllerState(status.Status) {
	case models.JobStatusCompleted:
		c.result = status.Result
		c.setStatus(models.JobStatusCompleted)
		c.stopPolling()
		if status.Result != nil {
			c.recordHistory(task.jobID, status.Result)
		}
		c.metrics.RecordFinished(string(models.JobStatusCompleted))
		c.publish(&Notification{Level: LevelSuccess, Message: MsgDenoised})
		return false

	case models.JobStatusError:
		c.setStatus(models.JobStatusError)
		c.stopPolling()
		c.metrics.RecordFinished(string(models.JobStatusError))
		c.publish(&Notification{Level: LevelError, Message: msgProcessFailed + status.Message})
		return false

	default:
		if !models.IsActiveState(status.Status) {
			c.logger.Debug(fmt.Sprintf("Unknown job status %q, still processing", status.Status))
		}
		c.setStatus(models.JobStatusProcessing)
		c.publish(nil)
		return true
	}
}

// recordHistory appends the finished job; callers hold c.mu
func (c *Controller) recordHistory(jobID string, result *models.JobResult) {
	entry := models.HistoryEntry{
		ID:      jobID,
		Name:    c.fileName,
		Date:    c.now().Format(history.DateLayout),
		Results: result,
	}
	if c.ref != nil {
		entry.OriginalURL = c.ref.URL()
	}

	entries, err := c.hist.Append(entry)
	if err != nil {
		c.logger.Warn(fmt.Sprintf("Failed to persist history: %v", err))
	}
	c.entries = entries
	c.metrics.SetHistorySize(len(entries))
}
