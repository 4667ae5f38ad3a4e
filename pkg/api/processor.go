package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/psantana5/denoise-studio/pkg/audio"
	"github.com/psantana5/denoise-studio/pkg/models"
)

// OutputPeakDB is the level processed audio is normalised to
const OutputPeakDB = -1.0

const (
	inputSpecFile  = "input_spec.png"
	outputSpecFile = "output_spec.png"
	specWidth      = 1000
	specHeight     = 400
)

// processJob runs the processing pipeline for a stored job and records the outcome
func (h *Handler) processJob(ctx context.Context, id string) {
	defer h.wg.Done()

	start := time.Now()
	h.logger.Info("Starting processing", map[string]interface{}{"job_id": id})

	result, err := h.runPipeline(ctx, id, start)
	now := time.Now()
	if err != nil {
		h.logger.Error(fmt.Sprintf("Processing failed: %v", err), map[string]interface{}{"job_id": id})
		h.jobs.UpdateJob(id, func(job *models.Job) {
			job.Status = models.JobStatusError
			job.Message = "Error: " + err.Error()
			job.CompletedAt = &now
		})
		return
	}

	h.jobs.UpdateJob(id, func(job *models.Job) {
		job.Status = models.JobStatusCompleted
		job.Progress = 100
		job.Message = "Processing complete"
		job.CompletedAt = &now
		job.Result = result
	})
	h.logger.Info("Job completed", map[string]interface{}{
		"job_id":          id,
		"noise_reduction": result.NoiseReductionDB,
		"processing_time": result.ProcessingTime,
	})
}

// step publishes progress, then pauses for the configured step delay
func (h *Handler) step(ctx context.Context, id string, progress float64, message string) error {
	err := h.jobs.UpdateJob(id, func(job *models.Job) {
		job.Progress = progress
		job.Message = message
	})
	if err != nil {
		// deleted while processing
		return err
	}
	if h.cfg.StepDelay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(h.cfg.StepDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.New("service shutting down")
	case <-timer.C:
		return nil
	}
}

func (h *Handler) runPipeline(ctx context.Context, id string, start time.Time) (*models.JobResult, error) {
	job, err := h.jobs.GetJob(id)
	if err != nil {
		return nil, err
	}

	if err := h.step(ctx, id, 10, "Loading audio file..."); err != nil {
		return nil, err
	}
	if !strings.EqualFold(filepath.Ext(job.InputPath), ".wav") {
		return h.passthrough(ctx, job, start)
	}

	f, err := os.Open(job.InputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load audio: %w", err)
	}
	input, err := audio.Decode(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to load audio: %w", err)
	}
	if len(input.Samples) == 0 {
		return nil, errors.New("audio file is empty")
	}

	result := &models.JobResult{Duration: input.Seconds()}

	if err := h.step(ctx, id, 20, "Generating visualization..."); err != nil {
		return nil, err
	}
	if h.renderSpectrogram(id, input, filepath.Join(job.WorkDir, inputSpecFile)) {
		result.InputSpecURL = specURL(id, "input")
	}

	if err := h.step(ctx, id, 35, "Computing spectrogram..."); err != nil {
		return nil, err
	}
	if err := h.step(ctx, id, 50, "AI Inference (Chunked)..."); err != nil {
		return nil, err
	}
	processed := input
	if startAt, endAt, ok := trimBounds(job.Parameters); ok {
		processed = input.Trim(startAt, endAt)
		if len(processed.Samples) == 0 {
			return nil, errors.New("selected region is empty")
		}
	}

	if err := h.step(ctx, id, 80, "Reconstructing audio..."); err != nil {
		return nil, err
	}
	if err := h.step(ctx, id, 85, "Finalizing visualization..."); err != nil {
		return nil, err
	}
	if h.renderSpectrogram(id, processed, filepath.Join(job.WorkDir, outputSpecFile)) {
		result.OutputSpecURL = specURL(id, "output")
	}

	if err := h.step(ctx, id, 90, "Calculating quality metrics..."); err != nil {
		return nil, err
	}
	q := audio.Compare(input, processed)
	result.NoiseReductionDB = q.NoiseReductionDB
	result.SNRImprovementDB = q.SNRImprovementDB
	result.ConfidenceScore = q.ConfidenceScore

	if err := h.step(ctx, id, 95, "Exporting results..."); err != nil {
		return nil, err
	}
	if err := writeWAV(job.OutputPath, processed.Normalize(OutputPeakDB)); err != nil {
		return nil, err
	}

	result.OutputURL = downloadURL(id)
	result.ProcessingTime = time.Since(start).Seconds()
	return result, nil
}

// passthrough copies audio the service cannot decode straight to the output
func (h *Handler) passthrough(ctx context.Context, job *models.Job, start time.Time) (*models.JobResult, error) {
	h.logger.Warn("No decoder for format, passing audio through", map[string]interface{}{
		"job_id": job.ID,
		"format": filepath.Ext(job.InputPath),
	})

	for _, s := range []struct {
		progress float64
		message  string
	}{
		{50, "AI Inference (Chunked)..."},
		{95, "Exporting results..."},
	} {
		if err := h.step(ctx, job.ID, s.progress, s.message); err != nil {
			return nil, err
		}
	}

	if err := copyFile(job.InputPath, job.OutputPath); err != nil {
		return nil, err
	}
	return &models.JobResult{
		OutputURL:      downloadURL(job.ID),
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

func (h *Handler) renderSpectrogram(id string, clip *audio.Clip, path string) bool {
	if err := audio.SaveSpectrogram(clip, path, specWidth, specHeight); err != nil {
		h.logger.Error(fmt.Sprintf("Error generating spectrogram: %v", err), map[string]interface{}{"job_id": id})
		return false
	}
	return true
}

// trimBounds reads the optional start_time/end_time parameters
func trimBounds(params map[string]interface{}) (start, end float64, ok bool) {
	s, hasStart := params["start_time"].(float64)
	e, hasEnd := params["end_time"].(float64)
	if !hasStart && !hasEnd {
		return 0, 0, false
	}
	return s, e, true
}

func writeWAV(path string, clip *audio.Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := audio.Encode(f, clip); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func downloadURL(id string) string {
	return "/api/download/" + id
}

func specURL(id, kind string) string {
	return fmt.Sprintf("/api/jobs/%s/spec/%s", id, kind)
}
