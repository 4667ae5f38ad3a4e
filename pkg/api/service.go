// Package api is a development stand-in for the denoising service. It speaks the
// service's HTTP contract and passes audio through a level-normalising pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/psantana5/denoise-studio/pkg/logging"
	"github.com/psantana5/denoise-studio/pkg/metrics"
	"github.com/psantana5/denoise-studio/pkg/models"
	"github.com/psantana5/denoise-studio/pkg/store"
)

// Version reported by /api/health
const Version = "1.0.0"

// AllowedExtensions lists the upload formats the service accepts
var AllowedExtensions = []string{".wav", ".mp3", ".flac", ".m4a", ".ogg"}

// Config configures the handler
type Config struct {
	// WorkDir holds one directory per job
	WorkDir string
	// MaxUploadBytes caps the multipart body
	MaxUploadBytes int64
	// StepDelay pauses between progress updates so pollers can observe them
	StepDelay time.Duration
}

// DefaultConfig returns defaults for local use
func DefaultConfig() Config {
	return Config{
		WorkDir:        filepath.Join(os.TempDir(), "denoise-studio"),
		MaxUploadBytes: 100 << 20,
		StepDelay:      300 * time.Millisecond,
	}
}

// Handler serves the denoise API
type Handler struct {
	cfg    Config
	jobs   *store.JobRegistry
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHandler creates a handler storing jobs in jobs
func NewHandler(cfg Config, jobs *store.JobRegistry, logger *logging.Logger) (*Handler, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		cfg:    cfg,
		jobs:   jobs,
		logger: logger.WithField("component", "api"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.Root).Methods("GET")
	r.HandleFunc("/api/health", h.Health).Methods("GET")
	r.HandleFunc("/api/metrics", h.Metrics).Methods("GET")

	r.HandleFunc("/api/denoise", h.Denoise).Methods("POST")
	r.HandleFunc("/api/status/{job_id}", h.Status).Methods("GET")
	r.HandleFunc("/api/download/{job_id}", h.Download).Methods("GET")
	r.HandleFunc("/api/jobs/{job_id}/spec/{type}", h.Spectrogram).Methods("GET")
	r.HandleFunc("/api/jobs/{job_id}", h.DeleteJob).Methods("DELETE")
}

// Shutdown cancels in-flight processing and waits for it to stop
func (h *Handler) Shutdown(ctx context.Context) error {
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every accepted job has finished processing
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Root describes the service
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "denoise-studio development service",
		"version": Version,
		"status":  "operational",
	})
}

// Health reports service status and host load
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:       "healthy",
		ModelLoaded:  false,
		GPUAvailable: false,
		Version:      Version,
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		resp.CPULoad = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryUsedPct = vm.UsedPercent
	}
	writeJSON(w, http.StatusOK, resp)
}

// Metrics aggregates completed jobs
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.Summarize(h.jobs.ListJobs()).Metrics)
}

// Denoise accepts an upload and starts processing it
func (h *Handler) Denoise(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No filename provided")
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !isAllowed(ext) {
		writeError(w, http.StatusBadRequest, "Unsupported file format. Allowed: "+strings.Join(AllowedExtensions, ", "))
		return
	}

	params := make(map[string]interface{})
	for _, field := range []string{"start_time", "end_time"} {
		raw := r.FormValue(field)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s: %q", field, raw))
			return
		}
		params[field] = v
	}

	id := uuid.New().String()
	workDir := filepath.Join(h.cfg.WorkDir, id)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		h.logger.Error(fmt.Sprintf("Failed to create job directory: %v", err))
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	inputPath := filepath.Join(workDir, "input"+ext)
	if err := saveUpload(file, inputPath); err != nil {
		os.RemoveAll(workDir)
		h.logger.Error(fmt.Sprintf("Failed to save upload: %v", err))
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	outputExt := ".wav"
	if ext != ".wav" {
		outputExt = ext
	}
	job := &models.Job{
		ID:               id,
		Status:           models.JobStatusProcessing,
		Progress:         0,
		Message:          "Starting audio processing...",
		OriginalFilename: header.Filename,
		WorkDir:          workDir,
		InputPath:        inputPath,
		OutputPath:       filepath.Join(workDir, "output"+outputExt),
		CreatedAt:        time.Now(),
	}
	if len(params) > 0 {
		job.Parameters = params
	}
	if err := h.jobs.CreateJob(job); err != nil {
		os.RemoveAll(workDir)
		writeError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	h.logger.Info("Job accepted", map[string]interface{}{"job_id": id, "file": header.Filename, "bytes": header.Size})
	h.wg.Add(1)
	go h.processJob(h.ctx, id)

	writeJSON(w, http.StatusAccepted, models.SubmitResponse{
		JobID:          id,
		Status:         models.JobStatusProcessing,
		Message:        "Audio processing started",
		CheckStatusURL: "/api/status/" + id,
	})
}

// Status returns the job snapshot
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.logger.Debug(fmt.Sprintf("Status check: %s (%.0f%%)", job.Status, job.Progress), map[string]interface{}{"job_id": job.ID})
	writeJSON(w, http.StatusOK, job.StatusResponse())
}

// Download serves the processed audio
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if job.Status != models.JobStatusCompleted {
		writeError(w, http.StatusBadRequest, "Processing not complete")
		return
	}
	if _, err := os.Stat(job.OutputPath); err != nil {
		writeError(w, http.StatusNotFound, "Output file not found")
		return
	}

	ext := filepath.Ext(job.OutputPath)
	if ct := mime.TypeByExtension(ext); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	name := "denoised_" + strings.TrimSuffix(job.OriginalFilename, filepath.Ext(job.OriginalFilename)) + ext
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeFile(w, r, job.OutputPath)
}

// Spectrogram serves the input or output spectrogram PNG
func (h *Handler) Spectrogram(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	file := outputSpecFile
	if mux.Vars(r)["type"] == "input" {
		file = inputSpecFile
	}
	path := filepath.Join(job.WorkDir, file)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "Spectrogram not found")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

// DeleteJob removes a job and its files
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["job_id"]
	if err := h.jobs.DeleteJob(id); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error(fmt.Sprintf("Failed to delete job: %v", err), map[string]interface{}{"job_id": id})
		writeError(w, http.StatusInternalServerError, "Failed to delete job")
		return
	}
	h.logger.Info("Job deleted", map[string]interface{}{"job_id": id})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Job deleted successfully"})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	id := mux.Vars(r)["job_id"]
	job, err := h.jobs.GetJob(id)
	if err != nil {
		h.logger.Warn("Request for unknown job", map[string]interface{}{"job_id": id})
		writeError(w, http.StatusNotFound, "Job not found")
		return nil, false
	}
	return job, true
}

func isAllowed(ext string) bool {
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

func saveUpload(src io.Reader, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, models.ErrorResponse{Detail: detail})
}
