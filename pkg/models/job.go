package models

import (
	"time"
)

// JobStatus represents the status of a denoise job
type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// JobResult describes the artifact and quality figures of a completed job
type JobResult struct {
	OutputURL        string  `json:"output_url"`
	Duration         float64 `json:"duration"`
	NoiseReductionDB float64 `json:"noise_reduction_db"`
	SNRImprovementDB float64 `json:"snr_improvement_db"`
	ConfidenceScore  float64 `json:"confidence_score"` // 0-100
	ProcessingTime   float64 `json:"processing_time"`  // seconds
	InputSpecURL     string  `json:"input_spec_url,omitempty"`
	OutputSpecURL    string  `json:"output_spec_url,omitempty"`
}

// Job represents one denoise request as tracked by the service
type Job struct {
	ID               string                 `json:"job_id"`
	Status           JobStatus              `json:"status"`
	Progress         float64                `json:"progress"` // 0-100%
	Message          string                 `json:"message"`
	OriginalFilename string                 `json:"original_filename,omitempty"`
	WorkDir          string                 `json:"-"` // holds input, output and spectrograms
	InputPath        string                 `json:"-"`
	OutputPath       string                 `json:"-"`
	Parameters       map[string]interface{} `json:"parameters,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	Result           *JobResult             `json:"result,omitempty"`
}

// SubmitResponse is returned by POST /api/denoise
type SubmitResponse struct {
	JobID          string    `json:"job_id"`
	Status         JobStatus `json:"status"`
	Message        string    `json:"message"`
	CheckStatusURL string    `json:"check_status_url"`
}

// StatusResponse is returned by GET /api/status/{job_id}
type StatusResponse struct {
	JobID       string     `json:"job_id"`
	Status      JobStatus  `json:"status"`
	Progress    float64    `json:"progress"`
	Message     string     `json:"message"`
	CreatedAt   string     `json:"created_at,omitempty"`
	CompletedAt *string    `json:"completed_at,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
}

// ErrorResponse is the body of every non-2xx service response
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse is returned by GET /api/health
type HealthResponse struct {
	Status        string  `json:"status"`
	ModelLoaded   bool    `json:"model_loaded"`
	GPUAvailable  bool    `json:"gpu_available"`
	Version       string  `json:"version"`
	CPULoad       float64 `json:"cpu_load_percent,omitempty"`
	MemoryUsedPct float64 `json:"memory_used_percent,omitempty"`
}

// ServiceMetrics is returned by GET /api/metrics
type ServiceMetrics struct {
	TotalProcessed        int     `json:"total_processed"`
	AverageProcessingTime float64 `json:"average_processing_time"`
	NoiseReductionAvg     float64 `json:"noise_reduction_avg"`
	SNRImprovementAvg     float64 `json:"snr_improvement_avg"`
}

// StatusResponse converts a service-side job into its wire form
func (j *Job) StatusResponse() StatusResponse {
	resp := StatusResponse{
		JobID:     j.ID,
		Status:    j.Status,
		Progress:  j.Progress,
		Message:   j.Message,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		Result:    j.Result,
	}
	if j.CompletedAt != nil {
		completed := j.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}

// Clone returns a copy that shares no mutable state with j
func (j *Job) Clone() *Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Parameters != nil {
		c.Parameters = make(map[string]interface{}, len(j.Parameters))
		for k, v := range j.Parameters {
			c.Parameters[k] = v
		}
	}
	return &c
}
