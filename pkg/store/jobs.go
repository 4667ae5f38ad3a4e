package store

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/psantana5/denoise-studio/pkg/models"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

// JobRegistry is the service's in-memory job table.
// Callers always receive copies.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// NewJobRegistry creates an empty registry
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*models.Job)}
}

// CreateJob inserts job
func (r *JobRegistry) CreateJob(job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return ErrJobExists
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob returns a copy of the job
func (r *JobRegistry) GetJob(id string) (*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// UpdateJob applies fn to the stored job under the registry lock
func (r *JobRegistry) UpdateJob(id string, fn func(*models.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(job)
	return nil
}

// ListJobs returns copies of all jobs, oldest first
func (r *JobRegistry) ListJobs() []*models.Job {
	r.mu.RLock()
	out := make([]*models.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// DeleteJob removes the job and its working directory
func (r *JobRegistry) DeleteJob(id string) error {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if ok {
		delete(r.jobs, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrJobNotFound
	}
	if job.WorkDir != "" {
		if err := os.RemoveAll(job.WorkDir); err != nil {
			return fmt.Errorf("failed to remove files of job %s: %w", id, err)
		}
	}
	return nil
}
