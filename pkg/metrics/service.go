package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/psantana5/denoise-studio/pkg/models"
)

// JobSource is the read side of the service's job registry
type JobSource interface {
	ListJobs() []*models.Job
}

// ServiceCollector exposes the state of the service's jobs at scrape time
type ServiceCollector struct {
	jobs      JobSource
	startTime time.Time

	uptime         *prometheus.Desc
	jobsByStatus   *prometheus.Desc
	processingTime *prometheus.Desc
	noiseReduction *prometheus.Desc
}

// NewServiceCollector creates a collector reading from jobs
func NewServiceCollector(jobs JobSource) *ServiceCollector {
	return &ServiceCollector{
		jobs:      jobs,
		startTime: time.Now(),
		uptime: prometheus.NewDesc(
			"denoise_service_uptime_seconds",
			"Time since the service started",
			nil, nil,
		),
		jobsByStatus: prometheus.NewDesc(
			"denoise_service_jobs",
			"Jobs currently tracked, by status",
			[]string{"status"}, nil,
		),
		processingTime: prometheus.NewDesc(
			"denoise_service_processing_seconds_avg",
			"Average processing time of completed jobs",
			nil, nil,
		),
		noiseReduction: prometheus.NewDesc(
			"denoise_service_noise_reduction_db_avg",
			"Average noise reduction of completed jobs",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *ServiceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.uptime
	ch <- c.jobsByStatus
	ch <- c.processingTime
	ch <- c.noiseReduction
}

// Collect implements prometheus.Collector
func (c *ServiceCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, time.Since(c.startTime).Seconds())

	summary := Summarize(c.jobs.ListJobs())
	for _, status := range []models.JobStatus{
		models.JobStatusPending,
		models.JobStatusProcessing,
		models.JobStatusCompleted,
		models.JobStatusError,
	} {
		ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue,
			float64(summary.ByStatus[status]), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.processingTime, prometheus.GaugeValue, summary.Metrics.AverageProcessingTime)
	ch <- prometheus.MustNewConstMetric(c.noiseReduction, prometheus.GaugeValue, summary.Metrics.NoiseReductionAvg)
}

// Summary aggregates a set of jobs
type Summary struct {
	ByStatus map[models.JobStatus]int
	Metrics  models.ServiceMetrics
}

// Summarize computes per-status counts and averages over completed jobs
func Summarize(jobs []*models.Job) Summary {
	s := Summary{ByStatus: make(map[models.JobStatus]int)}

	var totalTime, totalNR, totalSNR float64
	for _, job := range jobs {
		s.ByStatus[job.Status]++
		if job.Status != models.JobStatusCompleted || job.Result == nil {
			continue
		}
		s.Metrics.TotalProcessed++
		totalTime += job.Result.ProcessingTime
		totalNR += job.Result.NoiseReductionDB
		totalSNR += job.Result.SNRImprovementDB
	}

	if n := float64(s.Metrics.TotalProcessed); n > 0 {
		s.Metrics.AverageProcessingTime = totalTime / n
		s.Metrics.NoiseReductionAvg = totalNR / n
		s.Metrics.SNRImprovementAvg = totalSNR / n
	}
	return s
}
