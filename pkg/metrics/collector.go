package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Poll outcomes
const (
	PollOK        = "ok"
	PollNotFound  = "not_found"
	PollTransient = "transient"
	PollStale     = "stale"
)

// Collector tracks the studio's job activity on its own registry
type Collector struct {
	registry *prometheus.Registry

	submissions *prometheus.CounterVec
	polls       *prometheus.CounterVec
	finished    *prometheus.CounterVec
	historySize prometheus.Gauge
	pollLatency prometheus.Histogram
	activePolls prometheus.Gauge
}

// NewCollector creates a collector with a private registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "denoise_studio_submissions_total",
				Help: "Upload attempts by result",
			},
			[]string{"result"},
		),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "denoise_studio_polls_total",
				Help: "Status polls by outcome",
			},
			[]string{"outcome"},
		),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "denoise_studio_jobs_finished_total",
				Help: "Jobs that reached a terminal state",
			},
			[]string{"status"},
		),
		historySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "denoise_studio_history_entries",
			Help: "Entries currently held in the history store",
		}),
		pollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "denoise_studio_poll_duration_seconds",
			Help:    "Latency of status requests",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		activePolls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "denoise_studio_active_pollers",
			Help: "Poll tasks currently running",
		}),
	}

	c.registry.MustRegister(
		c.submissions,
		c.polls,
		c.finished,
		c.historySize,
		c.pollLatency,
		c.activePolls,
	)
	return c
}

// Registry exposes the underlying registry (for promhttp or Dump)
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordSubmission counts an upload attempt
func (c *Collector) RecordSubmission(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.submissions.WithLabelValues(result).Inc()
}

// RecordPoll counts one status poll and its latency
func (c *Collector) RecordPoll(outcome string, elapsed time.Duration) {
	c.polls.WithLabelValues(outcome).Inc()
	if outcome != PollStale {
		c.pollLatency.Observe(elapsed.Seconds())
	}
}

// RecordFinished counts a job reaching a terminal state
func (c *Collector) RecordFinished(status string) {
	c.finished.WithLabelValues(status).Inc()
}

// SetHistorySize records the number of history entries
func (c *Collector) SetHistorySize(n int) {
	c.historySize.Set(float64(n))
}

// PollerStarted marks a poll task as running
func (c *Collector) PollerStarted() { c.activePolls.Inc() }

// PollerStopped marks a poll task as finished
func (c *Collector) PollerStopped() { c.activePolls.Dec() }
