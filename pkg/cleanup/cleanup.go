package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/psantana5/denoise-studio/pkg/logging"
	"github.com/psantana5/denoise-studio/pkg/models"
)

// Config defines retention policy and sweep cadence
type Config struct {
	Enabled         bool
	JobRetention    time.Duration
	CleanupInterval time.Duration
	InitialDelay    time.Duration
}

// DefaultConfig keeps jobs for 24 hours and sweeps hourly
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		JobRetention:    24 * time.Hour,
		CleanupInterval: time.Hour,
		InitialDelay:    time.Minute,
	}
}

// Store is the part of the job registry the cleanup manager needs.
// DeleteJob is expected to remove the job's files as well.
type Store interface {
	ListJobs() []*models.Job
	DeleteJob(id string) error
}

// Stats tracks cleanup runs
type Stats struct {
	LastCleanupTime     time.Time
	LastCleanupDuration time.Duration
	TotalJobsDeleted    int64
	Runs                int64
}

// Manager purges jobs older than the retention period
type Manager struct {
	config   Config
	store    Store
	logger   *logging.Logger
	sweepers []func()
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats Stats
}

// NewManager creates a cleanup manager
func NewManager(config Config, store Store, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config: config,
		store:  store,
		logger: logger.WithField("component", "cleanup"),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddSweeper registers fn to run after every cleanup pass
func (m *Manager) AddSweeper(fn func()) {
	m.sweepers = append(m.sweepers, fn)
}

// Start begins the periodic cleanup loop
func (m *Manager) Start() {
	if !m.config.Enabled {
		m.logger.Info("Cleanup manager disabled")
		return
	}

	m.logger.Info(fmt.Sprintf("Starting cleanup manager (retention: %v, interval: %v)",
		m.config.JobRetention, m.config.CleanupInterval))

	m.wg.Add(1)
	go m.loop()
}

// Stop stops the loop and waits for an in-progress pass
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) loop() {
	defer m.wg.Done()

	select {
	case <-m.ctx.Done():
		return
	case <-time.After(m.config.InitialDelay):
	}
	m.RunOnce()

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce()
		}
	}
}

// RunOnce deletes every job created before the retention cutoff and returns the count
func (m *Manager) RunOnce() int {
	start := m.now()
	cutoff := start.Add(-m.config.JobRetention)
	deleted := 0

	for _, job := range m.store.ListJobs() {
		if !job.CreatedAt.Before(cutoff) {
			continue
		}
		if err := m.store.DeleteJob(job.ID); err != nil {
			m.logger.Warn(fmt.Sprintf("Failed to delete job %s: %v", job.ID, err))
			continue
		}
		deleted++
	}

	for _, sweep := range m.sweepers {
		sweep()
	}

	m.mu.Lock()
	m.stats.LastCleanupTime = start
	m.stats.LastCleanupDuration = time.Since(start)
	m.stats.TotalJobsDeleted += int64(deleted)
	m.stats.Runs++
	m.mu.Unlock()

	if deleted > 0 {
		m.logger.Info(fmt.Sprintf("Cleaned up %d old jobs", deleted))
	}
	return deleted
}

// GetStats returns current cleanup statistics
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
