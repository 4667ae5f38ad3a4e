// Package history keeps the bounded, most-recent-first log of completed jobs.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/psantana5/denoise-studio/pkg/logging"
	"github.com/psantana5/denoise-studio/pkg/models"
	"github.com/psantana5/denoise-studio/pkg/store"
)

const (
	// Key is the single entry the whole list is persisted under
	Key = "denoise_history"
	// MaxEntries caps the list; older entries are evicted first
	MaxEntries = 10
)

// DateLayout formats HistoryEntry.Date as a local time of day
const DateLayout = "3:04:05 PM"

// Store reads and writes the history list through a KV
type Store struct {
	kv     store.KV
	logger *logging.Logger
	mu     sync.Mutex
}

// New creates a history store over kv
func New(kv store.KV, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		kv:     kv,
		logger: logger.WithField("component", "history"),
	}
}

// Load returns the stored entries, most recent first.
// Missing or malformed data yields an empty list; the problem is logged, never returned.
func (s *Store) Load() []models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() []models.HistoryEntry {
	data, err := s.kv.Get(Key)
	if errors.Is(err, store.ErrNotFound) {
		return []models.HistoryEntry{}
	}
	if err != nil {
		s.logger.Warn(fmt.Sprintf("Failed to read history: %v", err))
		return []models.HistoryEntry{}
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn(fmt.Sprintf("Failed to load history: %v", err))
		return []models.HistoryEntry{}
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	return entries
}

// Append prepends entry, truncates to MaxEntries and overwrites the stored list.
// It returns the resulting list even when persisting fails.
func (s *Store) Append(entry models.HistoryEntry) ([]models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.load()
	updated := make([]models.HistoryEntry, 0, MaxEntries)
	updated = append(updated, entry)
	updated = append(updated, current...)
	if len(updated) > MaxEntries {
		updated = updated[:MaxEntries]
	}

	data, err := json.Marshal(updated)
	if err != nil {
		return updated, fmt.Errorf("failed to encode history: %w", err)
	}
	if err := s.kv.Set(Key, data); err != nil {
		return updated, fmt.Errorf("failed to save history: %w", err)
	}
	return updated, nil
}

// Find returns the entry with the given id
func (s *Store) Find(id string) (models.HistoryEntry, bool) {
	for _, e := range s.Load() {
		if e.ID == id {
			return e, true
		}
	}
	return models.HistoryEntry{}, false
}

// Clear removes the stored list
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(Key); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
