package controller

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/psantana5/denoise-studio/pkg/models"
)

// audioRef is a handle on the original audio of the current job
type audioRef interface {
	// URL locates the audio for playback or history
	URL() string
	// Release frees whatever the reference holds. Safe to call more than once.
	Release() error
}

// tempRef owns a temporary file holding uploaded or recorded audio
type tempRef struct {
	path string
	once sync.Once
	err  error
}

func newTempRef(dir, name string, data []byte) (*tempRef, error) {
	path, err := writeOriginal(dir, name, data)
	if err != nil {
		return nil, err
	}
	return &tempRef{path: path}, nil
}

func writeOriginal(dir, name string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".wav"
	}

	f, err := os.CreateTemp(dir, originalPrefix+"*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp audio: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp audio: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp audio: %w", err)
	}
	return f.Name(), nil
}

const originalPrefix = "denoise-original-"

func fileURL(path string) string {
	return "file://" + filepath.ToSlash(path)
}

func (r *tempRef) URL() string {
	return fileURL(r.path)
}

func (r *tempRef) Release() error {
	r.once.Do(func() {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			r.err = err
		}
	})
	return r.err
}

// keptRef is an original written to a persistent directory. History entries
// keep pointing at it after the controller lets go, so Release leaves the file.
type keptRef struct {
	path string
}

func newKeptRef(dir, name string, data []byte) (*keptRef, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create originals directory: %w", err)
	}
	path, err := writeOriginal(dir, name, data)
	if err != nil {
		return nil, err
	}
	return &keptRef{path: path}, nil
}

func (r *keptRef) URL() string { return fileURL(r.path) }
func (r *keptRef) Release() error { return nil }

// PruneOriginals removes kept originals in dir that no history entry references.
// It returns how many files were removed.
func PruneOriginals(dir string, entries []models.HistoryEntry) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read originals directory: %w", err)
	}

	referenced := make(map[string]bool, len(entries))
	for _, e := range entries {
		referenced[e.OriginalURL] = true
	}

	removed := 0
	for _, f := range files {
		if f.IsDir() || !strings.HasPrefix(f.Name(), originalPrefix) {
			continue
		}
		path := filepath.Join(dir, f.Name())
		if referenced[fileURL(path)] {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove %s: %w", f.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// borrowedRef points at audio owned by someone else (a history entry); releasing it does nothing
type borrowedRef struct {
	url string
}

func (r borrowedRef) URL() string { return r.url }
func (r borrowedRef) Release() error { return nil }
