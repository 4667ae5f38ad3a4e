package store

import (
	"errors"
	"time"
)

// KV is the key-value collaborator the history store persists through.
// Implementations must be safe for concurrent use.
type KV interface {
	// Get returns ErrNotFound when key has never been set or was deleted
	Get(key string) ([]byte, error)
	// Set overwrites any previous value
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Config selects and configures a KV backend
type Config struct {
	Type string // "file", "sqlite", "postgres", "badger" or "memory"
	DSN  string // PostgreSQL connection string

	// Path is a directory (file, badger) or database file (sqlite)
	Path string

	// PostgreSQL pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

var (
	ErrNotFound            = errors.New("key not found")
	ErrUnsupportedDatabase = errors.New("unsupported database type")
)

// NewKV creates a backend based on configuration
func NewKV(config Config) (KV, error) {
	switch config.Type {
	case "memory":
		return NewMemoryKV(), nil
	case "file", "":
		return NewFileKV(config.Path)
	case "sqlite", "sqlite3":
		path := config.Path
		if path == "" {
			path = config.DSN
		}
		if path == "" {
			path = "history.db"
		}
		return NewSQLiteKV(path)
	case "postgres", "postgresql":
		return NewPostgresKV(config)
	case "badger":
		return NewBadgerKV(config.Path)
	default:
		return nil, ErrUnsupportedDatabase
	}
}
