package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// exerciseKV runs the contract every backend must satisfy
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()

	if _, err := kv.Get("denoise_history"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store: got %v, want ErrNotFound", err)
	}

	if err := kv.Set("denoise_history", []byte(`[{"id":"1"}]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := kv.Get("denoise_history")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `[{"id":"1"}]` {
		t.Errorf("Get = %s", got)
	}

	// overwrite
	if err := kv.Set("denoise_history", []byte(`[]`)); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	got, _ = kv.Get("denoise_history")
	if string(got) != `[]` {
		t.Errorf("after overwrite Get = %s", got)
	}

	if err := kv.Delete("denoise_history"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := kv.Get("denoise_history"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: got %v, want ErrNotFound", err)
	}
	if err := kv.Delete("never-set"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemoryKV())
}

func TestMemoryKVCopiesValues(t *testing.T) {
	kv := NewMemoryKV()
	value := []byte("abc")
	kv.Set("k", value)
	value[0] = 'x'

	got, _ := kv.Get("k")
	if string(got) != "abc" {
		t.Errorf("stored value aliased caller slice: %s", got)
	}
}

func TestFileKV(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}
	exerciseKV(t, kv)
}

func TestFileKVLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	kv, _ := NewFileKV(dir)
	for i := 0; i < 5; i++ {
		kv.Set("denoise_history", []byte(fmt.Sprintf("%d", i)))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected a single file, found %d", len(entries))
	}
}

func TestSQLiteKV(t *testing.T) {
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteKV: %v", err)
	}
	defer kv.Close()

	if err := kv.HealthCheck(); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	exerciseKV(t, kv)
}

// TestSQLiteConcurrentWrites checks that concurrent writers don't hit SQLITE_BUSY
func TestSQLiteConcurrentWrites(t *testing.T) {
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteKV: %v", err)
	}
	defer kv.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := kv.Set(fmt.Sprintf("key-%d", idx%4), []byte("v")); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Set failed: %v", err)
	}
}

func TestBadgerKV(t *testing.T) {
	kv, err := NewBadgerKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadgerKV: %v", err)
	}
	defer kv.Close()
	exerciseKV(t, kv)
}

// TestPostgresKV runs against a real database.
// Set DATABASE_DSN to run: export DATABASE_DSN="postgresql://..."
func TestPostgresKV(t *testing.T) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("Skipping PostgreSQL integration test: DATABASE_DSN not set")
	}

	kv, err := NewKV(Config{Type: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL store: %v", err)
	}
	defer kv.Close()
	exerciseKV(t, kv)
}

func TestNewKV(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: "memory"}, false},
		{"file default", Config{Path: filepath.Join(dir, "file")}, false},
		{"sqlite", Config{Type: "sqlite", Path: filepath.Join(dir, "h.db")}, false},
		{"badger", Config{Type: "badger", Path: filepath.Join(dir, "bdg")}, false},
		{"postgres without dsn", Config{Type: "postgres"}, true},
		{"unknown", Config{Type: "etcd"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv, err := NewKV(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewKV error = %v, wantErr %v", err, tt.wantErr)
			}
			if kv != nil {
				kv.Close()
			}
		})
	}
}
