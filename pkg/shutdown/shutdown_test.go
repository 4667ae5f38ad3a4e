package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestShutdownRunsInReverseOrder(t *testing.T) {
	m := New(time.Second, nil)

	var order []string
	m.Register("store", func(ctx context.Context) error {
		order = append(order, "store")
		return nil
	})
	m.Register("server", func(ctx context.Context) error {
		order = append(order, "server")
		return nil
	})

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown returned %v", err)
	}
	if len(order) != 2 || order[0] != "server" || order[1] != "store" {
		t.Errorf("order = %v, want [server store]", order)
	}

	select {
	case <-m.Done():
	default:
		t.Error("Done channel not closed after Shutdown")
	}
}

func TestShutdownReportsFirstError(t *testing.T) {
	m := New(time.Second, nil)
	boom := errors.New("boom")

	ran := false
	m.Register("a", func(ctx context.Context) error {
		ran = true
		return nil
	})
	m.Register("b", func(ctx context.Context) error { return boom })

	err := m.Shutdown()
	if !errors.Is(err, boom) {
		t.Errorf("Shutdown error = %v, want boom", err)
	}
	if !ran {
		t.Error("remaining functions should still run after an error")
	}

	// second call is a no-op
	if err := m.Shutdown(); err != nil {
		t.Errorf("second Shutdown returned %v", err)
	}
}

func TestWaitWithContext(t *testing.T) {
	m := New(time.Second, nil)
	called := false
	m.Register("x", func(ctx context.Context) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.WaitWithContext(ctx); err != nil {
		t.Fatalf("WaitWithContext returned %v", err)
	}
	if !called {
		t.Error("shutdown functions not run")
	}
}
