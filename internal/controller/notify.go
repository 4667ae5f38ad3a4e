package controller

import (
	"sync"
)

// Level of a notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a transient message for the user
type Notification struct {
	Level   Level
	Message string
}

// event is either a state change or a notification
type event struct {
	snapshot     *Snapshot
	notification *Notification
}

// dispatcher delivers events to observers in the order they were queued,
// on its own goroutine, so observers may call back into the controller
type dispatcher struct {
	mu        sync.Mutex
	queue     []event
	wake      chan struct{}
	done      chan struct{}
	closed    bool
	observers []func(Snapshot)
	notifiers []func(Notification)
}

func newDispatcher(observers []func(Snapshot), notifiers []func(Notification)) *dispatcher {
	d := &dispatcher{
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		observers: observers,
		notifiers: notifiers,
	}
	go d.run()
	return d
}

func (d *dispatcher) push(ev event) {
	if len(d.observers) == 0 && len(d.notifiers) == 0 {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, ev := range batch {
			d.deliver(ev)
		}
		if closed && len(batch) == 0 {
			return
		}
		if !closed {
			<-d.wake
		}
	}
}

func (d *dispatcher) deliver(ev event) {
	if ev.snapshot != nil {
		for _, fn := range d.observers {
			fn(*ev.snapshot)
		}
	}
	if ev.notification != nil {
		for _, fn := range d.notifiers {
			fn(*ev.notification)
		}
	}
}

// close delivers what is already queued and stops the goroutine
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}
