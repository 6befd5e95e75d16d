package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sink is where a Dispatcher delivers events.  *Publisher is a Sink.
type Sink interface {
	PublishAudit(ctx context.Context, e AuditEvent) error
	PublishPasswordReset(ctx context.Context, e PasswordResetRequested) error
}

// Dispatcher hands events to a Sink from a background goroutine so request
// handlers never wait on the broker.  When the buffer is full the event is
// dropped and logged.
type Dispatcher struct {
	sink    Sink
	log     *slog.Logger
	timeout time.Duration
	jobs    chan func(ctx context.Context) error

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a dispatcher with room for size pending events.
func NewDispatcher(sink Sink, size int, log *slog.Logger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	d := &Dispatcher{
		sink:    sink,
		log:     log,
		timeout: 10 * time.Second,
		jobs:    make(chan func(ctx context.Context) error, size),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

// PublishAudit queues e.  The error is always nil; delivery failures are
// logged by the dispatcher.
func (d *Dispatcher) PublishAudit(_ context.Context, e AuditEvent) error {
	d.enqueue("audit", func(ctx context.Context) error { return d.sink.PublishAudit(ctx, e) })
	return nil
}

// PublishPasswordReset queues e.
func (d *Dispatcher) PublishPasswordReset(_ context.Context, e PasswordResetRequested) error {
	d.enqueue("password_reset", func(ctx context.Context) error { return d.sink.PublishPasswordReset(ctx, e) })
	return nil
}

func (d *Dispatcher) enqueue(kind string, job func(ctx context.Context) error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("dispatcher closed, dropping event", "kind", kind)
		return
	}
	select {
	case d.jobs <- job:
	default:
		d.log.Warn("dispatcher buffer full, dropping event", "kind", kind)
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for job := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := job(ctx); err != nil {
			d.log.Warn("event delivery failed", "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits until the queued ones were handed
// to the sink or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
