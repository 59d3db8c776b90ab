package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DispatcherConfig controls buffering and redelivery.
type DispatcherConfig struct {
	BufferSize int
	// DropIfFull makes Enqueue non-blocking; overflow is counted in Dropped.
	DropIfFull bool
	Workers    int
	Retry      RetryConfig
	// SendTimeout bounds each delivery attempt.
	SendTimeout time.Duration
	// EnqueueWait bounds how long a blocking Enqueue waits for buffer space
	// before dropping the message.
	EnqueueWait time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	c.BufferSize = max(c.BufferSize, 1)
	c.Workers = max(c.Workers, 1)
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.EnqueueWait <= 0 {
		c.EnqueueWait = 100 * time.Millisecond
	}
	return c
}

// Dispatcher forwards best-effort messages to a Notifier from a pool of
// background workers. Use NewDispatcher; a nil *Dispatcher ignores every call.
type Dispatcher struct {
	cfg      DispatcherConfig
	notifier Notifier
	logger   *slog.Logger

	// mu guards closing queue against concurrent sends.
	mu     sync.RWMutex
	queue  chan Message
	closed bool
	wg     sync.WaitGroup

	dropped, failed, delivered atomic.Uint64
}

// NewDispatcher starts cfg.Workers goroutines. It returns nil when
// notifier is nil.
func NewDispatcher(cfg DispatcherConfig, notifier Notifier, logger *slog.Logger) *Dispatcher {
	if notifier == nil {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg = cfg.withDefaults()

	d := &Dispatcher{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		queue:    make(chan Message, cfg.BufferSize),
	}
	d.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.send(msg)
	}
}

func (d *Dispatcher) send(msg Message) {
	budget := d.cfg.SendTimeout * time.Duration(d.cfg.Retry.MaxRetries+1)
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	attempts, err := sendWithRetry(ctx, d.notifier, d.cfg.Retry, msg)
	if err != nil {
		d.failed.Add(1)
		d.logger.Warn("notice delivery failed", "kind", msg.Kind, "attempts", attempts, "error", err)
		return
	}
	d.delivered.Add(1)
}

// Enqueue schedules msg. It never reports delivery errors. In blocking mode
// it waits at most EnqueueWait for buffer space; a message still waiting
// then, or when ctx is cancelled, is counted as dropped.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- msg:
		default:
			d.dropped.Add(1)
		}
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	wait := time.NewTimer(d.cfg.EnqueueWait)
	defer wait.Stop()
	select {
	case d.queue <- msg:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-wait.C:
		d.dropped.Add(1)
	}
}

// Close stops accepting messages and waits for the buffer to drain.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Dropped counts messages refused because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}

func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
