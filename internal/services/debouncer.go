package services

import (
	"context"
	"sync"
	"time"
)

// FlushFunc pushes the latest state for key.
type FlushFunc func(ctx context.Context, key string) error

// Debouncer coalesces bursts of triggers per key into one flush that runs
// after the key has been quiet for the configured delay.
type Debouncer struct {
	delay   time.Duration
	flush   FlushFunc
	timeout time.Duration
	onError func(key string, err error)

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

func NewDebouncer(delay time.Duration, flush FlushFunc, onError func(string, error)) *Debouncer {
	if onError == nil {
		onError = func(string, error) {}
	}
	return &Debouncer{
		delay:   delay,
		flush:   flush,
		timeout: 30 * time.Second,
		onError: onError,
		pending: make(map[string]*time.Timer),
	}
}

// Trigger schedules a flush of key, restarting its quiet period. A zero
// delay flushes synchronously.
func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.delay <= 0 {
		d.mu.Unlock()
		d.run(key)
		return
	}
	if t, ok := d.pending[key]; ok && t.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.pending[key] == t {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		d.run(key)
	})
	d.pending[key] = t
	d.mu.Unlock()
}

// Cancel drops a pending flush of key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.pending[key]; ok {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.pending, key)
	}
}

// Pending reports how many keys are waiting to flush.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush runs every pending flush now and waits for in-flight ones.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.pending))
	for key, t := range d.pending {
		if t.Stop() {
			d.wg.Done()
			keys = append(keys, key)
		}
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, key := range keys {
		d.run(key)
	}
	d.wg.Wait()
}

// Close flushes pending work and rejects further triggers.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.Flush()
}

func (d *Debouncer) run(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.flush(ctx, key); err != nil {
		d.onError(key, err)
	}
}
