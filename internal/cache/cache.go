// Package cache provides the in-process read cache used in front of the
// challenge store.
package cache

import (
	"context"
	"time"

	"envelopes/internal/log"
)

// Cache is the read-through surface the challenge service depends on.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches with expiring entries.
type Cleaner interface {
	CleanExpired() int
}

var _ Cleaner = (*LRUCache[int])(nil)

// Janitor periodically evicts expired entries from registered caches.
type Janitor struct {
	caches []Cleaner
	logger *log.Logger
}

func NewJanitor(logger *log.Logger, caches ...Cleaner) *Janitor {
	if logger == nil {
		logger = log.Discard()
	}
	return &Janitor{caches: caches, logger: logger.WithComponent(log.ComponentCache)}
}

// Sweep runs one cleanup pass and returns the number of evicted entries.
func (j *Janitor) Sweep() int {
	total := 0
	for _, c := range j.caches {
		total += c.CleanExpired()
	}
	return total
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := j.Sweep(); n > 0 {
				j.logger.DebugContext(ctx, "Evicted expired cache entries", "count", n)
			}
		}
	}
}
