package web

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errTooManyImports is returned when all import slots are occupied and
// the wait timeout expires. Clients should retry after a short delay.
var errTooManyImports = errors.New("too many concurrent imports, please try again later")

// importLimiter caps the number of import previews processed in
// parallel. Parsing a large upload holds the whole file's rows in
// memory, so unbounded concurrency would let a burst of uploads
// exhaust the process.
type importLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

func newImportLimiter(maxConcurrent int, maxWait time.Duration) *importLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	return &importLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire blocks until a slot is free, the wait timeout expires, or
// ctx is cancelled. The caller must Release after a successful
// Acquire.
func (l *importLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errTooManyImports
	}
}

// Release frees a previously acquired slot. Must be called exactly
// once per successful Acquire.
func (l *importLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.semaphore
}

// ActiveCount returns the number of imports currently in flight.
func (l *importLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until all active imports finish or ctx is
// cancelled. Used during shutdown so in-flight applies complete.
func (l *importLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}
