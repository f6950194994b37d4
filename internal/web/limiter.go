package web

// limiter.go implements concurrency control for audit job execution.
//
// The limiter uses a semaphore pattern to restrict parallel pipeline runs to
// a configurable maximum. Submitted jobs past the limit stay PENDING and wait
// for a slot instead of being rejected, so the API accepts bursts without
// overloading the workers.

import (
	"context"
	"sync"
	"time"
)

const defaultMaxConcurrentJobs = 5

// JobLimiter controls how many audit jobs run simultaneously.
type JobLimiter struct {
	semaphore chan struct{}

	mu     sync.RWMutex
	active int
}

// NewJobLimiter creates a limiter that allows at most maxConcurrent
// simultaneous jobs.
func NewJobLimiter(maxConcurrent int) *JobLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentJobs
	}
	return &JobLimiter{semaphore: make(chan struct{}, maxConcurrent)}
}

// Acquire blocks until a slot is free or the context is cancelled.
// The caller MUST call Release() when the job completes (use defer).
func (l *JobLimiter) Acquire(ctx context.Context) error {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire.
func (l *JobLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.semaphore
}

// ActiveCount returns the number of currently running jobs.
func (l *JobLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until all running jobs complete or the context is
// cancelled. Used for graceful shutdown.
func (l *JobLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
