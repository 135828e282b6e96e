package core

// limiter.go bounds how many bulk load sessions run at once.
//
// Each session holds one semaphore slot for its whole run. A session that
// cannot get a slot within maxWait fails with ErrTooManySessions before any
// record is read. WaitForDrain lets shutdown wait for running sessions.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManySessions is returned when every session slot is taken and the
// wait timeout expires.
var ErrTooManySessions = errors.New("too many concurrent bulk load sessions, please try again later")

// DefaultMaxConcurrentSessions is the default limit for parallel sessions.
const DefaultMaxConcurrentSessions = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// SessionLimiter controls concurrent bulk load sessions with a semaphore.
type SessionLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewSessionLimiter allows at most maxConcurrent simultaneous sessions.
// Non-positive arguments fall back to the defaults.
func NewSessionLimiter(maxConcurrent int, maxWait time.Duration) *SessionLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSessions
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &SessionLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a session slot. It returns ErrTooManySessions when maxWait
// expires and ctx.Err() when ctx ends first. Callers must Release on success.
func (l *SessionLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.inc(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManySessions
	}
}

// Release frees a slot taken by Acquire.
func (l *SessionLimiter) Release() {
	l.inc(-1)
	<-l.semaphore
}

func (l *SessionLimiter) inc(n int) {
	l.mu.Lock()
	l.active += n
	l.mu.Unlock()
}

// ActiveCount returns the number of running sessions.
func (l *SessionLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the slot count.
func (l *SessionLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free slots.
func (l *SessionLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no session is running or ctx is done.
func (l *SessionLimiter) WaitForDrain(ctx context.Context) error {
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

// LimiterStatus is a snapshot of the limiter for the health endpoint.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *SessionLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
