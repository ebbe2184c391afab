// Package lock provides per-session locking for concurrent ledger operations.
// A leave runs a read-check-write sequence against the session's participant
// set ("am I the last active player?"); the lock serializes that sequence so
// two players cannot both observe themselves as last.
package lock

import (
	"sync"
)

// sessionMutex wraps a mutex with reference counting for cleanup.
type sessionMutex struct {
	mu       sync.Mutex
	refCount int
}

// SessionLock provides per-session locking to prevent race conditions
// during balance checks and stack mutations.
type SessionLock struct {
	locks sync.Map // map[int64]*sessionMutex
	pool  sync.Pool
}

// NewSessionLock creates a new SessionLock instance.
func NewSessionLock() *SessionLock {
	return &SessionLock{
		pool: sync.Pool{
			New: func() any {
				return &sessionMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given session ID.
func (sl *SessionLock) getLock(sessionID int64) *sessionMutex {
	if v, ok := sl.locks.Load(sessionID); ok {
		return v.(*sessionMutex)
	}

	newLock := sl.pool.Get().(*sessionMutex)
	newLock.refCount = 0

	// Store or load existing (handles race condition)
	actual, loaded := sl.locks.LoadOrStore(sessionID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		sl.pool.Put(newLock)
	}
	return actual.(*sessionMutex)
}

// Lock acquires the lock for a session.
// This should be called before any stack-modifying operation.
func (sl *SessionLock) Lock(sessionID int64) {
	lock := sl.getLock(sessionID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a session.
func (sl *SessionLock) Unlock(sessionID int64) {
	if v, ok := sl.locks.Load(sessionID); ok {
		lock := v.(*sessionMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (sl *SessionLock) TryLock(sessionID int64) bool {
	lock := sl.getLock(sessionID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// WithLock executes a function while holding the session's lock.
// This is a convenience method that ensures proper lock/unlock.
func (sl *SessionLock) WithLock(sessionID int64, fn func() error) error {
	sl.Lock(sessionID)
	defer sl.Unlock(sessionID)
	return fn()
}

// IsLocked checks if a session currently has an active lock.
// Note: This is a point-in-time check and may change immediately after.
func (sl *SessionLock) IsLocked(sessionID int64) bool {
	if v, ok := sl.locks.Load(sessionID); ok {
		lock := v.(*sessionMutex)
		if lock.mu.TryLock() {
			lock.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
