package mcp

import "sync/atomic"

// ingestLock provides non-blocking lock semantics using atomic operations.
// Concurrent add_document calls are rejected rather than queued.
type ingestLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *ingestLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *ingestLock) Release() {
	l.state.Store(0)
}
