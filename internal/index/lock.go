package index

import "sync/atomic"

// passLock serializes indexing passes: at most one sync/reindex pass may be
// running per process. Non-blocking so a second caller can be rejected
// instead of queued.
type passLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// tryAcquire attempts to acquire the lock without blocking.
func (l *passLock) tryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// release releases the lock. Only the acquiring goroutine may call it.
func (l *passLock) release() {
	l.state.Store(0)
}
