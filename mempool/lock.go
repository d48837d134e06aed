package mempool

import (
	"sync"
)

// poolLock serializes the mutating operations of one pool. The underlying
// primitive is any recursive-free mutex; here a sync.Mutex. The
// initialized flag captures both the threadsafe setting and the primitive
// init outcome, mirroring the lock_initialized word in the aux section.
type poolLock struct {
	mu          sync.Mutex
	initialized bool
}

func (l *poolLock) init(threadsafe bool) {
	// sync.Mutex needs no runtime initialization; the flag is simply the
	// threadsafe setting.
	l.initialized = threadsafe
}

// acquire takes the lock when the pool is threadsafe. It returns false
// when acquisition fails; the caller aborts the operation and publishes
// ThreadSyncError. With sync.Mutex acquisition cannot fail, so this
// implementation never returns false.
func (l *poolLock) acquire() bool {
	if !l.initialized {
		return true
	}
	l.mu.Lock()
	return true
}

func (l *poolLock) release() {
	if !l.initialized {
		return
	}
	l.mu.Unlock()
}

// destroy tears the primitive down. sync.Mutex has no teardown; dropping
// the initialized flag keeps later acquire calls from touching it.
func (l *poolLock) destroy() {
	l.initialized = false
}
