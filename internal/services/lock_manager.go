// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager hands out one mutex per session.
type LockManager struct {
	sessionLocks map[string]*LockInfo
	globalLock   sync.Mutex
	lockTTL      time.Duration
	maxLocks     int

	stopOnce sync.Once
	stop     chan struct{}
}

// LockInfo wraps a session mutex with its usage bookkeeping.
type LockInfo struct {
	Mutex    *sync.Mutex
	LastUsed time.Time
	refs     int32 // holders and waiters; a lock in use is never evicted
}

// NewLockManager starts a background sweep of idle locks; call Stop to end it.
func NewLockManager() *LockManager {
	lm := &LockManager{
		sessionLocks: make(map[string]*LockInfo),
		lockTTL:      30 * time.Minute,
		maxLocks:     200,
		stop:         make(chan struct{}),
	}
	go lm.cleanupLoop(5 * time.Minute)
	return lm
}

func (lm *LockManager) acquire(sessionID string) *LockInfo {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, ok := lm.sessionLocks[sessionID]
	if !ok {
		info = &LockInfo{Mutex: &sync.Mutex{}}
		lm.sessionLocks[sessionID] = info
	}
	info.refs++
	info.LastUsed = time.Now()
	return info
}

func (lm *LockManager) release(info *LockInfo) {
	lm.globalLock.Lock()
	info.refs--
	info.LastUsed = time.Now()
	lm.globalLock.Unlock()
}

// ExecuteWithSessionLock runs fn while holding the session's lock.
func (lm *LockManager) ExecuteWithSessionLock(sessionID string, fn func() error) error {
	info := lm.acquire(sessionID)
	defer lm.release(info)

	info.Mutex.Lock()
	defer info.Mutex.Unlock()
	return fn()
}

// Size is the number of tracked locks.
func (lm *LockManager) Size() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.sessionLocks)
}

// Stop ends the background sweep.
func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() { close(lm.stop) })
}

func (lm *LockManager) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-lm.stop:
			return
		case <-ticker.C:
			lm.cleanupUnusedLocks(time.Now())
		}
	}
}

// cleanupUnusedLocks drops idle locks once more than maxLocks are tracked.
func (lm *LockManager) cleanupUnusedLocks(now time.Time) int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	if len(lm.sessionLocks) <= lm.maxLocks {
		return 0
	}

	removed := 0
	for id, info := range lm.sessionLocks {
		if info.refs == 0 && now.Sub(info.LastUsed) > lm.lockTTL {
			delete(lm.sessionLocks, id)
			removed++
		}
	}
	return removed
}
