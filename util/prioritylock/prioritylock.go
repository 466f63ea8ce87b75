package prioritylock

import (
	"sync"
)

// Mutex guards the single-writer DAG state. It has three priorities:
//   - High priority write lock, taken by block insertion and checkpoint
//     updates.
//   - High priority read lock, taken by queries. Held concurrently with other
//     read locks.
//   - Low priority write lock, taken by background maintenance such as
//     pruning. It waits until no high priority holder is waiting.
type Mutex struct {
	dataMutex           sync.RWMutex
	lowPriorityMutex    sync.Mutex
	highPriorityWaiting sync.WaitGroup
}

// New returns a new Mutex
func New() *Mutex {
	return &Mutex{}
}

// LowPriorityLock acquires the low priority write lock
func (mtx *Mutex) LowPriorityLock() {
	mtx.lowPriorityMutex.Lock()
	mtx.highPriorityWaiting.Wait()
	mtx.dataMutex.Lock()
}

// LowPriorityUnlock releases the low priority write lock
func (mtx *Mutex) LowPriorityUnlock() {
	mtx.dataMutex.Unlock()
	mtx.lowPriorityMutex.Unlock()
}

// HighPriorityWriteLock acquires the high priority write lock
func (mtx *Mutex) HighPriorityWriteLock() {
	mtx.highPriorityWaiting.Add(1)
	mtx.dataMutex.Lock()
}

// HighPriorityWriteUnlock releases the high priority write lock
func (mtx *Mutex) HighPriorityWriteUnlock() {
	mtx.dataMutex.Unlock()
	mtx.highPriorityWaiting.Done()
}

// HighPriorityReadLock acquires a high priority read lock
func (mtx *Mutex) HighPriorityReadLock() {
	mtx.highPriorityWaiting.Add(1)
	mtx.dataMutex.RLock()
}

// HighPriorityReadUnlock releases a high priority read lock
func (mtx *Mutex) HighPriorityReadUnlock() {
	mtx.dataMutex.RUnlock()
	mtx.highPriorityWaiting.Done()
}
