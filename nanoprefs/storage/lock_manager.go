package storage

import (
	"sync"
)

// OperationType defines whether an operation is read or write.
// Read operations share the lock, write operations hold it exclusively.
type OperationType int

const (
	// ReadOperation indicates an operation that only reads the snapshot.
	ReadOperation OperationType = iota

	// WriteOperation indicates an operation that modifies the snapshot.
	WriteOperation
)

// LockManager centralizes the in-process locking of a backend's in-memory
// snapshot, so every access path takes the right lock and releases it even
// when the callback panics.
type LockManager struct {
	mu sync.RWMutex
}

// NewLockManager creates a new lock manager instance.
func NewLockManager() *LockManager {
	return &LockManager{}
}

// Execute runs fn holding a read lock for ReadOperation or the exclusive
// lock for WriteOperation.
//
// Example:
//
//	err := lm.Execute(ReadOperation, func() error {
//	    // Safe to read the snapshot here
//	    return nil
//	})
func (lm *LockManager) Execute(opType OperationType, fn func() error) error {
	switch opType {
	case ReadOperation:
		lm.mu.RLock()
		defer lm.mu.RUnlock()
	case WriteOperation:
		lm.mu.Lock()
		defer lm.mu.Unlock()
	}
	return fn()
}

// Read runs fn under the read lock and returns its result.
func Read[T any](lm *LockManager, fn func() T) T {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return fn()
}
