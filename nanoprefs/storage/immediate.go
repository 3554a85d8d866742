package storage

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Immediate is a backend whose mutations are durable as soon as the call
// returns. Drivers implementing KeyWriter persist one key at a time; other
// drivers get the whole snapshot rewritten.
//
// Persistence failures are logged and remembered; the next Commit reports
// and resets them.
type Immediate struct {
	typedAccess

	driver    Driver
	writer    KeyWriter
	logger    *zap.Logger
	lm        *LockManager
	data      Snapshot
	listeners *listenerSet

	errMu   sync.Mutex
	lastErr error
	closed  bool
}

var _ Backend = (*Immediate)(nil)

// NewImmediate loads the driver's snapshot and returns an immediate backend
// over it.
func NewImmediate(driver Driver, opts ...Option) (*Immediate, error) {
	o := applyOptions(opts)

	data, err := driver.Load()
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = Snapshot{}
	}

	b := &Immediate{
		driver:    driver,
		logger:    o.logger,
		lm:        NewLockManager(),
		data:      data,
		listeners: newListenerSet(),
	}
	b.writer, _ = driver.(KeyWriter)
	b.typedAccess = typedAccess{raw: b.Raw, put: b.Put}
	return b, nil
}

// Deferred implements Backend
func (b *Immediate) Deferred() bool { return false }

// Raw implements Backend
func (b *Immediate) Raw(key string) (Value, bool) {
	var (
		v  Value
		ok bool
	)
	_ = b.lm.Execute(ReadOperation, func() error {
		v, ok = b.data[key]
		v = v.Clone()
		return nil
	})
	return v, ok
}

// Contains implements Backend
func (b *Immediate) Contains(key string) bool {
	_, ok := b.Raw(key)
	return ok
}

// All implements Backend
func (b *Immediate) All() map[string]any {
	return snapshotAll(b.Snapshot())
}

// Snapshot returns a copy of the current content.
func (b *Immediate) Snapshot() Snapshot {
	return Read(b.lm, func() Snapshot { return b.data.Clone() })
}

// Put implements Backend
func (b *Immediate) Put(key string, value Value) {
	v := value.Clone()
	changed := false
	_ = b.lm.Execute(WriteOperation, func() error {
		if old, had := b.data[key]; had && old.Equal(v) {
			return nil
		}
		changed = true
		b.data[key] = v
		if b.writer != nil {
			b.record(b.writer.Put(key, v), "put", key)
			return nil
		}
		b.record(b.driver.Save(b.data.Clone()), "put", key)
		return nil
	})
	if changed {
		b.listeners.notifyKeys(false, []string{key})
	}
}

// Remove implements Backend
func (b *Immediate) Remove(key string) {
	changed := false
	_ = b.lm.Execute(WriteOperation, func() error {
		if _, had := b.data[key]; !had {
			return nil
		}
		changed = true
		delete(b.data, key)
		if b.writer != nil {
			b.record(b.writer.Delete(key), "remove", key)
			return nil
		}
		b.record(b.driver.Save(b.data.Clone()), "remove", key)
		return nil
	})
	if changed {
		b.listeners.notifyKeys(false, []string{key})
	}
}

// Clear implements Backend
func (b *Immediate) Clear() {
	_ = b.lm.Execute(WriteOperation, func() error {
		b.data = Snapshot{}
		if b.writer != nil {
			b.record(b.writer.Truncate(), "clear", "")
			return nil
		}
		b.record(b.driver.Save(Snapshot{}), "clear", "")
		return nil
	})
	b.listeners.notifyKeys(true, nil)
}

func (b *Immediate) record(err error, op, key string) {
	if err == nil {
		return
	}
	b.logger.Error("persist failed", zap.String("op", op), zap.String("key", key), zap.Error(err))

	b.errMu.Lock()
	b.lastErr = errors.Join(b.lastErr, err)
	b.errMu.Unlock()
}

// Commit implements Backend. Everything is already persisted; Commit
// reports failures recorded since the previous call.
func (b *Immediate) Commit() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()

	if b.closed {
		return ErrClosed
	}
	err := b.lastErr
	b.lastErr = nil
	return err
}

// Apply implements Backend
func (b *Immediate) Apply() {}

// RegisterChangeListener implements Backend
func (b *Immediate) RegisterChangeListener(fn ChangeListener) func() {
	return b.listeners.add(fn)
}

// Close implements Backend
func (b *Immediate) Close() error {
	b.errMu.Lock()
	if b.closed {
		b.errMu.Unlock()
		return nil
	}
	b.closed = true
	err := b.lastErr
	b.lastErr = nil
	b.errMu.Unlock()

	return errors.Join(err, b.driver.Close())
}
