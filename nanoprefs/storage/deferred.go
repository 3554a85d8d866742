package storage

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("storage: backend is closed")

// editor holds mutations staged since the last Commit or Apply. Once sealed
// it no longer accepts mutations; writers then install a fresh editor.
type editor struct {
	mu      sync.Mutex
	sealed  bool
	cleared bool
	// a nil entry stages a removal
	staged map[string]*Value
}

func newEditor() *editor {
	return &editor{staged: make(map[string]*Value)}
}

// lookup reports the staged state of key. found is false when the editor
// has no opinion about key and the committed data must be consulted.
func (e *editor) lookup(key string) (v Value, present bool, found bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sv, ok := e.staged[key]; ok {
		if sv == nil {
			return Value{}, false, true
		}
		return sv.Clone(), true, true
	}
	if e.cleared {
		return Value{}, false, true
	}
	return Value{}, false, false
}

func (e *editor) overlay(s Snapshot) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cleared {
		s = Snapshot{}
	}
	for k, v := range e.staged {
		if v == nil {
			delete(s, k)
			continue
		}
		s[k] = v.Clone()
	}
	return s
}

// Deferred is a backend that stages mutations on a shared editor. Staged
// mutations are visible to reads at once but are only persisted by Commit or
// Apply.
type Deferred struct {
	typedAccess

	driver    Driver
	logger    *zap.Logger
	lm        *LockManager
	data      Snapshot
	listeners *listenerSet

	editor atomic.Pointer[editor]
	// inflight is the editor being merged by Commit or Apply
	inflight atomic.Pointer[editor]

	flushMu     sync.Mutex
	flushQueued atomic.Bool
	flushes     sync.WaitGroup
	closed      atomic.Bool
}

var _ Backend = (*Deferred)(nil)

// NewDeferred loads the driver's snapshot and returns a deferred backend
// over it.
func NewDeferred(driver Driver, opts ...Option) (*Deferred, error) {
	o := applyOptions(opts)

	data, err := driver.Load()
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = Snapshot{}
	}

	d := &Deferred{
		driver:    driver,
		logger:    o.logger,
		lm:        NewLockManager(),
		data:      data,
		listeners: newListenerSet(),
	}
	d.typedAccess = typedAccess{raw: d.Raw, put: d.Put}
	return d, nil
}

// Deferred implements Backend
func (d *Deferred) Deferred() bool { return true }

// acquire returns the current open editor, locked. Concurrent callers race
// to install a fresh editor with compare-and-set; exactly one wins and every
// caller ends up staging on the same instance.
func (d *Deferred) acquire() *editor {
	for {
		e := d.editor.Load()
		if e == nil {
			d.editor.CompareAndSwap(nil, newEditor())
			continue
		}
		e.mu.Lock()
		if !e.sealed {
			return e
		}
		e.mu.Unlock()
		d.editor.CompareAndSwap(e, nil)
	}
}

// Put implements Backend
func (d *Deferred) Put(key string, value Value) {
	v := value.Clone()
	e := d.acquire()
	e.staged[key] = &v
	e.mu.Unlock()
}

// Remove implements Backend
func (d *Deferred) Remove(key string) {
	e := d.acquire()
	e.staged[key] = nil
	e.mu.Unlock()
}

// Clear implements Backend. Puts staged after Clear in the same batch
// survive it.
func (d *Deferred) Clear() {
	e := d.acquire()
	e.cleared = true
	clear(e.staged)
	e.mu.Unlock()
}

// Raw implements Backend. Staged mutations win over committed data.
func (d *Deferred) Raw(key string) (Value, bool) {
	for _, e := range []*editor{d.editor.Load(), d.inflight.Load()} {
		if e == nil {
			continue
		}
		if v, present, found := e.lookup(key); found {
			return v, present
		}
	}
	var (
		v  Value
		ok bool
	)
	_ = d.lm.Execute(ReadOperation, func() error {
		v, ok = d.data[key]
		v = v.Clone()
		return nil
	})
	return v, ok
}

// Contains implements Backend
func (d *Deferred) Contains(key string) bool {
	_, ok := d.Raw(key)
	return ok
}

// All implements Backend
func (d *Deferred) All() map[string]any {
	return snapshotAll(d.view())
}

// Snapshot returns the current content including staged mutations.
func (d *Deferred) Snapshot() Snapshot {
	return d.view()
}

func (d *Deferred) view() Snapshot {
	s := Read(d.lm, func() Snapshot { return d.data.Clone() })
	if e := d.inflight.Load(); e != nil {
		s = e.overlay(s)
	}
	if e := d.editor.Load(); e != nil {
		s = e.overlay(s)
	}
	return s
}

// Commit merges the staged mutations, persists the result synchronously,
// notifies listeners and reports the persistence outcome.
func (d *Deferred) Commit() error {
	if d.closed.Load() {
		return ErrClosed
	}
	cleared, keys := d.merge()

	err := d.flush()
	d.listeners.notifyKeys(cleared, keys)
	return err
}

// Apply merges the staged mutations at once and persists them in the
// background. Flush failures are logged.
func (d *Deferred) Apply() {
	if d.closed.Load() {
		d.logger.Warn("apply on closed backend ignored")
		return
	}
	cleared, keys := d.merge()
	if cleared || len(keys) > 0 {
		d.scheduleFlush()
	}
	d.listeners.notifyKeys(cleared, keys)
}

// merge seals the current editor and folds it into the committed data. It
// returns whether a clear happened and the sorted keys whose value changed.
func (d *Deferred) merge() (cleared bool, keys []string) {
	e := d.editor.Swap(nil)
	if e == nil {
		return false, nil
	}
	d.inflight.Store(e)
	defer d.inflight.Store(nil)

	e.mu.Lock()
	e.sealed = true
	e.mu.Unlock()

	_ = d.lm.Execute(WriteOperation, func() error {
		if e.cleared {
			cleared = true
			d.data = Snapshot{}
		}
		for k, v := range e.staged {
			old, had := d.data[k]
			switch {
			case v == nil:
				if had {
					delete(d.data, k)
					keys = append(keys, k)
				}
			case !had || !old.Equal(*v):
				d.data[k] = *v
				keys = append(keys, k)
			}
		}
		return nil
	})
	slices.Sort(keys)
	return cleared, keys
}

// scheduleFlush coalesces background flushes: while one is queued and has
// not yet taken its snapshot, further requests are absorbed by it.
func (d *Deferred) scheduleFlush() {
	if !d.flushQueued.CompareAndSwap(false, true) {
		return
	}
	d.flushes.Add(1)
	go func() {
		defer d.flushes.Done()
		if err := d.flush(); err != nil {
			d.logger.Error("background flush failed", zap.Error(err))
		}
	}()
}

func (d *Deferred) flush() error {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	d.flushQueued.Store(false)
	snap := Read(d.lm, func() Snapshot { return d.data.Clone() })
	return d.driver.Save(snap)
}

// RegisterChangeListener implements Backend
func (d *Deferred) RegisterChangeListener(fn ChangeListener) func() {
	return d.listeners.add(fn)
}

// Close commits staged mutations, waits for background flushes and closes
// the driver.
func (d *Deferred) Close() error {
	if d.closed.Load() {
		return nil
	}
	err := d.Commit()
	d.closed.Store(true)
	d.flushes.Wait()
	return errors.Join(err, d.driver.Close())
}
