package storage

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/arthur-debert/nanoprefs/types"
)

// ChangeListener is called after a key changed. A nil key means the whole
// store was cleared.
type ChangeListener func(key *string)

// Backend is the flat key-value contract the field layer is built on.
//
// Typed getters return def when the key is absent or holds a value of a
// different kind; absence is a legitimate state, never an error. Puts may be
// buffered (Deferred) or durable at once (Immediate).
type Backend interface {
	Contains(key string) bool

	GetString(key string, def string) string
	GetStringSet(key string, def []string) []string
	GetInt(key string, def int32) int32
	GetLong(key string, def int64) int64
	GetFloat(key string, def float32) float32
	GetBoolean(key string, def bool) bool

	PutString(key string, value string)
	PutStringSet(key string, value []string)
	PutInt(key string, value int32)
	PutLong(key string, value int64)
	PutFloat(key string, value float32)
	PutBoolean(key string, value bool)

	// Put stores an already tagged value.
	Put(key string, value Value)

	// Raw returns the tagged value stored under key.
	Raw(key string) (Value, bool)

	Remove(key string)
	Clear()

	// Commit synchronously flushes pending mutations and reports the outcome.
	Commit() error

	// Apply flushes pending mutations asynchronously, fire-and-forget.
	Apply()

	// Deferred reports whether mutations need Commit or Apply to persist.
	Deferred() bool

	// All returns every stored key with its canonical Go payload.
	All() map[string]any

	// RegisterChangeListener subscribes fn to key changes and returns a
	// function that removes the subscription.
	RegisterChangeListener(fn ChangeListener) (unregister func())

	Close() error
}

// Option configures a backend
type Option func(*backendOptions)

type backendOptions struct {
	logger *zap.Logger
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *backendOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions(opts []Option) backendOptions {
	o := backendOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// typedAccess implements the typed getters and putters on top of a raw
// lookup and a tagged put.
type typedAccess struct {
	raw func(key string) (Value, bool)
	put func(key string, value Value)
}

func (t typedAccess) lookup(key string, kind types.Kind) (Value, bool) {
	v, ok := t.raw(key)
	if !ok || v.Kind != kind {
		return Value{}, false
	}
	return v, true
}

// GetString implements Backend
func (t typedAccess) GetString(key string, def string) string {
	if v, ok := t.lookup(key, types.KindString); ok {
		return v.Str
	}
	return def
}

// GetStringSet implements Backend
func (t typedAccess) GetStringSet(key string, def []string) []string {
	if v, ok := t.lookup(key, types.KindStringSet); ok {
		return slices.Clone(v.Set)
	}
	return def
}

// GetInt implements Backend
func (t typedAccess) GetInt(key string, def int32) int32 {
	if v, ok := t.lookup(key, types.KindInt); ok {
		return v.Int
	}
	return def
}

// GetLong implements Backend
func (t typedAccess) GetLong(key string, def int64) int64 {
	if v, ok := t.lookup(key, types.KindLong); ok {
		return v.Long
	}
	return def
}

// GetFloat implements Backend
func (t typedAccess) GetFloat(key string, def float32) float32 {
	if v, ok := t.lookup(key, types.KindFloat); ok {
		return v.Float
	}
	return def
}

// GetBoolean implements Backend
func (t typedAccess) GetBoolean(key string, def bool) bool {
	if v, ok := t.lookup(key, types.KindBoolean); ok {
		return v.Bool
	}
	return def
}

// PutString implements Backend
func (t typedAccess) PutString(key string, value string) { t.put(key, StringValue(value)) }

// PutStringSet implements Backend
func (t typedAccess) PutStringSet(key string, value []string) { t.put(key, StringSetValue(value)) }

// PutInt implements Backend
func (t typedAccess) PutInt(key string, value int32) { t.put(key, IntValue(value)) }

// PutLong implements Backend
func (t typedAccess) PutLong(key string, value int64) { t.put(key, LongValue(value)) }

// PutFloat implements Backend
func (t typedAccess) PutFloat(key string, value float32) { t.put(key, FloatValue(value)) }

// PutBoolean implements Backend
func (t typedAccess) PutBoolean(key string, value bool) { t.put(key, BoolValue(value)) }

// listenerSet is a registration-ordered set of change listeners. Delivery
// iterates over a snapshot taken before the first call, so listeners added or
// removed during delivery do not affect the in-flight notification.
type listenerSet struct {
	mu     sync.Mutex
	nextID uint64
	ids    []uint64
	fns    map[uint64]ChangeListener
}

func newListenerSet() *listenerSet {
	return &listenerSet{fns: make(map[uint64]ChangeListener)}
}

func (l *listenerSet) add(fn ChangeListener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.ids = append(l.ids, id)
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listenerSet) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.fns, id)
	l.ids = slices.DeleteFunc(l.ids, func(x uint64) bool { return x == id })
}

func (l *listenerSet) snapshot() []ChangeListener {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ChangeListener, 0, len(l.ids))
	for _, id := range l.ids {
		out = append(out, l.fns[id])
	}
	return out
}

func (l *listenerSet) notify(key *string) {
	for _, fn := range l.snapshot() {
		fn(key)
	}
}

// notifyKeys delivers a clear notification first (when cleared) and then one
// notification per changed key, in sorted key order.
func (l *listenerSet) notifyKeys(cleared bool, keys []string) {
	if cleared {
		l.notify(nil)
	}
	for _, k := range keys {
		key := k
		l.notify(&key)
	}
}

func snapshotAll(s Snapshot) map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v.Any()
	}
	return out
}
