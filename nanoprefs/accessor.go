package nanoprefs

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/arthur-debert/nanoprefs/types"
)

// AccessorOption configures an Accessor.
type AccessorOption func(*accessorOptions)

type accessorOptions struct {
	readCache bool
}

// WithReadCache remembers the last value read per field together with the
// container it was read from, and serves repeated reads of an equal
// container from memory. It only takes effect for container types that
// hold no pointers, interfaces, maps, slices, channels or functions at any
// depth, where an equal container guarantees an equal value.
func WithReadCache() AccessorOption {
	return func(o *accessorOptions) { o.readCache = true }
}

// Accessor is the registry of fields over a container type C. A name, once
// registered, resolves to the same field for the accessor's lifetime.
type Accessor[C any] struct {
	mu     sync.RWMutex
	fields map[string]AnyField[C]
	order  []string

	cacheable bool
	cacheMu   sync.Mutex
	cache     map[string]readEntry[C]
}

type readEntry[C any] struct {
	container C
	value     any
}

// NewAccessor returns an empty registry.
func NewAccessor[C any](opts ...AccessorOption) *Accessor[C] {
	var o accessorOptions
	for _, opt := range opts {
		opt(&o)
	}
	a := &Accessor[C]{fields: make(map[string]AnyField[C])}
	t := reflect.TypeFor[C]()
	if o.readCache && t.Comparable() && plainValue(t) {
		a.cacheable = true
		a.cache = make(map[string]readEntry[C])
	}
	return a
}

// plainValue reports whether every value reachable from t is held inline,
// so that == on two values compares everything a getter can observe.
func plainValue(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Interface,
		reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return false
	case reflect.Array:
		return plainValue(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if !plainValue(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Property registers f. Registering a name again with an equal shape
// returns the field registered first; a different shape is a configuration
// error wrapping types.ErrDuplicateField. Configuration errors recorded
// while building f are reported here.
func (a *Accessor[C]) Property(f AnyField[C]) (AnyField[C], error) {
	if err := fieldErr(f); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	name := f.Name()
	if existing, ok := a.fields[name]; ok {
		if existing.Shape() == f.Shape() {
			return existing, nil
		}
		return nil, configError(name,
			fmt.Sprintf("already registered as %s, cannot register as %s", existing.Shape(), f.Shape()),
			types.ErrDuplicateField)
	}
	a.fields[name] = f
	a.order = append(a.order, name)
	return f, nil
}

// Register adds a typed field and returns the registered instance, which is
// the earlier one when an equal field was registered before.
func Register[C, V any](a *Accessor[C], f Field[C, V]) (Field[C, V], error) {
	got, err := a.Property(Erase(f))
	if err != nil {
		return nil, err
	}
	typed, ok := got.(Field[C, V])
	if !ok {
		return nil, configError(f.Name(), fmt.Sprintf("registered field has type %T", got), types.ErrDuplicateField)
	}
	return typed, nil
}

// Lookup resolves a registered name.
func (a *Accessor[C]) Lookup(name string) (AnyField[C], error) {
	a.mu.RLock()
	f, ok := a.fields[name]
	a.mu.RUnlock()
	if !ok {
		return nil, &NotRegisteredError{Name: name, Known: a.Names()}
	}
	return f, nil
}

// LookupAs resolves a registered name to its typed field.
func LookupAs[C, V any](a *Accessor[C], name string) (Field[C, V], error) {
	f, err := a.Lookup(name)
	if err != nil {
		return nil, err
	}
	typed, ok := f.(Field[C, V])
	if !ok {
		return nil, fmt.Errorf("field %q holds %s, not %s", name, f.Shape().Value, reflect.TypeFor[V]())
	}
	return typed, nil
}

// Contains reports whether name is registered.
func (a *Accessor[C]) Contains(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.fields[name]
	return ok
}

// Names returns the registered names, sorted.
func (a *Accessor[C]) Names() []string {
	a.mu.RLock()
	names := slices.Clone(a.order)
	a.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Fields returns the registered fields in registration order.
func (a *Accessor[C]) Fields() []AnyField[C] {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]AnyField[C], 0, len(a.order))
	for _, name := range a.order {
		out = append(out, a.fields[name])
	}
	return out
}

// Get reads the field registered as name from c.
func (a *Accessor[C]) Get(c C, name string) (any, error) {
	f, err := a.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !a.cacheable {
		return f.GetAny(c)
	}

	a.cacheMu.Lock()
	e, ok := a.cache[name]
	a.cacheMu.Unlock()
	if ok && any(e.container) == any(c) {
		return e.value, nil
	}
	v, err := f.GetAny(c)
	if err != nil {
		return nil, err
	}
	a.cacheMu.Lock()
	a.cache[name] = readEntry[C]{container: c, value: v}
	a.cacheMu.Unlock()
	return v, nil
}

// Set writes v through the field registered as name and returns the
// container to continue with.
func (a *Accessor[C]) Set(c C, name string, v any) (C, error) {
	f, err := a.Lookup(name)
	if err != nil {
		return c, err
	}
	return f.SetAny(c, v)
}
