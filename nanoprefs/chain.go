package nanoprefs

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/tiendc/go-deepcopy"
	"google.golang.org/protobuf/proto"

	"github.com/arthur-debert/nanoprefs/nanoprefs/storage"
	"github.com/arthur-debert/nanoprefs/types"
)

type defaultNode[V any] struct {
	inner Node[V]
	def   V
}

// Default substitutes def when inner reports its key absent or decodes it
// to a nil pointer, slice, map or interface. The default is never written
// to the backend. Defaulting is always the outermost link:
// Convert and Cache built over a Default move it outward, and a Default
// over a Default keeps only the outer value.
func Default[V any](inner Node[V], def V) Node[V] {
	if d, ok := inner.(*defaultNode[V]); ok {
		inner = d.inner
	}
	return &defaultNode[V]{inner: inner, def: def}
}

func (d *defaultNode[V]) Key() string { return d.inner.Key() }

func (d *defaultNode[V]) PreferenceType() types.PreferenceType { return d.inner.PreferenceType() }

func (d *defaultNode[V]) Load(b storage.Backend) (V, bool, error) {
	v, present, err := d.inner.Load(b)
	if err != nil {
		return v, false, err
	}
	if !present || isNil(v) {
		return cloneValue(d.def), false, nil
	}
	return v, true, nil
}

func isNil[V any](v V) bool {
	rv := reflect.ValueOf(&v).Elem()
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}

func (d *defaultNode[V]) Save(b storage.Backend, v V) error { return d.inner.Save(b, v) }

func (d *defaultNode[V]) describe() linkDesc {
	return linkDesc{kind: linkDefault, inner: d.inner, key: d.inner.Key(), def: d.def}
}

// TypeOption sets how a conversion or field reports its preference type.
type TypeOption func(*typeConfig)

type typeConfig struct {
	ptype types.PreferenceType
	enums EnumLookup
	err   error
}

// withConfigErr carries a configuration error found while building a
// ready-made conversion into the chain.
func withConfigErr(err error) TypeOption {
	return func(c *typeConfig) {
		if err != nil {
			c.err = err
		}
	}
}

func withEnums(l EnumLookup) TypeOption {
	return func(c *typeConfig) { c.enums = l }
}

// WithPreferenceType overrides the inferred preference type.
func WithPreferenceType(pt types.PreferenceType) TypeOption {
	return func(c *typeConfig) { c.ptype = pt }
}

// Unsupported marks a conversion or field as opaque to preference UIs.
// typeName is informational.
func Unsupported(typeName string) TypeOption {
	return WithPreferenceType(types.Unsupported{TypeName: typeName})
}

// resolveType applies opts. Without an explicit preference type, one is
// derived from an enumeration table matching V, else inferred from V.
func resolveType[V any](opts []TypeOption) typeConfig {
	var cfg typeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ptype != nil {
		return cfg
	}
	if pt, ok := enumTypeOf(reflect.TypeFor[V](), cfg.enums); ok {
		cfg.ptype = pt
		return cfg
	}
	pt, err := types.InferFor[V]()
	if err != nil {
		cfg.ptype = types.Unsupported{TypeName: reflect.TypeFor[V]().String()}
		if cfg.err == nil {
			cfg.err = err
		}
		return cfg
	}
	cfg.ptype = pt
	return cfg
}

type convertNode[S, V any] struct {
	inner  Node[S]
	onRead func(S) (V, error)
	onSave func(V) (S, error)
	ptype  types.PreferenceType
	enums  EnumLookup
	err    error

	mu          sync.Mutex
	cached      bool
	lastStored  S
	lastDecoded V
}

// Convert changes the field type of inner from S to V. The preference type
// is inferred from V unless given with WithPreferenceType or Unsupported;
// an uninferrable V is a configuration error reported at registration.
//
// The last (stored, decoded) pair is cached so an unchanged stored value
// is not decoded again.
func Convert[S, V any](inner Node[S], onRead func(S) (V, error), onSave func(V) (S, error), opts ...TypeOption) Node[V] {
	cfg := resolveType[V](opts)
	c := &convertNode[S, V]{inner: inner, onRead: onRead, onSave: onSave, ptype: cfg.ptype, enums: cfg.enums, err: cfg.err}

	if d, ok := inner.(*defaultNode[S]); ok {
		c.inner = d.inner
		def, err := onRead(d.def)
		if err != nil && c.err == nil {
			c.err = configError(inner.Key(), "default value cannot be decoded by the conversion", err)
		}
		return &defaultNode[V]{inner: c, def: def}
	}
	return c
}

func (c *convertNode[S, V]) Key() string { return c.inner.Key() }

func (c *convertNode[S, V]) PreferenceType() types.PreferenceType { return c.ptype }

func (c *convertNode[S, V]) Load(b storage.Backend) (V, bool, error) {
	var zero V
	s, present, err := c.inner.Load(b)
	if err != nil || !present {
		return zero, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached && sameStored(c.lastStored, s) {
		return cloneValue(c.lastDecoded), true, nil
	}
	v, err := c.onRead(s)
	if err != nil {
		return zero, false, decodeError(c.Key(), err)
	}
	c.cached, c.lastStored, c.lastDecoded = true, s, v
	return cloneValue(v), true, nil
}

func (c *convertNode[S, V]) Save(b storage.Backend, v V) error {
	s, err := c.onSave(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", c.Key(), err)
	}
	return c.inner.Save(b, s)
}

func (c *convertNode[S, V]) describe() linkDesc {
	return linkDesc{
		kind:  linkConvert,
		inner: c.inner,
		key:   c.inner.Key(),
		enums: c.enums,
		err:   c.err,
		save: func(v any) (any, error) {
			tv, ok := v.(V)
			if !ok {
				return nil, fmt.Errorf("default of type %T does not match %s", v, reflect.TypeFor[V]())
			}
			return c.onSave(tv)
		},
	}
}

type cacheNode[V any] struct {
	inner Node[V]

	mu      sync.Mutex
	cached  bool
	lastRaw storage.Value
	present bool
	value   V
}

// Cache memoizes the whole inner sub-chain keyed by the raw value stored
// under its key. A Default below it is moved outward.
func Cache[V any](inner Node[V]) Node[V] {
	if d, ok := inner.(*defaultNode[V]); ok {
		return &defaultNode[V]{inner: &cacheNode[V]{inner: d.inner}, def: d.def}
	}
	return &cacheNode[V]{inner: inner}
}

func (c *cacheNode[V]) Key() string { return c.inner.Key() }

func (c *cacheNode[V]) PreferenceType() types.PreferenceType { return c.inner.PreferenceType() }

func (c *cacheNode[V]) Load(b storage.Backend) (V, bool, error) {
	raw, ok := b.Raw(c.Key())
	if !ok {
		var zero V
		return zero, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached && c.lastRaw.Equal(raw) {
		return cloneValue(c.value), c.present, nil
	}
	v, present, err := c.inner.Load(b)
	if err != nil {
		return v, false, err
	}
	c.cached, c.lastRaw, c.present, c.value = true, raw, present, v
	return cloneValue(v), present, nil
}

func (c *cacheNode[V]) Save(b storage.Backend, v V) error { return c.inner.Save(b, v) }

func (c *cacheNode[V]) describe() linkDesc {
	return linkDesc{kind: linkCache, inner: c.inner, key: c.inner.Key()}
}

// sameStored compares two stored representations for the conversion cache.
func sameStored[S any](a, b S) bool {
	switch x := any(a).(type) {
	case string:
		return x == any(b).(string)
	case []byte:
		return bytes.Equal(x, any(b).([]byte))
	case []string:
		return slices.Equal(x, any(b).([]string))
	case int:
		return x == any(b).(int)
	case int64:
		return x == any(b).(int64)
	case float32:
		return x == any(b).(float32)
	case bool:
		return x == any(b).(bool)
	default:
		return reflect.DeepEqual(a, b)
	}
}

// cloneValue gives callers their own copy of reference-typed values handed
// out from caches and defaults.
func cloneValue[V any](v V) V {
	if m, ok := any(v).(proto.Message); ok {
		if out, ok := proto.Clone(m).(V); ok {
			return out
		}
		return v
	}
	switch reflect.TypeFor[V]().Kind() {
	case reflect.Slice, reflect.Map, reflect.Pointer:
		var out V
		if err := deepcopy.Copy(&out, v); err != nil {
			return v
		}
		return out
	default:
		return v
	}
}
