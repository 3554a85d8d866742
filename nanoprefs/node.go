package nanoprefs

import (
	"fmt"
	"math"
	"slices"

	"github.com/arthur-debert/nanoprefs/internal/validation"
	"github.com/arthur-debert/nanoprefs/nanoprefs/storage"
	"github.com/arthur-debert/nanoprefs/types"
)

// Node is one link of a decorator chain. The innermost link is a native
// node bound to a storage key; Default, Convert and Cache wrap exactly one
// inner node each. Chains are fixed once built.
//
// Load reports present=false when the key is absent (or, for a Default
// node, when the default was substituted). Absence is never an error.
type Node[V any] interface {
	// Key is the storage key of the innermost native node.
	Key() string
	PreferenceType() types.PreferenceType
	Load(b storage.Backend) (v V, present bool, err error)
	Save(b storage.Backend, v V) error

	chainLink
}

type linkKind int

const (
	linkNative linkKind = iota
	linkDefault
	linkConvert
	linkCache
)

func (k linkKind) String() string {
	return [...]string{"native", "default", "convert", "cache"}[k]
}

// linkDesc is the type-erased view of a link used by Unwrap and by chain
// validation. Reading it never touches the backend.
type linkDesc struct {
	kind   linkKind
	inner  chainLink
	key    string
	native types.Kind
	// default nodes
	def any
	// convert nodes
	save  func(any) (any, error)
	enums EnumLookup
	err   error
}

type chainLink interface {
	describe() linkDesc
}

// chainErr returns the first configuration error found walking the chain.
func chainErr(l chainLink) error {
	for l != nil {
		d := l.describe()
		if d.err != nil {
			return d.err
		}
		l = d.inner
	}
	return nil
}

type nativeNode[V any] struct {
	key    string
	kind   types.Kind
	decode func(storage.Value) V
	encode func(V) (storage.Value, error)
	err    error
}

func newNative[V any](key string, kind types.Kind, decode func(storage.Value) V, encode func(V) (storage.Value, error)) *nativeNode[V] {
	n := &nativeNode[V]{key: key, kind: kind, decode: decode, encode: encode}
	if err := validation.ValidateKey(key); err != nil {
		n.err = configError(key, "invalid storage key", err)
	}
	return n
}

func (n *nativeNode[V]) Key() string { return n.key }

func (n *nativeNode[V]) PreferenceType() types.PreferenceType { return types.NativeOf(n.kind) }

func (n *nativeNode[V]) Load(b storage.Backend) (V, bool, error) {
	var zero V
	raw, ok := b.Raw(n.key)
	if !ok {
		return zero, false, nil
	}
	if raw.Kind != n.kind {
		return zero, false, &DecodeError{Key: n.key, Err: fmt.Errorf("stored kind %s, want %s", raw.Kind, n.kind)}
	}
	return n.decode(raw), true, nil
}

func (n *nativeNode[V]) Save(b storage.Backend, v V) error {
	raw, err := n.encode(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", n.key, err)
	}
	b.Put(n.key, raw)
	return nil
}

func (n *nativeNode[V]) describe() linkDesc {
	return linkDesc{kind: linkNative, key: n.key, native: n.kind, err: n.err}
}

// String binds a string key.
func String(key string) Node[string] {
	return newNative(key, types.KindString,
		func(v storage.Value) string { return v.Str },
		func(s string) (storage.Value, error) { return storage.StringValue(s), nil })
}

// StringSet binds a string-set key. Values come back sorted and
// de-duplicated.
func StringSet(key string) Node[[]string] {
	return newNative(key, types.KindStringSet,
		func(v storage.Value) []string { return slices.Clone(v.Set) },
		func(s []string) (storage.Value, error) { return storage.StringSetValue(s), nil })
}

// Int binds a 32-bit integer key. Writing a value outside the int32 range
// fails.
func Int(key string) Node[int] {
	return newNative(key, types.KindInt,
		func(v storage.Value) int { return int(v.Int) },
		func(i int) (storage.Value, error) {
			if i < math.MinInt32 || i > math.MaxInt32 {
				return storage.Value{}, fmt.Errorf("%d overflows int32", i)
			}
			return storage.IntValue(int32(i)), nil
		})
}

// Long binds a 64-bit integer key.
func Long(key string) Node[int64] {
	return newNative(key, types.KindLong,
		func(v storage.Value) int64 { return v.Long },
		func(l int64) (storage.Value, error) { return storage.LongValue(l), nil })
}

// Float binds a 32-bit float key.
func Float(key string) Node[float32] {
	return newNative(key, types.KindFloat,
		func(v storage.Value) float32 { return v.Float },
		func(f float32) (storage.Value, error) { return storage.FloatValue(f), nil })
}

// Bool binds a boolean key.
func Bool(key string) Node[bool] {
	return newNative(key, types.KindBoolean,
		func(v storage.Value) bool { return v.Bool },
		func(b bool) (storage.Value, error) { return storage.BoolValue(b), nil })
}
