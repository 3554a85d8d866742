package storage

import (
	"fmt"
	"maps"
	"slices"

	"github.com/arthur-debert/nanoprefs/types"
)

// Value is a single primitive stored under a key. Exactly one payload field
// is meaningful, selected by Kind.
type Value struct {
	Kind  types.Kind `json:"kind" yaml:"kind"`
	Str   string     `json:"string,omitempty" yaml:"string,omitempty"`
	Set   []string   `json:"string_set,omitempty" yaml:"string_set,omitempty"`
	Int   int32      `json:"int,omitempty" yaml:"int,omitempty"`
	Long  int64      `json:"long,omitempty" yaml:"long,omitempty"`
	Float float32    `json:"float,omitempty" yaml:"float,omitempty"`
	Bool  bool       `json:"boolean,omitempty" yaml:"boolean,omitempty"`
}

// StringValue wraps a string.
func StringValue(s string) Value { return Value{Kind: types.KindString, Str: s} }

// StringSetValue wraps a string set. The stored set is sorted and de-duplicated.
func StringSetValue(set []string) Value {
	return Value{Kind: types.KindStringSet, Set: normalizeSet(set)}
}

// IntValue wraps an int32.
func IntValue(i int32) Value { return Value{Kind: types.KindInt, Int: i} }

// LongValue wraps an int64.
func LongValue(l int64) Value { return Value{Kind: types.KindLong, Long: l} }

// FloatValue wraps a float32.
func FloatValue(f float32) Value { return Value{Kind: types.KindFloat, Float: f} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{Kind: types.KindBoolean, Bool: b} }

// ValueOf wraps one of the canonical Go payload types
// (string, []string, int32, int64, float32, bool).
func ValueOf(x any) (Value, error) {
	switch v := x.(type) {
	case string:
		return StringValue(v), nil
	case []string:
		return StringSetValue(v), nil
	case int32:
		return IntValue(v), nil
	case int64:
		return LongValue(v), nil
	case float32:
		return FloatValue(v), nil
	case bool:
		return BoolValue(v), nil
	default:
		return Value{}, fmt.Errorf("unsupported stored value type %T", x)
	}
}

// Any returns the payload as its canonical Go type.
func (v Value) Any() any {
	switch v.Kind {
	case types.KindString:
		return v.Str
	case types.KindStringSet:
		return slices.Clone(v.Set)
	case types.KindInt:
		return v.Int
	case types.KindLong:
		return v.Long
	case types.KindFloat:
		return v.Float
	case types.KindBoolean:
		return v.Bool
	default:
		return nil
	}
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case types.KindString:
		return v.Str == o.Str
	case types.KindStringSet:
		return slices.Equal(v.Set, o.Set)
	case types.KindInt:
		return v.Int == o.Int
	case types.KindLong:
		return v.Long == o.Long
	case types.KindFloat:
		return v.Float == o.Float
	case types.KindBoolean:
		return v.Bool == o.Bool
	default:
		return false
	}
}

// Clone returns a copy that shares no slice memory with v.
func (v Value) Clone() Value {
	v.Set = slices.Clone(v.Set)
	return v
}

func (v Value) String() string {
	return fmt.Sprintf("%s(%v)", v.Kind, v.Any())
}

// Snapshot is the flat key-value content of a store.
type Snapshot map[string]Value

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v.Clone()
	}
	return out
}

// Keys returns the keys in sorted order.
func (s Snapshot) Keys() []string {
	return slices.Sorted(maps.Keys(s))
}

func normalizeSet(set []string) []string {
	if set == nil {
		return []string{}
	}
	out := slices.Clone(set)
	slices.Sort(out)
	return slices.Compact(out)
}
