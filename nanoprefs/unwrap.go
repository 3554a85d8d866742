package nanoprefs

import (
	"fmt"
	"math"

	"github.com/arthur-debert/nanoprefs/nanoprefs/storage"
	"github.com/arthur-debert/nanoprefs/types"
)

// Unwrapped describes a chain without reading the backend.
type Unwrapped struct {
	// Key is the storage key of the innermost native node.
	Key string
	// Kind is the native kind stored under Key.
	Kind types.Kind
	// Type is the preference type of the outermost node.
	Type types.PreferenceType
	// Default is the effective default in storage representation, valid
	// when HasDefault is true.
	Default    storage.Value
	HasDefault bool
	// Links lists the link kinds from outermost to innermost, e.g.
	// "default", "convert", "native".
	Links []string

	// enums is the name table of the outermost conversion, if it has one.
	enums EnumLookup
}

// Unwrap walks node from the outside in. A default found on the way is
// carried inward through every conversion's save function, so it ends up
// expressed in the stored primitive. Configuration errors recorded while
// building the chain are returned here.
func Unwrap[V any](node Node[V]) (Unwrapped, error) {
	out := Unwrapped{Type: node.PreferenceType()}
	if err := chainErr(node); err != nil {
		return out, err
	}

	var (
		def       any
		hasDef    bool
		converted bool
	)
	var l chainLink = node
	for l != nil {
		d := l.describe()
		out.Links = append(out.Links, d.kind.String())
		switch d.kind {
		case linkDefault:
			if !hasDef {
				def, hasDef = d.def, true
			}
		case linkConvert:
			if !converted {
				out.enums, converted = d.enums, true
			}
			if hasDef {
				saved, err := d.save(def)
				if err != nil {
					return out, configError(d.key, "default value cannot be encoded by the conversion", err)
				}
				def = saved
			}
		case linkNative:
			out.Key, out.Kind = d.key, d.native
			if hasDef {
				v, err := nativeValue(d.native, def)
				if err != nil {
					return out, configError(d.key, "default value does not fit the stored kind", err)
				}
				out.Default, out.HasDefault = v, true
			}
		}
		l = d.inner
	}
	return out, nil
}

// nativeValue wraps a default expressed in a native node's Go type.
func nativeValue(kind types.Kind, x any) (storage.Value, error) {
	if i, ok := x.(int); ok && kind == types.KindInt {
		if i < math.MinInt32 || i > math.MaxInt32 {
			return storage.Value{}, fmt.Errorf("%d overflows int32", i)
		}
		return storage.IntValue(int32(i)), nil
	}
	v, err := storage.ValueOf(x)
	if err != nil {
		return storage.Value{}, err
	}
	if v.Kind != kind {
		return storage.Value{}, fmt.Errorf("default kind %s, want %s", v.Kind, kind)
	}
	return v, nil
}
