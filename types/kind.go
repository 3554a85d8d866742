package types

import (
	"fmt"
	"strings"
)

// Kind is one of the six primitive value kinds every storage backend supports.
type Kind int

const (
	// KindString stores a single string.
	KindString Kind = iota

	// KindStringSet stores an unordered set of strings.
	KindStringSet

	// KindInt stores a 32-bit integer.
	KindInt

	// KindLong stores a 64-bit integer.
	KindLong

	// KindFloat stores a 32-bit float.
	KindFloat

	// KindBoolean stores a boolean.
	KindBoolean
)

var kindNames = []string{"string", "string_set", "int", "long", "float", "boolean"}

// Kinds lists every native kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindString, KindStringSet, KindInt, KindLong, KindFloat, KindBoolean}
}

// String returns the lowercase kind name used in persisted snapshots.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is one of the six native kinds.
func (k Kind) Valid() bool {
	return k >= KindString && k <= KindBoolean
}

// ParseKind converts a kind name back into a Kind.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for i, n := range kindNames {
		if n == normalized {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown value kind %q (expected one of %s)", name, strings.Join(kindNames, ", "))
}

// MarshalText implements encoding.TextMarshaler so kinds persist by name.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid value kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
