// Package types defines the preference type descriptors shared by the field,
// storage and preference-adapter packages.
//
// A PreferenceType is a closed tagged union with four variants:
//
//   - Native: one of the six backend primitive kinds
//   - EnumName: an enumeration persisted by its name
//   - EnumNameCollection: a collection of enumerations persisted as a name set
//   - Unsupported: an opaque value a preference UI cannot bind directly
//
// The descriptor decides both how a value is encoded into the backend and how
// UI controls present it. Every field computes its descriptor once, at
// registration, and never changes it afterwards.
package types

import (
	"fmt"
	"slices"
	"strings"
)

// Enum constrains the enumeration types the enum conversions accept. The
// stored name of a value is its String().
type Enum interface {
	comparable
	fmt.Stringer
}

// PreferenceType classifies the storage shape of a field.
type PreferenceType interface {
	fmt.Stringer

	// Equal reports whether two descriptors describe the same shape.
	Equal(other PreferenceType) bool

	// StorageKind returns the native kind a UI exchanges for this type.
	// ok is false for Unsupported.
	StorageKind() (kind Kind, ok bool)

	sealed()
}

// Native is a backend primitive kind used as-is.
type Native struct {
	Kind Kind
}

// NativeOf returns the Native descriptor for k.
func NativeOf(k Kind) Native {
	return Native{Kind: k}
}

func (n Native) String() string { return "Native(" + n.Kind.String() + ")" }

// Equal implements PreferenceType
func (n Native) Equal(other PreferenceType) bool {
	o, ok := other.(Native)
	return ok && o.Kind == n.Kind
}

// StorageKind implements PreferenceType
func (n Native) StorageKind() (Kind, bool) { return n.Kind, true }

func (Native) sealed() {}

// EnumName is an enumeration persisted as the name of its value.
type EnumName struct {
	// Candidates lists every value name in ordinal order.
	Candidates []string

	// Numbered marks enums persisted by ordinal number instead of name.
	Numbered bool
}

func (e EnumName) String() string {
	if e.Numbered {
		return "EnumNumber(" + strings.Join(e.Candidates, "|") + ")"
	}
	return "EnumName(" + strings.Join(e.Candidates, "|") + ")"
}

// Equal implements PreferenceType
func (e EnumName) Equal(other PreferenceType) bool {
	o, ok := other.(EnumName)
	return ok && o.Numbered == e.Numbered && slices.Equal(o.Candidates, e.Candidates)
}

// StorageKind implements PreferenceType. Numbered enums are stored as
// ints, the others as names.
func (e EnumName) StorageKind() (Kind, bool) {
	if e.Numbered {
		return KindInt, true
	}
	return KindString, true
}

// Index returns the ordinal of name, or -1.
func (e EnumName) Index(name string) int {
	return slices.Index(e.Candidates, name)
}

func (EnumName) sealed() {}

// Shape is the concrete collection shape an enum collection materializes into.
type Shape int

const (
	// ShapeList keeps the stored order; duplicates are dropped.
	ShapeList Shape = iota

	// ShapeSet is an unordered set.
	ShapeSet

	// ShapeSorted is a list sorted by enum ordinal.
	ShapeSorted
)

func (s Shape) String() string {
	switch s {
	case ShapeList:
		return "list"
	case ShapeSet:
		return "set"
	case ShapeSorted:
		return "sorted"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// EnumNameCollection is a collection of enumerations persisted as a string set
// of names.
type EnumNameCollection struct {
	Candidates []string
	Shape      Shape
}

func (c EnumNameCollection) String() string {
	return fmt.Sprintf("EnumNameCollection(%s, %s)", strings.Join(c.Candidates, "|"), c.Shape)
}

// Equal implements PreferenceType
func (c EnumNameCollection) Equal(other PreferenceType) bool {
	o, ok := other.(EnumNameCollection)
	return ok && o.Shape == c.Shape && slices.Equal(o.Candidates, c.Candidates)
}

// StorageKind implements PreferenceType
func (EnumNameCollection) StorageKind() (Kind, bool) { return KindStringSet, true }

// Element returns the descriptor of a single element.
func (c EnumNameCollection) Element() EnumName {
	return EnumName{Candidates: c.Candidates}
}

func (EnumNameCollection) sealed() {}

// Unsupported marks a value the preference UI cannot bind. It is never
// inferred; callers opt into it explicitly for serialized structs and other
// values that still need programmatic access.
type Unsupported struct {
	// TypeName is informational, e.g. "Struct<main.Profile>".
	TypeName string
}

func (u Unsupported) String() string {
	if u.TypeName == "" {
		return "Unsupported"
	}
	return "Unsupported(" + u.TypeName + ")"
}

// Equal implements PreferenceType
func (u Unsupported) Equal(other PreferenceType) bool {
	o, ok := other.(Unsupported)
	return ok && o.TypeName == u.TypeName
}

// StorageKind implements PreferenceType
func (Unsupported) StorageKind() (Kind, bool) { return 0, false }

func (Unsupported) sealed() {}

// IsUnsupported reports whether pt is the Unsupported variant.
func IsUnsupported(pt PreferenceType) bool {
	_, ok := pt.(Unsupported)
	return ok
}
