package nanoprefs

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/tiendc/go-deepcopy"

	"github.com/arthur-debert/nanoprefs/internal/validation"
	"github.com/arthur-debert/nanoprefs/types"
)

// Field is the uniform typed accessor over a value held by a container C.
//
// Set returns the container to use afterwards: the same one mutated in place
// for pointer containers, or a new copy for value containers. Callers must
// always continue with the returned container.
type Field[C, V any] interface {
	Name() string
	PreferenceType() types.PreferenceType
	Get(c C) (V, error)
	Set(c C, v V) (C, error)
}

// AnyField is the type-erased view of a Field used by registries and
// adapters.
type AnyField[C any] interface {
	Name() string
	PreferenceType() types.PreferenceType
	GetAny(c C) (any, error)
	SetAny(c C, v any) (C, error)
	// Shape identifies how the field was built; registering a name twice
	// is allowed only with an equal shape.
	Shape() Shape
	// StorageKey is the backend key the value lives under, or "" when the
	// field is not backed by a store.
	StorageKey() string
}

// Shape describes how a field was declared.
type Shape struct {
	Variant   string
	Container reflect.Type
	Value     reflect.Type
	Type      string
	Parts     string
}

func (s Shape) String() string {
	out := fmt.Sprintf("%s %s.%s %s", s.Variant, s.Container, s.Value, s.Type)
	if s.Parts != "" {
		out += " [" + s.Parts + "]"
	}
	return out
}

// field is the single concrete Field implementation; the constructors
// below differ only in the get/set functions they install.
type field[C, V any] struct {
	name  string
	ptype types.PreferenceType
	shape Shape
	key   string
	enums EnumLookup
	get   func(C) (V, error)
	set   func(C, V) (C, error)
	err   error
}

var _ AnyField[int] = (*field[int, int])(nil)

func newField[C, V any](variant, name string, opts []TypeOption) *field[C, V] {
	cfg := resolveType[V](opts)
	pt := cfg.ptype
	f := &field[C, V]{name: name, ptype: pt, enums: cfg.enums, err: cfg.err}
	if verr := validation.ValidateKey(name); verr != nil {
		f.err = errors.Join(f.err, configError(name, "invalid field name", verr))
	}
	f.shape = Shape{
		Variant:   variant,
		Container: reflect.TypeFor[C](),
		Value:     reflect.TypeFor[V](),
		Type:      pt.String(),
	}
	return f
}

func (f *field[C, V]) Name() string                         { return f.name }
func (f *field[C, V]) PreferenceType() types.PreferenceType { return f.ptype }
func (f *field[C, V]) Shape() Shape                         { return f.shape }
func (f *field[C, V]) StorageKey() string                   { return f.key }

// Enums returns the name table of an enumeration field, or nil.
func (f *field[C, V]) Enums() EnumLookup { return f.enums }

func (f *field[C, V]) Get(c C) (V, error) { return f.get(c) }

func (f *field[C, V]) Set(c C, v V) (C, error) { return f.set(c, v) }

func (f *field[C, V]) GetAny(c C) (any, error) { return f.get(c) }

func (f *field[C, V]) SetAny(c C, v any) (C, error) {
	tv, ok := v.(V)
	if !ok {
		if v != nil {
			return c, fmt.Errorf("field %s: cannot assign %T to %s", f.name, v, f.shape.Value)
		}
		var zero V
		tv = zero
	}
	return f.set(c, tv)
}

func (f *field[C, V]) configErr() error { return f.err }

// fieldErr returns the configuration error recorded on f, if any.
func fieldErr(f any) error {
	if e, ok := f.(interface{ configErr() error }); ok {
		return e.configErr()
	}
	return nil
}

func shapeOf[C, V any](f Field[C, V]) Shape {
	if s, ok := f.(interface{ Shape() Shape }); ok {
		return s.Shape()
	}
	return Shape{
		Variant:   fmt.Sprintf("%T", f),
		Container: reflect.TypeFor[C](),
		Value:     reflect.TypeFor[V](),
		Type:      f.PreferenceType().String(),
	}
}

func storageKeyOf(f any) string {
	if s, ok := f.(interface{ StorageKey() string }); ok {
		return s.StorageKey()
	}
	return ""
}

// Erase returns the type-erased view of f.
func Erase[C, V any](f Field[C, V]) AnyField[C] {
	if af, ok := f.(AnyField[C]); ok {
		return af
	}
	w := &field[C, V]{
		name:  f.Name(),
		ptype: f.PreferenceType(),
		shape: shapeOf(f),
		enums: EnumsOf(f),
		get:   f.Get,
		set:   f.Set,
	}
	return w
}

// MutableField declares a field of a pointer container, updated in place.
func MutableField[C, V any](name string, get func(*C) V, set func(*C, V), opts ...TypeOption) Field[*C, V] {
	f := newField[*C, V]("mutable", name, opts)
	f.get = func(c *C) (V, error) {
		if c == nil {
			var zero V
			return zero, fmt.Errorf("field %s: nil container", name)
		}
		return get(c), nil
	}
	f.set = func(c *C, v V) (*C, error) {
		if c == nil {
			return c, fmt.Errorf("field %s: nil container", name)
		}
		set(c, v)
		return c, nil
	}
	return f
}

// CopyField declares a field of an immutable value container. copyWith must
// return a copy of the container with this single field replaced; a nil
// copyWith is a configuration error.
func CopyField[C, V any](name string, get func(C) V, copyWith func(C, V) C, opts ...TypeOption) Field[C, V] {
	f := newField[C, V]("copy", name, opts)
	if copyWith == nil {
		f.err = errors.Join(f.err, configError(name, "immutable container field needs a copy function", types.ErrMissingCopyFunc))
	}
	f.get = func(c C) (V, error) { return get(c), nil }
	f.set = func(c C, v V) (C, error) {
		if copyWith == nil {
			return c, configError(name, "immutable container field needs a copy function", types.ErrMissingCopyFunc)
		}
		return copyWith(c, v), nil
	}
	return f
}

// CloneField declares a field of a value container without a hand-written
// copy function: Set deep-copies the container and mutates the clone.
func CloneField[C, V any](name string, get func(C) V, set func(*C, V), opts ...TypeOption) Field[C, V] {
	f := newField[C, V]("clone", name, opts)
	f.get = func(c C) (V, error) { return get(c), nil }
	f.set = func(c C, v V) (C, error) {
		var clone C
		if err := deepcopy.Copy(&clone, c); err != nil {
			return c, fmt.Errorf("field %s: copy container: %w", name, err)
		}
		set(&clone, v)
		return clone, nil
	}
	return f
}

// Compose chains an outer field holding a nested container with a field of
// that container. The composed name is "outer_inner". Set reads the nested
// container, applies the inner Set and writes the result back through the
// outer Set, so sibling values are preserved.
func Compose[H, I, V any](outer Field[H, I], inner Field[I, V]) Field[H, V] {
	name := outer.Name() + "_" + inner.Name()
	f := &field[H, V]{
		name:  name,
		ptype: inner.PreferenceType(),
		key:   storageKeyOf(outer),
		enums: EnumsOf(inner),
		err:   errors.Join(fieldErr(outer), fieldErr(inner)),
	}
	f.shape = Shape{
		Variant:   "composed",
		Container: reflect.TypeFor[H](),
		Value:     reflect.TypeFor[V](),
		Type:      f.ptype.String(),
		Parts:     shapeOf(outer).String() + " / " + shapeOf(inner).String(),
	}
	f.get = func(h H) (V, error) {
		i, err := outer.Get(h)
		if err != nil {
			var zero V
			return zero, err
		}
		return inner.Get(i)
	}
	f.set = func(h H, v V) (H, error) {
		i, err := outer.Get(h)
		if err != nil {
			return h, err
		}
		i, err = inner.Set(i, v)
		if err != nil {
			return h, err
		}
		return outer.Set(h, i)
	}
	return f
}

// Compose3 chains three levels; the name is "a_b_c".
func Compose3[H, I1, I2, V any](a Field[H, I1], b Field[I1, I2], c Field[I2, V]) Field[H, V] {
	return Compose(Compose(a, b), c)
}

// JSONPathField exposes a value inside a JSON document held by outer as a
// field of its own. path uses gjson/sjson dot syntax; the field name is
// outer's name joined with the path, dots replaced by underscores.
//
// Such a flattened field shares its storage key with outer and does not
// take part in change observation unless bound with ObserveKey.
func JSONPathField[C, V any](outer Field[C, string], path string, opts ...TypeOption) Field[C, V] {
	name := outer.Name() + "_" + strings.ReplaceAll(path, ".", "_")
	f := newField[C, V]("jsonpath", name, opts)
	f.err = errors.Join(f.err, fieldErr(outer))
	f.key = storageKeyOf(outer)
	f.shape.Parts = shapeOf(outer).String() + " / " + path

	f.get = func(c C) (V, error) {
		var v V
		doc, err := outer.Get(c)
		if err != nil {
			return v, err
		}
		res := gjson.Get(doc, path)
		if !res.Exists() {
			return v, nil
		}
		if err := json.Unmarshal([]byte(res.Raw), &v); err != nil {
			return v, decodeError(name, err)
		}
		return v, nil
	}
	f.set = func(c C, v V) (C, error) {
		doc, err := outer.Get(c)
		if err != nil {
			return c, err
		}
		if doc == "" {
			doc = "{}"
		}
		doc, err = sjson.Set(doc, path, v)
		if err != nil {
			return c, fmt.Errorf("field %s: %w", name, err)
		}
		return outer.Set(c, doc)
	}
	return f
}
