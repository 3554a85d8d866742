package nanoprefs

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/arthur-debert/nanoprefs/internal/validation"
	"github.com/arthur-debert/nanoprefs/types"
)

// EnumOption configures the enum conversions.
type EnumOption[E any] func(*enumConfig[E])

type enumConfig[E any] struct {
	fallback    E
	hasFallback bool
}

// WithFallback decodes stored names (or numbers) that match no candidate
// to e instead of failing with a DecodeError.
func WithFallback[E any](e E) EnumOption[E] {
	return func(c *enumConfig[E]) {
		c.fallback = e
		c.hasFallback = true
	}
}

// EnumLookup resolves an enumeration value from its name. Enum conversions
// and fields declared with EnumValues carry one, so adapters can turn a
// name received from a UI back into a value of the field's type.
type EnumLookup interface {
	EnumValue(name string) (any, error)
}

// EnumsOf returns the name table carried by f, or nil.
func EnumsOf(f any) EnumLookup {
	if e, ok := f.(interface{ Enums() EnumLookup }); ok {
		return e.Enums()
	}
	return nil
}

// EnumValues declares the candidates of a plain field holding E, []E or
// map[E]struct{}. The preference type is derived from values, so E needs no
// EnumNames method.
func EnumValues[E types.Enum](values []E) TypeOption {
	t := newEnumTable[E](values, nil)
	return func(c *typeConfig) {
		withEnums(t)(c)
		withConfigErr(t.err)(c)
	}
}

// enumTable maps candidate values to their names and back.
type enumTable[E types.Enum] struct {
	values  []E
	names   []string
	byName  map[string]E
	ordinal map[E]int
	cfg     enumConfig[E]
	err     error
}

func newEnumTable[E types.Enum](values []E, opts []EnumOption[E]) *enumTable[E] {
	t := &enumTable[E]{
		values:  slices.Clone(values),
		byName:  make(map[string]E, len(values)),
		ordinal: make(map[E]int, len(values)),
	}
	for _, opt := range opts {
		opt(&t.cfg)
	}
	for i, v := range values {
		name := v.String()
		t.names = append(t.names, name)
		t.byName[name] = v
		t.ordinal[v] = i
	}
	if err := validation.ValidateEnumNames(t.names); err != nil {
		var zero E
		t.err = configError(fmt.Sprintf("%T", zero), "invalid enumeration", err)
	}
	return t
}

func (t *enumTable[E]) decodeName(name string) (E, error) {
	if v, ok := t.byName[name]; ok {
		return v, nil
	}
	if t.cfg.hasFallback {
		return t.cfg.fallback, nil
	}
	var zero E
	return zero, fmt.Errorf("unknown enum name %q (candidates: %v)", name, t.names)
}

// EnumValue implements EnumLookup. Unlike decoding, it never applies the
// fallback.
func (t *enumTable[E]) EnumValue(name string) (any, error) {
	v, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown enum name %q (candidates: %v)", name, t.names)
	}
	return v, nil
}

func (t *enumTable[E]) enumType() reflect.Type { return reflect.TypeFor[E]() }

func (t *enumTable[E]) candidates() []string { return slices.Clone(t.names) }

// enumTypeOf derives the preference type of t from a name table whose
// element type is t, or the element of a []E or map[E]struct{}.
func enumTypeOf(t reflect.Type, l EnumLookup) (types.PreferenceType, bool) {
	table, ok := l.(interface {
		enumType() reflect.Type
		candidates() []string
	})
	if !ok {
		return nil, false
	}
	elem := table.enumType()
	switch {
	case t == elem:
		return types.EnumName{Candidates: table.candidates()}, true
	case t.Kind() == reflect.Slice && t.Elem() == elem:
		return types.EnumNameCollection{Candidates: table.candidates(), Shape: types.ShapeList}, true
	case t.Kind() == reflect.Map && t.Key() == elem && t.Elem() == reflect.TypeFor[struct{}]():
		return types.EnumNameCollection{Candidates: table.candidates(), Shape: types.ShapeSet}, true
	default:
		return nil, false
	}
}

func (t *enumTable[E]) encodeName(v E) (string, error) {
	if _, ok := t.ordinal[v]; !ok {
		return "", fmt.Errorf("%v is not a candidate value", v)
	}
	return v.String(), nil
}

func (t *enumTable[E]) decodeNames(names []string) ([]E, error) {
	out := make([]E, 0, len(names))
	for _, name := range names {
		v, err := t.decodeName(name)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (t *enumTable[E]) encodeNames(values []E) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		name, err := t.encodeName(v)
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

func (t *enumTable[E]) options(pt types.PreferenceType) []TypeOption {
	return []TypeOption{WithPreferenceType(pt), withEnums(t), withConfigErr(t.err)}
}

// EnumName stores an enumeration by the name of its value. values lists
// every candidate in ordinal order.
func EnumName[E types.Enum](inner Node[string], values []E, opts ...EnumOption[E]) Node[E] {
	t := newEnumTable(values, opts)
	return Convert(inner, t.decodeName, t.encodeName,
		t.options(types.EnumName{Candidates: t.names})...)
}

// EnumNumber stores an enumeration by its ordinal in values.
func EnumNumber[E types.Enum](inner Node[int], values []E, opts ...EnumOption[E]) Node[E] {
	t := newEnumTable(values, opts)
	onRead := func(i int) (E, error) {
		if i >= 0 && i < len(t.values) {
			return t.values[i], nil
		}
		if t.cfg.hasFallback {
			return t.cfg.fallback, nil
		}
		var zero E
		return zero, fmt.Errorf("enum number %d out of range [0, %d)", i, len(t.values))
	}
	onSave := func(v E) (int, error) {
		i, ok := t.ordinal[v]
		if !ok {
			return 0, fmt.Errorf("%v is not a candidate value", v)
		}
		return i, nil
	}
	return Convert(inner, onRead, onSave,
		t.options(types.EnumName{Candidates: t.names, Numbered: true})...)
}

// EnumSet stores a set of enumeration values as a string set of names.
func EnumSet[E types.Enum](inner Node[[]string], values []E, opts ...EnumOption[E]) Node[map[E]struct{}] {
	t := newEnumTable(values, opts)
	onRead := func(names []string) (map[E]struct{}, error) {
		list, err := t.decodeNames(names)
		if err != nil {
			return nil, err
		}
		out := make(map[E]struct{}, len(list))
		for _, v := range list {
			out[v] = struct{}{}
		}
		return out, nil
	}
	onSave := func(set map[E]struct{}) ([]string, error) {
		list := make([]E, 0, len(set))
		for v := range set {
			list = append(list, v)
		}
		return t.encodeNames(list)
	}
	return Convert(inner, onRead, onSave,
		t.options(types.EnumNameCollection{Candidates: t.names, Shape: types.ShapeSet})...)
}

// EnumList stores a list of enumeration values as a string set of names.
// Duplicates collapse; values come back in stored (name) order.
func EnumList[E types.Enum](inner Node[[]string], values []E, opts ...EnumOption[E]) Node[[]E] {
	t := newEnumTable(values, opts)
	return Convert(inner, t.decodeNames, t.encodeNames,
		t.options(types.EnumNameCollection{Candidates: t.names, Shape: types.ShapeList})...)
}

// EnumSorted is EnumList with values sorted by ordinal.
func EnumSorted[E types.Enum](inner Node[[]string], values []E, opts ...EnumOption[E]) Node[[]E] {
	t := newEnumTable(values, opts)
	onRead := func(names []string) ([]E, error) {
		list, err := t.decodeNames(names)
		if err != nil {
			return nil, err
		}
		slices.SortFunc(list, func(a, b E) int { return t.ordinal[a] - t.ordinal[b] })
		return list, nil
	}
	return Convert(inner, onRead, t.encodeNames,
		t.options(types.EnumNameCollection{Candidates: t.names, Shape: types.ShapeSorted})...)
}
