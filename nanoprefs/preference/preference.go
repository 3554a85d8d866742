// Package preference adapts registered fields to the contract a preference
// UI binds against: a field name resolves to its preference type plus a
// getter and setter exchanging backend primitives.
//
// Values cross the boundary in their UI representation:
//
//   - Native fields exchange string, []string, int32, int64, float32 or bool
//   - EnumName fields exchange the value's name (or its ordinal as int32
//     when the enum is numbered)
//   - EnumNameCollection fields exchange the names as a sorted []string
//
// Names written by a UI are turned back into values through the field's
// enumeration table (see nanoprefs.EnumLookup). Enum fields declared
// without one are read-only here. Unsupported fields cannot be bound.
package preference

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/arthur-debert/nanoprefs/nanoprefs"
	"github.com/arthur-debert/nanoprefs/types"
)

// ErrUnsupported is returned when binding a field whose preference type is
// Unsupported.
var ErrUnsupported = errors.New("field cannot be bound to a preference UI")

// Binding is what a UI widget needs for one field.
type Binding struct {
	Name string
	Type types.PreferenceType
	Get  func() (any, error)
	Set  func(v any) error
}

// DataStore exposes the fields of an accessor over one container by name.
// For value containers, writes replace the held container; read it back
// with Container.
type DataStore[C any] struct {
	accessor *nanoprefs.Accessor[C]

	mu        sync.Mutex
	container C
}

// New returns a data store over container.
func New[C any](accessor *nanoprefs.Accessor[C], container C) *DataStore[C] {
	return &DataStore[C]{accessor: accessor, container: container}
}

// ForStore is New for the fields bound to a nanoprefs store.
func ForStore(s *nanoprefs.Store) *DataStore[*nanoprefs.Store] {
	return New(s.Accessor(), s)
}

// Container returns the current container.
func (d *DataStore[C]) Container() C {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.container
}

// Binding resolves name.
func (d *DataStore[C]) Binding(name string) (Binding, error) {
	f, err := d.accessor.Lookup(name)
	if err != nil {
		return Binding{}, err
	}
	pt := f.PreferenceType()
	if _, ok := pt.(types.Unsupported); ok {
		return Binding{}, fmt.Errorf("%s (%s): %w", name, pt, ErrUnsupported)
	}
	valueType := f.Shape().Value
	enums := nanoprefs.EnumsOf(f)

	return Binding{
		Name: name,
		Type: pt,
		Get: func() (any, error) {
			v, err := f.GetAny(d.Container())
			if err != nil {
				return nil, err
			}
			return toUI(pt, v)
		},
		Set: func(ui any) error {
			v, err := fromUI(pt, valueType, enums, ui)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			d.mu.Lock()
			defer d.mu.Unlock()
			c, err := f.SetAny(d.container, v)
			if err != nil {
				return err
			}
			d.container = c
			return nil
		},
	}, nil
}

func (d *DataStore[C]) get(name string, kind types.Kind) (any, bool, error) {
	b, err := d.Binding(name)
	if err != nil {
		return nil, false, err
	}
	if k, _ := b.Type.StorageKind(); k != kind {
		return nil, false, fmt.Errorf("%s is exchanged as %s, not %s", name, k, kind)
	}
	v, err := b.Get()
	return v, err == nil, err
}

func (d *DataStore[C]) put(name string, kind types.Kind, v any) error {
	b, err := d.Binding(name)
	if err != nil {
		return err
	}
	if k, _ := b.Type.StorageKind(); k != kind {
		return fmt.Errorf("%s is exchanged as %s, not %s", name, k, kind)
	}
	return b.Set(v)
}

// GetString reads a string or enum-name field. def is returned with the
// error when the field cannot be read.
func (d *DataStore[C]) GetString(name, def string) (string, error) {
	v, ok, err := d.get(name, types.KindString)
	if !ok {
		return def, err
	}
	return v.(string), nil
}

func (d *DataStore[C]) PutString(name, v string) error {
	return d.put(name, types.KindString, v)
}

// GetStringSet reads a string-set or enum-collection field.
func (d *DataStore[C]) GetStringSet(name string, def []string) ([]string, error) {
	v, ok, err := d.get(name, types.KindStringSet)
	if !ok {
		return def, err
	}
	return v.([]string), nil
}

func (d *DataStore[C]) PutStringSet(name string, v []string) error {
	return d.put(name, types.KindStringSet, v)
}

func (d *DataStore[C]) GetInt(name string, def int32) (int32, error) {
	v, ok, err := d.get(name, types.KindInt)
	if !ok {
		return def, err
	}
	return v.(int32), nil
}

func (d *DataStore[C]) PutInt(name string, v int32) error {
	return d.put(name, types.KindInt, v)
}

func (d *DataStore[C]) GetLong(name string, def int64) (int64, error) {
	v, ok, err := d.get(name, types.KindLong)
	if !ok {
		return def, err
	}
	return v.(int64), nil
}

func (d *DataStore[C]) PutLong(name string, v int64) error {
	return d.put(name, types.KindLong, v)
}

func (d *DataStore[C]) GetFloat(name string, def float32) (float32, error) {
	v, ok, err := d.get(name, types.KindFloat)
	if !ok {
		return def, err
	}
	return v.(float32), nil
}

func (d *DataStore[C]) PutFloat(name string, v float32) error {
	return d.put(name, types.KindFloat, v)
}

func (d *DataStore[C]) GetBoolean(name string, def bool) (bool, error) {
	v, ok, err := d.get(name, types.KindBoolean)
	if !ok {
		return def, err
	}
	return v.(bool), nil
}

func (d *DataStore[C]) PutBoolean(name string, v bool) error {
	return d.put(name, types.KindBoolean, v)
}

// toUI converts a field value to its UI representation.
func toUI(pt types.PreferenceType, v any) (any, error) {
	switch t := pt.(type) {
	case types.Native:
		return nativeToUI(t.Kind, v)
	case types.EnumName:
		if t.Numbered {
			i := slices.Index(t.Candidates, fmt.Sprint(v))
			if i < 0 {
				return nil, fmt.Errorf("%v is not a candidate", v)
			}
			return int32(i), nil
		}
		return fmt.Sprint(v), nil
	case types.EnumNameCollection:
		return enumNames(v)
	default:
		return nil, ErrUnsupported
	}
}

func nativeToUI(kind types.Kind, v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch kind {
	case types.KindString:
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
	case types.KindStringSet:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.String {
			out := make([]string, rv.Len())
			for i := range out {
				out[i] = rv.Index(i).String()
			}
			return out, nil
		}
	case types.KindInt:
		if rv.CanInt() {
			return int32(rv.Int()), nil
		}
	case types.KindLong:
		if rv.CanInt() {
			return rv.Int(), nil
		}
	case types.KindFloat:
		if rv.CanFloat() {
			return float32(rv.Float()), nil
		}
	case types.KindBoolean:
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), nil
		}
	}
	return nil, fmt.Errorf("cannot expose %T as %s", v, kind)
}

// enumNames lists the names of a []E or map[E]struct{}, sorted.
func enumNames(v any) ([]string, error) {
	rv := reflect.ValueOf(v)
	var names []string
	switch rv.Kind() {
	case reflect.Slice:
		for i := range rv.Len() {
			names = append(names, fmt.Sprint(rv.Index(i).Interface()))
		}
	case reflect.Map:
		for _, k := range rv.MapKeys() {
			names = append(names, fmt.Sprint(k.Interface()))
		}
	default:
		return nil, fmt.Errorf("%T is not an enum collection", v)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// fromUI converts a UI value into a value of the field's type t.
func fromUI(pt types.PreferenceType, t reflect.Type, enums nanoprefs.EnumLookup, ui any) (any, error) {
	switch p := pt.(type) {
	case types.Native:
		return nativeFromUI(t, ui)
	case types.EnumName:
		name, err := enumNameFromUI(p, ui)
		if err != nil {
			return nil, err
		}
		ev, err := resolveEnum(enums, t, p.Candidates, name)
		if err != nil {
			return nil, err
		}
		return ev.Interface(), nil
	case types.EnumNameCollection:
		names, ok := ui.([]string)
		if !ok {
			return nil, fmt.Errorf("want []string, got %T", ui)
		}
		return enumCollection(enums, t, p.Candidates, names)
	default:
		return nil, ErrUnsupported
	}
}

func enumNameFromUI(p types.EnumName, ui any) (string, error) {
	if p.Numbered {
		i, ok := ui.(int32)
		if !ok || int(i) < 0 || int(i) >= len(p.Candidates) {
			return "", fmt.Errorf("invalid enum ordinal %v", ui)
		}
		return p.Candidates[i], nil
	}
	name, ok := ui.(string)
	if !ok {
		return "", fmt.Errorf("want string, got %T", ui)
	}
	return name, nil
}

func nativeFromUI(t reflect.Type, ui any) (any, error) {
	if ui == nil {
		return nil, fmt.Errorf("nil value for %s", t)
	}
	src := reflect.ValueOf(ui)
	if src.Type().AssignableTo(t) {
		return ui, nil
	}
	switch src.Kind() {
	case reflect.Map, reflect.Array, reflect.Struct:
		return nil, fmt.Errorf("cannot convert %T to %s", ui, t)
	}
	if !src.Type().ConvertibleTo(t) {
		return nil, fmt.Errorf("cannot convert %T to %s", ui, t)
	}
	return src.Convert(t).Interface(), nil
}

// resolveEnum looks name up in the field's enumeration table and checks
// the value fits t.
func resolveEnum(enums nanoprefs.EnumLookup, t reflect.Type, candidates []string, name string) (reflect.Value, error) {
	if !slices.Contains(candidates, name) {
		return reflect.Value{}, fmt.Errorf("unknown name %q (candidates: %v)", name, candidates)
	}
	if enums == nil {
		return reflect.Value{}, fmt.Errorf("%s has no enumeration table; declare the field with nanoprefs.EnumValues", t)
	}
	v, err := enums.EnumValue(name)
	if err != nil {
		return reflect.Value{}, err
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || !rv.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("enumeration table gave %T for %s", v, t)
	}
	return rv, nil
}

func enumCollection(enums nanoprefs.EnumLookup, t reflect.Type, candidates, names []string) (any, error) {
	switch t.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(t, 0, len(names))
		for _, name := range names {
			v, err := resolveEnum(enums, t.Elem(), candidates, name)
			if err != nil {
				return nil, err
			}
			out = reflect.Append(out, v)
		}
		return out.Interface(), nil
	case reflect.Map:
		out := reflect.MakeMapWithSize(t, len(names))
		for _, name := range names {
			v, err := resolveEnum(enums, t.Key(), candidates, name)
			if err != nil {
				return nil, err
			}
			out.SetMapIndex(v, reflect.Zero(t.Elem()))
		}
		return out.Interface(), nil
	default:
		return nil, fmt.Errorf("%s is not an enum collection", t)
	}
}
