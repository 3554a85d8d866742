package types

import (
	"fmt"
	"reflect"
)

// Enumeration is implemented by enum types that can be stored by name.
//
// EnumNames must return the names of every value in ordinal order and must
// not depend on the receiver, so inference can call it on the zero value:
//
//	type Color int
//
//	const (
//		Red Color = iota
//		Green
//		Blue
//	)
//
//	var colorNames = []string{"RED", "GREEN", "BLUE"}
//
//	func (c Color) String() string    { return colorNames[c] }
//	func (Color) EnumNames() []string { return colorNames }
type Enumeration interface {
	fmt.Stringer
	EnumNames() []string
}

var (
	enumerationType = reflect.TypeFor[Enumeration]()
	stringType      = reflect.TypeFor[string]()
	emptyStructType = reflect.TypeFor[struct{}]()
)

// InferFor resolves the preference type of V. See Infer.
func InferFor[V any]() (PreferenceType, error) {
	return Infer(reflect.TypeFor[V]())
}

// Infer resolves a PreferenceType from a Go type, deterministically:
//
//  1. an Enumeration yields EnumName
//  2. a slice of Enumeration yields EnumNameCollection with ShapeList, and a
//     map[E]struct{} of Enumeration yields EnumNameCollection with ShapeSet
//  3. string, []string, int/int32, int64, float32 and bool yield Native
//
// Anything else is a configuration error. Unsupported is never inferred; it
// must be requested explicitly.
func Infer(t reflect.Type) (PreferenceType, error) {
	if t == nil {
		return nil, NewConfigError("<nil>", "cannot infer the preference type of a nil type", ErrUnsupportedType)
	}

	if names, ok := enumNames(t); ok {
		return EnumName{Candidates: names}, nil
	}

	switch t.Kind() {
	case reflect.Slice:
		if names, ok := enumNames(t.Elem()); ok {
			return EnumNameCollection{Candidates: names, Shape: ShapeList}, nil
		}
		if t.PkgPath() == "" && t.Elem() == stringType {
			return NativeOf(KindStringSet), nil
		}
	case reflect.Map:
		if t.Elem() == emptyStructType {
			if names, ok := enumNames(t.Key()); ok {
				return EnumNameCollection{Candidates: names, Shape: ShapeSet}, nil
			}
		}
	}

	if t.PkgPath() == "" {
		switch t.Kind() {
		case reflect.String:
			return NativeOf(KindString), nil
		case reflect.Int, reflect.Int32:
			return NativeOf(KindInt), nil
		case reflect.Int64:
			return NativeOf(KindLong), nil
		case reflect.Float32:
			return NativeOf(KindFloat), nil
		case reflect.Bool:
			return NativeOf(KindBoolean), nil
		}
	}

	return nil, NewConfigError(t.String(), "type is not an enumeration, an enumeration collection or a native kind", ErrUnsupportedType)
}

// enumNames returns the candidate names if t implements Enumeration by value.
func enumNames(t reflect.Type) ([]string, bool) {
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return nil, false
	}
	if !t.Implements(enumerationType) {
		return nil, false
	}
	e, ok := reflect.Zero(t).Interface().(Enumeration)
	if !ok {
		return nil, false
	}
	names := e.EnumNames()
	out := make([]string, len(names))
	copy(out, names)
	return out, true
}
