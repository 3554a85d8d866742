package nanoprefs

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/arthur-debert/nanoprefs/nanoprefs/storage"
	"github.com/arthur-debert/nanoprefs/testutil"
	"github.com/arthur-debert/nanoprefs/types"
)

func roundTrip[V any](t *testing.T, b storage.Backend, node Node[V], v V) {
	t.Helper()
	if err := node.Save(b, v); err != nil {
		t.Fatalf("Save(%v): %v", v, err)
	}
	got, present, err := node.Load(b)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !present {
		t.Fatalf("Load reported %q absent after Save", node.Key())
	}
	if diff := cmp.Diff(v, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestNativeNodes(t *testing.T) {
	b, _ := testutil.NewDeferred(t, nil)

	t.Run("string", func(t *testing.T) { roundTrip(t, b, String("s"), "hello") })
	t.Run("string set", func(t *testing.T) { roundTrip(t, b, StringSet("ss"), []string{"a", "b"}) })
	t.Run("int", func(t *testing.T) { roundTrip(t, b, Int("i"), -42) })
	t.Run("long", func(t *testing.T) { roundTrip(t, b, Long("l"), int64(math.MaxInt64)) })
	t.Run("float", func(t *testing.T) { roundTrip(t, b, Float("f"), float32(1.5)) })
	t.Run("bool", func(t *testing.T) { roundTrip(t, b, Bool("b"), true) })
}

func TestNativePreferenceTypes(t *testing.T) {
	tests := []struct {
		name string
		got  types.PreferenceType
		want types.Kind
	}{
		{"string", String("a").PreferenceType(), types.KindString},
		{"string set", StringSet("a").PreferenceType(), types.KindStringSet},
		{"int", Int("a").PreferenceType(), types.KindInt},
		{"long", Long("a").PreferenceType(), types.KindLong},
		{"float", Float("a").PreferenceType(), types.KindFloat},
		{"bool", Bool("a").PreferenceType(), types.KindBoolean},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.got.Equal(types.NativeOf(tt.want)) {
				t.Errorf("PreferenceType = %s, want Native(%s)", tt.got, tt.want)
			}
		})
	}
}

func TestNativeAbsentKey(t *testing.T) {
	b, _ := testutil.NewDeferred(t, nil)

	v, present, err := Int("missing").Load(b)
	if err != nil {
		t.Fatalf("absence must not be an error: %v", err)
	}
	if present || v != 0 {
		t.Errorf("Load = (%d, %v), want (0, false)", v, present)
	}
}

func TestNativeKindMismatch(t *testing.T) {
	b, _ := testutil.NewDeferred(t, storage.Snapshot{"n": storage.IntValue(3)})

	_, _, err := String("n").Load(b)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("Load = %v, want a decode error", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Key != "n" {
		t.Errorf("DecodeError key = %v, want n", de)
	}
}

func TestIntOverflow(t *testing.T) {
	b, _ := testutil.NewDeferred(t, nil)

	if err := Int("n").Save(b, math.MaxInt32+1); err == nil {
		t.Fatal("expected an overflow error")
	}
	if b.Contains("n") {
		t.Error("a failed save must not stage a value")
	}
}

func TestInvalidKey(t *testing.T) {
	_, err := Unwrap(String(""))
	if !errors.Is(err, types.ErrConfig) {
		t.Fatalf("Unwrap = %v, want a configuration error", err)
	}
}
