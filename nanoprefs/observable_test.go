package nanoprefs

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arthur-debert/nanoprefs/nanoprefs/storage"
	"github.com/arthur-debert/nanoprefs/testutil"
	"github.com/arthur-debert/nanoprefs/types"
)

type collector[V any] struct {
	mu     sync.Mutex
	values []V
}

func (c *collector[V]) add(v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, v)
}

func (c *collector[V]) got() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]V(nil), c.values...)
}

type change struct {
	Field string
	Value any
}

func TestObservableLifecycle(t *testing.T) {
	backend, _ := testutil.NewDeferred(t, nil)
	s := New(backend, WithObservable())
	color := colorPref(t, s)

	if s.hub.State() != hubInactive {
		t.Fatalf("state = %s before any observer", s.hub.State())
	}
	sub1, err := color.Observe(func(testutil.Color) {})
	if err != nil {
		t.Fatal(err)
	}
	sub2, _ := s.ObserveAll(func(string, any) {})
	if s.hub.State() != hubActive {
		t.Errorf("state = %s with observers, want active", s.hub.State())
	}

	sub1.Unsubscribe()
	if s.hub.State() != hubActive {
		t.Error("layer must stay active while an observer remains")
	}
	sub2.Unsubscribe()
	sub2.Unsubscribe()
	if s.hub.State() != hubInactive {
		t.Errorf("state = %s after the last observer left, want inactive", s.hub.State())
	}
}

func TestObservableDelivery(t *testing.T) {
	backend, _ := testutil.NewDeferred(t, nil)
	s := New(backend, WithObservable())
	color := colorPref(t, s)
	count, err := Bind(s, Default(Int("launch_count"), 0))
	if err != nil {
		t.Fatal(err)
	}

	var colors collector[testutil.Color]
	var all collector[change]
	if _, err := color.Observe(colors.add); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ObserveAll(func(f string, v any) { all.add(change{f, v}) }); err != nil {
		t.Fatal(err)
	}

	_ = color.Set(testutil.Blue)
	if len(colors.got()) != 0 {
		t.Fatal("staged writes must not notify before commit")
	}
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}
	_ = count.Set(5)
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]testutil.Color{testutil.Blue}, colors.got()); diff != "" {
		t.Errorf("typed deliveries mismatch (-want +got):\n%s", diff)
	}
	wantAll := []change{{"favorite_color", testutil.Blue}, {"launch_count", 5}}
	if diff := cmp.Diff(wantAll, all.got()); diff != "" {
		t.Errorf("object deliveries mismatch (-want +got):\n%s", diff)
	}
}

func TestObservableRemoveAndClear(t *testing.T) {
	backend, _ := testutil.NewImmediate(t, storage.Snapshot{
		"favorite_color": storage.StringValue("GREEN"),
		"launch_count":   storage.IntValue(2),
	})
	s := New(backend, WithObservable())
	color := colorPref(t, s)
	count, _ := Bind(s, Default(Int("launch_count"), 0))

	var colors collector[testutil.Color]
	var counts collector[int]
	_, _ = color.Observe(colors.add)
	_, _ = count.Observe(counts.add)

	if err := color.Remove(); err != nil {
		t.Fatal(err)
	}
	s.Clear()

	if diff := cmp.Diff([]testutil.Color{testutil.Red, testutil.Red}, colors.got()); diff != "" {
		t.Errorf("color deliveries mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0}, counts.got()); diff != "" {
		t.Errorf("count deliveries mismatch (-want +got):\n%s", diff)
	}
}

func TestObservableUnknownKey(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	backend, _ := testutil.NewImmediate(t, nil)
	s := New(backend, WithObservable(), WithLogger(zap.New(core)))
	color := colorPref(t, s)

	var colors collector[testutil.Color]
	_, _ = color.Observe(colors.add)

	backend.PutString(testutil.UnmodelledKey, "x")

	if n := len(colors.got()); n != 0 {
		t.Errorf("a different key delivered %d callbacks", n)
	}
	if n := logs.FilterMessage("change for unknown key ignored").Len(); n != 1 {
		t.Errorf("logged %d unknown-key messages, want 1", n)
	}
}

func TestObservableComposedFields(t *testing.T) {
	backend, _ := testutil.NewImmediate(t, nil)
	s := New(backend, WithObservable())
	profile := profilePref(t, s)

	age, err := BindField(s, Compose(profile.Field(), profileAge))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := age.Observe(func(int) {}); !errors.Is(err, ErrObservableDisabled) {
		t.Errorf("Observe without ObserveKey = %v, want ErrObservableDisabled", err)
	}

	name, err := BindField(s, Compose(profile.Field(), profileName), ObserveKey("profile"))
	if err != nil {
		t.Fatal(err)
	}
	var names collector[string]
	if _, err := name.Observe(names.add); err != nil {
		t.Fatal(err)
	}
	if err := name.Set("Grace"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Grace"}, names.got()); diff != "" {
		t.Errorf("deliveries mismatch (-want +got):\n%s", diff)
	}
}

func TestObserveWithoutObservable(t *testing.T) {
	backend, _ := testutil.NewDeferred(t, nil)
	s := New(backend)
	color := colorPref(t, s)

	_, err := color.Observe(func(testutil.Color) {})
	if !errors.Is(err, ErrObservableDisabled) || !errors.Is(err, types.ErrConfig) {
		t.Errorf("Observe = %v, want a configuration error", err)
	}
	if _, err := s.ObserveAll(func(string, any) {}); !errors.Is(err, ErrObservableDisabled) {
		t.Errorf("ObserveAll = %v, want ErrObservableDisabled", err)
	}
}

func TestObserverAddedDuringDelivery(t *testing.T) {
	backend, _ := testutil.NewImmediate(t, nil)
	s := New(backend, WithObservable())
	color := colorPref(t, s)

	var late collector[testutil.Color]
	var once sync.Once
	_, _ = color.Observe(func(testutil.Color) {
		once.Do(func() { _, _ = color.Observe(late.add) })
	})

	_ = color.Set(testutil.Blue)
	if n := len(late.got()); n != 0 {
		t.Errorf("observer added during delivery received %d callbacks for it", n)
	}
	_ = color.Set(testutil.Green)
	if diff := cmp.Diff([]testutil.Color{testutil.Green}, late.got()); diff != "" {
		t.Errorf("late observer mismatch (-want +got):\n%s", diff)
	}
}

func TestObserverRemovedDuringDelivery(t *testing.T) {
	backend, _ := testutil.NewImmediate(t, nil)
	s := New(backend, WithObservable())
	color := colorPref(t, s)

	var (
		second  collector[testutil.Color]
		whole   collector[change]
		subB    *Subscription
		subAll  *Subscription
		removed bool
	)
	_, err := color.Observe(func(testutil.Color) {
		if !removed {
			removed = true
			subB.Unsubscribe()
			subAll.Unsubscribe()
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if subB, err = color.Observe(second.add); err != nil {
		t.Fatal(err)
	}
	if subAll, err = s.ObserveAll(func(field string, v any) { whole.add(change{field, v}) }); err != nil {
		t.Fatal(err)
	}

	_ = color.Set(testutil.Blue)
	_ = color.Set(testutil.Green)
	if n := len(second.got()); n != 0 {
		t.Errorf("observer removed during delivery received %d callbacks", n)
	}
	if n := len(whole.got()); n != 0 {
		t.Errorf("store observer removed during delivery received %d callbacks", n)
	}
}

func TestObserversFireInRegistrationOrder(t *testing.T) {
	backend, _ := testutil.NewImmediate(t, nil)
	s := New(backend, WithObservable())
	color := colorPref(t, s)

	var order collector[string]
	for i := range 8 {
		name := "field-" + strconv.Itoa(i)
		if _, err := color.Observe(func(testutil.Color) { order.add(name) }); err != nil {
			t.Fatal(err)
		}
	}
	for i := range 4 {
		name := "store-" + strconv.Itoa(i)
		if _, err := s.ObserveAll(func(string, any) { order.add(name) }); err != nil {
			t.Fatal(err)
		}
	}

	_ = color.Set(testutil.Blue)
	want := []string{
		"field-0", "field-1", "field-2", "field-3", "field-4", "field-5", "field-6", "field-7",
		"store-0", "store-1", "store-2", "store-3",
	}
	if diff := cmp.Diff(want, order.got()); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
}
