package nanoprefs

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/arthur-debert/nanoprefs/nanoprefs/storage"
)

const (
	hubInactive = "inactive"
	hubActive   = "active"

	hubAttach = "attach"
	hubDetach = "detach"
)

// Subscription is a handle on one registered observer.
type Subscription struct {
	ID   uuid.UUID
	once sync.Once
	stop func()
}

// Unsubscribe removes the observer. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.stop)
}

type fieldObserver func(v any)

// ObjectObserver receives every change of any observed field of a store as
// the field name and its decoded value.
type ObjectObserver func(field string, v any)

// subscriber is one registration. active is cleared on unsubscribe so a
// delivery already in flight skips it.
type subscriber[F any] struct {
	id     uuid.UUID
	fn     F
	active atomic.Bool
}

func newSubscriber[F any](fn F) *subscriber[F] {
	o := &subscriber[F]{id: uuid.New(), fn: fn}
	o.active.Store(true)
	return o
}

// removeSubscriber drops id from list, keeping registration order.
func removeSubscriber[F any](list []*subscriber[F], id uuid.UUID) ([]*subscriber[F], bool) {
	i := slices.IndexFunc(list, func(o *subscriber[F]) bool { return o.id == id })
	if i < 0 {
		return list, false
	}
	list[i].active.Store(false)
	return slices.Delete(list, i, i+1), true
}

// hub bridges backend key notifications to field observers. It is inactive
// with no observers and has the backend listener attached while active.
type hub struct {
	backend storage.Backend
	logger  *zap.Logger
	metrics *storeMetrics
	machine *fsm.FSM

	mu       sync.Mutex
	byKey    map[string][]*binding
	bound    []*binding
	typed    map[string][]*subscriber[fieldObserver]
	whole    []*subscriber[ObjectObserver]
	count    int
	detachFn func()
}

func newHub(backend storage.Backend, logger *zap.Logger, metrics *storeMetrics) *hub {
	h := &hub{
		backend: backend,
		logger:  logger,
		metrics: metrics,
		byKey:   make(map[string][]*binding),
		typed:   make(map[string][]*subscriber[fieldObserver]),
	}
	h.machine = fsm.NewFSM(
		hubInactive,
		fsm.Events{
			{Name: hubAttach, Src: []string{hubInactive}, Dst: hubActive},
			{Name: hubDetach, Src: []string{hubActive}, Dst: hubInactive},
		},
		fsm.Callbacks{
			"enter_" + hubActive: func(_ context.Context, _ *fsm.Event) {
				h.detachFn = h.backend.RegisterChangeListener(h.onChange)
				h.logger.Debug("observable layer attached")
			},
			"leave_" + hubActive: func(_ context.Context, _ *fsm.Event) {
				if h.detachFn != nil {
					h.detachFn()
					h.detachFn = nil
				}
				h.logger.Debug("observable layer detached")
			},
		},
	)
	return h
}

// State returns "inactive" or "active".
func (h *hub) State() string { return h.machine.Current() }

// track makes b resolvable from its storage key and any extra keys.
func (h *hub) track(b *binding) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bound = append(h.bound, b)
	for _, key := range b.observeKeys() {
		h.byKey[key] = append(h.byKey[key], b)
	}
}

func (h *hub) subscribeField(name string, fn fieldObserver) *Subscription {
	o := newSubscriber(fn)
	h.mu.Lock()
	h.typed[name] = append(h.typed[name], o)
	h.attachLocked()
	h.mu.Unlock()

	return &Subscription{ID: o.id, stop: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list, ok := removeSubscriber(h.typed[name], o.id)
		if !ok {
			return
		}
		if len(list) == 0 {
			delete(h.typed, name)
		} else {
			h.typed[name] = list
		}
		h.detachLocked()
	}}
}

func (h *hub) subscribeAll(fn ObjectObserver) *Subscription {
	o := newSubscriber(fn)
	h.mu.Lock()
	h.whole = append(h.whole, o)
	h.attachLocked()
	h.mu.Unlock()

	return &Subscription{ID: o.id, stop: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list, ok := removeSubscriber(h.whole, o.id)
		if !ok {
			return
		}
		h.whole = list
		h.detachLocked()
	}}
}

func (h *hub) attachLocked() {
	h.count++
	if h.count == 1 {
		if err := h.machine.Event(context.Background(), hubAttach); err != nil {
			h.logger.Error("attach observable layer", zap.Error(err))
		}
	}
}

func (h *hub) detachLocked() {
	h.count--
	if h.count == 0 {
		if err := h.machine.Event(context.Background(), hubDetach); err != nil {
			h.logger.Error("detach observable layer", zap.Error(err))
		}
	}
}

// delivery is one field's decoded value with the observers to receive it.
type delivery struct {
	name      string
	value     any
	observers []*subscriber[fieldObserver]
}

// onChange handles one backend notification. Observers are collected
// under the lock and invoked after releasing it, in registration order.
// An observer added during delivery misses this notification; one removed
// during delivery receives nothing more.
func (h *hub) onChange(key *string) {
	h.mu.Lock()
	var targets []*binding
	if key == nil {
		targets = h.bound
	} else {
		targets = h.byKey[*key]
	}
	if key != nil && len(targets) == 0 {
		h.mu.Unlock()
		h.logger.Debug("change for unknown key ignored", zap.String("key", *key))
		h.metrics.notification("unknown")
		return
	}

	type pending struct {
		b         *binding
		observers []*subscriber[fieldObserver]
	}
	var work []pending
	for _, b := range targets {
		work = append(work, pending{b: b, observers: slices.Clone(h.typed[b.name])})
	}
	whole := slices.Clone(h.whole)
	h.mu.Unlock()

	var out []delivery
	for _, p := range work {
		if len(p.observers) == 0 && len(whole) == 0 {
			continue
		}
		v, err := p.b.decode()
		if err != nil {
			h.logger.Error("decode changed value", zap.String("field", p.b.name), zap.Error(err))
			h.metrics.notification("decode_error")
			continue
		}
		out = append(out, delivery{name: p.b.name, value: v, observers: p.observers})
	}
	h.metrics.notification("delivered")

	for _, d := range out {
		for _, o := range d.observers {
			if o.active.Load() {
				o.fn(d.value)
			}
		}
		for _, o := range whole {
			if o.active.Load() {
				o.fn(d.name, d.value)
			}
		}
	}
}

// close detaches from the backend regardless of remaining observers.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.machine.Current() == hubActive {
		_ = h.machine.Event(context.Background(), hubDetach)
	}
	h.count = 0
	for _, list := range h.typed {
		for _, o := range list {
			o.active.Store(false)
		}
	}
	for _, o := range h.whole {
		o.active.Store(false)
	}
	h.typed = make(map[string][]*subscriber[fieldObserver])
	h.whole = nil
}
