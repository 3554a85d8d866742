package nanoprefs

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arthur-debert/nanoprefs/internal/validation"
	"github.com/arthur-debert/nanoprefs/nanoprefs/storage"
	"github.com/arthur-debert/nanoprefs/types"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for notifications and background work.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObservable enables Observe and ObserveAll.
func WithObservable() Option {
	return func(s *Store) { s.observable = true }
}

// WithAutoApply schedules an Apply after writes on a deferred backend.
// Writes in one burst share a single Apply.
func WithAutoApply() Option {
	return func(s *Store) { s.autoApply = true }
}

// WithForeground tells auto-apply how to recognise the foreground context
// and where to post work for it. isForeground is called on the writing
// goroutine.
func WithForeground(isForeground func() bool, queue func(func())) Option {
	return func(s *Store) {
		s.isForeground = isForeground
		s.queue = queue
	}
}

// WithMetrics registers the store counters on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Store) { s.metrics = newStoreMetrics(reg) }
}

// Store binds typed preferences to a storage backend. Every bound field is
// registered in the store's Accessor under its name.
type Store struct {
	backend storage.Backend
	logger  *zap.Logger
	metrics *storeMetrics
	fields  *Accessor[*Store]

	observable   bool
	hub          *hub
	autoApply    bool
	isForeground func() bool
	queue        func(func())
	auto         *autoApplier

	mu       sync.Mutex
	bindings map[string]*binding
	prefs    map[string]any
}

// New returns a store over backend.
func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		logger:   zap.NewNop(),
		fields:   NewAccessor[*Store](),
		bindings: make(map[string]*binding),
		prefs:    make(map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.observable {
		s.hub = newHub(backend, s.logger, s.metrics)
	}
	if s.autoApply {
		s.auto = &autoApplier{
			backend:      backend,
			logger:       s.logger,
			metrics:      s.metrics,
			isForeground: s.isForeground,
			queue:        s.queue,
		}
	}
	return s
}

// binding is the store-side record of a bound field.
type binding struct {
	name string
	key  string
	// delegate is true for fields bound directly to a node; composed and
	// flattened fields share their key with an outer field.
	delegate bool
	extra    []string
	decode   func() (any, error)
	remove   func() error
}

func (b *binding) observeKeys() []string {
	if b.delegate {
		return append([]string{b.key}, b.extra...)
	}
	return b.extra
}

// BindOption configures Bind and BindField.
type BindOption func(*bindConfig)

type bindConfig struct {
	name        string
	observeKeys []string
}

// Named registers a node under name instead of its storage key.
func Named(name string) BindOption {
	return func(c *bindConfig) { c.name = name }
}

// ObserveKey makes the field observable through changes of key. Composed
// and flattened fields need it to take part in observation at all, since
// they have no storage key of their own.
func ObserveKey(key string) BindOption {
	return func(c *bindConfig) { c.observeKeys = append(c.observeKeys, key) }
}

// Pref is a field bound to a store.
type Pref[V any] struct {
	store   *Store
	field   Field[*Store, V]
	binding *binding
	info    *Unwrapped
}

// Bind registers node with s. The field is named after the node's storage
// key unless Named is given. Binding an equal chain under the same name
// again returns the existing Pref; a different chain under a taken name is
// a configuration error. Errors recorded while building the chain are
// returned here.
func Bind[V any](s *Store, node Node[V], opts ...BindOption) (*Pref[V], error) {
	info, err := Unwrap(node)
	if err != nil {
		return nil, err
	}
	cfg := bindConfig{name: info.Key}
	for _, opt := range opts {
		opt(&cfg)
	}
	name := cfg.name

	f := &field[*Store, V]{name: name, ptype: node.PreferenceType(), key: info.Key, enums: info.enums}
	if err := validation.ValidateKey(name); err != nil {
		return nil, configError(name, "invalid field name", err)
	}
	parts := strings.Join(info.Links, ">") + " " + info.Key
	if info.HasDefault {
		parts += fmt.Sprintf(" default=%v", info.Default)
	}
	f.shape = Shape{
		Variant:   "delegate",
		Container: reflect.TypeFor[*Store](),
		Value:     reflect.TypeFor[V](),
		Type:      f.ptype.String(),
		Parts:     parts,
	}
	f.get = func(st *Store) (V, error) {
		v, _, err := node.Load(st.backend)
		st.metrics.read(name, err)
		return v, err
	}
	f.set = func(st *Store, v V) (*Store, error) {
		if err := node.Save(st.backend, v); err != nil {
			return st, err
		}
		st.wrote(name)
		return st, nil
	}

	b := &binding{
		name:     name,
		key:      info.Key,
		delegate: true,
		extra:    cfg.observeKeys,
		decode:   func() (any, error) { return f.get(s) },
		remove: func() error {
			s.backend.Remove(info.Key)
			s.wrote(name)
			return nil
		},
	}
	return bindPref(s, f, b, &info)
}

// BindField registers a field whose container is the store itself, such as
// a Compose over a bound Pref's Field. It only takes part in observation
// through keys given with ObserveKey.
func BindField[V any](s *Store, f Field[*Store, V], opts ...BindOption) (*Pref[V], error) {
	var cfg bindConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	af := Erase(f)
	name := af.Name()
	b := &binding{
		name:   name,
		key:    af.StorageKey(),
		extra:  cfg.observeKeys,
		decode: func() (any, error) { return f.Get(s) },
		remove: func() error {
			return configError(name, "shares its storage key with an outer field; remove that field instead", nil)
		},
	}
	return bindPref(s, f, b, nil)
}

func bindPref[V any](s *Store, f Field[*Store, V], b *binding, info *Unwrapped) (*Pref[V], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	af := Erase(f)
	got, err := s.fields.Property(af)
	if err != nil {
		return nil, err
	}
	if got != af {
		if p, ok := s.prefs[b.name].(*Pref[V]); ok {
			return p, nil
		}
		return nil, configError(b.name, "registered with a different value type", types.ErrDuplicateField)
	}

	p := &Pref[V]{store: s, field: f, binding: b, info: info}
	s.prefs[b.name] = p
	s.bindings[b.name] = b
	if s.hub != nil {
		s.hub.track(b)
	}
	return p, nil
}

// Name returns the registered field name.
func (p *Pref[V]) Name() string { return p.binding.name }

// Key returns the storage key holding the value.
func (p *Pref[V]) Key() string { return p.binding.key }

func (p *Pref[V]) PreferenceType() types.PreferenceType { return p.field.PreferenceType() }

// Default returns the effective default in storage representation.
func (p *Pref[V]) Default() (storage.Value, bool) {
	if p.info == nil {
		return storage.Value{}, false
	}
	return p.info.Default, p.info.HasDefault
}

// Field returns the underlying field, for composition.
func (p *Pref[V]) Field() Field[*Store, V] { return p.field }

// Get reads the current value, applying defaults and conversions.
func (p *Pref[V]) Get() (V, error) { return p.field.Get(p.store) }

// Set writes v. On a deferred backend the write is staged until Commit or
// Apply, or until auto-apply runs.
func (p *Pref[V]) Set(v V) error {
	_, err := p.field.Set(p.store, v)
	return err
}

// Remove deletes the stored value so reads fall back to the default.
func (p *Pref[V]) Remove() error { return p.binding.remove() }

// Contains reports whether the backend holds a value for the field's key.
func (p *Pref[V]) Contains() bool {
	return p.binding.key != "" && p.store.backend.Contains(p.binding.key)
}

// Observe calls fn with the decoded value after every change of the
// field's key.
func (p *Pref[V]) Observe(fn func(V)) (*Subscription, error) {
	s := p.store
	if s.hub == nil {
		return nil, configError(p.binding.name, "store was built without WithObservable", ErrObservableDisabled)
	}
	if len(p.binding.observeKeys()) == 0 {
		return nil, configError(p.binding.name, "field has no storage key of its own; bind it with ObserveKey", ErrObservableDisabled)
	}
	return s.hub.subscribeField(p.binding.name, func(v any) {
		tv, _ := v.(V)
		fn(tv)
	}), nil
}

func (s *Store) wrote(name string) {
	s.metrics.write(name)
	if s.auto != nil {
		s.auto.schedule()
	}
}

// Accessor returns the registry of the store's fields.
func (s *Store) Accessor() *Accessor[*Store] { return s.fields }

// Backend returns the backend the store writes to.
func (s *Store) Backend() storage.Backend { return s.backend }

// ObserveAll calls fn with the field name and decoded value after every
// change of any bound field.
func (s *Store) ObserveAll(fn ObjectObserver) (*Subscription, error) {
	if s.hub == nil {
		return nil, configError("store", "store was built without WithObservable", ErrObservableDisabled)
	}
	return s.hub.subscribeAll(fn), nil
}

// Commit flushes staged writes synchronously.
func (s *Store) Commit() error {
	err := s.backend.Commit()
	s.metrics.commit("commit", err)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Apply flushes staged writes in the background.
func (s *Store) Apply() {
	s.backend.Apply()
	s.metrics.commit("apply", nil)
}

// Clear removes every stored value, including keys no field is bound to.
func (s *Store) Clear() {
	s.backend.Clear()
	s.wrote("")
}

// Remove deletes the stored value of the field registered as name.
func (s *Store) Remove(name string) error {
	if _, err := s.fields.Lookup(name); err != nil {
		return err
	}
	s.mu.Lock()
	b := s.bindings[name]
	s.mu.Unlock()
	return b.remove()
}

// Snapshot decodes every bound field. Fields that fail to decode are left
// out and their errors joined.
func (s *Store) Snapshot() (map[string]any, error) {
	out := make(map[string]any)
	var errs []error
	for _, f := range s.fields.Fields() {
		v, err := f.GetAny(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[f.Name()] = v
	}
	return out, errors.Join(errs...)
}

// String lists every bound field with its current value.
func (s *Store) String() string {
	var sb strings.Builder
	sb.WriteString("Store{")
	for i, f := range s.fields.Fields() {
		if i > 0 {
			sb.WriteString(", ")
		}
		v, err := f.GetAny(s)
		if err != nil {
			fmt.Fprintf(&sb, "%s=<%v>", f.Name(), err)
			continue
		}
		fmt.Fprintf(&sb, "%s=%v", f.Name(), v)
	}
	sb.WriteString("}")
	return sb.String()
}

// Close detaches observers, waits for background applies and closes the
// backend, which commits anything still staged.
func (s *Store) Close() error {
	if s.hub != nil {
		s.hub.close()
	}
	if s.auto != nil && s.queue == nil {
		s.auto.wait()
	}
	return s.backend.Close()
}
