package storage

import "sync"

// Memory is a Driver that keeps the persisted snapshot in process. It is
// the default medium for tests and ephemeral stores.
type Memory struct {
	mu      sync.Mutex
	data    Snapshot
	saves   int
	writes  int
	saveErr error
}

var (
	_ Driver    = (*Memory)(nil)
	_ KeyWriter = (*Memory)(nil)
)

// NewMemory returns a memory driver seeded with initial.
func NewMemory(initial Snapshot) *Memory {
	if initial == nil {
		initial = Snapshot{}
	}
	return &Memory{data: initial.Clone()}
}

// Load implements Driver
func (m *Memory) Load() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Clone(), nil
}

// Save implements Driver
func (m *Memory) Save(data Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data = data.Clone()
	m.saves++
	return nil
}

// Put implements KeyWriter
func (m *Memory) Put(key string, value Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[key] = value.Clone()
	m.writes++
	return nil
}

// Delete implements KeyWriter
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	delete(m.data, key)
	m.writes++
	return nil
}

// Truncate implements KeyWriter
func (m *Memory) Truncate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data = Snapshot{}
	m.writes++
	return nil
}

// FailSaves makes every following Save and single-key write return err. A nil err restores
// normal behavior.
func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// Saves reports how many successful saves happened.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Writes reports how many successful single-key writes happened.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Persisted returns a copy of the last saved snapshot.
func (m *Memory) Persisted() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Clone()
}

// Close implements Driver
func (m *Memory) Close() error { return nil }
