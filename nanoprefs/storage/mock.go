package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MemFS is an in-memory FileSystem for tests. Errors can be injected per
// operation name ("stat", "read", "write", "rename", "remove", "mkdir").
type MemFS struct {
	mu     sync.RWMutex
	files  map[string][]byte
	failOn map[string]error
}

// NewMemFS creates an empty in-memory file system
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte), failOn: make(map[string]error)}
}

// FailOn makes op return err until cleared with a nil err.
func (m *MemFS) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOn, op)
		return
	}
	m.failOn[op] = err
}

func (m *MemFS) fail(op string) error {
	return m.failOn[op]
}

type memFileInfo struct {
	name string
	size int64
}

func (fi memFileInfo) Name() string       { return fi.name }
func (fi memFileInfo) Size() int64        { return fi.size }
func (fi memFileInfo) Mode() fs.FileMode  { return 0o644 }
func (fi memFileInfo) ModTime() time.Time { return time.Time{} }
func (fi memFileInfo) IsDir() bool        { return false }
func (fi memFileInfo) Sys() any           { return nil }

// Stat implements FileSystem.Stat
func (m *MemFS) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("stat"); err != nil {
		return nil, err
	}
	data, ok := m.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return memFileInfo{name: filepath.Base(name), size: int64(len(data))}, nil
}

// ReadFile implements FileSystem.ReadFile
func (m *MemFS) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("read"); err != nil {
		return nil, err
	}
	data, ok := m.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

// WriteFile implements FileSystem.WriteFile
func (m *MemFS) WriteFile(name string, data []byte, _ fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("write"); err != nil {
		return err
	}
	m.files[name] = append([]byte(nil), data...)
	return nil
}

// Rename implements FileSystem.Rename
func (m *MemFS) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("rename"); err != nil {
		return err
	}
	data, ok := m.files[oldpath]
	if !ok {
		return os.ErrNotExist
	}
	m.files[newpath] = data
	delete(m.files, oldpath)
	return nil
}

// Remove implements FileSystem.Remove
func (m *MemFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("remove"); err != nil {
		return err
	}
	if _, ok := m.files[name]; !ok {
		return os.ErrNotExist
	}
	delete(m.files, name)
	return nil
}

// MkdirAll implements FileSystem.MkdirAll
func (m *MemFS) MkdirAll(string, fs.FileMode) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fail("mkdir")
}

// File returns the content of name.
func (m *MemFS) File(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[name]
	return append([]byte(nil), data...), ok
}

// MockFileLock is an in-process FileLock for tests. Busy makes every
// acquisition attempt report the lock as held elsewhere.
type MockFileLock struct {
	mu       sync.Mutex
	held     bool
	Busy     bool
	Attempts int
}

// TryLockContext implements FileLock.TryLockContext
func (l *MockFileLock) TryLockContext(context.Context, time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Attempts++
	if l.Busy || l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

// Unlock implements FileLock.Unlock
func (l *MockFileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

// Held reports whether the lock is currently taken.
func (l *MockFileLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// MockLockFactory hands out one MockFileLock per path.
type MockLockFactory struct {
	mu    sync.Mutex
	locks map[string]*MockFileLock
}

// New implements FileLockFactory.New
func (f *MockLockFactory) New(path string) FileLock {
	return f.Lock(path)
}

// Lock returns the mock lock for path, creating it if needed.
func (f *MockLockFactory) Lock(path string) *MockFileLock {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks == nil {
		f.locks = make(map[string]*MockFileLock)
	}
	l, ok := f.locks[path]
	if !ok {
		l = &MockFileLock{}
		f.locks[path] = l
	}
	return l
}
