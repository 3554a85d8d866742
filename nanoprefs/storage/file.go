package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arthur-debert/nanoprefs/formats"
)

// File is a Driver persisting the snapshot as a single document on disk.
// The encoding follows the file extension (see formats.ForPath). Writes go
// to a temporary file renamed over the target, under a cross-process lock
// on path+".lock".
type File struct {
	path        string
	format      *formats.Format
	fs          FileSystem
	lockFactory FileLockFactory
	fileLock    FileLock
	timeFunc    func() time.Time

	mu       sync.Mutex
	metadata Metadata
}

var _ Driver = (*File)(nil)

// FileOption modifies File configuration
type FileOption func(*File)

// WithFileSystem sets a custom FileSystem implementation
func WithFileSystem(fs FileSystem) FileOption {
	return func(f *File) { f.fs = fs }
}

// WithFileLockFactory sets a custom FileLockFactory implementation
func WithFileLockFactory(factory FileLockFactory) FileOption {
	return func(f *File) { f.lockFactory = factory }
}

// WithTimeFunc sets a custom time function for testing
func WithTimeFunc(fn func() time.Time) FileOption {
	return func(f *File) { f.timeFunc = fn }
}

// WithFormat overrides the extension-based format choice.
func WithFormat(format *formats.Format) FileOption {
	return func(f *File) { f.format = format }
}

// NewFile creates a file driver for path. Nothing is read until Load.
func NewFile(path string, opts ...FileOption) *File {
	f := &File{
		path:     path,
		timeFunc: time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.fs == nil {
		f.fs = OSFileSystem{}
	}
	if f.lockFactory == nil {
		f.lockFactory = FlockFactory{}
	}
	if f.format == nil {
		f.format = formats.ForPath(path)
	}
	f.fileLock = f.lockFactory.New(path + ".lock")
	return f
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Load implements Driver
func (f *File) Load() (Snapshot, error) {
	var out Snapshot
	err := withFileLock(f.fileLock, func() error {
		var err error
		out, err = f.load()
		return err
	})
	return out, err
}

func (f *File) load() (Snapshot, error) {
	if _, err := f.fs.Stat(f.path); errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, nil
	}

	raw, err := f.fs.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(raw) == 0 {
		return Snapshot{}, nil
	}

	var doc Document
	if err := f.format.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.format.Name, err)
	}
	for key, v := range doc.Entries {
		if !v.Kind.Valid() {
			return nil, fmt.Errorf("entry %q: invalid kind %d", key, v.Kind)
		}
	}

	f.mu.Lock()
	f.metadata = doc.Metadata
	f.mu.Unlock()

	if doc.Entries == nil {
		return Snapshot{}, nil
	}
	return doc.Entries, nil
}

// Save implements Driver
func (f *File) Save(data Snapshot) error {
	return withFileLock(f.fileLock, func() error {
		return f.save(data)
	})
}

func (f *File) save(data Snapshot) error {
	now := f.timeFunc()

	f.mu.Lock()
	if f.metadata.Version == "" {
		f.metadata.Version = documentVersion
		f.metadata.CreatedAt = now
	}
	f.metadata.UpdatedAt = now
	doc := Document{Entries: data, Metadata: f.metadata}
	f.mu.Unlock()

	raw, err := f.format.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", f.format.Name, err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := f.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tmpFile := f.path + ".tmp"
	if err := f.fs.WriteFile(tmpFile, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.fs.Rename(tmpFile, f.path); err != nil {
		_ = f.fs.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Metadata returns the bookkeeping of the last load or save.
func (f *File) Metadata() Metadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata
}

// Close implements Driver
func (f *File) Close() error { return nil }
