// Package storage provides the persistence layer for nanoprefs.
//
// It has two halves. Drivers move a whole Snapshot to and from a medium
// (memory, a JSON or YAML file, SQLite, Redis). Backends sit on top of a
// driver and implement the flat key-value contract the field layer consumes:
// typed get/put of the six native kinds, commit/apply, enumeration and change
// notification by key.
//
// Two backends exist. Deferred stages mutations on a shared editor and only
// persists on Commit or Apply. Immediate persists every mutation at once.
package storage

import (
	"time"
)

// Document is what file drivers persist: the entries plus bookkeeping.
type Document struct {
	Entries  Snapshot `json:"entries" yaml:"entries"`
	Metadata Metadata `json:"metadata" yaml:"metadata"`
}

// Metadata contains storage metadata
type Metadata struct {
	Version   string    `json:"version" yaml:"version"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// documentVersion is written into every new file.
const documentVersion = "1.0"

// Driver defines the low-level interface for batch persistence.
// It loads and saves the entire key-value snapshot as a single unit, which
// matches the file drivers' natural behavior.
type Driver interface {
	// Load reads the entire snapshot from the medium. A medium that does not
	// exist yet yields an empty snapshot and no error.
	Load() (Snapshot, error)

	// Save replaces the persisted snapshot with data.
	Save(data Snapshot) error

	// Close releases any resources held by the driver
	Close() error
}

// KeyWriter is implemented by drivers that can durably persist a single key
// without rewriting the whole snapshot. The immediate backend prefers it.
type KeyWriter interface {
	Put(key string, value Value) error
	Delete(key string) error
	Truncate() error
}
