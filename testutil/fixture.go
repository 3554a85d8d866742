package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/arthur-debert/nanoprefs/nanoprefs/storage"
)

// Color is the enumeration used across the test suites.
type Color int

const (
	Red Color = iota
	Green
	Blue
)

var colorNames = []string{"RED", "GREEN", "BLUE"}

// Colors lists every Color in ordinal order.
var Colors = []Color{Red, Green, Blue}

func (c Color) String() string {
	if c < 0 || int(c) >= len(colorNames) {
		return fmt.Sprintf("Color(%d)", int(c))
	}
	return colorNames[c]
}

// EnumNames makes Color inferable as an enumeration.
func (Color) EnumNames() []string { return colorNames }

// Address is nested inside Profile.
type Address struct {
	City string `json:"city"`
	Zip  string `json:"zip"`
}

// Profile is an immutable value container, updated through copies.
type Profile struct {
	Name    string  `json:"name"`
	Age     int     `json:"age"`
	Address Address `json:"address"`
}

// Settings is a mutable container holding a nested Profile.
type Settings struct {
	Theme   string
	Volume  int
	Profile Profile
}

// Fixture values as stored in testdata/preferences.json.
var (
	FixtureColor   = "GREEN"
	FixtureTags    = []string{"BLUE", "RED"}
	FixtureLaunch  = int32(7)
	FixtureSync    = int64(1700000000000)
	FixtureVolume  = float32(0.75)
	FixtureProfile = Profile{Name: "Ada", Age: 36, Address: Address{City: "London", Zip: "N1"}}
	// UnmodelledKey exists in the fixture without any field bound to it.
	UnmodelledKey = "legacy.flag"
)

// FixturePath returns the path of the shared preferences fixture.
func FixturePath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "testdata", "preferences.json")
}

// LoadFixture copies the fixture into a temporary directory and returns a
// deferred backend over it together with the file driver.
func LoadFixture(t *testing.T) (*storage.Deferred, *storage.File) {
	t.Helper()

	data, err := os.ReadFile(FixturePath())
	if err != nil {
		t.Fatalf("failed to read fixture file: %v", err)
	}
	path := filepath.Join(t.TempDir(), "preferences.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to copy fixture: %v", err)
	}

	driver := storage.NewFile(path)
	backend, err := storage.NewDeferred(driver)
	if err != nil {
		t.Fatalf("failed to open fixture: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend, driver
}

// NewDeferred returns a deferred backend over an in-memory driver.
func NewDeferred(t *testing.T, initial storage.Snapshot) (*storage.Deferred, *storage.Memory) {
	t.Helper()
	driver := storage.NewMemory(initial)
	backend, err := storage.NewDeferred(driver)
	if err != nil {
		t.Fatalf("failed to create deferred backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend, driver
}

// NewImmediate returns an immediate backend over an in-memory driver.
func NewImmediate(t *testing.T, initial storage.Snapshot) (*storage.Immediate, *storage.Memory) {
	t.Helper()
	driver := storage.NewMemory(initial)
	backend, err := storage.NewImmediate(driver)
	if err != nil {
		t.Fatalf("failed to create immediate backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend, driver
}
