package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/arthur-debert/nanoprefs/formats"
)

func fixedTime() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func sampleSnapshot() Snapshot {
	return Snapshot{
		"name":    StringValue("Ada"),
		"tags":    StringSetValue([]string{"b", "a"}),
		"count":   IntValue(3),
		"big":     LongValue(1 << 40),
		"ratio":   FloatValue(0.5),
		"enabled": BoolValue(true),
	}
}

func TestFileRoundTripOnDisk(t *testing.T) {
	for _, ext := range []string{".json", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "prefs"+ext)
			f := NewFile(path, WithTimeFunc(fixedTime))

			loaded, err := f.Load()
			if err != nil {
				t.Fatalf("Load of a missing file: %v", err)
			}
			if len(loaded) != 0 {
				t.Fatalf("missing file should load empty, got %v", loaded)
			}

			if err := f.Save(sampleSnapshot()); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := NewFile(path).Load()
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if diff := cmp.Diff(sampleSnapshot(), got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
			if md := f.Metadata(); md.Version != documentVersion || !md.CreatedAt.Equal(fixedTime()) {
				t.Errorf("unexpected metadata %+v", md)
			}
		})
	}
}

func TestFileWritesAtomicallyWithLock(t *testing.T) {
	fs := NewMemFS()
	locks := &MockLockFactory{}
	f := NewFile("prefs.json", WithFileSystem(fs), WithFileLockFactory(locks), WithTimeFunc(fixedTime))

	if err := f.Save(Snapshot{"k": StringValue("v")}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := fs.File("prefs.json.tmp"); ok {
		t.Error("temporary file left behind")
	}
	raw, ok := fs.File("prefs.json")
	if !ok {
		t.Fatal("target file missing")
	}
	if !strings.Contains(string(raw), `"kind": "string"`) {
		t.Errorf("kind should be written by name, got:\n%s", raw)
	}

	lock := locks.Lock("prefs.json.lock")
	if lock.Held() {
		t.Error("lock not released after save")
	}
	if lock.Attempts != 1 {
		t.Errorf("lock attempts = %d, want 1", lock.Attempts)
	}
}

func TestFileRenameFailureCleansUp(t *testing.T) {
	fs := NewMemFS()
	fs.FailOn("rename", errors.New("cross-device link"))
	f := NewFile("prefs.json", WithFileSystem(fs), WithFileLockFactory(&MockLockFactory{}))

	err := f.Save(Snapshot{"k": IntValue(1)})
	if err == nil || !strings.Contains(err.Error(), "failed to rename") {
		t.Fatalf("Save error = %v", err)
	}
	if _, ok := fs.File("prefs.json.tmp"); ok {
		t.Error("temporary file should be removed after a failed rename")
	}
}

func TestFileBusyLockFails(t *testing.T) {
	locks := &MockLockFactory{}
	locks.Lock("prefs.json.lock").Busy = true
	f := NewFile("prefs.json", WithFileSystem(NewMemFS()), WithFileLockFactory(locks))

	if err := f.Save(Snapshot{}); err == nil || !strings.Contains(err.Error(), "failed to acquire lock") {
		t.Fatalf("Save error = %v", err)
	}
	if got := locks.Lock("prefs.json.lock").Attempts; got < 2 {
		t.Errorf("expected retries, got %d attempts", got)
	}
}

func TestFileRejectsCorruptDocument(t *testing.T) {
	fs := NewMemFS()
	_ = fs.WriteFile("prefs.json", []byte(`{"entries": {"k": {"kind": "matrix"}}}`), 0o644)
	f := NewFile("prefs.json", WithFileSystem(fs), WithFileLockFactory(&MockLockFactory{}))

	if _, err := f.Load(); err == nil {
		t.Fatal("expected an error for an unknown kind")
	}
}

func TestFileExplicitFormat(t *testing.T) {
	fs := NewMemFS()
	f := NewFile("prefs.conf", WithFileSystem(fs), WithFileLockFactory(&MockLockFactory{}), WithFormat(formats.YAML))
	if err := f.Save(Snapshot{"k": BoolValue(true)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _ := fs.File("prefs.conf")
	if !strings.Contains(string(raw), "kind: boolean") {
		t.Errorf("expected yaml output, got:\n%s", raw)
	}
}

func TestDeferredOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	d, err := NewDeferred(NewFile(path))
	if err != nil {
		t.Fatalf("NewDeferred: %v", err)
	}
	d.PutString("theme", "dark")
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewDeferred(NewFile(path))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.GetString("theme", ""); got != "dark" {
		t.Errorf("theme = %q after reopen", got)
	}
}
