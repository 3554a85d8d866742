package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/nanoprefs/testutil"
)

// run executes one CLI invocation and returns its stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, _, err := run(t, args...)
	if err != nil {
		t.Fatalf("nanoprefs %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func dumpJSON(t *testing.T, args ...string) map[string]any {
	t.Helper()
	out := mustRun(t, append(args, "dump", "--json")...)
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("dump output is not JSON: %v\n%s", err, out)
	}
	return got
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	store := []string{"--path", path}

	mustRun(t, append(store, "set", "favorite_color", "BLUE")...)
	mustRun(t, append(store, "set", "--kind", "int", "launch_count", "7")...)
	mustRun(t, append(store, "set", "--kind", "string_set", "tags", "RED", "BLUE", "RED")...)
	mustRun(t, append(store, "set", "--kind", "boolean", "onboarded", "true")...)

	if got := mustRun(t, append(store, "get", "favorite_color")...); got != "BLUE\n" {
		t.Errorf("get = %q, want BLUE", got)
	}
	if got := mustRun(t, append(store, "get", "tags")...); got != "BLUE,RED\n" {
		t.Errorf("get tags = %q", got)
	}

	want := map[string]any{
		"favorite_color": "BLUE",
		"launch_count":   float64(7),
		"tags":           []any{"BLUE", "RED"},
		"onboarded":      true,
	}
	if diff := cmp.Diff(want, dumpJSON(t, store...)); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}

	out, errOut, err := run(t, append(store, "rm", "launch_count", "missing")...)
	if err != nil {
		t.Fatal(err)
	}
	if out != "removed 1 key(s)\n" || !strings.Contains(errOut, "missing") {
		t.Errorf("rm output = %q / %q", out, errOut)
	}

	_, _, err = run(t, append(store, "get", "launch_count")...)
	var cliErr *CLIError
	if !errors.As(err, &cliErr) || cliErr.Operation != "get" {
		t.Errorf("get after rm = %v, want a get CLIError", err)
	}

	if _, _, err := run(t, append(store, "clear")...); err == nil {
		t.Error("clear without --force should be refused")
	}
	if got := mustRun(t, append(store, "clear", "--force")...); got != "cleared 3 key(s)\n" {
		t.Errorf("clear = %q", got)
	}
	if got := mustRun(t, append(store, "dump")...); got != "store is empty\n" {
		t.Errorf("dump after clear = %q", got)
	}
}

func TestDumpTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	mustRun(t, "--path", path, "set", "--kind", "string_set", "tags", "RED")
	mustRun(t, "--path", path, "set", "--kind", "long", "last_sync", "1700000000000")

	out := mustRun(t, "--path", path, "dump")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("dump printed %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "last_sync") || !strings.Contains(lines[0], "Long") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "tags") || !strings.Contains(lines[1], "String Set") {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestFixtureDump(t *testing.T) {
	data, err := os.ReadFile(testutil.FixturePath())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "preferences.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	got := dumpJSON(t, "--path", path)
	if got["favorite_color"] != testutil.FixtureColor {
		t.Errorf("favorite_color = %v", got["favorite_color"])
	}
	if _, ok := got[testutil.UnmodelledKey]; !ok {
		t.Errorf("dump should include %s", testutil.UnmodelledKey)
	}
}

func TestEnvironmentConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	t.Setenv("NANOPREFS_BACKEND", "sqlite")
	t.Setenv("NANOPREFS_PATH", path)

	mustRun(t, "set", "--kind", "float", "volume", "0.75")
	if got := mustRun(t, "get", "volume"); got != "0.75\n" {
		t.Errorf("get volume = %q", got)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("sqlite database not created: %v", err)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prefs.json")
	config := filepath.Join(dir, "nanoprefs.yaml")
	if err := os.WriteFile(config, []byte("path: "+path+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	mustRun(t, "--config", config, "set", "theme", "dark")
	if got := mustRun(t, "--path", path, "get", "theme"); got != "dark\n" {
		t.Errorf("get theme = %q", got)
	}
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	store := []string{"--backend", "redis", "--path", mr.Addr(), "--table", "cli:prefs"}

	_, _, err := run(t, append(store, "set", "--kind", "int", "launch_count", "3")...)
	require.NoError(t, err)
	assert.True(t, mr.Exists("cli:prefs"))

	out, _, err := run(t, append(store, "get", "launch_count")...)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing path", []string{"get", "x"}, "no store location"},
		{"unknown backend", []string{"--backend", "etcd", "--path", path, "get", "x"}, "unknown backend"},
		{"bad int", []string{"--path", path, "set", "--kind", "int", "n", "abc"}, `cannot parse "abc" as int`},
		{"int overflow", []string{"--path", path, "set", "--kind", "int", "n", "3000000000"}, "cannot parse"},
		{"bad kind", []string{"--path", path, "set", "--kind", "decimal", "n", "1"}, "unknown value kind"},
		{"too many values", []string{"--path", path, "set", "n", "a", "b"}, "exactly one value"},
		{"missing key", []string{"--path", path, "get", "nope"}, `no value stored under "nope"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NANOPREFS_PATH", "")
			_, _, err := run(t, tt.args...)
			var cliErr *CLIError
			if !errors.As(err, &cliErr) {
				t.Fatalf("err = %v, want a CLIError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}
