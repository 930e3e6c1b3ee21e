package discovery

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDiscover_FirstValidCandidateWins(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.txt")
	garbage := filepath.Join(dir, "garbage.txt")
	good := filepath.Join(dir, "good.txt")
	later := filepath.Join(dir, "later.txt")

	os.WriteFile(garbage, []byte("not-a-port\n"), 0o644)
	os.WriteFile(good, []byte(" 9931\n"), 0o644)
	os.WriteFile(later, []byte("1234"), 0o644)

	loc := NewLocator(LocatorConfig{Candidates: []string{missing, garbage, good, later}, Logger: testLogger()})
	ep, ok := loc.Discover()
	if !ok {
		t.Fatal("expected an endpoint")
	}
	if ep.Port != 9931 || ep.Source != good {
		t.Fatalf("got %+v, want port 9931 from %s", ep, good)
	}
}

func TestDiscover_NoCandidates(t *testing.T) {
	dir := t.TempDir()
	loc := NewLocator(LocatorConfig{
		Candidates: []string{filepath.Join(dir, "a"), filepath.Join(dir, "b")},
		Logger:     testLogger(),
	})
	if ep, ok := loc.Discover(); ok {
		t.Fatalf("expected no endpoint, got %+v", ep)
	}
}

func TestDiscover_OutOfRangeSkipped(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad")
	good := filepath.Join(dir, "good")
	os.WriteFile(bad, []byte("70000"), 0o644)
	os.WriteFile(good, []byte("8080"), 0o644)

	ep, ok := NewLocator(LocatorConfig{Candidates: []string{bad, good}, Logger: testLogger()}).Discover()
	if !ok || ep.Port != 8080 {
		t.Fatalf("got %+v ok=%v, want 8080", ep, ok)
	}
}

func TestDiscover_RereadsMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "port")
	loc := NewLocator(LocatorConfig{Candidates: []string{path}, Logger: testLogger()})

	if _, ok := loc.Discover(); ok {
		t.Fatal("expected no endpoint before marker exists")
	}
	if err := WritePortFile(path, 4242); err != nil {
		t.Fatal(err)
	}
	ep, ok := loc.Discover()
	if !ok || ep.Port != 4242 {
		t.Fatalf("got %+v ok=%v, want 4242", ep, ok)
	}
}

func TestDefaultCandidates_Order(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TMPDIR", "/tmp")

	got := DefaultCandidates()
	want := []string{
		filepath.Join(home, ".vscode", "extensions", "globalStorage", "mcp_port.txt"),
		filepath.Join(home, ".config", "Code", "User", "globalStorage", "mcp_port.txt"),
		"/tmp/luke_editor_mcp_port.txt",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDefaultCandidates_TMPDIRDoesNotHideSharedMarker(t *testing.T) {
	home := t.TempDir()
	tmp := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TMPDIR", tmp)

	got := DefaultCandidates()
	want := []string{
		filepath.Join(home, ".vscode", "extensions", "globalStorage", "mcp_port.txt"),
		filepath.Join(home, ".config", "Code", "User", "globalStorage", "mcp_port.txt"),
		"/tmp/luke_editor_mcp_port.txt",
		filepath.Join(tmp, "luke_editor_mcp_port.txt"),
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDiscover_SharedMarkerWithTMPDIRSet(t *testing.T) {
	if _, err := os.Stat("/tmp"); err != nil {
		t.Skip("no /tmp on this system")
	}
	if _, err := os.Stat(SharedMarkerPath); err == nil {
		t.Skip("shared marker already present; an editor may be running")
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TMPDIR", t.TempDir())

	if err := WritePortFile(SharedMarkerPath, 9931); err != nil {
		t.Skipf("cannot write %s: %v", SharedMarkerPath, err)
	}
	t.Cleanup(func() { os.Remove(SharedMarkerPath) })

	ep, ok := NewLocator(LocatorConfig{Logger: testLogger()}).Discover()
	if !ok {
		t.Fatalf("marker at %s not discovered", SharedMarkerPath)
	}
	if ep.Port != 9931 || ep.Source != SharedMarkerPath {
		t.Errorf("unexpected endpoint %+v", ep)
	}
}

func TestWritePortFile_CreatesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "port.txt")
	if err := WritePortFile(path, 9931); err != nil {
		t.Fatal(err)
	}
	port, err := ReadPortFile(path)
	if err != nil || port != 9931 {
		t.Fatalf("ReadPortFile = %d, %v", port, err)
	}
}
