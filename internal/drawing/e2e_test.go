package drawing

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"lukebridge/internal/bridge"
	"lukebridge/internal/discovery"
	"lukebridge/internal/domain"
	"lukebridge/internal/editor"
	"lukebridge/internal/journal"
)

type harness struct {
	editor  *editor.Server
	session *bridge.Session
	client  *Client
}

// newHarness runs a reference editor that publishes its port in a marker and
// wires a client to it through discovery. The editor prefers port 9931.
func newHarness(t *testing.T, rec Recorder) *harness {
	t.Helper()
	marker := filepath.Join(t.TempDir(), "luke_editor_mcp_port.txt")

	ed := editor.New(editor.Config{Port: 9931, PortFile: marker, Logger: testLogger()})
	if _, err := ed.Listen(); err != nil {
		ed = editor.New(editor.Config{PortFile: marker, Logger: testLogger()})
		if _, err := ed.Listen(); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ed.Start(ctx) }()

	waitForMarker(t, marker)

	session := bridge.NewSession(bridge.SessionConfig{
		Locator: discovery.NewLocator(discovery.LocatorConfig{
			Candidates: []string{filepath.Join(t.TempDir(), "absent.txt"), marker},
			Logger:     testLogger(),
		}),
		Host:           "127.0.0.1",
		RequestTimeout: 5 * time.Second,
		Logger:         testLogger(),
	})
	t.Cleanup(func() {
		session.Close()
		cancel()
		<-done
	})

	return &harness{
		editor:  ed,
		session: session,
		client:  NewClient(ClientConfig{Sender: session, Recorder: rec, Logger: testLogger()}),
	}
}

func waitForMarker(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := discovery.ReadPortFile(path); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("editor never published its port")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestE2E_SetFileThenDrawCircle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.client.SetFile(ctx, "/tmp/x.luke"); err != nil {
		t.Fatal(err)
	}
	el, err := h.client.DrawCircle(ctx, domain.Circle{ID: "c1", X: 10, Y: 20, Radius: 5})
	if err != nil {
		t.Fatal(err)
	}
	if el.ID != "c1" {
		t.Fatalf("echoed id = %q", el.ID)
	}

	reqs := h.editor.Requests()
	want := domain.DrawCircle{
		FilePath: "/tmp/x.luke",
		Circle:   domain.Circle{ID: "c1", X: 10, Y: 20, Radius: 5, Color: "#000000"},
	}
	if len(reqs) != 2 || reqs[0] != (domain.SetFile{FilePath: "/tmp/x.luke"}) || reqs[1] != want {
		t.Fatalf("editor saw %#v", reqs)
	}
}

func TestE2E_DrawEchoesID(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.client.SetFile(ctx, "/tmp/shapes.luke")

	rect, err := h.client.DrawRectangle(ctx, domain.Rectangle{ID: "r1", X: 1, Y: 2, Width: 30, Height: 40, Color: "#FF0000"})
	if err != nil {
		t.Fatal(err)
	}
	if rect.ID != "r1" || rect.Kind() != domain.KindRectangle || rect.Color != "#FF0000" {
		t.Fatalf("unexpected rectangle %+v", rect)
	}

	circle, err := h.client.DrawCircle(ctx, domain.Circle{ID: "c7", X: 5, Y: 5, Radius: 2})
	if err != nil {
		t.Fatal(err)
	}
	if circle.ID != "c7" || circle.Kind() != domain.KindCircle {
		t.Fatalf("unexpected circle %+v", circle)
	}

	els, err := h.client.GetElements(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(els) != 2 || els[0].ID != "r1" || els[1].ID != "c7" {
		t.Fatalf("unexpected elements %+v", els)
	}

	got, found, err := h.client.GetElementByID(ctx, "c7")
	if err != nil || !found || got.ID != "c7" || *got.Radius != 2 {
		t.Fatalf("GetElementByID = %+v, %v, %v", got, found, err)
	}
}

func TestE2E_DuplicateIDIsRemoteError(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.client.SetFile(ctx, "/tmp/x.luke")

	if _, err := h.client.DrawCircle(ctx, domain.Circle{ID: "c1", Radius: 1}); err != nil {
		t.Fatal(err)
	}
	_, err := h.client.DrawCircle(ctx, domain.Circle{ID: "c1", Radius: 1})
	var remote *bridge.RemoteError
	if !errors.As(err, &remote) || remote.Message != "duplicate id" {
		t.Fatalf("expected remote duplicate id, got %v", err)
	}
	if h.session.State() != bridge.StateConnected {
		t.Fatal("a rejection must keep the connection")
	}
}

func TestE2E_SetFileActiveFileRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.client.SetFile(ctx, "/tmp/round.luke")
	active, err := h.client.GetActiveFile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if active.FilePath != "/tmp/round.luke" || h.client.Target() != "/tmp/round.luke" {
		t.Fatalf("active=%q target=%q", active.FilePath, h.client.Target())
	}
}

func TestE2E_ActiveFileDiscoversTarget(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	// Another client focuses a document; a fresh client adopts it.
	h.editor.Handle(domain.SetFile{FilePath: "/tmp/focused.luke"})

	if _, err := h.client.GetActiveFile(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.client.DrawCircle(ctx, domain.Circle{ID: "c1", Radius: 3}); err != nil {
		t.Fatal(err)
	}
	if els := h.editor.Elements("/tmp/focused.luke"); len(els) != 1 {
		t.Fatalf("expected circle in focused doc, got %+v", els)
	}
}

func TestE2E_UnknownIDNotFound(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.client.SetFile(ctx, "/tmp/x.luke")

	_, found, err := h.client.GetElementByID(ctx, "never-drawn")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if found {
		t.Fatal("expected not found")
	}
}

func TestE2E_EditorReloadHealsOnNextCall(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.client.SetFile(ctx, "/tmp/x.luke")

	h.editor.DropClients()

	_, err := h.client.GetElements(ctx)
	if !errors.Is(err, bridge.ErrTransport) {
		t.Fatalf("expected transport fault after reload, got %v", err)
	}
	if _, err := h.client.GetElements(ctx); err != nil {
		t.Fatalf("expected self-heal, got %v", err)
	}
	if n := h.session.ConnectAttempts(); n != 2 {
		t.Fatalf("expected exactly 2 connection attempts, got %d", n)
	}
}

func TestE2E_NoMarkerIsDiscoveryFailure(t *testing.T) {
	dir := t.TempDir()
	session := bridge.NewSession(bridge.SessionConfig{
		Locator: discovery.NewLocator(discovery.LocatorConfig{
			Candidates: []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")},
			Logger:     testLogger(),
		}),
		Logger: testLogger(),
	})
	defer session.Close()
	c := NewClient(ClientConfig{Sender: session, Logger: testLogger()})
	ctx := context.Background()

	if _, err := c.SetFile(ctx, "/tmp/x.luke"); !errors.Is(err, bridge.ErrEndpointNotFound) {
		t.Fatalf("SetFile: expected ErrEndpointNotFound, got %v", err)
	}
	_, err := c.DrawCircle(ctx, domain.Circle{ID: "c1", Radius: 1})
	if !errors.Is(err, bridge.ErrEndpointNotFound) {
		t.Fatalf("DrawCircle: expected ErrEndpointNotFound, got %v", err)
	}
	if session.State() != bridge.StateDisconnected {
		t.Fatalf("state = %s", session.State())
	}
}

func TestE2E_JournalRecordsRoundTrips(t *testing.T) {
	store, err := journal.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	h := newHarness(t, store)
	ctx := context.Background()
	h.client.SetFile(ctx, "/tmp/j.luke")
	h.client.DrawCircle(ctx, domain.Circle{ID: "c1", Radius: 1})
	h.client.DrawCircle(ctx, domain.Circle{ID: "c1", Radius: 1})

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Success || entries[0].Error != "duplicate id" || entries[0].SessionID != h.session.ID() {
		t.Fatalf("newest entry = %+v", entries[0])
	}
}
