package statefile

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestServerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "web.server.json")

	if _, err := ReadServer(path); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadServer on missing file: got %v, want ErrNotFound", err)
	}

	s := &Server{PID: 123, Name: "web", Command: "/bin/sleep", Args: []string{"3600"}, StartedAt: 1000, WatcherPID: 124}
	if err := WriteServer(path, s); err != nil {
		t.Fatalf("WriteServer: %v", err)
	}
	got, err := ReadServer(path)
	if err != nil {
		t.Fatalf("ReadServer: %v", err)
	}
	if got.PID != 123 || got.Name != "web" || got.WatcherPID != 124 {
		t.Errorf("ReadServer = %+v", got)
	}
}

func TestClientsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "web.clients.json")
	if err := atomicPublish(path, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	_, err := ReadClients(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("ReadClients on corrupt file: got %v, want ErrCorrupt", err)
	}
}

func TestRemoveMissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	if err := Remove(filepath.Join(dir, "nope.server.json")); err != nil {
		t.Fatalf("Remove on missing file: %v", err)
	}
}

func TestClientsDefaultMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "web.clients.json")
	if err := WriteClients(path, &Clients{Refcount: 0}); err != nil {
		t.Fatal(err)
	}
	c, err := ReadClients(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Clients == nil {
		t.Fatal("expected non-nil Clients map")
	}
}
