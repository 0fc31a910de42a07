package lockdir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"web", true},
		{"web-1", true},
		{"web_1.2", true},
		{"", false},
		{"a/b", false},
		{"../escape", false},
		{"has space", false},
	}
	for _, c := range cases {
		err := ValidateName(c.name)
		if c.ok && err != nil {
			t.Errorf("ValidateName(%q): expected nil, got %v", c.name, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ValidateName(%q): expected error, got nil", c.name)
		}
	}
}

func TestDerivePaths(t *testing.T) {
	dir := t.TempDir()
	p, err := DerivePaths(dir, "web")
	if err != nil {
		t.Fatalf("DerivePaths: %v", err)
	}
	if p.ServerJSON != filepath.Join(dir, "web.server.json") {
		t.Errorf("ServerJSON = %s", p.ServerJSON)
	}
	if p.ClientsJSON != filepath.Join(dir, "web.clients.json") {
		t.Errorf("ClientsJSON = %s", p.ClientsJSON)
	}
	if p.ServerLock != filepath.Join(dir, "web.server.lock") {
		t.Errorf("ServerLock = %s", p.ServerLock)
	}
	if p.ClientsLock != filepath.Join(dir, "web.clients.lock") {
		t.Errorf("ClientsLock = %s", p.ClientsLock)
	}
}

func TestResolvePriority(t *testing.T) {
	base := t.TempDir()
	explicit := filepath.Join(base, "explicit")
	t.Setenv("SHAREDSERVER_LOCKDIR", explicit)
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(base, "xdg"))

	dir, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dir != explicit {
		t.Errorf("Resolve() = %s, want %s", dir, explicit)
	}

	t.Setenv("SHAREDSERVER_LOCKDIR", "")
	xdg := filepath.Join(base, "xdg2")
	t.Setenv("XDG_RUNTIME_DIR", xdg)
	dir, err = Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(xdg, "sharedserver")
	if dir != want {
		t.Errorf("Resolve() = %s, want %s", dir, want)
	}
}

func TestListServerRecords(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"web.server.json", "worker.server.json", "web.clients.json", "stray.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	names, err := ListServerRecords(dir)
	if err != nil {
		t.Fatalf("ListServerRecords: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("got %v, want 2 entries", names)
	}
}
