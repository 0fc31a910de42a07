package watcher

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/georgeharker/sharedserver/internal/lockdir"
	"github.com/georgeharker/sharedserver/internal/statefile"
)

func spawnSleep(t *testing.T, seconds string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("/bin/sleep", seconds)
	if err := cmd.Start(); err != nil {
		t.Fatalf("spawn sleep: %v", err)
	}
	return cmd
}

func writeServerRecord(t *testing.T, dir, name string, pid int) {
	t.Helper()
	paths, err := lockdir.DerivePaths(dir, name)
	if err != nil {
		t.Fatalf("DerivePaths: %v", err)
	}
	srv := &statefile.Server{
		PID:            pid,
		Name:           name,
		Command:        "/bin/sleep",
		Args:           []string{"60"},
		StartedAt:      0,
		GracePeriod:    "50ms",
		WatcherPID:     os.Getpid(),
		ShutdownSignal: "TERM",
	}
	if err := statefile.WriteServer(paths.ServerJSON, srv); err != nil {
		t.Fatalf("WriteServer: %v", err)
	}
}

func TestTickExitsWhenNoServerRecord(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Options{LockDir: dir, Name: "web"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done, err := w.tick()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !done {
		t.Fatal("expected done=true when no server record exists")
	}
}

func TestTickCleansUpDeadServer(t *testing.T) {
	dir := t.TempDir()
	name := "web"
	writeServerRecord(t, dir, name, 999999) // pid unlikely to exist

	w, err := New(Options{LockDir: dir, Name: name})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done, err := w.tick()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !done {
		t.Fatal("expected done=true once server is confirmed dead")
	}

	paths, _ := lockdir.DerivePaths(dir, name)
	if _, err := statefile.ReadServer(paths.ServerJSON); err == nil {
		t.Fatal("expected server record to be removed")
	}
}

func TestTickEntersGraceThenExpires(t *testing.T) {
	dir := t.TempDir()
	name := "web"
	cmd := spawnSleep(t, "5")
	defer func() { _ = cmd.Process.Kill() }()

	paths, _ := lockdir.DerivePaths(dir, name)
	srv := &statefile.Server{
		PID:            cmd.Process.Pid,
		Name:           name,
		Command:        "/bin/sleep",
		Args:           []string{"5"},
		StartedAt:      0,
		GracePeriod:    "10ms",
		WatcherPID:     os.Getpid(),
		ShutdownSignal: "TERM",
	}
	if err := statefile.WriteServer(paths.ServerJSON, srv); err != nil {
		t.Fatalf("WriteServer: %v", err)
	}

	w, err := New(Options{LockDir: dir, Name: name, KillWait: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// First tick: no clients record -> enters grace, not yet expired.
	done, err := w.tick()
	if err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if done {
		t.Fatal("did not expect done on first grace tick")
	}
	if !w.inGrace {
		t.Fatal("expected inGrace=true after first tick")
	}

	time.Sleep(20 * time.Millisecond)

	done, err = w.tick()
	if err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if !done {
		t.Fatal("expected done=true once grace period has elapsed")
	}

	if _, err := statefile.ReadServer(paths.ServerJSON); err == nil {
		t.Fatal("expected server record removed after grace expiry")
	}
}

func TestTickActiveWithLiveClientStaysActive(t *testing.T) {
	dir := t.TempDir()
	name := "web"
	cmd := spawnSleep(t, "5")
	defer func() { _ = cmd.Process.Kill() }()

	paths, _ := lockdir.DerivePaths(dir, name)
	srv := &statefile.Server{
		PID:            cmd.Process.Pid,
		Name:           name,
		StartedAt:      0,
		GracePeriod:    "1s",
		WatcherPID:     os.Getpid(),
		ShutdownSignal: "TERM",
	}
	if err := statefile.WriteServer(paths.ServerJSON, srv); err != nil {
		t.Fatalf("WriteServer: %v", err)
	}
	clients := &statefile.Clients{
		Refcount: 1,
		Clients:  map[string]statefile.ClientEntry{"1": {AttachedAt: 0}},
	}
	if err := statefile.WriteClients(paths.ClientsJSON, clients); err != nil {
		t.Fatalf("WriteClients: %v", err)
	}

	w, err := New(Options{LockDir: dir, Name: name})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done, err := w.tick()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if done {
		t.Fatal("did not expect done while a live client remains")
	}
	if w.inGrace {
		t.Fatal("did not expect inGrace while clients record is present")
	}
}

func TestRunStopsWhenServerDies(t *testing.T) {
	dir := t.TempDir()
	name := "web"
	cmd := spawnSleep(t, "1")
	pid := cmd.Process.Pid

	paths, _ := lockdir.DerivePaths(dir, name)
	srv := &statefile.Server{
		PID:            pid,
		Name:           name,
		StartedAt:      0,
		GracePeriod:    "",
		WatcherPID:     os.Getpid(),
		ShutdownSignal: "TERM",
	}
	if err := statefile.WriteServer(paths.ServerJSON, srv); err != nil {
		t.Fatalf("WriteServer: %v", err)
	}

	w, err := New(Options{LockDir: dir, Name: name, PollInterval: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	_ = cmd.Wait()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("Run did not notice server exit in time")
	}
}
