package statefile

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "web.server.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// Reacquiring after release must succeed immediately.
	l2, err := AcquireTimeout(path, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("AcquireTimeout after release: %v", err)
	}
	_ = l2.Release()
}

func TestAcquireTimeoutWhileHeld(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "web.server.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	_, err = AcquireTimeout(path, 150*time.Millisecond)
	if err != ErrLockTimeout {
		t.Fatalf("AcquireTimeout while held: got %v, want ErrLockTimeout", err)
	}
}

func TestAcquireBothOrderAndRelease(t *testing.T) {
	dir := t.TempDir()
	serverLock := filepath.Join(dir, "web.server.lock")
	clientsLock := filepath.Join(dir, "web.clients.lock")

	release, err := AcquireBoth(serverLock, clientsLock)
	if err != nil {
		t.Fatalf("AcquireBoth: %v", err)
	}
	release()

	// both must be free afterwards
	l1, err := AcquireTimeout(serverLock, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("server lock not released: %v", err)
	}
	defer l1.Release()
	l2, err := AcquireTimeout(clientsLock, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("clients lock not released: %v", err)
	}
	defer l2.Release()
}
