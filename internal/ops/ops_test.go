package ops

import (
	"os"
	"testing"
	"time"

	"github.com/georgeharker/sharedserver/internal/statemachine"
)

func TestCheckStoppedWhenNoRecords(t *testing.T) {
	dir := t.TempDir()
	state, err := Check(dir, "web")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if state != statemachine.Stopped {
		t.Fatalf("Check = %v, want Stopped", state)
	}
}

func TestUseLaunchesThenAttaches(t *testing.T) {
	dir := t.TempDir()
	name := "web"

	res, err := Use(UseOptions{
		LockDir:     dir,
		Name:        name,
		Command:     "/bin/sleep",
		Args:        []string{"60"},
		PID:         1001,
		StartWindow: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Use (launch): %v", err)
	}
	if !res.Started {
		t.Fatalf("expected Started=true on first use")
	}
	defer func() {
		if res.ServerPID > 0 {
			p, _ := os.FindProcess(res.ServerPID)
			_ = p.Kill()
		}
	}()

	state, err := Check(dir, name)
	if err != nil {
		t.Fatalf("Check after launch: %v", err)
	}
	if state != statemachine.Active {
		t.Fatalf("Check after launch = %v, want Active", state)
	}

	info, err := GetInfo(dir, name)
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.Refcount != 1 {
		t.Fatalf("Refcount = %d, want 1", info.Refcount)
	}

	// Second Use call attaches instead of relaunching.
	res2, err := Use(UseOptions{LockDir: dir, Name: name, PID: 1002})
	if err != nil {
		t.Fatalf("Use (attach): %v", err)
	}
	if res2.Started {
		t.Fatalf("expected Started=false on attach")
	}
	if res2.ServerPID != res.ServerPID {
		t.Fatalf("attach returned different server pid: %d vs %d", res2.ServerPID, res.ServerPID)
	}

	info, err = GetInfo(dir, name)
	if err != nil {
		t.Fatalf("GetInfo after attach: %v", err)
	}
	if info.Refcount != 2 {
		t.Fatalf("Refcount after attach = %d, want 2", info.Refcount)
	}

	if err := Unuse(dir, name, 1001); err != nil {
		t.Fatalf("Unuse: %v", err)
	}
	info, err = GetInfo(dir, name)
	if err != nil {
		t.Fatalf("GetInfo after unuse: %v", err)
	}
	if info.Refcount != 1 {
		t.Fatalf("Refcount after unuse = %d, want 1", info.Refcount)
	}

	if err := Unuse(dir, name, 1002); err != nil {
		t.Fatalf("Unuse second: %v", err)
	}
	state, err = Check(dir, name)
	if err != nil {
		t.Fatalf("Check after last unuse: %v", err)
	}
	if state != statemachine.Grace {
		t.Fatalf("Check after last unuse = %v, want Grace", state)
	}
}

func TestUseWithoutCommandOrServerIsStartRequired(t *testing.T) {
	dir := t.TempDir()
	_, err := Use(UseOptions{LockDir: dir, Name: "ghost", PID: 1})
	if err == nil {
		t.Fatal("expected StartRequired error")
	}
	if ExitCodeFor(err) != 3 {
		t.Fatalf("ExitCodeFor(StartRequired) = %d, want 3", ExitCodeFor(err))
	}
}

func TestIncrefIdempotent(t *testing.T) {
	dir := t.TempDir()
	name := "web"
	res, err := Use(UseOptions{LockDir: dir, Name: name, Command: "/bin/sleep", Args: []string{"60"}, PID: 1, StartWindow: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	defer func() {
		p, _ := os.FindProcess(res.ServerPID)
		_ = p.Kill()
	}()

	if err := Incref(dir, name, 1, ""); err != nil {
		t.Fatalf("Incref repeat: %v", err)
	}
	info, err := GetInfo(dir, name)
	if err != nil {
		t.Fatal(err)
	}
	if info.Refcount != 1 {
		t.Fatalf("Refcount after repeat incref = %d, want 1", info.Refcount)
	}
}

func TestDecrefUnknownPidIsNoop(t *testing.T) {
	dir := t.TempDir()
	name := "web"
	res, err := Use(UseOptions{LockDir: dir, Name: name, Command: "/bin/sleep", Args: []string{"60"}, PID: 1, StartWindow: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	defer func() {
		p, _ := os.FindProcess(res.ServerPID)
		_ = p.Kill()
	}()

	if err := Decref(dir, name, 999); err != nil {
		t.Fatalf("Decref unknown pid should be a no-op, got error: %v", err)
	}
	info, err := GetInfo(dir, name)
	if err != nil {
		t.Fatal(err)
	}
	if info.Refcount != 1 {
		t.Fatalf("Refcount after unknown decref = %d, want 1", info.Refcount)
	}
}

func TestListMatchWildcard(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"web", "worker", "cache"} {
		res, err := Use(UseOptions{LockDir: dir, Name: n, Command: "/bin/sleep", Args: []string{"60"}, PID: 1, StartWindow: 10 * time.Millisecond})
		if err != nil {
			t.Fatalf("Use(%s): %v", n, err)
		}
		defer func(pid int) {
			p, _ := os.FindProcess(pid)
			_ = p.Kill()
		}(res.ServerPID)
	}

	entries, err := ListMatch(dir, "w*")
	if err != nil {
		t.Fatalf("ListMatch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ListMatch(w*) = %d entries, want 2", len(entries))
	}
}
