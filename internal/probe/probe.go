// Package probe answers "is process pid still alive?" portably, tolerating
// zombies and pid reuse.
package probe

import (
	"bytes"
	"os"
	"runtime"
	"strconv"
	"syscall"
)

// IsAlive reports whether pid refers to a live, non-zombie process. On
// Linux it consults /proc/<pid>/status to exclude zombies before falling
// back to the portable signal-0 probe; elsewhere it relies on signal-0
// alone. A process owned by another user answers EPERM to signal-0, which
// is treated as alive — the pid exists, we just can't signal it.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	if err == syscall.EPERM {
		return true
	}
	return false
}

// IsAliveSince is IsAlive plus a pid-reuse guard: if wantStartedAt is
// nonzero and the kernel's recorded start time for pid disagrees, the pid
// has been recycled by an unrelated process since the record was written,
// and is treated as dead. When the kernel start time cannot be determined,
// the check degrades to plain IsAlive — a missed reuse is recovered at the
// next reconciliation, never a false "dead".
func IsAliveSince(pid int, wantStartedAt int64) bool {
	if !IsAlive(pid) {
		return false
	}
	if wantStartedAt == 0 {
		return true
	}
	got := StartUnix(pid)
	if got == 0 {
		return true
	}
	return got == wantStartedAt
}

// isZombieLinux reports whether /proc/<pid>/status shows a zombie state.
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
