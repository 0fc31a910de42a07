package statefile

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

const lockRetryInterval = 50 * time.Millisecond

// Lock is an exclusive advisory lock held on a dedicated token file, never
// on the record itself, so tolerant readers never contend with a writer
// mid-transaction.
type Lock struct {
	file *os.File
	path string
}

// Acquire blocks until the exclusive lock on path is held. The token file
// is created if missing; its contents are never meaningful, only its
// existence as a flock handle.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("statefile: open lock %s: %w", path, err)
	}
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return &Lock{file: f, path: path}, nil
		}
		if err != syscall.EWOULDBLOCK && err != syscall.EAGAIN {
			_ = f.Close()
			return nil, fmt.Errorf("statefile: flock %s: %w", path, err)
		}
		time.Sleep(lockRetryInterval)
	}
}

// AcquireTimeout is like Acquire but gives up after timeout, returning
// ErrLockTimeout. A zero timeout means try once, non-blocking.
func AcquireTimeout(path string, timeout time.Duration) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("statefile: open lock %s: %w", path, err)
	}
	deadline := time.Now().Add(timeout)
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return &Lock{file: f, path: path}, nil
		}
		if err != syscall.EWOULDBLOCK && err != syscall.EAGAIN {
			_ = f.Close()
			return nil, fmt.Errorf("statefile: flock %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, ErrLockTimeout
		}
		time.Sleep(lockRetryInterval)
	}
}

// Release unlocks and closes the token file. The kernel releases the flock
// automatically if the holder dies before calling Release, so callers must
// still defer Release on every acquisition path including panics.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return fmt.Errorf("statefile: unlock %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("statefile: close lock %s: %w", l.path, closeErr)
	}
	return nil
}

// AcquireBoth locks the server token then the clients token, in that fixed
// order, for operations that mutate both records. Callers must release in
// reverse order via the returned release func.
func AcquireBoth(serverLockPath, clientsLockPath string) (release func(), err error) {
	sl, err := Acquire(serverLockPath)
	if err != nil {
		return nil, err
	}
	cl, err := Acquire(clientsLockPath)
	if err != nil {
		_ = sl.Release()
		return nil, err
	}
	return func() {
		_ = cl.Release()
		_ = sl.Release()
	}, nil
}
