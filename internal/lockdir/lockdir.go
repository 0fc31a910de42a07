// Package lockdir resolves the directory that holds per-name state files
// and lock tokens, and derives the fixed file layout within it.
package lockdir

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

const (
	envLockDir    = "SHAREDSERVER_LOCKDIR"
	envXDGRuntime = "XDG_RUNTIME_DIR"
	fallbackDir   = "/tmp/sharedserver"
	dirPerm       = 0o700
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ErrBadName is returned when a server name fails validation.
type ErrBadName struct {
	Name string
}

func (e *ErrBadName) Error() string {
	return fmt.Sprintf("bad name %q: must match %s", e.Name, nameRE.String())
}

// ValidateName checks that name is safe to use as a filename stem: no path
// separators, restricted to letters, digits, dot, dash, underscore.
func ValidateName(name string) error {
	if name == "" || !nameRE.MatchString(name) {
		return &ErrBadName{Name: name}
	}
	return nil
}

// Resolve determines the lock directory in priority order:
// $SHAREDSERVER_LOCKDIR, else $XDG_RUNTIME_DIR/sharedserver, else
// /tmp/sharedserver. The directory is created on demand with mode 0700.
func Resolve() (string, error) {
	dir := os.Getenv(envLockDir)
	if dir == "" {
		if xdg := os.Getenv(envXDGRuntime); xdg != "" {
			dir = filepath.Join(xdg, "sharedserver")
		} else {
			dir = fallbackDir
		}
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("lockdir: create %s: %w", dir, err)
	}
	return dir, nil
}

// Paths is the fixed set of per-name filesystem paths.
type Paths struct {
	Name        string
	ServerJSON  string
	ClientsJSON string
	ServerLock  string
	ClientsLock string
}

// DerivePaths validates name and returns its four file paths under dir.
func DerivePaths(dir, name string) (Paths, error) {
	if err := ValidateName(name); err != nil {
		return Paths{}, err
	}
	return Paths{
		Name:        name,
		ServerJSON:  filepath.Join(dir, name+".server.json"),
		ClientsJSON: filepath.Join(dir, name+".clients.json"),
		ServerLock:  filepath.Join(dir, name+".server.lock"),
		ClientsLock: filepath.Join(dir, name+".clients.lock"),
	}, nil
}

// ResolvePaths combines Resolve and DerivePaths.
func ResolvePaths(name string) (Paths, error) {
	dir, err := Resolve()
	if err != nil {
		return Paths{}, err
	}
	return DerivePaths(dir, name)
}

// ListServerRecords returns the name stems of every *.server.json file in
// dir, in filename order (os.ReadDir returns entries sorted by filename).
func ListServerRecords(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lockdir: list %s: %w", dir, err)
	}
	const suffix = ".server.json"
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if len(n) > len(suffix) && n[len(n)-len(suffix):] == suffix {
			names = append(names, n[:len(n)-len(suffix)])
		}
	}
	return names, nil
}
