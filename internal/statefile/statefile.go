// Package statefile implements the two per-name records (server, clients),
// atomic publish, tolerant read, and the flock-based lock tokens that guard
// read-modify-write cycles against concurrent, mutually unaware processes.
package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by tolerant reads when the record file is absent.
var ErrNotFound = errors.New("statefile: not found")

// ErrCorrupt is returned by tolerant reads when the record file exists but
// cannot be parsed.
var ErrCorrupt = errors.New("statefile: corrupt")

// ErrLockTimeout is returned by AcquireTimeout when the lock could not be
// obtained within the bounded wait.
var ErrLockTimeout = errors.New("statefile: lock timeout")

// Server is the on-disk server record (§3).
type Server struct {
	PID            int               `json:"pid"`
	Name           string            `json:"name"`
	Command        string            `json:"command"`
	Args           []string          `json:"args,omitempty"`
	StartedAt      int64             `json:"started_at"`
	GracePeriod    string            `json:"grace_period,omitempty"`
	WatcherPID     int               `json:"watcher_pid"`
	ShutdownSignal string            `json:"shutdown_signal,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	WorkingDir     string            `json:"working_dir,omitempty"`
	LogFile        string            `json:"log_file,omitempty"`
}

// ClientEntry is one entry in the clients map.
type ClientEntry struct {
	AttachedAt int64  `json:"attached_at"`
	Metadata   string `json:"metadata,omitempty"`
}

// Clients is the on-disk clients record (§3). Exists iff refcount > 0.
type Clients struct {
	Refcount int                    `json:"refcount"`
	Clients  map[string]ClientEntry `json:"clients"`
}

// ReadServer tolerantly reads a server record: absent file -> ErrNotFound,
// unparseable contents -> ErrCorrupt.
func ReadServer(path string) (*Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("statefile: read %s: %w", path, err)
	}
	var s Server
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return &s, nil
}

// ReadClients tolerantly reads a clients record.
func ReadClients(path string) (*Clients, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("statefile: read %s: %w", path, err)
	}
	var c Clients
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if c.Clients == nil {
		c.Clients = map[string]ClientEntry{}
	}
	return &c, nil
}

// WriteServer atomically publishes a server record.
func WriteServer(path string, s *Server) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("statefile: marshal server: %w", err)
	}
	return atomicPublish(path, data)
}

// WriteClients atomically publishes a clients record.
func WriteClients(path string, c *Clients) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("statefile: marshal clients: %w", err)
	}
	return atomicPublish(path, data)
}

// Remove deletes a record file; a missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("statefile: remove %s: %w", path, err)
	}
	return nil
}

// atomicPublish writes data to a sibling temp file and renames it over
// path, so readers never observe a torn write.
func atomicPublish(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("statefile: create temp in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("statefile: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("statefile: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statefile: close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("statefile: chmod temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("statefile: rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}
