package ops

import (
	"errors"

	"github.com/georgeharker/sharedserver/internal/lockdir"
	"github.com/georgeharker/sharedserver/internal/probe"
	"github.com/georgeharker/sharedserver/internal/statefile"
	"github.com/georgeharker/sharedserver/internal/statemachine"
)

// Info is the combined, tolerant-read view of a name's records plus
// derived state and refcount (§4.5).
type Info struct {
	Name           string            `json:"name"`
	PID            int               `json:"pid,omitempty"`
	Command        string            `json:"command,omitempty"`
	Args           []string          `json:"args,omitempty"`
	StartedAt      int64             `json:"started_at,omitempty"`
	GracePeriod    string            `json:"grace_period,omitempty"`
	WatcherPID     int               `json:"watcher_pid,omitempty"`
	ShutdownSignal string            `json:"shutdown_signal,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	WorkingDir     string            `json:"working_dir,omitempty"`
	LogFile        string            `json:"log_file,omitempty"`
	State          string            `json:"state"`
	Refcount       int               `json:"refcount"`
	WatcherAlive   bool              `json:"watcher_alive"`
}

// GetInfo tolerant-reads both records for name and returns the combined
// view. Errors: NotFound (no server record), Corrupt (a record exists but
// cannot be parsed).
func GetInfo(lockDir, name string) (*Info, error) {
	paths, err := lockdir.DerivePaths(lockDir, name)
	if err != nil {
		return nil, classifyName(name, err)
	}

	srv, err := statefile.ReadServer(paths.ServerJSON)
	if err != nil {
		return nil, classifyRead(name, err)
	}

	info := &Info{
		Name:           srv.Name,
		PID:            srv.PID,
		Command:        srv.Command,
		Args:           srv.Args,
		StartedAt:      srv.StartedAt,
		GracePeriod:    srv.GracePeriod,
		WatcherPID:     srv.WatcherPID,
		ShutdownSignal: srv.ShutdownSignal,
		Env:            srv.Env,
		WorkingDir:     srv.WorkingDir,
		LogFile:        srv.LogFile,
	}

	serverAlive := probe.IsAliveSince(srv.PID, srv.StartedAt)
	info.WatcherAlive = srv.WatcherPID != 0 && probe.IsAlive(srv.WatcherPID)

	clients, err := statefile.ReadClients(paths.ClientsJSON)
	hasClients := err == nil
	if err != nil && !errors.Is(err, statefile.ErrNotFound) {
		return nil, classifyRead(name, err)
	}
	if hasClients {
		info.Refcount = clients.Refcount
	}

	info.State = statemachine.Derive(true, hasClients, serverAlive).String()
	return info, nil
}
