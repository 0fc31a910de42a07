// Package admin implements the operator-facing commands (start, stop, kill,
// doctor, debug) layered on top of internal/ops and internal/launch. Unlike
// ops, these act directly on a name's processes rather than only its
// records, and are allowed to repair records that have drifted out of the
// invariants described in §3.
package admin

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/georgeharker/sharedserver/internal/launch"
	"github.com/georgeharker/sharedserver/internal/lockdir"
	"github.com/georgeharker/sharedserver/internal/ops"
	"github.com/georgeharker/sharedserver/internal/probe"
	"github.com/georgeharker/sharedserver/internal/statefile"
)

// StartOptions configures an unconditional launch with no initial client,
// the admin equivalent of ops.Use with Command set but PID omitted (§4.6):
// refcount starts at 0 and the watcher enters GRACE on its very first tick
// unless something increfs in the meantime.
type StartOptions struct {
	LockDir        string
	Name           string
	Command        string
	Args           []string
	WorkingDir     string
	Env            map[string]string
	GracePeriod    string
	ShutdownSignal string
	LogFile        string
	StartWindow    time.Duration
	DebugLogPath   string
	HistoryDSN     string
}

// StartResult reports the launched processes.
type StartResult struct {
	ServerPID  int
	WatcherPID int
}

// Start launches name unconditionally; it is an error if a live server
// record already exists (use ops.Use to attach to one instead).
func Start(opts StartOptions) (*StartResult, error) {
	paths, err := lockdir.DerivePaths(opts.LockDir, opts.Name)
	if err != nil {
		return nil, err
	}

	release, err := statefile.AcquireBoth(paths.ServerLock, paths.ClientsLock)
	if err != nil {
		return nil, err
	}
	defer release()

	if srv, readErr := statefile.ReadServer(paths.ServerJSON); readErr == nil {
		if probe.IsAliveSince(srv.PID, srv.StartedAt) {
			return nil, fmt.Errorf("admin: start %s: server already running (pid %d)", opts.Name, srv.PID)
		}
	}

	serverPID, watcherPID, err := launch.Launch(launch.Options{
		LockDir:        opts.LockDir,
		Name:           opts.Name,
		Command:        opts.Command,
		Args:           opts.Args,
		WorkingDir:     opts.WorkingDir,
		Env:            opts.Env,
		GracePeriod:    opts.GracePeriod,
		ShutdownSignal: opts.ShutdownSignal,
		LogFile:        opts.LogFile,
		InitialPID:     0,
		StartWindow:    opts.StartWindow,
		DebugLogPath:   opts.DebugLogPath,
		HistoryDSN:     opts.HistoryDSN,
	})
	if err != nil {
		return nil, err
	}
	return &StartResult{ServerPID: serverPID, WatcherPID: watcherPID}, nil
}

// Stop signals the server to shut down gracefully (the documented shutdown
// signal, or SIGKILL if force is true), then waits up to wait for the
// process to exit; it returns nil whether or not the process has exited by
// then. It does not touch either record directly —
// the watcher observes the exit and performs cleanup on its next tick.
func Stop(lockDir, name string, force bool, wait time.Duration) error {
	paths, err := lockdir.DerivePaths(lockDir, name)
	if err != nil {
		return err
	}
	srv, err := statefile.ReadServer(paths.ServerJSON)
	if err != nil {
		return err
	}
	if !probe.IsAliveSince(srv.PID, srv.StartedAt) {
		return nil
	}

	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	} else if s, ok := signalByName(srv.ShutdownSignal); ok {
		sig = s
	}
	if err := syscall.Kill(srv.PID, sig); err != nil {
		return fmt.Errorf("admin: stop %s: signal pid %d: %w", name, srv.PID, err)
	}

	if wait <= 0 {
		return nil
	}
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !probe.IsAliveSince(srv.PID, srv.StartedAt) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

// Kill hard-kills the server (and watcher, if still alive) and unlinks both
// records directly, bypassing the normal watcher-driven cleanup. Intended
// for emergencies where the watcher itself is wedged or gone.
func Kill(lockDir, name string) error {
	paths, err := lockdir.DerivePaths(lockDir, name)
	if err != nil {
		return err
	}

	release, err := statefile.AcquireBoth(paths.ServerLock, paths.ClientsLock)
	if err != nil {
		return err
	}
	defer release()

	srv, err := statefile.ReadServer(paths.ServerJSON)
	if err == nil {
		if probe.IsAlive(srv.PID) {
			_ = syscall.Kill(srv.PID, syscall.SIGKILL)
		}
		if srv.WatcherPID != 0 && probe.IsAlive(srv.WatcherPID) {
			_ = syscall.Kill(srv.WatcherPID, syscall.SIGKILL)
		}
	} else if !errors.Is(err, statefile.ErrNotFound) {
		return err
	}

	_ = statefile.Remove(paths.ClientsJSON)
	_ = statefile.Remove(paths.ServerJSON)
	return nil
}

// DoctorReport summarizes the repairs Doctor made or would make.
type DoctorReport struct {
	Name             string
	Actions          []string
	RespawnedWatcher bool
}

// Doctor validates a name's on-disk records against the stated invariants
// (§3) and repairs drift:
//   - server record present but process dead: remove both records (as the
//     watcher would on its next tick, performed here for an absent/wedged
//     watcher).
//   - clients record present with a dead server: remove the clients record
//     (a clients record is only ever meaningful alongside a live server).
//   - clients record lists dead pids: prune them and republish, recomputing
//     refcount from the surviving subset.
//   - server alive but recorded watcher pid is dead: if respawn is true,
//     start a fresh watcher bound to the existing server and update the
//     server record's watcher_pid (the Open Question decision to recover
//     orphaned-but-live servers rather than leave them unsupervised).
func Doctor(lockDir, name string, respawn bool) (*DoctorReport, error) {
	paths, err := lockdir.DerivePaths(lockDir, name)
	if err != nil {
		return nil, err
	}

	release, err := statefile.AcquireBoth(paths.ServerLock, paths.ClientsLock)
	if err != nil {
		return nil, err
	}
	defer release()

	report := &DoctorReport{Name: name}

	srv, err := statefile.ReadServer(paths.ServerJSON)
	if err != nil {
		if errors.Is(err, statefile.ErrNotFound) {
			if removeIfPresent(paths.ClientsJSON) {
				report.Actions = append(report.Actions, "removed orphaned clients record with no server record")
			}
			return report, nil
		}
		if errors.Is(err, statefile.ErrCorrupt) {
			_ = statefile.Remove(paths.ServerJSON)
			_ = statefile.Remove(paths.ClientsJSON)
			report.Actions = append(report.Actions, "removed corrupt server record and any clients record")
			return report, nil
		}
		return nil, err
	}

	serverAlive := probe.IsAliveSince(srv.PID, srv.StartedAt)
	if !serverAlive {
		_ = statefile.Remove(paths.ClientsJSON)
		_ = statefile.Remove(paths.ServerJSON)
		report.Actions = append(report.Actions, fmt.Sprintf("server pid %d not alive, removed both records", srv.PID))
		return report, nil
	}

	clients, err := statefile.ReadClients(paths.ClientsJSON)
	switch {
	case err == nil:
		pruned := map[string]statefile.ClientEntry{}
		for pidStr, entry := range clients.Clients {
			pid, convErr := strconv.Atoi(pidStr)
			if convErr == nil && probe.IsAlive(pid) {
				pruned[pidStr] = entry
			}
		}
		if len(pruned) != len(clients.Clients) {
			if len(pruned) == 0 {
				_ = statefile.Remove(paths.ClientsJSON)
				report.Actions = append(report.Actions, "removed clients record: all registered pids were dead")
			} else {
				clients.Clients = pruned
				clients.Refcount = len(pruned)
				if writeErr := statefile.WriteClients(paths.ClientsJSON, clients); writeErr != nil {
					return nil, writeErr
				}
				report.Actions = append(report.Actions, fmt.Sprintf("pruned dead client pids, refcount now %d", len(pruned)))
			}
		}
	case errors.Is(err, statefile.ErrCorrupt):
		_ = statefile.Remove(paths.ClientsJSON)
		report.Actions = append(report.Actions, "removed corrupt clients record")
	case errors.Is(err, statefile.ErrNotFound):
		// Nothing to repair; a missing clients record with a live server is GRACE.
	default:
		return nil, err
	}

	if srv.WatcherPID == 0 || !probe.IsAlive(srv.WatcherPID) {
		report.Actions = append(report.Actions, fmt.Sprintf("watcher pid %d not alive", srv.WatcherPID))
		if respawn {
			watcherPID, spawnErr := launch.RespawnWatcher(lockDir, name, "")
			if spawnErr != nil {
				return nil, fmt.Errorf("admin: doctor %s: respawn watcher: %w", name, spawnErr)
			}
			srv.WatcherPID = watcherPID
			if writeErr := statefile.WriteServer(paths.ServerJSON, srv); writeErr != nil {
				return nil, writeErr
			}
			report.RespawnedWatcher = true
			report.Actions = append(report.Actions, fmt.Sprintf("respawned watcher as pid %d", watcherPID))
		}
	}

	return report, nil
}

func removeIfPresent(path string) bool {
	if _, err := os.Stat(path); err == nil {
		_ = statefile.Remove(path)
		return true
	}
	return false
}

func signalByName(name string) (syscall.Signal, bool) {
	switch name {
	case "KILL":
		return syscall.SIGKILL, true
	case "INT":
		return syscall.SIGINT, true
	case "HUP":
		return syscall.SIGHUP, true
	case "QUIT":
		return syscall.SIGQUIT, true
	case "TERM":
		return syscall.SIGTERM, true
	default:
		return syscall.SIGTERM, false
	}
}

// Incref and Decref expose ops.Incref/Decref as explicit low-level
// operations (§4.6): the operator supplies an arbitrary pid to register or
// remove, falling back to the current process's pid only when none is given.
func Incref(lockDir, name string, pid int, metadata string) error {
	if pid == 0 {
		pid = os.Getpid()
	}
	return ops.Incref(lockDir, name, pid, metadata)
}

func Decref(lockDir, name string, pid int) error {
	if pid == 0 {
		pid = os.Getpid()
	}
	return ops.Decref(lockDir, name, pid)
}
