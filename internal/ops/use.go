package ops

import (
	"errors"
	"os"
	"time"

	"github.com/georgeharker/sharedserver/internal/launch"
	"github.com/georgeharker/sharedserver/internal/lockdir"
	"github.com/georgeharker/sharedserver/internal/probe"
	"github.com/georgeharker/sharedserver/internal/statefile"
)

// UseOptions configures a Use invocation.
type UseOptions struct {
	LockDir        string
	Name           string
	Command        string // empty means "attach only, do not launch"
	Args           []string
	WorkingDir     string
	Env            map[string]string
	GracePeriod    string
	ShutdownSignal string
	LogFile        string
	PID            int // defaults to parent pid at the CLI layer, see §4.5
	Metadata       string
	StartWindow    time.Duration // 0 means launch.DefaultStartWindow
	DebugLogPath   string
	HistoryDSN     string
}

// UseResult reports which path Use took.
type UseResult struct {
	Started    bool // true if a new server was launched
	ServerPID  int
	WatcherPID int
}

// Use is the high-level start-or-attach operation (§4.5). If the server
// record exists and the server is alive, it increfs PID and reports
// "Attached". Otherwise, given a command, it launches a new server
// (STOPPED->ACTIVE) with PID as the sole initial client. With no command
// and no existing server, it reports StartRequired.
func Use(opts UseOptions) (*UseResult, error) {
	paths, err := lockdir.DerivePaths(opts.LockDir, opts.Name)
	if err != nil {
		return nil, classifyName(opts.Name, err)
	}

	release, err := statefile.AcquireBoth(paths.ServerLock, paths.ClientsLock)
	if err != nil {
		return nil, newErr(KindLockTimeout, opts.Name, err)
	}
	defer release()

	srv, err := statefile.ReadServer(paths.ServerJSON)
	switch {
	case err == nil:
		if probe.IsAliveSince(srv.PID, srv.StartedAt) {
			if attachErr := attachLocked(paths, opts.PID, opts.Metadata); attachErr != nil {
				return nil, attachErr
			}
			return &UseResult{Started: false, ServerPID: srv.PID, WatcherPID: srv.WatcherPID}, nil
		}
		// Server record stale (process dead); fall through to relaunch.
	case errors.Is(err, statefile.ErrNotFound):
		// No server; fall through to launch path below.
	default:
		return nil, classifyRead(opts.Name, err)
	}

	if opts.Command == "" {
		return nil, newErr(KindStartRequired, opts.Name, nil)
	}

	serverPID, watcherPID, launchErr := launch.Launch(launch.Options{
		LockDir:        opts.LockDir,
		Name:           opts.Name,
		Command:        opts.Command,
		Args:           opts.Args,
		WorkingDir:     opts.WorkingDir,
		Env:            opts.Env,
		GracePeriod:    opts.GracePeriod,
		ShutdownSignal: opts.ShutdownSignal,
		LogFile:        opts.LogFile,
		InitialPID:     opts.PID,
		InitialMeta:    opts.Metadata,
		StartWindow:    opts.StartWindow,
		DebugLogPath:   opts.DebugLogPath,
		HistoryDSN:     opts.HistoryDSN,
	})
	if launchErr != nil {
		var notExec *launch.ErrNotExecutable
		if errors.As(launchErr, &notExec) {
			return nil, newErr(KindNotExecutable, opts.Name, launchErr)
		}
		var startFailed *launch.ErrStartFailed
		if errors.As(launchErr, &startFailed) {
			return nil, newErr(KindStartFailed, opts.Name, launchErr)
		}
		return nil, newErr(KindIoError, opts.Name, launchErr)
	}

	return &UseResult{Started: true, ServerPID: serverPID, WatcherPID: watcherPID}, nil
}

// attachLocked performs the incref half of Use, assuming both locks are
// already held by the caller.
func attachLocked(paths lockdir.Paths, pid int, metadata string) error {
	return increfLocked(paths, pid, metadata)
}

// DefaultPID returns the parent process id, the documented default for
// use/unuse's --pid (§4.5): a shell wrapper naturally registers the shell,
// not itself.
func DefaultPID() int {
	return os.Getppid()
}
