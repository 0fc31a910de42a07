// Package watcher implements the long-lived supervisor main loop (§4.8):
// the process that prunes dead clients and removes a name's records once
// its server has exited or its grace period has expired, driving
// ACTIVE/GRACE/STOPPED transitions by polling server and client liveness.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"syscall"
	"time"

	"github.com/georgeharker/sharedserver/internal/historystore"
	"github.com/georgeharker/sharedserver/internal/lockdir"
	"github.com/georgeharker/sharedserver/internal/metrics"
	"github.com/georgeharker/sharedserver/internal/probe"
	"github.com/georgeharker/sharedserver/internal/statefile"
)

// DefaultPollInterval is the base tick cadence (§4.8).
const DefaultPollInterval = 5 * time.Second

// DefaultKillWait is how long the watcher waits after the shutdown signal
// before escalating to a hard kill, both on grace expiry and on final
// shutdown confirmation.
const DefaultKillWait = 5 * time.Second

// Options configures one watcher run.
type Options struct {
	LockDir      string
	Name         string
	PollInterval time.Duration
	KillWait     time.Duration
	Logger       *slog.Logger
	HistoryDSN   string
}

// Watcher owns one name's runtime state machine.
type Watcher struct {
	opts          Options
	paths         lockdir.Paths
	graceDeadline time.Time
	inGrace       bool
}

// New constructs a Watcher for name, applying defaults for unset options.
func New(opts Options) (*Watcher, error) {
	paths, err := lockdir.DerivePaths(opts.LockDir, opts.Name)
	if err != nil {
		return nil, err
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.KillWait <= 0 {
		opts.KillWait = DefaultKillWait
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Watcher{opts: opts, paths: paths}, nil
}

// Run executes the poll loop until the server is confirmed gone or ctx is
// cancelled. It never holds a record lock across a sleep.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		done, err := w.tick()
		if err != nil {
			w.opts.Logger.Warn("watcher tick error", "name", w.opts.Name, "err", err)
		}
		if done {
			return nil
		}

		sleepFor := w.opts.PollInterval
		if w.inGrace {
			if until := time.Until(w.graceDeadline); until > 0 && until < sleepFor {
				sleepFor = until
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
	}
}

// tick runs one iteration of §4.8's three steps. It returns done=true once
// the server has definitively exited and cleanup is complete.
func (w *Watcher) tick() (done bool, err error) {
	start := time.Now()
	defer func() { metrics.ObservePollDuration(w.opts.Name, time.Since(start).Seconds()) }()

	srv, err := statefile.ReadServer(w.paths.ServerJSON)
	if err != nil {
		if errors.Is(err, statefile.ErrNotFound) {
			return true, nil
		}
		return false, err
	}

	// Step 1: server liveness.
	if !probe.IsAliveSince(srv.PID, srv.StartedAt) {
		w.shutdownCleanup(srv, "server-exited")
		return true, nil
	}

	// Step 2: clients record presence.
	clients, err := statefile.ReadClients(w.paths.ClientsJSON)
	switch {
	case err == nil:
		return false, w.handleActive(srv, clients)
	case errors.Is(err, statefile.ErrNotFound):
		return w.handleGrace(srv), nil
	default:
		return false, err
	}
}

// handleActive prunes dead clients from an existing clients record. If
// pruning drives refcount to 0, the record is deleted and grace begins.
func (w *Watcher) handleActive(srv *statefile.Server, clients *statefile.Clients) error {
	w.inGrace = false

	pruned := make(map[string]statefile.ClientEntry, len(clients.Clients))
	for pidStr, entry := range clients.Clients {
		pid, convErr := strconv.Atoi(pidStr)
		if convErr != nil {
			continue // drop unparseable keys, equivalent to a dead client
		}
		if probe.IsAlive(pid) {
			pruned[pidStr] = entry
		}
	}

	if len(pruned) == len(clients.Clients) {
		metrics.SetRefcount(w.opts.Name, len(pruned))
		metrics.SetCurrentState(w.opts.Name, "Active", true)
		metrics.SetCurrentState(w.opts.Name, "Grace", false)
		return nil
	}

	if len(pruned) == 0 {
		if err := statefile.Remove(w.paths.ClientsJSON); err != nil {
			return err
		}
		w.enterGrace(srv)
		return nil
	}

	clients.Clients = pruned
	clients.Refcount = len(pruned)
	metrics.SetRefcount(w.opts.Name, len(pruned))
	return statefile.WriteClients(w.paths.ClientsJSON, clients)
}

// handleGrace manages the GRACE countdown once the clients record is
// absent: starts the deadline if unset, and escalates shutdown once it has
// passed. It reports true once the server has been shut down and both
// records removed.
func (w *Watcher) handleGrace(srv *statefile.Server) bool {
	if !w.inGrace {
		w.enterGrace(srv)
	}

	if time.Now().Before(w.graceDeadline) {
		return false
	}

	w.opts.Logger.Info("grace period expired, shutting down", "name", w.opts.Name, "pid", srv.PID)
	w.shutdownCleanup(srv, "grace-expired")
	return true
}

func (w *Watcher) enterGrace(srv *statefile.Server) {
	w.inGrace = true
	d := parseGracePeriod(srv.GracePeriod)
	w.graceDeadline = time.Now().Add(d)
	metrics.IncGraceEntry(w.opts.Name)
	metrics.SetCurrentState(w.opts.Name, "Active", false)
	metrics.SetCurrentState(w.opts.Name, "Grace", true)
	metrics.RecordStateTransition(w.opts.Name, "Active", "Grace")
	historystore.RecordBestEffort(w.opts.HistoryDSN, historystore.Event{
		Name: w.opts.Name, Time: time.Now(), Kind: "grace",
		Detail: fmt.Sprintf("grace_period=%s", srv.GracePeriod),
	})
}

// shutdownCleanup signals the server (escalating to a hard kill after
// KillWait if it's still alive), then removes both records.
func (w *Watcher) shutdownCleanup(srv *statefile.Server, reason string) {
	if probe.IsAliveSince(srv.PID, srv.StartedAt) {
		sig := signalByName(srv.ShutdownSignal)
		_ = syscall.Kill(srv.PID, sig)

		deadline := time.Now().Add(w.opts.KillWait)
		for time.Now().Before(deadline) && probe.IsAliveSince(srv.PID, srv.StartedAt) {
			time.Sleep(100 * time.Millisecond)
		}
		if probe.IsAliveSince(srv.PID, srv.StartedAt) {
			_ = syscall.Kill(srv.PID, syscall.SIGKILL)
		}
	}

	_ = statefile.Remove(w.paths.ClientsJSON)
	_ = statefile.Remove(w.paths.ServerJSON)
	metrics.IncStop(w.opts.Name, reason)
	metrics.SetCurrentState(w.opts.Name, "Active", false)
	metrics.SetCurrentState(w.opts.Name, "Grace", false)
	historystore.RecordBestEffort(w.opts.HistoryDSN, historystore.Event{
		Name: w.opts.Name, Time: time.Now(), Kind: "shutdown",
		Detail: fmt.Sprintf("pid=%d reason=%s", srv.PID, reason),
	})
	w.opts.Logger.Info("server stopped, records removed", "name", w.opts.Name, "reason", reason)
}

func signalByName(name string) syscall.Signal {
	switch name {
	case "KILL":
		return syscall.SIGKILL
	case "INT":
		return syscall.SIGINT
	case "HUP":
		return syscall.SIGHUP
	case "QUIT":
		return syscall.SIGQUIT
	case "", "TERM":
		return syscall.SIGTERM
	default:
		return syscall.SIGTERM
	}
}

// parseGracePeriod parses the spec's "<number><unit>" duration grammar
// (s/m/h), which time.ParseDuration already accepts directly. An empty or
// unparseable grace period means "no grace": shutdown immediately.
func parseGracePeriod(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
