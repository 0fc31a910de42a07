package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/georgeharker/sharedserver/internal/admin"
	"github.com/georgeharker/sharedserver/internal/config"
	"github.com/georgeharker/sharedserver/internal/historystore"
	"github.com/georgeharker/sharedserver/internal/lockdir"
	"github.com/georgeharker/sharedserver/internal/ops"
)

// command bundles the resolved lock directory, config, and logger every
// subcommand needs, mirroring the teacher's command struct that wraps a
// provisr.Manager — here there is no long-lived manager, just resolved
// settings, since every client invocation is one-shot.
type command struct {
	lockDir string
	cfg     *config.Config
	log     *slog.Logger
	flags   globalFlags
}

func newCommand(g globalFlags) (*command, error) {
	cfg, err := config.Load(config.StringOr(g.ConfigPath, "", "SHAREDSERVER_CONFIG", ""))
	if err != nil {
		return nil, err
	}
	lockDir := config.StringOr(g.LockDir, cfg.LockDir, "SHAREDSERVER_LOCKDIR", "")
	if lockDir == "" {
		lockDir, err = lockdir.Resolve()
		if err != nil {
			return nil, err
		}
	}
	return &command{lockDir: lockDir, cfg: cfg, log: newLogger(), flags: g}, nil
}

func newLogger() *slog.Logger {
	if os.Getenv("SHAREDSERVER_DEBUG") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// debugLogPath returns the per-name append-only invocation log path (§4.7),
// rooted under the lock directory alongside the record files themselves.
func (c *command) debugLogPath(name string) string {
	return c.lockDir + "/" + name + ".debug.log"
}

// historyDSN returns the configured SQLite history store DSN, or "" when
// the history store is disabled, letting every write point pass it through
// unconditionally to historystore.RecordBestEffort.
func (c *command) historyDSN() string {
	if c.cfg.History.Enabled {
		return c.cfg.History.DSN
	}
	return ""
}

func (c *command) Check(f CheckFlags) (int, error) {
	state, err := ops.Check(c.lockDir, f.Name)
	if err != nil {
		return ops.ExitCodeFor(err), err
	}
	fmt.Println(state.String())
	return state.ExitCode(), nil
}

func (c *command) Info(f InfoFlags) error {
	info, err := ops.GetInfo(c.lockDir, f.Name)
	if err != nil {
		return err
	}
	if f.JSON {
		printJSON(info)
		return nil
	}
	fmt.Printf("%s\tstate=%s\tpid=%d\trefcount=%d\twatcher_alive=%v\n",
		info.Name, info.State, info.PID, info.Refcount, info.WatcherAlive)
	return nil
}

func (c *command) List(f ListFlags) error {
	var entries []ops.ListEntry
	var err error
	if f.Match != "" {
		entries, err = ops.ListMatch(c.lockDir, f.Match)
	} else {
		entries, err = ops.List(c.lockDir)
	}
	if err != nil {
		return err
	}
	printJSON(entries)
	return nil
}

func (c *command) Use(f UseFlags) error {
	id := uuid.NewString()
	pid := f.PID
	if pid == 0 {
		pid = ops.DefaultPID()
	}

	res, err := ops.Use(ops.UseOptions{
		LockDir:        c.lockDir,
		Name:           f.Name,
		Command:        f.Command,
		Args:           f.Args,
		GracePeriod:    config.StringOr(f.GracePeriod, c.cfg.GracePeriod, "", ""),
		ShutdownSignal: f.ShutdownSignal,
		LogFile:        f.LogFile,
		PID:            pid,
		Metadata:       f.Metadata,
		Env:            parseEnvKVs(f.Env),
		StartWindow:    c.resolveStartWindow(),
		DebugLogPath:   c.debugLogPath(f.Name),
		HistoryDSN:     c.historyDSN(),
	})
	if err != nil {
		c.log.Warn("use failed", "invocation", id, "name", f.Name, "err", err)
		return err
	}

	c.log.Debug("use", "invocation", id, "name", f.Name, "started", res.Started, "server_pid", res.ServerPID)
	if res.Started {
		fmt.Println("Started")
	} else {
		fmt.Println("Attached")
	}
	return nil
}

func (c *command) Unuse(f UnuseFlags) error {
	pid := f.PID
	if pid == 0 {
		pid = ops.DefaultPID()
	}
	return ops.Unuse(c.lockDir, f.Name, pid)
}

func (c *command) resolveStartWindow() time.Duration {
	if c.flags.StartWindow > 0 {
		return c.flags.StartWindow
	}
	if c.cfg.StartWindow == "" {
		return 0 // launch.DefaultStartWindow applies
	}
	d, err := time.ParseDuration(c.cfg.StartWindow)
	if err != nil {
		return 0
	}
	return d
}

func (c *command) AdminStart(f AdminStartFlags) error {
	res, err := admin.Start(admin.StartOptions{
		LockDir:        c.lockDir,
		Name:           f.Name,
		Command:        f.Command,
		Args:           f.Args,
		GracePeriod:    config.StringOr(f.GracePeriod, c.cfg.GracePeriod, "", ""),
		ShutdownSignal: f.ShutdownSignal,
		LogFile:        f.LogFile,
		Env:            parseEnvKVs(f.Env),
		StartWindow:    c.resolveStartWindow(),
		DebugLogPath:   c.debugLogPath(f.Name),
		HistoryDSN:     c.historyDSN(),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Started server_pid=%d watcher_pid=%d\n", res.ServerPID, res.WatcherPID)
	return nil
}

func (c *command) AdminStop(f AdminStopFlags) error {
	wait := f.Wait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return admin.Stop(c.lockDir, f.Name, f.Force, wait)
}

func (c *command) AdminKill(f AdminKillFlags) error {
	return admin.Kill(c.lockDir, f.Name)
}

func (c *command) AdminIncref(f AdminRefFlags) error {
	return admin.Incref(c.lockDir, f.Name, f.PID, f.Metadata)
}

func (c *command) AdminDecref(f AdminRefFlags) error {
	return admin.Decref(c.lockDir, f.Name, f.PID)
}

func (c *command) AdminDoctor(f AdminDoctorFlags) error {
	names := []string{f.Name}
	if f.Name == "" {
		all, err := lockdir.ListServerRecords(c.lockDir)
		if err != nil {
			return err
		}
		sort.Strings(all)
		names = all
	}

	for _, name := range names {
		report, err := admin.Doctor(c.lockDir, name, f.Respawn)
		if err != nil {
			fmt.Printf("%s: error: %v\n", name, err)
			continue
		}
		if len(report.Actions) == 0 {
			fmt.Printf("%s: ok\n", name)
			continue
		}
		for _, action := range report.Actions {
			fmt.Printf("%s: %s\n", name, action)
		}
	}
	return nil
}

func (c *command) AdminDebug(f AdminDebugFlags) error {
	path := c.debugLogPath(f.Name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		data = nil
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	printRecentLines(lines, f.Limit)

	if c.cfg.History.Enabled {
		store, err := historystore.Open(c.cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("admin debug: open history store: %w", err)
		}
		defer func() { _ = store.Close() }()

		limit := f.Limit
		if limit <= 0 {
			limit = 20
		}
		events, err := store.Recent(context.Background(), f.Name, limit)
		if err != nil {
			return fmt.Errorf("admin debug: read history store: %w", err)
		}
		fmt.Println("--- history store ---")
		printJSON(events)
	}
	return nil
}

// exitCodeForErr maps any error returned by a command's RunE to the CLI's
// documented exit code (§6/§7), falling back to ops's generic mapping.
func exitCodeForErr(err error) int {
	return ops.ExitCodeFor(err)
}

func printRecentLines(lines []string, limit int) {
	if limit <= 0 {
		limit = 20
	}
	if len(lines) == 1 && lines[0] == "" {
		fmt.Println("(no debug log entries)")
		return
	}
	start := 0
	if len(lines) > limit {
		start = len(lines) - limit
	}
	for _, l := range lines[start:] {
		fmt.Println(l)
	}
}
