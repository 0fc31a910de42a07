package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/georgeharker/sharedserver/internal/logging"
	"github.com/georgeharker/sharedserver/internal/metrics"
	"github.com/georgeharker/sharedserver/internal/watcher"
)

// runWatch is the body of the hidden __watch subcommand: it runs until the
// name's server is confirmed gone, then exits. It is launched detached by
// internal/launch.forkWatcher and never attached to a terminal.
func runWatch(f WatchFlags, g globalFlags) error {
	if f.LockDir == "" || f.Name == "" {
		return fmt.Errorf("__watch: --lock-dir and --name are required")
	}

	cmd, err := newCommand(g)
	if err != nil {
		return err
	}

	fileCfg := logging.FileConfig{
		Dir:        cmd.cfg.Log.Dir,
		MaxSizeMB:  cmd.cfg.Log.MaxSizeMB,
		MaxBackups: cmd.cfg.Log.MaxBackups,
		MaxAgeDays: cmd.cfg.Log.MaxAgeDays,
		Compress:   cmd.cfg.Log.Compress,
	}
	logWriter := fileCfg.Writer(f.Name + ".watcher")
	var log *slog.Logger
	if logWriter != nil {
		defer func() { _ = logWriter.Close() }()
		log = logging.New(logWriter, slog.LevelInfo)
	} else {
		log = cmd.log
	}

	if cmd.cfg.Metrics.Enabled && cmd.cfg.Metrics.Listen != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("metrics registration failed", "err", err)
		} else {
			go serveMetrics(cmd.cfg.Metrics.Listen, log)
		}
	}

	w, err := watcher.New(watcher.Options{
		LockDir:      f.LockDir,
		Name:         f.Name,
		PollInterval: g.PollInterval,
		KillWait:     g.KillWait,
		Logger:       log,
		HistoryDSN:   cmd.historyDSN(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	return w.Run(ctx)
}

func serveMetrics(listen string, log *slog.Logger) {
	srv := &http.Server{Addr: listen, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics server exited", "err", err)
	}
}
