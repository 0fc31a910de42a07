package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/georgeharker/sharedserver/internal/launch"
)

// newRootCmd builds the full command tree, one *cobra.Command per verb,
// each RunE delegating to a method on *command so the logic stays testable
// without invoking cobra at all — the same flags.go/commands.go split the
// teacher uses.
func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "sharedserver",
		Short:         "Reference-counted shared server lifecycle manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.LockDir, "lock-dir", "", "override the resolved lock directory")
	root.PersistentFlags().StringVar(&g.ConfigPath, "config", "", "path to an optional TOML config file")
	root.PersistentFlags().DurationVar(&g.StartWindow, "start-window", 0, "bounded startup survival window (default 1.5s)")
	root.PersistentFlags().DurationVar(&g.PollInterval, "poll-interval", 0, "watcher base poll interval (default 5s)")
	root.PersistentFlags().DurationVar(&g.KillWait, "kill-wait", 0, "watcher's wait before escalating to a hard kill (default 5s)")

	root.AddCommand(
		newCheckCmd(&g),
		newInfoCmd(&g),
		newListCmd(&g),
		newUseCmd(&g),
		newUnuseCmd(&g),
		newAdminCmd(&g),
		newWatchCmd(&g),
	)
	root.CompletionOptions.DisableDefaultCmd = false
	return root
}

func newCheckCmd(g *globalFlags) *cobra.Command {
	var f CheckFlags
	cmd := &cobra.Command{
		Use:   "check <name>",
		Short: "Read-only state query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			c, err := newCommand(*g)
			if err != nil {
				return err
			}
			code, err := c.Check(f)
			finalExitCode = code
			return err
		},
	}
	return cmd
}

func newInfoCmd(g *globalFlags) *cobra.Command {
	var f InfoFlags
	cmd := &cobra.Command{
		Use:   "info <name>",
		Short: "Print combined server/clients record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			c, err := newCommand(*g)
			if err != nil {
				return err
			}
			return c.Info(f)
		},
	}
	cmd.Flags().BoolVar(&f.JSON, "json", false, "emit JSON")
	return cmd
}

func newListCmd(g *globalFlags) *cobra.Command {
	var f ListFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all servers and their derived info",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCommand(*g)
			if err != nil {
				return err
			}
			return c.List(f)
		},
	}
	cmd.Flags().StringVar(&f.Match, "match", "", "glob pattern to filter names (e.g. web-*)")
	return cmd
}

func newUseCmd(g *globalFlags) *cobra.Command {
	var f UseFlags
	cmd := &cobra.Command{
		Use:   "use <name> [-- cmd args...]",
		Short: "Start-or-attach: launch if needed, else register as a client",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			rest := args[1:]
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				rest = args[dash:]
			}
			f.Command, f.Args = splitCommand(rest)
			c, err := newCommand(*g)
			if err != nil {
				return err
			}
			return c.Use(f)
		},
	}
	cmd.Flags().StringVar(&f.GracePeriod, "grace-period", "", "grace period before shutdown once unused (e.g. 30m)")
	cmd.Flags().IntVar(&f.PID, "pid", 0, "client pid to register (default: parent pid)")
	cmd.Flags().StringVar(&f.Metadata, "metadata", "", "free-form client metadata")
	cmd.Flags().StringArrayVar(&f.Env, "env", nil, "K=V environment override, repeatable")
	cmd.Flags().StringVar(&f.LogFile, "log-file", "", "redirect server stdout/stderr here")
	cmd.Flags().StringVar(&f.ShutdownSignal, "signal", "", "shutdown signal name (default TERM)")
	return cmd
}

func newUnuseCmd(g *globalFlags) *cobra.Command {
	var f UnuseFlags
	cmd := &cobra.Command{
		Use:   "unuse <name>",
		Short: "Detach a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			c, err := newCommand(*g)
			if err != nil {
				return err
			}
			return c.Unuse(f)
		},
	}
	cmd.Flags().IntVar(&f.PID, "pid", 0, "client pid to remove (default: parent pid)")
	return cmd
}

func newAdminCmd(g *globalFlags) *cobra.Command {
	admin := &cobra.Command{Use: "admin", Short: "Operator-level commands"}
	admin.AddCommand(
		newAdminStartCmd(g),
		newAdminStopCmd(g),
		newAdminKillCmd(g),
		newAdminIncrefCmd(g),
		newAdminDecrefCmd(g),
		newAdminDoctorCmd(g),
		newAdminDebugCmd(g),
	)
	return admin
}

func newAdminStartCmd(g *globalFlags) *cobra.Command {
	var f AdminStartFlags
	cmd := &cobra.Command{
		Use:   "start <name> -- cmd args...",
		Short: "Launch a server with no initial client (refcount starts at 0)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			rest := args[1:]
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				rest = args[dash:]
			}
			f.Command, f.Args = splitCommand(rest)
			c, err := newCommand(*g)
			if err != nil {
				return err
			}
			return c.AdminStart(f)
		},
	}
	cmd.Flags().StringVar(&f.GracePeriod, "grace-period", "", "grace period before shutdown once unused")
	cmd.Flags().StringArrayVar(&f.Env, "env", nil, "K=V environment override, repeatable")
	cmd.Flags().StringVar(&f.LogFile, "log-file", "", "redirect server stdout/stderr here")
	cmd.Flags().StringVar(&f.ShutdownSignal, "signal", "", "shutdown signal name (default TERM)")
	return cmd
}

func newAdminStopCmd(g *globalFlags) *cobra.Command {
	var f AdminStopFlags
	cmd := &cobra.Command{
		Use:   "stop <name>",
		Short: "Signal the server to shut down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			c, err := newCommand(*g)
			if err != nil {
				return err
			}
			return c.AdminStop(f)
		},
	}
	cmd.Flags().BoolVar(&f.Force, "force", false, "escalate to a hard-kill signal")
	cmd.Flags().DurationVar(&f.Wait, "wait", 5*time.Second, "how long to wait for a graceful exit")
	return cmd
}

func newAdminKillCmd(g *globalFlags) *cobra.Command {
	var f AdminKillFlags
	cmd := &cobra.Command{
		Use:   "kill <name>",
		Short: "Hard-kill the server and watcher, unlink both records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			c, err := newCommand(*g)
			if err != nil {
				return err
			}
			return c.AdminKill(f)
		},
	}
	return cmd
}

func newAdminIncrefCmd(g *globalFlags) *cobra.Command {
	var f AdminRefFlags
	cmd := &cobra.Command{
		Use:   "incref <name>",
		Short: "Low-level incref, --pid defaults to the current pid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			c, err := newCommand(*g)
			if err != nil {
				return err
			}
			return c.AdminIncref(f)
		},
	}
	cmd.Flags().IntVar(&f.PID, "pid", 0, "client pid to register (default: current pid)")
	cmd.Flags().StringVar(&f.Metadata, "metadata", "", "free-form client metadata")
	return cmd
}

func newAdminDecrefCmd(g *globalFlags) *cobra.Command {
	var f AdminRefFlags
	cmd := &cobra.Command{
		Use:   "decref <name>",
		Short: "Low-level decref, --pid defaults to the current pid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			c, err := newCommand(*g)
			if err != nil {
				return err
			}
			return c.AdminDecref(f)
		},
	}
	cmd.Flags().IntVar(&f.PID, "pid", 0, "client pid to remove (default: current pid)")
	return cmd
}

func newAdminDoctorCmd(g *globalFlags) *cobra.Command {
	var f AdminDoctorFlags
	cmd := &cobra.Command{
		Use:   "doctor [name]",
		Short: "Validate invariants, repair drift, report actions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.Name = args[0]
			}
			c, err := newCommand(*g)
			if err != nil {
				return err
			}
			return c.AdminDoctor(f)
		},
	}
	cmd.Flags().BoolVar(&f.Respawn, "respawn", false, "fork a fresh watcher for a live server whose watcher is dead")
	return cmd
}

func newAdminDebugCmd(g *globalFlags) *cobra.Command {
	var f AdminDebugFlags
	cmd := &cobra.Command{
		Use:   "debug <name>",
		Short: "Emit recent invocation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			c, err := newCommand(*g)
			if err != nil {
				return err
			}
			return c.AdminDebug(f)
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "maximum number of recent entries to show")
	return cmd
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	var f WatchFlags
	cmd := &cobra.Command{
		Use:    launch.WatchSubcommand,
		Short:  "Internal: run the watcher loop for one name",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.LockDir == "" {
				f.LockDir = g.LockDir
			}
			return runWatch(f, *g)
		},
	}
	cmd.Flags().StringVar(&f.LockDir, "lock-dir", "", "lock directory containing the name's records")
	cmd.Flags().StringVar(&f.Name, "name", "", "server name to watch")
	return cmd
}

// splitCommand splits a positional-args slice into its first element (the
// command to run) and the rest (its arguments).
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 {
		return "", nil
	}
	return args[0], args[1:]
}

