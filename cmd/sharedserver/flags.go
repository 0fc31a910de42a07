package main

import "time"

// globalFlags holds the flags shared by every subcommand (root persistent
// flags), decoupled from cobra so tests can build a command struct without
// going through flag parsing.
type globalFlags struct {
	LockDir      string
	ConfigPath   string
	StartWindow  time.Duration
	PollInterval time.Duration
	KillWait     time.Duration
	DebugLogPath string
}

// CheckFlags configures `check <name>`.
type CheckFlags struct {
	Name string
}

// InfoFlags configures `info <name> [--json]`.
type InfoFlags struct {
	Name string
	JSON bool
}

// ListFlags configures `list [--match glob]`.
type ListFlags struct {
	Match string
}

// UseFlags configures `use <name> [-- cmd args...]`.
type UseFlags struct {
	Name           string
	Command        string
	Args           []string
	GracePeriod    string
	PID            int
	Metadata       string
	Env            []string
	LogFile        string
	ShutdownSignal string
}

// UnuseFlags configures `unuse <name>`.
type UnuseFlags struct {
	Name string
	PID  int
}

// AdminStartFlags configures `admin start <name> -- cmd args...`.
type AdminStartFlags struct {
	Name           string
	Command        string
	Args           []string
	GracePeriod    string
	Env            []string
	LogFile        string
	ShutdownSignal string
}

// AdminStopFlags configures `admin stop <name> [--force]`.
type AdminStopFlags struct {
	Name  string
	Force bool
	Wait  time.Duration
}

// AdminKillFlags configures `admin kill <name>`.
type AdminKillFlags struct {
	Name string
}

// AdminRefFlags configures `admin incref/decref <name> [--pid P]`.
type AdminRefFlags struct {
	Name     string
	PID      int
	Metadata string
}

// AdminDoctorFlags configures `admin doctor [name]`.
type AdminDoctorFlags struct {
	Name    string // empty means every name in the lock directory
	Respawn bool
}

// AdminDebugFlags configures `admin debug <name>`.
type AdminDebugFlags struct {
	Name  string
	Limit int
}

// WatchFlags configures the hidden __watch subcommand.
type WatchFlags struct {
	LockDir string
	Name    string
}
