// Package ops implements the public client operations (check, info, list,
// incref, decref, use, unuse) as typed, lock-disciplined mutations over the
// two per-name records.
package ops

import (
	"errors"
	"fmt"

	"github.com/georgeharker/sharedserver/internal/lockdir"
	"github.com/georgeharker/sharedserver/internal/statefile"
)

// Error is the taxonomy of typed operation failures (§7). Each carries the
// name it concerns where applicable.
type Error struct {
	Kind Kind
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Name)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind enumerates the error taxonomy.
type Kind string

const (
	KindBadName       Kind = "bad_name"
	KindNotFound      Kind = "not_found"
	KindServerNotFound Kind = "server_not_found"
	KindCorrupt       Kind = "corrupt"
	KindNotExecutable Kind = "not_executable"
	KindStartFailed   Kind = "start_failed"
	KindStartRequired Kind = "start_required"
	KindLockTimeout   Kind = "lock_timeout"
	KindIoError       Kind = "io_error"
)

func newErr(kind Kind, name string, err error) *Error {
	return &Error{Kind: kind, Name: name, Err: err}
}

// classifyRead turns a statefile tolerant-read error into the ops taxonomy.
func classifyRead(name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, statefile.ErrNotFound):
		return newErr(KindNotFound, name, err)
	case errors.Is(err, statefile.ErrCorrupt):
		return newErr(KindCorrupt, name, err)
	default:
		return newErr(KindIoError, name, err)
	}
}

func classifyName(name string, err error) error {
	if err == nil {
		return nil
	}
	var badName *lockdir.ErrBadName
	if errors.As(err, &badName) {
		return newErr(KindBadName, name, err)
	}
	return newErr(KindIoError, name, err)
}

// ExitCodeFor maps an error from this package to the CLI's documented exit
// code (§6). Non-ops errors map to the generic error code 3.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindStartFailed:
			return 4
		default:
			return 3
		}
	}
	return 3
}
