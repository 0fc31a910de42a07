package ops

import (
	"errors"
	"strconv"

	"github.com/georgeharker/sharedserver/internal/lockdir"
	"github.com/georgeharker/sharedserver/internal/statefile"
)

// Decref removes pid from name's client set (§4.5). If the clients record
// is absent, this succeeds silently — there is nothing to undo. Decref of
// an unknown pid is likewise not an error. If refcount reaches 0 the
// clients record is deleted, handing the name to GRACE (the watcher's
// concern, not this operation's).
func Decref(lockDir, name string, pid int) error {
	paths, err := lockdir.DerivePaths(lockDir, name)
	if err != nil {
		return classifyName(name, err)
	}

	lock, err := statefile.Acquire(paths.ClientsLock)
	if err != nil {
		return newErr(KindLockTimeout, name, err)
	}
	defer func() { _ = lock.Release() }()

	clients, err := statefile.ReadClients(paths.ClientsJSON)
	if err != nil {
		if errors.Is(err, statefile.ErrNotFound) {
			return nil
		}
		return classifyRead(name, err)
	}

	key := strconv.Itoa(pid)
	if _, ok := clients.Clients[key]; !ok {
		return nil
	}
	delete(clients.Clients, key)
	clients.Refcount = len(clients.Clients)

	if clients.Refcount == 0 {
		if err := statefile.Remove(paths.ClientsJSON); err != nil {
			return newErr(KindIoError, name, err)
		}
		return nil
	}
	if err := statefile.WriteClients(paths.ClientsJSON, clients); err != nil {
		return newErr(KindIoError, name, err)
	}
	return nil
}
