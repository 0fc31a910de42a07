package ops

import (
	"errors"
	"strconv"
	"time"

	"github.com/georgeharker/sharedserver/internal/lockdir"
	"github.com/georgeharker/sharedserver/internal/statefile"
)

// Incref registers pid as a client of name (§4.5). Requires an existing
// server record. Idempotent for the same pid: refcount is unaffected by a
// repeat incref, though metadata may be overwritten.
func Incref(lockDir, name string, pid int, metadata string) error {
	paths, err := lockdir.DerivePaths(lockDir, name)
	if err != nil {
		return classifyName(name, err)
	}

	release, err := statefile.AcquireBoth(paths.ServerLock, paths.ClientsLock)
	if err != nil {
		return newErr(KindLockTimeout, name, err)
	}
	defer release()

	return increfLocked(paths, pid, metadata)
}

// increfLocked is Incref's body, assuming both per-name locks are already
// held by the caller (used directly by Use's attach path).
func increfLocked(paths lockdir.Paths, pid int, metadata string) error {
	name := paths.Name
	if _, err := statefile.ReadServer(paths.ServerJSON); err != nil {
		if errors.Is(err, statefile.ErrNotFound) {
			return newErr(KindServerNotFound, name, err)
		}
		return classifyRead(name, err)
	}

	clients, err := statefile.ReadClients(paths.ClientsJSON)
	now := time.Now().Unix()
	key := strconv.Itoa(pid)
	switch {
	case err == nil:
		if clients.Clients == nil {
			clients.Clients = map[string]statefile.ClientEntry{}
		}
		if _, exists := clients.Clients[key]; !exists {
			clients.Clients[key] = statefile.ClientEntry{AttachedAt: now, Metadata: metadata}
		} else if metadata != "" {
			entry := clients.Clients[key]
			entry.Metadata = metadata
			clients.Clients[key] = entry
		}
		clients.Refcount = len(clients.Clients)
	case errors.Is(err, statefile.ErrNotFound):
		clients = &statefile.Clients{
			Refcount: 1,
			Clients:  map[string]statefile.ClientEntry{key: {AttachedAt: now, Metadata: metadata}},
		}
	default:
		return classifyRead(name, err)
	}

	if err := statefile.WriteClients(paths.ClientsJSON, clients); err != nil {
		return newErr(KindIoError, name, err)
	}
	return nil
}
