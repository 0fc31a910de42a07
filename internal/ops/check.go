package ops

import (
	"errors"

	"github.com/georgeharker/sharedserver/internal/lockdir"
	"github.com/georgeharker/sharedserver/internal/probe"
	"github.com/georgeharker/sharedserver/internal/statefile"
	"github.com/georgeharker/sharedserver/internal/statemachine"
)

// Check is the read-only state query (§4.5). It has no side effects;
// cleanup of stale records is the watcher's job.
func Check(lockDir, name string) (statemachine.State, error) {
	paths, err := lockdir.DerivePaths(lockDir, name)
	if err != nil {
		return statemachine.Stopped, classifyName(name, err)
	}

	srv, err := statefile.ReadServer(paths.ServerJSON)
	hasServer := err == nil
	if err != nil && !errors.Is(err, statefile.ErrNotFound) {
		return statemachine.Stopped, classifyRead(name, err)
	}

	alive := false
	if hasServer {
		alive = probe.IsAliveSince(srv.PID, srv.StartedAt)
	}

	_, err = statefile.ReadClients(paths.ClientsJSON)
	hasClients := err == nil
	if err != nil && !errors.Is(err, statefile.ErrNotFound) {
		return statemachine.Stopped, classifyRead(name, err)
	}

	return statemachine.Derive(hasServer, hasClients, alive), nil
}
