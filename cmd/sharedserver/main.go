// Command sharedserver manages reference-counted, watcher-supervised
// shared server processes keyed by name, backed by atomically published
// JSON records under a resolved lock directory.
package main

import (
	"fmt"
	"os"
)

// finalExitCode lets check's RunE communicate its documented 0/1/2 state
// exit codes back out to main without cobra's Execute() seeing anything
// but success or failure.
var finalExitCode int

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sharedserver:", err)
		if finalExitCode == 0 {
			finalExitCode = exitCodeForErr(err)
		}
	}
	os.Exit(finalExitCode)
}
