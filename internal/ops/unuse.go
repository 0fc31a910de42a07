package ops

// Unuse is sugar for Decref whose --pid default is the parent pid (§4.5),
// matching Use's default so a shell wrapper's `use`/`unuse` pair tracks
// the same pid without the shell having to know its own pid.
func Unuse(lockDir, name string, pid int) error {
	return Decref(lockDir, name, pid)
}
