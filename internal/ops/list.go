package ops

import (
	"sort"
	"strings"

	"github.com/georgeharker/sharedserver/internal/lockdir"
)

// List enumerates every *.server.json in lockDir and runs GetInfo on each.
// One bad record never fails the whole call: its error is recorded inline
// on the corresponding ListEntry instead.
func List(lockDir string) ([]ListEntry, error) {
	return ListMatch(lockDir, "*")
}

// ListEntry pairs a name with its Info, or an error if it could not be read.
type ListEntry struct {
	Name string
	Info *Info
	Err  error
}

// ListMatch is List filtered to names matching the wildcard pattern (`*`
// matches any run of characters; an empty pattern matches nothing).
func ListMatch(lockDir, pattern string) ([]ListEntry, error) {
	names, err := lockdir.ListServerRecords(lockDir)
	if err != nil {
		return nil, classifyName("", err)
	}
	sort.Strings(names)

	out := make([]ListEntry, 0, len(names))
	for _, name := range names {
		if !wildcardMatch(name, pattern) {
			continue
		}
		info, err := GetInfo(lockDir, name)
		out = append(out, ListEntry{Name: name, Info: info, Err: err})
	}
	return out, nil
}

// wildcardMatch reports whether name matches a glob pattern using only
// '*' as a wildcard (no single-character wildcard, no character classes).
func wildcardMatch(name, pattern string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return name == pattern
	}
	parts := strings.Split(pattern, "*")
	idx := 0
	if parts[0] != "" {
		if !strings.HasPrefix(name, parts[0]) {
			return false
		}
		idx = len(parts[0])
	}
	for i := 1; i < len(parts)-1; i++ {
		p := parts[i]
		if p == "" {
			continue
		}
		j := strings.Index(name[idx:], p)
		if j < 0 {
			return false
		}
		idx += j + len(p)
	}
	last := parts[len(parts)-1]
	if last != "" {
		return strings.HasSuffix(name, last) && idx <= len(name)-len(last)
	}
	return true
}
