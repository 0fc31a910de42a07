package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// printJSON marshals v as indented JSON to stdout; `list`, `info --json`,
// and the history section of `admin debug` use it so their output is
// script-friendly.
func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// parseEnvKVs turns repeated --env K=V flags into a map, last write wins.
func parseEnvKVs(kvs []string) map[string]string {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}
