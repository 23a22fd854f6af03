package mcp

import (
	"os"
	"sort"
)

// envList renders env as KEY=VALUE pairs appended to the current process
// environment, sorted for stable child-process setup.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := os.Environ()
	for _, k := range keys {
		out = append(out, k+"="+os.ExpandEnv(env[k]))
	}
	return out
}
