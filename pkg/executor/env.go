package executor

import (
	"os"
	"strings"
)

// WithSanitizedEnv snapshots the process environment, strips runtime- and
// dependency-manager variables for the duration of fn, and restores the
// exact pre-call environment afterward regardless of fn's outcome. The
// restore always runs, even if fn panics or returns an error, so the
// process environment after a call equals the environment before it.
func WithSanitizedEnv(fn func() error) error {
	snapshot := os.Environ()
	defer restoreEnv(snapshot)

	for _, kv := range snapshot {
		name := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			name = kv[:idx]
		}
		if shouldUnset(name) {
			os.Unsetenv(name)
		}
	}
	stripRbenvFromPath()

	return fn()
}

// shouldUnset reports whether name is a runtime-manager or
// dependency-manager variable that must not reach the sandboxed task:
// *_VERSION / *_DIR (rbenv, nvm and similar version managers), GEM_PATH /
// GEM_HOME, BUNDLE_* and RUBYOPT / RUBYLIB, and RAILS_ENV.
func shouldUnset(name string) bool {
	switch name {
	case "GEM_PATH", "GEM_HOME", "RUBYOPT", "RUBYLIB", "RAILS_ENV":
		return true
	}
	if strings.HasSuffix(name, "_VERSION") || strings.HasSuffix(name, "_DIR") {
		return true
	}
	return strings.HasPrefix(name, "BUNDLE_")
}

// stripRbenvFromPath removes any $PATH entry rooted under
// $RBENV_ROOT/versions/, so a stale rbenv shim never shadows the version
// the sandbox image itself provides.
func stripRbenvFromPath() {
	root := os.Getenv("RBENV_ROOT")
	if root == "" {
		return
	}
	prefix := root + "/versions/"

	path := os.Getenv("PATH")
	entries := strings.Split(path, string(os.PathListSeparator))
	kept := entries[:0]
	for _, entry := range entries {
		if !strings.HasPrefix(entry, prefix) {
			kept = append(kept, entry)
		}
	}
	os.Setenv("PATH", strings.Join(kept, string(os.PathListSeparator)))
}

func restoreEnv(snapshot []string) {
	os.Clearenv()
	for _, kv := range snapshot {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		os.Setenv(kv[:idx], kv[idx+1:])
	}
}
