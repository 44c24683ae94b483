package featureflags

import (
	"os"
	"strings"
)

// Known flags
const (
	// SyncOnInstall starts a background sync as soon as an install completes
	SyncOnInstall = "sync_on_install"
	// LiveEvents enables the websocket event stream for dashboards
	LiveEvents = "live_events"
)

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	return parse(os.Getenv("FLAG_" + strings.ToUpper(name)))
}

// EnabledOr is Enabled with a default for unset flags
func EnabledOr(name string, def bool) bool {
	v, ok := os.LookupEnv("FLAG_" + strings.ToUpper(name))
	if !ok || v == "" {
		return def
	}
	return parse(v)
}

func parse(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
