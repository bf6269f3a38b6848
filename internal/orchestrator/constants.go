package orchestrator

import (
	"os"
	"time"
)

// Timeout constants for background work around operations
var (
	// RecordTimeout bounds recording and refreshing after an operation ends
	RecordTimeout = getTimeoutOrDefault("STACKOPS_RECORD_TIMEOUT", 30*time.Second)
	// ShutdownTimeout bounds how long Close waits for the running operation
	ShutdownTimeout = getTimeoutOrDefault("STACKOPS_SHUTDOWN_TIMEOUT", 10*time.Minute)
)

// getTimeoutOrDefault returns the duration from envVar, or def when unset or invalid
func getTimeoutOrDefault(envVar string, def time.Duration) time.Duration {
	if env := os.Getenv(envVar); env != "" {
		if duration, err := time.ParseDuration(env); err == nil && duration > 0 {
			return duration
		}
	}
	return def
}

// File permission constants
const (
	// DirPermissionsDefault is the permission for the state directory
	DirPermissionsDefault = 0o755
)
