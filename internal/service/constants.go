package service

import "time"

// Timeout constants for service operations
const (
	// DefaultCommandTimeout bounds a single source-control command
	DefaultCommandTimeout = 10 * time.Minute
	// DefaultVersionTimeout is the timeout for the version query
	DefaultVersionTimeout = 10 * time.Second
	// waitDelay is how long Wait keeps draining pipes after the process is killed
	waitDelay = 5 * time.Second
	// maxStderrTail is how much stderr is kept for error messages
	maxStderrTail = 4096
)
