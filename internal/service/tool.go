package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/compozy/stackops/internal/domain"
)

var (
	ErrCommandTimeout         = errors.New("command timed out")
	ErrUnsupportedToolVersion = errors.New("unsupported tool version")
)

// ToolService defines the interface for running the source-control tool.
type ToolService interface {
	// Execute spawns the tool for op and streams its output to emit. A
	// non-zero exit is reported as *ExitError.
	Execute(ctx context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error
	Version(ctx context.Context) (*semver.Version, error)
}

// ExitError reports a process that ran to completion with a non-zero status.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command exited with code %d (stderr: %s)", e.Code, e.Stderr)
	}
	return fmt.Sprintf("command exited with code %d", e.Code)
}
