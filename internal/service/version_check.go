package service

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// CheckToolVersion fails unless the tool reports at least minimum. An empty
// minimum only verifies that the tool can be run.
func CheckToolVersion(ctx context.Context, svc ToolService, minimum string) (*semver.Version, error) {
	v, err := svc.Version(ctx)
	if err != nil {
		return nil, err
	}
	if minimum == "" {
		return v, nil
	}
	constraint, err := semver.NewConstraint(">= " + minimum)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum version %q: %w", minimum, err)
	}
	if !constraint.Check(v) {
		return v, fmt.Errorf("%w: found %s, need >= %s", ErrUnsupportedToolVersion, v, minimum)
	}
	return v, nil
}
