package orchestrator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/compozy/stackops/internal/domain"
)

// WorkingCopyLockName is the lock file shared by every process operating on
// the same repository.
const WorkingCopyLockName = "working-copy.lock"

// ValidateSessionConfig checks that a session can run operations for every
// runner in runners.
func ValidateSessionConfig(cfg SessionConfig, runners ...domain.CommandRunner) error {
	if cfg.GitRepo == nil {
		return fmt.Errorf("git repository is required")
	}
	var missing []string
	for _, r := range runners {
		if _, ok := cfg.Executors[r]; !ok {
			missing = append(missing, string(r))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing executors for runners: %s", strings.Join(missing, ", "))
	}
	if cfg.DagLimit < 0 {
		return fmt.Errorf("dag limit cannot be negative: %d", cfg.DagLimit)
	}
	return nil
}

// PrepareStateDir creates the state directory and returns the path of the
// working-copy lock inside it.
func PrepareStateDir(fs afero.Fs, dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("state directory cannot be empty")
	}
	if err := fs.MkdirAll(dir, DirPermissionsDefault); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return filepath.Join(dir, WorkingCopyLockName), nil
}
