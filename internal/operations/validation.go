package operations

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/compozy/stackops/internal/domain"
)

// ErrInvalidParameter is returned by constructors given unusable input.
var ErrInvalidParameter = errors.New("invalid operation parameter")

var (
	// hashRegex matches abbreviated or full commit hashes
	hashRegex = regexp.MustCompile(`^[0-9a-fA-F]{4,64}$`)
	// revsetRegex is a loose guard against shell metacharacters in revsets
	revsetRegex = regexp.MustCompile(`^[a-zA-Z0-9._/@~^:()\-]+$`)
)

// ValidateHash validates a commit hash. Optimistic hashes are rejected since
// they never exist in the repository.
func ValidateHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("%w: commit hash cannot be empty", ErrInvalidParameter)
	}
	if strings.HasPrefix(hash, domain.OptimisticPrefix) {
		return fmt.Errorf("%w: %s is an optimistic commit", ErrInvalidParameter, hash)
	}
	if !hashRegex.MatchString(hash) {
		return fmt.Errorf("%w: invalid commit hash %q", ErrInvalidParameter, hash)
	}
	return nil
}

// ValidateRevset validates a revision expression passed verbatim.
func ValidateRevset(rev string) error {
	if rev == "" {
		return fmt.Errorf("%w: revision cannot be empty", ErrInvalidParameter)
	}
	if len(rev) > 255 {
		return fmt.Errorf("%w: revision too long: %d characters (max: 255)", ErrInvalidParameter, len(rev))
	}
	if !revsetRegex.MatchString(rev) {
		return fmt.Errorf("%w: invalid revision %q", ErrInvalidParameter, rev)
	}
	return nil
}

// ValidatePath validates a repository-relative path.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: path cannot be empty", ErrInvalidParameter)
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("%w: path must be relative to the repository root: %s", ErrInvalidParameter, path)
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: path escapes the repository: %s", ErrInvalidParameter, path)
	}
	return nil
}

// ValidatePaths validates every path and rejects duplicates.
func ValidatePaths(paths []string) error {
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if err := ValidatePath(p); err != nil {
			return err
		}
		if seen[p] {
			return fmt.Errorf("%w: duplicate path %s", ErrInvalidParameter, p)
		}
		seen[p] = true
	}
	return nil
}

// ValidateMessage validates a commit message.
func ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: commit message cannot be empty", ErrInvalidParameter)
	}
	return nil
}

// splitMessage returns the title and the remaining description.
func splitMessage(message string) (string, string) {
	title, rest, _ := strings.Cut(strings.TrimSpace(message), "\n")
	return strings.TrimSpace(title), strings.TrimSpace(rest)
}

func fileArgs(files []string) []domain.CommandArg {
	out := make([]domain.CommandArg, 0, len(files))
	for _, f := range files {
		out = append(out, domain.RepoRelativeFile(f))
	}
	return out
}
