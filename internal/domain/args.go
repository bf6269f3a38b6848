package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ArgKind identifies how a CommandArg is turned into a process argument.
type ArgKind string

const (
	// ArgLiteral is passed through unchanged.
	ArgLiteral ArgKind = "literal"
	// ArgSucceedableRevset refers to a commit that may have been rewritten by
	// the time the command spawns; the runner resolves it to the latest
	// successor.
	ArgSucceedableRevset ArgKind = "succeedable_revset"
	// ArgExactRevset refers to exactly the given revision.
	ArgExactRevset ArgKind = "exact_revset"
	// ArgRepoRelativeFile is a path relative to the repository root, resolved
	// against the process working directory at spawn time.
	ArgRepoRelativeFile ArgKind = "repo_relative_file"
	// ArgConfig is a one-off configuration override.
	ArgConfig ArgKind = "config"
)

// CommandArg is a single token of an operation's command line.
type CommandArg struct {
	Kind  ArgKind `json:"kind"`
	Value string  `json:"value"`
	// Key is only set for ArgConfig.
	Key string `json:"key,omitempty"`
}

// Lit builds a literal argument.
func Lit(s string) CommandArg { return CommandArg{Kind: ArgLiteral, Value: s} }

// Lits builds a sequence of literal arguments.
func Lits(s ...string) []CommandArg {
	out := make([]CommandArg, 0, len(s))
	for _, v := range s {
		out = append(out, Lit(v))
	}
	return out
}

// SucceedableRevset refers to hash or whatever it was rewritten into.
func SucceedableRevset(hash string) CommandArg {
	return CommandArg{Kind: ArgSucceedableRevset, Value: hash}
}

// ExactRevset refers to exactly rev.
func ExactRevset(rev string) CommandArg { return CommandArg{Kind: ArgExactRevset, Value: rev} }

// RepoRelativeFile refers to path relative to the repository root.
func RepoRelativeFile(path string) CommandArg {
	return CommandArg{Kind: ArgRepoRelativeFile, Value: path}
}

// ConfigOverride passes a single configuration value to the command.
func ConfigOverride(key, value string) CommandArg {
	return CommandArg{Kind: ArgConfig, Key: key, Value: value}
}

// String renders the argument for display.
func (a CommandArg) String() string {
	switch a.Kind {
	case ArgSucceedableRevset, ArgExactRevset:
		return ShortHash(a.Value)
	case ArgConfig:
		return fmt.Sprintf("--config %s=%s", a.Key, a.Value)
	default:
		return a.Value
	}
}

// ResolveEnv carries what a runner knows at spawn time.
type ResolveEnv struct {
	RepoRoot string
	Cwd      string
	// SucceedableTemplate wraps succeedable revsets, e.g. "max(successors(%s))".
	// When empty the hash is passed as-is.
	SucceedableTemplate string
}

// ResolveArgs turns structured arguments into process arguments.
func ResolveArgs(args []CommandArg, env ResolveEnv) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch a.Kind {
		case ArgLiteral, ArgExactRevset:
			out = append(out, a.Value)
		case ArgSucceedableRevset:
			if env.SucceedableTemplate == "" {
				out = append(out, a.Value)
			} else {
				out = append(out, fmt.Sprintf(env.SucceedableTemplate, a.Value))
			}
		case ArgRepoRelativeFile:
			p, err := resolveRepoFile(a.Value, env)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case ArgConfig:
			out = append(out, "--config", a.Key+"="+a.Value)
		default:
			return nil, fmt.Errorf("unknown argument kind %q", a.Kind)
		}
	}
	return out, nil
}

func resolveRepoFile(path string, env ResolveEnv) (string, error) {
	if env.RepoRoot == "" || env.Cwd == "" {
		return path, nil
	}
	abs := filepath.Join(env.RepoRoot, path)
	rel, err := filepath.Rel(env.Cwd, abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s relative to %s: %w", path, env.Cwd, err)
	}
	return rel, nil
}

// DescribeArgs renders args as a single command line for display.
func DescribeArgs(args []CommandArg) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " ")
}

// ShortHash truncates full hashes to 12 characters for display.
func ShortHash(hash string) string {
	if len(hash) > 12 && !strings.HasPrefix(hash, OptimisticPrefix) {
		return hash[:12]
	}
	return hash
}
