package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveArgs(t *testing.T) {
	args := []CommandArg{
		Lit("rebase"),
		Lit("-s"), SucceedableRevset("abc123"),
		Lit("-d"), ExactRevset("def456"),
		RepoRelativeFile("src/main.go"),
		ConfigOverride("ui.merge", "internal:merge"),
	}

	t.Run("Should pass values through without an environment", func(t *testing.T) {
		out, err := ResolveArgs(args, ResolveEnv{})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"rebase", "-s", "abc123", "-d", "def456", "src/main.go",
			"--config", "ui.merge=internal:merge",
		}, out)
	})

	t.Run("Should wrap succeedable revsets and relativize files", func(t *testing.T) {
		env := ResolveEnv{
			RepoRoot:            "/repo",
			Cwd:                 "/repo/src",
			SucceedableTemplate: "max(successors(%s))",
		}
		out, err := ResolveArgs(args, env)
		require.NoError(t, err)
		assert.Equal(t, "max(successors(abc123))", out[2])
		assert.Equal(t, "def456", out[4])
		assert.Equal(t, "main.go", out[5])
	})

	t.Run("Should reject unknown argument kinds", func(t *testing.T) {
		_, err := ResolveArgs([]CommandArg{{Kind: "bogus", Value: "x"}}, ResolveEnv{})
		assert.ErrorContains(t, err, "unknown argument kind")
	})
}

func TestDescribeArgs(t *testing.T) {
	t.Run("Should shorten full hashes but keep optimistic ones", func(t *testing.T) {
		full := "0123456789abcdef0123456789abcdef01234567"
		got := DescribeArgs([]CommandArg{
			Lit("goto"), SucceedableRevset(full), ExactRevset(OptimisticPrefix + "COMMIT_1234567890"),
		})
		assert.Equal(t, "goto 0123456789ab OPTIMISTIC_COMMIT_1234567890", got)
	})
}
