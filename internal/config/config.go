package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"
	"github.com/spf13/viper"

	"github.com/compozy/stackops/internal/domain"
)

type Config struct {
	Command             string        `mapstructure:"command"`
	RepoPath            string        `mapstructure:"repo_path"`
	StateDir            string        `mapstructure:"state_dir"`
	LogLevel            string        `mapstructure:"log_level"`
	LogFormat           string        `mapstructure:"log_format"`
	LockTimeout         time.Duration `mapstructure:"lock_timeout"`
	CommandTimeout      time.Duration `mapstructure:"command_timeout"`
	MinToolVersion      string        `mapstructure:"min_tool_version"`
	SucceedableTemplate string        `mapstructure:"succeedable_template"`
	DagLimit            int           `mapstructure:"dag_limit"`
	HistoryKeep         int           `mapstructure:"history_keep"`
	Runner              string        `mapstructure:"runner"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Command:             "sl",
		LogLevel:            "info",
		LogFormat:           "console",
		LockTimeout:         30 * time.Second,
		CommandTimeout:      10 * time.Minute,
		SucceedableTemplate: "max(successors(%s))",
		DagLimit:            2000,
		HistoryKeep:         200,
		Runner:              string(domain.RunnerPrimary),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if strings.ContainsAny(c.Command, ";&|`$<>") {
		return fmt.Errorf("command contains shell metacharacters: %s", c.Command)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "text", "json":
	default:
		return fmt.Errorf("invalid log_format: %s", c.LogFormat)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive")
	}
	if c.MinToolVersion != "" {
		if _, err := semver.NewVersion(c.MinToolVersion); err != nil {
			return fmt.Errorf("invalid min_tool_version: %w", err)
		}
	}
	if c.SucceedableTemplate != "" && strings.Count(c.SucceedableTemplate, "%s") != 1 {
		return fmt.Errorf("succeedable_template must contain exactly one %%s: %s", c.SucceedableTemplate)
	}
	if c.DagLimit <= 0 {
		return fmt.Errorf("dag_limit must be positive")
	}
	if c.HistoryKeep < 0 {
		return fmt.Errorf("history_keep cannot be negative")
	}
	switch domain.CommandRunner(c.Runner) {
	case domain.RunnerPrimary, domain.RunnerInternal:
	default:
		return fmt.Errorf("invalid runner: %s", c.Runner)
	}
	if strings.Contains(c.StateDir, "..") {
		return fmt.Errorf("state_dir contains invalid path traversal")
	}
	return nil
}

func LoadConfig() (*Config, error) {
	return loadConfig(viper.GetViper())
}

func loadConfig(v *viper.Viper) (*Config, error) {
	v.SetConfigName(".stackops")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	// Configure environment variables
	v.SetEnvPrefix("STACKOPS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Set defaults
	defaults := DefaultConfig()
	v.SetDefault("command", defaults.Command)
	v.SetDefault("repo_path", defaults.RepoPath)
	v.SetDefault("state_dir", defaults.StateDir)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)
	v.SetDefault("lock_timeout", defaults.LockTimeout)
	v.SetDefault("command_timeout", defaults.CommandTimeout)
	v.SetDefault("min_tool_version", defaults.MinToolVersion)
	v.SetDefault("succeedable_template", defaults.SucceedableTemplate)
	v.SetDefault("dag_limit", defaults.DagLimit)
	v.SetDefault("history_keep", defaults.HistoryKeep)
	v.SetDefault("runner", defaults.Runner)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := populateRepositoryDefaults(&config); err != nil {
		return nil, err
	}
	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// populateRepositoryDefaults resolves repo_path to the enclosing repository
// root and places state_dir inside the git directory, where the state files
// do not show up as uncommitted changes.
func populateRepositoryDefaults(cfg *Config) error {
	start := cfg.RepoPath
	if start == "" {
		start = "."
	}
	repo, err := git.PlainOpenWithOptions(start, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) && cfg.RepoPath == "" && cfg.StateDir != "" {
			// Commands such as history work outside a repository.
			return nil
		}
		return fmt.Errorf("failed to locate repository from %s: %w", start, err)
	}
	w, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	cfg.RepoPath = w.Filesystem.Root()
	if cfg.StateDir == "" {
		cfg.StateDir = defaultStateDir(cfg.RepoPath)
	}
	return nil
}

func defaultStateDir(root string) string {
	gitDir := filepath.Join(root, ".git")
	if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
		return filepath.Join(gitDir, "stackops")
	}
	return filepath.Join(root, ".stackops")
}
