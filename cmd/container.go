package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/compozy/stackops/internal/config"
	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/logger"
	"github.com/compozy/stackops/internal/orchestrator"
	"github.com/compozy/stackops/internal/repository"
	"github.com/compozy/stackops/internal/service"
)

// container holds all the dependencies for the application.
// It is filled in when a command runs, after flags have been parsed.
type container struct {
	cfg    *config.Config
	logger *zap.Logger

	fsRepo      repository.FileSystemRepository
	historyRepo repository.HistoryRepository
	toolSvc     service.ToolService
}

// newContainer loads the configuration and the dependencies every command
// shares. Repository access is opened on demand since history works
// without a working copy.
func newContainer() (*container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	fsRepo := repository.NewFileSystemRepository(afero.NewOsFs())
	historyRepo := repository.NewJSONHistoryRepository(fsRepo, cfg.StateDir, cfg.LockTimeout, log)

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	toolSvc := service.NewToolService(service.ToolConfig{
		Command: cfg.Command,
		Env: domain.ResolveEnv{
			RepoRoot:            cfg.RepoPath,
			Cwd:                 cwd,
			SucceedableTemplate: cfg.SucceedableTemplate,
		},
		Timeout: cfg.CommandTimeout,
	}, log)

	return &container{
		cfg:         cfg,
		logger:      log,
		fsRepo:      fsRepo,
		historyRepo: historyRepo,
		toolSvc:     toolSvc,
	}, nil
}

// sessionConfig opens the working copy and assembles a session for it.
func (c *container) sessionConfig(onEvent domain.ProgressFunc) (orchestrator.SessionConfig, error) {
	if c.cfg.RepoPath == "" {
		return orchestrator.SessionConfig{}, fmt.Errorf("not inside a repository")
	}
	gitRepo, err := repository.NewGitRepository(c.cfg.RepoPath)
	if err != nil {
		return orchestrator.SessionConfig{}, err
	}
	workingCopy, err := repository.NewWorkingCopyRepository(c.cfg.RepoPath)
	if err != nil {
		return orchestrator.SessionConfig{}, err
	}
	lockPath, err := orchestrator.PrepareStateDir(c.fsRepo, c.cfg.StateDir)
	if err != nil {
		return orchestrator.SessionConfig{}, err
	}
	cfg := orchestrator.SessionConfig{
		GitRepo: gitRepo,
		History: c.historyRepo,
		Executors: map[domain.CommandRunner]orchestrator.Executor{
			domain.RunnerPrimary:  c.toolSvc,
			domain.RunnerInternal: orchestrator.NewInternalExecutor(workingCopy),
		},
		LockPath:    lockPath,
		LockTimeout: c.cfg.LockTimeout,
		DagLimit:    c.cfg.DagLimit,
		HistoryKeep: c.cfg.HistoryKeep,
		Logger:      c.logger,
		OnEvent:     onEvent,
	}
	if err := orchestrator.ValidateSessionConfig(cfg, domain.RunnerPrimary, domain.RunnerInternal); err != nil {
		return orchestrator.SessionConfig{}, err
	}
	return cfg, nil
}

func (c *container) close() {
	_ = c.logger.Sync()
}

// withContainer wraps a command body so it receives a loaded container.
func withContainer(
	run func(cmd *cobra.Command, c *container, args []string) error,
) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newContainer()
		if err != nil {
			return err
		}
		defer c.close()
		return run(cmd, c, args)
	}
}

// InitCommands registers every subcommand on the root command.
func InitCommands() {
	rootCmd.AddCommand(
		newLogCmd(),
		newPreviewCmd(),
		newRunCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
}
