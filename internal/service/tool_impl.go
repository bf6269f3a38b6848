package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/compozy/stackops/internal/domain"
)

// ToolConfig configures the tool service.
type ToolConfig struct {
	// Command is the executable, e.g. "sl".
	Command string
	Env     domain.ResolveEnv
	Timeout time.Duration
	// ExtraEnv is appended to the inherited environment.
	ExtraEnv []string
}

// toolService is the implementation of the ToolService interface.
type toolService struct {
	cfg    ToolConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewToolService creates a new ToolService.
func NewToolService(cfg ToolConfig, logger *zap.Logger) ToolService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &toolService{cfg: cfg, logger: logger, now: time.Now}
}

var (
	// progressLine matches progress output such as "rebasing 3/5 commits"
	progressLine = regexp.MustCompile(`^(.*?)\s*(\d+)/(\d+)\b`)
	// versionNumber extracts the numeric version from "--version" output
	versionNumber = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?`)
)

// Execute runs the command with timeout, streams stdout and stderr line by
// line and reports the outcome.
func (s *toolService) Execute(ctx context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error {
	args, err := domain.ResolveArgs(op.Args, s.cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to resolve arguments: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.Command, args...)
	cmd.Dir = s.cfg.Env.Cwd
	cmd.Env = append(os.Environ(), s.cfg.ExtraEnv...)
	cmd.WaitDelay = waitDelay
	if op.Stdin != nil {
		cmd.Stdin = strings.NewReader(*op.Stdin)
	}
	// Pipes are not *os.File, so Wait gives up on them WaitDelay after the
	// process exits even if a grandchild still holds them open.
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.cfg.Command, err)
	}
	s.logger.Debug("spawned command",
		zap.String("operation_id", op.ID),
		zap.String("command", s.cfg.Command),
		zap.Strings("args", args),
		zap.Int("pid", cmd.Process.Pid),
	)

	// Both pumps emit concurrently; callers get a serialized stream.
	var mu sync.Mutex
	send := func(ev domain.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		ev.ID = op.ID
		ev.Time = s.now()
		emit(ev)
	}
	send(domain.ProgressEvent{Kind: domain.ProgressSpawn})

	var (
		tail    bytes.Buffer
		waitErr error
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		return pump(stdoutR, func(line string) {
			send(domain.ProgressEvent{Kind: domain.ProgressStdout, Message: line})
		})
	})
	g.Go(func() error {
		return pump(stderrR, func(line string) {
			if ev, ok := parseProgress(line); ok {
				send(ev)
			}
			send(domain.ProgressEvent{Kind: domain.ProgressStderr, Message: line})
			mu.Lock()
			appendTail(&tail, line)
			mu.Unlock()
		})
	})
	g.Go(func() error {
		waitErr = cmd.Wait()
		_ = stdoutW.Close()
		_ = stderrW.Close()
		return nil
	})
	pumpErr := g.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %v", ErrCommandTimeout, s.cfg.Timeout)
		}
		return fmt.Errorf("command interrupted: %w", ctxErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Stderr: strings.TrimSpace(tail.String())}
		}
		return fmt.Errorf("command failed: %w", waitErr)
	}
	if pumpErr != nil {
		return fmt.Errorf("failed to read command output: %w", pumpErr)
	}
	return nil
}

// Version runs "<command> --version" and parses the first version number.
func (s *toolService) Version(ctx context.Context) (*semver.Version, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultVersionTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.Command, "--version")
	cmd.Dir = s.cfg.Env.Cwd
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %v", ErrCommandTimeout, DefaultVersionTimeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("failed to query %s version: %w (stderr: %s)", s.cfg.Command, err, msg)
		}
		return nil, fmt.Errorf("failed to query %s version: %w", s.cfg.Command, err)
	}
	return parseToolVersion(stdout.String())
}

func parseToolVersion(output string) (*semver.Version, error) {
	raw := versionNumber.FindString(output)
	if raw == "" {
		return nil, fmt.Errorf("no version number in %q", strings.TrimSpace(output))
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	return v, nil
}

// parseProgress turns "<topic> <pos>/<total>" lines into progress events.
func parseProgress(line string) (domain.ProgressEvent, bool) {
	m := progressLine.FindStringSubmatch(line)
	if m == nil {
		return domain.ProgressEvent{}, false
	}
	pos, err1 := strconv.Atoi(m[2])
	total, err2 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil || total <= 0 || pos > total {
		return domain.ProgressEvent{}, false
	}
	return domain.ProgressEvent{
		Kind:    domain.ProgressPercent,
		Message: strings.TrimSpace(m[1]),
		Percent: pos * 100 / total,
	}, true
}

func pump(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		// Keep draining so the writer never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

func appendTail(buf *bytes.Buffer, line string) {
	if buf.Len() > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString(line)
	if extra := buf.Len() - maxStderrTail; extra > 0 {
		buf.Next(extra)
	}
}
