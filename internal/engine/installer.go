package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const installCommandTimeout = 30 * time.Minute

// Installer clones and builds whisper.cpp into the engine repo directory.
type Installer struct {
	repoDir string
	repoURL string
	locator *Locator
	runner  commandRunner
	stat    func(name string) (os.FileInfo, error)
	logger  *zap.Logger
}

// NewInstaller creates an installer for repoDir. The locator is used to
// verify the build produced an executable.
func NewInstaller(repoDir, repoURL string, locator *Locator, logger *zap.Logger) *Installer {
	return newInstaller(repoDir, repoURL, locator, execRunner{}, logger)
}

func newInstaller(repoDir, repoURL string, locator *Locator, runner commandRunner, logger *zap.Logger) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Installer{
		repoDir: repoDir,
		repoURL: repoURL,
		locator: locator,
		runner:  runner,
		stat:    os.Stat,
		logger:  logger,
	}
}

type buildStrategy struct {
	tool     string
	commands [][]string
}

// Install fetches or updates the repository, builds it with the first
// available build tool and returns the resolved engine path. onLog receives
// one line per step and may be nil.
func (i *Installer) Install(ctx context.Context, onLog func(string)) (string, error) {
	logf := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		i.logger.Info(msg)
		if onLog != nil {
			onLog(msg)
		}
	}

	if err := i.fetch(ctx, logf); err != nil {
		return "", err
	}
	if err := i.build(ctx, logf); err != nil {
		return "", err
	}

	path, err := i.locator.Resolve()
	if err != nil {
		return "", fmt.Errorf("build finished but no engine executable found: %w", err)
	}
	logf("engine ready at %s", path)
	return path, nil
}

func (i *Installer) fetch(ctx context.Context, logf func(string, ...any)) error {
	if _, err := i.runner.LookPath("git"); err != nil {
		return fmt.Errorf("git is required to install the engine: %w", err)
	}

	if _, err := i.stat(filepath.Join(i.repoDir, ".git")); err == nil {
		logf("updating %s", i.repoDir)
		return i.run(ctx, i.repoDir, "git", "pull", "--ff-only")
	}

	if err := os.MkdirAll(filepath.Dir(i.repoDir), 0o755); err != nil {
		return fmt.Errorf("prepare engine directory: %w", err)
	}
	logf("cloning %s into %s", i.repoURL, i.repoDir)
	return i.run(ctx, "", "git", "clone", "--depth", "1", i.repoURL, i.repoDir)
}

func (i *Installer) build(ctx context.Context, logf func(string, ...any)) error {
	jobs := strconv.Itoa(max(runtime.NumCPU(), 1))
	strategies := []buildStrategy{
		{
			tool: "cmake",
			commands: [][]string{
				{"cmake", "-B", "build", "-DCMAKE_BUILD_TYPE=Release"},
				{"cmake", "--build", "build", "--config", "Release", "-j", jobs},
			},
		},
		{
			tool:     "make",
			commands: [][]string{{"make", "-j", jobs}},
		},
	}

	failures := make([]string, 0, len(strategies))
	attempted := false
	for _, strategy := range strategies {
		if _, err := i.runner.LookPath(strategy.tool); err != nil {
			continue
		}
		attempted = true
		logf("building with %s", strategy.tool)

		var stepErr error
		for _, command := range strategy.commands {
			if stepErr = i.run(ctx, i.repoDir, command[0], command[1:]...); stepErr != nil {
				break
			}
		}
		if stepErr == nil {
			return nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", strategy.tool, stepErr))
	}

	if !attempted {
		return errors.New("no supported build tool found (need cmake or make)")
	}
	return fmt.Errorf("build engine: %s", strings.Join(failures, " | "))
}

func (i *Installer) run(ctx context.Context, dir, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, installCommandTimeout)
	defer cancel()

	res, err := i.runner.Run(ctx, dir, name, args...)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	output := tail(res.Stderr+"\n"+res.Stdout, 500)
	if output == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, output)
}
