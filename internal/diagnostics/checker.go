// Package diagnostics checks that the engine, models and data directories are
// usable before a job is started.
package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"whisper-desk/internal/domain"
)

// Target describes the environment to check.
type Target struct {
	Paths        domain.Paths
	FFprobePath  string
	DefaultModel string
	// ResolveEngine locates the engine executable.
	ResolveEngine func() (string, error)
}

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	glob       func(dir, pattern string) ([]string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	now        func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		glob:       globDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		now:        time.Now,
	}
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
) *Checker {
	c := NewChecker()
	c.lookPath = lookPath
	c.mkdirAll = mkdirAll
	c.createTemp = createTemp
	return c
}

func globDir(dir, pattern string) ([]string, error) {
	return doublestar.Glob(os.DirFS(dir), pattern)
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(target Target) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkEngine(target.ResolveEngine),
		c.checkTool("ffprobe", target.FFprobePath, "Install ffmpeg to enable progress percentages."),
		c.checkTool("git", "git", "Install git to let the app download the engine sources."),
		c.checkTool("cmake", "cmake", "Install cmake (or make) to build the engine."),
		c.checkModels(target.Paths.ModelsDir),
		c.checkDefaultModel(target.Paths.ModelsDir, target.DefaultModel),
		c.checkWritable("data_root", "Data directory", target.Paths.DataRoot),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

func (c *Checker) checkEngine(resolve func() (string, error)) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "engine", Name: "whisper.cpp engine"}
	if resolve == nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Engine location is not configured."
		return item
	}

	path, err := resolve()
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = err.Error()
		item.Hint = "Run `whisperdesk engine install` to clone and build whisper.cpp."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkTool verifies an optional CLI executable is on PATH.
func (c *Checker) checkTool(id, command, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "tool_" + id, Name: id}
	if strings.TrimSpace(command) == "" {
		command = id
	}

	path, err := c.lookPath(command)
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Tool not found in PATH: %s", command)
		item.Hint = hint
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

func (c *Checker) checkModels(modelsDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "models", Name: "Models"}

	matches, err := c.glob(modelsDir, "ggml-*.bin")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot read model directory: %s", modelsDir)
		item.Hint = "Check permissions for the model directory."
		return item
	}
	if len(matches) == 0 {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("No model files found in directory: %s", modelsDir)
		item.Hint = "Run `whisperdesk models download base` or place a ggml-*.bin file there."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%d model(s) in %s", len(matches), modelsDir)
	return item
}

func (c *Checker) checkDefaultModel(modelsDir, model string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "default_model", Name: "Default model"}
	if strings.TrimSpace(model) == "" {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "No default model is set."
		return item
	}

	file := domain.ModelFileName(model)
	matches, err := c.glob(modelsDir, file)
	if err != nil || len(matches) == 0 {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Default model %q is not downloaded.", model)
		item.Hint = fmt.Sprintf("Run `whisperdesk models download %s`.", model)
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Default model %q is available.", model)
	return item
}

// checkWritable validates directory existence and write access.
func (c *Checker) checkWritable(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is empty.", name)
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}
