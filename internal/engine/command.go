package engine

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// CommandResult captures one external command invocation.
type CommandResult struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	Dir      string   `json:"dir,omitempty"`
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (CommandResult, error)
	LookPath(name string) (string, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command in dir and captures stdout, stderr and exit code.
func (execRunner) Run(ctx context.Context, dir, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{
		Command: name,
		Args:    args,
		Dir:     dir,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// LookPath resolves an executable on PATH.
func (execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func formatCommand(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// tail keeps the last n bytes of s for error messages.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
