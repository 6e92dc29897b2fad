package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"whisper-desk/internal/domain"
)

// Process phases reported by ProcessError.
const (
	PhaseLaunch = "launch"
	PhaseWait   = "wait"
	PhaseExit   = "exit"
)

// ProcessError describes an engine process that could not run to a clean exit.
type ProcessError struct {
	Phase    string
	Message  string
	ExitCode int
	Err      error
}

// Error formats process failures for logs and records.
func (e *ProcessError) Error() string {
	if e == nil {
		return ""
	}
	if e.Phase == PhaseExit {
		return fmt.Sprintf("%s (exit=%d)", e.Message, e.ExitCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap classifies process failures and exposes the underlying error.
func (e *ProcessError) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{domain.ErrProcess}
	}
	return []error{domain.ErrProcess, e.Err}
}

// process is a started engine invocation.
type process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() error
}

// launcher abstracts process creation for testability.
type launcher interface {
	Start(ctx context.Context, name string, args ...string) (process, error)
}

// execLauncher starts engine processes via os/exec.
type execLauncher struct{}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

// Start launches name with piped stdout and stderr.
func (execLauncher) Start(ctx context.Context, name string, args ...string) (process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }
func (p *execProcess) Wait() error       { return p.cmd.Wait() }

// exitError converts a Wait failure into a ProcessError.
func exitError(err error) *ProcessError {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ProcessError{
			Phase:    PhaseExit,
			Message:  fmt.Sprintf("engine exited with code %d", exitErr.ExitCode()),
			ExitCode: exitErr.ExitCode(),
			Err:      err,
		}
	}
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProcessError{Phase: PhaseWait, Message: "waiting for engine process failed", ExitCode: -1, Err: err}
}
