package transcribe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"whisper-desk/internal/domain"
	"whisper-desk/internal/engine"
	"whisper-desk/internal/history"
	"whisper-desk/internal/jobs"
)

// maxLineBytes bounds one engine output line.
const maxLineBytes = 1 << 20

// EngineLocator resolves the engine executable.
type EngineLocator interface {
	Resolve() (string, error)
}

// DurationProbe reports the media duration of an input file in seconds.
type DurationProbe interface {
	Duration(ctx context.Context, input string) (float64, error)
}

// Dependencies wires a Runner.
type Dependencies struct {
	Store         *history.Store
	Registry      *history.Registry
	Locator       EngineLocator
	Events        *jobs.EventBus
	Tracker       *jobs.Tracker
	Probe         DurationProbe
	ModelsDir     string
	DefaultFormat string
	Logger        *zap.Logger
}

// Runner starts engine processes for transcription requests and drives each
// job record to a terminal state.
type Runner struct {
	store         *history.Store
	registry      *history.Registry
	locator       EngineLocator
	events        *jobs.EventBus
	tracker       *jobs.Tracker
	probe         DurationProbe
	modelsDir     string
	defaultFormat string
	logger        *zap.Logger
	launcher      launcher
	stat          func(name string) (os.FileInfo, error)

	wg sync.WaitGroup
}

// NewRunner constructs the production runner.
func NewRunner(deps Dependencies) *Runner {
	return newRunner(deps, execLauncher{})
}

// NewRunnerForTests constructs a runner with an injectable process launcher.
func NewRunnerForTests(deps Dependencies, l launcher) *Runner {
	return newRunner(deps, l)
}

func newRunner(deps Dependencies, l launcher) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = jobs.NewEventBus(0)
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = jobs.NewTracker()
	}
	format := deps.DefaultFormat
	if format == "" {
		format = "srt"
	}
	return &Runner{
		store:         deps.Store,
		registry:      deps.Registry,
		locator:       deps.Locator,
		events:        events,
		tracker:       tracker,
		probe:         deps.Probe,
		modelsDir:     deps.ModelsDir,
		defaultFormat: format,
		logger:        logger.Named("runner"),
		launcher:      l,
		stat:          os.Stat,
	}
}

// Events returns the bus the runner publishes to.
func (r *Runner) Events() *jobs.EventBus {
	return r.events
}

// Tracker returns the in-process job tracker.
func (r *Runner) Tracker() *jobs.Tracker {
	return r.tracker
}

// ModelPath maps a model name to its file under the models directory.
func (r *Runner) ModelPath(model string) string {
	return filepath.Join(r.modelsDir, domain.ModelFileName(model))
}

// Submit validates cfg, creates a Running job record and starts the engine in
// the background. It returns once the process has been handed off. When the
// engine cannot be located the record is marked Failed and both the job id
// and the error are returned.
func (r *Runner) Submit(ctx context.Context, cfg domain.TranscriptionConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	modelPath := r.ModelPath(cfg.Model)
	if _, err := r.stat(modelPath); err != nil {
		return "", fmt.Errorf("%w: %s (%s)", domain.ErrModelNotFound, cfg.Model, modelPath)
	}

	rec, err := r.store.CreateJob(filepath.Base(cfg.InputFile), cfg.InputFile, cfg.Model, cfg.Options)
	if err != nil {
		return "", err
	}
	jobID := rec.ID
	log := r.logger.With(zap.String("job_id", jobID))

	if err := r.tracker.Start(jobID); err != nil {
		return jobID, err
	}
	r.events.Publish(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  domain.JobStatusRunning,
		Message: "Job started",
	})

	enginePath, err := r.locator.Resolve()
	if err != nil {
		r.fail(jobID, err)
		return jobID, domain.NewJobError("submit", jobID, domain.ErrEngineNotFound, err)
	}

	args := engine.BuildArgs(modelPath, cfg.InputFile, r.registry.OutputBase(jobID), cfg.Options, r.defaultFormat)
	log.Info("starting engine", zap.String("engine", enginePath), zap.Strings("args", args))

	r.wg.Add(1)
	go r.supervise(context.WithoutCancel(ctx), jobID, cfg.InputFile, enginePath, args)
	return jobID, nil
}

// Wait blocks until jobID reaches a terminal state and returns its record.
func (r *Runner) Wait(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	if _, err := r.tracker.Wait(ctx, jobID); err != nil {
		return nil, err
	}
	return r.store.LoadJob(jobID)
}

// Drain blocks until every supervised process has been finalized.
func (r *Runner) Drain() {
	r.wg.Wait()
}

func (r *Runner) supervise(ctx context.Context, jobID, input, enginePath string, args []string) {
	defer r.wg.Done()
	log := r.logger.With(zap.String("job_id", jobID))

	total := r.duration(ctx, input, log)

	proc, err := r.launcher.Start(ctx, enginePath, args...)
	if err != nil {
		r.fail(jobID, &ProcessError{Phase: PhaseLaunch, Message: "failed to launch engine", ExitCode: -1, Err: err})
		return
	}

	var g errgroup.Group
	g.Go(func() error { return r.pump(jobID, jobs.StreamStdout, proc.Stdout(), total) })
	g.Go(func() error { return r.pump(jobID, jobs.StreamStderr, proc.Stderr(), 0) })
	if err := g.Wait(); err != nil {
		log.Warn("engine output read failed", zap.Error(err))
	}

	if err := proc.Wait(); err != nil {
		r.fail(jobID, exitError(err))
		return
	}

	files, err := r.registry.Collect(jobID)
	if err != nil {
		r.fail(jobID, err)
		return
	}
	if len(files) == 0 {
		r.fail(jobID, domain.NewJobError("collect", jobID, domain.ErrValidation, errors.New("engine exited successfully but produced no result files")))
		return
	}
	if _, err := r.registry.RegisterExistingResults(jobID, files); err != nil {
		r.fail(jobID, err)
		return
	}

	rec, err := r.store.MarkCompleted(jobID)
	if err != nil {
		log.Error("persist completed job", zap.Error(err))
		r.fail(jobID, err)
		return
	}

	_ = r.tracker.Transition(jobID, domain.JobStatusCompleted)
	r.events.Publish(jobs.Event{
		JobID:    jobID,
		Type:     jobs.EventTypeComplete,
		Status:   domain.JobStatusCompleted,
		Message:  fmt.Sprintf("Transcription completed (%s)", strings.Join(rec.Formats(), ", ")),
		Progress: &domain.ProgressInfo{Progress: 1, Message: "Processing complete"},
	})
	log.Info("job completed", zap.Strings("formats", rec.Formats()))
}

// pump forwards each line of one output stream as log and progress events.
// Progress is parsed from stdout only.
func (r *Runner) pump(jobID string, stream jobs.Stream, rd io.Reader, total float64) error {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		r.events.Publish(jobs.Event{JobID: jobID, Type: jobs.EventTypeLog, Stream: stream, Message: line})

		if stream != jobs.StreamStdout {
			continue
		}
		if info, ok := engine.ParseProgressLine(line, total); ok {
			r.events.Publish(jobs.Event{JobID: jobID, Type: jobs.EventTypeProgress, Stream: stream, Progress: &info, Message: info.Message})
		}
	}

	if err := scanner.Err(); err != nil {
		// Keep draining so the process never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, rd)
		return fmt.Errorf("read %s: %w", stream, err)
	}
	return nil
}

// fail persists the failure before announcing it.
func (r *Runner) fail(jobID string, cause error) {
	log := r.logger.With(zap.String("job_id", jobID))
	message := cause.Error()

	if _, err := r.store.MarkFailed(jobID, message); err != nil {
		log.Error("persist failed job", zap.Error(err), zap.NamedError("cause", cause))
	}
	_ = r.tracker.Transition(jobID, domain.JobStatusFailed)
	r.events.Publish(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeError,
		Status:  domain.JobStatusFailed,
		Message: message,
	})
	log.Warn("job failed", zap.Error(cause))
}

func (r *Runner) duration(ctx context.Context, input string, log *zap.Logger) float64 {
	if r.probe == nil {
		return 0
	}
	seconds, err := r.probe.Duration(ctx, input)
	if err != nil {
		log.Debug("duration probe failed, progress will report current time only", zap.Error(err))
		return 0
	}
	return seconds
}
