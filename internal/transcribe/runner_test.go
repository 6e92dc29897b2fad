package transcribe

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper-desk/internal/domain"
	"whisper-desk/internal/history"
	"whisper-desk/internal/jobs"
)

// fakeProcess replays canned output.
type fakeProcess struct {
	stdout  io.Reader
	stderr  io.Reader
	waitErr error
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }
func (p *fakeProcess) Stderr() io.Reader { return p.stderr }
func (p *fakeProcess) Wait() error       { return p.waitErr }

// fakeLauncher simulates the engine; onStart may write output files.
type fakeLauncher struct {
	mu       sync.Mutex
	stdout   string
	stderr   string
	waitErr  error
	startErr error
	onStart  func(args []string)
	gotName  string
	gotArgs  []string
}

func (f *fakeLauncher) Start(_ context.Context, name string, args ...string) (process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotName = name
	f.gotArgs = append([]string(nil), args...)
	if f.startErr != nil {
		return nil, f.startErr
	}
	if f.onStart != nil {
		f.onStart(args)
	}
	return &fakeProcess{
		stdout:  strings.NewReader(f.stdout),
		stderr:  strings.NewReader(f.stderr),
		waitErr: f.waitErr,
	}, nil
}

type staticLocator struct {
	path string
	err  error
}

type staticProbe float64

func (p staticProbe) Duration(context.Context, string) (float64, error) { return float64(p), nil }

type harness struct {
	runner  *Runner
	store   *history.Store
	events  *jobs.EventBus
	models  string
	input   string
	launch  *fakeLauncher
	locator staticLocator
}

func newHarness(t *testing.T, launch *fakeLauncher) *harness {
	t.Helper()
	root := t.TempDir()
	paths := domain.NewPaths(filepath.Join(root, "data"))
	require.NoError(t, os.MkdirAll(paths.ModelsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(paths.ModelsDir, "ggml-base.bin"), []byte("model"), 0o644))
	input := filepath.Join(root, "meeting.wav")
	require.NoError(t, os.WriteFile(input, []byte("RIFF"), 0o644))

	store := history.NewStore(paths)
	events := jobs.NewEventBus(1000)
	h := &harness{
		store:   store,
		events:  events,
		models:  paths.ModelsDir,
		input:   input,
		launch:  launch,
		locator: staticLocator{path: "/opt/whisper/build/bin/whisper-cli"},
	}
	h.runner = NewRunnerForTests(Dependencies{
		Store:         store,
		Registry:      history.NewRegistry(store),
		Locator:       &h.locator,
		Events:        events,
		Tracker:       jobs.NewTracker(),
		Probe:         staticProbe(60),
		ModelsDir:     paths.ModelsDir,
		DefaultFormat: "srt",
	}, launch)
	return h
}

func (l *staticLocator) Resolve() (string, error) { return l.path, l.err }

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func writeOutputs(t *testing.T, files map[string]string) func(args []string) {
	return func(args []string) {
		base := argValue(args, "-of")
		for ext, content := range files {
			assert.NoError(t, os.WriteFile(base+"."+ext, []byte(content), 0o644))
		}
	}
}

func waitRecord(t *testing.T, h *harness, jobID string) *domain.JobRecord {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := h.runner.Wait(ctx, jobID)
	require.NoError(t, err)
	h.runner.Drain()
	return rec
}

// TestSubmitSuccessRegistersResults verifies the happy path end to end.
func TestSubmitSuccessRegistersResults(t *testing.T) {
	launch := &fakeLauncher{
		stdout: "[00:00:00.000 --> 00:00:30.000]  hello\n[00:00:30.000 --> 00:00:45.000]  world\n",
		stderr: "whisper_init_from_file_with_params_no_state: loading model\nwhisper_print_timings: total time = 1.0 ms\n",
		onStart: writeOutputs(t, map[string]string{"srt": strings.Repeat("s", 120)}),
	}
	h := newHarness(t, launch)

	jobID, err := h.runner.Submit(context.Background(), domain.TranscriptionConfig{
		InputFile: h.input,
		Model:     "base",
		Options:   map[string]string{"language": "en"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	rec := waitRecord(t, h, jobID)
	assert.Equal(t, domain.JobStatusCompleted, rec.Status)
	require.Len(t, rec.Results, 1)
	assert.Equal(t, "srt", rec.Results[0].Format)
	assert.Equal(t, int64(120), rec.Results[0].FileSize)
	require.NotNil(t, rec.DurationSeconds)
	assert.GreaterOrEqual(t, *rec.DurationSeconds, 0.0)
	assert.Equal(t, "meeting.wav", rec.OriginalFileName)
	assert.Equal(t, map[string]string{"language": "en"}, rec.OptionsUsed)

	assert.Equal(t, "/opt/whisper/build/bin/whisper-cli", launch.gotName)
	assert.Equal(t, filepath.Join(h.models, "ggml-base.bin"), argValue(launch.gotArgs, "-m"))
	assert.Equal(t, h.input, argValue(launch.gotArgs, "-f"))
	assert.Contains(t, launch.gotArgs, "--output-srt")

	events := h.events.SinceForJob(jobID, 0)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, jobs.EventTypeComplete, last.Type)

	var progress []float64
	for _, ev := range events[:len(events)-1] {
		assert.False(t, ev.Type.IsTerminal())
		if ev.Type == jobs.EventTypeProgress {
			progress = append(progress, ev.Progress.Progress)
		}
		if ev.Type == jobs.EventTypeLog && strings.Contains(ev.Message, "whisper_print_timings") {
			assert.Equal(t, jobs.StreamStderr, ev.Stream)
		}
	}
	assert.Equal(t, []float64{0.5, 0.75}, progress)
}

// TestSubmitNonZeroExitFailsJob verifies process exit failures are recorded.
func TestSubmitNonZeroExitFailsJob(t *testing.T) {
	launch := &fakeLauncher{
		stderr:  "error: failed to read audio\n",
		waitErr: &ProcessError{Phase: PhaseExit, Message: "engine exited with code 1", ExitCode: 1},
	}
	h := newHarness(t, launch)

	jobID, err := h.runner.Submit(context.Background(), domain.TranscriptionConfig{InputFile: h.input, Model: "base"})
	require.NoError(t, err)

	rec := waitRecord(t, h, jobID)
	assert.Equal(t, domain.JobStatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "code 1")
	assert.Empty(t, rec.Results)

	events := h.events.SinceForJob(jobID, 0)
	last := events[len(events)-1]
	assert.Equal(t, jobs.EventTypeError, last.Type)
	assert.Equal(t, *rec.ErrorMessage, last.Message)
}

// TestSubmitNoOutputsFailsJob verifies a clean exit with nothing written fails.
func TestSubmitNoOutputsFailsJob(t *testing.T) {
	h := newHarness(t, &fakeLauncher{stdout: "done\n"})

	jobID, err := h.runner.Submit(context.Background(), domain.TranscriptionConfig{InputFile: h.input, Model: "base"})
	require.NoError(t, err)

	rec := waitRecord(t, h, jobID)
	assert.Equal(t, domain.JobStatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "no result files")
}

// TestSubmitMissingModelCreatesNoRecord verifies the model check runs first.
func TestSubmitMissingModelCreatesNoRecord(t *testing.T) {
	launch := &fakeLauncher{}
	h := newHarness(t, launch)

	jobID, err := h.runner.Submit(context.Background(), domain.TranscriptionConfig{InputFile: h.input, Model: "large-v3"})
	require.ErrorIs(t, err, domain.ErrModelNotFound)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, jobID)

	index, err := h.store.LoadIndex()
	require.NoError(t, err)
	assert.Empty(t, index)
	assert.Empty(t, launch.gotName)
}

// TestSubmitEngineMissingFailsRecord verifies the record is failed before returning.
func TestSubmitEngineMissingFailsRecord(t *testing.T) {
	h := newHarness(t, &fakeLauncher{})
	h.locator.err = errors.New("whisper engine executable not found: checked build/main")
	h.locator.path = ""

	jobID, err := h.runner.Submit(context.Background(), domain.TranscriptionConfig{InputFile: h.input, Model: "base"})
	require.ErrorIs(t, err, domain.ErrEngineNotFound)
	require.NotEmpty(t, jobID)

	rec, err := h.store.LoadJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "not found")
}

// TestSubmitLaunchFailureFailsRecord verifies launch errors are recorded.
func TestSubmitLaunchFailureFailsRecord(t *testing.T) {
	h := newHarness(t, &fakeLauncher{startErr: errors.New("permission denied")})

	jobID, err := h.runner.Submit(context.Background(), domain.TranscriptionConfig{InputFile: h.input, Model: "base"})
	require.NoError(t, err)

	rec := waitRecord(t, h, jobID)
	assert.Equal(t, domain.JobStatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "failed to launch engine")
}

// TestSubmitRejectsInvalidConfig verifies validation precedes any side effect.
func TestSubmitRejectsInvalidConfig(t *testing.T) {
	h := newHarness(t, &fakeLauncher{})

	_, err := h.runner.Submit(context.Background(), domain.TranscriptionConfig{Model: "base"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

// TestSubmitConcurrentJobsGetDistinctRecords verifies jobs do not interfere.
func TestSubmitConcurrentJobsGetDistinctRecords(t *testing.T) {
	launch := &fakeLauncher{onStart: writeOutputs(t, map[string]string{"txt": "hi", "srt": "1"})}
	h := newHarness(t, launch)

	first, err := h.runner.Submit(context.Background(), domain.TranscriptionConfig{InputFile: h.input, Model: "base"})
	require.NoError(t, err)
	second, err := h.runner.Submit(context.Background(), domain.TranscriptionConfig{InputFile: h.input, Model: "base"})
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	for _, id := range []string{first, second} {
		rec := waitRecord(t, h, id)
		assert.Equal(t, domain.JobStatusCompleted, rec.Status)
		assert.Equal(t, []string{"txt", "srt"}, rec.Formats())
	}
}

// TestProcessErrorClassification verifies errors.Is on process failures.
func TestProcessErrorClassification(t *testing.T) {
	cause := errors.New("boom")
	err := error(&ProcessError{Phase: PhaseWait, Message: "waiting failed", Err: cause})

	assert.ErrorIs(t, err, domain.ErrProcess)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "waiting failed: boom", err.Error())
	assert.Equal(t, "engine exited with code 3 (exit=3)", exitError(&ProcessError{Phase: PhaseExit, Message: "engine exited with code 3", ExitCode: 3}).Error())
}
