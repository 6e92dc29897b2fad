package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper-desk/internal/archive"
	"whisper-desk/internal/config"
	"whisper-desk/internal/domain"
	"whisper-desk/internal/jobs"
)

// fakeSettings returns deterministic settings for App tests.
type fakeSettings struct {
	settings domain.Settings
	saved    []domain.Settings
}

func (s *fakeSettings) Load() (domain.Settings, error) { return s.settings, nil }

func (s *fakeSettings) Save(settings domain.Settings) error {
	s.saved = append(s.saved, settings)
	s.settings = settings
	return nil
}

type fakeArchiver struct {
	got *domain.JobRecord
}

func (f *fakeArchiver) UploadJob(_ context.Context, rec *domain.JobRecord, metadataPath string) (*archive.Uploaded, error) {
	f.got = rec
	return &archive.Uploaded{JobID: rec.ID, Bucket: "test", Keys: []string{filepath.Base(metadataPath)}}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataRoot: t.TempDir(),
		Engine: config.EngineConfig{
			Candidates:    []string{"build/bin/whisper-cli"},
			DefaultFormat: "srt",
			FFprobePath:   "ffprobe-not-installed",
		},
		Events: config.EventsConfig{BufferSize: 100},
		Models: config.ModelsConfig{BaseURL: "http://127.0.0.1:1"},
	}
}

func newTestApp(t *testing.T, opts ...Option) (*App, *fakeSettings) {
	t.Helper()
	settings := &fakeSettings{settings: config.DefaultSettings()}
	app, err := New(context.Background(), testConfig(t), nil, append([]Option{WithSettingsStore(settings)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app, settings
}

func installModel(t *testing.T, app *App, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(app.Models.Dir(), 0o755))
	require.NoError(t, os.WriteFile(app.Models.Path(name), []byte("model"), 0o644))
}

// TestApplyDefaults verifies saved settings fill gaps without overriding explicit values.
func TestApplyDefaults(t *testing.T) {
	settings := domain.Settings{
		DefaultModel:   "small",
		Language:       "de",
		DefaultOptions: map[string]string{"threads": "4", "output-txt": "true"},
	}

	got := applyDefaults(domain.TranscriptionConfig{InputFile: " /in/a.wav "}, settings)
	assert.Equal(t, "/in/a.wav", got.InputFile)
	assert.Equal(t, "small", got.Model)
	assert.Equal(t, map[string]string{"threads": "4", "output-txt": "true", "language": "de"}, got.Options)

	got = applyDefaults(domain.TranscriptionConfig{
		InputFile: "/in/a.wav",
		Model:     "base",
		Options:   map[string]string{"language": "en", "threads": "8"},
	}, settings)
	assert.Equal(t, "base", got.Model)
	assert.Equal(t, "en", got.Options["language"])
	assert.Equal(t, "8", got.Options["threads"])
	assert.Equal(t, "4", settings.DefaultOptions["threads"])
}

// TestStartTranscriptionMissingModel verifies no record is created.
func TestStartTranscriptionMissingModel(t *testing.T) {
	app, _ := newTestApp(t)

	_, err := app.StartTranscription(domain.TranscriptionConfig{InputFile: "/in/a.wav"})
	require.ErrorIs(t, err, domain.ErrModelNotFound)

	page, err := app.ListHistory(domain.JobQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount)
}

// TestStartTranscriptionWithoutEngine verifies the failed record is kept and announced.
func TestStartTranscriptionWithoutEngine(t *testing.T) {
	app, _ := newTestApp(t)
	installModel(t, app, "base")

	jobID, err := app.StartTranscription(domain.TranscriptionConfig{InputFile: "/in/a.wav"})
	require.ErrorIs(t, err, domain.ErrEngineNotFound)
	require.NotEmpty(t, jobID)

	rec, err := app.GetHistory(jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, rec.Status)
	assert.Equal(t, "base", rec.ModelUsed)
	assert.Equal(t, "auto", rec.OptionsUsed["language"])

	events := app.JobEvents(jobID, 0)
	require.NotEmpty(t, events)
	assert.Equal(t, jobs.EventTypeError, events[len(events)-1].Type)
}

// TestHistoryOperations verifies tags, notes, deletion and reindexing through the app.
func TestHistoryOperations(t *testing.T) {
	app, _ := newTestApp(t)
	rec, err := app.Store.CreateJob("a.wav", "/in/a.wav", "base", nil)
	require.NoError(t, err)
	_, err = app.Store.MarkCompleted(rec.ID)
	require.NoError(t, err)

	updated, err := app.UpdateTags(rec.ID, []string{" work ", "work", "draft"})
	require.NoError(t, err)
	assert.Equal(t, []string{"work", "draft"}, updated.Tags)

	notes := "speaker names"
	updated, err = app.UpdateNotes(rec.ID, &notes)
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)

	count, err := app.RebuildIndex()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	page, err := app.ListHistory(domain.JobQuery{TagFilter: ptr("draft")})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount)

	require.NoError(t, app.DeleteHistory(rec.ID))
	_, err = app.GetHistory(rec.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// TestDeleteHistoryRefusesRunningJob verifies live jobs cannot be removed.
func TestDeleteHistoryRefusesRunningJob(t *testing.T) {
	app, _ := newTestApp(t)
	rec, err := app.Store.CreateJob("a.wav", "/in/a.wav", "base", nil)
	require.NoError(t, err)
	require.NoError(t, app.Tracker.Start(rec.ID))

	require.ErrorIs(t, app.DeleteHistory(rec.ID), domain.ErrInvalidInput)
	_, err = app.GetHistory(rec.ID)
	require.NoError(t, err)
}

// TestRecoverInterrupted verifies orphaned Running records are failed.
func TestRecoverInterrupted(t *testing.T) {
	app, _ := newTestApp(t)
	orphan, err := app.Store.CreateJob("a.wav", "/in/a.wav", "base", nil)
	require.NoError(t, err)
	live, err := app.Store.CreateJob("b.wav", "/in/b.wav", "base", nil)
	require.NoError(t, err)
	require.NoError(t, app.Tracker.Start(live.ID))

	recovered, err := app.RecoverInterrupted()
	require.NoError(t, err)
	assert.Equal(t, []string{orphan.ID}, recovered)

	rec, err := app.GetHistory(live.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, rec.Status)
}

// TestExportAndResultPath verifies export registration and lookup.
func TestExportAndResultPath(t *testing.T) {
	app, _ := newTestApp(t)
	rec, err := app.Store.CreateJob("a.wav", "/in/a.wav", "base", nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(app.Store.ResultPath(rec.ID, "txt"), []byte("hello\n"), 0o644))

	updated, err := app.ExportResult(rec.ID, "vtt")
	require.NoError(t, err)
	assert.True(t, updated.HasFormat("vtt"))

	path, err := app.GetResultFilePath(rec.ID, "vtt")
	require.NoError(t, err)
	assert.Equal(t, app.Store.ResultPath(rec.ID, "vtt"), path)
}

// TestArchiveJob verifies finished jobs are handed to the archiver.
func TestArchiveJob(t *testing.T) {
	archiver := &fakeArchiver{}
	app, _ := newTestApp(t, WithArchiver(archiver))
	rec, err := app.Store.CreateJob("a.wav", "/in/a.wav", "base", nil)
	require.NoError(t, err)

	_, err = app.ArchiveJob(rec.ID)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = app.Store.MarkFailed(rec.ID, "boom")
	require.NoError(t, err)
	out, err := app.ArchiveJob(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"metadata.json"}, out.Keys)
	assert.Equal(t, rec.ID, archiver.got.ID)
}

// TestArchiveJobWithoutBucket verifies the configuration error.
func TestArchiveJobWithoutBucket(t *testing.T) {
	app, _ := newTestApp(t)
	rec, err := app.Store.CreateJob("a.wav", "/in/a.wav", "base", nil)
	require.NoError(t, err)
	_, err = app.Store.MarkCompleted(rec.ID)
	require.NoError(t, err)

	_, err = app.ArchiveJob(rec.ID)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

// TestDiagnosticsTrackSettings verifies saving settings reruns the checks.
func TestDiagnosticsTrackSettings(t *testing.T) {
	app, settings := newTestApp(t)
	installModel(t, app, "small")

	report := app.GetDiagnostics()
	assert.True(t, report.HasFailures)
	assert.Equal(t, domain.DiagnosticStatusWarn, itemStatus(report, "default_model"))

	_, err := app.SaveSettings(domain.Settings{DefaultModel: "small"})
	require.NoError(t, err)
	require.Len(t, settings.saved, 1)
	assert.Equal(t, "auto", settings.saved[0].Language)
	assert.Equal(t, domain.DiagnosticStatusPass, itemStatus(app.GetDiagnostics(), "default_model"))
	assert.Equal(t, domain.DiagnosticStatusPass, itemStatus(app.GetDiagnostics(), "models"))
}

// TestFixDiagnosticUnknownItem verifies unsupported fixes are rejected.
func TestFixDiagnosticUnknownItem(t *testing.T) {
	app, _ := newTestApp(t)

	_, err := app.FixDiagnostic("tool_ffprobe")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

// TestDesktopOnlyOperationsNeedRuntime verifies dialogs fail outside the shell.
func TestDesktopOnlyOperationsNeedRuntime(t *testing.T) {
	app, _ := newTestApp(t)

	_, err := app.PickInputFile()
	require.ErrorIs(t, err, errNoRuntime)
}

func itemStatus(report domain.DiagnosticReport, id string) domain.DiagnosticStatus {
	for _, item := range report.Items {
		if item.ID == id {
			return item.Status
		}
	}
	return ""
}

func ptr[T any](v T) *T { return &v }
