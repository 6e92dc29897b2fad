// Package bootstrap wires configuration, storage, the runner and the
// collaborators behind the operations exposed to the CLI, HTTP API and
// desktop shell.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"strings"
	"sync"

	"go.uber.org/zap"

	"whisper-desk/internal/archive"
	"whisper-desk/internal/config"
	"whisper-desk/internal/diagnostics"
	"whisper-desk/internal/domain"
	"whisper-desk/internal/engine"
	"whisper-desk/internal/export"
	"whisper-desk/internal/history"
	"whisper-desk/internal/jobs"
	"whisper-desk/internal/models"
	"whisper-desk/internal/transcribe"
)

// Event stream keys for work that is not a transcription job.
const (
	ModelDownloadStream = "model-download:"
	EngineInstallStream = "engine-install"
)

// jobArchiver uploads a finished job to object storage.
type jobArchiver interface {
	UploadJob(ctx context.Context, rec *domain.JobRecord, metadataPath string) (*archive.Uploaded, error)
}

// App is the composition root shared by every front end.
type App struct {
	ctx    context.Context
	cfg    *config.Config
	logger *zap.Logger

	Settings  config.SettingsStore
	Store     *history.Store
	Registry  *history.Registry
	Runner    *transcribe.Runner
	Events    *jobs.EventBus
	Tracker   *jobs.Tracker
	Locator   *engine.Locator
	Installer *engine.Installer
	Models    *models.Manager
	Exporter  *export.Exporter

	checker     *diagnostics.Checker
	newArchiver func(ctx context.Context) (jobArchiver, error)
	assets      fs.FS

	mu          sync.Mutex
	diagnostics domain.DiagnosticReport
	archiver    jobArchiver
	runtimeCtx  context.Context
	stopForward func()
}

// Option customizes App construction.
type Option func(*App)

// WithAssets serves embedded frontend assets in the desktop shell.
func WithAssets(assets fs.FS) Option {
	return func(a *App) { a.assets = assets }
}

// WithSettingsStore replaces the YAML settings file.
func WithSettingsStore(store config.SettingsStore) Option {
	return func(a *App) { a.Settings = store }
}

// WithRunner replaces the transcription runner.
func WithRunner(runner *transcribe.Runner) Option {
	return func(a *App) { a.Runner = runner }
}

// WithChecker replaces the diagnostics checker.
func WithChecker(checker *diagnostics.Checker) Option {
	return func(a *App) { a.checker = checker }
}

// WithArchiver replaces the S3 uploader.
func WithArchiver(archiver jobArchiver) Option {
	return func(a *App) {
		a.newArchiver = func(context.Context) (jobArchiver, error) { return archiver, nil }
	}
}

// New builds the application from resolved configuration. ctx bounds
// long-running operations such as downloads and engine builds.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	paths := cfg.Paths()

	store := history.NewStore(paths, history.WithLogger(logger))
	registry := history.NewRegistry(store)
	events := jobs.NewEventBus(cfg.Events.BufferSize)
	tracker := jobs.NewTracker()
	locator := engine.NewLocator(paths.EngineRepo, cfg.Engine.Candidates)

	a := &App{
		ctx:       ctx,
		cfg:       cfg,
		logger:    logger,
		Settings:  config.NewYAMLStore(cfg.SettingsPath()),
		Store:     store,
		Registry:  registry,
		Events:    events,
		Tracker:   tracker,
		Locator:   locator,
		Installer: engine.NewInstaller(paths.EngineRepo, cfg.Engine.RepoURL, locator, logger.Named("installer")),
		Models: models.NewManager(paths.ModelsDir, cfg.Models.BaseURL,
			models.WithTimeout(cfg.Models.DownloadTimeout),
			models.WithLogger(logger)),
		Exporter: export.NewExporter(store, registry, logger),
		checker:  diagnostics.NewChecker(),
	}
	a.newArchiver = a.s3Archiver

	for _, opt := range opts {
		opt(a)
	}

	if a.Runner == nil {
		a.Runner = transcribe.NewRunner(transcribe.Dependencies{
			Store:         store,
			Registry:      registry,
			Locator:       locator,
			Events:        events,
			Tracker:       tracker,
			Probe:         engine.NewProber(cfg.Engine.FFprobePath),
			ModelsDir:     paths.ModelsDir,
			DefaultFormat: cfg.Engine.DefaultFormat,
			Logger:        logger,
		})
	} else {
		a.Events = a.Runner.Events()
		a.Tracker = a.Runner.Tracker()
	}

	if _, err := a.RefreshDiagnostics(); err != nil {
		return nil, err
	}
	return a, nil
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// GetSettings loads the persisted user settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Settings.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.NormalizeSettings(settings)
	if err := a.Settings.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// StartTranscription applies the saved defaults to cfg and submits it.
// Explicit options win over defaults.
func (a *App) StartTranscription(cfg domain.TranscriptionConfig) (string, error) {
	settings, err := a.GetSettings()
	if err != nil {
		return "", err
	}
	return a.Runner.Submit(a.ctx, applyDefaults(cfg, settings))
}

func applyDefaults(cfg domain.TranscriptionConfig, settings domain.Settings) domain.TranscriptionConfig {
	cfg.InputFile = strings.TrimSpace(cfg.InputFile)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = settings.DefaultModel
	}

	options := make(map[string]string, len(settings.DefaultOptions)+len(cfg.Options)+1)
	maps.Copy(options, settings.DefaultOptions)
	if settings.Language != "" {
		if _, ok := options["language"]; !ok {
			options["language"] = settings.Language
		}
	}
	maps.Copy(options, cfg.Options)
	cfg.Options = options
	return cfg
}

// WaitForJob blocks until jobID finishes and returns its record.
func (a *App) WaitForJob(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	return a.Runner.Wait(ctx, jobID)
}

// ListHistory queries the job index.
func (a *App) ListHistory(query domain.JobQuery) (domain.JobListResponse, error) {
	return a.Store.ListHistory(query)
}

// GetHistory loads one job record.
func (a *App) GetHistory(jobID string) (*domain.JobRecord, error) {
	return a.Store.LoadJob(jobID)
}

// DeleteHistory removes a finished job and its files.
func (a *App) DeleteHistory(jobID string) error {
	if a.Tracker.IsRunning(jobID) {
		return &domain.ValidationError{Field: "job_id", Message: "job is still running"}
	}
	if err := a.Store.DeleteJob(jobID); err != nil {
		return err
	}
	a.Tracker.Forget(jobID)
	return nil
}

// UpdateTags replaces the tags of a job.
func (a *App) UpdateTags(jobID string, tags []string) (*domain.JobRecord, error) {
	return a.Store.UpdateTags(jobID, tags)
}

// UpdateNotes replaces the notes of a job; nil or blank clears them.
func (a *App) UpdateNotes(jobID string, notes *string) (*domain.JobRecord, error) {
	return a.Store.UpdateNotes(jobID, notes)
}

// GetResultFilePath returns the path of one result file.
func (a *App) GetResultFilePath(jobID, format string) (string, error) {
	return a.Store.ResultFilePath(jobID, format)
}

// ExportResult converts the plain-text result of a job to format.
func (a *App) ExportResult(jobID, format string) (*domain.JobRecord, error) {
	return a.Exporter.ExportJob(jobID, format)
}

// RebuildIndex regenerates the history index from job metadata.
func (a *App) RebuildIndex() (int, error) {
	return a.Store.RebuildIndex()
}

// RecoverInterrupted fails records left Running by a previous process.
func (a *App) RecoverInterrupted() ([]string, error) {
	recovered, err := a.Store.RecoverInterrupted(a.Tracker.IsRunning)
	if err != nil {
		return nil, err
	}
	if len(recovered) > 0 {
		a.logger.Warn("recovered interrupted jobs", zap.Strings("job_ids", recovered))
	}
	return recovered, nil
}

// JobEvents returns buffered events after since, optionally for one job.
func (a *App) JobEvents(jobID string, since int64) []jobs.Event {
	var out []jobs.Event
	if jobID == "" {
		out = a.Events.Since(since)
	} else {
		out = a.Events.SinceForJob(jobID, since)
	}
	if out == nil {
		out = []jobs.Event{}
	}
	return out
}

// SubscribeEvents registers a live event listener.
func (a *App) SubscribeEvents() (<-chan jobs.Event, func()) {
	return a.Events.Subscribe()
}

// GetWhisperModels returns the model catalog with download state.
func (a *App) GetWhisperModels() []domain.WhisperModelOption {
	return a.Models.Catalog()
}

// DownloadModel fetches a catalog model, reporting progress on the event bus,
// and makes it the default when none is downloaded yet.
func (a *App) DownloadModel(name string) (string, error) {
	path, err := a.Models.Download(a.ctx, name, func(p models.DownloadProgress) {
		a.Events.Publish(jobs.Event{
			JobID:    ModelDownloadStream + p.Model,
			Type:     jobs.EventTypeProgress,
			Message:  "Downloading model " + p.Model,
			Progress: &domain.ProgressInfo{Progress: p.Fraction, Message: "Downloading model " + p.Model},
		})
	})
	if err != nil {
		return "", err
	}
	a.refreshDiagnostics()
	return path, nil
}

// DeleteModel removes a downloaded model.
func (a *App) DeleteModel(name string) error {
	if err := a.Models.Delete(name); err != nil {
		return err
	}
	a.refreshDiagnostics()
	return nil
}

// InstallEngine clones and builds whisper.cpp, streaming build output as log
// events.
func (a *App) InstallEngine() (string, error) {
	path, err := a.Installer.Install(a.ctx, func(line string) {
		a.Events.Publish(jobs.Event{JobID: EngineInstallStream, Type: jobs.EventTypeLog, Message: line})
	})
	a.refreshDiagnostics()
	return path, err
}

// EngineOptions lists the options the installed engine accepts.
func (a *App) EngineOptions() []domain.EngineOption {
	return a.Locator.Options(a.ctx)
}

// ArchiveJob uploads a job's metadata and results to the configured bucket.
func (a *App) ArchiveJob(jobID string) (*archive.Uploaded, error) {
	rec, err := a.Store.LoadJob(jobID)
	if err != nil {
		return nil, err
	}
	if !rec.Status.IsTerminal() {
		return nil, &domain.ValidationError{Field: "job_id", Message: "job has not finished"}
	}

	archiver, err := a.jobArchiver()
	if err != nil {
		return nil, err
	}
	return archiver.UploadJob(a.ctx, rec, a.Store.MetadataPath(jobID))
}

func (a *App) jobArchiver() (jobArchiver, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.archiver != nil {
		return a.archiver, nil
	}
	archiver, err := a.newArchiver(a.ctx)
	if err != nil {
		return nil, err
	}
	a.archiver = archiver
	return archiver, nil
}

func (a *App) s3Archiver(ctx context.Context) (jobArchiver, error) {
	c := a.cfg.Archive
	if !c.Enabled() {
		return nil, &domain.ValidationError{Field: "archive.bucket", Message: "no archive bucket is configured"}
	}
	return archive.NewS3Uploader(ctx, archive.Config{
		Bucket:          c.Bucket,
		Prefix:          c.Prefix,
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		Profile:         c.Profile,
		ForcePathStyle:  c.ForcePathStyle,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
	}, a.logger)
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.diagnostics
}

// RefreshDiagnostics reloads settings and reruns environment checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.GetSettings()
	if err != nil {
		return domain.DiagnosticReport{}, err
	}
	return a.refreshDiagnosticsFromSettings(settings), nil
}

func (a *App) refreshDiagnostics() {
	if _, err := a.RefreshDiagnostics(); err != nil {
		a.logger.Warn("refresh diagnostics", zap.Error(err))
	}
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	report := a.checker.Run(diagnostics.Target{
		Paths:         a.cfg.Paths(),
		FFprobePath:   a.cfg.Engine.FFprobePath,
		DefaultModel:  settings.DefaultModel,
		ResolveEngine: a.Locator.Resolve,
	})

	a.mu.Lock()
	a.diagnostics = report
	a.mu.Unlock()
	return report
}

// Close waits for running jobs to be finalized.
func (a *App) Close() {
	a.mu.Lock()
	stop := a.stopForward
	a.stopForward = nil
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
	a.Runner.Drain()
}

// errNoRuntime is returned by desktop-only operations outside the shell.
var errNoRuntime = errors.New("runtime context is not initialized")
