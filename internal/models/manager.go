package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"whisper-desk/internal/domain"
)

const (
	defaultDownloadTimeout = 30 * time.Minute
	progressInterval       = 250 * time.Millisecond
	userAgent              = "whisper-desk"
)

// DownloadProgress reports bytes received for one model download. Total is
// zero when the server sent no Content-Length.
type DownloadProgress struct {
	Model      string  `json:"model"`
	Downloaded int64   `json:"downloaded"`
	Total      int64   `json:"total"`
	Fraction   float64 `json:"fraction"`
	Done       bool    `json:"done"`
}

// Manager lists, downloads and deletes model files in one directory.
type Manager struct {
	dir     string
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
	every   rate.Limit
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient replaces the download client.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.client = client
		}
	}
}

// WithTimeout bounds a single download.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithProgressInterval sets the minimum spacing of progress callbacks.
func WithProgressInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d <= 0 {
			m.every = rate.Inf
			return
		}
		m.every = rate.Every(d)
	}
}

// NewManager creates a model manager rooted at dir that downloads from
// baseURL.
func NewManager(dir, baseURL string, opts ...Option) *Manager {
	m := &Manager{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultDownloadTimeout,
		client:  http.DefaultClient,
		logger:  zap.NewNop(),
		every:   rate.Every(progressInterval),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("models")
	return m
}

// Dir is the models directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Path maps a model name to its file.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, domain.ModelFileName(name))
}

// Catalog returns the known presets with their download state filled in.
func (m *Manager) Catalog() []domain.WhisperModelOption {
	models := catalog(m.baseURL)
	for i := range models {
		info, err := os.Stat(filepath.Join(m.dir, models[i].FileName))
		if err != nil || info.IsDir() {
			continue
		}
		models[i].Downloaded = true
		models[i].LocalPath = filepath.Join(m.dir, models[i].FileName)
		models[i].SizeBytes = info.Size()
	}
	return models
}

// ListDownloaded returns the names of every ggml model file present,
// including ones outside the catalog.
func (m *Manager) ListDownloaded() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(m.dir), "ggml-*.bin")
	if err != nil {
		return nil, fmt.Errorf("%w: list models: %v", domain.ErrIO, err)
	}
	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(match, "ggml-"), ".bin"))
	}
	sort.Strings(names)
	return names, nil
}

// Download fetches the named catalog model into the models directory.
// onProgress may be nil; calls are throttled except for the final one.
func (m *Manager) Download(ctx context.Context, name string, onProgress func(DownloadProgress)) (string, error) {
	model, ok := lookup(m.baseURL, strings.TrimSpace(name))
	if !ok {
		return "", fmt.Errorf("%w: unknown model %q", domain.ErrModelNotFound, name)
	}
	target := filepath.Join(m.dir, model.FileName)
	log := m.logger.With(zap.String("model", model.ID))
	log.Info("downloading model", zap.String("url", model.URL))

	report := func(DownloadProgress) {}
	if onProgress != nil {
		limiter := rate.NewLimiter(m.every, 1)
		report = func(p DownloadProgress) {
			if p.Done || limiter.Allow() {
				onProgress(p)
			}
		}
	}

	size, err := m.downloadToFile(ctx, target, model.URL, func(done, total int64) {
		report(progressOf(model.ID, done, total, false))
	})
	if err != nil {
		log.Warn("model download failed", zap.Error(err))
		return "", fmt.Errorf("download model %s: %w", model.Name, err)
	}
	report(progressOf(model.ID, size, size, true))
	log.Info("model downloaded", zap.String("path", target), zap.Int64("bytes", size))
	return target, nil
}

// Delete removes a downloaded model file.
func (m *Manager) Delete(name string) error {
	path := m.Path(strings.TrimSpace(name))
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrModelNotFound, name)
		}
		return fmt.Errorf("%w: delete model: %v", domain.ErrIO, err)
	}
	return nil
}

func progressOf(model string, done, total int64, finished bool) DownloadProgress {
	p := DownloadProgress{Model: model, Downloaded: done, Total: total, Done: finished}
	if total > 0 {
		p.Fraction = float64(done) / float64(total)
	}
	return p
}

func (m *Manager) downloadToFile(ctx context.Context, destinationPath, sourceURL string, onChunk func(done, total int64)) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return 0, fmt.Errorf("prepare destination directory: %w", err)
	}

	tmpPath := destinationPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove stale temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	written, copyErr := io.Copy(file, &countingReader{r: resp.Body, total: resp.ContentLength, onChunk: onChunk})
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("write download: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("close temp file: %w", closeErr)
	}
	if written == 0 {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("downloaded file is empty")
	}

	if err := os.Rename(tmpPath, destinationPath); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("move downloaded file: %w", err)
	}
	return written, nil
}

type countingReader struct {
	r       io.Reader
	done    int64
	total   int64
	onChunk func(done, total int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.done += int64(n)
		c.onChunk(c.done, max(c.total, 0))
	}
	return n, err
}
