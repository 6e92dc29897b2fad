package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"whisper-desk/internal/domain"
)

const (
	metadataFileName = "metadata.json"
	filesDirName     = "files"
)

// Store persists job records and the global history index.
//
// Directory layout:
//
//	<results>/<job_id>/metadata.json
//	<results>/<job_id>/files/result.<format>
//	<data_root>/history.json
//
// The per-job metadata file is authoritative; history.json is a cache of all
// records that RebuildIndex can regenerate.
type Store struct {
	paths  domain.Paths
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	// indexMu serializes read-modify-write cycles on history.json.
	indexMu sync.Mutex
	// jobMu serializes read-modify-write cycles on one job's metadata.
	jobMu jobLocks
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides job id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewStore creates a store rooted at paths.
func NewStore(paths domain.Paths, opts ...Option) *Store {
	s := &Store{
		paths:  paths,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Paths returns the store layout.
func (s *Store) Paths() domain.Paths {
	return s.paths
}

// JobDir is the directory holding a job's metadata and output files.
func (s *Store) JobDir(jobID string) string {
	return filepath.Join(s.paths.ResultsDir, jobID)
}

// FilesDir is the directory holding a job's result files.
func (s *Store) FilesDir(jobID string) string {
	return filepath.Join(s.JobDir(jobID), filesDirName)
}

// MetadataPath is the authoritative record file for a job.
func (s *Store) MetadataPath(jobID string) string {
	return filepath.Join(s.JobDir(jobID), metadataFileName)
}

// ResultPath is the canonical location of a job's output in format.
func (s *Store) ResultPath(jobID, format string) string {
	return filepath.Join(s.FilesDir(jobID), "result."+format)
}

// Now returns the store clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

// CreateJob allocates a new id, creates the job directories and persists a
// Running record to both the metadata file and the index.
func (s *Store) CreateJob(fileName, filePath, model string, options map[string]string) (*domain.JobRecord, error) {
	id := s.newID()
	if err := os.MkdirAll(s.FilesDir(id), 0o755); err != nil {
		return nil, domain.NewJobError("create", id, domain.ErrIO, fmt.Errorf("create job dir: %w", err))
	}

	rec := domain.NewJobRecord(id, fileName, filePath, model, options, s.now())
	if err := s.SaveJob(&rec); err != nil {
		return nil, err
	}

	s.logger.Debug("job created", zap.String("job_id", id), zap.String("model", model))
	return &rec, nil
}

// LoadJob reads and validates the metadata file of one job.
func (s *Store) LoadJob(jobID string) (*domain.JobRecord, error) {
	if err := checkJobID(jobID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.MetadataPath(jobID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.NewJobError("load", jobID, domain.ErrNotFound, nil)
		}
		return nil, domain.NewJobError("load", jobID, domain.ErrIO, err)
	}

	if err := validateMetadata(data); err != nil {
		return nil, domain.NewJobError("load", jobID, domain.ErrSerialization, err)
	}

	var rec domain.JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, domain.NewJobError("load", jobID, domain.ErrSerialization, err)
	}
	return &rec, nil
}

// SaveJob atomically writes the metadata file and upserts the index entry.
func (s *Store) SaveJob(rec *domain.JobRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: job record is nil", domain.ErrInvalidInput)
	}
	if err := checkJobID(rec.ID); err != nil {
		return err
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}

	jobDir := s.JobDir(rec.ID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return domain.NewJobError("save", rec.ID, domain.ErrIO, fmt.Errorf("create job dir: %w", err))
	}
	if err := writeJSONAtomic(s.MetadataPath(rec.ID), rec); err != nil {
		return domain.NewJobError("save", rec.ID, domain.ErrIO, err)
	}

	return s.updateIndex(func(records []domain.JobRecord) []domain.JobRecord {
		for i := range records {
			if records[i].ID == rec.ID {
				records[i] = *rec
				return records
			}
		}
		return append(records, *rec)
	})
}

// DeleteJob removes the job directory and its index entry. A missing
// directory is not an error.
func (s *Store) DeleteJob(jobID string) error {
	if err := checkJobID(jobID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.JobDir(jobID)); err != nil {
		return domain.NewJobError("delete", jobID, domain.ErrIO, err)
	}

	return s.updateIndex(func(records []domain.JobRecord) []domain.JobRecord {
		return lo.Reject(records, func(r domain.JobRecord, _ int) bool { return r.ID == jobID })
	})
}

// MarkCompleted loads, completes and persists a job record.
func (s *Store) MarkCompleted(jobID string) (*domain.JobRecord, error) {
	return s.mutate(jobID, func(rec *domain.JobRecord) error {
		rec.MarkCompleted(s.now())
		return nil
	})
}

// MarkFailed loads, fails and persists a job record.
func (s *Store) MarkFailed(jobID, message string) (*domain.JobRecord, error) {
	return s.mutate(jobID, func(rec *domain.JobRecord) error {
		rec.MarkFailed(message, s.now())
		return nil
	})
}

// UpdateTags replaces the tag set. Tags are trimmed and deduplicated.
func (s *Store) UpdateTags(jobID string, tags []string) (*domain.JobRecord, error) {
	return s.mutate(jobID, func(rec *domain.JobRecord) error {
		rec.Tags = NormalizeTags(tags)
		return nil
	})
}

// UpdateNotes sets or clears the free-text notes.
func (s *Store) UpdateNotes(jobID string, notes *string) (*domain.JobRecord, error) {
	return s.mutate(jobID, func(rec *domain.JobRecord) error {
		rec.Notes = nil
		if notes != nil {
			if trimmed := strings.TrimSpace(*notes); trimmed != "" {
				rec.Notes = &trimmed
			}
		}
		return nil
	})
}

// LoadIndex returns every record in history.json. A missing index is empty.
func (s *Store) LoadIndex() ([]domain.JobRecord, error) {
	data, err := os.ReadFile(s.paths.IndexFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.JobRecord{}, nil
		}
		return nil, domain.NewJobError("load index", "", domain.ErrIO, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return []domain.JobRecord{}, nil
	}

	var records []domain.JobRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, domain.NewJobError("load index", "", domain.ErrSerialization, err)
	}
	if records == nil {
		records = []domain.JobRecord{}
	}
	return records, nil
}

// ListHistory applies query to the index.
func (s *Store) ListHistory(query domain.JobQuery) (domain.JobListResponse, error) {
	records, err := s.LoadIndex()
	if err != nil {
		return domain.JobListResponse{}, err
	}
	return ApplyQuery(records, query), nil
}

// ResultFilePath returns the result file of jobID in format, failing with
// ErrNotFound when it does not exist.
func (s *Store) ResultFilePath(jobID, format string) (string, error) {
	if err := checkJobID(jobID); err != nil {
		return "", err
	}
	format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	if !validFormatName(format) {
		return "", &domain.ValidationError{Field: "format", Message: fmt.Sprintf("invalid format %q", format)}
	}

	path := s.ResultPath(jobID, format)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.NewJobError("result", jobID, domain.ErrNotFound, fmt.Errorf("no %s result", format))
		}
		return "", domain.NewJobError("result", jobID, domain.ErrIO, err)
	}
	if info.IsDir() {
		return "", domain.NewJobError("result", jobID, domain.ErrNotFound, fmt.Errorf("no %s result", format))
	}
	return path, nil
}

// RebuildIndex regenerates history.json from the per-job metadata files.
// Unreadable records are skipped. It returns the number of indexed jobs.
func (s *Store) RebuildIndex() (int, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	records, err := s.scanMetadata()
	if err != nil {
		return 0, err
	}
	if err := writeJSONAtomic(s.paths.IndexFile, records); err != nil {
		return 0, domain.NewJobError("rebuild index", "", domain.ErrIO, err)
	}
	s.logger.Info("history index rebuilt", zap.Int("jobs", len(records)))
	return len(records), nil
}

// RecoverInterrupted fails Running records for which isActive reports false.
// It is meant to run at startup, before any job is submitted.
func (s *Store) RecoverInterrupted(isActive func(jobID string) bool) ([]string, error) {
	records, err := s.LoadIndex()
	if err != nil {
		return nil, err
	}

	var recovered []string
	for _, rec := range records {
		if rec.Status != domain.JobStatusRunning || (isActive != nil && isActive(rec.ID)) {
			continue
		}
		if _, err := s.MarkFailed(rec.ID, "interrupted: the application exited before the job finished"); err != nil {
			s.logger.Warn("recover interrupted job", zap.String("job_id", rec.ID), zap.Error(err))
			continue
		}
		recovered = append(recovered, rec.ID)
	}
	return recovered, nil
}

// mutate runs load, fn and save for jobID while holding the job's lock, so
// concurrent updates of one record are not lost.
func (s *Store) mutate(jobID string, fn func(*domain.JobRecord) error) (*domain.JobRecord, error) {
	if err := checkJobID(jobID); err != nil {
		return nil, err
	}
	unlock := s.jobMu.lock(jobID)
	defer unlock()

	rec, err := s.LoadJob(jobID)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := s.SaveJob(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) updateIndex(fn func([]domain.JobRecord) []domain.JobRecord) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	records, err := s.LoadIndex()
	if errors.Is(err, domain.ErrSerialization) {
		s.logger.Warn("history index unreadable, rebuilding from metadata", zap.Error(err))
		records, err = s.scanMetadata()
	}
	if err != nil {
		return err
	}

	if err := writeJSONAtomic(s.paths.IndexFile, fn(records)); err != nil {
		return domain.NewJobError("save index", "", domain.ErrIO, err)
	}
	return nil
}

func (s *Store) scanMetadata() ([]domain.JobRecord, error) {
	entries, err := os.ReadDir(s.paths.ResultsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.JobRecord{}, nil
		}
		return nil, domain.NewJobError("scan results", "", domain.ErrIO, err)
	}

	out := make([]domain.JobRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := s.LoadJob(entry.Name())
		if err != nil {
			s.logger.Warn("skip unreadable job", zap.String("job_id", entry.Name()), zap.Error(err))
			continue
		}
		out = append(out, *rec)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	b = append(b, '\n')
	return WriteFileAtomic(path, bytes.NewReader(b))
}

func checkJobID(jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return &domain.ValidationError{Field: "job_id", Message: "is required"}
	}
	if jobID == "." || jobID == ".." || strings.ContainsAny(jobID, `/\`) {
		return &domain.ValidationError{Field: "job_id", Message: fmt.Sprintf("invalid job id %q", jobID)}
	}
	return nil
}

func validFormatName(format string) bool {
	if format == "" {
		return false
	}
	for _, r := range format {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// NormalizeTags trims, drops empty and deduplicates tags, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	trimmed := lo.FilterMap(tags, func(t string, _ int) (string, bool) {
		t = strings.TrimSpace(t)
		return t, t != ""
	})
	return lo.Uniq(trimmed)
}
