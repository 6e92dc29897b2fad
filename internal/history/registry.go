package history

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"whisper-desk/internal/domain"
)

// KnownResultFormats are the output formats the engine can produce, in
// presentation order.
var KnownResultFormats = []string{"txt", "srt", "vtt", "csv", "json", "lrc", "wts"}

// ResultFile is an on-disk artifact waiting to be registered.
type ResultFile struct {
	Path   string
	Format string
}

// Registry records output artifacts against persisted jobs.
type Registry struct {
	store  *Store
	logger *zap.Logger
}

// NewRegistry creates a registry backed by store.
func NewRegistry(store *Store) *Registry {
	return &Registry{store: store, logger: store.logger}
}

// ResultFileDirectory is the directory that holds a job's metadata and outputs.
func (r *Registry) ResultFileDirectory(jobID string) string {
	return r.store.JobDir(jobID)
}

// OutputBase is the extension-less path handed to the engine so that its
// outputs land at files/result.<format>.
func (r *Registry) OutputBase(jobID string) string {
	return filepath.Join(r.store.FilesDir(jobID), "result")
}

// RegisterExistingResults appends one result entry per existing file and
// persists the record. Files outside the job's files directory are copied to
// files/result.<format> first. Missing or unreadable files are skipped; the
// call fails with ErrNotFound only when nothing could be registered.
func (r *Registry) RegisterExistingResults(jobID string, files []ResultFile) (*domain.JobRecord, error) {
	return r.store.mutate(jobID, func(rec *domain.JobRecord) error {
		registered := 0
		for _, f := range files {
			entry, err := r.register(jobID, f)
			if err != nil {
				r.logger.Warn("skip result file",
					zap.String("job_id", jobID),
					zap.String("path", f.Path),
					zap.Error(err))
				continue
			}
			rec.AddResult(entry)
			registered++
		}
		if registered == 0 {
			return domain.NewJobError("register results", jobID, domain.ErrNotFound, errors.New("none of the given files exist"))
		}
		return nil
	})
}

// Collect discovers result.<format> files the engine wrote for jobID.
func (r *Registry) Collect(jobID string) ([]ResultFile, error) {
	dir := r.store.FilesDir(jobID)
	matches, err := doublestar.Glob(os.DirFS(dir), "result.*")
	if err != nil {
		return nil, domain.NewJobError("collect", jobID, domain.ErrIO, err)
	}

	order := make(map[string]int, len(KnownResultFormats))
	for i, f := range KnownResultFormats {
		order[f] = i
	}

	out := make([]ResultFile, 0, len(matches))
	for _, m := range matches {
		format := strings.TrimPrefix(path.Ext(m), ".")
		if _, ok := order[format]; !ok {
			continue
		}
		out = append(out, ResultFile{Path: filepath.Join(dir, filepath.FromSlash(m)), Format: format})
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i].Format] < order[out[j].Format] })
	return out, nil
}

func (r *Registry) register(jobID string, f ResultFile) (domain.ResultEntry, error) {
	format := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(f.Format)), ".")
	if !validFormatName(format) {
		return domain.ResultEntry{}, fmt.Errorf("invalid format %q", f.Format)
	}

	info, err := os.Stat(f.Path)
	if err != nil {
		return domain.ResultEntry{}, err
	}
	if info.IsDir() {
		return domain.ResultEntry{}, fmt.Errorf("%s is a directory", f.Path)
	}

	target := r.store.ResultPath(jobID, format)
	if !samePath(f.Path, target) {
		if err := copyFile(f.Path, target); err != nil {
			return domain.ResultEntry{}, fmt.Errorf("copy into job dir: %w", err)
		}
		if info, err = os.Stat(target); err != nil {
			return domain.ResultEntry{}, err
		}
	}

	return domain.ResultEntry{
		FilePath:  target,
		Format:    format,
		FileSize:  info.Size(),
		CreatedAt: domain.FormatTimestamp(r.store.now()),
	}, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return WriteFileAtomic(dst, in)
}
