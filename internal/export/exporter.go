package export

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"whisper-desk/internal/domain"
	"whisper-desk/internal/history"
)

// Exporter converts a job's plain-text result into another format and
// registers the produced file on the job.
type Exporter struct {
	store    *history.Store
	registry *history.Registry
	logger   *zap.Logger
}

// NewExporter builds an exporter over the job store.
func NewExporter(store *history.Store, registry *history.Registry, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{store: store, registry: registry, logger: logger.Named("export")}
}

// ExportJob converts the txt result of jobID to format and returns the
// updated record.
func (e *Exporter) ExportJob(jobID, format string) (*domain.JobRecord, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "txt" {
		return nil, &domain.ValidationError{Field: "format", Message: "txt is the export source"}
	}

	source, err := e.store.ResultFilePath(jobID, "txt")
	if err != nil {
		return nil, err
	}
	text, err := os.ReadFile(source)
	if err != nil {
		return nil, domain.NewJobError("export", jobID, domain.ErrIO, err)
	}

	converted, err := Convert(string(text), format)
	if err != nil {
		return nil, err
	}

	target := e.store.ResultPath(jobID, format)
	if err := history.WriteFileAtomic(target, strings.NewReader(converted)); err != nil {
		return nil, domain.NewJobError("export", jobID, domain.ErrIO, err)
	}

	rec, err := e.registry.RegisterExistingResults(jobID, []history.ResultFile{{Path: target, Format: format}})
	if err != nil {
		return nil, err
	}
	e.logger.Info("result exported", zap.String("job_id", jobID), zap.String("format", format))
	return rec, nil
}
