package domain

import (
	"strings"
	"time"
)

// JobStatus is the lifecycle state of one persisted transcription job.
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusIdle, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// TimestampLayout is fixed-width so stored timestamps sort lexicographically.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts any RFC 3339 timestamp, including TimestampLayout.
func ParseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
}

// ResultEntry is one registered output artifact of a job.
type ResultEntry struct {
	FilePath  string `json:"file_path"`
	Format    string `json:"format"`
	FileSize  int64  `json:"file_size"`
	CreatedAt string `json:"created_at"`
}

// JobRecord is the persisted description of one transcription run.
type JobRecord struct {
	ID               string            `json:"id"`
	OriginalFileName string            `json:"original_file_name"`
	OriginalFilePath string            `json:"original_file_path"`
	ModelUsed        string            `json:"model_used"`
	OptionsUsed      map[string]string `json:"options_used"`
	Results          []ResultEntry     `json:"results"`
	Status           JobStatus         `json:"status"`
	CreatedAt        string            `json:"created_at"`
	CompletedAt      *string           `json:"completed_at,omitempty"`
	DurationSeconds  *float64          `json:"duration_seconds,omitempty"`
	Tags             []string          `json:"tags"`
	Notes            *string           `json:"notes,omitempty"`
	ErrorMessage     *string           `json:"error_message,omitempty"`
}

// NewJobRecord builds a Running record with empty results and tags.
func NewJobRecord(id, fileName, filePath, model string, options map[string]string, now time.Time) JobRecord {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[k] = v
	}

	return JobRecord{
		ID:               id,
		OriginalFileName: fileName,
		OriginalFilePath: filePath,
		ModelUsed:        model,
		OptionsUsed:      opts,
		Results:          []ResultEntry{},
		Status:           JobStatusRunning,
		CreatedAt:        FormatTimestamp(now),
		Tags:             []string{},
	}
}

// AddResult appends one artifact entry. Existing entries are never edited,
// so registering a file again records a second entry for it.
func (r *JobRecord) AddResult(entry ResultEntry) {
	r.Results = append(r.Results, entry)
}

// MarkCompleted moves the record to Completed and clears any error message.
func (r *JobRecord) MarkCompleted(now time.Time) {
	r.finish(JobStatusCompleted, now)
	r.ErrorMessage = nil
}

// MarkFailed moves the record to Failed with a human-readable reason.
func (r *JobRecord) MarkFailed(message string, now time.Time) {
	r.finish(JobStatusFailed, now)
	msg := message
	r.ErrorMessage = &msg
}

func (r *JobRecord) finish(status JobStatus, now time.Time) {
	completed := FormatTimestamp(now)
	r.Status = status
	r.CompletedAt = &completed
	r.DurationSeconds = nil

	// An unparseable created_at leaves the duration absent.
	created, err := ParseTimestamp(r.CreatedAt)
	if err != nil {
		return
	}
	secs := now.Sub(created).Seconds()
	if secs < 0 {
		secs = 0
	}
	r.DurationSeconds = &secs
}

// Formats returns the distinct result formats in registration order.
func (r JobRecord) Formats() []string {
	seen := make(map[string]struct{}, len(r.Results))
	out := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		if _, ok := seen[res.Format]; ok {
			continue
		}
		seen[res.Format] = struct{}{}
		out = append(out, res.Format)
	}
	return out
}

// HasFormat reports whether any result entry has the given format.
func (r JobRecord) HasFormat(format string) bool {
	for _, res := range r.Results {
		if res.Format == format {
			return true
		}
	}
	return false
}

// HasTag reports whether tag is present.
func (r JobRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TranscriptionConfig is the caller's request to start one job.
type TranscriptionConfig struct {
	InputFile string            `json:"input_file" validate:"required"`
	Model     string            `json:"model" validate:"required,excludesall=/\\"`
	Options   map[string]string `json:"options,omitempty" validate:"omitempty,dive,keys,required,endkeys"`
}

// Validate checks required fields.
func (c TranscriptionConfig) Validate() error {
	return ValidateStruct(c)
}

// ProgressInfo is a progress estimate derived from one engine output line.
type ProgressInfo struct {
	Progress    float64  `json:"progress"`
	CurrentTime *float64 `json:"current_time,omitempty"`
	Message     string   `json:"message,omitempty"`
}
