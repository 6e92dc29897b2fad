package domain

import "time"

// WhisperModelOption describes one downloadable whisper.cpp model preset.
type WhisperModelOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FileName    string `json:"file_name"`
	URL         string `json:"url"`
	SizeLabel   string `json:"size_label,omitempty"`
	Description string `json:"description,omitempty"`
	Downloaded  bool   `json:"downloaded"`
	LocalPath   string `json:"local_path,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// EngineOption is one command-line option understood by the engine.
type EngineOption struct {
	Name           string   `json:"name"`
	ShortName      string   `json:"short_name,omitempty"`
	Description    string   `json:"description"`
	Type           string   `json:"type"`
	DefaultValue   string   `json:"default_value,omitempty"`
	PossibleValues []string `json:"possible_values,omitempty"`
}

// DiagnosticStatus indicates whether a single environment check passed.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusWarn DiagnosticStatus = "warn"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticItem is one check result with an optional remediation hint.
type DiagnosticItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
}

// DiagnosticReport aggregates environment checks.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	HasFailures bool             `json:"has_failures"`
	Items       []DiagnosticItem `json:"items"`
}
