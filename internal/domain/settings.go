package domain

import "path/filepath"

// Settings contains user-selectable defaults applied to new jobs.
type Settings struct {
	DefaultModel   string            `json:"default_model" yaml:"default_model"`
	Language       string            `json:"language" yaml:"language"`
	DefaultOptions map[string]string `json:"default_options,omitempty" yaml:"default_options,omitempty"`
}

// Paths is the on-disk layout rooted at the application data directory.
type Paths struct {
	DataRoot   string `json:"data_root"`
	ResultsDir string `json:"results_dir"`
	IndexFile  string `json:"index_file"`
	ModelsDir  string `json:"models_dir"`
	EngineRepo string `json:"engine_repo"`
}

// NewPaths derives the standard layout under dataRoot.
func NewPaths(dataRoot string) Paths {
	return Paths{
		DataRoot:   dataRoot,
		ResultsDir: filepath.Join(dataRoot, "results"),
		IndexFile:  filepath.Join(dataRoot, "history.json"),
		ModelsDir:  filepath.Join(dataRoot, "models"),
		EngineRepo: filepath.Join(dataRoot, "whisper.cpp"),
	}
}

// ModelFileName maps a model name to its on-disk file name.
func ModelFileName(name string) string {
	return "ggml-" + name + ".bin"
}
