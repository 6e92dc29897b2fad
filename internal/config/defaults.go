package config

import (
	"github.com/spf13/viper"

	"whisper-desk/internal/domain"
)

// DefaultEngineCandidates are probed in order under the engine repo.
var DefaultEngineCandidates = []string{
	"build/bin/whisper-cli",
	"build/whisper-cli",
	"build/bin/main",
	"build/main",
}

// DefaultModelBaseURL hosts the official ggml model files.
const DefaultModelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_root", "~/.whisper-desk")
	// Empty directory overrides derive from data_root.
	v.SetDefault("models_dir", "")

	v.SetDefault("engine.repo_dir", "")
	v.SetDefault("engine.repo_url", "https://github.com/ggerganov/whisper.cpp.git")
	v.SetDefault("engine.candidates", DefaultEngineCandidates)
	v.SetDefault("engine.default_format", "srt")
	v.SetDefault("engine.ffprobe_path", "ffprobe")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("events.buffer_size", 1000)

	v.SetDefault("models.base_url", DefaultModelBaseURL)
	v.SetDefault("models.download_timeout", "30m")

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "whisper-desk")
	v.SetDefault("archive.region", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.profile", "")
	v.SetDefault("archive.force_path_style", false)
	v.SetDefault("archive.access_key_id", "")
	v.SetDefault("archive.secret_access_key", "")
}

// DefaultSettings returns baseline user settings for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		DefaultModel:   "base",
		Language:       "auto",
		DefaultOptions: map[string]string{},
	}
}
