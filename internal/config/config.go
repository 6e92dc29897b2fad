package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"whisper-desk/internal/domain"
)

// EnvPrefix namespaces environment overrides, e.g. WHISPERDESK_SERVER_PORT.
const EnvPrefix = "WHISPERDESK"

// Config is the fully resolved process configuration.
type Config struct {
	DataRoot  string        `mapstructure:"data_root"`
	ModelsDir string        `mapstructure:"models_dir"`
	Engine    EngineConfig  `mapstructure:"engine"`
	Server    ServerConfig  `mapstructure:"server"`
	Logging   LoggingConfig `mapstructure:"logging"`
	Events    EventsConfig  `mapstructure:"events"`
	Models    ModelsConfig  `mapstructure:"models"`
	Archive   ArchiveConfig `mapstructure:"archive"`
}

// EngineConfig locates and builds the whisper.cpp engine.
type EngineConfig struct {
	RepoDir       string   `mapstructure:"repo_dir"`
	RepoURL       string   `mapstructure:"repo_url"`
	Candidates    []string `mapstructure:"candidates"`
	DefaultFormat string   `mapstructure:"default_format"`
	FFprobePath   string   `mapstructure:"ffprobe_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// EventsConfig bounds the in-memory event history.
type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

// ModelsConfig configures model downloads.
type ModelsConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

// ArchiveConfig configures optional S3 export of finished jobs.
type ArchiveConfig struct {
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// Enabled reports whether a bucket is configured.
func (a ArchiveConfig) Enabled() bool {
	return strings.TrimSpace(a.Bucket) != ""
}

// Paths returns the on-disk layout, honoring directory overrides.
func (c *Config) Paths() domain.Paths {
	paths := domain.NewPaths(c.DataRoot)
	if c.ModelsDir != "" {
		paths.ModelsDir = c.ModelsDir
	}
	if c.Engine.RepoDir != "" {
		paths.EngineRepo = c.Engine.RepoDir
	}
	return paths
}

// SettingsPath is the user settings file under the data root.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataRoot, "settings.yaml")
}

type loadOptions struct {
	file      string
	overrides map[string]any
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithFile reads configuration from an explicit file. A missing explicit file is an error.
func WithFile(path string) LoadOption {
	return func(o *loadOptions) { o.file = path }
}

// WithOverride sets one dotted key above every other source.
func WithOverride(key string, value any) LoadOption {
	return func(o *loadOptions) {
		if o.overrides == nil {
			o.overrides = make(map[string]any)
		}
		o.overrides[key] = value
	}
}

// Load resolves configuration from defaults, config file, environment and
// overrides, in increasing precedence.
func Load(opts ...LoadOption) (*Config, error) {
	var lo loadOptions
	for _, opt := range opts {
		opt(&lo)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range lo.overrides {
		v.Set(key, value)
	}

	if lo.file != "" {
		v.SetConfigFile(lo.file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", lo.file, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(expandHome(v.GetString("data_root")))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataRoot) == "" {
		return &domain.ValidationError{Field: "data_root", Message: "must not be empty"}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &domain.ValidationError{Field: "server.port", Message: fmt.Sprintf("out of range: %d", c.Server.Port)}
	}
	if len(c.Engine.Candidates) == 0 {
		return &domain.ValidationError{Field: "engine.candidates", Message: "at least one candidate is required"}
	}
	return nil
}

func (c *Config) normalize() {
	c.DataRoot = filepath.Clean(expandHome(c.DataRoot))
	c.ModelsDir = expandHome(c.ModelsDir)
	c.Engine.RepoDir = expandHome(c.Engine.RepoDir)
	c.Engine.DefaultFormat = strings.TrimPrefix(strings.TrimSpace(c.Engine.DefaultFormat), "output-")
	if c.Engine.DefaultFormat == "" {
		c.Engine.DefaultFormat = "srt"
	}
	if c.Events.BufferSize <= 0 {
		c.Events.BufferSize = 1000
	}
	c.Models.BaseURL = strings.TrimRight(c.Models.BaseURL, "/")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
