package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/labelflow/internal/job"
	"github.com/Iron-Ham/labelflow/internal/logging"
	"github.com/Iron-Ham/labelflow/internal/savequeue"
	"github.com/Iron-Ham/labelflow/internal/workflow"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. LABELFLOW_GIRDER_TOKEN for girder.token.
const EnvPrefix = "LABELFLOW"

// Store backends
const (
	BackendGirder = "girder"
	BackendLocal  = "local"
)

// Config represents the complete labelflow configuration
type Config struct {
	Girder      GirderConfig     `mapstructure:"girder"`
	Store       StoreConfig      `mapstructure:"store"`
	Folder      FolderConfig     `mapstructure:"folder"`
	Job         JobConfig        `mapstructure:"job"`
	Annotations AnnotationConfig `mapstructure:"annotations"`
	Save        SaveConfig       `mapstructure:"save"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

// GirderConfig controls the connection to the data server
type GirderConfig struct {
	// APIURL is the REST root, e.g. https://example.org/api/v1
	APIURL string `mapstructure:"api_url"`
	// Token is sent as the Girder-Token header. Empty means anonymous.
	Token string `mapstructure:"token"`
	// TimeoutSeconds bounds each HTTP request (0 = no timeout)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// StoreConfig selects where annotations, items, jobs and folder
// configuration documents are read from
type StoreConfig struct {
	// Backend is "girder" or "local"
	Backend string `mapstructure:"backend"`
	// LocalDir is the root of the local store (backend "local").
	// Supports ~ for home directory expansion.
	LocalDir string `mapstructure:"local_dir"`
}

// FolderConfig names the training data folder
type FolderConfig struct {
	ID string `mapstructure:"id"`
}

// JobConfig controls the superpixel classification job
type JobConfig struct {
	// URL is the job endpoint relative to slicer_cli_web
	URL string `mapstructure:"url"`
	// Type is the job type and image reference (image:version#cli)
	Type string `mapstructure:"type"`
	// PollIntervalMs is how often a running job is polled
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// AnnotationConfig controls which annotations take part in the workflow
type AnnotationConfig struct {
	// ValidPattern selects workflow annotations by name (glob)
	ValidPattern string `mapstructure:"valid_pattern"`
	// PredictionsPattern additionally marks an annotation as predictions (glob)
	PredictionsPattern string `mapstructure:"predictions_pattern"`
}

// SaveConfig controls label saving
type SaveConfig struct {
	// Concurrency bounds parallel saves within one flush
	Concurrency int `mapstructure:"concurrency"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where labelflow.log is written (default: {ConfigDir}/logs)
	Dir string `mapstructure:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files
	Compress bool `mapstructure:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	rotation := logging.DefaultRotationConfig()
	return &Config{
		Girder: GirderConfig{
			TimeoutSeconds: 0, // No timeout by default
		},
		Store: StoreConfig{
			Backend: BackendGirder,
		},
		Job: JobConfig{
			URL:            job.DefaultURL,
			Type:           job.DefaultType,
			PollIntervalMs: int(job.DefaultPollInterval / time.Millisecond),
		},
		Annotations: AnnotationConfig{
			ValidPattern:       workflow.DefaultValidPattern,
			PredictionsPattern: workflow.DefaultPredictionsPattern,
		},
		Save: SaveConfig{
			Concurrency: savequeue.DefaultConcurrency,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  rotation.MaxSizeMB,
			MaxBackups: rotation.MaxBackups,
			Compress:   rotation.Compress,
		},
	}
}

// PollInterval returns the job poll interval as a time.Duration
func (c *JobConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Timeout returns the request timeout as a time.Duration (0 means none)
func (c *GirderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Rotation returns the log rotation settings
func (c *LoggingConfig) Rotation() logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
	}
}

// ResolveDir returns the log directory with ~ expanded.
// An empty Dir resolves to {ConfigDir}/logs.
func (c *LoggingConfig) ResolveDir() string {
	if c.Dir == "" {
		return filepath.Join(ConfigDir(), "logs")
	}
	return expandHome(c.Dir)
}

// ResolveLocalDir returns the local store root with ~ expanded.
// An empty LocalDir resolves to {ConfigDir}/store.
func (s *StoreConfig) ResolveLocalDir() string {
	if s.LocalDir == "" {
		return filepath.Join(ConfigDir(), "store")
	}
	return expandHome(s.LocalDir)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Girder defaults
	viper.SetDefault("girder.api_url", defaults.Girder.APIURL)
	viper.SetDefault("girder.token", defaults.Girder.Token)
	viper.SetDefault("girder.timeout_seconds", defaults.Girder.TimeoutSeconds)

	// Store defaults
	viper.SetDefault("store.backend", defaults.Store.Backend)
	viper.SetDefault("store.local_dir", defaults.Store.LocalDir)

	viper.SetDefault("folder.id", defaults.Folder.ID)

	// Job defaults
	viper.SetDefault("job.url", defaults.Job.URL)
	viper.SetDefault("job.type", defaults.Job.Type)
	viper.SetDefault("job.poll_interval_ms", defaults.Job.PollIntervalMs)

	// Annotation defaults
	viper.SetDefault("annotations.valid_pattern", defaults.Annotations.ValidPattern)
	viper.SetDefault("annotations.predictions_pattern", defaults.Annotations.PredictionsPattern)

	viper.SetDefault("save.concurrency", defaults.Save.Concurrency)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// BindEnv makes every key overridable through LABELFLOW_* variables
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "labelflow")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".labelflow"
	}
	return filepath.Join(home, ".config", "labelflow")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidBackends returns the list of valid store backends
func ValidBackends() []string {
	return []string{BackendGirder, BackendLocal}
}
