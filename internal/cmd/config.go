package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/labelflow/internal/config"
	"github.com/Iron-Ham/labelflow/internal/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify labelflow configuration",
	Long: `View or modify labelflow configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  labelflow config set girder.api_url https://example.org/api/v1
  labelflow config set folder.id 5f3c0a
  labelflow config set job.poll_interval_ms 5000

Valid keys:
  girder.api_url            - REST root of the data server
  girder.token              - Girder-Token sent with each request
  girder.timeout_seconds    - Per-request timeout (0 for none)
  store.backend             - Options: girder, local
  store.local_dir           - Root of the local store
  folder.id                 - Training folder
  job.url                   - Classification job endpoint
  job.type                  - Classification job image (image:version#cli)
  job.poll_interval_ms      - How often a running job is polled
  annotations.valid_pattern - Glob selecting workflow annotations
  annotations.predictions_pattern - Glob marking prediction annotations
  save.concurrency          - Parallel label saves per batch
  logging.level             - Options: debug, info, warn, error
  logging.dir               - Log directory`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/labelflow/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// settableKeys maps each key accepted by config set to its value kind.
var settableKeys = map[string]string{
	"girder.api_url":                  "string",
	"girder.token":                    "string",
	"girder.timeout_seconds":          "int",
	"store.backend":                   "string",
	"store.local_dir":                 "string",
	"folder.id":                       "string",
	"job.url":                         "string",
	"job.type":                        "string",
	"job.poll_interval_ms":            "int",
	"annotations.valid_pattern":       "string",
	"annotations.predictions_pattern": "string",
	"save.concurrency":                "int",
	"logging.level":                   "string",
	"logging.dir":                     "string",
	"logging.max_size_mb":             "int",
	"logging.max_backups":             "int",
	"logging.compress":                "bool",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, titleStyle.Render("Current configuration"))
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n\n")
	}

	token := ""
	if cfg.Girder.Token != "" {
		token = "(set)"
	}
	fmt.Fprintln(out, "girder:")
	fmt.Fprintf(out, "  api_url: %s\n", cfg.Girder.APIURL)
	fmt.Fprintf(out, "  token: %s\n", token)
	fmt.Fprintf(out, "  timeout_seconds: %d\n", cfg.Girder.TimeoutSeconds)

	fmt.Fprintln(out, "store:")
	fmt.Fprintf(out, "  backend: %s\n", cfg.Store.Backend)
	fmt.Fprintf(out, "  local_dir: %s\n", cfg.Store.ResolveLocalDir())

	fmt.Fprintln(out, "folder:")
	fmt.Fprintf(out, "  id: %s\n", cfg.Folder.ID)

	fmt.Fprintln(out, "job:")
	fmt.Fprintf(out, "  url: %s\n", cfg.Job.URL)
	fmt.Fprintf(out, "  type: %s\n", cfg.Job.Type)
	fmt.Fprintf(out, "  poll_interval_ms: %d\n", cfg.Job.PollIntervalMs)

	fmt.Fprintln(out, "annotations:")
	fmt.Fprintf(out, "  valid_pattern: %s\n", cfg.Annotations.ValidPattern)
	fmt.Fprintf(out, "  predictions_pattern: %s\n", cfg.Annotations.PredictionsPattern)

	fmt.Fprintln(out, "save:")
	fmt.Fprintf(out, "  concurrency: %d\n", cfg.Save.Concurrency)

	fmt.Fprintln(out, "logging:")
	fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  dir: %s\n", cfg.Logging.ResolveDir())
	fmt.Fprintf(out, "  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Fprintf(out, "  max_backups: %d\n", cfg.Logging.MaxBackups)
	fmt.Fprintf(out, "  compress: %v\n", cfg.Logging.Compress)

	return nil
}

// parseSetting converts value to the kind of key and checks the values with a
// closed set of options.
func parseSetting(key, value string) (any, error) {
	kind, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'labelflow config set --help' to see valid keys", key)
	}

	switch kind {
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return n, nil
	}

	switch key {
	case "store.backend":
		if !slices.Contains(config.ValidBackends(), value) {
			return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidBackends(), ", "))
		}
	case "logging.level":
		if !slices.Contains(config.ValidLogLevels(), strings.ToLower(value)) {
			return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidLogLevels(), ", "))
		}
		value = strings.ToLower(value)
	}
	return value, nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value, err := parseSetting(key, args[1])
	if err != nil {
		return err
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set(key, value)

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	shown := value
	if key == "girder.token" {
		shown = "(set)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, shown)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)
	return nil
}

// defaultConfigFile is the commented template written by config init.
const defaultConfigFile = `# labelflow configuration

# Data server (Girder) connection
girder:
  # REST root, e.g. https://example.org/api/v1
  api_url: ""
  # Sent as the Girder-Token header; prefer LABELFLOW_GIRDER_TOKEN
  token: ""
  # Per-request timeout in seconds (0 = no timeout)
  timeout_seconds: 0

# Where annotations, items, jobs and folder configuration are stored
store:
  # Options: girder, local
  backend: girder
  # Root of the local store (default: ~/.config/labelflow/store)
  local_dir: ""

# Training folder
folder:
  id: ""

# Superpixel classification job
job:
  url: %s
  type: %s
  # How often a running job is polled, in milliseconds
  poll_interval_ms: %d

# Which annotations take part in the workflow (glob patterns)
annotations:
  valid_pattern: "%s"
  predictions_pattern: "%s"

save:
  # Parallel label saves per batch
  concurrency: %d

logging:
  # Options: debug, info, warn, error
  level: info
  # Log directory (default: ~/.config/labelflow/logs)
  dir: ""
  max_size_mb: %d
  max_backups: %d
  compress: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'labelflow config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	d := config.Default()
	content := fmt.Sprintf(defaultConfigFile,
		d.Job.URL, d.Job.Type, d.Job.PollIntervalMs,
		d.Annotations.ValidPattern, d.Annotations.PredictionsPattern,
		d.Save.Concurrency,
		d.Logging.MaxSizeMB, d.Logging.MaxBackups,
	)
	if err := os.WriteFile(configFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Set girder.api_url and folder.id to get started.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_GIRDER_TOKEN)\n", config.EnvPrefix, config.EnvPrefix)
	cfg := config.Get()
	fmt.Fprintf(out, "Log file: %s\n", filepath.Join(cfg.Logging.ResolveDir(), logging.LogFileName))
	return nil
}
