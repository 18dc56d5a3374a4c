package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/Iron-Ham/labelflow/internal/job"
	"github.com/Iron-Ham/labelflow/internal/workflow"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "job.poll_interval_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Bounds
const (
	minPollIntervalMs  = 100
	maxPollIntervalMs  = 10 * 60 * 1000
	maxSaveConcurrency = 64
	maxLogSizeMB       = 1000
)

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateGirder()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateJob()...)
	errors = append(errors, c.validateAnnotations()...)
	errors = append(errors, c.validateSave()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateGirder validates the GirderConfig
func (c *Config) validateGirder() []ValidationError {
	var errors []ValidationError

	if c.Girder.APIURL != "" {
		u, err := url.Parse(c.Girder.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "girder.api_url",
				Value:   c.Girder.APIURL,
				Message: "must be an absolute http or https URL",
			})
		}
	}

	if c.Girder.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "girder.timeout_seconds",
			Value:   c.Girder.TimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateStore validates the StoreConfig
func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidBackends(), c.Store.Backend) {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Value:   c.Store.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}

	return errors
}

// validateJob validates the JobConfig
func (c *Config) validateJob() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Job.URL) == "" {
		errors = append(errors, ValidationError{
			Field:   "job.url",
			Value:   c.Job.URL,
			Message: "must not be empty",
		})
	}

	if _, err := job.ParseImageRef(c.Job.Type); err != nil {
		errors = append(errors, ValidationError{
			Field:   "job.type",
			Value:   c.Job.Type,
			Message: "must have the form image:version#cli",
		})
	}

	if c.Job.PollIntervalMs < minPollIntervalMs || c.Job.PollIntervalMs > maxPollIntervalMs {
		errors = append(errors, ValidationError{
			Field:   "job.poll_interval_ms",
			Value:   c.Job.PollIntervalMs,
			Message: fmt.Sprintf("must be between %d and %d", minPollIntervalMs, maxPollIntervalMs),
		})
	}

	return errors
}

// validateAnnotations validates the glob patterns
func (c *Config) validateAnnotations() []ValidationError {
	var errors []ValidationError

	for _, p := range []struct {
		field, pattern string
	}{
		{"annotations.valid_pattern", c.Annotations.ValidPattern},
		{"annotations.predictions_pattern", c.Annotations.PredictionsPattern},
	} {
		if p.pattern == "" {
			continue
		}
		if _, err := workflow.NewSelector(p.pattern, ""); err != nil {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Value:   p.pattern,
				Message: "invalid glob pattern",
			})
		}
	}

	return errors
}

// validateSave validates the SaveConfig
func (c *Config) validateSave() []ValidationError {
	var errors []ValidationError

	if c.Save.Concurrency < 1 || c.Save.Concurrency > maxSaveConcurrency {
		errors = append(errors, ValidationError{
			Field:   "save.concurrency",
			Value:   c.Save.Concurrency,
			Message: fmt.Sprintf("must be between 1 and %d", maxSaveConcurrency),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}

	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
