package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/sync.defaults.json"

// EnvPrefix prefixes environment overrides, e.g. VSYNC_THRESHOLD_FACTOR.
const EnvPrefix = "VSYNC"

// SyncConfig is the on-disk run configuration. Every field is optional;
// unset fields fall back to the defaults returned by the Get* methods.
type SyncConfig struct {
	// Segmentation
	ThresholdFactor  *float64 `json:"threshold_factor,omitempty" yaml:"threshold_factor,omitempty" envconfig:"THRESHOLD_FACTOR"`
	MinSegmentLength *string  `json:"min_segment_length,omitempty" yaml:"min_segment_length,omitempty" envconfig:"MIN_SEGMENT_LENGTH"` // duration string like "2h"

	// Resampling grids
	FastStep *string `json:"fast_step,omitempty" yaml:"fast_step,omitempty" envconfig:"FAST_STEP"`
	SlowStep *string `json:"slow_step,omitempty" yaml:"slow_step,omitempty" envconfig:"SLOW_STEP"`

	// Execution
	Workers        *int    `json:"workers,omitempty" yaml:"workers,omitempty" envconfig:"WORKERS"`
	SegmentTimeout *string `json:"segment_timeout,omitempty" yaml:"segment_timeout,omitempty" envconfig:"SEGMENT_TIMEOUT"`

	// Inputs and outputs
	CatalogPath *string `json:"catalog_path,omitempty" yaml:"catalog_path,omitempty" envconfig:"CATALOG_PATH"`
	OutputDir   *string `json:"output_dir,omitempty" yaml:"output_dir,omitempty" envconfig:"OUTPUT_DIR"`
	DBPath      *string `json:"db_path,omitempty" yaml:"db_path,omitempty" envconfig:"DB_PATH"`
	MetricsPath *string `json:"metrics_path,omitempty" yaml:"metrics_path,omitempty" envconfig:"METRICS_PATH"`
	Report      *bool   `json:"report,omitempty" yaml:"report,omitempty" envconfig:"REPORT"`

	// Output shaping
	ApplyValidityRules *bool `json:"apply_validity_rules,omitempty" yaml:"apply_validity_rules,omitempty" envconfig:"APPLY_VALIDITY_RULES"`
	DisplayNames       *bool `json:"display_names,omitempty" yaml:"display_names,omitempty" envconfig:"DISPLAY_NAMES"`

	// Logging
	LogLevel  *string `json:"log_level,omitempty" yaml:"log_level,omitempty" envconfig:"LOG_LEVEL"`
	LogFormat *string `json:"log_format,omitempty" yaml:"log_format,omitempty" envconfig:"LOG_FORMAT"`
	LogFile   *string `json:"log_file,omitempty" yaml:"log_file,omitempty" envconfig:"LOG_FILE"`
}

// Params is the resolved, immutable configuration handed to the pipeline.
type Params struct {
	ThresholdFactor    float64
	MinSegmentLength   time.Duration
	FastStep           time.Duration
	SlowStep           time.Duration
	Workers            int
	SegmentTimeout     time.Duration
	CatalogPath        string
	OutputDir          string
	DBPath             string
	MetricsPath        string
	Report             bool
	ApplyValidityRules bool
	DisplayNames       bool
	LogLevel           string
	LogFormat          string
	LogFile            string
}

// EmptySyncConfig returns a SyncConfig with all fields unset.
func EmptySyncConfig() *SyncConfig {
	return &SyncConfig{}
}

// LoadSyncConfig reads a JSON or YAML config file. Fields omitted from the
// file keep their defaults, so partial configs are safe.
func LoadSyncConfig(path string) (*SyncConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySyncConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.UnmarshalStrict(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Load reads path (when non-empty), applies VSYNC_* environment overrides
// and validates the result.
func Load(path string) (*SyncConfig, error) {
	cfg := EmptySyncConfig()
	if path != "" {
		var err error
		if cfg, err = LoadSyncConfig(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from VSYNC_* environment variables. Variables
// that are not set leave the field untouched.
func (c *SyncConfig) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// Validate checks that set values are usable.
func (c *SyncConfig) Validate() error {
	if c.ThresholdFactor != nil {
		if *c.ThresholdFactor <= 0 || *c.ThresholdFactor >= 1 {
			return fmt.Errorf("threshold_factor must be in (0, 1), got %g", *c.ThresholdFactor)
		}
	}

	durations := []struct {
		name     string
		value    *string
		positive bool
	}{
		{"min_segment_length", c.MinSegmentLength, false},
		{"fast_step", c.FastStep, true},
		{"slow_step", c.SlowStep, true},
		{"segment_timeout", c.SegmentTimeout, false},
	}
	for _, d := range durations {
		if d.value == nil || *d.value == "" {
			continue
		}
		v, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
		}
		if v < 0 || (d.positive && v == 0) {
			return fmt.Errorf("%s must be positive, got %s", d.name, v)
		}
	}
	if c.GetSlowStep() < c.GetFastStep() {
		return fmt.Errorf("slow_step %s is finer than fast_step %s", c.GetSlowStep(), c.GetFastStep())
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	if c.LogLevel != nil {
		switch *c.LogLevel {
		case "", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("unknown log_level %q", *c.LogLevel)
		}
	}
	if c.LogFormat != nil {
		switch *c.LogFormat {
		case "", "text", "json":
		default:
			return fmt.Errorf("unknown log_format %q", *c.LogFormat)
		}
	}
	return nil
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func stringOr(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// GetThresholdFactor returns the gap tolerance as a fraction of nominal.
func (c *SyncConfig) GetThresholdFactor() float64 {
	if c.ThresholdFactor == nil {
		return 0.5 // default
	}
	return *c.ThresholdFactor
}

// GetMinSegmentLength returns the shortest segment kept.
func (c *SyncConfig) GetMinSegmentLength() time.Duration {
	return durationOr(c.MinSegmentLength, 2*time.Hour)
}

func (c *SyncConfig) GetFastStep() time.Duration { return durationOr(c.FastStep, 15*time.Second) }

func (c *SyncConfig) GetSlowStep() time.Duration { return durationOr(c.SlowStep, time.Hour) }

// GetWorkers returns the configured pool size; 0 means one per core less one.
func (c *SyncConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

func (c *SyncConfig) GetSegmentTimeout() time.Duration {
	return durationOr(c.SegmentTimeout, 5*time.Minute)
}

func (c *SyncConfig) GetCatalogPath() string { return stringOr(c.CatalogPath, "") }

func (c *SyncConfig) GetOutputDir() string { return stringOr(c.OutputDir, "synchronized") }

func (c *SyncConfig) GetDBPath() string { return stringOr(c.DBPath, "") }

func (c *SyncConfig) GetMetricsPath() string { return stringOr(c.MetricsPath, "") }

func (c *SyncConfig) GetReport() bool { return boolOr(c.Report, false) }

func (c *SyncConfig) GetApplyValidityRules() bool { return boolOr(c.ApplyValidityRules, false) }

func (c *SyncConfig) GetDisplayNames() bool { return boolOr(c.DisplayNames, false) }

func (c *SyncConfig) GetLogLevel() string { return stringOr(c.LogLevel, "info") }

func (c *SyncConfig) GetLogFormat() string { return stringOr(c.LogFormat, "text") }

func (c *SyncConfig) GetLogFile() string { return stringOr(c.LogFile, "") }

// Params resolves every field to its effective value.
func (c *SyncConfig) Params() Params {
	return Params{
		ThresholdFactor:    c.GetThresholdFactor(),
		MinSegmentLength:   c.GetMinSegmentLength(),
		FastStep:           c.GetFastStep(),
		SlowStep:           c.GetSlowStep(),
		Workers:            c.GetWorkers(),
		SegmentTimeout:     c.GetSegmentTimeout(),
		CatalogPath:        c.GetCatalogPath(),
		OutputDir:          c.GetOutputDir(),
		DBPath:             c.GetDBPath(),
		MetricsPath:        c.GetMetricsPath(),
		Report:             c.GetReport(),
		ApplyValidityRules: c.GetApplyValidityRules(),
		DisplayNames:       c.GetDisplayNames(),
		LogLevel:           c.GetLogLevel(),
		LogFormat:          c.GetLogFormat(),
		LogFile:            c.GetLogFile(),
	}
}

// DefaultParams returns the built-in defaults.
func DefaultParams() Params {
	return EmptySyncConfig().Params()
}
