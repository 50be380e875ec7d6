// Package config handles configuration loading, validation, and management for dabflow.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete dabflow configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Stamper configures the primary dab emitter.
	Stamper StamperConfig `toml:"stamper" json:"stamper" yaml:"stamper"`

	// DualBrush configures the optional secondary brush pipeline.
	DualBrush DualBrushConfig `toml:"dual_brush" json:"dual_brush" yaml:"dual_brush"`

	// Speed configures the speed estimator.
	Speed SpeedConfig `toml:"speed" json:"speed" yaml:"speed"`

	// Smoothing configures pressure smoothing.
	Smoothing SmoothingConfig `toml:"smoothing" json:"smoothing" yaml:"smoothing"`

	// Dynamics configures dab size/opacity dynamics and the pipeline mode.
	Dynamics DynamicsConfig `toml:"dynamics" json:"dynamics" yaml:"dynamics"`

	// Render configures how dabs are composited.
	Render RenderConfig `toml:"render" json:"render" yaml:"render"`

	// Storage configures the diagnostics sink.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// StamperConfig holds dab emitter settings.
type StamperConfig struct {
	// SpacingPx is the brush spacing in pixels.
	SpacingPx float64 `toml:"spacing_px" json:"spacing_px" yaml:"spacing_px"`

	// MinMovementPx is the distance the pointer must travel from the first
	// dab before distance sampling starts.
	MinMovementPx float64 `toml:"min_movement_px" json:"min_movement_px" yaml:"min_movement_px"`

	// SmoothStart ramps dabs up to the first threshold crossing.
	SmoothStart bool `toml:"smooth_start" json:"smooth_start" yaml:"smooth_start"`

	// TimedSpacing emits dabs while the pointer is held still.
	TimedSpacing bool `toml:"timed_spacing" json:"timed_spacing" yaml:"timed_spacing"`

	// MaxIntervalMs is the time-channel interval when TimedSpacing is on.
	MaxIntervalMs float64 `toml:"max_interval_ms" json:"max_interval_ms" yaml:"max_interval_ms"`

	// BuildUp deposits a dab on every stationary sample.
	BuildUp bool `toml:"build_up" json:"build_up" yaml:"build_up"`

	// PressureCurve is "linear", "soft", "hard" or "s-curve".
	PressureCurve string `toml:"pressure_curve" json:"pressure_curve" yaml:"pressure_curve"`

	// LUTSize is the number of entries in the sampled pressure table.
	LUTSize int `toml:"lut_size" json:"lut_size" yaml:"lut_size"`
}

// DualBrushConfig holds secondary brush settings.
type DualBrushConfig struct {
	Enabled       bool    `toml:"enabled" json:"enabled" yaml:"enabled"`
	SpacingPx     float64 `toml:"spacing_px" json:"spacing_px" yaml:"spacing_px"`
	MinMovementPx float64 `toml:"min_movement_px" json:"min_movement_px" yaml:"min_movement_px"`
	SmoothStart   bool    `toml:"smooth_start" json:"smooth_start" yaml:"smooth_start"`
	PressureCurve string  `toml:"pressure_curve" json:"pressure_curve" yaml:"pressure_curve"`
}

// SpeedConfig holds speed estimator settings.
type SpeedConfig struct {
	// SmoothingSamples is the number of recent dt samples averaged.
	SmoothingSamples int `toml:"smoothing_samples" json:"smoothing_samples" yaml:"smoothing_samples"`

	// MaxSpeedPxMs normalizes speed for reporting.
	MaxSpeedPxMs float64 `toml:"max_speed_px_ms" json:"max_speed_px_ms" yaml:"max_speed_px_ms"`
}

// SmoothingConfig holds input smoothing settings.
type SmoothingConfig struct {
	// PressureWindow averages pressure over this many samples; below 2
	// disables pressure smoothing.
	PressureWindow int `toml:"pressure_window" json:"pressure_window" yaml:"pressure_window"`
}

// DynamicsConfig holds dab dynamics settings.
type DynamicsConfig struct {
	// Mode is "primary", "shadow" or "off".
	Mode string `toml:"mode" json:"mode" yaml:"mode"`

	SizePx         float64 `toml:"size_px" json:"size_px" yaml:"size_px"`
	MinSizeRatio   float64 `toml:"min_size_ratio" json:"min_size_ratio" yaml:"min_size_ratio"`
	SizeCurve      string  `toml:"size_curve" json:"size_curve" yaml:"size_curve"`
	OpacityCurve   string  `toml:"opacity_curve" json:"opacity_curve" yaml:"opacity_curve"`
	MinOpacity     float64 `toml:"min_opacity" json:"min_opacity" yaml:"min_opacity"`
	Flow           float64 `toml:"flow" json:"flow" yaml:"flow"`
	SizeJitter     float64 `toml:"size_jitter" json:"size_jitter" yaml:"size_jitter"`
	FadeLengthPx   float64 `toml:"fade_length_px" json:"fade_length_px" yaml:"fade_length_px"`
	FadeToMinRatio bool    `toml:"fade_to_min_ratio" json:"fade_to_min_ratio" yaml:"fade_to_min_ratio"`

	// Seed seeds the jitter generator so replays are reproducible.
	Seed uint64 `toml:"seed" json:"seed" yaml:"seed"`
}

// RenderConfig holds compositing settings.
type RenderConfig struct {
	// Blend is "normal", "multiply", "screen" or "erase".
	Blend string `toml:"blend" json:"blend" yaml:"blend"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Type is the storage backend type: "sqlite" or "memory".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the path to the database file (for sqlite).
	Path string `toml:"path" json:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is stdout, stderr or file.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output is file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int64 `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// AddSource includes source locations in records.
	AddSource bool `toml:"add_source" json:"add_source" yaml:"add_source"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Namespace string `toml:"namespace" json:"namespace" yaml:"namespace"`

	// Format is the dump format: prometheus or json.
	Format string `toml:"format" json:"format" yaml:"format"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Stamper: StamperConfig{
			SpacingPx:     4,
			MinMovementPx: 3,
			SmoothStart:   true,
			MaxIntervalMs: 16,
			PressureCurve: "linear",
			LUTSize:       256,
		},
		DualBrush: DualBrushConfig{
			SpacingPx:     8,
			MinMovementPx: 3,
			SmoothStart:   true,
			PressureCurve: "linear",
		},
		Speed: SpeedConfig{
			SmoothingSamples: 3,
			MaxSpeedPxMs:     10,
		},
		Smoothing: SmoothingConfig{
			PressureWindow: 3,
		},
		Dynamics: DynamicsConfig{
			Mode:         "primary",
			SizePx:       12,
			MinSizeRatio: 0.2,
			SizeCurve:    "linear",
			OpacityCurve: "linear",
			Flow:         1,
			Seed:         0x5eed,
		},
		Render: RenderConfig{
			Blend: "normal",
		},
		Storage: StorageConfig{
			Type: "sqlite",
			Path: filepath.Join(DabflowDir(), "diagnostics.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "dabflow.log"),
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "dabflow",
			Format:    "prometheus",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// DabflowDir returns the base data directory.
// Uses platform-specific paths or the DABFLOW_DATA_DIR environment override.
func DabflowDir() string {
	if envDir := os.Getenv("DABFLOW_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with DABFLOW_ and use underscores.
// Unparseable numeric or boolean values are ignored.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	envFloat("DABFLOW_STAMPER_SPACING_PX", &c.Stamper.SpacingPx)
	envBool("DABFLOW_STAMPER_BUILD_UP", &c.Stamper.BuildUp)
	envBool("DABFLOW_STAMPER_TIMED_SPACING", &c.Stamper.TimedSpacing)
	envString("DABFLOW_STAMPER_PRESSURE_CURVE", &c.Stamper.PressureCurve)

	envBool("DABFLOW_DUAL_BRUSH_ENABLED", &c.DualBrush.Enabled)

	envString("DABFLOW_DYNAMICS_MODE", &c.Dynamics.Mode)
	envString("DABFLOW_RENDER_BLEND", &c.Render.Blend)

	envString("DABFLOW_STORAGE_TYPE", &c.Storage.Type)
	envString("DABFLOW_STORAGE_PATH", &c.Storage.Path)

	envString("DABFLOW_LOG_LEVEL", &c.Logging.Level)
	envString("DABFLOW_LOG_FORMAT", &c.Logging.Format)
	envString("DABFLOW_LOG_PATH", &c.Logging.FilePath)

	envBool("DABFLOW_METRICS_ENABLED", &c.Metrics.Enabled)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Version:   c.Version,
		Stamper:   c.Stamper,
		DualBrush: c.DualBrush,
		Speed:     c.Speed,
		Smoothing: c.Smoothing,
		Dynamics:  c.Dynamics,
		Render:    c.Render,
		Storage:   c.Storage,
		Logging:   c.Logging,
		Metrics:   c.Metrics,
	}
}

// EnsureDirectories creates the directories the configured files live in.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.Storage.Type == "sqlite" && c.Storage.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.Path))
	}
	if c.Logging.Output == "file" && c.Logging.FilePath != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
