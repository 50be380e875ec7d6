package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dabflow/internal/input"
	"dabflow/internal/pipeline"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig && e.HasErrors()
}

// ValidateConfig performs comprehensive validation of the configuration.
// Warning-level findings never fail validation.
func ValidateConfig(c *Config) error {
	if errs := Check(c); errs.HasErrors() {
		return errs
	}
	return nil
}

// Check returns every finding, warnings included.
func Check(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateStamper(&c.Stamper)...)
	errs = append(errs, validateDualBrush(&c.DualBrush)...)
	errs = append(errs, validateSpeed(&c.Speed)...)
	errs = append(errs, validateSmoothing(&c.Smoothing)...)
	errs = append(errs, validateDynamics(&c.Dynamics)...)
	errs = append(errs, validateRender(&c.Render)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)

	return errs
}

func validateCurve(field, name string) ValidationErrors {
	if _, err := input.ParsePressureCurve(name); err != nil {
		return ValidationErrors{{
			Field:   field,
			Message: fmt.Sprintf("invalid pressure curve: %s (valid: linear, soft, hard, s-curve)", name),
		}}
	}
	return nil
}

func validateStamper(s *StamperConfig) ValidationErrors {
	var errs ValidationErrors

	if s.SpacingPx <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stamper.spacing_px",
			Message: "spacing must be positive",
		})
	}
	if s.MinMovementPx < 0 {
		errs = append(errs, ValidationError{
			Field:   "stamper.min_movement_px",
			Message: "min movement cannot be negative",
		})
	}
	if s.TimedSpacing && s.MaxIntervalMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stamper.max_interval_ms",
			Message: "interval must be positive when timed spacing is enabled",
		})
	}
	if s.BuildUp && s.TimedSpacing {
		errs = append(errs, ValidationError{
			Field:   "stamper.warning.build_up",
			Message: "build-up already deposits while stationary; timed spacing adds duplicate dabs",
		})
	}
	errs = append(errs, validateCurve("stamper.pressure_curve", s.PressureCurve)...)
	if s.LUTSize != 0 && (s.LUTSize < 2 || s.LUTSize > 4096) {
		errs = append(errs, *RangeError("stamper.lut_size", 2, 4096))
	}

	return errs
}

func validateDualBrush(d *DualBrushConfig) ValidationErrors {
	if !d.Enabled {
		return nil
	}
	var errs ValidationErrors

	if d.SpacingPx <= 0 {
		errs = append(errs, ValidationError{
			Field:   "dual_brush.spacing_px",
			Message: "spacing must be positive when the secondary brush is enabled",
		})
	}
	if d.MinMovementPx < 0 {
		errs = append(errs, ValidationError{
			Field:   "dual_brush.min_movement_px",
			Message: "min movement cannot be negative",
		})
	}
	errs = append(errs, validateCurve("dual_brush.pressure_curve", d.PressureCurve)...)

	return errs
}

func validateSpeed(s *SpeedConfig) ValidationErrors {
	var errs ValidationErrors

	if s.SmoothingSamples < 1 || s.SmoothingSamples > 64 {
		errs = append(errs, *RangeError("speed.smoothing_samples", 1, 64))
	}
	if s.MaxSpeedPxMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "speed.max_speed_px_ms",
			Message: "max speed must be positive",
		})
	}

	return errs
}

func validateSmoothing(s *SmoothingConfig) ValidationErrors {
	if s.PressureWindow < 0 || s.PressureWindow > 64 {
		return ValidationErrors{*RangeError("smoothing.pressure_window", 0, 64)}
	}
	return nil
}

func validateDynamics(d *DynamicsConfig) ValidationErrors {
	var errs ValidationErrors

	mode, err := pipeline.ParseDynamicsMode(d.Mode)
	if err != nil {
		errs = append(errs, ValidationError{
			Field:   "dynamics.mode",
			Message: fmt.Sprintf("invalid mode: %s (valid: primary, shadow, off)", d.Mode),
		})
	}
	if d.SizePx <= 0 {
		errs = append(errs, ValidationError{
			Field:   "dynamics.size_px",
			Message: "size must be positive",
		})
	}
	if d.MinSizeRatio < 0 || d.MinSizeRatio > 1 {
		errs = append(errs, *RangeError("dynamics.min_size_ratio", 0, 1))
	}
	if d.MinOpacity < 0 || d.MinOpacity > 1 {
		errs = append(errs, *RangeError("dynamics.min_opacity", 0, 1))
	}
	if d.Flow < 0 || d.Flow > 1 {
		errs = append(errs, *RangeError("dynamics.flow", 0, 1))
	}
	if d.SizeJitter < 0 || d.SizeJitter > 1 {
		errs = append(errs, *RangeError("dynamics.size_jitter", 0, 1))
	}
	if d.FadeLengthPx < 0 {
		errs = append(errs, ValidationError{
			Field:   "dynamics.fade_length_px",
			Message: "fade length cannot be negative",
		})
	}
	errs = append(errs, validateCurve("dynamics.size_curve", d.SizeCurve)...)
	errs = append(errs, validateCurve("dynamics.opacity_curve", d.OpacityCurve)...)

	if err == nil && mode == pipeline.DynamicsOff && d.SizeJitter > 0 {
		errs = append(errs, ValidationError{
			Field:   "dynamics.warning.size_jitter",
			Message: "size jitter has no effect while dynamics are off",
		})
	}

	return errs
}

func validateRender(r *RenderConfig) ValidationErrors {
	if _, err := pipeline.ParseBlendMode(r.Blend); err != nil {
		return ValidationErrors{{
			Field:   "render.blend",
			Message: fmt.Sprintf("invalid blend mode: %s (valid: normal, multiply, screen, erase)", r.Blend),
		}}
	}
	return nil
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Type {
	case "sqlite", "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("invalid storage type: %s (valid: sqlite, memory)", s.Type),
		})
	}

	if s.Type == "sqlite" {
		if s.Path == "" {
			errs = append(errs, *RequiredFieldError("storage.path"))
			return errs
		}

		// A missing directory is created later by EnsureDirectories.
		dir := filepath.Dir(expandPath(s.Path))
		if dir != "" && dir != "." {
			if info, err := os.Stat(dir); err != nil {
				if !os.IsNotExist(err) {
					errs = append(errs, ValidationError{
						Field:   "storage.path",
						Message: fmt.Sprintf("cannot access directory: %v", err),
					})
				}
			} else if !info.IsDir() {
				errs = append(errs, ValidationError{
					Field:   "storage.path",
					Message: fmt.Sprintf("parent path is not a directory: %s", dir),
				})
			}
		}
	}

	if s.Type == "memory" && s.Path != "" {
		errs = append(errs, ValidationError{
			Field:   "storage.warning.path",
			Message: "path is ignored by memory storage",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
		if l.MaxSizeMB < 1 {
			errs = append(errs, ValidationError{
				Field:   "logging.max_size_mb",
				Message: "max size must be at least 1 MB",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if !m.Enabled {
		return nil
	}
	var errs ValidationErrors

	switch m.Format {
	case "prometheus", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "metrics.format",
			Message: fmt.Sprintf("invalid metrics format: %s (valid: prometheus, json)", m.Format),
		})
	}
	if strings.ContainsAny(m.Namespace, " -.") {
		errs = append(errs, ValidationError{
			Field:   "metrics.namespace",
			Message: "namespace may only contain letters, digits and underscores",
		})
	}

	return errs
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	return strings.Contains(e.Field, ".warning.")
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}

// ErrInvalidConfig is matched by validation failures with errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")
