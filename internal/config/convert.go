package config

import (
	"fmt"
	"math/rand/v2"

	"dabflow/internal/input"
	"dabflow/internal/logging"
	"dabflow/internal/pipeline"
	"dabflow/internal/stamper"
)

// ToStamperConfig converts the stamper section.
func (c *Config) ToStamperConfig() (stamper.Config, error) {
	curve, err := input.ParsePressureCurve(c.Stamper.PressureCurve)
	if err != nil {
		return stamper.Config{}, fmt.Errorf("stamper.pressure_curve: %w", err)
	}
	cfg := stamper.DefaultConfig()
	cfg.MinMovementPx = c.Stamper.MinMovementPx
	cfg.SmoothStart = c.Stamper.SmoothStart
	cfg.TimedSpacing = c.Stamper.TimedSpacing
	cfg.MaxIntervalMs = c.Stamper.MaxIntervalMs
	if curve != input.CurveLinear {
		cfg.PressureLUT = input.NewPressureLUT(curve, c.Stamper.LUTSize)
	}
	return cfg, nil
}

// ToDualBrushConfig converts the dual_brush section. It returns nil when
// the secondary brush is disabled.
func (c *Config) ToDualBrushConfig() (*stamper.Config, error) {
	if !c.DualBrush.Enabled {
		return nil, nil
	}
	curve, err := input.ParsePressureCurve(c.DualBrush.PressureCurve)
	if err != nil {
		return nil, fmt.Errorf("dual_brush.pressure_curve: %w", err)
	}
	cfg := stamper.DefaultConfig()
	cfg.MinMovementPx = c.DualBrush.MinMovementPx
	cfg.SmoothStart = c.DualBrush.SmoothStart
	cfg.SpacingOverridePx = c.DualBrush.SpacingPx
	if curve != input.CurveLinear {
		cfg.PressureLUT = input.NewPressureLUT(curve, c.Stamper.LUTSize)
	}
	return &cfg, nil
}

// ToDynamics converts the dynamics section into the bundled pressure
// dynamics and the pipeline mode.
func (c *Config) ToDynamics() (pipeline.PressureDynamics, pipeline.DynamicsMode, error) {
	mode, err := pipeline.ParseDynamicsMode(c.Dynamics.Mode)
	if err != nil {
		return pipeline.PressureDynamics{}, 0, fmt.Errorf("dynamics.mode: %w", err)
	}
	sizeCurve, err := input.ParsePressureCurve(c.Dynamics.SizeCurve)
	if err != nil {
		return pipeline.PressureDynamics{}, 0, fmt.Errorf("dynamics.size_curve: %w", err)
	}
	opacityCurve, err := input.ParsePressureCurve(c.Dynamics.OpacityCurve)
	if err != nil {
		return pipeline.PressureDynamics{}, 0, fmt.Errorf("dynamics.opacity_curve: %w", err)
	}
	return pipeline.PressureDynamics{
		SizePx:         c.Dynamics.SizePx,
		MinSizeRatio:   c.Dynamics.MinSizeRatio,
		SizeCurve:      sizeCurve,
		OpacityCurve:   opacityCurve,
		MinOpacity:     c.Dynamics.MinOpacity,
		Flow:           c.Dynamics.Flow,
		SizeJitter:     c.Dynamics.SizeJitter,
		FadeToMinRatio: c.Dynamics.FadeToMinRatio,
	}, mode, nil
}

// ToPipelineOptions builds session options from every pipeline section.
// Collaborators other than dynamics are left for the caller to set.
func (c *Config) ToPipelineOptions() (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()

	var err error
	if opts.Stamper, err = c.ToStamperConfig(); err != nil {
		return opts, err
	}
	if opts.DualBrush, err = c.ToDualBrushConfig(); err != nil {
		return opts, err
	}
	dyn, mode, err := c.ToDynamics()
	if err != nil {
		return opts, err
	}
	blend, err := pipeline.ParseBlendMode(c.Render.Blend)
	if err != nil {
		return opts, fmt.Errorf("render.blend: %w", err)
	}

	opts.SpacingPx = c.Stamper.SpacingPx
	opts.BuildUp = c.Stamper.BuildUp
	opts.SmoothingSamples = c.Speed.SmoothingSamples
	opts.PressureWindow = c.Smoothing.PressureWindow
	opts.FadeLengthPx = c.Dynamics.FadeLengthPx
	opts.Dynamics = dyn
	opts.DynamicsMode = mode
	opts.Blend = blend
	opts.Rand = rand.New(rand.NewPCG(c.Dynamics.Seed, c.Dynamics.Seed^0xdab)).Float64
	return opts, nil
}

// ToLoggingConfig converts the logging section.
func (c *Config) ToLoggingConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("logging.format: %w", err)
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = c.Logging.Output
	if c.Logging.FilePath != "" {
		cfg.FilePath = c.Logging.FilePath
	}
	if c.Logging.MaxSizeMB > 0 {
		cfg.MaxSizeMB = c.Logging.MaxSizeMB
	}
	cfg.MaxBackups = c.Logging.MaxBackups
	cfg.AddSource = c.Logging.AddSource
	return cfg, nil
}
