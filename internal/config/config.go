// Package config loads autoselfie settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/autoselfie/internal/app"
	"github.com/ayusman/autoselfie/internal/detector"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AUTOSELFIE_"

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config is the full application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Capture  CaptureConfig  `yaml:"capture"`
	Assets   AssetsConfig   `yaml:"assets"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
}

type CameraConfig struct {
	Device   int `yaml:"device"`
	Width    int `yaml:"width"`
	Height   int `yaml:"height"`
	FPS      int `yaml:"fps"`
	MaxWidth int `yaml:"max_width"`
}

type ThresholdsConfig struct {
	Center    float64 `yaml:"center"`
	MinHeight float64 `yaml:"min_height"`
	MaxHeight float64 `yaml:"max_height"`
}

type DetectorConfig struct {
	ScaleFactor      float64           `yaml:"scale_factor"`
	FaceScaleStep    float64           `yaml:"face_scale_step"`
	FaceMinNeighbors int               `yaml:"face_min_neighbors"`
	EyeScaleStep     float64           `yaml:"eye_scale_step"`
	EyeMinNeighbors  int               `yaml:"eye_min_neighbors"`
	FaceModel        string            `yaml:"face_model"`
	EyeModel         string            `yaml:"eye_model"`
	ModelDir         string            `yaml:"model_dir"`
	Variants         map[string]string `yaml:"variants"`
	Thresholds       ThresholdsConfig  `yaml:"thresholds"`
	Debug            bool              `yaml:"debug"`
}

// CaptureConfig holds state machine timings in milliseconds.
type CaptureConfig struct {
	IntervalMs          int `yaml:"interval_ms"`
	AutoCaptureDelayMs  int `yaml:"auto_capture_delay_ms"`
	ConfirmationDelayMs int `yaml:"confirmation_delay_ms"`
	ManualTimeoutMs     int `yaml:"manual_timeout_ms"`
	FaceManualTimeoutMs int `yaml:"face_manual_timeout_ms"`
}

// AssetsConfig selects where missing classifier files come from.
// BaseURL wins over Dir when both are set.
type AssetsConfig struct {
	BaseURL   string `yaml:"base_url"`
	Dir       string `yaml:"dir"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// StoreConfig points at the sqlite database. An empty path lets the CLI
// use ~/.autoselfie/autoselfie.db.
type StoreConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dc := detector.DefaultConfig()
	ac := app.DefaultConfig()

	variants := make(map[string]string, len(dc.Variants))
	for v, p := range dc.Variants {
		variants[string(v)] = p
	}

	return &Config{
		Camera: CameraConfig{
			Device: 0,
			Width:  640,
			Height: 480,
			FPS:    15,
		},
		Detector: DetectorConfig{
			ScaleFactor:      dc.ScaleFactor,
			FaceScaleStep:    dc.FaceScaleStep,
			FaceMinNeighbors: dc.FaceMinNeighbors,
			EyeScaleStep:     dc.EyeScaleStep,
			EyeMinNeighbors:  dc.EyeMinNeighbors,
			FaceModel:        dc.FaceModel,
			EyeModel:         dc.EyeModel,
			ModelDir:         dc.ModelDir,
			Variants:         variants,
			Thresholds: ThresholdsConfig{
				Center:    dc.Thresholds.Center,
				MinHeight: dc.Thresholds.MinHeight,
				MaxHeight: dc.Thresholds.MaxHeight,
			},
		},
		Capture: CaptureConfig{
			IntervalMs:          ac.IntervalMs,
			AutoCaptureDelayMs:  ac.AutoCaptureDelayMs,
			ConfirmationDelayMs: ac.ConfirmationDelayMs,
			ManualTimeoutMs:     ac.ManualTimeoutMs,
			FaceManualTimeoutMs: ac.FaceManualTimeoutMs,
		},
		Assets: AssetsConfig{
			TimeoutMs: 30000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and validates.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from AUTOSELFIE_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"MODEL_DIR":  &c.Detector.ModelDir,
		"ASSETS_URL": &c.Assets.BaseURL,
		"ASSETS_DIR": &c.Assets.Dir,
		"STORE_PATH": &c.Store.Path,
		"LOG_LEVEL":  &c.Log.Level,
		"LOG_FORMAT": &c.Log.Format,
		"FACE_MODEL": &c.Detector.FaceModel,
		"EYE_MODEL":  &c.Detector.EyeModel,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CAMERA_DEVICE":          &c.Camera.Device,
		"INTERVAL_MS":            &c.Capture.IntervalMs,
		"AUTO_CAPTURE_DELAY_MS":  &c.Capture.AutoCaptureDelayMs,
		"CONFIRMATION_DELAY_MS":  &c.Capture.ConfirmationDelayMs,
		"MANUAL_TIMEOUT_MS":      &c.Capture.ManualTimeoutMs,
		"FACE_MANUAL_TIMEOUT_MS": &c.Capture.FaceManualTimeoutMs,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not an integer", ErrInvalid, EnvPrefix, key, v)
		}
		*dst = n
	}

	if v, ok := lookup(EnvPrefix + "DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sDEBUG=%q is not a boolean", ErrInvalid, EnvPrefix, v)
		}
		c.Detector.Debug = b
	}

	return nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	d := c.Detector
	switch {
	case d.ScaleFactor <= 0:
		return fmt.Errorf("%w: detector.scale_factor must be positive", ErrInvalid)
	case d.FaceScaleStep <= 1 || d.EyeScaleStep <= 1:
		return fmt.Errorf("%w: detector scale steps must be greater than 1", ErrInvalid)
	case d.FaceMinNeighbors < 0 || d.EyeMinNeighbors < 0:
		return fmt.Errorf("%w: detector min neighbors must not be negative", ErrInvalid)
	case d.FaceModel == "" || d.EyeModel == "":
		return fmt.Errorf("%w: detector models must be set", ErrInvalid)
	case d.Thresholds.Center <= 0 || d.Thresholds.Center >= 1:
		return fmt.Errorf("%w: detector.thresholds.center must be in (0, 1)", ErrInvalid)
	case d.Thresholds.MinHeight <= 0 || d.Thresholds.MaxHeight > 1 || d.Thresholds.MinHeight >= d.Thresholds.MaxHeight:
		return fmt.Errorf("%w: detector height thresholds must satisfy 0 < min < max <= 1", ErrInvalid)
	}

	if _, err := c.variants(); err != nil {
		return err
	}

	t := c.Capture
	if t.IntervalMs <= 0 {
		return fmt.Errorf("%w: capture.interval_ms must be positive", ErrInvalid)
	}
	for name, v := range map[string]int{
		"auto_capture_delay_ms":  t.AutoCaptureDelayMs,
		"confirmation_delay_ms":  t.ConfirmationDelayMs,
		"manual_timeout_ms":      t.ManualTimeoutMs,
		"face_manual_timeout_ms": t.FaceManualTimeoutMs,
	} {
		if v < 0 {
			return fmt.Errorf("%w: capture.%s must not be negative", ErrInvalid, name)
		}
	}

	if c.Camera.Width < 0 || c.Camera.Height < 0 || c.Camera.FPS < 0 || c.Camera.MaxWidth < 0 {
		return fmt.Errorf("%w: camera settings must not be negative", ErrInvalid)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: log.format must be text or json", ErrInvalid)
	}
	return nil
}

func (c *Config) variants() (map[detector.Variant]string, error) {
	out := make(map[detector.Variant]string, len(c.Detector.Variants))
	for name, p := range c.Detector.Variants {
		v, err := detector.ParseVariant(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		out[v] = p
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one detector variant is required", ErrInvalid)
	}
	return out, nil
}

// DetectorConfig converts to the detector package's Config. Call Validate first.
func (c *Config) DetectorConfig() detector.Config {
	variants, _ := c.variants()
	d := c.Detector
	return detector.Config{
		ScaleFactor:      d.ScaleFactor,
		FaceScaleStep:    d.FaceScaleStep,
		FaceMinNeighbors: d.FaceMinNeighbors,
		EyeScaleStep:     d.EyeScaleStep,
		EyeMinNeighbors:  d.EyeMinNeighbors,
		FaceModel:        d.FaceModel,
		EyeModel:         d.EyeModel,
		ModelDir:         d.ModelDir,
		Variants:         variants,
		Thresholds: detector.Thresholds{
			Center:    d.Thresholds.Center,
			MinHeight: d.Thresholds.MinHeight,
			MaxHeight: d.Thresholds.MaxHeight,
		},
	}
}

// AppConfig converts to the app package's Config.
func (c *Config) AppConfig() app.Config {
	t := c.Capture
	return app.Config{
		IntervalMs:          t.IntervalMs,
		AutoCaptureDelayMs:  t.AutoCaptureDelayMs,
		ConfirmationDelayMs: t.ConfirmationDelayMs,
		ManualTimeoutMs:     t.ManualTimeoutMs,
		FaceManualTimeoutMs: t.FaceManualTimeoutMs,
	}
}

// AssetTimeout returns the HTTP fetch timeout.
func (c *Config) AssetTimeout() time.Duration {
	return time.Duration(c.Assets.TimeoutMs) * time.Millisecond
}
